package startup

import (
	"context"
	"fmt"
	"reflect"
	"slices"
	"sync"

	"github.com/Amund211/warmstart/internal/domain"
)

// Service is a unit of initialization run once while the process boots.
//
// Failure is signaled by returning an error. The context carries the logger of the run.
type Service interface {
	Execute(ctx context.Context) error
}

// Initializer is implemented by services that need more than their zero value.
// Init runs right after instantiation, before Execute.
type Initializer interface {
	Init() error
}

var serviceType = reflect.TypeFor[Service]()

func qualifiedName(t reflect.Type) string {
	if t.Name() == "" || t.PkgPath() == "" {
		return t.String()
	}
	return t.PkgPath() + "." + t.Name()
}

// Catalog is the table of types that startup configuration can refer to by name.
type Catalog struct {
	mu    sync.RWMutex
	types map[string]reflect.Type
}

func NewCatalog() *Catalog {
	return &Catalog{types: make(map[string]reflect.Type)}
}

// Register T under its fully qualified name, e.g. "example.com/pkg/services.Warmup"
//
// T is registered whether or not *T is a Service; that is checked when a descriptor is built.
func Register[T any](c *Catalog) string {
	t := reflect.TypeFor[T]()
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	name := qualifiedName(t)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.types[name] = t
	return name
}

// Register T under an additional short name
func RegisterAlias[T any](c *Catalog, alias string) error {
	if alias == "" {
		return fmt.Errorf("%w: alias must not be empty", domain.ErrInvalidConfiguration)
	}
	t := reflect.TypeFor[T]()
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.types[alias]; ok && existing != t {
		return fmt.Errorf("%w: '%s' is already registered for %s", domain.ErrInvalidConfiguration, alias, qualifiedName(existing))
	}
	c.types[alias] = t
	return nil
}

func (c *Catalog) Resolve(name string) (reflect.Type, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.types[name]
	return t, ok
}

func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.types))
	for name := range c.types {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Descriptor identifies a startup service type without being an instance of it
type Descriptor struct {
	typeName string
	typ      reflect.Type
}

// Resolve typeName in catalog and check that the type is a Service
func NewDescriptor(catalog *Catalog, typeName string) (Descriptor, error) {
	if typeName == "" {
		return Descriptor{}, fmt.Errorf("%w: required attribute 'type' not found", domain.ErrInvalidConfiguration)
	}
	t, ok := catalog.Resolve(typeName)
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: could not resolve type '%s'", domain.ErrInvalidConfiguration, typeName)
	}
	return newDescriptor(t)
}

// Describe T directly, bypassing any catalog
func DescriptorOf[T any]() (Descriptor, error) {
	t := reflect.TypeFor[T]()
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return newDescriptor(t)
}

func newDescriptor(t reflect.Type) (Descriptor, error) {
	if !reflect.PointerTo(t).Implements(serviceType) {
		return Descriptor{}, fmt.Errorf("%w: '%s' does not implement %s", domain.ErrInvalidConfiguration, qualifiedName(t), serviceType.Name())
	}
	return Descriptor{typeName: qualifiedName(t), typ: t}, nil
}

// Fully qualified name of the described type
func (d Descriptor) TypeName() string {
	return d.typeName
}

func (d Descriptor) Type() reflect.Type {
	return d.typ
}

// Create a new instance of the described type from its zero value
func (d Descriptor) Instantiate() (Service, error) {
	if d.typ == nil {
		return nil, fmt.Errorf("%w: empty descriptor", domain.ErrInvalidConfiguration)
	}

	service, ok := reflect.New(d.typ).Interface().(Service)
	if !ok {
		panic(fmt.Sprintf("logic error: validated descriptor %s is not a Service", d.typeName))
	}

	if initializer, ok := service.(Initializer); ok {
		if err := initializer.Init(); err != nil {
			return nil, fmt.Errorf("failed to initialize %s: %w", d.typeName, err)
		}
	}
	return service, nil
}
