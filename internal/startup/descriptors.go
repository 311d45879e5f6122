package startup

import (
	"fmt"
	"iter"
	"slices"
	"strings"

	"github.com/Amund211/warmstart/internal/domain"
)

// Descriptors is the ordered set of startup services to run. Order is execution order.
type Descriptors struct {
	items []Descriptor
}

// Build the collection, rejecting the same type named twice (ignoring case)
func NewDescriptors(descriptors ...Descriptor) (Descriptors, error) {
	seen := make(map[string]struct{}, len(descriptors))
	for _, d := range descriptors {
		if d.typ == nil {
			return Descriptors{}, fmt.Errorf("%w: empty descriptor", domain.ErrInvalidConfiguration)
		}
		key := strings.ToLower(d.typeName)
		if _, ok := seen[key]; ok {
			return Descriptors{}, fmt.Errorf("%w: the entry '%s' has already been added", domain.ErrInvalidConfiguration, d.typeName)
		}
		seen[key] = struct{}{}
	}
	return Descriptors{items: slices.Clone(descriptors)}, nil
}

func (d Descriptors) Len() int {
	return len(d.items)
}

func (d Descriptors) All() iter.Seq[Descriptor] {
	return slices.Values(d.items)
}

func (d Descriptors) TypeNames() []string {
	names := make([]string, len(d.items))
	for i, item := range d.items {
		names[i] = item.typeName
	}
	return names
}
