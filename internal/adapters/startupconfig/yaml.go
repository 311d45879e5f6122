package startupconfig

import (
	"errors"
	"fmt"
	"io"

	"github.com/Amund211/warmstart/internal/domain"
	"github.com/Amund211/warmstart/internal/startup"
	"gopkg.in/yaml.v3"
)

type serviceDeclaration struct {
	Type *string `yaml:"type"`
}

type startupSection struct {
	Services []serviceDeclaration `yaml:"services"`
}

type runtimeSection struct {
	Startup *startupSection `yaml:"startup"`
}

type document struct {
	Runtime *runtimeSection `yaml:"runtime"`
}

// ParseStartupSection reads the runtime.startup section of a YAML document.
//
// A document without the section declares no startup services. Each declared type is
// resolved through catalog, in declaration order.
func ParseStartupSection(r io.Reader, catalog *startup.Catalog) (startup.Descriptors, error) {
	var doc document
	err := yaml.NewDecoder(r).Decode(&doc)
	if errors.Is(err, io.EOF) {
		return startup.NewDescriptors()
	}
	if err != nil {
		return startup.Descriptors{}, fmt.Errorf("%w: failed to parse startup section: %w", domain.ErrInvalidConfiguration, err)
	}

	if doc.Runtime == nil || doc.Runtime.Startup == nil {
		return startup.NewDescriptors()
	}

	descriptors := make([]startup.Descriptor, 0, len(doc.Runtime.Startup.Services))
	for i, declaration := range doc.Runtime.Startup.Services {
		typeName := ""
		if declaration.Type != nil {
			typeName = *declaration.Type
		}

		descriptor, err := startup.NewDescriptor(catalog, typeName)
		if err != nil {
			return startup.Descriptors{}, fmt.Errorf("services[%d]: %w", i, err)
		}
		descriptors = append(descriptors, descriptor)
	}

	return startup.NewDescriptors(descriptors...)
}
