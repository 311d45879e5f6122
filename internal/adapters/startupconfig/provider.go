package startupconfig

import (
	"fmt"
	"os"

	"github.com/Amund211/warmstart/internal/startup"
)

type fileStartupProvider struct {
	path    string
	catalog *startup.Catalog
}

// NewFileStartupProvider reads the startup section from the YAML file at path.
//
// The file is read again on every call. An empty path declares no startup services.
func NewFileStartupProvider(path string, catalog *startup.Catalog) startup.DescriptorProvider {
	return &fileStartupProvider{path: path, catalog: catalog}
}

func (p *fileStartupProvider) CurrentStartupDescriptors() (startup.Descriptors, error) {
	if p.path == "" {
		return startup.NewDescriptors()
	}

	file, err := os.Open(p.path)
	if err != nil {
		return startup.Descriptors{}, fmt.Errorf("failed to open startup configuration: %w", err)
	}
	defer file.Close()

	descriptors, err := ParseStartupSection(file, p.catalog)
	if err != nil {
		return startup.Descriptors{}, fmt.Errorf("%s: %w", p.path, err)
	}
	return descriptors, nil
}

type staticStartupProvider struct {
	descriptors startup.Descriptors
	err         error
}

func NewStaticStartupProvider(descriptors startup.Descriptors, err error) startup.DescriptorProvider {
	return &staticStartupProvider{descriptors: descriptors, err: err}
}

func (p *staticStartupProvider) CurrentStartupDescriptors() (startup.Descriptors, error) {
	if p.err != nil {
		return startup.Descriptors{}, p.err
	}
	return p.descriptors, nil
}
