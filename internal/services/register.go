package services

import (
	"fmt"

	"github.com/Amund211/warmstart/internal/startup"
)

// RegisterAll adds the built-in startup services to catalog, under their qualified names
// and their short names
func RegisterAll(catalog *startup.Catalog) error {
	startup.Register[ProcessInfo](catalog)
	startup.Register[ResolverWarmup](catalog)

	if err := startup.RegisterAlias[ProcessInfo](catalog, "ProcessInfo"); err != nil {
		return fmt.Errorf("failed to register ProcessInfo: %w", err)
	}
	if err := startup.RegisterAlias[ResolverWarmup](catalog, "ResolverWarmup"); err != nil {
		return fmt.Errorf("failed to register ResolverWarmup: %w", err)
	}
	return nil
}
