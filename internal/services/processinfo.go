package services

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"github.com/Amund211/warmstart/internal/logging"
)

// ProcessInfo logs facts about the running process
type ProcessInfo struct{}

func (p *ProcessInfo) Execute(ctx context.Context) error {
	hostname, err := os.Hostname()
	if err != nil {
		return fmt.Errorf("failed to get hostname: %w", err)
	}

	logging.FromContext(ctx).InfoContext(
		ctx,
		"Process info",
		"goVersion", runtime.Version(),
		"gomaxprocs", runtime.GOMAXPROCS(0),
		"numCPU", runtime.NumCPU(),
		"pid", os.Getpid(),
		"hostname", hostname,
	)
	return nil
}
