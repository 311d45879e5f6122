package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	_ "golang.org/x/crypto/x509roots/fallback"

	"github.com/Amund211/warmstart/internal/adapters/startupconfig"
	"github.com/Amund211/warmstart/internal/config"
	"github.com/Amund211/warmstart/internal/logging"
	"github.com/Amund211/warmstart/internal/reporting"
	"github.com/Amund211/warmstart/internal/services"
	"github.com/Amund211/warmstart/internal/startup"
	"github.com/Amund211/warmstart/internal/telemetry"
	"github.com/google/uuid"
)

const serviceName = "warmstart"

func main() {
	instanceID := uuid.New().String()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With("instanceID", instanceID)

	fail := func(msg string, args ...any) {
		logger.Error(msg, args...)
		os.Exit(1)
	}

	config, err := config.ConfigFromEnv()
	if err != nil {
		fail("Failed to load config", "error", err.Error())
	}

	logger = slog.New(
		logging.NewTraceLogHandler(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: config.LogLevel()}),
			config.GoogleCloudProject(),
		),
	).With("instanceID", instanceID)
	logger.Info("Loaded config", "config", config.NonSensitiveString())

	ctx := logging.AddToContext(context.Background(), logger)

	shutdownTelemetry, err := telemetry.SetupOTelSDK(ctx, serviceName, instanceID)
	if err != nil {
		fail("Failed to initialize OpenTelemetry", "error", err.Error())
	}
	stopTelemetry := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.Error("Failed to shut down OpenTelemetry", "error", err.Error())
		}
	}
	defer stopTelemetry()

	flush, err := reporting.NewSentryOrMock(config)
	if err != nil {
		fail("Failed to initialize Sentry", "error", err.Error())
	}
	defer flush()
	logger.Info("Initialized Sentry")

	// os.Exit skips the deferred cleanup
	exit := func(code int) {
		flush()
		stopTelemetry()
		os.Exit(code)
	}

	catalog := startup.NewCatalog()
	if err := services.RegisterAll(catalog); err != nil {
		reporting.Report(ctx, fmt.Errorf("failed to register startup services: %w", err))
		exit(1)
	}
	provider := startupconfig.NewFileStartupProvider(config.StartupConfigPath(), catalog)

	eventLog := reporting.NewReportingEventLog(logging.NewEventLog(logger))
	manager := startup.NewManager(eventLog)

	report, err := manager.Run(ctx, provider)
	if err != nil {
		// Already logged and sent to Sentry by the event log
		exit(1)
	}

	logger.Info(
		"Init complete",
		"runID", report.RunID,
		"outcome", report.Outcome.String(),
		"attempted", len(report.Attempted),
		"failed", len(report.Failures),
	)
}
