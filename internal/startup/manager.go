package startup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"time"

	"github.com/Amund211/warmstart/internal/domain"
	"github.com/Amund211/warmstart/internal/logging"
	"github.com/Amund211/warmstart/internal/reporting"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/Amund211/warmstart/internal/startup"

var managerName = qualifiedName(reflect.TypeFor[Manager]())

// DescriptorProvider yields the startup services declared by configuration
type DescriptorProvider interface {
	CurrentStartupDescriptors() (Descriptors, error)
}

type DescriptorProviderFunc func() (Descriptors, error)

func (f DescriptorProviderFunc) CurrentStartupDescriptors() (Descriptors, error) {
	return f()
}

type Outcome int

const (
	// Every declared service was attempted, whatever their individual results
	OutcomeCompleted Outcome = iota + 1
	// The declared services could not be discovered, none were run
	OutcomeAborted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeAborted:
		return "aborted"
	}
	return "unknown"
}

type Failure struct {
	TypeName string
	Err      error
}

type Report struct {
	RunID     string
	Outcome   Outcome
	Attempted []string
	Failures  []Failure
	Duration  time.Duration
}

// Manager runs the configured startup services once, in order, isolating their failures.
//
// A service that hangs blocks the run: there is no timeout.
type Manager struct {
	eventLog logging.EventLog
	tracer   trace.Tracer
	now      func() time.Time
	newRunID func() string
}

type ManagerOption func(*Manager)

func WithTracer(tracer trace.Tracer) ManagerOption {
	return func(m *Manager) {
		m.tracer = tracer
	}
}

func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.now = now
	}
}

func WithRunIDs(newRunID func() string) ManagerOption {
	return func(m *Manager) {
		m.newRunID = newRunID
	}
}

func NewManager(eventLog logging.EventLog, opts ...ManagerOption) *Manager {
	m := &Manager{
		eventLog: eventLog,
		tracer:   otel.Tracer(tracerName),
		now:      time.Now,
		newRunID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Discover the startup services from provider and run each of them.
//
// Only a discovery failure is returned. Failing services are reported as warnings and in
// the returned report, and the run carries on with the next service.
func (m *Manager) Run(ctx context.Context, provider DescriptorProvider) (Report, error) {
	startedAt := m.now()
	runID := m.newRunID()
	runAttr := slog.String("runID", runID)

	ctx = logging.AddMetaToContext(ctx, runAttr)
	ctx = reporting.AddExtrasToContext(ctx, map[string]string{"runID": runID})
	ctx = reporting.SetStartedAtInContext(ctx, startedAt)

	ctx, span := m.tracer.Start(ctx, "startup.Run", trace.WithAttributes(attribute.String("startup.run_id", runID)))
	defer span.End()

	report := Report{RunID: runID}

	m.eventLog.WriteInformation(ctx, fmt.Sprintf("%s is loading startup services...", managerName), runAttr)

	descriptors, err := discover(provider)
	if err != nil {
		err = fmt.Errorf("%w: %w", domain.ErrBootstrapDiscovery, err)
		m.eventLog.WriteError(
			ctx,
			fmt.Sprintf("%s failed to load startup services.", managerName),
			runAttr,
			slog.String("error", err.Error()),
		)
		span.RecordError(err)
		span.SetStatus(codes.Error, "discovery failed")

		report.Outcome = OutcomeAborted
		report.Duration = m.now().Sub(startedAt)
		return report, err
	}

	if descriptors.Len() == 0 {
		m.eventLog.WriteInformation(ctx, fmt.Sprintf("%s has not found any startup service to load.", managerName), runAttr)
		report.Outcome = OutcomeCompleted
		report.Duration = m.now().Sub(startedAt)
		return report, nil
	}

	for descriptor := range descriptors.All() {
		report.Attempted = append(report.Attempted, descriptor.TypeName())

		err := m.runService(ctx, descriptor)
		if err == nil {
			continue
		}

		report.Failures = append(report.Failures, Failure{TypeName: descriptor.TypeName(), Err: err})
		warnCtx := reporting.AddTagsToContext(ctx, map[string]string{"startupService": descriptor.TypeName()})
		m.eventLog.WriteWarning(
			warnCtx,
			fmt.Sprintf("%s failed to run startup service %s.", managerName, descriptor.TypeName()),
			runAttr,
			slog.String("startupService", descriptor.TypeName()),
			slog.String("error", err.Error()),
		)
	}

	report.Outcome = OutcomeCompleted
	report.Duration = m.now().Sub(startedAt)
	span.SetAttributes(attribute.Int("startup.failed", len(report.Failures)))

	m.eventLog.WriteInformation(
		ctx,
		fmt.Sprintf("%s has loaded startup services.", managerName),
		runAttr,
		slog.Int("attempted", len(report.Attempted)),
		slog.Int("failed", len(report.Failures)),
		slog.Duration("duration", report.Duration),
	)
	return report, nil
}

func discover(provider DescriptorProvider) (descriptors Descriptors, err error) {
	if provider == nil {
		return Descriptors{}, errors.New("no descriptor provider")
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("descriptor provider panicked: %v", r)
		}
	}()

	return provider.CurrentStartupDescriptors()
}

func (m *Manager) runService(ctx context.Context, descriptor Descriptor) (err error) {
	ctx, span := m.tracer.Start(ctx, "startup.Execute", trace.WithAttributes(attribute.String("startup.service", descriptor.TypeName())))
	defer span.End()

	ctx = logging.AddMetaToContext(ctx, slog.String("startupService", descriptor.TypeName()))

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s panicked: %v", domain.ErrStartupServiceFailure, descriptor.TypeName(), r)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "startup service failed")
		}
	}()

	service, err := descriptor.Instantiate()
	if err != nil {
		return fmt.Errorf("%w: could not instantiate %s: %w", domain.ErrStartupServiceFailure, descriptor.TypeName(), err)
	}

	if err := service.Execute(ctx); err != nil {
		return fmt.Errorf("%w: %s: %w", domain.ErrStartupServiceFailure, descriptor.TypeName(), err)
	}
	return nil
}
