package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/docflow/pkg/eventbus"
	"github.com/dukex/docflow/pkg/matching"
	"github.com/dukex/docflow/pkg/ocr"
	"github.com/dukex/docflow/pkg/otelhelper"
	"github.com/dukex/docflow/pkg/persistence"
	"github.com/dukex/docflow/pkg/pipeline"
	"github.com/dukex/docflow/pkg/registry"
	"github.com/dukex/docflow/pkg/sweeper"
	"github.com/dukex/docflow/pkg/thumbnail"
	"github.com/dukex/docflow/pkg/webhook"
	"github.com/dukex/docflow/pkg/workflow"
	"go.opentelemetry.io/otel/trace"
)

// StackConfig is everything a docflow process needs to assemble its
// components. The zero value runs in memory with an in-process event bus.
type StackConfig struct {
	ServiceName  string
	DatabaseURL  string
	EventBus     string
	KafkaBrokers []string
	RedisURL     string
	WorkflowsDir string
	Tracing      bool

	AI      AIConfig
	Storage StorageConfig
	OCR     ocr.Config

	ThumbnailDir string
	Concurrency  int
	Sweeper      sweeper.Config
	Webhooks     webhook.DelivererConfig
}

// Stack holds the assembled components shared by the API and the worker.
type Stack struct {
	Persistence persistence.Persistence
	Bus         *eventbus.WatermillEventBus
	Executors   *registry.Executors
	Engine      *workflow.Engine
	Pipeline    *pipeline.Pipeline
	Sweeper     *sweeper.Sweeper
	Clock       func() time.Time

	webhooks webhook.DelivererConfig
	logger   *slog.Logger
	closers  []func(context.Context) error
}

// NewStack builds every component described by cfg. On error whatever was
// already opened is closed again.
func NewStack(ctx context.Context, cfg StackConfig, logger *slog.Logger) (*Stack, error) {
	s := &Stack{
		Clock:    func() time.Time { return time.Now().UTC() },
		webhooks: cfg.Webhooks,
		logger:   logger,
	}

	err := s.build(ctx, cfg)
	if err != nil {
		closeErr := s.Close(ctx)
		if closeErr != nil {
			logger.ErrorContext(ctx, "Failed to close partially built stack", "error", closeErr)
		}

		return nil, err
	}

	return s, nil
}

func (s *Stack) build(ctx context.Context, cfg StackConfig) error {
	tracer, err := s.tracer(ctx, cfg)
	if err != nil {
		return err
	}

	store, err := NewPersistence(ctx, s.logger, cfg.DatabaseURL)
	if err != nil {
		return err
	}

	s.Persistence = store
	s.closers = append(s.closers, store.Close)

	bus, err := NewEventBus(cfg.EventBus, cfg.KafkaBrokers, cfg.ServiceName, s.logger)
	if err != nil {
		return err
	}

	s.Bus = bus
	s.closers = append(s.closers, func(context.Context) error { return bus.Close() })

	locker, closeLocker, err := NewLocker(ctx, cfg.RedisURL, s.logger)
	if err != nil {
		return err
	}

	s.closers = append(s.closers, func(context.Context) error { return closeLocker() })

	s.Executors, err = NewExecutors(s.logger, store, s.Clock)
	if err != nil {
		return fmt.Errorf("failed to build node executors: %w", err)
	}

	err = ImportWorkflows(ctx, s.logger, cfg.WorkflowsDir, store, s.Executors.ValidateWorkflow)
	if err != nil {
		return err
	}

	dispatcher := webhook.NewBusDispatcher(bus, s.logger)

	s.Engine = workflow.NewEngine(workflow.Config{
		Persistence: store,
		Executors:   s.Executors,
		Locker:      locker,
		Events:      bus,
		Webhooks:    dispatcher,
		Tracer:      tracer,
		Logger:      s.logger,
		Clock:       s.Clock,
	})

	model, err := NewAI(cfg.AI, s.logger)
	if err != nil {
		return err
	}

	fetcher, err := NewFetcher(ctx, cfg.Storage, s.logger)
	if err != nil {
		return err
	}

	pipelineCfg := pipeline.Config{
		Documents:   store,
		Workflows:   s.Engine,
		Fetcher:     fetcher,
		OCR:         ocr.New(cfg.OCR, s.logger),
		Matcher:     matching.NewRuleMatcher(store, s.logger),
		AI:          model,
		Webhooks:    dispatcher,
		Tracer:      tracer,
		Logger:      s.logger,
		Clock:       s.Clock,
		Concurrency: cfg.Concurrency,
	}

	if cfg.ThumbnailDir != "" {
		pipelineCfg.Thumbnailer = thumbnail.New(cfg.ThumbnailDir, 0, s.logger)
	}

	s.Pipeline = pipeline.New(pipelineCfg)
	s.Sweeper = sweeper.New(store, s.Engine, s.logger, cfg.Sweeper)

	return nil
}

// StartWebhookDelivery subscribes a webhook deliverer to the event bus. It
// does nothing when no endpoint is configured.
func (s *Stack) StartWebhookDelivery(ctx context.Context) error {
	if len(s.webhooks.Endpoints) == 0 {
		return nil
	}

	deliverer := webhook.NewDeliverer(s.webhooks, s.logger)

	err := deliverer.Register(s.Bus)
	if err != nil {
		return fmt.Errorf("failed to register webhook deliverer: %w", err)
	}

	err = s.Bus.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe to events: %w", err)
	}

	s.logger.InfoContext(ctx, "Delivering webhooks", "endpoints", len(s.webhooks.Endpoints))

	return nil
}

// nolint:ireturn // OpenTelemetry tracers are interfaces
func (s *Stack) tracer(ctx context.Context, cfg StackConfig) (trace.Tracer, error) {
	if !cfg.Tracing {
		return otelhelper.NoopTracer(), nil
	}

	tracer, shutdown, err := otelhelper.NewTracer(ctx, cfg.ServiceName)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}

	s.closers = append(s.closers, shutdown)

	return tracer, nil
}

// Close releases everything in reverse order of creation.
func (s *Stack) Close(ctx context.Context) error {
	var errs []error

	for i := len(s.closers) - 1; i >= 0; i-- {
		err := s.closers[i](ctx)
		if err != nil {
			errs = append(errs, err)
		}
	}

	s.closers = nil

	return errors.Join(errs...)
}
