// Package main provides the docflow background worker.
package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/docflow/pkg/cmd"
	"github.com/dukex/docflow/pkg/sweeper"
)

const (
	DefaultSweepSchedule     = "@every 1m"
	DefaultDocumentsSchedule = "@every 30s"
)

type Config struct {
	SweepSchedule     string
	DocumentsSchedule string
	PendingLimit      int
}

// Worker drives the periodic jobs: the sweeper and the pending document batch.
type Worker struct {
	logger    *slog.Logger
	stack     *cmd.Stack
	config    Config
	scheduler *sweeper.Scheduler
}

func NewWorker(logger *slog.Logger, stack *cmd.Stack, config Config) *Worker {
	if config.SweepSchedule == "" {
		config.SweepSchedule = DefaultSweepSchedule
	}

	return &Worker{
		logger:    logger,
		stack:     stack,
		config:    config,
		scheduler: sweeper.NewScheduler(logger),
	}
}

func (w *Worker) registerJobs() error {
	err := w.scheduler.Add("sweep", w.config.SweepSchedule, sweeper.SweepJob(w.stack.Sweeper, w.stack.Clock))
	if err != nil {
		return fmt.Errorf("failed to schedule sweep: %w", err)
	}

	if w.config.DocumentsSchedule == "" {
		return nil
	}

	err = w.scheduler.Add("pending-documents", w.config.DocumentsSchedule, w.processPending)
	if err != nil {
		return fmt.Errorf("failed to schedule document processing: %w", err)
	}

	return nil
}

func (w *Worker) processPending(ctx context.Context) error {
	result, err := w.stack.Pipeline.ProcessPendingDocuments(ctx, w.config.PendingLimit)
	if err != nil {
		return err
	}

	if result.Processed > 0 || result.Errors > 0 {
		w.logger.InfoContext(ctx, "Processed pending documents", "processed", result.Processed, "errors", result.Errors)
	}

	return nil
}

// Run recovers stranded work once, then runs the schedule until ctx is done.
func (w *Worker) Run(ctx context.Context) error {
	err := w.registerJobs()
	if err != nil {
		return err
	}

	err = w.stack.StartWebhookDelivery(ctx)
	if err != nil {
		return err
	}

	report := w.stack.Sweeper.Tick(ctx, w.stack.Clock())
	w.logger.InfoContext(ctx, "Startup sweep finished",
		"timers_fired", report.TimersFired, "expired", report.Expired, "recovered", report.Recovered, "errors", len(report.Errors))

	w.scheduler.Start(ctx)
	defer w.scheduler.Stop()

	<-ctx.Done()
	w.logger.Info("Shutting down docflow worker")

	return nil
}
