package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultSchedule is how often the worker sweeps.
const DefaultSchedule = "@every 30s"

// Job is a unit of periodic work.
type Job func(ctx context.Context) error

// Scheduler runs jobs on cron schedules. A job still running when its next
// activation comes is skipped, and a panicking job does not stop the others.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger
	jobs   map[string]cron.EntryID
	mutex  sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

func NewScheduler(logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.SkipIfStillRunning(cron.DefaultLogger),
			cron.Recover(cron.DefaultLogger),
		)),
		logger: logger.With("module", "scheduler"),
		jobs:   make(map[string]cron.EntryID),
		ctx:    context.Background(),
	}
}

// Add registers job under name with a standard cron expression or a
// descriptor such as "@every 30s".
func (s *Scheduler) Add(name, spec string, job Job) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %s already scheduled", name)
	}

	logger := s.logger.With("job", name, "schedule", spec)

	id, err := s.cron.AddFunc(spec, func() {
		s.mutex.Lock()
		ctx := s.ctx
		s.mutex.Unlock()

		if ctx.Err() != nil {
			return
		}

		err := job(ctx)
		if err != nil {
			logger.ErrorContext(ctx, "Scheduled job failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q for job %s: %w", spec, name, err)
	}

	s.jobs[name] = id
	logger.Info("Scheduled job")

	return nil
}

// Start runs the scheduler until Stop is called or ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.mutex.Lock()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mutex.Unlock()

	s.cron.Start()
	s.logger.Info("Scheduler started", "jobs", len(s.jobs))
}

// Stop prevents new activations and waits for running jobs to return.
func (s *Scheduler) Stop() {
	s.mutex.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mutex.Unlock()

	<-s.cron.Stop().Done()
	s.logger.Info("Scheduler stopped")
}

// SweepJob adapts a Sweeper to a Job evaluated at the current time.
func SweepJob(s *Sweeper, now func() time.Time) Job {
	return func(ctx context.Context) error {
		report := s.Tick(ctx, now())
		if len(report.Errors) > 0 {
			return fmt.Errorf("sweep finished with %d errors", len(report.Errors))
		}

		return nil
	}
}
