// Package sweeper fires due delay timers, escalates or expires overdue
// approval tasks and recovers runs stranded in running.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/docflow/pkg/models"
	"github.com/dukex/docflow/pkg/nodes/delay"
	"github.com/dukex/docflow/pkg/persistence"
	"github.com/dukex/docflow/pkg/workflow"
	"github.com/google/uuid"
)

const (
	DefaultBatchSize  = 100
	DefaultStaleAfter = 5 * time.Minute
)

// Resumer continues suspended and stranded runs. *workflow.Engine implements it.
type Resumer interface {
	Resume(ctx context.Context, executionID, port string, data map[string]any) (*workflow.ResumeOutcome, error)
	Recover(ctx context.Context, executionID string) (*models.WorkflowRun, error)
}

// Report counts what one sweep did.
type Report struct {
	TimersFired     int      `json:"timers_fired"`
	TimersCancelled int      `json:"timers_cancelled"`
	Escalated       int      `json:"escalated"`
	Expired         int      `json:"expired"`
	Resumed         int      `json:"resumed"`
	Recovered       int      `json:"recovered"`
	Errors          []string `json:"errors,omitempty"`
}

func (r *Report) fail(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

type Config struct {
	BatchSize  int
	StaleAfter time.Duration
}

type Sweeper struct {
	persistence persistence.Persistence
	resumer     Resumer
	logger      *slog.Logger
	batchSize   int
	staleAfter  time.Duration
}

func New(p persistence.Persistence, resumer Resumer, logger *slog.Logger, cfg Config) *Sweeper {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}

	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = DefaultStaleAfter
	}

	return &Sweeper{
		persistence: p,
		resumer:     resumer,
		logger:      logger.With("module", "sweeper"),
		batchSize:   cfg.BatchSize,
		staleAfter:  cfg.StaleAfter,
	}
}

// Tick runs one sweep as of now. Errors on individual timers, tasks or runs
// are logged and collected in the report; the sweep moves on to the next item.
func (s *Sweeper) Tick(ctx context.Context, now time.Time) Report {
	var report Report

	s.sweepTimers(ctx, now, &report)
	s.sweepApprovals(ctx, now, &report)
	s.resumeSettled(ctx, &report)
	s.recoverStranded(ctx, now, &report)

	if report.TimersFired+report.TimersCancelled+report.Escalated+report.Expired+report.Resumed+report.Recovered > 0 || len(report.Errors) > 0 {
		s.logger.InfoContext(ctx, "Sweep finished",
			"timers_fired", report.TimersFired,
			"timers_cancelled", report.TimersCancelled,
			"escalated", report.Escalated,
			"expired", report.Expired,
			"resumed", report.Resumed,
			"recovered", report.Recovered,
			"errors", len(report.Errors),
		)
	}

	return report
}

func (s *Sweeper) sweepTimers(ctx context.Context, now time.Time, report *Report) {
	timers, err := s.persistence.DueTimers(ctx, now, s.batchSize)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to load due timers", "error", err)
		report.fail("due timers: %v", err)

		return
	}

	for _, timer := range timers {
		logger := s.logger.With("timer_id", timer.ID, "execution_id", timer.ExecutionID, "node_id", timer.NodeID)

		run, err := s.persistence.RunByID(ctx, timer.ExecutionID)
		if err != nil && !persistence.IsRunNotFound(err) {
			logger.ErrorContext(ctx, "Failed to load run of timer", "error", err)
			report.fail("timer %s: %v", timer.ID, err)

			continue
		}

		// The run may not have persisted its waiting state yet.
		if run != nil && run.Status == models.RunStatusRunning {
			continue
		}

		if run == nil || run.Status != models.RunStatusWaiting || run.CurrentNodeID != timer.NodeID || run.WaitingOn != models.ResumeKindTimer {
			ok, err := s.persistence.TransitionTimer(ctx, timer.ID, models.TimerStatusWaiting, models.TimerStatusCancelled, now)
			if err != nil {
				logger.ErrorContext(ctx, "Failed to cancel orphaned timer", "error", err)
				report.fail("timer %s: %v", timer.ID, err)

				continue
			}

			if ok {
				logger.InfoContext(ctx, "Cancelled timer of a run no longer waiting on it")
				report.TimersCancelled++
			}

			continue
		}

		ok, err := s.persistence.TransitionTimer(ctx, timer.ID, models.TimerStatusWaiting, models.TimerStatusFired, now)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to fire timer", "error", err)
			report.fail("timer %s: %v", timer.ID, err)

			continue
		}

		if !ok {
			continue
		}

		outcome, err := s.resumer.Resume(ctx, timer.ExecutionID, delay.OutputPortTimeout, map[string]any{
			"timer_id": timer.ID,
			"fired_at": now.Format(time.RFC3339),
		})
		if err != nil {
			logger.ErrorContext(ctx, "Failed to resume run after timer", "error", err)
			report.fail("timer %s: %v", timer.ID, err)

			continue
		}

		if outcome.Resumed {
			logger.InfoContext(ctx, "Timer fired", "fire_at", timer.FireAt)
			report.TimersFired++
		}
	}
}

func (s *Sweeper) sweepApprovals(ctx context.Context, now time.Time, report *Report) {
	tasks, err := s.persistence.ExpiredApprovalTasks(ctx, now, s.batchSize)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to load expired approval tasks", "error", err)
		report.fail("expired approvals: %v", err)

		return
	}

	for _, task := range tasks {
		logger := s.logger.With("task_id", task.ID, "execution_id", task.ExecutionID, "assigned_user_id", task.AssignedUserID)

		escalated, err := s.escalate(ctx, task, now)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to escalate approval task", "error", err)
			report.fail("task %s: %v", task.ID, err)

			continue
		}

		if escalated {
			report.Escalated++

			continue
		}

		ok, err := s.persistence.ResolveApprovalTask(ctx, task.ID, models.ApprovalStatusExpired, "", "approval timed out", now)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to expire approval task", "error", err)
			report.fail("task %s: %v", task.ID, err)

			continue
		}

		if !ok {
			continue
		}

		s.recordDecision(ctx, task.ID, "", models.ApprovalStatusExpired, "approval timed out", now)
		report.Expired++

		outcome, err := s.resumer.Resume(ctx, task.ExecutionID, models.ApprovalPortTimeout, map[string]any{
			"task_id":  task.ID,
			"decision": string(models.ApprovalStatusExpired),
		})
		if err != nil {
			logger.ErrorContext(ctx, "Failed to resume run after approval timeout", "error", err)
			report.fail("task %s: %v", task.ID, err)

			continue
		}

		if outcome.Resumed {
			logger.InfoContext(ctx, "Approval task expired")
		}
	}
}

// resumeSettled resumes waiting runs whose timer already fired or whose
// approval task is already resolved. This happens when the resume that
// followed closing the record failed, or the process died in between.
func (s *Sweeper) resumeSettled(ctx context.Context, report *Report) {
	runs, err := s.persistence.SettledRuns(ctx, s.batchSize)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to load settled runs", "error", err)
		report.fail("settled runs: %v", err)

		return
	}

	for _, run := range runs {
		logger := s.logger.With("execution_id", run.ID, "node_id", run.CurrentNodeID, "waiting_on", run.WaitingOn)

		port, data, err := s.settlement(ctx, run)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to load suspension record", "error", err)
			report.fail("run %s: %v", run.ID, err)

			continue
		}

		outcome, err := s.resumer.Resume(ctx, run.ID, port, data)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to resume settled run", "error", err)
			report.fail("run %s: %v", run.ID, err)

			continue
		}

		if outcome.Resumed {
			logger.InfoContext(ctx, "Resumed settled run", "port", port)
			report.Resumed++
		}
	}
}

// settlement rebuilds the port and resume data of a closed timer or task.
func (s *Sweeper) settlement(ctx context.Context, run *models.WorkflowRun) (string, map[string]any, error) {
	id := run.SuspensionID()

	if run.WaitingOn == models.ResumeKindTimer {
		timer, err := s.persistence.TimerByID(ctx, id)
		if err != nil {
			return "", nil, err
		}

		data := map[string]any{"timer_id": timer.ID}
		if timer.FiredAt != nil {
			data["fired_at"] = timer.FiredAt.Format(time.RFC3339)
		}

		return delay.OutputPortTimeout, data, nil
	}

	task, err := s.persistence.ApprovalTaskByID(ctx, id)
	if err != nil {
		return "", nil, err
	}

	port, ok := models.PortForApprovalStatus(task.Status)
	if !ok {
		return "", nil, fmt.Errorf("approval task %s is %s", task.ID, task.Status)
	}

	return port, map[string]any{
		"task_id":    task.ID,
		"decision":   string(task.Status),
		"decided_by": task.DecidedBy,
		"comment":    task.Comment,
	}, nil
}

// escalate reassigns task to the next user of its chain with a fresh expiry.
// It reports false when the chain is exhausted.
func (s *Sweeper) escalate(ctx context.Context, task *models.ApprovalTask, now time.Time) (bool, error) {
	target, ok := task.NextEscalationTarget()
	if !ok {
		return false, nil
	}

	hours, ok := task.EscalationWindow()
	if !ok {
		return false, nil
	}

	expiresAt := now.Add(time.Duration(hours) * time.Hour)

	moved, err := s.persistence.EscalateApprovalTask(ctx, task.ID, task.AssignedUserID, target, &expiresAt)
	if err != nil || !moved {
		return false, err
	}

	s.recordDecision(ctx, task.ID, target, models.ApprovalStatusEscalated,
		fmt.Sprintf("escalated from %s after timeout", task.AssignedUserID), now)

	s.logger.InfoContext(ctx, "Approval task escalated",
		"task_id", task.ID, "from", task.AssignedUserID, "to", target, "expires_at", expiresAt)

	return true, nil
}

func (s *Sweeper) recordDecision(ctx context.Context, taskID, userID string, action models.ApprovalStatus, comment string, now time.Time) {
	err := s.persistence.AddApprovalDecision(ctx, &models.ApprovalDecision{
		ID:        uuid.NewString(),
		TaskID:    taskID,
		UserID:    userID,
		Action:    action,
		Comment:   comment,
		CreatedAt: now,
	})
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to record approval decision", "task_id", taskID, "action", action, "error", err)
	}
}

func (s *Sweeper) recoverStranded(ctx context.Context, now time.Time, report *Report) {
	runs, err := s.persistence.RunsByStatus(ctx, models.RunStatusRunning, s.batchSize)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to load running runs", "error", err)
		report.fail("running runs: %v", err)

		return
	}

	for _, run := range runs {
		if now.Sub(run.UpdatedAt) < s.staleAfter {
			continue
		}

		_, err := s.resumer.Recover(ctx, run.ID)
		if err != nil {
			s.logger.ErrorContext(ctx, "Failed to recover run", "execution_id", run.ID, "error", err)
			report.fail("run %s: %v", run.ID, err)

			continue
		}

		report.Recovered++
	}
}
