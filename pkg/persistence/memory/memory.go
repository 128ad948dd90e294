// Package memory provides an in-process persistence implementation used by
// tests and single-node development setups.
package memory

import (
	"context"
	"encoding/json"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/dukex/docflow/pkg/models"
	"github.com/dukex/docflow/pkg/persistence"
)

var _ persistence.Persistence = (*Persistence)(nil)

// Persistence keeps every entity in maps guarded by one mutex. Values are
// copied on the way in and out so callers never share state with the store.
type Persistence struct {
	mu sync.RWMutex

	workflows map[string]*models.Workflow
	runs      map[string]*models.WorkflowRun
	timers    map[string]*models.Timer
	tasks     map[string]*models.ApprovalTask
	decisions map[string][]*models.ApprovalDecision
	logs      map[string][]*models.NodeExecutionLog
	documents map[string]*models.Document
	rules     map[string]*models.MatchRule
}

// NewPersistence creates an empty store.
func NewPersistence() *Persistence {
	return &Persistence{
		workflows: make(map[string]*models.Workflow),
		runs:      make(map[string]*models.WorkflowRun),
		timers:    make(map[string]*models.Timer),
		tasks:     make(map[string]*models.ApprovalTask),
		decisions: make(map[string][]*models.ApprovalDecision),
		logs:      make(map[string][]*models.NodeExecutionLog),
		documents: make(map[string]*models.Document),
		rules:     make(map[string]*models.MatchRule),
	}
}

func (p *Persistence) HealthCheck(_ context.Context) error { return nil }

func (p *Persistence) Close(_ context.Context) error { return nil }

// Workflows

func (p *Persistence) Workflows(_ context.Context) ([]*models.Workflow, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]*models.Workflow, 0, len(p.workflows))
	for _, wf := range p.workflows {
		out = append(out, clone(wf))
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out, nil
}

func (p *Persistence) WorkflowByID(_ context.Context, id string) (*models.Workflow, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	wf, ok := p.workflows[id]
	if !ok {
		return nil, persistence.NewWorkflowError("get", id, persistence.ErrWorkflowNotFound)
	}

	return clone(wf), nil
}

func (p *Persistence) WorkflowsByTrigger(ctx context.Context, event models.TriggerEvent) ([]*models.Workflow, error) {
	all, err := p.Workflows(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]*models.Workflow, 0, len(all))
	for _, wf := range all {
		if wf.IsActive() && wf.TriggerEvent == event {
			out = append(out, wf)
		}
	}

	return out, nil
}

func (p *Persistence) SaveWorkflow(_ context.Context, workflow *models.Workflow) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now().UTC()
	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now
	p.workflows[workflow.ID] = clone(workflow)

	return nil
}

// Runs

func (p *Persistence) CreateRun(_ context.Context, run *models.WorkflowRun) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.runs[run.ID]; exists {
		return persistence.NewRunError("create", run.ID, persistence.ErrRunAlreadyExists)
	}

	p.runs[run.ID] = clone(run)

	return nil
}

func (p *Persistence) SaveRun(_ context.Context, run *models.WorkflowRun) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.runs[run.ID] = clone(run)

	return nil
}

func (p *Persistence) RunByID(_ context.Context, executionID string) (*models.WorkflowRun, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	run, ok := p.runs[executionID]
	if !ok {
		return nil, persistence.NewRunError("get", executionID, persistence.ErrRunNotFound)
	}

	return clone(run), nil
}

func (p *Persistence) RunsByStatus(_ context.Context, status models.RunStatus, limit int) ([]*models.WorkflowRun, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]*models.WorkflowRun, 0)
	for _, run := range p.runs {
		if run.Status == status {
			out = append(out, clone(run))
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })

	return truncate(out, limit), nil
}

func (p *Persistence) SettledRuns(_ context.Context, limit int) ([]*models.WorkflowRun, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]*models.WorkflowRun, 0)
	for _, run := range p.runs {
		id := run.SuspensionID()
		if id == "" {
			continue
		}

		var settled bool

		switch run.WaitingOn {
		case models.ResumeKindTimer:
			timer, ok := p.timers[id]
			settled = ok && timer.Status == models.TimerStatusFired
		case models.ResumeKindApproval:
			if task, ok := p.tasks[id]; ok {
				_, settled = models.PortForApprovalStatus(task.Status)
			}
		}

		if settled {
			out = append(out, clone(run))
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })

	return truncate(out, limit), nil
}

func (p *Persistence) ClaimRun(_ context.Context, executionID string, from []models.RunStatus, to models.RunStatus, nodeID string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	run, ok := p.runs[executionID]
	if !ok {
		return false, persistence.NewRunError("claim", executionID, persistence.ErrRunNotFound)
	}

	if !slices.Contains(from, run.Status) {
		return false, nil
	}

	if nodeID != "" && run.CurrentNodeID != nodeID {
		return false, nil
	}

	run.Status = to
	run.UpdatedAt = time.Now().UTC()

	return true, nil
}

// Timers

func (p *Persistence) CreateTimer(_ context.Context, timer *models.Timer) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.timers[timer.ID] = clone(timer)

	return nil
}

func (p *Persistence) TimerByID(_ context.Context, id string) (*models.Timer, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	timer, ok := p.timers[id]
	if !ok {
		return nil, persistence.NewTimerError("get", id, persistence.ErrTimerNotFound)
	}

	return clone(timer), nil
}

func (p *Persistence) DueTimers(_ context.Context, now time.Time, limit int) ([]*models.Timer, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]*models.Timer, 0)
	for _, timer := range p.timers {
		if timer.IsDue(now) {
			out = append(out, clone(timer))
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].FireAt.Before(out[j].FireAt) })

	return truncate(out, limit), nil
}

func (p *Persistence) TimersByExecution(_ context.Context, executionID string) ([]*models.Timer, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]*models.Timer, 0)
	for _, timer := range p.timers {
		if timer.ExecutionID == executionID {
			out = append(out, clone(timer))
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })

	return out, nil
}

func (p *Persistence) TransitionTimer(_ context.Context, id string, from, to models.TimerStatus, at time.Time) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	timer, ok := p.timers[id]
	if !ok {
		return false, persistence.NewTimerError("transition", id, persistence.ErrTimerNotFound)
	}

	if timer.Status != from {
		return false, nil
	}

	timer.Status = to
	if to == models.TimerStatusFired {
		timer.FiredAt = &at
	}

	return true, nil
}

// Approvals

func (p *Persistence) CreateApprovalTask(_ context.Context, task *models.ApprovalTask) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.tasks[task.ID] = clone(task)

	return nil
}

func (p *Persistence) ApprovalTaskByID(_ context.Context, id string) (*models.ApprovalTask, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	task, ok := p.tasks[id]
	if !ok {
		return nil, persistence.NewApprovalError("get", id, persistence.ErrApprovalTaskNotFound)
	}

	return clone(task), nil
}

func (p *Persistence) ApprovalTasksByExecution(_ context.Context, executionID string) ([]*models.ApprovalTask, error) {
	return p.filterTasks(func(t *models.ApprovalTask) bool { return t.ExecutionID == executionID }, 0), nil
}

func (p *Persistence) ApprovalTasksByUser(_ context.Context, userID string, openOnly bool) ([]*models.ApprovalTask, error) {
	return p.filterTasks(func(t *models.ApprovalTask) bool {
		return t.AssignedUserID == userID && (!openOnly || t.Status.IsOpen())
	}, 0), nil
}

func (p *Persistence) ExpiredApprovalTasks(_ context.Context, now time.Time, limit int) ([]*models.ApprovalTask, error) {
	return p.filterTasks(func(t *models.ApprovalTask) bool { return t.IsExpired(now) }, limit), nil
}

func (p *Persistence) filterTasks(keep func(*models.ApprovalTask) bool, limit int) []*models.ApprovalTask {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]*models.ApprovalTask, 0)
	for _, task := range p.tasks {
		if keep(task) {
			out = append(out, clone(task))
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })

	return truncate(out, limit)
}

func (p *Persistence) ResolveApprovalTask(_ context.Context, id string, status models.ApprovalStatus, decidedBy, comment string, at time.Time) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	task, ok := p.tasks[id]
	if !ok {
		return false, persistence.NewApprovalError("resolve", id, persistence.ErrApprovalTaskNotFound)
	}

	if !task.Status.IsOpen() {
		return false, nil
	}

	task.Status = status
	task.DecidedBy = decidedBy
	task.Comment = comment
	task.DecidedAt = &at

	return true, nil
}

func (p *Persistence) EscalateApprovalTask(_ context.Context, id, fromUser, toUser string, expiresAt *time.Time) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	task, ok := p.tasks[id]
	if !ok {
		return false, persistence.NewApprovalError("escalate", id, persistence.ErrApprovalTaskNotFound)
	}

	if !task.Status.IsOpen() || task.AssignedUserID != fromUser {
		return false, nil
	}

	task.AssignedUserID = toUser
	task.ExpiresAt = expiresAt
	task.EscalationCount++
	task.Status = models.ApprovalStatusEscalated

	return true, nil
}

func (p *Persistence) AddApprovalDecision(_ context.Context, decision *models.ApprovalDecision) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.decisions[decision.TaskID] = append(p.decisions[decision.TaskID], clone(decision))

	return nil
}

func (p *Persistence) ApprovalDecisions(_ context.Context, taskID string) ([]*models.ApprovalDecision, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]*models.ApprovalDecision, 0, len(p.decisions[taskID]))
	for _, d := range p.decisions[taskID] {
		out = append(out, clone(d))
	}

	return out, nil
}

// Execution logs

func (p *Persistence) AppendExecutionLog(_ context.Context, entry *models.NodeExecutionLog) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.logs[entry.ExecutionID] = append(p.logs[entry.ExecutionID], clone(entry))

	return nil
}

func (p *Persistence) ExecutionLogs(_ context.Context, executionID string) ([]*models.NodeExecutionLog, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]*models.NodeExecutionLog, 0, len(p.logs[executionID]))
	for _, entry := range p.logs[executionID] {
		out = append(out, clone(entry))
	}

	return out, nil
}

// Documents

func (p *Persistence) DocumentByID(_ context.Context, id string) (*models.Document, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	doc, ok := p.documents[id]
	if !ok {
		return nil, persistence.NewDocumentError("get", id, persistence.ErrDocumentNotFound)
	}

	return clone(doc), nil
}

func (p *Persistence) SaveDocument(_ context.Context, document *models.Document) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now().UTC()
	if document.CreatedAt.IsZero() {
		document.CreatedAt = now
	}

	document.UpdatedAt = now
	p.documents[document.ID] = clone(document)

	return nil
}

func (p *Persistence) PendingDocuments(_ context.Context, limit int) ([]*models.Document, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]*models.Document, 0)
	for _, doc := range p.documents {
		if !doc.IsIndexed {
			out = append(out, clone(doc))
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })

	return truncate(out, limit), nil
}

// Match rules

func (p *Persistence) MatchRules(_ context.Context) ([]*models.MatchRule, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]*models.MatchRule, 0, len(p.rules))
	for _, rule := range p.rules {
		out = append(out, clone(rule))
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out, nil
}

func (p *Persistence) SaveMatchRule(_ context.Context, rule *models.MatchRule) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.rules[rule.ID] = clone(rule)

	return nil
}

func truncate[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}

	return items
}

// clone deep-copies a value through its JSON form, the same shape the SQL
// store persists.
func clone[T any](v *T) *T {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}

	out := new(T)
	if err := json.Unmarshal(data, out); err != nil {
		panic(err)
	}

	return out
}
