package mocks

import (
	"context"
	"time"

	"github.com/dukex/docflow/pkg/models"
	"github.com/dukex/docflow/pkg/persistence"
	"github.com/stretchr/testify/mock"
)

var (
	_ persistence.TimerRepository    = (*MockTimerRepository)(nil)
	_ persistence.ApprovalRepository = (*MockApprovalRepository)(nil)
)

// MockTimerRepository is a mock implementation of persistence.TimerRepository interface.
type MockTimerRepository struct {
	mock.Mock
}

func (m *MockTimerRepository) CreateTimer(ctx context.Context, timer *models.Timer) error {
	args := m.Called(ctx, timer)

	return args.Error(0)
}

func (m *MockTimerRepository) TimerByID(ctx context.Context, id string) (*models.Timer, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Timer), args.Error(1)
}

func (m *MockTimerRepository) DueTimers(ctx context.Context, now time.Time, limit int) ([]*models.Timer, error) {
	args := m.Called(ctx, now, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Timer), args.Error(1)
}

func (m *MockTimerRepository) TimersByExecution(ctx context.Context, executionID string) ([]*models.Timer, error) {
	args := m.Called(ctx, executionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Timer), args.Error(1)
}

func (m *MockTimerRepository) TransitionTimer(ctx context.Context, id string, from, to models.TimerStatus, at time.Time) (bool, error) {
	args := m.Called(ctx, id, from, to, at)

	return args.Bool(0), args.Error(1)
}

// MockApprovalRepository is a mock implementation of persistence.ApprovalRepository interface.
type MockApprovalRepository struct {
	mock.Mock
}

func (m *MockApprovalRepository) CreateApprovalTask(ctx context.Context, task *models.ApprovalTask) error {
	args := m.Called(ctx, task)

	return args.Error(0)
}

func (m *MockApprovalRepository) ApprovalTaskByID(ctx context.Context, id string) (*models.ApprovalTask, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.ApprovalTask), args.Error(1)
}

func (m *MockApprovalRepository) ApprovalTasksByExecution(ctx context.Context, executionID string) ([]*models.ApprovalTask, error) {
	args := m.Called(ctx, executionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.ApprovalTask), args.Error(1)
}

func (m *MockApprovalRepository) ApprovalTasksByUser(ctx context.Context, userID string, openOnly bool) ([]*models.ApprovalTask, error) {
	args := m.Called(ctx, userID, openOnly)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.ApprovalTask), args.Error(1)
}

func (m *MockApprovalRepository) ExpiredApprovalTasks(ctx context.Context, now time.Time, limit int) ([]*models.ApprovalTask, error) {
	args := m.Called(ctx, now, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.ApprovalTask), args.Error(1)
}

func (m *MockApprovalRepository) ResolveApprovalTask(ctx context.Context, id string, status models.ApprovalStatus, decidedBy, comment string, at time.Time) (bool, error) {
	args := m.Called(ctx, id, status, decidedBy, comment, at)

	return args.Bool(0), args.Error(1)
}

func (m *MockApprovalRepository) EscalateApprovalTask(ctx context.Context, id, fromUser, toUser string, expiresAt *time.Time) (bool, error) {
	args := m.Called(ctx, id, fromUser, toUser, expiresAt)

	return args.Bool(0), args.Error(1)
}

func (m *MockApprovalRepository) AddApprovalDecision(ctx context.Context, decision *models.ApprovalDecision) error {
	args := m.Called(ctx, decision)

	return args.Error(0)
}

func (m *MockApprovalRepository) ApprovalDecisions(ctx context.Context, taskID string) ([]*models.ApprovalDecision, error) {
	args := m.Called(ctx, taskID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.ApprovalDecision), args.Error(1)
}
