package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/expenseflow/approval-engine/internal/application/dispatcher"
	"github.com/expenseflow/approval-engine/internal/application/port"
	"github.com/expenseflow/approval-engine/internal/domain/entity"
	"github.com/expenseflow/approval-engine/internal/domain/event"
)

var scanNow = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

type mockStepRepo struct {
	port.StepRepository
	mu       sync.Mutex
	pending  []*entity.ApprovalStep
	reminded map[int64]time.Time
	listErr  error
}

func (m *mockStepRepo) ListPending(ctx context.Context, limit int) ([]*entity.ApprovalStep, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.pending
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockStepRepo) MarkReminded(ctx context.Context, id int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reminded[id] = at
	return nil
}

type mockClaimRepo struct {
	port.ClaimRepository
}

func (m *mockClaimRepo) GetByID(ctx context.Context, id int64) (*entity.Claim, error) {
	if id == 404 {
		return nil, nil
	}
	return &entity.Claim{ID: id, Amount: decimal.NewFromInt(100), Currency: "USD"}, nil
}

type mockDirectory struct {
	port.ApproverDirectory
}

func (m *mockDirectory) FindUser(ctx context.Context, id int64) (*entity.User, error) {
	return &entity.User{ID: id, Email: "approver@example.test"}, nil
}

type mockNotifier struct {
	failFor map[int64]bool
	sent    []int64
}

func (m *mockNotifier) NotifyReminder(ctx context.Context, claim *entity.Claim, step *entity.ApprovalStep, approver *entity.User) error {
	if m.failFor[step.ID] {
		return errors.New("smtp down")
	}
	m.sent = append(m.sent, step.ID)
	return nil
}

type recordingDispatcher struct {
	dispatcher.Dispatcher
	events []*event.Event
}

func (d *recordingDispatcher) DispatchAsync(ctx context.Context, evt *event.Event) {
	d.events = append(d.events, evt)
}

type reminderMetrics struct {
	outcomes map[string]int
}

func (m *reminderMetrics) ObserveOperation(operation, outcome string, duration time.Duration) {}

func (m *reminderMetrics) ObserveReminder(outcome string) { m.outcomes[outcome]++ }

func pendingStep(id, claimID int64, lastReminder *time.Time) *entity.ApprovalStep {
	s := entity.NewPendingStep(claimID, 7, 1, entity.StageManager, scanNow.Add(-72*time.Hour))
	s.ID = id
	if lastReminder != nil {
		s.ReminderSent = true
		s.LastReminderAt = lastReminder
	}
	return s
}

func TestReminderScanner_ScanOnce(t *testing.T) {
	recent := scanNow.Add(-time.Hour)
	stale := scanNow.Add(-25 * time.Hour)

	steps := &mockStepRepo{
		pending: []*entity.ApprovalStep{
			pendingStep(1, 10, nil),
			pendingStep(2, 11, &recent),
			pendingStep(3, 12, &stale),
			pendingStep(4, 13, nil),
			pendingStep(5, 404, nil),
		},
		reminded: map[int64]time.Time{},
	}
	notifier := &mockNotifier{failFor: map[int64]bool{4: true}}
	d := &recordingDispatcher{}
	metrics := &reminderMetrics{outcomes: map[string]int{}}
	core, logs := observer.New(zap.WarnLevel)

	s := NewReminderScanner(steps, &mockClaimRepo{}, &mockDirectory{}, notifier, d,
		DefaultReminderConfig(), zap.New(core),
		WithReminderClock(func() time.Time { return scanNow }),
		WithReminderMetrics(metrics))

	sent, err := s.ScanOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sent)

	assert.Equal(t, []int64{1, 3}, notifier.sent)
	assert.Equal(t, map[int64]time.Time{1: scanNow, 3: scanNow}, steps.reminded)
	assert.Equal(t, map[string]int{"sent": 2, "skipped": 1, "failed": 2}, metrics.outcomes)
	assert.Equal(t, 2, logs.FilterMessage("Failed to send reminder").Len())

	require.Len(t, d.events, 2)
	assert.Equal(t, event.TypeStepReminderDue, d.events[0].Type)
	assert.Equal(t, int64(10), d.events[0].ClaimID)
	assert.Equal(t, int64(3), d.events[1].GetPayloadInt("step_id"))
}

func TestReminderScanner_BatchSize(t *testing.T) {
	steps := &mockStepRepo{
		pending:  []*entity.ApprovalStep{pendingStep(1, 10, nil), pendingStep(2, 11, nil)},
		reminded: map[int64]time.Time{},
	}
	cfg := DefaultReminderConfig()
	cfg.BatchSize = 1

	s := NewReminderScanner(steps, &mockClaimRepo{}, &mockDirectory{}, &mockNotifier{}, nil, cfg, zap.NewNop(),
		WithReminderClock(func() time.Time { return scanNow }))

	sent, err := s.ScanOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
}

func TestReminderScanner_ListError(t *testing.T) {
	steps := &mockStepRepo{listErr: errors.New("db closed")}
	s := NewReminderScanner(steps, &mockClaimRepo{}, &mockDirectory{}, &mockNotifier{}, nil,
		DefaultReminderConfig(), zap.NewNop())

	_, err := s.ScanOnce(context.Background())
	assert.Error(t, err)
}

func TestReminderScanner_Lifecycle(t *testing.T) {
	steps := &mockStepRepo{
		pending:  []*entity.ApprovalStep{pendingStep(1, 10, nil)},
		reminded: map[int64]time.Time{},
	}
	cfg := DefaultReminderConfig()
	cfg.ScanInterval = time.Hour

	s := NewReminderScanner(steps, &mockClaimRepo{}, &mockDirectory{}, &mockNotifier{}, nil, cfg, zap.NewNop(),
		WithReminderClock(func() time.Time { return scanNow }))

	require.NoError(t, s.Start(context.Background()))
	assert.Error(t, s.Start(context.Background()))

	assert.Eventually(t, func() bool {
		steps.mu.Lock()
		defer steps.mu.Unlock()
		_, ok := steps.reminded[1]
		return ok
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, s.Stop())
	require.NoError(t, s.Stop())
}

func TestReminderScanner_RejectsZeroScanInterval(t *testing.T) {
	cfg := DefaultReminderConfig()
	cfg.ScanInterval = 0
	s := NewReminderScanner(&mockStepRepo{}, &mockClaimRepo{}, &mockDirectory{}, &mockNotifier{}, nil, cfg, zap.NewNop())
	assert.Error(t, s.Start(context.Background()))
}
