package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/expenseflow/approval-engine/internal/application/dispatcher"
	"github.com/expenseflow/approval-engine/internal/application/port"
	"github.com/expenseflow/approval-engine/internal/domain/entity"
	"github.com/expenseflow/approval-engine/internal/domain/event"
)

const (
	reminderSent    = "sent"
	reminderFailed  = "failed"
	reminderSkipped = "skipped"
)

// ReminderConfig controls the reminder scanner
type ReminderConfig struct {
	// Interval is the minimum time between two reminders for the same step
	Interval time.Duration
	// ScanInterval is how often pending steps are scanned
	ScanInterval time.Duration
	// BatchSize caps the pending steps examined per scan
	BatchSize int
}

// DefaultReminderConfig returns the 24 hour reminder policy
func DefaultReminderConfig() ReminderConfig {
	return ReminderConfig{
		Interval:     24 * time.Hour,
		ScanInterval: 15 * time.Minute,
		BatchSize:    100,
	}
}

// ReminderScanner periodically reminds approvers of steps left pending
type ReminderScanner struct {
	steps      port.StepRepository
	claims     port.ClaimRepository
	directory  port.ApproverDirectory
	notifier   port.Notifier
	dispatcher dispatcher.Dispatcher
	metrics    port.WorkflowMetrics
	cfg        ReminderConfig
	logger     *zap.Logger
	now        func() time.Time

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// ReminderOption configures the scanner
type ReminderOption func(*ReminderScanner)

// WithReminderClock sets the time source
func WithReminderClock(now func() time.Time) ReminderOption {
	return func(s *ReminderScanner) {
		s.now = now
	}
}

// WithReminderMetrics records one outcome per examined step
func WithReminderMetrics(m port.WorkflowMetrics) ReminderOption {
	return func(s *ReminderScanner) {
		s.metrics = m
	}
}

// NewReminderScanner creates the scanner. d may be nil.
func NewReminderScanner(
	steps port.StepRepository,
	claims port.ClaimRepository,
	directory port.ApproverDirectory,
	notifier port.Notifier,
	d dispatcher.Dispatcher,
	cfg ReminderConfig,
	logger *zap.Logger,
	opts ...ReminderOption,
) *ReminderScanner {
	s := &ReminderScanner{
		steps:      steps,
		claims:     claims,
		directory:  directory,
		notifier:   notifier,
		dispatcher: d,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *ReminderScanner) Name() string {
	return "reminder-scanner"
}

// Start scans once immediately and then every ScanInterval until Stop or ctx ends
func (s *ReminderScanner) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("reminder scanner is already running")
	}
	if s.cfg.ScanInterval <= 0 {
		return fmt.Errorf("reminder scan interval must be positive, got %s", s.cfg.ScanInterval)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true

	s.logger.Info("Reminder scanner started",
		zap.Duration("interval", s.cfg.Interval),
		zap.Duration("scan_interval", s.cfg.ScanInterval),
		zap.Int("batch_size", s.cfg.BatchSize))

	go s.loop(loopCtx, s.done)
	return nil
}

// Stop cancels the loop and waits for an in-flight scan to finish
func (s *ReminderScanner) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done
	s.logger.Info("Reminder scanner stopped")
	return nil
}

func (s *ReminderScanner) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.cfg.ScanInterval)
	defer ticker.Stop()

	for {
		if _, err := s.ScanOnce(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("Reminder scan failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// ScanOnce reminds every examined step that needs it and returns how many were sent.
// A failed reminder is logged and left for the next scan.
func (s *ReminderScanner) ScanOnce(ctx context.Context) (int, error) {
	pending, err := s.steps.ListPending(ctx, s.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list pending steps: %w", err)
	}

	now := s.now()
	sent := 0
	for _, step := range pending {
		if ctx.Err() != nil {
			return sent, ctx.Err()
		}
		if !step.NeedsReminder(now, s.cfg.Interval) {
			s.observe(reminderSkipped)
			continue
		}

		if err := s.remind(ctx, step, now); err != nil {
			s.observe(reminderFailed)
			s.logger.Warn("Failed to send reminder",
				zap.Int64("step_id", step.ID),
				zap.Int64("claim_id", step.ClaimID),
				zap.Error(err))
			continue
		}

		step.MarkReminded(now)
		s.observe(reminderSent)
		sent++
		if s.dispatcher != nil {
			s.dispatcher.DispatchAsync(ctx, event.NewEvent(event.TypeStepReminderDue, step.ClaimID, 0, map[string]interface{}{
				"step_id":     step.ID,
				"approver_id": step.ApproverID,
				"sequence":    step.Sequence,
			}))
		}
	}

	if sent > 0 {
		s.logger.Info("Reminders sent", zap.Int("count", sent), zap.Int("examined", len(pending)))
	}
	return sent, nil
}

func (s *ReminderScanner) remind(ctx context.Context, step *entity.ApprovalStep, now time.Time) error {
	claim, err := s.claims.GetByID(ctx, step.ClaimID)
	if err != nil {
		return err
	}
	if claim == nil {
		return fmt.Errorf("claim %d not found", step.ClaimID)
	}
	approver, err := s.directory.FindUser(ctx, step.ApproverID)
	if err != nil {
		return err
	}

	if err := s.notifier.NotifyReminder(ctx, claim, step, approver); err != nil {
		return fmt.Errorf("notifier: %w", err)
	}
	return s.steps.MarkReminded(ctx, step.ID, now)
}

func (s *ReminderScanner) observe(outcome string) {
	if s.metrics != nil {
		s.metrics.ObserveReminder(outcome)
	}
}

var _ Worker = (*ReminderScanner)(nil)
