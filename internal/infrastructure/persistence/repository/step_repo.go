package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/expenseflow/approval-engine/internal/application/port"
	"github.com/expenseflow/approval-engine/internal/domain/entity"
	"github.com/expenseflow/approval-engine/internal/infrastructure/persistence/sqlite"
)

const stepColumns = `id, claim_id, approver_id, sequence, stage, status, comments,
	action_at, reminder_sent, last_reminder_at, created_at`

// StepRepository implements port.StepRepository
type StepRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewStepRepository creates a new step repository
func NewStepRepository(db *sqlite.DB, logger *zap.Logger) port.StepRepository {
	return &StepRepository{db: db, logger: logger}
}

// Create inserts the step. A second pending step for the claim, or a reused sequence,
// fails with entity.ErrConflict.
func (r *StepRepository) Create(ctx context.Context, step *entity.ApprovalStep) error {
	nowIfZero(&step.CreatedAt)

	result, err := r.db.Conn(ctx).ExecContext(ctx, `
		INSERT INTO approval_steps (
			claim_id, approver_id, sequence, stage, status, comments,
			action_at, reminder_sent, last_reminder_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		step.ClaimID, step.ApproverID, step.Sequence, string(step.Stage), string(step.Status), step.Comments,
		nullTime(step.ActionAt), step.ReminderSent, nullTime(step.LastReminderAt), step.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create step", zap.Int64("claim_id", step.ClaimID), zap.Error(err))
		return translate(err, "create approval step")
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	step.ID = id
	return nil
}

func (r *StepRepository) Update(ctx context.Context, step *entity.ApprovalStep) error {
	_, err := r.db.Conn(ctx).ExecContext(ctx, `
		UPDATE approval_steps SET
			status = ?, comments = ?, action_at = ?, reminder_sent = ?, last_reminder_at = ?
		WHERE id = ?`,
		string(step.Status), step.Comments, nullTime(step.ActionAt), step.ReminderSent,
		nullTime(step.LastReminderAt), step.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update step", zap.Int64("id", step.ID), zap.Error(err))
		return translate(err, "update approval step")
	}
	return nil
}

func (r *StepRepository) ListByClaimID(ctx context.Context, claimID int64) ([]*entity.ApprovalStep, error) {
	return r.list(ctx, `WHERE claim_id = ? ORDER BY sequence`, claimID)
}

func (r *StepRepository) ListPendingByApprover(ctx context.Context, approverID int64) ([]*entity.ApprovalStep, error) {
	return r.list(ctx, `WHERE approver_id = ? AND status = ? ORDER BY created_at, id`,
		approverID, string(entity.StepPending))
}

func (r *StepRepository) ListPending(ctx context.Context, limit int) ([]*entity.ApprovalStep, error) {
	return r.list(ctx, `WHERE status = ? ORDER BY created_at, id LIMIT ?`, string(entity.StepPending), limit)
}

// MarkReminded records a reminder; resolved steps are left untouched
func (r *StepRepository) MarkReminded(ctx context.Context, id int64, at time.Time) error {
	_, err := r.db.Conn(ctx).ExecContext(ctx, `
		UPDATE approval_steps SET reminder_sent = 1, last_reminder_at = ?
		WHERE id = ? AND status = ?`,
		at, id, string(entity.StepPending),
	)
	if err != nil {
		return fmt.Errorf("failed to mark step %d reminded: %w", id, err)
	}
	return nil
}

func (r *StepRepository) list(ctx context.Context, clause string, args ...interface{}) ([]*entity.ApprovalStep, error) {
	rows, err := r.db.Conn(ctx).QueryContext(ctx, `SELECT `+stepColumns+` FROM approval_steps `+clause, args...)
	if err != nil {
		r.logger.Error("Failed to list steps", zap.Error(err))
		return nil, fmt.Errorf("failed to list steps: %w", err)
	}
	defer rows.Close()

	var steps []*entity.ApprovalStep
	for rows.Next() {
		var (
			s                      entity.ApprovalStep
			stage, status          string
			actionAt, lastReminder sql.NullTime
		)
		if err := rows.Scan(&s.ID, &s.ClaimID, &s.ApproverID, &s.Sequence, &stage, &status, &s.Comments,
			&actionAt, &s.ReminderSent, &lastReminder, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}
		s.Stage = entity.Stage(stage)
		s.Status = entity.StepStatus(status)
		s.ActionAt = timePtr(actionAt)
		s.LastReminderAt = timePtr(lastReminder)
		steps = append(steps, &s)
	}
	return steps, rows.Err()
}

var _ port.StepRepository = (*StepRepository)(nil)
