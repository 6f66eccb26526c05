package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/expenseflow/approval-engine/internal/application/port"
	"github.com/expenseflow/approval-engine/internal/domain/entity"
	"github.com/expenseflow/approval-engine/internal/domain/workflow"
	"github.com/expenseflow/approval-engine/internal/infrastructure/persistence/sqlite"
)

const claimColumns = `id, organization_id, submitter_id, amount, currency, base_amount, base_currency,
	exchange_rate, category, description, claim_date, status, rejection_reason,
	submitted_at, last_action_at, completed_at, version, created_at, updated_at`

// ClaimRepository implements port.ClaimRepository
type ClaimRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewClaimRepository creates a new claim repository
func NewClaimRepository(db *sqlite.DB, logger *zap.Logger) port.ClaimRepository {
	return &ClaimRepository{db: db, logger: logger}
}

// Create inserts the claim and sets its ID
func (r *ClaimRepository) Create(ctx context.Context, claim *entity.Claim) error {
	nowIfZero(&claim.CreatedAt)
	nowIfZero(&claim.UpdatedAt)

	result, err := r.db.Conn(ctx).ExecContext(ctx, `
		INSERT INTO claims (
			organization_id, submitter_id, amount, currency, base_amount, base_currency,
			exchange_rate, category, description, claim_date, status, rejection_reason,
			submitted_at, last_action_at, completed_at, version, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		claim.OrganizationID, claim.SubmitterID, claim.Amount, claim.Currency,
		claim.ApprovalAmount(), claim.BaseCurrency, claim.ExchangeRate,
		claim.Category, claim.Description, claim.ClaimDate, string(claim.Status), claim.RejectionReason,
		nullTime(claim.SubmittedAt), nullTime(claim.LastActionAt), nullTime(claim.CompletedAt),
		claim.Version, claim.CreatedAt, claim.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create claim", zap.Error(err))
		return translate(err, "create claim")
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	claim.ID = id
	return nil
}

// GetByID returns nil when the claim does not exist
func (r *ClaimRepository) GetByID(ctx context.Context, id int64) (*entity.Claim, error) {
	row := r.db.Conn(ctx).QueryRowContext(ctx, `SELECT `+claimColumns+` FROM claims WHERE id = ?`, id)

	claim, err := scanClaim(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get claim", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get claim: %w", err)
	}
	return claim, nil
}

// Update writes the mutable fields when the stored version matches and bumps the version
func (r *ClaimRepository) Update(ctx context.Context, claim *entity.Claim) error {
	conn := r.db.Conn(ctx)
	if claim.UpdatedAt.IsZero() {
		claim.UpdatedAt = time.Now()
	}

	result, err := conn.ExecContext(ctx, `
		UPDATE claims SET
			amount = ?, currency = ?, base_amount = ?, base_currency = ?, exchange_rate = ?,
			category = ?, description = ?, claim_date = ?, status = ?, rejection_reason = ?,
			submitted_at = ?, last_action_at = ?, completed_at = ?, updated_at = ?,
			version = version + 1
		WHERE id = ? AND version = ?`,
		claim.Amount, claim.Currency, claim.ApprovalAmount(), claim.BaseCurrency, claim.ExchangeRate,
		claim.Category, claim.Description, claim.ClaimDate, string(claim.Status), claim.RejectionReason,
		nullTime(claim.SubmittedAt), nullTime(claim.LastActionAt), nullTime(claim.CompletedAt), claim.UpdatedAt,
		claim.ID, claim.Version,
	)
	if err != nil {
		r.logger.Error("Failed to update claim", zap.Int64("id", claim.ID), zap.Error(err))
		return translate(err, "update claim")
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		var exists int
		err := conn.QueryRowContext(ctx, `SELECT 1 FROM claims WHERE id = ?`, claim.ID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: claim %d", entity.ErrNotFound, claim.ID)
		}
		return fmt.Errorf("%w: claim %d was modified concurrently (version %d)", entity.ErrConflict, claim.ID, claim.Version)
	}

	claim.Version++
	return nil
}

func (r *ClaimRepository) ListBySubmitter(ctx context.Context, submitterID int64) ([]*entity.Claim, error) {
	return r.list(ctx, `WHERE submitter_id = ?`, submitterID)
}

func (r *ClaimRepository) ListByOrganization(ctx context.Context, orgID int64) ([]*entity.Claim, error) {
	return r.list(ctx, `WHERE organization_id = ?`, orgID)
}

func (r *ClaimRepository) ListByManager(ctx context.Context, managerID int64) ([]*entity.Claim, error) {
	return r.list(ctx, `WHERE submitter_id IN (SELECT id FROM users WHERE manager_id = ?)`, managerID)
}

func (r *ClaimRepository) ListByStatuses(ctx context.Context, statuses []workflow.State) ([]*entity.Claim, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	args := make([]interface{}, len(statuses))
	for i, s := range statuses {
		args[i] = string(s)
	}
	return r.list(ctx, `WHERE status IN (`+placeholders(len(statuses))+`)`, args...)
}

func (r *ClaimRepository) list(ctx context.Context, where string, args ...interface{}) ([]*entity.Claim, error) {
	rows, err := r.db.Conn(ctx).QueryContext(ctx, `SELECT `+claimColumns+` FROM claims `+where+` ORDER BY id`, args...)
	if err != nil {
		r.logger.Error("Failed to list claims", zap.Error(err))
		return nil, fmt.Errorf("failed to list claims: %w", err)
	}
	defer rows.Close()

	var claims []*entity.Claim
	for rows.Next() {
		claim, err := scanClaim(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan claim: %w", err)
		}
		claims = append(claims, claim)
	}
	return claims, rows.Err()
}

func scanClaim(s scanner) (*entity.Claim, error) {
	var (
		c                                    entity.Claim
		status                               string
		submittedAt, lastActionAt, completed sql.NullTime
	)
	err := s.Scan(
		&c.ID, &c.OrganizationID, &c.SubmitterID, &c.Amount, &c.Currency, &c.BaseAmount, &c.BaseCurrency,
		&c.ExchangeRate, &c.Category, &c.Description, &c.ClaimDate, &status, &c.RejectionReason,
		&submittedAt, &lastActionAt, &completed, &c.Version, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.Status = workflow.State(status)
	c.SubmittedAt = timePtr(submittedAt)
	c.LastActionAt = timePtr(lastActionAt)
	c.CompletedAt = timePtr(completed)
	return &c, nil
}

var _ port.ClaimRepository = (*ClaimRepository)(nil)
