package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/expenseflow/approval-engine/internal/application/port"
	"github.com/expenseflow/approval-engine/internal/domain/entity"
	"github.com/expenseflow/approval-engine/internal/infrastructure/persistence/sqlite"
)

const approverConfigColumns = `id, rule_id, approver_id, sequence, min_amount, max_amount,
	is_manager_step, is_finance_step, is_director_step, is_cfo_step, created_at`

// ApproverConfigRepository implements port.ApproverConfigRepository
type ApproverConfigRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewApproverConfigRepository creates a new approver config repository
func NewApproverConfigRepository(db *sqlite.DB, logger *zap.Logger) port.ApproverConfigRepository {
	return &ApproverConfigRepository{db: db, logger: logger}
}

func (r *ApproverConfigRepository) Create(ctx context.Context, cfg *entity.ApproverConfig) error {
	nowIfZero(&cfg.CreatedAt)

	result, err := r.db.Conn(ctx).ExecContext(ctx, `
		INSERT INTO approver_configs (
			rule_id, approver_id, sequence, min_amount, max_amount,
			is_manager_step, is_finance_step, is_director_step, is_cfo_step, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cfg.RuleID, cfg.ApproverID, cfg.Sequence, nullDecimal(cfg.MinAmount), nullDecimal(cfg.MaxAmount),
		cfg.IsManagerStep, cfg.IsFinanceStep, cfg.IsDirectorStep, cfg.IsCFOStep, cfg.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create approver config", zap.Int64("rule_id", cfg.RuleID), zap.Error(err))
		return translate(err, "create approver config")
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	cfg.ID = id
	return nil
}

// GetByID returns nil when the config does not exist
func (r *ApproverConfigRepository) GetByID(ctx context.Context, id int64) (*entity.ApproverConfig, error) {
	row := r.db.Conn(ctx).QueryRowContext(ctx,
		`SELECT `+approverConfigColumns+` FROM approver_configs WHERE id = ?`, id)

	cfg, err := scanApproverConfig(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get approver config: %w", err)
	}
	return cfg, nil
}

func (r *ApproverConfigRepository) UpdateSequence(ctx context.Context, id int64, sequence int) error {
	result, err := r.db.Conn(ctx).ExecContext(ctx,
		`UPDATE approver_configs SET sequence = ? WHERE id = ?`, sequence, id)
	if err != nil {
		return fmt.Errorf("failed to update sequence: %w", err)
	}
	return requireAffected(result, "approver config", id)
}

func (r *ApproverConfigRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.Conn(ctx).ExecContext(ctx, `DELETE FROM approver_configs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete approver config: %w", err)
	}
	return requireAffected(result, "approver config", id)
}

func (r *ApproverConfigRepository) ListByRule(ctx context.Context, ruleID int64) ([]*entity.ApproverConfig, error) {
	rows, err := r.db.Conn(ctx).QueryContext(ctx,
		`SELECT `+approverConfigColumns+` FROM approver_configs WHERE rule_id = ? ORDER BY sequence, id`, ruleID)
	if err != nil {
		return nil, fmt.Errorf("failed to list approver configs: %w", err)
	}
	defer rows.Close()

	var configs []*entity.ApproverConfig
	for rows.Next() {
		cfg, err := scanApproverConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan approver config: %w", err)
		}
		configs = append(configs, cfg)
	}
	return configs, rows.Err()
}

// DeleteByRuleAndApprover is a no-op when the approver is not on the rule
func (r *ApproverConfigRepository) DeleteByRuleAndApprover(ctx context.Context, ruleID, approverID int64) error {
	_, err := r.db.Conn(ctx).ExecContext(ctx,
		`DELETE FROM approver_configs WHERE rule_id = ? AND approver_id = ?`, ruleID, approverID)
	if err != nil {
		return fmt.Errorf("failed to remove approver: %w", err)
	}
	return nil
}

func (r *ApproverConfigRepository) DeleteByRule(ctx context.Context, ruleID int64) error {
	if _, err := r.db.Conn(ctx).ExecContext(ctx, `DELETE FROM approver_configs WHERE rule_id = ?`, ruleID); err != nil {
		return fmt.Errorf("failed to delete approver configs: %w", err)
	}
	return nil
}

func scanApproverConfig(s scanner) (*entity.ApproverConfig, error) {
	var (
		cfg                  entity.ApproverConfig
		minAmount, maxAmount decimal.NullDecimal
	)
	err := s.Scan(&cfg.ID, &cfg.RuleID, &cfg.ApproverID, &cfg.Sequence, &minAmount, &maxAmount,
		&cfg.IsManagerStep, &cfg.IsFinanceStep, &cfg.IsDirectorStep, &cfg.IsCFOStep, &cfg.CreatedAt)
	if err != nil {
		return nil, err
	}
	cfg.MinAmount = decimalPtr(minAmount)
	cfg.MaxAmount = decimalPtr(maxAmount)
	return &cfg, nil
}

var _ port.ApproverConfigRepository = (*ApproverConfigRepository)(nil)
