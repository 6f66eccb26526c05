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

const ruleColumns = `id, organization_id, name, min_amount, max_amount, requires_manager_first,
	required_percentage, designated_approver_id, is_hybrid, percentage_or_cfo, condition,
	created_at, updated_at`

// RuleRepository implements port.RuleRepository
type RuleRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewRuleRepository creates a new rule repository
func NewRuleRepository(db *sqlite.DB, logger *zap.Logger) port.RuleRepository {
	return &RuleRepository{db: db, logger: logger}
}

func (r *RuleRepository) Create(ctx context.Context, rule *entity.ApprovalRule) error {
	nowIfZero(&rule.CreatedAt)
	nowIfZero(&rule.UpdatedAt)

	result, err := r.db.Conn(ctx).ExecContext(ctx, `
		INSERT INTO approval_rules (
			organization_id, name, min_amount, max_amount, requires_manager_first,
			required_percentage, designated_approver_id, is_hybrid, percentage_or_cfo, condition,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rule.OrganizationID, rule.Name, nullDecimal(rule.MinAmount), nullDecimal(rule.MaxAmount),
		rule.RequiresManagerFirst, nullInt(rule.RequiredPercentage), nullInt64(rule.DesignatedApproverID),
		rule.IsHybrid, rule.PercentageOrCFO, rule.Condition, rule.CreatedAt, rule.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create rule", zap.String("name", rule.Name), zap.Error(err))
		return translate(err, "create rule")
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	rule.ID = id
	return nil
}

// GetByID returns nil when the rule does not exist
func (r *RuleRepository) GetByID(ctx context.Context, id int64) (*entity.ApprovalRule, error) {
	row := r.db.Conn(ctx).QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM approval_rules WHERE id = ?`, id)

	rule, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}
	return rule, nil
}

func (r *RuleRepository) Update(ctx context.Context, rule *entity.ApprovalRule) error {
	nowIfZero(&rule.UpdatedAt)

	result, err := r.db.Conn(ctx).ExecContext(ctx, `
		UPDATE approval_rules SET
			name = ?, min_amount = ?, max_amount = ?, requires_manager_first = ?,
			required_percentage = ?, designated_approver_id = ?, is_hybrid = ?,
			percentage_or_cfo = ?, condition = ?, updated_at = ?
		WHERE id = ?`,
		rule.Name, nullDecimal(rule.MinAmount), nullDecimal(rule.MaxAmount), rule.RequiresManagerFirst,
		nullInt(rule.RequiredPercentage), nullInt64(rule.DesignatedApproverID), rule.IsHybrid,
		rule.PercentageOrCFO, rule.Condition, rule.UpdatedAt, rule.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}
	return requireAffected(result, "rule", rule.ID)
}

func (r *RuleRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.Conn(ctx).ExecContext(ctx, `DELETE FROM approval_rules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}
	return requireAffected(result, "rule", id)
}

func (r *RuleRepository) ListByOrganization(ctx context.Context, orgID int64) ([]*entity.ApprovalRule, error) {
	rows, err := r.db.Conn(ctx).QueryContext(ctx,
		`SELECT `+ruleColumns+` FROM approval_rules WHERE organization_id = ? ORDER BY id`, orgID)
	if err != nil {
		r.logger.Error("Failed to list rules", zap.Int64("organization_id", orgID), zap.Error(err))
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	var rules []*entity.ApprovalRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

func scanRule(s scanner) (*entity.ApprovalRule, error) {
	var (
		rule       entity.ApprovalRule
		minAmount  decimal.NullDecimal
		maxAmount  decimal.NullDecimal
		percentage sql.NullInt64
		designated sql.NullInt64
	)
	err := s.Scan(&rule.ID, &rule.OrganizationID, &rule.Name, &minAmount, &maxAmount, &rule.RequiresManagerFirst,
		&percentage, &designated, &rule.IsHybrid, &rule.PercentageOrCFO, &rule.Condition,
		&rule.CreatedAt, &rule.UpdatedAt)
	if err != nil {
		return nil, err
	}

	rule.MinAmount = decimalPtr(minAmount)
	rule.MaxAmount = decimalPtr(maxAmount)
	rule.RequiredPercentage = intPtr(percentage)
	rule.DesignatedApproverID = int64Ptr(designated)
	return &rule, nil
}

// requireAffected turns a write that matched no row into entity.ErrNotFound
func requireAffected(result sql.Result, what string, id int64) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s %d", entity.ErrNotFound, what, id)
	}
	return nil
}

var _ port.RuleRepository = (*RuleRepository)(nil)
