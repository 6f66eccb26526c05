package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/expenseflow/approval-engine/internal/application/port"
	"github.com/expenseflow/approval-engine/internal/domain/entity"
)

// ApproverConfigService administers the approvers attached to a rule
type ApproverConfigService interface {
	// CreateConfig adds an approver to a rule after checking role ordering
	CreateConfig(ctx context.Context, cfg *entity.ApproverConfig) error
	UpdateSequence(ctx context.Context, id int64, sequence int) (*entity.ApproverConfig, error)
	ListByRule(ctx context.Context, ruleID int64) ([]*entity.ApproverConfig, error)
	RemoveApprover(ctx context.Context, ruleID, approverID int64) error

	// SetCFOApprover makes the user the rule's designated approver and records a CFO step
	SetCFOApprover(ctx context.Context, ruleID, approverID int64) (*entity.ApprovalRule, error)
	SetRequiredPercentage(ctx context.Context, ruleID int64, percentage int) (*entity.ApprovalRule, error)
}

type approverConfigServiceImpl struct {
	configs   port.ApproverConfigRepository
	rules     port.RuleRepository
	directory port.ApproverDirectory
	txManager port.TransactionManager
	logger    *zap.Logger
}

// NewApproverConfigService creates an ApproverConfigService
func NewApproverConfigService(
	configs port.ApproverConfigRepository,
	ruleRepo port.RuleRepository,
	directory port.ApproverDirectory,
	txManager port.TransactionManager,
	logger *zap.Logger,
) ApproverConfigService {
	return &approverConfigServiceImpl{
		configs:   configs,
		rules:     ruleRepo,
		directory: directory,
		txManager: txManager,
		logger:    logger,
	}
}

func (s *approverConfigServiceImpl) rule(ctx context.Context, id int64) (*entity.ApprovalRule, error) {
	rule, err := s.rules.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get rule %d: %w", id, err)
	}
	if rule == nil {
		return nil, fmt.Errorf("%w: rule %d", entity.ErrNotFound, id)
	}
	return rule, nil
}

func (s *approverConfigServiceImpl) CreateConfig(ctx context.Context, cfg *entity.ApproverConfig) error {
	if err := cfg.ValidateSequence(); err != nil {
		return err
	}
	rule, err := s.rule(ctx, cfg.RuleID)
	if err != nil {
		return err
	}
	if err := requireMember(ctx, s.directory, rule.OrganizationID, cfg.ApproverID); err != nil {
		return err
	}

	cfg.CreatedAt = time.Now()
	if err := s.configs.Create(ctx, cfg); err != nil {
		return fmt.Errorf("create approver config: %w", err)
	}

	s.logger.Info("Approver added to rule",
		zap.Int64("rule_id", cfg.RuleID),
		zap.Int64("approver_id", cfg.ApproverID),
		zap.Int("sequence", cfg.Sequence))
	return nil
}

func (s *approverConfigServiceImpl) UpdateSequence(ctx context.Context, id int64, sequence int) (*entity.ApproverConfig, error) {
	cfg, err := s.configs.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get approver config %d: %w", id, err)
	}
	if cfg == nil {
		return nil, fmt.Errorf("%w: approver config %d", entity.ErrNotFound, id)
	}

	cfg.Sequence = sequence
	if err := cfg.ValidateSequence(); err != nil {
		return nil, err
	}
	if err := s.configs.UpdateSequence(ctx, id, sequence); err != nil {
		return nil, fmt.Errorf("update sequence: %w", err)
	}
	return cfg, nil
}

func (s *approverConfigServiceImpl) ListByRule(ctx context.Context, ruleID int64) ([]*entity.ApproverConfig, error) {
	if _, err := s.rule(ctx, ruleID); err != nil {
		return nil, err
	}
	return s.configs.ListByRule(ctx, ruleID)
}

func (s *approverConfigServiceImpl) RemoveApprover(ctx context.Context, ruleID, approverID int64) error {
	if err := s.configs.DeleteByRuleAndApprover(ctx, ruleID, approverID); err != nil {
		return fmt.Errorf("remove approver %d from rule %d: %w", approverID, ruleID, err)
	}
	return nil
}

func (s *approverConfigServiceImpl) SetCFOApprover(ctx context.Context, ruleID, approverID int64) (*entity.ApprovalRule, error) {
	rule, err := s.rule(ctx, ruleID)
	if err != nil {
		return nil, err
	}
	if err := requireMember(ctx, s.directory, rule.OrganizationID, approverID); err != nil {
		return nil, err
	}

	rule.DesignatedApproverID = &approverID
	if err := rule.Validate(); err != nil {
		return nil, err
	}

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		existing, err := s.configs.ListByRule(txCtx, ruleID)
		if err != nil {
			return fmt.Errorf("list approvers: %w", err)
		}

		sequence := 1
		for _, c := range existing {
			if c.IsCFOStep {
				if err := s.configs.Delete(txCtx, c.ID); err != nil {
					return fmt.Errorf("remove previous CFO step: %w", err)
				}
				continue
			}
			if c.Sequence >= sequence {
				sequence = c.Sequence + 1
			}
		}

		cfo := &entity.ApproverConfig{
			RuleID:     ruleID,
			ApproverID: approverID,
			Sequence:   sequence,
			IsCFOStep:  true,
			CreatedAt:  time.Now(),
		}
		if err := s.configs.Create(txCtx, cfo); err != nil {
			return fmt.Errorf("create CFO step: %w", err)
		}

		rule.UpdatedAt = time.Now()
		return s.rules.Update(txCtx, rule)
	})
	if err != nil {
		s.logger.Error("Failed to set designated approver", zap.Int64("rule_id", ruleID), zap.Error(err))
		return nil, err
	}

	s.logger.Info("Designated approver set", zap.Int64("rule_id", ruleID), zap.Int64("approver_id", approverID))
	return rule, nil
}

func (s *approverConfigServiceImpl) SetRequiredPercentage(ctx context.Context, ruleID int64, percentage int) (*entity.ApprovalRule, error) {
	rule, err := s.rule(ctx, ruleID)
	if err != nil {
		return nil, err
	}

	rule.RequiredPercentage = &percentage
	if err := rule.Validate(); err != nil {
		return nil, err
	}

	rule.UpdatedAt = time.Now()
	if err := s.rules.Update(ctx, rule); err != nil {
		return nil, fmt.Errorf("update rule %d: %w", ruleID, err)
	}
	return rule, nil
}
