package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/expenseflow/approval-engine/internal/application/dispatcher"
	"github.com/expenseflow/approval-engine/internal/application/port"
	"github.com/expenseflow/approval-engine/internal/application/rules"
	"github.com/expenseflow/approval-engine/internal/domain/entity"
	"github.com/expenseflow/approval-engine/internal/domain/event"
)

// RuleService administers an organization's approval rules
type RuleService interface {
	CreateRule(ctx context.Context, rule *entity.ApprovalRule) error
	UpdateRule(ctx context.Context, rule *entity.ApprovalRule) error

	// DeleteRule removes the rule together with its approver configuration
	DeleteRule(ctx context.Context, id int64) error

	// GetRule returns the rule with its approvers
	GetRule(ctx context.Context, id int64) (*entity.ApprovalRule, error)

	// ListRules returns the organization's rules in selection order
	ListRules(ctx context.Context, orgID int64) ([]*entity.ApprovalRule, error)

	// FindApplicableRule selects the rule for an amount; rule conditions see only the amount
	FindApplicableRule(ctx context.Context, orgID int64, amount decimal.Decimal) (*entity.ApprovalRule, error)

	// RuleForClaim selects the rule governing a claim
	RuleForClaim(ctx context.Context, claim *entity.Claim) (*entity.ApprovalRule, error)

	IsPercentageRuleMet(rule *entity.ApprovalRule, claim *entity.Claim) bool

	// SetRuleSequence replaces the rule's approvers with approverIDs in order, starting at sequence 1
	SetRuleSequence(ctx context.Context, ruleID int64, approverIDs []int64) ([]*entity.ApproverConfig, error)
}

type ruleServiceImpl struct {
	rules      port.RuleRepository
	configs    port.ApproverConfigRepository
	directory  port.ApproverDirectory
	evaluator  *rules.Evaluator
	txManager  port.TransactionManager
	dispatcher dispatcher.Dispatcher
	logger     *zap.Logger
}

// NewRuleService creates a RuleService. dispatcher may be nil.
func NewRuleService(
	ruleRepo port.RuleRepository,
	configs port.ApproverConfigRepository,
	directory port.ApproverDirectory,
	evaluator *rules.Evaluator,
	txManager port.TransactionManager,
	d dispatcher.Dispatcher,
	logger *zap.Logger,
) RuleService {
	return &ruleServiceImpl{
		rules:      ruleRepo,
		configs:    configs,
		directory:  directory,
		evaluator:  evaluator,
		txManager:  txManager,
		dispatcher: d,
		logger:     logger,
	}
}

// validate checks the rule's own fields, its condition and its designated approver
func (s *ruleServiceImpl) validate(ctx context.Context, rule *entity.ApprovalRule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	if rule.Condition != "" {
		if err := s.evaluator.CompileCondition(rule.Condition); err != nil {
			return err
		}
	}
	if rule.DesignatedApproverID != nil {
		if err := requireMember(ctx, s.directory, rule.OrganizationID, *rule.DesignatedApproverID); err != nil {
			return err
		}
	}
	return nil
}

// requireMember fails with ErrValidation unless the user exists in the organization
func requireMember(ctx context.Context, directory port.ApproverDirectory, orgID, userID int64) error {
	user, err := directory.FindUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("%w: approver %d: %v", entity.ErrValidation, userID, err)
	}
	if user.OrganizationID != orgID {
		return fmt.Errorf("%w: approver %d is not in organization %d", entity.ErrValidation, userID, orgID)
	}
	return nil
}

func (s *ruleServiceImpl) CreateRule(ctx context.Context, rule *entity.ApprovalRule) error {
	if rule.RequiredPercentage == nil {
		pct := entity.DefaultRequiredPercentage
		rule.RequiredPercentage = &pct
	}
	if err := s.validate(ctx, rule); err != nil {
		return err
	}

	now := time.Now()
	rule.CreatedAt = now
	rule.UpdatedAt = now
	if err := s.rules.Create(ctx, rule); err != nil {
		s.logger.Error("Failed to create rule", zap.String("name", rule.Name), zap.Error(err))
		return fmt.Errorf("create rule: %w", err)
	}

	s.logger.Info("Rule created", zap.Int64("rule_id", rule.ID), zap.Int64("organization_id", rule.OrganizationID))
	s.announce(ctx, rule, "created")
	return nil
}

func (s *ruleServiceImpl) UpdateRule(ctx context.Context, rule *entity.ApprovalRule) error {
	existing, err := s.mustGet(ctx, rule.ID)
	if err != nil {
		return err
	}
	rule.OrganizationID = existing.OrganizationID
	rule.CreatedAt = existing.CreatedAt

	if err := s.validate(ctx, rule); err != nil {
		return err
	}

	rule.UpdatedAt = time.Now()
	if err := s.rules.Update(ctx, rule); err != nil {
		return fmt.Errorf("update rule %d: %w", rule.ID, err)
	}

	s.announce(ctx, rule, "updated")
	return nil
}

func (s *ruleServiceImpl) DeleteRule(ctx context.Context, id int64) error {
	rule, err := s.mustGet(ctx, id)
	if err != nil {
		return err
	}

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.configs.DeleteByRule(txCtx, id); err != nil {
			return fmt.Errorf("delete approvers: %w", err)
		}
		if err := s.rules.Delete(txCtx, id); err != nil {
			return fmt.Errorf("delete rule: %w", err)
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to delete rule", zap.Int64("rule_id", id), zap.Error(err))
		return err
	}

	s.announce(ctx, rule, "deleted")
	return nil
}

func (s *ruleServiceImpl) mustGet(ctx context.Context, id int64) (*entity.ApprovalRule, error) {
	rule, err := s.rules.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get rule %d: %w", id, err)
	}
	if rule == nil {
		return nil, fmt.Errorf("%w: rule %d", entity.ErrNotFound, id)
	}
	return rule, nil
}

func (s *ruleServiceImpl) GetRule(ctx context.Context, id int64) (*entity.ApprovalRule, error) {
	rule, err := s.mustGet(ctx, id)
	if err != nil {
		return nil, err
	}
	rule.Approvers, err = s.configs.ListByRule(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list approvers of rule %d: %w", id, err)
	}
	return rule, nil
}

func (s *ruleServiceImpl) ListRules(ctx context.Context, orgID int64) ([]*entity.ApprovalRule, error) {
	list, err := s.rules.ListByOrganization(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	return rules.SortForSelection(list), nil
}

func (s *ruleServiceImpl) FindApplicableRule(ctx context.Context, orgID int64, amount decimal.Decimal) (*entity.ApprovalRule, error) {
	return s.RuleForClaim(ctx, &entity.Claim{OrganizationID: orgID, Amount: amount, BaseAmount: amount})
}

func (s *ruleServiceImpl) RuleForClaim(ctx context.Context, claim *entity.Claim) (*entity.ApprovalRule, error) {
	list, err := s.rules.ListByOrganization(ctx, claim.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	return s.evaluator.SelectRule(list, claim)
}

func (s *ruleServiceImpl) IsPercentageRuleMet(rule *entity.ApprovalRule, claim *entity.Claim) bool {
	return s.evaluator.PercentageSatisfied(claim.Steps, rule.RequiredPercentage)
}

func (s *ruleServiceImpl) SetRuleSequence(ctx context.Context, ruleID int64, approverIDs []int64) ([]*entity.ApproverConfig, error) {
	rule, err := s.mustGet(ctx, ruleID)
	if err != nil {
		return nil, err
	}

	seen := make(map[int64]bool, len(approverIDs))
	for _, id := range approverIDs {
		if seen[id] {
			return nil, fmt.Errorf("%w: approver %d listed twice", entity.ErrValidation, id)
		}
		seen[id] = true
		if err := requireMember(ctx, s.directory, rule.OrganizationID, id); err != nil {
			return nil, err
		}
	}

	now := time.Now()
	configs := make([]*entity.ApproverConfig, len(approverIDs))
	for i, id := range approverIDs {
		configs[i] = &entity.ApproverConfig{RuleID: ruleID, ApproverID: id, Sequence: i + 1, CreatedAt: now}
	}

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.configs.DeleteByRule(txCtx, ruleID); err != nil {
			return fmt.Errorf("clear approvers: %w", err)
		}
		for _, cfg := range configs {
			if err := s.configs.Create(txCtx, cfg); err != nil {
				return fmt.Errorf("create approver %d: %w", cfg.ApproverID, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Rule sequence replaced", zap.Int64("rule_id", ruleID), zap.Int("approvers", len(configs)))
	s.announce(ctx, rule, "sequence_replaced")
	return configs, nil
}

func (s *ruleServiceImpl) announce(ctx context.Context, rule *entity.ApprovalRule, change string) {
	if s.dispatcher == nil {
		return
	}
	s.dispatcher.DispatchAsync(ctx, event.NewEvent(event.TypeRuleConfigChanged, 0, 0, map[string]interface{}{
		"rule_id":         rule.ID,
		"organization_id": rule.OrganizationID,
		"change":          change,
	}))
}
