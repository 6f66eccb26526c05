package service

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/expenseflow/approval-engine/internal/application/rules"
	"github.com/expenseflow/approval-engine/internal/domain/entity"
	"github.com/expenseflow/approval-engine/internal/domain/role"
)

type ruleFixture struct {
	rules   *mockRuleRepo
	configs *mockConfigRepo
	tx      *mockTxManager
	svc     RuleService
}

func newRuleFixture(t *testing.T, existing ...*entity.ApprovalRule) *ruleFixture {
	t.Helper()
	evaluator, err := rules.NewEvaluator(zap.NewNop())
	require.NoError(t, err)

	f := &ruleFixture{
		rules:   newMockRuleRepo(existing...),
		configs: &mockConfigRepo{},
		tx:      &mockTxManager{},
	}
	dir := newMockDirectory(user(1, 1, role.Admin), user(2, 1, role.Finance), user(3, 2, role.Admin))
	f.svc = NewRuleService(f.rules, f.configs, dir, evaluator, f.tx, nil, zap.NewNop())
	return f
}

func TestRuleService_CreateRule(t *testing.T) {
	tests := []struct {
		name    string
		rule    *entity.ApprovalRule
		wantErr error
	}{
		{
			name: "defaults percentage",
			rule: &entity.ApprovalRule{OrganizationID: 1, Name: "default"},
		},
		{
			name: "hybrid with designated approver",
			rule: &entity.ApprovalRule{OrganizationID: 1, Name: "cfo", IsHybrid: true, DesignatedApproverID: int64Ptr(2)},
		},
		{
			name:    "percentage above 100",
			rule:    &entity.ApprovalRule{OrganizationID: 1, Name: "bad", RequiredPercentage: intPtr(101)},
			wantErr: entity.ErrValidation,
		},
		{
			name:    "hybrid without designated approver",
			rule:    &entity.ApprovalRule{OrganizationID: 1, Name: "bad", IsHybrid: true},
			wantErr: entity.ErrValidation,
		},
		{
			name:    "designated approver from another organization",
			rule:    &entity.ApprovalRule{OrganizationID: 1, Name: "bad", DesignatedApproverID: int64Ptr(3)},
			wantErr: entity.ErrValidation,
		},
		{
			name:    "unknown designated approver",
			rule:    &entity.ApprovalRule{OrganizationID: 1, Name: "bad", DesignatedApproverID: int64Ptr(99)},
			wantErr: entity.ErrValidation,
		},
		{
			name:    "condition does not compile",
			rule:    &entity.ApprovalRule{OrganizationID: 1, Name: "bad", Condition: "claim.amount >"},
			wantErr: entity.ErrValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newRuleFixture(t)
			err := f.svc.CreateRule(context.Background(), tt.rule)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, f.rules.rules)
				return
			}
			require.NoError(t, err)
			assert.NotZero(t, tt.rule.ID)
			require.NotNil(t, tt.rule.RequiredPercentage)
			assert.Equal(t, 60, *tt.rule.RequiredPercentage)
		})
	}
}

func TestRuleService_UpdateRule(t *testing.T) {
	f := newRuleFixture(t, &entity.ApprovalRule{ID: 7, OrganizationID: 1, Name: "r", RequiredPercentage: intPtr(60)})

	err := f.svc.UpdateRule(context.Background(), &entity.ApprovalRule{ID: 8, Name: "missing"})
	assert.ErrorIs(t, err, entity.ErrNotFound)

	update := &entity.ApprovalRule{ID: 7, OrganizationID: 2, Name: "renamed", RequiredPercentage: intPtr(80)}
	require.NoError(t, f.svc.UpdateRule(context.Background(), update))
	assert.Equal(t, int64(1), f.rules.rules[7].OrganizationID, "organization cannot be moved")
	assert.Equal(t, "renamed", f.rules.rules[7].Name)
}

func TestRuleService_DeleteRule(t *testing.T) {
	f := newRuleFixture(t, &entity.ApprovalRule{ID: 7, OrganizationID: 1, Name: "r"})
	f.configs.configs = []*entity.ApproverConfig{{ID: 1, RuleID: 7, ApproverID: 1, Sequence: 1}}

	assert.ErrorIs(t, f.svc.DeleteRule(context.Background(), 8), entity.ErrNotFound)

	require.NoError(t, f.svc.DeleteRule(context.Background(), 7))
	assert.Equal(t, []int64{7}, f.rules.deleted)
	assert.Empty(t, f.configs.configs)
	assert.Equal(t, 1, f.tx.calls)
}

func TestRuleService_DeleteRule_ConfigFailureKeepsRule(t *testing.T) {
	f := newRuleFixture(t, &entity.ApprovalRule{ID: 7, OrganizationID: 1, Name: "r"})
	f.configs.deleteByRule = func(ruleID int64) error { return errors.New("disk full") }

	assert.Error(t, f.svc.DeleteRule(context.Background(), 7))
	assert.Empty(t, f.rules.deleted)
}

func TestRuleService_ListAndFind(t *testing.T) {
	f := newRuleFixture(t,
		&entity.ApprovalRule{ID: 1, OrganizationID: 1, Name: "catch-all"},
		&entity.ApprovalRule{ID: 2, OrganizationID: 1, Name: "small", MinAmount: decPtr(0), MaxAmount: decPtr(1000)},
		&entity.ApprovalRule{ID: 3, OrganizationID: 2, Name: "other org"},
	)
	ctx := context.Background()

	list, err := f.svc.ListRules(ctx, 1)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, int64(2), list[0].ID)
	assert.Equal(t, int64(1), list[1].ID)

	rule, err := f.svc.FindApplicableRule(ctx, 1, decimal.NewFromInt(500))
	require.NoError(t, err)
	assert.Equal(t, int64(2), rule.ID)

	rule, err = f.svc.FindApplicableRule(ctx, 1, decimal.NewFromInt(5000))
	require.NoError(t, err)
	assert.Equal(t, int64(1), rule.ID)

	_, err = f.svc.FindApplicableRule(ctx, 9, decimal.NewFromInt(5))
	assert.ErrorIs(t, err, entity.ErrNoApplicableRule)
}

func TestRuleService_IsPercentageRuleMet(t *testing.T) {
	f := newRuleFixture(t)
	claim := &entity.Claim{Steps: []*entity.ApprovalStep{
		{Status: entity.StepApproved}, {Status: entity.StepApproved}, {Status: entity.StepPending},
	}}

	assert.True(t, f.svc.IsPercentageRuleMet(&entity.ApprovalRule{RequiredPercentage: intPtr(60)}, claim))
	assert.False(t, f.svc.IsPercentageRuleMet(&entity.ApprovalRule{RequiredPercentage: intPtr(75)}, claim))
}

func TestRuleService_SetRuleSequence(t *testing.T) {
	f := newRuleFixture(t, &entity.ApprovalRule{ID: 7, OrganizationID: 1, Name: "r"})
	f.configs.configs = []*entity.ApproverConfig{{ID: 50, RuleID: 7, ApproverID: 9, Sequence: 1}}
	ctx := context.Background()

	_, err := f.svc.SetRuleSequence(ctx, 7, []int64{1, 1})
	assert.ErrorIs(t, err, entity.ErrValidation)

	_, err = f.svc.SetRuleSequence(ctx, 7, []int64{1, 3})
	assert.ErrorIs(t, err, entity.ErrValidation, "approver from another organization")

	configs, err := f.svc.SetRuleSequence(ctx, 7, []int64{2, 1})
	require.NoError(t, err)
	require.Len(t, configs, 2)
	assert.Equal(t, int64(2), configs[0].ApproverID)
	assert.Equal(t, 1, configs[0].Sequence)
	assert.Equal(t, 2, configs[1].Sequence)
	assert.Equal(t, []string{"clear:7", "create:2", "create:1"}, f.configs.calls)
}

func int64Ptr(v int64) *int64 { return &v }
