package entity

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func decPtr(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v)
	return &d
}

func intPtr(v int) *int { return &v }

func TestApprovalRule_Validate(t *testing.T) {
	cfo := int64(9)
	tests := []struct {
		name    string
		rule    ApprovalRule
		wantErr bool
	}{
		{"default", *NewApprovalRule(1, "standard"), false},
		{"missing name", ApprovalRule{}, true},
		{"percentage above 100", ApprovalRule{Name: "r", RequiredPercentage: intPtr(101)}, true},
		{"percentage below 0", ApprovalRule{Name: "r", RequiredPercentage: intPtr(-1)}, true},
		{"percentage bounds inclusive", ApprovalRule{Name: "r", RequiredPercentage: intPtr(100)}, false},
		{"hybrid without designated", ApprovalRule{Name: "r", IsHybrid: true}, true},
		{"hybrid with designated", ApprovalRule{Name: "r", IsHybrid: true, DesignatedApproverID: &cfo}, false},
		{"inverted bounds", ApprovalRule{Name: "r", MinAmount: decPtr(10), MaxAmount: decPtr(5)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rule.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrValidation)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestApprovalRule_InRange(t *testing.T) {
	bounded := ApprovalRule{MinAmount: decPtr(100), MaxAmount: decPtr(1000)}
	assert.True(t, bounded.InRange(decimal.NewFromInt(100)))
	assert.True(t, bounded.InRange(decimal.NewFromInt(1000)))
	assert.False(t, bounded.InRange(decimal.NewFromInt(99)))
	assert.False(t, bounded.InRange(decimal.RequireFromString("1000.01")))

	unbounded := ApprovalRule{}
	assert.True(t, unbounded.InRange(decimal.NewFromInt(1_000_000)))
}

func TestApproverConfig_ValidateSequence(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ApproverConfig
		wantErr bool
	}{
		{"manager first", ApproverConfig{Sequence: 1, IsManagerStep: true}, false},
		{"manager second", ApproverConfig{Sequence: 2, IsManagerStep: true}, true},
		{"finance at 1", ApproverConfig{Sequence: 1, IsFinanceStep: true}, true},
		{"finance at 2", ApproverConfig{Sequence: 2, IsFinanceStep: true}, false},
		{"director at 2", ApproverConfig{Sequence: 2, IsDirectorStep: true}, true},
		{"director at 4", ApproverConfig{Sequence: 4, IsDirectorStep: true}, false},
		{"zero sequence", ApproverConfig{Sequence: 0}, true},
		{"untagged", ApproverConfig{Sequence: 7}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.ValidateSequence()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrValidation)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
