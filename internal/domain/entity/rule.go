package entity

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultRequiredPercentage applies when a rule does not set one
const DefaultRequiredPercentage = 60

// ApprovalRule decides when a claim within its amount range is fully approved
type ApprovalRule struct {
	ID                   int64            `json:"id"`
	OrganizationID       int64            `json:"organization_id"`
	Name                 string           `json:"name"`
	MinAmount            *decimal.Decimal `json:"min_amount,omitempty"`
	MaxAmount            *decimal.Decimal `json:"max_amount,omitempty"`
	RequiresManagerFirst bool             `json:"requires_manager_first"`
	RequiredPercentage   *int             `json:"required_percentage,omitempty"`
	DesignatedApproverID *int64           `json:"designated_approver_id,omitempty"`
	IsHybrid             bool             `json:"is_hybrid"`
	PercentageOrCFO      bool             `json:"percentage_or_cfo"`
	// Condition is an optional CEL expression over the claim, evaluated after the amount range
	Condition string    `json:"condition,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Approvers []*ApproverConfig `json:"approvers,omitempty"`
}

// NewApprovalRule creates a rule with the default percentage
func NewApprovalRule(orgID int64, name string) *ApprovalRule {
	pct := DefaultRequiredPercentage
	return &ApprovalRule{
		OrganizationID:     orgID,
		Name:               name,
		RequiredPercentage: &pct,
	}
}

// InRange reports whether amount falls inside the rule's inclusive bounds
func (r *ApprovalRule) InRange(amount decimal.Decimal) bool {
	return inRange(r.MinAmount, r.MaxAmount, amount)
}

// Validate checks the rule's own invariants
func (r *ApprovalRule) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("%w: rule name is required", ErrValidation)
	}
	if r.RequiredPercentage != nil && (*r.RequiredPercentage < 0 || *r.RequiredPercentage > 100) {
		return fmt.Errorf("%w: percentage must be between 0 and 100, got %d", ErrValidation, *r.RequiredPercentage)
	}
	if r.IsHybrid && r.DesignatedApproverID == nil {
		return fmt.Errorf("%w: hybrid rule must name a designated approver", ErrValidation)
	}
	if r.MinAmount != nil && r.MaxAmount != nil && r.MinAmount.GreaterThan(*r.MaxAmount) {
		return fmt.Errorf("%w: min amount %s exceeds max amount %s", ErrValidation, r.MinAmount, r.MaxAmount)
	}
	return nil
}

// IsDesignatedApprover reports whether the user is the rule's designated approver
func (r *ApprovalRule) IsDesignatedApprover(userID int64) bool {
	return r.DesignatedApproverID != nil && *r.DesignatedApproverID == userID
}

// ApproverConfig places one approver at a position in a rule's chain
type ApproverConfig struct {
	ID             int64            `json:"id"`
	RuleID         int64            `json:"rule_id"`
	ApproverID     int64            `json:"approver_id"`
	Sequence       int              `json:"sequence"`
	MinAmount      *decimal.Decimal `json:"min_amount,omitempty"`
	MaxAmount      *decimal.Decimal `json:"max_amount,omitempty"`
	IsManagerStep  bool             `json:"is_manager_step"`
	IsFinanceStep  bool             `json:"is_finance_step"`
	IsDirectorStep bool             `json:"is_director_step"`
	IsCFOStep      bool             `json:"is_cfo_step"`
	CreatedAt      time.Time        `json:"created_at"`
}

// ValidateSequence enforces the role ordering: manager first, finance from 2, director from 3
func (c *ApproverConfig) ValidateSequence() error {
	if c.Sequence < 1 {
		return fmt.Errorf("%w: sequence must be at least 1, got %d", ErrValidation, c.Sequence)
	}
	if c.IsManagerStep && c.Sequence != 1 {
		return fmt.Errorf("%w: manager approval must be first in sequence", ErrValidation)
	}
	if c.IsFinanceStep && c.Sequence < 2 {
		return fmt.Errorf("%w: finance approval must come after manager", ErrValidation)
	}
	if c.IsDirectorStep && c.Sequence < 3 {
		return fmt.Errorf("%w: director approval must come after finance", ErrValidation)
	}
	if c.MinAmount != nil && c.MaxAmount != nil && c.MinAmount.GreaterThan(*c.MaxAmount) {
		return fmt.Errorf("%w: min amount %s exceeds max amount %s", ErrValidation, c.MinAmount, c.MaxAmount)
	}
	return nil
}

// AppliesTo reports whether the config's amount sub-range contains the amount
func (c *ApproverConfig) AppliesTo(amount decimal.Decimal) bool {
	return inRange(c.MinAmount, c.MaxAmount, amount)
}

func inRange(lo, hi *decimal.Decimal, amount decimal.Decimal) bool {
	if lo != nil && amount.LessThan(*lo) {
		return false
	}
	if hi != nil && amount.GreaterThan(*hi) {
		return false
	}
	return true
}
