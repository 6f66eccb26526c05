package entity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/expenseflow/approval-engine/internal/domain/role"
	"github.com/expenseflow/approval-engine/internal/domain/workflow"
	"github.com/shopspring/decimal"
)

// Claim is an expense claim moving through the approval chain.
// Steps is loaded with the claim and ordered by sequence; steps refer back by ClaimID only.
type Claim struct {
	ID              int64           `json:"id"`
	OrganizationID  int64           `json:"organization_id"`
	SubmitterID     int64           `json:"submitter_id"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	BaseAmount      decimal.Decimal `json:"base_amount"`
	BaseCurrency    string          `json:"base_currency"`
	ExchangeRate    decimal.Decimal `json:"exchange_rate"`
	Category        string          `json:"category"`
	Description     string          `json:"description"`
	ClaimDate       time.Time       `json:"claim_date"`
	Status          workflow.State  `json:"status"`
	RejectionReason string          `json:"rejection_reason,omitempty"`
	SubmittedAt     *time.Time      `json:"submitted_at,omitempty"`
	LastActionAt    *time.Time      `json:"last_action_at,omitempty"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
	Version         int64           `json:"version"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`

	Steps []*ApprovalStep `json:"steps,omitempty"`
}

// NewClaim creates a draft claim; base amount defaults to the claimed amount
func NewClaim(orgID, submitterID int64, amount decimal.Decimal, currency, category, description string, claimDate time.Time) (*Claim, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		return nil, fmt.Errorf("%w: currency is required", ErrValidation)
	}
	return &Claim{
		OrganizationID: orgID,
		SubmitterID:    submitterID,
		Amount:         amount,
		Currency:       currency,
		BaseAmount:     amount,
		BaseCurrency:   currency,
		ExchangeRate:   decimal.NewFromInt(1),
		Category:       category,
		Description:    description,
		ClaimDate:      claimDate,
		Status:         workflow.StateDraft,
	}, nil
}

// ApprovalAmount is the amount thresholds and rules are compared against
func (c *Claim) ApprovalAmount() decimal.Decimal {
	if c.BaseAmount.IsZero() {
		return c.Amount
	}
	return c.BaseAmount
}

// IsTerminal reports whether the claim can no longer change
func (c *Claim) IsTerminal() bool { return c.Status.IsTerminal() }

// RequiresAction reports whether an approver must act
func (c *Claim) RequiresAction() bool { return c.Status.RequiresAction() }

// IsEditable reports whether the submitter may still change the claim
func (c *Claim) IsEditable() bool { return c.Status.IsEditable() }

// Submit moves a draft to SUBMITTED
func (c *Claim) Submit(now time.Time) error {
	if err := c.fire(workflow.TriggerSubmit); err != nil {
		return err
	}
	c.SubmittedAt = &now
	c.LastActionAt = &now
	return nil
}

// RouteTo moves the claim to the pending status of the given stage
func (c *Claim) RouteTo(stage Stage, now time.Time) error {
	trigger, ok := stage.routeTrigger()
	if !ok {
		return fmt.Errorf("%w: stage %s is not a routing stage", ErrInvalidState, stage)
	}
	if err := c.fire(trigger); err != nil {
		return err
	}
	c.LastActionAt = &now
	return nil
}

// MoveToNextApprover routes the claim by the next approver's role
func (c *Claim) MoveToNextApprover(next *User, now time.Time) error {
	switch c.Status {
	case workflow.StateSubmitted, workflow.StatePendingManager, workflow.StatePendingFinance:
	default:
		return fmt.Errorf("%w: cannot move claim %d to next approver from %s", ErrInvalidState, c.ID, c.Status)
	}

	var stage Stage
	switch {
	case next.HasRole(role.Manager):
		stage = StageManager
	case next.HasRole(role.Finance):
		stage = StageFinance
	case next.HasRole(role.Director):
		stage = StageDirector
	default:
		return fmt.Errorf("%w: user %d holds no approver role", ErrInvalidState, next.ID)
	}
	return c.RouteTo(stage, now)
}

// Approve finalizes the claim
func (c *Claim) Approve(now time.Time) error {
	return c.finish(workflow.TriggerApprove, now)
}

// ApproveByPercentage finalizes a partially approved claim once its percentage rule is met
func (c *Claim) ApproveByPercentage(now time.Time) error {
	return c.finish(workflow.TriggerApproveByPercentage, now)
}

// ApproveByCFO records the designated approver's approval; the claim is not yet terminal
func (c *Claim) ApproveByCFO(now time.Time) error {
	if err := c.fire(workflow.TriggerApproveByCFO); err != nil {
		return err
	}
	c.LastActionAt = &now
	return nil
}

// MarkPartiallyApproved records that the chain finished without meeting the rule
func (c *Claim) MarkPartiallyApproved(now time.Time) error {
	if err := c.fire(workflow.TriggerPartialApprove); err != nil {
		return err
	}
	c.LastActionAt = &now
	return nil
}

// Reject finalizes the claim as rejected; a reason is required
func (c *Claim) Reject(reason string, now time.Time) error {
	reason = strings.TrimSpace(reason)
	if err := c.fireWith(workflow.WithReason(context.Background(), reason), workflow.TriggerReject); err != nil {
		return err
	}
	c.LastActionAt = &now
	c.CompletedAt = &now
	c.RejectionReason = reason
	return nil
}

// RequestAdditionalInfo returns the claim to the submitter
func (c *Claim) RequestAdditionalInfo(now time.Time) error {
	if err := c.fire(workflow.TriggerRequestInfo); err != nil {
		return err
	}
	c.LastActionAt = &now
	return nil
}

// Escalate moves the claim to director review
func (c *Claim) Escalate(now time.Time) error {
	if err := c.fire(workflow.TriggerEscalate); err != nil {
		return err
	}
	c.LastActionAt = &now
	return nil
}

// Override finalizes the claim as approved regardless of the chain
func (c *Claim) Override(now time.Time) error {
	return c.finish(workflow.TriggerOverride, now)
}

func (c *Claim) finish(trigger workflow.Trigger, now time.Time) error {
	if err := c.fire(trigger); err != nil {
		return err
	}
	c.LastActionAt = &now
	c.CompletedAt = &now
	return nil
}

func (c *Claim) fire(trigger workflow.Trigger) error {
	return c.fireWith(context.Background(), trigger)
}

// fireWith maps a failed guard to ErrValidation and a missing transition to ErrInvalidState
func (c *Claim) fireWith(ctx context.Context, trigger workflow.Trigger) error {
	if !c.Status.IsValid() {
		return fmt.Errorf("%w: claim %d has unknown status %q", ErrInvalidState, c.ID, c.Status)
	}
	m := workflow.NewClaimMachine(c.Status)
	if err := m.Fire(ctx, trigger); err != nil {
		if errors.Is(err, workflow.ErrGuardFailed) {
			return fmt.Errorf("%w: claim %d: %s requires a reason", ErrValidation, c.ID, trigger)
		}
		return fmt.Errorf("%w: claim %d: %w", ErrInvalidState, c.ID, err)
	}
	c.Status = m.State()
	return nil
}

// AllowedActions lists the triggers the claim's status permits, sorted
func (c *Claim) AllowedActions() []workflow.Trigger {
	if !c.Status.IsValid() {
		return []workflow.Trigger{}
	}
	return workflow.NewClaimMachine(c.Status).PermittedTriggers()
}

// PendingStep returns the step awaiting action, or nil
func (c *Claim) PendingStep() *ApprovalStep {
	for _, s := range c.Steps {
		if s.IsPending() {
			return s
		}
	}
	return nil
}

// PendingSteps returns every step awaiting action
func (c *Claim) PendingSteps() []*ApprovalStep {
	var out []*ApprovalStep
	for _, s := range c.Steps {
		if s.IsPending() {
			out = append(out, s)
		}
	}
	return out
}

// MaxSequence returns the highest step sequence, or 0 for an empty ledger
func (c *Claim) MaxSequence() int {
	highest := 0
	for _, s := range c.Steps {
		if s.Sequence > highest {
			highest = s.Sequence
		}
	}
	return highest
}

// AddStep appends a step, keeping sequences strictly increasing and at most one step pending
func (c *Claim) AddStep(step *ApprovalStep) error {
	if step.Sequence <= c.MaxSequence() {
		return fmt.Errorf("%w: step sequence %d must exceed %d", ErrInvalidState, step.Sequence, c.MaxSequence())
	}
	if step.IsPending() && c.PendingStep() != nil {
		return fmt.Errorf("%w: claim %d already has a pending step", ErrInvalidState, c.ID)
	}
	step.ClaimID = c.ID
	c.Steps = append(c.Steps, step)
	return nil
}
