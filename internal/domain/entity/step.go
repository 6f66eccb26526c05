package entity

import (
	"fmt"
	"time"

	"github.com/expenseflow/approval-engine/internal/domain/workflow"
)

// StepStatus is the status of one approval step
type StepStatus string

const (
	StepPending  StepStatus = "PENDING"
	StepApproved StepStatus = "APPROVED"
	StepRejected StepStatus = "REJECTED"
	StepSkipped  StepStatus = "SKIPPED"
)

// Stage records why a step exists in the ledger
type Stage string

const (
	StageManager       Stage = "MANAGER"
	StageFinance       Stage = "FINANCE"
	StageDirector      Stage = "DIRECTOR"
	StageDesignated    Stage = "DESIGNATED"
	StageOverride      Stage = "OVERRIDE"
	StageEscalationLog Stage = "ESCALATION_LOG"
)

// PendingState returns the claim status a pending step of this stage puts the claim in
func (s Stage) PendingState() (workflow.State, bool) {
	switch s {
	case StageManager:
		return workflow.StatePendingManager, true
	case StageFinance:
		return workflow.StatePendingFinance, true
	case StageDirector:
		return workflow.StatePendingDirector, true
	default:
		return "", false
	}
}

func (s Stage) routeTrigger() (workflow.Trigger, bool) {
	switch s {
	case StageManager:
		return workflow.TriggerRouteManager, true
	case StageFinance:
		return workflow.TriggerRouteFinance, true
	case StageDirector:
		return workflow.TriggerRouteDirector, true
	default:
		return "", false
	}
}

// IsValid reports whether the stage is known
func (s Stage) IsValid() bool {
	switch s {
	case StageManager, StageFinance, StageDirector, StageDesignated, StageOverride, StageEscalationLog:
		return true
	default:
		return false
	}
}

// ApprovalStep is one entry of a claim's approval ledger
type ApprovalStep struct {
	ID             int64      `json:"id"`
	ClaimID        int64      `json:"claim_id"`
	ApproverID     int64      `json:"approver_id"`
	Sequence       int        `json:"sequence"`
	Stage          Stage      `json:"stage"`
	Status         StepStatus `json:"status"`
	Comments       string     `json:"comments,omitempty"`
	ActionAt       *time.Time `json:"action_at,omitempty"`
	ReminderSent   bool       `json:"reminder_sent"`
	LastReminderAt *time.Time `json:"last_reminder_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// NewPendingStep creates a step awaiting the approver's action
func NewPendingStep(claimID, approverID int64, sequence int, stage Stage, now time.Time) *ApprovalStep {
	return &ApprovalStep{
		ClaimID:    claimID,
		ApproverID: approverID,
		Sequence:   sequence,
		Stage:      stage,
		Status:     StepPending,
		CreatedAt:  now,
	}
}

// NewRecordedStep creates a step that is already approved when written
func NewRecordedStep(claimID, approverID int64, sequence int, stage Stage, comments string, now time.Time) *ApprovalStep {
	step := NewPendingStep(claimID, approverID, sequence, stage, now)
	step.Status = StepApproved
	step.Comments = comments
	step.ActionAt = &now
	return step
}

// IsPending reports whether the step still awaits action
func (s *ApprovalStep) IsPending() bool {
	return s.Status == StepPending
}

// Approve marks a pending step approved
func (s *ApprovalStep) Approve(comments string, now time.Time) error {
	return s.complete(StepApproved, comments, now)
}

// Reject marks a pending step rejected
func (s *ApprovalStep) Reject(comments string, now time.Time) error {
	return s.complete(StepRejected, comments, now)
}

// Skip marks a pending step skipped
func (s *ApprovalStep) Skip(comments string, now time.Time) error {
	return s.complete(StepSkipped, comments, now)
}

func (s *ApprovalStep) complete(status StepStatus, comments string, now time.Time) error {
	if s.Status != StepPending {
		return fmt.Errorf("%w: step %d is %s, not %s", ErrInvalidState, s.ID, s.Status, StepPending)
	}
	s.Status = status
	s.Comments = comments
	s.ActionAt = &now
	return nil
}

// NeedsReminder reports whether a pending step has gone un-reminded for longer than interval
func (s *ApprovalStep) NeedsReminder(now time.Time, interval time.Duration) bool {
	if s.Status != StepPending {
		return false
	}
	if !s.ReminderSent || s.LastReminderAt == nil {
		return true
	}
	return now.Add(-interval).After(*s.LastReminderAt)
}

// MarkReminded records that a reminder was sent
func (s *ApprovalStep) MarkReminded(now time.Time) {
	s.ReminderSent = true
	s.LastReminderAt = &now
}
