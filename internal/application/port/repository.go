package port

import (
	"context"
	"time"

	"github.com/expenseflow/approval-engine/internal/domain/entity"
	"github.com/expenseflow/approval-engine/internal/domain/role"
	"github.com/expenseflow/approval-engine/internal/domain/workflow"
)

// ClaimRepository defines persistence operations for Claim.
// Claims are returned without steps; load them through StepRepository.
type ClaimRepository interface {
	Create(ctx context.Context, claim *entity.Claim) error
	GetByID(ctx context.Context, id int64) (*entity.Claim, error)

	// Update writes the claim if its stored version still equals claim.Version, then
	// increments claim.Version. A stale version returns entity.ErrConflict.
	Update(ctx context.Context, claim *entity.Claim) error

	ListBySubmitter(ctx context.Context, submitterID int64) ([]*entity.Claim, error)
	ListByOrganization(ctx context.Context, orgID int64) ([]*entity.Claim, error)

	// ListByManager returns claims submitted by users whose manager is managerID
	ListByManager(ctx context.Context, managerID int64) ([]*entity.Claim, error)

	ListByStatuses(ctx context.Context, statuses []workflow.State) ([]*entity.Claim, error)
}

// StepRepository defines persistence operations for ApprovalStep
type StepRepository interface {
	Create(ctx context.Context, step *entity.ApprovalStep) error
	Update(ctx context.Context, step *entity.ApprovalStep) error

	// ListByClaimID returns a claim's steps ordered by sequence
	ListByClaimID(ctx context.Context, claimID int64) ([]*entity.ApprovalStep, error)

	ListPendingByApprover(ctx context.Context, approverID int64) ([]*entity.ApprovalStep, error)

	// ListPending returns pending steps oldest first, at most limit rows
	ListPending(ctx context.Context, limit int) ([]*entity.ApprovalStep, error)

	MarkReminded(ctx context.Context, id int64, at time.Time) error
}

// RuleRepository defines persistence operations for ApprovalRule
type RuleRepository interface {
	Create(ctx context.Context, rule *entity.ApprovalRule) error
	GetByID(ctx context.Context, id int64) (*entity.ApprovalRule, error)
	Update(ctx context.Context, rule *entity.ApprovalRule) error
	Delete(ctx context.Context, id int64) error

	// ListByOrganization returns the organization's rules; selection order is the evaluator's job
	ListByOrganization(ctx context.Context, orgID int64) ([]*entity.ApprovalRule, error)
}

// ApproverConfigRepository defines persistence operations for ApproverConfig
type ApproverConfigRepository interface {
	Create(ctx context.Context, cfg *entity.ApproverConfig) error
	GetByID(ctx context.Context, id int64) (*entity.ApproverConfig, error)
	UpdateSequence(ctx context.Context, id int64, sequence int) error
	Delete(ctx context.Context, id int64) error

	// ListByRule returns the rule's approvers ordered by sequence
	ListByRule(ctx context.Context, ruleID int64) ([]*entity.ApproverConfig, error)

	DeleteByRuleAndApprover(ctx context.Context, ruleID, approverID int64) error
	DeleteByRule(ctx context.Context, ruleID int64) error
}

// UserRepository defines persistence operations for User
type UserRepository interface {
	Create(ctx context.Context, user *entity.User) error
	GetByID(ctx context.Context, id int64) (*entity.User, error)
	ListByOrganization(ctx context.Context, orgID int64) ([]*entity.User, error)

	// FirstWithRole returns the lowest-id user in the organization holding the role, or nil
	FirstWithRole(ctx context.Context, orgID int64, r role.Role) (*entity.User, error)
}

// OrganizationRepository defines persistence operations for Organization
type OrganizationRepository interface {
	Create(ctx context.Context, org *entity.Organization) error
	GetByID(ctx context.Context, id int64) (*entity.Organization, error)
}

// AuditRepository stores the append-only workflow audit log
type AuditRepository interface {
	Create(ctx context.Context, entry *entity.AuditEntry) error
	ListByClaimID(ctx context.Context, claimID int64) ([]*entity.AuditEntry, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
