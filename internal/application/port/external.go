package port

import (
	"context"
	"time"

	"github.com/expenseflow/approval-engine/internal/domain/entity"
	"github.com/expenseflow/approval-engine/internal/domain/role"
	"github.com/shopspring/decimal"
)

// ApproverDirectory resolves users, their managers and role membership
type ApproverDirectory interface {
	// FindUser returns entity.ErrNotFound when the id does not resolve
	FindUser(ctx context.Context, id int64) (*entity.User, error)

	// FindManagerOf returns nil without error when the user has no assigned manager
	FindManagerOf(ctx context.Context, userID int64) (*entity.User, error)

	// FindFirstUserWithRole returns entity.ErrNotFound when nobody in the organization holds the role
	FindFirstUserWithRole(ctx context.Context, orgID int64, r role.Role) (*entity.User, error)

	UserHasRole(ctx context.Context, userID int64, r role.Role) (bool, error)
}

// ApproverRegistry resolves the approver for a routing stage
type ApproverRegistry interface {
	ResolveApprover(ctx context.Context, orgID int64, stage entity.Stage) (*entity.User, error)
}

// CurrencyConverter converts amounts between currencies
type CurrencyConverter interface {
	// Convert returns the converted amount and the rate applied
	Convert(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, decimal.Decimal, error)
}

// Notifier delivers approval reminders
type Notifier interface {
	NotifyReminder(ctx context.Context, claim *entity.Claim, step *entity.ApprovalStep, approver *entity.User) error
}

// WorkflowMetrics records orchestrator outcomes
type WorkflowMetrics interface {
	ObserveOperation(operation, outcome string, duration time.Duration)
	ObserveReminder(outcome string)
}
