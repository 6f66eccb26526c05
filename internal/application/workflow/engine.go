package workflow

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/expenseflow/approval-engine/internal/domain/entity"
)

// Orchestrator drives claims through the approval chain. Every mutating operation runs as
// one transaction against the claim and its step ledger and returns the updated claim.
type Orchestrator interface {
	// InitiateWorkflow creates the first pending step for a submitted claim
	InitiateWorkflow(ctx context.Context, claimID int64) (*entity.Claim, error)

	// InitiateManagerExpenseWorkflow routes a manager's own claim to finance or, above the
	// high-value threshold, straight to the director
	InitiateManagerExpenseWorkflow(ctx context.Context, claimID int64) (*entity.Claim, error)

	ProcessManagerApproval(ctx context.Context, claimID, actorID int64, comments string) (*entity.Claim, error)
	ProcessFinanceApproval(ctx context.Context, claimID, actorID int64, comments string) (*entity.Claim, error)
	ProcessDirectorApproval(ctx context.Context, claimID, actorID int64, comments string) (*entity.Claim, error)

	// ApproveCurrentStep approves whichever routing stage is currently pending
	ApproveCurrentStep(ctx context.Context, claimID, actorID int64, comments string) (*entity.Claim, error)

	ProcessCFOApproval(ctx context.Context, claimID, approverID int64, comments string) (*entity.Claim, error)
	RejectExpense(ctx context.Context, claimID, approverID int64, reason string) (*entity.Claim, error)
	ProcessAdminOverride(ctx context.Context, claimID, adminID int64, comments string) (*entity.Claim, error)
	EscalateExpense(ctx context.Context, claimID, actorID int64, reason string) (*entity.Claim, error)

	RequestAdditionalInfo(ctx context.Context, claimID, actorID int64, comments string) (*entity.Claim, error)
	ProvideAdditionalInfo(ctx context.Context, claimID, submitterID int64, info string) (*entity.Claim, error)

	// ReevaluateClaim approves a partially approved claim whose rule is now satisfied
	ReevaluateClaim(ctx context.Context, claimID, actorID int64) (*entity.Claim, error)

	// GetClaim returns the claim with its ledger
	GetClaim(ctx context.Context, claimID int64) (*entity.Claim, error)
	ApprovalPercentage(ctx context.Context, claimID int64) (int, error)
	IsApprovalComplete(ctx context.Context, claimID int64) (bool, error)
}

// Config holds the routing thresholds and ledger policies
type Config struct {
	// HighValueThreshold routes manager claims strictly above it to the director
	HighValueThreshold decimal.Decimal
	// DirectorThreshold sends finance-approved claims strictly above it to the director
	DirectorThreshold         decimal.Decimal
	DefaultRequiredPercentage int
	// OverrideSequence is the minimum sequence of an override step
	OverrideSequence int
	// LegacyEscalationLogStep appends an APPROVED "ESCALATED" step besides the audit entry
	LegacyEscalationLogStep bool
}

// DefaultConfig returns the thresholds used when none are configured
func DefaultConfig() Config {
	return Config{
		HighValueThreshold:        decimal.NewFromInt(25000),
		DirectorThreshold:         decimal.NewFromInt(50000),
		DefaultRequiredPercentage: entity.DefaultRequiredPercentage,
		OverrideSequence:          999,
	}
}
