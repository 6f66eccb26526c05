package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/expenseflow/approval-engine/internal/application/dispatcher"
	"github.com/expenseflow/approval-engine/internal/application/port"
	"github.com/expenseflow/approval-engine/internal/application/workflow"
	"github.com/expenseflow/approval-engine/internal/domain/entity"
	"github.com/expenseflow/approval-engine/internal/domain/event"
	domainwf "github.com/expenseflow/approval-engine/internal/domain/workflow"
	"github.com/expenseflow/approval-engine/pkg/utils"
)

// SubmitRequest carries a new expense claim
type SubmitRequest struct {
	SubmitterID int64
	Amount      decimal.Decimal
	Currency    string
	Category    string
	Description string
	ClaimDate   time.Time
}

// PendingApproval pairs a claim with the step awaiting the approver
type PendingApproval struct {
	Claim *entity.Claim        `json:"claim"`
	Step  *entity.ApprovalStep `json:"step"`
}

// ClaimService handles claim submission and the read side of the workflow
type ClaimService interface {
	// Submit creates the claim, submits it and starts the approval chain in one transaction
	Submit(ctx context.Context, req SubmitRequest) (*entity.Claim, error)

	GetClaim(ctx context.Context, id int64) (*entity.Claim, error)
	ListBySubmitter(ctx context.Context, submitterID int64) ([]*entity.Claim, error)
	ListTeamClaims(ctx context.Context, managerID int64) ([]*entity.Claim, error)
	ListOrganizationClaims(ctx context.Context, orgID int64) ([]*entity.Claim, error)
	ListPendingForApprover(ctx context.Context, approverID int64) ([]*PendingApproval, error)
	ListAllPending(ctx context.Context) ([]*entity.Claim, error)
	AuditTrail(ctx context.Context, claimID int64) ([]*entity.AuditEntry, error)
}

type claimServiceImpl struct {
	claims       port.ClaimRepository
	steps        port.StepRepository
	orgs         port.OrganizationRepository
	audit        port.AuditRepository
	directory    port.ApproverDirectory
	converter    port.CurrencyConverter
	orchestrator workflow.Orchestrator
	txManager    port.TransactionManager
	dispatcher   dispatcher.Dispatcher
	logger       *zap.Logger
}

// NewClaimService creates a ClaimService. dispatcher may be nil.
func NewClaimService(
	claims port.ClaimRepository,
	steps port.StepRepository,
	orgs port.OrganizationRepository,
	audit port.AuditRepository,
	directory port.ApproverDirectory,
	converter port.CurrencyConverter,
	orchestrator workflow.Orchestrator,
	txManager port.TransactionManager,
	d dispatcher.Dispatcher,
	logger *zap.Logger,
) ClaimService {
	return &claimServiceImpl{
		claims:       claims,
		steps:        steps,
		orgs:         orgs,
		audit:        audit,
		directory:    directory,
		converter:    converter,
		orchestrator: orchestrator,
		txManager:    txManager,
		dispatcher:   d,
		logger:       logger,
	}
}

func (s *claimServiceImpl) Submit(ctx context.Context, req SubmitRequest) (*entity.Claim, error) {
	submitter, err := s.directory.FindUser(ctx, req.SubmitterID)
	if err != nil {
		return nil, err
	}

	org, err := s.orgs.GetByID(ctx, submitter.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("get organization %d: %w", submitter.OrganizationID, err)
	}
	if org == nil {
		return nil, fmt.Errorf("%w: organization %d", entity.ErrNotFound, submitter.OrganizationID)
	}

	if err := utils.ValidateCurrencyCode(req.Currency); err != nil {
		return nil, fmt.Errorf("%w: %v", entity.ErrValidation, err)
	}

	claimDate := req.ClaimDate
	if claimDate.IsZero() {
		claimDate = time.Now()
	}
	claim, err := entity.NewClaim(org.ID, submitter.ID, req.Amount, req.Currency,
		utils.SanitizeText(req.Category), utils.SanitizeText(req.Description), claimDate)
	if err != nil {
		return nil, err
	}

	if org.DefaultCurrency != "" && org.DefaultCurrency != claim.Currency {
		base, rate, err := s.converter.Convert(ctx, claim.Amount, claim.Currency, org.DefaultCurrency)
		if err != nil {
			return nil, fmt.Errorf("convert %s to %s: %w", claim.Currency, org.DefaultCurrency, err)
		}
		claim.BaseAmount = base
		claim.BaseCurrency = org.DefaultCurrency
		claim.ExchangeRate = rate
	}

	now := time.Now()
	claim.CreatedAt = now
	claim.UpdatedAt = now
	if err := claim.Submit(now); err != nil {
		return nil, err
	}

	var result *entity.Claim
	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.claims.Create(txCtx, claim); err != nil {
			return fmt.Errorf("create claim: %w", err)
		}

		entry := &entity.AuditEntry{
			ClaimID:    claim.ID,
			ActorID:    submitter.ID,
			Operation:  "submit",
			FromStatus: domainwf.StateDraft.String(),
			ToStatus:   claim.Status.String(),
			CreatedAt:  now,
		}
		if err := s.audit.Create(txCtx, entry); err != nil {
			return fmt.Errorf("write audit entry: %w", err)
		}

		var err error
		if submitter.Roles.IsManagerTier() {
			result, err = s.orchestrator.InitiateManagerExpenseWorkflow(txCtx, claim.ID)
		} else {
			result, err = s.orchestrator.InitiateWorkflow(txCtx, claim.ID)
		}
		return err
	})
	if err != nil {
		s.logger.Error("Failed to submit claim", zap.Int64("submitter_id", req.SubmitterID), zap.Error(err))
		return nil, err
	}

	s.logger.Info("Claim submitted",
		zap.Int64("claim_id", result.ID),
		zap.Int64("submitter_id", submitter.ID),
		zap.String("amount", result.Amount.String()),
		zap.String("currency", result.Currency),
		zap.String("status", result.Status.String()))

	if s.dispatcher != nil {
		s.dispatcher.DispatchAsync(ctx, event.NewEvent(event.TypeClaimSubmitted, result.ID, submitter.ID, map[string]interface{}{
			"amount":        result.Amount.String(),
			"currency":      result.Currency,
			"base_amount":   result.BaseAmount.String(),
			"base_currency": result.BaseCurrency,
		}))
	}
	return result, nil
}

func (s *claimServiceImpl) GetClaim(ctx context.Context, id int64) (*entity.Claim, error) {
	return s.orchestrator.GetClaim(ctx, id)
}

func (s *claimServiceImpl) ListBySubmitter(ctx context.Context, submitterID int64) ([]*entity.Claim, error) {
	return s.claims.ListBySubmitter(ctx, submitterID)
}

func (s *claimServiceImpl) ListTeamClaims(ctx context.Context, managerID int64) ([]*entity.Claim, error) {
	return s.claims.ListByManager(ctx, managerID)
}

func (s *claimServiceImpl) ListOrganizationClaims(ctx context.Context, orgID int64) ([]*entity.Claim, error) {
	return s.claims.ListByOrganization(ctx, orgID)
}

// ListPendingForApprover lists the approver's pending steps on claims that are waiting for them;
// steps of claims parked for additional information are left out
func (s *claimServiceImpl) ListPendingForApprover(ctx context.Context, approverID int64) ([]*PendingApproval, error) {
	steps, err := s.steps.ListPendingByApprover(ctx, approverID)
	if err != nil {
		return nil, fmt.Errorf("list pending steps: %w", err)
	}

	out := make([]*PendingApproval, 0, len(steps))
	for _, step := range steps {
		claim, err := s.claims.GetByID(ctx, step.ClaimID)
		if err != nil {
			return nil, fmt.Errorf("get claim %d: %w", step.ClaimID, err)
		}
		if claim == nil {
			continue
		}
		if expected, ok := step.Stage.PendingState(); ok && claim.Status != expected {
			continue
		}
		out = append(out, &PendingApproval{Claim: claim, Step: step})
	}
	return out, nil
}

func (s *claimServiceImpl) ListAllPending(ctx context.Context) ([]*entity.Claim, error) {
	return s.claims.ListByStatuses(ctx, domainwf.PendingStates())
}

func (s *claimServiceImpl) AuditTrail(ctx context.Context, claimID int64) ([]*entity.AuditEntry, error) {
	if _, err := s.orchestrator.GetClaim(ctx, claimID); err != nil {
		return nil, err
	}
	return s.audit.ListByClaimID(ctx, claimID)
}
