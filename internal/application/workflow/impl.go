package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/expenseflow/approval-engine/internal/application/dispatcher"
	"github.com/expenseflow/approval-engine/internal/application/port"
	"github.com/expenseflow/approval-engine/internal/application/rules"
	"github.com/expenseflow/approval-engine/internal/domain/entity"
	"github.com/expenseflow/approval-engine/internal/domain/event"
	"github.com/expenseflow/approval-engine/internal/domain/role"
	domainwf "github.com/expenseflow/approval-engine/internal/domain/workflow"
)

const (
	opInitiate        = "initiate"
	opInitiateManager = "initiate_manager"
	opApprove         = "approve"
	opApproveCFO      = "approve_designated"
	opReject          = "reject"
	opOverride        = "override"
	opEscalate        = "escalate"
	opRequestInfo     = "request_info"
	opProvideInfo     = "provide_info"
	opReevaluate      = "reevaluate"

	overrideSkipComment = "Skipped due to admin override"
	escalateSkipComment = "Superseded by escalation"
	cfoSkipComment      = "Superseded by designated approver"
)

// orchestratorImpl is the concrete implementation of Orchestrator
type orchestratorImpl struct {
	claims    port.ClaimRepository
	steps     port.StepRepository
	rules     port.RuleRepository
	audit     port.AuditRepository
	directory port.ApproverDirectory
	registry  port.ApproverRegistry
	evaluator *rules.Evaluator
	txManager port.TransactionManager
	logger    *zap.Logger

	dispatcher dispatcher.Dispatcher
	metrics    port.WorkflowMetrics
	cfg        Config
	now        func() time.Time
}

// Option configures the orchestrator
type Option func(*orchestratorImpl)

// WithDispatcher sets the event dispatcher; events are dispatched after commit
func WithDispatcher(d dispatcher.Dispatcher) Option {
	return func(o *orchestratorImpl) {
		o.dispatcher = d
	}
}

// WithMetrics sets the operation metrics recorder
func WithMetrics(m port.WorkflowMetrics) Option {
	return func(o *orchestratorImpl) {
		o.metrics = m
	}
}

// WithConfig overrides DefaultConfig
func WithConfig(cfg Config) Option {
	return func(o *orchestratorImpl) {
		o.cfg = cfg
	}
}

// WithClock sets the time source
func WithClock(now func() time.Time) Option {
	return func(o *orchestratorImpl) {
		o.now = now
	}
}

// NewOrchestrator creates a workflow orchestrator
func NewOrchestrator(
	claims port.ClaimRepository,
	steps port.StepRepository,
	ruleRepo port.RuleRepository,
	audit port.AuditRepository,
	directory port.ApproverDirectory,
	registry port.ApproverRegistry,
	evaluator *rules.Evaluator,
	txManager port.TransactionManager,
	logger *zap.Logger,
	opts ...Option,
) Orchestrator {
	o := &orchestratorImpl{
		claims:    claims,
		steps:     steps,
		rules:     ruleRepo,
		audit:     audit,
		directory: directory,
		registry:  registry,
		evaluator: evaluator,
		txManager: txManager,
		logger:    logger,
		cfg:       DefaultConfig(),
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// change collects what one operation did so run can persist and announce it
type change struct {
	actorID int64
	note    string
	events  []*event.Event
}

func (c *change) emit(t event.Type, claimID int64, payload map[string]interface{}) {
	c.events = append(c.events, event.NewEvent(t, claimID, c.actorID, payload))
}

type operation func(ctx context.Context, claim *entity.Claim, ch *change) error

// run loads the claim, applies op in memory and persists every mutation in one transaction.
// Nothing is written when op fails, and events go out only after commit.
func (o *orchestratorImpl) run(ctx context.Context, name string, claimID, actorID int64, op operation) (*entity.Claim, error) {
	start := time.Now()
	ch := &change{actorID: actorID}
	var result *entity.Claim

	err := o.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		claim, err := o.loadClaim(txCtx, claimID)
		if err != nil {
			return err
		}

		fromStatus := claim.Status
		before := make(map[int64]entity.StepStatus, len(claim.Steps))
		for _, s := range claim.Steps {
			before[s.ID] = s.Status
		}

		if err := op(txCtx, claim, ch); err != nil {
			return err
		}

		changed, err := o.persistSteps(txCtx, claim, before)
		if err != nil {
			return err
		}
		if !changed && claim.Status == fromStatus {
			result = claim
			return nil
		}

		claim.UpdatedAt = o.now()
		if err := o.claims.Update(txCtx, claim); err != nil {
			return fmt.Errorf("failed to update claim %d: %w", claim.ID, err)
		}

		entry := &entity.AuditEntry{
			ClaimID:    claim.ID,
			ActorID:    ch.actorID,
			Operation:  name,
			FromStatus: fromStatus.String(),
			ToStatus:   claim.Status.String(),
			Note:       ch.note,
			CreatedAt:  o.now(),
		}
		if err := o.audit.Create(txCtx, entry); err != nil {
			return fmt.Errorf("failed to write audit entry: %w", err)
		}

		result = claim
		return nil
	})

	o.observe(name, err, time.Since(start))

	if err != nil {
		o.logFailure(name, claimID, actorID, err)
		return nil, err
	}

	o.logger.Info("Workflow operation completed",
		zap.String("operation", name),
		zap.Int64("claim_id", claimID),
		zap.Int64("actor_id", actorID),
		zap.String("status", result.Status.String()))

	if o.dispatcher != nil {
		for _, evt := range ch.events {
			o.dispatcher.DispatchAsync(ctx, evt)
		}
	}

	return result, nil
}

// persistSteps creates new steps and updates those whose status changed
func (o *orchestratorImpl) persistSteps(ctx context.Context, claim *entity.Claim, before map[int64]entity.StepStatus) (bool, error) {
	changed := false
	for _, s := range claim.Steps {
		if s.ID == 0 {
			if err := o.steps.Create(ctx, s); err != nil {
				return false, fmt.Errorf("failed to create step: %w", err)
			}
			changed = true
			continue
		}
		if before[s.ID] != s.Status {
			if err := o.steps.Update(ctx, s); err != nil {
				return false, fmt.Errorf("failed to update step %d: %w", s.ID, err)
			}
			changed = true
		}
	}
	return changed, nil
}

func (o *orchestratorImpl) observe(name string, err error, d time.Duration) {
	if o.metrics == nil {
		return
	}
	o.metrics.ObserveOperation(name, outcome(err), d)
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, entity.ErrConflict):
		return "conflict"
	case errors.Is(err, entity.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, entity.ErrNotFound):
		return "not_found"
	case errors.Is(err, entity.ErrInvalidState), errors.Is(err, entity.ErrValidation),
		errors.Is(err, entity.ErrNoApplicableRule):
		return "rejected"
	default:
		return "error"
	}
}

func (o *orchestratorImpl) logFailure(name string, claimID, actorID int64, err error) {
	fields := []zap.Field{
		zap.String("operation", name),
		zap.Int64("claim_id", claimID),
		zap.Int64("actor_id", actorID),
		zap.Error(err),
	}
	if outcome(err) == "error" {
		o.logger.Error("Workflow operation failed", fields...)
		return
	}
	o.logger.Warn("Workflow operation refused", fields...)
}

func (o *orchestratorImpl) loadClaim(ctx context.Context, claimID int64) (*entity.Claim, error) {
	claim, err := o.claims.GetByID(ctx, claimID)
	if err != nil {
		return nil, fmt.Errorf("failed to load claim %d: %w", claimID, err)
	}
	if claim == nil {
		return nil, fmt.Errorf("%w: claim %d", entity.ErrNotFound, claimID)
	}

	steps, err := o.steps.ListByClaimID(ctx, claimID)
	if err != nil {
		return nil, fmt.Errorf("failed to load steps for claim %d: %w", claimID, err)
	}
	claim.Steps = steps
	return claim, nil
}

// findActor resolves a user and requires membership of the claim's organization
func (o *orchestratorImpl) findActor(ctx context.Context, claim *entity.Claim, userID int64) (*entity.User, error) {
	user, err := o.directory.FindUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.OrganizationID != claim.OrganizationID {
		return nil, fmt.Errorf("%w: user %d is not in organization %d", entity.ErrUnauthorized, userID, claim.OrganizationID)
	}
	return user, nil
}

// authorizeStep allows administrators and the step's assigned approver
func (o *orchestratorImpl) authorizeStep(ctx context.Context, claim *entity.Claim, step *entity.ApprovalStep, actorID int64) error {
	actor, err := o.findActor(ctx, claim, actorID)
	if err != nil {
		return err
	}
	if actor.IsAdmin() || actor.ID == step.ApproverID {
		return nil
	}
	return fmt.Errorf("%w: user %d is not the assigned approver of step %d", entity.ErrUnauthorized, actorID, step.ID)
}

// nextSequence keeps the conventional positions (finance 2, director 3) while staying above the ledger
func nextSequence(claim *entity.Claim, floor int) int {
	next := claim.MaxSequence() + 1
	if next < floor {
		return floor
	}
	return next
}

// route adds a pending step for the approver and moves the claim to the stage's status
func (o *orchestratorImpl) route(claim *entity.Claim, approver *entity.User, stage entity.Stage, sequence int, ch *change) error {
	step := entity.NewPendingStep(claim.ID, approver.ID, sequence, stage, o.now())
	if err := claim.AddStep(step); err != nil {
		return err
	}
	if err := claim.RouteTo(stage, o.now()); err != nil {
		return err
	}
	ch.emit(event.TypeClaimRouted, claim.ID, map[string]interface{}{
		"stage":       string(stage),
		"approver_id": approver.ID,
		"sequence":    sequence,
	})
	return nil
}

func (o *orchestratorImpl) requireSubmitted(claim *entity.Claim) error {
	if claim.Status != domainwf.StateSubmitted {
		return fmt.Errorf("%w: claim %d is %s, expected %s", entity.ErrInvalidState, claim.ID, claim.Status, domainwf.StateSubmitted)
	}
	if len(claim.Steps) > 0 {
		return fmt.Errorf("%w: claim %d already has approval steps", entity.ErrInvalidState, claim.ID)
	}
	return nil
}

// InitiateWorkflow routes manager-tier submitters to finance, others to their manager when
// one is assigned and to finance otherwise
func (o *orchestratorImpl) InitiateWorkflow(ctx context.Context, claimID int64) (*entity.Claim, error) {
	return o.run(ctx, opInitiate, claimID, 0, func(ctx context.Context, claim *entity.Claim, ch *change) error {
		if err := o.requireSubmitted(claim); err != nil {
			return err
		}
		ch.actorID = claim.SubmitterID

		submitter, err := o.directory.FindUser(ctx, claim.SubmitterID)
		if err != nil {
			return err
		}

		if !submitter.Roles.IsManagerTier() {
			manager, err := o.directory.FindManagerOf(ctx, submitter.ID)
			if err != nil {
				return err
			}
			if manager != nil {
				return o.route(claim, manager, entity.StageManager, 1, ch)
			}
		}

		finance, err := o.registry.ResolveApprover(ctx, claim.OrganizationID, entity.StageFinance)
		if err != nil {
			return err
		}
		return o.route(claim, finance, entity.StageFinance, 1, ch)
	})
}

// InitiateManagerExpenseWorkflow requires a manager-tier submitter
func (o *orchestratorImpl) InitiateManagerExpenseWorkflow(ctx context.Context, claimID int64) (*entity.Claim, error) {
	return o.run(ctx, opInitiateManager, claimID, 0, func(ctx context.Context, claim *entity.Claim, ch *change) error {
		if err := o.requireSubmitted(claim); err != nil {
			return err
		}
		ch.actorID = claim.SubmitterID

		submitter, err := o.directory.FindUser(ctx, claim.SubmitterID)
		if err != nil {
			return err
		}
		if !submitter.Roles.IsManagerTier() {
			return fmt.Errorf("%w: submitter %d is not a manager", entity.ErrInvalidState, submitter.ID)
		}

		stage := entity.StageFinance
		if claim.ApprovalAmount().GreaterThan(o.cfg.HighValueThreshold) {
			stage = entity.StageDirector
		}

		approver, err := o.registry.ResolveApprover(ctx, claim.OrganizationID, stage)
		if err != nil {
			return err
		}
		return o.route(claim, approver, stage, 1, ch)
	})
}

func (o *orchestratorImpl) ProcessManagerApproval(ctx context.Context, claimID, actorID int64, comments string) (*entity.Claim, error) {
	return o.approve(ctx, claimID, actorID, comments, entity.StageManager)
}

func (o *orchestratorImpl) ProcessFinanceApproval(ctx context.Context, claimID, actorID int64, comments string) (*entity.Claim, error) {
	return o.approve(ctx, claimID, actorID, comments, entity.StageFinance)
}

func (o *orchestratorImpl) ProcessDirectorApproval(ctx context.Context, claimID, actorID int64, comments string) (*entity.Claim, error) {
	return o.approve(ctx, claimID, actorID, comments, entity.StageDirector)
}

// ApproveCurrentStep dispatches on the stage of the pending step
func (o *orchestratorImpl) ApproveCurrentStep(ctx context.Context, claimID, actorID int64, comments string) (*entity.Claim, error) {
	return o.approve(ctx, claimID, actorID, comments, "")
}

// approve handles a routing-stage approval; an empty stage accepts whichever stage is pending
func (o *orchestratorImpl) approve(ctx context.Context, claimID, actorID int64, comments string, stage entity.Stage) (*entity.Claim, error) {
	return o.run(ctx, opApprove, claimID, actorID, func(ctx context.Context, claim *entity.Claim, ch *change) error {
		pending := claim.PendingStep()
		if pending == nil {
			return fmt.Errorf("%w: claim %d has no pending step", entity.ErrInvalidState, claim.ID)
		}
		if stage != "" && pending.Stage != stage {
			return fmt.Errorf("%w: claim %d awaits %s approval, not %s", entity.ErrInvalidState, claim.ID, pending.Stage, stage)
		}
		expected, ok := pending.Stage.PendingState()
		if !ok || claim.Status != expected {
			return fmt.Errorf("%w: claim %d is %s", entity.ErrInvalidState, claim.ID, claim.Status)
		}
		if err := o.authorizeStep(ctx, claim, pending, actorID); err != nil {
			return err
		}

		if err := pending.Approve(comments, o.now()); err != nil {
			return err
		}
		ch.note = comments

		switch pending.Stage {
		case entity.StageManager:
			finance, err := o.registry.ResolveApprover(ctx, claim.OrganizationID, entity.StageFinance)
			if err != nil {
				return err
			}
			return o.route(claim, finance, entity.StageFinance, nextSequence(claim, 2), ch)

		case entity.StageFinance:
			if claim.ApprovalAmount().GreaterThan(o.cfg.DirectorThreshold) {
				director, err := o.registry.ResolveApprover(ctx, claim.OrganizationID, entity.StageDirector)
				if err != nil {
					return err
				}
				return o.route(claim, director, entity.StageDirector, nextSequence(claim, 3), ch)
			}
			return o.finalize(ctx, claim, ch)

		default:
			if err := claim.Approve(o.now()); err != nil {
				return err
			}
			ch.emit(event.TypeClaimApproved, claim.ID, nil)
			return nil
		}
	})
}

// finalize approves the claim when its rule is satisfied and marks it partially approved otherwise
func (o *orchestratorImpl) finalize(ctx context.Context, claim *entity.Claim, ch *change) error {
	rule, _, err := o.applicableRule(ctx, claim)
	if err != nil {
		return err
	}
	approved, err := o.evaluator.IsApproved(rule, claim)
	if err != nil {
		return err
	}

	if approved {
		if err := claim.Approve(o.now()); err != nil {
			return err
		}
		ch.emit(event.TypeClaimApproved, claim.ID, map[string]interface{}{"rule_id": rule.ID})
		return nil
	}

	if err := claim.MarkPartiallyApproved(o.now()); err != nil {
		return err
	}
	ch.emit(event.TypeClaimPartial, claim.ID, map[string]interface{}{
		"rule_id":    rule.ID,
		"percentage": o.evaluator.ApprovalPercentage(claim.Steps),
	})
	return nil
}

// applicableRule selects the organization's rule for the claim; with no match the default
// percentage rule applies and fallback is true
func (o *orchestratorImpl) applicableRule(ctx context.Context, claim *entity.Claim) (*entity.ApprovalRule, bool, error) {
	orgRules, err := o.rules.ListByOrganization(ctx, claim.OrganizationID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to list rules: %w", err)
	}

	rule, err := o.evaluator.SelectRule(orgRules, claim)
	if err == nil {
		return rule, false, nil
	}
	if !errors.Is(err, entity.ErrNoApplicableRule) {
		return nil, false, err
	}

	pct := o.cfg.DefaultRequiredPercentage
	return &entity.ApprovalRule{
		OrganizationID:     claim.OrganizationID,
		Name:               "default",
		RequiredPercentage: &pct,
	}, true, nil
}

// ProcessCFOApproval records the designated approver's approval outside the normal chain
func (o *orchestratorImpl) ProcessCFOApproval(ctx context.Context, claimID, approverID int64, comments string) (*entity.Claim, error) {
	return o.run(ctx, opApproveCFO, claimID, approverID, func(ctx context.Context, claim *entity.Claim, ch *change) error {
		approver, err := o.findActor(ctx, claim, approverID)
		if err != nil {
			return err
		}

		rule, fallback, err := o.applicableRule(ctx, claim)
		if err != nil {
			return err
		}
		if !fallback && rule.DesignatedApproverID != nil {
			if !rule.IsDesignatedApprover(approver.ID) {
				return fmt.Errorf("%w: user %d is not the designated approver of rule %d", entity.ErrUnauthorized, approver.ID, rule.ID)
			}
		} else if !approver.Can(role.CapActAsDesignated) {
			return fmt.Errorf("%w: user %d cannot act as designated approver", entity.ErrUnauthorized, approver.ID)
		}

		for _, s := range claim.PendingSteps() {
			if err := s.Skip(cfoSkipComment, o.now()); err != nil {
				return err
			}
		}

		sequence := 1
		if len(claim.Steps) > 0 {
			sequence = claim.MaxSequence() + 1
		}
		step := entity.NewRecordedStep(claim.ID, approver.ID, sequence, entity.StageDesignated, comments, o.now())
		if err := claim.AddStep(step); err != nil {
			return err
		}
		if err := claim.ApproveByCFO(o.now()); err != nil {
			return err
		}

		ch.note = comments
		ch.emit(event.TypeClaimCFOApproved, claim.ID, map[string]interface{}{"sequence": sequence})
		return nil
	})
}

// RejectExpense lets only the pending step's assigned approver reject
func (o *orchestratorImpl) RejectExpense(ctx context.Context, claimID, approverID int64, reason string) (*entity.Claim, error) {
	return o.run(ctx, opReject, claimID, approverID, func(ctx context.Context, claim *entity.Claim, ch *change) error {
		reason = strings.TrimSpace(reason)
		if reason == "" {
			return fmt.Errorf("%w: rejection reason is required", entity.ErrValidation)
		}

		pending := claim.PendingStep()
		if pending == nil {
			return fmt.Errorf("%w: claim %d has no pending step", entity.ErrInvalidState, claim.ID)
		}
		if pending.ApproverID != approverID {
			return fmt.Errorf("%w: user %d is not the assigned approver of step %d", entity.ErrUnauthorized, approverID, pending.ID)
		}

		if err := pending.Reject(reason, o.now()); err != nil {
			return err
		}
		if err := claim.Reject(reason, o.now()); err != nil {
			return err
		}

		ch.note = reason
		ch.emit(event.TypeClaimRejected, claim.ID, map[string]interface{}{"reason": reason})
		return nil
	})
}

// ProcessAdminOverride approves the claim regardless of the chain and skips pending steps
func (o *orchestratorImpl) ProcessAdminOverride(ctx context.Context, claimID, adminID int64, comments string) (*entity.Claim, error) {
	return o.run(ctx, opOverride, claimID, adminID, func(ctx context.Context, claim *entity.Claim, ch *change) error {
		admin, err := o.findActor(ctx, claim, adminID)
		if err != nil {
			return err
		}
		if !admin.Can(role.CapOverrideApprovals) {
			return fmt.Errorf("%w: user %d is not an administrator", entity.ErrUnauthorized, adminID)
		}

		skipped := 0
		for _, s := range claim.PendingSteps() {
			if err := s.Skip(overrideSkipComment, o.now()); err != nil {
				return err
			}
			skipped++
		}

		sequence := nextSequence(claim, o.cfg.OverrideSequence)
		step := entity.NewRecordedStep(claim.ID, admin.ID, sequence, entity.StageOverride, comments, o.now())
		if err := claim.AddStep(step); err != nil {
			return err
		}
		if err := claim.Override(o.now()); err != nil {
			return err
		}

		ch.note = comments
		ch.emit(event.TypeClaimOverridden, claim.ID, map[string]interface{}{
			"sequence":      sequence,
			"skipped_steps": skipped,
		})
		return nil
	})
}

// EscalateExpense sends the claim to the director approver
func (o *orchestratorImpl) EscalateExpense(ctx context.Context, claimID, actorID int64, reason string) (*entity.Claim, error) {
	return o.run(ctx, opEscalate, claimID, actorID, func(ctx context.Context, claim *entity.Claim, ch *change) error {
		actor, err := o.findActor(ctx, claim, actorID)
		if err != nil {
			return err
		}
		if !actor.Can(role.CapEscalate) {
			return fmt.Errorf("%w: user %d may not escalate", entity.ErrUnauthorized, actorID)
		}

		director, err := o.registry.ResolveApprover(ctx, claim.OrganizationID, entity.StageDirector)
		if err != nil {
			return err
		}

		for _, s := range claim.PendingSteps() {
			if err := s.Skip(escalateSkipComment, o.now()); err != nil {
				return err
			}
		}

		sequence := claim.MaxSequence() + 1
		if err := claim.AddStep(entity.NewPendingStep(claim.ID, director.ID, sequence, entity.StageDirector, o.now())); err != nil {
			return err
		}
		if err := claim.Escalate(o.now()); err != nil {
			return err
		}

		note := "ESCALATED: " + reason
		if o.cfg.LegacyEscalationLogStep {
			logStep := entity.NewRecordedStep(claim.ID, actor.ID, sequence+1, entity.StageEscalationLog, note, o.now())
			if err := claim.AddStep(logStep); err != nil {
				return err
			}
		}

		ch.note = note
		ch.emit(event.TypeClaimEscalated, claim.ID, map[string]interface{}{
			"director_id": director.ID,
			"reason":      reason,
		})
		return nil
	})
}

// RequestAdditionalInfo returns the claim to its submitter; the pending step stays open
func (o *orchestratorImpl) RequestAdditionalInfo(ctx context.Context, claimID, actorID int64, comments string) (*entity.Claim, error) {
	return o.run(ctx, opRequestInfo, claimID, actorID, func(ctx context.Context, claim *entity.Claim, ch *change) error {
		pending := claim.PendingStep()
		if pending == nil {
			return fmt.Errorf("%w: claim %d has no pending step", entity.ErrInvalidState, claim.ID)
		}
		if err := o.authorizeStep(ctx, claim, pending, actorID); err != nil {
			return err
		}
		if err := claim.RequestAdditionalInfo(o.now()); err != nil {
			return err
		}

		ch.note = comments
		ch.emit(event.TypeInfoRequested, claim.ID, map[string]interface{}{"comments": comments})
		return nil
	})
}

// ProvideAdditionalInfo resumes the claim at the stage of its pending step
func (o *orchestratorImpl) ProvideAdditionalInfo(ctx context.Context, claimID, submitterID int64, info string) (*entity.Claim, error) {
	return o.run(ctx, opProvideInfo, claimID, submitterID, func(ctx context.Context, claim *entity.Claim, ch *change) error {
		if claim.Status != domainwf.StatePendingAdditionalInfo {
			return fmt.Errorf("%w: claim %d is not awaiting information", entity.ErrInvalidState, claim.ID)
		}
		if claim.SubmitterID != submitterID {
			return fmt.Errorf("%w: only the submitter may provide information", entity.ErrUnauthorized)
		}
		pending := claim.PendingStep()
		if pending == nil {
			return fmt.Errorf("%w: claim %d has no pending step", entity.ErrInvalidState, claim.ID)
		}
		if err := claim.RouteTo(pending.Stage, o.now()); err != nil {
			return err
		}

		ch.note = info
		ch.emit(event.TypeClaimRouted, claim.ID, map[string]interface{}{
			"stage":       string(pending.Stage),
			"approver_id": pending.ApproverID,
			"sequence":    pending.Sequence,
		})
		return nil
	})
}

// ReevaluateClaim re-checks a partially approved claim and approves it when the rule now holds
func (o *orchestratorImpl) ReevaluateClaim(ctx context.Context, claimID, actorID int64) (*entity.Claim, error) {
	return o.run(ctx, opReevaluate, claimID, actorID, func(ctx context.Context, claim *entity.Claim, ch *change) error {
		if claim.Status != domainwf.StatePartiallyApproved {
			return fmt.Errorf("%w: claim %d is %s, expected %s", entity.ErrInvalidState, claim.ID, claim.Status, domainwf.StatePartiallyApproved)
		}

		rule, _, err := o.applicableRule(ctx, claim)
		if err != nil {
			return err
		}
		approved, err := o.evaluator.IsApproved(rule, claim)
		if err != nil || !approved {
			return err
		}

		if err := claim.ApproveByPercentage(o.now()); err != nil {
			return err
		}
		ch.emit(event.TypeClaimApproved, claim.ID, map[string]interface{}{"rule_id": rule.ID})
		return nil
	})
}

func (o *orchestratorImpl) GetClaim(ctx context.Context, claimID int64) (*entity.Claim, error) {
	return o.loadClaim(ctx, claimID)
}

func (o *orchestratorImpl) ApprovalPercentage(ctx context.Context, claimID int64) (int, error) {
	claim, err := o.loadClaim(ctx, claimID)
	if err != nil {
		return 0, err
	}
	return o.evaluator.ApprovalPercentage(claim.Steps), nil
}

// IsApprovalComplete is true once the claim is approved, CFO approved or rejected
func (o *orchestratorImpl) IsApprovalComplete(ctx context.Context, claimID int64) (bool, error) {
	claim, err := o.loadClaim(ctx, claimID)
	if err != nil {
		return false, err
	}
	switch claim.Status {
	case domainwf.StateApproved, domainwf.StateCFOApproved, domainwf.StateRejected:
		return true, nil
	default:
		return false, nil
	}
}

// Verify interface compliance
var _ Orchestrator = (*orchestratorImpl)(nil)
