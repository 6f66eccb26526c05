// Package rules decides which approval rule governs a claim and whether the
// claim's approval ledger satisfies it.
package rules

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/cel-go/cel"
	"go.uber.org/zap"

	"github.com/expenseflow/approval-engine/internal/domain/entity"
)

// conditionCostLimit bounds the work a single rule condition may do
const conditionCostLimit = 100000

// Evaluator evaluates approval rules against claims. Safe for concurrent use.
type Evaluator struct {
	env               *cel.Env
	countSkippedSteps bool
	logger            *zap.Logger

	mu       sync.RWMutex
	programs map[string]cel.Program // expression -> compiled program
}

// Option configures an Evaluator
type Option func(*Evaluator)

// WithCountSkippedSteps controls whether SKIPPED steps count toward the percentage denominator
func WithCountSkippedSteps(count bool) Option {
	return func(e *Evaluator) {
		e.countSkippedSteps = count
	}
}

// NewEvaluator creates an evaluator. Skipped steps are counted unless configured otherwise.
func NewEvaluator(logger *zap.Logger, opts ...Option) (*Evaluator, error) {
	env, err := cel.NewEnv(cel.Variable("claim", cel.DynType))
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	e := &Evaluator{
		env:               env,
		countSkippedSteps: true,
		logger:            logger,
		programs:          make(map[string]cel.Program),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// CompileCondition checks that a rule condition compiles to a boolean expression and caches it
func (e *Evaluator) CompileCondition(expr string) error {
	_, err := e.program(expr)
	return err
}

func (e *Evaluator) program(expr string) (cel.Program, error) {
	e.mu.RLock()
	prog, ok := e.programs[expr]
	e.mu.RUnlock()
	if ok {
		return prog, nil
	}

	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("%w: condition compile error: %v", entity.ErrValidation, issues.Err())
	}
	out := ast.OutputType()
	if !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("%w: condition must be boolean, got %s", entity.ErrValidation, out)
	}

	prog, err := e.env.Program(ast, cel.CostLimit(conditionCostLimit))
	if err != nil {
		return nil, fmt.Errorf("%w: condition program error: %v", entity.ErrValidation, err)
	}

	e.mu.Lock()
	e.programs[expr] = prog
	e.mu.Unlock()

	return prog, nil
}

// IsApplicable reports whether the rule's amount range contains the claim amount and its
// condition, if any, holds for the claim
func (e *Evaluator) IsApplicable(rule *entity.ApprovalRule, claim *entity.Claim) (bool, error) {
	if !rule.InRange(claim.ApprovalAmount()) {
		return false, nil
	}
	if rule.Condition == "" {
		return true, nil
	}

	prog, err := e.program(rule.Condition)
	if err != nil {
		return false, fmt.Errorf("rule %d: %w", rule.ID, err)
	}

	out, _, err := prog.Eval(map[string]any{"claim": claimFacts(claim)})
	if err != nil {
		return false, fmt.Errorf("rule %d: condition evaluation failed: %w", rule.ID, err)
	}

	matched, ok := out.Value().(bool)
	if !ok {
		e.logger.Warn("Rule condition returned a non-boolean value",
			zap.Int64("rule_id", rule.ID),
			zap.String("condition", rule.Condition))
		return false, nil
	}
	return matched, nil
}

func claimFacts(c *entity.Claim) map[string]any {
	return map[string]any{
		"id":              c.ID,
		"organization_id": c.OrganizationID,
		"submitter_id":    c.SubmitterID,
		"amount":          c.Amount.InexactFloat64(),
		"currency":        c.Currency,
		"base_amount":     c.ApprovalAmount().InexactFloat64(),
		"category":        c.Category,
		"description":     c.Description,
		"status":          c.Status.String(),
	}
}

// stepCounts returns the approved count and the percentage denominator
func (e *Evaluator) stepCounts(steps []*entity.ApprovalStep) (approved, total int) {
	for _, s := range steps {
		if s.Status == entity.StepSkipped && !e.countSkippedSteps {
			continue
		}
		total++
		if s.Status == entity.StepApproved {
			approved++
		}
	}
	return approved, total
}

// ApprovalPercentage returns the floored share of approved steps, 0 for an empty ledger
func (e *Evaluator) ApprovalPercentage(steps []*entity.ApprovalStep) int {
	approved, total := e.stepCounts(steps)
	if total == 0 {
		return 0
	}
	return approved * 100 / total
}

// PercentageSatisfied reports whether approved/total*100 is at least the required percentage
func (e *Evaluator) PercentageSatisfied(steps []*entity.ApprovalStep, required *int) bool {
	if required == nil {
		return false
	}
	approved, total := e.stepCounts(steps)
	if total == 0 {
		return false
	}
	return approved*100 >= *required*total
}

// DesignatedApproverSatisfied reports whether the rule's designated approver has approved a step
func DesignatedApproverSatisfied(rule *entity.ApprovalRule, steps []*entity.ApprovalStep) bool {
	if rule.DesignatedApproverID == nil {
		return false
	}
	for _, s := range steps {
		if s.ApproverID == *rule.DesignatedApproverID && s.Status == entity.StepApproved {
			return true
		}
	}
	return false
}

// IsApproved decides whether the claim's ledger completes the rule. A hybrid rule combines
// percentage and designated approval with OR or AND; a plain rule accepts either.
func (e *Evaluator) IsApproved(rule *entity.ApprovalRule, claim *entity.Claim) (bool, error) {
	applicable, err := e.IsApplicable(rule, claim)
	if err != nil || !applicable {
		return false, err
	}

	pct := e.PercentageSatisfied(claim.Steps, rule.RequiredPercentage)
	designated := DesignatedApproverSatisfied(rule, claim.Steps)

	if rule.IsHybrid && !rule.PercentageOrCFO {
		return pct && designated, nil
	}
	return pct || designated, nil
}

// SelectRule returns the first applicable rule ordered by ascending minimum amount, unbounded
// minimums last and ties broken by id
func (e *Evaluator) SelectRule(rules []*entity.ApprovalRule, claim *entity.Claim) (*entity.ApprovalRule, error) {
	for _, rule := range SortForSelection(rules) {
		ok, err := e.IsApplicable(rule, claim)
		if err != nil {
			return nil, err
		}
		if ok {
			return rule, nil
		}
	}
	return nil, fmt.Errorf("%w: organization %d, amount %s", entity.ErrNoApplicableRule,
		claim.OrganizationID, claim.ApprovalAmount())
}

// SortForSelection returns a copy of rules in selection order
func SortForSelection(rules []*entity.ApprovalRule) []*entity.ApprovalRule {
	sorted := append([]*entity.ApprovalRule(nil), rules...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i].MinAmount, sorted[j].MinAmount
		switch {
		case a == nil && b == nil:
			return sorted[i].ID < sorted[j].ID
		case a == nil:
			return false
		case b == nil:
			return true
		case !a.Equal(*b):
			return a.LessThan(*b)
		default:
			return sorted[i].ID < sorted[j].ID
		}
	})
	return sorted
}
