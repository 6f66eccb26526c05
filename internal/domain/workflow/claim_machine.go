package workflow

import (
	"context"
	"strings"
	"sync"
)

// approvableStates are the statuses from which an approve, CFO approve or reject is legal
var approvableStates = []State{
	StatePendingManager,
	StatePendingFinance,
	StatePendingDirector,
	StatePendingAdditionalInfo,
	StatePartiallyApproved,
}

// routableStates can move to another approver. PENDING_ADDITIONAL_INFO is included so a
// claim can resume at the stage of its still-pending step once the submitter answers.
var routableStates = []State{
	StateSubmitted,
	StatePendingManager,
	StatePendingFinance,
	StatePendingAdditionalInfo,
}

var (
	claimBuilder     StateMachineBuilder
	claimBuilderOnce sync.Once
)

type reasonKey struct{}

// WithReason attaches the reason a reject trigger is fired with
func WithReason(ctx context.Context, reason string) context.Context {
	return context.WithValue(ctx, reasonKey{}, reason)
}

// reasonGiven guards REJECT: a rejection must carry a non-blank reason
func reasonGiven(ctx context.Context) bool {
	reason, _ := ctx.Value(reasonKey{}).(string)
	return strings.TrimSpace(reason) != ""
}

func newClaimBuilder() StateMachineBuilder {
	b := NewBuilder()

	b.PermitFrom(TriggerSubmit, StateSubmitted, StateDraft)

	b.PermitFrom(TriggerRouteManager, StatePendingManager, routableStates...)
	b.PermitFrom(TriggerRouteFinance, StatePendingFinance, routableStates...)
	b.PermitFrom(TriggerRouteDirector, StatePendingDirector, routableStates...)

	b.PermitFrom(TriggerApprove, StateApproved, approvableStates...)
	b.PermitFrom(TriggerApproveByCFO, StateCFOApproved, approvableStates...)
	for _, from := range approvableStates {
		b.Configure(from).PermitIf(TriggerReject, StateRejected, reasonGiven)
	}
	b.PermitFrom(TriggerApproveByPercentage, StateApproved, StatePartiallyApproved)

	b.PermitFrom(TriggerPartialApprove, StatePartiallyApproved,
		StatePendingManager, StatePendingFinance, StatePendingDirector)

	b.PermitFrom(TriggerRequestInfo, StatePendingAdditionalInfo,
		StatePendingManager, StatePendingFinance, StatePendingDirector, StatePendingAdditionalInfo)

	b.PermitFrom(TriggerEscalate, StatePendingDirector,
		StateSubmitted, StatePendingManager, StatePendingFinance, StatePendingDirector,
		StatePendingAdditionalInfo, StatePartiallyApproved)

	b.PermitFrom(TriggerOverride, StateApproved,
		StateSubmitted, StatePendingManager, StatePendingFinance, StatePendingDirector,
		StatePendingAdditionalInfo, StatePartiallyApproved, StateCFOApproved)

	// APPROVED and REJECTED have no outgoing transitions
	return b
}

// NewClaimMachine returns a claim lifecycle machine positioned at the given status.
// The shared configuration is built on first use, never during package initialization.
func NewClaimMachine(initial State) StateMachine {
	claimBuilderOnce.Do(func() { claimBuilder = newClaimBuilder() })
	return claimBuilder.Build(initial)
}
