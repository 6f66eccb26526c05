package workflow

// Trigger represents an action that can cause a claim status transition
type Trigger string

const (
	TriggerSubmit              Trigger = "SUBMIT"
	TriggerRouteManager        Trigger = "ROUTE_MANAGER"
	TriggerRouteFinance        Trigger = "ROUTE_FINANCE"
	TriggerRouteDirector       Trigger = "ROUTE_DIRECTOR"
	TriggerApprove             Trigger = "APPROVE"
	TriggerApproveByPercentage Trigger = "APPROVE_BY_PERCENTAGE"
	TriggerApproveByCFO        Trigger = "APPROVE_BY_CFO"
	TriggerPartialApprove      Trigger = "PARTIAL_APPROVE"
	TriggerReject              Trigger = "REJECT"
	TriggerRequestInfo         Trigger = "REQUEST_INFO"
	TriggerEscalate            Trigger = "ESCALATE"
	TriggerOverride            Trigger = "OVERRIDE"
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}
