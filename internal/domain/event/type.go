package event

// Type identifies the type of domain event
type Type string

const (
	TypeClaimSubmitted    Type = "claim.submitted"
	TypeClaimRouted       Type = "claim.routed"
	TypeClaimApproved     Type = "claim.approved"
	TypeClaimPartial      Type = "claim.partially_approved"
	TypeClaimCFOApproved  Type = "claim.cfo_approved"
	TypeClaimRejected     Type = "claim.rejected"
	TypeClaimEscalated    Type = "claim.escalated"
	TypeClaimOverridden   Type = "claim.overridden"
	TypeInfoRequested     Type = "claim.info_requested"
	TypeStepReminderDue   Type = "step.reminder_due"
	TypeRuleConfigChanged Type = "rule.changed"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeClaimSubmitted,
		TypeClaimRouted,
		TypeClaimApproved,
		TypeClaimPartial,
		TypeClaimCFOApproved,
		TypeClaimRejected,
		TypeClaimEscalated,
		TypeClaimOverridden,
		TypeInfoRequested,
		TypeStepReminderDue,
		TypeRuleConfigChanged:
		return true
	default:
		return false
	}
}
