package workflow

// State represents a claim's lifecycle status
type State string

const (
	StateDraft                 State = "DRAFT"
	StateSubmitted             State = "SUBMITTED"
	StatePendingManager        State = "PENDING_MANAGER"
	StatePendingFinance        State = "PENDING_FINANCE"
	StatePendingDirector       State = "PENDING_DIRECTOR"
	StatePartiallyApproved     State = "PARTIALLY_APPROVED"
	StatePendingAdditionalInfo State = "PENDING_ADDITIONAL_INFO"
	StateCFOApproved           State = "CFO_APPROVED"
	StateApproved              State = "APPROVED"
	StateRejected              State = "REJECTED"
)

// CFO_APPROVED and PARTIALLY_APPROVED are intermediate
var terminalStates = map[State]bool{
	StateApproved: true,
	StateRejected: true,
}

var actionStates = map[State]bool{
	StatePendingManager:        true,
	StatePendingFinance:        true,
	StatePendingDirector:       true,
	StatePendingAdditionalInfo: true,
}

var displayNames = map[State]string{
	StateDraft:                 "Draft",
	StateSubmitted:             "Submitted",
	StatePendingManager:        "Pending Manager Approval",
	StatePendingFinance:        "Pending Finance Approval",
	StatePendingDirector:       "Pending Director Approval",
	StatePartiallyApproved:     "Partially Approved",
	StatePendingAdditionalInfo: "Additional Info Required",
	StateCFOApproved:           "CFO Approved",
	StateApproved:              "Approved",
	StateRejected:              "Rejected",
}

// IsTerminal returns true if no further transitions are allowed
func (s State) IsTerminal() bool {
	return terminalStates[s]
}

// RequiresAction returns true while an approver must act on the claim
func (s State) RequiresAction() bool {
	return actionStates[s]
}

// IsEditable returns true if the submitter may still change the claim
func (s State) IsEditable() bool {
	return s == StateDraft || s == StatePendingAdditionalInfo
}

// IsPending returns true for every status a pending-approvals query should list
func (s State) IsPending() bool {
	return s == StateSubmitted || s.RequiresAction()
}

// DisplayName returns a human readable label
func (s State) DisplayName() string {
	return displayNames[s]
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// IsValid returns true if the state is a valid claim status
func (s State) IsValid() bool {
	switch s {
	case StateDraft, StateSubmitted, StatePendingManager, StatePendingFinance, StatePendingDirector,
		StatePartiallyApproved, StatePendingAdditionalInfo, StateCFOApproved, StateApproved, StateRejected:
		return true
	}
	return false
}

// PendingStates lists the statuses returned by the all-pending query
func PendingStates() []State {
	return []State{
		StateSubmitted,
		StatePendingManager,
		StatePendingFinance,
		StatePendingDirector,
		StatePendingAdditionalInfo,
	}
}
