package workflow

import "fmt"

// Prerequisite names for MissingPrerequisiteError.
const (
	PrerequisiteEvidenceLinked    = "evidence_linked"
	PrerequisiteApprovalAuthority = "approval_authority"
)

// TransitionRule defines an allowed workflow transition and its
// prerequisites. Prerequisites are derived from database state and the
// actor's role set, never accepted as caller-supplied booleans.
type TransitionRule struct {
	From             State
	To               State
	RequiresEvidence bool
	RequiresApprover bool
}

// DefaultRules defines the allowed workflow state transitions. locked has no
// outgoing rules: it is terminal.
var DefaultRules = []TransitionRule{
	{From: StateDraft, To: StateReview},
	{From: StateReview, To: StateDraft},
	{From: StateReview, To: StateApproved, RequiresEvidence: true, RequiresApprover: true},
	{From: StateApproved, To: StateLocked, RequiresEvidence: true, RequiresApprover: true},
}

// Machine validates workflow state transitions.
type Machine struct {
	rules []TransitionRule
}

// NewMachine creates a machine with the default rules.
func NewMachine() *Machine {
	return &Machine{rules: DefaultRules}
}

// Rule returns the rule for from->to, or an *InvalidTransitionError naming
// both states when the pair is not in the table. Unknown pairs are never
// clamped to the nearest valid state.
func (m *Machine) Rule(from, to State) (*TransitionRule, error) {
	for i := range m.rules {
		if m.rules[i].From == from && m.rules[i].To == to {
			return &m.rules[i], nil
		}
	}
	return nil, &InvalidTransitionError{
		Code:    CodeInvalidTransition,
		From:    from,
		To:      to,
		Message: fmt.Sprintf("no transition defined from %s to %s", from, to),
	}
}

// AllowedTransitions returns all valid target states from the given state.
func (m *Machine) AllowedTransitions(from State) []State {
	var allowed []State
	for _, r := range m.rules {
		if r.From == from {
			allowed = append(allowed, r.To)
		}
	}
	return allowed
}

// Error codes.
const (
	CodeInvalidTransition   = "INVALID_TRANSITION"
	CodeMissingPrerequisite = "MISSING_PREREQUISITE"
)

// InvalidTransitionError is a structured error for transitions outside the
// rule table.
type InvalidTransitionError struct {
	Code    string `json:"code"`
	From    State  `json:"from"`
	To      State  `json:"to"`
	Message string `json:"message"`
}

func (e *InvalidTransitionError) Error() string {
	return e.Message
}

// MissingPrerequisiteError names the unsatisfied prerequisite of an
// otherwise legal transition.
type MissingPrerequisiteError struct {
	Code         string `json:"code"`
	From         State  `json:"from"`
	To           State  `json:"to"`
	Prerequisite string `json:"prerequisite"`
	Message      string `json:"message"`
}

func (e *MissingPrerequisiteError) Error() string {
	return e.Message
}
