package workflow

import (
	"strings"

	"github.com/substratehq/lineage/pkg/registry"
)

// State represents workflow lifecycle states.
type State string

const (
	StateDraft    State = "draft"
	StateReview   State = "review"
	StateApproved State = "approved"
	// StateLocked is terminal: no outgoing transitions.
	StateLocked State = "locked"
)

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	switch s {
	case StateDraft, StateReview, StateApproved, StateLocked:
		return true
	}
	return false
}

// Subject types addressable by the workflow. A subject is referenced by
// type+id; the state machine owns the state row, not the subject.
const (
	SubjectFinding = registry.SubjectTypeFinding
	SubjectRun     = "run"
	SubjectReport  = "report"
)

// Roles granting approval authority. Role matching is case-insensitive, so
// callers passing upper-cased tokens from an external directory still match.
const (
	RoleApprover = "approver"
	RoleAdmin    = "admin"
)

// HasApprovalAuthority reports whether any of the actor's roles grants
// approval authority. This is an authorization-shape check against explicit
// role tokens only; authentication is the caller's concern.
func HasApprovalAuthority(roles []string) bool {
	for _, role := range roles {
		switch strings.ToLower(role) {
		case RoleApprover, RoleAdmin:
			return true
		}
	}
	return false
}
