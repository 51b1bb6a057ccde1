package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMachine_Rule(t *testing.T) {
	m := NewMachine()

	rule, err := m.Rule(StateDraft, StateReview)
	require.NoError(t, err)
	assert.False(t, rule.RequiresEvidence)
	assert.False(t, rule.RequiresApprover)

	rule, err = m.Rule(StateReview, StateApproved)
	require.NoError(t, err)
	assert.True(t, rule.RequiresEvidence)
	assert.True(t, rule.RequiresApprover)

	rule, err = m.Rule(StateApproved, StateLocked)
	require.NoError(t, err)
	assert.True(t, rule.RequiresEvidence)
	assert.True(t, rule.RequiresApprover)
}

func TestMachine_Rule_InvalidPairs(t *testing.T) {
	m := NewMachine()

	cases := []struct{ from, to State }{
		{StateDraft, StateApproved},
		{StateDraft, StateLocked},
		{StateApproved, StateDraft},
		{StateApproved, StateReview},
		{StateLocked, StateDraft},
		{StateLocked, StateReview},
		{StateLocked, StateApproved},
		{StateDraft, StateDraft},
	}
	for _, tc := range cases {
		_, err := m.Rule(tc.from, tc.to)
		require.Error(t, err, "%s -> %s must be rejected", tc.from, tc.to)

		var invalid *InvalidTransitionError
		require.ErrorAs(t, err, &invalid)
		assert.Equal(t, CodeInvalidTransition, invalid.Code)
		assert.Equal(t, tc.from, invalid.From)
		assert.Equal(t, tc.to, invalid.To)
	}
}

func TestMachine_AllowedTransitions(t *testing.T) {
	m := NewMachine()

	assert.ElementsMatch(t, []State{StateReview}, m.AllowedTransitions(StateDraft))
	assert.ElementsMatch(t, []State{StateDraft, StateApproved}, m.AllowedTransitions(StateReview))
	assert.ElementsMatch(t, []State{StateLocked}, m.AllowedTransitions(StateApproved))
	assert.Empty(t, m.AllowedTransitions(StateLocked), "locked is terminal")
}

func TestState_Valid(t *testing.T) {
	for _, s := range []State{StateDraft, StateReview, StateApproved, StateLocked} {
		assert.True(t, s.Valid())
	}
	assert.False(t, State("archived").Valid())
	assert.False(t, State("").Valid())
}

func TestHasApprovalAuthority(t *testing.T) {
	assert.True(t, HasApprovalAuthority([]string{RoleApprover}))
	assert.True(t, HasApprovalAuthority([]string{"viewer", RoleAdmin}))
	assert.True(t, HasApprovalAuthority([]string{"ADMIN"}), "role matching is case-insensitive")
	assert.False(t, HasApprovalAuthority([]string{"viewer", "editor"}))
	assert.False(t, HasApprovalAuthority(nil))
}
