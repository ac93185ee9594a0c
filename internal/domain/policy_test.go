package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func policy(id, docType, scope string, active bool) *Policy {
	return &Policy{
		ID:         id,
		PolicyName: id,
		DocType:    docType,
		Scope:      scope,
		Active:     active,
		Steps:      MustLine(Step{StepOrder: 1, ApproverID: "E1"}),
	}
}

func TestCheckActivation(t *testing.T) {
	a := policy("A", "PURCHASE", "TEAM-11", true)
	b := policy("B", "PURCHASE", "TEAM-11", false)

	assert.ErrorIs(t, CheckActivation(b, []*Policy{a}), ErrDuplicateActiveScope)
	assert.NoError(t, CheckActivation(b, nil))
	assert.NoError(t, CheckActivation(a, []*Policy{a}), "re-activating the active policy is a no-op")

	empty := &Policy{ID: "C", DocType: "PURCHASE", Scope: "TEAM-11"}
	assert.ErrorIs(t, CheckActivation(empty, nil), ErrEmptyLine)
}

func TestCheckSwap(t *testing.T) {
	a := policy("A", "PURCHASE", "TEAM-11", true)
	b := policy("B", "PURCHASE", "TEAM-11", false)
	other := policy("X", "PURCHASE", "TEAM-12", false)

	assert.NoError(t, CheckSwap(a, b, []*Policy{a}))
	assert.ErrorIs(t, CheckSwap(a, other, []*Policy{a}), ErrInvalidTransition)
	assert.ErrorIs(t, CheckSwap(a, a, []*Policy{a}), ErrInvalidTransition)
}

func TestCheckDeletableAndEditable(t *testing.T) {
	active := policy("A", "LEAVE", "", true)
	inactive := policy("B", "LEAVE", "", false)

	assert.ErrorIs(t, CheckDeletable(active), ErrPolicyInUse)
	assert.NoError(t, CheckDeletable(inactive))
	assert.ErrorIs(t, CheckEditable(active), ErrPolicyInUse)
	assert.NoError(t, CheckEditable(inactive))
}

func TestNewSummary(t *testing.T) {
	s := NewSummary(map[Status]int64{StatusDraft: 2, StatusApproved: 3})
	assert.Equal(t, Summary{Draft: 2, Approved: 3, Total: 5}, s)
}
