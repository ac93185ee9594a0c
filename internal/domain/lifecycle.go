package domain

import (
	"fmt"

	"github.com/anggasct/fluo"
)

// Lifecycle events. A document only ever moves by firing one of these.
const (
	EventSubmit  = "submit"
	EventAdvance = "advance"
	EventApprove = "approve"
	EventReject  = "reject"
	EventRecall  = "recall"
)

// lifecycle is the document state machine. IN_PROGRESS -> IN_PROGRESS is a
// step advance; recall is only open while no step has been decided.
var lifecycle = fluo.NewMachine().
	State(string(StatusDraft)).Initial().
	To(string(StatusInProgress)).On(EventSubmit).
	State(string(StatusInProgress)).
	ToSelf().On(EventAdvance).
	To(string(StatusApproved)).On(EventApprove).
	To(string(StatusRejected)).On(EventReject).
	To(string(StatusDraft)).On(EventRecall).When(untouched).
	State(string(StatusApproved)).Final().
	State(string(StatusRejected)).Final().
	Build()

func untouched(ctx fluo.Context) bool {
	d, ok := ctx.GetEventData().(*Document)
	return ok && d.CurrentStepIndex == 0
}

// CanTransition reports whether any lifecycle event leads from -> to,
// ignoring guards.
func CanTransition(from, to Status) bool {
	for _, t := range lifecycle.GetTransitions()[string(from)] {
		if t.TargetState == string(to) {
			return true
		}
	}
	return false
}

// fire runs event against d's current status and returns the status the
// machine lands in. d is not modified.
func fire(d *Document, event string) (Status, error) {
	m := lifecycle.CreateInstance()
	if err := m.Start(); err != nil {
		return d.Status, err
	}
	if err := m.SetState(string(d.Status)); err != nil {
		return d.Status, fmt.Errorf("%w: unknown status %s", ErrInvalidTransition, d.Status)
	}
	res := m.HandleEvent(event, d)
	if !res.Success() {
		return d.Status, fmt.Errorf("%w: %s from %s", ErrInvalidTransition, event, d.Status)
	}
	return Status(res.CurrentState), nil
}
