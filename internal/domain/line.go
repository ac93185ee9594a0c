package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	apperrors "github.com/pesio-ai/be-hr-approvals/internal/errors"
)

// ApproverSnapshot freezes how an approver looked when a line was built.
type ApproverSnapshot struct {
	Name         string `json:"name"`
	DeptCode     string `json:"deptCode"`
	PositionCode string `json:"positionCode"`
}

// Step is one position in an approval line.
type Step struct {
	StepOrder        int              `json:"stepOrder"`
	ApproverID       string           `json:"approverId"`
	ApproverSnapshot ApproverSnapshot `json:"approverSnapshot"`
}

// Line is an ordered, validated sequence of steps. It is used both for
// policy steps and for the resolved line frozen onto a document. A Line has
// no mutators; build a new one instead.
type Line struct {
	steps []Step
}

// NewLine validates steps and returns them ordered by StepOrder.
func NewLine(steps []Step) (Line, error) {
	if len(steps) == 0 {
		return Line{}, ErrEmptyLine
	}

	sorted := make([]Step, len(steps))
	copy(sorted, steps)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].StepOrder < sorted[j].StepOrder
	})

	for i, s := range sorted {
		if s.StepOrder != i+1 {
			return Line{}, fmt.Errorf("%w: got step order %d at position %d", ErrInvalidStepSequence, s.StepOrder, i+1)
		}
		if strings.TrimSpace(s.ApproverID) == "" {
			return Line{}, apperrors.InvalidInput("steps", fmt.Sprintf("step %d has no approver", s.StepOrder))
		}
		sorted[i].ApproverID = strings.TrimSpace(s.ApproverID)
	}
	return Line{steps: sorted}, nil
}

// MustLine is NewLine for literals known to be valid.
func MustLine(steps ...Step) Line {
	l, err := NewLine(steps)
	if err != nil {
		panic(err)
	}
	return l
}

// Len returns the number of steps.
func (l Line) Len() int { return len(l.steps) }

// IsEmpty reports whether the line has no steps.
func (l Line) IsEmpty() bool { return len(l.steps) == 0 }

// At returns the step at a 0-based index.
func (l Line) At(i int) (Step, bool) {
	if i < 0 || i >= len(l.steps) {
		return Step{}, false
	}
	return l.steps[i], true
}

// Steps returns a copy of the steps.
func (l Line) Steps() []Step {
	out := make([]Step, len(l.steps))
	copy(out, l.steps)
	return out
}

// ApproverIDs returns the approver of each step in order.
func (l Line) ApproverIDs() []string {
	ids := make([]string, len(l.steps))
	for i, s := range l.steps {
		ids[i] = s.ApproverID
	}
	return ids
}

// Equal reports whether two lines hold identical steps.
func (l Line) Equal(other Line) bool {
	if len(l.steps) != len(other.steps) {
		return false
	}
	for i := range l.steps {
		if l.steps[i] != other.steps[i] {
			return false
		}
	}
	return true
}

func (l Line) MarshalJSON() ([]byte, error) {
	if l.steps == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(l.steps)
}

// UnmarshalJSON accepts an empty array or null as the empty line; anything
// else must pass NewLine.
func (l *Line) UnmarshalJSON(data []byte) error {
	var steps []Step
	if err := json.Unmarshal(data, &steps); err != nil {
		return err
	}
	if len(steps) == 0 {
		*l = Line{}
		return nil
	}
	parsed, err := NewLine(steps)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}
