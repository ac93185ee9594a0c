package domain

import (
	"fmt"
	"time"
)

// NewDocument builds a DRAFT document at version 1.
func NewDocument(docType, title, authorID, originDeptCode string, now time.Time) *Document {
	return &Document{
		DocType:        docType,
		Title:          title,
		AuthorID:       authorID,
		OriginDeptCode: originDeptCode,
		Status:         StatusDraft,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// CurrentStep returns the step awaiting a decision.
func (d *Document) CurrentStep() (Step, bool) {
	if d.Status != StatusInProgress {
		return Step{}, false
	}
	return d.ResolvedLine.At(d.CurrentStepIndex)
}

// CheckSubmittable validates who and when before a line is resolved.
func (d *Document) CheckSubmittable(actorID string) error {
	if d.AuthorID != actorID {
		return fmt.Errorf("%w: %s cannot submit document %s", ErrNotAuthor, actorID, d.ID)
	}
	_, err := fire(d, EventSubmit)
	return err
}

// Submit freezes line onto the document and starts the workflow.
func (d *Document) Submit(actorID string, line Line, policyID *string, now time.Time) error {
	if d.AuthorID != actorID {
		return fmt.Errorf("%w: %s cannot submit document %s", ErrNotAuthor, actorID, d.ID)
	}
	next, err := fire(d, EventSubmit)
	if err != nil {
		return err
	}
	if line.IsEmpty() {
		return fmt.Errorf("%w: document %s", ErrEmptyLine, d.ID)
	}

	d.ResolvedLine = line
	d.PolicyID = policyID
	d.CurrentStepIndex = 0
	d.Status = next
	d.SubmittedAt = &now
	d.CompletedAt = nil
	d.Version++
	d.UpdatedAt = now
	return nil
}

// Act records decision on the current step and advances or terminates the
// line. The returned action must be persisted together with d.
func (d *Document) Act(actorID string, decision Decision, expectedVersion int64, comment *string, now time.Time) (*ApprovalAction, error) {
	if d.Status != StatusInProgress {
		return nil, fmt.Errorf("%w: document %s is %s", ErrNotInProgress, d.ID, d.Status)
	}
	if expectedVersion != d.Version {
		return nil, fmt.Errorf("%w: document %s is at version %d, expected %d",
			ErrVersionConflict, d.ID, d.Version, expectedVersion)
	}
	step, ok := d.CurrentStep()
	if !ok {
		return nil, fmt.Errorf("%w: document %s has no step at index %d",
			ErrInvalidTransition, d.ID, d.CurrentStepIndex)
	}
	if actorID != step.ApproverID {
		return nil, fmt.Errorf("%w: step %d belongs to %s", ErrNotDesignatedApprover, step.StepOrder, step.ApproverID)
	}

	action := &ApprovalAction{
		DocumentID:      d.ID,
		StepOrder:       step.StepOrder,
		ActorID:         actorID,
		Action:          decision,
		Comment:         comment,
		ActedAt:         now,
		DocumentVersion: d.Version,
	}

	var event string
	switch {
	case decision == DecisionReject:
		event = EventReject
	case decision == DecisionApprove && d.CurrentStepIndex == d.ResolvedLine.Len()-1:
		event = EventApprove
	case decision == DecisionApprove:
		event = EventAdvance
	default:
		return nil, fmt.Errorf("%w: unknown decision %q", ErrInvalidTransition, decision)
	}
	next, err := fire(d, event)
	if err != nil {
		return nil, err
	}

	d.Status = next
	if event == EventAdvance {
		d.CurrentStepIndex++
	} else {
		d.CompletedAt = &now
	}
	d.Version++
	d.UpdatedAt = now
	return action, nil
}

// Recall returns an untouched in-progress document to DRAFT.
func (d *Document) Recall(actorID string, now time.Time) error {
	if d.AuthorID != actorID {
		return fmt.Errorf("%w: %s cannot recall document %s", ErrNotAuthor, actorID, d.ID)
	}
	next, err := fire(d, EventRecall)
	if err != nil {
		return err
	}

	d.ResolvedLine = Line{}
	d.PolicyID = nil
	d.Status = next
	d.CurrentStepIndex = 0
	d.SubmittedAt = nil
	d.Version++
	d.UpdatedAt = now
	return nil
}

// CheckDeletable allows deleting only the author's own drafts.
func (d *Document) CheckDeletable(actorID string) error {
	if d.AuthorID != actorID {
		return fmt.Errorf("%w: %s cannot delete document %s", ErrNotAuthor, actorID, d.ID)
	}
	if d.Status != StatusDraft {
		return fmt.Errorf("%w: delete from %s", ErrInvalidTransition, d.Status)
	}
	return nil
}
