package service

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/pesio-ai/be-hr-approvals/internal/domain"
	"github.com/pesio-ai/be-hr-approvals/internal/errors"
	"github.com/pesio-ai/be-hr-approvals/internal/logger"
	"github.com/pesio-ai/be-hr-approvals/internal/telemetry"
)

// StepTracker records decisions against the current step of an in-progress
// document and moves the step pointer.
type StepTracker struct {
	documents DocumentStore
	publisher NotificationPublisherInterface
	log       *logger.Logger
	now       func() time.Time
}

// NewStepTracker creates a new StepTracker. publisher may be nil.
func NewStepTracker(documents DocumentStore, publisher NotificationPublisherInterface, log *logger.Logger) *StepTracker {
	if publisher == nil {
		publisher = noopPublisher{}
	}
	return &StepTracker{
		documents: documents,
		publisher: publisher,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ActRequest is an approver's decision on the current step.
type ActRequest struct {
	Decision        domain.Decision `json:"decision"`
	ExpectedVersion int64           `json:"expectedVersion"`
	Comment         *string         `json:"comment,omitempty"`
}

// Act applies req to the document. The document update and the action log
// entry commit together or not at all; a concurrent writer that got there
// first makes this call fail with ErrVersionConflict.
func (s *StepTracker) Act(ctx context.Context, documentID, actorID string, req *ActRequest) (doc *domain.Document, action *domain.ApprovalAction, err error) {
	ctx, span := telemetry.Start(ctx, "StepTracker.Act",
		attribute.String("document_id", documentID),
		attribute.String("decision", string(req.Decision)))
	defer func() { telemetry.End(span, err) }()

	if err := requireActor(actorID); err != nil {
		return nil, nil, err
	}
	if !req.Decision.Valid() {
		return nil, nil, errors.InvalidInput("decision", "decision must be APPROVE or REJECT")
	}

	doc, err = s.documents.GetByID(ctx, documentID)
	if err != nil {
		return nil, nil, err
	}

	action, err = doc.Act(actorID, req.Decision, req.ExpectedVersion, normalizeComment(req.Comment), s.now())
	if err != nil {
		return nil, nil, err
	}
	if err := s.documents.UpdateWithAction(ctx, doc, req.ExpectedVersion, action); err != nil {
		return nil, nil, err
	}

	s.log.Info().
		Str("document_id", doc.ID).
		Int("step_order", action.StepOrder).
		Str("actor_id", actorID).
		Str("decision", string(action.Action)).
		Str("status", string(doc.Status)).
		Int64("version", doc.Version).
		Msg("Approval step decided")

	s.notify(ctx, doc, action)
	return doc, action, nil
}

// notify runs after commit; failures never reach the caller.
func (s *StepTracker) notify(ctx context.Context, doc *domain.Document, action *domain.ApprovalAction) {
	payload := map[string]any{
		"step_order": action.StepOrder,
		"title":      doc.Title,
		"doc_type":   doc.DocType,
	}
	switch doc.Status {
	case domain.StatusApproved:
		s.publisher.PublishDocumentEvent(ctx, EventDocumentApproved, doc, action.ActorID, []string{doc.AuthorID}, payload)
	case domain.StatusRejected:
		if action.Comment != nil {
			payload["reason"] = *action.Comment
		}
		s.publisher.PublishDocumentEvent(ctx, EventDocumentRejected, doc, action.ActorID, []string{doc.AuthorID}, payload)
	case domain.StatusInProgress:
		if next, ok := doc.CurrentStep(); ok {
			payload["step_order"] = next.StepOrder
			s.publisher.PublishDocumentEvent(ctx, EventApprovalRequired, doc, action.ActorID, []string{next.ApproverID}, payload)
		}
	}
}

func normalizeComment(c *string) *string {
	if c == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*c)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
