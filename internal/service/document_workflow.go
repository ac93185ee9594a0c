package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/pesio-ai/be-hr-approvals/internal/domain"
	"github.com/pesio-ai/be-hr-approvals/internal/errors"
	"github.com/pesio-ai/be-hr-approvals/internal/logger"
	"github.com/pesio-ai/be-hr-approvals/internal/telemetry"
)

// DocumentWorkflow drives documents from DRAFT through their approval line
// to a terminal state.
type DocumentWorkflow struct {
	documents DocumentStore
	actions   ActionStore
	resolver  *LineResolver
	tracker   *StepTracker
	publisher NotificationPublisherInterface
	log       *logger.Logger
	now       func() time.Time
}

// NewDocumentWorkflow creates a new DocumentWorkflow. publisher may be nil.
func NewDocumentWorkflow(
	documents DocumentStore,
	actions ActionStore,
	resolver *LineResolver,
	tracker *StepTracker,
	publisher NotificationPublisherInterface,
	log *logger.Logger,
) *DocumentWorkflow {
	if publisher == nil {
		publisher = noopPublisher{}
	}
	return &DocumentWorkflow{
		documents: documents,
		actions:   actions,
		resolver:  resolver,
		tracker:   tracker,
		publisher: publisher,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CreateDocumentRequest describes a new draft.
type CreateDocumentRequest struct {
	DocType        string `json:"docType"`
	Title          string `json:"title"`
	OriginDeptCode string `json:"originDeptCode"`
}

// SubmitRequest starts the approval workflow. ExpectedVersion 0 skips the
// version check. A non-empty ManualLine bypasses policy resolution.
type SubmitRequest struct {
	ExpectedVersion int64         `json:"expectedVersion"`
	ManualLine      []domain.Step `json:"manualLine,omitempty"`
}

// ── Draft lifecycle ──────────────────────────────────────────────────────────

// Create stores a new DRAFT document authored by actorID.
func (s *DocumentWorkflow) Create(ctx context.Context, actorID string, req *CreateDocumentRequest) (*domain.Document, error) {
	if err := requireActor(actorID); err != nil {
		return nil, err
	}
	docType := strings.TrimSpace(req.DocType)
	if docType == "" {
		return nil, errors.InvalidInput("docType", "document type is required")
	}

	doc := domain.NewDocument(docType, strings.TrimSpace(req.Title), actorID, strings.TrimSpace(req.OriginDeptCode), s.now())
	if err := s.documents.Create(ctx, doc); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("document_id", doc.ID).
		Str("doc_type", doc.DocType).
		Str("author_id", actorID).
		Msg("Document created")
	return doc, nil
}

// Delete removes the author's own draft.
func (s *DocumentWorkflow) Delete(ctx context.Context, documentID, actorID string) error {
	if err := requireActor(actorID); err != nil {
		return err
	}
	doc, err := s.documents.GetByID(ctx, documentID)
	if err != nil {
		return err
	}
	if err := doc.CheckDeletable(actorID); err != nil {
		return err
	}
	if err := s.documents.Delete(ctx, documentID, doc.Version); err != nil {
		return err
	}

	s.log.Info().Str("document_id", documentID).Msg("Document deleted")
	return nil
}

// ── Transitions ──────────────────────────────────────────────────────────────

// Submit freezes an approval line onto a DRAFT document and moves it to
// IN_PROGRESS. When no policy matches the document stays DRAFT and
// ErrNoMatchingPolicy is returned.
func (s *DocumentWorkflow) Submit(ctx context.Context, documentID, actorID string, req *SubmitRequest) (doc *domain.Document, err error) {
	ctx, span := telemetry.Start(ctx, "DocumentWorkflow.Submit", attribute.String("document_id", documentID))
	defer func() { telemetry.End(span, err) }()

	if err := requireActor(actorID); err != nil {
		return nil, err
	}
	if req == nil {
		req = &SubmitRequest{}
	}

	doc, err = s.documents.GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if req.ExpectedVersion != 0 && req.ExpectedVersion != doc.Version {
		return nil, fmt.Errorf("%w: document %s is at version %d, expected %d",
			domain.ErrVersionConflict, doc.ID, doc.Version, req.ExpectedVersion)
	}
	if err := doc.CheckSubmittable(actorID); err != nil {
		return nil, err
	}

	var (
		line     domain.Line
		policyID *string
	)
	if len(req.ManualLine) > 0 {
		line, err = domain.NewLine(req.ManualLine)
		if err != nil {
			return nil, err
		}
	} else {
		res, err := s.resolver.Resolve(ctx, doc.DocType, doc.OriginDeptCode)
		if err != nil {
			return nil, err
		}
		line = res.Line
		policyID = &res.PolicyID
	}

	prev := doc.Version
	if err := doc.Submit(actorID, line, policyID, s.now()); err != nil {
		return nil, err
	}
	if err := s.documents.Update(ctx, doc, prev); err != nil {
		return nil, err
	}

	ev := s.log.Info().
		Str("document_id", doc.ID).
		Int("steps", line.Len()).
		Int64("version", doc.Version).
		Bool("manual_line", policyID == nil)
	if policyID != nil {
		ev = ev.Str("policy_id", *policyID)
	}
	ev.Msg("Document submitted")

	payload := map[string]any{"title": doc.Title, "doc_type": doc.DocType, "steps": line.Len()}
	s.publisher.PublishDocumentEvent(ctx, EventDocumentSubmitted, doc, actorID, []string{doc.AuthorID}, payload)
	if first, ok := doc.CurrentStep(); ok {
		s.publisher.PublishDocumentEvent(ctx, EventApprovalRequired, doc, actorID, []string{first.ApproverID},
			map[string]any{"title": doc.Title, "doc_type": doc.DocType, "step_order": first.StepOrder})
	}
	return doc, nil
}

// Act records an approver's decision. See StepTracker.Act.
func (s *DocumentWorkflow) Act(ctx context.Context, documentID, actorID string, req *ActRequest) (*domain.Document, *domain.ApprovalAction, error) {
	return s.tracker.Act(ctx, documentID, actorID, req)
}

// Recall returns an in-progress document nobody has acted on yet to DRAFT.
func (s *DocumentWorkflow) Recall(ctx context.Context, documentID, actorID string) (doc *domain.Document, err error) {
	ctx, span := telemetry.Start(ctx, "DocumentWorkflow.Recall", attribute.String("document_id", documentID))
	defer func() { telemetry.End(span, err) }()

	if err := requireActor(actorID); err != nil {
		return nil, err
	}
	doc, err = s.documents.GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}

	waiting, hadStep := doc.CurrentStep()
	prev := doc.Version
	if err := doc.Recall(actorID, s.now()); err != nil {
		return nil, err
	}
	if err := s.documents.Update(ctx, doc, prev); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("document_id", doc.ID).
		Int64("version", doc.Version).
		Msg("Document recalled")

	if hadStep {
		s.publisher.PublishDocumentEvent(ctx, EventDocumentRecalled, doc, actorID, []string{waiting.ApproverID},
			map[string]any{"title": doc.Title, "doc_type": doc.DocType})
	}
	return doc, nil
}

// ── Queries ──────────────────────────────────────────────────────────────────

// Get returns one document.
func (s *DocumentWorkflow) Get(ctx context.Context, documentID string) (*domain.Document, error) {
	return s.documents.GetByID(ctx, documentID)
}

// List returns documents matching filter.
func (s *DocumentWorkflow) List(ctx context.Context, filter domain.DocumentFilter) ([]*domain.Document, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, errors.InvalidInput("status", fmt.Sprintf("unknown status %q", filter.Status))
	}
	return s.documents.List(ctx, filter)
}

// History returns the approval log of a document in step order.
func (s *DocumentWorkflow) History(ctx context.Context, documentID string) ([]*domain.ApprovalAction, error) {
	if _, err := s.documents.GetByID(ctx, documentID); err != nil {
		return nil, err
	}
	return s.actions.ListByDocument(ctx, documentID)
}

// Pending returns the documents currently waiting on approverID.
func (s *DocumentWorkflow) Pending(ctx context.Context, approverID string) ([]*domain.Document, error) {
	if err := requireActor(approverID); err != nil {
		return nil, err
	}
	return s.documents.ListPendingFor(ctx, approverID)
}

// Summary counts documents by status.
func (s *DocumentWorkflow) Summary(ctx context.Context) (domain.Summary, error) {
	counts, err := s.documents.CountByStatus(ctx)
	if err != nil {
		return domain.Summary{}, err
	}
	return domain.NewSummary(counts), nil
}

func requireActor(actorID string) error {
	if strings.TrimSpace(actorID) == "" {
		return errors.New(errors.ErrCodeUnauthorized, "actor identity is required")
	}
	return nil
}
