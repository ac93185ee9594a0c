package service

import (
	"context"

	"github.com/pesio-ai/be-hr-approvals/internal/domain"
)

// PolicyStore persists approval-line policies. Activate, Swap, UpdateSteps
// and Delete re-check their invariants inside the store's own transaction.
type PolicyStore interface {
	Create(ctx context.Context, p *domain.Policy) error
	GetByID(ctx context.Context, id string) (*domain.Policy, error)
	List(ctx context.Context, filter domain.PolicyFilter) ([]*domain.Policy, error)
	FindActive(ctx context.Context, docType, scope string) ([]*domain.Policy, error)
	UpdateSteps(ctx context.Context, id string, steps domain.Line) (*domain.Policy, error)
	Activate(ctx context.Context, id string) (*domain.Policy, error)
	Deactivate(ctx context.Context, id string) (*domain.Policy, error)
	Swap(ctx context.Context, outgoingID, incomingID string) (*domain.Policy, error)
	Delete(ctx context.Context, id string) error
}

// DocumentStore persists documents with compare-and-swap on version.
type DocumentStore interface {
	Create(ctx context.Context, d *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	List(ctx context.Context, filter domain.DocumentFilter) ([]*domain.Document, error)
	ListPendingFor(ctx context.Context, approverID string) ([]*domain.Document, error)
	CountByStatus(ctx context.Context) (map[domain.Status]int64, error)
	Update(ctx context.Context, d *domain.Document, expectedVersion int64) error
	UpdateWithAction(ctx context.Context, d *domain.Document, expectedVersion int64, action *domain.ApprovalAction) error
	Delete(ctx context.Context, id string, expectedVersion int64) error
}

// ActionStore reads the approval log.
type ActionStore interface {
	ListByDocument(ctx context.Context, documentID string) ([]*domain.ApprovalAction, error)
}

// Employee is the directory's current view of a person.
type Employee struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	DeptCode     string `json:"deptCode"`
	PositionCode string `json:"positionCode"`
}

// DirectoryClientInterface looks up employees and the department tree in
// the HR service.
type DirectoryClientInterface interface {
	GetEmployee(ctx context.Context, employeeID string) (*Employee, error)
	// GetDepartmentAncestors returns the parent chain of deptCode, nearest
	// first, excluding deptCode itself.
	GetDepartmentAncestors(ctx context.Context, deptCode string) ([]string, error)
}

// Event types published after a committed transition.
const (
	EventDocumentSubmitted = "document_submitted"
	EventApprovalRequired  = "approval_required"
	EventDocumentApproved  = "document_approved"
	EventDocumentRejected  = "document_rejected"
	EventDocumentRecalled  = "document_recalled"
)

// NotificationPublisherInterface publishes workflow events. Implementations
// never fail the caller.
type NotificationPublisherInterface interface {
	PublishDocumentEvent(ctx context.Context, eventType string, doc *domain.Document, actorID string, recipients []string, payload map[string]any)
}

type noopPublisher struct{}

func (noopPublisher) PublishDocumentEvent(context.Context, string, *domain.Document, string, []string, map[string]any) {
}
