package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-hr-approvals/internal/database"
	"github.com/pesio-ai/be-hr-approvals/internal/domain"
	"github.com/pesio-ai/be-hr-approvals/internal/errors"
)

// ApprovalActionRepository reads the append-only approval log. Appends go
// through DocumentRepository.UpdateWithAction so they share the document's
// transaction; the table itself rejects UPDATE and DELETE via trigger.
type ApprovalActionRepository struct {
	db *database.DB
}

// NewApprovalActionRepository creates a new ApprovalActionRepository.
func NewApprovalActionRepository(db *database.DB) *ApprovalActionRepository {
	return &ApprovalActionRepository{db: db}
}

// ListByDocument returns a document's actions ordered by step.
func (r *ApprovalActionRepository) ListByDocument(ctx context.Context, documentID string) ([]*domain.ApprovalAction, error) {
	query := `
		SELECT id, document_id, step_order, actor_id, action,
		       comment, acted_at, document_version
		FROM approval_actions
		WHERE document_id = $1
		ORDER BY step_order ASC
	`

	rows, err := r.db.Query(ctx, query, documentID)
	if err != nil {
		return nil, notFoundOr(err, "document", documentID, "failed to get approval actions")
	}
	defer rows.Close()

	return r.scanRows(rows, documentID)
}

// ── scan helpers ──────────────────────────────────────────────────────────────

func (r *ApprovalActionRepository) scanRows(rows pgx.Rows, documentID string) ([]*domain.ApprovalAction, error) {
	var actions []*domain.ApprovalAction
	for rows.Next() {
		a := &domain.ApprovalAction{}
		var action string
		err := rows.Scan(
			&a.ID,
			&a.DocumentID,
			&a.StepOrder,
			&a.ActorID,
			&action,
			&a.Comment,
			&a.ActedAt,
			&a.DocumentVersion,
		)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan approval action")
		}
		a.Action = domain.Decision(action)
		actions = append(actions, a)
	}
	if err := rows.Err(); err != nil {
		return nil, notFoundOr(err, "document", documentID, "failed to read approval actions")
	}
	return actions, nil
}
