package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-hr-approvals/internal/database"
	"github.com/pesio-ai/be-hr-approvals/internal/domain"
	"github.com/pesio-ai/be-hr-approvals/internal/errors"
)

// DocumentRepository persists documents and, together with them, the
// approval actions that move them along their line. Every write is a
// compare-and-swap on the version column.
type DocumentRepository struct {
	db *database.DB
}

// NewDocumentRepository creates a new DocumentRepository.
func NewDocumentRepository(db *database.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

const documentColumns = `
	id, doc_type, title, author_id, origin_dept_code, status,
	resolved_line, policy_id, current_step_index, version,
	submitted_at, completed_at, created_at, updated_at`

// Create inserts a new DRAFT document.
func (r *DocumentRepository) Create(ctx context.Context, d *domain.Document) error {
	query := `
		INSERT INTO approval_documents
		    (doc_type, title, author_id, origin_dept_code, status, version)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRow(ctx, query,
		d.DocType,
		d.Title,
		d.AuthorID,
		d.OriginDeptCode,
		d.Status,
		d.Version,
	).Scan(&d.ID, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create document")
	}
	return nil
}

// GetByID retrieves a document by primary key.
func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM approval_documents WHERE id = $1`

	d, err := r.scanDocument(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFoundOr(err, "document", id, "failed to get document")
	}
	return d, nil
}

// List returns documents matching filter, newest first.
func (r *DocumentRepository) List(ctx context.Context, filter domain.DocumentFilter) ([]*domain.Document, error) {
	var (
		conds []string
		args  []any
	)
	if filter.Status != "" {
		args = append(args, filter.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.AuthorID != "" {
		args = append(args, filter.AuthorID)
		conds = append(conds, fmt.Sprintf("author_id = $%d", len(args)))
	}
	if filter.DocType != "" {
		args = append(args, filter.DocType)
		conds = append(conds, fmt.Sprintf("doc_type = $%d", len(args)))
	}

	query := `SELECT ` + documentColumns + ` FROM approval_documents`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, id ASC"

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list documents")
	}
	defer rows.Close()

	return r.scanDocuments(rows)
}

// ListPendingFor returns in-progress documents whose current step belongs to
// approverID, oldest submission first.
func (r *DocumentRepository) ListPendingFor(ctx context.Context, approverID string) ([]*domain.Document, error) {
	query := `
		SELECT ` + documentColumns + `
		FROM approval_documents
		WHERE status = 'IN_PROGRESS'
		  AND resolved_line -> current_step_index ->> 'approverId' = $1
		ORDER BY submitted_at ASC NULLS LAST, id ASC
	`

	rows, err := r.db.Query(ctx, query, approverID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list pending documents")
	}
	defer rows.Close()

	return r.scanDocuments(rows)
}

// CountByStatus aggregates documents per status.
func (r *DocumentRepository) CountByStatus(ctx context.Context) (map[domain.Status]int64, error) {
	rows, err := r.db.Query(ctx, `SELECT status, COUNT(*) FROM approval_documents GROUP BY status`)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to count documents")
	}
	defer rows.Close()

	counts := make(map[domain.Status]int64, len(domain.Statuses))
	for rows.Next() {
		var (
			status string
			n      int64
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan document count")
		}
		counts[domain.Status(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to count documents")
	}
	return counts, nil
}

// Update writes d if the stored version still equals expectedVersion.
func (r *DocumentRepository) Update(ctx context.Context, d *domain.Document, expectedVersion int64) error {
	err := r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		return r.compareAndSwap(ctx, tx, d, expectedVersion)
	})
	return notFoundOr(err, "document", d.ID, "failed to update document")
}

// UpdateWithAction writes d and appends action atomically. Losing the
// version race, or finding an action already recorded for the step, yields
// ErrVersionConflict and leaves both tables untouched.
func (r *DocumentRepository) UpdateWithAction(ctx context.Context, d *domain.Document, expectedVersion int64, action *domain.ApprovalAction) error {
	err := r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		if err := r.compareAndSwap(ctx, tx, d, expectedVersion); err != nil {
			return err
		}

		query := `
			INSERT INTO approval_actions
			    (document_id, step_order, actor_id, action, comment, acted_at, document_version)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id
		`
		return tx.QueryRow(ctx, query,
			action.DocumentID,
			action.StepOrder,
			action.ActorID,
			action.Action,
			action.Comment,
			action.ActedAt,
			action.DocumentVersion,
		).Scan(&action.ID)
	})
	if isUniqueViolation(err, "") {
		return fmt.Errorf("%w: step %d of document %s already decided",
			domain.ErrVersionConflict, action.StepOrder, d.ID)
	}
	return notFoundOr(err, "document", d.ID, "failed to record approval action")
}

// Delete removes a DRAFT document at expectedVersion.
func (r *DocumentRepository) Delete(ctx context.Context, id string, expectedVersion int64) error {
	err := r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			DELETE FROM approval_documents
			WHERE id = $1 AND version = $2 AND status = 'DRAFT'
		`, id, expectedVersion)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return r.conflictOrNotFound(ctx, tx, id)
		}
		return nil
	})
	return notFoundOr(err, "document", id, "failed to delete document")
}

func (r *DocumentRepository) compareAndSwap(ctx context.Context, tx pgx.Tx, d *domain.Document, expectedVersion int64) error {
	var lineJSON []byte
	if !d.ResolvedLine.IsEmpty() {
		var err error
		lineJSON, err = json.Marshal(d.ResolvedLine)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal resolved line")
		}
	}

	query := `
		UPDATE approval_documents
		SET status             = $3,
		    resolved_line      = $4,
		    policy_id          = $5,
		    current_step_index = $6,
		    version            = $7,
		    submitted_at       = $8,
		    completed_at       = $9,
		    updated_at         = $10
		WHERE id = $1 AND version = $2
	`

	tag, err := tx.Exec(ctx, query,
		d.ID,
		expectedVersion,
		d.Status,
		lineJSON,
		d.PolicyID,
		d.CurrentStepIndex,
		d.Version,
		d.SubmittedAt,
		d.CompletedAt,
		d.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.conflictOrNotFound(ctx, tx, d.ID)
	}
	return nil
}

func (r *DocumentRepository) conflictOrNotFound(ctx context.Context, tx pgx.Tx, id string) error {
	var version int64
	var status string
	err := tx.QueryRow(ctx, `SELECT version, status FROM approval_documents WHERE id = $1`, id).Scan(&version, &status)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: document %s is now at version %d (%s)", domain.ErrVersionConflict, id, version, status)
}

// ── scan helpers ─────────────────────────────────────────────────────────────

func (r *DocumentRepository) scanDocument(row rowScanner) (*domain.Document, error) {
	d := &domain.Document{}
	var (
		status   string
		lineJSON []byte
	)

	err := row.Scan(
		&d.ID,
		&d.DocType,
		&d.Title,
		&d.AuthorID,
		&d.OriginDeptCode,
		&status,
		&lineJSON,
		&d.PolicyID,
		&d.CurrentStepIndex,
		&d.Version,
		&d.SubmittedAt,
		&d.CompletedAt,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	d.Status = domain.Status(status)

	if lineJSON != nil {
		if err := json.Unmarshal(lineJSON, &d.ResolvedLine); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to unmarshal resolved line")
		}
	}
	return d, nil
}

func (r *DocumentRepository) scanDocuments(rows pgx.Rows) ([]*domain.Document, error) {
	var docs []*domain.Document
	for rows.Next() {
		d, err := r.scanDocument(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan document")
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to read documents")
	}
	return docs, nil
}
