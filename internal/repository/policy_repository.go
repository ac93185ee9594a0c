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

// PolicyRepository persists approval-line policies in approval_policies.
// Every state-changing method runs in one transaction holding row locks on
// the affected policies, and the partial unique index on (doc_type, scope)
// WHERE active is the last line of defence against double activation.
type PolicyRepository struct {
	db *database.DB
}

// NewPolicyRepository creates a new PolicyRepository.
func NewPolicyRepository(db *database.DB) *PolicyRepository {
	return &PolicyRepository{db: db}
}

const policyColumns = `id, policy_name, doc_type, scope, active, steps, created_at, updated_at`

// Create inserts a new, inactive policy.
func (r *PolicyRepository) Create(ctx context.Context, p *domain.Policy) error {
	stepsJSON, err := json.Marshal(p.Steps)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal policy steps")
	}

	query := `
		INSERT INTO approval_policies (policy_name, doc_type, scope, active, steps)
		VALUES ($1, $2, $3, FALSE, $4)
		RETURNING id, active, created_at, updated_at
	`

	err = r.db.QueryRow(ctx, query, p.PolicyName, p.DocType, p.Scope, stepsJSON).
		Scan(&p.ID, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create approval policy")
	}
	return nil
}

// GetByID retrieves a policy by primary key.
func (r *PolicyRepository) GetByID(ctx context.Context, id string) (*domain.Policy, error) {
	query := `SELECT ` + policyColumns + ` FROM approval_policies WHERE id = $1`

	p, err := r.scanPolicy(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFoundOr(err, "approval_policy", id, "failed to get approval policy")
	}
	return p, nil
}

// List returns policies matching filter ordered by doc type, scope and name.
func (r *PolicyRepository) List(ctx context.Context, filter domain.PolicyFilter) ([]*domain.Policy, error) {
	var (
		conds []string
		args  []any
	)
	if filter.DocType != "" {
		args = append(args, filter.DocType)
		conds = append(conds, fmt.Sprintf("doc_type = $%d", len(args)))
	}
	if filter.Scope != nil {
		args = append(args, *filter.Scope)
		conds = append(conds, fmt.Sprintf("scope = $%d", len(args)))
	}
	if filter.ActiveOnly {
		conds = append(conds, "active = TRUE")
	}

	query := `SELECT ` + policyColumns + ` FROM approval_policies`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY doc_type ASC, scope ASC, policy_name ASC, created_at ASC"

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list approval policies")
	}
	defer rows.Close()

	return r.scanPolicies(rows)
}

// FindActive returns every active policy for a key. Callers treat more than
// one result as an invariant violation.
func (r *PolicyRepository) FindActive(ctx context.Context, docType, scope string) ([]*domain.Policy, error) {
	query := `
		SELECT ` + policyColumns + `
		FROM approval_policies
		WHERE doc_type = $1 AND scope = $2 AND active = TRUE
		ORDER BY created_at ASC
	`

	rows, err := r.db.Query(ctx, query, docType, scope)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to find active approval policy")
	}
	defer rows.Close()

	return r.scanPolicies(rows)
}

// UpdateSteps replaces the steps of an inactive policy.
func (r *PolicyRepository) UpdateSteps(ctx context.Context, id string, steps domain.Line) (*domain.Policy, error) {
	stepsJSON, err := json.Marshal(steps)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal policy steps")
	}

	var updated *domain.Policy
	err = r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		p, err := r.lockPolicy(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := domain.CheckEditable(p); err != nil {
			return err
		}

		query := `
			UPDATE approval_policies
			SET steps = $2, updated_at = NOW()
			WHERE id = $1
			RETURNING ` + policyColumns
		updated, err = r.scanPolicy(tx.QueryRow(ctx, query, id, stepsJSON))
		return err
	})
	if err != nil {
		return nil, notFoundOr(err, "approval_policy", id, "failed to update policy steps")
	}
	return updated, nil
}

// Activate marks a policy active after checking the key is free.
func (r *PolicyRepository) Activate(ctx context.Context, id string) (*domain.Policy, error) {
	var activated *domain.Policy
	err := r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		p, err := r.lockPolicy(ctx, tx, id)
		if err != nil {
			return err
		}
		active, err := r.lockActive(ctx, tx, p.DocType, p.Scope)
		if err != nil {
			return err
		}
		if err := domain.CheckActivation(p, active); err != nil {
			return err
		}
		if p.Active {
			activated = p
			return nil
		}
		activated, err = r.setActive(ctx, tx, id, true)
		return err
	})
	if isUniqueViolation(err, activePolicyIndexName) {
		return nil, fmt.Errorf("%w: concurrent activation for policy %s", domain.ErrDuplicateActiveScope, id)
	}
	if err != nil {
		return nil, notFoundOr(err, "approval_policy", id, "failed to activate approval policy")
	}
	return activated, nil
}

// Deactivate marks a policy inactive. Deactivating an inactive policy is a
// no-op.
func (r *PolicyRepository) Deactivate(ctx context.Context, id string) (*domain.Policy, error) {
	query := `
		UPDATE approval_policies
		SET active = FALSE,
		    updated_at = CASE WHEN active THEN NOW() ELSE updated_at END
		WHERE id = $1
		RETURNING ` + policyColumns

	p, err := r.scanPolicy(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFoundOr(err, "approval_policy", id, "failed to deactivate approval policy")
	}
	return p, nil
}

// Swap deactivates outgoing and activates incoming in one transaction so no
// reader ever sees two active policies, or none, for their shared key.
func (r *PolicyRepository) Swap(ctx context.Context, outgoingID, incomingID string) (*domain.Policy, error) {
	var activated *domain.Policy
	err := r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		// Lock both rows in id order so concurrent swaps cannot deadlock.
		rows, err := tx.Query(ctx, `
			SELECT `+policyColumns+`
			FROM approval_policies
			WHERE id = ANY($1::uuid[])
			ORDER BY id
			FOR UPDATE
		`, []string{outgoingID, incomingID})
		if err != nil {
			return err
		}
		locked, err := r.scanPolicies(rows)
		rows.Close()
		if err != nil {
			return err
		}

		var outgoing, incoming *domain.Policy
		for _, p := range locked {
			switch p.ID {
			case outgoingID:
				outgoing = p
			case incomingID:
				incoming = p
			}
		}
		if outgoing == nil {
			return errors.NotFound("approval_policy", outgoingID)
		}
		if incoming == nil {
			return errors.NotFound("approval_policy", incomingID)
		}

		active, err := r.lockActive(ctx, tx, incoming.DocType, incoming.Scope)
		if err != nil {
			return err
		}
		if err := domain.CheckSwap(outgoing, incoming, active); err != nil {
			return err
		}

		if _, err := r.setActive(ctx, tx, outgoingID, false); err != nil {
			return err
		}
		activated, err = r.setActive(ctx, tx, incomingID, true)
		return err
	})
	if isUniqueViolation(err, activePolicyIndexName) {
		return nil, fmt.Errorf("%w: concurrent activation for policy %s", domain.ErrDuplicateActiveScope, incomingID)
	}
	if err != nil {
		return nil, notFoundOr(err, "approval_policy", incomingID, "failed to swap approval policies")
	}
	return activated, nil
}

// Delete hard-removes an inactive policy. Documents keep their frozen lines.
func (r *PolicyRepository) Delete(ctx context.Context, id string) error {
	err := r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		p, err := r.lockPolicy(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := domain.CheckDeletable(p); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `DELETE FROM approval_policies WHERE id = $1`, id)
		return err
	})
	return notFoundOr(err, "approval_policy", id, "failed to delete approval policy")
}

// ── transaction helpers ──────────────────────────────────────────────────────

func (r *PolicyRepository) lockPolicy(ctx context.Context, tx pgx.Tx, id string) (*domain.Policy, error) {
	query := `SELECT ` + policyColumns + ` FROM approval_policies WHERE id = $1 FOR UPDATE`
	p, err := r.scanPolicy(tx.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFoundOr(err, "approval_policy", id, "failed to lock approval policy")
	}
	return p, nil
}

func (r *PolicyRepository) lockActive(ctx context.Context, tx pgx.Tx, docType, scope string) ([]*domain.Policy, error) {
	rows, err := tx.Query(ctx, `
		SELECT `+policyColumns+`
		FROM approval_policies
		WHERE doc_type = $1 AND scope = $2 AND active = TRUE
		ORDER BY id
		FOR UPDATE
	`, docType, scope)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.scanPolicies(rows)
}

func (r *PolicyRepository) setActive(ctx context.Context, tx pgx.Tx, id string, active bool) (*domain.Policy, error) {
	query := `
		UPDATE approval_policies
		SET active = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + policyColumns
	return r.scanPolicy(tx.QueryRow(ctx, query, id, active))
}

// ── scan helpers ─────────────────────────────────────────────────────────────

func (r *PolicyRepository) scanPolicy(row rowScanner) (*domain.Policy, error) {
	p := &domain.Policy{}
	var stepsJSON []byte

	err := row.Scan(
		&p.ID,
		&p.PolicyName,
		&p.DocType,
		&p.Scope,
		&p.Active,
		&stepsJSON,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(stepsJSON, &p.Steps); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to unmarshal policy steps")
	}
	return p, nil
}

func (r *PolicyRepository) scanPolicies(rows pgx.Rows) ([]*domain.Policy, error) {
	var policies []*domain.Policy
	for rows.Next() {
		p, err := r.scanPolicy(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan approval policy")
		}
		policies = append(policies, p)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to read approval policies")
	}
	return policies, nil
}
