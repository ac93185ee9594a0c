package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pesio-ai/be-hr-approvals/internal/domain"
	"github.com/pesio-ai/be-hr-approvals/internal/errors"
)

// MemoryDB is an in-process store shared by the memory repositories. A
// single mutex serialises writers, which gives every method the same
// all-or-nothing behaviour the PostgreSQL transactions provide.
type MemoryDB struct {
	mu        sync.RWMutex
	policies  map[string]*domain.Policy
	documents map[string]*domain.Document
	actions   map[string][]*domain.ApprovalAction
	now       func() time.Time
}

// NewMemoryDB creates an empty store.
func NewMemoryDB() *MemoryDB {
	return &MemoryDB{
		policies:  make(map[string]*domain.Policy),
		documents: make(map[string]*domain.Document),
		actions:   make(map[string][]*domain.ApprovalAction),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func clonePolicy(p *domain.Policy) *domain.Policy {
	cp := *p
	return &cp
}

func cloneAction(a *domain.ApprovalAction) *domain.ApprovalAction {
	cp := *a
	if a.Comment != nil {
		c := *a.Comment
		cp.Comment = &c
	}
	return &cp
}

// ── policies ─────────────────────────────────────────────────────────────────

// MemoryPolicyRepository is the in-memory counterpart of PolicyRepository.
type MemoryPolicyRepository struct {
	db *MemoryDB
}

// NewMemoryPolicyRepository creates a policy repository over db.
func NewMemoryPolicyRepository(db *MemoryDB) *MemoryPolicyRepository {
	return &MemoryPolicyRepository{db: db}
}

func (r *MemoryPolicyRepository) Create(_ context.Context, p *domain.Policy) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	now := r.db.now()
	p.ID = uuid.NewString()
	p.Active = false
	p.CreatedAt = now
	p.UpdatedAt = now
	r.db.policies[p.ID] = clonePolicy(p)
	return nil
}

func (r *MemoryPolicyRepository) GetByID(_ context.Context, id string) (*domain.Policy, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	p, ok := r.db.policies[id]
	if !ok {
		return nil, errors.NotFound("approval_policy", id)
	}
	return clonePolicy(p), nil
}

func (r *MemoryPolicyRepository) List(_ context.Context, filter domain.PolicyFilter) ([]*domain.Policy, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	var out []*domain.Policy
	for _, p := range r.db.policies {
		if filter.DocType != "" && p.DocType != filter.DocType {
			continue
		}
		if filter.Scope != nil && p.Scope != *filter.Scope {
			continue
		}
		if filter.ActiveOnly && !p.Active {
			continue
		}
		out = append(out, clonePolicy(p))
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.DocType != b.DocType {
			return a.DocType < b.DocType
		}
		if a.Scope != b.Scope {
			return a.Scope < b.Scope
		}
		if a.PolicyName != b.PolicyName {
			return a.PolicyName < b.PolicyName
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
	return out, nil
}

func (r *MemoryPolicyRepository) FindActive(_ context.Context, docType, scope string) ([]*domain.Policy, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	var out []*domain.Policy
	for _, p := range r.activeLocked(docType, scope) {
		out = append(out, clonePolicy(p))
	}
	return out, nil
}

func (r *MemoryPolicyRepository) UpdateSteps(_ context.Context, id string, steps domain.Line) (*domain.Policy, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	p, ok := r.db.policies[id]
	if !ok {
		return nil, errors.NotFound("approval_policy", id)
	}
	if err := domain.CheckEditable(p); err != nil {
		return nil, err
	}
	updated := clonePolicy(p)
	updated.Steps = steps
	updated.UpdatedAt = r.db.now()
	r.db.policies[id] = updated
	return clonePolicy(updated), nil
}

func (r *MemoryPolicyRepository) Activate(_ context.Context, id string) (*domain.Policy, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	p, ok := r.db.policies[id]
	if !ok {
		return nil, errors.NotFound("approval_policy", id)
	}
	if err := domain.CheckActivation(p, r.activeLocked(p.DocType, p.Scope)); err != nil {
		return nil, err
	}
	if !p.Active {
		updated := clonePolicy(p)
		updated.Active = true
		updated.UpdatedAt = r.db.now()
		r.db.policies[id] = updated
		p = updated
	}
	return clonePolicy(p), nil
}

func (r *MemoryPolicyRepository) Deactivate(_ context.Context, id string) (*domain.Policy, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	p, ok := r.db.policies[id]
	if !ok {
		return nil, errors.NotFound("approval_policy", id)
	}
	if p.Active {
		updated := clonePolicy(p)
		updated.Active = false
		updated.UpdatedAt = r.db.now()
		r.db.policies[id] = updated
		p = updated
	}
	return clonePolicy(p), nil
}

func (r *MemoryPolicyRepository) Swap(_ context.Context, outgoingID, incomingID string) (*domain.Policy, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	outgoing, ok := r.db.policies[outgoingID]
	if !ok {
		return nil, errors.NotFound("approval_policy", outgoingID)
	}
	incoming, ok := r.db.policies[incomingID]
	if !ok {
		return nil, errors.NotFound("approval_policy", incomingID)
	}
	if err := domain.CheckSwap(outgoing, incoming, r.activeLocked(incoming.DocType, incoming.Scope)); err != nil {
		return nil, err
	}

	now := r.db.now()
	off := clonePolicy(outgoing)
	off.Active = false
	off.UpdatedAt = now
	on := clonePolicy(incoming)
	on.Active = true
	on.UpdatedAt = now
	r.db.policies[outgoingID] = off
	r.db.policies[incomingID] = on
	return clonePolicy(on), nil
}

func (r *MemoryPolicyRepository) Delete(_ context.Context, id string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	p, ok := r.db.policies[id]
	if !ok {
		return errors.NotFound("approval_policy", id)
	}
	if err := domain.CheckDeletable(p); err != nil {
		return err
	}
	delete(r.db.policies, id)
	return nil
}

func (r *MemoryPolicyRepository) activeLocked(docType, scope string) []*domain.Policy {
	var out []*domain.Policy
	for _, p := range r.db.policies {
		if p.Active && p.DocType == docType && p.Scope == scope {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// ── documents ────────────────────────────────────────────────────────────────

// MemoryDocumentRepository is the in-memory counterpart of DocumentRepository.
type MemoryDocumentRepository struct {
	db *MemoryDB
}

// NewMemoryDocumentRepository creates a document repository over db.
func NewMemoryDocumentRepository(db *MemoryDB) *MemoryDocumentRepository {
	return &MemoryDocumentRepository{db: db}
}

func (r *MemoryDocumentRepository) Create(_ context.Context, d *domain.Document) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	now := r.db.now()
	d.ID = uuid.NewString()
	d.CreatedAt = now
	d.UpdatedAt = now
	r.db.documents[d.ID] = d.Clone()
	return nil
}

func (r *MemoryDocumentRepository) GetByID(_ context.Context, id string) (*domain.Document, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	d, ok := r.db.documents[id]
	if !ok {
		return nil, errors.NotFound("document", id)
	}
	return d.Clone(), nil
}

func (r *MemoryDocumentRepository) List(_ context.Context, filter domain.DocumentFilter) ([]*domain.Document, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	var out []*domain.Document
	for _, d := range r.db.documents {
		if filter.Status != "" && d.Status != filter.Status {
			continue
		}
		if filter.AuthorID != "" && d.AuthorID != filter.AuthorID {
			continue
		}
		if filter.DocType != "" && d.DocType != filter.DocType {
			continue
		}
		out = append(out, d.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *MemoryDocumentRepository) ListPendingFor(_ context.Context, approverID string) ([]*domain.Document, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	var out []*domain.Document
	for _, d := range r.db.documents {
		step, ok := d.CurrentStep()
		if ok && step.ApproverID == approverID {
			out = append(out, d.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].SubmittedAt, out[j].SubmittedAt
		if a != nil && b != nil && !a.Equal(*b) {
			return a.Before(*b)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *MemoryDocumentRepository) CountByStatus(_ context.Context) (map[domain.Status]int64, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	counts := make(map[domain.Status]int64, len(domain.Statuses))
	for _, d := range r.db.documents {
		counts[d.Status]++
	}
	return counts, nil
}

func (r *MemoryDocumentRepository) Update(_ context.Context, d *domain.Document, expectedVersion int64) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if err := r.checkVersionLocked(d.ID, expectedVersion); err != nil {
		return err
	}
	r.db.documents[d.ID] = d.Clone()
	return nil
}

func (r *MemoryDocumentRepository) UpdateWithAction(_ context.Context, d *domain.Document, expectedVersion int64, action *domain.ApprovalAction) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if err := r.checkVersionLocked(d.ID, expectedVersion); err != nil {
		return err
	}
	for _, existing := range r.db.actions[d.ID] {
		if existing.StepOrder == action.StepOrder {
			return fmt.Errorf("%w: step %d of document %s already decided",
				domain.ErrVersionConflict, action.StepOrder, d.ID)
		}
	}

	action.ID = uuid.NewString()
	r.db.documents[d.ID] = d.Clone()
	r.db.actions[d.ID] = append(r.db.actions[d.ID], cloneAction(action))
	return nil
}

func (r *MemoryDocumentRepository) Delete(_ context.Context, id string, expectedVersion int64) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if err := r.checkVersionLocked(id, expectedVersion); err != nil {
		return err
	}
	if d := r.db.documents[id]; d.Status != domain.StatusDraft {
		return fmt.Errorf("%w: document %s is now at version %d (%s)", domain.ErrVersionConflict, id, d.Version, d.Status)
	}
	delete(r.db.documents, id)
	return nil
}

func (r *MemoryDocumentRepository) checkVersionLocked(id string, expectedVersion int64) error {
	current, ok := r.db.documents[id]
	if !ok {
		return errors.NotFound("document", id)
	}
	if current.Version != expectedVersion {
		return fmt.Errorf("%w: document %s is now at version %d (%s)",
			domain.ErrVersionConflict, id, current.Version, current.Status)
	}
	return nil
}

// ── actions ──────────────────────────────────────────────────────────────────

// MemoryApprovalActionRepository reads the in-memory approval log.
type MemoryApprovalActionRepository struct {
	db *MemoryDB
}

// NewMemoryApprovalActionRepository creates an action reader over db.
func NewMemoryApprovalActionRepository(db *MemoryDB) *MemoryApprovalActionRepository {
	return &MemoryApprovalActionRepository{db: db}
}

func (r *MemoryApprovalActionRepository) ListByDocument(_ context.Context, documentID string) ([]*domain.ApprovalAction, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	src := r.db.actions[documentID]
	out := make([]*domain.ApprovalAction, 0, len(src))
	for _, a := range src {
		out = append(out, cloneAction(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StepOrder < out[j].StepOrder })
	return out, nil
}
