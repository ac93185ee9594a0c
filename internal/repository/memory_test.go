package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-hr-approvals/internal/domain"
	"github.com/pesio-ai/be-hr-approvals/internal/errors"
)

func twoSteps() domain.Line {
	return domain.MustLine(
		domain.Step{StepOrder: 1, ApproverID: "E10"},
		domain.Step{StepOrder: 2, ApproverID: "E20"},
	)
}

func newPolicy(t *testing.T, repo *MemoryPolicyRepository, name, docType, scope string, steps domain.Line) *domain.Policy {
	t.Helper()
	p := &domain.Policy{PolicyName: name, DocType: docType, Scope: scope, Steps: steps}
	require.NoError(t, repo.Create(context.Background(), p))
	return p
}

func TestMemoryPolicyActivation(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryPolicyRepository(NewMemoryDB())

	a := newPolicy(t, repo, "A", "LEAVE", "TEAM-11", twoSteps())
	b := newPolicy(t, repo, "B", "LEAVE", "TEAM-11", twoSteps())
	other := newPolicy(t, repo, "C", "LEAVE", "TEAM-12", twoSteps())
	empty := newPolicy(t, repo, "D", "LEAVE", "TEAM-13", domain.Line{})

	assert.False(t, a.Active)
	assert.NotEmpty(t, a.ID)

	activated, err := repo.Activate(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, activated.Active)

	_, err = repo.Activate(ctx, a.ID)
	assert.NoError(t, err, "re-activating the active policy is a no-op")

	_, err = repo.Activate(ctx, b.ID)
	assert.ErrorIs(t, err, domain.ErrDuplicateActiveScope)

	_, err = repo.Activate(ctx, other.ID)
	assert.NoError(t, err)

	_, err = repo.Activate(ctx, empty.ID)
	assert.ErrorIs(t, err, domain.ErrEmptyLine)

	active, err := repo.FindActive(ctx, "LEAVE", "TEAM-11")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, a.ID, active[0].ID)
}

func TestMemoryPolicyConcurrentActivation(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryPolicyRepository(NewMemoryDB())

	const n = 8
	ids := make([]string, n)
	for i := range ids {
		ids[i] = newPolicy(t, repo, "P", "LEAVE", "", twoSteps()).ID
	}

	var wins atomic.Int32
	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if _, err := repo.Activate(ctx, id); err == nil {
				wins.Add(1)
			} else {
				assert.ErrorIs(t, err, domain.ErrDuplicateActiveScope)
			}
		}(id)
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	active, err := repo.FindActive(ctx, "LEAVE", "")
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestMemoryPolicySwap(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryPolicyRepository(NewMemoryDB())

	old := newPolicy(t, repo, "old", "LEAVE", "TEAM-11", twoSteps())
	next := newPolicy(t, repo, "new", "LEAVE", "TEAM-11", domain.MustLine(domain.Step{StepOrder: 1, ApproverID: "E30"}))
	foreign := newPolicy(t, repo, "foreign", "EXPENSE", "TEAM-11", twoSteps())

	_, err := repo.Activate(ctx, old.ID)
	require.NoError(t, err)

	_, err = repo.Swap(ctx, old.ID, foreign.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	swapped, err := repo.Swap(ctx, old.ID, next.ID)
	require.NoError(t, err)
	assert.Equal(t, next.ID, swapped.ID)
	assert.True(t, swapped.Active)

	got, err := repo.GetByID(ctx, old.ID)
	require.NoError(t, err)
	assert.False(t, got.Active)

	_, err = repo.Swap(ctx, "missing", next.ID)
	assert.Equal(t, errors.ErrCodeNotFound, errors.CodeOf(err))
}

func TestMemoryPolicyEditAndDelete(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryPolicyRepository(NewMemoryDB())
	p := newPolicy(t, repo, "A", "LEAVE", "", twoSteps())

	single := domain.MustLine(domain.Step{StepOrder: 1, ApproverID: "E50"})
	updated, err := repo.UpdateSteps(ctx, p.ID, single)
	require.NoError(t, err)
	assert.Equal(t, []string{"E50"}, updated.Steps.ApproverIDs())

	_, err = repo.Activate(ctx, p.ID)
	require.NoError(t, err)

	_, err = repo.UpdateSteps(ctx, p.ID, twoSteps())
	assert.ErrorIs(t, err, domain.ErrPolicyInUse)
	assert.ErrorIs(t, repo.Delete(ctx, p.ID), domain.ErrPolicyInUse)

	_, err = repo.Deactivate(ctx, p.ID)
	require.NoError(t, err)
	_, err = repo.Deactivate(ctx, p.ID)
	require.NoError(t, err)

	require.NoError(t, repo.Delete(ctx, p.ID))
	_, err = repo.GetByID(ctx, p.ID)
	assert.Equal(t, errors.ErrCodeNotFound, errors.CodeOf(err))
}

func TestMemoryPolicyList(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryPolicyRepository(NewMemoryDB())
	a := newPolicy(t, repo, "A", "LEAVE", "", twoSteps())
	newPolicy(t, repo, "B", "LEAVE", "TEAM-11", twoSteps())
	newPolicy(t, repo, "C", "EXPENSE", "", twoSteps())
	_, err := repo.Activate(ctx, a.ID)
	require.NoError(t, err)

	all, err := repo.List(ctx, domain.PolicyFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.Equal(t, "EXPENSE", all[0].DocType)

	leave, err := repo.List(ctx, domain.PolicyFilter{DocType: "LEAVE"})
	require.NoError(t, err)
	assert.Len(t, leave, 2)

	orgWide := ""
	activeOnly, err := repo.List(ctx, domain.PolicyFilter{Scope: &orgWide, ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, activeOnly, 1)
	assert.Equal(t, a.ID, activeOnly[0].ID)
}

func TestMemoryDocumentCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	db := NewMemoryDB()
	docs := NewMemoryDocumentRepository(db)
	actions := NewMemoryApprovalActionRepository(db)
	now := time.Now().UTC()

	doc := domain.NewDocument("LEAVE", "Annual leave", "E99", "TEAM-11", now)
	require.NoError(t, docs.Create(ctx, doc))

	require.NoError(t, doc.Submit("E99", twoSteps(), nil, now))
	require.NoError(t, docs.Update(ctx, doc, 1))

	stale := doc.Clone()
	stale.Status = domain.StatusDraft
	assert.ErrorIs(t, docs.Update(ctx, stale, 1), domain.ErrVersionConflict)

	action, err := doc.Act("E10", domain.DecisionApprove, 2, nil, now)
	require.NoError(t, err)
	require.NoError(t, docs.UpdateWithAction(ctx, doc, 2, action))
	assert.NotEmpty(t, action.ID)

	got, err := docs.GetByID(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.Version)
	assert.Equal(t, 1, got.CurrentStepIndex)

	pending, err := docs.ListPendingFor(ctx, "E20")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, doc.ID, pending[0].ID)

	log, err := actions.ListByDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, log, 1)
	assert.Equal(t, int64(2), log[0].DocumentVersion)

	counts, err := docs.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[domain.StatusInProgress])
}

func TestMemoryDocumentRaceHasOneWinner(t *testing.T) {
	ctx := context.Background()
	db := NewMemoryDB()
	docs := NewMemoryDocumentRepository(db)
	actions := NewMemoryApprovalActionRepository(db)
	now := time.Now().UTC()

	doc := domain.NewDocument("LEAVE", "", "E99", "TEAM-11", now)
	require.NoError(t, docs.Create(ctx, doc))
	require.NoError(t, doc.Submit("E99", twoSteps(), nil, now))
	require.NoError(t, docs.Update(ctx, doc, 1))

	const n = 10
	var wins, conflicts atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			mine, err := docs.GetByID(ctx, doc.ID)
			if !assert.NoError(t, err) {
				return
			}
			expected := mine.Version
			action, err := mine.Act("E10", domain.DecisionApprove, expected, nil, now)
			if err != nil {
				conflicts.Add(1)
				return
			}
			if err := docs.UpdateWithAction(ctx, mine, expected, action); err != nil {
				assert.ErrorIs(t, err, domain.ErrVersionConflict)
				conflicts.Add(1)
				return
			}
			wins.Add(1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(n-1), conflicts.Load())

	log, err := actions.ListByDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Len(t, log, 1)
}

func TestMemoryDocumentDelete(t *testing.T) {
	ctx := context.Background()
	docs := NewMemoryDocumentRepository(NewMemoryDB())
	now := time.Now().UTC()

	doc := domain.NewDocument("LEAVE", "", "E99", "", now)
	require.NoError(t, docs.Create(ctx, doc))

	assert.ErrorIs(t, docs.Delete(ctx, doc.ID, 7), domain.ErrVersionConflict)
	require.NoError(t, docs.Delete(ctx, doc.ID, 1))

	err := docs.Delete(ctx, doc.ID, 1)
	assert.Equal(t, errors.ErrCodeNotFound, errors.CodeOf(err))
}
