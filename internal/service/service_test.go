package service

import (
	"context"
	stderrors "errors"
	"sync"

	"github.com/pesio-ai/be-hr-approvals/internal/domain"
	"github.com/pesio-ai/be-hr-approvals/internal/logger"
	"github.com/pesio-ai/be-hr-approvals/internal/repository"
)

type fakeDirectory struct {
	employees map[string]*Employee
	ancestors map[string][]string
	err       error
}

func (f *fakeDirectory) GetEmployee(_ context.Context, id string) (*Employee, error) {
	if f.err != nil {
		return nil, f.err
	}
	e, ok := f.employees[id]
	if !ok {
		return nil, stderrors.New("employee not found")
	}
	return e, nil
}

func (f *fakeDirectory) GetDepartmentAncestors(_ context.Context, dept string) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.ancestors[dept], nil
}

type publishedEvent struct {
	eventType  string
	documentID string
	recipients []string
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *recordingPublisher) PublishDocumentEvent(_ context.Context, eventType string, doc *domain.Document, _ string, recipients []string, _ map[string]any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{eventType: eventType, documentID: doc.ID, recipients: recipients})
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.eventType
	}
	return out
}

type fixture struct {
	registry  *PolicyRegistry
	resolver  *LineResolver
	tracker   *StepTracker
	workflow  *DocumentWorkflow
	directory *fakeDirectory
	publisher *recordingPublisher
}

func newFixture(hierarchical bool) *fixture {
	db := repository.NewMemoryDB()
	log := logger.Nop()

	dir := &fakeDirectory{
		employees: map[string]*Employee{
			"E10": {ID: "E10", Name: "Team Lead", DeptCode: "TEAM-11", PositionCode: "LEAD"},
			"E20": {ID: "E20", Name: "Division Head", DeptCode: "DIV-1", PositionCode: "HEAD"},
		},
		ancestors: map[string][]string{
			"TEAM-11": {"DIV-1", "HQ"},
		},
	}
	pub := &recordingPublisher{}

	registry := NewPolicyRegistry(repository.NewMemoryPolicyRepository(db), log)
	resolver := NewLineResolver(registry, dir, hierarchical, log)
	docs := repository.NewMemoryDocumentRepository(db)
	tracker := NewStepTracker(docs, pub, log)
	workflow := NewDocumentWorkflow(docs, repository.NewMemoryApprovalActionRepository(db), resolver, tracker, pub, log)

	return &fixture{
		registry:  registry,
		resolver:  resolver,
		tracker:   tracker,
		workflow:  workflow,
		directory: dir,
		publisher: pub,
	}
}

func steps(approvers ...string) []domain.Step {
	out := make([]domain.Step, len(approvers))
	for i, id := range approvers {
		out[i] = domain.Step{
			StepOrder:        i + 1,
			ApproverID:       id,
			ApproverSnapshot: domain.ApproverSnapshot{Name: "stored " + id},
		}
	}
	return out
}

func ptr(s string) *string { return &s }
