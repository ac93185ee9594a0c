package handler

import (
	"github.com/rs/zerolog"

	"github.com/pesio-ai/be-hr-approvals/internal/logger"
	"github.com/pesio-ai/be-hr-approvals/internal/repository"
	"github.com/pesio-ai/be-hr-approvals/internal/service"
)

type stack struct {
	registry *service.PolicyRegistry
	resolver *service.LineResolver
	workflow *service.DocumentWorkflow
}

func newStack() *stack {
	db := repository.NewMemoryDB()
	log := logger.Nop()
	registry := service.NewPolicyRegistry(repository.NewMemoryPolicyRepository(db), log)
	resolver := service.NewLineResolver(registry, nil, false, log)
	docs := repository.NewMemoryDocumentRepository(db)
	tracker := service.NewStepTracker(docs, nil, log)
	workflow := service.NewDocumentWorkflow(docs, repository.NewMemoryApprovalActionRepository(db), resolver, tracker, nil, log)
	return &stack{registry: registry, resolver: resolver, workflow: workflow}
}

var nopLog = zerolog.Nop()
