package service

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/pesio-ai/be-hr-approvals/internal/domain"
	"github.com/pesio-ai/be-hr-approvals/internal/errors"
	"github.com/pesio-ai/be-hr-approvals/internal/logger"
	"github.com/pesio-ai/be-hr-approvals/internal/telemetry"
)

// PolicyRegistry manages approval-line policies and their activation.
type PolicyRegistry struct {
	policies PolicyStore
	log      *logger.Logger
}

// NewPolicyRegistry creates a new PolicyRegistry.
func NewPolicyRegistry(policies PolicyStore, log *logger.Logger) *PolicyRegistry {
	return &PolicyRegistry{policies: policies, log: log}
}

// CreatePolicyRequest carries a new policy definition.
type CreatePolicyRequest struct {
	PolicyName string        `json:"policyName"`
	DocType    string        `json:"docType"`
	Scope      string        `json:"scope"`
	Steps      []domain.Step `json:"steps"`
}

// Create validates req and stores it as an inactive policy.
func (s *PolicyRegistry) Create(ctx context.Context, req *CreatePolicyRequest) (p *domain.Policy, err error) {
	ctx, span := telemetry.Start(ctx, "PolicyRegistry.Create", attribute.String("doc_type", req.DocType))
	defer func() { telemetry.End(span, err) }()

	name := strings.TrimSpace(req.PolicyName)
	if name == "" {
		return nil, errors.InvalidInput("policyName", "policy name is required")
	}
	docType := strings.TrimSpace(req.DocType)
	if docType == "" {
		return nil, errors.InvalidInput("docType", "document type is required")
	}
	steps, err := domain.NewLine(req.Steps)
	if err != nil {
		return nil, err
	}

	p = &domain.Policy{
		PolicyName: name,
		DocType:    docType,
		Scope:      strings.TrimSpace(req.Scope),
		Steps:      steps,
	}
	if err := s.policies.Create(ctx, p); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("policy_id", p.ID).
		Str("doc_type", p.DocType).
		Str("scope", p.Scope).
		Int("steps", p.Steps.Len()).
		Msg("Approval policy created")
	return p, nil
}

// Get returns one policy.
func (s *PolicyRegistry) Get(ctx context.Context, id string) (*domain.Policy, error) {
	return s.policies.GetByID(ctx, id)
}

// List returns policies matching filter.
func (s *PolicyRegistry) List(ctx context.Context, filter domain.PolicyFilter) ([]*domain.Policy, error) {
	return s.policies.List(ctx, filter)
}

// UpdateSteps replaces the steps of an inactive policy.
func (s *PolicyRegistry) UpdateSteps(ctx context.Context, id string, steps []domain.Step) (p *domain.Policy, err error) {
	ctx, span := telemetry.Start(ctx, "PolicyRegistry.UpdateSteps", attribute.String("policy_id", id))
	defer func() { telemetry.End(span, err) }()

	line, err := domain.NewLine(steps)
	if err != nil {
		return nil, err
	}
	p, err = s.policies.UpdateSteps(ctx, id, line)
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("policy_id", id).Int("steps", line.Len()).Msg("Approval policy steps updated")
	return p, nil
}

// Activate makes a policy the active one for its (docType, scope).
func (s *PolicyRegistry) Activate(ctx context.Context, id string) (p *domain.Policy, err error) {
	ctx, span := telemetry.Start(ctx, "PolicyRegistry.Activate", attribute.String("policy_id", id))
	defer func() { telemetry.End(span, err) }()

	p, err = s.policies.Activate(ctx, id)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("policy_id", id).
		Str("doc_type", p.DocType).
		Str("scope", p.Scope).
		Msg("Approval policy activated")
	return p, nil
}

// Deactivate turns a policy off. Lines already frozen on documents are not
// affected.
func (s *PolicyRegistry) Deactivate(ctx context.Context, id string) (p *domain.Policy, err error) {
	ctx, span := telemetry.Start(ctx, "PolicyRegistry.Deactivate", attribute.String("policy_id", id))
	defer func() { telemetry.End(span, err) }()

	p, err = s.policies.Deactivate(ctx, id)
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("policy_id", id).Msg("Approval policy deactivated")
	return p, nil
}

// Swap atomically replaces the active policy for a key.
func (s *PolicyRegistry) Swap(ctx context.Context, outgoingID, incomingID string) (p *domain.Policy, err error) {
	ctx, span := telemetry.Start(ctx, "PolicyRegistry.Swap",
		attribute.String("outgoing_policy_id", outgoingID),
		attribute.String("incoming_policy_id", incomingID))
	defer func() { telemetry.End(span, err) }()

	if outgoingID == "" {
		return nil, errors.InvalidInput("oldPolicyId", "outgoing policy id is required")
	}
	if incomingID == "" {
		return nil, errors.InvalidInput("newPolicyId", "incoming policy id is required")
	}

	p, err = s.policies.Swap(ctx, outgoingID, incomingID)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("outgoing_policy_id", outgoingID).
		Str("incoming_policy_id", incomingID).
		Str("doc_type", p.DocType).
		Str("scope", p.Scope).
		Msg("Approval policy swapped")
	return p, nil
}

// Delete removes an inactive policy.
func (s *PolicyRegistry) Delete(ctx context.Context, id string) (err error) {
	ctx, span := telemetry.Start(ctx, "PolicyRegistry.Delete", attribute.String("policy_id", id))
	defer func() { telemetry.End(span, err) }()

	if err := s.policies.Delete(ctx, id); err != nil {
		return err
	}

	s.log.Info().Str("policy_id", id).Msg("Approval policy deleted")
	return nil
}

// FindActive returns the active policy for (docType, scope), or nil. Two or
// more active policies for one key is reported as ErrAmbiguousPolicy.
func (s *PolicyRegistry) FindActive(ctx context.Context, docType, scope string) (*domain.Policy, error) {
	found, err := s.policies.FindActive(ctx, docType, scope)
	if err != nil {
		return nil, err
	}
	switch len(found) {
	case 0:
		return nil, nil
	case 1:
		return found[0], nil
	default:
		ids := make([]string, len(found))
		for i, p := range found {
			ids[i] = p.ID
		}
		s.log.Error().
			Str("doc_type", docType).
			Str("scope", scope).
			Strs("policy_ids", ids).
			Msg("Multiple active approval policies for one scope")
		return nil, fmt.Errorf("%w: %s/%q has %d active policies", domain.ErrAmbiguousPolicy, docType, scope, len(found))
	}
}
