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

// Resolution is a concrete approval line materialised from a policy.
type Resolution struct {
	PolicyID   string      `json:"policyId"`
	PolicyName string      `json:"policyName"`
	DocType    string      `json:"docType"`
	Scope      string      `json:"scope"`
	Line       domain.Line `json:"steps"`
}

// LineResolver selects the applicable active policy for a document and binds
// its steps to current employee snapshots.
type LineResolver struct {
	registry     *PolicyRegistry
	directory    DirectoryClientInterface
	hierarchical bool
	log          *logger.Logger
}

// NewLineResolver creates a new LineResolver. directory may be nil, in which
// case policy snapshots are used as stored and only exact scope matching is
// possible.
func NewLineResolver(registry *PolicyRegistry, directory DirectoryClientInterface, hierarchical bool, log *logger.Logger) *LineResolver {
	return &LineResolver{
		registry:     registry,
		directory:    directory,
		hierarchical: hierarchical,
		log:          log,
	}
}

// Resolve returns the approval line for a document of docType raised in
// originDeptCode. The scope chain is walked in order and the first scope with
// an active policy wins.
func (s *LineResolver) Resolve(ctx context.Context, docType, originDeptCode string) (res *Resolution, err error) {
	docType = strings.TrimSpace(docType)
	originDeptCode = strings.TrimSpace(originDeptCode)
	ctx, span := telemetry.Start(ctx, "LineResolver.Resolve",
		attribute.String("doc_type", docType),
		attribute.String("dept_code", originDeptCode))
	defer func() { telemetry.End(span, err) }()

	if docType == "" {
		return nil, errors.InvalidInput("docType", "document type is required")
	}

	chain, err := s.scopeChain(ctx, originDeptCode)
	if err != nil {
		return nil, err
	}

	for _, scope := range chain {
		policy, err := s.registry.FindActive(ctx, docType, scope)
		if err != nil {
			return nil, err
		}
		if policy == nil {
			continue
		}

		line, err := s.bind(ctx, policy)
		if err != nil {
			return nil, err
		}

		s.log.Debug().
			Str("doc_type", docType).
			Str("dept_code", originDeptCode).
			Str("policy_id", policy.ID).
			Str("scope", scope).
			Msg("Approval line resolved")

		return &Resolution{
			PolicyID:   policy.ID,
			PolicyName: policy.PolicyName,
			DocType:    policy.DocType,
			Scope:      policy.Scope,
			Line:       line,
		}, nil
	}

	return nil, fmt.Errorf("%w: docType=%s scopes=%q", domain.ErrNoMatchingPolicy, docType, chain)
}

// Preview resolves without side effects. It exists so callers can show the
// line before submitting.
func (s *LineResolver) Preview(ctx context.Context, docType, originDeptCode string) (*Resolution, error) {
	return s.Resolve(ctx, docType, originDeptCode)
}

// scopeChain lists scopes to try, most specific first.
func (s *LineResolver) scopeChain(ctx context.Context, deptCode string) ([]string, error) {
	deptCode = strings.TrimSpace(deptCode)
	if !s.hierarchical {
		return []string{deptCode}, nil
	}
	if deptCode == "" {
		return []string{""}, nil
	}

	chain := []string{deptCode}
	if s.directory != nil {
		ancestors, err := s.directory.GetDepartmentAncestors(ctx, deptCode)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to load department hierarchy")
		}
		seen := map[string]bool{deptCode: true, "": true}
		for _, a := range ancestors {
			if !seen[a] {
				seen[a] = true
				chain = append(chain, a)
			}
		}
	}
	return append(chain, ""), nil
}

// bind copies policy steps with fresh approver snapshots.
func (s *LineResolver) bind(ctx context.Context, policy *domain.Policy) (domain.Line, error) {
	src := policy.Steps.Steps()
	if len(src) == 0 {
		return domain.Line{}, fmt.Errorf("%w: active policy %s", domain.ErrEmptyLine, policy.ID)
	}
	if s.directory == nil {
		return policy.Steps, nil
	}

	for i := range src {
		emp, err := s.directory.GetEmployee(ctx, src[i].ApproverID)
		if err != nil || emp == nil {
			s.log.Warn().Err(err).
				Str("policy_id", policy.ID).
				Str("approver_id", src[i].ApproverID).
				Msg("Employee directory lookup failed; using stored approver snapshot")
			continue
		}
		src[i].ApproverSnapshot = domain.ApproverSnapshot{
			Name:         emp.Name,
			DeptCode:     emp.DeptCode,
			PositionCode: emp.PositionCode,
		}
	}
	return domain.NewLine(src)
}
