// Package domain holds the approval-line model: policies, documents, the
// frozen approval line and the append-only action log, together with the
// pure state transitions the services persist.
package domain

import "time"

// Status is the document lifecycle state.
type Status string

const (
	StatusDraft      Status = "DRAFT"
	StatusInProgress Status = "IN_PROGRESS"
	StatusApproved   Status = "APPROVED"
	StatusRejected   Status = "REJECTED"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{StatusDraft, StatusInProgress, StatusApproved, StatusRejected}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusInProgress, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// IsTerminal reports whether no further transitions are possible.
func (s Status) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// Decision is an approver's verdict on a step.
type Decision string

const (
	DecisionApprove Decision = "APPROVE"
	DecisionReject  Decision = "REJECT"
)

// Valid reports whether d is a known decision.
func (d Decision) Valid() bool {
	return d == DecisionApprove || d == DecisionReject
}

// Policy is an administrator-defined approval line bound to a document type
// and organisational scope.
type Policy struct {
	ID         string    `json:"policyId"`
	PolicyName string    `json:"policyName"`
	DocType    string    `json:"docType"`
	Scope      string    `json:"scope"`
	Active     bool      `json:"active"`
	Steps      Line      `json:"steps"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Key returns the (docType, scope) activation key.
func (p *Policy) Key() ScopeKey {
	return ScopeKey{DocType: p.DocType, Scope: p.Scope}
}

// ScopeKey identifies the slot in which at most one policy may be active.
type ScopeKey struct {
	DocType string
	Scope   string
}

// PolicyFilter narrows policy listings.
type PolicyFilter struct {
	DocType    string
	Scope      *string
	ActiveOnly bool
}

// Document is a workflow subject moving through its approval line.
type Document struct {
	ID               string     `json:"documentId"`
	DocType          string     `json:"docType"`
	Title            string     `json:"title"`
	AuthorID         string     `json:"authorId"`
	OriginDeptCode   string     `json:"originDeptCode"`
	Status           Status     `json:"status"`
	ResolvedLine     Line       `json:"resolvedLine"`
	PolicyID         *string    `json:"policyId,omitempty"`
	CurrentStepIndex int        `json:"currentStepIndex"`
	Version          int64      `json:"version"`
	SubmittedAt      *time.Time `json:"submittedAt,omitempty"`
	CompletedAt      *time.Time `json:"completedAt,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// Clone returns a copy that shares no pointers with d.
func (d *Document) Clone() *Document {
	cp := *d
	if d.PolicyID != nil {
		id := *d.PolicyID
		cp.PolicyID = &id
	}
	if d.SubmittedAt != nil {
		t := *d.SubmittedAt
		cp.SubmittedAt = &t
	}
	if d.CompletedAt != nil {
		t := *d.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}

// DocumentFilter narrows document listings.
type DocumentFilter struct {
	Status   Status
	AuthorID string
	DocType  string
}

// ApprovalAction is one immutable entry of the approval log.
type ApprovalAction struct {
	ID              string    `json:"actionId"`
	DocumentID      string    `json:"documentId"`
	StepOrder       int       `json:"stepOrder"`
	ActorID         string    `json:"actorId"`
	Action          Decision  `json:"action"`
	Comment         *string   `json:"comment,omitempty"`
	ActedAt         time.Time `json:"timestamp"`
	DocumentVersion int64     `json:"documentVersionAtAction"`
}

// Summary counts documents by status.
type Summary struct {
	Draft      int64 `json:"DRAFT"`
	InProgress int64 `json:"IN_PROGRESS"`
	Approved   int64 `json:"APPROVED"`
	Rejected   int64 `json:"REJECTED"`
	Total      int64 `json:"total"`
}

// NewSummary folds per-status counts into a Summary.
func NewSummary(counts map[Status]int64) Summary {
	s := Summary{
		Draft:      counts[StatusDraft],
		InProgress: counts[StatusInProgress],
		Approved:   counts[StatusApproved],
		Rejected:   counts[StatusRejected],
	}
	s.Total = s.Draft + s.InProgress + s.Approved + s.Rejected
	return s
}
