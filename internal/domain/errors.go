package domain

import (
	apperrors "github.com/pesio-ai/be-hr-approvals/internal/errors"
)

// Validation errors: rejected before any state change.
var (
	ErrInvalidStepSequence = apperrors.New(apperrors.ErrCodeUnprocessable,
		"step orders must be a contiguous 1..N sequence").WithReason("INVALID_STEP_SEQUENCE")
	ErrEmptyLine = apperrors.New(apperrors.ErrCodeUnprocessable,
		"approval line has no steps").WithReason("EMPTY_LINE")
)

// Invariant-guard errors: the administrative action is refused, state is untouched.
var (
	ErrDuplicateActiveScope = apperrors.New(apperrors.ErrCodeConflict,
		"another policy is already active for this document type and scope").WithReason("DUPLICATE_ACTIVE_SCOPE")
	ErrAmbiguousPolicy = apperrors.New(apperrors.ErrCodeConflict,
		"more than one active policy matches").WithReason("AMBIGUOUS_POLICY")
	ErrPolicyInUse = apperrors.New(apperrors.ErrCodeConflict,
		"policy is active").WithReason("POLICY_IN_USE")
)

// Workflow errors: retryable by the caller after re-reading state.
var (
	ErrNotInProgress = apperrors.New(apperrors.ErrCodeConflict,
		"document is not in progress").WithReason("NOT_IN_PROGRESS")
	ErrNotDesignatedApprover = apperrors.New(apperrors.ErrCodeForbidden,
		"actor is not the designated approver for the current step").WithReason("NOT_DESIGNATED_APPROVER")
	ErrVersionConflict = apperrors.New(apperrors.ErrCodeConflict,
		"document version conflict").WithReason("VERSION_CONFLICT")
	ErrInvalidTransition = apperrors.New(apperrors.ErrCodeConflict,
		"transition not allowed from the current state").WithReason("INVALID_TRANSITION")
	ErrNotAuthor = apperrors.New(apperrors.ErrCodeForbidden,
		"only the author may perform this action").WithReason("NOT_AUTHOR")
)

// Resolution errors: the document stays DRAFT.
var (
	ErrNoMatchingPolicy = apperrors.New(apperrors.ErrCodeUnprocessable,
		"no active approval policy matches").WithReason("NO_MATCHING_POLICY")
)
