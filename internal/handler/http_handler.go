package handler

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/pesio-ai/be-hr-approvals/internal/domain"
	"github.com/pesio-ai/be-hr-approvals/internal/errors"
	"github.com/pesio-ai/be-hr-approvals/internal/middleware"
	"github.com/pesio-ai/be-hr-approvals/internal/service"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// Pinger reports storage liveness for /health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HTTPHandler serves the REST API.
type HTTPHandler struct {
	registry *service.PolicyRegistry
	resolver *service.LineResolver
	workflow *service.DocumentWorkflow
	pinger   Pinger
	log      zerolog.Logger
}

// NewHTTPHandler creates a new HTTP handler. pinger may be nil.
func NewHTTPHandler(
	registry *service.PolicyRegistry,
	resolver *service.LineResolver,
	workflow *service.DocumentWorkflow,
	pinger Pinger,
	log zerolog.Logger,
) *HTTPHandler {
	return &HTTPHandler{
		registry: registry,
		resolver: resolver,
		workflow: workflow,
		pinger:   pinger,
		log:      log.With().Str("handler", "http").Logger(),
	}
}

// RegisterRoutes mounts every endpoint on r.
func (h *HTTPHandler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.Health)

	r.Route("/policies", func(r chi.Router) {
		r.Get("/", h.ListPolicies)
		r.Post("/", h.CreatePolicy)
		r.Post("/swap", h.SwapPolicies)
		r.Get("/{id}", h.GetPolicy)
		r.Delete("/{id}", h.DeletePolicy)
		r.Put("/{id}/steps", h.UpdatePolicySteps)
		r.Patch("/{id}/activate", h.ActivatePolicy)
		r.Patch("/{id}/deactivate", h.DeactivatePolicy)
	})

	r.Route("/approvals", func(r chi.Router) {
		r.Get("/policy/auto-line", h.PreviewLine)
		r.Get("/summary", h.Summary)
		r.Get("/pending", h.Pending)
	})

	r.Route("/documents", func(r chi.Router) {
		r.Get("/", h.ListDocuments)
		r.Post("/", h.CreateDocument)
		r.Get("/{id}", h.GetDocument)
		r.Delete("/{id}", h.DeleteDocument)
		r.Get("/{id}/actions", h.DocumentActions)
		r.Post("/{id}/submit", h.SubmitDocument)
		r.Post("/{id}/act", h.ActOnDocument)
		r.Post("/{id}/recall", h.RecallDocument)
	})
}

// ── Health ───────────────────────────────────────────────────────────────────

// Health reports liveness and storage reachability.
func (h *HTTPHandler) Health(w http.ResponseWriter, r *http.Request) {
	if h.pinger != nil {
		if err := h.pinger.Ping(r.Context()); err != nil {
			h.log.Warn().Err(err).Msg("Health check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ── Policies ─────────────────────────────────────────────────────────────────

// ListPolicies handles GET /policies?docType=&scope=&active=
func (h *HTTPHandler) ListPolicies(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.PolicyFilter{DocType: q.Get("docType")}
	if q.Has("scope") {
		scope := q.Get("scope")
		filter.Scope = &scope
	}
	if raw := q.Get("active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			h.writeError(w, errors.InvalidInput("active", "active must be true or false"))
			return
		}
		filter.ActiveOnly = active
	}

	policies, err := h.registry.List(r.Context(), filter)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"policies": nonNil(policies), "total": len(policies)})
}

// CreatePolicy handles POST /policies
func (h *HTTPHandler) CreatePolicy(w http.ResponseWriter, r *http.Request) {
	var req service.CreatePolicyRequest
	if !h.decode(w, r, &req, true) {
		return
	}
	p, err := h.registry.Create(r.Context(), &req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// GetPolicy handles GET /policies/{id}
func (h *HTTPHandler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	p, err := h.registry.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// UpdatePolicySteps handles PUT /policies/{id}/steps
func (h *HTTPHandler) UpdatePolicySteps(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Steps []domain.Step `json:"steps"`
	}
	if !h.decode(w, r, &req, true) {
		return
	}
	p, err := h.registry.UpdateSteps(r.Context(), chi.URLParam(r, "id"), req.Steps)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// ActivatePolicy handles PATCH /policies/{id}/activate
func (h *HTTPHandler) ActivatePolicy(w http.ResponseWriter, r *http.Request) {
	p, err := h.registry.Activate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// DeactivatePolicy handles PATCH /policies/{id}/deactivate
func (h *HTTPHandler) DeactivatePolicy(w http.ResponseWriter, r *http.Request) {
	p, err := h.registry.Deactivate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// SwapPolicies handles POST /policies/swap
func (h *HTTPHandler) SwapPolicies(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OldPolicyID string `json:"oldPolicyId"`
		NewPolicyID string `json:"newPolicyId"`
	}
	if !h.decode(w, r, &req, true) {
		return
	}
	p, err := h.registry.Swap(r.Context(), req.OldPolicyID, req.NewPolicyID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// DeletePolicy handles DELETE /policies/{id}
func (h *HTTPHandler) DeletePolicy(w http.ResponseWriter, r *http.Request) {
	if err := h.registry.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ── Approvals ────────────────────────────────────────────────────────────────

// PreviewLine handles GET /approvals/policy/auto-line?docType=&deptCode=
func (h *HTTPHandler) PreviewLine(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res, err := h.resolver.Preview(r.Context(), q.Get("docType"), q.Get("deptCode"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Summary handles GET /approvals/summary
func (h *HTTPHandler) Summary(w http.ResponseWriter, r *http.Request) {
	s, err := h.workflow.Summary(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// Pending handles GET /approvals/pending for the calling actor.
func (h *HTTPHandler) Pending(w http.ResponseWriter, r *http.Request) {
	docs, err := h.workflow.Pending(r.Context(), middleware.ActorFrom(r.Context()))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": nonNil(docs), "total": len(docs)})
}

// ── Documents ────────────────────────────────────────────────────────────────

// CreateDocument handles POST /documents
func (h *HTTPHandler) CreateDocument(w http.ResponseWriter, r *http.Request) {
	var req service.CreateDocumentRequest
	if !h.decode(w, r, &req, true) {
		return
	}
	doc, err := h.workflow.Create(r.Context(), middleware.ActorFrom(r.Context()), &req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

// ListDocuments handles GET /documents?status=&authorId=&docType=
func (h *HTTPHandler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	docs, err := h.workflow.List(r.Context(), domain.DocumentFilter{
		Status:   domain.Status(q.Get("status")),
		AuthorID: q.Get("authorId"),
		DocType:  q.Get("docType"),
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": nonNil(docs), "total": len(docs)})
}

// GetDocument handles GET /documents/{id}
func (h *HTTPHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := h.workflow.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// DeleteDocument handles DELETE /documents/{id}
func (h *HTTPHandler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := h.workflow.Delete(r.Context(), chi.URLParam(r, "id"), middleware.ActorFrom(r.Context())); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DocumentActions handles GET /documents/{id}/actions
func (h *HTTPHandler) DocumentActions(w http.ResponseWriter, r *http.Request) {
	actions, err := h.workflow.History(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"actions": nonNil(actions), "total": len(actions)})
}

// SubmitDocument handles POST /documents/{id}/submit. The body is optional.
func (h *HTTPHandler) SubmitDocument(w http.ResponseWriter, r *http.Request) {
	var req service.SubmitRequest
	if !h.decode(w, r, &req, false) {
		return
	}
	doc, err := h.workflow.Submit(r.Context(), chi.URLParam(r, "id"), middleware.ActorFrom(r.Context()), &req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// ActOnDocument handles POST /documents/{id}/act
func (h *HTTPHandler) ActOnDocument(w http.ResponseWriter, r *http.Request) {
	var req service.ActRequest
	if !h.decode(w, r, &req, true) {
		return
	}
	doc, action, err := h.workflow.Act(r.Context(), chi.URLParam(r, "id"), middleware.ActorFrom(r.Context()), &req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"document": doc, "action": action})
}

// RecallDocument handles POST /documents/{id}/recall
func (h *HTTPHandler) RecallDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := h.workflow.Recall(r.Context(), chi.URLParam(r, "id"), middleware.ActorFrom(r.Context()))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// ── Helpers ──────────────────────────────────────────────────────────────────

type errorBody struct {
	Code    string `json:"code"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func (h *HTTPHandler) decode(w http.ResponseWriter, r *http.Request, dst any, required bool) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if !required && stderrors.Is(err, io.EOF) {
			return true
		}
		writeJSON(w, http.StatusBadRequest, errorBody{Code: "BAD_REQUEST", Message: "Invalid request body: " + err.Error()})
		return false
	}
	return true
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, err error) {
	status := errors.HTTPStatus(err)
	body := errorBody{
		Code:    string(errors.CodeOf(err)),
		Reason:  errors.ReasonOf(err),
		Message: err.Error(),
	}
	var appErr *errors.AppError
	if errors.As(err, &appErr) {
		body.Field = appErr.Field
	}
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("Request failed")
		body.Message = "internal server error"
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
