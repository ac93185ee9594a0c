package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-hr-approvals/internal/middleware"
)

type apiClient struct {
	t      *testing.T
	router http.Handler
}

func newAPI(t *testing.T, pinger Pinger) *apiClient {
	t.Helper()
	s := newStack()
	h := NewHTTPHandler(s.registry, s.resolver, s.workflow, pinger, nopLog)
	r := chi.NewRouter()
	r.Use(middleware.Actor)
	h.RegisterRoutes(r)
	return &apiClient{t: t, router: r}
}

func (c *apiClient) do(method, path, actor string, body any) (*httptest.ResponseRecorder, map[string]any) {
	c.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			require.NoError(c.t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if actor != "" {
		req.Header.Set(middleware.ActorHeader, actor)
	}
	rec := httptest.NewRecorder()
	c.router.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 {
		_ = json.Unmarshal(rec.Body.Bytes(), &out)
	}
	return rec, out
}

func (c *apiClient) activePolicy(scope string, approvers ...string) string {
	c.t.Helper()
	steps := make([]map[string]any, len(approvers))
	for i, a := range approvers {
		steps[i] = map[string]any{"stepOrder": i + 1, "approverId": a}
	}
	rec, body := c.do(http.MethodPost, "/policies", "", map[string]any{
		"policyName": "leave " + scope,
		"docType":    "LEAVE",
		"scope":      scope,
		"steps":      steps,
	})
	require.Equal(c.t, http.StatusCreated, rec.Code, rec.Body.String())
	id := body["policyId"].(string)

	rec, body = c.do(http.MethodPatch, "/policies/"+id+"/activate", "", nil)
	require.Equal(c.t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(c.t, true, body["active"])
	return id
}

func TestHTTPLeaveScenario(t *testing.T) {
	api := newAPI(t, nil)
	api.activePolicy("TEAM-11", "E10", "E20")

	rec, body := api.do(http.MethodGet, "/approvals/policy/auto-line?docType=LEAVE&deptCode=TEAM-11", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["steps"], 2)

	rec, body = api.do(http.MethodPost, "/documents", "E99", map[string]any{
		"docType": "LEAVE", "title": "Annual leave", "originDeptCode": "TEAM-11",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	id := body["documentId"].(string)
	assert.Equal(t, "DRAFT", body["status"])

	rec, body = api.do(http.MethodPost, "/documents/"+id+"/submit", "E99", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "IN_PROGRESS", body["status"])
	assert.EqualValues(t, 2, body["version"])

	rec, body = api.do(http.MethodGet, "/approvals/pending", "E10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, body["total"])

	rec, body = api.do(http.MethodPost, "/documents/"+id+"/act", "E20", map[string]any{"decision": "APPROVE", "expectedVersion": 2})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "NOT_DESIGNATED_APPROVER", body["reason"])

	rec, _ = api.do(http.MethodPost, "/documents/"+id+"/act", "E10", map[string]any{"decision": "APPROVE", "expectedVersion": 2})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec, body = api.do(http.MethodPost, "/documents/"+id+"/act", "E10", map[string]any{"decision": "APPROVE", "expectedVersion": 2})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "VERSION_CONFLICT", body["reason"])

	rec, body = api.do(http.MethodPost, "/documents/"+id+"/act", "E20", map[string]any{"decision": "APPROVE", "expectedVersion": 3})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	doc := body["document"].(map[string]any)
	assert.Equal(t, "APPROVED", doc["status"])

	rec, body = api.do(http.MethodGet, "/documents/"+id+"/actions", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, body["total"])

	rec, body = api.do(http.MethodGet, "/approvals/summary", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, body["APPROVED"])
	assert.EqualValues(t, 1, body["total"])
}

func TestHTTPErrorMapping(t *testing.T) {
	api := newAPI(t, nil)
	first := api.activePolicy("", "E10")

	rec, body := api.do(http.MethodPost, "/policies", "", map[string]any{
		"policyName": "dup", "docType": "LEAVE",
		"steps": []map[string]any{{"stepOrder": 1, "approverId": "E20"}},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	second := body["policyId"].(string)

	tests := []struct {
		name   string
		method string
		path   string
		actor  string
		body   any
		status int
		reason string
	}{
		{"duplicate active scope", http.MethodPatch, "/policies/" + second + "/activate", "", nil, http.StatusConflict, "DUPLICATE_ACTIVE_SCOPE"},
		{"delete active policy", http.MethodDelete, "/policies/" + first, "", nil, http.StatusConflict, "POLICY_IN_USE"},
		{"invalid step sequence", http.MethodPost, "/policies", "", map[string]any{
			"policyName": "bad", "docType": "LEAVE",
			"steps": []map[string]any{{"stepOrder": 2, "approverId": "E20"}},
		}, http.StatusUnprocessableEntity, "INVALID_STEP_SEQUENCE"},
		{"empty line", http.MethodPost, "/policies", "", map[string]any{"policyName": "bad", "docType": "LEAVE"}, http.StatusUnprocessableEntity, "EMPTY_LINE"},
		{"no matching policy", http.MethodGet, "/approvals/policy/auto-line?docType=EXPENSE", "", nil, http.StatusUnprocessableEntity, "NO_MATCHING_POLICY"},
		{"unknown policy", http.MethodGet, "/policies/missing", "", nil, http.StatusNotFound, "NOT_FOUND"},
		{"malformed body", http.MethodPost, "/policies", "", "{not json", http.StatusBadRequest, ""},
		{"missing actor", http.MethodPost, "/documents", "", map[string]any{"docType": "LEAVE"}, http.StatusUnauthorized, ""},
		{"pending without actor", http.MethodGet, "/approvals/pending", "", nil, http.StatusUnauthorized, ""},
		{"bad active flag", http.MethodGet, "/policies?active=maybe", "", nil, http.StatusUnprocessableEntity, "INVALID_INPUT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := api.do(tt.method, tt.path, tt.actor, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			if tt.reason != "" {
				assert.Equal(t, tt.reason, body["reason"])
			}
		})
	}
}

func TestHTTPSwapAndRecall(t *testing.T) {
	api := newAPI(t, nil)
	old := api.activePolicy("TEAM-11", "E10", "E20")

	rec, body := api.do(http.MethodPost, "/policies", "", map[string]any{
		"policyName": "v2", "docType": "LEAVE", "scope": "TEAM-11",
		"steps": []map[string]any{{"stepOrder": 1, "approverId": "E30"}},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	next := body["policyId"].(string)

	rec, body = api.do(http.MethodPost, "/policies/swap", "", map[string]any{"oldPolicyId": old, "newPolicyId": next})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, next, body["policyId"])

	rec, body = api.do(http.MethodGet, "/policies?docType=LEAVE&active=true", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, body["total"])

	rec, body = api.do(http.MethodPut, "/policies/"+old+"/steps", "", map[string]any{
		"steps": []map[string]any{{"stepOrder": 1, "approverId": "E40"}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec, body = api.do(http.MethodPost, "/documents", "E99", map[string]any{"docType": "LEAVE", "originDeptCode": "TEAM-11"})
	require.Equal(t, http.StatusCreated, rec.Code)
	id := body["documentId"].(string)

	rec, _ = api.do(http.MethodPost, "/documents/"+id+"/submit", "E99", map[string]any{"expectedVersion": 1})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec, body = api.do(http.MethodPost, "/documents/"+id+"/recall", "E10", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "NOT_AUTHOR", body["reason"])

	rec, body = api.do(http.MethodPost, "/documents/"+id+"/recall", "E99", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "DRAFT", body["status"])

	rec, _ = api.do(http.MethodDelete, "/documents/"+id, "E99", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec, _ = api.do(http.MethodPatch, "/policies/"+next+"/deactivate", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec, _ = api.do(http.MethodDelete, "/policies/"+next, "", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

type pingerFunc func(context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHTTPHealth(t *testing.T) {
	rec, body := newAPI(t, nil).do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])

	down := newAPI(t, pingerFunc(func(context.Context) error { return errors.New("db down") }))
	rec, _ = down.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
