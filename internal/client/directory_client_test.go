package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHRServer(t *testing.T, failures *atomic.Int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/employees/E10", func(w http.ResponseWriter, r *http.Request) {
		if failures != nil && failures.Add(-1) >= 0 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(EmployeeResponse{ID: "E10", Name: "Team Lead", DeptCode: "TEAM-11", PositionCode: "LEAD"})
	})
	parents := map[string]string{"TEAM-11": "DIV-1", "DIV-1": "HQ", "HQ": ""}
	mux.HandleFunc("/api/v1/departments/", func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Path[len("/api/v1/departments/"):]
		parent, ok := parents[code]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(ErrorResponse{Code: "NOT_FOUND", Message: "no such department"})
			return
		}
		_ = json.NewEncoder(w).Encode(DepartmentResponse{Code: code, ParentCode: parent})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestDirectoryClientGetEmployee(t *testing.T) {
	srv := newHRServer(t, nil)
	c := NewDirectoryClient(srv.URL+"/", time.Second)

	emp, err := c.GetEmployee(context.Background(), "E10")
	require.NoError(t, err)
	assert.Equal(t, "Team Lead", emp.Name)
	assert.Equal(t, "LEAD", emp.PositionCode)

	_, err = c.GetEmployee(context.Background(), "E404")
	assert.Error(t, err)
}

func TestDirectoryClientRetriesServerErrors(t *testing.T) {
	var failures atomic.Int32
	failures.Store(1)
	srv := newHRServer(t, &failures)
	c := NewDirectoryClient(srv.URL, time.Second)

	emp, err := c.GetEmployee(context.Background(), "E10")
	require.NoError(t, err)
	assert.Equal(t, "E10", emp.ID)
}

func TestDirectoryClientAncestors(t *testing.T) {
	srv := newHRServer(t, nil)
	c := NewDirectoryClient(srv.URL, time.Second)

	chain, err := c.GetDepartmentAncestors(context.Background(), "TEAM-11")
	require.NoError(t, err)
	assert.Equal(t, []string{"DIV-1", "HQ"}, chain)

	_, err = c.GetDepartmentAncestors(context.Background(), "NOPE")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such department")
}
