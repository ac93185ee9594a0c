package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lestrrat-go/backoff/v2"

	"github.com/pesio-ai/be-hr-approvals/internal/service"
)

// maxDepartmentDepth bounds the ancestor walk so a cyclic tree cannot loop.
const maxDepartmentDepth = 32

// DirectoryClient is a client for the HR employee directory.
type DirectoryClient struct {
	baseURL string
	http    *http.Client
	retry   backoff.Policy
}

// NewDirectoryClient creates a new directory client.
func NewDirectoryClient(baseURL string, timeout time.Duration) *DirectoryClient {
	return &DirectoryClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		retry: backoff.Exponential(
			backoff.WithMinInterval(100*time.Millisecond),
			backoff.WithMaxInterval(time.Second),
			backoff.WithJitterFactor(0.1),
			backoff.WithMaxRetries(2),
		),
	}
}

// GetEmployee returns the current record of an employee.
func (c *DirectoryClient) GetEmployee(ctx context.Context, employeeID string) (*service.Employee, error) {
	var resp EmployeeResponse
	if err := c.get(ctx, "/api/v1/employees/"+url.PathEscape(employeeID), &resp); err != nil {
		return nil, fmt.Errorf("failed to get employee %s: %w", employeeID, err)
	}
	return &service.Employee{
		ID:           resp.ID,
		Name:         resp.Name,
		DeptCode:     resp.DeptCode,
		PositionCode: resp.PositionCode,
	}, nil
}

// GetDepartmentAncestors walks parent links upward from deptCode.
func (c *DirectoryClient) GetDepartmentAncestors(ctx context.Context, deptCode string) ([]string, error) {
	var ancestors []string
	seen := map[string]bool{deptCode: true}
	code := deptCode
	for i := 0; i < maxDepartmentDepth; i++ {
		var dept DepartmentResponse
		if err := c.get(ctx, "/api/v1/departments/"+url.PathEscape(code), &dept); err != nil {
			return nil, fmt.Errorf("failed to get department %s: %w", code, err)
		}
		parent := strings.TrimSpace(dept.ParentCode)
		if parent == "" || seen[parent] {
			return ancestors, nil
		}
		seen[parent] = true
		ancestors = append(ancestors, parent)
		code = parent
	}
	return ancestors, nil
}

// statusError is a non-2xx answer from the directory.
type statusError struct {
	status int
	body   ErrorResponse
}

func (e *statusError) Error() string {
	if e.body.Message != "" {
		return fmt.Sprintf("directory returned %d: %s", e.status, e.body.Message)
	}
	return fmt.Sprintf("directory returned %d", e.status)
}

func (c *DirectoryClient) get(ctx context.Context, path string, out any) error {
	var lastErr error
	b := c.retry.Start(ctx)
	for backoff.Continue(b) {
		lastErr = c.do(ctx, path, out)
		if lastErr == nil {
			return nil
		}
		var se *statusError
		if errors.As(lastErr, &se) && se.status < http.StatusInternalServerError {
			return lastErr
		}
	}
	if lastErr == nil {
		lastErr = ctx.Err()
	}
	return lastErr
}

func (c *DirectoryClient) do(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		se := &statusError{status: res.StatusCode}
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		_ = json.Unmarshal(body, &se.body)
		return se
	}
	return json.NewDecoder(res.Body).Decode(out)
}
