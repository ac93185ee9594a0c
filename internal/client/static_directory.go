package client

import (
	"context"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/pesio-ai/be-hr-approvals/internal/service"
)

// StaticDirectory serves employees and the department tree from memory. It
// backs local runs without an HR service.
type StaticDirectory struct {
	mu        sync.RWMutex
	employees map[string]service.Employee
	parents   map[string]string
}

type staticDirectoryFile struct {
	Employees []struct {
		ID           string `yaml:"id"`
		Name         string `yaml:"name"`
		DeptCode     string `yaml:"dept_code"`
		PositionCode string `yaml:"position_code"`
	} `yaml:"employees"`
	Departments []struct {
		Code   string `yaml:"code"`
		Parent string `yaml:"parent"`
	} `yaml:"departments"`
}

// NewStaticDirectory creates an empty directory.
func NewStaticDirectory() *StaticDirectory {
	return &StaticDirectory{
		employees: make(map[string]service.Employee),
		parents:   make(map[string]string),
	}
}

// LoadStaticDirectory reads employees and departments from a YAML file.
func LoadStaticDirectory(path string) (*StaticDirectory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read directory file %s: %w", path, err)
	}
	var f staticDirectoryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse directory file %s: %w", path, err)
	}

	d := NewStaticDirectory()
	for _, e := range f.Employees {
		d.PutEmployee(service.Employee{ID: e.ID, Name: e.Name, DeptCode: e.DeptCode, PositionCode: e.PositionCode})
	}
	for _, dept := range f.Departments {
		d.PutDepartment(dept.Code, dept.Parent)
	}
	return d, nil
}

// PutEmployee adds or replaces an employee.
func (d *StaticDirectory) PutEmployee(e service.Employee) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.employees[e.ID] = e
}

// PutDepartment records code's parent; an empty parent marks a root.
func (d *StaticDirectory) PutDepartment(code, parent string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.parents[code] = parent
}

func (d *StaticDirectory) GetEmployee(_ context.Context, employeeID string) (*service.Employee, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	e, ok := d.employees[employeeID]
	if !ok {
		return nil, fmt.Errorf("employee %s not found", employeeID)
	}
	return &e, nil
}

func (d *StaticDirectory) GetDepartmentAncestors(_ context.Context, deptCode string) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []string
	seen := map[string]bool{deptCode: true}
	for code := d.parents[deptCode]; code != "" && !seen[code] && len(out) < maxDepartmentDepth; code = d.parents[code] {
		seen[code] = true
		out = append(out, code)
	}
	return out, nil
}
