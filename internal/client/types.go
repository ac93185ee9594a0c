package client

// EmployeeResponse is the HR service's employee payload.
type EmployeeResponse struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	DeptCode     string `json:"dept_code"`
	PositionCode string `json:"position_code"`
	Active       bool   `json:"active"`
}

// DepartmentResponse is the HR service's department payload.
type DepartmentResponse struct {
	Code       string `json:"code"`
	Name       string `json:"name"`
	ParentCode string `json:"parent_code"`
}

// ErrorResponse is the HR service's error body.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
