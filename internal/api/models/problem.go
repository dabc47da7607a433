package models

import (
	"encoding/json"
	"net/http"
)

// Problem is an RFC 7807 error body. Every error the API returns is one of
// these, served with Content-Type application/problem+json.
type Problem struct {
	// Type is a URI reference identifying the problem type.
	Type string `json:"type"`

	// Title is a short, human-readable summary of the problem type.
	Title string `json:"title"`

	// Status is the HTTP status code for this occurrence.
	Status int `json:"status"`

	// Detail explains this specific occurrence.
	Detail string `json:"detail,omitempty"`

	// Instance identifies the specific occurrence, usually the request path.
	Instance string `json:"instance,omitempty"`

	// TraceID is the request correlation identifier.
	TraceID string `json:"traceId"`

	// Errors carries per-field validation failures.
	Errors []FieldError `json:"errors,omitempty"`
}

// FieldError represents a validation error on a specific field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Problem type URIs.
const (
	ProblemTypeValidation      = "https://api.requestdesk.io/problems/validation-error"
	ProblemTypeUnauthorized    = "https://api.requestdesk.io/problems/unauthorized"
	ProblemTypeNotFound        = "https://api.requestdesk.io/problems/not-found"
	ProblemTypeConflict        = "https://api.requestdesk.io/problems/conflict"
	ProblemTypeTooManyRequests = "https://api.requestdesk.io/problems/too-many-requests"
	ProblemTypeInternal        = "https://api.requestdesk.io/problems/internal-error"
	ProblemTypeUnavailable     = "https://api.requestdesk.io/problems/service-unavailable"
)

// NewProblem creates a Problem with the given type, title, status and trace ID.
func NewProblem(problemType, title string, status int, traceID string) *Problem {
	return &Problem{
		Type:    problemType,
		Title:   title,
		Status:  status,
		TraceID: traceID,
	}
}

// WithDetail sets the detail message.
func (p *Problem) WithDetail(detail string) *Problem {
	p.Detail = detail
	return p
}

// WithInstance sets the occurrence URI.
func (p *Problem) WithInstance(instance string) *Problem {
	p.Instance = instance
	return p
}

// WithErrors attaches field validation errors.
func (p *Problem) WithErrors(errors []FieldError) *Problem {
	p.Errors = errors
	return p
}

// Write serializes the Problem to the response. The trace ID is repeated in
// the X-Request-Id header so clients that drop the body can still correlate.
func (p *Problem) Write(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.Header().Set("X-Request-Id", p.TraceID)
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

func newProblemWithDetail(problemType, title string, status int, traceID, detail string) *Problem {
	p := NewProblem(problemType, title, status, traceID)
	p.Detail = detail
	return p
}

// NewBadRequest creates a 400 Bad Request problem.
func NewBadRequest(traceID, detail string, errors []FieldError) *Problem {
	p := newProblemWithDetail(ProblemTypeValidation, "Validation error", http.StatusBadRequest, traceID, detail)
	p.Errors = errors
	return p
}

// NewUnauthorized creates a 401 Unauthorized problem.
func NewUnauthorized(traceID, detail string) *Problem {
	return newProblemWithDetail(ProblemTypeUnauthorized, "Unauthorized", http.StatusUnauthorized, traceID, detail)
}

// NewNotFound creates a 404 Not Found problem.
func NewNotFound(traceID, detail string) *Problem {
	return newProblemWithDetail(ProblemTypeNotFound, "Not found", http.StatusNotFound, traceID, detail)
}

// NewConflict creates a 409 Conflict problem.
func NewConflict(traceID, detail string) *Problem {
	return newProblemWithDetail(ProblemTypeConflict, "Conflict", http.StatusConflict, traceID, detail)
}

// NewTooManyRequests creates a 429 Too Many Requests problem.
func NewTooManyRequests(traceID, detail string) *Problem {
	return newProblemWithDetail(ProblemTypeTooManyRequests, "Too many requests", http.StatusTooManyRequests, traceID, detail)
}

// NewInternalError creates a 500 Internal Server Error problem.
func NewInternalError(traceID, detail string) *Problem {
	return newProblemWithDetail(ProblemTypeInternal, "Internal server error", http.StatusInternalServerError, traceID, detail)
}

// NewServiceUnavailable creates a 503 Service Unavailable problem.
func NewServiceUnavailable(traceID, detail string) *Problem {
	return newProblemWithDetail(ProblemTypeUnavailable, "Service unavailable", http.StatusServiceUnavailable, traceID, detail)
}
