// Package response writes API responses: JSON bodies with request ID
// correlation headers, and RFC7807 problem documents for errors.
package response

import (
	"encoding/json"
	"net/http"

	"github.com/requestdesk/requestdesk/internal/api/middleware"
	"github.com/requestdesk/requestdesk/internal/api/models"
)

// correlate sets the X-Request-Id header when a request ID is present.
func correlate(w http.ResponseWriter, r *http.Request) {
	if requestID := middleware.GetRequestID(r.Context()); requestID != "" {
		w.Header().Set("X-Request-Id", requestID)
	}
}

// writeJSON writes a JSON body with the given status. A nil body writes the
// status line only.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	correlate(w, r)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	writeJSON(w, r, status, data)
}

// Created writes a 201 with a Location header.
func Created(w http.ResponseWriter, r *http.Request, location string, data interface{}) {
	if location != "" {
		w.Header().Set("Location", location)
	}
	writeJSON(w, r, http.StatusCreated, data)
}

// NoContent writes a 204 with no body.
func NoContent(w http.ResponseWriter, r *http.Request) {
	correlate(w, r)
	w.WriteHeader(http.StatusNoContent)
}

// Error writes a Problem+JSON error response.
func Error(w http.ResponseWriter, r *http.Request, problem *models.Problem) {
	problem.Instance = r.URL.Path
	problem.Write(w)
}

// BadRequest writes a 400 with optional field-level errors.
func BadRequest(w http.ResponseWriter, r *http.Request, detail string, errors []models.FieldError) {
	traceID := middleware.GetRequestID(r.Context())
	Error(w, r, models.NewBadRequest(traceID, detail, errors))
}

// Unauthorized writes a 401.
func Unauthorized(w http.ResponseWriter, r *http.Request, detail string) {
	traceID := middleware.GetRequestID(r.Context())
	Error(w, r, models.NewUnauthorized(traceID, detail))
}

// NotFound writes a 404.
func NotFound(w http.ResponseWriter, r *http.Request, detail string) {
	traceID := middleware.GetRequestID(r.Context())
	Error(w, r, models.NewNotFound(traceID, detail))
}

// Conflict writes a 409. Used for updates refused by the request lifecycle.
func Conflict(w http.ResponseWriter, r *http.Request, detail string) {
	traceID := middleware.GetRequestID(r.Context())
	Error(w, r, models.NewConflict(traceID, detail))
}

// InternalError writes a 500.
func InternalError(w http.ResponseWriter, r *http.Request, detail string) {
	traceID := middleware.GetRequestID(r.Context())
	Error(w, r, models.NewInternalError(traceID, detail))
}

// ServiceUnavailable writes a 503. Used by readiness when a dependency is
// unreachable.
func ServiceUnavailable(w http.ResponseWriter, r *http.Request, detail string) {
	traceID := middleware.GetRequestID(r.Context())
	Error(w, r, models.NewServiceUnavailable(traceID, detail))
}
