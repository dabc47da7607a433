package middleware

import (
	"mime"
	"net/http"

	"github.com/requestdesk/requestdesk/internal/api/models"
)

// ContentTypeJSON defaults the response Content-Type to application/json.
// Handlers that write a different type (problem+json, attachments) set the
// header themselves before the first write.
func ContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if w.Header().Get("Content-Type") == "" {
			w.Header().Set("Content-Type", "application/json")
		}
		next.ServeHTTP(w, r)
	})
}

// RequireJSON rejects POST/PUT/PATCH bodies that are not JSON. Applied to
// the auth routes only; request routes accept multipart uploads.
func RequireJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch:
			ct := r.Header.Get("Content-Type")
			if ct == "" {
				break
			}
			mediaType, _, err := mime.ParseMediaType(ct)
			if err != nil || mediaType != "application/json" {
				problem := models.NewProblem(
					models.ProblemTypeValidation,
					"Unsupported Media Type",
					http.StatusUnsupportedMediaType,
					GetRequestID(r.Context()),
				)
				problem.Detail = "Content-Type must be application/json"
				problem.Instance = r.URL.Path
				problem.Write(w)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
