package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"mime/multipart"
	"net"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/requestdesk/requestdesk/internal/api/models"
	"github.com/requestdesk/requestdesk/internal/api/response"
	"github.com/requestdesk/requestdesk/internal/attachment"
	"github.com/requestdesk/requestdesk/internal/request"
)

// maxUploadBytes bounds multipart submissions (32 MiB).
const maxUploadBytes = 32 << 20

// RequestHandler handles customer-request endpoints.
type RequestHandler struct {
	requestService *request.Service
}

// NewRequestHandler creates a new RequestHandler.
func NewRequestHandler(requestService *request.Service) *RequestHandler {
	return &RequestHandler{
		requestService: requestService,
	}
}

// List handles GET /api/requests/ - paginated, filterable collection.
func (h *RequestHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	filter := request.Filter{
		Status:       query.Get("status"),
		CustomerCode: query.Get("customer_code"),
		ContactEmail: query.Get("contact_email"),
		CustomerRole: query.Get("customer_role"),
	}
	if page := query.Get("page"); page != "" {
		filter.Page, _ = strconv.Atoi(page)
	}
	if limit := query.Get("limit"); limit != "" {
		filter.Limit, _ = strconv.Atoi(limit)
	}

	if filter.Status != "" && !request.Status(filter.Status).Valid() {
		response.BadRequest(w, r, "validation error", []models.FieldError{
			{Field: "status", Message: fmt.Sprintf("unknown status %q", filter.Status)},
		})
		return
	}

	envelope, err := h.requestService.List(r.Context(), filter)
	if err != nil {
		response.InternalError(w, r, "failed to list requests")
		return
	}

	response.JSON(w, r, http.StatusOK, envelope)
}

// Get handles GET /api/requests/{id}/ - full detail with attachments and
// history.
func (h *RequestHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := requestID(w, r)
	if !ok {
		return
	}

	result, err := h.requestService.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, request.ErrRequestNotFound) {
			response.NotFound(w, r, "request not found")
			return
		}
		response.InternalError(w, r, "failed to load request")
		return
	}

	response.JSON(w, r, http.StatusOK, result)
}

// Create handles POST /api/requests/ - multipart submission with optional
// file attachments.
func (h *RequestHandler) Create(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		response.BadRequest(w, r, "invalid multipart form", nil)
		return
	}

	form := r.MultipartForm
	input := &request.CreateInput{
		CustomerCode:    formValue(form, "customer_code"),
		CustomerRole:    form.Value["customer_role"],
		CompanyName:     formValue(form, "company_name"),
		Address:         formValue(form, "address"),
		City:            formValue(form, "city"),
		State:           formValue(form, "state"),
		Phone:           formValue(form, "phone"),
		Email:           formValue(form, "email"),
		TaxID:           formValue(form, "tax_id"),
		ContactName:     formValue(form, "contact_name"),
		ContactPosition: formValue(form, "contact_position"),
		ContactPhone:    formValue(form, "contact_phone"),
		ContactEmail:    formValue(form, "contact_email"),
	}
	if notes := formValue(form, "notes"); notes != "" {
		input.Notes = &notes
	}

	uploads, closers, err := formUploads(form)
	if err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return
	}
	defer closeAll(closers)
	input.Uploads = uploads

	result, err := h.requestService.Create(r.Context(), input, actorFrom(r))
	if err != nil {
		var validationErr *request.ValidationError
		if errors.As(err, &validationErr) {
			response.BadRequest(w, r, "validation error", validationErr.Errors)
			return
		}
		response.InternalError(w, r, "failed to create request")
		return
	}

	response.Created(w, r, fmt.Sprintf("/api/requests/%d/", result.ID), result)
}

// Update handles PATCH /api/requests/{id}/ - partial update accepting JSON
// or, when new files accompany the change, multipart.
func (h *RequestHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := requestID(w, r)
	if !ok {
		return
	}

	var input *request.UpdateInput
	var closers []multipart.File
	var err error

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		input, closers, err = h.parseMultipartUpdate(r)
	} else {
		input, err = parseJSONUpdate(r)
	}
	if err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return
	}
	defer closeAll(closers)

	result, err := h.requestService.Update(r.Context(), id, input, actorFrom(r))
	if err != nil {
		h.writeUpdateError(w, r, err)
		return
	}

	response.JSON(w, r, http.StatusOK, result)
}

// Delete handles DELETE /api/requests/{id}/ - soft delete.
func (h *RequestHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := requestID(w, r)
	if !ok {
		return
	}

	if err := h.requestService.Delete(r.Context(), id, actorFrom(r)); err != nil {
		switch {
		case errors.Is(err, request.ErrRequestNotFound):
			response.NotFound(w, r, "request not found")
		case errors.Is(err, request.ErrRequestCompleted):
			response.Conflict(w, r, "completed requests cannot be deleted")
		default:
			response.InternalError(w, r, "failed to delete request")
		}
		return
	}

	response.NoContent(w, r)
}

// Stats handles GET /api/requests/stats/ - status counts for the dashboard.
func (h *RequestHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.requestService.Stats(r.Context())
	if err != nil {
		response.InternalError(w, r, "failed to compute stats")
		return
	}

	response.JSON(w, r, http.StatusOK, stats)
}

func (h *RequestHandler) writeUpdateError(w http.ResponseWriter, r *http.Request, err error) {
	var validationErr *request.ValidationError
	switch {
	case errors.Is(err, request.ErrRequestNotFound):
		response.NotFound(w, r, "request not found")
	case errors.Is(err, request.ErrRequestCompleted):
		response.Conflict(w, r, "completed requests cannot be modified")
	case errors.Is(err, request.ErrInvalidTransition):
		response.Conflict(w, r, err.Error())
	case errors.As(err, &validationErr):
		response.BadRequest(w, r, "validation error", validationErr.Errors)
	default:
		response.InternalError(w, r, "failed to update request")
	}
}

// parseJSONUpdate decodes a JSON partial-update body.
func parseJSONUpdate(r *http.Request) (*request.UpdateInput, error) {
	var body models.RequestUpdate
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("invalid JSON body")
	}

	input := &request.UpdateInput{
		CustomerCode:        body.CustomerCode,
		CustomerRole:        body.CustomerRole,
		Notes:               body.Notes,
		NoteReject:          body.NoteReject,
		CompanyName:         body.CompanyName,
		Address:             body.Address,
		City:                body.City,
		State:               body.State,
		Phone:               body.Phone,
		Email:               body.Email,
		TaxID:               body.TaxID,
		ContactName:         body.ContactName,
		ContactPosition:     body.ContactPosition,
		ContactPhone:        body.ContactPhone,
		ContactEmail:        body.ContactEmail,
		AttachmentsToDelete: body.AttachmentsToDelete,
	}
	if body.Status != nil {
		status := request.Status(*body.Status)
		input.Status = &status
	}

	return input, nil
}

// parseMultipartUpdate reads a partial update from form fields. Only fields
// present in the form are applied.
func (h *RequestHandler) parseMultipartUpdate(r *http.Request) (*request.UpdateInput, []multipart.File, error) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return nil, nil, fmt.Errorf("invalid multipart form")
	}
	form := r.MultipartForm

	input := &request.UpdateInput{}

	setField := func(name string, dst **string) {
		if values, ok := form.Value[name]; ok && len(values) > 0 {
			value := values[0]
			*dst = &value
		}
	}

	setField("customer_code", &input.CustomerCode)
	setField("notes", &input.Notes)
	setField("note_reject", &input.NoteReject)
	setField("company_name", &input.CompanyName)
	setField("address", &input.Address)
	setField("city", &input.City)
	setField("state", &input.State)
	setField("phone", &input.Phone)
	setField("email", &input.Email)
	setField("tax_id", &input.TaxID)
	setField("contact_name", &input.ContactName)
	setField("contact_position", &input.ContactPosition)
	setField("contact_phone", &input.ContactPhone)
	setField("contact_email", &input.ContactEmail)

	if values, ok := form.Value["status"]; ok && len(values) > 0 {
		status := request.Status(values[0])
		input.Status = &status
	}
	if roles, ok := form.Value["customer_role"]; ok {
		input.CustomerRole = roles
	}
	for _, raw := range form.Value["attachments_to_delete"] {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid attachment ID %q", raw)
		}
		input.AttachmentsToDelete = append(input.AttachmentsToDelete, id)
	}

	uploads, closers, err := formUploads(form)
	if err != nil {
		return nil, nil, err
	}
	input.Uploads = uploads

	return input, closers, nil
}

// formValue returns the first value for the field, or empty.
func formValue(form *multipart.Form, name string) string {
	if values, ok := form.Value[name]; ok && len(values) > 0 {
		return values[0]
	}
	return ""
}

// formUploads opens the files uploaded under the attachments field. The
// returned files must be closed by the caller after the service consumed
// them.
func formUploads(form *multipart.Form) ([]attachment.Upload, []multipart.File, error) {
	var uploads []attachment.Upload
	var closers []multipart.File

	for _, header := range form.File["attachments"] {
		file, err := header.Open()
		if err != nil {
			closeAll(closers)
			return nil, nil, fmt.Errorf("reading upload %q", header.Filename)
		}
		closers = append(closers, file)
		uploads = append(uploads, attachment.Upload{
			Filename:    header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Size:        header.Size,
			Content:     file,
		})
	}

	return uploads, closers, nil
}

func closeAll(files []multipart.File) {
	for _, f := range files {
		_ = f.Close()
	}
}

// requestID parses the id path parameter, writing a 400 on failure.
func requestID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(w, r, fmt.Sprintf("invalid request ID %q", raw), nil)
		return 0, false
	}
	return id, true
}

// actorFrom builds the audit actor from the authenticated identity and the
// client address resolved by the RealIP middleware.
func actorFrom(r *http.Request) request.Actor {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	return request.Actor{
		Username: GetUsername(r.Context()),
		IP:       ip,
	}
}
