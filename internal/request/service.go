package request

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/requestdesk/requestdesk/internal/api/models"
	"github.com/requestdesk/requestdesk/internal/attachment"
)

// Service errors.
var (
	// ErrRequestCompleted is returned when an operation targets a request
	// that has reached the Completed terminal status.
	ErrRequestCompleted = errors.New("request is already completed")

	// ErrInvalidTransition is returned for a status change the lifecycle
	// does not define.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// History action labels.
const (
	actionCreated  = "Request created."
	actionApproved = "Request approved and marked as completed."
	actionRejected = "Request rejected."
	actionDeleted  = "Request deleted (marked as inactive)."
)

// DefaultPageSize bounds list pages when the caller does not pass a limit.
const DefaultPageSize = 20

// LifecycleEvent describes a state change for downstream consumers.
type LifecycleEvent struct {
	RequestID int64
	Action    string
	Status    Status
	Actor     string
}

// ChangeNotifier receives lifecycle events after a state change commits.
// Delivery failures are logged, never surfaced to the caller.
type ChangeNotifier interface {
	RequestChanged(ctx context.Context, ev LifecycleEvent) error
}

// CreateInput carries a new submission. Attachments are stored before the
// request row is written so the row always references stored objects.
type CreateInput struct {
	CustomerCode string
	CustomerRole []string
	Notes        *string

	CompanyName string
	Address     string
	City        string
	State       string
	Phone       string
	Email       string
	TaxID       string

	ContactName     string
	ContactPosition string
	ContactPhone    string
	ContactEmail    string

	Uploads []attachment.Upload
}

// UpdateInput carries a partial update. Nil pointers leave fields untouched.
type UpdateInput struct {
	Status       *Status
	CustomerCode *string
	CustomerRole []string
	Notes        *string
	NoteReject   *string

	CompanyName *string
	Address     *string
	City        *string
	State       *string
	Phone       *string
	Email       *string
	TaxID       *string

	ContactName     *string
	ContactPosition *string
	ContactPhone    *string
	ContactEmail    *string

	AttachmentsToDelete []int64
	Uploads             []attachment.Upload
}

// Service owns the request lifecycle: it validates transitions, persists
// whole-object state, stores attachments, and appends audit history. The
// backend is the sole authority on status; clients only render what it
// returns.
type Service struct {
	repo     Repository
	storage  attachment.Storage
	notifier ChangeNotifier
	logger   zerolog.Logger
}

// ServiceConfig holds configuration for the request service.
type ServiceConfig struct {
	Repository Repository
	Storage    attachment.Storage
	Notifier   ChangeNotifier
	Logger     zerolog.Logger
}

// NewService creates a new request service.
func NewService(cfg ServiceConfig) *Service {
	return &Service{
		repo:     cfg.Repository,
		storage:  cfg.Storage,
		notifier: cfg.Notifier,
		logger:   cfg.Logger,
	}
}

// List retrieves a page of active requests matching the filter and wraps it
// in the pagination envelope.
func (s *Service) List(ctx context.Context, filter Filter) (*models.RequestEnvelope, error) {
	if filter.Page <= 0 {
		filter.Page = 1
	}
	if filter.Limit <= 0 {
		filter.Limit = DefaultPageSize
	}

	result, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	items := make([]models.Request, 0, len(result.Items))
	for _, r := range result.Items {
		items = append(items, s.toAPIRequest(r))
	}

	return &models.RequestEnvelope{
		Items:       items,
		TotalPages:  result.TotalPages,
		CurrentPage: result.Page,
		TotalItems:  result.TotalItems,
	}, nil
}

// Get retrieves a single request with attachments and history.
func (s *Service) Get(ctx context.Context, id int64) (*models.Request, error) {
	req, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	result := s.toAPIRequest(req)
	return &result, nil
}

// Create creates a new request with status Pending and logs the creation.
func (s *Service) Create(ctx context.Context, input *CreateInput, actor Actor) (*models.Request, error) {
	if fieldErrors := s.validateCreateInput(input); len(fieldErrors) > 0 {
		return nil, &ValidationError{Errors: fieldErrors}
	}

	now := time.Now()
	req := &Request{
		Status:          StatusPending,
		CustomerCode:    strings.TrimSpace(input.CustomerCode),
		CustomerRoles:   input.CustomerRole,
		CompanyName:     input.CompanyName,
		Address:         input.Address,
		City:            input.City,
		State:           input.State,
		Phone:           input.Phone,
		Email:           input.Email,
		TaxID:           input.TaxID,
		ContactName:     input.ContactName,
		ContactPosition: input.ContactPosition,
		ContactPhone:    input.ContactPhone,
		ContactEmail:    input.ContactEmail,
		Notes:           input.Notes,
		CreatedAt:       now,
		UpdatedAt:       now,
		Active:          true,
	}
	if actor.Username != "" {
		req.CreatedByUsername = &actor.Username
	}
	if actor.IP != "" {
		req.CreatedFromIP = &actor.IP
	}

	if err := s.repo.Create(ctx, req); err != nil {
		return nil, err
	}

	for _, upload := range input.Uploads {
		att, err := s.storeUpload(ctx, req.ID, upload)
		if err != nil {
			return nil, err
		}
		req.Attachments = append(req.Attachments, *att)
	}

	if err := s.appendHistory(ctx, req, actionCreated, actor); err != nil {
		return nil, err
	}

	s.notifyChange(ctx, req, actionCreated, actor)

	result := s.toAPIRequest(req)
	return &result, nil
}

// Update applies a partial update to a request, enforcing the lifecycle:
//
//	Pending  --approve--> Completed   (terminal)
//	Pending  --reject---> Rejected
//	Rejected --approve--> Completed   (terminal)
//
// Completed admits no further update of any kind. Every effective change is
// recorded in the audit history.
func (s *Service) Update(ctx context.Context, id int64, input *UpdateInput, actor Actor) (*models.Request, error) {
	req, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Status == StatusCompleted {
		return nil, ErrRequestCompleted
	}

	merged := s.mergedForValidation(req, input)
	if input.Status != nil {
		if err := validateTransition(req.Status, *input.Status, merged); err != nil {
			return nil, err
		}
	}

	var changes []string
	applyString := func(field string, dst *string, src *string) {
		if src != nil && *dst != *src {
			changes = append(changes, fmt.Sprintf("%s changed from %q to %q.", field, *dst, *src))
			*dst = *src
		}
	}
	applyOptional := func(field string, dst **string, src *string) {
		if src == nil {
			return
		}
		old := ""
		if *dst != nil {
			old = **dst
		}
		if old != *src {
			changes = append(changes, fmt.Sprintf("%s changed from %q to %q.", field, old, *src))
			value := *src
			*dst = &value
		}
	}

	applyString("customer_code", &req.CustomerCode, input.CustomerCode)
	applyString("company_name", &req.CompanyName, input.CompanyName)
	applyString("address", &req.Address, input.Address)
	applyString("city", &req.City, input.City)
	applyString("state", &req.State, input.State)
	applyString("phone", &req.Phone, input.Phone)
	applyString("email", &req.Email, input.Email)
	applyString("tax_id", &req.TaxID, input.TaxID)
	applyString("contact_name", &req.ContactName, input.ContactName)
	applyString("contact_position", &req.ContactPosition, input.ContactPosition)
	applyString("contact_phone", &req.ContactPhone, input.ContactPhone)
	applyString("contact_email", &req.ContactEmail, input.ContactEmail)
	applyOptional("notes", &req.Notes, input.Notes)
	applyOptional("note_reject", &req.NoteReject, input.NoteReject)

	if input.CustomerRole != nil && !equalRoles(req.CustomerRoles, input.CustomerRole) {
		changes = append(changes, fmt.Sprintf("customer_role changed to %q.", strings.Join(input.CustomerRole, ", ")))
		req.CustomerRoles = input.CustomerRole
	}

	action := ""
	if input.Status != nil && req.Status != *input.Status {
		req.Status = *input.Status
		changes = append(changes, fmt.Sprintf("Status changed to %q.", req.Status))
		switch req.Status {
		case StatusCompleted:
			action = actionApproved
		case StatusRejected:
			action = actionRejected
		}
	}

	if len(input.AttachmentsToDelete) > 0 {
		keys, err := s.repo.RemoveAttachments(ctx, req.ID, input.AttachmentsToDelete)
		if err != nil {
			return nil, err
		}
		for _, key := range keys {
			if err := s.storage.Remove(ctx, key); err != nil {
				s.logger.Warn().Err(err).Str("object_key", key).Msg("failed to remove stored attachment")
			}
		}
		changes = append(changes, fmt.Sprintf("%d attachment(s) removed.", len(keys)))
		req.Attachments = dropAttachments(req.Attachments, input.AttachmentsToDelete)
	}

	for _, upload := range input.Uploads {
		att, err := s.storeUpload(ctx, req.ID, upload)
		if err != nil {
			return nil, err
		}
		req.Attachments = append(req.Attachments, *att)
		changes = append(changes, fmt.Sprintf("Attachment %q added.", att.OriginalFilename))
	}

	if len(changes) == 0 {
		result := s.toAPIRequest(req)
		return &result, nil
	}

	req.UpdatedAt = time.Now()
	if err := s.repo.Update(ctx, req); err != nil {
		return nil, err
	}

	logged := strings.Join(changes, " ")
	if err := s.appendHistory(ctx, req, logged, actor); err != nil {
		return nil, err
	}

	if action != "" {
		s.notifyChange(ctx, req, action, actor)
	}

	result := s.toAPIRequest(req)
	return &result, nil
}

// Delete soft-deletes a request. Completed requests cannot be deleted.
func (s *Service) Delete(ctx context.Context, id int64, actor Actor) error {
	req, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}

	if req.Status == StatusCompleted {
		return ErrRequestCompleted
	}

	if err := s.repo.SoftDelete(ctx, id); err != nil {
		return err
	}

	if err := s.appendHistory(ctx, req, actionDeleted, actor); err != nil {
		return err
	}

	s.notifyChange(ctx, req, actionDeleted, actor)
	return nil
}

// Stats counts active requests by status.
func (s *Service) Stats(ctx context.Context) (*models.Stats, error) {
	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return nil, err
	}

	return &models.Stats{
		Pending:   stats.Pending,
		Completed: stats.Completed,
		Rejected:  stats.Rejected,
		Total:     stats.Total,
	}, nil
}

// validateTransition enforces the lifecycle table. merged holds the field
// values as they would be after the update is applied.
func validateTransition(from, to Status, merged *Request) error {
	if !to.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, to)
	}
	if from == to {
		// Re-submitting Rejected is a second reject, which the lifecycle
		// refuses. Restating any other current status is a no-op.
		if to == StatusRejected {
			return fmt.Errorf("%w: request is already rejected", ErrInvalidTransition)
		}
		return nil
	}

	switch to {
	case StatusCompleted:
		// Approval is allowed from Pending and from Rejected.
		var fieldErrors []models.FieldError
		if strings.TrimSpace(merged.CustomerCode) == "" {
			fieldErrors = append(fieldErrors, models.FieldError{Field: "customer_code", Message: "is required to approve"})
		}
		if len(merged.CustomerRoles) == 0 {
			fieldErrors = append(fieldErrors, models.FieldError{Field: "customer_role", Message: "is required to approve"})
		}
		if len(fieldErrors) > 0 {
			return &ValidationError{Errors: fieldErrors}
		}
		return nil
	case StatusRejected:
		if from != StatusPending {
			return fmt.Errorf("%w: only a pending request can be rejected", ErrInvalidTransition)
		}
		if merged.NoteReject == nil || strings.TrimSpace(*merged.NoteReject) == "" {
			return &ValidationError{Errors: []models.FieldError{
				{Field: "note_reject", Message: "is required to reject"},
			}}
		}
		return nil
	case StatusPending:
		// Re-opening is not part of the lifecycle.
		return fmt.Errorf("%w: cannot return to %q", ErrInvalidTransition, StatusPending)
	}

	return ErrInvalidTransition
}

// mergedForValidation overlays the update on a copy of the request so the
// transition check sees post-update values.
func (s *Service) mergedForValidation(req *Request, input *UpdateInput) *Request {
	merged := *req
	if input.CustomerCode != nil {
		merged.CustomerCode = *input.CustomerCode
	}
	if input.CustomerRole != nil {
		merged.CustomerRoles = input.CustomerRole
	}
	if input.NoteReject != nil {
		value := *input.NoteReject
		merged.NoteReject = &value
	}
	return &merged
}

// validateCreateInput validates a new submission.
func (s *Service) validateCreateInput(input *CreateInput) []models.FieldError {
	var errs []models.FieldError

	if strings.TrimSpace(input.ContactEmail) == "" {
		errs = append(errs, models.FieldError{Field: "contact_email", Message: "is required"})
	}
	if strings.TrimSpace(input.CompanyName) == "" {
		errs = append(errs, models.FieldError{Field: "company_name", Message: "is required"})
	}

	return errs
}

// storeUpload writes an upload to object storage and records the row.
func (s *Service) storeUpload(ctx context.Context, requestID int64, upload attachment.Upload) (*Attachment, error) {
	key := fmt.Sprintf("attachments/%d/%s%s", requestID, uuid.New().String(), path.Ext(upload.Filename))

	url, err := s.storage.Put(ctx, key, upload)
	if err != nil {
		return nil, fmt.Errorf("storing upload %q: %w", upload.Filename, err)
	}

	att := &Attachment{
		RequestID:        requestID,
		ObjectKey:        key,
		FileURL:          url,
		OriginalFilename: upload.Filename,
		CreatedAt:        time.Now(),
	}
	if err := s.repo.AddAttachment(ctx, att); err != nil {
		return nil, err
	}

	return att, nil
}

// appendHistory writes an audit record and mirrors it on the in-memory
// request so responses include it without a re-read.
func (s *Service) appendHistory(ctx context.Context, req *Request, action string, actor Actor) error {
	entry := &HistoryEntry{
		RequestID: req.ID,
		Action:    action,
		ChangedAt: time.Now(),
	}
	if actor.Username != "" {
		entry.ChangedByUsername = &actor.Username
	}
	if actor.IP != "" {
		entry.ChangedFromIP = &actor.IP
	}

	if err := s.repo.AppendHistory(ctx, entry); err != nil {
		return fmt.Errorf("appending history: %w", err)
	}

	req.History = append(req.History, *entry)
	return nil
}

func (s *Service) notifyChange(ctx context.Context, req *Request, action string, actor Actor) {
	if s.notifier == nil {
		return
	}
	ev := LifecycleEvent{
		RequestID: req.ID,
		Action:    action,
		Status:    req.Status,
		Actor:     actor.Username,
	}
	if err := s.notifier.RequestChanged(ctx, ev); err != nil {
		s.logger.Warn().Err(err).Int64("request_id", req.ID).Msg("failed to publish lifecycle event")
	}
}

// toAPIRequest converts a domain Request to its API representation.
func (s *Service) toAPIRequest(r *Request) models.Request {
	attachments := make([]models.Attachment, 0, len(r.Attachments))
	for _, a := range r.Attachments {
		attachments = append(attachments, models.Attachment{
			ID:               a.ID,
			FileURL:          a.FileURL,
			OriginalFilename: a.OriginalFilename,
		})
	}

	history := make([]models.HistoryEntry, 0, len(r.History))
	for _, h := range r.History {
		history = append(history, models.HistoryEntry{
			ID:                h.ID,
			Action:            h.Action,
			ChangedAt:         models.Timestamp(h.ChangedAt),
			ChangedByUsername: h.ChangedByUsername,
			ChangedFromIP:     h.ChangedFromIP,
		})
	}

	roles := r.CustomerRoles
	if roles == nil {
		roles = []string{}
	}

	return models.Request{
		ID:                r.ID,
		Status:            string(r.Status),
		CustomerCode:      r.CustomerCode,
		CustomerRole:      roles,
		CompanyName:       r.CompanyName,
		Address:           r.Address,
		City:              r.City,
		State:             r.State,
		Phone:             r.Phone,
		Email:             r.Email,
		TaxID:             r.TaxID,
		ContactName:       r.ContactName,
		ContactPosition:   r.ContactPosition,
		ContactPhone:      r.ContactPhone,
		ContactEmail:      r.ContactEmail,
		Notes:             r.Notes,
		NoteReject:        r.NoteReject,
		Attachments:       attachments,
		History:           history,
		CreatedByUsername: r.CreatedByUsername,
		CreatedFromIP:     r.CreatedFromIP,
		CreatedAt:         models.Timestamp(r.CreatedAt),
		UpdatedAt:         models.Timestamp(r.UpdatedAt),
	}
}

func equalRoles(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func dropAttachments(atts []Attachment, ids []int64) []Attachment {
	drop := make(map[int64]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	kept := atts[:0]
	for _, a := range atts {
		if !drop[a.ID] {
			kept = append(kept, a)
		}
	}
	return kept
}

// ValidationError represents validation errors.
type ValidationError struct {
	Errors []models.FieldError
}

func (e *ValidationError) Error() string {
	return "validation failed"
}
