// Package portal is a Go client for the RequestDesk API. It keeps a
// file-persisted session, attaches the bearer credential to every call,
// and maintains an in-memory request collection that is only ever
// mutated by reconciling authoritative server responses.
package portal

import "time"

// Request statuses as returned by the API.
const (
	StatusPending   = "Pending"
	StatusCompleted = "Completed"
	StatusRejected  = "Rejected"
)

// Attachment is a stored file reference returned with a request.
type Attachment struct {
	ID               int64  `json:"id"`
	FileURL          string `json:"file_url"`
	OriginalFilename string `json:"original_filename"`
}

// HistoryEntry is a single audit record for a request.
type HistoryEntry struct {
	ID                int64     `json:"id"`
	Action            string    `json:"action"`
	ChangedAt         time.Time `json:"changed_at"`
	ChangedByUsername *string   `json:"changed_by_username,omitempty"`
	ChangedFromIP     *string   `json:"changed_from_ip,omitempty"`
}

// Request is the full detail schema for a customer request.
type Request struct {
	ID           int64    `json:"id"`
	Status       string   `json:"status"`
	CustomerCode string   `json:"customer_code"`
	CustomerRole []string `json:"customer_role"`

	CompanyName string `json:"company_name"`
	Address     string `json:"address"`
	City        string `json:"city"`
	State       string `json:"state"`
	Phone       string `json:"phone"`
	Email       string `json:"email"`
	TaxID       string `json:"tax_id"`

	ContactName     string `json:"contact_name"`
	ContactPosition string `json:"contact_position"`
	ContactPhone    string `json:"contact_phone"`
	ContactEmail    string `json:"contact_email"`

	Notes      *string `json:"notes,omitempty"`
	NoteReject *string `json:"note_reject,omitempty"`

	Attachments []Attachment   `json:"attachments"`
	History     []HistoryEntry `json:"history"`

	CreatedByUsername *string   `json:"created_by_username,omitempty"`
	CreatedFromIP     *string   `json:"created_from_ip,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Envelope is the paginated wrapper for request collections.
type Envelope struct {
	Items       []Request `json:"items"`
	TotalPages  int       `json:"total_pages"`
	CurrentPage int       `json:"current_page"`
	TotalItems  int       `json:"total_items"`
}

// RequestUpdate is the body for a partial update. Nil fields are left
// untouched by the server.
type RequestUpdate struct {
	Status       *string  `json:"status,omitempty"`
	CustomerCode *string  `json:"customer_code,omitempty"`
	CustomerRole []string `json:"customer_role,omitempty"`
	Notes        *string  `json:"notes,omitempty"`
	NoteReject   *string  `json:"note_reject,omitempty"`

	CompanyName *string `json:"company_name,omitempty"`
	Address     *string `json:"address,omitempty"`
	City        *string `json:"city,omitempty"`
	State       *string `json:"state,omitempty"`
	Phone       *string `json:"phone,omitempty"`
	Email       *string `json:"email,omitempty"`
	TaxID       *string `json:"tax_id,omitempty"`

	ContactName     *string `json:"contact_name,omitempty"`
	ContactPosition *string `json:"contact_position,omitempty"`
	ContactPhone    *string `json:"contact_phone,omitempty"`
	ContactEmail    *string `json:"contact_email,omitempty"`

	AttachmentsToDelete []int64 `json:"attachments_to_delete,omitempty"`
}

// Stats summarizes active requests by status.
type Stats struct {
	Pending   int `json:"pending"`
	Completed int `json:"completed"`
	Rejected  int `json:"rejected"`
	Total     int `json:"total"`
}

// Session is the credential and identity pair used to authorize API calls.
type Session struct {
	User  string `json:"user"`
	Token string `json:"token"`
}

// CanApprove reports whether the approve action is available for the
// given status. Completed is terminal; Rejected may still be approved.
func CanApprove(status string) bool {
	return status == StatusPending || status == StatusRejected
}

// CanReject reports whether the reject action is available for the
// given status.
func CanReject(status string) bool {
	return status == StatusPending
}
