// Package request provides customer-request intake and lifecycle management.
package request

import (
	"errors"
	"time"
)

// Repository errors.
var (
	ErrRequestNotFound = errors.New("request not found")
)

// Status is the lifecycle status of a request.
type Status string

// Request statuses. Completed is terminal; Rejected only permits a
// subsequent approval.
const (
	StatusPending   Status = "Pending"
	StatusCompleted Status = "Completed"
	StatusRejected  Status = "Rejected"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusRejected:
		return true
	}
	return false
}

// Request is a customer-creation request moving through
// Pending -> Completed/Rejected.
type Request struct {
	ID            int64
	Status        Status
	CustomerCode  string
	CustomerRoles []string

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

	Notes      *string
	NoteReject *string

	Attachments []Attachment
	History     []HistoryEntry

	CreatedByUsername *string
	CreatedFromIP     *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
	Active            bool
}

// Attachment is a stored file reference associated with a request.
type Attachment struct {
	ID               int64
	RequestID        int64
	ObjectKey        string
	FileURL          string
	OriginalFilename string
	CreatedAt        time.Time
}

// HistoryEntry is an append-only audit record. Entries are written by the
// service in response to state changes and are never mutated or deleted.
type HistoryEntry struct {
	ID                int64
	RequestID         int64
	Action            string
	ChangedAt         time.Time
	ChangedByUsername *string
	ChangedFromIP     *string
}

// Actor identifies who performed an operation, for the audit history.
type Actor struct {
	Username string
	IP       string
}

// Stats summarizes active requests by status.
type Stats struct {
	Pending   int
	Completed int
	Rejected  int
	Total     int
}
