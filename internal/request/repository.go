package request

import "context"

// Filter narrows a list query. Zero values mean "no constraint".
type Filter struct {
	Status       string
	CustomerCode string
	ContactEmail string
	CustomerRole string
	Page         int
	Limit        int
}

// ListResult is a single page of requests plus pagination metadata.
type ListResult struct {
	Items      []*Request
	TotalItems int
	TotalPages int
	Page       int
}

// Repository defines the interface for request persistence.
type Repository interface {
	// Get retrieves a request by ID with attachments and history.
	// Returns ErrRequestNotFound if it does not exist or is inactive.
	Get(ctx context.Context, id int64) (*Request, error)

	// List retrieves a page of active requests matching the filter,
	// newest first.
	List(ctx context.Context, filter Filter) (*ListResult, error)

	// Create persists a new request and assigns its ID.
	Create(ctx context.Context, req *Request) error

	// Update persists changes to an existing request's scalar fields.
	Update(ctx context.Context, req *Request) error

	// Upsert creates or replaces a request by its externally assigned ID.
	// Used by the external records sync.
	Upsert(ctx context.Context, req *Request) error

	// SoftDelete marks a request inactive.
	SoftDelete(ctx context.Context, id int64) error

	// AddAttachment persists an attachment row and assigns its ID.
	AddAttachment(ctx context.Context, att *Attachment) error

	// RemoveAttachments deletes attachment rows belonging to the request
	// and returns the object keys that were removed.
	RemoveAttachments(ctx context.Context, requestID int64, ids []int64) ([]string, error)

	// AppendHistory appends an audit record.
	AppendHistory(ctx context.Context, entry *HistoryEntry) error

	// Stats counts active requests by status.
	Stats(ctx context.Context) (*Stats, error)
}
