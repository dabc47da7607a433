package request

import (
	"context"
	"sort"
	"sync"
)

// InMemoryRepository is an in-memory implementation of Repository for
// testing and local development.
type InMemoryRepository struct {
	mu          sync.RWMutex
	requests    map[int64]*Request
	attachments map[int64][]Attachment
	history     map[int64][]HistoryEntry
	nextID      int64
	nextAttID   int64
	nextHistID  int64
}

// NewInMemoryRepository creates a new in-memory request repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		requests:    make(map[int64]*Request),
		attachments: make(map[int64][]Attachment),
		history:     make(map[int64][]HistoryEntry),
	}
}

// Get retrieves an active request by ID with attachments and history.
func (r *InMemoryRepository) Get(ctx context.Context, id int64) (*Request, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	req, ok := r.requests[id]
	if !ok || !req.Active {
		return nil, ErrRequestNotFound
	}

	return r.hydrate(req), nil
}

// hydrate returns a copy of req with attachments and history attached.
// Caller must hold at least the read lock.
func (r *InMemoryRepository) hydrate(req *Request) *Request {
	copied := *req
	copied.Attachments = append([]Attachment(nil), r.attachments[req.ID]...)
	copied.History = append([]HistoryEntry(nil), r.history[req.ID]...)
	return &copied
}

// List retrieves a page of active requests matching the filter, newest first.
func (r *InMemoryRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}

	var matched []*Request
	for _, req := range r.requests {
		if !req.Active {
			continue
		}
		if filter.Status != "" && string(req.Status) != filter.Status {
			continue
		}
		if filter.CustomerCode != "" && req.CustomerCode != filter.CustomerCode {
			continue
		}
		if filter.ContactEmail != "" && req.ContactEmail != filter.ContactEmail {
			continue
		}
		if filter.CustomerRole != "" && !containsRole(req.CustomerRoles, filter.CustomerRole) {
			continue
		}
		matched = append(matched, req)
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	totalPages := (total + limit - 1) / limit
	if totalPages == 0 {
		totalPages = 1
	}

	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}

	items := make([]*Request, 0, end-start)
	for _, req := range matched[start:end] {
		items = append(items, r.hydrate(req))
	}

	return &ListResult{
		Items:      items,
		TotalItems: total,
		TotalPages: totalPages,
		Page:       page,
	}, nil
}

// Create persists a new request and assigns its ID.
func (r *InMemoryRepository) Create(ctx context.Context, req *Request) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	req.ID = r.nextID

	copied := *req
	copied.Attachments = nil
	copied.History = nil
	r.requests[req.ID] = &copied

	return nil
}

// Update persists changes to an existing request's scalar fields.
func (r *InMemoryRepository) Update(ctx context.Context, req *Request) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.requests[req.ID]
	if !ok || !existing.Active {
		return ErrRequestNotFound
	}

	copied := *req
	copied.Attachments = nil
	copied.History = nil
	r.requests[req.ID] = &copied

	return nil
}

// Upsert creates or replaces a request by its externally assigned ID.
func (r *InMemoryRepository) Upsert(ctx context.Context, req *Request) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *req
	copied.Attachments = nil
	copied.History = nil
	r.requests[req.ID] = &copied

	if req.ID > r.nextID {
		r.nextID = req.ID
	}

	return nil
}

// SoftDelete marks a request inactive.
func (r *InMemoryRepository) SoftDelete(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	req, ok := r.requests[id]
	if !ok || !req.Active {
		return ErrRequestNotFound
	}

	req.Active = false
	return nil
}

// AddAttachment persists an attachment row and assigns its ID.
func (r *InMemoryRepository) AddAttachment(ctx context.Context, att *Attachment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextAttID++
	att.ID = r.nextAttID
	r.attachments[att.RequestID] = append(r.attachments[att.RequestID], *att)

	return nil
}

// RemoveAttachments deletes attachment rows and returns their object keys.
func (r *InMemoryRepository) RemoveAttachments(ctx context.Context, requestID int64, ids []int64) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	drop := make(map[int64]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}

	var keys []string
	var kept []Attachment
	for _, att := range r.attachments[requestID] {
		if drop[att.ID] {
			keys = append(keys, att.ObjectKey)
			continue
		}
		kept = append(kept, att)
	}
	r.attachments[requestID] = kept

	return keys, nil
}

// AppendHistory appends an audit record.
func (r *InMemoryRepository) AppendHistory(ctx context.Context, entry *HistoryEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextHistID++
	entry.ID = r.nextHistID
	r.history[entry.RequestID] = append(r.history[entry.RequestID], *entry)

	return nil
}

// Stats counts active requests by status.
func (r *InMemoryRepository) Stats(ctx context.Context) (*Stats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var stats Stats
	for _, req := range r.requests {
		if !req.Active {
			continue
		}
		stats.Total++
		switch req.Status {
		case StatusPending:
			stats.Pending++
		case StatusCompleted:
			stats.Completed++
		case StatusRejected:
			stats.Rejected++
		}
	}

	return &stats, nil
}

func containsRole(roles []string, role string) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

// Ensure InMemoryRepository implements Repository interface.
var _ Repository = (*InMemoryRepository)(nil)
