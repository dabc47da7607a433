package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strconv"
	"sync/atomic"
)

// ErrUnexpectedFormat is returned when the collection endpoint answers
// with a shape that is neither a bare array nor a paginated envelope.
// The local collection is cleared when this happens.
var ErrUnexpectedFormat = errors.New("unexpected response format")

// Filters narrows the request collection. Zero values mean no filter.
type Filters struct {
	Status       string
	CustomerCode string
	ContactEmail string
	CustomerRole string
}

// ListView holds one page of the request collection plus its pagination
// metadata. The collection is mutated only by reconciling server
// responses: Refresh replaces it wholesale, and the lifecycle controller
// replaces or removes single entries from authoritative responses.
type ListView struct {
	client *Client

	page    int
	filters Filters

	items       []Request
	totalPages  int
	totalItems  int
	currentPage int

	// seq tags each fetch so a response that arrives after a newer
	// fetch was started is discarded instead of clobbering it.
	seq atomic.Uint64
}

// NewListView returns a view over the first page with no filters.
func NewListView(client *Client) *ListView {
	return &ListView{client: client, page: 1}
}

// Items returns the current page of requests.
func (v *ListView) Items() []Request { return v.items }

// TotalPages returns the page count reported by the last fetch.
func (v *ListView) TotalPages() int { return v.totalPages }

// TotalItems returns the total match count reported by the last fetch.
func (v *ListView) TotalItems() int { return v.totalItems }

// Page returns the currently selected page.
func (v *ListView) Page() int { return v.page }

// Filters returns the active filter set.
func (v *ListView) Filters() Filters { return v.filters }

// SetPage selects a page and refetches.
func (v *ListView) SetPage(ctx context.Context, page int) error {
	if page < 1 {
		page = 1
	}
	v.page = page
	return v.Refresh(ctx)
}

// SetFilters replaces the filter set, resets to the first page, and
// triggers exactly one refetch.
func (v *ListView) SetFilters(ctx context.Context, f Filters) error {
	v.filters = f
	v.page = 1
	return v.Refresh(ctx)
}

// SetStatus changes the status filter. Like every filter change it
// resets the page to 1 and refetches once.
func (v *ListView) SetStatus(ctx context.Context, status string) error {
	f := v.filters
	f.Status = status
	return v.SetFilters(ctx, f)
}

// SetCustomerCode changes the customer code filter.
func (v *ListView) SetCustomerCode(ctx context.Context, code string) error {
	f := v.filters
	f.CustomerCode = code
	return v.SetFilters(ctx, f)
}

// SetContactEmail changes the contact email filter.
func (v *ListView) SetContactEmail(ctx context.Context, email string) error {
	f := v.filters
	f.ContactEmail = email
	return v.SetFilters(ctx, f)
}

// SetCustomerRole changes the customer role filter.
func (v *ListView) SetCustomerRole(ctx context.Context, role string) error {
	f := v.filters
	f.CustomerRole = role
	return v.SetFilters(ctx, f)
}

// Refresh fetches the current page with the active filters and replaces
// the collection with the normalized result. A format error clears the
// collection. A stale response, one that returns after a newer Refresh
// was started, is discarded silently.
func (v *ListView) Refresh(ctx context.Context) error {
	seq := v.seq.Add(1)

	raw, err := v.client.FetchRequests(ctx, v.query())
	if seq != v.seq.Load() {
		return nil
	}
	if err != nil {
		return err
	}

	env, err := normalizeCollection(raw)
	if err != nil {
		v.items = nil
		v.totalPages = 0
		v.totalItems = 0
		v.currentPage = 0
		return err
	}

	v.items = env.Items
	v.totalPages = env.TotalPages
	v.totalItems = env.TotalItems
	v.currentPage = env.CurrentPage
	return nil
}

func (v *ListView) query() url.Values {
	q := url.Values{}
	q.Set("page", strconv.Itoa(v.page))
	if v.filters.Status != "" {
		q.Set("status", v.filters.Status)
	}
	if v.filters.CustomerCode != "" {
		q.Set("customer_code", v.filters.CustomerCode)
	}
	if v.filters.ContactEmail != "" {
		q.Set("contact_email", v.filters.ContactEmail)
	}
	if v.filters.CustomerRole != "" {
		q.Set("customer_role", v.filters.CustomerRole)
	}
	return q
}

// replace swaps the entry with the same id for the server's returned
// object. No-op when the entry is not on the current page.
func (v *ListView) replace(updated Request) {
	for i := range v.items {
		if v.items[i].ID == updated.ID {
			v.items[i] = updated
			return
		}
	}
}

// remove drops the entry with the given id without refetching the page.
func (v *ListView) remove(id int64) {
	for i := range v.items {
		if v.items[i].ID == id {
			v.items = append(v.items[:i], v.items[i+1:]...)
			if v.totalItems > 0 {
				v.totalItems--
			}
			return
		}
	}
}

// normalizeCollection accepts the two shapes the backend may answer
// with. A bare array becomes a single-page envelope; an object must
// carry an items key. Anything else is ErrUnexpectedFormat.
func normalizeCollection(raw json.RawMessage) (*Envelope, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, ErrUnexpectedFormat
	}

	switch trimmed[0] {
	case '[':
		var items []Request
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, ErrUnexpectedFormat
		}
		return &Envelope{
			Items:       items,
			TotalPages:  1,
			CurrentPage: 1,
			TotalItems:  len(items),
		}, nil
	case '{':
		var env struct {
			Items       *[]Request `json:"items"`
			TotalPages  int        `json:"total_pages"`
			CurrentPage int        `json:"current_page"`
			TotalItems  int        `json:"total_items"`
		}
		if err := json.Unmarshal(trimmed, &env); err != nil || env.Items == nil {
			return nil, ErrUnexpectedFormat
		}
		return &Envelope{
			Items:       *env.Items,
			TotalPages:  env.TotalPages,
			CurrentPage: env.CurrentPage,
			TotalItems:  env.TotalItems,
		}, nil
	default:
		return nil, ErrUnexpectedFormat
	}
}
