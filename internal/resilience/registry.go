package resilience

import (
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// ProviderHealth is a point-in-time snapshot of one upstream endpoint, as
// served by GET /api/ops/providers.
type ProviderHealth struct {
	// Name identifies the upstream, e.g. the intake records endpoint.
	Name string

	// CircuitState is the breaker state at snapshot time.
	CircuitState gobreaker.State

	// Counts carries the breaker's rolling request statistics.
	Counts gobreaker.Counts

	// LastSuccessAt and LastFailureAt are nil until the first outcome of
	// that kind is recorded.
	LastSuccessAt *time.Time
	LastFailureAt *time.Time

	// LastError is the message of the most recent failure.
	LastError string
}

// IsHealthy reports whether calls to the upstream are flowing normally. A
// half-open or open breaker both count as unhealthy for ops purposes.
func (h *ProviderHealth) IsHealthy() bool {
	return h.CircuitState == gobreaker.StateClosed
}

// Registry collects the resilient clients talking to upstream endpoints so
// their breaker state and last outcomes can be reported in one place.
type Registry struct {
	mu        sync.RWMutex
	upstreams map[string]*upstream
}

type upstream struct {
	client        *Client
	lastSuccessAt *time.Time
	lastFailureAt *time.Time
	lastError     string
}

// GlobalRegistry is the process-wide registry the API wires into its ops
// handler.
var GlobalRegistry = NewRegistry()

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{upstreams: make(map[string]*upstream)}
}

// Register tracks a client under the given name. NewClient calls this when
// the config carries a registry.
func (r *Registry) Register(name string, client *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upstreams[name] = &upstream{client: client}
}

// RecordSuccess stamps the last successful call for the named upstream.
// Unknown names are ignored.
func (r *Registry) RecordSuccess(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.upstreams[name]; ok {
		now := time.Now()
		u.lastSuccessAt = &now
	}
}

// RecordFailure stamps the last failed call and keeps its error message.
// Unknown names are ignored.
func (r *Registry) RecordFailure(name string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.upstreams[name]
	if !ok {
		return
	}
	now := time.Now()
	u.lastFailureAt = &now
	if err != nil {
		u.lastError = err.Error()
	}
}

// GetHealth returns the snapshot for one upstream, or nil when the name is
// not registered.
func (r *Registry) GetHealth(name string) *ProviderHealth {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.upstreams[name]
	if !ok {
		return nil
	}
	return u.snapshot(name)
}

// GetAllHealth returns a snapshot for every registered upstream.
func (r *Registry) GetAllHealth() []*ProviderHealth {
	r.mu.RLock()
	defer r.mu.RUnlock()

	health := make([]*ProviderHealth, 0, len(r.upstreams))
	for name, u := range r.upstreams {
		health = append(health, u.snapshot(name))
	}
	return health
}

// snapshot must be called with the registry lock held.
func (u *upstream) snapshot(name string) *ProviderHealth {
	return &ProviderHealth{
		Name:          name,
		CircuitState:  u.client.CircuitBreakerState(),
		Counts:        u.client.CircuitBreakerCounts(),
		LastSuccessAt: u.lastSuccessAt,
		LastFailureAt: u.lastFailureAt,
		LastError:     u.lastError,
	}
}
