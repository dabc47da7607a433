package resilience

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker/v2"
)

// ErrCircuitOpen is returned without touching the network while the breaker
// is open; callers degrade to local data and try again later.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// ClientConfig holds configuration for the resilient HTTP client. Zero
// values fall back to the defaults noted per field.
type ClientConfig struct {
	// Name identifies this client in breaker naming and health snapshots.
	Name string

	// Timeout bounds each individual HTTP call. Default 10s.
	Timeout time.Duration

	// MaxRetries caps retry attempts after the first call. Default 3.
	MaxRetries uint64

	// InitialInterval and MaxInterval bound the exponential backoff.
	// Defaults 100ms and 5s.
	InitialInterval time.Duration
	MaxInterval     time.Duration

	// CircuitBreaker overrides DefaultCircuitBreakerConfig when set.
	CircuitBreaker *CircuitBreakerConfig

	// Registry, when set, tracks this client for /api/ops/providers.
	Registry *Registry
}

// DefaultClientConfig returns sensible defaults for the resilient client.
func DefaultClientConfig(name string) ClientConfig {
	cbConfig := DefaultCircuitBreakerConfig(name)
	return ClientConfig{
		Name:            name,
		Timeout:         10 * time.Second,
		MaxRetries:      3,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		CircuitBreaker:  &cbConfig,
	}
}

// Client is the HTTP client the records syncer calls upstream intake
// endpoints through. Every request passes the circuit breaker; transient
// failures are retried with exponential backoff.
type Client struct {
	httpClient     *http.Client
	circuitBreaker *gobreaker.CircuitBreaker[*http.Response]
	config         ClientConfig
	registry       *Registry
}

// NewClient creates a resilient client and, when the config carries a
// registry, registers it for health reporting.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.InitialInterval == 0 {
		cfg.InitialInterval = 100 * time.Millisecond
	}
	if cfg.MaxInterval == 0 {
		cfg.MaxInterval = 5 * time.Second
	}

	var cb *gobreaker.CircuitBreaker[*http.Response]
	if cfg.CircuitBreaker != nil {
		cb = NewCircuitBreaker[*http.Response](*cfg.CircuitBreaker) //nolint:bodyclose // type param, not response
	} else {
		defaultCB := DefaultCircuitBreakerConfig(cfg.Name)
		cb = NewCircuitBreaker[*http.Response](defaultCB) //nolint:bodyclose // type param, not response
	}

	client := &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		circuitBreaker: cb,
		config:         cfg,
		registry:       cfg.Registry,
	}
	if cfg.Registry != nil && cfg.Name != "" {
		cfg.Registry.Register(cfg.Name, client)
	}
	return client
}

// Do executes the request with breaker protection and retries. 5xx and
// network errors are retried; an open breaker short-circuits to
// ErrCircuitOpen.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.DoWithContext(req.Context(), req)
}

// DoWithContext is Do with an explicit context governing retries.
func (c *Client) DoWithContext(ctx context.Context, req *http.Request) (*http.Response, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.config.InitialInterval
	bo.MaxInterval = c.config.MaxInterval
	bo.MaxElapsedTime = 0 // retries are bounded by MaxRetries, not wall time

	backoffWithRetries := backoff.WithMaxRetries(bo, c.config.MaxRetries)
	backoffWithContext := backoff.WithContext(backoffWithRetries, ctx)

	var lastResp *http.Response

	operation := func() error {
		// 5xx responses are surfaced as errors inside the breaker so they
		// count toward tripping it.
		resp, err := c.circuitBreaker.Execute(func() (*http.Response, error) { //nolint:bodyclose // caller is responsible for closing
			reqClone := req.Clone(ctx)
			r, err := c.httpClient.Do(reqClone)
			if err != nil {
				return nil, err
			}

			if r.StatusCode >= 500 {
				return r, &ServerError{StatusCode: r.StatusCode}
			}

			return r, nil
		})

		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(ErrCircuitOpen)
			}

			// The 5xx case still yields a response worth returning if
			// retries run out.
			if resp != nil {
				lastResp = resp
			}
			return err
		}

		lastResp = resp

		// 4xx responses land here: the caller's problem, not a transient
		// fault, so no retry.
		return nil
	}

	err := backoff.Retry(operation, backoffWithContext)
	if err != nil {
		c.recordFailure(err)
		if lastResp != nil {
			return lastResp, nil
		}
		return nil, err
	}

	c.recordSuccess()
	return lastResp, nil
}

func (c *Client) recordSuccess() {
	if c.registry != nil {
		c.registry.RecordSuccess(c.config.Name)
	}
}

func (c *Client) recordFailure(err error) {
	if c.registry != nil {
		c.registry.RecordFailure(c.config.Name, err)
	}
}

// ServerError marks an HTTP 5xx so the breaker and retry loop treat the
// response as a failure.
type ServerError struct {
	StatusCode int
}

func (e *ServerError) Error() string {
	return "server error: " + http.StatusText(e.StatusCode)
}

// CircuitBreakerState exposes the breaker state for health snapshots.
func (c *Client) CircuitBreakerState() gobreaker.State {
	return c.circuitBreaker.State()
}

// CircuitBreakerCounts exposes the breaker statistics for health snapshots.
func (c *Client) CircuitBreakerCounts() gobreaker.Counts {
	return c.circuitBreaker.Counts()
}
