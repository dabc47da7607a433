// Package resilience wraps outbound HTTP calls to upstream intake endpoints
// with retries, circuit breaking and health reporting. The portal's own API
// client never goes through this package; only server-side sync traffic does.
package resilience

import (
	"time"

	"github.com/sony/gobreaker/v2"
)

// Default trip thresholds: the breaker opens once at least tripMinRequests
// calls have been observed and half of them failed.
const (
	tripMinRequests  = 5
	tripFailureRatio = 0.5
)

// CircuitBreakerConfig configures one breaker.
type CircuitBreakerConfig struct {
	// Name identifies the breaker in logs and health snapshots.
	Name string

	// MaxRequests is how many trial requests the half-open state admits.
	MaxRequests uint32

	// Interval is the cyclic period for clearing counts while closed.
	// Zero disables clearing.
	Interval time.Duration

	// Timeout is how long the breaker stays open before trying again.
	Timeout time.Duration

	// ReadyToTrip decides when the breaker opens. Nil means
	// DefaultReadyToTrip.
	ReadyToTrip func(counts gobreaker.Counts) bool

	// OnStateChange is notified on every state transition.
	OnStateChange func(name string, from gobreaker.State, to gobreaker.State)
}

// DefaultCircuitBreakerConfig returns the settings the intake sync client
// runs with: a single half-open trial request, a 60s open period and
// the default trip rule.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:        name,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     60 * time.Second,
		ReadyToTrip: DefaultReadyToTrip,
	}
}

// DefaultReadyToTrip applies the package trip thresholds.
func DefaultReadyToTrip(counts gobreaker.Counts) bool {
	if counts.Requests < tripMinRequests {
		return false
	}
	return float64(counts.TotalFailures)/float64(counts.Requests) >= tripFailureRatio
}

// NewCircuitBreaker builds a gobreaker instance from the config.
func NewCircuitBreaker[T any](cfg CircuitBreakerConfig) *gobreaker.CircuitBreaker[T] {
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: cfg.ReadyToTrip,
	}
	if cfg.OnStateChange != nil {
		settings.OnStateChange = cfg.OnStateChange
	}
	return gobreaker.NewCircuitBreaker[T](settings)
}
