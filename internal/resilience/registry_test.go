package resilience_test

import (
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/requestdesk/requestdesk/internal/resilience"
)

func registeredClient(registry *resilience.Registry, name string) *resilience.Client {
	cfg := resilience.DefaultClientConfig(name)
	cfg.Registry = registry
	return resilience.NewClient(cfg)
}

func TestRegistry_NewClientSelfRegisters(t *testing.T) {
	registry := resilience.NewRegistry()
	registeredClient(registry, "intake")

	health := registry.GetHealth("intake")
	require.NotNil(t, health)
	assert.Equal(t, "intake", health.Name)
	assert.Equal(t, gobreaker.StateClosed, health.CircuitState)
	assert.True(t, health.IsHealthy())
	assert.Nil(t, health.LastSuccessAt)
	assert.Nil(t, health.LastFailureAt)
}

func TestRegistry_RecordSuccess(t *testing.T) {
	registry := resilience.NewRegistry()
	registeredClient(registry, "intake")

	registry.RecordSuccess("intake")

	health := registry.GetHealth("intake")
	require.NotNil(t, health)
	require.NotNil(t, health.LastSuccessAt)
	assert.WithinDuration(t, time.Now(), *health.LastSuccessAt, time.Second)
	assert.Nil(t, health.LastFailureAt)
}

func TestRegistry_RecordFailureKeepsError(t *testing.T) {
	registry := resilience.NewRegistry()
	registeredClient(registry, "intake")

	registry.RecordFailure("intake", assert.AnError)

	health := registry.GetHealth("intake")
	require.NotNil(t, health)
	require.NotNil(t, health.LastFailureAt)
	assert.WithinDuration(t, time.Now(), *health.LastFailureAt, time.Second)
	assert.Equal(t, assert.AnError.Error(), health.LastError)
}

func TestRegistry_GetAllHealth(t *testing.T) {
	registry := resilience.NewRegistry()
	for _, name := range []string{"intake", "intake-backup"} {
		registeredClient(registry, name)
	}

	healthList := registry.GetAllHealth()
	require.Len(t, healthList, 2)

	names := make(map[string]bool)
	for _, h := range healthList {
		names[h.Name] = true
		assert.Equal(t, gobreaker.StateClosed, h.CircuitState)
	}
	assert.True(t, names["intake"])
	assert.True(t, names["intake-backup"])
}

func TestRegistry_UnknownNames(t *testing.T) {
	registry := resilience.NewRegistry()

	assert.Nil(t, registry.GetHealth("nonexistent"))
	assert.Empty(t, registry.GetAllHealth())

	// Recording against an unknown name is a silent no-op.
	registry.RecordSuccess("nonexistent")
	registry.RecordFailure("nonexistent", assert.AnError)
}

func TestRegistry_UnnamedClientIsNotRegistered(t *testing.T) {
	registry := resilience.NewRegistry()

	cfg := resilience.DefaultClientConfig("")
	cfg.Registry = registry
	resilience.NewClient(cfg)

	assert.Empty(t, registry.GetAllHealth())
}

func TestGlobalRegistry(t *testing.T) {
	assert.NotNil(t, resilience.GlobalRegistry)
}

func TestProviderHealth_IsHealthy(t *testing.T) {
	tests := []struct {
		state   gobreaker.State
		healthy bool
	}{
		{gobreaker.StateClosed, true},
		{gobreaker.StateHalfOpen, false},
		{gobreaker.StateOpen, false},
	}

	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			h := &resilience.ProviderHealth{CircuitState: tt.state}
			assert.Equal(t, tt.healthy, h.IsHealthy())
		})
	}
}
