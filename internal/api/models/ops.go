package models

import "time"

// Health represents the health status of the service.
type Health struct {
	Status  HealthStatus           `json:"status"`
	Time    Timestamp              `json:"time"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// ProviderHealth reports the circuit state of one external endpoint.
type ProviderHealth struct {
	Name          string     `json:"name"`
	State         string     `json:"state"`
	Healthy       bool       `json:"healthy"`
	LastSuccessAt *time.Time `json:"last_success_at,omitempty"`
	LastFailureAt *time.Time `json:"last_failure_at,omitempty"`
	LastError     string     `json:"last_error,omitempty"`
}

// ProviderHealthList wraps the provider health collection.
type ProviderHealthList struct {
	Providers []ProviderHealth `json:"providers"`
}
