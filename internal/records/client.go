// Package records pulls submission records from an external intake endpoint
// and mirrors them into local storage so lists keep working when the remote
// side is down.
package records

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/requestdesk/requestdesk/internal/resilience"
)

// ProviderName identifies the external intake source.
const ProviderName = "intake"

// ClientConfig holds configuration for the intake records client.
type ClientConfig struct {
	// BaseURL is the intake endpoint base URL.
	BaseURL string

	// APIKey is sent as a bearer token when non-empty.
	APIKey string

	// HTTPClient is the HTTP client to use (must implement HTTPDoer).
	// If nil, a default resilient client will be created.
	HTTPClient HTTPDoer

	// Timeout for individual requests (default: 10s).
	Timeout time.Duration

	// Registry tracks the intake endpoint's health (optional).
	Registry *resilience.Registry
}

// HTTPDoer abstracts HTTP request execution.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client fetches intake records from the external endpoint.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient HTTPDoer
}

// NewClient creates a new intake records client.
func NewClient(cfg ClientConfig) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 10 * time.Second
		}
		httpClient = resilience.NewClient(resilience.ClientConfig{
			Name:            ProviderName,
			Timeout:         timeout,
			MaxRetries:      3,
			InitialInterval: 200 * time.Millisecond,
			MaxInterval:     5 * time.Second,
			Registry:        cfg.Registry,
		})
	}

	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
	}
}

// Record is a submission as the intake endpoint reports it.
type Record struct {
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

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// recordsEnvelope is the wrapped collection shape. The endpoint has shipped
// both this and a bare array, so Fetch accepts either.
type recordsEnvelope struct {
	Items []Record `json:"items"`
}

// Fetch retrieves all intake records. The response body may be either an
// envelope with an items field or a bare JSON array.
func (c *Client) Fetch(ctx context.Context) ([]Record, error) {
	url := c.baseURL + "/records"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch records: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d from records endpoint", resp.StatusCode)
	}

	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode records response: %w", err)
	}

	return decodeRecords(raw)
}

// decodeRecords normalizes the two collection shapes the endpoint has used.
func decodeRecords(raw json.RawMessage) ([]Record, error) {
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "[") {
		var records []Record
		if err := json.Unmarshal(raw, &records); err != nil {
			return nil, fmt.Errorf("decode records array: %w", err)
		}
		return records, nil
	}

	var envelope recordsEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("decode records envelope: %w", err)
	}
	if envelope.Items == nil {
		return nil, fmt.Errorf("unrecognized records response shape")
	}
	return envelope.Items, nil
}
