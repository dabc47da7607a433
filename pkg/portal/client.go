package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// DefaultBaseURL is used when no base URL is configured.
const DefaultBaseURL = "http://localhost:8080"

// ErrSessionExpired is returned when the server answers 401. The stored
// session has already been cleared and the invalidation hook fired by
// the time callers see this error.
var ErrSessionExpired = errors.New("session expired")

// APIError is a non-2xx response from the API. Message is taken from the
// structured error body when one is present, otherwise the status text.
type APIError struct {
	StatusCode int
	Body       []byte
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error (%d): %s", e.StatusCode, e.Message)
}

// Doer abstracts *http.Client for testing.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig configures a Client.
type ClientConfig struct {
	// BaseURL of the API. Defaults to DefaultBaseURL.
	BaseURL string

	// Sessions holds the persisted credential. Required.
	Sessions *SessionStore

	// HTTPClient overrides the transport. Defaults to an *http.Client
	// with a 30 second timeout. No retry or backoff is layered on top;
	// failed operations are re-invoked by the user.
	HTTPClient Doer
}

// Client talks to the RequestDesk API. It attaches the bearer credential
// when a session exists and classifies responses uniformly.
type Client struct {
	baseURL  string
	sessions *SessionStore
	http     Doer
}

// NewClient returns a configured Client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:  baseURL,
		sessions: cfg.Sessions,
		http:     httpClient,
	}
}

// Upload is a file to attach to a request.
type Upload struct {
	Filename string
	Reader   io.Reader
}

// CreateForm is the multipart payload for creating a request.
type CreateForm struct {
	CompanyName     string
	Address         string
	City            string
	State           string
	Phone           string
	Email           string
	TaxID           string
	ContactName     string
	ContactPosition string
	ContactPhone    string
	ContactEmail    string
	Notes           string
	Attachments     []Upload
}

// Login starts the sign-in flow; on success the server dispatches a
// verification code out of band.
func (c *Client) Login(ctx context.Context, username, password string) error {
	body := map[string]string{"username": username, "password": password}
	return c.doJSON(ctx, http.MethodPost, "/api/auth/login/", body, nil)
}

// VerifyTwoFactor exchanges the verification code for a bearer token and
// persists the resulting session.
func (c *Client) VerifyTwoFactor(ctx context.Context, username, code string) (*Session, error) {
	body := map[string]string{"username": username, "code": code}
	var tokens struct {
		Access string `json:"access"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/api/auth/verify-2fa/", body, &tokens); err != nil {
		return nil, err
	}

	sess := Session{User: username, Token: tokens.Access}
	if err := c.sessions.Save(sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// Logout clears the persisted session.
func (c *Client) Logout() error {
	return c.sessions.Clear()
}

// FetchRequests retrieves the request collection for the given query and
// returns the raw body; the shape (bare collection or envelope) is
// normalized by the ListView.
func (c *Client) FetchRequests(ctx context.Context, query url.Values) (json.RawMessage, error) {
	path := "/api/requests/"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}
	var raw json.RawMessage
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// GetRequest retrieves a single request by id.
func (c *Client) GetRequest(ctx context.Context, id int64) (*Request, error) {
	var req Request
	path := fmt.Sprintf("/api/requests/%d/", id)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

// CreateRequest submits a new request as a multipart form.
func (c *Client) CreateRequest(ctx context.Context, form CreateForm) (*Request, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fields := map[string]string{
		"company_name":     form.CompanyName,
		"address":          form.Address,
		"city":             form.City,
		"state":            form.State,
		"phone":            form.Phone,
		"email":            form.Email,
		"tax_id":           form.TaxID,
		"contact_name":     form.ContactName,
		"contact_position": form.ContactPosition,
		"contact_phone":    form.ContactPhone,
		"contact_email":    form.ContactEmail,
		"notes":            form.Notes,
	}
	for name, value := range fields {
		if value == "" {
			continue
		}
		if err := w.WriteField(name, value); err != nil {
			return nil, fmt.Errorf("writing form field %s: %w", name, err)
		}
	}
	for _, up := range form.Attachments {
		part, err := w.CreateFormFile("attachments", up.Filename)
		if err != nil {
			return nil, fmt.Errorf("adding attachment %s: %w", up.Filename, err)
		}
		if _, err := io.Copy(part, up.Reader); err != nil {
			return nil, fmt.Errorf("copying attachment %s: %w", up.Filename, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	var created Request
	err := c.do(ctx, http.MethodPost, "/api/requests/", &buf, w.FormDataContentType(), &created)
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdateRequest applies a partial update and returns the server's full
// updated object.
func (c *Client) UpdateRequest(ctx context.Context, id int64, update RequestUpdate) (*Request, error) {
	var updated Request
	path := fmt.Sprintf("/api/requests/%d/", id)
	if err := c.doJSON(ctx, http.MethodPatch, path, update, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteRequest removes a request. The server answers 204 on success.
func (c *Client) DeleteRequest(ctx context.Context, id int64) error {
	path := fmt.Sprintf("/api/requests/%d/", id)
	return c.doJSON(ctx, http.MethodDelete, path, nil, nil)
}

// FetchStats retrieves the status summary for active requests.
func (c *Client) FetchStats(ctx context.Context) (*Stats, error) {
	var stats Stats
	if err := c.doJSON(ctx, http.MethodGet, "/api/requests/stats/", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// doJSON encodes body as JSON (when present) and runs the request.
func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	contentType := ""
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		reader = bytes.NewReader(data)
		contentType = "application/json"
	}
	return c.do(ctx, method, path, reader, contentType, out)
}

// do runs one request against the API. A 401 clears the session, fires
// the invalidation hook, and aborts with ErrSessionExpired. Any other
// non-2xx becomes an *APIError. A 204 is success with no body.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if sess := c.sessions.Current(); sess != nil {
		req.Header.Set("Authorization", "Bearer "+sess.Token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		c.sessions.Invalidate()
		return ErrSessionExpired
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newAPIError(resp)
	}
	if resp.StatusCode == http.StatusNoContent || out == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// newAPIError extracts a human-readable message from a structured error
// body, falling back to the status text.
func newAPIError(resp *http.Response) *APIError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	message := ""
	var problem struct {
		Detail  string `json:"detail"`
		Title   string `json:"title"`
		Message string `json:"message"`
		Errors  []struct {
			Field   string `json:"field"`
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(body, &problem); err == nil {
		switch {
		case len(problem.Errors) > 0:
			message = problem.Errors[0].Field + ": " + problem.Errors[0].Message
		case problem.Detail != "":
			message = problem.Detail
		case problem.Message != "":
			message = problem.Message
		case problem.Title != "":
			message = problem.Title
		}
	}
	if message == "" {
		message = http.StatusText(resp.StatusCode)
		if message == "" {
			message = "status " + strconv.Itoa(resp.StatusCode)
		}
	}
	return &APIError{StatusCode: resp.StatusCode, Body: body, Message: message}
}
