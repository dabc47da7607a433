package records_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/requestdesk/requestdesk/internal/records"
	"github.com/requestdesk/requestdesk/internal/request"
)

func newTestClient(handler http.HandlerFunc) (*records.Client, *httptest.Server) {
	server := httptest.NewServer(handler)
	client := records.NewClient(records.ClientConfig{
		BaseURL:    server.URL,
		APIKey:     "test-key",
		HTTPClient: server.Client(),
	})
	return client, server
}

func TestClient_Fetch_Envelope(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"items": [
				{"id": 1, "status": "Pending", "company_name": "Acme Foods", "contact_email": "a@example.com"},
				{"id": 2, "status": "Completed", "customer_code": "CUST-1", "company_name": "Beta Corp"}
			]
		}`))
	})
	defer server.Close()

	got, err := client.Fetch(context.Background())
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, "Acme Foods", got[0].CompanyName)
	assert.Equal(t, "Completed", got[1].Status)
}

func TestClient_Fetch_BareArray(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id": 7, "status": "Pending", "company_name": "Gamma LLC"}]`))
	})
	defer server.Close()

	got, err := client.Fetch(context.Background())
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.Equal(t, int64(7), got[0].ID)
}

func TestClient_Fetch_UnrecognizedShape(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"unexpected": true}`))
	})
	defer server.Close()

	_, err := client.Fetch(context.Background())
	require.Error(t, err)
}

func TestClient_Fetch_ServerError(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	defer server.Close()

	_, err := client.Fetch(context.Background())
	require.Error(t, err)
}

type stubFetcher struct {
	records []records.Record
	err     error
}

func (f *stubFetcher) Fetch(ctx context.Context) ([]records.Record, error) {
	return f.records, f.err
}

func TestSyncer_Sync_Upserts(t *testing.T) {
	repo := request.NewInMemoryRepository()
	fetcher := &stubFetcher{records: []records.Record{
		{ID: 10, Status: "Pending", CompanyName: "Acme Foods", ContactEmail: "a@example.com"},
		{ID: 11, Status: "Bogus", CompanyName: "Beta Corp"},
		{ID: 0, CompanyName: "no id, skipped"},
	}}
	syncer := records.NewSyncer(fetcher, repo, zerolog.Nop())

	applied, err := syncer.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, applied)

	got, err := repo.Get(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, "Acme Foods", got.CompanyName)

	// Unknown statuses fall back to Pending.
	got, err = repo.Get(context.Background(), 11)
	require.NoError(t, err)
	assert.Equal(t, request.StatusPending, got.Status)
}

func TestSyncer_Sync_FetchFailureLeavesDataIntact(t *testing.T) {
	repo := request.NewInMemoryRepository()
	seed := &request.Request{ID: 5, Status: request.StatusPending, CompanyName: "Kept", Active: true}
	require.NoError(t, repo.Upsert(context.Background(), seed))

	fetcher := &stubFetcher{err: context.DeadlineExceeded}
	syncer := records.NewSyncer(fetcher, repo, zerolog.Nop())

	_, err := syncer.Sync(context.Background())
	require.Error(t, err, "sync must surface the fetch error")

	got, err := repo.Get(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, "Kept", got.CompanyName)
}
