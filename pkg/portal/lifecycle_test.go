package portal

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// lifecycleFixture wires a view preloaded from a stub list endpoint and
// a controller over it, counting every mutating call the server sees.
type lifecycleFixture struct {
	view      *ListView
	lifecycle *Lifecycle
	mutations *int
	actions   *int
}

func newLifecycleFixture(t *testing.T, listItems []Request, mutate http.HandlerFunc) lifecycleFixture {
	t.Helper()

	mutations := 0
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			json.NewEncoder(w).Encode(listItems)
			return
		}
		mutations++
		mutate(w, r)
	}))

	view := NewListView(client)
	require.NoError(t, view.Refresh(context.Background()))

	actions := 0
	lc := NewLifecycle(client, view)
	lc.OnAction = func() { actions++ }

	return lifecycleFixture{view: view, lifecycle: lc, mutations: &mutations, actions: &actions}
}

func TestLifecycle_ApproveEmptyCodeBlocksCall(t *testing.T) {
	fx := newLifecycleFixture(t, sampleRequests(1, StatusPending), func(w http.ResponseWriter, r *http.Request) {
		t.Error("no network call expected")
	})

	_, err := fx.lifecycle.Approve(context.Background(), 1, "   ", []string{"COMERCIAL"})

	assert.ErrorIs(t, err, ErrCustomerCodeRequired)
	assert.Zero(t, *fx.mutations)
}

func TestLifecycle_ApproveEmptyRolesBlocksCall(t *testing.T) {
	fx := newLifecycleFixture(t, sampleRequests(1, StatusPending), func(w http.ResponseWriter, r *http.Request) {
		t.Error("no network call expected")
	})

	_, err := fx.lifecycle.Approve(context.Background(), 1, "ABC123", nil)

	assert.ErrorIs(t, err, ErrCustomerRoleRequired)
	assert.Zero(t, *fx.mutations)
}

func TestLifecycle_RejectBlankReasonBlocksCall(t *testing.T) {
	fx := newLifecycleFixture(t, sampleRequests(1, StatusPending), func(w http.ResponseWriter, r *http.Request) {
		t.Error("no network call expected")
	})

	_, err := fx.lifecycle.Reject(context.Background(), 1, "  \t ")

	assert.ErrorIs(t, err, ErrReasonRequired)
	assert.Zero(t, *fx.mutations)
}

func TestLifecycle_ApproveReplacesEntryWithServerObject(t *testing.T) {
	user := "reviewer"
	serverVersion := Request{
		ID:           7,
		Status:       StatusCompleted,
		CustomerCode: "ABC123",
		CustomerRole: []string{"COMERCIAL"},
		CompanyName:  "Company 7",
		History: []HistoryEntry{
			{ID: 12, Action: "Request approved and marked as completed.", ChangedAt: time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC), ChangedByUsername: &user},
		},
	}

	items := sampleRequests(8, StatusPending)
	fx := newLifecycleFixture(t, items, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/api/requests/7/", r.URL.Path)

		var update RequestUpdate
		require.NoError(t, json.NewDecoder(r.Body).Decode(&update))
		require.NotNil(t, update.Status)
		assert.Equal(t, StatusCompleted, *update.Status)
		require.NotNil(t, update.CustomerCode)
		assert.Equal(t, "ABC123", *update.CustomerCode)
		assert.Equal(t, []string{"COMERCIAL"}, update.CustomerRole)

		json.NewEncoder(w).Encode(serverVersion)
	})

	updated, err := fx.lifecycle.Approve(context.Background(), 7, "ABC123", []string{"COMERCIAL"})

	require.NoError(t, err)
	assert.Equal(t, serverVersion, *updated)

	// The list entry carries the server's version, history included.
	var entry *Request
	for i := range fx.view.Items() {
		if fx.view.Items()[i].ID == 7 {
			entry = &fx.view.Items()[i]
		}
	}
	require.NotNil(t, entry)
	assert.Equal(t, serverVersion, *entry)
	assert.Equal(t, 1, *fx.actions)
}

func TestLifecycle_ApproveFailureLeavesStateUntouched(t *testing.T) {
	fx := newLifecycleFixture(t, sampleRequests(3, StatusPending), func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"detail":"customer code already in use"}`))
	})
	before := append([]Request(nil), fx.view.Items()...)

	_, err := fx.lifecycle.Approve(context.Background(), 2, "DUP001", []string{"COMERCIAL"})

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "customer code already in use", apiErr.Message)
	assert.Equal(t, before, fx.view.Items())
	assert.Zero(t, *fx.actions)
}

func TestLifecycle_RejectSendsReason(t *testing.T) {
	rejected := sampleRequest(2, StatusRejected)
	fx := newLifecycleFixture(t, sampleRequests(3, StatusPending), func(w http.ResponseWriter, r *http.Request) {
		var update RequestUpdate
		require.NoError(t, json.NewDecoder(r.Body).Decode(&update))
		require.NotNil(t, update.Status)
		assert.Equal(t, StatusRejected, *update.Status)
		require.NotNil(t, update.NoteReject)
		assert.Equal(t, "missing tax documents", *update.NoteReject)

		json.NewEncoder(w).Encode(rejected)
	})

	updated, err := fx.lifecycle.Reject(context.Background(), 2, "  missing tax documents  ")

	require.NoError(t, err)
	assert.Equal(t, StatusRejected, updated.Status)
	assert.Equal(t, StatusRejected, fx.view.Items()[1].Status)
}

func TestLifecycle_DeleteRemovesEntryWithoutRefetch(t *testing.T) {
	fetches := 0
	mutations := 0
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			fetches++
			json.NewEncoder(w).Encode(sampleRequests(10, StatusPending))
			return
		}
		mutations++
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/api/requests/9/", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}))

	view := NewListView(client)
	require.NoError(t, view.Refresh(context.Background()))
	require.Len(t, view.Items(), 10)

	lc := NewLifecycle(client, view)
	require.NoError(t, lc.Delete(context.Background(), 9))

	assert.Equal(t, 1, fetches, "delete must not refetch the page")
	assert.Equal(t, 1, mutations)
	assert.Len(t, view.Items(), 9)
	for _, it := range view.Items() {
		assert.NotEqual(t, int64(9), it.ID)
	}
}

func TestLifecycle_DeleteFailureKeepsEntry(t *testing.T) {
	fx := newLifecycleFixture(t, sampleRequests(3, StatusPending), func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"detail":"completed requests cannot be deleted"}`))
	})

	err := fx.lifecycle.Delete(context.Background(), 2)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Len(t, fx.view.Items(), 3)
}

func TestCanApproveCanReject(t *testing.T) {
	assert.True(t, CanApprove(StatusPending))
	assert.True(t, CanApprove(StatusRejected))
	assert.False(t, CanApprove(StatusCompleted))

	assert.True(t, CanReject(StatusPending))
	assert.False(t, CanReject(StatusRejected))
	assert.False(t, CanReject(StatusCompleted))
}
