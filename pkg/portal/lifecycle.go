package portal

import (
	"context"
	"errors"
	"strings"
)

// Client-side precondition failures. These block the network call
// entirely; the server enforces the same rules again.
var (
	ErrCustomerCodeRequired = errors.New("customer code is required to approve")
	ErrCustomerRoleRequired = errors.New("at least one customer role is required to approve")
	ErrReasonRequired       = errors.New("a reason is required to reject")
)

// Lifecycle performs status-changing operations on single requests and
// keeps the list view consistent with the backend's authoritative
// responses. It never synthesizes post-action state locally: on success
// the server's returned object replaces the list entry verbatim, and on
// failure the collection is left untouched.
type Lifecycle struct {
	client *Client
	view   *ListView

	// OnAction is called after a successful approve, reject, or delete.
	// The dashboard uses it to refresh the stats panel.
	OnAction func()
}

// NewLifecycle returns a controller bound to the given view.
func NewLifecycle(client *Client, view *ListView) *Lifecycle {
	return &Lifecycle{client: client, view: view}
}

// Approve marks a request Completed, setting the customer code and
// roles. An empty code or role set fails before any network call.
func (l *Lifecycle) Approve(ctx context.Context, id int64, customerCode string, customerRoles []string) (*Request, error) {
	customerCode = strings.TrimSpace(customerCode)
	if customerCode == "" {
		return nil, ErrCustomerCodeRequired
	}
	if len(customerRoles) == 0 {
		return nil, ErrCustomerRoleRequired
	}

	status := StatusCompleted
	updated, err := l.client.UpdateRequest(ctx, id, RequestUpdate{
		Status:       &status,
		CustomerCode: &customerCode,
		CustomerRole: customerRoles,
	})
	if err != nil {
		return nil, err
	}

	l.view.replace(*updated)
	l.notify()
	return updated, nil
}

// Reject marks a request Rejected with the given reason. A blank reason
// fails before any network call.
func (l *Lifecycle) Reject(ctx context.Context, id int64, reason string) (*Request, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, ErrReasonRequired
	}

	status := StatusRejected
	updated, err := l.client.UpdateRequest(ctx, id, RequestUpdate{
		Status:     &status,
		NoteReject: &reason,
	})
	if err != nil {
		return nil, err
	}

	l.view.replace(*updated)
	l.notify()
	return updated, nil
}

// Delete removes a request. On success the entry leaves the local
// collection without a page refetch; on failure it stays.
func (l *Lifecycle) Delete(ctx context.Context, id int64) error {
	if err := l.client.DeleteRequest(ctx, id); err != nil {
		return err
	}
	l.view.remove(id)
	l.notify()
	return nil
}

func (l *Lifecycle) notify() {
	if l.OnAction != nil {
		l.OnAction()
	}
}
