package notify

import (
	"context"

	"github.com/requestdesk/requestdesk/internal/auth"
	"github.com/requestdesk/requestdesk/internal/request"
)

// Notifier adapts a Publisher to the event hooks the auth and request
// services expect.
type Notifier struct {
	publisher Publisher
}

// NewNotifier creates a Notifier over the publisher.
func NewNotifier(publisher Publisher) *Notifier {
	return &Notifier{publisher: publisher}
}

// TwoFactorCodeIssued publishes an email event carrying the 2FA code.
func (n *Notifier) TwoFactorCodeIssued(ctx context.Context, user *auth.User, code string) error {
	return n.publisher.Publish(ctx, TwoFactorEmailEvent{
		Type:      EventTwoFactorEmail,
		Username:  user.Username,
		Recipient: user.Email,
		Code:      code,
	})
}

// RequestChanged publishes a lifecycle event for a request state change.
func (n *Notifier) RequestChanged(ctx context.Context, ev request.LifecycleEvent) error {
	return n.publisher.Publish(ctx, RequestLifecycleEvent{
		Type:      EventRequestLifecycle,
		RequestID: ev.RequestID,
		Action:    ev.Action,
		Status:    string(ev.Status),
		Actor:     ev.Actor,
	})
}

// Ensure Notifier satisfies the service hooks.
var (
	_ auth.CodeNotifier      = (*Notifier)(nil)
	_ request.ChangeNotifier = (*Notifier)(nil)
)
