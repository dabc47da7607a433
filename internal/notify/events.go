// Package notify publishes portal events for the notification worker.
package notify

// Event types carried in the Type field of published messages.
const (
	EventTwoFactorEmail   = "twofa_email"
	EventRequestLifecycle = "request_lifecycle"
)

// TwoFactorEmailEvent asks the worker to email a 2FA code to a user.
type TwoFactorEmailEvent struct {
	Type      string `json:"type"`
	Username  string `json:"username"`
	Recipient string `json:"recipient"`
	Code      string `json:"code"`
}

// RequestLifecycleEvent records a state change on a request, for audit
// logging and downstream notification.
type RequestLifecycleEvent struct {
	Type      string `json:"type"`
	RequestID int64  `json:"request_id"`
	Action    string `json:"action"`
	Status    string `json:"status"`
	Actor     string `json:"actor,omitempty"`
}
