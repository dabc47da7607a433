package worker_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/requestdesk/requestdesk/internal/notify"
	"github.com/requestdesk/requestdesk/internal/worker"
)

type recordingMailer struct {
	to      string
	subject string
	body    string
	err     error
	calls   int
}

func (m *recordingMailer) Send(_ context.Context, to, subject, body string) error {
	m.calls++
	m.to = to
	m.subject = subject
	m.body = body
	return m.err
}

func TestProcessor_TwoFactorEmail(t *testing.T) {
	mailer := &recordingMailer{}
	processor := worker.NewProcessor(mailer, zerolog.Nop())

	data, err := json.Marshal(notify.TwoFactorEmailEvent{
		Type:      notify.EventTwoFactorEmail,
		Username:  "maria",
		Recipient: "maria@example.com",
		Code:      "4821",
	})
	require.NoError(t, err)

	eventType, err := processor.Process(context.Background(), data)
	require.NoError(t, err)

	assert.Equal(t, notify.EventTwoFactorEmail, eventType)
	assert.Equal(t, "maria@example.com", mailer.to)
	assert.Contains(t, mailer.body, "4821")
}

func TestProcessor_TwoFactorEmail_NoRecipient(t *testing.T) {
	mailer := &recordingMailer{}
	processor := worker.NewProcessor(mailer, zerolog.Nop())

	data, err := json.Marshal(notify.TwoFactorEmailEvent{
		Type:     notify.EventTwoFactorEmail,
		Username: "maria",
		Code:     "4821",
	})
	require.NoError(t, err)

	eventType, err := processor.Process(context.Background(), data)
	require.Error(t, err)

	// A missing recipient cannot be fixed by redelivery. The empty event
	// type tells the consumer to ack and discard instead of nacking.
	assert.Empty(t, eventType)
	assert.Zero(t, mailer.calls)
}

func TestProcessor_TwoFactorEmail_SendFailure(t *testing.T) {
	mailer := &recordingMailer{err: errors.New("relay down")}
	processor := worker.NewProcessor(mailer, zerolog.Nop())

	data, err := json.Marshal(notify.TwoFactorEmailEvent{
		Type:      notify.EventTwoFactorEmail,
		Username:  "maria",
		Recipient: "maria@example.com",
		Code:      "4821",
	})
	require.NoError(t, err)

	eventType, err := processor.Process(context.Background(), data)
	require.Error(t, err)
	assert.NotEmpty(t, eventType, "a transient send failure should be retried")
}

func TestProcessor_RequestLifecycle(t *testing.T) {
	processor := worker.NewProcessor(&recordingMailer{}, zerolog.Nop())

	data, err := json.Marshal(notify.RequestLifecycleEvent{
		Type:      notify.EventRequestLifecycle,
		RequestID: 42,
		Action:    "Request approved and marked as completed.",
		Status:    "Completed",
		Actor:     "reviewer",
	})
	require.NoError(t, err)

	eventType, err := processor.Process(context.Background(), data)
	require.NoError(t, err)
	assert.Equal(t, notify.EventRequestLifecycle, eventType)
}

func TestProcessor_UnknownEvent(t *testing.T) {
	processor := worker.NewProcessor(&recordingMailer{}, zerolog.Nop())

	eventType, err := processor.Process(context.Background(), []byte(`{"type": "mystery"}`))
	require.Error(t, err)
	assert.Empty(t, eventType, "unknown events are discarded, not retried")
}

func TestProcessor_MalformedPayload(t *testing.T) {
	processor := worker.NewProcessor(&recordingMailer{}, zerolog.Nop())

	eventType, err := processor.Process(context.Background(), []byte(`not json`))
	require.Error(t, err)
	assert.Empty(t, eventType, "malformed payloads are discarded, not retried")
}
