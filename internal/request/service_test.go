package request_test

import (
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/requestdesk/requestdesk/internal/attachment"
	"github.com/requestdesk/requestdesk/internal/request"
)

type capturingNotifier struct {
	events []request.LifecycleEvent
}

func (n *capturingNotifier) RequestChanged(ctx context.Context, ev request.LifecycleEvent) error {
	n.events = append(n.events, ev)
	return nil
}

func newTestService() (*request.Service, *request.InMemoryRepository, *capturingNotifier) {
	repo := request.NewInMemoryRepository()
	notifier := &capturingNotifier{}
	service := request.NewService(request.ServiceConfig{
		Repository: repo,
		Storage:    attachment.NewMemoryStorage("https://files.test"),
		Notifier:   notifier,
		Logger:     zerolog.Nop(),
	})
	return service, repo, notifier
}

func strPtr(s string) *string { return &s }

func statusPtr(s request.Status) *request.Status { return &s }

func createPending(t *testing.T, service *request.Service) int64 {
	t.Helper()

	result, err := service.Create(context.Background(), &request.CreateInput{
		CompanyName:  "Acme Foods",
		ContactName:  "Maria Lopez",
		ContactEmail: "maria@acmefoods.example",
	}, request.Actor{Username: "portal", IP: "10.0.0.1"})
	require.NoError(t, err)
	return result.ID
}

func TestService_Create(t *testing.T) {
	service, _, notifier := newTestService()
	ctx := context.Background()

	result, err := service.Create(ctx, &request.CreateInput{
		CompanyName:  "Acme Foods",
		ContactName:  "Maria Lopez",
		ContactEmail: "maria@acmefoods.example",
		Uploads: []attachment.Upload{
			{Filename: "tax-certificate.pdf", ContentType: "application/pdf", Content: strings.NewReader("pdf-bytes")},
		},
	}, request.Actor{Username: "portal", IP: "10.0.0.1"})
	require.NoError(t, err)

	assert.Equal(t, string(request.StatusPending), result.Status)

	require.Len(t, result.Attachments, 1)
	assert.Equal(t, "tax-certificate.pdf", result.Attachments[0].OriginalFilename)

	require.Len(t, result.History, 1)
	assert.Equal(t, "Request created.", result.History[0].Action)
	require.NotNil(t, result.History[0].ChangedByUsername)
	assert.Equal(t, "portal", *result.History[0].ChangedByUsername)

	assert.Len(t, notifier.events, 1)
}

func TestService_Create_ValidationErrors(t *testing.T) {
	service, _, _ := newTestService()

	_, err := service.Create(context.Background(), &request.CreateInput{}, request.Actor{})

	var validationErr *request.ValidationError
	require.ErrorAs(t, err, &validationErr)

	fields := map[string]bool{}
	for _, fe := range validationErr.Errors {
		fields[fe.Field] = true
	}
	assert.True(t, fields["contact_email"], "expected a contact_email field error")
	assert.True(t, fields["company_name"], "expected a company_name field error")
}

func TestService_Approve(t *testing.T) {
	service, _, notifier := newTestService()
	ctx := context.Background()
	id := createPending(t, service)

	result, err := service.Update(ctx, id, &request.UpdateInput{
		Status:       statusPtr(request.StatusCompleted),
		CustomerCode: strPtr("CUST-0042"),
		CustomerRole: []string{"buyer"},
	}, request.Actor{Username: "reviewer", IP: "10.0.0.2"})
	require.NoError(t, err)

	assert.Equal(t, string(request.StatusCompleted), result.Status)
	assert.Equal(t, "CUST-0042", result.CustomerCode)
	assert.Len(t, result.History, 2)

	require.NotEmpty(t, notifier.events)
	last := notifier.events[len(notifier.events)-1]
	assert.Equal(t, request.StatusCompleted, last.Status)
	assert.Equal(t, "reviewer", last.Actor)
}

func TestService_Approve_RequiresCodeAndRoles(t *testing.T) {
	service, _, _ := newTestService()
	ctx := context.Background()

	tests := []struct {
		name      string
		input     *request.UpdateInput
		wantField string
	}{
		{
			name: "missing customer code",
			input: &request.UpdateInput{
				Status:       statusPtr(request.StatusCompleted),
				CustomerRole: []string{"buyer"},
			},
			wantField: "customer_code",
		},
		{
			name: "whitespace customer code",
			input: &request.UpdateInput{
				Status:       statusPtr(request.StatusCompleted),
				CustomerCode: strPtr("   "),
				CustomerRole: []string{"buyer"},
			},
			wantField: "customer_code",
		},
		{
			name: "missing roles",
			input: &request.UpdateInput{
				Status:       statusPtr(request.StatusCompleted),
				CustomerCode: strPtr("CUST-0042"),
			},
			wantField: "customer_role",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := createPending(t, service)

			_, err := service.Update(ctx, id, tt.input, request.Actor{Username: "reviewer"})

			var validationErr *request.ValidationError
			require.ErrorAs(t, err, &validationErr)
			found := false
			for _, fe := range validationErr.Errors {
				if fe.Field == tt.wantField {
					found = true
				}
			}
			assert.True(t, found, "expected a field error for %q, got %v", tt.wantField, validationErr.Errors)

			current, err := service.Get(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, string(request.StatusPending), current.Status, "failed approval must not change status")
		})
	}
}

func TestService_Reject(t *testing.T) {
	service, _, _ := newTestService()
	ctx := context.Background()
	id := createPending(t, service)

	result, err := service.Update(ctx, id, &request.UpdateInput{
		Status:     statusPtr(request.StatusRejected),
		NoteReject: strPtr("Missing tax certificate."),
	}, request.Actor{Username: "reviewer"})
	require.NoError(t, err)

	assert.Equal(t, string(request.StatusRejected), result.Status)
	require.NotNil(t, result.NoteReject)
	assert.Equal(t, "Missing tax certificate.", *result.NoteReject)
}

func TestService_Reject_RequiresNote(t *testing.T) {
	service, _, _ := newTestService()
	ctx := context.Background()
	id := createPending(t, service)

	_, err := service.Update(ctx, id, &request.UpdateInput{
		Status:     statusPtr(request.StatusRejected),
		NoteReject: strPtr("   "),
	}, request.Actor{Username: "reviewer"})

	var validationErr *request.ValidationError
	require.ErrorAs(t, err, &validationErr)
	require.NotEmpty(t, validationErr.Errors)
	assert.Equal(t, "note_reject", validationErr.Errors[0].Field)
}

func TestService_ApproveAfterReject(t *testing.T) {
	service, _, _ := newTestService()
	ctx := context.Background()
	id := createPending(t, service)

	_, err := service.Update(ctx, id, &request.UpdateInput{
		Status:     statusPtr(request.StatusRejected),
		NoteReject: strPtr("Incomplete paperwork."),
	}, request.Actor{Username: "reviewer"})
	require.NoError(t, err)

	result, err := service.Update(ctx, id, &request.UpdateInput{
		Status:       statusPtr(request.StatusCompleted),
		CustomerCode: strPtr("CUST-0099"),
		CustomerRole: []string{"supplier"},
	}, request.Actor{Username: "reviewer"})
	require.NoError(t, err)

	assert.Equal(t, string(request.StatusCompleted), result.Status)
}

func TestService_RejectTwice(t *testing.T) {
	service, _, _ := newTestService()
	ctx := context.Background()
	id := createPending(t, service)

	_, err := service.Update(ctx, id, &request.UpdateInput{
		Status:     statusPtr(request.StatusRejected),
		NoteReject: strPtr("First rejection."),
	}, request.Actor{Username: "reviewer"})
	require.NoError(t, err)

	_, err = service.Update(ctx, id, &request.UpdateInput{
		Status:     statusPtr(request.StatusRejected),
		NoteReject: strPtr("Second rejection."),
	}, request.Actor{Username: "reviewer"})
	assert.ErrorIs(t, err, request.ErrInvalidTransition)

	// The first rejection note must survive the refused second attempt.
	current, err := service.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, current.NoteReject)
	assert.Equal(t, "First rejection.", *current.NoteReject)
}

func TestService_CompletedIsTerminal(t *testing.T) {
	service, _, _ := newTestService()
	ctx := context.Background()
	id := createPending(t, service)

	_, err := service.Update(ctx, id, &request.UpdateInput{
		Status:       statusPtr(request.StatusCompleted),
		CustomerCode: strPtr("CUST-0042"),
		CustomerRole: []string{"buyer"},
	}, request.Actor{Username: "reviewer"})
	require.NoError(t, err)

	_, err = service.Update(ctx, id, &request.UpdateInput{
		Notes: strPtr("late edit"),
	}, request.Actor{Username: "reviewer"})
	assert.ErrorIs(t, err, request.ErrRequestCompleted)

	err = service.Delete(ctx, id, request.Actor{Username: "reviewer"})
	assert.ErrorIs(t, err, request.ErrRequestCompleted)
}

func TestService_Update_RecordsFieldChanges(t *testing.T) {
	service, _, _ := newTestService()
	ctx := context.Background()
	id := createPending(t, service)

	result, err := service.Update(ctx, id, &request.UpdateInput{
		CompanyName: strPtr("Acme Foods International"),
		Phone:       strPtr("+34 911 000 000"),
	}, request.Actor{Username: "reviewer", IP: "10.0.0.2"})
	require.NoError(t, err)

	require.Len(t, result.History, 2)
	action := result.History[1].Action
	assert.Contains(t, action, `company_name changed from "Acme Foods" to "Acme Foods International".`)
	assert.Contains(t, action, "phone changed")
}

func TestService_Update_NoChangesSkipsHistory(t *testing.T) {
	service, _, _ := newTestService()
	ctx := context.Background()
	id := createPending(t, service)

	result, err := service.Update(ctx, id, &request.UpdateInput{
		CompanyName: strPtr("Acme Foods"),
	}, request.Actor{Username: "reviewer"})
	require.NoError(t, err)

	assert.Len(t, result.History, 1, "a no-op update must not append history")
}

func TestService_Delete_SoftDeletes(t *testing.T) {
	service, _, notifier := newTestService()
	ctx := context.Background()
	id := createPending(t, service)

	require.NoError(t, service.Delete(ctx, id, request.Actor{Username: "reviewer"}))

	_, err := service.Get(ctx, id)
	assert.ErrorIs(t, err, request.ErrRequestNotFound)

	require.NotEmpty(t, notifier.events)
	last := notifier.events[len(notifier.events)-1]
	assert.Equal(t, "Request deleted (marked as inactive).", last.Action)
}

func TestService_List_FiltersAndPaginates(t *testing.T) {
	service, _, _ := newTestService()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		createPending(t, service)
	}
	rejectedID := createPending(t, service)
	_, err := service.Update(ctx, rejectedID, &request.UpdateInput{
		Status:     statusPtr(request.StatusRejected),
		NoteReject: strPtr("Not a fit."),
	}, request.Actor{Username: "reviewer"})
	require.NoError(t, err)

	envelope, err := service.List(ctx, request.Filter{Status: string(request.StatusPending), Limit: 2})
	require.NoError(t, err)

	assert.Equal(t, 5, envelope.TotalItems)
	assert.Equal(t, 3, envelope.TotalPages)
	assert.Equal(t, 1, envelope.CurrentPage)
	assert.Len(t, envelope.Items, 2)
	for _, item := range envelope.Items {
		assert.Equal(t, string(request.StatusPending), item.Status)
	}
}

func TestService_Stats(t *testing.T) {
	service, _, _ := newTestService()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		createPending(t, service)
	}
	rejectedID := createPending(t, service)
	_, err := service.Update(ctx, rejectedID, &request.UpdateInput{
		Status:     statusPtr(request.StatusRejected),
		NoteReject: strPtr("Duplicate submission."),
	}, request.Actor{Username: "reviewer"})
	require.NoError(t, err)

	stats, err := service.Stats(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Pending)
	assert.Equal(t, 1, stats.Rejected)
	assert.Equal(t, 4, stats.Total)
}

func TestService_Update_RemovesAttachments(t *testing.T) {
	service, _, _ := newTestService()
	ctx := context.Background()

	created, err := service.Create(ctx, &request.CreateInput{
		CompanyName:  "Acme Foods",
		ContactEmail: "maria@acmefoods.example",
		Uploads: []attachment.Upload{
			{Filename: "a.pdf", ContentType: "application/pdf", Content: strings.NewReader("a")},
			{Filename: "b.pdf", ContentType: "application/pdf", Content: strings.NewReader("b")},
		},
	}, request.Actor{Username: "portal"})
	require.NoError(t, err)

	result, err := service.Update(ctx, created.ID, &request.UpdateInput{
		AttachmentsToDelete: []int64{created.Attachments[0].ID},
	}, request.Actor{Username: "reviewer"})
	require.NoError(t, err)

	require.Len(t, result.Attachments, 1)
	assert.Equal(t, "b.pdf", result.Attachments[0].OriginalFilename)
}
