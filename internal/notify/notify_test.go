package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sendgrid/rest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coremine/safety-lms/internal/logger"
	"github.com/coremine/safety-lms/internal/testkit"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []Message
	err  error
}

func (f *fakeSender) Send(_ context.Context, m Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, m)
	return nil
}

func TestRenderTemplates(t *testing.T) {
	subject, text, html, err := Render(TypeExpiryReminder, ExpiryData{Name: "Ana", CourseTitle: "Ground Control", Serial: "CRM-2026-000001", ExpiresOn: "2026-11-01", Days: 1})
	require.NoError(t, err)
	assert.Equal(t, "Ground Control certificate expires in 1 day", subject)
	assert.Contains(t, text, "CRM-2026-000001")
	assert.Contains(t, html, "<b>2026-11-01</b>")

	subject, _, _, err = Render(TypeExpiryReminder, ExpiryData{CourseTitle: "Ground Control", Days: 30})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(subject, "30 days"))

	_, _, html, err = Render(TypeContact, ContactData{Name: "<script>", Message: "hi"})
	require.NoError(t, err)
	assert.NotContains(t, html, "<script>")

	_, _, _, err = Render("BOGUS", nil)
	assert.ErrorIs(t, err, ErrUnknownType)
}

func TestDispatcherLogsSentAndFailed(t *testing.T) {
	ctx := context.Background()
	dbh := testkit.OpenDB(t)
	fs := &fakeSender{}
	d := NewDispatcher(fs, dbh, logger.Nop())

	entry, err := d.Send(ctx, Email{OrgID: "org-a", Type: TypeWelcome, UserID: "u1", ToEmail: "a@example.com", Data: WelcomeData{Name: "A", Email: "a@example.com", TempPassword: "xyz"}})
	require.NoError(t, err)
	assert.Equal(t, StatusSent, entry.Status)
	require.Len(t, fs.sent, 1)
	assert.Contains(t, fs.sent[0].Text, "Temporary password: xyz")

	fs.err = errors.New("sendgrid: status 403: The from address does not match a verified Sender Identity for this domain")
	entry, err = d.Send(ctx, Email{Type: TypeCertificateIssued, CertificateID: "c1", ToEmail: "a@example.com", Data: CertificateData{}})
	require.Error(t, err)
	assert.Equal(t, StatusFailed, entry.Status)
	assert.Contains(t, err.Error(), "not verified")

	assert.Equal(t, 2, testkit.Count(t, dbh, `SELECT COUNT(*) FROM email_logs`))
	assert.Equal(t, 1, testkit.Count(t, dbh, `SELECT COUNT(*) FROM email_logs WHERE status='FAILED'`))
	fs.err = nil

	_, err = d.Send(ctx, Email{OrgID: "org-b", Type: TypeWelcome, UserID: "u2", ToEmail: "b@example.com", Data: WelcomeData{Name: "B"}})
	require.NoError(t, err)

	logs, err := d.ListLogs(ctx, "org-a", TypeWelcome, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "u1", logs[0].UserID)
	assert.Equal(t, "org-a", logs[0].OrgID)

	logs, err = d.ListLogs(ctx, "org-b", "", 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "b@example.com", logs[0].Recipient)

	logs, err = d.ListLogs(ctx, "org-c", "", 10)
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestSentSince(t *testing.T) {
	ctx := context.Background()
	dbh := testkit.OpenDB(t)
	d := NewDispatcher(&fakeSender{}, dbh, logger.Nop())
	now := time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return now }

	_, err := d.Send(ctx, Email{Type: TypeExpiryReminder, CertificateID: "c1", ToEmail: "a@example.com", Data: ExpiryData{Days: 7}})
	require.NoError(t, err)

	midnight := time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC)
	ok, err := d.SentSince(ctx, "c1", TypeExpiryReminder, midnight)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = d.SentSince(ctx, "c1", TypeExpiryReminder, midnight.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = d.SentSince(ctx, "c2", TypeExpiryReminder, midnight)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFriendly(t *testing.T) {
	assert.Contains(t, Friendly(ErrNotConfigured), "SENDGRID_API_KEY")
	assert.Contains(t, Friendly(errors.New("sendgrid: status 401: API key rejected")), "rejected the API key")
	assert.Equal(t, "boom", Friendly(errors.New("boom")))
}

func TestSendGridSender(t *testing.T) {
	ctx := context.Background()
	assert.ErrorIs(t, NewSendGridSender("", "LMS", "no-reply@example.com").Send(ctx, Message{}), ErrNotConfigured)

	var got rest.Request
	s := NewSendGridSender("SG.key", "LMS", "no-reply@example.com")
	s.api = func(r rest.Request) (*rest.Response, error) {
		got = r
		return &rest.Response{StatusCode: 202}, nil
	}
	err := s.Send(ctx, Message{ToEmail: "a@example.com", Subject: "Hi", Text: "body", Attachments: []Attachment{{Filename: "c.pdf", ContentType: "application/pdf", Content: []byte("%PDF")}}})
	require.NoError(t, err)
	assert.Equal(t, rest.Method("POST"), got.Method)
	assert.Contains(t, string(got.Body), `"filename":"c.pdf"`)
	assert.Contains(t, string(got.Body), "a@example.com")

	s.api = func(rest.Request) (*rest.Response, error) {
		return &rest.Response{StatusCode: 401, Body: `{"errors":[{"message":"invalid"}]}`}, nil
	}
	err = s.Send(ctx, Message{ToEmail: "a@example.com"})
	require.Error(t, err)
	assert.Contains(t, Friendly(err), "API key")
}
