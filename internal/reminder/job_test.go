package reminder

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coremine/safety-lms/internal/certificate"
	"github.com/coremine/safety-lms/internal/logger"
	"github.com/coremine/safety-lms/internal/notify"
	"github.com/coremine/safety-lms/internal/testkit"
)

type fakeSender struct {
	sent   []notify.Message
	failTo string
}

func (f *fakeSender) Send(_ context.Context, m notify.Message) error {
	if m.ToEmail == f.failTo {
		return errors.New("mailbox unavailable")
	}
	f.sent = append(f.sent, m)
	return nil
}

func TestDaysUntilUsesLocalCalendar(t *testing.T) {
	cst := time.FixedZone("CST", -6*3600)
	now := time.Date(2026, 3, 1, 23, 30, 0, 0, time.UTC)
	expires := time.Date(2026, 3, 2, 3, 0, 0, 0, time.UTC)
	assert.Equal(t, 1, certificate.DaysUntil(now, expires, time.UTC))
	assert.Equal(t, 0, certificate.DaysUntil(now, expires, cst))
	assert.Equal(t, 30, certificate.DaysUntil(now, now.AddDate(0, 0, 30), cst))
}

func TestRunSendsOncePerDay(t *testing.T) {
	ctx := context.Background()
	dbh := testkit.OpenDB(t)
	orgID := testkit.SeedOrg(t, dbh, false, 0)
	courseID, _ := testkit.SeedCourse(t, dbh, orgID, "VIDEO")
	now := time.Now().UTC()
	for _, c := range []struct {
		email string
		in    time.Duration
	}{
		{"one@example.com", 24 * time.Hour},
		{"thirty@example.com", 30 * 24 * time.Hour},
		{"seven@example.com", 7 * 24 * time.Hour},
		{"thirtyone@example.com", 31 * 24 * time.Hour},
		{"expired@example.com", -24 * time.Hour},
		{"later@example.com", 120 * 24 * time.Hour},
		{"broken@example.com", 14 * 24 * time.Hour},
	} {
		u := testkit.SeedUser(t, dbh, orgID, "", c.email, "LEARNER")
		testkit.SeedCertificate(t, dbh, orgID, u, courseID, now.AddDate(-1, 0, 0), now.Add(c.in))
	}

	sender := &fakeSender{failTo: "broken@example.com"}
	job := NewJob(certificate.NewSQLStore(dbh), notify.NewDispatcher(sender, dbh, logger.Nop()), logger.Nop(), time.UTC, "https://lms.example.com")
	job.now = func() time.Time { return now }

	sum, err := job.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, Summary{Scanned: 5, Sent: 3, Skipped: 0, Failed: 1}, sum)
	require.Len(t, sender.sent, 3)
	assert.True(t, strings.HasSuffix(sender.sent[0].Subject, "expires in 1 day"), sender.sent[0].Subject)
	assert.True(t, strings.HasSuffix(sender.sent[1].Subject, "expires in 7 days"), sender.sent[1].Subject)
	assert.True(t, strings.HasSuffix(sender.sent[2].Subject, "expires in 30 days"), sender.sent[2].Subject)

	sum, err = job.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Skipped)
	assert.Equal(t, 0, sum.Sent)
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, 3, testkit.Count(t, dbh, `SELECT COUNT(*) FROM email_logs WHERE type='EXPIRY_REMINDER' AND status='SENT'`))
	assert.Equal(t, 2, testkit.Count(t, dbh, `SELECT COUNT(*) FROM email_logs WHERE type='EXPIRY_REMINDER' AND status='FAILED'`))
}
