// Package reminder sends EXPIRY_REMINDER emails for certificates nearing
// their expiry date.
package reminder

import (
	"context"
	"time"

	"github.com/coremine/safety-lms/internal/certificate"
	"github.com/coremine/safety-lms/internal/logger"
	"github.com/coremine/safety-lms/internal/notify"
)

// Offsets are the days-before-expiry on which a reminder goes out.
var Offsets = []int{90, 60, 30, 14, 7, 3, 1}

const window = 90

type Certificates interface {
	ListExpiring(ctx context.Context, from, to time.Time) ([]certificate.Detail, error)
}

type Mailer interface {
	Send(ctx context.Context, e notify.Email) (notify.EmailLog, error)
	SentSince(ctx context.Context, certificateID string, typ notify.Type, since time.Time) (bool, error)
}

type Summary struct {
	Scanned int `json:"scanned"`
	Sent    int `json:"sent"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

type Job struct {
	certs    Certificates
	mailer   Mailer
	log      *logger.Logger
	loc      *time.Location
	loginURL string
	now      func() time.Time
}

func NewJob(certs Certificates, mailer Mailer, log *logger.Logger, loc *time.Location, baseURL string) *Job {
	if loc == nil {
		loc = time.UTC
	}
	return &Job{certs: certs, mailer: mailer, log: log, loc: loc, loginURL: baseURL + "/login", now: time.Now}
}

func due(days int) bool {
	for _, o := range Offsets {
		if o == days {
			return true
		}
	}
	return false
}

// Run scans certificates expiring in the next 90 calendar days and sends one
// reminder per certificate per local day on the configured offsets.
func (j *Job) Run(ctx context.Context) (Summary, error) {
	now := j.now().In(j.loc)
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, j.loc)
	items, err := j.certs.ListExpiring(ctx, now, midnight.AddDate(0, 0, window+1))
	if err != nil {
		return Summary{}, err
	}
	var sum Summary
	for _, d := range items {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		sum.Scanned++
		expires := time.Unix(d.ExpiresAt, 0)
		days := certificate.DaysUntil(now, expires, j.loc)
		if !due(days) {
			continue
		}
		sent, err := j.mailer.SentSince(ctx, d.ID, notify.TypeExpiryReminder, midnight)
		if err != nil {
			return sum, err
		}
		if sent {
			sum.Skipped++
			continue
		}
		_, err = j.mailer.Send(ctx, notify.Email{
			OrgID:         d.OrgID,
			Type:          notify.TypeExpiryReminder,
			UserID:        d.UserID,
			CertificateID: d.ID,
			ToName:        d.HolderName,
			ToEmail:       d.HolderEmail,
			Data: notify.ExpiryData{
				Name:        d.HolderName,
				CourseTitle: d.CourseTitle,
				Serial:      d.Serial,
				ExpiresOn:   expires.In(j.loc).Format("2 January 2006"),
				LoginURL:    j.loginURL,
				Days:        days,
			},
		})
		if err != nil {
			sum.Failed++
			j.log.Warn("expiry reminder failed", "certificate_id", d.ID, "days", days, "err", err)
			continue
		}
		sum.Sent++
	}
	j.log.Info("expiry reminders", "scanned", sum.Scanned, "sent", sum.Sent, "skipped", sum.Skipped, "failed", sum.Failed)
	return sum, nil
}
