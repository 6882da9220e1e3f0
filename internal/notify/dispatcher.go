package notify

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/coremine/safety-lms/internal/logger"
)

var ErrUnknownType = errors.New("unknown email type")

const (
	StatusSent   = "SENT"
	StatusFailed = "FAILED"
)

// EmailLog records one delivery attempt.
type EmailLog struct {
	ID            string `json:"id"`
	OrgID         string `json:"orgId,omitempty"`
	Type          Type   `json:"type"`
	UserID        string `json:"userId,omitempty"`
	CertificateID string `json:"certificateId,omitempty"`
	Recipient     string `json:"recipient"`
	Subject       string `json:"subject"`
	Status        string `json:"status"`
	Error         string `json:"error,omitempty"`
	SentAt        int64  `json:"sentAt"`
}

// Email is a typed notification: Data feeds the template registered for Type.
// OrgID scopes the log row; public contact mail carries none.
type Email struct {
	OrgID         string
	Type          Type
	UserID        string
	CertificateID string
	ToName        string
	ToEmail       string
	Data          any
	Attachments   []Attachment
}

type WelcomeData struct {
	Name, Email, OrgName, LoginURL, TempPassword string
}

type CertificateData struct {
	Name, CourseTitle, Serial, ExpiresOn, VerifyURL string
}

type ExpiryData struct {
	Name, CourseTitle, Serial, ExpiresOn, LoginURL string
	Days                                           int
}

type IncidentData struct {
	Title, Severity, Location, Description, RootCause string
}

type ContactData struct {
	Name, Email, Company, Message string
}

// Dispatcher renders, sends and logs emails. Every call writes an EmailLog
// row, SENT or FAILED.
type Dispatcher struct {
	sender Sender
	db     *sql.DB
	log    *logger.Logger
	now    func() time.Time
}

func NewDispatcher(sender Sender, dbh *sql.DB, log *logger.Logger) *Dispatcher {
	return &Dispatcher{sender: sender, db: dbh, log: log, now: time.Now}
}

// Send delivers e. A delivery failure is logged and returned with a
// user-presentable message; the EmailLog row is written either way.
func (d *Dispatcher) Send(ctx context.Context, e Email) (EmailLog, error) {
	subject, text, html, err := Render(e.Type, e.Data)
	if err != nil {
		return EmailLog{}, fmt.Errorf("render %s: %w", e.Type, err)
	}
	entry := EmailLog{
		ID:            uuid.NewString(),
		OrgID:         e.OrgID,
		Type:          e.Type,
		UserID:        e.UserID,
		CertificateID: e.CertificateID,
		Recipient:     e.ToEmail,
		Subject:       subject,
		Status:        StatusSent,
	}
	sendErr := d.sender.Send(ctx, Message{
		ToName:      e.ToName,
		ToEmail:     e.ToEmail,
		Subject:     subject,
		Text:        text,
		HTML:        html,
		Attachments: e.Attachments,
	})
	if sendErr != nil {
		entry.Status = StatusFailed
		entry.Error = Friendly(sendErr)
		d.log.Warn("email send failed", "type", e.Type, "to", e.ToEmail, "err", sendErr)
	}
	entry.SentAt = d.now().Unix()
	if err := d.insert(ctx, entry); err != nil {
		return entry, fmt.Errorf("write email log: %w", err)
	}
	if sendErr != nil {
		return entry, errors.New(entry.Error)
	}
	return entry, nil
}

func (d *Dispatcher) insert(ctx context.Context, l EmailLog) error {
	_, err := d.db.ExecContext(ctx, `INSERT INTO email_logs (id,org_id,type,user_id,certificate_id,recipient,subject,status,error,sent_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		l.ID, l.OrgID, l.Type, l.UserID, l.CertificateID, l.Recipient, l.Subject, l.Status, l.Error, l.SentAt)
	return err
}

// SentSince reports whether a SENT email of typ exists for the certificate at or after since.
func (d *Dispatcher) SentSince(ctx context.Context, certificateID string, typ Type, since time.Time) (bool, error) {
	var n int
	err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM email_logs
		WHERE certificate_id=$1 AND type=$2 AND status=$3 AND sent_at >= $4`,
		certificateID, typ, StatusSent, since.Unix()).Scan(&n)
	return n > 0, err
}

// ListLogs returns an org's most recent logs, optionally filtered by type.
func (d *Dispatcher) ListLogs(ctx context.Context, orgID string, typ Type, limit int) ([]EmailLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := `SELECT id,org_id,type,user_id,certificate_id,recipient,subject,status,error,sent_at FROM email_logs WHERE org_id=$1`
	args := []any{orgID}
	if typ != "" {
		q += ` AND type=$2`
		args = append(args, typ)
	}
	q += fmt.Sprintf(` ORDER BY sent_at DESC LIMIT %d`, limit)
	rows, err := d.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []EmailLog{}
	for rows.Next() {
		var l EmailLog
		if err := rows.Scan(&l.ID, &l.OrgID, &l.Type, &l.UserID, &l.CertificateID, &l.Recipient, &l.Subject, &l.Status, &l.Error, &l.SentAt); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// Friendly rewrites well-known provider failures into actionable text.
func Friendly(err error) string {
	if errors.Is(err, ErrNotConfigured) {
		return "Email is not configured: set SENDGRID_API_KEY."
	}
	msg := err.Error()
	low := strings.ToLower(msg)
	switch {
	case strings.Contains(low, "domain") || strings.Contains(low, "sender identity"):
		return "The sender address is not verified with the email provider. Verify the sending domain or use a verified EMAIL_FROM."
	case strings.Contains(low, "api key"):
		return "The email provider rejected the API key. Check SENDGRID_API_KEY."
	}
	return msg
}
