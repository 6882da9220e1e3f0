// Package report builds the per-user compliance summary.
package report

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/coremine/safety-lms/internal/apperr"
	"github.com/coremine/safety-lms/internal/certificate"
)

// StatusNotEnrolled marks a user without an enrollment in the reported course.
const StatusNotEnrolled = "NOT_ENROLLED"

// ExpiringSoonDays is the horizon counted in Totals.ExpiringSoon.
const ExpiringSoonDays = 30

type Filter struct {
	OrgID    string
	SiteID   string
	CourseID string
}

type Row struct {
	UserID            string  `json:"userId"`
	Name              string  `json:"name"`
	Email             string  `json:"email"`
	Site              string  `json:"site"`
	Course            string  `json:"course"`
	Status            string  `json:"status"`
	Progress          float64 `json:"progress"`
	CertificateSerial string  `json:"certificateSerial,omitempty"`
	ExpiresAt         *int64  `json:"expiresAt,omitempty"`
	DaysUntilExpiry   *int    `json:"daysUntilExpiry,omitempty"`
	IsCompliant       bool    `json:"isCompliant"`
}

type Totals struct {
	Users        int     `json:"users"`
	Enrolled     int     `json:"enrolled"`
	Completed    int     `json:"completed"`
	Compliant    int     `json:"compliant"`
	ExpiringSoon int     `json:"expiringSoon"`
	Expired      int     `json:"expired"`
	Rate         float64 `json:"complianceRate"`
}

type Compliance struct {
	GeneratedAt int64  `json:"generatedAt"`
	SiteID      string `json:"siteId,omitempty"`
	CourseID    string `json:"courseId,omitempty"`
	Totals      Totals `json:"totals"`
	Rows        []Row  `json:"rows"`
}

type Builder struct {
	db  *sql.DB
	loc *time.Location
	now func() time.Time
}

func NewBuilder(dbh *sql.DB, loc *time.Location) *Builder {
	if loc == nil {
		loc = time.UTC
	}
	return &Builder{db: dbh, loc: loc, now: time.Now}
}

func (b *Builder) Location() *time.Location { return b.loc }

// Build returns one row per user of the org. With CourseID the row reports
// that course; without it the user's most recent enrollment.
func (b *Builder) Build(ctx context.Context, f Filter) (Compliance, error) {
	args := []any{f.OrgID}
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	courseTitle := ""
	enrollJoin := `LEFT JOIN enrollments e ON e.id = (SELECT e2.id FROM enrollments e2 WHERE e2.user_id = u.id
		ORDER BY e2.enrolled_at DESC, e2.id DESC LIMIT 1)`
	if f.CourseID != "" {
		err := b.db.QueryRowContext(ctx, `SELECT title FROM courses WHERE id=$1 AND org_id=$2`, f.CourseID, f.OrgID).Scan(&courseTitle)
		if errors.Is(err, sql.ErrNoRows) {
			return Compliance{}, apperr.NotFound("course")
		}
		if err != nil {
			return Compliance{}, err
		}
		enrollJoin = `LEFT JOIN enrollments e ON e.user_id = u.id AND e.course_id = ` + arg(f.CourseID)
	}
	q := `SELECT u.id, u.name, u.email, COALESCE(s.name,''), COALESCE(c.title,''), COALESCE(e.status,''),
		COALESCE(e.progress,0), COALESCE(cert.serial,''), cert.expires_at
		FROM users u
		LEFT JOIN sites s ON s.id = u.site_id
		` + enrollJoin + `
		LEFT JOIN courses c ON c.id = e.course_id
		LEFT JOIN certificates cert ON cert.user_id = u.id AND cert.course_id = e.course_id AND cert.status = 'ACTIVE'
		WHERE u.org_id = $1`
	if f.SiteID != "" {
		q += ` AND u.site_id = ` + arg(f.SiteID)
	}
	q += ` ORDER BY u.name, u.email`

	rows, err := b.db.QueryContext(ctx, q, args...)
	if err != nil {
		return Compliance{}, fmt.Errorf("compliance query: %w", err)
	}
	defer rows.Close()

	now := b.now()
	out := Compliance{GeneratedAt: now.Unix(), SiteID: f.SiteID, CourseID: f.CourseID, Rows: []Row{}}
	for rows.Next() {
		var (
			r       Row
			expires sql.NullInt64
		)
		if err := rows.Scan(&r.UserID, &r.Name, &r.Email, &r.Site, &r.Course, &r.Status, &r.Progress, &r.CertificateSerial, &expires); err != nil {
			return Compliance{}, err
		}
		if r.Status == "" {
			r.Status = StatusNotEnrolled
			r.Course = courseTitle
		}
		if expires.Valid {
			v := expires.Int64
			days := certificate.DaysUntil(now, time.Unix(v, 0), b.loc)
			r.ExpiresAt, r.DaysUntilExpiry = &v, &days
		}
		r.IsCompliant = r.Status == "COMPLETED" && r.DaysUntilExpiry != nil && *r.DaysUntilExpiry > 0
		out.Rows = append(out.Rows, r)
		out.Totals.add(r)
	}
	if err := rows.Err(); err != nil {
		return Compliance{}, err
	}
	if out.Totals.Users > 0 {
		out.Totals.Rate = float64(int64(float64(out.Totals.Compliant)/float64(out.Totals.Users)*10000+0.5)) / 100
	}
	return out, nil
}

func (t *Totals) add(r Row) {
	t.Users++
	if r.Status != StatusNotEnrolled {
		t.Enrolled++
	}
	if r.Status == "COMPLETED" {
		t.Completed++
	}
	if r.IsCompliant {
		t.Compliant++
	}
	if d := r.DaysUntilExpiry; d != nil {
		switch {
		case *d <= 0:
			t.Expired++
		case *d <= ExpiringSoonDays:
			t.ExpiringSoon++
		}
	}
}

// Header is the CSV column order.
var Header = []string{"user_id", "name", "email", "site", "course", "status", "progress",
	"certificate_serial", "expires_at", "days_until_expiry", "is_compliant"}

// WriteCSV writes the rows with dates formatted in loc.
func WriteCSV(w io.Writer, rows []Row, loc *time.Location) error {
	if loc == nil {
		loc = time.UTC
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, r := range rows {
		expires, days := "", ""
		if r.ExpiresAt != nil {
			expires = time.Unix(*r.ExpiresAt, 0).In(loc).Format("2006-01-02")
		}
		if r.DaysUntilExpiry != nil {
			days = strconv.Itoa(*r.DaysUntilExpiry)
		}
		if err := cw.Write([]string{
			r.UserID, r.Name, r.Email, r.Site, r.Course, r.Status,
			strconv.FormatFloat(r.Progress, 'f', -1, 64),
			r.CertificateSerial, expires, days, strconv.FormatBool(r.IsCompliant),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
