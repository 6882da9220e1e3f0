package certificate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/coremine/safety-lms/internal/apperr"
	"github.com/coremine/safety-lms/internal/db"
)

const maxCodeAttempts = 5

// ErrActiveExists is returned by Insert when the holder already has an
// ACTIVE certificate for the course.
var ErrActiveExists = errors.New("active certificate already exists")

type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(dbh *sql.DB) *SQLStore { return &SQLStore{db: dbh} }

// Insert mints the serial and verification code and stores c. A code
// collision regenerates the code, up to five tries.
func (s *SQLStore) Insert(ctx context.Context, c Certificate) (Certificate, error) {
	c.ID = uuid.NewString()
	c.Status = StatusActive
	issued := time.Unix(c.IssuedAt, 0).UTC()
	var lastErr error
	for range maxCodeAttempts {
		serial, err := NewSerial(issued.Year())
		if err != nil {
			return Certificate{}, err
		}
		code, err := NewVerificationCode()
		if err != nil {
			return Certificate{}, err
		}
		c.Serial, c.VerificationCode = serial, code
		_, err = s.db.ExecContext(ctx, `INSERT INTO certificates
			(id,org_id,user_id,course_id,serial,verification_code,status,issued_at,expires_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
			c.ID, c.OrgID, c.UserID, c.CourseID, c.Serial, c.VerificationCode, c.Status, c.IssuedAt, c.ExpiresAt)
		if err == nil {
			return c, nil
		}
		if !db.IsUniqueViolation(err) {
			return Certificate{}, err
		}
		if _, aerr := s.ActiveFor(ctx, c.UserID, c.CourseID); aerr == nil {
			return Certificate{}, ErrActiveExists
		}
		lastErr = err
	}
	return Certificate{}, fmt.Errorf("mint verification code: %w", lastErr)
}

const selectDetail = `SELECT c.id, c.org_id, c.user_id, c.course_id, c.serial, c.verification_code, c.status,
	c.issued_at, c.expires_at, c.revoked_at, c.revoke_reason,
	u.name, u.email, COALESCE(u.site_id,''), COALESCE(s.name,''), co.title, o.name
	FROM certificates c
	JOIN users u ON u.id = c.user_id
	JOIN courses co ON co.id = c.course_id
	JOIN organizations o ON o.id = c.org_id
	LEFT JOIN sites s ON s.id = u.site_id`

func scanDetail(sc interface{ Scan(...any) error }) (Detail, error) {
	var d Detail
	var revoked sql.NullInt64
	err := sc.Scan(&d.ID, &d.OrgID, &d.UserID, &d.CourseID, &d.Serial, &d.VerificationCode, &d.Status,
		&d.IssuedAt, &d.ExpiresAt, &revoked, &d.RevokeReason,
		&d.HolderName, &d.HolderEmail, &d.SiteID, &d.SiteName, &d.CourseTitle, &d.OrgName)
	if err != nil {
		return Detail{}, err
	}
	d.RevokedAt = db.Int64Ptr(revoked)
	return d, nil
}

func (s *SQLStore) one(ctx context.Context, where string, args ...any) (Detail, error) {
	d, err := scanDetail(s.db.QueryRowContext(ctx, selectDetail+" WHERE "+where, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Detail{}, apperr.NotFound("certificate")
		}
		return Detail{}, err
	}
	return d, nil
}

func (s *SQLStore) Get(ctx context.Context, id string) (Detail, error) {
	return s.one(ctx, "c.id=$1", id)
}

func (s *SQLStore) GetByCode(ctx context.Context, code string) (Detail, error) {
	return s.one(ctx, "c.verification_code=$1", NormalizeCode(code))
}

// ActiveFor returns the holder's ACTIVE certificate for a course.
func (s *SQLStore) ActiveFor(ctx context.Context, userID, courseID string) (Detail, error) {
	return s.one(ctx, "c.user_id=$1 AND c.course_id=$2 AND c.status=$3", userID, courseID, StatusActive)
}

// ActiveForUser maps course id to the user's ACTIVE certificate.
func (s *SQLStore) ActiveForUser(ctx context.Context, userID string) (map[string]Detail, error) {
	list, err := s.list(ctx, " WHERE c.user_id=$1 AND c.status=$2", userID, StatusActive)
	if err != nil {
		return nil, err
	}
	out := make(map[string]Detail, len(list))
	for _, d := range list {
		out[d.CourseID] = d
	}
	return out, nil
}

// ListForUser returns every certificate of a user, newest first.
func (s *SQLStore) ListForUser(ctx context.Context, userID string) ([]Detail, error) {
	return s.list(ctx, " WHERE c.user_id=$1 ORDER BY c.issued_at DESC", userID)
}

// ListActiveForOrg returns the org's ACTIVE certificates.
func (s *SQLStore) ListActiveForOrg(ctx context.Context, orgID string) ([]Detail, error) {
	return s.list(ctx, " WHERE c.org_id=$1 AND c.status=$2", orgID, StatusActive)
}

// ListExpiring returns ACTIVE certificates with from < expires_at <= to.
func (s *SQLStore) ListExpiring(ctx context.Context, from, to time.Time) ([]Detail, error) {
	return s.list(ctx, " WHERE c.status=$1 AND c.expires_at > $2 AND c.expires_at <= $3 ORDER BY c.expires_at",
		StatusActive, from.Unix(), to.Unix())
}

// Filter selects certificates of one org for bulk export. Empty fields do not filter.
type Filter struct {
	OrgID    string
	IDs      []string
	CourseID string
	SiteID   string
}

// Select returns up to limit certificates matching f, newest first.
func (s *SQLStore) Select(ctx context.Context, f Filter, limit int) ([]Detail, error) {
	conds := []string{"c.org_id=$1"}
	args := []any{f.OrgID}
	if len(f.IDs) > 0 {
		ph := make([]string, len(f.IDs))
		for i, id := range f.IDs {
			args = append(args, id)
			ph[i] = fmt.Sprintf("$%d", len(args))
		}
		conds = append(conds, "c.id IN ("+strings.Join(ph, ",")+")")
	}
	if f.CourseID != "" {
		args = append(args, f.CourseID)
		conds = append(conds, fmt.Sprintf("c.course_id=$%d", len(args)))
	}
	if f.SiteID != "" {
		args = append(args, f.SiteID)
		conds = append(conds, fmt.Sprintf("u.site_id=$%d", len(args)))
	}
	q := " WHERE " + strings.Join(conds, " AND ") + fmt.Sprintf(" ORDER BY c.issued_at DESC LIMIT %d", limit)
	return s.list(ctx, q, args...)
}

func (s *SQLStore) list(ctx context.Context, tail string, args ...any) ([]Detail, error) {
	rows, err := s.db.QueryContext(ctx, selectDetail+tail, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Detail{}
	for rows.Next() {
		d, err := scanDetail(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Revoke marks an ACTIVE certificate of the org as REVOKED.
func (s *SQLStore) Revoke(ctx context.Context, orgID, id, reason string, at time.Time) (Detail, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE certificates SET status=$1, revoked_at=$2, revoke_reason=$3
		WHERE id=$4 AND org_id=$5 AND status=$6`, StatusRevoked, at.Unix(), reason, id, orgID, StatusActive)
	if err != nil {
		return Detail{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		d, err := s.Get(ctx, id)
		if err != nil || d.OrgID != orgID {
			return Detail{}, apperr.NotFound("certificate")
		}
		return Detail{}, apperr.Conflict("certificate %s is already revoked", d.Serial)
	}
	return s.Get(ctx, id)
}
