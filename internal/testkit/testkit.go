// Package testkit opens throwaway sqlite databases and seeds rows for
// integration tests across packages. It issues raw SQL so it never imports
// the domain packages that use it.
package testkit

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/coremine/safety-lms/internal/db"
)

// OpenDB returns an in-memory sqlite database with the schema applied.
func OpenDB(t testing.TB) *sql.DB {
	t.Helper()
	dbh, err := db.Open(context.Background(), db.DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { _ = dbh.Close() })
	return dbh
}

func mustExec(t testing.TB, dbh *sql.DB, q string, args ...any) {
	t.Helper()
	if _, err := dbh.ExecContext(context.Background(), q, args...); err != nil {
		t.Fatalf("exec %q: %v", q, err)
	}
}

// SeedOrg inserts an organization. validityMonths <= 0 leaves the column NULL.
func SeedOrg(t testing.TB, dbh *sql.DB, requireSequential bool, validityMonths int) string {
	t.Helper()
	id := uuid.NewString()
	var months any
	if validityMonths > 0 {
		months = validityMonths
	}
	mustExec(t, dbh, `INSERT INTO organizations (id,name,require_sequential,cert_validity_months,created_at) VALUES ($1,$2,$3,$4,$5)`,
		id, "Org "+id[:8], db.BoolInt(requireSequential), months, time.Now().Unix())
	return id
}

func SeedSite(t testing.TB, dbh *sql.DB, orgID, name string) string {
	t.Helper()
	id := uuid.NewString()
	mustExec(t, dbh, `INSERT INTO sites (id,org_id,name) VALUES ($1,$2,$3)`, id, orgID, name)
	return id
}

// SeedUser inserts a user whose password is "password".
func SeedUser(t testing.TB, dbh *sql.DB, orgID, siteID, email, role string) string {
	t.Helper()
	id := uuid.NewString()
	hash, err := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	var site any
	if siteID != "" {
		site = siteID
	}
	mustExec(t, dbh, `INSERT INTO users (id,org_id,site_id,email,name,role,password_hash,created_at) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		id, orgID, site, email, "User "+email, role, string(hash), time.Now().Unix())
	return id
}

// SeedCourse inserts a course with the given module kinds in order and
// returns the course id and module ids.
func SeedCourse(t testing.TB, dbh *sql.DB, orgID string, kinds ...string) (string, []string) {
	t.Helper()
	courseID := uuid.NewString()
	now := time.Now().Unix()
	mustExec(t, dbh, `INSERT INTO courses (id,org_id,title,slug,created_at) VALUES ($1,$2,$3,$4,$5)`,
		courseID, orgID, "Underground Safety", "underground-safety-"+courseID[:8], now)
	ids := make([]string, 0, len(kinds))
	for i, k := range kinds {
		id := uuid.NewString()
		mustExec(t, dbh, `INSERT INTO modules (id,course_id,title,kind,order_index,pass_score,content_json,created_at) VALUES ($1,$2,$3,$4,$5,70,'{}',$6)`,
			id, courseID, "Module", k, i, now)
		ids = append(ids, id)
	}
	return courseID, ids
}

// SeedEnrollment enrolls userID in courseID with status ENROLLED.
func SeedEnrollment(t testing.TB, dbh *sql.DB, userID, courseID string) string {
	t.Helper()
	id := uuid.NewString()
	mustExec(t, dbh, `INSERT INTO enrollments (id,user_id,course_id,status,current_module_index,progress,enrolled_at) VALUES ($1,$2,$3,'ENROLLED',0,0,$4)`,
		id, userID, courseID, time.Now().Unix())
	return id
}

// SeedCertificate inserts an ACTIVE certificate with the given expiry. Its
// verification code is the upper-cased first eight characters of the id.
func SeedCertificate(t testing.TB, dbh *sql.DB, orgID, userID, courseID string, issuedAt, expiresAt time.Time) string {
	t.Helper()
	id := uuid.NewString()
	mustExec(t, dbh, `INSERT INTO certificates (id,org_id,user_id,course_id,serial,verification_code,status,issued_at,expires_at) VALUES ($1,$2,$3,$4,$5,$6,'ACTIVE',$7,$8)`,
		id, orgID, userID, courseID, "CRM-2026-"+id[:6], strings.ToUpper(id[:8]), issuedAt.Unix(), expiresAt.Unix())
	return id
}

// Count returns SELECT COUNT(*) for the given query.
func Count(t testing.TB, dbh *sql.DB, q string, args ...any) int {
	t.Helper()
	var n int
	if err := dbh.QueryRowContext(context.Background(), q, args...).Scan(&n); err != nil {
		t.Fatalf("count %q: %v", q, err)
	}
	return n
}
