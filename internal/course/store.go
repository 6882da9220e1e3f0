package course

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/coremine/safety-lms/internal/apperr"
	"github.com/coremine/safety-lms/internal/db"
)

type SQLStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLStore(dbh *sql.DB) *SQLStore {
	return &SQLStore{db: dbh, now: time.Now}
}

// ---- organizations ----

func (s *SQLStore) GetOrg(ctx context.Context, id string) (Org, error) {
	var o Org
	var seq int
	var months sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT id, name, require_sequential, cert_validity_months FROM organizations WHERE id=$1`, id).
		Scan(&o.ID, &o.Name, &seq, &months)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Org{}, apperr.NotFound("organization")
		}
		return Org{}, err
	}
	o.RequireSequential = seq == 1
	if months.Valid {
		m := int(months.Int64)
		o.CertValidityMonths = &m
	}
	return o, nil
}

func (s *SQLStore) UpdateOrgSettings(ctx context.Context, id string, requireSequential bool, validityMonths *int) (Org, error) {
	var months any
	if validityMonths != nil {
		months = *validityMonths
	}
	res, err := s.db.ExecContext(ctx, `UPDATE organizations SET require_sequential=$1, cert_validity_months=$2 WHERE id=$3`,
		db.BoolInt(requireSequential), months, id)
	if err != nil {
		return Org{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Org{}, apperr.NotFound("organization")
	}
	return s.GetOrg(ctx, id)
}

// CreateOrg inserts an organization with default settings.
func (s *SQLStore) CreateOrg(ctx context.Context, name string) (Org, error) {
	o := Org{ID: uuid.NewString(), Name: name}
	_, err := s.db.ExecContext(ctx, `INSERT INTO organizations (id,name,require_sequential,created_at) VALUES ($1,$2,0,$3)`,
		o.ID, o.Name, s.now().Unix())
	if err != nil {
		return Org{}, err
	}
	return o, nil
}

func (s *SQLStore) CreateSite(ctx context.Context, orgID, name string) (Site, error) {
	st := Site{ID: uuid.NewString(), OrgID: orgID, Name: name}
	if _, err := s.db.ExecContext(ctx, `INSERT INTO sites (id,org_id,name) VALUES ($1,$2,$3)`, st.ID, st.OrgID, st.Name); err != nil {
		return Site{}, err
	}
	return st, nil
}

func (s *SQLStore) ListSites(ctx context.Context, orgID string) ([]Site, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, org_id, name FROM sites WHERE org_id=$1 ORDER BY name`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Site{}
	for rows.Next() {
		var st Site
		if err := rows.Scan(&st.ID, &st.OrgID, &st.Name); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// ---- courses & modules ----

func (s *SQLStore) CreateCourse(ctx context.Context, c Course) (Course, error) {
	c.ID = uuid.NewString()
	c.CreatedAt = s.now().Unix()
	_, err := s.db.ExecContext(ctx, `INSERT INTO courses (id,org_id,title,slug,created_at) VALUES ($1,$2,$3,$4,$5)`,
		c.ID, c.OrgID, c.Title, c.Slug, c.CreatedAt)
	if err != nil {
		return Course{}, err
	}
	return c, nil
}

// GetCourse returns the course with its modules in order.
func (s *SQLStore) GetCourse(ctx context.Context, id string) (Course, error) {
	var c Course
	err := s.db.QueryRowContext(ctx, `SELECT id, org_id, title, slug, created_at FROM courses WHERE id=$1`, id).
		Scan(&c.ID, &c.OrgID, &c.Title, &c.Slug, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Course{}, apperr.NotFound("course")
		}
		return Course{}, err
	}
	mods, err := s.ListModules(ctx, id)
	if err != nil {
		return Course{}, err
	}
	c.Modules = mods
	return c, nil
}

func (s *SQLStore) ListCourses(ctx context.Context, orgID string) ([]Course, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, org_id, title, slug, created_at FROM courses WHERE org_id=$1 ORDER BY created_at, title`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Course{}
	for rows.Next() {
		var c Course
		if err := rows.Scan(&c.ID, &c.OrgID, &c.Title, &c.Slug, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

const selectModule = `SELECT id, course_id, title, kind, order_index, pass_score, content_json, asset_key, created_at FROM modules`

func scanModule(sc interface{ Scan(...any) error }) (Module, error) {
	var m Module
	var content string
	if err := sc.Scan(&m.ID, &m.CourseID, &m.Title, &m.Kind, &m.OrderIndex, &m.PassScore, &content, &m.AssetKey, &m.CreatedAt); err != nil {
		return Module{}, err
	}
	m.Content = json.RawMessage(content)
	return m, nil
}

// AddModule appends m to the end of its course.
func (s *SQLStore) AddModule(ctx context.Context, m Module) (Module, error) {
	var next int
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(order_index)+1, 0) FROM modules WHERE course_id=$1`, m.CourseID).Scan(&next); err != nil {
		return Module{}, err
	}
	m.ID = uuid.NewString()
	m.OrderIndex = next
	m.CreatedAt = s.now().Unix()
	if len(m.Content) == 0 {
		m.Content = json.RawMessage(`{}`)
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO modules (id,course_id,title,kind,order_index,pass_score,content_json,asset_key,created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		m.ID, m.CourseID, m.Title, m.Kind, m.OrderIndex, m.PassScore, string(m.Content), m.AssetKey, m.CreatedAt)
	if err != nil {
		return Module{}, err
	}
	return m, nil
}

func (s *SQLStore) GetModule(ctx context.Context, id string) (Module, error) {
	m, err := scanModule(s.db.QueryRowContext(ctx, selectModule+` WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Module{}, apperr.NotFound("module")
		}
		return Module{}, err
	}
	return m, nil
}

func (s *SQLStore) ListModules(ctx context.Context, courseID string) ([]Module, error) {
	rows, err := s.db.QueryContext(ctx, selectModule+` WHERE course_id=$1 ORDER BY order_index`, courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Module{}
	for rows.Next() {
		m, err := scanModule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *SQLStore) SetModuleAsset(ctx context.Context, id, key string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE modules SET asset_key=$1 WHERE id=$2`, key, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("module")
	}
	return nil
}

func (s *SQLStore) CountModules(ctx context.Context, courseID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM modules WHERE course_id=$1`, courseID).Scan(&n)
	return n, err
}

// ---- enrollments ----

const selectEnrollment = `SELECT id, user_id, course_id, status, current_module_index, progress, enrolled_at, completed_at FROM enrollments`

func scanEnrollment(sc interface{ Scan(...any) error }) (Enrollment, error) {
	var e Enrollment
	var completed sql.NullInt64
	if err := sc.Scan(&e.ID, &e.UserID, &e.CourseID, &e.Status, &e.CurrentModuleIndex, &e.Progress, &e.EnrolledAt, &completed); err != nil {
		return Enrollment{}, err
	}
	e.CompletedAt = db.Int64Ptr(completed)
	return e, nil
}

// Enroll creates an enrollment. created is false when one already existed.
func (s *SQLStore) Enroll(ctx context.Context, userID, courseID string) (Enrollment, bool, error) {
	return s.EnrollWith(ctx, s.db, userID, courseID)
}

// EnrollWith is Enroll on an explicit querier so callers can join a transaction.
func (s *SQLStore) EnrollWith(ctx context.Context, q db.Querier, userID, courseID string) (Enrollment, bool, error) {
	e, err := scanEnrollment(q.QueryRowContext(ctx, selectEnrollment+` WHERE user_id=$1 AND course_id=$2`, userID, courseID))
	if err == nil {
		return e, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return Enrollment{}, false, err
	}
	e = Enrollment{
		ID:         uuid.NewString(),
		UserID:     userID,
		CourseID:   courseID,
		Status:     StatusEnrolled,
		EnrolledAt: s.now().Unix(),
	}
	_, err = q.ExecContext(ctx, `INSERT INTO enrollments (id,user_id,course_id,status,current_module_index,progress,enrolled_at)
		VALUES ($1,$2,$3,$4,0,0,$5)`, e.ID, e.UserID, e.CourseID, e.Status, e.EnrolledAt)
	if err != nil {
		return Enrollment{}, false, err
	}
	return e, true, nil
}

func (s *SQLStore) GetEnrollment(ctx context.Context, userID, courseID string) (Enrollment, error) {
	e, err := scanEnrollment(s.db.QueryRowContext(ctx, selectEnrollment+` WHERE user_id=$1 AND course_id=$2`, userID, courseID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Enrollment{}, apperr.NotFound("enrollment")
		}
		return Enrollment{}, err
	}
	return e, nil
}

func (s *SQLStore) ListEnrollments(ctx context.Context, userID string) ([]Enrollment, error) {
	rows, err := s.db.QueryContext(ctx, selectEnrollment+` WHERE user_id=$1 ORDER BY enrolled_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Enrollment{}
	for rows.Next() {
		e, err := scanEnrollment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLStore) UpdateEnrollment(ctx context.Context, e Enrollment) error {
	_, err := s.db.ExecContext(ctx, `UPDATE enrollments SET status=$1, current_module_index=$2, progress=$3, completed_at=$4 WHERE id=$5`,
		e.Status, e.CurrentModuleIndex, e.Progress, db.NullInt64(e.CompletedAt), e.ID)
	return err
}

// ---- module attempts ----

func (s *SQLStore) InsertModuleAttempt(ctx context.Context, ma ModuleAttempt) (ModuleAttempt, error) {
	ma.ID = uuid.NewString()
	var attemptID any
	if ma.AttemptID != "" {
		attemptID = ma.AttemptID
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO module_attempts (id,enrollment_id,module_id,attempt_id,attempt_number,passed,score,completed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		ma.ID, ma.EnrollmentID, ma.ModuleID, attemptID, ma.AttemptNumber, db.BoolInt(ma.Passed), ma.Score, ma.CompletedAt)
	if err != nil {
		return ModuleAttempt{}, err
	}
	return ma, nil
}

// ModuleAttemptCounts returns total and passing module attempts for one module of an enrollment.
func (s *SQLStore) ModuleAttemptCounts(ctx context.Context, enrollmentID, moduleID string) (total, passed int, err error) {
	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*), COALESCE(SUM(passed),0) FROM module_attempts WHERE enrollment_id=$1 AND module_id=$2`,
		enrollmentID, moduleID).Scan(&total, &passed)
	return
}

// ModuleSummary returns per-module attempt counts and which modules have a passing attempt.
func (s *SQLStore) ModuleSummary(ctx context.Context, enrollmentID string) (attempts map[string]int, passed map[string]bool, err error) {
	rows, err := s.db.QueryContext(ctx, `SELECT module_id, COUNT(*), MAX(passed) FROM module_attempts WHERE enrollment_id=$1 GROUP BY module_id`, enrollmentID)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()
	attempts = map[string]int{}
	passed = map[string]bool{}
	for rows.Next() {
		var id string
		var n, p int
		if err := rows.Scan(&id, &n, &p); err != nil {
			return nil, nil, err
		}
		attempts[id] = n
		if p == 1 {
			passed[id] = true
		}
	}
	return attempts, passed, rows.Err()
}
