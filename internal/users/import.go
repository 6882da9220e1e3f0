package users

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/coremine/safety-lms/internal/apperr"
	"github.com/coremine/safety-lms/internal/audit"
	"github.com/coremine/safety-lms/internal/course"
	"github.com/coremine/safety-lms/internal/db"
	"github.com/coremine/safety-lms/internal/logger"
	"github.com/coremine/safety-lms/internal/notify"
)

// Columns accepted by Import. email and name are required.
var Columns = []string{"email", "name", "role", "site_id", "course_id", "password"}

type Row struct {
	Line     int
	Email    string
	Name     string
	Role     string
	SiteID   string
	CourseID string
	Password string
}

type RowError struct {
	Line  int    `json:"line"`
	Email string `json:"email,omitempty"`
	Error string `json:"error"`
}

type ImportResult struct {
	Total    int        `json:"total"`
	Created  int        `json:"created"`
	Enrolled int        `json:"enrolled"`
	Skipped  int        `json:"skipped"`
	Errors   []RowError `json:"errors"`
}

type Mailer interface {
	Send(ctx context.Context, e notify.Email) (notify.EmailLog, error)
}

type Importer struct {
	users    *SQLStore
	courses  *course.SQLStore
	mailer   Mailer
	audit    audit.Recorder
	log      *logger.Logger
	loginURL string
	validate *validator.Validate
}

func NewImporter(users *SQLStore, courses *course.SQLStore, mailer Mailer, rec audit.Recorder, log *logger.Logger, baseURL string) *Importer {
	return &Importer{
		users:    users,
		courses:  courses,
		mailer:   mailer,
		audit:    rec,
		log:      log,
		loginURL: baseURL + "/login",
		validate: validator.New(),
	}
}

// ParseCSV reads an import file. The header row names the columns in any
// order and letter case.
func ParseCSV(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1
	hdr, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, apperr.Invalid("empty file")
	}
	if err != nil {
		return nil, apperr.Invalid("bad csv: %v", err)
	}
	idx := map[string]int{}
	for i, h := range hdr {
		idx[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	for _, k := range []string{"email", "name"} {
		if _, ok := idx[k]; !ok {
			return nil, apperr.Invalid("missing column: %s", k)
		}
	}
	col := func(rec []string, name string) string {
		i, ok := idx[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}
	var rows []Row
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, apperr.Invalid("bad csv: %v", err)
		}
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}
		rows = append(rows, Row{
			Line:     line,
			Email:    NormalizeEmail(col(rec, "email")),
			Name:     col(rec, "name"),
			Role:     col(rec, "role"),
			SiteID:   col(rec, "site_id"),
			CourseID: col(rec, "course_id"),
			Password: col(rec, "password"),
		})
	}
	return rows, nil
}

// Import creates users of orgID from a CSV file. Rows are validated and
// committed one at a time, each with its optional enrollment; a bad row is
// reported and skipped. An email counts as taken by the file only once its
// row has been created.
func (im *Importer) Import(ctx context.Context, orgID, actorID string, r io.Reader) (ImportResult, error) {
	rows, err := ParseCSV(r)
	if err != nil {
		return ImportResult{}, err
	}
	org, err := im.courses.GetOrg(ctx, orgID)
	if err != nil {
		return ImportResult{}, err
	}
	res := ImportResult{Total: len(rows), Errors: []RowError{}}
	seen := map[string]bool{}
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		var (
			created  User
			enrolled bool
			temp     string
		)
		if seen[row.Email] {
			err = errors.New("duplicate email in file")
		} else {
			created, enrolled, temp, err = im.importRow(ctx, orgID, row)
		}
		if err != nil {
			res.Skipped++
			res.Errors = append(res.Errors, RowError{Line: row.Line, Email: row.Email, Error: err.Error()})
			continue
		}
		seen[row.Email] = true
		res.Created++
		if enrolled {
			res.Enrolled++
		}
		if temp != "" {
			im.welcome(ctx, org, created, temp)
		}
	}
	im.log.Info("users imported", "org_id", orgID, "total", res.Total, "created", res.Created, "skipped", res.Skipped)
	if err := im.audit.Record(ctx, orgID, audit.TypeUsersImported, actorID, map[string]any{
		"total": res.Total, "created": res.Created, "enrolled": res.Enrolled, "skipped": res.Skipped,
	}); err != nil {
		im.log.Warn("audit users imported", "err", err)
	}
	return res, nil
}

func (im *Importer) importRow(ctx context.Context, orgID string, row Row) (User, bool, string, error) {
	if row.Email == "" {
		return User{}, false, "", errors.New("email is required")
	}
	role, ok := ParseRole(row.Role)
	if !ok {
		return User{}, false, "", fmt.Errorf("unknown role %q", row.Role)
	}
	u := User{OrgID: orgID, SiteID: row.SiteID, Email: row.Email, Name: row.Name, Role: role}
	if err := im.validate.Struct(u); err != nil {
		return User{}, false, "", fmt.Errorf("invalid row: %v", err)
	}
	if row.SiteID != "" {
		ok, err := im.users.SiteInOrg(ctx, orgID, row.SiteID)
		if err != nil {
			return User{}, false, "", err
		}
		if !ok {
			return User{}, false, "", fmt.Errorf("unknown site %s", row.SiteID)
		}
	}
	if row.CourseID != "" {
		c, err := im.courses.GetCourse(ctx, row.CourseID)
		if err != nil || c.OrgID != orgID {
			return User{}, false, "", fmt.Errorf("unknown course %s", row.CourseID)
		}
	}
	password, temp := row.Password, ""
	if password == "" {
		p, err := TempPassword()
		if err != nil {
			return User{}, false, "", err
		}
		password, temp = p, p
	} else if len(password) < 8 {
		return User{}, false, "", errors.New("password must be at least 8 characters")
	}

	var created User
	enrolled := false
	err := db.WithTx(ctx, im.users.db, func(tx *sql.Tx) error {
		var err error
		created, err = im.users.CreateWith(ctx, tx, u, password)
		if err != nil {
			return err
		}
		if row.CourseID != "" {
			if _, enrolled, err = im.courses.EnrollWith(ctx, tx, created.ID, row.CourseID); err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, apperr.ErrConflict) {
		return User{}, false, "", errors.New("email already registered")
	}
	if err != nil {
		return User{}, false, "", err
	}
	return created, enrolled, temp, nil
}

func (im *Importer) welcome(ctx context.Context, org course.Org, u User, temp string) {
	_, err := im.mailer.Send(ctx, notify.Email{
		OrgID:   u.OrgID,
		Type:    notify.TypeWelcome,
		UserID:  u.ID,
		ToName:  u.Name,
		ToEmail: u.Email,
		Data: notify.WelcomeData{
			Name:         u.Name,
			Email:        u.Email,
			OrgName:      org.Name,
			LoginURL:     im.loginURL,
			TempPassword: temp,
		},
	})
	if err != nil {
		im.log.Warn("welcome email not sent", "user_id", u.ID, "err", err)
	}
}

const tempAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnpqrstuvwxyz23456789"

// TempPassword returns a random 12 character password.
func TempPassword() (string, error) {
	b := make([]byte, 12)
	limit := big.NewInt(int64(len(tempAlphabet)))
	for i := range b {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		b[i] = tempAlphabet[n.Int64()]
	}
	return string(b), nil
}
