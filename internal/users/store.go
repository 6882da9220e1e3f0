package users

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/coremine/safety-lms/internal/apperr"
	"github.com/coremine/safety-lms/internal/db"
)

var ErrBadCredentials = errors.New("invalid email or password")

type SQLStore struct {
	db   *sql.DB
	cost int
	now  func() time.Time
}

func NewSQLStore(dbh *sql.DB) *SQLStore {
	return &SQLStore{db: dbh, cost: 12, now: time.Now}
}

func upper(s string) string { return strings.ToUpper(strings.TrimSpace(s)) }

// NormalizeEmail lower-cases and trims an address.
func NormalizeEmail(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

const selectUser = `SELECT id, org_id, COALESCE(site_id,''), email, name, role, password_hash, created_at FROM users`

func scanUser(sc interface{ Scan(...any) error }) (User, error) {
	var u User
	err := sc.Scan(&u.ID, &u.OrgID, &u.SiteID, &u.Email, &u.Name, &u.Role, &u.PasswordHash, &u.CreatedAt)
	return u, err
}

func (s *SQLStore) Hash(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	return string(b), err
}

// CreateWith inserts u with the given password on q. A taken email is ErrConflict.
func (s *SQLStore) CreateWith(ctx context.Context, q db.Querier, u User, password string) (User, error) {
	if password == "" {
		return User{}, apperr.Invalid("password is required")
	}
	hash, err := s.Hash(password)
	if err != nil {
		return User{}, err
	}
	u.ID = uuid.NewString()
	u.Email = NormalizeEmail(u.Email)
	u.PasswordHash = hash
	u.CreatedAt = s.now().Unix()
	var site any
	if u.SiteID != "" {
		site = u.SiteID
	}
	_, err = q.ExecContext(ctx, `INSERT INTO users (id,org_id,site_id,email,name,role,password_hash,created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`, u.ID, u.OrgID, site, u.Email, u.Name, u.Role, u.PasswordHash, u.CreatedAt)
	if db.IsUniqueViolation(err) {
		return User{}, apperr.Conflict("email %s is already registered", u.Email)
	}
	if err != nil {
		return User{}, err
	}
	return u, nil
}

func (s *SQLStore) Create(ctx context.Context, u User, password string) (User, error) {
	return s.CreateWith(ctx, s.db, u, password)
}

func (s *SQLStore) Get(ctx context.Context, id string) (User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, selectUser+` WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, apperr.NotFound("user")
	}
	return u, err
}

func (s *SQLStore) GetByEmail(ctx context.Context, email string) (User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, selectUser+` WHERE email=$1`, NormalizeEmail(email)))
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, apperr.NotFound("user")
	}
	return u, err
}

// List returns org members ordered by name, optionally restricted to roles.
func (s *SQLStore) List(ctx context.Context, orgID string, roles ...Role) ([]User, error) {
	q := selectUser + ` WHERE org_id=$1`
	args := []any{orgID}
	if len(roles) > 0 {
		ph := make([]string, len(roles))
		for i, r := range roles {
			args = append(args, r)
			ph[i] = "$" + strconv.Itoa(len(args))
		}
		q += ` AND role IN (` + strings.Join(ph, ",") + `)`
	}
	rows, err := s.db.QueryContext(ctx, q+` ORDER BY name, email`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// SiteInOrg reports whether siteID names a site of orgID.
func (s *SQLStore) SiteInOrg(ctx context.Context, orgID, siteID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sites WHERE id=$1 AND org_id=$2`, siteID, orgID).Scan(&n)
	return n > 0, err
}

// Authenticate checks an email/password pair.
func (s *SQLStore) Authenticate(ctx context.Context, email, password string) (User, error) {
	u, err := s.GetByEmail(ctx, email)
	if errors.Is(err, apperr.ErrNotFound) {
		return User{}, ErrBadCredentials
	}
	if err != nil {
		return User{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return User{}, ErrBadCredentials
	}
	return u, nil
}

// SetPassword replaces the user's password hash.
func (s *SQLStore) SetPassword(ctx context.Context, id, password string) error {
	if len(password) < 8 {
		return apperr.Invalid("password must be at least 8 characters")
	}
	hash, err := s.Hash(password)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE users SET password_hash=$1 WHERE id=$2`, hash, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("user")
	}
	return nil
}
