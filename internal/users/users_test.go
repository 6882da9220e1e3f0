package users

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/coremine/safety-lms/internal/apperr"
	"github.com/coremine/safety-lms/internal/audit"
	"github.com/coremine/safety-lms/internal/course"
	"github.com/coremine/safety-lms/internal/logger"
	"github.com/coremine/safety-lms/internal/notify"
	"github.com/coremine/safety-lms/internal/testkit"
)

type fakeMailer struct{ sent []notify.Email }

func (f *fakeMailer) Send(_ context.Context, e notify.Email) (notify.EmailLog, error) {
	f.sent = append(f.sent, e)
	return notify.EmailLog{Status: notify.StatusSent}, nil
}

func TestParseRole(t *testing.T) {
	r, ok := ParseRole(" supervisor ")
	assert.True(t, ok)
	assert.Equal(t, RoleSupervisor, r)
	r, ok = ParseRole("")
	assert.True(t, ok)
	assert.Equal(t, RoleLearner, r)
	_, ok = ParseRole("instructor")
	assert.False(t, ok)
}

func TestCreateAndAuthenticate(t *testing.T) {
	ctx := context.Background()
	dbh := testkit.OpenDB(t)
	orgID := testkit.SeedOrg(t, dbh, false, 0)
	s := NewSQLStore(dbh)
	s.cost = bcrypt.MinCost

	u, err := s.Create(ctx, User{OrgID: orgID, Email: " Miner@Example.com ", Name: "Miner", Role: RoleLearner}, "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, "miner@example.com", u.Email)

	_, err = s.Create(ctx, User{OrgID: orgID, Email: "miner@example.com", Name: "Again", Role: RoleLearner}, "correct-horse")
	assert.True(t, errors.Is(err, apperr.ErrConflict))

	got, err := s.Authenticate(ctx, "MINER@example.com", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	_, err = s.Authenticate(ctx, "miner@example.com", "wrong")
	assert.ErrorIs(t, err, ErrBadCredentials)
	_, err = s.Authenticate(ctx, "nobody@example.com", "x")
	assert.ErrorIs(t, err, ErrBadCredentials)

	require.NoError(t, s.SetPassword(ctx, u.ID, "new-password-1"))
	_, err = s.Authenticate(ctx, "miner@example.com", "new-password-1")
	assert.NoError(t, err)
	assert.True(t, errors.Is(s.SetPassword(ctx, u.ID, "short"), apperr.ErrInvalid))
}

func TestListByRole(t *testing.T) {
	ctx := context.Background()
	dbh := testkit.OpenDB(t)
	orgID := testkit.SeedOrg(t, dbh, false, 0)
	other := testkit.SeedOrg(t, dbh, false, 0)
	testkit.SeedUser(t, dbh, orgID, "", "a@example.com", "ADMIN")
	testkit.SeedUser(t, dbh, orgID, "", "s@example.com", "SUPERVISOR")
	testkit.SeedUser(t, dbh, orgID, "", "l@example.com", "LEARNER")
	testkit.SeedUser(t, dbh, other, "", "x@example.com", "ADMIN")
	s := NewSQLStore(dbh)

	all, err := s.List(ctx, orgID)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	staff, err := s.List(ctx, orgID, RoleAdmin, RoleSupervisor)
	require.NoError(t, err)
	require.Len(t, staff, 2)
	for _, u := range staff {
		assert.NotEqual(t, RoleLearner, u.Role)
	}
}

func TestParseCSV(t *testing.T) {
	rows, err := ParseCSV(strings.NewReader("Name,EMAIL,role\nAna,ANA@example.com,admin\n\nBo,bo@example.com,\n"))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "ana@example.com", rows[0].Email)
	assert.Equal(t, 2, rows[0].Line)
	assert.Equal(t, "Bo", rows[1].Name)

	_, err = ParseCSV(strings.NewReader("email,role\na@example.com,LEARNER\n"))
	assert.True(t, errors.Is(err, apperr.ErrInvalid))
	_, err = ParseCSV(strings.NewReader(""))
	assert.True(t, errors.Is(err, apperr.ErrInvalid))
}

func TestImport(t *testing.T) {
	ctx := context.Background()
	dbh := testkit.OpenDB(t)
	orgID := testkit.SeedOrg(t, dbh, false, 0)
	siteID := testkit.SeedSite(t, dbh, orgID, "Pit 3")
	courseID, _ := testkit.SeedCourse(t, dbh, orgID, "VIDEO")
	otherOrg := testkit.SeedOrg(t, dbh, false, 0)
	foreignCourse, _ := testkit.SeedCourse(t, dbh, otherOrg, "VIDEO")
	testkit.SeedUser(t, dbh, orgID, "", "existing@example.com", "LEARNER")

	store := NewSQLStore(dbh)
	store.cost = bcrypt.MinCost
	m := &fakeMailer{}
	im := NewImporter(store, course.NewSQLStore(dbh), m, audit.NewEventRepo(dbh), logger.Nop(), "https://lms.example.com")

	csvBody := strings.Join([]string{
		"email,name,role,site_id,course_id,password",
		"new1@example.com,New One,LEARNER," + siteID + "," + courseID + ",",
		"new2@example.com,New Two,SUPERVISOR,,," + "longenough1",
		"existing@example.com,Dup Db,LEARNER,,,",
		"new1@example.com,Dup File,LEARNER,,,",
		"bad-email,Bad,LEARNER,,,",
		"new3@example.com,Wrong Role,OWNER,,,",
		"new4@example.com,Foreign,LEARNER,," + foreignCourse + ",",
		"new5@example.com,Short Pw,LEARNER,,,abc",
		"new6@example.com,Unknown Site,LEARNER,nowhere,,",
	}, "\n")

	res, err := im.Import(ctx, orgID, "admin-1", strings.NewReader(csvBody))
	require.NoError(t, err)
	assert.Equal(t, 9, res.Total)
	assert.Equal(t, 2, res.Created)
	assert.Equal(t, 1, res.Enrolled)
	assert.Equal(t, 7, res.Skipped)
	require.Len(t, res.Errors, 7)
	assert.Equal(t, "email already registered", res.Errors[0].Error)
	assert.Equal(t, 4, res.Errors[0].Line)
	assert.Equal(t, "duplicate email in file", res.Errors[1].Error)

	assert.Equal(t, 1, testkit.Count(t, dbh, `SELECT COUNT(*) FROM enrollments WHERE course_id=$1`, courseID))
	assert.Equal(t, 0, testkit.Count(t, dbh, `SELECT COUNT(*) FROM users WHERE email='new4@example.com'`))

	require.Len(t, m.sent, 1)
	assert.Equal(t, notify.TypeWelcome, m.sent[0].Type)
	data := m.sent[0].Data.(notify.WelcomeData)
	assert.Len(t, data.TempPassword, 12)
	_, err = store.Authenticate(ctx, "new1@example.com", data.TempPassword)
	assert.NoError(t, err)

	u, err := store.GetByEmail(ctx, "new1@example.com")
	require.NoError(t, err)
	assert.Equal(t, siteID, u.SiteID)

	assert.Equal(t, 1, testkit.Count(t, dbh, `SELECT COUNT(*) FROM event_log WHERE typ='users.imported'`))
}

func TestImportRejectedRowDoesNotReserveEmail(t *testing.T) {
	ctx := context.Background()
	dbh := testkit.OpenDB(t)
	orgID := testkit.SeedOrg(t, dbh, false, 0)
	store := NewSQLStore(dbh)
	store.cost = bcrypt.MinCost
	im := NewImporter(store, course.NewSQLStore(dbh), &fakeMailer{}, audit.Nop{}, logger.Nop(), "")

	csvBody := strings.Join([]string{
		"email,name,role,site_id,course_id,password",
		"crew@example.com,Crew,FOREMAN,,,longenough1",
		"crew@example.com,Crew,LEARNER,,,longenough1",
		"crew@example.com,Crew Again,LEARNER,,,longenough1",
	}, "\n")
	res, err := im.Import(ctx, orgID, "admin-1", strings.NewReader(csvBody))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Created)
	require.Len(t, res.Errors, 2)
	assert.Equal(t, 2, res.Errors[0].Line)
	assert.Contains(t, res.Errors[0].Error, "unknown role")
	assert.Equal(t, 4, res.Errors[1].Line)
	assert.Equal(t, "duplicate email in file", res.Errors[1].Error)

	u, err := store.GetByEmail(ctx, "crew@example.com")
	require.NoError(t, err)
	assert.Equal(t, RoleLearner, u.Role)
}
