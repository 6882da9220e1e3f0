package http

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coremine/safety-lms/internal/attempt"
	"github.com/coremine/safety-lms/internal/audit"
	authmw "github.com/coremine/safety-lms/internal/auth/middleware"
	"github.com/coremine/safety-lms/internal/certificate"
	"github.com/coremine/safety-lms/internal/course"
	"github.com/coremine/safety-lms/internal/incident"
	"github.com/coremine/safety-lms/internal/learning"
	"github.com/coremine/safety-lms/internal/logger"
	"github.com/coremine/safety-lms/internal/notify"
	"github.com/coremine/safety-lms/internal/quiz"
	"github.com/coremine/safety-lms/internal/ratelimit"
	"github.com/coremine/safety-lms/internal/reminder"
	"github.com/coremine/safety-lms/internal/report"
	"github.com/coremine/safety-lms/internal/scenario"
	"github.com/coremine/safety-lms/internal/storage"
	"github.com/coremine/safety-lms/internal/testkit"
	"github.com/coremine/safety-lms/internal/users"
)

const baseURL = "https://lms.example.com"

type testServer struct {
	t         *testing.T
	h         http.Handler
	dbh       *sql.DB
	orgID     string
	adminID   string
	learnerID string
}

func newTestServer(t *testing.T, tweak func(*Deps)) *testServer {
	t.Helper()
	dbh := testkit.OpenDB(t)
	log := logger.Nop()
	orgID := testkit.SeedOrg(t, dbh, false, 0)
	adminID := testkit.SeedUser(t, dbh, orgID, "", "admin@example.com", "ADMIN")
	learnerID := testkit.SeedUser(t, dbh, orgID, "", "learner@example.com", "LEARNER")

	blobs, err := storage.NewFSStore(t.TempDir())
	require.NoError(t, err)
	loc := time.UTC
	events := audit.NewEventRepo(dbh)
	mailer := notify.NewDispatcher(notify.NewLogSender(log), dbh, log)
	courses := course.NewSQLStore(dbh)
	tracker := course.NewTracker(courses)
	scenarios := scenario.NewSQLStore(dbh)
	us := users.NewSQLStore(dbh)
	certs := certificate.NewService(certificate.NewSQLStore(dbh), courses, mailer, events, log, baseURL, loc)

	d := Deps{
		DB:           dbh,
		Log:          log,
		Auth:         authmw.NewAuthService("test-secret"),
		Users:        us,
		Importer:     users.NewImporter(us, courses, mailer, events, log, baseURL),
		Courses:      courses,
		Tracker:      tracker,
		Scenarios:    scenarios,
		Learning:     learning.NewService(courses, tracker, scenarios, attempt.NewSQLStore(dbh), quiz.NewGrader(), certs, log),
		Certificates: certs,
		Incidents:    incident.NewService(incident.NewSQLStore(dbh), scenarios, courses, us, mailer, events, log, loc),
		Reports:      report.NewBuilder(dbh, loc),
		Reminders:    reminder.NewJob(certs.Store(), mailer, log, loc, baseURL),
		Mailer:       mailer,
		Audit:        events,
		Blobs:        blobs,
		ContactLimit: ratelimit.New(5, time.Hour),

		ContactRecipient: "safety@example.com",
		CronSecret:       "cron-secret",
	}
	if tweak != nil {
		tweak(&d)
	}
	return &testServer{t: t, h: NewRouter(d), dbh: dbh, orgID: orgID, adminID: adminID, learnerID: learnerID}
}

func (s *testServer) do(method, path, token string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.h.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) login(email string) string {
	s.t.Helper()
	rec := s.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": email, "password": "password"})
	require.Equal(s.t, http.StatusOK, rec.Code, rec.Body.String())
	var out struct{ Token string }
	require.NoError(s.t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out.Token
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// withPositions stamps editor positions that the store is expected to replace.
func withPositions(nodes []scenario.Node, from int) []scenario.Node {
	for i := range nodes {
		nodes[i].Position = from - i
	}
	return nodes
}

func gasAlarm() []scenario.Node {
	return []scenario.Node{
		{NodeKey: "intro", NodeType: scenario.NodeNarrative, Body: scenario.MustBody(scenario.NarrativeBody{Text: "Gas alarm in drift 4.", Next: "d1"})},
		{NodeKey: "d1", NodeType: scenario.NodeDecision, Body: scenario.MustBody(scenario.DecisionBody{
			Question: "First action?",
			Choices: []scenario.Choice{
				{ID: "evacuate", Label: "Withdraw crew", Score: 100, Feedback: "Correct.", NextNode: "d2"},
				{ID: "ignore", Label: "Keep working", Score: 0, NextNode: "fail"},
			},
		})},
		{NodeKey: "d2", NodeType: scenario.NodeDecision, Body: scenario.MustBody(scenario.DecisionBody{
			Question: "Who do you call?",
			Choices:  []scenario.Choice{{ID: "control", Label: "Control room", Score: 80, NextNode: "ok"}},
		})},
		{NodeKey: "ok", NodeType: scenario.NodeOutcome, Body: scenario.MustBody(scenario.OutcomeBody{Result: scenario.ResultSuccess})},
		{NodeKey: "fail", NodeType: scenario.NodeOutcome, Body: scenario.MustBody(scenario.OutcomeBody{Result: scenario.ResultFailure})},
	}
}

func TestScenarioCourseThroughCertificate(t *testing.T) {
	s := newTestServer(t, nil)
	admin := s.login("admin@example.com")
	learner := s.login("learner@example.com")

	rec := s.do(http.MethodPost, "/api/admin/courses", admin, map[string]string{"title": "Gas Safety 101"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	c := decode[course.Course](t, rec)
	assert.Equal(t, "gas-safety-101", c.Slug)

	rec = s.do(http.MethodPost, "/api/admin/courses/"+c.ID+"/modules", admin, map[string]string{"title": "Gas alarm", "kind": "SCENARIO"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	m := decode[course.Module](t, rec)

	rec = s.do(http.MethodPost, "/api/admin/modules/"+m.ID+"/scenario", admin, map[string]any{
		"scenario": scenario.Scenario{Slug: "gas-alarm", Title: "Gas alarm", Difficulty: scenario.DifficultyBeginner,
			Status: scenario.StatusPublished, StartNodeKey: "intro"},
		"nodes": withPositions(gasAlarm(), 40),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	saved := decode[scenarioResp](t, rec)
	assert.Empty(t, saved.Warnings)
	assert.NotEmpty(t, saved.Scenario.ID)
	require.Len(t, saved.Nodes, 5)
	for i, n := range saved.Nodes {
		assert.Equal(t, i, n.Position, n.NodeKey)
	}
	assert.Equal(t, "intro", saved.Nodes[0].NodeKey)

	rec = s.do(http.MethodPost, "/api/admin/enrollments", admin, enrollReq{UserID: s.learnerID, CourseID: c.ID})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = s.do(http.MethodPost, "/api/admin/enrollments", admin, enrollReq{UserID: s.learnerID, CourseID: c.ID})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(http.MethodGet, "/api/modules/"+m.ID+"/play", learner, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), `"score":`)
	view := decode[learning.PlayView](t, rec)
	require.NotNil(t, view.Attempt)
	attemptPath := "/api/attempts/" + view.Attempt.ID

	rec = s.do(http.MethodPost, attemptPath+"/decisions", learner, decisionReq{NodeKey: "d1", ChoiceID: "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = s.do(http.MethodPost, attemptPath+"/decisions", learner, decisionReq{NodeKey: "d1", ChoiceID: "evacuate"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	dr := decode[learning.DecisionResult](t, rec)
	assert.Equal(t, 100.0, dr.Decision.Score)
	assert.Equal(t, "d2", dr.NextNode)
	rec = s.do(http.MethodPost, attemptPath+"/decisions", learner, decisionReq{NodeKey: "d2", ChoiceID: "control"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// a forged client score is replaced by the recorded decisions
	rec = s.do(http.MethodPost, attemptPath+"/complete", admin, map[string]any{"moduleId": m.ID, "passed": false, "totalScore": 10})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = s.do(http.MethodPost, attemptPath+"/complete", learner, map[string]any{"moduleId": m.ID, "passed": false, "totalScore": 10})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	done := decode[learning.CompletionResult](t, rec)
	assert.True(t, done.Recomputed)
	assert.Equal(t, 90.0, done.Attempt.TotalScore)
	assert.True(t, done.Attempt.Passed)
	require.NotNil(t, done.Progress)
	assert.True(t, done.Progress.CourseCompleted)
	require.NotNil(t, done.Progress.Certificate)
	cert := done.Progress.Certificate

	rec = s.do(http.MethodGet, "/api/certificates/"+cert.ID+"/download", learner, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")))

	testkit.SeedUser(t, s.dbh, s.orgID, "", "peer@example.com", "LEARNER")
	rec = s.do(http.MethodGet, "/api/certificates/"+cert.ID+"/download", s.login("peer@example.com"), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NotEqual(t, "application/pdf", rec.Header().Get("Content-Type"))
	rec = s.do(http.MethodGet, "/api/certificates/"+cert.ID+"/download", admin, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = s.do(http.MethodGet, "/api/certificates/missing/download", admin, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(http.MethodGet, "/api/certificates/verify/"+strings.ToLower(cert.VerificationCode), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, certificate.Valid, decode[certificate.Verification](t, rec).Status)

	rec = s.do(http.MethodPost, "/api/admin/certificates/"+cert.ID+"/revoke", learner, revokeReq{Reason: "mine"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = s.do(http.MethodPost, "/api/admin/certificates/"+cert.ID+"/revoke", admin, revokeReq{Reason: "Issued in error"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(http.MethodGet, "/verify/"+cert.VerificationCode, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "REVOKED")
	assert.Contains(t, rec.Body.String(), "Issued in error")

	rec = s.do(http.MethodGet, "/verify/ZZZZZZZZ", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(http.MethodGet, "/api/admin/audit?q=certificate", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]audit.Event](t, rec), 2)
}

func TestAuthAndRoles(t *testing.T) {
	s := newTestServer(t, nil)
	rec := s.do(http.MethodGet, "/api/courses", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": "learner@example.com", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"invalid email or password"}`, rec.Body.String())

	learner := s.login("learner@example.com")
	rec = s.do(http.MethodPost, "/api/admin/courses", learner, map[string]string{"title": "Nope"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(http.MethodGet, "/api/me", learner, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	me := decode[users.User](t, rec)
	assert.Equal(t, users.RoleLearner, me.Role)
	assert.NotContains(t, rec.Body.String(), "password")

	rec = s.do(http.MethodPost, "/api/me/password", learner, changePasswordReq{OldPassword: "bad", NewPassword: "longenough"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = s.do(http.MethodPost, "/api/me/password", learner, changePasswordReq{OldPassword: "password", NewPassword: "short"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = s.do(http.MethodPost, "/api/me/password", learner, changePasswordReq{OldPassword: "password", NewPassword: "longenough"})
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestCronEndpoint(t *testing.T) {
	s := newTestServer(t, nil)
	rec := s.do(http.MethodGet, "/api/cron/expiry-reminders", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = s.do(http.MethodGet, "/api/cron/expiry-reminders", "wrong", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = s.do(http.MethodGet, "/api/cron/expiry-reminders", "cron-secret", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, reminder.Summary{}, decode[reminder.Summary](t, rec))

	unset := newTestServer(t, func(d *Deps) { d.CronSecret = "" })
	rec = unset.do(http.MethodGet, "/api/cron/expiry-reminders", "anything", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestContactIsRateLimited(t *testing.T) {
	s := newTestServer(t, nil)
	msg := contactReq{Name: "Dana", Email: "dana@example.com", Company: "Pit Co", Message: "Pricing please"}
	codes := make([]int, 0, 6)
	for i := 0; i < 6; i++ {
		codes = append(codes, s.do(http.MethodPost, "/api/contact", "", msg).Code)
	}
	assert.Equal(t, []int{202, 202, 202, 202, 202, 429}, codes)

	bad := newTestServer(t, nil)
	rec := bad.do(http.MethodPost, "/api/contact", "", contactReq{Name: "Dana", Email: "not-an-email", Message: "hi"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	unset := newTestServer(t, func(d *Deps) { d.ContactRecipient = "" })
	rec = unset.do(http.MethodPost, "/api/contact", "", msg)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestComplianceCSV(t *testing.T) {
	s := newTestServer(t, nil)
	admin := s.login("admin@example.com")
	rec := s.do(http.MethodGet, "/api/admin/reports/compliance-summary?format=csv", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/csv"))
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	assert.Equal(t, strings.Join(report.Header, ","), lines[0])
	assert.Len(t, lines, 3)

	rec = s.do(http.MethodGet, "/api/admin/reports/compliance-summary?format=xml", admin, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	learner := s.login("learner@example.com")
	rec = s.do(http.MethodGet, "/api/admin/reports/compliance-summary", learner, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestImportCSVBody(t *testing.T) {
	s := newTestServer(t, nil)
	admin := s.login("admin@example.com")
	body := "email,name,role,password\nnew@example.com,New Miner,LEARNER,longenough\nlearner@example.com,Dup,LEARNER,longenough\n"
	req := httptest.NewRequest(http.MethodPost, "/api/admin/users/import", strings.NewReader(body))
	req.Header.Set("Content-Type", "text/csv")
	req.Header.Set("Authorization", "Bearer "+admin)
	rec := httptest.NewRecorder()
	s.h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[users.ImportResult](t, rec)
	assert.Equal(t, 1, res.Created)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "email already registered", res.Errors[0].Error)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusUnauthorized, statusFor(users.ErrBadCredentials))
	assert.Equal(t, http.StatusNotFound, statusFor(storage.ErrNotFound))
	assert.Equal(t, http.StatusInternalServerError, statusFor(assert.AnError))
}

func TestEmailLogsAreOrgScoped(t *testing.T) {
	var d Deps
	s := newTestServer(t, func(deps *Deps) { d = *deps })
	otherOrg := testkit.SeedOrg(t, d.DB, false, 0)
	testkit.SeedUser(t, d.DB, otherOrg, "", "boss@other.example", "ADMIN")

	ctx := context.Background()
	for _, e := range []notify.Email{
		{OrgID: s.orgID, Type: notify.TypeWelcome, ToEmail: "new@example.com", Data: notify.WelcomeData{Name: "New"}},
		{OrgID: otherOrg, Type: notify.TypeWelcome, ToEmail: "hire@other.example", Data: notify.WelcomeData{Name: "Hire"}},
		{Type: notify.TypeContact, ToEmail: "safety@example.com", Data: notify.ContactData{Name: "Dana"}},
	} {
		_, err := d.Mailer.Send(ctx, e)
		require.NoError(t, err)
	}

	rec := s.do(http.MethodGet, "/api/admin/email-logs", s.login("admin@example.com"), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	logs := decode[[]notify.EmailLog](t, rec)
	require.Len(t, logs, 1)
	assert.Equal(t, "new@example.com", logs[0].Recipient)

	rec = s.do(http.MethodGet, "/api/admin/email-logs", s.login("boss@other.example"), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	logs = decode[[]notify.EmailLog](t, rec)
	require.Len(t, logs, 1)
	assert.Equal(t, "hire@other.example", logs[0].Recipient)
}
