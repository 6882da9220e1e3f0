package incident

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coremine/safety-lms/internal/apperr"
	"github.com/coremine/safety-lms/internal/audit"
	"github.com/coremine/safety-lms/internal/course"
	"github.com/coremine/safety-lms/internal/logger"
	"github.com/coremine/safety-lms/internal/notify"
	"github.com/coremine/safety-lms/internal/scenario"
	"github.com/coremine/safety-lms/internal/testkit"
	"github.com/coremine/safety-lms/internal/users"
)

type fakeMailer struct{ to []string }

func (f *fakeMailer) Send(_ context.Context, e notify.Email) (notify.EmailLog, error) {
	f.to = append(f.to, e.ToEmail)
	return notify.EmailLog{Status: notify.StatusSent}, nil
}

func sample() Incident {
	return Incident{
		ID:                "0f8c2a94-1111-4d2b-9c1e-000000000000",
		Title:             "Roof fall in drift 7",
		Description:       "Loose rock fell after scaling was skipped.",
		Location:          "Level 3, drift 7",
		Severity:          SeverityHigh,
		RootCause:         "Entering the heading before barring down",
		CorrectiveActions: []string{"Bar down and inspect the back before entry", " ", "Install mesh to the face"},
		OccurredAt:        time.Date(2026, 9, 2, 6, 30, 0, 0, time.UTC).Unix(),
	}
}

func TestGenerate(t *testing.T) {
	sc, nodes, err := Generate(sample(), time.UTC)
	require.NoError(t, err)
	assert.Equal(t, scenario.StatusDraft, sc.Status)
	assert.Equal(t, scenario.DifficultyIntermediate, sc.Difficulty)
	assert.Equal(t, "incident-roof-fall-in-drift-7-0f8c2a94", sc.Slug)
	require.Len(t, nodes, 4)

	counts := map[scenario.NodeType]int{}
	for _, n := range nodes {
		counts[n.NodeType]++
	}
	assert.Equal(t, map[scenario.NodeType]int{scenario.NodeNarrative: 1, scenario.NodeDecision: 1, scenario.NodeOutcome: 2}, counts)

	intro, err := nodes[0].Narrative()
	require.NoError(t, err)
	assert.Contains(t, intro.Text, "2 September 2026 at Level 3, drift 7")

	d, err := nodes[1].Decision()
	require.NoError(t, err)
	require.Len(t, d.Choices, 3)
	assert.Equal(t, 90.0, d.Choices[0].Score)
	assert.Equal(t, KeySuccess, d.Choices[1].NextNode)
	assert.Equal(t, "root-cause", d.Choices[2].ID)
	assert.Equal(t, 20.0, d.Choices[2].Score)
	assert.Equal(t, KeyFailure, d.Choices[2].NextNode)

	assert.Empty(t, scenario.NewGraph(sc.StartNodeKey, nodes).Lint())
	require.NoError(t, scenario.ValidateDraft(sc, nodes))
}

func TestGenerateRequiresInvestigation(t *testing.T) {
	in := sample()
	in.CorrectiveActions = []string{"  "}
	_, _, err := Generate(in, nil)
	assert.True(t, errors.Is(err, apperr.ErrInvalid))

	in = sample()
	in.RootCause = ""
	_, _, err = Generate(in, nil)
	assert.True(t, errors.Is(err, apperr.ErrInvalid))
}

func TestDifficultyFor(t *testing.T) {
	for s, want := range map[Severity]scenario.Difficulty{
		SeverityLow:      scenario.DifficultyIntermediate,
		SeverityMedium:   scenario.DifficultyIntermediate,
		SeverityHigh:     scenario.DifficultyIntermediate,
		SeverityCritical: scenario.DifficultyAdvanced,
		SeverityFatality: scenario.DifficultyAdvanced,
	} {
		assert.Equal(t, want, DifficultyFor(s), s)
	}
}

func TestReportAndGenerate(t *testing.T) {
	ctx := context.Background()
	dbh := testkit.OpenDB(t)
	orgID := testkit.SeedOrg(t, dbh, false, 0)
	otherOrg := testkit.SeedOrg(t, dbh, false, 0)
	testkit.SeedUser(t, dbh, orgID, "", "boss@example.com", "ADMIN")
	testkit.SeedUser(t, dbh, orgID, "", "shift@example.com", "SUPERVISOR")
	testkit.SeedUser(t, dbh, orgID, "", "crew@example.com", "LEARNER")
	testkit.SeedUser(t, dbh, otherOrg, "", "elsewhere@example.com", "ADMIN")
	_, mods := testkit.SeedCourse(t, dbh, orgID, "SCENARIO", "VIDEO")

	m := &fakeMailer{}
	scenarios := scenario.NewSQLStore(dbh)
	svc := NewService(NewSQLStore(dbh), scenarios, course.NewSQLStore(dbh), users.NewSQLStore(dbh), m,
		audit.NewEventRepo(dbh), logger.Nop(), time.UTC)

	_, err := svc.Report(ctx, orgID, "u1", Input{Title: "x", Description: "y", Severity: "MINOR"})
	assert.True(t, errors.Is(err, apperr.ErrInvalid))

	in := sample()
	inc, err := svc.Report(ctx, orgID, "u1", Input{
		Title: in.Title, Description: in.Description, Location: in.Location, Severity: SeverityFatality,
		RootCause: in.RootCause, CorrectiveActions: in.CorrectiveActions[:1], OccurredAt: in.OccurredAt,
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"boss@example.com", "shift@example.com"}, m.to)

	list, err := svc.Store().List(ctx, orgID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, []string{in.CorrectiveActions[0]}, list[0].CorrectiveActions)

	_, err = svc.GenerateScenario(ctx, otherOrg, inc.ID, "")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
	_, err = svc.GenerateScenario(ctx, orgID, inc.ID, mods[1])
	assert.True(t, errors.Is(err, apperr.ErrInvalid))

	gen, err := svc.GenerateScenario(ctx, orgID, inc.ID, mods[0])
	require.NoError(t, err)
	assert.Equal(t, scenario.DifficultyAdvanced, gen.Scenario.Difficulty)
	assert.Equal(t, mods[0], gen.Scenario.ModuleID)
	assert.Empty(t, gen.Warnings)

	stored, nodes, err := scenarios.GetByModule(ctx, mods[0])
	require.NoError(t, err)
	assert.Equal(t, scenario.StatusDraft, stored.Status)
	assert.Len(t, nodes, 4)

	got, err := svc.Store().Get(ctx, orgID, inc.ID)
	require.NoError(t, err)
	assert.Equal(t, gen.Scenario.ID, got.ScenarioID)

	_, err = svc.GenerateScenario(ctx, orgID, inc.ID, "")
	assert.True(t, errors.Is(err, apperr.ErrConflict))
	assert.Equal(t, 2, testkit.Count(t, dbh, `SELECT COUNT(*) FROM event_log WHERE org_id=$1`, orgID))
}
