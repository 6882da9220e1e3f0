package incident

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/coremine/safety-lms/internal/apperr"
	"github.com/coremine/safety-lms/internal/scenario"
)

const (
	correctScore = 90
	wrongScore   = 20
)

// Node keys of a generated scenario.
const (
	KeyIntro    = "intro"
	KeyDecision = "decision"
	KeySuccess  = "outcome-success"
	KeyFailure  = "outcome-failure"
)

var kpis = []string{"hazard_recognition", "procedure_compliance"}

// DifficultyFor maps severity to scenario difficulty.
func DifficultyFor(s Severity) scenario.Difficulty {
	if s == SeverityCritical || s == SeverityFatality {
		return scenario.DifficultyAdvanced
	}
	return scenario.DifficultyIntermediate
}

// Generate turns an incident into a DRAFT scenario: an intro narrative, one
// decision whose correct choices are the corrective actions and whose wrong
// choice is the root cause, and a success and a failure outcome.
func Generate(in Incident, loc *time.Location) (scenario.Scenario, []scenario.Node, error) {
	var actions []string
	for _, a := range in.CorrectiveActions {
		if a = strings.TrimSpace(a); a != "" {
			actions = append(actions, a)
		}
	}
	if len(actions) == 0 {
		return scenario.Scenario{}, nil, apperr.Invalid("incident has no corrective actions")
	}
	rootCause := strings.TrimSpace(in.RootCause)
	if rootCause == "" {
		return scenario.Scenario{}, nil, apperr.Invalid("incident has no root cause")
	}
	if loc == nil {
		loc = time.UTC
	}

	where := ""
	if in.Location != "" {
		where = " at " + in.Location
	}
	intro := fmt.Sprintf("On %s%s: %s. %s",
		time.Unix(in.OccurredAt, 0).In(loc).Format("2 January 2006"), where, in.Title, strings.TrimSpace(in.Description))

	choices := make([]scenario.Choice, 0, len(actions)+1)
	for i, a := range actions {
		choices = append(choices, scenario.Choice{
			ID:        "action-" + strconv.Itoa(i+1),
			Label:     a,
			Score:     correctScore,
			KPIScores: kpiScores(correctScore),
			Feedback:  "Correct. This corrective action came out of the incident investigation.",
			NextNode:  KeySuccess,
		})
	}
	choices = append(choices, scenario.Choice{
		ID:        "root-cause",
		Label:     rootCause,
		Score:     wrongScore,
		KPIScores: kpiScores(wrongScore),
		Feedback:  "This is what led to the incident.",
		NextNode:  KeyFailure,
	})

	nodes := []scenario.Node{
		{NodeKey: KeyIntro, NodeType: scenario.NodeNarrative, Body: scenario.MustBody(scenario.NarrativeBody{Text: intro, Next: KeyDecision})},
		{NodeKey: KeyDecision, NodeType: scenario.NodeDecision, Body: scenario.MustBody(scenario.DecisionBody{
			Question: "You are on shift when the same conditions develop. What do you do?",
			Choices:  choices,
		})},
		{NodeKey: KeySuccess, NodeType: scenario.NodeOutcome, Body: scenario.MustBody(scenario.OutcomeBody{
			Result:  scenario.ResultSuccess,
			Summary: "Your action follows the controls put in place after this incident.",
		})},
		{NodeKey: KeyFailure, NodeType: scenario.NodeOutcome, Body: scenario.MustBody(scenario.OutcomeBody{
			Result:  scenario.ResultFailure,
			Summary: "This repeats the root cause of the original incident: " + rootCause,
		})},
	}
	for i := range nodes {
		nodes[i].Position = i
	}

	title := "Incident: " + in.Title
	if r := []rune(title); len(r) > 200 {
		title = string(r[:200])
	}
	sc := scenario.Scenario{
		Slug:             slugFor(in),
		Title:            title,
		EstimatedMinutes: 10,
		Difficulty:       DifficultyFor(in.Severity),
		FocusTags:        append([]string(nil), kpis...),
		Status:           scenario.StatusDraft,
		StartNodeKey:     KeyIntro,
	}
	return sc, nodes, nil
}

func kpiScores(v float64) map[string]float64 {
	out := make(map[string]float64, len(kpis))
	for _, k := range kpis {
		out[k] = v
	}
	return out
}

func slugFor(in Incident) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(in.Title) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
			dash = false
		} else if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
		if b.Len() >= 80 {
			break
		}
	}
	slug := strings.Trim(b.String(), "-")
	suffix := in.ID
	if len(suffix) > 8 {
		suffix = suffix[:8]
	}
	if slug == "" {
		return "incident-" + suffix
	}
	return "incident-" + slug + "-" + suffix
}
