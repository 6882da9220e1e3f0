package scenario

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/coremine/safety-lms/internal/apperr"
)

type NodeType string

const (
	NodeNarrative NodeType = "NARRATIVE"
	NodeDecision  NodeType = "DECISION"
	NodeOutcome   NodeType = "OUTCOME"
)

type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusPublished Status = "PUBLISHED"
)

type Difficulty string

const (
	DifficultyBeginner     Difficulty = "BEGINNER"
	DifficultyIntermediate Difficulty = "INTERMEDIATE"
	DifficultyAdvanced     Difficulty = "ADVANCED"
)

const (
	ResultSuccess = "SUCCESS"
	ResultFailure = "FAILURE"
)

type Scenario struct {
	ID               string     `json:"id"`
	ModuleID         string     `json:"moduleId,omitempty"`
	Slug             string     `json:"slug" validate:"required,max=120"`
	Title            string     `json:"title" validate:"required,max=200"`
	EstimatedMinutes int        `json:"estimatedMinutes" validate:"gte=0,lte=600"`
	Difficulty       Difficulty `json:"difficulty" validate:"required,oneof=BEGINNER INTERMEDIATE ADVANCED"`
	FocusTags        []string   `json:"focusTags"`
	Status           Status     `json:"status" validate:"required,oneof=DRAFT PUBLISHED"`
	StartNodeKey     string     `json:"startNodeKey,omitempty"`
	CreatedAt        int64      `json:"createdAt,omitempty"`
	UpdatedAt        int64      `json:"updatedAt,omitempty"`
}

// Node is one step of the branching graph. Body's shape depends on NodeType.
type Node struct {
	NodeKey  string          `json:"nodeKey" validate:"required,max=80"`
	NodeType NodeType        `json:"nodeType" validate:"required,oneof=NARRATIVE DECISION OUTCOME"`
	Body     json.RawMessage `json:"body" validate:"required"`
	Position int             `json:"position"`
}

type NarrativeBody struct {
	Text string `json:"text" validate:"required"`
	Next string `json:"next"`
}

type Choice struct {
	ID        string             `json:"id" validate:"required"`
	Label     string             `json:"label" validate:"required"`
	Score     float64            `json:"score" validate:"gte=0,lte=100"`
	KPIScores map[string]float64 `json:"kpiScores,omitempty" validate:"omitempty,dive,gte=0,lte=100"`
	Feedback  string             `json:"feedback"`
	NextNode  string             `json:"nextNode"`
}

type DecisionBody struct {
	Question string   `json:"question" validate:"required"`
	Choices  []Choice `json:"choices" validate:"required,min=1,dive"`
}

// Choice returns the choice with the given id.
func (d DecisionBody) Choice(id string) (Choice, bool) {
	for _, c := range d.Choices {
		if c.ID == id {
			return c, true
		}
	}
	return Choice{}, false
}

type OutcomeBody struct {
	Result  string `json:"result" validate:"required,oneof=SUCCESS FAILURE"`
	Summary string `json:"summary"`
}

var validate = validator.New()

func (n Node) Narrative() (NarrativeBody, error) {
	var b NarrativeBody
	err := n.decode(NodeNarrative, &b)
	return b, err
}

func (n Node) Decision() (DecisionBody, error) {
	var b DecisionBody
	err := n.decode(NodeDecision, &b)
	return b, err
}

func (n Node) Outcome() (OutcomeBody, error) {
	var b OutcomeBody
	err := n.decode(NodeOutcome, &b)
	return b, err
}

func (n Node) decode(want NodeType, dst any) error {
	if n.NodeType != want {
		return apperr.Invalid("node %q is %s, not %s", n.NodeKey, n.NodeType, want)
	}
	if err := json.Unmarshal(n.Body, dst); err != nil {
		return apperr.Invalid("node %q: bad body: %v", n.NodeKey, err)
	}
	if err := validate.Struct(dst); err != nil {
		return apperr.Invalid("node %q: %v", n.NodeKey, err)
	}
	return nil
}

// ValidateDraft checks the scenario header and every node body. Duplicate
// node keys are rejected; graph references are left to Lint.
func ValidateDraft(s Scenario, nodes []Node) error {
	if err := validate.Struct(s); err != nil {
		return apperr.Invalid("scenario: %v", err)
	}
	seen := make(map[string]bool, len(nodes))
	for i, n := range nodes {
		if err := validate.Struct(n); err != nil {
			return apperr.Invalid("node %d: %v", i, err)
		}
		if seen[n.NodeKey] {
			return apperr.Invalid("duplicate nodeKey %q", n.NodeKey)
		}
		seen[n.NodeKey] = true
		var err error
		switch n.NodeType {
		case NodeNarrative:
			_, err = n.Narrative()
		case NodeDecision:
			_, err = n.Decision()
		case NodeOutcome:
			_, err = n.Outcome()
		default:
			err = apperr.Invalid("node %q: unknown nodeType %q", n.NodeKey, n.NodeType)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// MustBody marshals v for use as a Node body. It panics on failure and is
// meant for bodies built from already-typed values.
func MustBody(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("scenario: marshal body: %v", err))
	}
	return b
}

// LearnerView strips scores from decision choices so the player cannot read
// the answer key. Feedback comes back when a decision is recorded.
func LearnerView(nodes []Node) []Node {
	type learnerChoice struct {
		ID       string `json:"id"`
		Label    string `json:"label"`
		NextNode string `json:"nextNode"`
	}
	type learnerDecision struct {
		Question string          `json:"question"`
		Choices  []learnerChoice `json:"choices"`
	}
	out := make([]Node, len(nodes))
	for i, n := range nodes {
		out[i] = n
		if n.NodeType != NodeDecision {
			continue
		}
		d, err := n.Decision()
		if err != nil {
			continue
		}
		ld := learnerDecision{Question: d.Question, Choices: make([]learnerChoice, 0, len(d.Choices))}
		for _, c := range d.Choices {
			ld.Choices = append(ld.Choices, learnerChoice{ID: c.ID, Label: c.Label, NextNode: c.NextNode})
		}
		out[i].Body = MustBody(ld)
	}
	return out
}
