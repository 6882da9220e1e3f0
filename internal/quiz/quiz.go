package quiz

import (
	"encoding/json"
	"errors"
	"math"

	"github.com/go-playground/validator/v10"

	"github.com/coremine/safety-lms/internal/apperr"
)

const (
	TypeSingle    = "mcq_single"
	TypeMulti     = "mcq_multi"
	TypeTrueFalse = "true_false"
	TypeShortWord = "short_word"
	TypeNumeric   = "numeric"
)

type Option struct {
	ID    string `json:"id" validate:"required"`
	Label string `json:"label" validate:"required"`
}

type Question struct {
	ID        string   `json:"id" validate:"required"`
	Type      string   `json:"type" validate:"required,oneof=mcq_single mcq_multi true_false short_word numeric"`
	Prompt    string   `json:"prompt" validate:"required"`
	Options   []Option `json:"options,omitempty" validate:"omitempty,dive"`
	AnswerKey []string `json:"answerKey,omitempty" validate:"required,min=1"`
	Points    float64  `json:"points" validate:"gt=0"`
}

// Content is the content_json of a QUIZ module.
type Content struct {
	Questions []Question `json:"questions" validate:"required,min=1,dive"`
}

var validate = validator.New()

// ParseContent decodes and validates a QUIZ module body.
func ParseContent(raw json.RawMessage) (Content, error) {
	var c Content
	if len(raw) == 0 {
		return c, apperr.Invalid("quiz has no questions")
	}
	if err := json.Unmarshal(raw, &c); err != nil {
		return c, apperr.Invalid("quiz content: %v", err)
	}
	if err := validate.Struct(c); err != nil {
		return c, apperr.Invalid("quiz content: %v", err)
	}
	seen := map[string]bool{}
	for _, q := range c.Questions {
		if seen[q.ID] {
			return c, apperr.Invalid("duplicate question id %q", q.ID)
		}
		seen[q.ID] = true
	}
	return c, nil
}

// LearnerView drops answer keys.
func (c Content) LearnerView() Content {
	out := Content{Questions: make([]Question, len(c.Questions))}
	for i, q := range c.Questions {
		q.AnswerKey = nil
		out.Questions[i] = q
	}
	return out
}

type QuestionResult struct {
	QuestionID string   `json:"questionId"`
	Awarded    float64  `json:"awarded"`
	Max        float64  `json:"max"`
	Feedback   []string `json:"feedback,omitempty"`
}

type Result struct {
	Awarded   float64          `json:"awarded"`
	Max       float64          `json:"max"`
	Score     float64          `json:"score"`
	Questions []QuestionResult `json:"questions"`
}

// Grade scores every question against answers keyed by question id. Missing
// answers score zero; answers of the wrong shape are rejected.
func (g *Grader) Grade(c Content, answers map[string]any) (Result, error) {
	var res Result
	for _, q := range c.Questions {
		qr := QuestionResult{QuestionID: q.ID, Max: q.Points}
		res.Max += q.Points
		resp, ok := answers[q.ID]
		if !ok || resp == nil {
			qr.Feedback = []string{"not answered"}
			res.Questions = append(res.Questions, qr)
			continue
		}
		awarded, fb, err := g.grade(q, resp)
		if err != nil {
			var bad *shapeError
			if errors.As(err, &bad) {
				return Result{}, apperr.Invalid("question %s: %v", q.ID, err)
			}
			return Result{}, err
		}
		qr.Awarded = awarded
		qr.Feedback = fb
		res.Awarded += awarded
		res.Questions = append(res.Questions, qr)
	}
	if res.Max > 0 {
		res.Score = math.Round(res.Awarded/res.Max*10000) / 100
	}
	return res, nil
}
