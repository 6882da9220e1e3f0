// Package learning runs a learner through modules: opening scenarios,
// recording decisions, completing attempts, grading quizzes, and the
// progress and certificate cascade that follows a passed module.
package learning

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/go-playground/validator/v10"

	"github.com/coremine/safety-lms/internal/apperr"
	"github.com/coremine/safety-lms/internal/attempt"
	"github.com/coremine/safety-lms/internal/certificate"
	"github.com/coremine/safety-lms/internal/course"
	"github.com/coremine/safety-lms/internal/logger"
	"github.com/coremine/safety-lms/internal/quiz"
	"github.com/coremine/safety-lms/internal/scenario"
)

type Issuer interface {
	IssueForCompletion(ctx context.Context, userID, courseID string) (certificate.Detail, bool, error)
}

type Service struct {
	courses   *course.SQLStore
	tracker   *course.Tracker
	scenarios scenario.Store
	attempts  attempt.Store
	grader    *quiz.Grader
	issuer    Issuer
	log       *logger.Logger
	validate  *validator.Validate
}

func NewService(courses *course.SQLStore, tracker *course.Tracker, scenarios scenario.Store, attempts attempt.Store,
	grader *quiz.Grader, issuer Issuer, log *logger.Logger) *Service {
	return &Service{
		courses:   courses,
		tracker:   tracker,
		scenarios: scenarios,
		attempts:  attempts,
		grader:    grader,
		issuer:    issuer,
		log:       log,
		validate:  validator.New(),
	}
}

// PlayView is what a learner receives when opening a module.
type PlayView struct {
	Module   course.Module      `json:"module"`
	Attempt  *attempt.Attempt   `json:"attempt,omitempty"`
	Scenario *scenario.Scenario `json:"scenario,omitempty"`
	Nodes    []scenario.Node    `json:"nodes,omitempty"`
	Quiz     *quiz.Content      `json:"quiz,omitempty"`
}

// Play opens a module. SCENARIO modules start a new Attempt on every call.
func (s *Service) Play(ctx context.Context, userID, moduleID string) (PlayView, error) {
	m, err := s.courses.GetModule(ctx, moduleID)
	if err != nil {
		return PlayView{}, err
	}
	if _, _, err := s.tracker.Playable(ctx, userID, m); err != nil {
		return PlayView{}, err
	}
	view := PlayView{Module: m}
	switch m.Kind {
	case course.KindScenario:
		sc, nodes, err := s.scenarios.GetByModule(ctx, m.ID)
		if err != nil {
			return PlayView{}, err
		}
		if sc.Status != scenario.StatusPublished {
			return PlayView{}, apperr.Locked("scenario %q is not published", sc.Title)
		}
		a, err := s.attempts.Create(ctx, sc.ID, m.ID, userID)
		if err != nil {
			return PlayView{}, err
		}
		view.Attempt = &a
		view.Scenario = &sc
		view.Nodes = scenario.LearnerView(nodes)
	case course.KindQuiz:
		c, err := quiz.ParseContent(m.Content)
		if err != nil {
			return PlayView{}, err
		}
		lv := c.LearnerView()
		view.Quiz = &lv
		view.Module.Content = nil
	}
	return view, nil
}

type DecisionResult struct {
	Decision attempt.Decision      `json:"decision"`
	NextNode string                `json:"nextNode"`
	Outcome  *scenario.OutcomeBody `json:"outcome,omitempty"`
}

// RecordDecision resolves choiceID against the stored DECISION node and
// appends a Decision carrying that choice's score, KPIs and feedback. The node
// must be the next DECISION reached by replaying the attempt's earlier
// choices, and each node takes one decision per attempt.
func (s *Service) RecordDecision(ctx context.Context, userID, attemptID, nodeKey, choiceID string) (DecisionResult, error) {
	a, err := s.ownAttempt(ctx, userID, attemptID)
	if err != nil {
		return DecisionResult{}, err
	}
	if a.Finished() {
		return DecisionResult{}, apperr.Conflict("attempt is already finished")
	}
	sc, nodes, err := s.scenarios.Get(ctx, a.ScenarioID)
	if err != nil {
		return DecisionResult{}, err
	}
	g := scenario.NewGraph(sc.StartNodeKey, nodes)
	n, ok := g.Node(nodeKey)
	if !ok {
		return DecisionResult{}, apperr.Invalid("unknown node %q", nodeKey)
	}
	body, err := n.Decision()
	if err != nil {
		return DecisionResult{}, err
	}
	ch, ok := body.Choice(choiceID)
	if !ok {
		return DecisionResult{}, apperr.Invalid("node %q has no choice %q", nodeKey, choiceID)
	}
	prior, err := s.attempts.ListDecisions(ctx, a.ID)
	if err != nil {
		return DecisionResult{}, err
	}
	picks := make([]scenario.Pick, 0, len(prior)+1)
	for _, d := range prior {
		if d.NodeKey == nodeKey {
			return DecisionResult{}, apperr.Conflict("node %q already has a decision", nodeKey)
		}
		picks = append(picks, scenario.Pick{NodeKey: d.NodeKey, ChoiceID: d.ChoiceID})
	}
	picks = append(picks, scenario.Pick{NodeKey: nodeKey, ChoiceID: choiceID})
	if g.Walk(picks).Consumed != len(picks) {
		return DecisionResult{}, apperr.Invalid("node %q is not the next decision on the path", nodeKey)
	}
	d, err := s.attempts.AppendDecision(ctx, attempt.Decision{
		AttemptID: a.ID,
		NodeKey:   nodeKey,
		ChoiceID:  choiceID,
		Score:     ch.Score,
		KPIScores: ch.KPIScores,
		Feedback:  ch.Feedback,
	})
	if err != nil {
		return DecisionResult{}, err
	}
	res := DecisionResult{Decision: d, NextNode: ch.NextNode}
	if next, ok := g.Node(ch.NextNode); ok && next.NodeType == scenario.NodeOutcome {
		if o, err := next.Outcome(); err == nil {
			res.Outcome = &o
		}
	}
	return res, nil
}

// Progress is the cascade result after a module attempt is recorded.
type Progress struct {
	course.Outcome
	Certificate *certificate.Detail `json:"certificate,omitempty"`
}

type CompletionResult struct {
	Attempt         attempt.Attempt `json:"attempt"`
	AlreadyFinished bool            `json:"alreadyFinished"`
	Recomputed      bool            `json:"recomputed"`
	Progress        *Progress       `json:"progress,omitempty"`
}

// Complete finishes an attempt. With recorded decisions the score is
// recomputed server-side and passed follows the module pass score; without
// any the validated client values are stored. A finished attempt returns its
// stored result without touching progress.
func (s *Service) Complete(ctx context.Context, userID, attemptID string, in attempt.Completion) (CompletionResult, error) {
	if err := s.validate.Struct(in); err != nil {
		return CompletionResult{}, apperr.Invalid("%v", err)
	}
	a, err := s.ownAttempt(ctx, userID, attemptID)
	if err != nil {
		return CompletionResult{}, err
	}
	if a.ModuleID != in.ModuleID {
		return CompletionResult{}, apperr.Invalid("attempt does not belong to module %s", in.ModuleID)
	}
	if a.Finished() {
		return CompletionResult{Attempt: a, AlreadyFinished: true}, nil
	}
	m, err := s.courses.GetModule(ctx, a.ModuleID)
	if err != nil {
		return CompletionResult{}, err
	}

	total, kpis, passed := *in.TotalScore, in.KPIScores, *in.Passed
	decisions, err := s.attempts.ListDecisions(ctx, a.ID)
	if err != nil {
		return CompletionResult{}, err
	}
	recomputed := len(decisions) > 0
	if recomputed {
		total, kpis, err = s.score(ctx, a, decisions)
		if err != nil {
			return CompletionResult{}, err
		}
		passed = total >= m.PassScore
		if total != *in.TotalScore || passed != *in.Passed {
			s.log.Warn("client score overridden", "attempt_id", a.ID, "client_total", *in.TotalScore,
				"client_passed", *in.Passed, "total", total, "passed", passed)
		}
	}

	a, err = s.attempts.Finish(ctx, a.ID, total, kpis, passed)
	if errors.Is(err, apperr.ErrConflict) {
		done, gerr := s.attempts.Get(ctx, attemptID)
		if gerr != nil {
			return CompletionResult{}, gerr
		}
		return CompletionResult{Attempt: done, AlreadyFinished: true}, nil
	}
	if err != nil {
		return CompletionResult{}, err
	}
	p, err := s.record(ctx, course.Result{UserID: userID, ModuleID: m.ID, AttemptID: a.ID, Score: total, Passed: passed})
	if err != nil {
		return CompletionResult{}, err
	}
	return CompletionResult{Attempt: a, Recomputed: recomputed, Progress: &p}, nil
}

// score replays the decisions over the graph and averages only the on-path
// prefix, using the values stored when each decision was made. Rows past the
// first off-path decision never count.
func (s *Service) score(ctx context.Context, a attempt.Attempt, decisions []attempt.Decision) (float64, map[string]float64, error) {
	sc, nodes, err := s.scenarios.Get(ctx, a.ScenarioID)
	if err != nil {
		return 0, nil, err
	}
	picks := make([]scenario.Pick, len(decisions))
	for i, d := range decisions {
		picks[i] = scenario.Pick{NodeKey: d.NodeKey, ChoiceID: d.ChoiceID}
	}
	walk := scenario.NewGraph(sc.StartNodeKey, nodes).Walk(picks)
	used := decisions[:walk.Consumed]
	if walk.Consumed < len(decisions) {
		s.log.Warn("decisions off the scenario path", "attempt_id", a.ID, "recorded", len(decisions), "on_path", walk.Consumed)
	}
	choices := make([]scenario.Choice, len(used))
	for i, d := range used {
		choices[i] = scenario.Choice{Score: d.Score, KPIScores: d.KPIScores}
	}
	total, kpis := scenario.Aggregate(choices)
	return total, kpis, nil
}

type QuizResult struct {
	Result   quiz.Result `json:"result"`
	Passed   bool        `json:"passed"`
	Progress Progress    `json:"progress"`
}

// SubmitQuiz grades a QUIZ module server-side and records the module attempt.
func (s *Service) SubmitQuiz(ctx context.Context, userID, moduleID string, answers map[string]any) (QuizResult, error) {
	m, err := s.courses.GetModule(ctx, moduleID)
	if err != nil {
		return QuizResult{}, err
	}
	if m.Kind != course.KindQuiz {
		return QuizResult{}, apperr.Invalid("module %q is not a quiz", m.Title)
	}
	if _, _, err := s.tracker.Playable(ctx, userID, m); err != nil {
		return QuizResult{}, err
	}
	c, err := quiz.ParseContent(m.Content)
	if err != nil {
		return QuizResult{}, err
	}
	res, err := s.grader.Grade(c, answers)
	if err != nil {
		return QuizResult{}, err
	}
	passed := res.Score >= m.PassScore
	p, err := s.record(ctx, course.Result{UserID: userID, ModuleID: m.ID, Score: res.Score, Passed: passed})
	if err != nil {
		return QuizResult{}, err
	}
	return QuizResult{Result: res, Passed: passed, Progress: p}, nil
}

// Acknowledge records a VIDEO or POLICY module as passed with score 100.
func (s *Service) Acknowledge(ctx context.Context, userID, moduleID string) (Progress, error) {
	m, err := s.courses.GetModule(ctx, moduleID)
	if err != nil {
		return Progress{}, err
	}
	if m.Kind != course.KindVideo && m.Kind != course.KindPolicy {
		return Progress{}, apperr.Invalid("module %q cannot be acknowledged", m.Title)
	}
	if _, _, err := s.tracker.Playable(ctx, userID, m); err != nil {
		return Progress{}, err
	}
	return s.record(ctx, course.Result{UserID: userID, ModuleID: m.ID, Score: 100, Passed: true})
}

// record updates progress and issues the certificate once every module has
// passed. A failed issuance is logged and does not fail the completion.
func (s *Service) record(ctx context.Context, r course.Result) (Progress, error) {
	out, err := s.tracker.Record(ctx, r)
	if err != nil {
		return Progress{}, err
	}
	p := Progress{Outcome: out}
	if !out.CourseCompleted {
		return p, nil
	}
	d, _, err := s.issuer.IssueForCompletion(ctx, r.UserID, out.Enrollment.CourseID)
	if err != nil {
		s.log.Error("certificate issuance failed", "user_id", r.UserID, "course_id", out.Enrollment.CourseID, "err", err)
		return p, nil
	}
	p.Certificate = &d
	return p, nil
}

func (s *Service) ownAttempt(ctx context.Context, userID, attemptID string) (attempt.Attempt, error) {
	a, err := s.attempts.Get(ctx, attemptID)
	if err != nil {
		return attempt.Attempt{}, err
	}
	if a.UserID != userID {
		return attempt.Attempt{}, apperr.Forbidden("attempt belongs to another user")
	}
	return a, nil
}

// DecodeAnswers reads a quiz submission body of the form {"answers": {...}}.
func DecodeAnswers(raw []byte) (map[string]any, error) {
	var body struct {
		Answers map[string]any `json:"answers"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, apperr.Invalid("bad quiz submission: %v", err)
	}
	if body.Answers == nil {
		return nil, apperr.Invalid("answers are required")
	}
	return body.Answers, nil
}
