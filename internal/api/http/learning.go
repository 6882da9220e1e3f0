package http

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/coremine/safety-lms/internal/apperr"
	"github.com/coremine/safety-lms/internal/attempt"
	authmw "github.com/coremine/safety-lms/internal/auth/middleware"
	"github.com/coremine/safety-lms/internal/learning"
	"github.com/coremine/safety-lms/internal/logger"
)

// PlayModuleHandler: GET /api/modules/{id}/play
func PlayModuleHandler(svc *learning.Service, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, err := svc.Play(r.Context(), authmw.SubjectFromContext(r.Context()), chi.URLParam(r, "id"))
		if err != nil {
			respondError(w, log, r, err)
			return
		}
		respondJSON(w, http.StatusOK, view)
	}
}

type decisionReq struct {
	NodeKey  string `json:"nodeKey" validate:"required"`
	ChoiceID string `json:"choiceId" validate:"required"`
}

// RecordDecisionHandler: POST /api/attempts/{id}/decisions
func RecordDecisionHandler(svc *learning.Service, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req decisionReq
		if err := decodeJSON(r, &req); err != nil {
			respondError(w, log, r, err)
			return
		}
		res, err := svc.RecordDecision(r.Context(), authmw.SubjectFromContext(r.Context()), chi.URLParam(r, "id"), req.NodeKey, req.ChoiceID)
		if err != nil {
			respondError(w, log, r, err)
			return
		}
		respondJSON(w, http.StatusCreated, res)
	}
}

// CompleteAttemptHandler: POST /api/attempts/{id}/complete
func CompleteAttemptHandler(svc *learning.Service, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in attempt.Completion
		if err := decodeJSON(r, &in); err != nil {
			respondError(w, log, r, err)
			return
		}
		res, err := svc.Complete(r.Context(), authmw.SubjectFromContext(r.Context()), chi.URLParam(r, "id"), in)
		if err != nil {
			respondError(w, log, r, err)
			return
		}
		respondJSON(w, http.StatusOK, res)
	}
}

// SubmitQuizHandler: POST /api/modules/{id}/quiz/submit {answers}
func SubmitQuizHandler(svc *learning.Service, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(io.LimitReader(r.Body, maxJSONBody))
		if err != nil {
			respondError(w, log, r, apperr.Invalid("read body: %v", err))
			return
		}
		answers, err := learning.DecodeAnswers(raw)
		if err != nil {
			respondError(w, log, r, err)
			return
		}
		res, err := svc.SubmitQuiz(r.Context(), authmw.SubjectFromContext(r.Context()), chi.URLParam(r, "id"), answers)
		if err != nil {
			respondError(w, log, r, err)
			return
		}
		respondJSON(w, http.StatusOK, res)
	}
}

// AcknowledgeHandler: POST /api/modules/{id}/acknowledge
func AcknowledgeHandler(svc *learning.Service, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := svc.Acknowledge(r.Context(), authmw.SubjectFromContext(r.Context()), chi.URLParam(r, "id"))
		if err != nil {
			respondError(w, log, r, err)
			return
		}
		respondJSON(w, http.StatusOK, p)
	}
}
