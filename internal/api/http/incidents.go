package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/coremine/safety-lms/internal/apperr"
	authmw "github.com/coremine/safety-lms/internal/auth/middleware"
	"github.com/coremine/safety-lms/internal/incident"
	"github.com/coremine/safety-lms/internal/logger"
	"github.com/coremine/safety-lms/internal/users"
)

// ReportIncidentHandler: POST /api/admin/incidents
func ReportIncidentHandler(svc *incident.Service, us *users.SQLStore, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in incident.Input
		if err := decodeJSON(r, &in); err != nil {
			respondError(w, log, r, err)
			return
		}
		ctx := r.Context()
		orgID := authmw.OrgFromContext(ctx)
		if in.SiteID != "" {
			ok, err := us.SiteInOrg(ctx, orgID, in.SiteID)
			if err != nil {
				respondError(w, log, r, err)
				return
			}
			if !ok {
				respondError(w, log, r, apperr.Invalid("unknown site %s", in.SiteID))
				return
			}
		}
		inc, err := svc.Report(ctx, orgID, authmw.SubjectFromContext(ctx), in)
		if err != nil {
			respondError(w, log, r, err)
			return
		}
		respondJSON(w, http.StatusCreated, inc)
	}
}

func ListIncidentsHandler(svc *incident.Service, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := svc.Store().List(r.Context(), authmw.OrgFromContext(r.Context()))
		if err != nil {
			respondError(w, log, r, err)
			return
		}
		respondJSON(w, http.StatusOK, out)
	}
}

func GetIncidentHandler(svc *incident.Service, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		inc, err := svc.Store().Get(r.Context(), authmw.OrgFromContext(r.Context()), chi.URLParam(r, "id"))
		if err != nil {
			respondError(w, log, r, err)
			return
		}
		respondJSON(w, http.StatusOK, inc)
	}
}

type generateReq struct {
	ModuleID string `json:"moduleId"`
}

// GenerateScenarioHandler: POST /api/admin/incidents/{id}/generate-scenario
// The body is optional.
func GenerateScenarioHandler(svc *incident.Service, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req generateReq
		if r.ContentLength != 0 {
			if err := decodeJSON(r, &req); err != nil {
				respondError(w, log, r, err)
				return
			}
		}
		ctx := r.Context()
		g, err := svc.GenerateScenario(ctx, authmw.OrgFromContext(ctx), chi.URLParam(r, "id"), req.ModuleID)
		if err != nil {
			respondError(w, log, r, err)
			return
		}
		respondJSON(w, http.StatusCreated, g)
	}
}
