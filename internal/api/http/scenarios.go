package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/coremine/safety-lms/internal/apperr"
	"github.com/coremine/safety-lms/internal/audit"
	authmw "github.com/coremine/safety-lms/internal/auth/middleware"
	"github.com/coremine/safety-lms/internal/course"
	"github.com/coremine/safety-lms/internal/logger"
	"github.com/coremine/safety-lms/internal/scenario"
)

type saveScenarioReq struct {
	Scenario scenario.Scenario `json:"scenario" validate:"-"`
	Nodes    []scenario.Node   `json:"nodes" validate:"required,min=1"`
}

type scenarioResp struct {
	Scenario scenario.Scenario  `json:"scenario"`
	Nodes    []scenario.Node    `json:"nodes"`
	Warnings []scenario.Warning `json:"warnings"`
}

func lint(sc scenario.Scenario, nodes []scenario.Node) []scenario.Warning {
	w := scenario.NewGraph(sc.StartNodeKey, nodes).Lint()
	if w == nil {
		return []scenario.Warning{}
	}
	return w
}

// SaveScenarioHandler: POST /api/admin/modules/{id}/scenario
// The module's node graph is replaced wholesale. Lint findings come back as
// warnings and do not block the save.
func SaveScenarioHandler(courses *course.SQLStore, store scenario.Store, rec audit.Recorder, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req saveScenarioReq
		if err := decodeJSON(r, &req); err != nil {
			respondError(w, log, r, err)
			return
		}
		ctx := r.Context()
		orgID := authmw.OrgFromContext(ctx)
		m, err := orgModule(ctx, courses, orgID, chi.URLParam(r, "id"))
		if err != nil {
			respondError(w, log, r, err)
			return
		}
		if m.Kind != course.KindScenario {
			respondError(w, log, r, apperr.Invalid("module %q is a %s module", m.Title, m.Kind))
			return
		}
		sc := req.Scenario
		sc.ID = ""
		sc.ModuleID = m.ID
		if sc.Status == "" {
			sc.Status = scenario.StatusDraft
		}
		saved, err := store.Save(ctx, sc, req.Nodes)
		if err != nil {
			respondError(w, log, r, err)
			return
		}
		sc, nodes, err := store.Get(ctx, saved.ID)
		if err != nil {
			respondError(w, log, r, err)
			return
		}
		warnings := lint(sc, nodes)
		log.Info("scenario saved", "scenario_id", sc.ID, "module_id", m.ID, "nodes", len(nodes), "warnings", len(warnings))
		recordAudit(ctx, rec, log, orgID, audit.TypeScenarioSaved, sc.ID, map[string]any{
			"moduleId": m.ID, "status": sc.Status, "nodes": len(nodes), "by": authmw.SubjectFromContext(ctx),
		})
		respondJSON(w, http.StatusOK, scenarioResp{Scenario: sc, Nodes: nodes, Warnings: warnings})
	}
}

// GetScenarioHandler: GET /api/admin/modules/{id}/scenario, full authoring view.
func GetScenarioHandler(courses *course.SQLStore, store scenario.Store, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		m, err := orgModule(ctx, courses, authmw.OrgFromContext(ctx), chi.URLParam(r, "id"))
		if err != nil {
			respondError(w, log, r, err)
			return
		}
		sc, nodes, err := store.GetByModule(ctx, m.ID)
		if err != nil {
			respondError(w, log, r, err)
			return
		}
		respondJSON(w, http.StatusOK, scenarioResp{Scenario: sc, Nodes: nodes, Warnings: lint(sc, nodes)})
	}
}
