package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/coremine/safety-lms/internal/apperr"
	"github.com/coremine/safety-lms/internal/audit"
	authmw "github.com/coremine/safety-lms/internal/auth/middleware"
	"github.com/coremine/safety-lms/internal/course"
	"github.com/coremine/safety-lms/internal/logger"
	"github.com/coremine/safety-lms/internal/quiz"
	"github.com/coremine/safety-lms/internal/rbac"
)

// orgCourse loads a course and hides it when it belongs to another org.
func orgCourse(ctx context.Context, store *course.SQLStore, orgID, id string) (course.Course, error) {
	c, err := store.GetCourse(ctx, id)
	if err != nil {
		return course.Course{}, err
	}
	if c.OrgID != orgID {
		return course.Course{}, apperr.NotFound("course")
	}
	return c, nil
}

// orgModule loads a module whose course belongs to orgID.
func orgModule(ctx context.Context, store *course.SQLStore, orgID, id string) (course.Module, error) {
	m, err := store.GetModule(ctx, id)
	if err != nil {
		return course.Module{}, err
	}
	if _, err := orgCourse(ctx, store, orgID, m.CourseID); err != nil {
		return course.Module{}, apperr.NotFound("module")
	}
	return m, nil
}

// Module content carries quiz answer keys.
func stripContent(mods []course.Module) {
	for i := range mods {
		mods[i].Content = nil
	}
}

type createCourseReq struct {
	Title string `json:"title" validate:"required,max=200"`
	Slug  string `json:"slug" validate:"omitempty,max=120"`
}

func CreateCourseHandler(store *course.SQLStore, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createCourseReq
		if err := decodeJSON(r, &req); err != nil {
			respondError(w, log, r, err)
			return
		}
		slug := req.Slug
		if slug == "" {
			slug = slugify(req.Title)
		}
		c, err := store.CreateCourse(r.Context(), course.Course{
			OrgID: authmw.OrgFromContext(r.Context()),
			Title: strings.TrimSpace(req.Title),
			Slug:  slug,
		})
		if err != nil {
			respondError(w, log, r, err)
			return
		}
		respondJSON(w, http.StatusCreated, c)
	}
}

func slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

type addModuleReq struct {
	Title     string          `json:"title" validate:"required,max=200"`
	Kind      string          `json:"kind" validate:"required,oneof=SCENARIO QUIZ VIDEO POLICY"`
	PassScore *float64        `json:"passScore" validate:"omitempty,gte=0,lte=100"`
	Content   json.RawMessage `json:"content"`
}

// AddModuleHandler appends a module. QUIZ content is parsed up front so a
// broken answer key is rejected at authoring time.
func AddModuleHandler(store *course.SQLStore, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req addModuleReq
		if err := decodeJSON(r, &req); err != nil {
			respondError(w, log, r, err)
			return
		}
		ctx := r.Context()
		c, err := orgCourse(ctx, store, authmw.OrgFromContext(ctx), chi.URLParam(r, "id"))
		if err != nil {
			respondError(w, log, r, err)
			return
		}
		m := course.Module{
			CourseID:  c.ID,
			Title:     strings.TrimSpace(req.Title),
			Kind:      course.ModuleKind(req.Kind),
			PassScore: 70,
			Content:   req.Content,
		}
		if req.PassScore != nil {
			m.PassScore = *req.PassScore
		}
		if m.Kind == course.KindQuiz {
			if _, err := quiz.ParseContent(req.Content); err != nil {
				respondError(w, log, r, err)
				return
			}
		}
		m, err = store.AddModule(ctx, m)
		if err != nil {
			respondError(w, log, r, err)
			return
		}
		respondJSON(w, http.StatusCreated, m)
	}
}

// GetCourseHandler returns a course of the caller's org. Module content is
// only included for callers who can author courses.
func GetCourseHandler(store *course.SQLStore, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		c, err := orgCourse(ctx, store, authmw.OrgFromContext(ctx), chi.URLParam(r, "id"))
		if err != nil {
			respondError(w, log, r, err)
			return
		}
		if !rbac.Can(ctx, "course:manage") {
			stripContent(c.Modules)
		}
		respondJSON(w, http.StatusOK, c)
	}
}

func ListCoursesHandler(store *course.SQLStore, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := store.ListCourses(r.Context(), authmw.OrgFromContext(r.Context()))
		if err != nil {
			respondError(w, log, r, err)
			return
		}
		respondJSON(w, http.StatusOK, out)
	}
}

type progressResp struct {
	Enrollment course.Enrollment    `json:"enrollment"`
	Modules    []course.ModuleState `json:"modules"`
}

// ProgressHandler shows the caller's own progress through a course.
func ProgressHandler(tracker *course.Tracker, store *course.SQLStore, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		c, err := orgCourse(ctx, store, authmw.OrgFromContext(ctx), chi.URLParam(r, "id"))
		if err != nil {
			respondError(w, log, r, err)
			return
		}
		e, states, err := tracker.Progress(ctx, authmw.SubjectFromContext(ctx), c.ID)
		if err != nil {
			respondError(w, log, r, err)
			return
		}
		for i := range states {
			states[i].Module.Content = nil
		}
		respondJSON(w, http.StatusOK, progressResp{Enrollment: e, Modules: states})
	}
}

func MyEnrollmentsHandler(store *course.SQLStore, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := store.ListEnrollments(r.Context(), authmw.SubjectFromContext(r.Context()))
		if err != nil {
			respondError(w, log, r, err)
			return
		}
		respondJSON(w, http.StatusOK, out)
	}
}

func GetOrgSettingsHandler(store *course.SQLStore, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		org, err := store.GetOrg(r.Context(), authmw.OrgFromContext(r.Context()))
		if err != nil {
			respondError(w, log, r, err)
			return
		}
		respondJSON(w, http.StatusOK, org)
	}
}

type orgSettingsReq struct {
	RequireSequential  *bool `json:"requireSequential" validate:"required"`
	CertValidityMonths *int  `json:"certValidityMonths" validate:"omitempty,gte=1,lte=120"`
}

func UpdateOrgSettingsHandler(store *course.SQLStore, rec audit.Recorder, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req orgSettingsReq
		if err := decodeJSON(r, &req); err != nil {
			respondError(w, log, r, err)
			return
		}
		ctx := r.Context()
		orgID := authmw.OrgFromContext(ctx)
		org, err := store.UpdateOrgSettings(ctx, orgID, *req.RequireSequential, req.CertValidityMonths)
		if err != nil {
			respondError(w, log, r, err)
			return
		}
		recordAudit(ctx, rec, log, orgID, audit.TypeOrgSettings, orgID, map[string]any{
			"requireSequential": org.RequireSequential, "certValidityMonths": org.CertValidityMonths,
			"by": authmw.SubjectFromContext(ctx),
		})
		respondJSON(w, http.StatusOK, org)
	}
}

type createSiteReq struct {
	Name string `json:"name" validate:"required,max=200"`
}

func CreateSiteHandler(store *course.SQLStore, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createSiteReq
		if err := decodeJSON(r, &req); err != nil {
			respondError(w, log, r, err)
			return
		}
		st, err := store.CreateSite(r.Context(), authmw.OrgFromContext(r.Context()), strings.TrimSpace(req.Name))
		if err != nil {
			respondError(w, log, r, err)
			return
		}
		respondJSON(w, http.StatusCreated, st)
	}
}

func ListSitesHandler(store *course.SQLStore, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := store.ListSites(r.Context(), authmw.OrgFromContext(r.Context()))
		if err != nil {
			respondError(w, log, r, err)
			return
		}
		respondJSON(w, http.StatusOK, out)
	}
}
