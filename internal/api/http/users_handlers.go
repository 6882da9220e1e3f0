package http

import (
	"io"
	"net/http"
	"strings"

	"github.com/coremine/safety-lms/internal/apperr"
	authmw "github.com/coremine/safety-lms/internal/auth/middleware"
	"github.com/coremine/safety-lms/internal/course"
	"github.com/coremine/safety-lms/internal/logger"
	"github.com/coremine/safety-lms/internal/users"
)

const maxImportBytes = 10 << 20

// ImportUsersHandler accepts a CSV either as multipart field "file" or as a
// raw text/csv body.
func ImportUsersHandler(im *users.Importer, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var src io.Reader
		ct := r.Header.Get("Content-Type")
		switch {
		case strings.HasPrefix(ct, "multipart/form-data"):
			if err := r.ParseMultipartForm(maxImportBytes); err != nil {
				respondError(w, log, r, apperr.Invalid("bad multipart body: %v", err))
				return
			}
			f, _, err := r.FormFile("file")
			if err != nil {
				respondError(w, log, r, apperr.Invalid("file required"))
				return
			}
			defer f.Close()
			src = f
		case strings.HasPrefix(ct, "text/csv"), strings.HasPrefix(ct, "text/plain"):
			src = io.LimitReader(r.Body, maxImportBytes)
		default:
			respondError(w, log, r, apperr.Invalid("expected multipart file or text/csv body"))
			return
		}
		ctx := r.Context()
		res, err := im.Import(ctx, authmw.OrgFromContext(ctx), authmw.SubjectFromContext(ctx), src)
		if err != nil {
			respondError(w, log, r, err)
			return
		}
		respondJSON(w, http.StatusOK, res)
	}
}

// ListUsersHandler lists the caller's org, optionally filtered by ?role=.
func ListUsersHandler(store *users.SQLStore, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var roles []users.Role
		if q := r.URL.Query().Get("role"); q != "" {
			role, ok := users.ParseRole(q)
			if !ok {
				respondError(w, log, r, apperr.Invalid("unknown role %q", q))
				return
			}
			roles = append(roles, role)
		}
		out, err := store.List(r.Context(), authmw.OrgFromContext(r.Context()), roles...)
		if err != nil {
			respondError(w, log, r, err)
			return
		}
		respondJSON(w, http.StatusOK, out)
	}
}

type enrollReq struct {
	UserID   string `json:"userId" validate:"required"`
	CourseID string `json:"courseId" validate:"required"`
}

// EnrollHandler enrolls a user of the caller's org into one of its courses.
// Repeating an enrollment returns the existing row with 200.
func EnrollHandler(store *users.SQLStore, courses *course.SQLStore, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req enrollReq
		if err := decodeJSON(r, &req); err != nil {
			respondError(w, log, r, err)
			return
		}
		ctx := r.Context()
		org := authmw.OrgFromContext(ctx)
		u, err := store.Get(ctx, req.UserID)
		if err == nil && u.OrgID != org {
			err = apperr.NotFound("user")
		}
		if err != nil {
			respondError(w, log, r, err)
			return
		}
		if _, err := orgCourse(ctx, courses, org, req.CourseID); err != nil {
			respondError(w, log, r, err)
			return
		}
		e, created, err := courses.Enroll(ctx, req.UserID, req.CourseID)
		if err != nil {
			respondError(w, log, r, err)
			return
		}
		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		respondJSON(w, status, e)
	}
}
