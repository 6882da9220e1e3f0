package http

import (
	"context"
	"net/http"
	"strconv"

	"github.com/coremine/safety-lms/internal/audit"
	authmw "github.com/coremine/safety-lms/internal/auth/middleware"
	"github.com/coremine/safety-lms/internal/logger"
	"github.com/coremine/safety-lms/internal/notify"
)

// -----------------------------
// Admin: audit & email logs
// -----------------------------

func recordAudit(ctx context.Context, rec audit.Recorder, log *logger.Logger, orgID, typ, key string, data any) {
	if err := rec.Record(ctx, orgID, typ, key, data); err != nil {
		log.Warn("audit append failed", "type", typ, "err", err)
	}
}

func queryLimit(r *http.Request) int {
	n, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	return n
}

// AuditSearchHandler: GET /api/admin/audit?q=&limit=
func AuditSearchHandler(repo *audit.EventRepo, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := repo.Search(r.Context(), authmw.OrgFromContext(r.Context()), r.URL.Query().Get("q"), queryLimit(r))
		if err != nil {
			respondError(w, log, r, err)
			return
		}
		respondJSON(w, http.StatusOK, out)
	}
}

// EmailLogsHandler: GET /api/admin/email-logs?type=&limit=
func EmailLogsHandler(d *notify.Dispatcher, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := d.ListLogs(r.Context(), authmw.OrgFromContext(r.Context()), notify.Type(r.URL.Query().Get("type")), queryLimit(r))
		if err != nil {
			respondError(w, log, r, err)
			return
		}
		respondJSON(w, http.StatusOK, out)
	}
}
