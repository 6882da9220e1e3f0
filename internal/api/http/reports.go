package http

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/coremine/safety-lms/internal/apperr"
	authmw "github.com/coremine/safety-lms/internal/auth/middleware"
	"github.com/coremine/safety-lms/internal/logger"
	"github.com/coremine/safety-lms/internal/report"
)

// ComplianceReportHandler: GET /api/admin/reports/compliance-summary?format=csv|json&siteId=&courseId=
func ComplianceReportHandler(b *report.Builder, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		format := q.Get("format")
		if format == "" {
			format = "json"
		}
		if format != "json" && format != "csv" {
			respondError(w, log, r, apperr.Invalid("format must be csv or json"))
			return
		}
		rep, err := b.Build(r.Context(), report.Filter{
			OrgID:    authmw.OrgFromContext(r.Context()),
			SiteID:   q.Get("siteId"),
			CourseID: q.Get("courseId"),
		})
		if err != nil {
			respondError(w, log, r, err)
			return
		}
		if format == "json" {
			respondJSON(w, http.StatusOK, rep)
			return
		}
		var buf bytes.Buffer
		if err := report.WriteCSV(&buf, rep.Rows, b.Location()); err != nil {
			respondError(w, log, r, err)
			return
		}
		name := fmt.Sprintf("compliance-%s.csv", time.Unix(rep.GeneratedAt, 0).In(b.Location()).Format("20060102"))
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(buf.Bytes())
	}
}
