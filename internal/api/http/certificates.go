package http

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/coremine/safety-lms/internal/apperr"
	authmw "github.com/coremine/safety-lms/internal/auth/middleware"
	"github.com/coremine/safety-lms/internal/certificate"
	"github.com/coremine/safety-lms/internal/logger"
	"github.com/coremine/safety-lms/internal/rbac"
)

// DownloadCertificateHandler streams the PDF to its holder, or to staff of
// the issuing org holding certificate:view-org.
func DownloadCertificateHandler(svc *certificate.Service, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		d, err := svc.Store().Get(ctx, chi.URLParam(r, "id"))
		if err != nil {
			respondError(w, log, r, err)
			return
		}
		owner := d.UserID == authmw.SubjectFromContext(ctx)
		staff := d.OrgID == authmw.OrgFromContext(ctx) && rbac.Can(ctx, "certificate:view-org")
		if !owner && !staff {
			respondError(w, log, r, apperr.NotFound("certificate"))
			return
		}
		pdf, err := svc.PDF(d)
		if err != nil {
			respondError(w, log, r, err)
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", certificate.FileName(d)))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(pdf)
	}
}

func MyCertificatesHandler(svc *certificate.Service, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := svc.Store().ListForUser(r.Context(), authmw.SubjectFromContext(r.Context()))
		if err != nil {
			respondError(w, log, r, err)
			return
		}
		respondJSON(w, http.StatusOK, out)
	}
}

// OrgCertificatesHandler lists the org's ACTIVE certificates.
func OrgCertificatesHandler(svc *certificate.Service, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := svc.Store().ListActiveForOrg(r.Context(), authmw.OrgFromContext(r.Context()))
		if err != nil {
			respondError(w, log, r, err)
			return
		}
		respondJSON(w, http.StatusOK, out)
	}
}

// VerifyCertificateHandler: GET /api/certificates/verify/{code}, public JSON.
func VerifyCertificateHandler(svc *certificate.Service, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := svc.Verify(r.Context(), chi.URLParam(r, "code"))
		if err != nil {
			respondError(w, log, r, err)
			return
		}
		respondJSON(w, http.StatusOK, v)
	}
}

var verifyPage = template.Must(template.New("verify").Parse(`<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Certificate verification</title>
<style>
body{font-family:system-ui,sans-serif;max-width:40rem;margin:3rem auto;padding:0 1rem;color:#1f2933}
.badge{display:inline-block;padding:.3rem .8rem;border-radius:1rem;font-weight:600;color:#fff}
.VALID{background:#2f855a}.EXPIRED{background:#b7791f}.REVOKED{background:#c53030}.UNKNOWN{background:#4a5568}
dt{font-weight:600;margin-top:.8rem}
</style>
</head>
<body>
<h1>Certificate verification</h1>
{{if .Found}}
<p><span class="badge {{.V.Status}}">{{.V.Status}}</span></p>
<dl>
<dt>Holder</dt><dd>{{.V.HolderName}}</dd>
<dt>Course</dt><dd>{{.V.CourseTitle}}</dd>
<dt>Issued by</dt><dd>{{.V.OrgName}}</dd>
<dt>Serial</dt><dd>{{.V.Serial}}</dd>
<dt>Issued</dt><dd>{{.Issued}}</dd>
<dt>Expires</dt><dd>{{.Expires}}</dd>
{{if .V.RevokeReason}}<dt>Revocation reason</dt><dd>{{.V.RevokeReason}}</dd>{{end}}
</dl>
{{else}}
<p><span class="badge UNKNOWN">NOT FOUND</span></p>
<p>No certificate matches code <code>{{.Code}}</code>.</p>
{{end}}
</body>
</html>
`))

type verifyView struct {
	Found           bool
	Code            string
	V               certificate.Verification
	Issued, Expires string
}

// VerifyPageHandler: GET /verify/{code}, the page a QR scan lands on.
func VerifyPageHandler(svc *certificate.Service, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := certificate.NormalizeCode(chi.URLParam(r, "code"))
		view := verifyView{Code: code}
		status := http.StatusOK
		v, err := svc.Verify(r.Context(), code)
		switch {
		case err == nil:
			loc := svc.Location()
			view.Found = true
			view.V = v
			view.Issued = v.IssuedAt.In(loc).Format("2 January 2006")
			view.Expires = v.ExpiresAt.In(loc).Format("2 January 2006")
		case errors.Is(err, apperr.ErrNotFound):
			status = http.StatusNotFound
		default:
			respondError(w, log, r, err)
			return
		}
		var buf bytes.Buffer
		if err := verifyPage.Execute(&buf, view); err != nil {
			respondError(w, log, r, err)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(status)
		_, _ = w.Write(buf.Bytes())
	}
}

type revokeReq struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// RevokeCertificateHandler: POST /api/admin/certificates/{id}/revoke
func RevokeCertificateHandler(svc *certificate.Service, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req revokeReq
		if err := decodeJSON(r, &req); err != nil {
			respondError(w, log, r, err)
			return
		}
		ctx := r.Context()
		d, err := svc.Revoke(ctx, authmw.OrgFromContext(ctx), chi.URLParam(r, "id"), req.Reason, authmw.SubjectFromContext(ctx))
		if err != nil {
			respondError(w, log, r, err)
			return
		}
		respondJSON(w, http.StatusOK, d)
	}
}

type bulkReq struct {
	CertificateIDs []string `json:"certificateIds"`
	CourseID       string   `json:"courseId"`
	SiteID         string   `json:"siteId"`
}

// BulkDownloadHandler: POST /api/admin/certificates/bulk-download
// The selection is resolved before any byte is written so an oversized or
// empty selection still gets a JSON error.
func BulkDownloadHandler(svc *certificate.Service, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req bulkReq
		if err := decodeJSON(r, &req); err != nil {
			respondError(w, log, r, err)
			return
		}
		ctx := r.Context()
		items, err := svc.SelectBulk(ctx, certificate.Filter{
			OrgID:    authmw.OrgFromContext(ctx),
			IDs:      req.CertificateIDs,
			CourseID: req.CourseID,
			SiteID:   req.SiteID,
		})
		if err != nil {
			respondError(w, log, r, err)
			return
		}
		var buf bytes.Buffer
		if err := certificate.WriteZip(ctx, &buf, items, svc.BaseURL(), svc.Location()); err != nil {
			respondError(w, log, r, err)
			return
		}
		name := fmt.Sprintf("certificates-%s.zip", time.Now().In(svc.Location()).Format("20060102"))
		w.Header().Set("Content-Type", "application/zip")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(buf.Bytes())
		log.Info("bulk certificates exported", "count", len(items), "org_id", authmw.OrgFromContext(ctx))
	}
}
