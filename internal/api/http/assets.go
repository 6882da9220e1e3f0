package http

import (
	"io"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/coremine/safety-lms/internal/apperr"
	authmw "github.com/coremine/safety-lms/internal/auth/middleware"
	"github.com/coremine/safety-lms/internal/course"
	"github.com/coremine/safety-lms/internal/logger"
	"github.com/coremine/safety-lms/internal/storage"
)

const maxAssetBytes = 512 << 20

// UploadAssetHandler: POST /api/admin/modules/{id}/asset (multipart "file").
// VIDEO and POLICY modules carry one asset each; a new upload replaces it.
func UploadAssetHandler(courses *course.SQLStore, bs storage.BlobStore, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		m, err := orgModule(ctx, courses, authmw.OrgFromContext(ctx), chi.URLParam(r, "id"))
		if err != nil {
			respondError(w, log, r, err)
			return
		}
		if m.Kind != course.KindVideo && m.Kind != course.KindPolicy {
			respondError(w, log, r, apperr.Invalid("module %q does not take an asset", m.Title))
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxAssetBytes)
		f, hdr, err := r.FormFile("file")
		if err != nil {
			respondError(w, log, r, apperr.Invalid("file required"))
			return
		}
		defer f.Close()

		ext := strings.ToLower(path.Ext(hdr.Filename))
		key := "modules/" + m.ID + "/asset" + ext
		if _, err := bs.Put(ctx, key, f); err != nil {
			respondError(w, log, r, err)
			return
		}
		if m.AssetKey != "" && m.AssetKey != key {
			if err := bs.Delete(ctx, m.AssetKey); err != nil {
				log.Warn("remove previous asset", "key", m.AssetKey, "err", err)
			}
		}
		if err := courses.SetModuleAsset(ctx, m.ID, key); err != nil {
			respondError(w, log, r, err)
			return
		}
		respondJSON(w, http.StatusCreated, map[string]string{"key": key})
	}
}

// StreamAssetHandler: GET /api/modules/{id}/asset
func StreamAssetHandler(courses *course.SQLStore, bs storage.BlobStore, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		m, err := orgModule(ctx, courses, authmw.OrgFromContext(ctx), chi.URLParam(r, "id"))
		if err != nil {
			respondError(w, log, r, err)
			return
		}
		if m.AssetKey == "" {
			respondError(w, log, r, apperr.NotFound("asset"))
			return
		}
		rc, err := bs.Get(ctx, m.AssetKey)
		if err != nil {
			respondError(w, log, r, err)
			return
		}
		defer rc.Close()
		ct := mime.TypeByExtension(path.Ext(m.AssetKey))
		if ct == "" {
			ct = "application/octet-stream"
		}
		w.Header().Set("Content-Type", ct)
		_, _ = io.Copy(w, rc)
	}
}
