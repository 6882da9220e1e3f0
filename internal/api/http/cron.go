package http

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/coremine/safety-lms/internal/logger"
	"github.com/coremine/safety-lms/internal/reminder"
)

// RequireCronSecret guards scheduler endpoints with "Bearer <secret>".
// An unset secret is a server misconfiguration and answers 500.
func RequireCronSecret(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "CRON_SECRET is not configured"})
				return
			}
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(strings.TrimSpace(got)), []byte(secret)) != 1 {
				respondJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ExpiryRemindersHandler: GET /api/cron/expiry-reminders
func ExpiryRemindersHandler(job *reminder.Job, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sum, err := job.Run(r.Context())
		if err != nil {
			respondError(w, log, r, err)
			return
		}
		respondJSON(w, http.StatusOK, sum)
	}
}
