package http

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/coremine/safety-lms/internal/audit"
	authmw "github.com/coremine/safety-lms/internal/auth/middleware"
	"github.com/coremine/safety-lms/internal/certificate"
	"github.com/coremine/safety-lms/internal/course"
	"github.com/coremine/safety-lms/internal/incident"
	"github.com/coremine/safety-lms/internal/learning"
	"github.com/coremine/safety-lms/internal/logger"
	"github.com/coremine/safety-lms/internal/notify"
	"github.com/coremine/safety-lms/internal/ratelimit"
	"github.com/coremine/safety-lms/internal/rbac"
	"github.com/coremine/safety-lms/internal/reminder"
	"github.com/coremine/safety-lms/internal/report"
	"github.com/coremine/safety-lms/internal/scenario"
	"github.com/coremine/safety-lms/internal/storage"
	"github.com/coremine/safety-lms/internal/users"
)

// Deps is everything the HTTP surface needs.
type Deps struct {
	DB           *sql.DB
	Log          *logger.Logger
	Auth         *authmw.AuthService
	Users        *users.SQLStore
	Importer     *users.Importer
	Courses      *course.SQLStore
	Tracker      *course.Tracker
	Scenarios    scenario.Store
	Learning     *learning.Service
	Certificates *certificate.Service
	Incidents    *incident.Service
	Reports      *report.Builder
	Reminders    *reminder.Job
	Mailer       *notify.Dispatcher
	Audit        *audit.EventRepo
	Blobs        storage.BlobStore
	ContactLimit *ratelimit.Limiter

	ContactRecipient string
	CronSecret       string
	CORSOrigins      []string
	RequestTimeout   time.Duration
}

func NewRouter(d Deps) http.Handler {
	log := d.Log
	timeout := d.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, RequestLogger(log), middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := d.DB.PingContext(r.Context()); err != nil {
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "database unavailable"})
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	// Public surfaces.
	r.Get("/verify/{code}", VerifyPageHandler(d.Certificates, log))
	r.Route("/api", func(api chi.Router) {
		api.Post("/auth/login", LoginHandler(d.Users, d.Auth, log))
		api.Get("/certificates/verify/{code}", VerifyCertificateHandler(d.Certificates, log))
		api.With(d.ContactLimit.Middleware).Post("/contact", ContactHandler(d.Mailer, d.ContactRecipient, log))
		api.With(RequireCronSecret(d.CronSecret)).Get("/cron/expiry-reminders", ExpiryRemindersHandler(d.Reminders, log))

		// Protected API (JWT → role from DB → RBAC)
		api.Group(func(pr chi.Router) {
			pr.Use(authmw.JWTMiddleware(d.Auth), authmw.AttachRoleFromDB(d.DB))

			pr.Get("/me", MeHandler(d.Users, log))
			pr.With(rbac.Require("user:change_password")).
				Post("/me/password", ChangePasswordHandler(d.Users, log))

			// Learner flow
			pr.With(rbac.Require("course:view")).Get("/courses", ListCoursesHandler(d.Courses, log))
			pr.With(rbac.Require("course:view")).Get("/courses/{id}", GetCourseHandler(d.Courses, log))
			pr.With(rbac.Require("course:view")).Get("/courses/{id}/progress", ProgressHandler(d.Tracker, d.Courses, log))
			pr.With(rbac.Require("course:view")).Get("/enrollments", MyEnrollmentsHandler(d.Courses, log))
			pr.With(rbac.Require("module:play")).Get("/modules/{id}/play", PlayModuleHandler(d.Learning, log))
			pr.With(rbac.Require("module:play")).Get("/modules/{id}/asset", StreamAssetHandler(d.Courses, d.Blobs, log))
			pr.With(rbac.Require("attempt:submit")).
				Post("/modules/{id}/quiz/submit", SubmitQuizHandler(d.Learning, log))
			pr.With(rbac.Require("attempt:submit")).
				Post("/modules/{id}/acknowledge", AcknowledgeHandler(d.Learning, log))
			pr.With(rbac.Require("attempt:save")).
				Post("/attempts/{id}/decisions", RecordDecisionHandler(d.Learning, log))
			pr.With(rbac.Require("attempt:submit")).
				Post("/attempts/{id}/complete", CompleteAttemptHandler(d.Learning, log))

			pr.With(rbac.Require("certificate:view-own")).
				Get("/certificates", MyCertificatesHandler(d.Certificates, log))
			pr.With(rbac.RequireAny("certificate:view-own", "certificate:view-org")).
				Get("/certificates/{id}/download", DownloadCertificateHandler(d.Certificates, log))

			pr.Route("/admin", func(ad chi.Router) {
				ad.With(rbac.Require("course:manage")).Post("/courses", CreateCourseHandler(d.Courses, log))
				ad.With(rbac.Require("course:manage")).Post("/courses/{id}/modules", AddModuleHandler(d.Courses, log))
				ad.With(rbac.Require("course:manage")).
					Post("/modules/{id}/scenario", SaveScenarioHandler(d.Courses, d.Scenarios, d.Audit, log))
				ad.With(rbac.Require("course:manage")).
					Get("/modules/{id}/scenario", GetScenarioHandler(d.Courses, d.Scenarios, log))
				ad.With(rbac.Require("course:manage")).
					Post("/modules/{id}/asset", UploadAssetHandler(d.Courses, d.Blobs, log))

				ad.With(rbac.Require("org:settings")).Get("/org/settings", GetOrgSettingsHandler(d.Courses, log))
				ad.With(rbac.Require("org:settings")).Put("/org/settings", UpdateOrgSettingsHandler(d.Courses, d.Audit, log))
				ad.With(rbac.Require("org:settings")).Post("/sites", CreateSiteHandler(d.Courses, log))
				ad.With(rbac.Require("users:list")).Get("/sites", ListSitesHandler(d.Courses, log))

				ad.With(rbac.Require("users:list")).Get("/users", ListUsersHandler(d.Users, log))
				ad.With(rbac.Require("users:import")).Post("/users/import", ImportUsersHandler(d.Importer, log))
				ad.With(rbac.Require("enrollment:manage")).Post("/enrollments", EnrollHandler(d.Users, d.Courses, log))

				ad.With(rbac.Require("certificate:view-org")).
					Get("/certificates", OrgCertificatesHandler(d.Certificates, log))
				ad.With(rbac.Require("certificate:revoke")).
					Post("/certificates/{id}/revoke", RevokeCertificateHandler(d.Certificates, log))
				ad.With(rbac.Require("certificate:view-org")).
					Post("/certificates/bulk-download", BulkDownloadHandler(d.Certificates, log))

				ad.With(rbac.Require("incident:create")).Post("/incidents", ReportIncidentHandler(d.Incidents, d.Users, log))
				ad.With(rbac.Require("incident:view")).Get("/incidents", ListIncidentsHandler(d.Incidents, log))
				ad.With(rbac.Require("incident:view")).Get("/incidents/{id}", GetIncidentHandler(d.Incidents, log))
				ad.With(rbac.Require("incident:generate")).
					Post("/incidents/{id}/generate-scenario", GenerateScenarioHandler(d.Incidents, log))

				ad.With(rbac.Require("report:view")).
					Get("/reports/compliance-summary", ComplianceReportHandler(d.Reports, log))
				ad.With(rbac.Require("audit:view")).Get("/audit", AuditSearchHandler(d.Audit, log))
				ad.With(rbac.Require("audit:view")).Get("/email-logs", EmailLogsHandler(d.Mailer, log))
			})
		})
	})
	return r
}
