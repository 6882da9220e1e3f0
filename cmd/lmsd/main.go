package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	api "github.com/coremine/safety-lms/internal/api/http"
	"github.com/coremine/safety-lms/internal/attempt"
	"github.com/coremine/safety-lms/internal/audit"
	auth "github.com/coremine/safety-lms/internal/auth/middleware"
	"github.com/coremine/safety-lms/internal/certificate"
	"github.com/coremine/safety-lms/internal/config"
	"github.com/coremine/safety-lms/internal/course"
	"github.com/coremine/safety-lms/internal/db"
	"github.com/coremine/safety-lms/internal/incident"
	"github.com/coremine/safety-lms/internal/learning"
	"github.com/coremine/safety-lms/internal/logger"
	"github.com/coremine/safety-lms/internal/notify"
	"github.com/coremine/safety-lms/internal/quiz"
	"github.com/coremine/safety-lms/internal/ratelimit"
	"github.com/coremine/safety-lms/internal/reminder"
	"github.com/coremine/safety-lms/internal/report"
	"github.com/coremine/safety-lms/internal/scenario"
	"github.com/coremine/safety-lms/internal/storage"
	"github.com/coremine/safety-lms/internal/users"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer log.Sync()

	// --- DB ---
	driver, err := db.ParseDriver(cfg.DBDriver)
	if err != nil {
		log.Fatal("db driver", "err", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	dbh, err := db.Open(ctx, driver, cfg.DBDSN)
	cancel()
	if err != nil {
		log.Fatal("db open failed", "driver", driver, "err", err)
	}
	defer dbh.Close()

	if len(os.Args) > 1 && os.Args[1] == "bootstrap" {
		if err := runBootstrap(context.Background(), dbh, os.Args[2:], os.Stdout); err != nil {
			log.Fatal("bootstrap failed", "err", err)
		}
		return
	}

	deps, err := wire(cfg, dbh, log)
	if err != nil {
		log.Fatal("wiring failed", "err", err)
	}

	var sched *cron.Cron
	if cfg.ReminderSchedule != "" {
		sched, err = scheduleReminders(cfg, deps.Reminders, log)
		if err != nil {
			log.Fatal("reminder schedule", "spec", cfg.ReminderSchedule, "err", err)
		}
		sched.Start()
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.NewRouter(deps),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", cfg.HTTPAddr, "mode", cfg.Mode, "db", driver, "tz", cfg.Location().String())
		errCh <- srv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("http server", "err", err)
		}
	case sig := <-stop:
		log.Info("shutting down", "signal", sig.String())
	}
	if sched != nil {
		<-sched.Stop().Done()
	}
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown", "err", err)
	}
}

// wire builds every service over one database handle.
func wire(cfg config.Config, dbh *sql.DB, log *logger.Logger) (api.Deps, error) {
	loc := cfg.Location()
	if loc.String() != cfg.Timezone {
		log.Warn("unknown TIMEZONE, using UTC", "tz", cfg.Timezone)
	}
	bs, err := storage.NewFSStore(cfg.BlobBasePath)
	if err != nil {
		return api.Deps{}, fmt.Errorf("blob store: %w", err)
	}

	var sender notify.Sender
	switch {
	case cfg.SendGridAPIKey != "", cfg.Mode == config.ModeOnline:
		// an empty key surfaces as "Email is not configured" per message
		sender = notify.NewSendGridSender(cfg.SendGridAPIKey, cfg.EmailFromName, cfg.EmailFrom)
	default:
		log.Warn("SENDGRID_API_KEY not set; emails are logged, not delivered")
		sender = notify.NewLogSender(log)
	}
	mailer := notify.NewDispatcher(sender, dbh, log)

	grader := quiz.NewGrader(quiz.WithMaxEditDistance(cfg.QuizMaxEditDistance), quiz.WithPartialMulti(cfg.QuizPartialMulti))
	events := audit.NewEventRepo(dbh)
	courses := course.NewSQLStore(dbh)
	tracker := course.NewTracker(courses)
	scenarios := scenario.NewSQLStore(dbh)
	us := users.NewSQLStore(dbh)
	certs := certificate.NewService(certificate.NewSQLStore(dbh), courses, mailer, events, log, cfg.AppBaseURL, loc)

	return api.Deps{
		DB:           dbh,
		Log:          log,
		Auth:         auth.NewAuthService(cfg.AuthHMACSecret),
		Users:        us,
		Importer:     users.NewImporter(us, courses, mailer, events, log, cfg.AppBaseURL),
		Courses:      courses,
		Tracker:      tracker,
		Scenarios:    scenarios,
		Learning:     learning.NewService(courses, tracker, scenarios, attempt.NewSQLStore(dbh), grader, certs, log),
		Certificates: certs,
		Incidents:    incident.NewService(incident.NewSQLStore(dbh), scenarios, courses, us, mailer, events, log, loc),
		Reports:      report.NewBuilder(dbh, loc),
		Reminders:    reminder.NewJob(certs.Store(), mailer, log, loc, cfg.AppBaseURL),
		Mailer:       mailer,
		Audit:        events,
		Blobs:        bs,
		ContactLimit: ratelimit.New(cfg.ContactLimit, cfg.ContactWindow),

		ContactRecipient: cfg.ContactRecipient,
		CronSecret:       cfg.CronSecret,
		CORSOrigins:      cfg.CORSOrigins,
		RequestTimeout:   cfg.RequestTimeout,
	}, nil
}

// scheduleReminders runs the expiry reminder job in-process. Overlapping runs
// are skipped; the job itself is idempotent per local day.
func scheduleReminders(cfg config.Config, job *reminder.Job, log *logger.Logger) (*cron.Cron, error) {
	c := cron.New(
		cron.WithLocation(cfg.Location()),
		cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DefaultLogger)),
	)
	_, err := c.AddFunc(cfg.ReminderSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		sum, err := job.Run(ctx)
		if err != nil {
			log.Error("scheduled expiry reminders", "err", err)
			return
		}
		log.Info("scheduled expiry reminders", "scanned", sum.Scanned, "sent", sum.Sent, "skipped", sum.Skipped, "failed", sum.Failed)
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}
