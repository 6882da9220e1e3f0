package config

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // TIMEZONE must resolve in minimal images

	"github.com/caarlos0/env/v11"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

type Config struct {
	Mode     Mode   `env:"MODE" envDefault:"offline"`
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`
	LogMode  string `env:"LOG_MODE" envDefault:"dev"`

	// AppBaseURL is used to build verification links embedded in certificates and emails.
	AppBaseURL string `env:"APP_BASE_URL" envDefault:"http://localhost:8080"`

	DBDriver string `env:"DB_DRIVER" envDefault:"sqlite"`
	DBDSN    string `env:"DB_DSN"`

	BlobBasePath string `env:"BLOB_BASE_PATH" envDefault:"./data"`

	AuthHMACSecret string `env:"AUTH_HMAC_SECRET" envDefault:"supersecret-dev-key"`

	// Email settings are presence-checked when a message is sent, not at startup.
	SendGridAPIKey   string `env:"SENDGRID_API_KEY"`
	EmailFrom        string `env:"EMAIL_FROM" envDefault:"training@coremine.example"`
	EmailFromName    string `env:"EMAIL_FROM_NAME" envDefault:"CoreMine Safety Training"`
	ContactRecipient string `env:"CONTACT_RECIPIENT"`

	CronSecret string `env:"CRON_SECRET"`
	Timezone   string `env:"TIMEZONE" envDefault:"UTC"`
	// ReminderSchedule runs the expiry reminder job in-process on a cron spec
	// evaluated in Timezone. Empty leaves it to an external scheduler.
	ReminderSchedule string `env:"REMINDER_SCHEDULE"`

	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`

	ContactLimit  int           `env:"CONTACT_RATE_LIMIT" envDefault:"5"`
	ContactWindow time.Duration `env:"CONTACT_RATE_WINDOW" envDefault:"1h"`

	QuizMaxEditDistance int  `env:"QUIZ_MAX_EDIT_DISTANCE" envDefault:"1"`
	QuizPartialMulti    bool `env:"QUIZ_PARTIAL_MULTI" envDefault:"true"`

	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`
}

func FromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.AppBaseURL = strings.TrimSuffix(cfg.AppBaseURL, "/")
	return cfg, nil
}

// Location resolves Timezone, falling back to UTC when it is unknown.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
