package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, 5, cfg.ContactLimit)
	assert.Equal(t, time.Hour, cfg.ContactWindow)
	assert.Equal(t, time.UTC, cfg.Location())
	assert.Equal(t, 1, cfg.QuizMaxEditDistance)
	assert.True(t, cfg.QuizPartialMulti)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("APP_BASE_URL", "https://lms.coremine.example/")
	t.Setenv("CORS_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("TIMEZONE", "Australia/Perth")
	t.Setenv("CONTACT_RATE_WINDOW", "30m")
	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "https://lms.coremine.example", cfg.AppBaseURL)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.Equal(t, 30*time.Minute, cfg.ContactWindow)
	assert.Equal(t, "Australia/Perth", cfg.Location().String())

	t.Setenv("TIMEZONE", "Mars/Olympus")
	cfg, err = FromEnv()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, cfg.Location())
}
