package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"ENV", "HOST", "PORT", "ALLOWED_ORIGINS", "FRONTEND_URL", "FRONTEND_URL_2", "FRONTEND_URL_3",
		"USER_STORE", "SESSION_STORE", "ENTRY_STORE", "BLOB_STORE", "MAX_UPLOAD_BYTES",
		"CAPTURE_TIMESLICE", "CAPTURE_TICK", "SUMMARY_GENERATOR", "SUMMARY_MIN_DELAY",
		"SUMMARY_MAX_DELAY", "SUMMARY_FAILURE_RATE", "ARK_API_KEY", "ARK_MODEL",
		"EVENTS_REDIS_RELAY", "RATE_LIMIT_UPLOADS_PER_MIN", "CLOUDINARY_CLOUD_NAME",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.False(t, cfg.Server.IsProduction())
	assert.Empty(t, cfg.Server.AllowedHost)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "memory", cfg.Storage.EntryStore)
	assert.Equal(t, "memory", cfg.Blobs.Store)
	assert.Equal(t, int64(100*1024*1024), cfg.Blobs.MaxUploadBytes)
	assert.Equal(t, time.Second, cfg.Capture.Timeslice)
	assert.Equal(t, time.Second, cfg.Capture.Tick)
	assert.Equal(t, "mock", cfg.Summary.Generator)
	assert.Equal(t, 2*time.Second, cfg.Summary.MinDelay)
	assert.Equal(t, 4*time.Second, cfg.Summary.MaxDelay)
	assert.Zero(t, cfg.Summary.FailureRate)
	assert.False(t, cfg.AI.Enabled())
}

func TestLoadProductionHost(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENV", "Production")
	t.Setenv("HOST", "https://api.journal.example.com:443/v1")
	t.Setenv("FRONTEND_URL", "https://app.journal.example.com")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.Server.IsProduction())
	assert.Equal(t, "api.journal.example.com", cfg.Server.AllowedHost)
	assert.Equal(t, []string{
		"https://app.journal.example.com",
		"https://journal.example.com",
		"https://www.journal.example.com",
	}, cfg.Server.AllowedOrigins)
}

func TestLoadParsesTypedValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "127.0.0.1:9000")
	t.Setenv("ALLOWED_ORIGINS", "https://a.test, https://b.test ,")
	t.Setenv("ENTRY_STORE", "Badger")
	t.Setenv("MAX_UPLOAD_BYTES", "2048")
	t.Setenv("CAPTURE_TICK", "250ms")
	t.Setenv("SUMMARY_FAILURE_RATE", "0.25")
	t.Setenv("EVENTS_REDIS_RELAY", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.Equal(t, []string{"https://a.test", "https://b.test"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "badger", cfg.Storage.EntryStore)
	assert.Equal(t, int64(2048), cfg.Blobs.MaxUploadBytes)
	assert.Equal(t, 250*time.Millisecond, cfg.Capture.Tick)
	assert.Equal(t, 0.25, cfg.Summary.FailureRate)
	assert.True(t, cfg.Server.EventsRelay)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string][2]string{
		"bad duration":   {"CAPTURE_TIMESLICE", "soon"},
		"zero duration":  {"CAPTURE_TICK", "0s"},
		"bad store":      {"ENTRY_STORE", "s3"},
		"bad rate":       {"SUMMARY_FAILURE_RATE", "1.5"},
		"bad bool":       {"EVENTS_REDIS_RELAY", "maybe"},
		"bad size":       {"MAX_UPLOAD_BYTES", "-1"},
		"bad port":       {"PORT", "80 80"},
		"llm no creds":   {"SUMMARY_GENERATOR", "llm"},
		"cloudinary bad": {"BLOB_STORE", "cloudinary"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(kv[0], kv[1])
			_, err := Load()
			require.Error(t, err)
		})
	}
}

func TestLoadRejectsInvertedDelays(t *testing.T) {
	clearEnv(t)
	t.Setenv("SUMMARY_MIN_DELAY", "5s")
	t.Setenv("SUMMARY_MAX_DELAY", "1s")
	_, err := Load()
	assert.ErrorContains(t, err, "SUMMARY_MAX_DELAY")
}

func TestArkEnabled(t *testing.T) {
	assert.False(t, ArkConfig{APIKey: "k"}.Enabled())
	assert.True(t, ArkConfig{APIKey: "k", Model: "m"}.Enabled())
	assert.True(t, ArkConfig{AccessKey: "a", SecretKey: "s", Model: "m"}.Enabled())
	assert.False(t, ArkConfig{AccessKey: "a", Model: "m"}.Enabled())
}
