package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("VAULTSCRIBE_ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.PollInterval != 3*time.Second {
		t.Fatalf("poll interval = %s, want 3s", cfg.PollInterval)
	}
	if cfg.CallTimeout != 60*time.Second {
		t.Fatalf("call timeout = %s, want 60s", cfg.CallTimeout)
	}
	if len(cfg.SigningSecret) == 0 {
		t.Fatal("expected generated signing secret")
	}
	if cfg.PollLeaseTTL < 2*cfg.PollInterval {
		t.Fatalf("lease ttl %s shorter than two poll intervals", cfg.PollLeaseTTL)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("VAULTSCRIBE_ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("POLL_INTERVAL", "250ms")
	t.Setenv("SUMMARY_PARALLELISM", "-3")
	t.Setenv("VAULTSCRIBE_ALLOWED_TYPES", "audio/mpeg, audio/wav")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.PollInterval != 250*time.Millisecond {
		t.Fatalf("poll interval = %s, want 250ms", cfg.PollInterval)
	}
	if cfg.SummaryParallel != 1 {
		t.Fatalf("summary parallelism = %d, want 1", cfg.SummaryParallel)
	}
	if len(cfg.AllowedTypes) != 2 || cfg.AllowedTypes[1] != "audio/wav" {
		t.Fatalf("allowed types = %#v", cfg.AllowedTypes)
	}
}

func TestLoadReadsEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(path, []byte("DEFAULT_LANGUAGE=ru\nDEFAULT_SPEAKERS=4\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("VAULTSCRIBE_ENV_FILE", path)
	// t.Setenv registers cleanup so keys set by godotenv are restored.
	t.Setenv("DEFAULT_LANGUAGE", "")
	t.Setenv("DEFAULT_SPEAKERS", "")
	os.Unsetenv("DEFAULT_LANGUAGE")
	os.Unsetenv("DEFAULT_SPEAKERS")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DefaultLanguage != "ru" || cfg.DefaultSpeakers != 4 {
		t.Fatalf("language=%q speakers=%d, want ru/4", cfg.DefaultLanguage, cfg.DefaultSpeakers)
	}
}

func TestRequireBackends(t *testing.T) {
	cfg := &Config{RedisAddr: "localhost:6379"}
	if err := cfg.RequireBackends(); err == nil {
		t.Fatal("expected missing settings error")
	}
	cfg.DatabaseURL = "postgres://localhost/db"
	cfg.S3Endpoint = "localhost:9000"
	if err := cfg.RequireBackends(); err != nil {
		t.Fatalf("RequireBackends() error = %v", err)
	}
	if err := cfg.RequireSpeech(); err == nil {
		t.Fatal("expected missing api key error")
	}
}

func TestLoadRejectsMalformedValues(t *testing.T) {
	t.Setenv("VAULTSCRIBE_ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("POLL_INTERVAL", "3x")
	t.Setenv("S3_USE_SSL", "maybe")
	_, err := Load()
	if err == nil {
		t.Fatal("expected an error for malformed values")
	}
	for _, key := range []string{"POLL_INTERVAL", "S3_USE_SSL"} {
		if !strings.Contains(err.Error(), key) {
			t.Fatalf("error %q does not name %s", err, key)
		}
	}
}
