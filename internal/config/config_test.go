package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.Server.Addr != DefaultHTTPAddr {
		t.Fatalf("expected addr %q, got %q", DefaultHTTPAddr, cfg.Server.Addr)
	}
	if cfg.Retention.Window() != 90*24*time.Hour {
		t.Fatalf("unexpected retention window: %v", cfg.Retention.Window())
	}
	if cfg.Worker.Driver != WorkerDriverLocal {
		t.Fatalf("expected local worker driver, got %q", cfg.Worker.Driver)
	}
}

func TestLoad_OverlaysFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
[server]
addr = ":9090"

[storage]
driver = "memory"

[slack]
signing_secret = "shh"
timeout_seconds = 3

[retention]
days = 30
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.Server.Addr != ":9090" {
		t.Fatalf("expected overlay addr, got %q", cfg.Server.Addr)
	}
	if cfg.Storage.Driver != StorageDriverMemory {
		t.Fatalf("expected memory driver, got %q", cfg.Storage.Driver)
	}
	if cfg.Slack.Timeout() != 3*time.Second {
		t.Fatalf("expected 3s slack timeout, got %v", cfg.Slack.Timeout())
	}
	if cfg.Slack.APIURL != DefaultSlackAPIURL {
		t.Fatalf("expected default slack api url to survive overlay, got %q", cfg.Slack.APIURL)
	}
	if cfg.Retention.Window() != 30*24*time.Hour {
		t.Fatalf("unexpected retention window: %v", cfg.Retention.Window())
	}
}

func TestPostgresDSN(t *testing.T) {
	t.Parallel()

	cfg := PostgresConfig{Host: "db", Port: 5433, User: "u", Password: "p", Database: "ayro", SSLMode: "disable"}
	want := "postgres://u:p@db:5433/ayro?sslmode=disable"
	if got := cfg.DSN(); got != want {
		t.Fatalf("DSN() = %q, want %q", got, want)
	}
}
