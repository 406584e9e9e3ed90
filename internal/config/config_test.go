package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "trade"
	cfg.LogLevel = "loud"
	cfg.Records.DefaultPageSize = 7
	cfg.Server.Port = 0
	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate accepted a broken config")
	}
	for _, want := range []string{"mode", "log_level", "default_page_size", "server: port"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error missing %q:\n%v", want, err)
		}
	}
}

func TestFullModeNeedsBackends(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "full"
	cfg.Redis.Addr = ""
	cfg.S3.Bucket = ""
	cfg.Postgres.PoolMinConns = 20
	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate accepted full mode without backends")
	}
	for _, want := range []string{"redis: addr", "s3: bucket", "pool_min_conns"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error missing %q:\n%v", want, err)
		}
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
mode = "full"

[records]
source = "postgres"
default_page_size = 25
session_ttl = "10m"

[server]
port = 9000
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TRADEDESK_SERVER_PORT", "9100")
	t.Setenv("TRADEDESK_NOTIFY_EVENTS", "position_closed, error ,")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Mode != "full" || cfg.Records.Source != "postgres" || cfg.Records.DefaultPageSize != 25 {
		t.Errorf("file values not applied: %+v", cfg.Records)
	}
	if cfg.Records.SessionTTL.Duration != 10*time.Minute {
		t.Errorf("session_ttl = %v", cfg.Records.SessionTTL.Duration)
	}
	if cfg.Server.Port != 9100 {
		t.Errorf("env override ignored: port %d", cfg.Server.Port)
	}
	if len(cfg.Notify.Events) != 2 || cfg.Notify.Events[1] != "error" {
		t.Errorf("events = %v", cfg.Notify.Events)
	}
	if cfg.Redis.Addr != "localhost:6379" {
		t.Errorf("default lost: redis addr %q", cfg.Redis.Addr)
	}
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\"): %v", err)
	}
	if cfg.Records.Source != "seed" {
		t.Fatalf("source = %q", cfg.Records.Source)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatal("Load of a missing file succeeded")
	}
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.Password = "pw"
	cfg.Auth.APIKey = "k"
	cfg.Notify.DiscordWebhookURL = "https://discord.example/hook"
	out := RedactedConfig(&cfg)
	if out.Postgres.Password != redacted || out.Auth.APIKey != redacted || out.Notify.DiscordWebhookURL != redacted {
		t.Fatalf("secrets leaked: %+v", out)
	}
	if out.Auth.APIKeyHash != "" {
		t.Fatal("empty field was redacted")
	}
	if cfg.Postgres.Password != "pw" {
		t.Fatal("original mutated")
	}
	out.Server.CORSOrigins[0] = "x"
	if cfg.Server.CORSOrigins[0] == "x" {
		t.Fatal("slices shared with original")
	}
}

func TestExampleMatchesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "config.example.toml"))
	if err != nil {
		t.Fatalf("load example: %v", err)
	}
	def := Defaults()
	if cfg.Records != def.Records || cfg.Desk != def.Desk || cfg.Postgres != def.Postgres || cfg.Redis != def.Redis || cfg.S3 != def.S3 {
		t.Errorf("example diverges from defaults:\n got %+v\nwant %+v", cfg, def)
	}
	if cfg.Server.Port != def.Server.Port || cfg.Server.RateWindow != def.Server.RateWindow {
		t.Errorf("server = %+v, want %+v", cfg.Server, def.Server)
	}
}
