package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestParseJSON(t *testing.T) {
	path := writeFile(t, "config.json", `{
		"telegram": {"token": "123:abc", "poll_timeout": "15s"},
		"logging": {"level": "debug", "console": true,
			"file": {"enabled": false, "path": ""},
			"telegram": {"enabled": false, "min_level": "warn", "rate_per_sec": 1}},
		"counter": {"style": 2, "quiet_window": "5s", "reply_rate_per_sec": 2},
		"maintenance": {"enabled": true, "flush_spec": "@every 5m"}
	}`)

	cfg, err := NewManager(path).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Telegram.Token != "123:abc" {
		t.Fatalf("token = %q", cfg.Telegram.Token)
	}
	if cfg.Counter.Style != 2 || cfg.Counter.QuietWindow != "5s" {
		t.Fatalf("counter = %+v", cfg.Counter)
	}
	if !cfg.Maintenance.Enabled || cfg.Maintenance.FlushSpec != "@every 5m" {
		t.Fatalf("maintenance = %+v", cfg.Maintenance)
	}
	if cfg.Storage != nil {
		t.Fatalf("storage should be nil when omitted")
	}
}

func TestParseYAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `
telegram:
  token: "123:abc"
  group_log: "-100200300"
logging:
  level: info
  console: true
  file:
    enabled: true
    path: ./bot.log
  telegram:
    enabled: true
    min_level: warn
    rate_per_sec: 1
counter:
  style: 1
  quiet_window: 3s
storage:
  driver: file
  path: ./store
maintenance:
  enabled: false
`)

	cfg, err := NewManager(path).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Telegram.GroupLog != "-100200300" {
		t.Fatalf("group_log = %q", cfg.Telegram.GroupLog)
	}
	if cfg.Storage == nil || cfg.Storage.Driver != "file" {
		t.Fatalf("storage = %+v", cfg.Storage)
	}
	if !cfg.Logging.Telegram.Enabled {
		t.Fatalf("logging.telegram should be enabled")
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	path := writeFile(t, "config.json", `{"telegram": {"token": "x"}, "logging": {}, "counter": {}, "maintenance": {}, "bogus": 1}`)
	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatalf("unknown top-level field must be rejected")
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	path := writeFile(t, "config.json", `{"telegram": {"token": "x"}, "logging": {}, "counter": {}, "maintenance": {}}{"again": true}`)
	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatalf("trailing JSON must be rejected")
	}
}

func TestLoadAndGet(t *testing.T) {
	path := writeFile(t, "config.json", `{"telegram": {"token": "x"}, "logging": {}, "counter": {}, "maintenance": {}}`)
	m := NewManager(path)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if m.Get() != cfg {
		t.Fatalf("Get must return the committed snapshot")
	}
}

func TestParseDurationField(t *testing.T) {
	if d, err := ParseDurationField("x", " 10s "); err != nil || d.Seconds() != 10 {
		t.Fatalf("got (%v, %v)", d, err)
	}
	if d, err := ParseDurationField("x", ""); err != nil || d != 0 {
		t.Fatalf("empty should be zero, got (%v, %v)", d, err)
	}
	if _, err := ParseDurationField("x", "nope"); err == nil {
		t.Fatalf("invalid duration accepted")
	}
	if _, err := ParseDurationField("x", "-1s"); err == nil {
		t.Fatalf("negative duration accepted")
	}
	if d, err := ParseDurationOrDefault("x", "", 3*time.Second); err != nil || d != 3*time.Second {
		t.Fatalf("default not applied: (%v, %v)", d, err)
	}
}
