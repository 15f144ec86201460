package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg != Default() {
		t.Errorf("cfg = %+v, want defaults", cfg)
	}
	if cfg.Addr != ":8080" || cfg.TimeZone != "UTC" {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if cfg.SchedulePollInterval != time.Minute || cfg.ReminderPollInterval != 30*time.Second {
		t.Errorf("unexpected poll defaults %+v", cfg)
	}
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
addr: ":9090"
db_path: /tmp/flow.db
time_zone: Europe/Istanbul
debug: true
redis_addr: localhost:6379
redis_topic: flow:events
schedule_poll_interval: 10s
reminder_poll_interval: 5s
default_reminder_lead: 15m
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":9090" || cfg.DBPath != "/tmp/flow.db" || !cfg.Debug {
		t.Errorf("unexpected config %+v", cfg)
	}
	if cfg.TimeZone != "Europe/Istanbul" {
		t.Errorf("zone = %q", cfg.TimeZone)
	}
	if cfg.RedisAddr != "localhost:6379" || cfg.RedisTopic != "flow:events" {
		t.Errorf("redis = %q %q", cfg.RedisAddr, cfg.RedisTopic)
	}
	if cfg.SchedulePollInterval != 10*time.Second || cfg.ReminderPollInterval != 5*time.Second {
		t.Errorf("intervals = %v %v", cfg.SchedulePollInterval, cfg.ReminderPollInterval)
	}
	if cfg.DefaultReminderLead != 15*time.Minute {
		t.Errorf("lead = %v", cfg.DefaultReminderLead)
	}
	// Untouched fields keep their defaults.
	if cfg.MinReminderLead != time.Minute || cfg.DefaultScheduleDuration != time.Hour {
		t.Errorf("defaults lost: %+v", cfg)
	}
}

func TestLoadInvalidDuration(t *testing.T) {
	path := writeConfig(t, "schedule_poll_interval: banana\n")
	if _, err := Load(path); err == nil {
		t.Error("expected error for invalid duration")
	}
}

func TestLoadNonPositiveDuration(t *testing.T) {
	path := writeConfig(t, "reminder_poll_interval: -5s\n")
	if _, err := Load(path); err == nil {
		t.Error("expected error for negative duration")
	}
}

func TestLoadUnknownTimeZone(t *testing.T) {
	path := writeConfig(t, "time_zone: Mars/Olympus\n")
	if _, err := Load(path); err == nil {
		t.Error("expected error for unknown zone")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestZoneFallsBackToUTC(t *testing.T) {
	c := Config{TimeZone: "Nowhere/Invalid"}
	if got := c.Zone(); got != time.UTC {
		t.Errorf("Zone() = %v, want UTC", got)
	}
}
