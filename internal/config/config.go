// Package config loads the service configuration from a YAML file and
// applies defaults for everything the file omits.
package config

import (
	"fmt"
	"os"
	"time"

	yaml "go.yaml.in/yaml/v3"
)

// file is the raw YAML shape. All durations are Go duration strings
// (e.g. "30s", "1m", "1h").
type file struct {
	Addr      string `yaml:"addr"`
	DBPath    string `yaml:"db_path"`
	TimeZone  string `yaml:"time_zone"`
	Debug     bool   `yaml:"debug"`
	RedisAddr string `yaml:"redis_addr"`
	RedisTopic string `yaml:"redis_topic"`

	SchedulePollInterval    string `yaml:"schedule_poll_interval"`
	ReminderPollInterval    string `yaml:"reminder_poll_interval"`
	ReminderLookAhead       string `yaml:"reminder_look_ahead"`
	DefaultReminderLead     string `yaml:"default_reminder_lead"`
	MinReminderLead         string `yaml:"min_reminder_lead"`
	DefaultScheduleDuration string `yaml:"default_schedule_duration"`
}

type Config struct {
	Addr       string
	DBPath     string
	TimeZone   string
	Debug      bool
	RedisAddr  string
	RedisTopic string

	SchedulePollInterval    time.Duration
	ReminderPollInterval    time.Duration
	ReminderLookAhead       time.Duration
	DefaultReminderLead     time.Duration
	MinReminderLead         time.Duration
	DefaultScheduleDuration time.Duration
}

func Default() Config {
	return Config{
		Addr:                    ":8080",
		DBPath:                  "timeflow.db",
		TimeZone:                "UTC",
		RedisTopic:              "timeflow:notifications",
		SchedulePollInterval:    time.Minute,
		ReminderPollInterval:    30 * time.Second,
		ReminderLookAhead:       time.Minute,
		DefaultReminderLead:     30 * time.Minute,
		MinReminderLead:         time.Minute,
		DefaultScheduleDuration: time.Hour,
	}
}

// Load reads path and merges it over the defaults. An empty path returns
// the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	if f.Addr != "" {
		cfg.Addr = f.Addr
	}
	if f.DBPath != "" {
		cfg.DBPath = f.DBPath
	}
	if f.TimeZone != "" {
		if _, err := time.LoadLocation(f.TimeZone); err != nil {
			return Config{}, fmt.Errorf("time_zone: unknown zone %q", f.TimeZone)
		}
		cfg.TimeZone = f.TimeZone
	}
	cfg.Debug = f.Debug
	if f.RedisAddr != "" {
		cfg.RedisAddr = f.RedisAddr
	}
	if f.RedisTopic != "" {
		cfg.RedisTopic = f.RedisTopic
	}

	for _, d := range []struct {
		path string
		raw  string
		dst  *time.Duration
	}{
		{"schedule_poll_interval", f.SchedulePollInterval, &cfg.SchedulePollInterval},
		{"reminder_poll_interval", f.ReminderPollInterval, &cfg.ReminderPollInterval},
		{"reminder_look_ahead", f.ReminderLookAhead, &cfg.ReminderLookAhead},
		{"default_reminder_lead", f.DefaultReminderLead, &cfg.DefaultReminderLead},
		{"min_reminder_lead", f.MinReminderLead, &cfg.MinReminderLead},
		{"default_schedule_duration", f.DefaultScheduleDuration, &cfg.DefaultScheduleDuration},
	} {
		v, err := parseDurationOrDefault(d.path, d.raw, *d.dst)
		if err != nil {
			return Config{}, err
		}
		*d.dst = v
	}
	return cfg, nil
}

// Zone resolves the configured reference zone.
func (c Config) Zone() *time.Location {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func parseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s: duration must be > 0", path)
	}
	return d, nil
}
