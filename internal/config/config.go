package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Config represents configuration data for the chart service.
type Config struct {
	LogLevel    string       `yaml:"log_level"`
	LogFormat   string       `yaml:"log_format"`
	AlertIndex  string       `yaml:"alert_index"`
	DataSources []DataSource `yaml:"data_sources"`
	Cache       Cache        `yaml:"cache"`
	Watch       Watch        `yaml:"watch"`
	Probe       Probe        `yaml:"probe"`
	Stream      Stream       `yaml:"stream"`
}

// DataSource defines an alerting backend cluster.
type DataSource struct {
	ID             string `yaml:"id"`
	Name           string `yaml:"name"`
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	Username       string `yaml:"username"`
	Password       string `yaml:"password"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	Default        bool   `yaml:"default"`
	Enabled        bool   `yaml:"enabled"`
}

// Cache sizes the alert snapshot cache.
type Cache struct {
	Size       int `yaml:"size"`
	TTLSeconds int `yaml:"ttl_seconds"`
}

// Watch lists monitors whose alerts are refreshed in the background.
type Watch struct {
	Schedule      string         `yaml:"schedule"`
	WindowMinutes int            `yaml:"window_minutes"`
	Workers       int            `yaml:"workers"`
	Monitors      []WatchMonitor `yaml:"monitors"`
}

// WatchMonitor identifies one monitor to keep warm.
type WatchMonitor struct {
	MonitorID  string `yaml:"monitor_id"`
	DataSource string `yaml:"data_source"`
}

// Probe configures data source connectivity probing.
type Probe struct {
	Enabled         bool `yaml:"enabled"`
	IntervalSeconds int  `yaml:"interval_seconds"`
	HistorySize     int  `yaml:"history_size"`
}

// Stream configures websocket chart pushes.
type Stream struct {
	PushIntervalSeconds int `yaml:"push_interval_seconds"`
}

// DefaultConfig returns sensible defaults in case no configuration file is provided.
func DefaultConfig() Config {
	return Config{
		LogLevel:   "info",
		LogFormat:  "json",
		AlertIndex: ".opendistro-alerting-alert*",
		DataSources: []DataSource{
			{
				ID:             "local",
				Name:           "Local cluster",
				BaseURL:        "http://localhost:9200",
				TimeoutSeconds: 15,
				Default:        true,
				Enabled:        true,
			},
		},
		Cache: Cache{
			Size:       256,
			TTLSeconds: 60,
		},
		Watch: Watch{
			Schedule:      "@every 1m",
			WindowMinutes: 60,
			Workers:       4,
		},
		Probe: Probe{
			Enabled:         true,
			IntervalSeconds: 60,
			HistorySize:     1440,
		},
		Stream: Stream{
			PushIntervalSeconds: 60,
		},
	}
}

// Load reads configuration from yaml file. Missing files fall back to defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}

	content, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(content)
}

// Parse decodes yaml content on top of the defaults and validates it.
func Parse(content []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	defaults := DefaultConfig()
	if cfg.LogLevel == "" {
		cfg.LogLevel = defaults.LogLevel
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = defaults.LogFormat
	}
	if cfg.AlertIndex == "" {
		cfg.AlertIndex = defaults.AlertIndex
	}
	if cfg.Cache.Size <= 0 {
		cfg.Cache.Size = defaults.Cache.Size
	}
	if cfg.Cache.TTLSeconds <= 0 {
		cfg.Cache.TTLSeconds = defaults.Cache.TTLSeconds
	}
	if cfg.Watch.Schedule == "" {
		cfg.Watch.Schedule = defaults.Watch.Schedule
	}
	if cfg.Watch.WindowMinutes <= 0 {
		cfg.Watch.WindowMinutes = defaults.Watch.WindowMinutes
	}
	if cfg.Watch.Workers <= 0 {
		cfg.Watch.Workers = defaults.Watch.Workers
	}
	if cfg.Probe.IntervalSeconds <= 0 {
		cfg.Probe.IntervalSeconds = defaults.Probe.IntervalSeconds
	}
	if cfg.Probe.HistorySize <= 0 {
		cfg.Probe.HistorySize = defaults.Probe.HistorySize
	}
	if cfg.Stream.PushIntervalSeconds <= 0 {
		cfg.Stream.PushIntervalSeconds = defaults.Stream.PushIntervalSeconds
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg *Config) validate() error {
	switch strings.ToLower(cfg.LogFormat) {
	case "json", "console":
	default:
		return fmt.Errorf("log_format must be json or console, got %q", cfg.LogFormat)
	}

	ids := make(map[string]struct{}, len(cfg.DataSources))
	defaults := 0
	for i, ds := range cfg.DataSources {
		if !ds.Enabled {
			continue
		}
		if ds.ID == "" {
			return fmt.Errorf("data source %d is missing id", i)
		}
		if ds.BaseURL == "" {
			return fmt.Errorf("data source %s base_url is required", ds.ID)
		}
		if _, dup := ids[ds.ID]; dup {
			return fmt.Errorf("data source %s is defined twice", ds.ID)
		}
		ids[ds.ID] = struct{}{}
		if ds.Default {
			defaults++
		}
		if ds.TimeoutSeconds <= 0 {
			cfg.DataSources[i].TimeoutSeconds = 15
		}
	}
	if len(ids) == 0 {
		return errors.New("configuration must define at least one enabled data source")
	}
	if defaults > 1 {
		return errors.New("only one data source may be marked default")
	}

	if _, err := cron.ParseStandard(cfg.Watch.Schedule); err != nil {
		return fmt.Errorf("watch schedule %q: %w", cfg.Watch.Schedule, err)
	}
	for i, m := range cfg.Watch.Monitors {
		if m.MonitorID == "" {
			return fmt.Errorf("watch entry %d is missing monitor_id", i)
		}
		if m.DataSource == "" {
			continue
		}
		if _, ok := ids[m.DataSource]; !ok {
			return fmt.Errorf("watch entry %s references unknown data source %s", m.MonitorID, m.DataSource)
		}
	}
	return nil
}
