// Package config loads server configuration from a YAML file, A2A_ prefixed
// environment variables and built-in defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/t77yq/a2a-travel/internal/workflow"
)

// Config holds all server configuration
type Config struct {
	App          AppConfig           `mapstructure:"app"`
	Log          LogConfig           `mapstructure:"log"`
	Orchestrator OrchestratorConfig  `mapstructure:"orchestrator"`
	Transport    TransportConfig     `mapstructure:"transport"`
	NATS         NATSConfig          `mapstructure:"nats"`
	History      HistoryConfig       `mapstructure:"history"`
	Travel       TravelConfig        `mapstructure:"travel"`
	Workflow     WorkflowConfig      `mapstructure:"workflow"`
	Monitor      MonitorConfig       `mapstructure:"monitor"`
	Alerts       AlertsConfig        `mapstructure:"alerts"`
	Schedules    []workflow.Schedule `mapstructure:"schedules"`
}

type AppConfig struct {
	Name string `mapstructure:"name"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

type OrchestratorConfig struct {
	// Selection is random, round_robin or least_load
	Selection string `mapstructure:"selection"`
}

type TransportConfig struct {
	// Kind is direct or nats
	Kind string `mapstructure:"kind"`
}

type NATSConfig struct {
	URL            string        `mapstructure:"url"`
	MaxReconnects  int           `mapstructure:"max_reconnects"`
	ReconnectWait  time.Duration `mapstructure:"reconnect_wait"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	ConnectRetries int           `mapstructure:"connect_retries"`
}

type HistoryConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Path      string        `mapstructure:"path"`
	Retention time.Duration `mapstructure:"retention"`
}

type APIConfig struct {
	URL     string        `mapstructure:"url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type CacheConfig struct {
	MaxCost int64         `mapstructure:"max_cost"`
	TTL     time.Duration `mapstructure:"ttl"`
}

type TravelConfig struct {
	FlightAPI APIConfig   `mapstructure:"flight_api"`
	HotelAPI  APIConfig   `mapstructure:"hotel_api"`
	Cache     CacheConfig `mapstructure:"cache"`
}

type WorkflowConfig struct {
	StageTimeout time.Duration `mapstructure:"stage_timeout"`
}

type MonitorConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	Publish  bool          `mapstructure:"publish"`
}

type AlertsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// StuckAfter is how long a task may stay open before it is reported
	StuckAfter time.Duration `mapstructure:"stuck_after"`
	Interval   time.Duration `mapstructure:"interval"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "a2a-travel")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("orchestrator.selection", "random")
	v.SetDefault("transport.kind", "direct")

	v.SetDefault("nats.url", "nats://127.0.0.1:4222")
	v.SetDefault("nats.max_reconnects", 10)
	v.SetDefault("nats.reconnect_wait", 2*time.Second)
	v.SetDefault("nats.connect_timeout", 5*time.Second)
	v.SetDefault("nats.connect_retries", 5)

	v.SetDefault("history.enabled", false)
	v.SetDefault("history.path", "task_history.db")
	v.SetDefault("history.retention", 720*time.Hour)

	for _, api := range []string{"travel.flight_api", "travel.hotel_api"} {
		v.SetDefault(api+".url", "")
		v.SetDefault(api+".api_key", "")
		v.SetDefault(api+".timeout", 10*time.Second)
	}
	v.SetDefault("travel.cache.max_cost", 1<<24)
	v.SetDefault("travel.cache.ttl", 10*time.Minute)

	v.SetDefault("workflow.stage_timeout", 30*time.Second)

	v.SetDefault("monitor.interval", 30*time.Second)
	v.SetDefault("monitor.publish", false)

	v.SetDefault("alerts.enabled", true)
	v.SetDefault("alerts.stuck_after", 5*time.Minute)
	v.SetDefault("alerts.interval", 30*time.Second)
}

// Load reads configuration. With an empty path, config.yaml is searched in the
// working directory and ./config; a missing file leaves the defaults in place.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	v.SetEnvPrefix("A2A")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks enumerated settings
func (c *Config) Validate() error {
	switch c.Transport.Kind {
	case "direct", "nats":
	default:
		return fmt.Errorf("unknown transport kind %q", c.Transport.Kind)
	}
	switch c.Orchestrator.Selection {
	case "random", "round_robin", "least_load":
	default:
		return fmt.Errorf("unknown selection strategy %q", c.Orchestrator.Selection)
	}
	if c.History.Enabled && c.History.Path == "" {
		return errors.New("history.path is required when history is enabled")
	}
	if c.Monitor.Publish && c.Transport.Kind != "nats" {
		return errors.New("monitor.publish requires the nats transport")
	}
	return nil
}
