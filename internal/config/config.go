package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the client configuration, loaded from a YAML file with
// environment-variable fallbacks for the connection settings.
type Config struct {
	Authority struct {
		BaseURL    string `yaml:"base_url"`
		TimeoutSec int    `yaml:"timeout_sec"`
	} `yaml:"authority"`

	Reconcile struct {
		// Source selects the row-change transport: "jetstream", "postgres"
		// or "websocket".
		Source string `yaml:"source"`

		NATS struct {
			URL        string `yaml:"url"`
			StreamName string `yaml:"stream_name"`
		} `yaml:"nats"`

		Postgres struct {
			DatabaseURL   string `yaml:"database_url"`
			NotifyChannel string `yaml:"notify_channel"`
		} `yaml:"postgres"`

		Websocket struct {
			GatewayURL string `yaml:"gateway_url"`
		} `yaml:"websocket"`
	} `yaml:"reconcile"`

	Engine struct {
		ClockSyncIntervalSec int `yaml:"clock_sync_interval_sec"`
		GraceMs              int `yaml:"grace_ms"`
		WarmupMs             int `yaml:"warmup_ms"`
	} `yaml:"engine"`

	StateAPI struct {
		Enabled bool   `yaml:"enabled"`
		Addr    string `yaml:"addr"`
	} `yaml:"state_api"`
}

// Load reads the config file at path and applies env fallbacks. A missing
// file yields the defaults.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Authority.BaseURL == "" {
		c.Authority.BaseURL = getEnv("WORDRUSH_AUTHORITY_URL", "http://localhost:8080")
	}
	if c.Authority.TimeoutSec == 0 {
		c.Authority.TimeoutSec = getEnvAsInt("WORDRUSH_AUTHORITY_TIMEOUT_SEC", 30)
	}
	if c.Reconcile.Source == "" {
		c.Reconcile.Source = getEnv("WORDRUSH_RECONCILE_SOURCE", "jetstream")
	}
	if c.Reconcile.NATS.URL == "" {
		c.Reconcile.NATS.URL = getEnv("NATS_URL", "nats://localhost:4222")
	}
	if c.Reconcile.NATS.StreamName == "" {
		c.Reconcile.NATS.StreamName = "WORDRUSH_EVENTS"
	}
	if c.Reconcile.Postgres.DatabaseURL == "" {
		c.Reconcile.Postgres.DatabaseURL = getEnv("DATABASE_URL", "")
	}
	if c.Reconcile.Postgres.NotifyChannel == "" {
		c.Reconcile.Postgres.NotifyChannel = "wordrush_row_events"
	}
	if c.Reconcile.Websocket.GatewayURL == "" {
		c.Reconcile.Websocket.GatewayURL = getEnv("WORDRUSH_GATEWAY_URL", "ws://localhost:8090/ws/rooms")
	}
	if c.Engine.ClockSyncIntervalSec == 0 {
		c.Engine.ClockSyncIntervalSec = 30
	}
	if c.Engine.GraceMs == 0 {
		c.Engine.GraceMs = 400
	}
	if c.Engine.WarmupMs == 0 {
		c.Engine.WarmupMs = 2000
	}
	if c.StateAPI.Addr == "" {
		c.StateAPI.Addr = getEnv("WORDRUSH_STATE_ADDR", ":8091")
	}
}

// Grace returns the input-gate grace period.
func (c *Config) Grace() time.Duration {
	return time.Duration(c.Engine.GraceMs) * time.Millisecond
}

// Warmup returns the turn-timer warm-up window.
func (c *Config) Warmup() time.Duration {
	return time.Duration(c.Engine.WarmupMs) * time.Millisecond
}

// ClockSyncInterval returns the clock sampling interval.
func (c *Config) ClockSyncInterval() time.Duration {
	return time.Duration(c.Engine.ClockSyncIntervalSec) * time.Second
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
