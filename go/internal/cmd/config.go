package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	storeMemory   = "memory"
	storePostgres = "postgres"

	relayPoll   = "poll"
	relayListen = "listen"
)

// Config is the server configuration. Values come from defaults, then the
// optional YAML file named by CONFIG_FILE, then environment variables.
type Config struct {
	Server struct {
		Port            string        `yaml:"port"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Store struct {
		Driver string `yaml:"driver"` // memory or postgres
	} `yaml:"store"`

	Engine struct {
		LateGrace         time.Duration `yaml:"late_grace"`
		RecentPicksWindow int           `yaml:"recent_picks_window"`
		MaxCommitAttempts int           `yaml:"max_commit_attempts"`
		AutoPick          string        `yaml:"auto_pick"` // best_available or random
	} `yaml:"engine"`

	Roster struct {
		PlayersFile string `yaml:"players_file"`
	} `yaml:"roster"`

	Orchestrator struct {
		Enabled    bool          `yaml:"enabled"`
		BatchSize  int           `yaml:"batch_size"`
		NumWorkers int           `yaml:"num_workers"`
		IdlePoll   time.Duration `yaml:"idle_poll"`
	} `yaml:"orchestrator"`

	Outbox struct {
		Enabled      bool          `yaml:"enabled"`
		Mode         string        `yaml:"mode"` // poll or listen
		PollInterval time.Duration `yaml:"poll_interval"`
		BatchSize    int           `yaml:"batch_size"`
	} `yaml:"outbox"`

	NATS struct {
		URL string `yaml:"url"` // empty logs events instead of publishing
	} `yaml:"nats"`

	Gateway struct {
		JWTSecret string `yaml:"jwt_secret"`
	} `yaml:"gateway"`
}

func defaultConfig() *Config {
	cfg := &Config{}
	cfg.Server.Port = "8080"
	cfg.Server.ShutdownTimeout = 10 * time.Second
	cfg.Store.Driver = storeMemory
	cfg.Engine.RecentPicksWindow = 5
	cfg.Engine.MaxCommitAttempts = 3
	cfg.Engine.AutoPick = "best_available"
	cfg.Orchestrator.Enabled = true
	cfg.Orchestrator.BatchSize = 100
	cfg.Orchestrator.NumWorkers = 10
	cfg.Orchestrator.IdlePoll = 5 * time.Second
	cfg.Outbox.Enabled = true
	cfg.Outbox.Mode = relayPoll
	cfg.Outbox.PollInterval = time.Second
	cfg.Outbox.BatchSize = 100
	return cfg
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

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// loadConfig builds the configuration. path may be empty.
func loadConfig(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Server.Port = getEnv("PORT", c.Server.Port)
	c.Server.ShutdownTimeout = getEnvAsDuration("SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)
	c.Store.Driver = strings.ToLower(getEnv("DRAFT_STORE", c.Store.Driver))
	c.Engine.LateGrace = getEnvAsDuration("DRAFT_LATE_GRACE", c.Engine.LateGrace)
	c.Engine.RecentPicksWindow = getEnvAsInt("DRAFT_RECENT_PICKS", c.Engine.RecentPicksWindow)
	c.Engine.MaxCommitAttempts = getEnvAsInt("DRAFT_MAX_COMMIT_ATTEMPTS", c.Engine.MaxCommitAttempts)
	c.Engine.AutoPick = getEnv("DRAFT_AUTO_PICK", c.Engine.AutoPick)
	c.Roster.PlayersFile = getEnv("PLAYERS_FILE", c.Roster.PlayersFile)
	c.Orchestrator.Enabled = getEnvAsBool("ORCHESTRATOR_ENABLED", c.Orchestrator.Enabled)
	c.Orchestrator.BatchSize = getEnvAsInt("ORCHESTRATOR_BATCH_SIZE", c.Orchestrator.BatchSize)
	c.Orchestrator.NumWorkers = getEnvAsInt("ORCHESTRATOR_WORKERS", c.Orchestrator.NumWorkers)
	c.Orchestrator.IdlePoll = getEnvAsDuration("ORCHESTRATOR_IDLE_POLL", c.Orchestrator.IdlePoll)
	c.Outbox.Enabled = getEnvAsBool("OUTBOX_ENABLED", c.Outbox.Enabled)
	c.Outbox.Mode = strings.ToLower(getEnv("OUTBOX_MODE", c.Outbox.Mode))
	c.Outbox.PollInterval = getEnvAsDuration("OUTBOX_POLL_INTERVAL", c.Outbox.PollInterval)
	c.Outbox.BatchSize = getEnvAsInt("OUTBOX_BATCH_SIZE", c.Outbox.BatchSize)
	c.NATS.URL = getEnv("NATS_URL", c.NATS.URL)
	c.Gateway.JWTSecret = getEnv("JWT_SECRET", c.Gateway.JWTSecret)
}

func (c *Config) validate() error {
	switch c.Store.Driver {
	case storeMemory, storePostgres:
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	switch c.Outbox.Mode {
	case relayPoll, relayListen:
	default:
		return fmt.Errorf("unknown outbox mode %q", c.Outbox.Mode)
	}
	if c.Outbox.Mode == relayListen && c.Store.Driver != storePostgres {
		return fmt.Errorf("outbox mode %q requires the postgres store", relayListen)
	}
	switch c.Engine.AutoPick {
	case "best_available", "random":
	default:
		return fmt.Errorf("unknown auto pick strategy %q", c.Engine.AutoPick)
	}
	return nil
}
