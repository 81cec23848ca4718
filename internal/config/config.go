package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Store       StoreConfig       `yaml:"store"`
	NATS        NATSConfig        `yaml:"nats"`
	Web         WebConfig         `yaml:"web"`
	Monitor     MonitorConfig     `yaml:"monitor"`
	Swarm       SwarmConfig       `yaml:"swarm"`
	Backend     BackendConfig     `yaml:"backend"`
	Telegram    TelegramConfig    `yaml:"telegram"`
	Vault       VaultConfig       `yaml:"vault"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

type NATSConfig struct {
	Port    int    `yaml:"port"`
	DataDir string `yaml:"data_dir"`
}

type WebConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Auth    string `yaml:"auth"`
}

// MonitorConfig holds the evaluation interval plus the default completion
// settings seeded into every monitored task unless overridden per task.
type MonitorConfig struct {
	Interval             time.Duration `yaml:"interval"`
	AutoComplete         bool          `yaml:"auto_complete"`
	AutoCompleteTimeout  time.Duration `yaml:"auto_complete_timeout"`
	RequiresReview       bool          `yaml:"requires_review"`
	RequiresVerification bool          `yaml:"requires_verification"`
	MaxRetries           int           `yaml:"max_retries"`
	ExecuteSubtasks      bool          `yaml:"execute_subtasks"`
}

type SwarmConfig struct {
	MessageRetention int    `yaml:"message_retention"`
	Workspace        string `yaml:"workspace"`
}

type BackendConfig struct {
	Kind string `yaml:"kind"` // "local" or "sandbox"
}

type TelegramConfig struct {
	Token  string `yaml:"token"`
	ChatID int64  `yaml:"chat_id"`
}

type VaultConfig struct {
	Passphrase string `yaml:"passphrase"`
}

type MaintenanceConfig struct {
	Schedule          string        `yaml:"schedule"` // cron expression
	IdleAgentTTL      time.Duration `yaml:"idle_agent_ttl"`
	ActivityRetention time.Duration `yaml:"activity_retention"`
}

func defaults() Config {
	return Config{
		Store: StoreConfig{
			Path: "data/apiary.db",
		},
		NATS: NATSConfig{
			Port:    4222,
			DataDir: "data/nats",
		},
		Web: WebConfig{
			Enabled: true,
			Port:    8080,
		},
		Monitor: MonitorConfig{
			Interval:            5 * time.Second,
			AutoComplete:        true,
			AutoCompleteTimeout: 5 * time.Minute,
			RequiresReview:      true,
			MaxRetries:          3,
			ExecuteSubtasks:     true,
		},
		Swarm: SwarmConfig{
			MessageRetention: 100,
			Workspace:        "workspace",
		},
		Backend: BackendConfig{
			Kind: "local",
		},
		Maintenance: MaintenanceConfig{
			Schedule:          "*/10 * * * *",
			IdleAgentTTL:      30 * time.Minute,
			ActivityRetention: 7 * 24 * time.Hour,
		},
	}
}

func Load() (*Config, error) {
	cfg := defaults()

	path := os.Getenv("APIARY_CONFIG")
	if path == "" {
		path = "config/apiary.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// Config file not found, use defaults + env
	} else {
		// Expand environment variables in YAML
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	applyEnv(&cfg)

	return &cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("APIARY_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("APIARY_NATS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.NATS.Port = port
		}
	}
	if v := os.Getenv("APIARY_WEB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Web.Port = port
		}
	}
	if v := os.Getenv("APIARY_WEB_AUTH"); v != "" {
		cfg.Web.Auth = v
	}
	if v := os.Getenv("APIARY_TELEGRAM_TOKEN"); v != "" {
		cfg.Telegram.Token = v
	}
	if v := os.Getenv("APIARY_TELEGRAM_CHAT_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Telegram.ChatID = id
		}
	}
	if v := os.Getenv("APIARY_VAULT_PASSPHRASE"); v != "" {
		cfg.Vault.Passphrase = v
	}
	if v := os.Getenv("APIARY_BACKEND"); v != "" {
		cfg.Backend.Kind = v
	}
	if v := os.Getenv("APIARY_WORKSPACE"); v != "" {
		cfg.Swarm.Workspace = v
	}
}
