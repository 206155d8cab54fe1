package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

// Config is loaded once at startup and handed to components by value.
type Config struct {
	Database  Database  `yaml:"database"`
	Learning  Learning  `yaml:"learning"`
	AI        AI        `yaml:"ai"`
	TaskStore TaskStore `yaml:"task_store"`
	Server    Server    `yaml:"server"`
	Logging   Logging   `yaml:"logging"`
}

type Database struct {
	Path string `yaml:"path"`
}

type Learning struct {
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
	HistoryDays         int     `yaml:"history_days"`
	TrendWindowDays     int     `yaml:"trend_window_days"`
}

type AI struct {
	Provider       string `yaml:"provider"`
	Model          string `yaml:"model"`
	OllamaURL      string `yaml:"ollama_url"`
	OpenAIModel    string `yaml:"openai_model"`
	APIKeyEnv      string `yaml:"api_key_env"`
	MaxTokens      int    `yaml:"max_tokens"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout bounds a single suggestion request.
func (a AI) Timeout() time.Duration {
	return time.Duration(a.TimeoutSeconds) * time.Second
}

// APIKey returns the OpenAI key from the configured environment variable.
func (a AI) APIKey() string {
	if a.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(a.APIKeyEnv)
}

type TaskStore struct {
	Provider          string  `yaml:"provider"`
	TokenEnv          string  `yaml:"token_env"`
	DatabaseID        string  `yaml:"database_id"`
	NotionVersion     string  `yaml:"notion_version"`
	BaseURL           string  `yaml:"base_url"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	TimeoutSeconds    int     `yaml:"timeout_seconds"`
}

// Token returns the task store secret from the configured environment variable.
func (t TaskStore) Token() string {
	if t.TokenEnv == "" {
		return ""
	}
	return os.Getenv(t.TokenEnv)
}

// Enabled reports whether a task store is configured with credentials.
func (t TaskStore) Enabled() bool {
	return strings.ToLower(t.Provider) == "notion" && t.DatabaseID != "" && t.Token() != ""
}

type Server struct {
	Host        string   `yaml:"host"`
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
}

type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ConfigDir returns the XDG config directory for chronos.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "chronos")
}

// DataDir returns the XDG data directory for chronos.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "chronos")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/chronos/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'chronos init' to create a default config",
		xdgConfig,
	)
}

// Load reads, parses and validates a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg, err := parse(data)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg, err := parse(DefaultConfigYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded default config: %v", err))
	}
	return cfg
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Learning: Learning{
			ConfidenceThreshold: 0.6,
			HistoryDays:         30,
			TrendWindowDays:     30,
		},
		AI: AI{
			Provider:       "ollama",
			Model:          "llama3.2:3b",
			OllamaURL:      "http://localhost:11434",
			OpenAIModel:    "gpt-4o-mini",
			APIKeyEnv:      "OPENAI_API_KEY",
			MaxTokens:      1024,
			TimeoutSeconds: 30,
		},
		TaskStore: TaskStore{
			Provider:          "notion",
			TokenEnv:          "NOTION_TOKEN",
			NotionVersion:     "2022-06-28",
			BaseURL:           "https://api.notion.com/v1",
			RequestsPerSecond: 3,
			TimeoutSeconds:    15,
		},
		Server:  Server{Host: "127.0.0.1", Port: 8000},
		Logging: Logging{Level: "info", Format: "console"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// Validate checks value ranges and provider names.
func (c *Config) Validate() error {
	if c.Learning.ConfidenceThreshold < 0 || c.Learning.ConfidenceThreshold > 1 {
		return fmt.Errorf("learning.confidence_threshold must be in [0,1], got %v", c.Learning.ConfidenceThreshold)
	}
	if c.Learning.HistoryDays <= 0 {
		return fmt.Errorf("learning.history_days must be positive")
	}
	if c.Learning.TrendWindowDays <= 0 {
		return fmt.Errorf("learning.trend_window_days must be positive")
	}

	switch strings.ToLower(c.AI.Provider) {
	case "ollama", "openai", "none":
	default:
		return fmt.Errorf("ai.provider must be one of ollama, openai, none; got %q", c.AI.Provider)
	}
	if c.AI.TimeoutSeconds <= 0 {
		return fmt.Errorf("ai.timeout_seconds must be positive")
	}

	switch strings.ToLower(c.TaskStore.Provider) {
	case "notion", "none":
	default:
		return fmt.Errorf("task_store.provider must be one of notion, none; got %q", c.TaskStore.Provider)
	}
	if c.TaskStore.TimeoutSeconds <= 0 {
		return fmt.Errorf("task_store.timeout_seconds must be positive")
	}
	if c.TaskStore.RequestsPerSecond <= 0 {
		return fmt.Errorf("task_store.requests_per_second must be positive")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	return nil
}

// GetDatabasePath returns the effective database path from config or XDG default.
func (c *Config) GetDatabasePath() string {
	if c.Database.Path != "" {
		return c.Database.Path
	}
	return filepath.Join(DataDir(), "chronos.db")
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
