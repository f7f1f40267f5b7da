package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"flaky-eval/classifier"
	"flaky-eval/store"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration for flaky-eval.
type Config struct {
	InputDir     string           `yaml:"input_dir"`
	Output       string           `yaml:"output"`
	IncludePatch *bool            `yaml:"include_patch"`
	Classifier   ClassifierConfig `yaml:"classifier"`
	Taxonomy     TaxonomyConfig   `yaml:"taxonomy"`
	Prompt       PromptConfig     `yaml:"prompt"`
	Store        StoreConfig      `yaml:"store"`
	Logger       LoggerConfig     `yaml:"logger"`
}

type ClassifierConfig struct {
	Provider           string             `yaml:"provider"`
	Model              string             `yaml:"model"`
	APIKey             string             `yaml:"api_key"`
	BaseURL            string             `yaml:"base_url"`
	Timeout            string             `yaml:"timeout"`
	DefaultTemperature float64            `yaml:"default_temperature"`
	Temperatures       map[string]float64 `yaml:"temperatures"`
}

type TaxonomyConfig struct {
	Path string `yaml:"path"`
}

type PromptConfig struct {
	MaxPatchBytes int `yaml:"max_patch_bytes"`
}

type StoreConfig struct {
	Type   string       `yaml:"type"`
	SQLite SQLiteCfg    `yaml:"sqlite"`
	MySQL  MySQLCfg     `yaml:"mysql"`
	JSON   JSONStoreCfg `yaml:"json"`
}

type SQLiteCfg struct {
	Path string `yaml:"path"`
}

type MySQLCfg struct {
	DSN             string `yaml:"dsn"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime string `yaml:"conn_max_lifetime"`
}

type JSONStoreCfg struct {
	Path          string `yaml:"path"`
	FlushInterval string `yaml:"flush_interval"`
}

type LoggerConfig struct {
	Level      string        `yaml:"level"`
	Console    ConsoleLogCfg `yaml:"console"`
	Structured StructLogCfg  `yaml:"structured"`
}

type ConsoleLogCfg struct {
	Color bool `yaml:"color"`
}

type StructLogCfg struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LoadConfig reads and parses the config file, expanding environment variables.
// An empty path yields the defaults. Variables from a .env file in the working
// directory are loaded first; existing environment values win.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}

		// Expand ${ENV_VAR} references
		expanded := os.Expand(string(data), func(key string) string {
			return os.Getenv(key)
		})

		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Output == "" {
		c.Output = "root_cause_eval_full.jsonl"
	}
	if c.IncludePatch == nil {
		on := true
		c.IncludePatch = &on
	}
	if c.Classifier.Provider == "" {
		c.Classifier.Provider = classifier.ProviderOpenAI
	}
	if c.Classifier.Model == "" {
		c.Classifier.Model = classifier.DefaultModel
	}
	if c.Classifier.Timeout == "" {
		c.Classifier.Timeout = "60s"
	}
	if c.Store.Type == "" {
		c.Store.Type = "none"
	}
	if c.Store.SQLite.Path == "" {
		c.Store.SQLite.Path = "./data/flaky-eval.db"
	}
	if c.Store.JSON.Path == "" {
		c.Store.JSON.Path = "./data/flaky-eval.json"
	}
	if c.Logger.Level == "" {
		c.Logger.Level = "info"
	}
	if c.Logger.Structured.Enabled && c.Logger.Structured.Path == "" {
		c.Logger.Structured.Path = "./logs/flaky-eval.ndjson"
	}
}

// ResolveAPIKey returns the configured key, falling back to the provider's
// conventional environment variable.
func (c *Config) ResolveAPIKey() string {
	if c.Classifier.APIKey != "" {
		return c.Classifier.APIKey
	}
	switch strings.ToLower(c.Classifier.Provider) {
	case classifier.ProviderGemini:
		return os.Getenv("GEMINI_API_KEY")
	default:
		return os.Getenv("OPENAI_API_KEY")
	}
}

// ClassifierSettings converts the classifier section. Configured per-model
// temperatures are layered over the built-in table.
func (c *Config) ClassifierSettings(apiKey string) classifier.Config {
	temps := classifier.DefaultTemperatures()
	temps.Default = c.Classifier.DefaultTemperature
	for model, t := range c.Classifier.Temperatures {
		temps.PerModel[model] = t
	}
	return classifier.Config{
		Provider:     c.Classifier.Provider,
		APIKey:       apiKey,
		BaseURL:      c.Classifier.BaseURL,
		Timeout:      ParseDuration(c.Classifier.Timeout, classifier.DefaultTimeout),
		Temperatures: temps,
	}
}

// StoreSettings converts the store section.
func (c *Config) StoreSettings() store.Config {
	return store.Config{
		Type:          c.Store.Type,
		JSONPath:      c.Store.JSON.Path,
		FlushInterval: ParseDuration(c.Store.JSON.FlushInterval, 0),
		SQLitePath:    c.Store.SQLite.Path,
		MySQL: store.MySQLConfig{
			DSN:             c.Store.MySQL.DSN,
			MaxOpenConns:    c.Store.MySQL.MaxOpenConns,
			MaxIdleConns:    c.Store.MySQL.MaxIdleConns,
			ConnMaxLifetime: ParseDuration(c.Store.MySQL.ConnMaxLifetime, 5*time.Minute),
		},
	}
}

// ParseDuration parses a duration string, returning a fallback on error.
func ParseDuration(s string, fallback time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
