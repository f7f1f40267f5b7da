package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flaky-eval/classifier"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "root_cause_eval_full.jsonl", cfg.Output)
	require.NotNil(t, cfg.IncludePatch)
	assert.True(t, *cfg.IncludePatch)
	assert.Equal(t, classifier.ProviderOpenAI, cfg.Classifier.Provider)
	assert.Equal(t, "gpt-4", cfg.Classifier.Model)
	assert.Equal(t, "none", cfg.Store.Type)
	assert.Equal(t, "info", cfg.Logger.Level)
}

func TestLoadConfigExpandsEnv(t *testing.T) {
	t.Setenv("FLAKY_EVAL_TEST_KEY", "sk-from-env")
	path := writeConfig(t, `
input_dir: ./data
include_patch: false
classifier:
  provider: gemini
  model: gemini-2.0-flash
  api_key: ${FLAKY_EVAL_TEST_KEY}
  timeout: 90s
  default_temperature: 0.2
  temperatures:
    o3: 1
prompt:
  max_patch_bytes: 4096
store:
  type: sqlite
  sqlite:
    path: /tmp/x.db
logger:
  structured:
    enabled: true
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "./data", cfg.InputDir)
	assert.False(t, *cfg.IncludePatch)
	assert.Equal(t, "sk-from-env", cfg.Classifier.APIKey)
	assert.Equal(t, 4096, cfg.Prompt.MaxPatchBytes)
	assert.Equal(t, "./logs/flaky-eval.ndjson", cfg.Logger.Structured.Path)

	cc := cfg.ClassifierSettings(cfg.ResolveAPIKey())
	assert.Equal(t, "gemini", cc.Provider)
	assert.Equal(t, "sk-from-env", cc.APIKey)
	assert.Equal(t, 90*time.Second, cc.Timeout)
	assert.Equal(t, 0.2, cc.Temperatures.For("gemini-2.0-flash"))
	assert.Equal(t, 1.0, cc.Temperatures.For("o3"))
	assert.Equal(t, 1.0, cc.Temperatures.For("gpt-5"), "built-in entries survive")

	sc := cfg.StoreSettings()
	assert.Equal(t, "sqlite", sc.Type)
	assert.Equal(t, "/tmp/x.db", sc.SQLitePath)
	assert.Equal(t, 5*time.Minute, sc.MySQL.ConnMaxLifetime)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "read config")

	_, err = LoadConfig(writeConfig(t, "classifier: [unclosed"))
	assert.ErrorContains(t, err, "parse config")
}

func TestResolveAPIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-openai")
	t.Setenv("GEMINI_API_KEY", "g-key")

	cfg := &Config{}
	cfg.applyDefaults()
	assert.Equal(t, "sk-openai", cfg.ResolveAPIKey())

	cfg.Classifier.Provider = "Gemini"
	assert.Equal(t, "g-key", cfg.ResolveAPIKey())

	cfg.Classifier.APIKey = "explicit"
	assert.Equal(t, "explicit", cfg.ResolveAPIKey())
}

func TestTemperatureOverrideReplacesBuiltin(t *testing.T) {
	cfg := &Config{Classifier: ClassifierConfig{Temperatures: map[string]float64{"gpt-5": 0.7}}}
	cfg.applyDefaults()
	temps := cfg.ClassifierSettings("k").Temperatures
	assert.Equal(t, 0.7, temps.For("gpt-5"))
	assert.Equal(t, 0.0, temps.For("gpt-4"))
}

func TestParseDuration(t *testing.T) {
	assert.Equal(t, 3*time.Second, ParseDuration(" 3s ", time.Minute))
	assert.Equal(t, time.Minute, ParseDuration("", time.Minute))
	assert.Equal(t, time.Minute, ParseDuration("soon", time.Minute))
}
