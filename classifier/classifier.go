// Package classifier turns a prompt into a predicted root cause category by
// calling a hosted chat model.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"flaky-eval/logger"
)

var (
	// ErrEmptyResponse is reported when the model answers with only whitespace.
	ErrEmptyResponse = errors.New("empty model response")
	// ErrUnknownProvider is returned by New for an unsupported provider name.
	ErrUnknownProvider = errors.New("unknown classifier provider")
)

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"

	DefaultModel   = "gpt-4"
	DefaultTimeout = 60 * time.Second
)

// Prediction is the outcome of one classification call. Exactly one of
// Label and Err is meaningful.
type Prediction struct {
	Label string
	Err   error
}

// OK reports whether the call produced a usable label.
func (p Prediction) OK() bool { return p.Err == nil }

// Classifier predicts a category for a prompt. Implementations never return
// errors out of band: every failure is carried in the Prediction.
type Classifier interface {
	Classify(ctx context.Context, prompt, model string) Prediction
}

// Temperatures selects the sampling temperature per model identifier.
type Temperatures struct {
	Default  float64
	PerModel map[string]float64
}

// DefaultTemperatures requests deterministic output from every model except
// gpt-5, which only accepts its default sampling temperature.
func DefaultTemperatures() Temperatures {
	return Temperatures{Default: 0, PerModel: map[string]float64{"gpt-5": 1}}
}

// For returns the temperature to request for model.
func (t Temperatures) For(model string) float64 {
	if v, ok := t.PerModel[model]; ok {
		return v
	}
	return t.Default
}

// Config configures a provider client. APIKey is passed in explicitly; the
// clients never consult the environment.
type Config struct {
	Provider     string
	APIKey       string
	BaseURL      string
	Timeout      time.Duration
	Temperatures Temperatures
	HTTPClient   *http.Client
}

func (c Config) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

// New builds the classifier for cfg.Provider. An empty provider means OpenAI.
func New(ctx context.Context, cfg Config, log logger.Logger) (Classifier, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", ProviderOpenAI:
		return NewOpenAI(cfg, log), nil
	case ProviderGemini:
		return NewGemini(ctx, cfg, log)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
}

// finish normalizes a raw model answer into a Prediction and reports
// failures on the diagnostic log.
func finish(log logger.Logger, provider, model, raw string, err error) Prediction {
	if err == nil {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			err = ErrEmptyResponse
		}
	}
	if err != nil {
		log.Error("classifier.failed",
			logger.String("provider", provider),
			logger.String("model", model),
			logger.Err(err),
		)
		return Prediction{Err: err}
	}
	return Prediction{Label: raw}
}
