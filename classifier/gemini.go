package classifier

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"flaky-eval/logger"
)

// Gemini classifies through the Gemini GenerateContent API.
type Gemini struct {
	client       *genai.Client
	temperatures Temperatures
	log          logger.Logger
}

// NewGemini creates a Gemini classifier for the Gemini Developer API.
func NewGemini(ctx context.Context, cfg Config, log logger.Logger) (*Gemini, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini: api key is required")
	}
	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.httpClient(),
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	temps := cfg.Temperatures
	if temps.PerModel == nil {
		temps = DefaultTemperatures()
	}
	return &Gemini{client: client, temperatures: temps, log: log}, nil
}

func (c *Gemini) Classify(ctx context.Context, prompt, model string) Prediction {
	gc := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(c.temperatures.For(model))),
	}
	resp, err := c.client.Models.GenerateContent(ctx, model, genai.Text(prompt), gc)
	if err != nil {
		return finish(c.log, ProviderGemini, model, "", err)
	}
	text, err := candidateText(resp)
	return finish(c.log, ProviderGemini, model, text, err)
}

func candidateText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", errors.New("response has no candidates")
	}
	cand := resp.Candidates[0]
	if cand.Content == nil {
		return "", fmt.Errorf("candidate has no content (finish reason %q)", cand.FinishReason)
	}
	var sb strings.Builder
	for _, part := range cand.Content.Parts {
		if part != nil && !part.Thought {
			sb.WriteString(part.Text)
		}
	}
	return sb.String(), nil
}
