package classifier

import (
	"context"
	"errors"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"flaky-eval/logger"
)

// OpenAI classifies through the chat completions API.
type OpenAI struct {
	client       openai.Client
	temperatures Temperatures
	log          logger.Logger
}

// NewOpenAI creates an OpenAI-compatible classifier. SDK retries are off;
// a failed call is reported once and the example is skipped.
func NewOpenAI(cfg Config, log logger.Logger) *OpenAI {
	opts := []option.RequestOption{
		option.WithHTTPClient(cfg.httpClient()),
		option.WithMaxRetries(0),
	}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	temps := cfg.Temperatures
	if temps.PerModel == nil {
		temps = DefaultTemperatures()
	}
	return &OpenAI{
		client:       openai.NewClient(opts...),
		temperatures: temps,
		log:          log,
	}
}

func (c *OpenAI) Classify(ctx context.Context, prompt, model string) Prediction {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Temperature: openai.Float(c.temperatures.For(model)),
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return finish(c.log, ProviderOpenAI, model, "", err)
	}
	if len(resp.Choices) == 0 {
		return finish(c.log, ProviderOpenAI, model, "", errors.New("response has no choices"))
	}
	return finish(c.log, ProviderOpenAI, model, resp.Choices[0].Message.Content, nil)
}
