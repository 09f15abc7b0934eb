package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/spigell/resume-screener/internal/ai"
	"github.com/spigell/resume-screener/internal/logger"
	"github.com/spigell/resume-screener/internal/utils"

	goopenai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const (
	providerName        = "openai"
	defaultModel        = "gpt-4o-mini"
	defaultMaxLogLength = 200
	temperature         = 0.15
)

// Options configure the OpenAI client. BaseURL is meant for compatible
// endpoints and tests.
type Options struct {
	Model        string
	BaseURL      string
	MaxLogLength int
}

// Client talks to the chat completions API in JSON object mode.
type Client struct {
	api       *goopenai.Client
	model     string
	maxLogLen int
	logger    *zap.Logger
}

// New builds a Client. An empty key is reported as ai.ErrMissingCredentials.
func New(apiKey string, opts Options, log *zap.Logger) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, ai.NewError(ai.KindMissingCredentials, providerName, errors.New("openai api key is required"))
	}

	cfg := goopenai.DefaultConfig(apiKey)
	if base := strings.TrimSpace(opts.BaseURL); base != "" {
		cfg.BaseURL = strings.TrimRight(base, "/")
	}

	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = defaultModel
	}

	maxLogLen := opts.MaxLogLength
	if maxLogLen <= 0 {
		maxLogLen = defaultMaxLogLength
	}

	return &Client{
		api:       goopenai.NewClientWithConfig(cfg),
		model:     model,
		maxLogLen: maxLogLen,
		logger:    logger.ForProvider(log, providerName, model),
	}, nil
}

func (c *Client) Provider() string { return providerName }

func (c *Client) Model() string { return c.model }

// Generate implements ai.Gateway.
func (c *Client) Generate(ctx context.Context, prompt ai.Prompt) (*ai.Response, error) {
	c.logger.Debug("openai chat completion request",
		zap.Int("prompt_length", utf8.RuneCountInString(prompt.User)),
		zap.String("prompt_preview", utils.TruncateForLog(prompt.User, c.maxLogLen)),
	)

	resp, err := c.api.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: temperature,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleSystem, Content: prompt.System},
			{Role: goopenai.ChatMessageRoleUser, Content: prompt.User},
		},
		ResponseFormat: &goopenai.ChatCompletionResponseFormat{
			Type: goopenai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, classify(err)
	}

	if len(resp.Choices) == 0 {
		return nil, ai.NewError(ai.KindProvider, providerName, errors.New("openai returned no choices"))
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return nil, ai.NewError(ai.KindProvider, providerName,
			fmt.Errorf("openai returned empty response (finish reason %q)", resp.Choices[0].FinishReason))
	}

	c.logger.Debug("openai chat completion response",
		zap.Int("response_length", utf8.RuneCountInString(text)),
		zap.String("response_preview", utils.TruncateForLog(text, c.maxLogLen)),
		zap.Int("total_tokens", resp.Usage.TotalTokens),
	)

	raw, err := json.Marshal(resp)
	if err != nil {
		c.logger.Warn("encoding openai response envelope", zap.Error(err))
		raw = nil
	}

	return &ai.Response{Text: text, Raw: raw, Provider: providerName, Model: c.model}, nil
}

func classify(err error) error {
	if ai.IsTimeout(err) {
		return ai.NewError(ai.KindTimeout, providerName, err)
	}

	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		if code := fmt.Sprint(apiErr.Code); code == "insufficient_quota" || apiErr.Type == "insufficient_quota" {
			return ai.NewError(ai.KindQuotaExceeded, providerName, err)
		}
		return byStatus(apiErr.HTTPStatusCode, err)
	}

	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) {
		return byStatus(reqErr.HTTPStatusCode, err)
	}

	return ai.NewError(ai.KindProvider, providerName, err)
}

func byStatus(status int, err error) error {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ai.NewError(ai.KindMissingCredentials, providerName, err)
	case http.StatusPaymentRequired:
		return ai.NewError(ai.KindQuotaExceeded, providerName, err)
	case http.StatusTooManyRequests:
		return ai.NewError(ai.KindRateLimited, providerName, err)
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return ai.NewError(ai.KindTimeout, providerName, err)
	default:
		return ai.NewError(ai.KindProvider, providerName, err)
	}
}
