package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/spigell/resume-screener/internal/ai"
	"github.com/spigell/resume-screener/internal/logger"
	"github.com/spigell/resume-screener/internal/utils"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

const (
	providerName        = "gemini"
	defaultModel        = "gemini-2.5-flash"
	defaultMaxLogLength = 200
	temperature         = 0.15

	baseBackoff  = 2 * time.Second
	maxBackoff   = 30 * time.Second
	maxQuotaWait = 10 * time.Second
)

var (
	// pause waits between attempts and returns early when ctx ends.
	pause = utils.WaitFor

	retryDelayPattern = regexp.MustCompile(`(?i)retry (?:after|in) (\d+(?:\.\d+)?)\s*s`)
)

type chatSession interface {
	SendMessage(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

type chatCreator interface {
	Create(ctx context.Context, model string, config *genai.GenerateContentConfig, history []*genai.Content) (chatSession, error)
}

type genaiChats struct {
	chats *genai.Chats
}

func (c genaiChats) Create(ctx context.Context, model string, config *genai.GenerateContentConfig, history []*genai.Content) (chatSession, error) {
	return c.chats.Create(ctx, model, config, history)
}

// Generator wraps the Google GenAI client. Each call opens a fresh chat with
// the system instruction and sends the user payload as a single message.
type Generator struct {
	chats      chatCreator
	model      string
	maxRetries int
	maxLogLen  int
	logger     *zap.Logger
}

// Options tune the generator. Zero values fall back to defaults.
type Options struct {
	Model        string
	MaxRetries   int
	MaxLogLength int
}

// NewGenerator creates a Generator configured for the Gemini API backend.
// An empty key is reported as ai.ErrMissingCredentials.
func NewGenerator(ctx context.Context, apiKey string, opts Options, log *zap.Logger) (*Generator, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, ai.NewError(ai.KindMissingCredentials, providerName, errors.New("gemini api key is required"))
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = defaultModel
	}

	maxLogLen := opts.MaxLogLength
	if maxLogLen <= 0 {
		maxLogLen = defaultMaxLogLength
	}

	return &Generator{
		chats:      genaiChats{chats: client.Chats},
		model:      model,
		maxRetries: opts.MaxRetries,
		maxLogLen:  maxLogLen,
		logger:     logger.ForProvider(log, providerName, model),
	}, nil
}

func (g *Generator) Provider() string { return providerName }

func (g *Generator) Model() string {
	if g == nil {
		return ""
	}
	return g.model
}

// Generate implements ai.Gateway.
func (g *Generator) Generate(ctx context.Context, prompt ai.Prompt) (*ai.Response, error) {
	resp, text, err := g.generate(ctx, prompt.System, prompt.User)
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(resp)
	if err != nil {
		g.logger.Warn("encoding gemini response envelope", zap.Error(err))
		raw = nil
	}

	return &ai.Response{Text: text, Raw: raw, Provider: providerName, Model: g.model}, nil
}

func (g *Generator) generate(ctx context.Context, system, message string) (*genai.GenerateContentResponse, string, error) {
	if g == nil || g.chats == nil {
		return nil, "", ai.NewError(ai.KindMissingCredentials, providerName, errors.New("gemini generator is not initialized"))
	}

	message = strings.TrimSpace(message)
	if message == "" {
		return nil, "", errors.New("prompt must not be empty")
	}

	log := g.logger
	if log == nil {
		log = zap.NewNop()
	}

	log.Debug("gemini generate content request",
		zap.Int("prompt_length", utf8.RuneCountInString(message)),
		zap.String("prompt_preview", utils.TruncateForLog(message, g.maxLogLen)),
	)

	attempts := g.maxRetries
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		resp, text, err := g.send(ctx, system, message)
		if err == nil {
			log.Debug("gemini generate content response",
				zap.Int("attempt", attempt),
				zap.Int("response_length", utf8.RuneCountInString(text)),
				zap.String("response_preview", utils.TruncateForLog(text, g.maxLogLen)),
			)
			return resp, text, nil
		}

		lastErr = classify(err)
		delay, retry := retryDelay(err, attempt)
		if !retry || attempt == attempts {
			break
		}

		log.Warn("gemini call failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)

		if err := wait(ctx, delay); err != nil {
			return nil, "", ai.NewError(ai.KindTimeout, providerName, err)
		}
	}

	return nil, "", lastErr
}

func (g *Generator) send(ctx context.Context, system, message string) (*genai.GenerateContentResponse, string, error) {
	config := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr[float32](temperature),
		ResponseMIMEType: "application/json",
	}
	if system = strings.TrimSpace(system); system != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}

	chat, err := g.chats.Create(ctx, g.model, config, nil)
	if err != nil {
		return nil, "", fmt.Errorf("create chat: %w", err)
	}

	resp, err := chat.SendMessage(ctx, genai.Part{Text: message})
	if err != nil {
		return nil, "", fmt.Errorf("send message: %w", err)
	}

	text := joinCandidates(resp)
	if text == "" {
		return resp, "", errors.New("gemini api returned empty response")
	}

	return resp, text, nil
}

func joinCandidates(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}

	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			text := strings.TrimSpace(part.Text)
			if text == "" {
				continue
			}
			if builder.Len() > 0 {
				builder.WriteString("\n")
			}
			builder.WriteString(text)
		}
	}

	return strings.TrimSpace(builder.String())
}

func apiError(err error) (genai.APIError, bool) {
	var value genai.APIError
	if errors.As(err, &value) {
		return value, true
	}
	var ptr *genai.APIError
	if errors.As(err, &ptr) && ptr != nil {
		return *ptr, true
	}
	return genai.APIError{}, false
}

func classify(err error) error {
	if ai.IsTimeout(err) {
		return ai.NewError(ai.KindTimeout, providerName, err)
	}

	apiErr, ok := apiError(err)
	if !ok {
		return ai.NewError(ai.KindProvider, providerName, err)
	}

	switch {
	case apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden:
		return ai.NewError(ai.KindMissingCredentials, providerName, err)
	case apiErr.Code == http.StatusTooManyRequests:
		lower := strings.ToLower(apiErr.Message)
		if strings.Contains(lower, "quota") || strings.Contains(lower, "billing") {
			return ai.NewError(ai.KindQuotaExceeded, providerName, err)
		}
		return ai.NewError(ai.KindRateLimited, providerName, err)
	case apiErr.Code == http.StatusRequestTimeout || apiErr.Code == http.StatusGatewayTimeout:
		return ai.NewError(ai.KindTimeout, providerName, err)
	default:
		return ai.NewError(ai.KindProvider, providerName, err)
	}
}

// retryDelay decides whether the failed attempt is worth repeating. Server
// errors back off exponentially; throttling is retried only when the provider
// asks for a short pause.
func retryDelay(err error, attempt int) (time.Duration, bool) {
	if ai.IsTimeout(err) {
		return 0, false
	}

	apiErr, ok := apiError(err)
	if !ok {
		return 0, false
	}

	switch {
	case apiErr.Code >= http.StatusInternalServerError:
		return utils.Backoff(attempt, baseBackoff, maxBackoff), true
	case apiErr.Code == http.StatusTooManyRequests:
		delay, found := parseRetryDelay(apiErr.Message)
		if !found || delay > maxQuotaWait {
			return 0, false
		}
		return delay, true
	default:
		return 0, false
	}
}

func parseRetryDelay(message string) (time.Duration, bool) {
	match := retryDelayPattern.FindStringSubmatch(message)
	if len(match) < 2 {
		return 0, false
	}
	seconds, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return 0, false
	}
	return time.Duration(seconds * float64(time.Second)), true
}

func wait(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return pause(ctx, d)
}
