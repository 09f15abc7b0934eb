package vertex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/spigell/resume-screener/internal/ai"
	"github.com/spigell/resume-screener/internal/logger"
	"github.com/spigell/resume-screener/internal/utils"

	"cloud.google.com/go/vertexai/genai"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	providerName        = "vertex"
	defaultModel        = "gemini-2.5-flash"
	defaultLocation     = "us-central1"
	defaultMaxLogLength = 200
	temperature         = 0.15
)

type contentGenerator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// Options locate the Vertex AI project.
type Options struct {
	Project      string
	Location     string
	Model        string
	MaxLogLength int
}

// Client calls Gemini models hosted on Vertex AI with application default credentials.
type Client struct {
	client    *genai.Client
	models    func(system string) contentGenerator
	modelName string
	maxLogLen int
	logger    *zap.Logger
}

// New creates a Client. A missing project id is reported as ai.ErrMissingCredentials.
func New(ctx context.Context, opts Options, log *zap.Logger) (*Client, error) {
	project := strings.TrimSpace(opts.Project)
	if project == "" {
		return nil, ai.NewError(ai.KindMissingCredentials, providerName, errors.New("vertex project id is required"))
	}

	location := strings.TrimSpace(opts.Location)
	if location == "" {
		location = defaultLocation
	}

	modelName := strings.TrimSpace(opts.Model)
	if modelName == "" {
		modelName = defaultModel
	}

	client, err := genai.NewClient(ctx, project, location)
	if err != nil {
		return nil, ai.NewError(ai.KindMissingCredentials, providerName, fmt.Errorf("create vertex ai client: %w", err))
	}

	maxLogLen := opts.MaxLogLength
	if maxLogLen <= 0 {
		maxLogLen = defaultMaxLogLength
	}

	return &Client{
		client: client,
		models: func(system string) contentGenerator {
			model := client.GenerativeModel(modelName)
			model.SetTemperature(temperature)
			model.ResponseMIMEType = "application/json"
			if system != "" {
				model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
			}
			return model
		},
		modelName: modelName,
		maxLogLen: maxLogLen,
		logger:    logger.ForProvider(log, providerName, modelName),
	}, nil
}

func (c *Client) Provider() string { return providerName }

func (c *Client) Model() string { return c.modelName }

// Close releases the underlying connection.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

// Generate implements ai.Gateway. Every call gets its own model handle so
// concurrent calls never share a system instruction.
func (c *Client) Generate(ctx context.Context, prompt ai.Prompt) (*ai.Response, error) {
	c.logger.Debug("vertex generate content request",
		zap.Int("prompt_length", utf8.RuneCountInString(prompt.User)),
		zap.String("prompt_preview", utils.TruncateForLog(prompt.User, c.maxLogLen)),
	)

	resp, err := c.models(prompt.System).GenerateContent(ctx, genai.Text(prompt.User))
	if err != nil {
		return nil, classify(err)
	}

	text := joinCandidates(resp)
	if text == "" {
		return nil, ai.NewError(ai.KindProvider, providerName, errors.New("vertex ai returned empty response"))
	}

	c.logger.Debug("vertex generate content response",
		zap.Int("response_length", utf8.RuneCountInString(text)),
		zap.String("response_preview", utils.TruncateForLog(text, c.maxLogLen)),
	)

	raw, err := json.Marshal(resp)
	if err != nil {
		c.logger.Warn("encoding vertex response envelope", zap.Error(err))
		raw = nil
	}

	return &ai.Response{Text: text, Raw: raw, Provider: providerName, Model: c.modelName}, nil
}

func joinCandidates(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}

	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				builder.WriteString(string(text))
			}
		}
	}
	return strings.TrimSpace(builder.String())
}

func classify(err error) error {
	if ai.IsTimeout(err) {
		return ai.NewError(ai.KindTimeout, providerName, err)
	}

	switch status.Code(err) {
	case codes.Unauthenticated, codes.PermissionDenied:
		return ai.NewError(ai.KindMissingCredentials, providerName, err)
	case codes.ResourceExhausted:
		if strings.Contains(strings.ToLower(err.Error()), "quota") {
			return ai.NewError(ai.KindQuotaExceeded, providerName, err)
		}
		return ai.NewError(ai.KindRateLimited, providerName, err)
	case codes.DeadlineExceeded:
		return ai.NewError(ai.KindTimeout, providerName, err)
	}

	// REST transport errors do not always carry a gRPC status.
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "quota"):
		return ai.NewError(ai.KindQuotaExceeded, providerName, err)
	case strings.Contains(msg, "429") || strings.Contains(msg, "rate limit"):
		return ai.NewError(ai.KindRateLimited, providerName, err)
	default:
		return ai.NewError(ai.KindProvider, providerName, err)
	}
}
