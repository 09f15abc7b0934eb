package vertex

import (
	"context"
	"errors"
	"testing"

	"github.com/spigell/resume-screener/internal/ai"

	"cloud.google.com/go/vertexai/genai"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type stubModel struct {
	resp  *genai.GenerateContentResponse
	err   error
	parts []genai.Part
}

func (s *stubModel) GenerateContent(_ context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	s.parts = parts
	return s.resp, s.err
}

func TestClientGenerate(t *testing.T) {
	var system string
	model := &stubModel{resp: &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []genai.Part{genai.Text(`{"score": `), genai.Text(`64}`)}},
		}},
	}}

	c := &Client{
		models: func(text string) contentGenerator {
			system = text
			return model
		},
		modelName: "gemini-test",
		logger:    zap.NewNop(),
	}

	resp, err := c.Generate(context.Background(), ai.Prompt{System: "be strict", User: "resume"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if resp.Text != `{"score": 64}` {
		t.Fatalf("unexpected text: %q", resp.Text)
	}
	if system != "be strict" {
		t.Fatalf("expected system instruction to be installed, got %q", system)
	}
	if len(model.parts) != 1 || model.parts[0] != genai.Text("resume") {
		t.Fatalf("unexpected parts sent: %#v", model.parts)
	}
}

func TestClientClassifiesErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		expect error
	}{
		{name: "quota", err: status.Error(codes.ResourceExhausted, "Quota exceeded for aiplatform"), expect: ai.ErrQuotaExceeded},
		{name: "throttled", err: status.Error(codes.ResourceExhausted, "too many requests"), expect: ai.ErrRateLimited},
		{name: "unauthenticated", err: status.Error(codes.Unauthenticated, "no credentials"), expect: ai.ErrMissingCredentials},
		{name: "deadline", err: status.Error(codes.DeadlineExceeded, "deadline"), expect: ai.ErrTimeout},
		{name: "internal", err: status.Error(codes.Internal, "oops"), expect: ai.ErrProvider},
		{name: "empty", err: nil, expect: ai.ErrProvider},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := &stubModel{err: tt.err}
			c := &Client{
				models:    func(string) contentGenerator { return model },
				modelName: "gemini-test",
				logger:    zap.NewNop(),
			}

			_, err := c.Generate(context.Background(), ai.Prompt{User: "resume"})
			if !errors.Is(err, tt.expect) {
				t.Fatalf("expected %v, got %v", tt.expect, err)
			}
		})
	}
}

func TestNewRequiresProject(t *testing.T) {
	_, err := New(context.Background(), Options{}, zap.NewNop())
	if !errors.Is(err, ai.ErrMissingCredentials) {
		t.Fatalf("expected missing credentials error, got %v", err)
	}
}
