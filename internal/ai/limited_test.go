package ai

import (
	"context"
	"errors"
	"testing"
	"time"
)

type stubGateway struct {
	calls int
}

func (s *stubGateway) Generate(ctx context.Context, prompt Prompt) (*Response, error) {
	s.calls++
	return &Response{Text: prompt.User, Provider: "stub", Model: "stub-1"}, nil
}

func (s *stubGateway) Provider() string { return "stub" }
func (s *stubGateway) Model() string    { return "stub-1" }

func TestWithRateLimit(t *testing.T) {
	t.Parallel()

	stub := &stubGateway{}
	if got := WithRateLimit(stub, 0); got != Gateway(stub) {
		t.Fatalf("expected gateway to be returned untouched when limit disabled")
	}

	limited := WithRateLimit(stub, 1)
	if limited.Provider() != "stub" || limited.Model() != "stub-1" {
		t.Fatalf("expected provider and model to pass through, got %q/%q", limited.Provider(), limited.Model())
	}

	resp, err := limited.Generate(context.Background(), Prompt{User: "first"})
	if err != nil {
		t.Fatalf("expected first call to pass, got %v", err)
	}
	if resp.Text != "first" {
		t.Fatalf("unexpected response text: %q", resp.Text)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = limited.Generate(ctx, Prompt{User: "second"})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected timeout error while throttled, got %v", err)
	}
	if stub.calls != 1 {
		t.Fatalf("expected a single upstream call, got %d", stub.calls)
	}
}

func TestPromptString(t *testing.T) {
	t.Parallel()

	if got := (Prompt{System: "sys", User: "usr"}).String(); got != "sys\n\nusr" {
		t.Fatalf("unexpected joined prompt: %q", got)
	}
	if got := (Prompt{User: "usr"}).String(); got != "usr" {
		t.Fatalf("unexpected user-only prompt: %q", got)
	}
}

type blockingGateway struct {
	stubGateway
	err error
}

func (b *blockingGateway) Generate(ctx context.Context, _ Prompt) (*Response, error) {
	b.calls++
	<-ctx.Done()
	if b.err != nil {
		return nil, b.err
	}
	return nil, ctx.Err()
}

func TestWithTimeout(t *testing.T) {
	t.Parallel()

	stub := &stubGateway{}
	if got := WithTimeout(stub, 0); got != Gateway(stub) {
		t.Fatalf("expected gateway to be returned untouched when timeout disabled")
	}

	resp, err := WithTimeout(stub, time.Second).Generate(context.Background(), Prompt{User: "fast"})
	if err != nil {
		t.Fatalf("expected fast call to pass, got %v", err)
	}
	if resp.Text != "fast" {
		t.Fatalf("unexpected response text: %q", resp.Text)
	}

	tests := []struct {
		name string
		err  error
	}{
		{name: "context error", err: nil},
		{name: "provider wraps deadline", err: NewError(KindProvider, "stub", errors.New("stream closed"))},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			blocking := &blockingGateway{err: tt.err}
			start := time.Now()
			_, err := WithTimeout(blocking, 20*time.Millisecond).Generate(context.Background(), Prompt{User: "slow"})
			if !errors.Is(err, ErrTimeout) {
				t.Fatalf("expected timeout error, got %v", err)
			}
			if elapsed := time.Since(start); elapsed > 5*time.Second {
				t.Fatalf("expected the call to be cut off, took %s", elapsed)
			}
			if blocking.calls != 1 {
				t.Fatalf("expected a single upstream call, got %d", blocking.calls)
			}
		})
	}
}
