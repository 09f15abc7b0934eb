package ai

import (
	"context"
	"encoding/json"
)

// Prompt is the instruction pair sent to a model. System carries the fixed
// directive, User carries the job and resume payload.
type Prompt struct {
	System string
	User   string
}

// String joins both parts for providers without a dedicated system role.
func (p Prompt) String() string {
	if p.System == "" {
		return p.User
	}
	if p.User == "" {
		return p.System
	}
	return p.System + "\n\n" + p.User
}

// Response is the raw model output together with the provider envelope.
type Response struct {
	Text     string
	Raw      json.RawMessage
	Provider string
	Model    string
}

// Gateway sends a prompt to a generative model and returns its text output.
// Implementations classify failures with *Error.
type Gateway interface {
	Generate(ctx context.Context, prompt Prompt) (*Response, error)
	Provider() string
	Model() string
}
