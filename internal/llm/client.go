// Package llm provides the model client used to turn one requirement block
// into ADO CSV rows. Providers are interchangeable behind the Client
// interface; the engine treats them as opaque text-in/text-out collaborators.
package llm

import (
	"context"
	"time"
)

// Usage is the token accounting for one completion.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Total returns input plus output tokens.
func (u Usage) Total() int {
	return u.InputTokens + u.OutputTokens
}

// Add accumulates another completion's usage.
func (u Usage) Add(other Usage) Usage {
	return Usage{
		InputTokens:  u.InputTokens + other.InputTokens,
		OutputTokens: u.OutputTokens + other.OutputTokens,
	}
}

// Client is one LLM provider. Generate sends the fixed instruction prompt
// plus the per-block input and returns the raw model text.
type Client interface {
	Generate(ctx context.Context, instructions, input string) (string, Usage, error)
	Model() string
}

// callContext bounds a single model call. The configured timeout covers one
// call, never the whole run, so it only applies when the caller's context
// carries no deadline of its own.
func callContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, hasDeadline := ctx.Deadline(); hasDeadline || timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}
