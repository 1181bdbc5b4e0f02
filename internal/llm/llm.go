// Package llm defines the completion-service contract the orchestrator
// consumes and an HTTP client implementation for it. The orchestrator never
// retries these calls itself; retry budgets live behind this interface.
package llm

import (
	"context"
	"errors"
)

var (
	// ErrProviderUnavailable signals the completion provider cannot be
	// reached at all, typically missing credentials. Callers degrade to a
	// sentinel result instead of failing the run.
	ErrProviderUnavailable = errors.New("llm: provider unavailable")

	// ErrMalformedOutput signals the provider answered but the structured
	// payload could not be parsed.
	ErrMalformedOutput = errors.New("llm: malformed output")
)

// Options tune a single completion call.
type Options struct {
	Model       string
	Temperature float64
	MaxRetries  int
}

// CompletionService generates natural-language text from a prompt.
type CompletionService interface {
	// Complete returns free-form text for the prompt.
	Complete(ctx context.Context, prompt string, opts Options) (string, error)

	// CompleteStructured asks the provider for a JSON document matching out
	// and decodes into it. Parse failures surface as ErrMalformedOutput.
	CompleteStructured(ctx context.Context, prompt string, opts Options, out interface{}) error
}
