package llm

import (
	"context"
	"errors"
)

// ErrSearchNotSupported is returned by backends that have no web
// search path. The ensemble's online step downgrades it to a
// placeholder; a Search stage treats it as fatal.
var ErrSearchNotSupported = errors.New("backend does not support web search")

// GenerationParams carries the optional sampling knobs a caller may
// set. Nil pointers mean "backend default".
type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopK        *int     `json:"top_k"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// CompletionClient is the completion boundary the analysis engine
// consumes. The model travels per call, not per client: the engine
// validates it against the ModelRegistry first, and a backend must
// answer with the model it was handed.
type CompletionClient interface {
	// Complete returns generated text for a rendered prompt.
	Complete(ctx context.Context, prompt, model string, params GenerationParams) (string, error)

	// CompleteWithSearch returns generated text grounded in a live web
	// search. Backends without a search path return
	// ErrSearchNotSupported; callers decide whether that degrades or
	// aborts.
	CompleteWithSearch(ctx context.Context, prompt, model string) (string, error)
}

// Float32Ptr is a convenience for building GenerationParams literals.
func Float32Ptr(v float32) *float32 { return &v }

// IntPtr is a convenience for building GenerationParams literals.
func IntPtr(v int) *int { return &v }
