package llm

import (
	"context"
	"encoding/json"
	"errors"
)

// StreamKind tells answer text apart from model reasoning in a stream.
type StreamKind int

const (
	StreamAnswer StreamKind = iota
	StreamReasoning
)

func (k StreamKind) String() string {
	if k == StreamReasoning {
		return "thinking_delta"
	}
	return "text_delta"
}

// StreamChunk is one incremental piece of a streamed completion.
type StreamChunk struct {
	Kind StreamKind
	Text string
}

// Request is a single completion request.
type Request struct {
	System    string
	Prompt    string
	MaxTokens int
	// JSON asks the backend for a JSON object answer when it supports it.
	JSON bool
	// ThinkingBudget enables extended reasoning on backends that support it.
	ThinkingBudget int
	Temperature    float64
}

// Response is a finished completion. RawUsage is the provider's own usage
// payload; token parsing happens in the tracing middleware.
type Response struct {
	Text     string
	Thinking string
	Provider string
	Model    string
	RawUsage json.RawMessage
}

// CompletionProvider is the capability every LLM backend implements.
type CompletionProvider interface {
	Name() string
	Provider() string
	Model() string
	Complete(ctx context.Context, req Request) (*Response, error)
	CompleteStream(ctx context.Context, req Request, onChunk func(StreamChunk)) (*Response, error)
	Close() error
}

// ErrEmptyCompletion is returned when a backend answers with no content.
var ErrEmptyCompletion = errors.New("llm: empty completion")

// PermanentError marks failures that retrying cannot fix (bad request,
// context window exceeded, auth).
type PermanentError struct{ Err error }

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

func NewPermanentError(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err wraps a PermanentError.
func IsPermanent(err error) bool {
	var p *PermanentError
	return errors.As(err, &p)
}
