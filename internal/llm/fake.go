package llm

import (
	"context"
	"encoding/json"
	"sync"
)

// FakeHandler produces the answer text for a request.
type FakeHandler func(req Request) (string, error)

// Fake is a scripted CompletionProvider for offline runs and tests.
type Fake struct {
	mu       sync.Mutex
	handler  FakeHandler
	calls    []Request
	Thinking string
	Usage    json.RawMessage
	// ChunkSize splits streamed answers; 0 streams the answer in one chunk.
	ChunkSize int
}

func NewFake(h FakeHandler) *Fake {
	return &Fake{handler: h}
}

// NewFakeText returns a Fake that always answers text.
func NewFakeText(text string) *Fake {
	return NewFake(func(Request) (string, error) { return text, nil })
}

func (f *Fake) Name() string     { return "fake:fake-model" }
func (f *Fake) Provider() string { return "fake" }
func (f *Fake) Model() string    { return "fake-model" }
func (f *Fake) Close() error     { return nil }

// Calls returns a copy of every request received so far.
func (f *Fake) Calls() []Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Request(nil), f.calls...)
}

func (f *Fake) Complete(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.calls = append(f.calls, req)
	h := f.handler
	f.mu.Unlock()

	text := "{}"
	if h != nil {
		var err error
		if text, err = h(req); err != nil {
			return nil, err
		}
	}
	return &Response{Text: text, Thinking: f.Thinking, Provider: f.Provider(), Model: f.Model(), RawUsage: f.Usage}, nil
}

func (f *Fake) CompleteStream(ctx context.Context, req Request, onChunk func(StreamChunk)) (*Response, error) {
	resp, err := f.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	if onChunk == nil {
		return resp, nil
	}
	if resp.Thinking != "" {
		onChunk(StreamChunk{Kind: StreamReasoning, Text: resp.Thinking})
	}
	text := resp.Text
	size := f.ChunkSize
	if size <= 0 {
		size = len(text)
	}
	for len(text) > 0 {
		n := size
		if n > len(text) {
			n = len(text)
		}
		onChunk(StreamChunk{Kind: StreamAnswer, Text: text[:n]})
		text = text[n:]
	}
	return resp, nil
}
