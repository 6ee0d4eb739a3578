package llm

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"f2b/internal/reqctx"
)

// Middleware decorates a CompletionProvider to inject cross-cutting concerns
// (rate limiting, retries, logging, tracing).
type Middleware func(CompletionProvider) CompletionProvider

// Wrap applies middlewares in left-to-right order.
// Example: Wrap(inner, A, B) => A(B(inner))
func Wrap(inner CompletionProvider, mws ...Middleware) CompletionProvider {
	out := inner
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i] == nil {
			continue
		}
		out = mws[i](out)
	}
	return out
}

// passthrough forwards identity methods; decorators embed it.
type passthrough struct{ next CompletionProvider }

func (p passthrough) Name() string     { return p.next.Name() }
func (p passthrough) Provider() string { return p.next.Provider() }
func (p passthrough) Model() string    { return p.next.Model() }
func (p passthrough) Close() error     { return p.next.Close() }

// -------- Rate Limiting --------

// RateLimit limits request rate with a token bucket.
// If rps <= 0, the limiter is effectively disabled.
func RateLimit(rps float64, burst int) Middleware {
	return func(next CompletionProvider) CompletionProvider {
		return &rateLimited{passthrough: passthrough{next}, rl: newBucket(rps, burst)}
	}
}

type rateLimited struct {
	passthrough
	rl *bucket
}

func (c *rateLimited) Complete(ctx context.Context, req Request) (*Response, error) {
	if err := c.rl.Wait(ctx); err != nil {
		return nil, err
	}
	return c.next.Complete(ctx, req)
}

func (c *rateLimited) CompleteStream(ctx context.Context, req Request, onChunk func(StreamChunk)) (*Response, error) {
	if err := c.rl.Wait(ctx); err != nil {
		return nil, err
	}
	return c.next.CompleteStream(ctx, req, onChunk)
}

// -------- Retry with exponential backoff --------

// Retry retries Complete up to maxAttempts with exponential backoff
// starting at baseDelay. Permanent errors and context cancellation stop it.
// Streams are not retried once a chunk has been delivered.
func Retry(maxAttempts int, baseDelay time.Duration) Middleware {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if baseDelay <= 0 {
		baseDelay = 300 * time.Millisecond
	}
	return func(next CompletionProvider) CompletionProvider {
		return &retrying{passthrough: passthrough{next}, max: maxAttempts, base: baseDelay}
	}
}

type retrying struct {
	passthrough
	max  int
	base time.Duration
}

func (r *retrying) Complete(ctx context.Context, req Request) (*Response, error) {
	var last error
	for i := 0; i < r.max; i++ {
		resp, err := r.next.Complete(ctx, req)
		if err == nil {
			return resp, nil
		}
		last = err
		if IsPermanent(err) {
			return nil, err
		}
		if i == r.max-1 {
			break
		}
		if err := sleepCtx(ctx, r.base*time.Duration(1<<i)); err != nil {
			return nil, err
		}
	}
	return nil, last
}

func (r *retrying) CompleteStream(ctx context.Context, req Request, onChunk func(StreamChunk)) (*Response, error) {
	var last error
	for i := 0; i < r.max; i++ {
		delivered := false
		resp, err := r.next.CompleteStream(ctx, req, func(c StreamChunk) {
			delivered = true
			if onChunk != nil {
				onChunk(c)
			}
		})
		if err == nil {
			return resp, nil
		}
		last = err
		if delivered || IsPermanent(err) || i == r.max-1 {
			break
		}
		if err := sleepCtx(ctx, r.base*time.Duration(1<<i)); err != nil {
			return nil, err
		}
	}
	return nil, last
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// -------- Logging --------

// WithLogging logs request size, latency and errors per stage.
func WithLogging(log zerolog.Logger) Middleware {
	return func(next CompletionProvider) CompletionProvider {
		return &logging{passthrough: passthrough{next}, log: log}
	}
}

type logging struct {
	passthrough
	log zerolog.Logger
}

func (l *logging) Complete(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	resp, err := l.next.Complete(ctx, req)
	l.report(ctx, "complete", req, start, err)
	return resp, err
}

func (l *logging) CompleteStream(ctx context.Context, req Request, onChunk func(StreamChunk)) (*Response, error) {
	start := time.Now()
	resp, err := l.next.CompleteStream(ctx, req, onChunk)
	l.report(ctx, "stream", req, start, err)
	return resp, err
}

func (l *logging) report(ctx context.Context, mode string, req Request, start time.Time, err error) {
	ev := l.log.Debug()
	if err != nil {
		ev = l.log.Warn().Err(err)
	}
	ev.Str("llm", l.next.Name()).
		Str("mode", mode).
		Str("stage", reqctx.StageFrom(ctx)).
		Str("trace_id", reqctx.TraceID(ctx)).
		Int("request_bytes", len(req.System)+len(req.Prompt)).
		Dur("latency", time.Since(start)).
		Msg("LLM request")
}
