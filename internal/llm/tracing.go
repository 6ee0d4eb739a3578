package llm

import (
	"context"
	"time"

	"f2b/internal/llm/pricing"
	"f2b/internal/reqctx"
)

// UsageRecord is one traced completion, forwarded to a UsageSink.
type UsageRecord struct {
	Timestamp  time.Time      `json:"timestamp" bson:"timestamp"`
	TraceID    string         `json:"trace_id" bson:"trace_id"`
	ProjectID  string         `json:"project_id,omitempty" bson:"project_id,omitempty"`
	Stage      string         `json:"stage" bson:"stage"`
	Provider   string         `json:"provider" bson:"provider"`
	Model      string         `json:"model" bson:"model"`
	Streamed   bool           `json:"streamed" bson:"streamed"`
	Tokens     pricing.Tokens `json:"tokens" bson:"tokens"`
	CostUSD    float64        `json:"cost_usd" bson:"cost_usd"`
	Priced     bool           `json:"priced" bson:"priced"`
	DurationMS int64          `json:"duration_ms" bson:"duration_ms"`
	Error      string         `json:"error,omitempty" bson:"error,omitempty"`
}

// UsageSink receives usage records. Implementations must not block for long
// and must swallow their own failures.
type UsageSink interface {
	RecordUsage(ctx context.Context, rec UsageRecord)
}

// UsageSinkFunc adapts a function to UsageSink.
type UsageSinkFunc func(ctx context.Context, rec UsageRecord)

func (f UsageSinkFunc) RecordUsage(ctx context.Context, rec UsageRecord) { f(ctx, rec) }

// MultiSink fans a record out to every sink.
type MultiSink []UsageSink

func (m MultiSink) RecordUsage(ctx context.Context, rec UsageRecord) {
	for _, s := range m {
		if s != nil {
			s.RecordUsage(ctx, rec)
		}
	}
}

// WithTracing measures each call, parses token usage with the provider's
// parser, prices it and forwards the record to sink.
func WithTracing(sink UsageSink, table pricing.Table) Middleware {
	return func(next CompletionProvider) CompletionProvider {
		return &tracing{passthrough: passthrough{next}, sink: sink, table: table}
	}
}

type tracing struct {
	passthrough
	sink  UsageSink
	table pricing.Table
}

func (t *tracing) Complete(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	resp, err := t.next.Complete(ctx, req)
	t.record(ctx, start, false, resp, err)
	return resp, err
}

func (t *tracing) CompleteStream(ctx context.Context, req Request, onChunk func(StreamChunk)) (*Response, error) {
	start := time.Now()
	resp, err := t.next.CompleteStream(ctx, req, onChunk)
	t.record(ctx, start, true, resp, err)
	return resp, err
}

func (t *tracing) record(ctx context.Context, start time.Time, streamed bool, resp *Response, err error) {
	if t.sink == nil {
		return
	}
	rec := UsageRecord{
		Timestamp:  start.UTC(),
		TraceID:    reqctx.TraceID(ctx),
		ProjectID:  reqctx.ProjectID(ctx),
		Stage:      reqctx.StageFrom(ctx),
		Provider:   t.next.Provider(),
		Model:      t.next.Model(),
		Streamed:   streamed,
		DurationMS: time.Since(start).Milliseconds(),
	}
	if resp != nil {
		if resp.Model != "" {
			rec.Model = resp.Model
		}
		rec.Tokens = t.table.Parse(rec.Provider, resp.RawUsage)
		rec.CostUSD, rec.Priced = t.table.Cost(rec.Provider, rec.Model, rec.Tokens)
	}
	if err != nil {
		rec.Error = err.Error()
	}
	t.sink.RecordUsage(ctx, rec)
}
