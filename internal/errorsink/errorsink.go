// Package errorsink records non-fatal pipeline failures. Recording never
// fails the caller: sink errors are logged at debug and dropped.
package errorsink

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"f2b/internal/reqctx"
	"f2b/internal/store/docstore"
)

// Sink receives error records.
type Sink interface {
	Record(ctx context.Context, message string, fields map[string]any)
}

// Nop discards every record.
type Nop struct{}

func (Nop) Record(context.Context, string, map[string]any) {}

// Log writes records to a zerolog logger at warn level.
type Log struct {
	Logger zerolog.Logger
}

func (l Log) Record(ctx context.Context, message string, fields map[string]any) {
	ev := l.Logger.Warn().
		Str("trace_id", reqctx.TraceID(ctx)).
		Str("project_id", reqctx.ProjectID(ctx)).
		Str("stage", reqctx.StageFrom(ctx))
	if len(fields) > 0 {
		ev = ev.Fields(fields)
	}
	ev.Msg(message)
}

// Doc appends records to a document store collection.
type Doc struct {
	store      docstore.Store
	namespace  string
	collection string
	log        zerolog.Logger
	now        func() time.Time
}

func NewDoc(store docstore.Store, namespace, collection string, log zerolog.Logger) *Doc {
	return &Doc{store: store, namespace: namespace, collection: collection, log: log, now: time.Now}
}

func (d *Doc) Record(ctx context.Context, message string, fields map[string]any) {
	doc := map[string]any{
		"request_id":    reqctx.TraceID(ctx),
		"project_id":    reqctx.ProjectID(ctx),
		"stage":         reqctx.StageFrom(ctx),
		"error_message": message,
		"timestamp":     d.now().UTC().Format("2006-01-02 15:04:05"),
	}
	if r := reqctx.From(ctx); r != nil {
		doc["user_query"] = r.RepoURL
	}
	for k, v := range fields {
		if _, taken := doc[k]; !taken {
			doc[k] = v
		}
	}
	// The record must outlive a canceled request.
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := d.store.Append(wctx, d.namespace, d.collection, doc); err != nil {
		d.log.Debug().Err(err).Str("error_message", message).Msg("errorsink: dropped record")
	}
}

// Multi records to every sink in order.
type Multi []Sink

func (m Multi) Record(ctx context.Context, message string, fields map[string]any) {
	for _, s := range m {
		if s != nil {
			s.Record(ctx, message, fields)
		}
	}
}
