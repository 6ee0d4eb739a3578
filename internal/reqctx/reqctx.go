// Package reqctx carries per-run correlation data through context.Context.
package reqctx

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"f2b/internal/logger"
)

type ctxKeyRun struct{}
type ctxKeyStage struct{}

// Run identifies one pipeline invocation. It is created once at the
// orchestrator boundary and never mutated afterwards.
type Run struct {
	TraceID   string
	ProjectID string
	RepoURL   string
}

// New returns a context carrying a fresh Run with a random trace id.
func New(ctx context.Context, repoURL string) (context.Context, *Run) {
	r := &Run{TraceID: uuid.NewString(), RepoURL: strings.TrimSpace(repoURL)}
	return context.WithValue(ctx, ctxKeyRun{}, r), r
}

// WithProject returns a child context whose Run also carries projectID.
func WithProject(ctx context.Context, projectID string) context.Context {
	cur := From(ctx)
	next := Run{ProjectID: projectID}
	if cur != nil {
		next.TraceID = cur.TraceID
		next.RepoURL = cur.RepoURL
	} else {
		next.TraceID = uuid.NewString()
	}
	return context.WithValue(ctx, ctxKeyRun{}, &next)
}

// From returns the Run stored in ctx, or nil.
func From(ctx context.Context) *Run {
	if ctx == nil {
		return nil
	}
	if r, ok := ctx.Value(ctxKeyRun{}).(*Run); ok {
		return r
	}
	return nil
}

func WithStage(ctx context.Context, stage string) context.Context {
	return context.WithValue(ctx, ctxKeyStage{}, stage)
}

// StageFrom returns the stage name stored in the context.
func StageFrom(ctx context.Context) string {
	if ctx != nil {
		if s, ok := ctx.Value(ctxKeyStage{}).(string); ok && s != "" {
			return s
		}
	}
	return "unknown"
}

// TraceID returns the trace id from ctx or "".
func TraceID(ctx context.Context) string {
	if r := From(ctx); r != nil {
		return r.TraceID
	}
	return ""
}

// ProjectID returns the project id from ctx or "".
func ProjectID(ctx context.Context) string {
	if r := From(ctx); r != nil {
		return r.ProjectID
	}
	return ""
}

// Logger returns the global logger annotated with the run's correlation ids.
func Logger(ctx context.Context) zerolog.Logger {
	l := logger.GetLogger()
	lc := l.With()
	if r := From(ctx); r != nil {
		if r.TraceID != "" {
			lc = lc.Str("trace_id", r.TraceID)
		}
		if r.ProjectID != "" {
			lc = lc.Str("project_id", r.ProjectID)
		}
	}
	if s := StageFrom(ctx); s != "unknown" {
		lc = lc.Str("stage", s)
	}
	return lc.Logger()
}
