package httpclient

import (
	"context"
	"time"

	"resty.dev/v3"

	"f2b/internal/logger"
	"f2b/internal/reqctx"
)

type startsAtKey struct{}

// NewClient returns a resty client that logs every exchange at debug level,
// tagged with the client name and the run's trace id.
func NewClient(clientName string, timeout time.Duration) *resty.Client {
	client := resty.New()
	if timeout > 0 {
		client.SetTimeout(timeout)
	}
	client.AddRequestMiddleware(func(c *resty.Client, r *resty.Request) error {
		r.SetContext(context.WithValue(r.Context(), startsAtKey{}, time.Now()))
		return nil
	})
	client.AddResponseMiddleware(func(c *resty.Client, r *resty.Response) error {
		log := logger.GetLogger()
		ctx := r.Request.Context()
		startTime, _ := ctx.Value(startsAtKey{}).(time.Time)
		ev := log.Debug().
			Str("client", clientName).
			Str("trace_id", reqctx.TraceID(ctx)).
			Int("status", r.StatusCode()).
			Dur("latency", time.Since(startTime))
		if raw := r.Request.RawRequest; raw != nil {
			ev = ev.Str("method", raw.Method).Str("path", raw.URL.Path)
		}
		ev.Msg("HTTP client request")
		return nil
	})
	return client
}
