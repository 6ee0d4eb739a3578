package metrics

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"f2b/internal/llm"
	"f2b/internal/llm/pricing"
	"f2b/internal/store/artifact"
)

func TestRecordUsage(t *testing.T) {
	m := New()
	m.RecordUsage(context.Background(), llm.UsageRecord{
		Provider: "anthropic", Model: "claude", Stage: "code_generation",
		Tokens: pricing.Tokens{Input: 100, Output: 40}, CostUSD: 0.5, Priced: true, DurationMS: 1500,
	})
	m.RecordUsage(context.Background(), llm.UsageRecord{Provider: "anthropic", Model: "claude", Stage: "code_generation", Error: "boom"})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.LLMCalls.WithLabelValues("anthropic", "claude", "code_generation", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LLMCalls.WithLabelValues("anthropic", "claude", "code_generation", "error")))
	assert.Equal(t, 100.0, testutil.ToFloat64(m.LLMTokens.WithLabelValues("anthropic", "claude", "input")))
	assert.Equal(t, 0.5, testutil.ToFloat64(m.LLMCostUSD.WithLabelValues("anthropic", "claude")))
}

func TestStagesAndRuns(t *testing.T) {
	m := New()
	m.ObserveStage("discovery", time.Second, "")
	m.ObserveStage("priority", time.Second, "llm_call")
	m.ObserveRun("stream", errors.New("x"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.StageFailures.WithLabelValues("priority", "llm_call")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues("stream", "error")))

	var nilM *Metrics
	assert.NotPanics(t, func() { nilM.ObserveStage("x", 0, "y") })
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveRun("sync", nil)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "f2b_pipeline_runs_total")
}

func TestWatchArtifactCache(t *testing.T) {
	m := New()
	store := artifact.NewCachedStore(artifact.NewMemoryStore(), artifact.DefaultCacheConfig())
	m.WatchArtifactCache(store.Metrics)

	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "p", "api.zip", []byte("PK")))
	_, err := store.Get(ctx, "p", "api.zip")
	require.NoError(t, err)
	_, err = store.Get(ctx, "p", "other.zip")
	require.Error(t, err)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	assert.Contains(t, body, "f2b_artifact_cache_blob_hits_total 1")
	assert.Contains(t, body, "f2b_artifact_cache_blob_misses_total 1")
	assert.Contains(t, body, "f2b_artifact_cache_origin_writes_total 1")
	assert.Contains(t, body, "f2b_artifact_cache_origin_errors_total 1")
}
