// Package metrics exposes pipeline and LLM usage counters to Prometheus.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"f2b/internal/llm"
	"f2b/internal/store/artifact"
)

const namespace = "f2b"

type Metrics struct {
	reg *prometheus.Registry

	RunsTotal     *prometheus.CounterVec
	StageDuration *prometheus.HistogramVec
	StageFailures *prometheus.CounterVec
	RecordedErrs  *prometheus.CounterVec

	LLMCalls    *prometheus.CounterVec
	LLMTokens   *prometheus.CounterVec
	LLMCostUSD  *prometheus.CounterVec
	LLMDuration *prometheus.HistogramVec

	EndpointsDiscovered prometheus.Histogram
	FilesGenerated      prometheus.Histogram
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		RunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Pipeline runs by outcome",
		}, []string{"mode", "status"}),
		StageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Stage duration in seconds",
			Buckets:   []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"stage"}),
		StageFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_failures_total",
			Help:      "Stage failures by error kind",
		}, []string{"stage", "kind"}),
		RecordedErrs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "recorded_errors_total",
			Help:      "Errors handed to the error sink",
		}, []string{"stage"}),
		LLMCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "calls_total",
			Help:      "LLM calls",
		}, []string{"provider", "model", "stage", "status"}),
		LLMTokens: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "tokens_total",
			Help:      "LLM tokens by direction",
		}, []string{"provider", "model", "direction"}),
		LLMCostUSD: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "cost_usd_total",
			Help:      "Priced LLM spend in USD",
		}, []string{"provider", "model"}),
		LLMDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "call_duration_seconds",
			Help:      "LLM call duration in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 180},
		}, []string{"provider", "stage"}),
		EndpointsDiscovered: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "endpoints_discovered",
			Help:      "Endpoints per run",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 9),
		}),
		FilesGenerated: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "files_generated",
			Help:      "Generated files per run",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 9),
		}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// ObserveStage records one finished stage. kind is "" on success.
func (m *Metrics) ObserveStage(stage string, d time.Duration, kind string) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
	if kind != "" {
		m.StageFailures.WithLabelValues(stage, kind).Inc()
	}
}

func (m *Metrics) ObserveRun(mode string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.RunsTotal.WithLabelValues(mode, status).Inc()
}

// WatchArtifactCache exports the artifact cache counters read from snap at
// scrape time.
func (m *Metrics) WatchArtifactCache(snap func() artifact.MetricsSnapshot) {
	if m == nil || snap == nil {
		return
	}
	f := promauto.With(m.reg)
	counter := func(name, help string, read func(artifact.MetricsSnapshot) uint64) {
		f.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "artifact_cache",
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(read(snap())) })
	}
	counter("blob_hits_total", "Archive reads served from the cache", func(s artifact.MetricsSnapshot) uint64 { return s.BlobHits })
	counter("blob_misses_total", "Archive reads that went to the origin", func(s artifact.MetricsSnapshot) uint64 { return s.BlobMisses })
	counter("origin_reads_total", "Reads sent to the origin store", func(s artifact.MetricsSnapshot) uint64 { return s.OriginReads })
	counter("origin_writes_total", "Writes sent to the origin store", func(s artifact.MetricsSnapshot) uint64 { return s.OriginWrites })
	counter("origin_errors_total", "Failed origin operations", func(s artifact.MetricsSnapshot) uint64 { return s.OriginErrors })
}

// RecordUsage implements llm.UsageSink.
func (m *Metrics) RecordUsage(_ context.Context, rec llm.UsageRecord) {
	if m == nil {
		return
	}
	status := "ok"
	if rec.Error != "" {
		status = "error"
	}
	m.LLMCalls.WithLabelValues(rec.Provider, rec.Model, rec.Stage, status).Inc()
	m.LLMDuration.WithLabelValues(rec.Provider, rec.Stage).Observe(float64(rec.DurationMS) / 1000)
	m.LLMTokens.WithLabelValues(rec.Provider, rec.Model, "input").Add(float64(rec.Tokens.Input))
	m.LLMTokens.WithLabelValues(rec.Provider, rec.Model, "output").Add(float64(rec.Tokens.Output))
	if rec.Priced {
		m.LLMCostUSD.WithLabelValues(rec.Provider, rec.Model).Add(rec.CostUSD)
	}
}
