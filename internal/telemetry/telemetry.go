package telemetry

import (
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hlab/insightchat/config"
)

// Telemetry records pipeline metrics and keeps rolling counters for the
// diagnostics endpoint. Prometheus collectors are registered once on the
// default registry so /metrics picks them up.
type Telemetry struct {
	config config.TelemetryConfig
	logger *log.Logger

	providerExecutions *prometheus.CounterVec
	providerDuration   *prometheus.HistogramVec
	retrievalQueries   *prometheus.CounterVec
	llmCalls           *prometheus.CounterVec
	llmDuration        *prometheus.HistogramVec
	contextChars       prometheus.Histogram
	chunksScored       prometheus.Counter

	mu      sync.RWMutex
	metrics Metrics
}

// Metrics holds rolling in-process counters
type Metrics struct {
	TotalTurns         int64
	SuccessfulTurns    int64
	FailedTurns        int64
	ProviderExecutions map[string]int64
	ProviderFailures   map[string]int64
	RetrievalQueries   int64
	RetrievalFailures  int64
	LLMCalls           int64
	LLMFailures        int64
}

var registerOnce sync.Once

// NewTelemetry creates a new telemetry instance
func NewTelemetry(cfg config.TelemetryConfig) *Telemetry {
	t := &Telemetry{
		config: cfg,
		logger: log.New(log.Writer(), "[TELEMETRY] ", log.LstdFlags),
		providerExecutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "insightchat_provider_executions_total",
			Help: "Capability provider executions by provider and outcome.",
		}, []string{"provider", "outcome"}),
		providerDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "insightchat_provider_duration_seconds",
			Help:    "Capability provider execution latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider"}),
		retrievalQueries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "insightchat_retrieval_queries_total",
			Help: "Retrieval sidecar queries by outcome.",
		}, []string{"outcome"}),
		llmCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "insightchat_llm_calls_total",
			Help: "LLM chat calls by operation and outcome.",
		}, []string{"operation", "outcome"}),
		llmDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "insightchat_llm_duration_seconds",
			Help:    "LLM chat call latency.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"operation"}),
		contextChars: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "insightchat_context_chars",
			Help:    "Assembled context size in characters.",
			Buckets: prometheus.ExponentialBuckets(100, 2, 8),
		}),
		chunksScored: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "insightchat_chunks_scored_total",
			Help: "Document chunks scored by the map-reduce summarizer.",
		}),
		metrics: Metrics{
			ProviderExecutions: make(map[string]int64),
			ProviderFailures:   make(map[string]int64),
		},
	}
	if cfg.Enabled {
		registerOnce.Do(func() {
			prometheus.MustRegister(
				t.providerExecutions, t.providerDuration,
				t.retrievalQueries,
				t.llmCalls, t.llmDuration,
				t.contextChars, t.chunksScored,
			)
		})
	}
	return t
}

func outcome(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// RecordTurn records the outcome of one full pipeline turn.
func (t *Telemetry) RecordTurn(success bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.metrics.TotalTurns++
	if success {
		t.metrics.SuccessfulTurns++
	} else {
		t.metrics.FailedTurns++
	}
}

// RecordProviderExecution records a single capability provider run.
func (t *Telemetry) RecordProviderExecution(provider string, success bool, duration time.Duration) {
	t.providerExecutions.WithLabelValues(provider, outcome(success)).Inc()
	t.providerDuration.WithLabelValues(provider).Observe(duration.Seconds())

	t.mu.Lock()
	defer t.mu.Unlock()
	t.metrics.ProviderExecutions[provider]++
	if !success {
		t.metrics.ProviderFailures[provider]++
	}
}

// RecordRetrieval records a retrieval sidecar query.
func (t *Telemetry) RecordRetrieval(success bool) {
	t.retrievalQueries.WithLabelValues(outcome(success)).Inc()

	t.mu.Lock()
	defer t.mu.Unlock()
	t.metrics.RetrievalQueries++
	if !success {
		t.metrics.RetrievalFailures++
	}
}

// RecordLLMCall records one chat-completion round trip.
func (t *Telemetry) RecordLLMCall(operation string, success bool, duration time.Duration) {
	t.llmCalls.WithLabelValues(operation, outcome(success)).Inc()
	t.llmDuration.WithLabelValues(operation).Observe(duration.Seconds())

	t.mu.Lock()
	defer t.mu.Unlock()
	t.metrics.LLMCalls++
	if !success {
		t.metrics.LLMFailures++
	}
}

// RecordContextSize records the final assembled context size.
func (t *Telemetry) RecordContextSize(chars int) {
	t.contextChars.Observe(float64(chars))
}

// RecordChunkScored counts one chunk passed through relevance scoring.
func (t *Telemetry) RecordChunkScored() {
	t.chunksScored.Inc()
}

// Snapshot returns a copy of the rolling counters.
func (t *Telemetry) Snapshot() Metrics {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := t.metrics
	out.ProviderExecutions = make(map[string]int64, len(t.metrics.ProviderExecutions))
	for k, v := range t.metrics.ProviderExecutions {
		out.ProviderExecutions[k] = v
	}
	out.ProviderFailures = make(map[string]int64, len(t.metrics.ProviderFailures))
	for k, v := range t.metrics.ProviderFailures {
		out.ProviderFailures[k] = v
	}
	return out
}
