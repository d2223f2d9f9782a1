package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/humblenginr/yt_listening_comp/exercise"
)

const namespace = "listening_comp"

// Metrics are optional, a nil *Metrics records nothing.
type Metrics struct {
	Runs          *prometheus.CounterVec
	Segments      *prometheus.CounterVec
	StageDuration *prometheus.HistogramVec
	Tokens        *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Pipeline runs by final stage and outcome.",
		}, []string{"stage", "outcome"}),
		Segments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_total",
			Help:      "Segments by the stage they finished in and outcome.",
		}, []string{"stage", "outcome"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Wall time spent in each pipeline stage.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		}, []string{"stage"}),
		Tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_total",
			Help:      "Language model tokens spent on exercise generation.",
		}, []string{"type"}),
	}
	if reg != nil {
		reg.MustRegister(m.Runs, m.Segments, m.StageDuration, m.Tokens)
	}
	return m
}

func outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

func (m *Metrics) runDone(stage Stage, ok bool) {
	if m == nil {
		return
	}
	m.Runs.WithLabelValues(stage.String(), outcome(ok)).Inc()
}

func (m *Metrics) segmentDone(stage Stage, ok bool) {
	if m == nil {
		return
	}
	m.Segments.WithLabelValues(stage.String(), outcome(ok)).Inc()
}

func (m *Metrics) stageTook(stage Stage, d time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage.String()).Observe(d.Seconds())
}

func (m *Metrics) observeUsage(u *exercise.Usage) {
	if m == nil || u == nil {
		return
	}
	m.Tokens.WithLabelValues("prompt").Add(float64(u.PromptTokens))
	m.Tokens.WithLabelValues("completion").Add(float64(u.CompletionTokens))
}
