// Package metrics собирает счётчики прогонов пайплайна для Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics of one pipeline process
type Metrics struct {
	reg *prometheus.Registry

	StageDuration   *prometheus.HistogramVec
	Runs            *prometheus.CounterVec
	GeneratedTokens prometheus.Counter
	PromptTokens    prometheus.Counter
	StopReasons     *prometheus.CounterVec
	AudioSeconds    prometheus.Histogram
}

// New creates metrics on a private registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		reg: reg,
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "speechreply_stage_duration_seconds",
			Help:    "Time spent in each pipeline stage",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~80s
		}, []string{"stage"}),
		Runs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "speechreply_runs_total",
			Help: "Pipeline runs by outcome",
		}, []string{"outcome"}),
		GeneratedTokens: factory.NewCounter(prometheus.CounterOpts{
			Name: "speechreply_generated_tokens_total",
			Help: "Tokens appended by the generation loop",
		}),
		PromptTokens: factory.NewCounter(prometheus.CounterOpts{
			Name: "speechreply_prompt_tokens_total",
			Help: "Prompt tokens fed to the text engine",
		}),
		StopReasons: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "speechreply_generation_stops_total",
			Help: "Generation loop terminations by reason",
		}, []string{"reason"}),
		AudioSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "speechreply_audio_duration_seconds",
			Help:    "Duration of decoded input audio",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10), // 0.5s to ~4 minutes
		}),
	}
}

// Registry returns the registry all metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

// ObserveStage records how long a stage took. Nil-safe.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// ObserveAudio records the duration of a decoded waveform. Nil-safe.
func (m *Metrics) ObserveAudio(d time.Duration) {
	if m == nil {
		return
	}
	m.AudioSeconds.Observe(d.Seconds())
}

// ObserveGeneration records token counts and the stop reason. Nil-safe.
func (m *Metrics) ObserveGeneration(prompt, generated int, reason string) {
	if m == nil {
		return
	}
	m.PromptTokens.Add(float64(prompt))
	m.GeneratedTokens.Add(float64(generated))
	m.StopReasons.WithLabelValues(reason).Inc()
}

// RunFinished counts a run: outcome is "ok" or the failing stage. Nil-safe.
func (m *Metrics) RunFinished(outcome string) {
	if m == nil {
		return
	}
	m.Runs.WithLabelValues(outcome).Inc()
}

// WriteTextfile writes all metrics in Prometheus text format,
// for node_exporter's textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.reg)
}
