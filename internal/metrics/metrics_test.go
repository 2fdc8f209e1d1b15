package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserve(t *testing.T) {
	m := New()

	m.ObserveGeneration(12, 5, "eos")
	m.ObserveGeneration(3, 100, "max-steps")
	m.ObserveGeneration(4, 1, "eos")
	m.RunFinished("ok")
	m.RunFinished("transcribe")
	m.RunFinished("ok")
	m.ObserveStage("load", 20*time.Millisecond)
	m.ObserveAudio(2 * time.Second)

	assert.Equal(t, float64(19), testutil.ToFloat64(m.PromptTokens))
	assert.Equal(t, float64(106), testutil.ToFloat64(m.GeneratedTokens))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.StopReasons.WithLabelValues("eos")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.StopReasons.WithLabelValues("max-steps")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.Runs.WithLabelValues("ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Runs.WithLabelValues("transcribe")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.StageDuration))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveStage("load", time.Second)
		m.ObserveAudio(time.Second)
		m.ObserveGeneration(1, 1, "eos")
		m.RunFinished("ok")
	})
}

func TestSeparateRegistries(t *testing.T) {
	a, b := New(), New()
	a.RunFinished("ok")
	assert.Equal(t, float64(0), testutil.ToFloat64(b.Runs.WithLabelValues("ok")))
}

func TestWriteTextfile(t *testing.T) {
	m := New()
	m.RunFinished("ok")
	m.ObserveGeneration(2, 7, "eos")

	path := filepath.Join(t.TempDir(), "speechreply.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `speechreply_runs_total{outcome="ok"} 1`)
	assert.Contains(t, string(data), "speechreply_generated_tokens_total 7")
}
