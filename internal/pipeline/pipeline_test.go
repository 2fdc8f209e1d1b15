package pipeline_test

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"speechreply/internal/audio"
	"speechreply/internal/config"
	"speechreply/internal/enginetest"
	"speechreply/internal/llm"
	"speechreply/internal/metrics"
	"speechreply/internal/pipeline"
)

const eos llm.Token = 2

type rig struct {
	journal *enginetest.Journal
	speech  *enginetest.Speech
	model   *enginetest.Model
	metrics *metrics.Metrics
	driver  *pipeline.Driver
}

func newRig(t *testing.T, segments []string, script ...llm.Token) *rig {
	t.Helper()
	j := &enginetest.Journal{}
	sp := &enginetest.Speech{Segments: segments, Journal: j}
	model := enginetest.NewTextEngine(eos, script...)
	model.Journal = j
	model.Ctx.Journal = j
	m := metrics.New()

	return &rig{
		journal: j,
		speech:  sp,
		model:   model,
		metrics: m,
		driver: &pipeline.Driver{
			Config:     config.Default(),
			OpenSpeech: sp.Opener(nil),
			LoadText:   model.Loader(nil),
			Metrics:    m,
			Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		},
	}
}

func wav(t *testing.T, samples []int16) audio.Source {
	t.Helper()
	data, err := audio.EncodeWAV(samples, audio.SampleRate)
	require.NoError(t, err)
	return audio.Bytes("input.wav", data)
}

func text(s string) []llm.Token {
	out := make([]llm.Token, len(s))
	for i := 0; i < len(s); i++ {
		out[i] = enginetest.ByteToken(s[i])
	}
	return out
}

func TestRunSuccess(t *testing.T) {
	r := newRig(t, []string{" What is", " Go?"}, text(" A language.")...)

	res, err := r.driver.Run(context.Background(), wav(t, []int16{100, -100, 200, -200}))
	require.NoError(t, err)

	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, 4, res.Samples)
	assert.Equal(t, " What is Go?", res.Transcript)
	assert.Equal(t, " A language.", res.Response)
	assert.Equal(t, llm.StopEOS, res.Generation.Stop)

	assert.Equal(t, []string{
		"speech.open", "speech.decode", "speech.close",
		"text.model.load", "text.context.open",
		"text.context.close", "text.model.close",
	}, r.journal.Events())

	// prompt is the transcript, seeded after BOS
	require.NotEmpty(t, r.model.Ctx.Fed)
	assert.Equal(t, enginetest.BOS, r.model.Ctx.Fed[0])
	assert.Equal(t, len(" What is Go?")+1, len(res.Generation.Prompt))
	assert.Zero(t, r.model.Ctx.Live())

	assert.Equal(t, float64(1), testutil.ToFloat64(r.metrics.Runs.WithLabelValues("ok")))
	assert.Equal(t, float64(len(" A language.")), testutil.ToFloat64(r.metrics.GeneratedTokens))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.metrics.StopReasons.WithLabelValues("eos")))
}

func TestRunSilenceAbortsWithEmptyTranscript(t *testing.T) {
	r := newRig(t, []string{""})

	_, err := r.driver.Run(context.Background(), wav(t, make([]int16, 2*audio.SampleRate)))
	require.Error(t, err)

	assert.ErrorIs(t, err, pipeline.ErrEmptyTranscript)
	assert.Equal(t, pipeline.StageTranscribe, pipeline.StageOf(err))

	require.Len(t, r.speech.Samples, 1)
	assert.Len(t, r.speech.Samples[0], 32000)
	for _, s := range r.speech.Samples[0] {
		require.Zero(t, s)
	}

	assert.Equal(t, []string{"speech.open", "speech.decode", "speech.close"}, r.journal.Events())
	assert.Equal(t, float64(1), testutil.ToFloat64(r.metrics.Runs.WithLabelValues("transcribe")))
}

func TestRunImmediateEOSGivesEmptyResponse(t *testing.T) {
	r := newRig(t, []string{"hello"})

	res, err := r.driver.Run(context.Background(), wav(t, []int16{1, 2}))
	require.NoError(t, err)
	assert.Equal(t, "", res.Response)
	assert.Equal(t, llm.StopEOS, res.Generation.Stop)
	assert.Empty(t, res.Generation.Generated)
}

func TestRunStreamsPieces(t *testing.T) {
	r := newRig(t, []string{"hi"}, text("ok!")...)
	var pieces []string
	r.driver.OnPiece = func(s string) { pieces = append(pieces, s) }

	res, err := r.driver.Run(context.Background(), wav(t, []int16{1, 2}))
	require.NoError(t, err)
	assert.Equal(t, []string{"o", "k", "!"}, pieces)
	assert.Equal(t, "ok!", res.Response)
}

func TestRunFailures(t *testing.T) {
	tests := []struct {
		name   string
		src    func(t *testing.T) audio.Source
		setup  func(r *rig)
		stage  pipeline.Stage
		target error
		events []string
	}{
		{
			name:   "missing audio file",
			src:    func(t *testing.T) audio.Source { return audio.File(filepath.Join(t.TempDir(), "none.wav")) },
			stage:  pipeline.StageLoad,
			target: audio.ErrIO,
			events: nil,
		},
		{
			name:   "odd pcm size",
			src:    func(*testing.T) audio.Source { return audio.Bytes("raw", []byte{1, 2, 3}) },
			stage:  pipeline.StageLoad,
			target: audio.ErrFormat,
			events: nil,
		},
		{
			name:   "speech init fails",
			setup:  func(r *rig) { r.driver.OpenSpeech = r.speech.Opener(enginetest.ErrScripted) },
			stage:  pipeline.StageSpeechInit,
			target: enginetest.ErrScripted,
			events: []string{"speech.open"},
		},
		{
			name:   "speech decode fails",
			setup:  func(r *rig) { r.speech.DecodeErr = enginetest.ErrScripted },
			stage:  pipeline.StageTranscribe,
			target: enginetest.ErrScripted,
			events: []string{"speech.open", "speech.decode", "speech.close"},
		},
		{
			name:   "text model load fails",
			setup:  func(r *rig) { r.driver.LoadText = r.model.Loader(enginetest.ErrScripted) },
			stage:  pipeline.StageTextInit,
			target: llm.ErrEngine,
			events: []string{"speech.open", "speech.decode", "speech.close", "text.model.load"},
		},
		{
			name:   "text context fails",
			setup:  func(r *rig) { r.model.NewContextErr = enginetest.ErrScripted },
			stage:  pipeline.StageTextInit,
			target: enginetest.ErrScripted,
			events: []string{
				"speech.open", "speech.decode", "speech.close",
				"text.model.load", "text.context.open", "text.model.close",
			},
		},
		{
			name:   "seed fails",
			setup:  func(r *rig) { r.model.Ctx.DecodeErrAt = 2 },
			stage:  pipeline.StageGenerate,
			target: llm.ErrEngine,
			events: []string{
				"speech.open", "speech.decode", "speech.close",
				"text.model.load", "text.context.open",
				"text.context.close", "text.model.close",
			},
		},
		{
			name:   "tokenize fails",
			setup:  func(r *rig) { r.model.V.TokenizeResult = -4 },
			stage:  pipeline.StageGenerate,
			target: llm.ErrTokenize,
			events: []string{
				"speech.open", "speech.decode", "speech.close",
				"text.model.load", "text.context.open",
				"text.context.close", "text.model.close",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRig(t, []string{"hello"}, text("x")...)
			if tt.setup != nil {
				tt.setup(r)
			}
			src := wav(t, []int16{1, 2})
			if tt.src != nil {
				src = tt.src(t)
			}

			res, err := r.driver.Run(context.Background(), src)
			require.Error(t, err)
			assert.Nil(t, res)
			assert.Equal(t, tt.stage, pipeline.StageOf(err))
			assert.ErrorIs(t, err, tt.target)
			assert.Contains(t, err.Error(), string(tt.stage)+": ")

			var events []string
			if e := r.journal.Events(); len(e) > 0 {
				events = e
			}
			assert.Equal(t, tt.events, events)
			assert.Zero(t, r.model.Ctx.Live())
			assert.Equal(t, float64(1), testutil.ToFloat64(r.metrics.Runs.WithLabelValues(string(tt.stage))))
		})
	}
}

func TestRunPredictFailureKeepsPartialResponse(t *testing.T) {
	r := newRig(t, []string{"hello"}, text("abc")...)
	r.model.Ctx.PredictErrAt = 3

	res, err := r.driver.Run(context.Background(), wav(t, []int16{1, 2}))
	require.NoError(t, err)
	assert.Equal(t, "ab", res.Response)
	assert.Equal(t, llm.StopEngine, res.Generation.Stop)
}

func TestRunWithoutEngines(t *testing.T) {
	d := &pipeline.Driver{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	data, err := audio.EncodeWAV([]int16{1, 2}, audio.SampleRate)
	require.NoError(t, err)

	_, err = d.Run(context.Background(), audio.Bytes("in.wav", data))
	assert.Equal(t, pipeline.StageSpeechInit, pipeline.StageOf(err))
}

func TestStageOf(t *testing.T) {
	assert.Equal(t, pipeline.Stage(""), pipeline.StageOf(io.EOF))

	err := &pipeline.StageError{Stage: pipeline.StageLoad, Err: io.EOF}
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, "load: EOF", err.Error())
}
