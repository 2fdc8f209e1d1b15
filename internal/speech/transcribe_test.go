package speech_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"speechreply/internal/enginetest"
	"speechreply/internal/speech"
)

func TestTranscribeConcatenatesInOrder(t *testing.T) {
	tests := []struct {
		name     string
		segments []string
		want     string
	}{
		{name: "single", segments: []string{" Hello."}, want: " Hello."},
		{name: "no separator inserted", segments: []string{"Hel", "lo", ", world"}, want: "Hello, world"},
		{name: "whitespace kept verbatim", segments: []string{" one ", " two\n"}, want: " one  two\n"},
		{name: "zero segments", segments: nil, want: ""},
		{name: "empty segment", segments: []string{""}, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := &enginetest.Speech{Segments: tt.segments}
			got, err := speech.Transcribe(context.Background(), engine, []float32{0, 0.1}, speech.DecodeParams{})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTranscribeForcesGreedy(t *testing.T) {
	engine := &enginetest.Speech{Segments: []string{"x"}}
	samples := []float32{0.25, -0.25}

	_, err := speech.Transcribe(context.Background(), engine, samples,
		speech.DecodeParams{Sampling: speech.SamplingBeamSearch, Language: "en", Threads: 4})
	require.NoError(t, err)

	require.Len(t, engine.Params, 1)
	assert.Equal(t, speech.SamplingGreedy, engine.Params[0].Sampling)
	assert.Equal(t, "en", engine.Params[0].Language)
	assert.Equal(t, 4, engine.Params[0].Threads)
	assert.Equal(t, samples, engine.Samples[0])
}

func TestTranscribeEngineFailure(t *testing.T) {
	engine := &enginetest.Speech{Segments: []string{"partial"}, DecodeErr: enginetest.ErrScripted}

	got, err := speech.Transcribe(context.Background(), engine, []float32{0}, speech.DecodeParams{})
	require.Error(t, err)
	assert.ErrorIs(t, err, speech.ErrEngine)
	assert.ErrorIs(t, err, enginetest.ErrScripted)
	assert.Equal(t, "", got)
}

func TestTranscribeCanceled(t *testing.T) {
	engine := &enginetest.Speech{Segments: []string{"x"}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := speech.Transcribe(ctx, engine, []float32{0}, speech.DecodeParams{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, engine.Params)
}

func TestOpen(t *testing.T) {
	engine := &enginetest.Speech{}

	got, err := speech.Open(engine.Opener(nil), "model.bin", speech.ContextParams{})
	require.NoError(t, err)
	assert.Same(t, engine, got)

	_, err = speech.Open(engine.Opener(enginetest.ErrScripted), "model.bin", speech.ContextParams{})
	assert.ErrorIs(t, err, speech.ErrEngine)
	assert.ErrorIs(t, err, enginetest.ErrScripted)
}

func TestOpenerFor(t *testing.T) {
	for _, kind := range []speech.Kind{"", speech.KindWhisper, speech.KindVosk} {
		open, err := speech.OpenerFor(kind)
		require.NoError(t, err, kind)
		assert.NotNil(t, open)
	}

	_, err := speech.OpenerFor("deepspeech")
	assert.Error(t, err)
}
