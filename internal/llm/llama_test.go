//go:build llama

package llm

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLlamaGenerate(t *testing.T) {
	path := os.Getenv("SPEECHREPLY_LLAMA_MODEL")
	if path == "" {
		t.Skip("SPEECHREPLY_LLAMA_MODEL not set")
	}

	model, err := Load(LoadLlama, path, ModelParams{})
	require.NoError(t, err)
	defer model.Close()

	lctx, err := NewContext(model, ContextParams{ContextSize: 512})
	require.NoError(t, err)
	defer lctx.Close()

	g := NewGenerator(model, lctx, Config{MaxSteps: 8, SeedBatch: -1})
	res, err := g.Generate(context.Background(), "The capital of France is")
	require.NoError(t, err)

	assert.LessOrEqual(t, len(res.Generated), 8)
	assert.NotEmpty(t, res.Prompt)
	assert.Contains(t, []StopReason{StopEOS, StopMaxSteps}, res.Stop)
}

func TestLlamaMissingModel(t *testing.T) {
	_, err := Load(LoadLlama, "/nonexistent/model.gguf", ModelParams{})
	assert.ErrorIs(t, err, ErrEngine)
}
