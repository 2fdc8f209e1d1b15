// Package llm drives an autoregressive text engine token by token: it seeds the
// engine with a prompt, then predicts, detokenizes and stops on EOS or a step limit.
//
// The engine itself is opaque. Model, Context, Vocab and Batch describe the calls the
// generation loop needs; the llama.cpp adapter implements them behind the llama build tag.
package llm

import (
	"errors"
	"fmt"
)

var (
	// ErrEngine is reported when the text engine fails a required call.
	ErrEngine = errors.New("llm: engine error")
	// ErrTokenize is reported when the prompt cannot be tokenized.
	ErrTokenize = errors.New("llm: tokenize error")
	// ErrDecode is reported when a token cannot be converted to text.
	ErrDecode = errors.New("llm: decode error")
	// ErrUnavailable is returned by loaders not compiled into this binary.
	ErrUnavailable = errors.New("llm: engine not compiled in")
)

// Token is a vocabulary id.
type Token int32

// Vocab is the tokenizer side of a loaded model.
type Vocab interface {
	// Tokenize writes tokens for text into out and returns their count.
	// A negative result means the engine failed (for llama.cpp: out is too small).
	Tokenize(text string, addBOS, parseSpecial bool, out []Token) int

	// TokenToPiece writes the bytes of tok into out and returns their length.
	// Zero is valid; a negative result means failure.
	TokenToPiece(tok Token, out []byte, special bool) int

	// EOS returns the end-of-sequence token.
	EOS() Token

	// IsEOG reports whether tok ends generation. EOS is always one of them.
	IsEOG(tok Token) bool
}

// Batch is a transient decode batch. It must be freed on every path.
type Batch interface {
	Add(tok Token, wantLogits bool) error
	Len() int
	Token(i int) Token
	Free()
}

// Context is an inference session with engine-internal growing state.
// It must not be reused after a failed Decode.
type Context interface {
	// NewBatch allocates a batch with room for capacity tokens.
	NewBatch(capacity int) (Batch, error)

	// Decode feeds the batch tokens into the context.
	Decode(b Batch) error

	// Predict selects the next token greedily, stores it in slot 0 of b
	// and commits it to the context. End-of-generation tokens may be left
	// uncommitted; the loop stops on them.
	Predict(b Batch) error

	Close() error
}

// ModelParams are load-time options.
type ModelParams struct {
	GPULayers int
}

// ContextParams are session options. Zero values keep the engine defaults.
type ContextParams struct {
	ContextSize int
	BatchSize   int
	Threads     int
}

// Model is a loaded model file.
type Model interface {
	Vocab() Vocab
	NewContext(p ContextParams) (Context, error)
	Close() error
}

// Loader loads a model from disk.
type Loader func(path string, p ModelParams) (Model, error)

// Load runs loader and marks a failure or missing handle as ErrEngine.
func Load(loader Loader, path string, p ModelParams) (Model, error) {
	model, err := loader(path, p)
	if err != nil {
		return nil, fmt.Errorf("%w: load %q: %w", ErrEngine, path, err)
	}
	if model == nil {
		return nil, fmt.Errorf("%w: load %q returned no handle", ErrEngine, path)
	}
	return model, nil
}

// NewContext creates a session on model and marks a failure as ErrEngine.
func NewContext(model Model, p ContextParams) (Context, error) {
	lctx, err := model.NewContext(p)
	if err != nil {
		return nil, fmt.Errorf("%w: init context: %w", ErrEngine, err)
	}
	if lctx == nil {
		return nil, fmt.Errorf("%w: init context returned no handle", ErrEngine)
	}
	return lctx, nil
}
