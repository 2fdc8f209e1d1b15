//go:build llama

package llm

/*
#cgo CFLAGS: -I${SRCDIR}/../../third_party/llama.cpp/include -I${SRCDIR}/../../third_party/llama.cpp/ggml/include
// Note: LDFLAGS are set via Makefile's CGO_LDFLAGS to avoid ggml conflicts with whisper.cpp

#include <stdlib.h>
#include "llama.h"

// Helper function to create default model params
static struct llama_model_params get_default_model_params() {
    return llama_model_default_params();
}

// Helper function to create default context params
static struct llama_context_params get_default_context_params() {
    return llama_context_default_params();
}
*/
import "C"
import (
	"errors"
	"fmt"
	"sync"
	"unsafe"
)

// LlamaModel is a GGUF model loaded through llama.cpp.
type LlamaModel struct {
	mu    sync.Mutex
	model *C.struct_llama_model
	vocab *llamaVocab
}

// LoadLlama loads a GGUF model from file.
func LoadLlama(path string, p ModelParams) (Model, error) {
	cPath := C.CString(path)
	defer C.free(unsafe.Pointer(cPath))

	mparams := C.get_default_model_params()
	if p.GPULayers > 0 {
		mparams.n_gpu_layers = C.int32_t(p.GPULayers)
	}

	model := C.llama_model_load_from_file(cPath, mparams)
	if model == nil {
		return nil, errors.New("failed to load model")
	}

	return &LlamaModel{
		model: model,
		vocab: &llamaVocab{vocab: C.llama_model_get_vocab(model)},
	}, nil
}

// Vocab returns the model vocabulary.
func (m *LlamaModel) Vocab() Vocab {
	return m.vocab
}

// NewContext creates an inference context with a greedy sampler.
func (m *LlamaModel) NewContext(p ContextParams) (Context, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.model == nil {
		return nil, errors.New("model not loaded")
	}

	cparams := C.get_default_context_params()
	if p.ContextSize > 0 {
		cparams.n_ctx = C.uint32_t(p.ContextSize)
	}
	if p.BatchSize > 0 {
		cparams.n_batch = C.uint32_t(p.BatchSize)
	}
	if p.Threads > 0 {
		cparams.n_threads = C.int32_t(p.Threads)
		cparams.n_threads_batch = C.int32_t(p.Threads)
	}

	ctx := C.llama_init_from_model(m.model, cparams)
	if ctx == nil {
		return nil, errors.New("failed to create context")
	}

	sparams := C.llama_sampler_chain_default_params()
	sampler := C.llama_sampler_chain_init(sparams)
	C.llama_sampler_chain_add(sampler, C.llama_sampler_init_greedy())

	return &LlamaContext{
		ctx:     ctx,
		sampler: sampler,
		vocab:   m.vocab,
		nCtx:    int(C.llama_n_ctx(ctx)),
	}, nil
}

// Close frees the model.
func (m *LlamaModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.model != nil {
		C.llama_model_free(m.model)
		m.model = nil
	}
	return nil
}

type llamaVocab struct {
	vocab *C.struct_llama_vocab
}

func (v *llamaVocab) Tokenize(text string, addBOS, parseSpecial bool, out []Token) int {
	if len(out) == 0 {
		return -1
	}

	cText := C.CString(text)
	defer C.free(unsafe.Pointer(cText))

	n := C.llama_tokenize(v.vocab, cText, C.int32_t(len(text)),
		(*C.llama_token)(unsafe.Pointer(&out[0])), C.int32_t(len(out)),
		C.bool(addBOS), C.bool(parseSpecial))
	return int(n)
}

func (v *llamaVocab) TokenToPiece(tok Token, out []byte, special bool) int {
	if len(out) == 0 {
		return -1
	}

	n := C.llama_token_to_piece(v.vocab, C.llama_token(tok),
		(*C.char)(unsafe.Pointer(&out[0])), C.int32_t(len(out)), 0, C.bool(special))
	return int(n)
}

func (v *llamaVocab) EOS() Token {
	return Token(C.llama_vocab_eos(v.vocab))
}

func (v *llamaVocab) IsEOG(tok Token) bool {
	return bool(C.llama_vocab_is_eog(v.vocab, C.llama_token(tok)))
}

// LlamaContext is a llama.cpp context. Positions advance with every committed token.
type LlamaContext struct {
	mu      sync.Mutex
	ctx     *C.struct_llama_context
	sampler *C.struct_llama_sampler
	vocab   *llamaVocab
	nPast   int
	nCtx    int
}

// NewBatch allocates a llama_batch for capacity tokens of one sequence.
func (c *LlamaContext) NewBatch(capacity int) (Batch, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("invalid batch capacity %d", capacity)
	}
	return &llamaBatch{
		b:   C.llama_batch_init(C.int32_t(capacity), 0, 1),
		cap: capacity,
	}, nil
}

// Decode assigns positions to the batch tokens and evaluates them.
func (c *LlamaContext) Decode(b Batch) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	lb, ok := b.(*llamaBatch)
	if !ok {
		return errors.New("foreign batch")
	}
	return c.decode(lb)
}

func (c *LlamaContext) decode(lb *llamaBatch) error {
	if c.ctx == nil {
		return errors.New("context closed")
	}

	n := int(lb.b.n_tokens)
	if c.nPast+n > c.nCtx {
		return fmt.Errorf("context full: %d + %d > %d", c.nPast, n, c.nCtx)
	}

	pos := unsafe.Slice(lb.b.pos, lb.cap)
	for i := 0; i < n; i++ {
		pos[i] = C.llama_pos(c.nPast + i)
	}

	if rc := C.llama_decode(c.ctx, lb.b); rc != 0 {
		return fmt.Errorf("llama_decode returned %d", int(rc))
	}
	c.nPast += n
	return nil
}

// Predict samples the next token greedily from the last logits, stores it in
// slot 0 and evaluates it. End-of-generation tokens are not evaluated.
func (c *LlamaContext) Predict(b Batch) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	lb, ok := b.(*llamaBatch)
	if !ok {
		return errors.New("foreign batch")
	}
	if c.ctx == nil {
		return errors.New("context closed")
	}

	tok := Token(C.llama_sampler_sample(c.sampler, c.ctx, -1))

	lb.b.n_tokens = 0
	if err := lb.Add(tok, true); err != nil {
		return err
	}
	if c.vocab.IsEOG(tok) {
		return nil
	}
	return c.decode(lb)
}

// Close frees the sampler and the context.
func (c *LlamaContext) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sampler != nil {
		C.llama_sampler_free(c.sampler)
		c.sampler = nil
	}
	if c.ctx != nil {
		C.llama_free(c.ctx)
		c.ctx = nil
	}
	return nil
}

type llamaBatch struct {
	b     C.struct_llama_batch
	cap   int
	freed bool
}

func (lb *llamaBatch) Add(tok Token, wantLogits bool) error {
	n := int(lb.b.n_tokens)
	if n >= lb.cap {
		return fmt.Errorf("batch full (%d)", lb.cap)
	}

	unsafe.Slice(lb.b.token, lb.cap)[n] = C.llama_token(tok)
	unsafe.Slice(lb.b.n_seq_id, lb.cap)[n] = 1
	*unsafe.Slice(lb.b.seq_id, lb.cap)[n] = 0

	var logits C.int8_t
	if wantLogits {
		logits = 1
	}
	unsafe.Slice(lb.b.logits, lb.cap)[n] = logits

	lb.b.n_tokens++
	return nil
}

func (lb *llamaBatch) Len() int {
	return int(lb.b.n_tokens)
}

func (lb *llamaBatch) Token(i int) Token {
	return Token(unsafe.Slice(lb.b.token, lb.cap)[i])
}

func (lb *llamaBatch) Free() {
	if lb.freed {
		return
	}
	C.llama_batch_free(lb.b)
	lb.freed = true
}
