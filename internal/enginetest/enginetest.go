// Package enginetest provides scripted in-process speech and text engines for tests.
package enginetest

import (
	"errors"
	"fmt"
	"sync"

	"speechreply/internal/llm"
	"speechreply/internal/speech"
)

// ErrScripted is the error returned by scripted failures.
var ErrScripted = errors.New("scripted engine failure")

// Journal records engine lifecycle events in order.
type Journal struct {
	mu     sync.Mutex
	events []string
}

// Record appends an event. A nil Journal ignores it.
func (j *Journal) Record(event string) {
	if j == nil {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = append(j.events, event)
}

// Events returns a copy of the recorded events.
func (j *Journal) Events() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.events...)
}

// Speech is a speech engine returning fixed segments.
type Speech struct {
	Segments  []string
	DecodeErr error
	Journal   *Journal

	Params  []speech.DecodeParams
	Samples [][]float32
	Closed  int
	decoded bool
}

// Decode records the call and fails with DecodeErr if set.
func (s *Speech) Decode(params speech.DecodeParams, samples []float32) error {
	s.Journal.Record("speech.decode")
	s.Params = append(s.Params, params)
	s.Samples = append(s.Samples, samples)
	if s.DecodeErr != nil {
		s.decoded = false
		return s.DecodeErr
	}
	s.decoded = true
	return nil
}

// SegmentCount returns len(Segments) after a successful Decode.
func (s *Speech) SegmentCount() int {
	if !s.decoded {
		return 0
	}
	return len(s.Segments)
}

// SegmentText returns segment i.
func (s *Speech) SegmentText(i int) string {
	return s.Segments[i]
}

// Close counts releases.
func (s *Speech) Close() error {
	s.Journal.Record("speech.close")
	s.Closed++
	return nil
}

// Opener returns an opener handing out s, or err when err is non-nil.
func (s *Speech) Opener(err error) speech.Opener {
	return func(modelPath string, params speech.ContextParams) (speech.Engine, error) {
		s.Journal.Record("speech.open")
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// BOS is the token Vocab puts in front of every tokenized text.
const BOS llm.Token = 1

// Vocab tokenizes one token per byte (256+b) after BOS.
type Vocab struct {
	EOSToken llm.Token
	// EOGTokens are end-of-generation tokens other than EOSToken.
	EOGTokens map[llm.Token]bool
	// Pieces maps tokens to text. Byte tokens default to their byte.
	Pieces map[llm.Token]string
	// FailPieces makes TokenToPiece return a negative length.
	FailPieces map[llm.Token]bool
	// TokenizeResult, if non-zero, is returned by Tokenize instead of a count.
	TokenizeResult int

	TokenizeCalls int
	BufferSizes   []int
	AddBOS        []bool
}

// ByteToken returns the token Vocab assigns to b.
func ByteToken(b byte) llm.Token {
	return llm.Token(256 + int(b))
}

// Tokenize implements llm.Vocab.
func (v *Vocab) Tokenize(text string, addBOS, parseSpecial bool, out []llm.Token) int {
	v.TokenizeCalls++
	v.BufferSizes = append(v.BufferSizes, len(out))
	v.AddBOS = append(v.AddBOS, addBOS)
	if v.TokenizeResult != 0 {
		return v.TokenizeResult
	}

	tokens := make([]llm.Token, 0, len(text)+1)
	if addBOS {
		tokens = append(tokens, BOS)
	}
	for i := 0; i < len(text); i++ {
		tokens = append(tokens, ByteToken(text[i]))
	}
	if len(tokens) > len(out) {
		return -len(tokens)
	}
	return copy(out, tokens)
}

// TokenToPiece implements llm.Vocab.
func (v *Vocab) TokenToPiece(tok llm.Token, out []byte, special bool) int {
	if v.FailPieces[tok] {
		return -1
	}
	piece, ok := v.Pieces[tok]
	if !ok && tok >= 256 && tok < 512 {
		piece = string([]byte{byte(tok - 256)})
	}
	if len(piece) > len(out) {
		return -len(piece)
	}
	return copy(out, piece)
}

// EOS implements llm.Vocab.
func (v *Vocab) EOS() llm.Token {
	return v.EOSToken
}

// IsEOG implements llm.Vocab.
func (v *Vocab) IsEOG(tok llm.Token) bool {
	return tok == v.EOSToken || v.EOGTokens[tok]
}

// Context replays Script as predictions.
type Context struct {
	// Script lists predicted tokens; after it runs out Filler is predicted.
	Script []llm.Token
	Filler llm.Token
	// PredictErrAt / DecodeErrAt fail the n-th call (1-based); zero never fails.
	PredictErrAt int
	DecodeErrAt  int
	Journal      *Journal

	Fed          []llm.Token
	Logits       []bool
	BatchSizes   []int
	DecodeCalls  int
	PredictCalls int
	Allocated    int
	Freed        int
	Closed       int
}

// NewBatch implements llm.Context.
func (c *Context) NewBatch(capacity int) (llm.Batch, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("invalid batch capacity %d", capacity)
	}
	c.Allocated++
	return &Batch{ctx: c, capacity: capacity}, nil
}

// Decode implements llm.Context.
func (c *Context) Decode(b llm.Batch) error {
	c.DecodeCalls++
	if c.DecodeErrAt == c.DecodeCalls {
		return ErrScripted
	}
	fb := b.(*Batch)
	c.BatchSizes = append(c.BatchSizes, len(fb.tokens))
	c.Fed = append(c.Fed, fb.tokens...)
	c.Logits = append(c.Logits, fb.logits...)
	return nil
}

// Predict implements llm.Context.
func (c *Context) Predict(b llm.Batch) error {
	c.PredictCalls++
	if c.PredictErrAt == c.PredictCalls {
		return ErrScripted
	}
	tok := c.Filler
	if c.PredictCalls <= len(c.Script) {
		tok = c.Script[c.PredictCalls-1]
	}
	return b.Add(tok, true)
}

// Close implements llm.Context.
func (c *Context) Close() error {
	c.Journal.Record("text.context.close")
	c.Closed++
	return nil
}

// Live returns the number of allocated but not freed batches.
func (c *Context) Live() int {
	return c.Allocated - c.Freed
}

// Batch is a fixed-capacity token batch.
type Batch struct {
	ctx      *Context
	capacity int
	tokens   []llm.Token
	logits   []bool
	freed    bool
}

// Add implements llm.Batch.
func (b *Batch) Add(tok llm.Token, wantLogits bool) error {
	if len(b.tokens) >= b.capacity {
		return fmt.Errorf("batch full (%d)", b.capacity)
	}
	b.tokens = append(b.tokens, tok)
	b.logits = append(b.logits, wantLogits)
	return nil
}

// Len implements llm.Batch.
func (b *Batch) Len() int { return len(b.tokens) }

// Token implements llm.Batch.
func (b *Batch) Token(i int) llm.Token { return b.tokens[i] }

// Free implements llm.Batch.
func (b *Batch) Free() {
	if b.freed {
		return
	}
	b.freed = true
	b.ctx.Freed++
}

// Model hands out one Context.
type Model struct {
	V             *Vocab
	Ctx           *Context
	NewContextErr error
	Journal       *Journal

	ContextParams []llm.ContextParams
	Closed        int
}

// Vocab implements llm.Model.
func (m *Model) Vocab() llm.Vocab { return m.V }

// NewContext implements llm.Model.
func (m *Model) NewContext(p llm.ContextParams) (llm.Context, error) {
	m.Journal.Record("text.context.open")
	m.ContextParams = append(m.ContextParams, p)
	if m.NewContextErr != nil {
		return nil, m.NewContextErr
	}
	return m.Ctx, nil
}

// Close implements llm.Model.
func (m *Model) Close() error {
	m.Journal.Record("text.model.close")
	m.Closed++
	return nil
}

// Loader returns a loader handing out m, or err when err is non-nil.
func (m *Model) Loader(err error) llm.Loader {
	return func(path string, p llm.ModelParams) (llm.Model, error) {
		m.Journal.Record("text.model.load")
		if err != nil {
			return nil, err
		}
		return m, nil
	}
}

// NewTextEngine builds a model whose context predicts script and then eos.
func NewTextEngine(eos llm.Token, script ...llm.Token) *Model {
	return &Model{
		V:   &Vocab{EOSToken: eos},
		Ctx: &Context{Script: script, Filler: eos},
	}
}
