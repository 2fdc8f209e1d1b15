package llm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"unicode/utf8"
)

const (
	// DefaultMaxSteps caps the number of predictions per request.
	DefaultMaxSteps = 100
	// DefaultSeedBatch submits the prompt one token per decode call.
	DefaultSeedBatch = 1
)

// StopReason tells why the generation loop ended.
type StopReason string

const (
	StopEOS        StopReason = "eos" // EOS or any other end-of-generation token
	StopMaxSteps   StopReason = "max-steps"
	StopEngine     StopReason = "engine"
	StopDetokenize StopReason = "detokenize"
)

// Config controls a Generator.
type Config struct {
	// MaxSteps bounds the number of predictions. Zero means DefaultMaxSteps.
	MaxSteps int
	// SeedBatch is the number of prompt tokens per decode call.
	// Zero means DefaultSeedBatch; a negative value submits the whole prompt at once.
	SeedBatch int
	// TokenMargin and PieceSize size the tokenizer buffers.
	TokenMargin int
	PieceSize   int
}

// Result is the final generation state.
type Result struct {
	Text      string
	Prompt    []Token
	Generated []Token
	// Steps counts predictions requested from the engine, including the one that stopped the loop.
	Steps int
	Stop  StopReason
}

// Generator runs the autoregressive loop against one context.
type Generator struct {
	lctx  Context
	vocab Vocab
	tok   *Tokenizer
	cfg   Config

	// OnPiece, if set, receives response text as soon as it forms complete UTF-8.
	OnPiece func(text string)
}

// NewGenerator binds a generator to model's vocabulary and a context created from it.
func NewGenerator(model Model, lctx Context, cfg Config) *Generator {
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = DefaultMaxSteps
	}
	if cfg.SeedBatch == 0 {
		cfg.SeedBatch = DefaultSeedBatch
	}
	vocab := model.Vocab()
	return &Generator{
		lctx:  lctx,
		vocab: vocab,
		tok:   NewTokenizer(vocab, cfg.TokenMargin, cfg.PieceSize),
		cfg:   cfg,
	}
}

// state is owned by one Generate call.
type state struct {
	tokens    []Token
	promptLen int
	out       bytes.Buffer
	pending   []byte
	eos       bool
	step      int
}

// Generate seeds the context with prompt and generates up to MaxSteps tokens.
//
// Tokenization and seeding failures are fatal. Engine or detokenize failures
// during generation end the loop and return the text produced so far.
func (g *Generator) Generate(ctx context.Context, prompt string) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tokens, err := g.tok.Encode(prompt)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("%w: empty token sequence", ErrTokenize)
	}

	if err := g.seed(tokens); err != nil {
		return nil, err
	}
	slog.DebugContext(ctx, "промпт загружен", "tokens", len(tokens), "seed_batch", g.cfg.SeedBatch)

	st := &state{tokens: tokens, promptLen: len(tokens)}
	stop := StopMaxSteps

	for st.step < g.cfg.MaxSteps {
		st.step++

		next, err := g.predict()
		if err != nil {
			slog.WarnContext(ctx, "генерация прервана движком", "step", st.step, "err", err)
			stop = StopEngine
			break
		}

		if next == g.vocab.EOS() || g.vocab.IsEOG(next) {
			st.eos = true
			stop = StopEOS
			break
		}

		piece, err := g.tok.DecodePiece(next)
		if err != nil {
			slog.WarnContext(ctx, "генерация прервана детокенизацией", "step", st.step, "err", err)
			stop = StopDetokenize
			break
		}

		st.tokens = append(st.tokens, next)
		st.out.Write(piece)
		g.emit(st, piece, false)
	}
	g.emit(st, nil, true)

	res := &Result{
		Text:      st.out.String(),
		Prompt:    st.tokens[:st.promptLen:st.promptLen],
		Generated: st.tokens[st.promptLen:],
		Steps:     st.step,
		Stop:      stop,
	}
	slog.InfoContext(ctx, "генерация завершена",
		"stop", res.Stop, "steps", res.Steps, "generated", len(res.Generated), "bytes", len(res.Text))

	return res, nil
}

// seed submits the prompt. Only the last prompt token requests logits.
func (g *Generator) seed(tokens []Token) error {
	size := g.cfg.SeedBatch
	if size < 0 || size > len(tokens) {
		size = len(tokens)
	}

	for start := 0; start < len(tokens); start += size {
		end := min(start+size, len(tokens))
		if err := g.submit(tokens[start:end], end == len(tokens)); err != nil {
			return fmt.Errorf("%w: seed tokens [%d, %d): %w", ErrEngine, start, end, err)
		}
	}
	return nil
}

func (g *Generator) submit(chunk []Token, last bool) error {
	b, err := g.lctx.NewBatch(len(chunk))
	if err != nil {
		return err
	}
	defer b.Free()

	for i, tok := range chunk {
		if err := b.Add(tok, last && i == len(chunk)-1); err != nil {
			return err
		}
	}
	return g.lctx.Decode(b)
}

func (g *Generator) predict() (Token, error) {
	b, err := g.lctx.NewBatch(1)
	if err != nil {
		return 0, err
	}
	defer b.Free()

	if err := g.lctx.Predict(b); err != nil {
		return 0, err
	}
	if b.Len() != 1 {
		return 0, errors.New("prediction slot is empty")
	}
	return b.Token(0), nil
}

// emit forwards the complete UTF-8 prefix of the pending bytes to OnPiece.
func (g *Generator) emit(st *state, piece []byte, final bool) {
	if g.OnPiece == nil {
		return
	}
	st.pending = append(st.pending, piece...)

	cut := len(st.pending)
	if !final {
		cut = completePrefix(st.pending)
	}
	if cut == 0 {
		return
	}

	g.OnPiece(string(st.pending[:cut]))
	st.pending = append(st.pending[:0], st.pending[cut:]...)
}

// completePrefix returns the length of p without a trailing incomplete rune.
func completePrefix(p []byte) int {
	for i := len(p) - 1; i >= 0 && i >= len(p)-utf8.UTFMax; i-- {
		if !utf8.RuneStart(p[i]) {
			continue
		}
		if utf8.FullRune(p[i:]) {
			return len(p)
		}
		return i
	}
	return len(p)
}
