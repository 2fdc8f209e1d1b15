package llm

import "fmt"

const (
	// DefaultTokenMargin is added to len(text) when sizing the token buffer.
	DefaultTokenMargin = 32
	// DefaultPieceSize is the buffer size for a single token's text.
	DefaultPieceSize = 256
)

// Tokenizer converts text to tokens and tokens back to text.
type Tokenizer struct {
	vocab     Vocab
	margin    int
	pieceSize int
}

// NewTokenizer wraps vocab. Non-positive sizes fall back to the defaults.
func NewTokenizer(vocab Vocab, margin, pieceSize int) *Tokenizer {
	if margin <= 0 {
		margin = DefaultTokenMargin
	}
	if pieceSize <= 0 {
		pieceSize = DefaultPieceSize
	}
	return &Tokenizer{vocab: vocab, margin: margin, pieceSize: pieceSize}
}

// Encode tokenizes text with a leading BOS and no trailing marker.
func (t *Tokenizer) Encode(text string) ([]Token, error) {
	buf := make([]Token, len(text)+t.margin)

	n := t.vocab.Tokenize(text, true, false, buf)
	if n < 0 {
		return nil, fmt.Errorf("%w: engine returned %d for %d-byte text (buffer %d)", ErrTokenize, n, len(text), len(buf))
	}
	if n > len(buf) {
		return nil, fmt.Errorf("%w: engine reported %d tokens for buffer of %d", ErrTokenize, n, len(buf))
	}

	return buf[:n], nil
}

// DecodePiece returns the raw bytes of tok. The result may be empty or an
// incomplete UTF-8 sequence.
func (t *Tokenizer) DecodePiece(tok Token) ([]byte, error) {
	buf := make([]byte, t.pieceSize)

	n := t.vocab.TokenToPiece(tok, buf, false)
	if n < 0 {
		return nil, fmt.Errorf("%w: token %d: engine returned %d", ErrDecode, tok, n)
	}
	if n > len(buf) {
		return nil, fmt.Errorf("%w: token %d: piece of %d bytes exceeds buffer %d", ErrDecode, tok, n, len(buf))
	}

	return buf[:n], nil
}
