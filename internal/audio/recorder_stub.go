//go:build !portaudio

package audio

import (
	"context"
	"errors"
	"time"
)

// ErrNoCapture - сборка без portaudio.
var ErrNoCapture = errors.New("audio capture is disabled in this build (rebuild with -tags portaudio)")

// Capture недоступен без тега portaudio.
func Capture(ctx context.Context, d time.Duration) (Waveform, error) {
	return nil, ErrNoCapture
}
