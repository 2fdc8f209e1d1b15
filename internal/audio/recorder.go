//go:build portaudio

package audio

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
)

// FramesPerBuffer - размер буфера чтения с устройства.
const FramesPerBuffer = 1024

// Recorder записывает 16kHz mono с устройства ввода по умолчанию.
type Recorder struct {
	mu      sync.Mutex
	stream  *portaudio.Stream
	buffer  []float32
	samples []float32
	running bool
	done    chan struct{}
}

// NewRecorder инициализирует portaudio.
func NewRecorder() (*Recorder, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, err
	}
	return &Recorder{buffer: make([]float32, FramesPerBuffer)}, nil
}

// Start открывает поток и начинает запись.
func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return nil
	}

	stream, err := portaudio.OpenDefaultStream(1, 0, SampleRate, FramesPerBuffer, r.buffer)
	if err != nil {
		return err
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return err
	}

	r.stream = stream
	r.samples = make([]float32, 0, SampleRate*30)
	r.done = make(chan struct{})
	r.running = true

	go r.recordLoop(stream)

	return nil
}

func (r *Recorder) recordLoop(stream *portaudio.Stream) {
	defer close(r.done)

	for {
		if err := stream.Read(); err != nil {
			r.mu.Lock()
			running := r.running
			r.mu.Unlock()
			if !running {
				return
			}
			slog.Debug("ошибка чтения с устройства", "err", err)
			time.Sleep(10 * time.Millisecond)
			continue
		}

		r.mu.Lock()
		if !r.running {
			r.mu.Unlock()
			return
		}
		r.samples = append(r.samples, r.buffer...)
		r.mu.Unlock()
	}
}

// Stop останавливает запись и возвращает сэмплы.
func (r *Recorder) Stop() Waveform {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	stream := r.stream
	r.stream = nil
	samples := r.samples
	r.samples = nil
	done := r.done
	r.mu.Unlock()

	stream.Stop()
	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
	}
	stream.Close()

	return samples
}

// Close останавливает запись и освобождает portaudio.
func (r *Recorder) Close() {
	r.Stop()
	portaudio.Terminate()
}

// Capture записывает d или до отмены ctx, что наступит раньше.
func Capture(ctx context.Context, d time.Duration) (Waveform, error) {
	rec, err := NewRecorder()
	if err != nil {
		return nil, err
	}
	defer rec.Close()

	if err := rec.Start(); err != nil {
		return nil, err
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
	}

	return rec.Stop(), nil
}
