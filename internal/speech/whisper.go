//go:build whisper

package speech

import (
	"errors"
	"io"
	"log/slog"
	"sync"

	whisper "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

// WhisperEngine реализует Engine через whisper.cpp.
type WhisperEngine struct {
	mu       sync.Mutex
	model    whisper.Model
	segments []string
}

// NewWhisper загружает модель whisper.cpp.
// Go bindings не принимают параметры устройства, они логируются и игнорируются.
func NewWhisper(modelPath string, params ContextParams) (Engine, error) {
	model, err := whisper.New(modelPath)
	if err != nil {
		return nil, err
	}

	slog.Debug("whisper: модель загружена",
		"model", modelPath, "use_gpu", params.UseGPU, "gpu_device", params.GPUDevice, "flash_attn", params.FlashAttn)

	return &WhisperEngine{model: model}, nil
}

// Decode распознаёт волну целиком. Контекст whisper создаётся с жадной стратегией.
func (w *WhisperEngine) Decode(params DecodeParams, samples []float32) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.segments = nil
	if w.model == nil {
		return errors.New("whisper model closed")
	}
	if params.Sampling != SamplingGreedy {
		return errors.New("only greedy sampling is supported")
	}

	ctx, err := w.model.NewContext()
	if err != nil {
		return err
	}

	// Только транскрипция, без перевода
	ctx.SetTranslate(false)
	if params.Language != "" {
		if err := ctx.SetLanguage(params.Language); err != nil {
			return err
		}
	}
	if params.Threads > 0 {
		ctx.SetThreads(uint(params.Threads))
	}

	if err := ctx.Process(samples, nil, nil, nil); err != nil {
		return err
	}

	var segments []string
	for {
		segment, err := ctx.NextSegment()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		segments = append(segments, segment.Text)
	}
	w.segments = segments

	return nil
}

// SegmentCount возвращает число сегментов последнего Decode.
func (w *WhisperEngine) SegmentCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.segments)
}

// SegmentText возвращает текст сегмента.
func (w *WhisperEngine) SegmentText(i int) string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if i < 0 || i >= len(w.segments) {
		return ""
	}
	return w.segments[i]
}

// Close освобождает модель.
func (w *WhisperEngine) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.model == nil {
		return nil
	}
	err := w.model.Close()
	w.model = nil
	return err
}
