//go:build vosk

package speech

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	vosk "github.com/alphacep/vosk-api/go"

	"speechreply/internal/audio"
)

// VoskEngine реализует Engine через Vosk. Vosk отдаёт один финальный результат,
// поэтому сегмент всегда один.
type VoskEngine struct {
	mu         sync.Mutex
	model      *vosk.VoskModel
	recognizer *vosk.VoskRecognizer
	segments   []string
}

type voskResult struct {
	Text string `json:"text"`
}

// NewVosk загружает модель Vosk из директории.
func NewVosk(modelPath string, _ ContextParams) (Engine, error) {
	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("vosk model not found: %s", modelPath)
	}

	model, err := vosk.NewModel(modelPath)
	if err != nil {
		return nil, fmt.Errorf("load vosk model: %w", err)
	}

	rec, err := vosk.NewRecognizer(model, float64(audio.SampleRate))
	if err != nil {
		model.Free()
		return nil, err
	}

	return &VoskEngine{model: model, recognizer: rec}, nil
}

// Decode распознаёт волну. Vosk принимает PCM16, поэтому конвертируем обратно.
func (v *VoskEngine) Decode(params DecodeParams, samples []float32) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.segments = nil
	if v.recognizer == nil {
		return errors.New("vosk recognizer closed")
	}

	pcm := audio.ToPCM16(samples)
	buf := make([]byte, len(pcm)*audio.BytesPerSample)
	for i, s := range pcm {
		binary.LittleEndian.PutUint16(buf[i*audio.BytesPerSample:], uint16(s))
	}

	v.recognizer.AcceptWaveform(buf)
	resultJSON := v.recognizer.FinalResult()
	v.recognizer.Reset()

	var result voskResult
	if err := json.Unmarshal([]byte(resultJSON), &result); err != nil {
		return err
	}
	v.segments = []string{result.Text}

	return nil
}

// SegmentCount возвращает число сегментов.
func (v *VoskEngine) SegmentCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.segments)
}

// SegmentText возвращает текст сегмента.
func (v *VoskEngine) SegmentText(i int) string {
	v.mu.Lock()
	defer v.mu.Unlock()
	if i < 0 || i >= len(v.segments) {
		return ""
	}
	return v.segments[i]
}

// Close освобождает ресурсы.
func (v *VoskEngine) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.recognizer != nil {
		v.recognizer.Free()
		v.recognizer = nil
	}
	if v.model != nil {
		v.model.Free()
		v.model = nil
	}
	return nil
}
