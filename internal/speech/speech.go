// Package speech предоставляет абстракцию над движком распознавания речи
// и сборку транскрипта из его сегментов.
package speech

import "errors"

// Kind тип движка распознавания.
type Kind string

const (
	// KindWhisper - whisper.cpp движок.
	KindWhisper Kind = "whisper"
	// KindVosk - Vosk движок.
	KindVosk Kind = "vosk"
)

var (
	// ErrEngine - движок вернул ошибку на обязательном вызове.
	ErrEngine = errors.New("speech: engine error")
	// ErrUnavailable - движок не собран в этот бинарник.
	ErrUnavailable = errors.New("speech: engine not compiled in")
)

// Sampling стратегия декодирования.
type Sampling int

const (
	// SamplingGreedy - жадное детерминированное декодирование.
	SamplingGreedy Sampling = iota
	// SamplingBeamSearch - beam search. Пайплайн его не использует.
	SamplingBeamSearch
)

// ContextParams параметры инициализации движка.
type ContextParams struct {
	UseGPU    bool
	GPUDevice int
	FlashAttn bool
}

// DecodeParams параметры одного прогона распознавания.
type DecodeParams struct {
	Sampling Sampling
	// Language - язык ("en", "ru", "auto" для автоопределения).
	Language string
	// Threads - 0 оставляет значение движка.
	Threads int
}

// Engine - сессия движка распознавания.
// Сессия не потокобезопасна и не переиспользуется после ошибки Decode.
type Engine interface {
	// Decode прогоняет модель по всей волне за один вызов.
	// samples - float32, 16kHz, mono.
	Decode(params DecodeParams, samples []float32) error

	// SegmentCount возвращает число сегментов последнего Decode.
	SegmentCount() int

	// SegmentText возвращает текст сегмента i в порядке движка.
	SegmentText(i int) string

	// Close освобождает ресурсы движка.
	Close() error
}

// Opener создаёт сессию движка из файла модели.
type Opener func(modelPath string, params ContextParams) (Engine, error)
