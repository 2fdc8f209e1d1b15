// Package audio читает PCM16 аудио (raw или WAV) и пишет его обратно в WAV.
package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

const (
	// DefaultHeaderSize - размер канонического PCM WAV заголовка.
	DefaultHeaderSize = 44
	// DefaultDivisor - делитель нормализации int16 -> float32.
	DefaultDivisor = 32768.0
	// SampleRate - частота дискретизации, которую ожидает движок распознавания.
	SampleRate = 16000
	// BytesPerSample - ширина сэмпла PCM16.
	BytesPerSample = 2
)

var riffMagic = []byte("RIFF")

var (
	// ErrIO - источник не удалось открыть или прочитать целиком.
	ErrIO = errors.New("audio: io error")
	// ErrFormat - неверный размер или контейнер.
	ErrFormat = errors.New("audio: format error")
)

// Options задаёт политику разбора. Нулевые поля заменяются значениями по умолчанию.
type Options struct {
	HeaderSize int
	Divisor    float32
}

// DefaultOptions возвращает параметры канонического WAV.
func DefaultOptions() Options {
	return Options{HeaderSize: DefaultHeaderSize, Divisor: DefaultDivisor}
}

func (o Options) withDefaults() Options {
	if o.HeaderSize <= 0 {
		o.HeaderSize = DefaultHeaderSize
	}
	if o.Divisor == 0 {
		o.Divisor = DefaultDivisor
	}
	return o
}

// Waveform - нормализованные сэмплы 16kHz mono.
type Waveform []float32

// Duration возвращает длительность при частоте SampleRate.
func (w Waveform) Duration() time.Duration {
	return time.Duration(len(w)) * time.Second / SampleRate
}

// Source - источник сырых байтов аудио.
type Source interface {
	Open() (io.ReadCloser, error)
	Name() string
}

type fileSource string

// File возвращает источник, читающий файл по пути.
func File(path string) Source { return fileSource(path) }

func (f fileSource) Open() (io.ReadCloser, error) { return os.Open(string(f)) }
func (f fileSource) Name() string                 { return string(f) }

type bytesSource struct {
	name string
	data []byte
}

// Bytes возвращает источник поверх буфера в памяти.
func Bytes(name string, data []byte) Source {
	return bytesSource{name: name, data: data}
}

func (b bytesSource) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(b.data)), nil
}
func (b bytesSource) Name() string { return b.name }

// Load читает файл и декодирует его в Waveform.
func Load(path string, opts Options) (Waveform, error) {
	return Read(File(path), opts)
}

// Read открывает источник, читает его полностью и декодирует.
func Read(src Source, opts Options) (Waveform, error) {
	rc, err := src.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: open %q: %w", ErrIO, src.Name(), err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("%w: read %q: %w", ErrIO, src.Name(), err)
	}

	return Decode(data, opts)
}

// IsWAV сообщает, начинается ли поток с "RIFF".
func IsWAV(data []byte) bool {
	return len(data) >= len(riffMagic) && bytes.Equal(data[:len(riffMagic)], riffMagic)
}

// Decode превращает байты raw PCM16 или WAV в Waveform.
// WAV заголовок пропускается целиком без разбора полей.
func Decode(data []byte, opts Options) (Waveform, error) {
	opts = opts.withDefaults()

	pcm := data
	if IsWAV(data) {
		size := len(data) - opts.HeaderSize
		if size <= 0 {
			return nil, fmt.Errorf("%w: invalid PCM16 size %d after %d-byte header", ErrFormat, size, opts.HeaderSize)
		}
		pcm = data[opts.HeaderSize:]
	}

	if len(pcm) == 0 || len(pcm)%BytesPerSample != 0 {
		return nil, fmt.Errorf("%w: invalid PCM16 size %d", ErrFormat, len(pcm))
	}

	samples := make(Waveform, len(pcm)/BytesPerSample)
	for i := range samples {
		s := int16(binary.LittleEndian.Uint16(pcm[i*BytesPerSample:]))
		samples[i] = float32(s) / opts.Divisor
	}

	return samples, nil
}
