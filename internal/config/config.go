// Package config хранит настройки пайплайна и загружает их из YAML.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"speechreply/internal/audio"
	"speechreply/internal/llm"
	"speechreply/internal/speech"
)

// Пути по умолчанию для трёх позиционных аргументов.
const (
	DefaultAudioPath       = "tests/Voice.wav"
	DefaultSpeechModelPath = "models/ggml-medium-q8_0.bin"
	DefaultTextModelPath   = "models/llama-3.2-3b-instruct.gguf"
)

// Config - полная конфигурация.
type Config struct {
	Audio         AudioConfig   `yaml:"audio"`
	Speech        SpeechConfig  `yaml:"speech"`
	Text          TextConfig    `yaml:"text"`
	Logging       LoggingConfig `yaml:"logging"`
	ModelsDir     string        `yaml:"models_dir"`
	Notifications bool          `yaml:"notifications"`
}

// AudioConfig - разбор входного PCM16.
type AudioConfig struct {
	HeaderSize int     `yaml:"header_size"`
	Divisor    float32 `yaml:"divisor"`
}

// SpeechConfig - движок распознавания.
type SpeechConfig struct {
	Engine    speech.Kind `yaml:"engine"`
	ModelPath string      `yaml:"model_path"`
	UseGPU    bool        `yaml:"use_gpu"`
	GPUDevice int         `yaml:"gpu_device"`
	FlashAttn bool        `yaml:"flash_attn"`
	Language  string      `yaml:"language"`
	Threads   int         `yaml:"threads"`
}

// TextConfig - движок генерации текста.
type TextConfig struct {
	ModelPath   string `yaml:"model_path"`
	GPULayers   int    `yaml:"gpu_layers"`
	ContextSize int    `yaml:"context_size"`
	BatchSize   int    `yaml:"batch_size"`
	Threads     int    `yaml:"threads"`
	MaxSteps    int    `yaml:"max_steps"`
	TokenMargin int    `yaml:"token_margin"`
	PieceBuffer int    `yaml:"piece_buffer"`
	// SeedBatch - токенов промпта на один decode; -1 - весь промпт сразу.
	SeedBatch int `yaml:"seed_batch"`
}

// LoggingConfig - вывод диагностики.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default возвращает конфигурацию по умолчанию.
func Default() *Config {
	return &Config{
		Audio: AudioConfig{
			HeaderSize: audio.DefaultHeaderSize,
			Divisor:    audio.DefaultDivisor,
		},
		Speech: SpeechConfig{
			Engine:    speech.KindWhisper,
			ModelPath: DefaultSpeechModelPath,
			UseGPU:    true,
			GPUDevice: 0,
			FlashAttn: false,
			Language:  "auto",
		},
		Text: TextConfig{
			ModelPath:   DefaultTextModelPath,
			ContextSize: 2048,
			BatchSize:   512,
			MaxSteps:    llm.DefaultMaxSteps,
			TokenMargin: llm.DefaultTokenMargin,
			PieceBuffer: llm.DefaultPieceSize,
			SeedBatch:   llm.DefaultSeedBatch,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		ModelsDir: "models",
	}
}

// Load читает YAML поверх значений по умолчанию. Пустой путь - только defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate проверяет все секции.
func (c *Config) Validate() error {
	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}
	if err := c.Speech.Validate(); err != nil {
		return fmt.Errorf("speech config: %w", err)
	}
	if err := c.Text.Validate(); err != nil {
		return fmt.Errorf("text config: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}
	return nil
}

// Validate проверяет параметры аудио.
func (a *AudioConfig) Validate() error {
	if a.HeaderSize <= 0 {
		return fmt.Errorf("header_size must be positive, got %d", a.HeaderSize)
	}
	if a.Divisor <= 0 {
		return fmt.Errorf("divisor must be positive, got %v", a.Divisor)
	}
	return nil
}

// Validate проверяет параметры распознавания.
func (s *SpeechConfig) Validate() error {
	if _, err := speech.OpenerFor(s.Engine); err != nil {
		return err
	}
	if s.GPUDevice < 0 {
		return fmt.Errorf("gpu_device must be >= 0, got %d", s.GPUDevice)
	}
	if s.Threads < 0 {
		return fmt.Errorf("threads must be >= 0, got %d", s.Threads)
	}
	return nil
}

// Validate проверяет параметры генерации.
func (t *TextConfig) Validate() error {
	if t.MaxSteps <= 0 {
		return fmt.Errorf("max_steps must be positive, got %d", t.MaxSteps)
	}
	if t.TokenMargin <= 0 {
		return fmt.Errorf("token_margin must be positive, got %d", t.TokenMargin)
	}
	if t.PieceBuffer < 8 {
		return fmt.Errorf("piece_buffer must be at least 8 bytes, got %d", t.PieceBuffer)
	}
	if t.SeedBatch == 0 || t.SeedBatch < -1 {
		return fmt.Errorf("seed_batch must be positive or -1, got %d", t.SeedBatch)
	}
	if t.ContextSize < 0 || t.BatchSize < 0 || t.Threads < 0 || t.GPULayers < 0 {
		return errors.New("context_size, batch_size, threads and gpu_layers must be >= 0")
	}
	return nil
}

// Validate проверяет параметры логирования.
func (l *LoggingConfig) Validate() error {
	if _, err := ParseLevel(l.Level); err != nil {
		return err
	}
	switch l.Format {
	case "text", "json":
		return nil
	default:
		return fmt.Errorf("format must be text or json, got %q", l.Format)
	}
}

// ParseLevel переводит имя уровня в slog.Level.
func ParseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(name))); err != nil {
		return 0, fmt.Errorf("unknown log level %q", name)
	}
	return level, nil
}

// AudioOptions возвращает параметры разбора аудио.
func (c *Config) AudioOptions() audio.Options {
	return audio.Options{HeaderSize: c.Audio.HeaderSize, Divisor: c.Audio.Divisor}
}

// SpeechParams возвращает параметры инициализации движка распознавания.
func (c *Config) SpeechParams() speech.ContextParams {
	return speech.ContextParams{
		UseGPU:    c.Speech.UseGPU,
		GPUDevice: c.Speech.GPUDevice,
		FlashAttn: c.Speech.FlashAttn,
	}
}

// DecodeParams возвращает параметры прогона распознавания.
func (c *Config) DecodeParams() speech.DecodeParams {
	return speech.DecodeParams{
		Sampling: speech.SamplingGreedy,
		Language: c.Speech.Language,
		Threads:  c.Speech.Threads,
	}
}

// ModelParams возвращает параметры загрузки текстовой модели.
func (c *Config) ModelParams() llm.ModelParams {
	return llm.ModelParams{GPULayers: c.Text.GPULayers}
}

// ContextParams возвращает параметры контекста текстовой модели.
func (c *Config) ContextParams() llm.ContextParams {
	return llm.ContextParams{
		ContextSize: c.Text.ContextSize,
		BatchSize:   c.Text.BatchSize,
		Threads:     c.Text.Threads,
	}
}

// Generation возвращает параметры цикла генерации.
func (c *Config) Generation() llm.Config {
	return llm.Config{
		MaxSteps:    c.Text.MaxSteps,
		SeedBatch:   c.Text.SeedBatch,
		TokenMargin: c.Text.TokenMargin,
		PieceSize:   c.Text.PieceBuffer,
	}
}
