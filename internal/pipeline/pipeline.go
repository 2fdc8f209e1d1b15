// Package pipeline связывает загрузку аудио, распознавание речи и генерацию ответа в один прогон.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"speechreply/internal/audio"
	"speechreply/internal/config"
	"speechreply/internal/llm"
	"speechreply/internal/metrics"
	"speechreply/internal/notify"
	"speechreply/internal/speech"
)

// Stage - этап прогона, которым помечается ошибка.
type Stage string

const (
	StageLoad       Stage = "load"
	StageSpeechInit Stage = "speech-init"
	StageTranscribe Stage = "transcribe"
	StageTextInit   Stage = "text-init"
	StageGenerate   Stage = "generate"
)

// ErrEmptyTranscript - распознавание не дало текста, генерация не запускается.
var ErrEmptyTranscript = errors.New("pipeline: empty transcript")

// StageError помечает ошибку этапом, на котором она возникла.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// StageOf возвращает этап ошибки или "" если ошибка не из пайплайна.
func StageOf(err error) Stage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}

// Result - итог успешного прогона.
type Result struct {
	RunID      string
	Samples    int
	Transcript string
	Response   string
	Generation *llm.Result
}

// Driver выполняет прогоны. Движки подставляются через OpenSpeech и LoadText.
type Driver struct {
	Config     *config.Config
	OpenSpeech speech.Opener
	LoadText   llm.Loader

	Metrics  *metrics.Metrics
	Notifier *notify.Notifier
	Logger   *slog.Logger

	// OnTranscript вызывается с распознанным текстом до загрузки текстовой модели.
	OnTranscript func(text string)
	// OnPiece получает ответ по частям по мере генерации.
	OnPiece func(text string)
}

// Run загружает src, распознаёт речь и генерирует ответ на распознанный текст.
//
// Каждый движок освобождается до возврата, на любом пути. Движок речи
// закрывается до загрузки текстовой модели.
func (d *Driver) Run(ctx context.Context, src audio.Source) (*Result, error) {
	res := &Result{RunID: uuid.NewString()}
	log := d.logger().With("run_id", res.RunID)

	err := d.run(ctx, log, src, res)
	if err != nil {
		stage := StageOf(err)
		log.Error("прогон прерван", "stage", stage, "error", err)
		d.Metrics.RunFinished(string(stage))
		d.Notifier.Failed(string(stage), err)
		return nil, err
	}

	log.Info("прогон завершён", "transcript_len", len(res.Transcript), "response_len", len(res.Response))
	d.Metrics.RunFinished("ok")
	d.Notifier.Response(res.Response)
	return res, nil
}

func (d *Driver) run(ctx context.Context, log *slog.Logger, src audio.Source, res *Result) error {
	cfg := d.config()

	var wf audio.Waveform
	err := d.stage(log, StageLoad, func() error {
		var err error
		wf, err = audio.Read(src, cfg.AudioOptions())
		if err == nil && len(wf) == 0 {
			err = fmt.Errorf("%w: no samples in %q", audio.ErrFormat, src.Name())
		}
		return err
	})
	if err != nil {
		return err
	}
	res.Samples = len(wf)
	d.Metrics.ObserveAudio(wf.Duration())
	log.Info("аудио загружено", "source", src.Name(), "samples", len(wf), "duration", wf.Duration())

	transcript, err := d.transcribe(ctx, log, cfg, wf)
	if err != nil {
		return err
	}
	res.Transcript = transcript
	if d.OnTranscript != nil {
		d.OnTranscript(transcript)
	}

	gen, err := d.generate(ctx, log, cfg, transcript)
	if err != nil {
		return err
	}
	res.Generation = gen
	res.Response = gen.Text
	return nil
}

// transcribe владеет движком речи: он закрывается до возврата.
func (d *Driver) transcribe(ctx context.Context, log *slog.Logger, cfg *config.Config, wf audio.Waveform) (string, error) {
	var engine speech.Engine
	err := d.stage(log, StageSpeechInit, func() error {
		if d.OpenSpeech == nil {
			return fmt.Errorf("%w: no speech engine configured", speech.ErrEngine)
		}
		var err error
		engine, err = speech.Open(d.OpenSpeech, cfg.Speech.ModelPath, cfg.SpeechParams())
		return err
	})
	if err != nil {
		return "", err
	}
	defer func() {
		if cerr := engine.Close(); cerr != nil {
			log.Warn("не удалось освободить движок речи", "error", cerr)
		}
	}()

	var transcript string
	err = d.stage(log, StageTranscribe, func() error {
		var err error
		transcript, err = speech.Transcribe(ctx, engine, wf, cfg.DecodeParams())
		if err == nil && transcript == "" {
			err = ErrEmptyTranscript
		}
		return err
	})
	if err != nil {
		return "", err
	}
	return transcript, nil
}

// generate владеет текстовой моделью и контекстом: контекст закрывается раньше модели.
func (d *Driver) generate(ctx context.Context, log *slog.Logger, cfg *config.Config, prompt string) (*llm.Result, error) {
	var (
		model llm.Model
		lctx  llm.Context
	)
	err := d.stage(log, StageTextInit, func() error {
		if d.LoadText == nil {
			return fmt.Errorf("%w: no text engine configured", llm.ErrEngine)
		}
		var err error
		model, err = llm.Load(d.LoadText, cfg.Text.ModelPath, cfg.ModelParams())
		if err != nil {
			return err
		}
		lctx, err = llm.NewContext(model, cfg.ContextParams())
		if err != nil {
			closeLogged(log, "модель", model.Close)
			model = nil
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	defer closeLogged(log, "модель", model.Close)
	defer closeLogged(log, "контекст", lctx.Close)

	var result *llm.Result
	err = d.stage(log, StageGenerate, func() error {
		g := llm.NewGenerator(model, lctx, cfg.Generation())
		g.OnPiece = d.OnPiece
		var err error
		result, err = g.Generate(ctx, prompt)
		return err
	})
	if err != nil {
		return nil, err
	}

	d.Metrics.ObserveGeneration(len(result.Prompt), len(result.Generated), string(result.Stop))
	log.Info("ответ получен",
		"prompt_tokens", len(result.Prompt),
		"generated_tokens", len(result.Generated),
		"steps", result.Steps,
		"stop", result.Stop)
	return result, nil
}

// stage выполняет fn, замеряет время и помечает ошибку этапом.
func (d *Driver) stage(log *slog.Logger, stage Stage, fn func() error) error {
	start := time.Now()
	err := fn()
	elapsed := time.Since(start)
	d.Metrics.ObserveStage(string(stage), elapsed)
	log.Debug("этап", "stage", stage, "elapsed", elapsed, "ok", err == nil)
	if err != nil {
		return &StageError{Stage: stage, Err: err}
	}
	return nil
}

func (d *Driver) config() *config.Config {
	if d.Config == nil {
		return config.Default()
	}
	return d.Config
}

func (d *Driver) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}

func closeLogged(log *slog.Logger, what string, closeFn func() error) {
	if err := closeFn(); err != nil {
		log.Warn("ошибка освобождения", "resource", what, "error", err)
	}
}
