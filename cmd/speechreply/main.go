// speechreply распознаёт речь из WAV-файла и отвечает на неё локальной LLM.
//
// Оба движка работают в процессе: whisper.cpp (или vosk) для речи и llama.cpp
// для текста. Без тегов сборки whisper/llama бинарник собирается с заглушками.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"speechreply/internal/audio"
	"speechreply/internal/config"
	"speechreply/internal/llm"
	"speechreply/internal/metrics"
	"speechreply/internal/models"
	"speechreply/internal/notify"
	"speechreply/internal/pipeline"
	"speechreply/internal/speech"
)

// Version устанавливается при сборке через -ldflags.
var Version = "dev"

// env - всё, что команды берут снаружи. В тестах подменяется.
type env struct {
	stdout     io.Writer
	stderr     io.Writer
	speechFor  func(kind speech.Kind) (speech.Opener, error)
	textLoader llm.Loader
}

func defaultEnv() *env {
	return &env{
		stdout:     os.Stdout,
		stderr:     os.Stderr,
		speechFor:  speech.OpenerFor,
		textLoader: llm.LoadLlama,
	}
}

type rootOptions struct {
	configFile  string
	maxSteps    int
	seedBatch   int
	logLevel    string
	logFormat   string
	notify      bool
	metricsFile string
	stream      bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd(defaultEnv()).ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd(e *env) *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "speechreply [audio.wav] [speech-model] [text-model]",
		Short: "Transcribe speech and answer it with a local LLM",
		Long: `speechreply reads a mono 16 kHz PCM16 WAV file, transcribes it with whisper.cpp
and feeds the transcript as a prompt to a llama.cpp model.

Defaults:
  audio        ` + config.DefaultAudioPath + `
  speech model ` + config.DefaultSpeechModelPath + `
  text model   ` + config.DefaultTextModelPath + `

Model arguments accept a file path or a registry ID (see "speechreply models list").`,
		Version:       Version,
		Args:          cobra.MaximumNArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, e, opts, args)
		},
	}

	f := cmd.PersistentFlags()
	f.StringVarP(&opts.configFile, "config", "c", "", "Path to YAML config file")
	f.StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	f.StringVar(&opts.logFormat, "log-format", "", "Log format (text, json)")

	cmd.Flags().IntVar(&opts.maxSteps, "max-steps", llm.DefaultMaxSteps, "Maximum generated tokens")
	cmd.Flags().IntVar(&opts.seedBatch, "seed-batch", llm.DefaultSeedBatch, "Prompt tokens per decode call, -1 for the whole prompt")
	cmd.Flags().BoolVar(&opts.notify, "notify", false, "Show a desktop notification with the result")
	cmd.Flags().StringVar(&opts.metricsFile, "metrics-file", "", "Write Prometheus metrics to this file on exit")
	cmd.Flags().BoolVar(&opts.stream, "stream", false, "Print the response while it is generated")

	cmd.AddCommand(newModelsCmd(e, opts))
	cmd.AddCommand(newCaptureCmd(e, opts))
	return cmd
}

// loadConfig читает конфиг и накладывает явно заданные флаги.
func loadConfig(cmd *cobra.Command, opts *rootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.configFile)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("max-steps") {
		cfg.Text.MaxSteps = opts.maxSteps
	}
	if flags.Changed("seed-batch") {
		cfg.Text.SeedBatch = opts.seedBatch
	}
	if flags.Changed("notify") {
		cfg.Notifications = opts.notify
	}
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}
	if opts.logFormat != "" {
		cfg.Logging.Format = opts.logFormat
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(w io.Writer, cfg config.LoggingConfig) (*slog.Logger, error) {
	level, err := config.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	hopts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, hopts)), nil
	}
	return slog.New(slog.NewTextHandler(w, hopts)), nil
}

func runPipeline(cmd *cobra.Command, e *env, opts *rootOptions, args []string) error {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}

	logger, err := newLogger(e.stderr, cfg.Logging)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	logger.Info("speechreply запускается", "version", Version)

	audioPath := config.DefaultAudioPath
	if len(args) > 0 {
		audioPath = args[0]
	}
	if len(args) > 1 {
		cfg.Speech.ModelPath = args[1]
	}
	if len(args) > 2 {
		cfg.Text.ModelPath = args[2]
	}

	mgr := models.NewManager(cfg.ModelsDir, nil)
	if cfg.Speech.ModelPath, err = mgr.Resolve(cfg.Speech.ModelPath); err != nil {
		return err
	}
	if cfg.Text.ModelPath, err = mgr.Resolve(cfg.Text.ModelPath); err != nil {
		return err
	}

	openSpeech, err := e.speechFor(cfg.Speech.Engine)
	if err != nil {
		return err
	}

	var m *metrics.Metrics
	if opts.metricsFile != "" {
		m = metrics.New()
		defer func() {
			if werr := m.WriteTextfile(opts.metricsFile); werr != nil {
				logger.Warn("не удалось записать метрики", "path", opts.metricsFile, "error", werr)
			}
		}()
	}

	driver := &pipeline.Driver{
		Config:     cfg,
		OpenSpeech: openSpeech,
		LoadText:   e.textLoader,
		Metrics:    m,
		Notifier:   notify.New(cfg.Notifications),
		Logger:     logger,
		OnTranscript: func(text string) {
			fmt.Fprintf(e.stdout, "[Transcription] %s\n", text)
		},
	}

	streamed := false
	if opts.stream {
		driver.OnPiece = func(text string) {
			if !streamed {
				fmt.Fprint(e.stdout, "[Response] ")
				streamed = true
			}
			fmt.Fprint(e.stdout, text)
		}
	}

	res, err := driver.Run(cmd.Context(), audio.File(audioPath))
	if streamed {
		fmt.Fprintln(e.stdout)
	}
	if err != nil {
		return err
	}

	if !streamed {
		fmt.Fprintf(e.stdout, "[Response] %s\n", res.Response)
	}
	return nil
}
