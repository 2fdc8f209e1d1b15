package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"speechreply/internal/audio"
)

func newCaptureCmd(e *env, opts *rootOptions) *cobra.Command {
	var seconds float64

	cmd := &cobra.Command{
		Use:   "capture <out.wav>",
		Short: "Record from the default microphone into a 16 kHz PCM16 WAV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if seconds <= 0 {
				return fmt.Errorf("--seconds must be positive, got %v", seconds)
			}
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			logger, err := newLogger(e.stderr, cfg.Logging)
			if err != nil {
				return err
			}

			d := time.Duration(seconds * float64(time.Second))
			logger.Info("запись", "seconds", seconds)
			wf, err := audio.Capture(cmd.Context(), d)
			if err != nil {
				return err
			}

			if err := audio.WriteWAV(args[0], wf, audio.SampleRate); err != nil {
				return err
			}
			logger.Info("запись сохранена", "path", args[0], "samples", len(wf), "duration", wf.Duration())
			fmt.Fprintln(e.stdout, args[0])
			return nil
		},
	}

	cmd.Flags().Float64Var(&seconds, "seconds", 5, "Recording length")
	return cmd
}
