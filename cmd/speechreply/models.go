package main

import (
	"fmt"
	"log/slog"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"speechreply/internal/models"
)

func newModelsCmd(e *env, opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List and download known models",
	}
	cmd.AddCommand(newModelsListCmd(e, opts), newModelsPullCmd(e, opts))
	return cmd
}

func newModelsListCmd(e *env, opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show registry models and whether they are downloaded",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			mgr := models.NewManager(cfg.ModelsDir, nil)

			tw := tabwriter.NewWriter(e.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tENGINE\tSIZE\tSTATUS")
			for _, m := range models.Registry {
				status := "-"
				if mgr.IsDownloaded(m) {
					status = mgr.Path(m)
				}
				fmt.Fprintf(tw, "%s\t%s\t%d MB\t%s\n", m.ID, m.Engine, m.Size/(1024*1024), status)
			}
			return tw.Flush()
		},
	}
}

func newModelsPullCmd(e *env, opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "pull <id>",
		Short: "Download a registry model into models_dir",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			logger, err := newLogger(e.stderr, cfg.Logging)
			if err != nil {
				return err
			}

			info, ok := models.GetModel(args[0])
			if !ok {
				return fmt.Errorf("unknown model id %q (see: speechreply models list)", args[0])
			}

			mgr := models.NewManager(cfg.ModelsDir, nil)
			progress := make(chan models.Progress, 16)
			done := make(chan struct{})
			go logProgress(logger, progress, done)

			err = mgr.Download(cmd.Context(), info, progress)
			close(progress)
			<-done
			if err != nil {
				return err
			}

			fmt.Fprintln(e.stdout, mgr.Path(info))
			return nil
		},
	}
}

// logProgress пишет прогресс не чаще чем раз в 10%.
func logProgress(logger *slog.Logger, progress <-chan models.Progress, done chan<- struct{}) {
	defer close(done)
	lastDecile := int64(-1)
	for p := range progress {
		if p.Done {
			logger.Info("модель загружена", "model", p.ModelID, "bytes", p.Downloaded)
			continue
		}
		if p.Total <= 0 {
			continue
		}
		decile := p.Downloaded * 10 / p.Total
		if decile != lastDecile {
			lastDecile = decile
			logger.Info("загрузка", "model", p.ModelID, "percent", decile*10)
		}
	}
}
