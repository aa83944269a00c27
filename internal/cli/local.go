package cli

import (
	"context"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Dicklesworthstone/telelink/internal/config"
	"github.com/Dicklesworthstone/telelink/internal/display"
	"github.com/Dicklesworthstone/telelink/internal/sampler"
	"github.com/Dicklesworthstone/telelink/internal/schedule"
	"github.com/Dicklesworthstone/telelink/internal/ui"
)

func newLocalCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "local",
		Short: "Show this machine's metrics without a network link",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			dashboard := isTerminal(out)
			logger, closer, err := openLogger(cfg, dashboard)
			if err != nil {
				return err
			}
			defer closer.Close()
			return runLocal(cmd.Context(), cfg, logger, dashboard, out)
		},
	}
}

func runLocal(ctx context.Context, cfg config.Config, logger *slog.Logger, dashboard bool, out io.Writer) error {
	if err := sampler.CheckDiskPath(cfg.DiskPath); err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	store := &display.Store{}
	clock := schedule.Real()
	collected := make(chan struct{})
	go func() {
		defer close(collected)
		for snap := range newCollector(cfg, logger).Stream(ctx, cfg.Interval) {
			store.Publish(snap, clock.Now())
		}
	}()

	opts := ui.Options{
		Mode:       "local",
		Thresholds: thresholds(cfg),
		Interval:   cfg.RenderInterval,
		History:    cfg.History,
		Clock:      clock,
		Quit:       cancel,
	}
	var err error
	if dashboard {
		err = ui.RunTUI(ctx, ui.New(store, opts))
	} else {
		ui.NewPlain(out, store, opts).Run(ctx)
	}
	cancel()
	<-collected
	return err
}
