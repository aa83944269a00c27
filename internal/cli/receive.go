package cli

import (
	"context"
	goerrors "errors"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Dicklesworthstone/telelink/internal/config"
	"github.com/Dicklesworthstone/telelink/internal/display"
	"github.com/Dicklesworthstone/telelink/internal/link"
	"github.com/Dicklesworthstone/telelink/internal/telemetry"
	"github.com/Dicklesworthstone/telelink/internal/ui"
)

func newReceiveCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "receive",
		Short: "Accept a sender and show its metrics",
		Long: `Listen on --listen:--port for one sender at a time and render the latest
snapshot. A new connection replaces the previous one. When stdout is not a
terminal a status line is printed on every change instead of the dashboard.`,
		Args: cobra.NoArgs,
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
			return runReceive(cmd.Context(), cfg, logger, dashboard, out)
		},
	}
}

func runReceive(ctx context.Context, cfg config.Config, logger *slog.Logger, dashboard bool, out io.Writer) error {
	store := &display.Store{}
	stats := &telemetry.ReceiverStats{}
	rx := link.NewReceiver(link.ReceiverConfig{
		Addr:        cfg.ListenAddr(),
		ReadTimeout: cfg.ReadTimeout,
	}, store, link.ReceiverOptions{Stats: stats, Logger: logger})

	if err := rx.Listen(); err != nil {
		return err
	}
	stopMetrics, err := startMetrics(cfg, nil, stats, logger)
	if err != nil {
		_ = rx.Close()
		return err
	}
	defer stopMetrics()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	serveErr := make(chan error, 1)
	go func() {
		err := rx.Serve(ctx)
		if err != nil {
			logger.Error("receiver stopped", "err", err)
			cancel()
		}
		serveErr <- err
	}()

	opts := ui.Options{
		Mode:       "receive " + rx.Addr().String(),
		Thresholds: thresholds(cfg),
		Interval:   cfg.RenderInterval,
		History:    cfg.History,
		Link:       rx,
		Stats:      stats,
		Quit:       cancel,
	}
	var renderErr error
	if dashboard {
		renderErr = ui.RunTUI(ctx, ui.New(store, opts))
	} else {
		ui.NewPlain(out, store, opts).Run(ctx)
	}
	cancel()
	return goerrors.Join(renderErr, <-serveErr)
}

func thresholds(cfg config.Config) display.Thresholds {
	return display.Thresholds{FreshAfter: cfg.FreshAfter, OfflineAfter: cfg.OfflineAfter}
}
