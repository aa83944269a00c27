package cli

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Dicklesworthstone/telelink/internal/config"
	"github.com/Dicklesworthstone/telelink/internal/gpu"
	"github.com/Dicklesworthstone/telelink/internal/link"
	"github.com/Dicklesworthstone/telelink/internal/model"
	"github.com/Dicklesworthstone/telelink/internal/probe"
	"github.com/Dicklesworthstone/telelink/internal/sampler"
	"github.com/Dicklesworthstone/telelink/internal/telemetry"
)

func newSendCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "send",
		Short: "Collect local metrics and stream them to a receiver",
		Long: `Collect a snapshot every --interval and write it to the receiver at
--target:--port. While the receiver is unreachable snapshots are dropped and
the connection is retried every --retry-delay.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			logger, closer, err := openLogger(cfg, false)
			if err != nil {
				return err
			}
			defer closer.Close()
			return runSend(cmd.Context(), cfg, logger)
		},
	}
}

func runSend(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	if err := sampler.CheckDiskPath(cfg.DiskPath); err != nil {
		return err
	}
	stats := &telemetry.SenderStats{}
	stopMetrics, err := startMetrics(cfg, stats, nil, logger)
	if err != nil {
		return err
	}
	defer stopMetrics()

	tx := link.NewTransmitter(link.TransmitterConfig{
		Addr:         cfg.TargetAddr(),
		DialTimeout:  cfg.DialTimeout,
		WriteTimeout: cfg.WriteTimeout,
		RetryDelay:   cfg.RetryDelay,
	}, link.TransmitterOptions{Stats: stats, Logger: logger})

	if err := tx.Connect(ctx); err != nil {
		logger.Warn("receiver unreachable, retrying", "addr", cfg.TargetAddr(), "retry_delay", cfg.RetryDelay, "err", err)
	}

	collector := newCollector(cfg, logger)
	logger.Info("sending", "addr", cfg.TargetAddr(), "interval", cfg.Interval)
	tx.Run(ctx, collector.Stream(ctx, cfg.Interval))
	logger.Info("stopped", "sent", stats.Sent.Load(), "dropped", stats.Dropped.Load())
	return nil
}

// newCollector assembles the host collector with the providers enabled in cfg.
func newCollector(cfg config.Config, logger *slog.Logger) *sampler.Collector {
	temps := probe.NewChain(logger, sampler.DefaultTemperatureProviders(cfg.GPU.SysfsRoot)...)
	logger.Debug("temperature providers", "order", temps.Names())
	opts := sampler.Options{
		DiskPath:    cfg.DiskPath,
		Temperature: temps,
		Logger:      logger,
	}
	if cfg.GPU.Enabled {
		opts.GPU = gpu.NewEnumerator(logger, gpu.DefaultProviders(gpu.Options{
			NvidiaSMI: cfg.GPU.NvidiaSMI,
			SysfsRoot: cfg.GPU.SysfsRoot,
		})...)
	}
	if cfg.Audio.Enabled {
		opts.Audio = probe.NewChain[model.Audio](logger, sampler.DefaultAudioProviders()...)
		logger.Debug("audio providers", "order", opts.Audio.Names())
	}
	return sampler.New(sampler.NewHost(cfg.GPU.SysfsRoot), opts)
}
