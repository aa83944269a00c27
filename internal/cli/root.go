// Package cli wires the telelink commands.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Dicklesworthstone/telelink/internal/config"
	"github.com/Dicklesworthstone/telelink/internal/errors"
	"github.com/Dicklesworthstone/telelink/internal/logging"
	"github.com/Dicklesworthstone/telelink/internal/telemetry"
)

// Exit codes returned by Execute.
const (
	ExitOK     = 0
	ExitError  = 1
	ExitConfig = 2
)

type globalOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	root := &cobra.Command{
		Use:   "telelink",
		Short: "Stream host telemetry to a remote dashboard",
		Long: `telelink samples CPU, memory, disk, network, GPU and audio state on one
machine and streams it as newline-delimited JSON over TCP to a dashboard on
another. The dashboard shows how fresh the last snapshot is and colours each
metric by severity.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "",
		"config file (default ~/"+config.GlobalConfigDir+"/"+config.GlobalConfigFile+")")
	config.RegisterFlags(root.PersistentFlags())

	root.AddCommand(
		newSendCmd(opts),
		newReceiveCmd(opts),
		newLocalCmd(opts),
		newConfigCmd(opts),
		newVersionCmd(),
	)
	return root
}

// Execute runs the command line and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if errors.IsCode(err, errors.ErrConfig) {
			return ExitConfig
		}
		return ExitError
	}
	return ExitOK
}

// loadConfig resolves the configuration for cmd from file, env and flags.
func loadConfig(cmd *cobra.Command, opts *globalOptions) (config.Config, error) {
	return config.Load(opts.configPath, cmd.Flags())
}

// openLogger builds the process logger. When the dashboard owns the
// terminal, logs only go to log_file.
func openLogger(cfg config.Config, dashboard bool) (*slog.Logger, io.Closer, error) {
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, errors.WrapWithCode(err, errors.ErrConfig, "Invalid log_level", "Use DEBUG, INFO, WARN or ERROR")
	}
	logger, closer, err := logging.Open(cfg.LogFile, level, dashboard)
	if err != nil {
		return nil, nil, errors.WrapWithCode(err, errors.ErrConfig, "Cannot open log file "+cfg.LogFile, "Check the directory exists and is writable")
	}
	return logger, closer, nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// startMetrics serves /metrics when metrics_addr is set. The returned stop
// function is never nil.
func startMetrics(cfg config.Config, sender *telemetry.SenderStats, receiver *telemetry.ReceiverStats, logger *slog.Logger) (func(), error) {
	if cfg.MetricsAddr == "" {
		return func() {}, nil
	}
	srv := telemetry.NewServer(cfg.MetricsAddr, telemetry.NewRegistry(sender, receiver), logger)
	ln, err := srv.Listen()
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrNetwork,
			"Cannot serve metrics on "+cfg.MetricsAddr,
			"Pick another --metrics-addr or leave it empty to disable metrics")
	}
	go func() {
		if err := srv.Serve(ln); err != nil {
			logger.Error("metrics server failed", "err", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
