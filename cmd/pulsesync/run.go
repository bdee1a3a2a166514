package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srg/pulsesync/internal/app"
	"github.com/srg/pulsesync/internal/groutine"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the sync daemon",
	Long: `Connects to the bound sensor, buffers its telemetry and uploads it to the
server every sync interval.

Signals:
  SIGINT, SIGTERM  stop gracefully
  SIGUSR1          pause: release the sensor (background mode keeps a wake cycle)
  SIGUSR2          resume: reconnect in the foreground

Examples:
  pulsesync run --monitor
  pulsesync run --live-addr :8080`,
	Args: cobra.NoArgs,
	RunE: runDaemon,
}

func init() {
	runCmd.Flags().Bool("monitor", false, "Print live values to stdout")
	runCmd.Flags().String("live-addr", "", "Serve the live websocket display on this address (overrides config)")
}

func runDaemon(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if addr, _ := cmd.Flags().GetString("live-addr"); addr != "" {
		cfg.LiveAddr = addr
	}
	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}

	watchLifecycleSignals(ctx, a, logger)

	if monitor, _ := cmd.Flags().GetBool("monitor"); monitor {
		m := newMonitor(cmd.OutOrStdout(), a.Feed)
		groutine.Go(ctx, "monitor", m.Run)
	}

	return a.Run(ctx)
}

// watchLifecycleSignals maps the platform's pause and resume signals onto the
// daemon until ctx ends.
func watchLifecycleSignals(ctx context.Context, a *app.App, logger *logrus.Logger) {
	pause, resume, ok := lifecycleSignals()
	if !ok {
		return
	}
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, pause, resume)

	groutine.Go(ctx, "lifecycle-signals", func(ctx context.Context) {
		defer signal.Stop(sigCh)
		for {
			select {
			case <-ctx.Done():
				return
			case sig := <-sigCh:
				var err error
				if sig == pause {
					logger.Info("Pause requested")
					err = a.Pause(ctx)
				} else {
					logger.Info("Resume requested")
					err = a.Resume(ctx)
				}
				if err != nil {
					logger.WithFields(logrus.Fields{
						"signal": sig.String(),
						"error":  err,
					}).Warn("Lifecycle transition failed")
				}
			}
		}
	})
}
