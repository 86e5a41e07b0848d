package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/petrellis/vigil/pkg/vigil/client"
	"github.com/petrellis/vigil/pkg/vigil/otel"
	"github.com/petrellis/vigil/pkg/vigil/render"
)

// watchCmd represents the watch command
var watchCmd = &cobra.Command{
	Use:   "watch <websocket-url> <subject-ids...>",
	Short: "Stream presence updates for a set of subjects",
	Long: `Connect to a presence relay and stream rendered presence updates
to stdout until interrupted.

The first argument is the WebSocket URL to connect to. The remaining
arguments are numeric subject ids, either space or comma separated.

Examples:
  vigil watch ws://localhost:5173/ws 94490510688792708
  vigil watch ws://localhost:5173/ws "123,456" 789`,
	Args: cobra.MinimumNArgs(2),
	RunE: runWatch,
}

var watchDialTimeout time.Duration

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().DurationVar(&watchDialTimeout, "dial-timeout", 10*time.Second, "WebSocket dial timeout")
}

func runWatch(cmd *cobra.Command, args []string) error {
	logger, err := setupLogger()
	if err != nil {
		return fmt.Errorf("failed to setup logger: %w", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	endpoint := args[0]
	var subjects []string
	for _, arg := range args[1:] {
		subjects = append(subjects, client.ParseSubjects(arg)...)
	}

	logger.Info("Starting presence watch",
		zap.String("endpoint", endpoint),
		zap.Strings("subjects", subjects),
		zap.Duration("dial-timeout", watchDialTimeout),
	)

	provider := otel.NewProvider("vigil", "")

	c, err := client.NewClient().
		WithLogger(logger).
		WithDialTimeout(watchDialTimeout).
		WithRenderer(render.NewConsole(os.Stdout)).
		WithMonitor(client.MonitorFunc(func(status client.Status) {
			logger.Info("Connection status", zap.String("status", status.Label))
		})).
		WithMetricsProvider(provider).
		WithTracingProvider(provider).
		Build()
	if err != nil {
		return fmt.Errorf("failed to create presence client: %w", err)
	}

	if err := c.Connect(ctx, endpoint); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	if err := c.Subscribe(ctx, subjects); err != nil {
		// The connection is up; tear it down before reporting.
		_ = c.Disconnect()
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	logger.Info("Watching for presence updates... (Press Ctrl+C to exit)")

	select {
	case sig := <-sigChan:
		logger.Debug("Signal received, exiting", zap.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("Context cancelled, shutting down...")
	}

	cancel()
	if err := c.Disconnect(); err != nil {
		logger.Warn("Error during disconnect", zap.Error(err))
	}

	logger.Info("Shutdown complete")
	return nil
}
