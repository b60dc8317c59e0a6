// Command motiontui animates a few motions in the terminal.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mescon/motion/internal/animation"
	"github.com/mescon/motion/internal/clock"
	"github.com/mescon/motion/internal/config"
	"github.com/mescon/motion/internal/easing"
	"github.com/mescon/motion/internal/logger"
	"github.com/mescon/motion/internal/tui"
)

var (
	flagDuration   time.Duration
	flagEasing     string
	flagTimeSource string
	flagTick       time.Duration
	flagRestart    string
	flagLogLevel   string
	flagLogDir     string
)

var rootCmd = &cobra.Command{
	Use:     "motiontui",
	Short:   "Terminal demo of the motion driver",
	Long:    `Animates width, opacity and y tracks with the same driver the server uses.`,
	Version: config.Version,
	Args:    cobra.NoArgs,
	RunE:    runTUI,
}

func init() {
	rootCmd.Flags().DurationVarP(&flagDuration, "duration", "d", 0, "override every track's duration")
	rootCmd.Flags().StringVarP(&flagEasing, "easing", "e", "linear", "easing curve name")
	rootCmd.Flags().StringVar(&flagTimeSource, "time-source", clock.SourceNative, "driver time source: native or eventloop")
	rootCmd.Flags().DurationVar(&flagTick, "tick", animation.DefaultTickInterval, "pause between value updates")
	rootCmd.Flags().StringVar(&flagRestart, "restart", "ignore", "start while running: ignore or restart")
	rootCmd.Flags().StringVar(&flagLogLevel, "log-level", "info", "log level: debug, info, warn, error")
	rootCmd.Flags().StringVar(&flagLogDir, "log-dir", "", "write logs to this directory (default: discard)")
}

func runTUI(cmd *cobra.Command, args []string) error {
	// Console output would corrupt the alternate screen
	logger.InitFileOnly(flagLogDir)
	defer func() { _ = logger.Close() }()
	logger.SetLevel(flagLogLevel)

	curve, err := easing.Lookup(flagEasing)
	if err != nil {
		return fmt.Errorf("invalid --easing: %w", err)
	}
	policy, ok := animation.ParseRestartPolicy(flagRestart)
	if !ok {
		return fmt.Errorf("invalid --restart %q: want ignore or restart", flagRestart)
	}

	var host clock.Clock
	if flagTimeSource == clock.SourceEventLoop {
		loop := clock.NewLoop()
		defer loop.Close()
		host = loop
	}
	source, err := clock.Select(flagTimeSource, host)
	if err != nil {
		return fmt.Errorf("invalid --time-source: %w", err)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	app := tui.New(ctx, tui.Options{
		Duration:      flagDuration,
		Easing:        curve,
		TimeSource:    source,
		TickInterval:  flagTick,
		RestartPolicy: policy,
	})
	return app.Run()
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
