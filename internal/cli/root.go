package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"github.com/rotatarr/rotatarr/internal/control"
	"github.com/rotatarr/rotatarr/internal/core/config"
)

var (
	cfgPath string
	isDebug bool
)

var rootCmd = &cobra.Command{
	Use:   "rotatarr",
	Short: "Rotatarr indexer repair agent",
	Long:  `Rotatarr watches a Prowlarr instance and repairs failing indexers by rotating base URLs, applying tag variants, and rolling back when nothing works.`,
	Run:   runAgent,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "config file (default is config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&isDebug, "debug", false, "enable debug logging")
}

// loadConfig resolves configuration and installs the global logger. Both
// the root command and the subcommands go through it.
func loadConfig() (*config.Config, error) {
	_ = godotenv.Load()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		initLogger(slog.LevelInfo)
		return nil, err
	}

	slogLevel := slog.LevelInfo
	if isDebug || cfg.LogLevel == "debug" {
		slogLevel = slog.LevelDebug
	}
	initLogger(slogLevel)

	return cfg, nil
}

func initLogger(level slog.Level) {
	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.RFC3339,
	})))
}

func runAgent(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	if cfg.DryRun {
		slog.Warn("DRY_RUN is enabled, no changes will be written to the aggregator")
	}

	runner, err := control.NewRunner(cfg)
	if err != nil {
		slog.Error("Failed to initialize runner", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		slog.Info("Received signal, shutting down...", "signal", sig)
		cancel()
	}()

	slog.Info("Rotatarr started",
		"config", cfgPath, "interval", cfg.CheckInterval(), "one_shot", cfg.OneShot)

	if err := runner.Run(ctx); err != nil {
		slog.Error("Runner exited with error", "error", err)
		os.Exit(1)
	}

	slog.Info("Rotatarr stopped gracefully")
}
