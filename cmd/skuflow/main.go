// SkuFlow - Sales and inventory upload cleaning
// Profiles uploaded spreadsheets, cleans and normalizes their rows, and
// persists canonical sales records for forecasting.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/skuflow/skuflow/internal/app"
	"github.com/skuflow/skuflow/pkg/config"
	"github.com/skuflow/skuflow/pkg/logging"
	"github.com/skuflow/skuflow/pkg/pipeline"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

// Global flags
var (
	configPath string
	logLevel   string
	logFormat  string
)

// Loaded in PersistentPreRunE.
var (
	cfgManager = config.NewManager()
	logger     = zap.NewNop()
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	logger.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "skuflow",
	Short: "SkuFlow - Clean sales and inventory uploads",
	Long: `SkuFlow profiles uploaded CSV, TXT and XLSX sales files, reports data
quality problems, and turns accepted uploads into clean, canonical sales
records.

Typical flow:
  skuflow upload march.csv       # detect schema, validate, register
  skuflow map <id> qty=quantity  # optional: confirm column roles
  skuflow process <id>           # clean, transform, persist`,
	Version:           fmt.Sprintf("%s (%s)", version, commit),
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (applied after the standard locations)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format (console, json)")

	app.Version = version
}

// setup loads configuration and installs the logger.
func setup(cmd *cobra.Command, _ []string) error {
	if err := cfgManager.Load(configPath); err != nil {
		return err
	}
	cfg := cfgManager.Get()
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFormat != "" {
		cfg.Logging.Format = logFormat
	}

	l, err := logging.Install(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	if err != nil {
		return err
	}
	logger = l
	return nil
}

// openApp wires the configured backends.
func openApp(ctx context.Context, opts ...pipeline.Option) (*app.App, error) {
	a, err := app.Open(ctx, cfgManager.Get(), logger, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open backends: %w", err)
	}
	return a, nil
}
