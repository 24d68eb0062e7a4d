package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"swaptinsight/internal/config"
	"swaptinsight/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "swaptinsight",
	Short: "Swapt code conversion dashboard backed by Klaviyo events",
	Long: `swaptinsight correlates "Submitted Swapt Code" events with the purchases
that followed them in a Klaviyo account, computes engagement and revenue
metrics, caches the result and serves it to a dashboard.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

// Shared by every command, filled in by setup.
var (
	cfg    *config.Config
	logger *zap.Logger
)

var (
	flagCacheFile string
	flagLogLevel  string
	flagLogFormat string
)

func Execute() {
	defer func() {
		if logger != nil {
			_ = logger.Sync()
		}
	}()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagCacheFile, "cache-file", "", "Path of the cached result (default $APP_CACHE_FILE)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn, error (default $APP_LOG_LEVEL)")
	rootCmd.PersistentFlags().StringVar(&flagLogFormat, "log-format", "", "Log format: json or console (default $APP_LOG_FORMAT)")
}

func setup(cmd *cobra.Command, args []string) error {
	cfg = config.Load()
	if flagCacheFile != "" {
		cfg.CacheFile = flagCacheFile
	}
	if flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}
	if flagLogFormat != "" {
		cfg.LogFormat = flagLogFormat
	}

	l, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	logger = l
	return nil
}
