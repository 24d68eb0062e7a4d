package cli

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"swaptinsight/internal/cache"
	"swaptinsight/internal/db"
	"swaptinsight/internal/pipeline"
	"swaptinsight/internal/refresh"
	"swaptinsight/internal/telemetry"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Run the pipeline once and write the cache file",
	Long: `Fetch the account's events, compute the metrics and write them to the
cache file the server reads.

Examples:
  swaptinsight refresh --store-id acme                 # Key from $KLAVIYO_API_KEY
  swaptinsight refresh --store-id acme --api-key pk_x  # Explicit key
  swaptinsight refresh --no-progress                   # No progress bar`,
	RunE: runRefresh,
}

var (
	refreshStoreID    string
	refreshAPIKey     string
	refreshNoProgress bool
)

func init() {
	rootCmd.AddCommand(refreshCmd)
	refreshCmd.Flags().StringVar(&refreshStoreID, "store-id", "", "Store identifier recorded with the run")
	refreshCmd.Flags().StringVar(&refreshAPIKey, "api-key", "", "Klaviyo private API key (default $KLAVIYO_API_KEY, then $SWAPT_KLAVIYO_API_KEY)")
	refreshCmd.Flags().BoolVar(&refreshNoProgress, "no-progress", false, "Disable the progress bar")
}

// progressReporter lazily creates a bar once the submission count is known.
type progressReporter struct {
	bar *progressbar.ProgressBar
}

func (p *progressReporter) report(done, total int) {
	if p.bar == nil {
		p.bar = progressbar.Default(int64(total), "submissions")
	}
	_ = p.bar.Set(done)
}

func (p *progressReporter) finish() {
	if p.bar != nil {
		_ = p.bar.Finish()
	}
}

func runRefresh(cmd *cobra.Command, args []string) error {
	telemetry.Register()
	store := cache.NewFileStore(cfg.CacheFile)

	var opts []refresh.Option
	sqlDB, err := db.Connect(cfg)
	switch {
	case errors.Is(err, db.ErrDisabled):
	case err != nil:
		logger.Warn("run history unavailable", zap.Error(err))
	default:
		opts = append(opts, refresh.WithHistory(db.NewStore(sqlDB)))
	}

	req := refresh.Request{StoreID: refreshStoreID, APIKey: refreshAPIKey}
	progress := &progressReporter{}
	if !refreshNoProgress {
		req.Progress = progress.report
	}

	out, err := refresh.New(cfg, store, logger, opts...).Refresh(req)
	progress.finish()
	if err != nil {
		return err
	}

	printSummary(cmd.OutOrStdout(), out, store.Path())
	if !out.Persisted {
		return fmt.Errorf("result computed but not written to %s", store.Path())
	}
	return nil
}

func printSummary(w io.Writer, out *refresh.Outcome, path string) {
	m := out.Result.Metrics
	orders := out.Result.DetailedMetrics.Orders
	fmt.Fprintf(w, "Run %s finished in %s\n", out.RunID, out.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "  Swapt submits:        %d (%d profiles)\n", m.TotalSwaptSubmits, m.NetNewSubscribers)
	fmt.Fprintf(w, "  Qualifying orders:    %d\n", orders.Total)
	fmt.Fprintf(w, "  Total revenue:        %s\n", pipeline.ToFixed(out.Result.TotalRevenue(), 2))
	fmt.Fprintf(w, "  AOV:                  %s\n", m.AOV.Value)
	fmt.Fprintf(w, "  Customer LTV:         %s\n", m.CustomerLTV.Value)
	fmt.Fprintf(w, "  Avg swapt interval:   %s h\n", m.AvgSwaptInterval.Value)
	fmt.Fprintf(w, "  Avg order interval:   %s h\n", m.AvgOrderInterval.Value)
	if out.Persisted {
		fmt.Fprintf(w, "Written to %s\n", path)
	}
}
