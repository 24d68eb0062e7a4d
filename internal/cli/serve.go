package cli

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fasthttp/router"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"swaptinsight/internal/cache"
	"swaptinsight/internal/config"
	"swaptinsight/internal/db"
	"swaptinsight/internal/http/handlers"
	appmw "swaptinsight/internal/http/middleware"
	"swaptinsight/internal/refresh"
	"swaptinsight/internal/telemetry"
	ui "swaptinsight/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dashboard and the /metrics-data API",
	Long: `Start the HTTP server.

Examples:
  swaptinsight serve                  # Listen on $APP_LISTEN_ADDR (default :8080)
  swaptinsight serve --listen :3000   # Listen on port 3000`,
	RunE: runServe,
}

var serveListen string

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVarP(&serveListen, "listen", "l", "", "Address to listen on (default $APP_LISTEN_ADDR)")
}

// deps are the collaborators the route table needs.
type deps struct {
	cfg       *config.Config
	log       *zap.Logger
	store     *cache.FileStore
	refresher handlers.Refresher
	history   handlers.HistoryReader // nil when run history is disabled
	gatherer  prometheus.Gatherer
}

// newHandler builds the route table and the global middleware chain.
func newHandler(d deps) fasthttp.RequestHandler {
	r := router.New()
	r.SaveMatchedRoutePath = true
	auth := appmw.BasicAuth(d.cfg)

	// Global middleware chain: request logger, then request metrics, then router
	handler := handlers.RequestLogger(d.log)(appmw.RequestMetrics(r.Handler))

	r.GET("/healthz", func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(fasthttp.StatusOK)
		ctx.SetBodyString("ok")
	})

	r.ServeFS("/static/{filepath:*}", ui.StaticFS())

	r.GET("/", auth(handlers.Dashboard(d.store, d.cfg, d.history != nil, d.log)))

	r.GET("/metrics-data", auth(handlers.CachedMetrics(d.store, d.log)))
	r.POST("/metrics-data", auth(handlers.RefreshMetrics(d.refresher, d.log)))
	r.GET("/metrics-data/export.csv", auth(handlers.ExportCSV(d.store, d.log)))
	r.GET("/metrics-data/history", auth(handlers.History(d.history, d.log)))

	r.GET("/internal/metrics", auth(handlers.ServiceMetrics(d.gatherer)))

	return handler
}

func runServe(cmd *cobra.Command, args []string) error {
	if serveListen != "" {
		cfg.ListenAddr = serveListen
	}
	telemetry.Register()

	store := cache.NewFileStore(cfg.CacheFile)
	d := deps{cfg: cfg, log: logger, store: store, gatherer: prometheus.DefaultGatherer}

	var opts []refresh.Option
	sqlDB, err := db.Connect(cfg)
	switch {
	case errors.Is(err, db.ErrDisabled):
		logger.Info("run history disabled")
	case err != nil:
		return fmt.Errorf("failed to connect database: %w", err)
	default:
		db.StartRetentionWorker(sqlDB, cfg.RetentionDays, logger)
		db.StartAggregationWorker(sqlDB, logger)
		history := db.NewStore(sqlDB)
		d.history = history
		opts = append(opts, refresh.WithHistory(history))
		logger.Info("run history enabled", zap.Int("retention_days", cfg.RetentionDays))
	}
	d.refresher = refresh.New(cfg, store, logger, opts...)

	if cfg.AuthEnabled() {
		logger.Info("basic auth enabled", zap.String("user", cfg.AdminUser))
	}

	server := &fasthttp.Server{
		Handler: newHandler(d),
		Name:    "swaptinsight",
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("shutting down")
		_ = server.Shutdown()
	}()

	logger.Info("swaptinsight listening",
		zap.String("addr", cfg.ListenAddr),
		zap.String("cache_file", store.Path()))
	if err := server.ListenAndServe(cfg.ListenAddr); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}
