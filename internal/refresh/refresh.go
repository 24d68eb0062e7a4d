// Package refresh runs the metrics pipeline on behalf of a caller and
// persists what it produces: the cache file always, the run history when a
// database is configured.
package refresh

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"swaptinsight/internal/cache"
	"swaptinsight/internal/config"
	"swaptinsight/internal/db"
	"swaptinsight/internal/klaviyo"
	"swaptinsight/internal/pipeline"
)

// HistoryRecorder stores completed runs. *db.Store implements it.
type HistoryRecorder interface {
	RecordRun(rec *db.RunRecord) error
}

// ResultSaver persists the latest result. *cache.FileStore implements it.
type ResultSaver interface {
	Save(res *pipeline.MetricsResult) error
}

// SourceFactory builds the event source for one run.
type SourceFactory func(apiKey string) pipeline.Source

// Request describes one refresh.
type Request struct {
	StoreID string
	// APIKey takes precedence over the configured key when not blank.
	APIKey string
	// Progress is passed to the pipeline.
	Progress func(done, total int)
}

// Outcome is what a successful refresh produced. Persisted and Recorded are
// false when the matching write failed; the failure is logged, not returned.
type Outcome struct {
	RunID     uuid.UUID
	Result    *pipeline.MetricsResult
	StartedAt time.Time
	Duration  time.Duration
	Persisted bool
	Recorded  bool
}

type Refresher struct {
	cfg       *config.Config
	cache     ResultSaver
	history   HistoryRecorder
	log       *zap.Logger
	newSource SourceFactory
}

type Option func(*Refresher)

// WithHistory records every successful run.
func WithHistory(h HistoryRecorder) Option {
	return func(r *Refresher) { r.history = h }
}

// WithSourceFactory replaces the Klaviyo client built from cfg.
func WithSourceFactory(f SourceFactory) Option {
	return func(r *Refresher) { r.newSource = f }
}

func New(cfg *config.Config, saver ResultSaver, log *zap.Logger, opts ...Option) *Refresher {
	r := &Refresher{cfg: cfg, cache: saver, log: log}
	r.newSource = func(apiKey string) pipeline.Source {
		return klaviyo.NewClient(klaviyo.Options{
			BaseURL:  cfg.KlaviyoBaseURL,
			APIKey:   apiKey,
			Revision: cfg.KlaviyoRevision,
			Timeout:  cfg.KlaviyoTimeout,
		}, log)
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Refresh runs the pipeline once. It returns *pipeline.ConfigurationError
// when no key is available and otherwise whatever the pipeline returns.
// Cache and history failures do not fail the refresh.
func (r *Refresher) Refresh(req Request) (*Outcome, error) {
	apiKey, err := pipeline.ResolveAPIKey(req.APIKey, r.cfg.KlaviyoAPIKey)
	if err != nil {
		return nil, err
	}

	out := &Outcome{RunID: uuid.New(), StartedAt: time.Now().UTC()}
	log := r.log.With(zap.String("run_id", out.RunID.String()), zap.String("store_id", req.StoreID))
	log.Info("starting refresh")

	var opts []pipeline.Option
	if req.Progress != nil {
		opts = append(opts, pipeline.WithProgress(req.Progress))
	}
	res, err := pipeline.New(r.newSource(apiKey), log, opts...).Run()
	if err != nil {
		log.Error("refresh failed", zap.Error(err))
		return nil, err
	}
	out.Result = res
	out.Duration = time.Since(out.StartedAt)

	if err := r.cache.Save(res); err != nil {
		log.Error("failed to write cache file", zap.Error(err))
	} else {
		out.Persisted = true
	}

	if r.history != nil {
		if err := r.record(req.StoreID, out); err != nil {
			log.Error("failed to record run", zap.Error(err))
		} else {
			out.Recorded = true
		}
	}

	log.Info("refresh complete",
		zap.Duration("duration", out.Duration),
		zap.Bool("persisted", out.Persisted),
		zap.Bool("recorded", out.Recorded))
	return out, nil
}

func (r *Refresher) record(storeID string, out *Outcome) error {
	doc, err := json.Marshal(out.Result)
	if err != nil {
		return err
	}
	m := out.Result.Metrics
	return r.history.RecordRun(&db.RunRecord{
		RunID:             out.RunID,
		StoreID:           storeID,
		StartedAt:         out.StartedAt,
		FinishedAt:        out.StartedAt.Add(out.Duration),
		TotalSubmits:      m.TotalSwaptSubmits,
		NetNewSubscribers: m.NetNewSubscribers,
		TotalPurchases:    out.Result.DetailedMetrics.Orders.Total,
		TotalRevenue:      out.Result.TotalRevenue(),
		Result:            doc,
	})
}

var _ ResultSaver = (*cache.FileStore)(nil)
var _ HistoryRecorder = (*db.Store)(nil)
