// Package pipeline turns the submission and purchase event streams of one
// Klaviyo account into the dashboard's MetricsResult.
//
// A run resolves the two metric ids, fetches every submission event, looks
// up each submitter's later purchases one profile at a time, and folds
// everything into a single Accumulator owned by that run. Runs take no
// context: once started they finish or fail.
package pipeline

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"swaptinsight/internal/telemetry"
)

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithProgress reports progress after each submission is processed.
func WithProgress(fn func(done, total int)) Option {
	return func(p *Pipeline) { p.progress = fn }
}

// WithPurchaseLookup replaces the sequential per-profile lookup.
func WithPurchaseLookup(fn func(ids MetricIDs) PurchaseLookup) Option {
	return func(p *Pipeline) { p.newLookup = fn }
}

type Pipeline struct {
	source    Source
	log       *zap.Logger
	progress  func(done, total int)
	newLookup func(ids MetricIDs) PurchaseLookup
}

func New(src Source, log *zap.Logger, opts ...Option) *Pipeline {
	p := &Pipeline{source: src, log: log}
	p.newLookup = func(ids MetricIDs) PurchaseLookup {
		return NewSequentialLookup(src, ids.Order, log)
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run executes the pipeline once. It fails with *ConfigurationError or
// *UpstreamFetchError; purchase lookup failures only reduce the data.
func (p *Pipeline) Run() (*MetricsResult, error) {
	start := time.Now()
	result, err := p.run()
	telemetry.PipelineDuration.Observe(time.Since(start).Seconds())
	telemetry.PipelineRuns.WithLabelValues(outcome(err)).Inc()
	return result, err
}

func (p *Pipeline) run() (*MetricsResult, error) {
	ids, err := ResolveMetricIDs(p.source, p.log)
	if err != nil {
		return nil, err
	}

	p.log.Info("fetching submission events", zap.String("metric_id", ids.Submission))
	submissions, err := p.source.FetchEvents(p.source.EventsURL(ids.Submission, ""), telemetry.StreamSubmissions)
	if err != nil {
		return nil, &UpstreamFetchError{Stream: telemetry.StreamSubmissions, Err: err}
	}
	p.log.Info("fetched submission events", zap.Int("count", len(submissions)))

	c := &Correlator{Lookup: p.newLookup(ids), Log: p.log, Progress: p.progress}
	acc := c.Correlate(NewAccumulator(), submissions)
	telemetry.QualifyingPurchases.Add(float64(acc.TotalPurchases))

	result := Assemble(acc)
	s := acc.Summarize()
	p.log.Info("final metrics",
		zap.Int("total_purchases", s.TotalPurchases),
		zap.Float64("total_revenue", s.TotalRevenue),
		zap.String("aov", result.Metrics.AOV.Value),
		zap.Int("total_swapt_submits", s.TotalSubmissions),
		zap.Int("net_new_subscribers", s.UniqueSubmissionProfiles),
		zap.String("avg_swapt_submits", result.Metrics.AvgSwaptSubmits.Value),
		zap.String("avg_swapt_interval_hours", result.Metrics.AvgSwaptInterval.Value),
		zap.String("avg_order_interval_hours", result.Metrics.AvgOrderInterval.Value))
	return result, nil
}

func outcome(err error) string {
	var ue *UpstreamFetchError
	switch {
	case err == nil:
		return "success"
	case IsConfigurationError(err):
		return "configuration_error"
	case errors.As(err, &ue):
		return "upstream_error"
	default:
		return "error"
	}
}
