package pipeline

import (
	"time"

	"go.uber.org/zap"

	"swaptinsight/internal/klaviyo"
	"swaptinsight/internal/telemetry"
)

// progressEvery is how often Correlate logs its progress.
const progressEvery = 50

// Source is the remote event API as the pipeline uses it. *klaviyo.Client
// implements it.
type Source interface {
	MetricLister
	EventsURL(metricID, profileID string) string
	FetchEvents(rawURL, stream string) ([]klaviyo.Event, error)
}

// PurchaseLookup returns the purchases of a profile at or after since. It is
// best effort: failures shrink the result instead of being reported.
type PurchaseLookup interface {
	PurchasesSince(profileID string, since time.Time) []klaviyo.Event
}

// SequentialLookup issues one paginated events query per call.
type SequentialLookup struct {
	src           Source
	orderMetricID string
	log           *zap.Logger
}

func NewSequentialLookup(src Source, orderMetricID string, log *zap.Logger) *SequentialLookup {
	return &SequentialLookup{src: src, orderMetricID: orderMetricID, log: log}
}

func (l *SequentialLookup) PurchasesSince(profileID string, since time.Time) []klaviyo.Event {
	raw, err := l.src.FetchEvents(l.src.EventsURL(l.orderMetricID, profileID), telemetry.StreamPurchases)
	if err != nil {
		l.log.Warn("purchase lookup truncated",
			zap.String("profile_id", profileID),
			zap.Int("kept", len(raw)),
			zap.Error(err))
	}
	purchases := eventsSince(raw, since)
	l.log.Debug("fetched purchases",
		zap.String("profile_id", profileID),
		zap.Int("raw", len(raw)),
		zap.Int("since_submission", len(purchases)))
	return purchases
}

// eventsSince keeps events at or after since, preserving order.
func eventsSince(events []klaviyo.Event, since time.Time) []klaviyo.Event {
	out := make([]klaviyo.Event, 0, len(events))
	for _, e := range events {
		if !e.Datetime.Before(since) {
			out = append(out, e)
		}
	}
	return out
}

// Correlator joins submission events to the purchases that followed them.
type Correlator struct {
	Lookup PurchaseLookup
	Log    *zap.Logger

	// Progress, when set, is called after each submission is processed.
	Progress func(done, total int)
}

// Correlate processes submissions in the given order, one lookup at a time,
// and returns acc with every submission and qualifying purchase added.
func (c *Correlator) Correlate(acc *Accumulator, submissions []klaviyo.Event) *Accumulator {
	total := len(submissions)
	for i, sub := range submissions {
		acc.AddSubmission(sub)

		var values []float64
		for _, p := range c.Lookup.PurchasesSince(sub.ProfileID, sub.Datetime) {
			if v, ok := acc.AddPurchase(sub.ProfileID, p); ok {
				values = append(values, v)
			}
		}
		acc.CloseBatch(sub.ProfileID, values)

		done := i + 1
		if done%progressEvery == 0 {
			c.Log.Info("processed submissions", zap.Int("done", done), zap.Int("total", total))
		}
		if c.Progress != nil {
			c.Progress(done, total)
		}
	}
	return acc
}
