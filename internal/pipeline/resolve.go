package pipeline

import (
	"go.uber.org/zap"

	"swaptinsight/internal/klaviyo"
	"swaptinsight/internal/telemetry"
)

// Metric names looked up in the account, matched exactly.
const (
	SubmissionMetricName = "Submitted Swapt Code"
	OrderMetricName      = "Placed Order"
)

// MetricIDs holds the account-specific ids of the two metrics the pipeline reads.
type MetricIDs struct {
	Submission string
	Order      string
}

// MetricLister lists the metric definitions of an account.
type MetricLister interface {
	ListMetrics() ([]klaviyo.Metric, error)
}

// ResolveMetricIDs finds both metric ids in a single listing call. If a name
// appears more than once the last definition wins.
func ResolveMetricIDs(l MetricLister, log *zap.Logger) (MetricIDs, error) {
	metrics, err := l.ListMetrics()
	if err != nil {
		return MetricIDs{}, &UpstreamFetchError{Stream: telemetry.StreamMetrics, Err: err}
	}

	var ids MetricIDs
	for _, m := range metrics {
		switch m.Name {
		case SubmissionMetricName:
			ids.Submission = m.ID
		case OrderMetricName:
			ids.Order = m.ID
		}
	}
	if ids.Submission == "" || ids.Order == "" {
		return MetricIDs{}, &ConfigurationError{Reason: "required metric IDs not found in the Klaviyo account"}
	}

	log.Info("resolved metric ids",
		zap.String("submission_metric_id", ids.Submission),
		zap.String("order_metric_id", ids.Order))
	return ids, nil
}
