package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"swaptinsight/internal/klaviyo"
	"swaptinsight/internal/klaviyo/klaviyotest"
)

var t0 = time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)

// fakeSource serves events from memory. Purchase queries are keyed by profile.
type fakeSource struct {
	metrics       []klaviyo.Metric
	metricsErr    error
	submissions   []klaviyo.Event
	submissionErr error
	purchases     map[string][]klaviyo.Event
	// purchaseFailAfter truncates a profile's purchases to n events and
	// reports an error, as a failed later page would.
	purchaseFailAfter map[string]int

	fetches []string
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		metrics: []klaviyo.Metric{
			{ID: "SUB", Name: SubmissionMetricName},
			{ID: "ORD", Name: OrderMetricName},
			{ID: "X", Name: "Opened Email"},
		},
		purchases:         map[string][]klaviyo.Event{},
		purchaseFailAfter: map[string]int{},
	}
}

func (f *fakeSource) ListMetrics() ([]klaviyo.Metric, error) {
	return f.metrics, f.metricsErr
}

func (f *fakeSource) EventsURL(metricID, profileID string) string {
	return metricID + "|" + profileID
}

func (f *fakeSource) FetchEvents(rawURL, stream string) ([]klaviyo.Event, error) {
	f.fetches = append(f.fetches, rawURL)
	metricID, profileID, _ := strings.Cut(rawURL, "|")
	if metricID == "SUB" {
		return f.submissions, f.submissionErr
	}
	events := f.purchases[profileID]
	if n, ok := f.purchaseFailAfter[profileID]; ok {
		return events[:n], errors.New("page failed")
	}
	return events, nil
}

func submission(profile string, at time.Time) klaviyo.Event {
	return klaviyo.Event{ID: fmt.Sprintf("S-%s-%d", profile, at.Unix()), ProfileID: profile, MetricID: "SUB", Datetime: at}
}

func purchase(id, profile string, at time.Time, props klaviyo.Properties) klaviyo.Event {
	return klaviyo.Event{ID: id, ProfileID: profile, MetricID: "ORD", Datetime: at, Properties: props}
}

func runFake(t *testing.T, src *fakeSource) *MetricsResult {
	t.Helper()
	res, err := New(src, zaptest.NewLogger(t)).Run()
	require.NoError(t, err)
	return res
}

func TestRunSubmissionAndThresholdScenario(t *testing.T) {
	src := newFakeSource()
	src.submissions = []klaviyo.Event{
		submission("P1", t0),
		submission("P1", t0.Add(10*time.Hour)),
	}
	src.purchases["P1"] = []klaviyo.Event{
		purchase("O1", "P1", t0.Add(5*time.Hour), klaviyo.Properties{klaviyo.PropValue: 20.0}),
		purchase("O2", "P1", t0.Add(15*time.Hour), klaviyo.Properties{klaviyo.PropValue: 3.0}),
	}

	acc := (&Correlator{
		Lookup: NewSequentialLookup(src, "ORD", zaptest.NewLogger(t)),
		Log:    zaptest.NewLogger(t),
	}).Correlate(NewAccumulator(), src.submissions)

	require.Equal(t, 1, acc.TotalPurchases)
	require.Equal(t, "20", acc.TotalRevenue.String())
	require.Equal(t, map[string][]float64{"P1": {20}}, acc.CustomerOrders)
	require.Equal(t, []int{1}, acc.ItemsPerOrder)
	require.InDelta(t, 10.0, acc.SubmissionTimes.AverageIntervalHours(), 1e-9)

	res := runFake(t, src)
	require.Equal(t, "10.00", res.Metrics.AvgSwaptInterval.Value)
	require.Equal(t, 2, res.Metrics.TotalSwaptSubmits)
	require.Equal(t, 1, res.Metrics.NetNewSubscribers)
	require.Equal(t, "2.00", res.Metrics.AvgSwaptSubmits.Value)
	require.Equal(t, "20.00", res.Metrics.AOV.Value)
	require.Equal(t, "20.00", res.Metrics.CustomerLTV.Value)
	require.Equal(t, "1.00", res.Metrics.PurchaseFrequency.Value)
	require.Len(t, res.DetailedMetrics.OrderDetails, 1)
	require.Equal(t, OrderRecord{
		ID: "O1", Date: OrderDate{Time: t0.Add(5 * time.Hour)}, Items: 1, Value: 20, LTV: 20, Status: "Completed", ProfileID: "P1",
	}, res.DetailedMetrics.OrderDetails[0])
}

func TestRunZeroSubmissions(t *testing.T) {
	res := runFake(t, newFakeSource())

	require.Equal(t, 0, res.Metrics.TotalSwaptSubmits)
	require.Equal(t, 0, res.Metrics.NetNewSubscribers)
	for _, c := range []MetricCard{
		res.Metrics.PurchaseFrequency, res.Metrics.CustomerLTV, res.Metrics.AOV,
		res.Metrics.AvgSwaptSubmits, res.Metrics.AvgSwaptInterval, res.Metrics.AvgOrderInterval,
	} {
		require.Equal(t, "0.00", c.Value)
		require.Zero(t, c.Change)
	}
	require.Empty(t, res.DetailedMetrics.OrderDetails)
	require.Equal(t, "0", res.DetailedMetrics.Orders.DiscountedOrdersPercentage)
	require.Equal(t, "0.00", res.DetailedMetrics.Orders.DailyAverage)

	body, err := json.Marshal(res)
	require.NoError(t, err)
	require.Contains(t, string(body), `"orderDetails":[]`)
	require.Contains(t, string(body), `"topCategories":[]`)
	require.Contains(t, string(body), `"totalSwaptSubmits":0`)
	require.Contains(t, string(body), `"netNewSubscribers":0`)
	require.Contains(t, string(body), `"detailedData":[]`)
}

func TestRunMissingOrderMetricFailsBeforeFetching(t *testing.T) {
	src := newFakeSource()
	src.metrics = []klaviyo.Metric{{ID: "SUB", Name: SubmissionMetricName}}

	_, err := New(src, zaptest.NewLogger(t)).Run()
	var ce *ConfigurationError
	require.ErrorAs(t, err, &ce)
	require.Empty(t, src.fetches)
}

func TestRunMetricsListingFailure(t *testing.T) {
	src := newFakeSource()
	src.metricsErr = errors.New("dial tcp: refused")

	_, err := New(src, zaptest.NewLogger(t)).Run()
	var ue *UpstreamFetchError
	require.ErrorAs(t, err, &ue)
	require.Equal(t, "metrics", ue.Stream)
	require.Empty(t, src.fetches)
}

func TestRunPrimaryStreamFailureAborts(t *testing.T) {
	src := newFakeSource()
	src.submissions = []klaviyo.Event{submission("P1", t0)}
	src.submissionErr = errors.New("page 2 failed")

	res, err := New(src, zaptest.NewLogger(t)).Run()
	require.Nil(t, res)
	var ue *UpstreamFetchError
	require.ErrorAs(t, err, &ue)
	require.Equal(t, "submissions", ue.Stream)
	require.Len(t, src.fetches, 1)
}

func TestRunPurchaseFailureKeepsPartialAndContinues(t *testing.T) {
	src := newFakeSource()
	src.submissions = []klaviyo.Event{submission("P2", t0), submission("P3", t0)}
	src.purchases["P2"] = []klaviyo.Event{
		purchase("A", "P2", t0.Add(time.Hour), klaviyo.Properties{klaviyo.PropValue: 10.0}),
		purchase("B", "P2", t0.Add(2*time.Hour), klaviyo.Properties{klaviyo.PropValue: 30.0}),
	}
	src.purchaseFailAfter["P2"] = 1
	src.purchases["P3"] = []klaviyo.Event{
		purchase("C", "P3", t0.Add(time.Hour), klaviyo.Properties{klaviyo.PropValue: 15.0}),
	}

	res := runFake(t, src)
	require.Equal(t, 2, res.DetailedMetrics.Orders.Total)
	ids := []string{res.DetailedMetrics.OrderDetails[0].ID, res.DetailedMetrics.OrderDetails[1].ID}
	require.Equal(t, []string{"A", "C"}, ids)
	require.InDelta(t, 25.0, res.TotalRevenue(), 1e-9)
}

func TestCorrelateDerivations(t *testing.T) {
	src := newFakeSource()
	src.submissions = []klaviyo.Event{submission("P1", t0)}
	src.purchases["P1"] = []klaviyo.Event{
		purchase("O1", "P1", t0.Add(-time.Hour), klaviyo.Properties{klaviyo.PropValue: 99.0}),
		purchase("O2", "P1", t0, klaviyo.Properties{
			klaviyo.PropValue:             12.5,
			klaviyo.PropDiscounted:        true,
			klaviyo.PropProductCategories: []any{"Shoes", "Sale"},
			klaviyo.PropProductNames:      []any{"Runner", "Sock"},
		}),
		purchase("O3", "P1", t0.Add(48*time.Hour), klaviyo.Properties{
			klaviyo.PropValue:        7.0,
			klaviyo.PropItemCount:    5.0,
			klaviyo.PropProductNames: []any{"Runner"},
		}),
		purchase("O4", "P1", t0.Add(50*time.Hour), klaviyo.Properties{klaviyo.PropValue: 4.99}),
	}

	acc := (&Correlator{
		Lookup: NewSequentialLookup(src, "ORD", zaptest.NewLogger(t)),
		Log:    zaptest.NewLogger(t),
	}).Correlate(NewAccumulator(), src.submissions)

	// O1 precedes the submission, O4 is below the threshold.
	require.Equal(t, 2, acc.TotalPurchases)
	require.Equal(t, 1, acc.DiscountedOrders)
	require.Equal(t, "19.5", acc.TotalRevenue.String())
	require.Equal(t, []string{"Shoes", "Unknown"}, acc.TopCategories.Keys())
	require.Equal(t, map[string]int{"Runner": 2}, acc.AttributeDistribution.Map())
	require.Equal(t, 2, acc.OrderDetails[0].Items)
	require.Equal(t, 5, acc.OrderDetails[1].Items)

	s := acc.Summarize()
	require.InDelta(t, 48.0, s.AvgOrderInterval, 1e-9)
	require.InDelta(t, 1.0, s.DailyAverage, 1e-9) // 2 purchases over 2 days
	require.InDelta(t, 9.75, s.AOV, 1e-9)
	require.InDelta(t, 19.5, s.LTV, 1e-9)
	require.InDelta(t, 2.0, s.AvgItemsPerOrder, 1e-9)

	res := Assemble(acc)
	require.Equal(t, []CategoryShare{
		{Name: "Shoes", Count: 1, Percentage: "50.0"},
		{Name: "Unknown", Count: 1, Percentage: "50.0"},
	}, res.DetailedMetrics.Products.TopCategories)
	require.Equal(t, "50.0", res.DetailedMetrics.Orders.DiscountedOrdersPercentage)
	require.Equal(t, "2.00", res.DetailedMetrics.Products.ItemsPerOrder)
	require.Equal(t, "2.00", res.DetailedMetrics.Orders.AverageItemCount)
}

func TestCorrelateRepeatSubmissionsReplaceCustomerBatch(t *testing.T) {
	src := newFakeSource()
	src.submissions = []klaviyo.Event{
		submission("P1", t0),
		submission("P2", t0),
		submission("P1", t0.Add(24*time.Hour)),
	}
	src.purchases["P1"] = []klaviyo.Event{
		purchase("A", "P1", t0.Add(time.Hour), klaviyo.Properties{klaviyo.PropValue: 10.0}),
		purchase("B", "P1", t0.Add(30*time.Hour), klaviyo.Properties{klaviyo.PropValue: 20.0}),
	}

	acc := (&Correlator{
		Lookup: NewSequentialLookup(src, "ORD", zaptest.NewLogger(t)),
		Log:    zaptest.NewLogger(t),
	}).Correlate(NewAccumulator(), src.submissions)

	// B follows both P1 submissions and is counted for each of them.
	require.Equal(t, 3, acc.TotalPurchases)
	require.Equal(t, map[string][]float64{"P1": {20}}, acc.CustomerOrders)
	require.Equal(t, []int{2, 1}, acc.ItemsPerOrder)

	s := acc.Summarize()
	require.Equal(t, 1, s.TotalCustomers)
	require.Equal(t, 2, s.UniqueSubmissionProfiles)
	require.InDelta(t, 1.5, s.AvgSubmitsPerProfile, 1e-9)
	require.InDelta(t, 3.0, s.AvgOrdersPerCustomer, 1e-9)
	require.InDelta(t, 50.0, s.LTV, 1e-9)
	require.InDelta(t, 1.5, s.AvgItemsPerOrder, 1e-9)
}

func TestCorrelateReportsProgress(t *testing.T) {
	src := newFakeSource()
	for i := 0; i < 120; i++ {
		src.submissions = append(src.submissions, submission(fmt.Sprintf("P%d", i), t0))
	}

	var calls []int
	(&Correlator{
		Lookup:   NewSequentialLookup(src, "ORD", zaptest.NewLogger(t)),
		Log:      zaptest.NewLogger(t),
		Progress: func(done, total int) { require.Equal(t, 120, total); calls = append(calls, done) },
	}).Correlate(NewAccumulator(), src.submissions)

	require.Len(t, calls, 120)
	require.Equal(t, 120, calls[len(calls)-1])
	require.Len(t, src.fetches, 120)
}

func TestRunInvariants(t *testing.T) {
	src := newFakeSource()
	cats := []string{"Shoes", "Hats", "Bags"}
	for p := 0; p < 7; p++ {
		profile := fmt.Sprintf("P%d", p)
		src.submissions = append(src.submissions, submission(profile, t0.Add(time.Duration(p)*time.Hour)))
		for i := 0; i < p+1; i++ {
			src.purchases[profile] = append(src.purchases[profile], purchase(
				fmt.Sprintf("%s-%d", profile, i), profile,
				t0.Add(time.Duration(p*10+i)*time.Hour),
				klaviyo.Properties{
					klaviyo.PropValue:             float64(i*3) + 0.1,
					klaviyo.PropProductCategories: []any{cats[(p+i)%len(cats)]},
				},
			))
		}
	}

	res := runFake(t, src)
	orders := res.DetailedMetrics.OrderDetails
	require.Equal(t, res.DetailedMetrics.Orders.Total, len(orders))

	var sum float64
	for _, o := range orders {
		require.GreaterOrEqual(t, o.Value, QualifyingValue)
		sum += o.Value
	}

	acc := (&Correlator{
		Lookup: NewSequentialLookup(src, "ORD", zaptest.NewLogger(t)),
		Log:    zaptest.NewLogger(t),
	}).Correlate(NewAccumulator(), src.submissions)
	require.InDelta(t, acc.TotalRevenue.InexactFloat64(), sum, 1e-9)

	var pct, count float64
	for _, c := range res.DetailedMetrics.Products.TopCategories {
		var v float64
		_, err := fmt.Sscanf(c.Percentage, "%g", &v)
		require.NoError(t, err)
		pct += v
		count += float64(c.Count)
	}
	require.InDelta(t, 100.0, pct, 0.5)
	require.Equal(t, float64(len(orders)), count)
}

func TestRunIsIdempotent(t *testing.T) {
	src := newFakeSource()
	for p := 0; p < 5; p++ {
		profile := fmt.Sprintf("P%d", p)
		src.submissions = append(src.submissions, submission(profile, t0), submission(profile, t0.Add(3*time.Hour)))
		src.purchases[profile] = []klaviyo.Event{
			purchase(profile+"-a", profile, t0.Add(time.Hour), klaviyo.Properties{
				klaviyo.PropValue:             33.33,
				klaviyo.PropProductCategories: []any{fmt.Sprintf("C%d", 5-p)},
				klaviyo.PropProductNames:      []any{fmt.Sprintf("N%d", p%2)},
			}),
		}
	}

	first, err := json.Marshal(runFake(t, src))
	require.NoError(t, err)
	second, err := json.Marshal(runFake(t, src))
	require.NoError(t, err)
	require.JSONEq(t, string(first), string(second))
	require.Equal(t, string(first), string(second))
}

func TestRunAgainstFakeKlaviyo(t *testing.T) {
	srv := klaviyotest.NewServer()
	defer srv.Close()
	srv.PageSize = 1
	srv.AddMetric("SUB", SubmissionMetricName)
	srv.AddMetric("ORD", OrderMetricName)
	srv.AddEvents(
		klaviyotest.Event{ID: "s1", ProfileID: "P2", MetricID: "SUB", Datetime: t0},
		klaviyotest.Event{ID: "s2", ProfileID: "P3", MetricID: "SUB", Datetime: t0},
		klaviyotest.Event{ID: "o1", ProfileID: "P2", MetricID: "ORD", Datetime: t0.Add(time.Hour), Properties: map[string]any{"$value": 10}},
		klaviyotest.Event{ID: "o2", ProfileID: "P2", MetricID: "ORD", Datetime: t0.Add(2 * time.Hour), Properties: map[string]any{"$value": 30}},
		klaviyotest.Event{ID: "o3", ProfileID: "P2", MetricID: "ORD", Datetime: t0.Add(3 * time.Hour), Properties: map[string]any{"$value": 40}},
		klaviyotest.Event{ID: "o4", ProfileID: "P3", MetricID: "ORD", Datetime: t0.Add(time.Hour), Properties: map[string]any{"$value": 15}},
	)
	srv.FailPage("P2", 2)

	client := klaviyo.NewClient(klaviyo.Options{BaseURL: srv.URL, APIKey: "pk", Revision: "2024-10-15", Timeout: 5 * time.Second}, zaptest.NewLogger(t))
	res, err := New(client, zaptest.NewLogger(t)).Run()
	require.NoError(t, err)
	require.Equal(t, 2, res.Metrics.TotalSwaptSubmits)
	require.Equal(t, 2, res.DetailedMetrics.Orders.Total)
	require.Equal(t, "o1", res.DetailedMetrics.OrderDetails[0].ID)
	require.Equal(t, "o4", res.DetailedMetrics.OrderDetails[1].ID)
	require.InDelta(t, 25.0, res.TotalRevenue(), 1e-9)

	// A failing submission page aborts the whole run.
	srv.FailPage("", 2)
	_, err = New(client, zaptest.NewLogger(t)).Run()
	var ue *UpstreamFetchError
	require.ErrorAs(t, err, &ue)
}
