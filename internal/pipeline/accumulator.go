package pipeline

import (
	"encoding/json"
	"math"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"swaptinsight/internal/klaviyo"
)

// QualifyingValue is the minimum order value counted by the pipeline.
const QualifyingValue = 5.0

// OrderStatus is the status recorded for every qualifying order.
const OrderStatus = "Completed"

// OrderDate is an order timestamp that serializes as the text the event API
// sent, so cached documents keep the upstream offset format. Raw is empty
// when that text is the canonical RFC 3339 form of Time.
type OrderDate struct {
	time.Time
	Raw string
}

func NewOrderDate(t time.Time, raw string) OrderDate {
	if raw == t.Format(time.RFC3339Nano) {
		raw = ""
	}
	return OrderDate{Time: t, Raw: raw}
}

func (d OrderDate) String() string {
	if d.Raw != "" {
		return d.Raw
	}
	return d.Time.Format(time.RFC3339Nano)
}

func (d OrderDate) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *OrderDate) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		*d = OrderDate{}
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return err
	}
	*d = NewOrderDate(t, s)
	return nil
}

// OrderRecord is one qualifying purchase. LTV mirrors Value.
type OrderRecord struct {
	ID        string    `json:"id"`
	Date      OrderDate `json:"date"`
	Items     int       `json:"items"`
	Value     float64   `json:"value"`
	LTV       float64   `json:"ltv"`
	Status    string    `json:"status"`
	ProfileID string    `json:"profileId"`
}

// Counter counts string keys and remembers the order keys were first seen.
type Counter struct {
	order  []string
	counts map[string]int
}

func NewCounter() *Counter {
	return &Counter{counts: map[string]int{}}
}

func (c *Counter) Inc(key string) {
	if _, ok := c.counts[key]; !ok {
		c.order = append(c.order, key)
	}
	c.counts[key]++
}

func (c *Counter) Get(key string) int { return c.counts[key] }

// Keys returns keys in first-seen order.
func (c *Counter) Keys() []string { return slices.Clone(c.order) }

// Map returns a copy of the counts.
func (c *Counter) Map() map[string]int {
	out := make(map[string]int, len(c.counts))
	for k, v := range c.counts {
		out[k] = v
	}
	return out
}

// Accumulator holds the running state of one pipeline run. It is not safe
// for concurrent use and must not outlive the run that created it.
type Accumulator struct {
	Submissions     int
	SubmissionTimes ProfileTimestampIndex

	DiscountedOrders      int
	TotalRevenue          decimal.Decimal
	TotalPurchases        int
	TopCategories         *Counter
	AttributeDistribution *Counter
	ItemsPerOrder         []int
	PurchaseDates         []time.Time
	CustomerOrders        map[string][]float64
	OrderDetails          []OrderRecord
}

func NewAccumulator() *Accumulator {
	return &Accumulator{
		SubmissionTimes:       ProfileTimestampIndex{},
		TotalRevenue:          decimal.Zero,
		TopCategories:         NewCounter(),
		AttributeDistribution: NewCounter(),
		CustomerOrders:        map[string][]float64{},
		OrderDetails:          []OrderRecord{},
	}
}

// AddSubmission records a submission event for the submission statistics.
func (a *Accumulator) AddSubmission(e klaviyo.Event) {
	a.Submissions++
	a.SubmissionTimes.Add(e.ProfileID, e.Datetime)
}

// AddPurchase counts purchase p for profileID if it qualifies and returns its
// value. Purchases below QualifyingValue leave the accumulator untouched.
func (a *Accumulator) AddPurchase(profileID string, p klaviyo.Event) (float64, bool) {
	value := p.Properties.Value()
	if value < QualifyingValue {
		return 0, false
	}

	if p.Properties.Discounted() {
		a.DiscountedOrders++
	}
	a.TotalRevenue = a.TotalRevenue.Add(decimal.NewFromFloat(value))
	a.TotalPurchases++
	a.PurchaseDates = append(a.PurchaseDates, p.Datetime)
	a.TopCategories.Inc(p.Properties.FirstCategory())
	a.AttributeDistribution.Inc(p.Properties.FirstProductName())
	a.OrderDetails = append(a.OrderDetails, OrderRecord{
		ID:        p.ID,
		Date:      NewOrderDate(p.Datetime, p.RawDatetime),
		Items:     p.Properties.ItemCount(),
		Value:     value,
		LTV:       value,
		Status:    OrderStatus,
		ProfileID: profileID,
	})
	return value, true
}

// CloseBatch stores the qualifying order values found for one submission.
// An empty batch is ignored; a non-empty one replaces any earlier batch of
// the same profile in CustomerOrders and adds its size to ItemsPerOrder.
func (a *Accumulator) CloseBatch(profileID string, values []float64) {
	if len(values) == 0 {
		return
	}
	a.CustomerOrders[profileID] = values
	a.ItemsPerOrder = append(a.ItemsPerOrder, len(values))
}

// OrderTimes indexes qualifying order dates by profile.
func (a *Accumulator) OrderTimes() ProfileTimestampIndex {
	ix := ProfileTimestampIndex{}
	for _, o := range a.OrderDetails {
		if o.ProfileID == "" {
			continue
		}
		ix.Add(o.ProfileID, o.Date.Time)
	}
	return ix
}

// Summary is the set of scalar statistics derived from an Accumulator.
type Summary struct {
	TotalSubmissions         int
	UniqueSubmissionProfiles int
	AvgSubmitsPerProfile     float64
	AvgSubmissionInterval    float64
	AvgOrderInterval         float64

	TotalPurchases       int
	TotalRevenue         float64
	DiscountedOrders     int
	TotalCustomers       int
	AvgOrdersPerCustomer float64
	DailyAverage         float64
	AOV                  float64
	LTV                  float64

	// AvgItemsPerOrder is the mean number of qualifying orders per
	// submission batch, not a per-order item count.
	AvgItemsPerOrder float64
}

// Summarize derives the scalar statistics. Every ratio is 0 when its
// denominator is 0.
func (a *Accumulator) Summarize() Summary {
	revenue := a.TotalRevenue.InexactFloat64()
	s := Summary{
		TotalSubmissions:         a.Submissions,
		UniqueSubmissionProfiles: a.SubmissionTimes.Profiles(),
		AvgSubmissionInterval:    a.SubmissionTimes.AverageIntervalHours(),
		AvgOrderInterval:         a.OrderTimes().AverageIntervalHours(),
		TotalPurchases:           a.TotalPurchases,
		TotalRevenue:             revenue,
		DiscountedOrders:         a.DiscountedOrders,
		TotalCustomers:           len(a.CustomerOrders),
		DailyAverage:             dailyAverage(a.TotalPurchases, a.PurchaseDates),
	}
	if s.UniqueSubmissionProfiles > 0 {
		s.AvgSubmitsPerProfile = float64(s.TotalSubmissions) / float64(s.UniqueSubmissionProfiles)
	}
	if s.TotalCustomers > 0 {
		s.AvgOrdersPerCustomer = float64(s.TotalPurchases) / float64(s.TotalCustomers)
		s.LTV = revenue / float64(s.TotalCustomers)
	}
	if s.TotalPurchases > 0 {
		s.AOV = revenue / float64(s.TotalPurchases)
	}
	if len(a.ItemsPerOrder) > 0 {
		sum := 0
		for _, n := range a.ItemsPerOrder {
			sum += n
		}
		s.AvgItemsPerOrder = float64(sum) / float64(len(a.ItemsPerOrder))
	}
	return s
}

// dailyAverage spreads purchases over the whole days between the first and
// last purchase, counting at least one day. Fewer than two dates give 0.
func dailyAverage(purchases int, dates []time.Time) float64 {
	if len(dates) < 2 {
		return 0
	}
	first, last := dates[0], dates[0]
	for _, d := range dates[1:] {
		if d.Before(first) {
			first = d
		}
		if d.After(last) {
			last = d
		}
	}
	days := math.Max(1, math.Ceil(last.Sub(first).Hours()/24))
	return float64(purchases) / days
}
