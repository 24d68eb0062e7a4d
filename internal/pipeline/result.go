package pipeline

// MetricCard is one headline metric on the dashboard.
type MetricCard struct {
	Value  string  `json:"value"`
	Change float64 `json:"change"`
	Label  string  `json:"label"`
	Data   []any   `json:"data"`
}

type SummaryMetrics struct {
	PurchaseFrequency MetricCard `json:"purchaseFrequency"`
	CustomerLTV       MetricCard `json:"customerLTV"`
	AOV               MetricCard `json:"aov"`
	AvgSwaptSubmits   MetricCard `json:"avgSwaptSubmits"`
	AvgSwaptInterval  MetricCard `json:"avgSwaptInterval"`
	AvgOrderInterval  MetricCard `json:"avgOrderInterval"`

	TotalSwaptSubmits int `json:"totalSwaptSubmits"`
	NetNewSubscribers int `json:"netNewSubscribers"`
}

type CategoryShare struct {
	Name       string `json:"name"`
	Count      int    `json:"count"`
	Percentage string `json:"percentage"`
}

type ProductMetrics struct {
	TopCategories         []CategoryShare `json:"topCategories"`
	AttributeDistribution map[string]int  `json:"attributeDistribution"`
	ItemsPerOrder         string          `json:"itemsPerOrder"`
	DiscountRate          float64         `json:"discountRate"`
}

type OrderMetrics struct {
	Total                      int    `json:"total"`
	AverageItemCount           string `json:"averageItemCount"`
	DiscountedOrders           int    `json:"discountedOrders"`
	DiscountedOrdersPercentage string `json:"discountedOrdersPercentage"`
	DailyAverage               string `json:"dailyAverage"`
}

type DetailedMetrics struct {
	Products     ProductMetrics `json:"products"`
	Orders       OrderMetrics   `json:"orders"`
	OrderDetails []OrderRecord  `json:"orderDetails"`
}

// MetricsResult is the document served to the dashboard and written to the
// cache file. It is not modified after Assemble returns it.
type MetricsResult struct {
	Metrics         SummaryMetrics  `json:"metrics"`
	DetailedData    []any           `json:"detailedData"`
	DetailedMetrics DetailedMetrics `json:"detailedMetrics"`
}

// TotalRevenue sums the order values, as the dashboard's revenue card does.
func (r *MetricsResult) TotalRevenue() float64 {
	var total float64
	for _, o := range r.DetailedMetrics.OrderDetails {
		total += o.Value
	}
	return total
}
