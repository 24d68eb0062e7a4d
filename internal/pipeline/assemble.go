package pipeline

func card(v float64, label string) MetricCard {
	return MetricCard{Value: ToFixed(v, 2), Label: label, Data: []any{}}
}

// Assemble shapes an accumulator into the dashboard document.
func Assemble(acc *Accumulator) *MetricsResult {
	s := acc.Summarize()

	categories := make([]CategoryShare, 0, len(acc.TopCategories.Keys()))
	for _, name := range acc.TopCategories.Keys() {
		count := acc.TopCategories.Get(name)
		categories = append(categories, CategoryShare{
			Name:       name,
			Count:      count,
			Percentage: percentage(count, s.TotalPurchases),
		})
	}

	orders := make([]OrderRecord, len(acc.OrderDetails))
	copy(orders, acc.OrderDetails)

	return &MetricsResult{
		Metrics: SummaryMetrics{
			PurchaseFrequency: card(s.AvgOrdersPerCustomer, "Avg. purchases per customer"),
			CustomerLTV:       card(s.LTV, "Lifetime value per customer"),
			AOV:               card(s.AOV, "Avg. revenue per order"),
			AvgSwaptSubmits:   card(s.AvgSubmitsPerProfile, "Avg. swapt submits per profile"),
			AvgSwaptInterval:  card(s.AvgSubmissionInterval, "Avg. interval between swapt submits (hrs)"),
			AvgOrderInterval:  card(s.AvgOrderInterval, "Avg. interval between orders (hrs)"),
			TotalSwaptSubmits: s.TotalSubmissions,
			NetNewSubscribers: s.UniqueSubmissionProfiles,
		},
		DetailedData: []any{},
		DetailedMetrics: DetailedMetrics{
			Products: ProductMetrics{
				TopCategories:         categories,
				AttributeDistribution: acc.AttributeDistribution.Map(),
				ItemsPerOrder:         ToFixed(s.AvgItemsPerOrder, 2),
			},
			Orders: OrderMetrics{
				Total:                      s.TotalPurchases,
				AverageItemCount:           ToFixed(s.AvgItemsPerOrder, 2),
				DiscountedOrders:           s.DiscountedOrders,
				DiscountedOrdersPercentage: percentage(s.DiscountedOrders, s.TotalPurchases),
				DailyAverage:               ToFixed(s.DailyAverage, 2),
			},
			OrderDetails: orders,
		},
	}
}
