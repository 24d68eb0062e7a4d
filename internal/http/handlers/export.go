package handlers

import (
	"bytes"
	"encoding/csv"
	"errors"
	"io"
	"strconv"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"swaptinsight/internal/cache"
	"swaptinsight/internal/pipeline"
)

const (
	summaryExportName = "swapt_data_export.csv"
	ordersExportName  = "order_details_export.csv"
)

// ExportCSV serves the cached result as CSV. ?kind=orders selects the order
// details layout; anything else gives the summary layout.
func ExportCSV(store ResultLoader, log *zap.Logger) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		res, err := store.Load()
		if err != nil {
			if errors.Is(err, cache.ErrCacheMiss) {
				jsonError(ctx, fasthttp.StatusNotFound, "Data file not found", nil)
				return
			}
			log.Error("failed to read cached metrics for export", zap.Error(err))
			jsonError(ctx, fasthttp.StatusInternalServerError, "Failed to fetch data", nil)
			return
		}

		write, name := writeSummaryCSV, summaryExportName
		if string(ctx.QueryArgs().Peek("kind")) == "orders" {
			write, name = writeOrdersCSV, ordersExportName
		}

		var buf bytes.Buffer
		if err := write(&buf, res); err != nil {
			log.Error("failed to encode export", zap.Error(err))
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to encode export")
			return
		}
		ctx.SetContentType("text/csv; charset=utf-8")
		ctx.Response.Header.Set("Content-Disposition", `attachment; filename="`+name+`"`)
		ctx.SetBody(buf.Bytes())
	}
}

func number(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func writeSummaryCSV(w io.Writer, res *pipeline.MetricsResult) error {
	cw := csv.NewWriter(w)
	m := res.Metrics
	card := func(name string, c pipeline.MetricCard) []string {
		return []string{name, c.Value, number(c.Change), c.Label}
	}

	totalRevenue := "0"
	if len(res.DetailedMetrics.OrderDetails) > 0 {
		totalRevenue = pipeline.ToFixed(res.TotalRevenue(), 2)
	}

	rows := [][]string{
		{"Metric", "Value", "Change", "Label"},
		card("Purchase Frequency", m.PurchaseFrequency),
		card("Customer LTV", m.CustomerLTV),
		card("Average Order Value", m.AOV),
		{"Total Revenue", totalRevenue, "0", "Total Revenue"},
		card("Avg. Swapt Interval (hours)", m.AvgSwaptInterval),
		card("Avg. Order Interval (hours)", m.AvgOrderInterval),
		card("Avg. Swapt Submits per Profile", m.AvgSwaptSubmits),
		nil,
		{"Product Category", "Count", "Percentage"},
	}
	for _, c := range res.DetailedMetrics.Products.TopCategories {
		rows = append(rows, []string{c.Name, strconv.Itoa(c.Count), c.Percentage})
	}

	orders := res.DetailedMetrics.Orders
	rows = append(rows, nil,
		[]string{"Order Metrics", "Value"},
		[]string{"Total Orders", strconv.Itoa(orders.Total)},
	)
	if orders.DailyAverage != "" {
		rows = append(rows, []string{"Daily Average", orders.DailyAverage})
	}
	rows = append(rows,
		[]string{"Discounted Orders", orders.DiscountedOrdersPercentage + "%"},
		[]string{"Items Per Order", res.DetailedMetrics.Products.ItemsPerOrder},
	)

	if err := cw.WriteAll(rows); err != nil {
		return err
	}
	return cw.Error()
}

func writeOrdersCSV(w io.Writer, res *pipeline.MetricsResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Order ID", "Date", "Items", "Value", "Customer LTV", "Status"}); err != nil {
		return err
	}
	for _, o := range res.DetailedMetrics.OrderDetails {
		if err := cw.Write([]string{
			o.ID,
			o.Date.String(),
			strconv.Itoa(o.Items),
			pipeline.ToFixed(o.Value, 2),
			pipeline.ToFixed(o.LTV, 2),
			o.Status,
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
