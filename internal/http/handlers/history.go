package handlers

import (
	"strconv"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	dbpkg "swaptinsight/internal/db"
)

// HistoryReader lists past runs. *db.Store implements it.
type HistoryReader interface {
	Recent(storeID string, limit int) ([]dbpkg.RunRecord, error)
	Daily(storeID string, since time.Time) ([]dbpkg.DailyRunSummary, error)
}

type runSummary struct {
	RunID             string    `json:"runId"`
	StoreID           string    `json:"storeId"`
	StartedAt         time.Time `json:"startedAt"`
	DurationMs        int64     `json:"durationMs"`
	TotalSubmits      int       `json:"totalSubmits"`
	NetNewSubscribers int       `json:"netNewSubscribers"`
	TotalPurchases    int       `json:"totalPurchases"`
	TotalRevenue      float64   `json:"totalRevenue"`
}

type dailySummary struct {
	StoreID       string  `json:"storeId"`
	Day           string  `json:"day"`
	Runs          int64   `json:"runs"`
	DurationP50Ms int64   `json:"durationP50Ms"`
	DurationMaxMs int64   `json:"durationMaxMs"`
	LastPurchases int64   `json:"lastPurchases"`
	LastRevenue   float64 `json:"lastRevenue"`
	LastSubmits   int64   `json:"lastSubmits"`
}

// History lists recent runs (?storeId=, ?limit=) or, with ?view=daily, the
// daily rollups of the last ?days= days (default 30). A nil reader means
// run history is disabled and yields 503.
func History(h HistoryReader, log *zap.Logger) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		if h == nil {
			jsonError(ctx, fasthttp.StatusServiceUnavailable, "Run history is disabled", nil)
			return
		}
		args := ctx.QueryArgs()
		storeID := string(args.Peek("storeId"))

		if string(args.Peek("view")) == "daily" {
			days := 30
			if v, err := strconv.Atoi(string(args.Peek("days"))); err == nil && v > 0 {
				days = v
			}
			rows, err := h.Daily(storeID, time.Now().UTC().AddDate(0, 0, -days))
			if err != nil {
				log.Error("failed to load daily history", zap.Error(err))
				jsonError(ctx, fasthttp.StatusInternalServerError, "Failed to fetch history", nil)
				return
			}
			out := make([]dailySummary, 0, len(rows))
			for _, r := range rows {
				out = append(out, dailySummary{
					StoreID:       r.StoreID,
					Day:           r.Day.UTC().Format("2006-01-02"),
					Runs:          r.Runs,
					DurationP50Ms: r.DurationP50Ms,
					DurationMaxMs: r.DurationMaxMs,
					LastPurchases: r.LastPurchases,
					LastRevenue:   r.LastRevenue,
					LastSubmits:   r.LastSubmits,
				})
			}
			jsonResponse(ctx, map[string]any{"days": out})
			return
		}

		limit := 20
		if v, err := strconv.Atoi(string(args.Peek("limit"))); err == nil && v > 0 {
			limit = v
		}
		runs, err := h.Recent(storeID, limit)
		if err != nil {
			log.Error("failed to load run history", zap.Error(err))
			jsonError(ctx, fasthttp.StatusInternalServerError, "Failed to fetch history", nil)
			return
		}
		out := make([]runSummary, 0, len(runs))
		for _, r := range runs {
			out = append(out, runSummary{
				RunID:             r.RunID.String(),
				StoreID:           r.StoreID,
				StartedAt:         r.StartedAt,
				DurationMs:        r.Duration().Milliseconds(),
				TotalSubmits:      r.TotalSubmits,
				NetNewSubscribers: r.NetNewSubscribers,
				TotalPurchases:    r.TotalPurchases,
				TotalRevenue:      r.TotalRevenue,
			})
		}
		jsonResponse(ctx, map[string]any{"runs": out})
	}
}
