package db

import (
	"sort"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// summarizeDay groups the runs of one day by store. Stores come out sorted.
func summarizeDay(runs []RunRecord, day time.Time) []DailyRunSummary {
	groups := make(map[string][]RunRecord)
	for _, r := range runs {
		groups[r.StoreID] = append(groups[r.StoreID], r)
	}

	stores := make([]string, 0, len(groups))
	for s := range groups {
		stores = append(stores, s)
	}
	sort.Strings(stores)

	out := make([]DailyRunSummary, 0, len(stores))
	for _, store := range stores {
		list := groups[store]
		durations := make([]int64, 0, len(list))
		latest := list[0]
		for _, r := range list {
			durations = append(durations, r.Duration().Milliseconds())
			if r.FinishedAt.After(latest.FinishedAt) {
				latest = r
			}
		}
		sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })
		n := len(durations)

		out = append(out, DailyRunSummary{
			StoreID:       store,
			Day:           day,
			Runs:          int64(n),
			DurationP50Ms: durations[(n*50)/100],
			DurationMaxMs: durations[n-1],
			LastPurchases: int64(latest.TotalPurchases),
			LastRevenue:   latest.TotalRevenue,
			LastSubmits:   int64(latest.TotalSubmits),
		})
	}
	return out
}

// runAggregationOnce rolls up runs started on the given UTC day (dayStart to
// dayStart+24h) into DailyRunSummary rows.
func runAggregationOnce(db *gorm.DB, dayStart time.Time) error {
	dayEnd := dayStart.Add(24 * time.Hour)

	var runs []RunRecord
	if err := db.Where("started_at >= ? AND started_at < ?", dayStart, dayEnd).
		Select("store_id", "started_at", "finished_at", "total_submits", "total_purchases", "total_revenue").
		Find(&runs).Error; err != nil {
		return err
	}

	for _, row := range summarizeDay(runs, dayStart) {
		var existing DailyRunSummary
		err := db.Where("store_id = ? AND day = ?", row.StoreID, dayStart).First(&existing).Error
		if err == gorm.ErrRecordNotFound {
			err = db.Create(&row).Error
		} else if err == nil {
			err = db.Model(&existing).Updates(map[string]interface{}{
				"runs":            row.Runs,
				"duration_p50_ms": row.DurationP50Ms,
				"duration_max_ms": row.DurationMaxMs,
				"last_purchases":  row.LastPurchases,
				"last_revenue":    row.LastRevenue,
				"last_submits":    row.LastSubmits,
			}).Error
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// StartAggregationWorker rolls up today and the previous 7 days at startup,
// then refreshes today and yesterday every hour. Days are in UTC.
func StartAggregationWorker(db *gorm.DB, log *zap.Logger) {
	go func() {
		today := time.Now().UTC().Truncate(24 * time.Hour)
		for i := 0; i <= 7; i++ {
			day := today.Add(-time.Duration(i) * 24 * time.Hour)
			if err := runAggregationOnce(db, day); err != nil {
				log.Error("aggregation error (startup)", zap.Time("day", day), zap.Error(err))
			}
		}

		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for t := range ticker.C {
			today := t.UTC().Truncate(24 * time.Hour)
			for _, day := range []time.Time{today.Add(-24 * time.Hour), today} {
				if err := runAggregationOnce(db, day); err != nil {
					log.Error("aggregation error", zap.Time("day", day), zap.Error(err))
				}
			}
		}
	}()
}
