package db

import (
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// retentionCutoff is the oldest start time kept. Non-positive retention
// keeps everything and yields the zero time.
func retentionCutoff(now time.Time, days int) time.Time {
	if days <= 0 {
		return time.Time{}
	}
	return now.Add(-time.Duration(days) * 24 * time.Hour)
}

// runRetentionOnce performs a single pass of retention cleanup, deleting
// runs and daily summaries older than the retention window.
func runRetentionOnce(db *gorm.DB, days int) error {
	cutoff := retentionCutoff(time.Now().UTC(), days)
	if cutoff.IsZero() {
		return nil
	}
	if err := db.Where("started_at < ?", cutoff).Delete(&RunRecord{}).Error; err != nil {
		return err
	}
	if err := db.Where("day < ?", cutoff.Truncate(24*time.Hour)).Delete(&DailyRunSummary{}).Error; err != nil {
		return err
	}
	return nil
}

// StartRetentionWorker launches a background goroutine that runs the
// retention cleanup once at startup and then once per day.
func StartRetentionWorker(db *gorm.DB, days int, log *zap.Logger) {
	go func() {
		if err := runRetentionOnce(db, days); err != nil {
			log.Error("retention cleanup error (startup)", zap.Error(err))
		}

		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()

		for range ticker.C {
			if err := runRetentionOnce(db, days); err != nil {
				log.Error("retention cleanup error", zap.Error(err))
			}
		}
	}()
}
