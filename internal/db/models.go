package db

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// RunRecord is one completed pipeline run. Result holds the full
// MetricsResult document as served to the dashboard at the time.
type RunRecord struct {
	ID uint `gorm:"primaryKey"`

	CreatedAt time.Time

	RunID   uuid.UUID `gorm:"type:uuid;uniqueIndex;not null"`
	StoreID string    `gorm:"index;size:128"`

	StartedAt  time.Time `gorm:"index;not null"`
	FinishedAt time.Time `gorm:"not null"`

	TotalSubmits      int
	NetNewSubscribers int
	TotalPurchases    int
	TotalRevenue      float64

	Result datatypes.JSON `gorm:"type:jsonb"`
}

// Duration is the wall time of the run.
func (r RunRecord) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// DailyRunSummary rolls up the runs of one store for one UTC day. Filled by
// the aggregation worker.
type DailyRunSummary struct {
	ID uint `gorm:"primaryKey"`

	StoreID string    `gorm:"uniqueIndex:idx_daily_run_unique,priority:1;size:128;not null"`
	Day     time.Time `gorm:"uniqueIndex:idx_daily_run_unique,priority:2;not null"` // start of the day (UTC)

	Runs          int64 `gorm:"not null"`
	DurationP50Ms int64 `gorm:"not null"`
	DurationMaxMs int64 `gorm:"not null"`

	// Figures of the latest run of the day.
	LastPurchases int64   `gorm:"not null"`
	LastRevenue   float64 `gorm:"not null"`
	LastSubmits   int64   `gorm:"not null"`
}
