package db

import (
	"time"

	"gorm.io/gorm"
)

// MaxRecent caps how many runs Recent returns.
const MaxRecent = 100

// Store reads and writes run history.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// RecordRun inserts a completed run.
func (s *Store) RecordRun(rec *RunRecord) error {
	return s.db.Create(rec).Error
}

// Recent returns the latest runs, newest first, without their result
// documents. An empty storeID matches every store.
func (s *Store) Recent(storeID string, limit int) ([]RunRecord, error) {
	var runs []RunRecord
	err := recentQuery(s.db, storeID, limit).Find(&runs).Error
	return runs, err
}

// Daily returns the daily summaries since the given day, oldest first.
func (s *Store) Daily(storeID string, since time.Time) ([]DailyRunSummary, error) {
	var rows []DailyRunSummary
	q := s.db.Where("day >= ?", since.UTC().Truncate(24*time.Hour))
	if storeID != "" {
		q = q.Where("store_id = ?", storeID)
	}
	err := q.Order("day ASC").Order("store_id ASC").Find(&rows).Error
	return rows, err
}

func recentQuery(db *gorm.DB, storeID string, limit int) *gorm.DB {
	if limit <= 0 || limit > MaxRecent {
		limit = MaxRecent
	}
	q := db.Model(&RunRecord{}).
		Omit("result").
		Order("started_at DESC").
		Limit(limit)
	if storeID != "" {
		q = q.Where("store_id = ?", storeID)
	}
	return q
}
