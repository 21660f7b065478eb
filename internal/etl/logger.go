package etl

import (
	"encoding/json"
	"log"
	"os"
	"time"

	"gorm.io/gorm"

	"github.com/xelth-com/snowetlgo/internal/models"
	"github.com/xelth-com/snowetlgo/internal/servicenow"
)

// RunLogger persists one ExecutionLog row per ETL run, so operators can
// answer "when did this last run and what did it move" from the
// database instead of from console scrollback.
type RunLogger struct {
	db *gorm.DB
}

// NewRunLogger creates a run logger.
func NewRunLogger(db *gorm.DB) *RunLogger {
	return &RunLogger{db: db}
}

// Run accumulates per-table record counts for one operation and writes
// the final ExecutionLog row on Finish.
type Run struct {
	db        *gorm.DB
	operation string
	started   time.Time
	window    [2]*time.Time
	records   map[string]int
}

// Start begins tracking an operation. windowStart/windowEnd are nil for
// operations that are not window-bounded.
func (l *RunLogger) Start(operation string, windowStart, windowEnd *time.Time) *Run {
	return &Run{
		db:        l.db,
		operation: operation,
		started:   time.Now().UTC(),
		window:    [2]*time.Time{windowStart, windowEnd},
		records:   make(map[string]int),
	}
}

// Record adds to the per-table record count for this run.
func (r *Run) Record(table string, count int) {
	if count > 0 {
		r.records[table] += count
	}
}

// Finish writes the execution-log row. A logging failure is reported on
// the console but never fails the run itself.
func (r *Run) Finish(stats servicenow.FetchStats, runErr error) {
	completed := time.Now().UTC()
	hostname, _ := os.Hostname()

	entry := models.ExecutionLog{
		Hostname:       hostname,
		Operation:      r.operation,
		Status:         "success",
		StartedAt:      r.started,
		CompletedAt:    &completed,
		Duration:       int(completed.Sub(r.started).Milliseconds()),
		WindowStart:    r.window[0],
		WindowEnd:      r.window[1],
		APIRequests:    stats.Requests,
		APIFailures:    stats.Failed,
		APITime:        int(stats.APITime.Milliseconds()),
		APISuccessRate: stats.SuccessRate(),
	}
	if runErr != nil {
		entry.Status = "error"
		entry.ErrorDetail = runErr.Error()
	}
	if len(r.records) > 0 {
		if data, err := json.Marshal(r.records); err == nil {
			entry.RecordsByTable = data
		}
	}

	if err := r.db.Create(&entry).Error; err != nil {
		log.Printf("⚠️ Failed to write execution log: %v", err)
	}
}

// History returns recent runs, newest first.
func (l *RunLogger) History(limit int) ([]models.ExecutionLog, error) {
	if limit <= 0 {
		limit = 20
	}
	var entries []models.ExecutionLog
	err := l.db.Order("started_at DESC").Limit(limit).Find(&entries).Error
	return entries, err
}
