package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ExecutionLog records one ETL run end to end: what was requested, how
// long it took, what came back from the source system and where it went.
type ExecutionLog struct {
	ID          uuid.UUID      `gorm:"primaryKey;type:uuid" json:"id"`
	Operation   string         `gorm:"column:operation;not null;index" json:"operation"` // "ref-sync", "incidents", "full-etl", ...
	Status      string         `gorm:"column:status;not null;index" json:"status"`       // "success", "error"
	StartedAt   time.Time      `gorm:"column:started_at;not null" json:"startedAt"`
	CompletedAt *time.Time     `gorm:"column:completed_at" json:"completedAt"`
	Duration    int            `gorm:"column:duration;default:0" json:"duration"` // milliseconds

	WindowStart *time.Time `gorm:"column:window_start" json:"windowStart"`
	WindowEnd   *time.Time `gorm:"column:window_end" json:"windowEnd"`

	APIRequests    int     `gorm:"column:api_requests;default:0" json:"apiRequests"`
	APIFailures    int     `gorm:"column:api_failures;default:0" json:"apiFailures"`
	APITime        int     `gorm:"column:api_time;default:0" json:"apiTime"` // milliseconds
	APISuccessRate float64 `gorm:"column:api_success_rate;default:0" json:"apiSuccessRate"`

	RecordsByTable datatypes.JSON `gorm:"column:records_by_table;type:jsonb" json:"recordsByTable"`
	ErrorDetail    string         `gorm:"column:error_detail;type:text" json:"errorDetail"`
	Hostname       string         `gorm:"column:hostname" json:"hostname"`

	CreatedAt time.Time      `gorm:"column:created_at" json:"-"`
	UpdatedAt time.Time      `gorm:"column:updated_at" json:"-"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name
func (ExecutionLog) TableName() string {
	return "etl_execution_log"
}

// BeforeCreate assigns the run id
func (e *ExecutionLog) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
