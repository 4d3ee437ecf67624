package domain

import "time"

// RunStatus represents the status of an analysis run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// AnalysisRun records one batch pass of the pipeline over a saved-post source.
type AnalysisRun struct {
	ID             string     `gorm:"type:text;primaryKey" json:"id"`
	SourceID       string     `gorm:"type:text;not null;index" json:"source_id"`
	Status         RunStatus  `gorm:"type:text;default:running" json:"status"`
	TotalItems     int64      `gorm:"default:0" json:"total_items"`
	ProcessedItems int64      `gorm:"default:0" json:"processed_items"`
	SkippedItems   int64      `gorm:"default:0" json:"skipped_items"`
	FailedItems    int64      `gorm:"default:0" json:"failed_items"`
	StartedAt      time.Time  `json:"started_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	ErrorLog       string     `gorm:"type:text" json:"error_log,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// TableName returns the database table name for AnalysisRun.
func (AnalysisRun) TableName() string {
	return "analysis_runs"
}
