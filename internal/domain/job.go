package domain

import "time"

// JobStatus represents the status of an ingestion job.
// Values include JobStatusIdle, JobStatusRunning, JobStatusCompleted, and JobStatusFailed.
type JobStatus string

const (
	JobStatusIdle      JobStatus = "idle"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// ScrapeMode distinguishes scheduled incremental runs from operator backfills.
// Backfills process all items regardless of last-scraped time and are logged
// explicitly so their volume spikes can be told apart from organic activity.
type ScrapeMode string

const (
	ScrapeModeScheduled ScrapeMode = "scheduled"
	ScrapeModeBackfill  ScrapeMode = "backfill"
)

// IngestionJob represents one run of the scrape orchestrator and its progress
// metadata. At most one job is running at any time; per-item failures
// increment ErrorCount without failing the job, while infrastructure failures
// (persistence unreachable) mark the whole job failed.
type IngestionJob struct {
	ID             string     `gorm:"type:text;primaryKey" json:"id"`
	Mode           ScrapeMode `gorm:"type:text;not null" json:"mode"`
	Status         JobStatus  `gorm:"type:text;index:idx_ingestion_jobs_status;default:idle" json:"status"`
	TotalItems     int64      `gorm:"default:0" json:"total_items"`
	ProcessedItems int64      `gorm:"default:0" json:"processed_items"`
	ErrorCount     int64      `gorm:"default:0" json:"error_count"`
	LastError      string     `gorm:"type:text" json:"last_error,omitempty"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// TableName returns the database table name for IngestionJob.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (IngestionJob) TableName() string {
	return "ingestion_jobs"
}

// IsTerminal reports whether the job reached a final state.
// Parameters: none.
// Returns:
//   - bool: true for completed and failed.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}
