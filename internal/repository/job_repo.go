package repository

import (
	"context"
	"errors"
	"time"

	"github.com/cardpulse/cardpulse/internal/domain"
	"gorm.io/gorm"
)

// JobRepository handles ingestion job persistence. Progress counters are
// incremented with SQL expressions so concurrent workers never lose updates
// to read-modify-write races.
type JobRepository struct {
	db *gorm.DB
}

// NewJobRepository creates a new JobRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *JobRepository: repository instance bound to db.
func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create inserts a new job record.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - job: job record to persist.
// Returns:
//   - error: non-nil if the insert fails.
func (r *JobRepository) Create(ctx context.Context, job *domain.IngestionJob) error {
	return r.db.WithContext(ctx).Create(job).Error
}

// GetByID retrieves a job by its ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job ID.
// Returns:
//   - *domain.IngestionJob: job record if found.
//   - error: domain.ErrJobNotFound on a miss, otherwise the storage error.
func (r *JobRepository) GetByID(ctx context.Context, id string) (*domain.IngestionJob, error) {
	var job domain.IngestionJob
	if err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrJobNotFound
		}
		return nil, err
	}
	return &job, nil
}

// IncrementProgress atomically adds to the processed and error counters and
// records the most recent error message when one is provided.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job ID.
//   - processed: processed-items delta.
//   - errCount: error-count delta.
//   - lastError: most recent error message, empty to leave unchanged.
// Returns:
//   - error: non-nil if the update fails.
func (r *JobRepository) IncrementProgress(ctx context.Context, id string, processed, errCount int64, lastError string) error {
	updates := map[string]interface{}{
		"processed_items": gorm.Expr("processed_items + ?", processed),
		"error_count":     gorm.Expr("error_count + ?", errCount),
		"updated_at":      time.Now(),
	}
	if lastError != "" {
		updates["last_error"] = lastError
	}
	return r.db.WithContext(ctx).Model(&domain.IngestionJob{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// Finish marks a job terminal with its final status.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job ID.
//   - status: final status (completed or failed).
//   - lastError: failure message, empty on success.
// Returns:
//   - error: non-nil if the update fails.
func (r *JobRepository) Finish(ctx context.Context, id string, status domain.JobStatus, lastError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"status":      status,
		"finished_at": now,
		"updated_at":  now,
	}
	if lastError != "" {
		updates["last_error"] = lastError
	}
	return r.db.WithContext(ctx).Model(&domain.IngestionJob{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// ListRecent returns the most recently created jobs.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - limit: maximum rows to return.
// Returns:
//   - []domain.IngestionJob: recent jobs, newest first.
//   - error: non-nil if the query fails.
func (r *JobRepository) ListRecent(ctx context.Context, limit int) ([]domain.IngestionJob, error) {
	var jobs []domain.IngestionJob
	err := r.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&jobs).Error
	if err != nil {
		return nil, err
	}
	return jobs, nil
}
