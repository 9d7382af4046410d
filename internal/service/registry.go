package service

import (
	"context"
	"sync"

	"github.com/cardpulse/cardpulse/internal/domain"
)

// JobRegistry enforces system-wide mutual exclusion: at most one ingestion
// job runs at a time. A second start attempt is rejected outright with
// domain.ErrJobAlreadyRunning rather than queued, which is what keeps the
// admin UI's trigger button honest. The registry also owns the run context
// so an operator can abort a job: cancellation stops new item dispatch while
// in-flight items are allowed to complete.
type JobRegistry struct {
	mu       sync.Mutex
	activeID string
	cancel   context.CancelFunc
}

// NewJobRegistry creates an empty registry.
// Parameters: none.
// Returns:
//   - *JobRegistry: initialized registry.
func NewJobRegistry() *JobRegistry {
	return &JobRegistry{}
}

// Acquire claims the single active-job slot via compare-and-set.
// Parameters:
//   - jobID: ID of the job attempting to start.
// Returns:
//   - context.Context: run context, canceled by Cancel or Release.
//   - error: domain.ErrJobAlreadyRunning when a job holds the slot.
func (r *JobRegistry) Acquire(jobID string) (context.Context, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.activeID != "" {
		return nil, domain.ErrJobAlreadyRunning
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.activeID = jobID
	r.cancel = cancel
	return ctx, nil
}

// Release frees the slot when the named job finishes. Releasing with a stale
// job ID is a no-op.
// Parameters:
//   - jobID: ID of the finishing job.
// Returns: none.
func (r *JobRegistry) Release(jobID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.activeID != jobID {
		return
	}
	if r.cancel != nil {
		r.cancel()
	}
	r.activeID = ""
	r.cancel = nil
}

// Cancel requests abort of the named running job.
// Parameters:
//   - jobID: ID of the job to cancel.
// Returns:
//   - bool: true when the job was active and cancellation was requested.
func (r *JobRegistry) Cancel(jobID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.activeID != jobID || r.cancel == nil {
		return false
	}
	r.cancel()
	return true
}

// ActiveJobID returns the currently running job's ID, or empty.
// Parameters: none.
// Returns:
//   - string: active job ID or "".
func (r *JobRegistry) ActiveJobID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.activeID
}
