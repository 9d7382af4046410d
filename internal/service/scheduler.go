package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cardpulse/cardpulse/internal/domain"
	"github.com/cardpulse/cardpulse/internal/logger"
)

// Scheduler drives the two periodic loops: scheduled scrape runs and snapshot
// aggregation. The loops tick independently; a scrape skipped because a job is
// already running is logged and retried on the next tick, never queued.
type Scheduler struct {
	scrape   *ScrapeService
	snapshot *SnapshotService
	logger   *logger.Logger

	scrapeInterval   time.Duration
	snapshotInterval time.Duration

	mu              sync.Mutex
	running         bool
	cancel          context.CancelFunc
	wg              sync.WaitGroup
	lastScrapeRun   time.Time
	lastSnapshotRun time.Time
	nextScrapeRun   time.Time
	nextSnapshotRun time.Time
}

// SchedulerConfig holds configuration for the scheduler
type SchedulerConfig struct {
	ScrapeInterval   time.Duration
	SnapshotInterval time.Duration
}

// SchedulerStatus is the scheduler state reported to the admin API.
type SchedulerStatus struct {
	Running         bool       `json:"running"`
	ActiveJobID     string     `json:"active_job_id,omitempty"`
	LastScrapeRun   *time.Time `json:"last_scrape_run,omitempty"`
	NextScrapeRun   *time.Time `json:"next_scrape_run,omitempty"`
	LastSnapshotRun *time.Time `json:"last_snapshot_run,omitempty"`
	NextSnapshotRun *time.Time `json:"next_snapshot_run,omitempty"`
}

// NewScheduler creates a new scheduler.
// Parameters:
//   - scrape: scrape service triggered on the scrape interval.
//   - snapshot: snapshot service run on the snapshot interval.
//   - log: logger instance.
//   - cfg: loop intervals.
// Returns:
//   - *Scheduler: initialized scheduler, not yet started.
func NewScheduler(scrape *ScrapeService, snapshot *SnapshotService, log *logger.Logger, cfg *SchedulerConfig) *Scheduler {
	return &Scheduler{
		scrape:           scrape,
		snapshot:         snapshot,
		logger:           log,
		scrapeInterval:   cfg.ScrapeInterval,
		snapshotInterval: cfg.SnapshotInterval,
	}
}

// Start launches both loops. Calling Start on a running scheduler is a no-op.
// Parameters: none.
// Returns: none.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.running = true
	now := time.Now()
	s.nextScrapeRun = now.Add(s.scrapeInterval)
	s.nextSnapshotRun = now.Add(s.snapshotInterval)

	s.wg.Add(2)
	go s.scrapeLoop(ctx)
	go s.snapshotLoop(ctx)

	s.logger.WithFields(logger.Fields{
		"scrape_interval":   s.scrapeInterval.String(),
		"snapshot_interval": s.snapshotInterval.String(),
	}).Info("Scheduler started")
}

// Stop halts both loops and waits for them to exit. A scrape job already
// triggered keeps running; Stop only stops future ticks.
// Parameters: none.
// Returns: none.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
	s.logger.Info("Scheduler stopped")
}

// Status reports the scheduler's current state.
// Parameters: none.
// Returns:
//   - *SchedulerStatus: running flag, active job, and loop timings.
func (s *Scheduler) Status() *SchedulerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := &SchedulerStatus{
		Running:     s.running,
		ActiveJobID: s.scrape.ActiveJobID(),
	}
	if !s.lastScrapeRun.IsZero() {
		t := s.lastScrapeRun
		status.LastScrapeRun = &t
	}
	if !s.lastSnapshotRun.IsZero() {
		t := s.lastSnapshotRun
		status.LastSnapshotRun = &t
	}
	if s.running {
		t1, t2 := s.nextScrapeRun, s.nextSnapshotRun
		status.NextScrapeRun = &t1
		status.NextSnapshotRun = &t2
	}
	return status
}

func (s *Scheduler) scrapeLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.scrapeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			s.lastScrapeRun = time.Now()
			s.nextScrapeRun = s.lastScrapeRun.Add(s.scrapeInterval)
			s.mu.Unlock()

			jobID, err := s.scrape.Trigger(ctx, domain.ScrapeModeScheduled)
			if err != nil {
				if errors.Is(err, domain.ErrJobAlreadyRunning) {
					s.logger.Warn("Skipping scheduled scrape, a job is already running")
					continue
				}
				s.logger.WithError(err).Error("Failed to trigger scheduled scrape")
				continue
			}
			s.logger.WithField(logger.FieldJobID, jobID).Info("Scheduled scrape triggered")
		}
	}
}

func (s *Scheduler) snapshotLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.snapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			s.lastSnapshotRun = time.Now()
			s.nextSnapshotRun = s.lastSnapshotRun.Add(s.snapshotInterval)
			s.mu.Unlock()

			windowEnd := time.Now().UTC().Truncate(time.Hour)
			if _, err := s.snapshot.Run(ctx, windowEnd); err != nil {
				s.logger.WithError(err).Error("Scheduled snapshot run failed")
			}
		}
	}
}
