package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cardpulse/cardpulse/internal/archive"
	"github.com/cardpulse/cardpulse/internal/domain"
	"github.com/cardpulse/cardpulse/internal/logger"
	"github.com/cardpulse/cardpulse/internal/marketplace"
	"github.com/cardpulse/cardpulse/internal/normalize"
	"github.com/google/uuid"
)

// ScrapeService orchestrates ingestion runs: it selects due items, fans them
// out to a worker pool, runs each marketplace observation through
// normalization and the dedup gate, and tracks job progress. Per-item adapter
// and normalization failures increment the job's error count without failing
// the run; a persistence failure aborts the run and marks the job failed.
type ScrapeService struct {
	items      ItemStore
	jobs       JobStore
	gate       *DedupGate
	normalizer *normalize.Normalizer
	adapters   map[string]marketplace.Adapter
	archive    archive.RawArchive
	registry   *JobRegistry
	logger     *logger.Logger

	workers       int
	interval      time.Duration
	itemTimeout   time.Duration
	backfillLimit int
}

// ScrapeConfig holds configuration for the scrape service
type ScrapeConfig struct {
	Workers       int
	Interval      time.Duration
	ItemTimeout   time.Duration
	BackfillLimit int
}

// NewScrapeService creates a new scrape service.
// Parameters:
//   - items: tracked item persistence.
//   - jobs: ingestion job persistence.
//   - gate: dedup gate applied to every normalized observation.
//   - normalizer: raw-to-canonical listing converter.
//   - adapters: marketplace connectors, keyed by marketplace ID.
//   - rawArchive: best-effort raw payload archive.
//   - registry: single-active-job registry.
//   - log: logger instance.
//   - cfg: worker pool and timing configuration.
// Returns:
//   - *ScrapeService: initialized service.
func NewScrapeService(
	items ItemStore,
	jobs JobStore,
	gate *DedupGate,
	normalizer *normalize.Normalizer,
	adapters []marketplace.Adapter,
	rawArchive archive.RawArchive,
	registry *JobRegistry,
	log *logger.Logger,
	cfg *ScrapeConfig,
) *ScrapeService {
	byID := make(map[string]marketplace.Adapter, len(adapters))
	for _, a := range adapters {
		byID[a.Marketplace()] = a
	}
	return &ScrapeService{
		items:         items,
		jobs:          jobs,
		gate:          gate,
		normalizer:    normalizer,
		adapters:      byID,
		archive:       rawArchive,
		registry:      registry,
		logger:        log,
		workers:       cfg.Workers,
		interval:      cfg.Interval,
		itemTimeout:   cfg.ItemTimeout,
		backfillLimit: cfg.BackfillLimit,
	}
}

// log returns a logger from context if available, otherwise returns the default logger
func (s *ScrapeService) log(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l
	}
	return s.logger
}

// Trigger starts an ingestion run and returns immediately with its job ID.
// The run itself executes asynchronously on the registry's context.
// Parameters:
//   - ctx: context for the item selection query only.
//   - mode: scheduled (due items only) or backfill (all enabled items).
// Returns:
//   - string: ID of the started job.
//   - error: domain.ErrJobAlreadyRunning when a run is in progress, or a
//     persistence error when item selection or job creation fails.
func (s *ScrapeService) Trigger(ctx context.Context, mode domain.ScrapeMode) (string, error) {
	jobID := uuid.New().String()

	runCtx, err := s.registry.Acquire(jobID)
	if err != nil {
		return "", err
	}

	items, err := s.selectItems(ctx, mode)
	if err != nil {
		s.registry.Release(jobID)
		return "", domain.NewPersistenceError("select items", err)
	}

	now := time.Now()
	job := &domain.IngestionJob{
		ID:         jobID,
		Mode:       mode,
		Status:     domain.JobStatusRunning,
		TotalItems: int64(len(items)),
		StartedAt:  &now,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		s.registry.Release(jobID)
		return "", domain.NewPersistenceError("create job", err)
	}

	s.log(ctx).WithFields(logger.Fields{
		logger.FieldJobID: jobID,
		logger.FieldMode:  string(mode),
		logger.FieldCount: len(items),
	}).Info("Starting ingestion run")

	go s.run(runCtx, jobID, items)

	return jobID, nil
}

// Cancel requests abort of a running job. New items stop being dispatched;
// items already handed to workers finish normally.
// Parameters:
//   - jobID: ID of the job to cancel.
// Returns:
//   - bool: true when the job was running and cancellation was requested.
func (s *ScrapeService) Cancel(jobID string) bool {
	return s.registry.Cancel(jobID)
}

// ActiveJobID returns the currently running job's ID, or empty.
// Parameters: none.
// Returns:
//   - string: active job ID or "".
func (s *ScrapeService) ActiveJobID() string {
	return s.registry.ActiveJobID()
}

// selectItems loads the item set for one run
func (s *ScrapeService) selectItems(ctx context.Context, mode domain.ScrapeMode) ([]domain.TrackedItem, error) {
	if mode == domain.ScrapeModeBackfill {
		return s.items.ListEnabled(ctx, s.backfillLimit)
	}
	return s.items.ListDue(ctx, s.interval, time.Now(), 0)
}

// itemResult is one worker's outcome for one tracked item.
type itemResult struct {
	itemID      string
	errCount    int64
	lastError   string
	persistFail error
}

func (s *ScrapeService) run(ctx context.Context, jobID string, items []domain.TrackedItem) {
	defer s.registry.Release(jobID)

	start := time.Now()
	var processed, failed int64
	var persistFail error
	var persistMu sync.Mutex

	// Progress writes use a detached context so a canceled run can still
	// record its final counts.
	progressCtx := context.Background()

	itemsChan := make(chan domain.TrackedItem, s.workers*2)
	resultsChan := make(chan *itemResult, s.workers*2)

	var wg sync.WaitGroup
	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID, itemsChan, resultsChan)
		}(i)
	}

	done := make(chan struct{})
	go func() {
		for result := range resultsChan {
			atomic.AddInt64(&processed, 1)
			atomic.AddInt64(&failed, result.errCount)

			if result.persistFail != nil {
				persistMu.Lock()
				if persistFail == nil {
					persistFail = result.persistFail
					// Storage is unreachable. Cancel the run so the dispatch
					// loop stops feeding the remaining items to workers.
					s.registry.Cancel(jobID)
				}
				persistMu.Unlock()
			}

			if err := s.jobs.IncrementProgress(progressCtx, jobID, 1, result.errCount, result.lastError); err != nil {
				s.log(ctx).WithFields(logger.Fields{
					logger.FieldJobID: jobID,
				}).WithError(err).Error("Failed to record job progress")
			}
		}
		close(done)
	}()

dispatch:
	for _, item := range items {
		select {
		case itemsChan <- item:
		case <-ctx.Done():
			break dispatch
		}
	}

	close(itemsChan)
	wg.Wait()

	close(resultsChan)
	<-done

	status := domain.JobStatusCompleted
	lastError := ""
	if persistFail != nil {
		status = domain.JobStatusFailed
		lastError = persistFail.Error()
	} else if ctx.Err() != nil {
		lastError = "canceled before all items were dispatched"
	}

	if err := s.jobs.Finish(progressCtx, jobID, status, lastError); err != nil {
		s.log(ctx).WithFields(logger.Fields{
			logger.FieldJobID: jobID,
		}).WithError(err).Error("Failed to finalize job record")
	}

	s.log(ctx).WithFields(logger.Fields{
		logger.FieldJobID:      jobID,
		logger.FieldStatus:     string(status),
		"total":                len(items),
		"processed":            atomic.LoadInt64(&processed),
		"errors":               atomic.LoadInt64(&failed),
		logger.FieldDurationMs: time.Since(start).Milliseconds(),
	}).Info("Ingestion run finished")
}

func (s *ScrapeService) worker(ctx context.Context, workerID int, items <-chan domain.TrackedItem, results chan<- *itemResult) {
	for item := range items {
		// Items already dispatched finish even after cancellation, so the
		// per-item context is derived from a fresh timeout, not ctx alone.
		itemCtx, cancel := context.WithTimeout(context.Background(), s.itemTimeout)
		result := s.processItem(itemCtx, &item)
		cancel()

		results <- result
	}
}

// processItem runs one tracked item through every adapter it is listed on.
func (s *ScrapeService) processItem(ctx context.Context, item *domain.TrackedItem) *itemResult {
	result := &itemResult{itemID: item.ID}

	for _, marketplaceID := range item.Marketplaces {
		adapter, ok := s.adapters[marketplaceID]
		if !ok {
			// Misconfigured item; count it once and move on.
			result.errCount++
			result.lastError = fmt.Sprintf("no adapter registered for marketplace %q", marketplaceID)
			s.log(ctx).WithFields(logger.Fields{
				logger.FieldItemID:      item.ID,
				logger.FieldMarketplace: marketplaceID,
			}).Warn("No adapter registered for marketplace")
			continue
		}

		raws, err := adapter.Fetch(ctx, item)
		if err != nil {
			result.errCount++
			result.lastError = err.Error()
			s.log(ctx).WithFields(logger.Fields{
				logger.FieldItemID:      item.ID,
				logger.FieldMarketplace: marketplaceID,
			}).WithError(err).Warn("Adapter fetch failed")
			continue
		}

		s.archiveRaw(ctx, marketplaceID, item.ID, raws)

		for i := range raws {
			listing, err := s.normalizer.Normalize(marketplaceID, item.ID, &raws[i])
			if err != nil {
				result.errCount++
				result.lastError = err.Error()
				s.log(ctx).WithFields(logger.Fields{
					logger.FieldItemID:      item.ID,
					logger.FieldMarketplace: marketplaceID,
					"source_listing_id":     raws[i].SourceListingID,
				}).WithError(err).Warn("Failed to normalize listing")
				continue
			}

			if _, err := s.gate.Apply(ctx, listing); err != nil {
				// Storage unreachable. Stop working this item; the run will
				// be marked failed.
				result.persistFail = err
				return result
			}
		}
	}

	if result.persistFail == nil {
		if err := s.items.MarkScraped(ctx, item.ID, time.Now()); err != nil {
			result.errCount++
			result.lastError = err.Error()
			s.log(ctx).WithFields(logger.Fields{
				logger.FieldItemID: item.ID,
			}).WithError(err).Warn("Failed to mark item scraped")
		}
	}

	return result
}

// archiveRaw stores the raw adapter payload for later replay. Best-effort.
func (s *ScrapeService) archiveRaw(ctx context.Context, marketplaceID, itemID string, raws []marketplace.RawListing) {
	if len(raws) == 0 {
		return
	}

	payload, err := json.Marshal(raws)
	if err != nil {
		s.log(ctx).WithError(err).Warn("Failed to encode raw payload for archive")
		return
	}

	key := fmt.Sprintf("%s/%s/%s.json.gz",
		time.Now().UTC().Format("2006/01/02"), marketplaceID, itemID)
	if err := s.archive.Store(ctx, key, payload); err != nil {
		s.log(ctx).WithFields(logger.Fields{
			logger.FieldItemID:      itemID,
			logger.FieldMarketplace: marketplaceID,
		}).WithError(err).Warn("Failed to archive raw payload")
	}
}

// ReplayStats summarizes one archived-batch replay.
type ReplayStats struct {
	Marketplace string
	ItemID      string
	Listings    int
	Errors      int
}

// Replay fetches an archived raw payload batch and runs it back through the
// normalizer and dedup gate. Used after an alias-table or parser fix to
// re-derive canonical listings without re-scraping the marketplace.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - key: archive object key as written by a scrape run.
// Returns:
//   - *ReplayStats: listing and error counts for the batch.
//   - error: archive.ErrNotArchived when the key does not exist, a decode
//     error for a corrupt payload, or a persistence error from the gate.
func (s *ScrapeService) Replay(ctx context.Context, key string) (*ReplayStats, error) {
	marketplaceID, itemID, err := parseArchiveKey(key)
	if err != nil {
		return nil, err
	}

	payload, err := s.archive.Fetch(ctx, key)
	if err != nil {
		return nil, err
	}

	var raws []marketplace.RawListing
	if err := json.Unmarshal(payload, &raws); err != nil {
		return nil, fmt.Errorf("decode archived payload %q: %w", key, err)
	}

	stats := &ReplayStats{Marketplace: marketplaceID, ItemID: itemID, Listings: len(raws)}
	for i := range raws {
		listing, err := s.normalizer.Normalize(marketplaceID, itemID, &raws[i])
		if err != nil {
			stats.Errors++
			s.log(ctx).WithFields(logger.Fields{
				logger.FieldItemID:      itemID,
				logger.FieldMarketplace: marketplaceID,
				"source_listing_id":     raws[i].SourceListingID,
			}).WithError(err).Warn("Failed to normalize archived listing")
			continue
		}
		if _, err := s.gate.Apply(ctx, listing); err != nil {
			return stats, err
		}
	}
	return stats, nil
}

// parseArchiveKey splits ".../<marketplace>/<item-id>.json.gz" back into its
// marketplace and item components.
func parseArchiveKey(key string) (string, string, error) {
	parts := strings.Split(strings.TrimSuffix(key, ".json.gz"), "/")
	if len(parts) < 2 || parts[len(parts)-1] == "" || parts[len(parts)-2] == "" {
		return "", "", fmt.Errorf("malformed archive key %q", key)
	}
	return parts[len(parts)-2], parts[len(parts)-1], nil
}
