package service

import (
	"context"
	"time"

	"github.com/cardpulse/cardpulse/internal/domain"
)

// ListingStore is the persistence surface the dedup gate and aggregator need.
// Implemented by repository.ListingRepository.
type ListingStore interface {
	GetByNaturalKey(ctx context.Context, key domain.NaturalKey) (*domain.Listing, error)
	Insert(ctx context.Context, listing *domain.Listing) error
	Update(ctx context.Context, listing *domain.Listing) error
	SoldInWindow(ctx context.Context, itemID, currency string, from, to time.Time) ([]domain.Listing, error)
}

// SnapshotStore is the persistence surface the snapshot aggregator needs.
// Implemented by repository.SnapshotRepository.
type SnapshotStore interface {
	Insert(ctx context.Context, snapshot *domain.MarketSnapshot) (bool, error)
	LatestBefore(ctx context.Context, itemID, treatment string, before time.Time) (*domain.MarketSnapshot, error)
}

// JobStore is the persistence surface for ingestion job records.
// Implemented by repository.JobRepository.
type JobStore interface {
	Create(ctx context.Context, job *domain.IngestionJob) error
	GetByID(ctx context.Context, id string) (*domain.IngestionJob, error)
	IncrementProgress(ctx context.Context, id string, processed, errCount int64, lastError string) error
	Finish(ctx context.Context, id string, status domain.JobStatus, lastError string) error
	ListRecent(ctx context.Context, limit int) ([]domain.IngestionJob, error)
}

// ItemStore is the persistence surface for tracked items.
// Implemented by repository.ItemRepository.
type ItemStore interface {
	GetByID(ctx context.Context, id string) (*domain.TrackedItem, error)
	ListDue(ctx context.Context, interval time.Duration, now time.Time, limit int) ([]domain.TrackedItem, error)
	ListEnabled(ctx context.Context, limit int) ([]domain.TrackedItem, error)
	MarkScraped(ctx context.Context, id string, at time.Time) error
}
