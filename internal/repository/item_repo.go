package repository

import (
	"context"
	"errors"
	"time"

	"github.com/cardpulse/cardpulse/internal/domain"
	"gorm.io/gorm"
)

// ItemRepository handles tracked item data operations.
type ItemRepository struct {
	db *gorm.DB
}

// NewItemRepository creates a new ItemRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *ItemRepository: repository instance bound to db.
func NewItemRepository(db *gorm.DB) *ItemRepository {
	return &ItemRepository{db: db}
}

// GetByID retrieves a tracked item by its ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: tracked item ID.
// Returns:
//   - *domain.TrackedItem: item record if found.
//   - error: domain.ErrItemNotFound on a miss, otherwise the storage error.
func (r *ItemRepository) GetByID(ctx context.Context, id string) (*domain.TrackedItem, error) {
	var item domain.TrackedItem
	if err := r.db.WithContext(ctx).First(&item, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrItemNotFound
		}
		return nil, err
	}
	return &item, nil
}

// ListDue returns enabled items that have never been scraped or whose last
// scrape is older than the refresh interval. Scheduled runs process only
// these; backfills use ListEnabled instead.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - interval: minimum time between scrapes of the same item.
//   - now: reference time.
//   - limit: maximum items to return, 0 for no cap.
// Returns:
//   - []domain.TrackedItem: items due for refresh.
//   - error: non-nil if the query fails.
func (r *ItemRepository) ListDue(ctx context.Context, interval time.Duration, now time.Time, limit int) ([]domain.TrackedItem, error) {
	cutoff := now.Add(-interval)
	q := r.db.WithContext(ctx).
		Where("is_enabled = ?", true).
		Where("last_scraped_at IS NULL OR last_scraped_at <= ?", cutoff).
		Order("last_scraped_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var items []domain.TrackedItem
	if err := q.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// ListEnabled returns all enabled items regardless of last-scraped time.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - limit: maximum items to return, 0 for no cap.
// Returns:
//   - []domain.TrackedItem: enabled items.
//   - error: non-nil if the query fails.
func (r *ItemRepository) ListEnabled(ctx context.Context, limit int) ([]domain.TrackedItem, error) {
	q := r.db.WithContext(ctx).Where("is_enabled = ?", true).Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var items []domain.TrackedItem
	if err := q.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// MarkScraped records the time an item was last processed by a run.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: tracked item ID.
//   - at: scrape time.
// Returns:
//   - error: non-nil if the update fails.
func (r *ItemRepository) MarkScraped(ctx context.Context, id string, at time.Time) error {
	return r.db.WithContext(ctx).Model(&domain.TrackedItem{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"last_scraped_at": at,
			"updated_at":      time.Now(),
		}).Error
}

// Upsert creates or updates a tracked item record keyed by ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - item: item record to create or update.
// Returns:
//   - error: non-nil if the upsert fails.
func (r *ItemRepository) Upsert(ctx context.Context, item *domain.TrackedItem) error {
	return r.db.WithContext(ctx).Save(item).Error
}
