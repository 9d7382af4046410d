package repository

import (
	"context"
	"errors"
	"time"

	"github.com/cardpulse/cardpulse/internal/domain"
	"gorm.io/gorm"
)

// ListingRepository handles listing data operations. Rows are never
// hard-deleted: the full observation history backs the trend charts.
type ListingRepository struct {
	db *gorm.DB
}

// NewListingRepository creates a new ListingRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *ListingRepository: repository instance bound to db.
func NewListingRepository(db *gorm.DB) *ListingRepository {
	return &ListingRepository{db: db}
}

// GetByNaturalKey retrieves a listing by its (marketplace, source listing id)
// natural key.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - key: natural key to look up.
// Returns:
//   - *domain.Listing: listing if found.
//   - error: domain.ErrListingNotFound on a miss, otherwise the storage error.
func (r *ListingRepository) GetByNaturalKey(ctx context.Context, key domain.NaturalKey) (*domain.Listing, error) {
	var listing domain.Listing
	err := r.db.WithContext(ctx).
		First(&listing, "marketplace = ? AND source_listing_id = ?", key.Marketplace, key.SourceListingID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrListingNotFound
		}
		return nil, err
	}
	return &listing, nil
}

// Insert inserts a new listing record.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - listing: listing record to persist.
// Returns:
//   - error: non-nil if the insert fails.
func (r *ListingRepository) Insert(ctx context.Context, listing *domain.Listing) error {
	return r.db.WithContext(ctx).Create(listing).Error
}

// Update updates an existing listing record.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - listing: listing record with updated fields.
// Returns:
//   - error: non-nil if the update fails.
func (r *ListingRepository) Update(ctx context.Context, listing *domain.Listing) error {
	return r.db.WithContext(ctx).Save(listing).Error
}

// SoldInWindow returns the sold listings for an item inside a time window,
// ordered by sale time. Only sales in the given currency are returned so the
// aggregator never mixes units, and the single query gives it one coherent
// read of the item's sales.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - itemID: tracked item ID.
//   - currency: ISO currency code the aggregate is denominated in.
//   - from: window start (inclusive).
//   - to: window end (exclusive).
// Returns:
//   - []domain.Listing: sold listings in the window.
//   - error: non-nil if the query fails.
func (r *ListingRepository) SoldInWindow(ctx context.Context, itemID, currency string, from, to time.Time) ([]domain.Listing, error) {
	var listings []domain.Listing
	err := r.db.WithContext(ctx).
		Where("item_id = ? AND currency = ? AND status = ? AND sold_at >= ? AND sold_at < ?",
			itemID, currency, domain.ListingStatusSold, from, to).
		Order("sold_at ASC").
		Find(&listings).Error
	if err != nil {
		return nil, err
	}
	return listings, nil
}

// ListByItem returns listings for an item, most recently observed first.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - itemID: tracked item ID.
//   - status: optional status filter, empty for all.
//   - limit: maximum rows to return.
//   - offset: rows to skip.
// Returns:
//   - []domain.Listing: matching listings.
//   - error: non-nil if the query fails.
func (r *ListingRepository) ListByItem(ctx context.Context, itemID string, status domain.ListingStatus, limit, offset int) ([]domain.Listing, error) {
	q := r.db.WithContext(ctx).Where("item_id = ?", itemID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var listings []domain.Listing
	err := q.Order("observed_at DESC").Limit(limit).Offset(offset).Find(&listings).Error
	if err != nil {
		return nil, err
	}
	return listings, nil
}

// CountByItem returns the number of stored listings for an item.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - itemID: tracked item ID.
// Returns:
//   - int64: listing count.
//   - error: non-nil if the query fails.
func (r *ListingRepository) CountByItem(ctx context.Context, itemID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Listing{}).Where("item_id = ?", itemID).Count(&count).Error
	return count, err
}
