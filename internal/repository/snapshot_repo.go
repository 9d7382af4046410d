package repository

import (
	"context"
	"errors"
	"time"

	"github.com/cardpulse/cardpulse/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SnapshotRepository handles market snapshot persistence. Snapshots are
// append-only: the unique (item_id, treatment, window_start) index plus
// insert-or-ignore semantics guarantee that recomputing a past window can
// never mutate a previously emitted row.
type SnapshotRepository struct {
	db *gorm.DB
}

// NewSnapshotRepository creates a new SnapshotRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *SnapshotRepository: repository instance bound to db.
func NewSnapshotRepository(db *gorm.DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// Insert appends a snapshot row unless one already exists for the same
// (item, treatment, window) key.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - snapshot: snapshot row to append.
// Returns:
//   - bool: true when the row was inserted, false when the window already existed.
//   - error: non-nil if the insert fails.
func (r *SnapshotRepository) Insert(ctx context.Context, snapshot *domain.MarketSnapshot) (bool, error) {
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "item_id"}, {Name: "treatment"}, {Name: "window_start"},
		},
		DoNothing: true,
	}).Create(snapshot)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// LatestBefore returns the most recent snapshot for an item+treatment whose
// window starts before the given time. Used to compute the price delta
// against the immediately preceding window.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - itemID: tracked item ID.
//   - treatment: canonical treatment, or domain.TreatmentAll.
//   - before: exclusive upper bound on window_start.
// Returns:
//   - *domain.MarketSnapshot: preceding snapshot if one exists.
//   - error: domain.ErrSnapshotNotFound on a miss, otherwise the storage error.
func (r *SnapshotRepository) LatestBefore(ctx context.Context, itemID, treatment string, before time.Time) (*domain.MarketSnapshot, error) {
	var snapshot domain.MarketSnapshot
	err := r.db.WithContext(ctx).
		Where("item_id = ? AND treatment = ? AND window_start < ?", itemID, treatment, before).
		Order("window_start DESC").
		First(&snapshot).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrSnapshotNotFound
		}
		return nil, err
	}
	return &snapshot, nil
}

// ListByItem returns snapshot history for an item, newest window first.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - itemID: tracked item ID.
//   - treatment: optional treatment filter; pass "*" for all treatments.
//   - limit: maximum rows to return.
// Returns:
//   - []domain.MarketSnapshot: matching snapshots.
//   - error: non-nil if the query fails.
func (r *SnapshotRepository) ListByItem(ctx context.Context, itemID, treatment string, limit int) ([]domain.MarketSnapshot, error) {
	q := r.db.WithContext(ctx).Where("item_id = ?", itemID)
	if treatment != "*" {
		q = q.Where("treatment = ?", treatment)
	}
	var snapshots []domain.MarketSnapshot
	err := q.Order("window_start DESC").Limit(limit).Find(&snapshots).Error
	if err != nil {
		return nil, err
	}
	return snapshots, nil
}
