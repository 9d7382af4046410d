package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/cardpulse/cardpulse/internal/domain"
	"github.com/cardpulse/cardpulse/internal/logger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SnapshotService computes periodic market aggregates from confirmed sales.
// Each run reads the window's sold listings once per item and derives every
// statistic from that single read, so a scrape landing mid-computation can
// never produce a snapshot mixing two different sale sets. Aggregates are
// denominated in a single configured currency; sales recorded in any other
// currency are left out rather than summed against mismatched units. Emitted
// snapshots are append-only; recomputing an already-snapshotted window is a
// no-op.
type SnapshotService struct {
	items     ItemStore
	listings  ListingStore
	snapshots SnapshotStore
	logger    *logger.Logger

	currency        string
	window          time.Duration
	floorSampleSize int
	minDeltaVolume  int
	deltaClampPct   float64
}

// SnapshotConfig holds configuration for the snapshot service
type SnapshotConfig struct {
	Currency        string
	Window          time.Duration
	FloorSampleSize int
	MinDeltaVolume  int
	DeltaClampPct   float64
}

// NewSnapshotService creates a new snapshot service.
// Parameters:
//   - items: tracked item persistence.
//   - listings: listing persistence, read-only here.
//   - snapshots: snapshot persistence.
//   - log: logger instance.
//   - cfg: window length and statistic tuning.
// Returns:
//   - *SnapshotService: initialized service.
func NewSnapshotService(
	items ItemStore,
	listings ListingStore,
	snapshots SnapshotStore,
	log *logger.Logger,
	cfg *SnapshotConfig,
) *SnapshotService {
	currency := cfg.Currency
	if currency == "" {
		currency = "USD"
	}
	return &SnapshotService{
		items:           items,
		listings:        listings,
		snapshots:       snapshots,
		logger:          log,
		currency:        currency,
		window:          cfg.Window,
		floorSampleSize: cfg.FloorSampleSize,
		minDeltaVolume:  cfg.MinDeltaVolume,
		deltaClampPct:   cfg.DeltaClampPct,
	}
}

// log returns a logger from context if available, otherwise returns the default logger
func (s *SnapshotService) log(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l
	}
	return s.logger
}

// RunStats summarizes one snapshot run.
type RunStats struct {
	Items    int
	Written  int
	Skipped  int
	Failures int
}

// Run computes snapshots for the window ending at windowEnd across all enabled
// items. One item's failure does not stop the remaining items.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - windowEnd: exclusive end of the aggregation window. Callers pass an
//     hour-truncated time so repeated runs target the same window boundary.
// Returns:
//   - *RunStats: counts of snapshots written and skipped.
//   - error: non-nil only when the item listing itself fails.
func (s *SnapshotService) Run(ctx context.Context, windowEnd time.Time) (*RunStats, error) {
	windowStart := windowEnd.Add(-s.window)
	stats := &RunStats{}

	items, err := s.items.ListEnabled(ctx, 0)
	if err != nil {
		return nil, domain.NewPersistenceError("list items", err)
	}
	stats.Items = len(items)

	s.log(ctx).WithFields(logger.Fields{
		"window_start":    windowStart.Format(time.RFC3339),
		"window_end":      windowEnd.Format(time.RFC3339),
		logger.FieldCount: len(items),
	}).Info("Starting snapshot run")

	for i := range items {
		if ctx.Err() != nil {
			break
		}
		if err := s.snapshotItem(ctx, &items[i], windowStart, windowEnd, stats); err != nil {
			stats.Failures++
			s.log(ctx).WithFields(logger.Fields{
				logger.FieldItemID: items[i].ID,
			}).WithError(err).Error("Failed to snapshot item")
		}
	}

	s.log(ctx).WithFields(logger.Fields{
		"items":    stats.Items,
		"written":  stats.Written,
		"skipped":  stats.Skipped,
		"failures": stats.Failures,
	}).Info("Snapshot run finished")

	return stats, nil
}

// snapshotItem computes and writes snapshots for one item: one per known
// treatment with sales in the window, plus the all-treatments rollup.
func (s *SnapshotService) snapshotItem(ctx context.Context, item *domain.TrackedItem, windowStart, windowEnd time.Time, stats *RunStats) error {
	sales, err := s.listings.SoldInWindow(ctx, item.ID, s.currency, windowStart, windowEnd)
	if err != nil {
		return domain.NewPersistenceError("load window sales", err)
	}
	if len(sales) == 0 {
		// No sales means no row. Gaps in the series are meaningful.
		return nil
	}

	byTreatment := map[string][]domain.Listing{
		domain.TreatmentAll: sales,
	}
	for _, sale := range sales {
		if !sale.TreatmentKnown {
			// Unresolved treatments contribute to the rollup only.
			continue
		}
		byTreatment[sale.Treatment] = append(byTreatment[sale.Treatment], sale)
	}

	for treatment, group := range byTreatment {
		snapshot := s.compute(item.ID, treatment, group, windowStart, windowEnd)

		prior, err := s.snapshots.LatestBefore(ctx, item.ID, treatment, windowStart)
		switch {
		case err == nil:
			snapshot.PriceDelta = s.priceDelta(prior.FloorPrice, snapshot.FloorPrice, snapshot.SaleCount)
		case errors.Is(err, domain.ErrSnapshotNotFound):
			// First snapshot for this series; delta stays zero.
		default:
			return domain.NewPersistenceError("load prior snapshot", err)
		}

		written, err := s.snapshots.Insert(ctx, snapshot)
		if err != nil {
			return domain.NewPersistenceError("insert snapshot", err)
		}
		if written {
			stats.Written++
		} else {
			stats.Skipped++
		}
	}

	return nil
}

// compute derives one snapshot's statistics from the window's sale group.
// Sales arrive ordered by sold_at ascending.
func (s *SnapshotService) compute(itemID, treatment string, sales []domain.Listing, windowStart, windowEnd time.Time) *domain.MarketSnapshot {
	prices := make([]decimal.Decimal, len(sales))
	volume := decimal.Zero
	for i, sale := range sales {
		prices[i] = sale.Price
		volume = volume.Add(sale.Price)
	}

	average := volume.Div(decimal.NewFromInt(int64(len(sales)))).Round(2)
	lastSale := prices[len(prices)-1]

	sort.Slice(prices, func(i, j int) bool { return prices[i].LessThan(prices[j]) })

	sampleSize := s.floorSampleSize
	if sampleSize > len(prices) {
		sampleSize = len(prices)
	}
	floorSum := decimal.Zero
	for _, p := range prices[:sampleSize] {
		floorSum = floorSum.Add(p)
	}
	floor := floorSum.Div(decimal.NewFromInt(int64(sampleSize))).Round(2)

	dealRating := 0.0
	if !average.IsZero() {
		dealRating, _ = lastSale.Sub(average).Div(average).Mul(decimal.NewFromInt(100)).Float64()
	}

	return &domain.MarketSnapshot{
		ID:           uuid.New().String(),
		ItemID:       itemID,
		Treatment:    treatment,
		WindowStart:  windowStart,
		WindowEnd:    windowEnd,
		Currency:     s.currency,
		FloorPrice:   floor,
		AveragePrice: average,
		SaleCount:    len(sales),
		Volume:       volume,
		DealRating:   dealRating,
		CreatedAt:    time.Now(),
	}
}

// priceDelta computes the percent change of the floor price versus the prior
// snapshot. Thin windows are suppressed to zero so a single outlier sale never
// reads as a market move, and the result is clamped to keep one bad parse from
// distorting charts.
func (s *SnapshotService) priceDelta(priorFloor, floor decimal.Decimal, saleCount int) float64 {
	if saleCount < s.minDeltaVolume {
		return 0
	}
	if priorFloor.IsZero() {
		return 0
	}

	delta, _ := floor.Sub(priorFloor).Div(priorFloor).Mul(decimal.NewFromInt(100)).Float64()
	if delta > s.deltaClampPct {
		return s.deltaClampPct
	}
	if delta < -s.deltaClampPct {
		return -s.deltaClampPct
	}
	return delta
}
