package service

import (
	"context"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/cardpulse/cardpulse/internal/domain"
	"github.com/cardpulse/cardpulse/internal/logger"
	"github.com/shopspring/decimal"
)

type snapshotKey struct {
	itemID      string
	treatment   string
	windowStart time.Time
}

// memSnapshotStore is an in-memory SnapshotStore with the same append-only
// uniqueness as the database index.
type memSnapshotStore struct {
	mu   sync.Mutex
	rows map[snapshotKey]*domain.MarketSnapshot
}

func newMemSnapshotStore() *memSnapshotStore {
	return &memSnapshotStore{rows: map[snapshotKey]*domain.MarketSnapshot{}}
}

func (s *memSnapshotStore) Insert(ctx context.Context, snapshot *domain.MarketSnapshot) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := snapshotKey{snapshot.ItemID, snapshot.Treatment, snapshot.WindowStart}
	if _, exists := s.rows[key]; exists {
		return false, nil
	}
	clone := *snapshot
	s.rows[key] = &clone
	return true, nil
}

func (s *memSnapshotStore) LatestBefore(ctx context.Context, itemID, treatment string, before time.Time) (*domain.MarketSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *domain.MarketSnapshot
	for _, row := range s.rows {
		if row.ItemID != itemID || row.Treatment != treatment || !row.WindowStart.Before(before) {
			continue
		}
		if latest == nil || row.WindowStart.After(latest.WindowStart) {
			latest = row
		}
	}
	if latest == nil {
		return nil, domain.ErrSnapshotNotFound
	}
	clone := *latest
	return &clone, nil
}

func (s *memSnapshotStore) get(itemID, treatment string, windowStart time.Time) *domain.MarketSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows[snapshotKey{itemID, treatment, windowStart}]
}

// memItemStore is an in-memory ItemStore.
type memItemStore struct {
	mu    sync.Mutex
	items []domain.TrackedItem
}

func (s *memItemStore) GetByID(ctx context.Context, id string) (*domain.TrackedItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		if s.items[i].ID == id {
			clone := s.items[i]
			return &clone, nil
		}
	}
	return nil, domain.ErrItemNotFound
}

func (s *memItemStore) ListDue(ctx context.Context, interval time.Duration, now time.Time, limit int) ([]domain.TrackedItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.TrackedItem
	for _, item := range s.items {
		if item.IsEnabled && item.DueForScrape(interval, now) {
			out = append(out, item)
		}
	}
	return out, nil
}

func (s *memItemStore) ListEnabled(ctx context.Context, limit int) ([]domain.TrackedItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.TrackedItem
	for _, item := range s.items {
		if item.IsEnabled {
			out = append(out, item)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memItemStore) MarkScraped(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		if s.items[i].ID == id {
			s.items[i].LastScrapedAt = &at
		}
	}
	return nil
}

func testSnapshotConfig() *SnapshotConfig {
	return &SnapshotConfig{
		Currency:        "USD",
		Window:          24 * time.Hour,
		FloorSampleSize: 4,
		MinDeltaVolume:  2,
		DeltaClampPct:   100,
	}
}

// soldListing adds one sold listing to the store.
func soldListing(store *memListingStore, id, itemID, treatment string, known bool, price string, soldAt time.Time) {
	l := &domain.Listing{
		ID:              id,
		Marketplace:     domain.MarketplaceEBay,
		SourceListingID: id,
		ItemID:          itemID,
		Treatment:       treatment,
		TreatmentKnown:  known,
		Price:           decimal.RequireFromString(price),
		Currency:        "USD",
		Status:          domain.ListingStatusSold,
		Seller:          domain.SellerUnknown,
		ObservedAt:      soldAt,
		SoldAt:          &soldAt,
	}
	store.byKey[l.Key()] = l
}

func TestSnapshotService_FloorIsMeanOfLowest(t *testing.T) {
	items := &memItemStore{items: []domain.TrackedItem{{ID: "item-1", Name: "Card", IsEnabled: true}}}
	listings := newMemListingStore()
	snapshots := newMemSnapshotStore()
	svc := NewSnapshotService(items, listings, snapshots, logger.New(nil), testSnapshotConfig())

	windowEnd := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	inWindow := windowEnd.Add(-time.Hour)
	for i, price := range []string{"5.00", "6.00", "7.00", "8.00", "1000.00"} {
		soldListing(listings, fmt.Sprintf("lst-%d", i), "item-1", "Foil", true, price, inWindow.Add(time.Duration(i)*time.Minute))
	}

	stats, err := svc.Run(context.Background(), windowEnd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// One per-treatment snapshot plus the all-treatments rollup.
	if stats.Written != 2 {
		t.Fatalf("written = %d, want 2", stats.Written)
	}

	snap := snapshots.get("item-1", "Foil", windowEnd.Add(-24*time.Hour))
	if snap == nil {
		t.Fatal("expected Foil snapshot")
	}
	// Floor is the mean of the 4 lowest sales: (5+6+7+8)/4. The 1000 outlier
	// only moves the average.
	if snap.FloorPrice.String() != "6.5" {
		t.Errorf("floor = %s, want 6.5", snap.FloorPrice)
	}
	if snap.AveragePrice.String() != "205.2" {
		t.Errorf("average = %s, want 205.2", snap.AveragePrice)
	}
	if snap.SaleCount != 5 {
		t.Errorf("sale count = %d, want 5", snap.SaleCount)
	}
	if snap.Volume.String() != "1026" {
		t.Errorf("volume = %s, want 1026", snap.Volume)
	}
}

func TestSnapshotService_FewerSalesThanSample(t *testing.T) {
	items := &memItemStore{items: []domain.TrackedItem{{ID: "item-1", IsEnabled: true}}}
	listings := newMemListingStore()
	snapshots := newMemSnapshotStore()
	svc := NewSnapshotService(items, listings, snapshots, logger.New(nil), testSnapshotConfig())

	windowEnd := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	soldListing(listings, "lst-1", "item-1", "", false, "10.00", windowEnd.Add(-time.Hour))
	soldListing(listings, "lst-2", "item-1", "", false, "20.00", windowEnd.Add(-2*time.Hour))

	if _, err := svc.Run(context.Background(), windowEnd); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	snap := snapshots.get("item-1", domain.TreatmentAll, windowEnd.Add(-24*time.Hour))
	if snap == nil {
		t.Fatal("expected rollup snapshot")
	}
	if snap.FloorPrice.String() != "15" {
		t.Errorf("floor = %s, want mean of all sales 15", snap.FloorPrice)
	}
}

func TestSnapshotService_UnknownTreatmentOnlyInRollup(t *testing.T) {
	items := &memItemStore{items: []domain.TrackedItem{{ID: "item-1", IsEnabled: true}}}
	listings := newMemListingStore()
	snapshots := newMemSnapshotStore()
	svc := NewSnapshotService(items, listings, snapshots, logger.New(nil), testSnapshotConfig())

	windowEnd := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	soldListing(listings, "lst-1", "item-1", "Foil", true, "10.00", windowEnd.Add(-time.Hour))
	soldListing(listings, "lst-2", "item-1", "Prism Etched", false, "50.00", windowEnd.Add(-2*time.Hour))

	stats, err := svc.Run(context.Background(), windowEnd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Written != 2 {
		t.Fatalf("written = %d, want Foil plus rollup only", stats.Written)
	}

	windowStart := windowEnd.Add(-24 * time.Hour)
	if snapshots.get("item-1", "Prism Etched", windowStart) != nil {
		t.Error("unresolved treatment got its own series")
	}
	rollup := snapshots.get("item-1", domain.TreatmentAll, windowStart)
	if rollup == nil || rollup.SaleCount != 2 {
		t.Errorf("rollup should include the unresolved sale")
	}
}

func TestSnapshotService_AggregatesSingleCurrency(t *testing.T) {
	items := &memItemStore{items: []domain.TrackedItem{{ID: "item-1", IsEnabled: true}}}
	listings := newMemListingStore()
	snapshots := newMemSnapshotStore()
	svc := NewSnapshotService(items, listings, snapshots, logger.New(nil), testSnapshotConfig())

	windowEnd := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	soldListing(listings, "lst-1", "item-1", "", false, "15.00", windowEnd.Add(-time.Hour))
	soldListing(listings, "lst-2", "item-1", "", false, "12.00", windowEnd.Add(-2*time.Hour))

	// A yen-denominated sale in the same window must not be summed against
	// the dollar sales.
	jpySoldAt := windowEnd.Add(-3 * time.Hour)
	jpy := &domain.Listing{
		ID:              "lst-jpy",
		Marketplace:     domain.MarketplaceEBay,
		SourceListingID: "lst-jpy",
		ItemID:          "item-1",
		Price:           decimal.RequireFromString("1500"),
		Currency:        "JPY",
		Status:          domain.ListingStatusSold,
		Seller:          domain.SellerUnknown,
		ObservedAt:      jpySoldAt,
		SoldAt:          &jpySoldAt,
	}
	listings.byKey[jpy.Key()] = jpy

	if _, err := svc.Run(context.Background(), windowEnd); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	snap := snapshots.get("item-1", domain.TreatmentAll, windowEnd.Add(-24*time.Hour))
	if snap == nil {
		t.Fatal("expected rollup snapshot")
	}
	if snap.SaleCount != 2 {
		t.Errorf("sale count = %d, want the 2 USD sales only", snap.SaleCount)
	}
	if snap.Volume.String() != "27" {
		t.Errorf("volume = %s, want 27", snap.Volume)
	}
	if snap.FloorPrice.String() != "13.5" {
		t.Errorf("floor = %s, want 13.5", snap.FloorPrice)
	}
	if snap.Currency != "USD" {
		t.Errorf("currency = %q, want USD", snap.Currency)
	}
}

func TestSnapshotService_DeltaSuppressionAndClamp(t *testing.T) {
	items := &memItemStore{items: []domain.TrackedItem{{ID: "item-1", IsEnabled: true}}}
	listings := newMemListingStore()
	snapshots := newMemSnapshotStore()
	svc := NewSnapshotService(items, listings, snapshots, logger.New(nil), testSnapshotConfig())

	day := 24 * time.Hour
	end1 := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	end2 := end1.Add(day)
	end3 := end2.Add(day)

	// Window 1: establishes a floor of 10.
	soldListing(listings, "w1-a", "item-1", "", false, "10.00", end1.Add(-time.Hour))
	soldListing(listings, "w1-b", "item-1", "", false, "10.00", end1.Add(-2*time.Hour))
	if _, err := svc.Run(context.Background(), end1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Window 2: one 45.00 sale. Volume below min_delta_volume suppresses the
	// delta even though the floor jumped.
	soldListing(listings, "w2-a", "item-1", "", false, "45.00", end2.Add(-time.Hour))
	if _, err := svc.Run(context.Background(), end2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	snap2 := snapshots.get("item-1", domain.TreatmentAll, end2.Add(-day))
	if snap2 == nil {
		t.Fatal("expected window 2 snapshot")
	}
	if snap2.PriceDelta != 0 {
		t.Errorf("thin-window delta = %v, want suppressed 0", snap2.PriceDelta)
	}

	// Window 3: floor moves 45 -> 150, a +233% swing, clamped to +100.
	soldListing(listings, "w3-a", "item-1", "", false, "150.00", end3.Add(-time.Hour))
	soldListing(listings, "w3-b", "item-1", "", false, "150.00", end3.Add(-2*time.Hour))
	if _, err := svc.Run(context.Background(), end3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	snap3 := snapshots.get("item-1", domain.TreatmentAll, end3.Add(-day))
	if snap3 == nil {
		t.Fatal("expected window 3 snapshot")
	}
	if snap3.PriceDelta != 100 {
		t.Errorf("delta = %v, want clamped 100", snap3.PriceDelta)
	}
}

func TestSnapshotService_AppendOnly(t *testing.T) {
	items := &memItemStore{items: []domain.TrackedItem{{ID: "item-1", IsEnabled: true}}}
	listings := newMemListingStore()
	snapshots := newMemSnapshotStore()
	svc := NewSnapshotService(items, listings, snapshots, logger.New(nil), testSnapshotConfig())

	windowEnd := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	soldListing(listings, "lst-1", "item-1", "", false, "10.00", windowEnd.Add(-time.Hour))

	if _, err := svc.Run(context.Background(), windowEnd); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	first := snapshots.get("item-1", domain.TreatmentAll, windowEnd.Add(-24*time.Hour))
	if first == nil {
		t.Fatal("expected snapshot")
	}

	// A late sale lands in the already-snapshotted window. Recomputing must
	// not mutate the emitted row.
	soldListing(listings, "lst-2", "item-1", "", false, "99.00", windowEnd.Add(-30*time.Minute))
	stats, err := svc.Run(context.Background(), windowEnd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Written != 0 || stats.Skipped != 1 {
		t.Errorf("recompute wrote rows: written=%d skipped=%d", stats.Written, stats.Skipped)
	}

	again := snapshots.get("item-1", domain.TreatmentAll, windowEnd.Add(-24*time.Hour))
	if again.SaleCount != first.SaleCount || !again.FloorPrice.Equal(first.FloorPrice) {
		t.Error("emitted snapshot was mutated by recompute")
	}
}

func TestSnapshotService_NoSalesNoRow(t *testing.T) {
	items := &memItemStore{items: []domain.TrackedItem{{ID: "item-1", IsEnabled: true}}}
	listings := newMemListingStore()
	snapshots := newMemSnapshotStore()
	svc := NewSnapshotService(items, listings, snapshots, logger.New(nil), testSnapshotConfig())

	stats, err := svc.Run(context.Background(), time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.Written != 0 {
		t.Errorf("written = %d, want 0 for a saleless window", stats.Written)
	}
}

func TestSnapshotService_DealRating(t *testing.T) {
	items := &memItemStore{items: []domain.TrackedItem{{ID: "item-1", IsEnabled: true}}}
	listings := newMemListingStore()
	snapshots := newMemSnapshotStore()
	svc := NewSnapshotService(items, listings, snapshots, logger.New(nil), testSnapshotConfig())

	windowEnd := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	// Last sale 8.00 against an average of 10.00 is 20% under market.
	soldListing(listings, "lst-1", "item-1", "", false, "12.00", windowEnd.Add(-3*time.Hour))
	soldListing(listings, "lst-2", "item-1", "", false, "10.00", windowEnd.Add(-2*time.Hour))
	soldListing(listings, "lst-3", "item-1", "", false, "8.00", windowEnd.Add(-time.Hour))

	if _, err := svc.Run(context.Background(), windowEnd); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	snap := snapshots.get("item-1", domain.TreatmentAll, windowEnd.Add(-24*time.Hour))
	if snap == nil {
		t.Fatal("expected snapshot")
	}
	if math.Abs(snap.DealRating+20) > 1e-9 {
		t.Errorf("deal rating = %v, want -20", snap.DealRating)
	}
}
