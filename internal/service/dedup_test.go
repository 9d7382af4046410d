package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/cardpulse/cardpulse/internal/domain"
	"github.com/cardpulse/cardpulse/internal/logger"
	"github.com/shopspring/decimal"
)

// memListingStore is an in-memory ListingStore for gate tests. failNext
// injects a single storage error; failAll makes every call fail, simulating
// an outage.
type memListingStore struct {
	mu       sync.Mutex
	byKey    map[domain.NaturalKey]*domain.Listing
	failNext error
	failAll  error
}

func newMemListingStore() *memListingStore {
	return &memListingStore{byKey: map[domain.NaturalKey]*domain.Listing{}}
}

func (s *memListingStore) GetByNaturalKey(ctx context.Context, key domain.NaturalKey) (*domain.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll != nil {
		return nil, s.failAll
	}
	if s.failNext != nil {
		err := s.failNext
		s.failNext = nil
		return nil, err
	}
	l, ok := s.byKey[key]
	if !ok {
		return nil, domain.ErrListingNotFound
	}
	clone := *l
	return &clone, nil
}

func (s *memListingStore) Insert(ctx context.Context, listing *domain.Listing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAll != nil {
		return s.failAll
	}
	if s.failNext != nil {
		err := s.failNext
		s.failNext = nil
		return err
	}
	clone := *listing
	s.byKey[listing.Key()] = &clone
	return nil
}

func (s *memListingStore) Update(ctx context.Context, listing *domain.Listing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *listing
	s.byKey[listing.Key()] = &clone
	return nil
}

func (s *memListingStore) SoldInWindow(ctx context.Context, itemID, currency string, from, to time.Time) ([]domain.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Listing
	for _, l := range s.byKey {
		if l.ItemID != itemID || l.Currency != currency || l.Status != domain.ListingStatusSold || l.SoldAt == nil {
			continue
		}
		if l.SoldAt.Before(from) || !l.SoldAt.Before(to) {
			continue
		}
		out = append(out, *l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SoldAt.Before(*out[j].SoldAt) })
	return out, nil
}

func (s *memListingStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byKey)
}

func (s *memListingStore) get(key domain.NaturalKey) *domain.Listing {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.byKey[key]
}

// recordingSink captures emitted events.
type recordingSink struct {
	mu          sync.Mutex
	newListings []string
	sales       []string
}

func (s *recordingSink) NewListing(ctx context.Context, l *domain.Listing) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.newListings = append(s.newListings, l.SourceListingID)
}

func (s *recordingSink) SaleConfirmed(ctx context.Context, l *domain.Listing) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sales = append(s.sales, l.SourceListingID)
}

func testListing(sourceID string, status domain.ListingStatus, price string) *domain.Listing {
	return &domain.Listing{
		Marketplace:     domain.MarketplaceEBay,
		SourceListingID: sourceID,
		ItemID:          "item-1",
		Price:           decimal.RequireFromString(price),
		Currency:        "USD",
		Status:          status,
		Format:          domain.ListingFormatBuyItNow,
		Seller:          domain.SellerUnknown,
		ObservedAt:      time.Now().UTC(),
	}
}

func TestDedupGate_InsertThenIdempotent(t *testing.T) {
	store := newMemListingStore()
	sink := &recordingSink{}
	gate := NewDedupGate(store, sink, logger.New(nil))
	ctx := context.Background()

	outcome, err := gate.Apply(ctx, testListing("lst-1", domain.ListingStatusActive, "10.00"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != OutcomeInserted {
		t.Fatalf("outcome = %s, want inserted", outcome)
	}
	if len(sink.newListings) != 1 {
		t.Errorf("expected 1 new-listing event, got %d", len(sink.newListings))
	}

	// Same observation again is a no-op, not a duplicate row.
	outcome, err = gate.Apply(ctx, testListing("lst-1", domain.ListingStatusActive, "10.00"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != OutcomeUnchanged {
		t.Errorf("outcome = %s, want unchanged", outcome)
	}
	if store.count() != 1 {
		t.Errorf("expected 1 stored listing, got %d", store.count())
	}
	if len(sink.newListings) != 1 {
		t.Errorf("re-scrape emitted a duplicate new-listing event")
	}
}

func TestDedupGate_PriceUpdate(t *testing.T) {
	store := newMemListingStore()
	gate := NewDedupGate(store, &recordingSink{}, logger.New(nil))
	ctx := context.Background()

	if _, err := gate.Apply(ctx, testListing("lst-1", domain.ListingStatusActive, "10.00")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	outcome, err := gate.Apply(ctx, testListing("lst-1", domain.ListingStatusActive, "8.50"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != OutcomeUpdated {
		t.Fatalf("outcome = %s, want updated", outcome)
	}

	stored := store.get(domain.NaturalKey{Marketplace: domain.MarketplaceEBay, SourceListingID: "lst-1"})
	if stored.Price.String() != "8.5" {
		t.Errorf("stored price = %s, want 8.5", stored.Price)
	}
	if store.count() != 1 {
		t.Errorf("price change created a second row")
	}
}

func TestDedupGate_SaleConfirmed(t *testing.T) {
	store := newMemListingStore()
	sink := &recordingSink{}
	gate := NewDedupGate(store, sink, logger.New(nil))
	ctx := context.Background()

	if _, err := gate.Apply(ctx, testListing("lst-1", domain.ListingStatusActive, "10.00")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	outcome, err := gate.Apply(ctx, testListing("lst-1", domain.ListingStatusSold, "10.00"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != OutcomeUpdated {
		t.Fatalf("outcome = %s, want updated", outcome)
	}
	if len(sink.sales) != 1 {
		t.Fatalf("expected 1 sale-confirmed event, got %d", len(sink.sales))
	}

	stored := store.get(domain.NaturalKey{Marketplace: domain.MarketplaceEBay, SourceListingID: "lst-1"})
	if stored.Status != domain.ListingStatusSold {
		t.Errorf("stored status = %s, want sold", stored.Status)
	}
	if stored.SoldAt == nil {
		t.Error("expected SoldAt to be backfilled from observation time")
	}
}

func TestDedupGate_TerminalIsSticky(t *testing.T) {
	store := newMemListingStore()
	sink := &recordingSink{}
	gate := NewDedupGate(store, sink, logger.New(nil))
	ctx := context.Background()

	if _, err := gate.Apply(ctx, testListing("lst-1", domain.ListingStatusSold, "10.00")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// A stale cached page re-observes the listing as active.
	outcome, err := gate.Apply(ctx, testListing("lst-1", domain.ListingStatusActive, "10.00"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != OutcomeConflict {
		t.Fatalf("outcome = %s, want conflict", outcome)
	}

	stored := store.get(domain.NaturalKey{Marketplace: domain.MarketplaceEBay, SourceListingID: "lst-1"})
	if stored.Status != domain.ListingStatusSold {
		t.Errorf("terminal status was overwritten: %s", stored.Status)
	}

	// Terminal-to-terminal with a different price is also kept as stored.
	outcome, err = gate.Apply(ctx, testListing("lst-1", domain.ListingStatusEnded, "12.00"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != OutcomeConflict {
		t.Fatalf("outcome = %s, want conflict", outcome)
	}
	stored = store.get(domain.NaturalKey{Marketplace: domain.MarketplaceEBay, SourceListingID: "lst-1"})
	if stored.Status != domain.ListingStatusSold || stored.Price.String() != "10" {
		t.Errorf("earlier terminal record was not kept: status=%s price=%s", stored.Status, stored.Price)
	}
}

func TestDedupGate_SellerNotDowngraded(t *testing.T) {
	store := newMemListingStore()
	gate := NewDedupGate(store, &recordingSink{}, logger.New(nil))
	ctx := context.Background()

	first := testListing("lst-1", domain.ListingStatusActive, "10.00")
	first.Seller = "cardshop_99"
	if _, err := gate.Apply(ctx, first); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Later observation lost the seller; the known identity must survive.
	second := testListing("lst-1", domain.ListingStatusActive, "11.00")
	if _, err := gate.Apply(ctx, second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stored := store.get(domain.NaturalKey{Marketplace: domain.MarketplaceEBay, SourceListingID: "lst-1"})
	if stored.Seller != "cardshop_99" {
		t.Errorf("seller = %q, want cardshop_99", stored.Seller)
	}
}

func TestDedupGate_PersistenceErrorWrapped(t *testing.T) {
	store := newMemListingStore()
	store.failNext = errors.New("connection refused")
	gate := NewDedupGate(store, &recordingSink{}, logger.New(nil))

	_, err := gate.Apply(context.Background(), testListing("lst-1", domain.ListingStatusActive, "10.00"))
	if err == nil {
		t.Fatal("expected error")
	}
	var perr *domain.PersistenceError
	if !errors.As(err, &perr) {
		t.Errorf("expected PersistenceError, got %T", err)
	}
}
