package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestListingStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		status ListingStatus
		want   bool
	}{
		{ListingStatusActive, false},
		{ListingStatusSold, true},
		{ListingStatusEnded, true},
	}
	for _, tt := range tests {
		if got := tt.status.IsTerminal(); got != tt.want {
			t.Errorf("IsTerminal(%s) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestNaturalKey_String(t *testing.T) {
	l := &Listing{Marketplace: MarketplaceEBay, SourceListingID: "12345"}
	if got := l.Key().String(); got != "ebay/12345" {
		t.Errorf("key = %q, want ebay/12345", got)
	}
}

func TestListing_SameObservation(t *testing.T) {
	one := 1
	two := 2
	base := func() *Listing {
		return &Listing{
			Status:   ListingStatusActive,
			Price:    decimal.RequireFromString("10.00"),
			Format:   ListingFormatAuction,
			BidCount: &one,
		}
	}

	tests := []struct {
		name   string
		mutate func(*Listing)
		want   bool
	}{
		{name: "identical", mutate: func(l *Listing) {}, want: true},
		{name: "price equal despite scale", mutate: func(l *Listing) {
			l.Price = decimal.RequireFromString("10")
		}, want: true},
		{name: "status changed", mutate: func(l *Listing) { l.Status = ListingStatusSold }, want: false},
		{name: "price changed", mutate: func(l *Listing) {
			l.Price = decimal.RequireFromString("9.99")
		}, want: false},
		{name: "format changed", mutate: func(l *Listing) { l.Format = ListingFormatBuyItNow }, want: false},
		{name: "bid count changed", mutate: func(l *Listing) { l.BidCount = &two }, want: false},
		{name: "bid count dropped", mutate: func(l *Listing) { l.BidCount = nil }, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stored := base()
			incoming := base()
			tt.mutate(incoming)
			if got := stored.SameObservation(incoming); got != tt.want {
				t.Errorf("SameObservation = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTrackedItem_DueForScrape(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)
	recent := now.Add(-time.Hour)
	stale := now.Add(-7 * time.Hour)

	tests := []struct {
		name string
		last *time.Time
		want bool
	}{
		{name: "never scraped", last: nil, want: true},
		{name: "recently scraped", last: &recent, want: false},
		{name: "stale", last: &stale, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := &TrackedItem{LastScrapedAt: tt.last}
			if got := item.DueForScrape(6*time.Hour, now); got != tt.want {
				t.Errorf("DueForScrape = %v, want %v", got, tt.want)
			}
		})
	}
}
