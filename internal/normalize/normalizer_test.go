package normalize

import (
	"errors"
	"testing"
	"time"

	"github.com/cardpulse/cardpulse/internal/domain"
	"github.com/cardpulse/cardpulse/internal/marketplace"
)

func TestParsePrice(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		currency string
		want     string
		wantErr  bool
	}{
		{name: "plain", raw: "12.50", currency: "USD", want: "12.5"},
		{name: "dollar sign", raw: "$1,234.50", currency: "USD", want: "1234.5"},
		{name: "US prefix", raw: "US $89.99", currency: "USD", want: "89.99"},
		{name: "euro symbol stripped", raw: "€42.00", currency: "EUR", want: "42"},
		{name: "yen rounds to whole", raw: "¥1500.4", currency: "JPY", want: "1500"},
		{name: "unknown currency rounds to cents", raw: "10.999", currency: "XYZ", want: "11"},
		{name: "zero rejected", raw: "0.00", currency: "USD", wantErr: true},
		{name: "negative rejected", raw: "-5.00", currency: "USD", wantErr: true},
		{name: "empty rejected", raw: "", currency: "USD", wantErr: true},
		{name: "garbage rejected", raw: "call for price", currency: "USD", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parsePrice(tt.raw, tt.currency)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q, got %s", tt.raw, got)
				}
				var normErr *domain.NormalizationError
				if !errors.As(err, &normErr) {
					t.Errorf("expected NormalizationError, got %T", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.String() != tt.want {
				t.Errorf("parsePrice(%q) = %s, want %s", tt.raw, got, tt.want)
			}
		})
	}
}

func TestResolveTreatment(t *testing.T) {
	n := New(map[string]string{"Galaxy  Foil": "Rainbow Foil"})

	tests := []struct {
		name      string
		raw       string
		want      string
		wantKnown bool
	}{
		{name: "default alias", raw: "foil", want: "Foil", wantKnown: true},
		{name: "case insensitive", raw: "Classic FOIL", want: "Foil", wantKnown: true},
		{name: "whitespace collapsed", raw: "  reverse   holo ", want: "Reverse Holofoil", wantKnown: true},
		{name: "configured override", raw: "galaxy foil", want: "Rainbow Foil", wantKnown: true},
		{name: "canonical name direct", raw: "Holofoil", want: "Holofoil", wantKnown: true},
		{name: "unresolved passes through", raw: "Prism Etched", want: "Prism Etched", wantKnown: false},
		{name: "empty", raw: "", want: "", wantKnown: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, known := n.resolveTreatment(tt.raw)
			if got != tt.want || known != tt.wantKnown {
				t.Errorf("resolveTreatment(%q) = (%q, %v), want (%q, %v)",
					tt.raw, got, known, tt.want, tt.wantKnown)
			}
		})
	}
}

func TestNormalize_StatusInference(t *testing.T) {
	n := New(nil)
	now := time.Now().UTC()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	tests := []struct {
		name string
		raw  marketplace.RawListing
		want domain.ListingStatus
	}{
		{
			name: "sold flag",
			raw:  marketplace.RawListing{SourceListingID: "a", Price: "10", Sold: true, ObservedAt: now},
			want: domain.ListingStatusSold,
		},
		{
			name: "sold timestamp without flag",
			raw:  marketplace.RawListing{SourceListingID: "b", Price: "10", SoldAt: &past, ObservedAt: now},
			want: domain.ListingStatusSold,
		},
		{
			name: "end date passed",
			raw:  marketplace.RawListing{SourceListingID: "c", Price: "10", EndsAt: &past, ObservedAt: now},
			want: domain.ListingStatusEnded,
		},
		{
			name: "end date in future stays active",
			raw:  marketplace.RawListing{SourceListingID: "d", Price: "10", EndsAt: &future, ObservedAt: now},
			want: domain.ListingStatusActive,
		},
		{
			name: "no signals",
			raw:  marketplace.RawListing{SourceListingID: "e", Price: "10", ObservedAt: now},
			want: domain.ListingStatusActive,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			listing, err := n.Normalize("ebay", "item-1", &tt.raw)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if listing.Status != tt.want {
				t.Errorf("status = %s, want %s", listing.Status, tt.want)
			}
		})
	}
}

func TestNormalize_Defaults(t *testing.T) {
	n := New(nil)

	listing, err := n.Normalize("blokpax", "item-1", &marketplace.RawListing{
		SourceListingID: "lst-1",
		Price:           "25.00",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if listing.Seller != domain.SellerUnknown {
		t.Errorf("seller = %q, want sentinel %q", listing.Seller, domain.SellerUnknown)
	}
	if listing.Currency != "USD" {
		t.Errorf("currency = %q, want USD", listing.Currency)
	}
	if listing.ObservedAt.IsZero() {
		t.Error("expected ObservedAt to be defaulted")
	}
	if listing.Format != domain.ListingFormatBuyItNow {
		t.Errorf("format = %q, want buy_it_now default", listing.Format)
	}
	if listing.ID != "" {
		t.Errorf("expected surrogate ID to be unset, got %q", listing.ID)
	}
}

func TestNormalize_MissingSourceID(t *testing.T) {
	n := New(nil)

	_, err := n.Normalize("ebay", "item-1", &marketplace.RawListing{Price: "10"})
	if err == nil {
		t.Fatal("expected error for missing source listing ID")
	}
}
