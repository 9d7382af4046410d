package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ListingStatus represents the lifecycle state of an observed listing.
// Values include ListingStatusActive, ListingStatusSold, and ListingStatusEnded.
type ListingStatus string

const (
	ListingStatusActive ListingStatus = "active"
	ListingStatusSold   ListingStatus = "sold"
	ListingStatusEnded  ListingStatus = "ended"
)

// IsTerminal reports whether the status is a terminal state. A listing never
// transitions from a terminal state back to active under the same natural key.
// Parameters: none.
// Returns:
//   - bool: true for sold and ended.
func (s ListingStatus) IsTerminal() bool {
	return s == ListingStatusSold || s == ListingStatusEnded
}

// ListingFormat represents the sale format of a marketplace listing.
type ListingFormat string

const (
	ListingFormatAuction   ListingFormat = "auction"
	ListingFormatBuyItNow  ListingFormat = "buy_it_now"
	ListingFormatBestOffer ListingFormat = "best_offer"
)

// Marketplace identifiers for supported sources.
const (
	MarketplaceEBay    = "ebay"
	MarketplaceBlokpax = "blokpax"
	MarketplaceOpenSea = "opensea"
)

// SellerUnknown is the explicit sentinel stored when seller identity could not
// be recovered. Absence-vs-unknown are distinct facts, so this is never null.
const SellerUnknown = "unknown"

// Listing represents one observed marketplace offer or completed sale.
// The pair (marketplace, source_listing_id) is the unique natural key; the
// dedup gate enforces at most one stored row per key, updating in place when
// the key reappears with changed data. Listings are never hard-deleted.
type Listing struct {
	ID              string          `gorm:"type:text;primaryKey" json:"id"`
	Marketplace     string          `gorm:"type:text;not null;index:idx_listings_natural,unique" json:"marketplace"`
	SourceListingID string          `gorm:"type:text;not null;index:idx_listings_natural,unique" json:"source_listing_id"`
	ItemID          string          `gorm:"type:text;not null;index:idx_listings_item" json:"item_id"`
	Treatment       string          `gorm:"type:text;index:idx_listings_treatment" json:"treatment"`
	TreatmentKnown  bool            `gorm:"default:false" json:"treatment_known"`
	Price           decimal.Decimal `gorm:"type:numeric(14,2)" json:"price"`
	Currency        string          `gorm:"type:text;default:USD" json:"currency"`
	Status          ListingStatus   `gorm:"type:text;index:idx_listings_status;default:active" json:"status"`
	Format          ListingFormat   `gorm:"type:text" json:"format"`
	Seller          string          `gorm:"type:text;default:unknown" json:"seller"`
	BidCount        *int            `json:"bid_count,omitempty"`
	ObservedAt      time.Time       `gorm:"index:idx_listings_observed" json:"observed_at"`
	SoldAt          *time.Time      `json:"sold_at,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// TableName returns the database table name for Listing.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (Listing) TableName() string {
	return "listings"
}

// NaturalKey identifies a listing within one marketplace's key space. There is
// no cross-marketplace identity resolution: the same physical item cross-listed
// on two marketplaces yields two independent keys.
type NaturalKey struct {
	Marketplace     string
	SourceListingID string
}

// Key returns the listing's natural key.
// Parameters: none.
// Returns:
//   - NaturalKey: (marketplace, source listing id) pair.
func (l *Listing) Key() NaturalKey {
	return NaturalKey{Marketplace: l.Marketplace, SourceListingID: l.SourceListingID}
}

// String renders the natural key for log fields and lock hashing.
// Parameters: none.
// Returns:
//   - string: "marketplace/source_listing_id".
func (k NaturalKey) String() string {
	return k.Marketplace + "/" + k.SourceListingID
}

// SameObservation reports whether the incoming observation carries no change
// versus the stored listing, making a re-scrape an idempotent no-op.
// Parameters:
//   - other: the incoming normalized listing.
// Returns:
//   - bool: true when status, price, format, and bid count are unchanged.
func (l *Listing) SameObservation(other *Listing) bool {
	if l.Status != other.Status || !l.Price.Equal(other.Price) || l.Format != other.Format {
		return false
	}
	if (l.BidCount == nil) != (other.BidCount == nil) {
		return false
	}
	if l.BidCount != nil && other.BidCount != nil && *l.BidCount != *other.BidCount {
		return false
	}
	return true
}
