package marketplace

import (
	"context"
	"time"

	"github.com/cardpulse/cardpulse/internal/domain"
)

// RawListing is one marketplace-native listing record before normalization.
// Fields carry the source's own representation: the price may include
// currency symbols and the sold/ended state is spread across flags and
// timestamps that differ per marketplace.
type RawListing struct {
	SourceListingID string     // Unique ID within the source marketplace
	Title           string     // Listing title as shown on the marketplace
	Price           string     // Raw price text, e.g. "$1,234.50"
	Currency        string     // ISO currency code if the source provides one
	Treatment       string     // Free-text variant name, e.g. "Classic Foil"
	Format          string     // auction, buy_it_now, best_offer
	Seller          string     // Seller identity; empty when unrecoverable
	BidCount        *int       // Auctions only
	Sold            bool       // Explicit sold flag when the source has one
	SoldAt          *time.Time // Confirmed transaction time
	EndsAt          *time.Time // Listing end time
	ObservedAt      time.Time  // When the adapter observed this record
}

// Adapter defines the contract each marketplace connector must satisfy. An
// adapter may fail per-item without aborting the batch; the orchestrator
// isolates one adapter's failure from other items in the same run. Adapters
// are expected to rate-limit themselves internally.
type Adapter interface {
	// Marketplace returns the stable marketplace identifier.
	// Parameters: none.
	// Returns:
	//   - string: identifier such as "ebay".
	Marketplace() string

	// DisplayName returns a human-readable name for this marketplace.
	// Parameters: none.
	// Returns:
	//   - string: display-friendly marketplace name.
	DisplayName() string

	// Fetch returns the raw listings currently observable for a tracked item.
	// Parameters:
	//   - ctx: context for cancellation and per-item deadlines.
	//   - item: the tracked item to search for.
	// Returns:
	//   - []RawListing: observed listings, possibly empty.
	//   - error: *domain.AdapterError on network/rate-limit/parse failures.
	Fetch(ctx context.Context, item *domain.TrackedItem) ([]RawListing, error)
}
