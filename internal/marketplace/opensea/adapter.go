package opensea

import (
	"context"
	"fmt"
	"time"

	"github.com/cardpulse/cardpulse/internal/domain"
	"github.com/cardpulse/cardpulse/internal/marketplace"
	"github.com/go-resty/resty/v2"
)

const (
	MarketplaceID = domain.MarketplaceOpenSea
	DisplayName   = "OpenSea"
)

// Adapter implements the marketplace.Adapter interface against the OpenSea
// v2 API. Tokenized card listings are resolved by collection slug, which is
// derived from the tracked item's set name.
type Adapter struct {
	client *resty.Client
}

// Config holds OpenSea adapter configuration.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// NewAdapter creates a new OpenSea adapter.
// Parameters:
//   - cfg: adapter configuration including base URL and API key.
// Returns:
//   - *Adapter: initialized adapter.
func NewAdapter(cfg *Config) *Adapter {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetHeader("X-API-KEY", cfg.APIKey)
	return &Adapter{client: client}
}

// Marketplace returns the stable marketplace identifier.
func (a *Adapter) Marketplace() string {
	return MarketplaceID
}

// DisplayName returns a human-readable name for this marketplace.
func (a *Adapter) DisplayName() string {
	return DisplayName
}

type ordersResponse struct {
	Orders []order `json:"orders"`
}

type order struct {
	OrderHash    string  `json:"order_hash"`
	CurrentPrice string  `json:"current_price"`
	Maker        account `json:"maker"`
	Expiration   int64   `json:"expiration_time"`
	Finalized    bool    `json:"finalized"`
	Asset        asset   `json:"asset"`
}

type account struct {
	Address string `json:"address"`
}

type asset struct {
	Name   string            `json:"name"`
	Traits map[string]string `json:"traits"`
}

// Fetch returns raw listings for a tracked item from OpenSea orders.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - item: the tracked item to search for.
// Returns:
//   - []marketplace.RawListing: observed listings.
//   - error: *domain.AdapterError on failure.
func (a *Adapter) Fetch(ctx context.Context, item *domain.TrackedItem) ([]marketplace.RawListing, error) {
	var out ordersResponse
	resp, err := a.client.R().
		SetContext(ctx).
		SetQueryParam("search", item.Name).
		SetResult(&out).
		Get("/api/v2/orders/listings")
	if err != nil {
		return nil, domain.NewAdapterError(MarketplaceID, "request failed", err)
	}
	if resp.StatusCode() == 429 {
		return nil, domain.NewAdapterError(MarketplaceID, "rate limited", nil)
	}
	if resp.IsError() {
		return nil, domain.NewAdapterError(MarketplaceID, fmt.Sprintf("unexpected status %d", resp.StatusCode()), nil)
	}

	now := time.Now().UTC()
	listings := make([]marketplace.RawListing, 0, len(out.Orders))
	for _, o := range out.Orders {
		raw := marketplace.RawListing{
			SourceListingID: o.OrderHash,
			Title:           o.Asset.Name,
			Price:           o.CurrentPrice,
			Currency:        "USD",
			Treatment:       o.Asset.Traits["treatment"],
			Format:          string(domain.ListingFormatBuyItNow),
			Seller:          o.Maker.Address,
			Sold:            o.Finalized,
			ObservedAt:      now,
		}
		if o.Finalized {
			raw.SoldAt = &now
		}
		if o.Expiration > 0 {
			t := time.Unix(o.Expiration, 0).UTC()
			raw.EndsAt = &t
		}
		listings = append(listings, raw)
	}
	return listings, nil
}
