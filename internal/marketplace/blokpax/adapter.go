package blokpax

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cardpulse/cardpulse/internal/domain"
	"github.com/cardpulse/cardpulse/internal/marketplace"
	"github.com/go-resty/resty/v2"
)

const (
	MarketplaceID = domain.MarketplaceBlokpax
	DisplayName   = "Blokpax"
)

// Adapter implements the marketplace.Adapter interface against the Blokpax
// marketplace REST API. Blokpax reports sold listings in the same feed as
// active ones with an explicit sold_at timestamp.
type Adapter struct {
	client *resty.Client
}

// Config holds Blokpax adapter configuration.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// NewAdapter creates a new Blokpax adapter.
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
		SetHeader("Accept", "application/json")
	if cfg.APIKey != "" {
		client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	}
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

type listingsResponse struct {
	Data []bpxListing `json:"data"`
}

type bpxListing struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	PriceCents   int64  `json:"price_cents"`
	Currency     string `json:"currency"`
	Variant      string `json:"variant"`
	SellerHandle string `json:"seller_handle"`
	SoldAt       string `json:"sold_at"`
	ExpiresAt    string `json:"expires_at"`
}

// Fetch returns raw listings for a tracked item from the Blokpax listings feed.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - item: the tracked item to search for.
// Returns:
//   - []marketplace.RawListing: observed listings.
//   - error: *domain.AdapterError on failure.
func (a *Adapter) Fetch(ctx context.Context, item *domain.TrackedItem) ([]marketplace.RawListing, error) {
	var out listingsResponse
	resp, err := a.client.R().
		SetContext(ctx).
		SetQueryParam("query", item.Name).
		SetQueryParam("include_sold", "true").
		SetResult(&out).
		Get("/api/v1/marketplace/listings")
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
	listings := make([]marketplace.RawListing, 0, len(out.Data))
	for _, l := range out.Data {
		currency := l.Currency
		if currency == "" {
			currency = "USD"
		}
		raw := marketplace.RawListing{
			SourceListingID: l.ID,
			Title:           l.Title,
			Price:           centsToDecimalString(l.PriceCents),
			Currency:        strings.ToUpper(currency),
			Treatment:       l.Variant,
			Format:          string(domain.ListingFormatBuyItNow),
			Seller:          l.SellerHandle,
			ObservedAt:      now,
		}
		if l.SoldAt != "" {
			if t, err := time.Parse(time.RFC3339, l.SoldAt); err == nil {
				raw.Sold = true
				raw.SoldAt = &t
			}
		}
		if l.ExpiresAt != "" {
			if t, err := time.Parse(time.RFC3339, l.ExpiresAt); err == nil {
				raw.EndsAt = &t
			}
		}
		listings = append(listings, raw)
	}
	return listings, nil
}

// centsToDecimalString renders an integer cent amount as "12.34"
func centsToDecimalString(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}
