package ebay

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
	MarketplaceID = domain.MarketplaceEBay
	DisplayName   = "eBay"

	searchPath = "/buy/browse/v1/item_summary/search"
)

// Adapter implements the marketplace.Adapter interface against the eBay
// Browse API. Listing-page DOM scraping lives outside this repo; the adapter
// only consumes the structured API surface.
type Adapter struct {
	client *resty.Client
}

// Config holds eBay adapter configuration.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// NewAdapter creates a new eBay adapter.
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
		SetHeader("Authorization", "Bearer "+cfg.APIKey).
		SetHeader("X-EBAY-C-MARKETPLACE-ID", "EBAY_US")
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

type searchResponse struct {
	ItemSummaries []itemSummary `json:"itemSummaries"`
	Total         int           `json:"total"`
}

type itemSummary struct {
	ItemID       string   `json:"itemId"`
	Title        string   `json:"title"`
	Price        money    `json:"price"`
	CurrentBid   *money   `json:"currentBidPrice"`
	BidCount     *int     `json:"bidCount"`
	BuyingOpts   []string `json:"buyingOptions"`
	Seller       seller   `json:"seller"`
	ItemEndDate  string   `json:"itemEndDate"`
	Condition    string   `json:"condition"`
	ListingState string   `json:"itemGroupType"`
}

type money struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

type seller struct {
	Username string `json:"username"`
}

// Fetch returns raw listings for a tracked item via the Browse search API.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - item: the tracked item to search for.
// Returns:
//   - []marketplace.RawListing: observed listings.
//   - error: *domain.AdapterError on failure.
func (a *Adapter) Fetch(ctx context.Context, item *domain.TrackedItem) ([]marketplace.RawListing, error) {
	var out searchResponse
	resp, err := a.client.R().
		SetContext(ctx).
		SetQueryParam("q", item.Name+" "+item.SetName).
		SetQueryParam("limit", "100").
		SetResult(&out).
		Get(searchPath)
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
	listings := make([]marketplace.RawListing, 0, len(out.ItemSummaries))
	for _, s := range out.ItemSummaries {
		raw := marketplace.RawListing{
			SourceListingID: s.ItemID,
			Title:           s.Title,
			Price:           s.Price.Value,
			Currency:        s.Price.Currency,
			Treatment:       treatmentFromTitle(s.Title, item.Treatments),
			Format:          formatFromBuyingOptions(s.BuyingOpts),
			Seller:          s.Seller.Username,
			BidCount:        s.BidCount,
			ObservedAt:      now,
		}
		if s.CurrentBid != nil && s.CurrentBid.Value != "" {
			raw.Price = s.CurrentBid.Value
			raw.Currency = s.CurrentBid.Currency
		}
		if s.ItemEndDate != "" {
			if t, err := time.Parse(time.RFC3339, s.ItemEndDate); err == nil {
				raw.EndsAt = &t
			}
		}
		listings = append(listings, raw)
	}
	return listings, nil
}

// formatFromBuyingOptions maps eBay buying options to the canonical format
func formatFromBuyingOptions(opts []string) string {
	for _, o := range opts {
		switch o {
		case "AUCTION":
			return string(domain.ListingFormatAuction)
		case "BEST_OFFER":
			return string(domain.ListingFormatBestOffer)
		}
	}
	return string(domain.ListingFormatBuyItNow)
}

// treatmentFromTitle picks the first known treatment token found in the title.
// The normalizer resolves aliases; this only narrows the free-text candidates.
func treatmentFromTitle(title string, known []string) string {
	lower := strings.ToLower(title)
	for _, t := range known {
		if t != "" && strings.Contains(lower, strings.ToLower(t)) {
			return t
		}
	}
	return ""
}
