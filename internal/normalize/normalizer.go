package normalize

import (
	"strings"
	"time"

	"github.com/cardpulse/cardpulse/internal/domain"
	"github.com/cardpulse/cardpulse/internal/marketplace"
	"github.com/shopspring/decimal"
)

// currencyMinorUnits holds the number of minor-unit digits per ISO currency.
// Currencies not listed round to 2 digits.
var currencyMinorUnits = map[string]int32{
	"USD": 2,
	"EUR": 2,
	"GBP": 2,
	"CAD": 2,
	"AUD": 2,
	"JPY": 0,
	"KRW": 0,
}

// Normalizer maps marketplace-native raw listings into canonical Listing
// entities: alias-resolved treatments, currency-rounded decimal prices, and a
// unified active/sold/ended status.
type Normalizer struct {
	aliases   map[string]string
	canonical map[string]struct{}
}

// New creates a Normalizer with the merged alias table.
// Parameters:
//   - aliasOverrides: operator-configured aliases overlaid on defaults.
// Returns:
//   - *Normalizer: initialized normalizer.
func New(aliasOverrides map[string]string) *Normalizer {
	aliases := MergeAliases(aliasOverrides)
	canonical := make(map[string]struct{}, len(aliases))
	for _, v := range aliases {
		canonical[v] = struct{}{}
	}
	return &Normalizer{aliases: aliases, canonical: canonical}
}

// Normalize converts one raw listing into a canonical Listing.
// Parameters:
//   - marketplaceID: source marketplace tag.
//   - itemID: tracked item the listing belongs to.
//   - raw: marketplace-native listing record.
// Returns:
//   - *domain.Listing: canonical listing without a surrogate ID (assigned on insert).
//   - error: *domain.NormalizationError for malformed price or missing listing ID.
func (n *Normalizer) Normalize(marketplaceID, itemID string, raw *marketplace.RawListing) (*domain.Listing, error) {
	if raw.SourceListingID == "" {
		return nil, domain.NewNormalizationError("source_listing_id", "missing")
	}

	currency := strings.ToUpper(strings.TrimSpace(raw.Currency))
	if currency == "" {
		currency = "USD"
	}

	price, err := parsePrice(raw.Price, currency)
	if err != nil {
		return nil, err
	}

	treatment, known := n.resolveTreatment(raw.Treatment)

	seller := strings.TrimSpace(raw.Seller)
	if seller == "" {
		seller = domain.SellerUnknown
	}

	observed := raw.ObservedAt
	if observed.IsZero() {
		observed = time.Now().UTC()
	}

	listing := &domain.Listing{
		Marketplace:     marketplaceID,
		SourceListingID: raw.SourceListingID,
		ItemID:          itemID,
		Treatment:       treatment,
		TreatmentKnown:  known,
		Price:           price,
		Currency:        currency,
		Status:          inferStatus(raw, observed),
		Format:          normalizeFormat(raw.Format),
		Seller:          seller,
		BidCount:        raw.BidCount,
		ObservedAt:      observed,
		SoldAt:          raw.SoldAt,
	}
	return listing, nil
}

// resolveTreatment maps a free-text variant name to its canonical treatment.
// Unresolvable names pass through literally with known=false so they are kept
// for alias-table maintenance but excluded from per-treatment aggregates.
// Parameters:
//   - raw: free-text treatment token from the marketplace.
// Returns:
//   - string: canonical or literal treatment.
//   - bool: true when the treatment resolved to a known canonical name.
func (n *Normalizer) resolveTreatment(raw string) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", false
	}
	if canonical, ok := n.aliases[normalizeAliasKey(trimmed)]; ok {
		return canonical, true
	}
	if _, ok := n.canonical[trimmed]; ok {
		return trimmed, true
	}
	return trimmed, false
}

// normalizeAliasKey lowercases and collapses whitespace for alias lookup
func normalizeAliasKey(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// parsePrice strips currency decoration, rejects non-positive amounts, and
// rounds to the currency's minor unit.
func parsePrice(raw, currency string) (decimal.Decimal, error) {
	cleaned := strings.TrimSpace(raw)
	if cleaned == "" {
		return decimal.Zero, domain.NewNormalizationError("price", "empty")
	}
	cleaned = strings.Map(func(r rune) rune {
		switch r {
		case '$', '€', '£', '¥', ',', ' ':
			return -1
		}
		return r
	}, cleaned)
	cleaned = strings.TrimPrefix(cleaned, "US")

	price, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, domain.NewNormalizationError("price", "unparseable: "+raw)
	}
	if !price.IsPositive() {
		return decimal.Zero, domain.NewNormalizationError("price", "non-positive: "+raw)
	}

	digits, ok := currencyMinorUnits[currency]
	if !ok {
		digits = 2
	}
	return price.Round(digits), nil
}

// inferStatus applies the unified listing state machine. Marketplaces report
// "sold" differently (explicit flag, sold timestamp, or end date passed); the
// canonical states are active -> sold | ended with no way back.
func inferStatus(raw *marketplace.RawListing, now time.Time) domain.ListingStatus {
	if raw.Sold || raw.SoldAt != nil {
		return domain.ListingStatusSold
	}
	if raw.EndsAt != nil && raw.EndsAt.Before(now) {
		return domain.ListingStatusEnded
	}
	return domain.ListingStatusActive
}

// normalizeFormat coerces source format hints onto the canonical enum
func normalizeFormat(raw string) domain.ListingFormat {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "auction":
		return domain.ListingFormatAuction
	case "best_offer", "best offer":
		return domain.ListingFormatBestOffer
	default:
		return domain.ListingFormatBuyItNow
	}
}
