package service

import (
	"context"
	"time"

	"github.com/cardpulse/cardpulse/internal/domain"
	"github.com/cardpulse/cardpulse/internal/logger"
	"github.com/go-resty/resty/v2"
)

// EventSink receives "new listing" and "sale confirmed" events from the dedup
// gate. Delivery is fire-and-forget: a sink failure never affects pipeline
// correctness or job status.
type EventSink interface {
	// NewListing is emitted when a listing is stored for the first time.
	NewListing(ctx context.Context, listing *domain.Listing)

	// SaleConfirmed is emitted on an active -> sold transition.
	SaleConfirmed(ctx context.Context, listing *domain.Listing)
}

// LogSink writes events to the structured log. Always installed so event flow
// is observable even without a webhook configured.
type LogSink struct {
	logger *logger.Logger
}

// NewLogSink creates a log-backed event sink.
// Parameters:
//   - log: logger instance.
// Returns:
//   - *LogSink: initialized sink.
func NewLogSink(log *logger.Logger) *LogSink {
	return &LogSink{logger: log}
}

// NewListing logs a new-listing event.
func (s *LogSink) NewListing(ctx context.Context, listing *domain.Listing) {
	s.logger.WithFields(logger.Fields{
		logger.FieldMarketplace: listing.Marketplace,
		logger.FieldItemID:      listing.ItemID,
		"source_listing_id":     listing.SourceListingID,
		"price":                 listing.Price.String(),
	}).Info("New listing observed")
}

// SaleConfirmed logs a sale-confirmed event.
func (s *LogSink) SaleConfirmed(ctx context.Context, listing *domain.Listing) {
	s.logger.WithFields(logger.Fields{
		logger.FieldMarketplace: listing.Marketplace,
		logger.FieldItemID:      listing.ItemID,
		"source_listing_id":     listing.SourceListingID,
		"price":                 listing.Price.String(),
	}).Info("Sale confirmed")
}

// webhookEvent is the JSON payload posted to the notification webhook.
type webhookEvent struct {
	Type            string `json:"type"`
	Marketplace     string `json:"marketplace"`
	ItemID          string `json:"item_id"`
	SourceListingID string `json:"source_listing_id"`
	Treatment       string `json:"treatment,omitempty"`
	Price           string `json:"price"`
	Currency        string `json:"currency"`
	ObservedAt      string `json:"observed_at"`
}

// WebhookSink posts events to an external notification endpoint (e.g. a
// Discord-relay service). Posts happen on their own goroutine so a slow
// webhook can never stall a scrape worker.
type WebhookSink struct {
	client *resty.Client
	url    string
	logger *logger.Logger
}

// NewWebhookSink creates a webhook-backed event sink.
// Parameters:
//   - url: webhook endpoint URL.
//   - log: logger instance.
// Returns:
//   - *WebhookSink: initialized sink.
func NewWebhookSink(url string, log *logger.Logger) *WebhookSink {
	client := resty.New().
		SetTimeout(10 * time.Second).
		SetHeader("Content-Type", "application/json")
	return &WebhookSink{client: client, url: url, logger: log}
}

// NewListing posts a new-listing event.
func (s *WebhookSink) NewListing(ctx context.Context, listing *domain.Listing) {
	s.post("new_listing", listing)
}

// SaleConfirmed posts a sale-confirmed event.
func (s *WebhookSink) SaleConfirmed(ctx context.Context, listing *domain.Listing) {
	s.post("sale_confirmed", listing)
}

func (s *WebhookSink) post(eventType string, listing *domain.Listing) {
	payload := webhookEvent{
		Type:            eventType,
		Marketplace:     listing.Marketplace,
		ItemID:          listing.ItemID,
		SourceListingID: listing.SourceListingID,
		Treatment:       listing.Treatment,
		Price:           listing.Price.String(),
		Currency:        listing.Currency,
		ObservedAt:      listing.ObservedAt.Format(time.RFC3339),
	}
	go func() {
		resp, err := s.client.R().SetBody(payload).Post(s.url)
		if err != nil {
			s.logger.WithError(err).Warn("Failed to deliver webhook event")
			return
		}
		if resp.IsError() {
			s.logger.WithField("status", resp.StatusCode()).Warn("Webhook event rejected")
		}
	}()
}

// CompositeSink fans one event out to multiple sinks.
type CompositeSink struct {
	sinks []EventSink
}

// NewCompositeSink creates a sink that delivers to every child sink.
// Parameters:
//   - sinks: child sinks.
// Returns:
//   - *CompositeSink: initialized composite.
func NewCompositeSink(sinks ...EventSink) *CompositeSink {
	return &CompositeSink{sinks: sinks}
}

// NewListing fans out a new-listing event.
func (s *CompositeSink) NewListing(ctx context.Context, listing *domain.Listing) {
	for _, sink := range s.sinks {
		sink.NewListing(ctx, listing)
	}
}

// SaleConfirmed fans out a sale-confirmed event.
func (s *CompositeSink) SaleConfirmed(ctx context.Context, listing *domain.Listing) {
	for _, sink := range s.sinks {
		sink.SaleConfirmed(ctx, listing)
	}
}
