package service

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"time"

	"github.com/cardpulse/cardpulse/internal/domain"
	"github.com/cardpulse/cardpulse/internal/logger"
	"github.com/google/uuid"
)

// lockShards is the number of natural-key lock stripes. Writes to the same
// natural key serialize on one stripe; different keys proceed in parallel.
const lockShards = 64

// DedupOutcome classifies what the gate did with an observation.
type DedupOutcome string

const (
	OutcomeInserted  DedupOutcome = "inserted"
	OutcomeUpdated   DedupOutcome = "updated"
	OutcomeUnchanged DedupOutcome = "unchanged"
	OutcomeConflict  DedupOutcome = "conflict"
)

// DedupGate decides whether a normalized listing is new, an update to a known
// listing, or a duplicate, keyed by the (marketplace, source listing id)
// natural key. This is the correctness-critical piece: a duplicate insert
// would double-count sales volume and a bad overwrite would corrupt the
// price history, so the gate does read-then-decide under a per-key lock
// rather than leaning on database unique constraints alone.
type DedupGate struct {
	listings ListingStore
	events   EventSink
	logger   *logger.Logger
	locks    [lockShards]sync.Mutex
}

// NewDedupGate creates a new DedupGate.
// Parameters:
//   - listings: listing persistence.
//   - events: sink for new-listing and sale-confirmed events.
//   - log: logger instance.
// Returns:
//   - *DedupGate: initialized gate.
func NewDedupGate(listings ListingStore, events EventSink, log *logger.Logger) *DedupGate {
	return &DedupGate{
		listings: listings,
		events:   events,
		logger:   log,
	}
}

// Apply runs one normalized listing through the gate.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - incoming: normalized listing from one adapter observation.
// Returns:
//   - DedupOutcome: inserted, updated, unchanged, or conflict.
//   - error: *domain.PersistenceError when storage is unreachable.
func (g *DedupGate) Apply(ctx context.Context, incoming *domain.Listing) (DedupOutcome, error) {
	key := incoming.Key()
	lock := &g.locks[shardFor(key)]
	lock.Lock()
	defer lock.Unlock()

	existing, err := g.listings.GetByNaturalKey(ctx, key)
	if err != nil {
		if !errors.Is(err, domain.ErrListingNotFound) {
			return "", domain.NewPersistenceError("lookup listing", err)
		}
		return g.insert(ctx, incoming)
	}

	if existing.SameObservation(incoming) {
		// Idempotent re-scrape
		return OutcomeUnchanged, nil
	}

	if existing.Status.IsTerminal() {
		// Scrapers can re-observe stale cached pages. The earlier-observed
		// terminal record stays authoritative; log and keep.
		conflict := &domain.DedupConflict{Key: key, Reason: conflictReason(existing, incoming)}
		g.logger.WithFields(logger.Fields{
			"natural_key":     key.String(),
			"stored_status":   string(existing.Status),
			"incoming_status": string(incoming.Status),
		}).Warn(conflict.Error())
		return OutcomeConflict, nil
	}

	return g.update(ctx, existing, incoming)
}

// insert stores a first observation and emits the new-listing event.
func (g *DedupGate) insert(ctx context.Context, incoming *domain.Listing) (DedupOutcome, error) {
	now := time.Now()
	incoming.ID = uuid.New().String()
	incoming.CreatedAt = now
	incoming.UpdatedAt = now
	if incoming.Status == domain.ListingStatusSold && incoming.SoldAt == nil {
		incoming.SoldAt = &incoming.ObservedAt
	}
	if err := g.listings.Insert(ctx, incoming); err != nil {
		return "", domain.NewPersistenceError("insert listing", err)
	}
	g.events.NewListing(ctx, incoming)
	return OutcomeInserted, nil
}

// update mutates a stored active listing in place from a changed observation.
func (g *DedupGate) update(ctx context.Context, existing, incoming *domain.Listing) (DedupOutcome, error) {
	saleConfirmed := existing.Status == domain.ListingStatusActive &&
		incoming.Status == domain.ListingStatusSold

	existing.Price = incoming.Price
	existing.Currency = incoming.Currency
	existing.Status = incoming.Status
	existing.Format = incoming.Format
	existing.BidCount = incoming.BidCount
	existing.ObservedAt = incoming.ObservedAt
	existing.UpdatedAt = time.Now()
	if incoming.Seller != domain.SellerUnknown {
		existing.Seller = incoming.Seller
	}
	if incoming.Status == domain.ListingStatusSold {
		if incoming.SoldAt != nil {
			existing.SoldAt = incoming.SoldAt
		} else if existing.SoldAt == nil {
			existing.SoldAt = &incoming.ObservedAt
		}
	}

	if err := g.listings.Update(ctx, existing); err != nil {
		return "", domain.NewPersistenceError("update listing", err)
	}
	if saleConfirmed {
		g.events.SaleConfirmed(ctx, existing)
	}
	return OutcomeUpdated, nil
}

// conflictReason names why an incoming observation was rejected
func conflictReason(existing, incoming *domain.Listing) string {
	if incoming.Status == domain.ListingStatusActive {
		return "terminal listing re-observed as active"
	}
	if !existing.Price.Equal(incoming.Price) {
		return "terminal listing re-observed with different price"
	}
	return "terminal listing re-observed with different terminal state"
}

// shardFor hashes a natural key onto a lock stripe
func shardFor(key domain.NaturalKey) uint32 {
	h := fnv.New32a()
	h.Write([]byte(key.String()))
	return h.Sum32() % lockShards
}
