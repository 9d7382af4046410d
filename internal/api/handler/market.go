package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/cardpulse/cardpulse/internal/domain"
	"github.com/cardpulse/cardpulse/internal/repository"
	"github.com/gin-gonic/gin"
)

// MarketHandler handles read endpoints over tracked items, their observed
// listings, and their snapshot history.
type MarketHandler struct {
	items     *repository.ItemRepository
	listings  *repository.ListingRepository
	snapshots *repository.SnapshotRepository
}

// NewMarketHandler creates a new market handler.
// Parameters:
//   - items: tracked item repository.
//   - listings: listing repository.
//   - snapshots: snapshot repository.
// Returns:
//   - *MarketHandler: initialized handler.
func NewMarketHandler(
	items *repository.ItemRepository,
	listings *repository.ListingRepository,
	snapshots *repository.SnapshotRepository,
) *MarketHandler {
	return &MarketHandler{
		items:     items,
		listings:  listings,
		snapshots: snapshots,
	}
}

// ListItems handles GET /api/v1/items.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *MarketHandler) ListItems(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	items, err := h.items.ListEnabled(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"items": items,
		"total": len(items),
	})
}

// GetItem handles GET /api/v1/items/:id.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *MarketHandler) GetItem(c *gin.Context) {
	id := c.Param("id")

	item, err := h.items.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrItemNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Item not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, item)
}

// ListListings handles GET /api/v1/items/:id/listings. Supports filtering by
// status and standard limit/offset paging.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *MarketHandler) ListListings(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	status := domain.ListingStatus(c.Query("status"))
	switch status {
	case "", domain.ListingStatusActive, domain.ListingStatusSold, domain.ListingStatusEnded:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown status: " + string(status)})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	listings, err := h.listings.ListByItem(ctx, id, status, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	total, err := h.listings.CountByItem(ctx, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"listings": listings,
		"total":    total,
		"limit":    limit,
		"offset":   offset,
	})
}

// ListSnapshots handles GET /api/v1/items/:id/snapshots. The treatment query
// parameter selects one series; "all" selects the cross-treatment rollup and
// omitting it returns every series.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *MarketHandler) ListSnapshots(c *gin.Context) {
	id := c.Param("id")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	treatment := c.DefaultQuery("treatment", "*")
	if treatment == "all" {
		treatment = domain.TreatmentAll
	}

	snapshots, err := h.snapshots.ListByItem(c.Request.Context(), id, treatment, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"snapshots": snapshots,
		"total":     len(snapshots),
	})
}

// LatestSnapshot handles GET /api/v1/items/:id/price. Returns the most recent
// snapshot for one treatment series, defaulting to the all-treatments rollup.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *MarketHandler) LatestSnapshot(c *gin.Context) {
	id := c.Param("id")

	treatment := c.Query("treatment")
	if treatment == "all" {
		treatment = domain.TreatmentAll
	}

	snapshot, err := h.snapshots.LatestBefore(c.Request.Context(), id, treatment, time.Now().UTC())
	if err != nil {
		if errors.Is(err, domain.ErrSnapshotNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "No snapshot for item"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, snapshot)
}
