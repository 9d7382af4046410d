package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TreatmentAll is the treatment value for a snapshot aggregated across all
// treatments of an item.
const TreatmentAll = ""

// MarketSnapshot is a periodic aggregate over sold listings for one tracked
// item and treatment. Snapshots are append-only: recomputing a past window
// never mutates a previously emitted row, which is what keeps historical
// charts reproducible.
type MarketSnapshot struct {
	ID           string          `gorm:"type:text;primaryKey" json:"id"`
	ItemID       string          `gorm:"type:text;not null;index:idx_snapshots_window,unique" json:"item_id"`
	Treatment    string          `gorm:"type:text;index:idx_snapshots_window,unique" json:"treatment"`
	WindowStart  time.Time       `gorm:"index:idx_snapshots_window,unique" json:"window_start"`
	WindowEnd    time.Time       `json:"window_end"`
	Currency     string          `gorm:"type:text;not null" json:"currency"`
	FloorPrice   decimal.Decimal `gorm:"type:numeric(14,2)" json:"floor_price"`
	AveragePrice decimal.Decimal `gorm:"type:numeric(14,2)" json:"average_price"`
	SaleCount    int             `gorm:"default:0" json:"sale_count"`
	Volume       decimal.Decimal `gorm:"type:numeric(16,2)" json:"volume"`
	PriceDelta   float64         `json:"price_delta"`
	DealRating   float64         `json:"deal_rating"`
	CreatedAt    time.Time       `json:"created_at"`
}

// TableName returns the database table name for MarketSnapshot.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (MarketSnapshot) TableName() string {
	return "market_snapshots"
}
