package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// StringArray is a custom type for storing string arrays as JSON in the database.
type StringArray []string

// Value implements the driver.Valuer interface for database serialization.
// Parameters: none.
// Returns:
//   - driver.Value: JSON-encoded string representation of the slice.
//   - error: non-nil if marshaling fails.
func (a StringArray) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
// Parameters:
//   - value: raw database value to decode.
// Returns:
//   - error: non-nil if decoding fails or the type is unexpected.
func (a *StringArray) Scan(value interface{}) error {
	if value == nil {
		*a = StringArray{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan StringArray")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, a)
}

// TrackedItem represents a catalog entity (card) monitored across marketplaces.
// Items are created by catalog management and are immutable during a scrape run.
type TrackedItem struct {
	ID            string      `gorm:"type:text;primaryKey" json:"id"`
	Name          string      `gorm:"type:text;not null" json:"name"`
	SetName       string      `gorm:"type:text;index:idx_tracked_items_set" json:"set_name"`
	Treatments    StringArray `gorm:"type:text" json:"treatments"`
	Marketplaces  StringArray `gorm:"type:text" json:"marketplaces"`
	IsEnabled     bool        `gorm:"default:true" json:"is_enabled"`
	LastScrapedAt *time.Time  `json:"last_scraped_at,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// TableName returns the database table name for TrackedItem.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (TrackedItem) TableName() string {
	return "tracked_items"
}

// DueForScrape reports whether the item should be picked up by a scheduled
// (incremental) run given the refresh interval. Backfill runs ignore this.
// Parameters:
//   - interval: minimum time between scrapes of the same item.
//   - now: reference time.
// Returns:
//   - bool: true when the item has never been scraped or is stale.
func (i *TrackedItem) DueForScrape(interval time.Duration, now time.Time) bool {
	if i.LastScrapedAt == nil {
		return true
	}
	return now.Sub(*i.LastScrapedAt) >= interval
}
