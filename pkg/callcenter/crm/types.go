// Package crm is the real-estate CRM the call tools search and book against.
package crm

import (
	"context"
	"time"
)

// Listing is a property on the books.
type Listing struct {
	ID          string    `gorm:"primaryKey;size:64" json:"id"`
	Title       string    `json:"title"`
	Location    string    `gorm:"index" json:"location"`
	Type        string    `gorm:"index;size:32" json:"type"`
	Price       float64   `json:"price"`
	Bedrooms    int       `json:"bedrooms"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"-"`
	UpdatedAt   time.Time `json:"-"`
}

// Viewing is a booked property visit.
type Viewing struct {
	ID          string    `gorm:"primaryKey;size:64" json:"id"`
	PropertyID  string    `gorm:"index;size:64" json:"property_id"`
	ClientName  string    `json:"client_name"`
	ScheduledAt time.Time `json:"scheduled_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// SearchCriteria filters listings. Nil and empty fields do not filter.
type SearchCriteria struct {
	Location string   `json:"location,omitempty"`
	PriceMin *float64 `json:"price_min,omitempty"`
	PriceMax *float64 `json:"price_max,omitempty"`
	Bedrooms *int     `json:"bedrooms,omitempty"`
	Type     string   `json:"type,omitempty"`
}

// Confirmation acknowledges a scheduled viewing.
type Confirmation struct {
	ConfirmationID string    `json:"confirmation_id"`
	PropertyID     string    `json:"property_id"`
	ClientName     string    `json:"client_name"`
	ScheduledAt    time.Time `json:"scheduled_at"`
}

// Service is the CRM contract used by the call tools.
type Service interface {
	SearchListings(ctx context.Context, criteria SearchCriteria) ([]Listing, error)
	ScheduleViewing(ctx context.Context, propertyID, dateISO, clientName string) (*Confirmation, error)
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseViewingDate accepts RFC 3339 and the common ISO 8601 shortenings.
func ParseViewingDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
