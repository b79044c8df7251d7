package domain

import "time"

type DealType string

const (
	DealFlight DealType = "flight"
	DealHotel  DealType = "hotel"
)

// DefaultInventory stands in for a feed record without an inventory count.
// It is large enough to never contribute to the availability subscore.
const DefaultInventory = 100

type Flight struct {
	Origin          string    `json:"origin"`
	Destination     string    `json:"destination"`
	Airline         string    `json:"airline"`
	DepartureTime   time.Time `json:"departure_time"`
	ArrivalTime     time.Time `json:"arrival_time"`
	DurationMinutes int       `json:"duration_minutes"`
	Stops           int       `json:"stops"`
	FareClass       string    `json:"fare_class"`
}

// Snapshot is one point-in-time observation of a listing. Exactly one of
// Flight or Hotel is set, matching Type.
type Snapshot struct {
	ID            string     `json:"deal_id"`
	Type          DealType   `json:"deal_type"`
	Price         float64    `json:"price"` // per night for hotels
	OriginalPrice float64    `json:"original_price"`
	Avg30dPrice   *float64   `json:"avg_30d_price,omitempty"`
	Inventory     *int       `json:"inventory,omitempty"`
	IsPromo       bool       `json:"is_promo"`
	PromoEndDays  int        `json:"promo_end_days"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	ObservedAt    time.Time  `json:"observed_at"`

	Flight *Flight `json:"flight,omitempty"`
	Hotel  *Hotel  `json:"hotel,omitempty"`
}

// InventoryOrDefault returns the seat/room count, or DefaultInventory when the
// feed did not report one.
func (s Snapshot) InventoryOrDefault() int {
	if s.Inventory == nil {
		return DefaultInventory
	}
	return *s.Inventory
}

func (s Snapshot) BasePrice() float64 {
	if s.OriginalPrice > 0 {
		return s.OriginalPrice
	}
	return s.Price
}

// Listing is a scored snapshot. Immutable once built; a newer snapshot with the
// same ID supersedes it.
type Listing struct {
	Snapshot

	Score           DealScore `json:"score"`
	Tags            []Tag     `json:"tags"`
	IsDeal          bool      `json:"is_deal"`
	RedEye          bool      `json:"red_eye"`
	DiscountPercent float64   `json:"discount_percent"`
	Explanation     string    `json:"explanation"`
	WhyThis         string    `json:"why_this"`
	WhatToWatch     string    `json:"what_to_watch"`
}

func (l Listing) HasTag(t Tag) bool {
	for _, x := range l.Tags {
		if x == t {
			return true
		}
	}
	return false
}

// ListingQuery is the indexed lookup the store offers: field filters, ordered
// by deal score descending, limited.
type ListingQuery struct {
	Type         DealType
	Origin       string
	Destinations []string
	City         string
	PetFriendly  *bool
	Breakfast    *bool
	NearTransit  *bool
	DealsOnly    bool
	Limit        int
}
