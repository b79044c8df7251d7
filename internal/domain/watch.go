package domain

import (
	"strings"
	"time"
)

// TargetBundle marks a watch whose target ID is "<flight_id>+<hotel_id>".
const TargetBundle DealType = "bundle"

type Watch struct {
	ID                 string     `json:"watch_id"`
	UserID             string     `json:"user_id"`
	TargetID           string     `json:"deal_id"`
	TargetType         DealType   `json:"deal_type"`
	PriceThreshold     *float64   `json:"price_threshold,omitempty"`
	InventoryThreshold *int       `json:"inventory_threshold,omitempty"`
	Active             bool       `json:"is_active"`
	LastChecked        *time.Time `json:"last_checked,omitempty"`
	LastNotified       *time.Time `json:"last_notified,omitempty"`
	LastKnownPrice     *float64   `json:"last_known_price,omitempty"`
	LastKnownInventory *int       `json:"last_known_inventory,omitempty"`

	// Latched once the matching condition fires; cleared when the value
	// moves back above the threshold.
	PriceNotified     bool `json:"price_notified"`
	InventoryNotified bool `json:"inventory_notified"`

	CreatedAt time.Time `json:"created_at"`
}

func BundleTargetID(flightID, hotelID string) string { return flightID + "+" + hotelID }

// SplitBundleTarget reverses BundleTargetID.
func SplitBundleTarget(id string) (flightID, hotelID string, ok bool) {
	f, h, ok := strings.Cut(id, "+")
	if !ok || f == "" || h == "" {
		return "", "", false
	}
	return f, h, true
}

type WatchEventType string

const (
	WatchPriceDrop    WatchEventType = "price_drop"
	WatchInventoryLow WatchEventType = "inventory_low"
	WatchSoldOut      WatchEventType = "sold_out"
)

type WatchEvent struct {
	WatchID       string         `json:"watch_id"`
	EventType     WatchEventType `json:"event_type"`
	DealID        string         `json:"deal_id"`
	PreviousValue float64        `json:"previous_value"`
	CurrentValue  float64        `json:"current_value"`
	Threshold     float64        `json:"threshold"`
	Message       string         `json:"message"`
	At            time.Time      `json:"-"`
}
