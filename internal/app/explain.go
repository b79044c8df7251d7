package app

import (
	"fmt"
	"strings"
	"time"

	"tripdeals/internal/domain"
)

// whyThisListing builds the short "why this" line shown with a single deal.
func whyThisListing(l domain.Listing) string {
	var parts []string
	if l.HasTag(domain.TagPriceDrop) {
		parts = append(parts, fmt.Sprintf("%.0f%% off", l.DiscountPercent))
	}
	switch {
	case l.Flight != nil:
		if l.Flight.Stops == 0 {
			parts = append(parts, "nonstop")
		}
		if l.Flight.Airline != "" {
			parts = append(parts, "on "+l.Flight.Airline)
		}
	case l.Hotel != nil:
		if l.Hotel.Stars >= 4 {
			parts = append(parts, fmt.Sprintf("%d-star", l.Hotel.Stars))
		}
		if l.HasTag(domain.TagPetFriendly) {
			parts = append(parts, "pet-friendly")
		}
		if l.HasTag(domain.TagBreakfastIncluded) {
			parts = append(parts, "breakfast included")
		}
		if l.Hotel.Neighborhood != "" {
			parts = append(parts, "in "+l.Hotel.Neighborhood)
		}
	}
	if len(parts) == 0 {
		return "Good value option"
	}
	if len(parts) > 5 {
		parts = parts[:5]
	}
	return strings.Join(parts, ", ")
}

func whatToWatchListing(l domain.Listing, now time.Time) string {
	var parts []string
	if l.HasTag(domain.TagLimitedAvailability) {
		parts = append(parts, fmt.Sprintf("Only %d left", l.InventoryOrDefault()))
	}
	if d, ok := daysUntil(l.ExpiresAt, now); ok && d <= 3 {
		parts = append(parts, fmt.Sprintf("expires in %d days", d))
	}
	if l.HasTag(domain.TagNonRefundable) {
		parts = append(parts, "non-refundable")
	}
	if len(parts) == 0 {
		return "Book when ready"
	}
	if len(parts) > 2 {
		parts = parts[:2]
	}
	return strings.Join(parts, "; ")
}

// daysUntil returns whole days from now until t, floored at zero.
func daysUntil(t *time.Time, now time.Time) (int, bool) {
	if t == nil {
		return 0, false
	}
	if now.IsZero() {
		now = time.Now()
	}
	d := int(t.Sub(now).Hours() / 24)
	if d < 0 {
		d = 0
	}
	return d, true
}
