package app

import (
	"strings"
	"time"

	"tripdeals/internal/domain"
)

// Attributes are the semantic facts derived from raw listing fields.
type Attributes struct {
	Tags        []domain.Tag
	Refundable  bool
	PetFriendly bool
	NearTransit bool
	Breakfast   bool
	RedEye      bool // flights only; not a tag
}

var (
	refundableFareClasses = []string{"business", "first", "flex"}

	// checked before refundablePolicyWords: "non-refundable" contains "refund"
	nonRefundablePolicyWords = []string{"non-refund", "nonrefund", "no refund", "not refundable"}
	refundablePolicyWords    = []string{"free cancel", "refund", "free"}

	petWords       = []string{"pet"}
	transitWords   = []string{"transit", "metro", "subway"}
	breakfastWords = []string{"breakfast"}
)

// IsRedEye reports whether a departure falls in the 23:00-05:59 window.
func IsRedEye(departure time.Time) bool {
	h := departure.Hour()
	return h >= 23 || h <= 5
}

func TagFlight(f domain.Flight) Attributes {
	fare := strings.ToLower(strings.TrimSpace(f.FareClass))
	var a Attributes
	for _, c := range refundableFareClasses {
		if fare == c {
			a.Refundable = true
			break
		}
	}
	a.Tags = []domain.Tag{refundTag(a.Refundable)}
	if !f.DepartureTime.IsZero() {
		a.RedEye = IsRedEye(f.DepartureTime)
	}
	return a
}

func TagHotel(h domain.Hotel) Attributes {
	var a Attributes
	a.PetFriendly = h.PetFriendly || anyAmenity(h.Amenities, petWords)
	a.NearTransit = h.NearTransit || anyAmenity(h.Amenities, transitWords)
	a.Breakfast = h.BreakfastIncluded || anyAmenity(h.Amenities, breakfastWords)
	a.Refundable = PolicyRefundable(h.CancellationPolicy)

	if a.PetFriendly {
		a.Tags = append(a.Tags, domain.TagPetFriendly)
	}
	if a.NearTransit {
		a.Tags = append(a.Tags, domain.TagNearTransit)
	}
	if a.Breakfast {
		a.Tags = append(a.Tags, domain.TagBreakfastIncluded)
	}
	a.Tags = append(a.Tags, refundTag(a.Refundable))
	return a
}

// PolicyRefundable classifies free-form cancellation policy text.
func PolicyRefundable(policy string) bool {
	p := strings.ToLower(policy)
	if containsAny(p, nonRefundablePolicyWords) {
		return false
	}
	return containsAny(p, refundablePolicyWords)
}

func refundTag(ok bool) domain.Tag {
	if ok {
		return domain.TagRefundable
	}
	return domain.TagNonRefundable
}

func anyAmenity(amenities []string, words []string) bool {
	for _, a := range amenities {
		if containsAny(strings.ToLower(a), words) {
			return true
		}
	}
	return false
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
