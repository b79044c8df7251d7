package domain

import "encoding/json"

type Tag string

const (
	TagPriceDrop           Tag = "price_drop"
	TagLimitedAvailability Tag = "limited_availability"
	TagPromo               Tag = "promo"
	TagPetFriendly         Tag = "pet_friendly"
	TagNearTransit         Tag = "near_transit"
	TagBreakfastIncluded   Tag = "breakfast_included"
	TagRefundable          Tag = "refundable"
	TagNonRefundable       Tag = "non_refundable"
)

// MergeTags returns the union of the given tag lists, deduplicated, in
// first-seen order.
func MergeTags(lists ...[]Tag) []Tag {
	seen := make(map[Tag]struct{})
	out := make([]Tag, 0, 8)
	for _, l := range lists {
		for _, t := range l {
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	return out
}

// DealScore holds the three subscores. The total is always derived.
type DealScore struct {
	Price        int // 0..40
	Availability int // 0..30
	Promo        int // 0..30
}

func (s DealScore) Total() int { return s.Price + s.Availability + s.Promo }

type dealScoreJSON struct {
	Price        int `json:"price_score"`
	Availability int `json:"availability_score"`
	Promo        int `json:"promo_score"`
	Total        int `json:"total_score"`
}

func (s DealScore) MarshalJSON() ([]byte, error) {
	return json.Marshal(dealScoreJSON{s.Price, s.Availability, s.Promo, s.Total()})
}

// UnmarshalJSON ignores any stored total; it is recomputed from the parts.
func (s *DealScore) UnmarshalJSON(b []byte) error {
	var v dealScoreJSON
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*s = DealScore{Price: v.Price, Availability: v.Availability, Promo: v.Promo}
	return nil
}

type DealDetectionResult struct {
	IsDeal      bool      `json:"is_deal"`
	Score       DealScore `json:"score"`
	Tags        []Tag     `json:"tags"`
	Explanation string    `json:"explanation"`
}
