package domain

type Hotel struct {
	Name               string   `json:"name"`
	City               string   `json:"city"`
	Neighborhood       string   `json:"neighborhood"`
	Stars              int      `json:"stars"`
	Amenities          []string `json:"amenities"`
	CancellationPolicy string   `json:"cancellation_policy"`
	PetFriendly        bool     `json:"pet_friendly"`
	BreakfastIncluded  bool     `json:"breakfast_included"`
	NearTransit        bool     `json:"near_transit"`
}
