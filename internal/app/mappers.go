package app

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"tripdeals/internal/domain"
)

/********** alias registries (single source of truth) **********/

var commonAliases = map[string][]string{
	"id":             {"deal_id", "id", "listing_id", "offer_id"},
	"original_price": {"original_price", "list_price", "base_price"},
	"avg_30d_price":  {"avg_30d_price", "avg_price_30d", "rolling_avg", "pricing.avg_30d"},
	"is_promo":       {"is_promo", "promo", "promotion.active"},
	"promo_end_days": {"promo_end_days", "promo_days_left", "promotion.days_left"},
	"expires_at":     {"expires_at", "promo_ends_at", "promotion.ends_at"},
	"observed_at":    {"observed_at", "updated_at", "timestamp"},
}

var flightAliases = map[string][]string{
	"price":       {"price", "fare", "pricing.total", "total_price"},
	"inventory":   {"seats_available", "seats", "inventory", "availability.seats"},
	"origin":      {"origin", "from", "departure_airport", "route.origin"},
	"destination": {"destination", "to", "arrival_airport", "route.destination"},
	"airline":     {"airline", "carrier", "airline_name"},
	"departure":   {"departure_time", "depart_at", "departure"},
	"arrival":     {"arrival_time", "arrive_at", "arrival"},
	"duration":    {"duration_minutes", "duration"},
	"stops":       {"stops", "num_stops", "stop_count"},
	"fare_class":  {"fare_class", "cabin", "fare_type"},
}

var hotelAliases = map[string][]string{
	"price":        {"price_per_night", "nightly_rate", "price", "pricing.nightly"},
	"inventory":    {"rooms_available", "rooms", "inventory", "availability.rooms"},
	"name":         {"name", "hotel_name", "property_name"},
	"city":         {"city", "address.city", "location.city"},
	"neighborhood": {"neighborhood", "district", "area", "location.neighborhood"},
	"stars":        {"stars", "star_rating", "rating.stars"},
	"policy":       {"cancellation_policy", "cancellation", "policies.cancellation", "refund_policy"},
	"amenities":    {"amenities", "facilities"},
}

/********** tiny helpers **********/

// lookupAny: safe nested lookup with dot paths on maps.
func lookupAny(m map[string]any, path string) any {
	cur := any(m)
	for _, part := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		v, ok := obj[part]
		if !ok {
			return nil
		}
		cur = v
	}
	return cur
}

// lookupStr returns string at path or "".
func lookupStr(m map[string]any, path string) string {
	if v := lookupAny(m, path); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// firstStr: first non-empty string among the alias paths.
func firstStr(m map[string]any, paths ...string) string {
	for _, p := range paths {
		if s := strings.TrimSpace(lookupStr(m, p)); s != "" {
			return s
		}
	}
	return ""
}

// getFloatFlexible: number from several paths (float64/int/string like "$1,299.00").
func getFloatFlexible(m map[string]any, paths ...string) *float64 {
	for _, k := range paths {
		switch v := lookupAny(m, k).(type) {
		case float64:
			f := v
			return &f
		case int:
			f := float64(v)
			return &f
		case string:
			s := strings.TrimPrefix(strings.TrimSpace(v), "$")
			s = strings.ReplaceAll(s, ",", "")
			if s == "" {
				continue
			}
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				return &f
			}
		}
	}
	return nil
}

// getIntFlexible: int from several paths (float64/int/string).
func getIntFlexible(m map[string]any, paths ...string) *int {
	if f := getFloatFlexible(m, paths...); f != nil {
		n := int(*f)
		return &n
	}
	return nil
}

func getBool(m map[string]any, paths ...string) bool {
	for _, k := range paths {
		switch v := lookupAny(m, k).(type) {
		case bool:
			return v
		case string:
			if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
				return b
			}
		case float64:
			return v != 0
		}
	}
	return false
}

// getTime accepts RFC3339 strings or unix seconds.
func getTime(m map[string]any, paths ...string) *time.Time {
	for _, k := range paths {
		switch v := lookupAny(m, k).(type) {
		case string:
			s := strings.TrimSpace(v)
			for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
				if t, err := time.Parse(layout, s); err == nil {
					return &t
				}
			}
		case float64:
			t := time.Unix(int64(v), 0).UTC()
			return &t
		}
	}
	return nil
}

// firstSliceStrings: accept []any with either strings or {name/label}.
func firstSliceStrings(m map[string]any, paths ...string) []string {
	for _, k := range paths {
		if raw, ok := lookupAny(m, k).([]any); ok {
			out := make([]string, 0, len(raw))
			for _, it := range raw {
				switch t := it.(type) {
				case string:
					if t != "" {
						out = append(out, t)
					}
				case map[string]any:
					if n, ok := t["name"].(string); ok && n != "" {
						out = append(out, n)
						continue
					}
					if n, ok := t["label"].(string); ok && n != "" {
						out = append(out, n)
					}
				}
			}
			if len(out) > 0 {
				return out
			}
		}
	}
	return nil
}

/********** snapshot mappers **********/

// mapCommon fills the fields shared by both listing kinds. It fails when the
// record has no id or no price.
func mapCommon(r map[string]any, typ domain.DealType, priceAliases, invAliases []string, now time.Time) (domain.Snapshot, error) {
	s := domain.Snapshot{
		ID:   firstStr(r, commonAliases["id"]...),
		Type: typ,
	}
	if s.ID == "" {
		return s, fmt.Errorf("%w: missing id", domain.ErrMalformedSnapshot)
	}
	p := getFloatFlexible(r, priceAliases...)
	if p == nil || *p <= 0 {
		return s, fmt.Errorf("%w: %s missing price", domain.ErrMalformedSnapshot, s.ID)
	}
	s.Price = *p
	if op := getFloatFlexible(r, commonAliases["original_price"]...); op != nil {
		s.OriginalPrice = *op
	}
	s.Avg30dPrice = getFloatFlexible(r, commonAliases["avg_30d_price"]...)
	s.Inventory = getIntFlexible(r, invAliases...)
	s.IsPromo = getBool(r, commonAliases["is_promo"]...)
	if d := getIntFlexible(r, commonAliases["promo_end_days"]...); d != nil {
		s.PromoEndDays = *d
	}
	s.ExpiresAt = getTime(r, commonAliases["expires_at"]...)
	if s.IsPromo && s.ExpiresAt == nil && s.PromoEndDays > 0 {
		t := now.AddDate(0, 0, s.PromoEndDays)
		s.ExpiresAt = &t
	}
	s.ObservedAt = now
	if t := getTime(r, commonAliases["observed_at"]...); t != nil {
		s.ObservedAt = *t
	}
	return s, nil
}

func MapFlight(r map[string]any, now time.Time) (domain.Snapshot, error) {
	s, err := mapCommon(r, domain.DealFlight, flightAliases["price"], flightAliases["inventory"], now)
	if err != nil {
		return s, err
	}
	f := domain.Flight{
		Origin:      strings.ToUpper(firstStr(r, flightAliases["origin"]...)),
		Destination: strings.ToUpper(firstStr(r, flightAliases["destination"]...)),
		Airline:     firstStr(r, flightAliases["airline"]...),
		FareClass:   firstStr(r, flightAliases["fare_class"]...),
	}
	if f.Origin == "" || f.Destination == "" {
		return s, fmt.Errorf("%w: %s missing route", domain.ErrMalformedSnapshot, s.ID)
	}
	if t := getTime(r, flightAliases["departure"]...); t != nil {
		f.DepartureTime = *t
	}
	if t := getTime(r, flightAliases["arrival"]...); t != nil {
		f.ArrivalTime = *t
	}
	if d := getIntFlexible(r, flightAliases["duration"]...); d != nil {
		f.DurationMinutes = *d
	} else if !f.DepartureTime.IsZero() && f.ArrivalTime.After(f.DepartureTime) {
		f.DurationMinutes = int(f.ArrivalTime.Sub(f.DepartureTime).Minutes())
	}
	if n := getIntFlexible(r, flightAliases["stops"]...); n != nil {
		f.Stops = *n
	}
	if f.FareClass == "" {
		f.FareClass = "Economy"
	}
	s.Flight = &f
	return s, nil
}

func MapHotel(r map[string]any, now time.Time) (domain.Snapshot, error) {
	s, err := mapCommon(r, domain.DealHotel, hotelAliases["price"], hotelAliases["inventory"], now)
	if err != nil {
		return s, err
	}
	h := domain.Hotel{
		Name:               firstStr(r, hotelAliases["name"]...),
		City:               firstStr(r, hotelAliases["city"]...),
		Neighborhood:       firstStr(r, hotelAliases["neighborhood"]...),
		CancellationPolicy: firstStr(r, hotelAliases["policy"]...),
		Amenities:          firstSliceStrings(r, hotelAliases["amenities"]...),
		PetFriendly:        getBool(r, "pet_friendly"),
		BreakfastIncluded:  getBool(r, "breakfast_included"),
		NearTransit:        getBool(r, "near_transit"),
	}
	if h.City == "" {
		return s, fmt.Errorf("%w: %s missing city", domain.ErrMalformedSnapshot, s.ID)
	}
	if n := getIntFlexible(r, hotelAliases["stars"]...); n != nil {
		h.Stars = *n
	}
	if h.CancellationPolicy == "" {
		h.CancellationPolicy = "Non-refundable"
	}
	s.Hotel = &h
	return s, nil
}
