package app

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"tripdeals/internal/domain"
)

const (
	candidateCap    = 20
	hotelsPerFlight = 3
	defaultBundles  = 3
)

var warmAirports = []string{"MIA", "LAX", "SAN", "HNL", "TPA"}

// airport code -> city keywords used to pair hotels with a flight's arrival
var airportCities = map[string][]string{
	"JFK": {"new york", "nyc", "manhattan", "brooklyn"},
	"LAX": {"los angeles", "la", "hollywood", "santa monica"},
	"SFO": {"san francisco", "sf"},
	"MIA": {"miami", "south beach"},
	"ORD": {"chicago"},
	"BOS": {"boston"},
	"SEA": {"seattle"},
	"DEN": {"denver"},
	"SAN": {"san diego"},
	"HNL": {"honolulu", "waikiki"},
	"TPA": {"tampa"},
	"DFW": {"dallas"},
	"ATL": {"atlanta"},
}

// Destinations expands an intent destination into airport codes. Nil means
// no destination filter.
func Destinations(dest string) []string {
	switch d := strings.ToUpper(strings.TrimSpace(dest)); d {
	case "":
		return nil
	case domain.WarmDestination:
		return append([]string(nil), warmAirports...)
	default:
		return []string{d}
	}
}

// CityMatchesAirport reports whether a hotel city is served by airport.
// Keywords match whole words so "la" does not match "Atlanta".
func CityMatchesAirport(city, airport string) bool {
	c := " " + normalizeWords(city) + " "
	for _, kw := range airportCities[strings.ToUpper(airport)] {
		if strings.Contains(c, " "+kw+" ") {
			return true
		}
	}
	return strings.EqualFold(strings.TrimSpace(city), airport)
}

func normalizeWords(s string) string {
	return strings.Join(strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	}), " ")
}

// Composer pairs scored flights and hotels into bundles and scores how well
// each fits an intent. It holds no mutable state.
type Composer struct {
	now   func() time.Time
	newID func() string
}

func NewComposer() *Composer {
	return &Composer{
		now:   time.Now,
		newID: func() string { return "BDL-" + uuid.NewString()[:8] },
	}
}

// WithClock returns a copy of c that reads time from now.
func (c *Composer) WithClock(now func() time.Time) *Composer {
	cp := *c
	cp.now = now
	return &cp
}

// Compose returns at most limit bundles (default 3) sorted by fit score.
func (c *Composer) Compose(flights, hotels []domain.Listing, in domain.Intent, limit int) []domain.Bundle {
	if limit <= 0 {
		limit = defaultBundles
	}
	fs := SelectFlights(flights, in)
	hs := SelectHotels(hotels, in)
	budget, hasBudget := in.BudgetValue()

	var out []domain.Bundle
	for _, f := range fs {
		paired := 0
		for _, h := range hs {
			if paired == hotelsPerFlight {
				break
			}
			if !CityMatchesAirport(h.Hotel.City, f.Flight.Destination) {
				continue
			}
			paired++
			b := c.bundle(f, h, in)
			if hasBudget && b.TotalPrice > budget*1.1 {
				continue
			}
			out = append(out, b)
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].FitScore > out[j].FitScore })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// SelectFlights keeps flights matching origin and destination, best deal first,
// capped at 20.
func SelectFlights(flights []domain.Listing, in domain.Intent) []domain.Listing {
	origin := strings.ToUpper(in.OriginCode())
	dests := Destinations(in.DestinationCode())
	var out []domain.Listing
	for _, f := range flights {
		if f.Flight == nil {
			continue
		}
		if origin != "" && !strings.EqualFold(f.Flight.Origin, origin) {
			continue
		}
		if dests != nil && !containsFold(dests, f.Flight.Destination) {
			continue
		}
		out = append(out, f)
	}
	return topByScore(out)
}

// SelectHotels applies the boolean hard constraints as filters, best deal
// first, capped at 20.
func SelectHotels(hotels []domain.Listing, in domain.Intent) []domain.Listing {
	var out []domain.Listing
	for _, h := range hotels {
		if h.Hotel == nil {
			continue
		}
		if in.WantsPetFriendly() && !h.HasTag(domain.TagPetFriendly) {
			continue
		}
		if in.WantsBreakfast() && !h.HasTag(domain.TagBreakfastIncluded) {
			continue
		}
		if in.WantsNearTransit() && !h.HasTag(domain.TagNearTransit) {
			continue
		}
		out = append(out, h)
	}
	return topByScore(out)
}

func topByScore(ls []domain.Listing) []domain.Listing {
	sort.SliceStable(ls, func(i, j int) bool { return ls[i].Score.Total() > ls[j].Score.Total() })
	if len(ls) > candidateCap {
		ls = ls[:candidateCap]
	}
	return ls
}

func containsFold(list []string, v string) bool {
	for _, x := range list {
		if strings.EqualFold(x, v) {
			return true
		}
	}
	return false
}

func (c *Composer) bundle(f, h domain.Listing, in domain.Intent) domain.Bundle {
	nights := in.Nights()
	total := f.Price + h.Price*float64(nights)
	original := f.BasePrice() + h.BasePrice()*float64(nights)
	fit := FitScore(f, h, in)

	return domain.Bundle{
		ID:          c.newID(),
		Flight:      f,
		Hotel:       h,
		Nights:      nights,
		TotalPrice:  round2(total),
		Savings:     round2(math.Max(0, original-total)),
		FitScore:    fit,
		WhyThis:     bundleWhy(f, h, fit, total, in),
		Tradeoffs:   bundleTradeoffs(f, h, in),
		WhatToWatch: bundleWatch(f, h, c.now()),
		CreatedAt:   c.now().UTC(),
	}
}

// FitScore measures how well a flight+hotel pair matches the intent, 0..100.
func FitScore(f, h domain.Listing, in domain.Intent) int {
	score := 50

	total := f.Price + h.Price*float64(in.Nights())
	budget, ok := in.BudgetValue()
	if !ok {
		budget = total * 2
	}
	switch {
	case total <= budget*0.7:
		score += 40
	case total <= budget*0.85:
		score += 30
	case total <= budget:
		score += 20
	case total <= budget*1.1:
		score += 5
	default:
		score -= 20
	}

	if in.WantsPetFriendly() {
		if h.HasTag(domain.TagPetFriendly) {
			score += 10
		} else {
			score -= 20
		}
	}
	if in.WantsBreakfast() {
		if h.HasTag(domain.TagBreakfastIncluded) {
			score += 10
		} else {
			score -= 10
		}
	}
	if in.WantsNearTransit() && h.HasTag(domain.TagNearTransit) {
		score += 10
	}
	if in.WantsRefundable() && h.Hotel != nil && strings.Contains(strings.ToLower(h.Hotel.CancellationPolicy), "refundable") {
		score += 10
	}

	if in.WantsNoRedEye() && f.Flight != nil && IsRedEye(f.Flight.DepartureTime) {
		score -= 30
	}

	bonus := (f.Score.Total() + h.Score.Total()) / 2 / 5
	if bonus > 20 {
		bonus = 20
	}
	score += bonus

	return max(0, min(100, score))
}

func bundleWhy(f, h domain.Listing, fit int, total float64, in domain.Intent) string {
	var parts []string
	if budget, ok := in.BudgetValue(); ok && total <= budget*0.8 {
		parts = append(parts, fmt.Sprintf("$%.0f under budget", budget-total))
	}
	if f.Flight.Stops == 0 {
		parts = append(parts, "nonstop flight")
	}
	if h.Hotel.Stars >= 4 {
		parts = append(parts, fmt.Sprintf("%d-star hotel", h.Hotel.Stars))
	}
	if in.WantsPetFriendly() && h.HasTag(domain.TagPetFriendly) {
		parts = append(parts, "pet-friendly")
	}
	if fit >= 80 {
		parts = append(parts, "great match for your needs")
	}
	if len(parts) == 0 {
		return "Good value combination"
	}
	if len(parts) > 3 {
		parts = parts[:3]
	}
	return strings.Join(parts, ". ")
}

func bundleTradeoffs(f, h domain.Listing, in domain.Intent) string {
	var parts []string
	switch s := f.Flight.Stops; {
	case s == 1:
		parts = append(parts, "1 stop")
	case s > 1:
		parts = append(parts, fmt.Sprintf("%d stops", s))
	}
	if in.WantsBreakfast() && !h.HasTag(domain.TagBreakfastIncluded) {
		parts = append(parts, "no breakfast")
	}
	if containsAny(strings.ToLower(h.Hotel.CancellationPolicy), nonRefundablePolicyWords) {
		parts = append(parts, "non-refundable")
	}
	if !f.Flight.DepartureTime.IsZero() {
		switch hr := f.Flight.DepartureTime.Hour(); {
		case hr >= 6 && hr <= 8:
			parts = append(parts, "early departure")
		case hr >= 20 && hr <= 23:
			parts = append(parts, "late departure")
		}
	}
	if len(parts) == 0 {
		return "No significant tradeoffs"
	}
	return strings.Join(parts, ". ")
}

func bundleWatch(f, h domain.Listing, now time.Time) string {
	var parts []string
	if seats := f.InventoryOrDefault(); seats < 10 {
		parts = append(parts, fmt.Sprintf("%d seats left", seats))
	}
	if rooms := h.InventoryOrDefault(); rooms < 5 {
		parts = append(parts, fmt.Sprintf("%d rooms left", rooms))
	}
	if d, ok := daysUntil(f.ExpiresAt, now); ok && d <= 3 {
		parts = append(parts, fmt.Sprintf("price expires in %d days", d))
	}
	if len(parts) == 0 {
		return "Prices may change"
	}
	return strings.Join(parts, "; ")
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

// BundleService loads candidates from the store and composes bundles.
type BundleService struct {
	repo     domain.ListingRepository
	composer *Composer
}

func NewBundleService(r domain.ListingRepository, c *Composer) *BundleService {
	if c == nil {
		c = NewComposer()
	}
	return &BundleService{repo: r, composer: c}
}

func (s *BundleService) FindBundles(ctx context.Context, in domain.Intent, limit int) ([]domain.Bundle, error) {
	flights, err := s.repo.FindListings(ctx, domain.ListingQuery{
		Type:         domain.DealFlight,
		Origin:       strings.ToUpper(in.OriginCode()),
		Destinations: Destinations(in.DestinationCode()),
		DealsOnly:    true,
		Limit:        candidateCap,
	})
	if err != nil {
		return nil, fmt.Errorf("load flight candidates: %w", err)
	}

	hq := domain.ListingQuery{Type: domain.DealHotel, DealsOnly: true, Limit: candidateCap}
	if in.WantsPetFriendly() {
		hq.PetFriendly = in.PetFriendly
	}
	if in.WantsBreakfast() {
		hq.Breakfast = in.BreakfastRequired
	}
	if in.WantsNearTransit() {
		hq.NearTransit = in.NearTransit
	}
	hotels, err := s.repo.FindListings(ctx, hq)
	if err != nil {
		return nil, fmt.Errorf("load hotel candidates: %w", err)
	}

	return s.composer.Compose(flights, hotels, in, limit), nil
}

const searchLimit = 5

type BundleSearchResult struct {
	Bundles            []domain.Bundle `json:"bundles"`
	TotalFound         int             `json:"total_found"`
	QueryUnderstood    string          `json:"query_understood"`
	ConstraintsApplied []string        `json:"constraints_applied"`
	Suggestions        []string        `json:"suggestions"`
}

// Search resolves the intent for a bundles request and composes bundles.
// Explicit fields win over whatever the parser extracts from query; a parser
// failure degrades to the explicit fields alone.
func (s *BundleService) Search(ctx context.Context, parser domain.IntentParser, query string, explicit domain.Intent, limit int) (BundleSearchResult, error) {
	in := explicit
	query = strings.TrimSpace(query)
	if query != "" && parser != nil {
		parsed, err := parser.Parse(ctx, query, domain.Intent{})
		if err != nil {
			log.Warn().Err(err).Msg("intent parse failed; using explicit fields")
		} else {
			in = domain.MergeIntent(parsed, explicit)
		}
	}
	if limit <= 0 {
		limit = searchLimit
	}

	bundles, err := s.FindBundles(ctx, in, limit)
	if err != nil {
		return BundleSearchResult{}, err
	}
	res := BundleSearchResult{
		Bundles:            bundles,
		TotalFound:         len(bundles),
		QueryUnderstood:    query,
		ConstraintsApplied: constraintsApplied(in),
		Suggestions:        []string{},
	}
	if res.Bundles == nil {
		res.Bundles = []domain.Bundle{}
	}
	if res.ConstraintsApplied == nil {
		res.ConstraintsApplied = []string{}
	}
	if query == "" {
		res.QueryUnderstood = fmt.Sprintf("Searching %s to %s", orAny(in.OriginCode()), orAny(in.DestinationCode()))
	}
	if len(bundles) == 0 {
		res.Suggestions = []string{"Try adjusting dates for better deals", "Consider nearby airports"}
	}
	return res, nil
}

func orAny(s string) string {
	if s == "" {
		return "any"
	}
	return s
}
