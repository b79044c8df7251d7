package app

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"tripdeals/internal/domain"
)

const defaultDealsLimit = 10

type QueryService struct {
	repo     domain.ListingRepository
	cache    domain.Cache
	cacheTTL time.Duration
}

func NewQueryService(r domain.ListingRepository, c domain.Cache, ttl time.Duration) *QueryService {
	return &QueryService{repo: r, cache: c, cacheTTL: ttl}
}

func listingKey(id string) string { return "listing:" + id }

func dealsKey(t domain.DealType, a, b string, limit int) string {
	return fmt.Sprintf("deals:%s:%s:%s:%d", t, strings.ToUpper(a), strings.ToUpper(b), limit)
}

func (s *QueryService) GetListing(ctx context.Context, id string) (domain.Listing, error) {
	key := listingKey(id)
	var l domain.Listing
	if ok, _ := s.cache.Get(ctx, key, &l); ok {
		return l, nil
	}
	l, err := s.repo.GetListing(ctx, id)
	if err != nil {
		return domain.Listing{}, err
	}
	_ = s.cache.Set(ctx, key, l, int(s.cacheTTL.Seconds()))
	return l, nil
}

// TopFlights returns current flight deals, best score first.
func (s *QueryService) TopFlights(ctx context.Context, origin, destination string, limit int) ([]domain.Listing, error) {
	limit = clampLimit(limit)
	q := domain.ListingQuery{
		Type:         domain.DealFlight,
		Origin:       strings.ToUpper(origin),
		Destinations: Destinations(destination),
		DealsOnly:    true,
		Limit:        limit,
	}
	return s.cachedList(ctx, dealsKey(domain.DealFlight, origin, destination, limit), q)
}

// TopHotels returns current hotel deals in a city, best score first. Only a
// true petFriendly narrows the result.
func (s *QueryService) TopHotels(ctx context.Context, city string, petFriendly bool, limit int) ([]domain.Listing, error) {
	limit = clampLimit(limit)
	q := domain.ListingQuery{Type: domain.DealHotel, City: city, DealsOnly: true, Limit: limit}
	pet := ""
	if petFriendly {
		q.PetFriendly = &petFriendly
		pet = "pet"
	}
	return s.cachedList(ctx, dealsKey(domain.DealHotel, city, pet, limit), q)
}

func (s *QueryService) cachedList(ctx context.Context, key string, q domain.ListingQuery) ([]domain.Listing, error) {
	var out []domain.Listing
	if ok, _ := s.cache.Get(ctx, key, &out); ok {
		return out, nil
	}
	ls, err := s.repo.FindListings(ctx, q)
	if err != nil {
		return nil, err
	}
	// copy slice to avoid aliasing the repo's backing array
	out = make([]domain.Listing, len(ls))
	copy(out, ls)
	sortByScore(out)

	if b, _ := json.Marshal(out); len(b) < 1_000_000 {
		_ = s.cache.Set(ctx, key, out, int(s.cacheTTL.Seconds()))
	}
	return out, nil
}

func clampLimit(n int) int {
	switch {
	case n <= 0:
		return defaultDealsLimit
	case n > 50:
		return 50
	}
	return n
}

func sortByScore(ls []domain.Listing) {
	sort.SliceStable(ls, func(i, j int) bool { return ls[i].Score.Total() > ls[j].Score.Total() })
}
