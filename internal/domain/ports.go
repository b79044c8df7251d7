package domain

import (
	"context"
	"time"
)

type ListingRepository interface {
	// Write paths
	UpsertListing(ctx context.Context, l Listing) error
	RecordPrice(ctx context.Context, id string, price float64, at time.Time) error

	// Read paths
	GetListing(ctx context.Context, id string) (Listing, error)
	FindListings(ctx context.Context, q ListingQuery) ([]Listing, error)
	AveragePrice(ctx context.Context, id string, since time.Time) (*float64, error)
}

type WatchRepository interface {
	CreateWatch(ctx context.Context, w Watch) error
	GetWatch(ctx context.Context, id string) (Watch, error)
	ActiveWatches(ctx context.Context) ([]Watch, error)
	WatchesByUser(ctx context.Context, userID string) ([]Watch, error)
	SaveWatchState(ctx context.Context, w Watch) error
	DeactivateWatch(ctx context.Context, id string) error
}

type FeedClient interface {
	GetFlights(ctx context.Context) ([]map[string]any, error)
	GetHotels(ctx context.Context) ([]map[string]any, error)
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttlSec int) error
	Del(ctx context.Context, key string) error
}

// Publisher pushes state changes to realtime subscribers. Delivery is best
// effort; callers never see per-recipient failures.
type Publisher interface {
	PublishDeal(ctx context.Context, l Listing)
	PublishWatchEvent(ctx context.Context, ev WatchEvent)
}
