package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"tripdeals/internal/adapters/observability"
	"tripdeals/internal/domain"
)

const priceHistoryWindow = 30 * 24 * time.Hour

type ScanService struct {
	feed    domain.FeedClient
	repo    domain.ListingRepository
	cache   domain.Cache
	pub     domain.Publisher
	watches *WatchEvaluator
	workers int
	now     func() time.Time
}

// NewScanService wires one scan cycle. cache, pub and watches may be nil.
func NewScanService(f domain.FeedClient, r domain.ListingRepository, cache domain.Cache, pub domain.Publisher, watches *WatchEvaluator, workers int) *ScanService {
	if workers <= 0 {
		workers = 4
	}
	return &ScanService{feed: f, repo: r, cache: cache, pub: pub, watches: watches, workers: workers, now: time.Now}
}

type ScanSummary struct {
	FlightsSeen  int               `json:"flights_seen"`
	FlightDeals  int               `json:"flight_deals"`
	HotelsSeen   int               `json:"hotels_seen"`
	HotelDeals   int               `json:"hotel_deals"`
	Skipped      int               `json:"skipped"`
	Failed       int               `json:"failed"`
	Watches      EvaluationSummary `json:"watches"`
	DurationSecs float64           `json:"duration_seconds"`
}

// RunScan pulls both feeds, scores and persists every listing, broadcasts new
// deals, then re-evaluates watches. Each listing is handled independently; a
// cancelled context stops launching new listings and waits for in-flight ones.
func (s *ScanService) RunScan(ctx context.Context) (ScanSummary, error) {
	start := s.now()
	var sum ScanSummary

	flights, ferr := s.feed.GetFlights(ctx)
	if ferr != nil {
		log.Error().Err(ferr).Msg("flight feed fetch failed")
		flights = nil
	}
	hotels, herr := s.feed.GetHotels(ctx)
	if herr != nil {
		log.Error().Err(herr).Msg("hotel feed fetch failed")
		hotels = nil
	}
	if ferr != nil && herr != nil {
		return sum, errors.Join(ferr, herr)
	}

	type job struct {
		raw map[string]any
		typ domain.DealType
	}
	jobs := make([]job, 0, len(flights)+len(hotels))
	for _, r := range flights {
		jobs = append(jobs, job{r, domain.DealFlight})
	}
	for _, r := range hotels {
		jobs = append(jobs, job{r, domain.DealHotel})
	}

	sem := semaphore.NewWeighted(int64(s.workers))
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, j := range jobs {
		if ctx.Err() != nil {
			break
		}
		// acquire before launching the goroutine; release inside it
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(j job) {
			defer wg.Done()
			defer sem.Release(1)

			l, err := s.safeIngest(ctx, j.raw, j.typ)

			mu.Lock()
			defer mu.Unlock()
			if j.typ == domain.DealFlight {
				sum.FlightsSeen++
			} else {
				sum.HotelsSeen++
			}
			switch {
			case errors.Is(err, domain.ErrMalformedSnapshot):
				sum.Skipped++
				observability.ObserveListing(string(j.typ), "skipped")
			case err != nil:
				sum.Failed++
				observability.ObserveListing(string(j.typ), "failed")
				log.Warn().Err(err).Str("deal_type", string(j.typ)).Msg("listing ingest failed")
			case l.IsDeal && j.typ == domain.DealFlight:
				sum.FlightDeals++
				observability.ObserveListing(string(j.typ), "deal")
			case l.IsDeal:
				sum.HotelDeals++
				observability.ObserveListing(string(j.typ), "deal")
			default:
				observability.ObserveListing(string(j.typ), "scored")
			}
		}(j)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		sum.DurationSecs = s.now().Sub(start).Seconds()
		return sum, err
	}

	if s.watches != nil {
		ws, err := s.watches.EvaluateAll(ctx)
		sum.Watches = ws
		if err != nil {
			log.Error().Err(err).Msg("watch evaluation failed")
		}
	}

	sum.DurationSecs = s.now().Sub(start).Seconds()
	log.Info().
		Int("flights", sum.FlightsSeen).
		Int("flight_deals", sum.FlightDeals).
		Int("hotels", sum.HotelsSeen).
		Int("hotel_deals", sum.HotelDeals).
		Int("skipped", sum.Skipped).
		Int("watch_events", sum.Watches.Fired).
		Msg("scan complete")
	return sum, nil
}

// safeIngest turns a panic in one listing into an error for that listing.
func (s *ScanService) safeIngest(ctx context.Context, raw map[string]any, typ domain.DealType) (l domain.Listing, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("listing panicked: %v", r)
		}
	}()
	return s.ingest(ctx, raw, typ)
}

func (s *ScanService) ingest(ctx context.Context, raw map[string]any, typ domain.DealType) (domain.Listing, error) {
	now := s.now().UTC()
	var (
		snap domain.Snapshot
		err  error
	)
	if typ == domain.DealFlight {
		snap, err = MapFlight(raw, now)
	} else {
		snap, err = MapHotel(raw, now)
	}
	if err != nil {
		return domain.Listing{}, err
	}
	return s.ProcessSnapshot(ctx, snap)
}

// ProcessSnapshot scores one snapshot, persists it, records its price and
// broadcasts it when it is a deal. Persist and broadcast are independent:
// a lost broadcast is repaired by the next scan.
func (s *ScanService) ProcessSnapshot(ctx context.Context, snap domain.Snapshot) (domain.Listing, error) {
	if snap.Avg30dPrice == nil && snap.ID != "" {
		avg, err := s.repo.AveragePrice(ctx, snap.ID, s.now().Add(-priceHistoryWindow))
		if err != nil {
			log.Warn().Err(err).Str("listing_id", snap.ID).Msg("price history lookup failed")
		}
		snap.Avg30dPrice = avg
	}

	l, err := ScoreSnapshot(snap)
	if err != nil {
		return domain.Listing{}, err
	}

	if err := s.repo.UpsertListing(ctx, l); err != nil {
		return l, fmt.Errorf("upsert listing %s: %w", l.ID, err)
	}
	if err := s.repo.RecordPrice(ctx, l.ID, l.Price, l.ObservedAt); err != nil {
		log.Warn().Err(err).Str("listing_id", l.ID).Msg("record price failed")
	}
	if s.cache != nil {
		s.invalidateListing(ctx, l)
	}
	if l.IsDeal && s.pub != nil {
		s.pub.PublishDeal(ctx, l)
	}
	return l, nil
}

// invalidate the listing itself and the most common deal list variants
func (s *ScanService) invalidateListing(ctx context.Context, l domain.Listing) {
	_ = s.cache.Del(ctx, listingKey(l.ID))
	for _, lim := range []int{10, 20, 50} {
		_ = s.cache.Del(ctx, dealsKey(l.Type, "", "", lim))
	}
}
