package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"tripdeals/internal/adapters/observability"
	"tripdeals/internal/domain"
)

// Observation is the current value of whatever a watch targets.
type Observation struct {
	Price     float64
	Inventory int
}

// WatchEvaluator re-checks active watches against the latest scored listings.
type WatchEvaluator struct {
	watches  domain.WatchRepository
	listings domain.ListingRepository
	pub      domain.Publisher
	now      func() time.Time
}

func NewWatchEvaluator(w domain.WatchRepository, l domain.ListingRepository, pub domain.Publisher) *WatchEvaluator {
	return &WatchEvaluator{watches: w, listings: l, pub: pub, now: time.Now}
}

type EvaluationSummary struct {
	Evaluated int `json:"evaluated"`
	Fired     int `json:"fired"`
	Failed    int `json:"failed"`
}

// EvaluateAll checks every active watch. A failure on one watch is logged and
// does not stop the others; only failing to list the watches is returned.
func (e *WatchEvaluator) EvaluateAll(ctx context.Context) (EvaluationSummary, error) {
	var sum EvaluationSummary
	ws, err := e.watches.ActiveWatches(ctx)
	if err != nil {
		return sum, fmt.Errorf("list active watches: %w", err)
	}
	for _, w := range ws {
		if ctx.Err() != nil {
			return sum, ctx.Err()
		}
		n, err := e.evaluateOne(ctx, w)
		sum.Evaluated++
		if err != nil {
			sum.Failed++
			log.Warn().Err(err).Str("watch_id", w.ID).Msg("watch evaluation failed")
			continue
		}
		sum.Fired += n
	}
	return sum, nil
}

func (e *WatchEvaluator) evaluateOne(ctx context.Context, w domain.Watch) (fired int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic evaluating watch %s: %v", w.ID, r)
		}
	}()

	obs, err := e.observe(ctx, w)
	if err != nil {
		return 0, err
	}
	next, events := EvaluateWatch(w, obs, e.now())
	if err := e.watches.SaveWatchState(ctx, next); err != nil {
		return 0, fmt.Errorf("save watch state: %w", err)
	}
	for _, ev := range events {
		observability.ObserveWatchEvent(string(ev.EventType))
		if e.pub != nil {
			e.pub.PublishWatchEvent(ctx, ev)
		}
	}
	return len(events), nil
}

func (e *WatchEvaluator) observe(ctx context.Context, w domain.Watch) (Observation, error) {
	if w.TargetType == domain.TargetBundle {
		fid, hid, ok := domain.SplitBundleTarget(w.TargetID)
		if !ok {
			return Observation{}, fmt.Errorf("%w: bad bundle target %q", domain.ErrInvalidWatch, w.TargetID)
		}
		f, err := e.listings.GetListing(ctx, fid)
		if err != nil {
			return Observation{}, fmt.Errorf("load flight %s: %w", fid, err)
		}
		h, err := e.listings.GetListing(ctx, hid)
		if err != nil {
			return Observation{}, fmt.Errorf("load hotel %s: %w", hid, err)
		}
		return Observation{
			Price:     round2(f.Price + h.Price*domain.DefaultNights),
			Inventory: min(f.InventoryOrDefault(), h.InventoryOrDefault()),
		}, nil
	}
	l, err := e.listings.GetListing(ctx, w.TargetID)
	if err != nil {
		return Observation{}, fmt.Errorf("load listing %s: %w", w.TargetID, err)
	}
	return Observation{Price: l.Price, Inventory: l.InventoryOrDefault()}, nil
}

// EvaluateWatch compares an observation with the watch thresholds and returns
// the updated watch plus any events to emit. A condition fires once when the
// value reaches its threshold and re-arms only after the value moves back
// above it.
func EvaluateWatch(w domain.Watch, obs Observation, now time.Time) (domain.Watch, []domain.WatchEvent) {
	var events []domain.WatchEvent

	if t := w.PriceThreshold; t != nil {
		if obs.Price <= *t {
			if !w.PriceNotified {
				prev := obs.Price
				if w.LastKnownPrice != nil {
					prev = *w.LastKnownPrice
				}
				events = append(events, domain.WatchEvent{
					WatchID:       w.ID,
					EventType:     domain.WatchPriceDrop,
					DealID:        w.TargetID,
					PreviousValue: prev,
					CurrentValue:  obs.Price,
					Threshold:     *t,
					Message:       fmt.Sprintf("Price dropped to $%.2f (your alert: $%.2f)", obs.Price, *t),
					At:            now,
				})
				w.PriceNotified = true
			}
		} else {
			w.PriceNotified = false
		}
	}

	if t := w.InventoryThreshold; t != nil {
		if obs.Inventory <= *t {
			if !w.InventoryNotified {
				prev := obs.Inventory
				if w.LastKnownInventory != nil {
					prev = *w.LastKnownInventory
				}
				typ, msg := domain.WatchInventoryLow, fmt.Sprintf("Only %d left (your alert: %d)", obs.Inventory, *t)
				if obs.Inventory == 0 {
					typ, msg = domain.WatchSoldOut, "Sold out"
				}
				events = append(events, domain.WatchEvent{
					WatchID:       w.ID,
					EventType:     typ,
					DealID:        w.TargetID,
					PreviousValue: float64(prev),
					CurrentValue:  float64(obs.Inventory),
					Threshold:     float64(*t),
					Message:       msg,
					At:            now,
				})
				w.InventoryNotified = true
			}
		} else {
			w.InventoryNotified = false
		}
	}

	price, inv := obs.Price, obs.Inventory
	w.LastKnownPrice = &price
	w.LastKnownInventory = &inv
	w.LastChecked = &now
	if len(events) > 0 {
		w.LastNotified = &now
	}
	return w, events
}

// ---- user-facing watch management ----

type CreateWatchInput struct {
	UserID             string          `json:"user_id"`
	DealID             string          `json:"deal_id"`
	DealType           domain.DealType `json:"deal_type"`
	PriceThreshold     *float64        `json:"price_threshold,omitempty"`
	InventoryThreshold *int            `json:"inventory_threshold,omitempty"`
}

type WatchService struct {
	watches  domain.WatchRepository
	listings domain.ListingRepository
	now      func() time.Time
}

func NewWatchService(w domain.WatchRepository, l domain.ListingRepository) *WatchService {
	return &WatchService{watches: w, listings: l, now: time.Now}
}

func (s *WatchService) Create(ctx context.Context, in CreateWatchInput) (domain.Watch, error) {
	in.UserID = strings.TrimSpace(in.UserID)
	in.DealID = strings.TrimSpace(in.DealID)
	switch {
	case in.UserID == "":
		return domain.Watch{}, fmt.Errorf("%w: user_id is required", domain.ErrInvalidWatch)
	case in.DealID == "":
		return domain.Watch{}, fmt.Errorf("%w: deal_id is required", domain.ErrInvalidWatch)
	case in.PriceThreshold == nil && in.InventoryThreshold == nil:
		return domain.Watch{}, fmt.Errorf("%w: set price_threshold or inventory_threshold", domain.ErrInvalidWatch)
	case in.PriceThreshold != nil && *in.PriceThreshold <= 0:
		return domain.Watch{}, fmt.Errorf("%w: price_threshold must be positive", domain.ErrInvalidWatch)
	case in.InventoryThreshold != nil && *in.InventoryThreshold < 0:
		return domain.Watch{}, fmt.Errorf("%w: inventory_threshold must not be negative", domain.ErrInvalidWatch)
	}

	ids := []string{in.DealID}
	if in.DealType == domain.TargetBundle {
		f, h, ok := domain.SplitBundleTarget(in.DealID)
		if !ok {
			return domain.Watch{}, fmt.Errorf("%w: bundle deal_id must be <flight_id>+<hotel_id>", domain.ErrInvalidWatch)
		}
		ids = []string{f, h}
	}
	for _, id := range ids {
		l, err := s.listings.GetListing(ctx, id)
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Watch{}, fmt.Errorf("%w: unknown deal %s", domain.ErrInvalidWatch, id)
		}
		if err != nil {
			return domain.Watch{}, err
		}
		if in.DealType == "" {
			in.DealType = l.Type
		}
	}

	w := domain.Watch{
		ID:                 "watch-" + uuid.NewString()[:8],
		UserID:             in.UserID,
		TargetID:           in.DealID,
		TargetType:         in.DealType,
		PriceThreshold:     in.PriceThreshold,
		InventoryThreshold: in.InventoryThreshold,
		Active:             true,
		CreatedAt:          s.now().UTC(),
	}
	if err := s.watches.CreateWatch(ctx, w); err != nil {
		return domain.Watch{}, err
	}
	return w, nil
}

func (s *WatchService) ListByUser(ctx context.Context, userID string) ([]domain.Watch, error) {
	ws, err := s.watches.WatchesByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Watch, 0, len(ws))
	for _, w := range ws {
		if w.Active {
			out = append(out, w)
		}
	}
	return out, nil
}

// Delete deactivates the watch; watches are never physically removed.
func (s *WatchService) Delete(ctx context.Context, id string) error {
	if _, err := s.watches.GetWatch(ctx, id); err != nil {
		return err
	}
	return s.watches.DeactivateWatch(ctx, id)
}
