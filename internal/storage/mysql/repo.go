package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"tripdeals/internal/domain"
)

func valStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}
func valInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}
func valF64(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}
func valTime(p *time.Time) any {
	if p == nil {
		return nil
	}
	return p.UTC()
}

// Repo stores listings, price history and watches in MySQL. The DSN must set
// parseTime=true.
type Repo struct{ db *sql.DB }

func New(db *sql.DB) *Repo { return &Repo{db: db} }

var (
	_ domain.ListingRepository = (*Repo)(nil)
	_ domain.WatchRepository   = (*Repo)(nil)
)

// ---- listings ----

// UpsertListing keeps the whole listing as a JSON payload and copies the
// filterable fields into indexed columns.
func (r *Repo) UpsertListing(ctx context.Context, l domain.Listing) error {
	payload, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("encode listing %s: %w", l.ID, err)
	}
	var origin, dest, city string
	if l.Flight != nil {
		origin, dest = l.Flight.Origin, l.Flight.Destination
	}
	if l.Hotel != nil {
		city = l.Hotel.City
	}
	_, err = r.db.ExecContext(ctx, upsertListingSQL,
		l.ID,
		string(l.Type),
		l.IsDeal,
		l.Score.Total(),
		l.Price,
		valStr(origin),
		valStr(dest),
		valStr(city),
		l.HasTag(domain.TagPetFriendly),
		l.HasTag(domain.TagBreakfastIncluded),
		l.HasTag(domain.TagNearTransit),
		string(payload),
		l.ObservedAt.UTC(),
	)
	return err
}

func (r *Repo) RecordPrice(ctx context.Context, id string, price float64, at time.Time) error {
	_, err := r.db.ExecContext(ctx, insertPriceSQL, id, price, at.UTC())
	return err
}

// AveragePrice returns nil when the listing has no history since the cutoff.
func (r *Repo) AveragePrice(ctx context.Context, id string, since time.Time) (*float64, error) {
	var avg sql.NullFloat64
	if err := r.db.QueryRowContext(ctx, avgPriceSQL, id, since.UTC()).Scan(&avg); err != nil {
		return nil, err
	}
	if !avg.Valid {
		return nil, nil
	}
	v := avg.Float64
	return &v, nil
}

func (r *Repo) GetListing(ctx context.Context, id string) (domain.Listing, error) {
	var payload []byte
	if err := r.db.QueryRowContext(ctx, getListingSQL, id).Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Listing{}, domain.ErrNotFound
		}
		return domain.Listing{}, err
	}
	var l domain.Listing
	if err := json.Unmarshal(payload, &l); err != nil {
		return domain.Listing{}, fmt.Errorf("decode listing %s: %w", id, err)
	}
	return l, nil
}

// FindListings builds the WHERE clause from the non-zero query fields.
func (r *Repo) FindListings(ctx context.Context, q domain.ListingQuery) ([]domain.Listing, error) {
	var sb strings.Builder
	sb.WriteString(findListingsPrefix)
	args := make([]any, 0, 8)

	if q.Type != "" {
		sb.WriteString(" AND deal_type = ?")
		args = append(args, string(q.Type))
	}
	if q.DealsOnly {
		sb.WriteString(" AND is_deal = 1")
	}
	if q.Origin != "" {
		sb.WriteString(" AND origin = ?")
		args = append(args, q.Origin)
	}
	if len(q.Destinations) > 0 {
		marks := make([]string, len(q.Destinations))
		for i, d := range q.Destinations {
			marks[i] = "?"
			args = append(args, d)
		}
		sb.WriteString(" AND destination IN (" + strings.Join(marks, ",") + ")")
	}
	if q.City != "" {
		// the default collation is case-insensitive
		sb.WriteString(" AND city = ?")
		args = append(args, q.City)
	}
	for _, f := range []struct {
		col string
		v   *bool
	}{
		{"pet_friendly", q.PetFriendly},
		{"breakfast_included", q.Breakfast},
		{"near_transit", q.NearTransit},
	} {
		if f.v != nil && *f.v {
			sb.WriteString(" AND " + f.col + " = 1")
		}
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}
	sb.WriteString(findListingsOrder)
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Listing
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var l domain.Listing
		if err := json.Unmarshal(payload, &l); err != nil {
			return nil, fmt.Errorf("decode listing: %w", err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ---- watches ----

func (r *Repo) CreateWatch(ctx context.Context, w domain.Watch) error {
	_, err := r.db.ExecContext(ctx, insertWatchSQL,
		w.ID,
		w.UserID,
		w.TargetID,
		string(w.TargetType),
		valF64(w.PriceThreshold),
		valInt(w.InventoryThreshold),
		w.Active,
		w.CreatedAt.UTC(),
	)
	return err
}

func (r *Repo) GetWatch(ctx context.Context, id string) (domain.Watch, error) {
	w, err := scanWatch(r.db.QueryRowContext(ctx, getWatchSQL, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Watch{}, domain.ErrNotFound
	}
	return w, err
}

func (r *Repo) ActiveWatches(ctx context.Context) ([]domain.Watch, error) {
	return r.queryWatches(ctx, activeWatchesSQL)
}

func (r *Repo) WatchesByUser(ctx context.Context, userID string) ([]domain.Watch, error) {
	return r.queryWatches(ctx, watchesByUserSQL, userID)
}

func (r *Repo) SaveWatchState(ctx context.Context, w domain.Watch) error {
	_, err := r.db.ExecContext(ctx, saveWatchStateSQL,
		valTime(w.LastChecked),
		valTime(w.LastNotified),
		valF64(w.LastKnownPrice),
		valInt(w.LastKnownInventory),
		w.PriceNotified,
		w.InventoryNotified,
		w.ID,
	)
	return err
}

func (r *Repo) DeactivateWatch(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, deactivateWatchSQL, id)
	if err != nil {
		return err
	}
	// an already inactive row reports 0 affected; check existence separately
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		if _, err := r.GetWatch(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repo) queryWatches(ctx context.Context, q string, args ...any) ([]domain.Watch, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Watch
	for rows.Next() {
		w, err := scanWatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

type scanner interface{ Scan(dest ...any) error }

func scanWatch(s scanner) (domain.Watch, error) {
	var w domain.Watch
	var (
		targetType                string
		priceThr, lastPrice       sql.NullFloat64
		invThr, lastInv           sql.NullInt64
		lastChecked, lastNotified sql.NullTime
	)
	if err := s.Scan(
		&w.ID,
		&w.UserID,
		&w.TargetID,
		&targetType,
		&priceThr,
		&invThr,
		&w.Active,
		&lastChecked,
		&lastNotified,
		&lastPrice,
		&lastInv,
		&w.PriceNotified,
		&w.InventoryNotified,
		&w.CreatedAt,
	); err != nil {
		return domain.Watch{}, err
	}
	w.TargetType = domain.DealType(targetType)
	if priceThr.Valid {
		f := priceThr.Float64
		w.PriceThreshold = &f
	}
	if invThr.Valid {
		n := int(invThr.Int64)
		w.InventoryThreshold = &n
	}
	if lastChecked.Valid {
		t := lastChecked.Time
		w.LastChecked = &t
	}
	if lastNotified.Valid {
		t := lastNotified.Time
		w.LastNotified = &t
	}
	if lastPrice.Valid {
		f := lastPrice.Float64
		w.LastKnownPrice = &f
	}
	if lastInv.Valid {
		n := int(lastInv.Int64)
		w.LastKnownInventory = &n
	}
	return w, nil
}
