package app_test

import (
	"errors"
	"testing"
	"time"

	"tripdeals/internal/app"
	"tripdeals/internal/domain"
)

func TestScorePrice_Boundaries(t *testing.T) {
	cases := []struct {
		discount float64
		want     int
		tagged   bool
	}{
		{25.0, 40, true},
		{24.9, 35, true},
		{20.0, 35, true},
		{15.0, 30, true},
		{14.9, 20, false},
		{5.0, 10, false},
		{4.9, 0, false},
		{-10, 0, false},
	}
	for _, c := range cases {
		got, tag := app.ScorePrice(c.discount)
		if got != c.want {
			t.Fatalf("discount %.1f: got %d, want %d", c.discount, got, c.want)
		}
		if (tag == domain.TagPriceDrop) != c.tagged {
			t.Fatalf("discount %.1f: tag %q, tagged=%v", c.discount, tag, c.tagged)
		}
	}
}

func TestDetectDeal_MissingAverage(t *testing.T) {
	res := app.DetectDeal(100, nil, domain.DefaultInventory, false, 0)
	if res.Score.Price != 0 || res.Score.Total() != 0 {
		t.Fatalf("expected zero score, got %+v", res.Score)
	}
	if res.IsDeal || res.Explanation != "Standard pricing" {
		t.Fatalf("unexpected result: %+v", res)
	}

	zero := 0.0
	if res := app.DetectDeal(100, &zero, domain.DefaultInventory, false, 0); res.Score.Price != 0 {
		t.Fatalf("zero average must not score, got %d", res.Score.Price)
	}
}

func TestDetectDeal_IsDealBoundary(t *testing.T) {
	res := app.DetectDeal(100, nil, 3, false, 0)
	if res.Score.Total() != 25 || len(res.Tags) != 1 || res.IsDeal {
		t.Fatalf("inventory=3 alone must not be a deal: %+v", res)
	}

	res = app.DetectDeal(100, nil, 3, true, 2)
	if res.Score.Total() != 50 || len(res.Tags) != 2 || !res.IsDeal {
		t.Fatalf("inventory=3 plus promo in 2 days must be a deal: %+v", res)
	}
	if res.Explanation != "Only 3 left • Promo ends in 2 days" {
		t.Fatalf("unexpected explanation %q", res.Explanation)
	}
}

func TestDetectDeal_TotalIsSumAndBounded(t *testing.T) {
	avg := 100.0
	for _, price := range []float64{10, 50, 75, 85, 95, 100, 150} {
		for _, inv := range []int{0, 1, 2, 3, 5, 8, 10, 11, 100} {
			for _, days := range []int{0, 1, 2, 3, 5, 7, 8} {
				for _, promo := range []bool{false, true} {
					r := app.DetectDeal(price, &avg, inv, promo, days)
					s := r.Score
					if s.Total() != s.Price+s.Availability+s.Promo {
						t.Fatalf("total mismatch: %+v", s)
					}
					if s.Total() < 0 || s.Total() > 100 {
						t.Fatalf("total out of range: %d", s.Total())
					}
				}
			}
		}
	}
}

func TestDetectDeal_AllRules(t *testing.T) {
	avg := 400.0
	res := app.DetectDeal(300, &avg, 2, true, 1)
	if res.Score.Total() != 100 {
		t.Fatalf("expected 100, got %d", res.Score.Total())
	}
	want := "25% below 30-day avg • Only 2 left • Promo ends in 1 days"
	if res.Explanation != want {
		t.Fatalf("explanation = %q, want %q", res.Explanation, want)
	}
}

func TestScoreSnapshot_RejectsMalformed(t *testing.T) {
	bad := []domain.Snapshot{
		{Type: domain.DealFlight, Price: 100, Flight: &domain.Flight{}},
		{ID: "FL1", Type: domain.DealFlight, Price: 0, Flight: &domain.Flight{}},
		{ID: "FL1", Type: domain.DealFlight, Price: 100},
		{ID: "X1", Type: "train", Price: 100},
	}
	for i, s := range bad {
		if _, err := app.ScoreSnapshot(s); !errors.Is(err, domain.ErrMalformedSnapshot) {
			t.Fatalf("case %d: expected ErrMalformedSnapshot, got %v", i, err)
		}
	}
}

func TestScoreSnapshot_HotelTagsAndExplanations(t *testing.T) {
	avg := 200.0
	inv := 4
	s := domain.Snapshot{
		ID: "HT1", Type: domain.DealHotel, Price: 150, Avg30dPrice: &avg, Inventory: &inv,
		ObservedAt: time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC),
		Hotel: &domain.Hotel{
			Name: "Sea Breeze", City: "Miami", Neighborhood: "South Beach", Stars: 4,
			Amenities:          []string{"Pet friendly", "Free breakfast", "Near metro"},
			CancellationPolicy: "Free cancellation until 48h",
		},
	}
	l, err := app.ScoreSnapshot(s)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	for _, tag := range []domain.Tag{domain.TagPriceDrop, domain.TagLimitedAvailability, domain.TagPetFriendly, domain.TagNearTransit, domain.TagBreakfastIncluded, domain.TagRefundable} {
		if !l.HasTag(tag) {
			t.Fatalf("missing tag %s in %v", tag, l.Tags)
		}
	}
	if l.HasTag(domain.TagNonRefundable) {
		t.Fatalf("refundable hotel tagged non_refundable: %v", l.Tags)
	}
	if !l.IsDeal || !l.Hotel.PetFriendly || !l.Hotel.BreakfastIncluded || !l.Hotel.NearTransit {
		t.Fatalf("unexpected listing: %+v", l)
	}
	if l.WhyThis != "25% off, 4-star, pet-friendly, breakfast included, in South Beach" {
		t.Fatalf("why_this = %q", l.WhyThis)
	}
	if l.WhatToWatch != "Only 4 left" {
		t.Fatalf("what_to_watch = %q", l.WhatToWatch)
	}
	// the input snapshot must not be modified
	if s.Hotel.PetFriendly {
		t.Fatalf("input hotel mutated")
	}
}
