package app_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"tripdeals/internal/app"
	"tripdeals/internal/domain"
)

func scored(l domain.Listing, s domain.DealScore) domain.Listing {
	l.Score = s
	return l
}

func TestFitScore_Example(t *testing.T) {
	f := scored(flightListing("FL1", "JFK", "MIA", 300, 0), domain.DealScore{Price: 40, Availability: 30, Promo: 10})
	h := scored(hotelListing("HT1", "Miami", 100, 0), domain.DealScore{Price: 30, Availability: 30})
	in := domain.Intent{Budget: ptr(700.0)}

	if got := app.FitScore(f, h, in); got != 84 {
		t.Fatalf("fit = %d, want 84", got)
	}
}

func TestFitScore_ClampsAtZero(t *testing.T) {
	f := flightListing("FL1", "JFK", "MIA", 300, 0)
	f.Flight.DepartureTime = time.Date(2025, 10, 25, 23, 30, 0, 0, time.UTC)
	h := hotelListing("HT1", "Miami", 100, 0)
	in := domain.Intent{Budget: ptr(100.0), PetFriendly: ptr(true), AvoidRedEye: ptr(true)}

	if got := app.FitScore(f, h, in); got != 0 {
		t.Fatalf("fit = %d, want 0", got)
	}
}

func TestFitScore_DefaultBudgetAndNights(t *testing.T) {
	f := flightListing("FL1", "JFK", "MIA", 300, 0)
	h := hotelListing("HT1", "Miami", 100, 0)
	dep := time.Date(2025, 10, 25, 0, 0, 0, 0, time.UTC)
	same := domain.Intent{DepartureDate: &dep, ReturnDate: &dep}

	// no budget: budget = 2x total, so total <= 0.7 budget
	if got := app.FitScore(f, h, same); got != 90 {
		t.Fatalf("fit = %d, want 90", got)
	}
	if n := same.Nights(); n != domain.DefaultNights {
		t.Fatalf("nights = %d, want %d", n, domain.DefaultNights)
	}
}

func TestFitScore_RefundableIsLiteralMatch(t *testing.T) {
	f := flightListing("FL1", "JFK", "MIA", 300, 0)
	in := domain.Intent{Budget: ptr(700.0), RefundablePreferred: ptr(true)}
	base := app.FitScore(f, hotelListing("H0", "Miami", 100, 0), domain.Intent{Budget: ptr(700.0)})

	cases := []struct {
		policy string
		bonus  int
	}{
		{"Fully refundable", 10},
		{"Non-refundable", 10},
		{"Free cancellation", 0},
		{"Partial refund", 0},
		{"", 0},
	}
	for _, c := range cases {
		h := hotelListing("H1", "Miami", 100, 0)
		h.Hotel.CancellationPolicy = c.policy
		if got := app.FitScore(f, h, in) - base; got != c.bonus {
			t.Fatalf("%q: bonus = %d, want %d", c.policy, got, c.bonus)
		}
	}
}

func TestCompose_NonRefundableTradeoffNeedsExplicitWords(t *testing.T) {
	cases := []struct {
		policy string
		want   bool
	}{
		{"Non-refundable", true},
		{"No refund after booking", true},
		{"Free cancellation", false},
		{"", false},
		{"See hotel terms", false},
	}
	for _, c := range cases {
		h := hotelListing("H1", "Miami", 100, 0)
		h.Hotel.CancellationPolicy = c.policy
		out := fixedComposer().Compose([]domain.Listing{flightListing("FL1", "JFK", "MIA", 300, 0)}, []domain.Listing{h}, domain.Intent{}, 1)
		if len(out) != 1 {
			t.Fatalf("%q: expected one bundle, got %d", c.policy, len(out))
		}
		if got := strings.Contains(out[0].Tradeoffs, "non-refundable"); got != c.want {
			t.Fatalf("%q: tradeoffs %q, want non-refundable=%v", c.policy, out[0].Tradeoffs, c.want)
		}
	}
}

func fixedComposer() *app.Composer {
	return app.NewComposer().WithClock(func() time.Time { return time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC) })
}

func TestCompose_PairsAtMostThreeHotelsPerFlight(t *testing.T) {
	flights := []domain.Listing{flightListing("FL1", "JFK", "MIA", 300, 10)}
	hotels := []domain.Listing{
		hotelListing("H1", "Miami", 100, 40),
		hotelListing("H2", "Miami Beach", 100, 30),
		hotelListing("H3", "South Beach", 100, 20),
		hotelListing("H4", "Miami", 100, 10),
		hotelListing("H5", "Atlanta", 50, 40),
	}
	out := fixedComposer().Compose(flights, hotels, domain.Intent{}, 10)
	if len(out) != 3 {
		t.Fatalf("expected 3 bundles, got %d", len(out))
	}
	for _, b := range out {
		if b.Hotel.ID == "H4" || b.Hotel.ID == "H5" {
			t.Fatalf("unexpected hotel %s in bundle", b.Hotel.ID)
		}
		if b.TotalPrice != 600 || b.Nights != 3 || b.Savings != 0 {
			t.Fatalf("unexpected bundle pricing: %+v", b)
		}
	}
	for i := 1; i < len(out); i++ {
		if out[i-1].FitScore < out[i].FitScore {
			t.Fatalf("bundles not sorted by fit: %d < %d", out[i-1].FitScore, out[i].FitScore)
		}
	}
}

func TestCompose_DiscardsOverBudget(t *testing.T) {
	flights := []domain.Listing{flightListing("FL1", "JFK", "MIA", 300, 10)}
	hotels := []domain.Listing{
		hotelListing("H1", "Miami", 100, 10), // 600
		hotelListing("H2", "Miami", 200, 10), // 900
	}
	out := fixedComposer().Compose(flights, hotels, domain.Intent{Budget: ptr(600.0)}, 0)
	if len(out) != 1 || out[0].Hotel.ID != "H1" {
		t.Fatalf("expected only H1 bundle, got %+v", out)
	}
}

func TestCompose_WarmWildcardAndDefaultLimit(t *testing.T) {
	flights := []domain.Listing{
		flightListing("FL1", "JFK", "MIA", 300, 10),
		flightListing("FL2", "JFK", "LAX", 350, 10),
		flightListing("FL3", "JFK", "ORD", 150, 40),
	}
	hotels := []domain.Listing{
		hotelListing("H1", "Miami", 100, 10),
		hotelListing("H2", "Los Angeles", 100, 10),
		hotelListing("H3", "Santa Monica", 100, 10),
		hotelListing("H4", "Chicago", 80, 40),
	}
	in := domain.Intent{Origin: ptr("JFK"), Destination: ptr(domain.WarmDestination)}
	out := fixedComposer().Compose(flights, hotels, in, 0)
	if len(out) != 3 {
		t.Fatalf("expected default limit 3, got %d", len(out))
	}
	for _, b := range out {
		if b.Flight.ID == "FL3" {
			t.Fatalf("ORD is not a warm destination")
		}
	}
}

func TestCompose_HardConstraintsFilterHotels(t *testing.T) {
	flights := []domain.Listing{flightListing("FL1", "JFK", "MIA", 300, 10)}
	hotels := []domain.Listing{
		hotelListing("H1", "Miami", 100, 40),
		hotelListing("H2", "Miami", 120, 10, domain.TagPetFriendly),
	}
	out := fixedComposer().Compose(flights, hotels, domain.Intent{PetFriendly: ptr(true)}, 0)
	if len(out) != 1 || out[0].Hotel.ID != "H2" {
		t.Fatalf("expected only pet-friendly H2, got %+v", out)
	}
	if out[0].WhyThis == "" || out[0].Tradeoffs == "" || out[0].WhatToWatch == "" {
		t.Fatalf("explanations must never be empty: %+v", out[0])
	}
}

func TestCityMatchesAirport_WholeWords(t *testing.T) {
	if app.CityMatchesAirport("Atlanta", "LAX") {
		t.Fatalf("Atlanta must not match LAX")
	}
	if !app.CityMatchesAirport("Los Angeles, CA", "LAX") {
		t.Fatalf("Los Angeles must match LAX")
	}
	if !app.CityMatchesAirport("MIA", "mia") {
		t.Fatalf("bare airport code must match")
	}
}

func TestBundleService_FindBundles(t *testing.T) {
	repo := newFakeRepo(
		flightListing("FL1", "JFK", "MIA", 300, 10),
		hotelListing("H1", "Miami", 100, 10),
	)
	svc := app.NewBundleService(repo, fixedComposer())
	out, err := svc.FindBundles(context.Background(), domain.Intent{Origin: ptr("jfk"), Destination: ptr("mia")}, 3)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if len(out) != 1 || out[0].Flight.ID != "FL1" || out[0].Hotel.ID != "H1" {
		t.Fatalf("unexpected bundles: %+v", out)
	}
}

func TestBundleService_Search_ExplicitFieldsWin(t *testing.T) {
	repo := newFakeRepo(
		flightListing("FL1", "JFK", "MIA", 300, 10),
		flightListing("FL2", "JFK", "LAX", 300, 10),
		hotelListing("H1", "Miami", 100, 10, domain.TagPetFriendly),
		hotelListing("H2", "Los Angeles", 100, 10, domain.TagPetFriendly),
	)
	parser := scriptedParser{
		"pet friendly trip from nyc to la": {Origin: ptr("JFK"), Destination: ptr("LAX"), PetFriendly: ptr(true)},
	}
	svc := app.NewBundleService(repo, fixedComposer())

	res, err := svc.Search(context.Background(), parser, "pet friendly trip from nyc to la", domain.Intent{Destination: ptr("MIA")}, 0)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if res.TotalFound != 1 || res.Bundles[0].Flight.ID != "FL1" || res.Bundles[0].Hotel.ID != "H1" {
		t.Fatalf("unexpected bundles: %+v", res.Bundles)
	}
	if len(res.ConstraintsApplied) != 1 || res.ConstraintsApplied[0] != "pet-friendly" {
		t.Fatalf("unexpected constraints: %v", res.ConstraintsApplied)
	}
	if res.QueryUnderstood != "pet friendly trip from nyc to la" || len(res.Suggestions) != 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestBundleService_Search_EmptySuggests(t *testing.T) {
	svc := app.NewBundleService(newFakeRepo(), fixedComposer())
	res, err := svc.Search(context.Background(), nil, "", domain.Intent{Origin: ptr("JFK"), Destination: ptr("SFO")}, 3)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if res.TotalFound != 0 || res.Bundles == nil || len(res.Suggestions) != 2 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.QueryUnderstood != "Searching JFK to SFO" {
		t.Fatalf("unexpected query_understood %q", res.QueryUnderstood)
	}
}
