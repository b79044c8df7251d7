package intentparse_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"tripdeals/internal/adapters/intentparse"
	"tripdeals/internal/domain"
)

var refNow = time.Date(2025, 10, 1, 9, 0, 0, 0, time.UTC)

func parse(t *testing.T, text string, prior domain.Intent) domain.Intent {
	t.Helper()
	in, err := intentparse.New().WithClock(func() time.Time { return refNow }).Parse(context.Background(), text, prior)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return in
}

func ptr[T any](v T) *T { return &v }

func day(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func TestParse_FullRequest(t *testing.T) {
	got := parse(t, "Weekend from New York to Miami 10/25-10/27, $900 for two, pet friendly, no red-eye please", domain.Intent{})
	want := domain.Intent{
		Origin:        ptr("JFK"),
		Destination:   ptr("MIA"),
		DepartureDate: day(2025, 10, 25),
		ReturnDate:    day(2025, 10, 27),
		Budget:        ptr(900.0),
		Travelers:     ptr(2),
		PetFriendly:   ptr(true),
		AvoidRedEye:   ptr(true),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("intent mismatch (-want +got):\n%s", diff)
	}
}

func TestParse_WarmAndNightsFromPrior(t *testing.T) {
	prior := domain.Intent{DepartureDate: day(2025, 11, 2)}
	got := parse(t, "somewhere warm for 4 nights, breakfast and near the metro, refundable", prior)
	want := domain.Intent{
		Destination:         ptr(domain.WarmDestination),
		ReturnDate:          day(2025, 11, 6),
		BreakfastRequired:   ptr(true),
		NearTransit:         ptr(true),
		RefundablePreferred: ptr(true),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("intent mismatch (-want +got):\n%s", diff)
	}
}

func TestParse_OnlyOverrides(t *testing.T) {
	got := parse(t, "what about $1,200?", domain.Intent{Origin: ptr("BOS")})
	if got.Origin != nil || got.Budget == nil || *got.Budget != 1200 {
		t.Fatalf("unexpected overrides: %+v", got)
	}
	merged := domain.MergeIntent(domain.Intent{Origin: ptr("BOS")}, got)
	if *merged.Origin != "BOS" || *merged.Budget != 1200 {
		t.Fatalf("unexpected merge: %+v", merged)
	}
}

func TestParse_AirportCodesAndPastDates(t *testing.T) {
	got := parse(t, "from sfo to hnl on 2026-01-10, 3 people", domain.Intent{})
	if *got.Origin != "SFO" || *got.Destination != "HNL" || !got.DepartureDate.Equal(*day(2026, 1, 10)) || *got.Travelers != 3 {
		t.Fatalf("unexpected intent: %+v", got)
	}

	// 9/15 is already past on the reference date, so it rolls to next year
	got = parse(t, "leaving 9/15", domain.Intent{})
	if !got.DepartureDate.Equal(*day(2026, 9, 15)) {
		t.Fatalf("departure = %v", got.DepartureDate)
	}
}

func TestParse_NoFalseCityInsideWords(t *testing.T) {
	got := parse(t, "fly to atlanta", domain.Intent{})
	if got.Destination == nil || *got.Destination != "ATL" {
		t.Fatalf("expected ATL, got %+v", got.Destination)
	}
}
