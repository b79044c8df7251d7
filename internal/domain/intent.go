package domain

import (
	"context"
	"time"
)

// WarmDestination is the wildcard destination meaning "anywhere warm".
const WarmDestination = "WARM"

// DefaultNights is used when the intent lacks a usable date range.
const DefaultNights = 3

// Intent is an immutable snapshot of what a traveler asked for. Nil fields
// are unspecified.
type Intent struct {
	Origin              *string    `json:"origin,omitempty"`
	Destination         *string    `json:"destination,omitempty"`
	DepartureDate       *time.Time `json:"departure_date,omitempty"`
	ReturnDate          *time.Time `json:"return_date,omitempty"`
	Budget              *float64   `json:"budget,omitempty"`
	Travelers           *int       `json:"travelers,omitempty"`
	PetFriendly         *bool      `json:"pet_friendly,omitempty"`
	AvoidRedEye         *bool      `json:"avoid_red_eye,omitempty"`
	BreakfastRequired   *bool      `json:"breakfast_required,omitempty"`
	RefundablePreferred *bool      `json:"refundable_preferred,omitempty"`
	NearTransit         *bool      `json:"near_transit,omitempty"`
}

// IntentParser turns free text into intent overrides. prior is the intent
// already known for the conversation; the result holds only what the text says.
type IntentParser interface {
	Parse(ctx context.Context, text string, prior Intent) (Intent, error)
}

// MergeIntent overlays overrides on defaults; a field wins only when non-nil.
func MergeIntent(defaults, overrides Intent) Intent {
	return Intent{
		Origin:              pick(defaults.Origin, overrides.Origin),
		Destination:         pick(defaults.Destination, overrides.Destination),
		DepartureDate:       pick(defaults.DepartureDate, overrides.DepartureDate),
		ReturnDate:          pick(defaults.ReturnDate, overrides.ReturnDate),
		Budget:              pick(defaults.Budget, overrides.Budget),
		Travelers:           pick(defaults.Travelers, overrides.Travelers),
		PetFriendly:         pick(defaults.PetFriendly, overrides.PetFriendly),
		AvoidRedEye:         pick(defaults.AvoidRedEye, overrides.AvoidRedEye),
		BreakfastRequired:   pick(defaults.BreakfastRequired, overrides.BreakfastRequired),
		RefundablePreferred: pick(defaults.RefundablePreferred, overrides.RefundablePreferred),
		NearTransit:         pick(defaults.NearTransit, overrides.NearTransit),
	}
}

func pick[T any](base, over *T) *T {
	if over != nil {
		v := *over
		return &v
	}
	if base != nil {
		v := *base
		return &v
	}
	return nil
}

// Nights is the stay length implied by the dates, or DefaultNights.
func (i Intent) Nights() int {
	if i.DepartureDate == nil || i.ReturnDate == nil {
		return DefaultNights
	}
	n := int(i.ReturnDate.Sub(*i.DepartureDate).Hours() / 24)
	if n < 1 {
		return DefaultNights
	}
	return n
}

// BudgetValue reports the budget and whether one was set.
func (i Intent) BudgetValue() (float64, bool) {
	if i.Budget == nil || *i.Budget <= 0 {
		return 0, false
	}
	return *i.Budget, true
}

func (i Intent) OriginCode() string      { return str(i.Origin) }
func (i Intent) DestinationCode() string { return str(i.Destination) }
func (i Intent) WantsPetFriendly() bool  { return flag(i.PetFriendly) }
func (i Intent) WantsNoRedEye() bool     { return flag(i.AvoidRedEye) }
func (i Intent) WantsBreakfast() bool    { return flag(i.BreakfastRequired) }
func (i Intent) WantsRefundable() bool   { return flag(i.RefundablePreferred) }
func (i Intent) WantsNearTransit() bool  { return flag(i.NearTransit) }

func str(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func flag(p *bool) bool { return p != nil && *p }
