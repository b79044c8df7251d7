package app

import (
	"fmt"
	"strings"

	"tripdeals/internal/domain"
)

// band is one row of a first-match-wins rule table. Rows are ordered so the
// most valuable rule is checked first.
type band struct {
	limit  float64
	points int
	tag    domain.Tag
}

// discount% at or above limit
var priceBands = []band{
	{25, 40, domain.TagPriceDrop},
	{20, 35, domain.TagPriceDrop},
	{15, 30, domain.TagPriceDrop},
	{10, 20, ""},
	{5, 10, ""},
}

// inventory at or below limit
var availabilityBands = []band{
	{2, 30, domain.TagLimitedAvailability},
	{5, 25, domain.TagLimitedAvailability},
	{10, 15, ""},
}

// promo days remaining at or below limit
var promoBands = []band{
	{1, 30, domain.TagPromo},
	{3, 25, domain.TagPromo},
	{7, 15, domain.TagPromo},
}

func atLeast(bands []band, v float64) (int, domain.Tag) {
	for _, b := range bands {
		if v >= b.limit {
			return b.points, b.tag
		}
	}
	return 0, ""
}

func atMost(bands []band, v float64) (int, domain.Tag) {
	for _, b := range bands {
		if v <= b.limit {
			return b.points, b.tag
		}
	}
	return 0, ""
}

// DiscountPercent is how far current sits below the average, in percent.
// Zero when there is no usable average.
func DiscountPercent(current float64, avg *float64) float64 {
	if avg == nil || *avg <= 0 {
		return 0
	}
	return (*avg - current) / *avg * 100
}

func ScorePrice(discountPct float64) (int, domain.Tag)  { return atLeast(priceBands, discountPct) }
func ScoreAvailability(inventory int) (int, domain.Tag) { return atMost(availabilityBands, float64(inventory)) }

func ScorePromo(isPromo bool, endDays int) (int, domain.Tag) {
	if !isPromo {
		return 0, ""
	}
	return atMost(promoBands, float64(endDays))
}

// DetectDeal applies the deal rules to one observation.
func DetectDeal(current float64, avg *float64, inventory int, isPromo bool, promoEndDays int) domain.DealDetectionResult {
	var (
		tags    []domain.Tag
		phrases []string
	)

	discount := DiscountPercent(current, avg)
	pricePts, priceTag := 0, domain.Tag("")
	if avg != nil && *avg > 0 {
		pricePts, priceTag = ScorePrice(discount)
	}
	if priceTag != "" {
		tags = append(tags, priceTag)
		phrases = append(phrases, fmt.Sprintf("%.0f%% below 30-day avg", discount))
	}

	availPts, availTag := ScoreAvailability(inventory)
	if availTag != "" {
		tags = append(tags, availTag)
		phrases = append(phrases, fmt.Sprintf("Only %d left", inventory))
	}

	promoPts, promoTag := ScorePromo(isPromo, promoEndDays)
	if promoTag != "" {
		tags = append(tags, promoTag)
		phrases = append(phrases, fmt.Sprintf("Promo ends in %d days", promoEndDays))
	}

	score := domain.DealScore{Price: pricePts, Availability: availPts, Promo: promoPts}
	tags = domain.MergeTags(tags)

	explanation := "Standard pricing"
	if len(phrases) > 0 {
		explanation = strings.Join(phrases, " • ")
	}

	return domain.DealDetectionResult{
		IsDeal:      score.Total() >= 30 || len(tags) >= 2,
		Score:       score,
		Tags:        tags,
		Explanation: explanation,
	}
}

// ScoreSnapshot runs deal detection and attribute tagging over a snapshot and
// returns the scored listing. Snapshots without an id or a positive price are
// rejected with ErrMalformedSnapshot.
func ScoreSnapshot(s domain.Snapshot) (domain.Listing, error) {
	if strings.TrimSpace(s.ID) == "" || s.Price <= 0 {
		return domain.Listing{}, domain.ErrMalformedSnapshot
	}
	switch {
	case s.Type == domain.DealFlight && s.Flight != nil:
	case s.Type == domain.DealHotel && s.Hotel != nil:
	default:
		return domain.Listing{}, fmt.Errorf("%w: %s has no %q details", domain.ErrMalformedSnapshot, s.ID, s.Type)
	}

	inv := s.InventoryOrDefault()
	det := DetectDeal(s.Price, s.Avg30dPrice, inv, s.IsPromo, s.PromoEndDays)

	var attrs Attributes
	if s.Type == domain.DealFlight {
		attrs = TagFlight(*s.Flight)
	} else {
		attrs = TagHotel(*s.Hotel)
		h := *s.Hotel
		h.PetFriendly, h.NearTransit, h.BreakfastIncluded = attrs.PetFriendly, attrs.NearTransit, attrs.Breakfast
		s.Hotel = &h
	}

	l := domain.Listing{
		Snapshot:        s,
		Score:           det.Score,
		Tags:            domain.MergeTags(det.Tags, attrs.Tags),
		IsDeal:          det.IsDeal,
		RedEye:          attrs.RedEye,
		DiscountPercent: DiscountPercent(s.Price, s.Avg30dPrice),
		Explanation:     det.Explanation,
	}
	l.WhyThis = whyThisListing(l)
	l.WhatToWatch = whatToWatchListing(l, s.ObservedAt)
	return l, nil
}
