package domain

import "time"

type Bundle struct {
	ID          string    `json:"bundle_id"`
	Flight      Listing   `json:"flight"`
	Hotel       Listing   `json:"hotel"`
	Nights      int       `json:"nights"`
	TotalPrice  float64   `json:"total_price"`
	Savings     float64   `json:"savings"`
	FitScore    int       `json:"fit_score"`
	WhyThis     string    `json:"why_this_bundle"`
	Tradeoffs   string    `json:"tradeoffs"`
	WhatToWatch string    `json:"what_to_watch"`
	CreatedAt   time.Time `json:"created_at"`
}
