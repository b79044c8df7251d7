// Package intentparse turns free-text travel requests into domain.Intent
// overrides using keyword tables and a handful of patterns.
package intentparse

import (
	"context"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"tripdeals/internal/domain"
)

var cityAirports = map[string]string{
	"new york": "JFK", "nyc": "JFK", "manhattan": "JFK",
	"los angeles": "LAX", "la": "LAX",
	"san francisco": "SFO", "sf": "SFO",
	"miami": "MIA",
	"chicago": "ORD",
	"boston": "BOS",
	"seattle": "SEA",
	"denver": "DEN",
	"dallas": "DFW",
	"atlanta": "ATL",
	"san diego": "SAN",
	"honolulu": "HNL", "hawaii": "HNL",
	"tampa": "TPA",
}

var (
	// longest names first so "new york" wins over shorter overlaps
	cityNames = func() []string {
		names := make([]string, 0, len(cityAirports))
		for k := range cityAirports {
			names = append(names, k)
		}
		sort.Slice(names, func(i, j int) bool {
			if len(names[i]) != len(names[j]) {
				return len(names[i]) > len(names[j])
			}
			return names[i] < names[j]
		})
		return names
	}()
	cityAlt = strings.Join(quoteAll(cityNames), "|")

	originRe    = regexp.MustCompile(`\bfrom (` + cityAlt + `|[a-z]{3})\b|\b(` + cityAlt + `) to\b`)
	destRe      = regexp.MustCompile(`\bto (` + cityAlt + `|[a-z]{3})\b`)
	warmRe      = regexp.MustCompile(`\b(anywhere|somewhere) warm\b`)
	budgetRe    = regexp.MustCompile(`\$\s*([\d,]+(?:\.\d+)?)`)
	isoDateRe   = regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2})\b`)
	slashDateRe = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})\b`)
	nightsRe    = regexp.MustCompile(`\b(\d{1,2})\s*nights?\b`)
	travelersRe = regexp.MustCompile(`\b(\d+)\s*(people|travelers|travellers|guests|of us|persons|adults)\b`)
	petRe       = regexp.MustCompile(`\b(pets?|dogs?|cats?)\b`)
	redEyeRe    = regexp.MustCompile(`\b(no|avoid|not|without)( a)? red[- ]?eyes?\b`)
	transitRe   = regexp.MustCompile(`\b(transit|metro|subway)\b`)
)

// airport codes accepted verbatim after "from"/"to"
var knownCodes = func() map[string]bool {
	m := map[string]bool{}
	for _, c := range cityAirports {
		m[strings.ToLower(c)] = true
	}
	return m
}()

func quoteAll(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = regexp.QuoteMeta(s)
	}
	return out
}

type KeywordParser struct {
	now func() time.Time
}

func New() *KeywordParser { return &KeywordParser{now: time.Now} }

// WithClock fixes the reference time used for dates without a year.
func (p *KeywordParser) WithClock(now func() time.Time) *KeywordParser {
	return &KeywordParser{now: now}
}

// Parse returns only what the text states. Nights are resolved against the
// departure in the text or, failing that, the prior intent.
func (p *KeywordParser) Parse(_ context.Context, text string, prior domain.Intent) (domain.Intent, error) {
	s := strings.ToLower(text)
	var in domain.Intent

	if code := matchAirport(originRe, s); code != "" {
		in.Origin = &code
	}
	if warmRe.MatchString(s) {
		w := domain.WarmDestination
		in.Destination = &w
	} else if code := matchAirport(destRe, s); code != "" {
		in.Destination = &code
	}

	if m := budgetRe.FindStringSubmatch(s); m != nil {
		if v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64); err == nil && v > 0 {
			in.Budget = &v
		}
	}

	dates := p.dates(s)
	if len(dates) > 0 {
		in.DepartureDate = &dates[0]
	}
	if len(dates) > 1 {
		in.ReturnDate = &dates[1]
	}
	if m := nightsRe.FindStringSubmatch(s); m != nil && in.ReturnDate == nil {
		n, _ := strconv.Atoi(m[1])
		dep := in.DepartureDate
		if dep == nil {
			dep = prior.DepartureDate
		}
		if dep != nil && n > 0 {
			ret := dep.AddDate(0, 0, n)
			in.ReturnDate = &ret
		}
	}

	if m := travelersRe.FindStringSubmatch(s); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			in.Travelers = &n
		}
	} else if strings.Contains(s, "for two") || strings.Contains(s, "for 2") {
		n := 2
		in.Travelers = &n
	}

	yes := true
	if petRe.MatchString(s) {
		in.PetFriendly = &yes
	}
	if redEyeRe.MatchString(s) {
		in.AvoidRedEye = &yes
	}
	if strings.Contains(s, "breakfast") {
		in.BreakfastRequired = &yes
	}
	if strings.Contains(s, "refund") || strings.Contains(s, "cancel") {
		in.RefundablePreferred = &yes
	}
	if transitRe.MatchString(s) {
		in.NearTransit = &yes
	}
	return in, nil
}

func matchAirport(re *regexp.Regexp, s string) string {
	for _, m := range re.FindAllStringSubmatch(s, -1) {
		for _, g := range m[1:] {
			if g == "" {
				continue
			}
			if code, ok := cityAirports[g]; ok {
				return code
			}
			if knownCodes[g] {
				return strings.ToUpper(g)
			}
		}
	}
	return ""
}

// dates returns up to two dates in text order. M/D dates take the next
// occurrence relative to now.
func (p *KeywordParser) dates(s string) []time.Time {
	type hit struct {
		at int
		t  time.Time
	}
	var hits []hit
	for _, loc := range isoDateRe.FindAllStringSubmatchIndex(s, -1) {
		if t, err := time.Parse("2006-01-02", s[loc[2]:loc[3]]); err == nil {
			hits = append(hits, hit{loc[0], t})
		}
	}
	now := p.now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	for _, loc := range slashDateRe.FindAllStringSubmatchIndex(s, -1) {
		mo, _ := strconv.Atoi(s[loc[2]:loc[3]])
		d, _ := strconv.Atoi(s[loc[4]:loc[5]])
		if mo < 1 || mo > 12 || d < 1 || d > 31 {
			continue
		}
		t := time.Date(today.Year(), time.Month(mo), d, 0, 0, 0, 0, time.UTC)
		if t.Before(today) {
			t = t.AddDate(1, 0, 0)
		}
		hits = append(hits, hit{loc[0], t})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].at < hits[j].at })
	out := make([]time.Time, 0, 2)
	for _, h := range hits {
		if len(out) == 2 {
			break
		}
		out = append(out, h.t)
	}
	return out
}

var _ domain.IntentParser = (*KeywordParser)(nil)
