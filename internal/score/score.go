// Package score turns candidate postings into scored, filtered matches.
//
// Everything here is a pure function of its inputs: the clock is an
// explicit parameter and nothing touches the network or the store, so the
// whole engine is unit-testable without mocks.
package score

import (
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"jobsprint/discovery-engine/internal/model"
)

const (
	baseScore         = 50
	keywordBonusCap   = 30
	keywordBonusStep  = 10
	locationBonus     = 20
	employerBonus     = 10
	recencyFullBonus  = 10
	recencyHalfBonus  = 5
	excludePenalty    = 20
	recencyFullWindow = 24 * time.Hour
	recencyHalfWindow = 72 * time.Hour
)

// Match is a posting that passed the user's filters, with its score.
type Match struct {
	Posting model.Posting
	Score   int
}

// Engine scores and filters postings against per-user criteria.
type Engine struct {
	employerAllowList []string
}

// NewEngine builds an Engine with the given employer-reputation
// allow-list (lower-cased name fragments).
func NewEngine(employerAllowList []string) *Engine {
	allow := make([]string, 0, len(employerAllowList))
	for _, e := range employerAllowList {
		if f := normalize(e); f != "" {
			allow = append(allow, f)
		}
	}
	return &Engine{employerAllowList: allow}
}

// Apply scores every posting and drops those failing the user's filters,
// in order: quality threshold, salary floor, exclude keywords. Postings
// without salary data are retained — absence is not a rejection reason.
func (e *Engine) Apply(postings []model.Posting, c model.SearchCriteria, now time.Time) []Match {
	matches := make([]Match, 0, len(postings))

	for _, p := range postings {
		s := e.Score(p, c, now)
		if s < c.QualityThreshold {
			continue
		}
		if p.SalaryMin != nil && c.SalaryFloor > 0 && *p.SalaryMin < c.SalaryFloor {
			continue
		}
		if titleHasAny(p.Title, c.ExcludeKeywords) {
			continue
		}
		matches = append(matches, Match{Posting: p, Score: s})
	}
	return matches
}

// Score computes the quality score of one posting for one user,
// clamped to [0, 100]. Deterministic for fixed (posting, criteria, now).
func (e *Engine) Score(p model.Posting, c model.SearchCriteria, now time.Time) int {
	score := baseScore

	title := normalize(p.Title)
	company := normalize(p.Company)
	location := normalize(p.Location)

	// Keyword matches in the title, capped so long keyword lists do not
	// dominate the score.
	matched := 0
	for _, kw := range c.Keywords {
		if kw = normalize(kw); kw != "" && strings.Contains(title, kw) {
			matched++
		}
	}
	if matched > 0 {
		score += min(keywordBonusCap, matched*keywordBonusStep)
	}

	for _, loc := range c.Locations {
		if l := normalize(loc); l != "" && strings.Contains(location, l) {
			score += locationBonus
			break
		}
	}

	for _, fragment := range e.employerAllowList {
		if strings.Contains(company, fragment) {
			score += employerBonus
			break
		}
	}

	if p.PostedAt != nil {
		age := now.Sub(*p.PostedAt)
		switch {
		case age >= 0 && age <= recencyFullWindow:
			score += recencyFullBonus
		case age > recencyFullWindow && age <= recencyHalfWindow:
			score += recencyHalfBonus
		}
	}

	if titleHasAny(p.Title, c.ExcludeKeywords) {
		score -= excludePenalty
	}

	return clamp(score, 0, 100)
}

func titleHasAny(title string, keywords []string) bool {
	t := normalize(title)
	for _, kw := range keywords {
		if kw = normalize(kw); kw != "" && strings.Contains(t, kw) {
			return true
		}
	}
	return false
}

// normalize lower-cases and strips diacritics so "Québec" matches "quebec".
func normalize(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(strings.TrimSpace(folded))
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
