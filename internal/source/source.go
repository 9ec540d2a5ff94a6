// Package source fetches job postings from the upstream board.
//
// Two fetch methods implement the same contract: a lightweight structured
// fetch against the guest search endpoint, and a heavier browser-automation
// fallback. The Adapter tries them in fixed order and merges the results;
// every attempt passes through the shared rate gateway first.
package source

import (
	"context"
	"log"

	"jobsprint/discovery-engine/internal/model"
	"jobsprint/discovery-engine/internal/ratelimit"
)

// Query is one parameterised search against the upstream source.
type Query struct {
	Keywords   string
	Location   string
	MaxResults int
	Recency    model.RecencyWindow
	WorkMode   model.WorkMode
}

// FetchMethod is one way of executing a Query. Implementations normalise
// to model.Posting so downstream code is method-agnostic.
type FetchMethod interface {
	Fetch(ctx context.Context, q Query) ([]model.Posting, error)

	// Name tags postings for diagnostics ("guest-endpoint", "browser").
	Name() string
}

// Adapter runs a Query through the ordered method chain.
//
// Contract: Search never returns an error. Upstream failures degrade to
// fewer or zero results — one query's failure must not block the other
// (keyword, location) pairs of the same cycle.
type Adapter struct {
	methods []FetchMethod
	gateway *ratelimit.Gateway
}

// NewAdapter builds an Adapter. Methods are tried in the given order; the
// fallback fires only when the primary yields fewer than half the
// requested maximum.
func NewAdapter(gateway *ratelimit.Gateway, methods ...FetchMethod) *Adapter {
	return &Adapter{methods: methods, gateway: gateway}
}

// Search executes q, deduplicating by source URL (first occurrence wins).
func (a *Adapter) Search(ctx context.Context, q Query) []model.Posting {
	var merged []model.Posting
	seen := make(map[string]bool)

	for i, method := range a.methods {
		// Fallback methods only run when the primary under-delivered.
		if i > 0 && len(merged) >= q.MaxResults/2 {
			break
		}

		if !a.gateway.Acquire() {
			log.Printf("[source] Rate ceiling reached — skipping %s for %q in %q",
				method.Name(), q.Keywords, q.Location)
			continue
		}

		batch, err := method.Fetch(ctx, q)
		if err != nil {
			log.Printf("[source] %s failed for %q in %q: %v — continuing with %d result(s)",
				method.Name(), q.Keywords, q.Location, err, len(merged))
		}

		for _, p := range batch {
			if p.SourceURL == "" || seen[p.SourceURL] {
				continue
			}
			seen[p.SourceURL] = true
			p.FetchMethod = method.Name()
			merged = append(merged, p)
			if len(merged) >= q.MaxResults {
				return merged
			}
		}
	}

	return merged
}
