// Package store is the engine's persistence boundary.
//
// The engine needs very little from its record store; everything else the
// surrounding product does with these tables (enrollment, dashboards,
// admin CRUD) lives outside this service.
package store

import (
	"context"

	"jobsprint/discovery-engine/internal/model"
)

// ActiveUser pairs a schedulable user with their search criteria.
type ActiveUser struct {
	User     model.User
	Criteria model.SearchCriteria
}

// RecordStore is the persistence contract of the discovery engine. All
// methods must be safe to call concurrently from multiple workers.
type RecordStore interface {
	// GetActiveUsersWithCriteria returns every active user together with
	// their criteria. Users without criteria rows are still returned,
	// with zero-valued criteria, so the coordinator can log the skip.
	GetActiveUsersWithCriteria(ctx context.Context) ([]ActiveUser, error)

	// ExistsLink reports whether the user already has a link to the
	// posting identified by sourceURL.
	ExistsLink(ctx context.Context, userID, sourceURL string) (bool, error)

	// UpsertPosting persists p keyed by its source URL and returns the
	// posting id — the existing one when another cycle got there first.
	UpsertPosting(ctx context.Context, p model.Posting) (string, error)

	// CreateLink records that the user has seen the posting, with their
	// match score. Returns false when the link already existed.
	CreateLink(ctx context.Context, userID, postingID string, matchScore int) (bool, error)

	// GetUnnotified returns the user's postings whose links have not been
	// notified yet, oldest link first. A digest that failed to send last
	// cycle reappears here until MarkNotified succeeds.
	GetUnnotified(ctx context.Context, userID string) ([]DigestItem, error)

	// MarkNotified flips the notified flag for the user's links to the
	// given postings. Called only after a digest send succeeded.
	MarkNotified(ctx context.Context, userID string, postingIDs []string) error
}

// DigestItem is one posting awaiting notification, with the user's score.
type DigestItem struct {
	Posting    model.Posting
	MatchScore int
}
