// Package model defines shared data structures for the discovery engine.
package model

import "time"

// User mirrors the users table row relevant to scheduling.
type User struct {
	ID               string
	Email            string
	Name             string
	IsActive         bool
	IsAdmin          bool
	SubscriptionTier string
	CreatedAt        time.Time
}

// SearchCriteria is the per-user search configuration, one row per user.
// Read by the coordinator once per cycle; never mutated by the engine.
type SearchCriteria struct {
	UserID             string
	Keywords           []string // ordered; the first few bound the cycle cost
	ExcludeKeywords    []string
	Locations          []string
	SalaryFloor        int
	SalaryCeiling      int
	Recency            RecencyWindow
	WorkMode           WorkMode
	QualityThreshold   int
	FrequencyMinutes   int
	UltraRecentMode    bool // overrides Recency to the last 10 minutes
	FirstApplicantMode bool // overrides Recency to the last 5 minutes
}

// Valid reports whether the criteria can drive a search cycle at all.
// A user without at least one keyword and one location is skipped.
func (c SearchCriteria) Valid() bool {
	return len(c.Keywords) > 0 && len(c.Locations) > 0
}

// EffectiveRecency resolves the mode flags against the configured window.
// First-applicant mode wins over ultra-recent mode.
func (c SearchCriteria) EffectiveRecency() RecencyWindow {
	switch {
	case c.FirstApplicantMode:
		return RecencyLast5Min
	case c.UltraRecentMode:
		return RecencyLast10Min
	default:
		return c.Recency
	}
}

// Posting is a normalised external job record. SourceURL is the global
// dedup key. The quality score is per-user-derived and lives on
// UserPostingLink, never here.
type Posting struct {
	ID           string // uuid, assigned on first persist
	ExternalID   string
	Title        string
	Company      string
	Location     string
	SalaryMin    *int
	SalaryMax    *int
	SourceURL    string
	Description  string
	FetchMethod  string // diagnostics only: which adapter method produced it
	PostedAt     *time.Time
	DiscoveredAt time.Time
}

// UserPostingLink joins a user to a posting they have seen.
// Unique per (UserID, PostingID); append-only apart from the flags.
type UserPostingLink struct {
	ID         string
	UserID     string
	PostingID  string
	MatchScore int
	IsNotified bool
	IsApplied  bool
	IsSaved    bool
	IsHidden   bool
	NotifiedAt *time.Time
	CreatedAt  time.Time
}

// RecencyWindow is the bounded set of "posted within the last N seconds"
// filters the upstream source accepts.
type RecencyWindow int

const (
	RecencyLast5Min  RecencyWindow = 300
	RecencyLast10Min RecencyWindow = 600
	RecencyLast30Min RecencyWindow = 1800
	RecencyLastHour  RecencyWindow = 3600
	RecencyLastDay   RecencyWindow = 86400
)

// Seconds returns the window length for upstream query building.
func (r RecencyWindow) Seconds() int {
	return int(r)
}

// ParseRecencyWindow snaps an arbitrary seconds value onto the bounded enum,
// defaulting to the one-hour window.
func ParseRecencyWindow(seconds int) RecencyWindow {
	switch RecencyWindow(seconds) {
	case RecencyLast5Min, RecencyLast10Min, RecencyLast30Min, RecencyLastHour, RecencyLastDay:
		return RecencyWindow(seconds)
	default:
		return RecencyLastHour
	}
}

// WorkMode is the upstream work-type filter.
type WorkMode int

const (
	WorkModeOnSite WorkMode = 1
	WorkModeRemote WorkMode = 2
	WorkModeHybrid WorkMode = 3
)

// ParseWorkMode maps the stored string form ("on-site", "remote", "hybrid")
// onto the enum, defaulting to remote.
func ParseWorkMode(s string) WorkMode {
	switch s {
	case "on-site", "onsite":
		return WorkModeOnSite
	case "hybrid":
		return WorkModeHybrid
	default:
		return WorkModeRemote
	}
}

// String returns the stored string form.
func (m WorkMode) String() string {
	switch m {
	case WorkModeOnSite:
		return "on-site"
	case WorkModeHybrid:
		return "hybrid"
	default:
		return "remote"
	}
}
