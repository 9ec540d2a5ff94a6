// Package dedup resolves which scored postings are net-new for a user,
// persists them, and returns only that net-new subset.
package dedup

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"jobsprint/discovery-engine/internal/score"
	"jobsprint/discovery-engine/internal/store"
)

const (
	seenKeyPrefix = "discovery:seen:"
	seenKeyTTL    = 30 * 24 * time.Hour
)

// Deduper persists postings and their user links exactly once.
//
// A Redis set of seen source URLs sits in front of the store to keep the
// common case (posting re-served every cycle) off Postgres; the store's
// unique constraints remain the source of truth, so a cold or flushed
// cache only costs extra lookups, never duplicate links.
type Deduper struct {
	store store.RecordStore
	rdb   *redis.Client // optional; nil disables the cache
}

// New builds a Deduper. rdb may be nil.
func New(recordStore store.RecordStore, rdb *redis.Client) *Deduper {
	return &Deduper{store: recordStore, rdb: rdb}
}

// Persist writes each match for the user and returns exactly those for
// which a new UserPostingLink was created in this call, with posting ids
// filled in.
//
// Failures are per-posting: a store error drops that posting from this
// cycle (it reappears in the next fetch) and the loop continues.
func (d *Deduper) Persist(ctx context.Context, userID string, matches []score.Match) []score.Match {
	netNew := make([]score.Match, 0, len(matches))

	for _, m := range matches {
		url := m.Posting.SourceURL
		if url == "" {
			log.Printf("[dedup] Skipping posting without source URL: %q", m.Posting.Title)
			continue
		}

		if d.cachedSeen(ctx, userID, url) {
			continue
		}

		exists, err := d.store.ExistsLink(ctx, userID, url)
		if err != nil {
			log.Printf("[dedup] ExistsLink error for user %s, %q: %v — skipping this cycle", userID, url, err)
			continue
		}
		if exists {
			d.cacheSeen(ctx, userID, url)
			continue
		}

		// Posting before link: a crash between the two steps leaves an
		// orphan-free posting row, never a dangling link.
		postingID, err := d.store.UpsertPosting(ctx, m.Posting)
		if err != nil {
			log.Printf("[dedup] UpsertPosting error for %q: %v — skipping this cycle", url, err)
			continue
		}

		created, err := d.store.CreateLink(ctx, userID, postingID, m.Score)
		if err != nil {
			// The posting row exists but the user link does not; without a
			// retry the posting would be silently un-notifiable for this
			// user. It reappears next fetch, so log loudly and move on.
			log.Printf("[dedup] LINK CREATION FAILED after posting upsert (user %s, posting %s): %v",
				userID, postingID, err)
			continue
		}

		d.cacheSeen(ctx, userID, url)
		if !created {
			// Raced with another cycle for the same user; not net-new.
			continue
		}

		m.Posting.ID = postingID
		netNew = append(netNew, m)
	}

	return netNew
}

func (d *Deduper) cachedSeen(ctx context.Context, userID, url string) bool {
	if d.rdb == nil {
		return false
	}
	seen, err := d.rdb.SIsMember(ctx, seenKeyPrefix+userID, url).Result()
	if err != nil {
		return false // cache trouble never blocks persistence
	}
	return seen
}

func (d *Deduper) cacheSeen(ctx context.Context, userID, url string) {
	if d.rdb == nil {
		return
	}
	key := seenKeyPrefix + userID
	if err := d.rdb.SAdd(ctx, key, url).Err(); err != nil {
		return
	}
	d.rdb.Expire(ctx, key, seenKeyTTL)
}
