// Package notify bundles a user's un-notified postings into one outbound
// digest and tracks the notified flag.
//
// The transport is an external collaborator: this package decides which
// postings go into one message and when the flag is safe to set, nothing
// about how the message is physically delivered.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"

	"jobsprint/discovery-engine/internal/model"
	"jobsprint/discovery-engine/internal/store"
)

// digestEventChannel carries digest-sent events for downstream consumers.
const digestEventChannel = "discovery:events"

// Transport delivers one digest to one user.
type Transport interface {
	SendDigest(ctx context.Context, user model.User, items []store.DigestItem) error
}

// Dispatcher sends at most one digest per user per call.
//
// The notified flag is set only after the transport reports success;
// a failed send leaves the postings un-notified so they are bundled into
// the next cycle's digest instead of being lost (at-least-once).
type Dispatcher struct {
	store     store.RecordStore
	transport Transport
	rdb       *redis.Client // optional; publishes digest-sent events
}

// NewDispatcher builds a Dispatcher. rdb may be nil.
func NewDispatcher(recordStore store.RecordStore, transport Transport, rdb *redis.Client) *Dispatcher {
	return &Dispatcher{store: recordStore, transport: transport, rdb: rdb}
}

// Dispatch collects the user's un-notified postings (this cycle's net-new
// plus any leftovers from failed sends) and sends them as one digest.
// Returns the number of postings notified.
func (d *Dispatcher) Dispatch(ctx context.Context, user model.User) (int, error) {
	items, err := d.store.GetUnnotified(ctx, user.ID)
	if err != nil {
		return 0, fmt.Errorf("load unnotified postings: %w", err)
	}
	if len(items) == 0 {
		return 0, nil // never send an empty digest
	}

	if err := d.transport.SendDigest(ctx, user, items); err != nil {
		return 0, fmt.Errorf("send digest to %s: %w", user.Email, err)
	}

	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.Posting.ID
	}
	if err := d.store.MarkNotified(ctx, user.ID, ids); err != nil {
		// The digest went out but the flag did not stick; the next cycle
		// may repeat these postings. At-least-once, by choice.
		log.Printf("[notify] MarkNotified failed for %s after successful send: %v", user.Email, err)
	}

	d.publishEvent(ctx, user.ID, len(items))
	log.Printf("[notify] Digest sent to %s — %d posting(s)", user.Email, len(items))
	return len(items), nil
}

func (d *Dispatcher) publishEvent(ctx context.Context, userID string, count int) {
	if d.rdb == nil {
		return
	}
	payload, err := json.Marshal(map[string]any{
		"event":    "EVENT_DIGEST_SENT",
		"user_id":  userID,
		"postings": count,
	})
	if err != nil {
		return
	}
	if err := d.rdb.Publish(ctx, digestEventChannel, payload).Err(); err != nil {
		log.Printf("[notify] Event publish failed: %v", err)
	}
}
