package notify

import (
	"context"
	"log"

	"jobsprint/discovery-engine/internal/model"
	"jobsprint/discovery-engine/internal/store"
)

// LogTransport writes digests to the process log instead of an external
// channel. Used when no Telegram token is configured, and in local runs.
type LogTransport struct{}

func (LogTransport) SendDigest(_ context.Context, user model.User, items []store.DigestItem) error {
	for _, it := range items {
		log.Printf("[notify] Digest for %s: [%d] %s at %s — %s",
			user.Email, it.MatchScore, it.Posting.Title, it.Posting.Company, it.Posting.SourceURL)
	}
	return nil
}
