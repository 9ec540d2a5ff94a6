package notify_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobsprint/discovery-engine/internal/dedup"
	"jobsprint/discovery-engine/internal/model"
	"jobsprint/discovery-engine/internal/notify"
	"jobsprint/discovery-engine/internal/score"
	"jobsprint/discovery-engine/internal/store"
	"jobsprint/discovery-engine/internal/storetest"
)

type fakeTransport struct {
	sent [][]store.DigestItem
	err  error
}

func (t *fakeTransport) SendDigest(_ context.Context, _ model.User, items []store.DigestItem) error {
	if t.err != nil {
		return t.err
	}
	t.sent = append(t.sent, items)
	return nil
}

var testUser = model.User{ID: "user-1", Email: "a@b.c", Name: "A"}

// seed persists n postings for the user and returns the fake store.
func seed(t *testing.T, n int) *storetest.Fake {
	t.Helper()
	fake := storetest.New()
	d := dedup.New(fake, nil)
	matches := make([]score.Match, 0, n)
	for i := 0; i < n; i++ {
		matches = append(matches, score.Match{
			Posting: model.Posting{SourceURL: string(rune('a' + i)), Title: "T"},
			Score:   70,
		})
	}
	require.Len(t, d.Persist(context.Background(), testUser.ID, matches), n)
	return fake
}

func TestDispatch_OneDigestThenMarked(t *testing.T) {
	fake := seed(t, 3)
	transport := &fakeTransport{}
	d := notify.NewDispatcher(fake, transport, nil)

	sent, err := d.Dispatch(context.Background(), testUser)

	require.NoError(t, err)
	assert.Equal(t, 3, sent)
	require.Len(t, transport.sent, 1, "exactly one digest per dispatch")
	assert.Len(t, transport.sent[0], 3)
	assert.Equal(t, 3, fake.NotifiedCount(testUser.ID))
}

func TestDispatch_EmptySetSendsNothing(t *testing.T) {
	fake := storetest.New()
	transport := &fakeTransport{}
	d := notify.NewDispatcher(fake, transport, nil)

	sent, err := d.Dispatch(context.Background(), testUser)

	require.NoError(t, err)
	assert.Zero(t, sent)
	assert.Empty(t, transport.sent, "empty digests must never be sent")
}

func TestDispatch_Idempotent(t *testing.T) {
	fake := seed(t, 2)
	transport := &fakeTransport{}
	d := notify.NewDispatcher(fake, transport, nil)

	_, err := d.Dispatch(context.Background(), testUser)
	require.NoError(t, err)
	sent, err := d.Dispatch(context.Background(), testUser)
	require.NoError(t, err)

	assert.Zero(t, sent, "second dispatch with no new postings sends nothing")
	assert.Len(t, transport.sent, 1)
}

func TestDispatch_SendFailureLeavesUnnotified(t *testing.T) {
	fake := seed(t, 2)
	transport := &fakeTransport{err: errors.New("transport down")}
	d := notify.NewDispatcher(fake, transport, nil)

	_, err := d.Dispatch(context.Background(), testUser)
	require.Error(t, err)
	assert.Zero(t, fake.NotifiedCount(testUser.ID), "failed send must not mark anything notified")

	// Transport recovers: the same postings ride the next digest.
	transport.err = nil
	sent, err := d.Dispatch(context.Background(), testUser)
	require.NoError(t, err)
	assert.Equal(t, 2, sent)
	assert.Equal(t, 2, fake.NotifiedCount(testUser.ID))
}

func TestDispatch_StoreErrorPropagates(t *testing.T) {
	fake := storetest.New()
	fake.UnnotifiedErr = errors.New("store down")
	d := notify.NewDispatcher(fake, &fakeTransport{}, nil)

	_, err := d.Dispatch(context.Background(), testUser)
	assert.Error(t, err)
}
