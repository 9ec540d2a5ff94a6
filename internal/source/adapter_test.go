package source

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"jobsprint/discovery-engine/internal/model"
	"jobsprint/discovery-engine/internal/ratelimit"
)

type stubMethod struct {
	name     string
	postings []model.Posting
	err      error
	calls    int
}

func (m *stubMethod) Fetch(_ context.Context, _ Query) ([]model.Posting, error) {
	m.calls++
	return m.postings, m.err
}

func (m *stubMethod) Name() string { return m.name }

func posting(url, title string) model.Posting {
	return model.Posting{SourceURL: url, Title: title, DiscoveredAt: time.Now()}
}

func openGateway() *ratelimit.Gateway {
	return ratelimit.NewGateway(1000)
}

func TestAdapter_PrimaryOnlyWhenEnoughResults(t *testing.T) {
	primary := &stubMethod{name: "guest-endpoint", postings: []model.Posting{
		posting("u1", "a"), posting("u2", "b"), posting("u3", "c"),
	}}
	fallback := &stubMethod{name: "browser"}

	a := NewAdapter(openGateway(), primary, fallback)
	got := a.Search(context.Background(), Query{MaxResults: 6})

	assert.Len(t, got, 3)
	assert.Equal(t, 0, fallback.calls, "fallback must not run when primary delivered half the max")
	for _, p := range got {
		assert.Equal(t, "guest-endpoint", p.FetchMethod)
	}
}

func TestAdapter_FallbackOnThinResults(t *testing.T) {
	primary := &stubMethod{name: "guest-endpoint", postings: []model.Posting{posting("u1", "a")}}
	fallback := &stubMethod{name: "browser", postings: []model.Posting{
		posting("u2", "b"), posting("u3", "c"),
	}}

	a := NewAdapter(openGateway(), primary, fallback)
	got := a.Search(context.Background(), Query{MaxResults: 6})

	assert.Len(t, got, 3)
	assert.Equal(t, 1, fallback.calls)
	assert.Equal(t, "browser", got[1].FetchMethod)
}

func TestAdapter_DeduplicatesAcrossMethods(t *testing.T) {
	primary := &stubMethod{name: "guest-endpoint", postings: []model.Posting{posting("dup", "a")}}
	fallback := &stubMethod{name: "browser", postings: []model.Posting{
		posting("dup", "a again"), posting("u2", "b"),
	}}

	a := NewAdapter(openGateway(), primary, fallback)
	got := a.Search(context.Background(), Query{MaxResults: 10})

	assert.Len(t, got, 2)
	// First occurrence wins, including its method tag.
	assert.Equal(t, "a", got[0].Title)
	assert.Equal(t, "guest-endpoint", got[0].FetchMethod)
}

func TestAdapter_ErrorsNeverEscape(t *testing.T) {
	primary := &stubMethod{name: "guest-endpoint", err: errors.New("upstream exploded")}
	fallback := &stubMethod{name: "browser", err: errors.New("browser exploded")}

	a := NewAdapter(openGateway(), primary, fallback)
	got := a.Search(context.Background(), Query{MaxResults: 10})

	assert.Empty(t, got)
}

func TestAdapter_PartialResultsKeptOnError(t *testing.T) {
	primary := &stubMethod{
		name:     "guest-endpoint",
		postings: []model.Posting{posting("u1", "a")},
		err:      errors.New("pagination aborted"),
	}

	a := NewAdapter(openGateway(), primary)
	got := a.Search(context.Background(), Query{MaxResults: 10})

	assert.Len(t, got, 1)
}

func TestAdapter_GatewayDeniedSkipsMethod(t *testing.T) {
	primary := &stubMethod{name: "guest-endpoint", postings: []model.Posting{posting("u1", "a")}}

	g := ratelimit.NewGateway(1)
	g.Acquire() // exhaust the window

	a := NewAdapter(g, primary)
	got := a.Search(context.Background(), Query{MaxResults: 10})

	assert.Empty(t, got)
	assert.Equal(t, 0, primary.calls)
}

func TestAdapter_MaxResultsCap(t *testing.T) {
	many := make([]model.Posting, 0, 30)
	for i := 0; i < 30; i++ {
		many = append(many, posting(string(rune('a'+i)), "t"))
	}
	primary := &stubMethod{name: "guest-endpoint", postings: many}

	a := NewAdapter(openGateway(), primary)
	got := a.Search(context.Background(), Query{MaxResults: 10})

	assert.Len(t, got, 10)
}
