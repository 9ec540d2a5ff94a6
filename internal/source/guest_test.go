package source

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCard = `
<li>
  <div class="base-card base-search-card">
    <a class="base-card__full-link" href="https://www.example.com/jobs/view/python-developer-at-acme-3941020?refId=abc&trk=guest">link</a>
    <div class="base-search-card__info">
      <h3 class="base-search-card__title"> Python Developer </h3>
      <h4 class="base-search-card__subtitle"><a>Acme Corp</a></h4>
      <span class="job-search-card__location">Remote, Canada</span>
      <time class="job-search-card__listdate" datetime="2026-08-30">1 day ago</time>
    </div>
  </div>
</li>`

func searchPage(cards ...string) string {
	page := "<ul>"
	for _, c := range cards {
		page += c
	}
	return page + "</ul>"
}

func card(id int, title, company, location string) string {
	return fmt.Sprintf(`
<div class="base-search-card">
  <a class="base-card__full-link" href="https://www.example.com/jobs/view/%d?trk=x">l</a>
  <h3 class="base-search-card__title">%s</h3>
  <h4 class="base-search-card__subtitle">%s</h4>
  <span class="job-search-card__location">%s</span>
</div>`, id, title, company, location)
}

func TestParseSearchPage(t *testing.T) {
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	postings := parseSearchPage(searchPage(sampleCard), now)

	require.Len(t, postings, 1)
	p := postings[0]
	assert.Equal(t, "Python Developer", p.Title)
	assert.Equal(t, "Acme Corp", p.Company)
	assert.Equal(t, "Remote, Canada", p.Location)
	assert.Equal(t, "https://www.example.com/jobs/view/python-developer-at-acme-3941020", p.SourceURL)
	assert.Equal(t, "3941020", p.ExternalID)
	assert.Equal(t, now, p.DiscoveredAt)
	require.NotNil(t, p.PostedAt)
	assert.Equal(t, time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC), *p.PostedAt)
}

func TestParseSearchPage_SkipsIncompleteCards(t *testing.T) {
	page := searchPage(
		card(1, "Go Developer", "Acme", "Remote"),
		`<div class="base-search-card"><h3 class="base-search-card__title">No link</h3></div>`,
		card(2, "Backend Engineer", "Bmart", "Toronto"),
	)
	postings := parseSearchPage(page, time.Now())

	require.Len(t, postings, 2)
	assert.Equal(t, "Go Developer", postings[0].Title)
	assert.Equal(t, "Backend Engineer", postings[1].Title)
}

func TestParseSearchPage_Malformed(t *testing.T) {
	// html.Parse is lenient; garbage just yields zero cards.
	postings := parseSearchPage("<<<>not html at all", time.Now())
	assert.Empty(t, postings)
}

func TestNormalizeSourceURL(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"https://x.com/jobs/view/123?refId=a&trk=b", "https://x.com/jobs/view/123"},
		{"https://x.com/jobs/view/123#top", "https://x.com/jobs/view/123"},
		{"  https://x.com/jobs/view/123  ", "https://x.com/jobs/view/123"},
		{"", ""},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, normalizeSourceURL(c.in))
	}
}

func TestGuestFetcher_Pagination(t *testing.T) {
	var starts []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := r.URL.Query().Get("start")
		starts = append(starts, start)
		if start == "0" {
			page := searchPage(
				card(1, "Dev One", "A", "Remote"),
				card(2, "Dev Two", "B", "Remote"),
			)
			fmt.Fprint(w, page)
			return
		}
		fmt.Fprint(w, searchPage()) // empty second page ends pagination
	}))
	defer srv.Close()

	f := newTestFetcher(srv.URL)
	postings, err := f.Fetch(context.Background(), Query{
		Keywords: "developer", Location: "Remote", MaxResults: 10,
	})

	require.NoError(t, err)
	assert.Len(t, postings, 2)
	assert.Equal(t, []string{"0", "25"}, starts)
}

func TestGuestFetcher_RateLimitedThenRecovers(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		if r.URL.Query().Get("start") == "0" {
			fmt.Fprint(w, searchPage(card(1, "Dev", "A", "Remote")))
			return
		}
		fmt.Fprint(w, searchPage())
	}))
	defer srv.Close()

	f := newTestFetcher(srv.URL)
	postings, err := f.Fetch(context.Background(), Query{
		Keywords: "developer", Location: "Remote", MaxResults: 10,
	})

	require.NoError(t, err)
	assert.Len(t, postings, 1)
	assert.GreaterOrEqual(t, calls, 2)
}

func TestGuestFetcher_429RetriesBounded(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	f := newTestFetcher(srv.URL)
	postings, err := f.Fetch(context.Background(), Query{
		Keywords: "developer", Location: "Remote", MaxResults: 10,
	})

	assert.Error(t, err)
	assert.Empty(t, postings)
	assert.Equal(t, rateLimitRetries+1, calls)
}

func TestGuestFetcher_PartialResultsOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("start") == "0" {
			fmt.Fprint(w, searchPage(paginatedCards(guestPageSize)...))
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := newTestFetcher(srv.URL)
	postings, err := f.Fetch(context.Background(), Query{
		Keywords: "developer", Location: "Remote", MaxResults: 50,
	})

	// The first page survives the second page's failure.
	assert.Error(t, err)
	assert.Len(t, postings, guestPageSize)
}

func paginatedCards(n int) []string {
	cards := make([]string, n)
	for i := range cards {
		cards[i] = card(i+1, fmt.Sprintf("Dev %d", i+1), "A", "Remote")
	}
	return cards
}

// newTestFetcher points a GuestFetcher at a local test server by routing
// all requests through a rewriting transport, with sleeping disabled.
func newTestFetcher(target string) *GuestFetcher {
	f := NewGuestFetcher(5 * time.Second)
	f.sleep = func(time.Duration) {}
	f.client.Transport = rewriteTransport{target: target}
	return f
}

type rewriteTransport struct {
	target string
}

func (t rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	rewritten := t.target + "?" + req.URL.RawQuery
	next, err := http.NewRequestWithContext(req.Context(), req.Method, rewritten, nil)
	if err != nil {
		return nil, err
	}
	next.Header = req.Header
	return http.DefaultTransport.RoundTrip(next)
}
