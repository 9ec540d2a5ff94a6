package source

import (
	"context"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"jobsprint/discovery-engine/internal/model"
)

const (
	guestBaseURL  = "https://www.linkedin.com/jobs-guest/jobs/api/seeMoreJobPostings/search"
	guestPageSize = 25
	guestMaxStart = 200 // hard pagination bound per query

	rateLimitRetries = 3
)

var jobViewRe = regexp.MustCompile(`jobs/view/[^/]*?(\d+)`)

// GuestFetcher is the primary fetch method: the board's public guest
// search endpoint, parsed by DOM traversal. No authentication.
type GuestFetcher struct {
	client    *http.Client
	userAgent string
	now       func() time.Time
	// sleep is swappable so tests don't wait out the 429 backoff.
	sleep func(time.Duration)
}

// NewGuestFetcher constructs a fetcher with a shared HTTP client and the
// given per-request timeout.
func NewGuestFetcher(timeout time.Duration) *GuestFetcher {
	return &GuestFetcher{
		client: &http.Client{Timeout: timeout},
		userAgent: "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 " +
			"(KHTML, like Gecko) Chrome/120.0 Safari/537.36",
		now:   time.Now,
		sleep: time.Sleep,
	}
}

// Name implements FetchMethod.
func (f *GuestFetcher) Name() string { return "guest-endpoint" }

// Fetch pages through the guest endpoint until the requested count is
// reached, the offset bound is hit, or a page comes back empty.
//
// Partial results are a success: any non-429 upstream error aborts
// pagination and returns whatever was already collected.
func (f *GuestFetcher) Fetch(ctx context.Context, q Query) ([]model.Posting, error) {
	var postings []model.Posting

	for start := 0; start < guestMaxStart && len(postings) < q.MaxResults; start += guestPageSize {
		batch, err := f.fetchPage(ctx, q, start)
		if err != nil {
			return postings, fmt.Errorf("offset %d: %w", start, err)
		}
		if len(batch) == 0 {
			break // no more results
		}
		postings = append(postings, batch...)
	}

	if len(postings) > q.MaxResults {
		postings = postings[:q.MaxResults]
	}
	return postings, nil
}

// fetchPage requests one page, retrying a bounded number of times with
// jitter when the upstream answers 429.
func (f *GuestFetcher) fetchPage(ctx context.Context, q Query, start int) ([]model.Posting, error) {
	params := url.Values{}
	params.Set("keywords", q.Keywords)
	params.Set("location", q.Location)
	params.Set("start", strconv.Itoa(start))
	params.Set("count", strconv.Itoa(guestPageSize))
	params.Set("f_TPR", fmt.Sprintf("r%d", q.Recency.Seconds()))
	params.Set("f_WT", strconv.Itoa(int(q.WorkMode)))

	reqURL := guestBaseURL + "?" + params.Encode()

	for attempt := 0; ; attempt++ {
		body, status, err := f.get(ctx, reqURL)
		if err != nil {
			return nil, err
		}

		if status == http.StatusTooManyRequests {
			if attempt >= rateLimitRetries {
				return nil, fmt.Errorf("upstream kept returning 429 after %d retries", rateLimitRetries)
			}
			delay := time.Duration(2000+rand.Intn(3000)) * time.Millisecond
			log.Printf("[source] Upstream 429 at offset %d — backing off %v (attempt %d/%d)",
				start, delay, attempt+1, rateLimitRetries)
			f.sleep(delay)
			continue
		}

		if status != http.StatusOK {
			return nil, fmt.Errorf("upstream returned %d", status)
		}

		return parseSearchPage(body, f.now()), nil
	}
}

func (f *GuestFetcher) get(ctx context.Context, reqURL string) (string, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", 0, err
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("http GET: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", resp.StatusCode, fmt.Errorf("read body: %w", err)
	}
	return string(body), resp.StatusCode, nil
}

// parseSearchPage extracts postings from one page of guest-endpoint HTML.
// Cards that cannot be parsed are skipped, never fatal.
func parseSearchPage(body string, discoveredAt time.Time) []model.Posting {
	root, err := parseHTML(body)
	if err != nil {
		log.Printf("[source] Malformed search page: %v", err)
		return nil
	}

	cards := findAll(root, withClass("base-search-card"))
	postings := make([]model.Posting, 0, len(cards))

	for _, card := range cards {
		p := parseCard(card, discoveredAt)
		if p.Title == "" || p.SourceURL == "" {
			continue
		}
		postings = append(postings, p)
	}
	return postings
}

func parseCard(card *htmlNode, discoveredAt time.Time) model.Posting {
	p := model.Posting{DiscoveredAt: discoveredAt}

	if n := findFirst(card, withClass("base-search-card__title")); n != nil {
		p.Title = strings.TrimSpace(textContent(n))
	}
	if n := findFirst(card, withClass("base-search-card__subtitle")); n != nil {
		p.Company = strings.TrimSpace(textContent(n))
	}
	if n := findFirst(card, withClass("job-search-card__location")); n != nil {
		p.Location = strings.TrimSpace(textContent(n))
	}
	if n := findFirst(card, withClass("base-card__full-link")); n != nil {
		p.SourceURL = normalizeSourceURL(attr(n, "href"))
	}
	if n := findFirst(card, withTag("time")); n != nil {
		if ts := parsePostedAt(attr(n, "datetime")); ts != nil {
			p.PostedAt = ts
		}
	}

	if m := jobViewRe.FindStringSubmatch(p.SourceURL); m != nil {
		p.ExternalID = m[1]
	}
	return p
}

// normalizeSourceURL strips tracking query parameters so the same posting
// always deduplicates to one URL.
func normalizeSourceURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}

func parsePostedAt(value string) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if ts, err := time.Parse(layout, value); err == nil {
			return &ts
		}
	}
	return nil
}
