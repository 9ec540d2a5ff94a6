package source

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"

	"jobsprint/discovery-engine/internal/model"
)

const browserSearchURL = "https://www.linkedin.com/jobs/search"

// BrowserFetcher is the fallback fetch method: render the public search
// page in headless Chromium and extract the same card fields the guest
// endpoint serves. Much heavier than GuestFetcher, so it only runs when
// the primary under-delivers.
type BrowserFetcher struct {
	timeout time.Duration
	now     func() time.Time
}

// NewBrowserFetcher constructs a fetcher with the given navigation timeout.
func NewBrowserFetcher(timeout time.Duration) *BrowserFetcher {
	return &BrowserFetcher{timeout: timeout, now: time.Now}
}

// Name implements FetchMethod.
func (f *BrowserFetcher) Name() string { return "browser" }

// Fetch launches a browser, loads the search page, scrolls a few times to
// trigger lazy loading, and extracts the job cards.
func (f *BrowserFetcher) Fetch(ctx context.Context, q Query) ([]model.Posting, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("playwright.Run: %w", err)
	}
	defer pw.Stop()

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(true),
		Args:     []string{"--no-sandbox", "--disable-blink-features=AutomationControlled"},
	})
	if err != nil {
		return nil, fmt.Errorf("chromium launch: %w", err)
	}
	defer browser.Close()

	page, err := browser.NewPage()
	if err != nil {
		return nil, fmt.Errorf("new page: %w", err)
	}

	params := url.Values{}
	params.Set("keywords", q.Keywords)
	params.Set("location", q.Location)
	params.Set("f_TPR", fmt.Sprintf("r%d", q.Recency.Seconds()))
	params.Set("f_WT", strconv.Itoa(int(q.WorkMode)))

	if _, err := page.Goto(browserSearchURL+"?"+params.Encode(), playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(float64(f.timeout.Milliseconds())),
	}); err != nil {
		return nil, fmt.Errorf("goto search page: %w", err)
	}

	// Scroll to force lazy-loaded cards in before extraction.
	for i := 0; i < 3; i++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if _, err := page.Evaluate("window.scrollTo(0, document.body.scrollHeight)"); err != nil {
			break
		}
		page.WaitForTimeout(1500)
	}

	cards, err := page.Locator("div.base-search-card, [data-entity-urn*=\"jobPosting\"]").All()
	if err != nil {
		return nil, fmt.Errorf("locate job cards: %w", err)
	}

	postings := make([]model.Posting, 0, len(cards))
	for _, card := range cards {
		if len(postings) >= q.MaxResults {
			break
		}
		p, ok := f.extractCard(card)
		if !ok {
			continue
		}
		postings = append(postings, p)
	}
	return postings, nil
}

func (f *BrowserFetcher) extractCard(card playwright.Locator) (model.Posting, bool) {
	p := model.Posting{DiscoveredAt: f.now()}

	titleEl := card.Locator("h3 a, .base-search-card__title").First()
	title, _ := titleEl.TextContent(playwright.LocatorTextContentOptions{
		Timeout: playwright.Float(500),
	})
	p.Title = strings.TrimSpace(title)

	href, _ := card.Locator("a.base-card__full-link, h3 a").First().
		GetAttribute("href", playwright.LocatorGetAttributeOptions{
			Timeout: playwright.Float(500),
		})
	p.SourceURL = normalizeSourceURL(href)

	if p.Title == "" || p.SourceURL == "" {
		return model.Posting{}, false
	}

	company, _ := card.Locator("h4, .base-search-card__subtitle").First().
		TextContent(playwright.LocatorTextContentOptions{
			Timeout: playwright.Float(500),
		})
	p.Company = strings.TrimSpace(company)

	location, _ := card.Locator(".job-search-card__location").First().
		TextContent(playwright.LocatorTextContentOptions{
			Timeout: playwright.Float(500),
		})
	p.Location = strings.TrimSpace(location)

	if datetime, _ := card.Locator("time").First().
		GetAttribute("datetime", playwright.LocatorGetAttributeOptions{
			Timeout: playwright.Float(500),
		}); datetime != "" {
		p.PostedAt = parsePostedAt(datetime)
	}

	if m := jobViewRe.FindStringSubmatch(p.SourceURL); m != nil {
		p.ExternalID = m[1]
	}
	return p, true
}
