// Package scheduler owns the lifecycle of recurring per-user search
// cycles: one cron-driven poll loop, an in-memory schedule table, and a
// bounded worker pool running the fetch→score→dedup→notify pipeline.
package scheduler

import (
	"context"
	"fmt"
	"hash/fnv"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"jobsprint/discovery-engine/internal/config"
	"jobsprint/discovery-engine/internal/dedup"
	"jobsprint/discovery-engine/internal/model"
	"jobsprint/discovery-engine/internal/score"
	"jobsprint/discovery-engine/internal/source"
	"jobsprint/discovery-engine/internal/store"
)

const (
	// cycleTimeout bounds one full user cycle so a stalled upstream call
	// cannot starve the worker pool.
	cycleTimeout = 4 * time.Minute

	// Store-outage backoff for the poll loop itself.
	storeBackoffBase = time.Minute
	storeBackoffMax  = 10 * time.Minute
)

// Searcher executes one upstream query. Satisfied by *source.Adapter.
type Searcher interface {
	Search(ctx context.Context, q source.Query) []model.Posting
}

// DigestSender sends the user's pending digest. Satisfied by
// *notify.Dispatcher.
type DigestSender interface {
	Dispatch(ctx context.Context, user model.User) (int, error)
}

// UserStatus is one row of the coordinator's status report.
type UserStatus struct {
	UserID    string     `json:"userId"`
	Email     string     `json:"email"`
	LastRunAt *time.Time `json:"lastRunAt,omitempty"`
	NextRunAt *time.Time `json:"nextRunAt,omitempty"`
}

// Status is the coordinator's operational snapshot.
type Status struct {
	Running bool         `json:"running"`
	Users   []UserStatus `json:"users"`
}

// Coordinator maintains the staggered per-user schedule and supervises
// cycle execution. One instance per process.
type Coordinator struct {
	store      store.RecordStore
	searcher   Searcher
	engine     *score.Engine
	deduper    *dedup.Deduper
	dispatcher DigestSender
	cfg        config.Engine

	cron *cron.Cron
	now  func() time.Time
	sem  chan struct{} // caps simultaneous in-flight cycles
	wg   sync.WaitGroup

	mu            sync.Mutex
	running       bool
	nextFire      map[string]time.Time // userID -> next due time
	lastRun       map[string]time.Time
	lastEmail     map[string]string
	storeFailures int
	pausedUntil   time.Time
}

// New builds a Coordinator.
func New(
	recordStore store.RecordStore,
	searcher Searcher,
	engine *score.Engine,
	deduper *dedup.Deduper,
	dispatcher DigestSender,
	cfg config.Engine,
) *Coordinator {
	return &Coordinator{
		store:      recordStore,
		searcher:   searcher,
		engine:     engine,
		deduper:    deduper,
		dispatcher: dispatcher,
		cfg:        cfg,
		cron:       cron.New(),
		now:        time.Now,
		sem:        make(chan struct{}, cfg.WorkerPoolSize),
		nextFire:   make(map[string]time.Time),
		lastRun:    make(map[string]time.Time),
		lastEmail:  make(map[string]string),
	}
}

// Start registers the poll job and starts the cron loop. The first poll
// runs immediately so fresh deployments do not idle until the first tick.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("coordinator already running")
	}
	c.running = true
	c.mu.Unlock()

	spec := fmt.Sprintf("@every %ds", c.cfg.TickSeconds)
	if _, err := c.cron.AddFunc(spec, func() { c.poll(ctx) }); err != nil {
		return fmt.Errorf("cron.AddFunc: %w", err)
	}

	c.cron.Start()
	log.Printf("[scheduler] Coordinator started — tick %s, pool %d", spec, c.cfg.WorkerPoolSize)

	go c.poll(ctx)
	return nil
}

// Stop cancels the poll loop and waits for in-flight cycles to finish;
// it never interrupts a cycle that already started.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()

	c.cron.Stop()
	c.wg.Wait()
	log.Println("[scheduler] Coordinator stopped")
}

// poll is one tick: reload active users, fire the cycles that are due.
func (c *Coordinator) poll(ctx context.Context) {
	c.mu.Lock()
	if !c.running || c.now().Before(c.pausedUntil) {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	users, err := c.store.GetActiveUsersWithCriteria(ctx)
	if err != nil {
		c.backOffStore(err)
		return
	}
	c.resetStoreBackoff()

	now := c.now()
	active := make(map[string]bool, len(users))

	for _, au := range users {
		active[au.User.ID] = true

		if !au.Criteria.Valid() {
			log.Printf("[scheduler] User %s has no usable criteria (needs ≥1 keyword and ≥1 location) — skipping", au.User.Email)
			continue
		}

		if !c.claimDue(au, now) {
			continue
		}

		c.wg.Add(1)
		go func(au store.ActiveUser) {
			defer c.wg.Done()
			c.sem <- struct{}{}
			defer func() { <-c.sem }()
			c.runCycle(ctx, au)
		}(au)
	}

	// Drop schedule entries of users deactivated since the last poll.
	c.mu.Lock()
	for id := range c.nextFire {
		if !active[id] {
			delete(c.nextFire, id)
		}
	}
	c.mu.Unlock()
}

// claimDue checks the schedule table and, when the user is due, advances
// their next-fire time so concurrent polls cannot double-fire a cycle.
func (c *Coordinator) claimDue(au store.ActiveUser, now time.Time) bool {
	freq := time.Duration(au.Criteria.FrequencyMinutes) * time.Minute
	if freq <= 0 {
		freq = 15 * time.Minute
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.lastEmail[au.User.ID] = au.User.Email

	next, known := c.nextFire[au.User.ID]
	if !known {
		// First sighting: stagger so many users do not fire on one tick.
		c.nextFire[au.User.ID] = now.Add(staggerOffset(au.User.ID, au.Criteria.FrequencyMinutes))
		return false
	}
	if now.Before(next) {
		return false
	}

	c.nextFire[au.User.ID] = now.Add(freq)
	return true
}

// staggerOffset derives a stable per-user delay within the user's
// frequency window.
func staggerOffset(userID string, frequencyMinutes int) time.Duration {
	if frequencyMinutes < 1 {
		frequencyMinutes = 1
	}
	h := fnv.New32a()
	h.Write([]byte(userID))
	return time.Duration(h.Sum32()%uint32(frequencyMinutes)) * time.Minute
}

// runCycle executes the full pipeline for one user. Never returns an
// error: every failure mode inside a cycle is contained here so one
// user's trouble cannot touch another's schedule.
func (c *Coordinator) runCycle(parent context.Context, au store.ActiveUser) {
	ctx, cancel := context.WithTimeout(parent, cycleTimeout)
	defer cancel()

	user, criteria := au.User, au.Criteria
	log.Printf("[scheduler] Cycle start for %s: keywords=%v locations=%v threshold=%d",
		user.Email, criteria.Keywords, criteria.Locations, criteria.QualityThreshold)

	merged := c.fetchAll(ctx, criteria)

	matches := c.engine.Apply(merged, criteria, c.now())
	log.Printf("[scheduler] %s: %d fetched, %d passed filters", user.Email, len(merged), len(matches))

	netNew := c.deduper.Persist(ctx, user.ID, matches)
	if len(netNew) > 0 {
		log.Printf("[scheduler] %s: %d net-new posting(s)", user.Email, len(netNew))
	}

	if _, err := c.dispatcher.Dispatch(ctx, user); err != nil {
		log.Printf("[scheduler] Digest dispatch failed for %s: %v — postings stay queued", user.Email, err)
	}

	c.mu.Lock()
	c.lastRun[user.ID] = c.now()
	c.mu.Unlock()
}

// fetchAll runs the bounded (keyword × location) grid through the source
// adapter and merges results, deduplicating by source URL across pairs.
func (c *Coordinator) fetchAll(ctx context.Context, criteria model.SearchCriteria) []model.Posting {
	keywords := criteria.Keywords
	if len(keywords) > c.cfg.MaxKeywordsPerRun {
		keywords = keywords[:c.cfg.MaxKeywordsPerRun]
	}
	locations := criteria.Locations
	if len(locations) > c.cfg.MaxLocationsPerRun {
		locations = locations[:c.cfg.MaxLocationsPerRun]
	}

	var merged []model.Posting
	seen := make(map[string]bool)

	for _, kw := range keywords {
		for _, loc := range locations {
			if ctx.Err() != nil {
				return merged
			}
			batch := c.searcher.Search(ctx, source.Query{
				Keywords:   kw,
				Location:   loc,
				MaxResults: c.cfg.MaxResultsPerQuery,
				Recency:    criteria.EffectiveRecency(),
				WorkMode:   criteria.WorkMode,
			})
			for _, p := range batch {
				if seen[p.SourceURL] {
					continue
				}
				seen[p.SourceURL] = true
				merged = append(merged, p)
			}
		}
	}
	return merged
}

// RunCycleNow runs one cycle for the given user immediately, bypassing
// the schedule but not the pipeline or the rate gateway. Admin
// diagnostics only.
func (c *Coordinator) RunCycleNow(ctx context.Context, userID string) error {
	users, err := c.store.GetActiveUsersWithCriteria(ctx)
	if err != nil {
		return fmt.Errorf("load users: %w", err)
	}
	for _, au := range users {
		if au.User.ID != userID {
			continue
		}
		if !au.Criteria.Valid() {
			return fmt.Errorf("user %s has no usable criteria", userID)
		}
		c.sem <- struct{}{}
		defer func() { <-c.sem }()
		c.runCycle(ctx, au)
		return nil
	}
	return fmt.Errorf("no active user %s", userID)
}

// Status reports the coordinator state for the operational surface.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Status{Running: c.running, Users: make([]UserStatus, 0, len(c.nextFire))}
	for id, next := range c.nextFire {
		us := UserStatus{UserID: id, Email: c.lastEmail[id]}
		n := next
		us.NextRunAt = &n
		if last, ok := c.lastRun[id]; ok {
			l := last
			us.LastRunAt = &l
		}
		st.Users = append(st.Users, us)
	}
	return st
}

// backOffStore stretches the effective tick while the record store is
// unreachable; the coordinator keeps retrying rather than terminating.
func (c *Coordinator) backOffStore(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.storeFailures++
	backoff := storeBackoffMax
	if shift := c.storeFailures - 1; shift < 4 {
		backoff = storeBackoffBase << shift
	}
	c.pausedUntil = c.now().Add(backoff)
	log.Printf("[scheduler] Record store unavailable (failure #%d): %v — backing off %v",
		c.storeFailures, err, backoff)
}

func (c *Coordinator) resetStoreBackoff() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.storeFailures > 0 {
		log.Printf("[scheduler] Record store recovered after %d failure(s)", c.storeFailures)
	}
	c.storeFailures = 0
	c.pausedUntil = time.Time{}
}
