package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"jobsprint/discovery-engine/internal/model"
)

// Postgres implements RecordStore on a pgx connection pool. Row-level
// constraints (unique source_url, unique (user_id, posting_id)) provide
// the atomicity the dedup layer relies on.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wraps an existing pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// EnsureSchema creates the engine's tables and indexes if missing.
// Idempotent; called once at startup.
func (s *Postgres) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id                TEXT PRIMARY KEY,
			email             TEXT UNIQUE NOT NULL,
			name              TEXT NOT NULL,
			is_active         BOOLEAN NOT NULL DEFAULT TRUE,
			is_admin          BOOLEAN NOT NULL DEFAULT FALSE,
			subscription_tier TEXT NOT NULL DEFAULT 'free',
			created_at        TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS search_criteria (
			user_id              TEXT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
			keywords             TEXT[] NOT NULL DEFAULT '{}',
			exclude_keywords     TEXT[] NOT NULL DEFAULT '{}',
			locations            TEXT[] NOT NULL DEFAULT '{}',
			salary_floor         INTEGER NOT NULL DEFAULT 0,
			salary_ceiling       INTEGER NOT NULL DEFAULT 0,
			recency_seconds      INTEGER NOT NULL DEFAULT 3600,
			work_mode            TEXT NOT NULL DEFAULT 'remote',
			quality_threshold    INTEGER NOT NULL DEFAULT 65,
			frequency_minutes    INTEGER NOT NULL DEFAULT 15,
			ultra_recent_mode    BOOLEAN NOT NULL DEFAULT FALSE,
			first_applicant_mode BOOLEAN NOT NULL DEFAULT FALSE
		)`,
		`CREATE TABLE IF NOT EXISTS postings (
			id            TEXT PRIMARY KEY,
			external_id   TEXT,
			title         TEXT NOT NULL,
			company       TEXT NOT NULL DEFAULT '',
			location      TEXT NOT NULL DEFAULT '',
			salary_min    INTEGER,
			salary_max    INTEGER,
			source_url    TEXT UNIQUE NOT NULL,
			description   TEXT NOT NULL DEFAULT '',
			fetch_method  TEXT NOT NULL DEFAULT '',
			posted_at     TIMESTAMPTZ,
			discovered_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS user_postings (
			id          TEXT PRIMARY KEY,
			user_id     TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			posting_id  TEXT NOT NULL REFERENCES postings(id) ON DELETE CASCADE,
			match_score INTEGER NOT NULL DEFAULT 0,
			is_notified BOOLEAN NOT NULL DEFAULT FALSE,
			is_applied  BOOLEAN NOT NULL DEFAULT FALSE,
			is_saved    BOOLEAN NOT NULL DEFAULT FALSE,
			is_hidden   BOOLEAN NOT NULL DEFAULT FALSE,
			notified_at TIMESTAMPTZ,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (user_id, posting_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_user_postings_user ON user_postings(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_user_postings_notified ON user_postings(user_id, is_notified)`,
	}

	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// GetActiveUsersWithCriteria implements RecordStore.
func (s *Postgres) GetActiveUsersWithCriteria(ctx context.Context) ([]ActiveUser, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT u.id, u.email, u.name, u.is_active, u.is_admin, u.subscription_tier, u.created_at,
		        COALESCE(c.keywords, '{}'), COALESCE(c.exclude_keywords, '{}'),
		        COALESCE(c.locations, '{}'),
		        COALESCE(c.salary_floor, 0), COALESCE(c.salary_ceiling, 0),
		        COALESCE(c.recency_seconds, 3600), COALESCE(c.work_mode, 'remote'),
		        COALESCE(c.quality_threshold, 65), COALESCE(c.frequency_minutes, 15),
		        COALESCE(c.ultra_recent_mode, FALSE), COALESCE(c.first_applicant_mode, FALSE)
		 FROM users u
		 LEFT JOIN search_criteria c ON c.user_id = u.id
		 WHERE u.is_active = TRUE
		 ORDER BY u.created_at`,
	)
	if err != nil {
		return nil, fmt.Errorf("query active users: %w", err)
	}
	defer rows.Close()

	var out []ActiveUser
	for rows.Next() {
		var (
			au             ActiveUser
			recencySeconds int
			workMode       string
		)
		if err := rows.Scan(
			&au.User.ID, &au.User.Email, &au.User.Name, &au.User.IsActive,
			&au.User.IsAdmin, &au.User.SubscriptionTier, &au.User.CreatedAt,
			&au.Criteria.Keywords, &au.Criteria.ExcludeKeywords, &au.Criteria.Locations,
			&au.Criteria.SalaryFloor, &au.Criteria.SalaryCeiling,
			&recencySeconds, &workMode,
			&au.Criteria.QualityThreshold, &au.Criteria.FrequencyMinutes,
			&au.Criteria.UltraRecentMode, &au.Criteria.FirstApplicantMode,
		); err != nil {
			return nil, fmt.Errorf("scan active user: %w", err)
		}
		au.Criteria.UserID = au.User.ID
		au.Criteria.Recency = model.ParseRecencyWindow(recencySeconds)
		au.Criteria.WorkMode = model.ParseWorkMode(workMode)
		out = append(out, au)
	}
	return out, rows.Err()
}

// ExistsLink implements RecordStore.
func (s *Postgres) ExistsLink(ctx context.Context, userID, sourceURL string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM user_postings up
		   JOIN postings p ON p.id = up.posting_id
		   WHERE up.user_id = $1 AND p.source_url = $2
		 )`,
		userID, sourceURL,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("exists link: %w", err)
	}
	return exists, nil
}

// UpsertPosting implements RecordStore. On a source_url conflict the
// existing row wins and its id is returned, so concurrent cycles of
// different users converge on one Posting row.
func (s *Postgres) UpsertPosting(ctx context.Context, p model.Posting) (string, error) {
	id := p.ID
	if id == "" {
		id = uuid.New().String()
	}
	discoveredAt := p.DiscoveredAt
	if discoveredAt.IsZero() {
		discoveredAt = time.Now()
	}

	var postingID string
	err := s.pool.QueryRow(ctx,
		`INSERT INTO postings
		   (id, external_id, title, company, location, salary_min, salary_max,
		    source_url, description, fetch_method, posted_at, discovered_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (source_url) DO UPDATE SET source_url = EXCLUDED.source_url
		 RETURNING id`,
		id, p.ExternalID, p.Title, p.Company, p.Location, p.SalaryMin, p.SalaryMax,
		p.SourceURL, p.Description, p.FetchMethod, p.PostedAt, discoveredAt,
	).Scan(&postingID)
	if err != nil {
		return "", fmt.Errorf("upsert posting %q: %w", p.SourceURL, err)
	}
	return postingID, nil
}

// CreateLink implements RecordStore.
func (s *Postgres) CreateLink(ctx context.Context, userID, postingID string, matchScore int) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO user_postings (id, user_id, posting_id, match_score)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id, posting_id) DO NOTHING`,
		uuid.New().String(), userID, postingID, matchScore,
	)
	if err != nil {
		return false, fmt.Errorf("create link %s -> %s: %w", userID, postingID, err)
	}
	return tag.RowsAffected() > 0, nil
}

// GetUnnotified implements RecordStore.
func (s *Postgres) GetUnnotified(ctx context.Context, userID string) ([]DigestItem, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT p.id, p.external_id, p.title, p.company, p.location,
		        p.salary_min, p.salary_max, p.source_url, p.description,
		        p.fetch_method, p.posted_at, p.discovered_at, up.match_score
		 FROM user_postings up
		 JOIN postings p ON p.id = up.posting_id
		 WHERE up.user_id = $1 AND up.is_notified = FALSE AND up.is_hidden = FALSE
		 ORDER BY up.created_at`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query unnotified for %s: %w", userID, err)
	}
	defer rows.Close()

	var items []DigestItem
	for rows.Next() {
		var it DigestItem
		if err := rows.Scan(
			&it.Posting.ID, &it.Posting.ExternalID, &it.Posting.Title,
			&it.Posting.Company, &it.Posting.Location,
			&it.Posting.SalaryMin, &it.Posting.SalaryMax,
			&it.Posting.SourceURL, &it.Posting.Description,
			&it.Posting.FetchMethod, &it.Posting.PostedAt, &it.Posting.DiscoveredAt,
			&it.MatchScore,
		); err != nil {
			return nil, fmt.Errorf("scan unnotified row: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// MarkNotified implements RecordStore.
func (s *Postgres) MarkNotified(ctx context.Context, userID string, postingIDs []string) error {
	if len(postingIDs) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx,
		`UPDATE user_postings
		 SET is_notified = TRUE, notified_at = now()
		 WHERE user_id = $1 AND posting_id = ANY($2) AND is_notified = FALSE`,
		userID, postingIDs,
	)
	if err != nil {
		return fmt.Errorf("mark notified for %s: %w", userID, err)
	}
	return nil
}

var _ RecordStore = (*Postgres)(nil)
