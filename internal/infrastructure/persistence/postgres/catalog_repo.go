package postgres

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/jackc/pgx/v5"

	"github.com/alem-hub/arena-engine/internal/domain/problem"
	"github.com/alem-hub/arena-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROBLEM CATALOG (READ-ONLY)
// ══════════════════════════════════════════════════════════════════════════════

// CatalogConfig tunes the catalog reader.
type CatalogConfig struct {
	// RecentSolves is how many of the latest solves form the recent rating.
	RecentSolves int

	// CandidateLimit caps rows returned by Candidates.
	CandidateLimit int

	// RatingCacheSize and RatingCacheTTL bound the per-user rating cache.
	RatingCacheSize int
	RatingCacheTTL  time.Duration
}

// DefaultCatalogConfig returns the defaults used by the worker and tests.
func DefaultCatalogConfig() CatalogConfig {
	return CatalogConfig{
		RecentSolves:    10,
		CandidateLimit:  200,
		RatingCacheSize: 4096,
		RatingCacheTTL:  10 * time.Minute,
	}
}

// CatalogRepository implements problem.Catalog and problem.Oracle over the
// tables filled by the platform scraper.
type CatalogRepository struct {
	conn   *Connection
	config CatalogConfig
	now    func() time.Time

	ratings *lru.Cache
}

type cachedRating struct {
	rating   shared.Rating
	storedAt time.Time
}

// NewCatalogRepository creates a new CatalogRepository.
func NewCatalogRepository(conn *Connection, cfg CatalogConfig) (*CatalogRepository, error) {
	if cfg.RecentSolves <= 0 {
		cfg.RecentSolves = DefaultCatalogConfig().RecentSolves
	}
	if cfg.CandidateLimit <= 0 {
		cfg.CandidateLimit = DefaultCatalogConfig().CandidateLimit
	}
	if cfg.RatingCacheSize <= 0 {
		cfg.RatingCacheSize = DefaultCatalogConfig().RatingCacheSize
	}
	cache, err := lru.New(cfg.RatingCacheSize)
	if err != nil {
		return nil, err
	}
	return &CatalogRepository{conn: conn, config: cfg, now: time.Now, ratings: cache}, nil
}

// RecentRating averages the ratings of the user's latest solved problems.
func (r *CatalogRepository) RecentRating(ctx context.Context, userID string) (shared.Rating, error) {
	if v, ok := r.ratings.Get(userID); ok {
		c := v.(cachedRating)
		if r.config.RatingCacheTTL <= 0 || r.now().Sub(c.storedAt) < r.config.RatingCacheTTL {
			return c.rating, nil
		}
		r.ratings.Remove(userID)
	}

	query := `
		SELECT COUNT(*), COALESCE(ROUND(AVG(rating)), 0)::int
		FROM (
			SELECT p.rating
			FROM user_solves s
			JOIN problems p ON p.ref = s.problem_ref
			WHERE s.user_id = $1
			ORDER BY s.accepted_at DESC
			LIMIT $2
		) recent
	`
	var count, avg int
	if err := r.conn.QueryRow(ctx, query, userID, r.config.RecentSolves).Scan(&count, &avg); err != nil {
		return 0, storeErr("catalog", "RecentRating", err)
	}

	rating := problem.DefaultRating
	if count > 0 {
		rating = shared.Rating(avg)
	}
	r.ratings.Add(userID, cachedRating{rating: rating, storedAt: r.now()})
	return rating, nil
}

// Candidates returns problems in the rating range, ordered by rating then ref.
func (r *CatalogRepository) Candidates(ctx context.Context, f problem.Filter) ([]problem.Problem, error) {
	excluded := f.ExcludeSolvedBy
	if excluded == nil {
		excluded = []string{}
	}
	query := `
		SELECT ref, name, rating, tags
		FROM problems p
		WHERE p.rating BETWEEN $1 AND $2
		  AND ($3 = '' OR $3 = ANY(p.tags))
		  AND NOT EXISTS (
			SELECT 1 FROM user_solves s
			WHERE s.problem_ref = p.ref AND s.user_id = ANY($4)
		  )
		ORDER BY p.rating, p.ref
		LIMIT $5
	`
	rows, err := r.conn.Query(ctx, query, int(f.MinRating), int(f.MaxRating), f.Tag, excluded, r.config.CandidateLimit)
	if err != nil {
		return nil, storeErr("catalog", "Candidates", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (problem.Problem, error) {
		var (
			p      problem.Problem
			rating int
		)
		err := row.Scan(&p.Ref, &p.Name, &rating, &p.Tags)
		p.Rating = shared.Rating(rating)
		return p, err
	})
	if err != nil {
		return nil, storeErr("catalog", "Candidates", err)
	}
	return out, nil
}

// Accepted returns the earliest accepted submission at or after since.
func (r *CatalogRepository) Accepted(ctx context.Context, userID, ref string, since time.Time) (problem.Verdict, error) {
	query := `
		SELECT submission_id, accepted_at
		FROM user_solves
		WHERE user_id = $1 AND problem_ref = $2 AND accepted_at >= $3
		ORDER BY accepted_at, submission_id
		LIMIT 1
	`
	var v problem.Verdict
	err := r.conn.QueryRow(ctx, query, userID, ref, since).Scan(&v.SubmissionID, &v.AcceptedAt)
	if err != nil {
		if IsNoRows(err) {
			return problem.Verdict{}, nil
		}
		return problem.Verdict{}, storeErr("oracle", "Accepted", err)
	}
	v.Accepted = true
	return v, nil
}

