package redis

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/alem-hub/arena-engine/internal/domain/boss"
	"github.com/alem-hub/arena-engine/internal/domain/shared"
)

// BossStandings implements boss.StandingsCache with one sorted set per
// battle: member = user ID, score = rank.
type BossStandings struct {
	cache *Cache
}

// NewBossStandings creates a new BossStandings.
func NewBossStandings(cache *Cache) *BossStandings {
	return &BossStandings{cache: cache}
}

// Put mirrors a committed rank. ZADD NX keeps the first rank written for a
// user, so a replayed event cannot move anyone.
func (s *BossStandings) Put(ctx context.Context, bossID, userID string, rank int) error {
	key := BossStandingsKey(bossID)

	pipe := s.cache.Client().Pipeline()
	pipe.ZAddNX(ctx, key, redis.Z{Score: float64(rank), Member: userID})
	pipe.Expire(ctx, key, TTLBossStandings)
	if _, err := pipe.Exec(ctx); err != nil {
		return shared.Unavailable("standings", "Put", err)
	}
	return nil
}

// Top returns up to limit standings by ascending rank.
func (s *BossStandings) Top(ctx context.Context, bossID string, limit int) ([]boss.Standing, error) {
	if limit <= 0 {
		return nil, nil
	}
	zs, err := s.cache.Client().ZRangeWithScores(ctx, BossStandingsKey(bossID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, shared.Unavailable("standings", "Top", err)
	}

	out := make([]boss.Standing, 0, len(zs))
	for _, z := range zs {
		member, _ := z.Member.(string)
		out = append(out, boss.Standing{UserID: member, Rank: int(z.Score)})
	}
	return out, nil
}

// Rebuild replaces the set from store data.
func (s *BossStandings) Rebuild(ctx context.Context, bossID string, solves []*boss.Solve) error {
	key := BossStandingsKey(bossID)

	pipe := s.cache.Client().TxPipeline()
	pipe.Del(ctx, key)
	if len(solves) > 0 {
		members := make([]redis.Z, 0, len(solves))
		for _, sv := range solves {
			members = append(members, redis.Z{Score: float64(sv.Rank), Member: sv.UserID})
		}
		pipe.ZAdd(ctx, key, members...)
		pipe.Expire(ctx, key, TTLBossStandings)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return shared.Unavailable("standings", "Rebuild", err)
	}
	return nil
}

var _ boss.StandingsCache = (*BossStandings)(nil)
