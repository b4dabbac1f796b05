package redis

import (
	"context"
	"errors"
	"time"

	"github.com/alem-hub/arena-engine/internal/domain/quest"
)

// CachedQuestRepository is a read-through cache in front of quest.Repository.
// Quest definitions are reference data published once per week, so a short
// TTL is the only invalidation.
type CachedQuestRepository struct {
	next  quest.Repository
	cache *Cache
	ttl   time.Duration
}

// NewCachedQuestRepository wraps next.
func NewCachedQuestRepository(next quest.Repository, cache *Cache, ttl time.Duration) *CachedQuestRepository {
	if ttl <= 0 {
		ttl = TTLWeeklyQuests
	}
	return &CachedQuestRepository{next: next, cache: cache, ttl: ttl}
}

// GetByID always reads through: it is used on write paths.
func (r *CachedQuestRepository) GetByID(ctx context.Context, id string) (*quest.Quest, error) {
	return r.next.GetByID(ctx, id)
}

// ListByWeek serves from Redis when possible. Cache failures fall back to the store.
func (r *CachedQuestRepository) ListByWeek(ctx context.Context, weekStart time.Time) ([]*quest.Quest, error) {
	key := WeeklyQuestsKey(weekStart)

	var cached []*quest.Quest
	err := r.cache.Get(ctx, key, &cached)
	if err == nil {
		return cached, nil
	}

	quests, err2 := r.next.ListByWeek(ctx, weekStart)
	if err2 != nil {
		return nil, err2
	}
	if errors.Is(err, ErrCacheMiss) || errors.Is(err, ErrCacheSerialization) {
		_ = r.cache.Set(ctx, key, quests, r.ttl)
	}
	return quests, nil
}

var _ quest.Repository = (*CachedQuestRepository)(nil)
