package query

import (
	"context"

	"github.com/alem-hub/arena-engine/internal/domain/boss"
	"github.com/alem-hub/arena-engine/internal/domain/shared"
	"github.com/alem-hub/arena-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// BOSS STANDINGS QUERY
// Таблица мест битвы. Сначала читаем кэш (Redis sorted set), при промахе или
// ошибке - хранилище, и по возможности восстанавливаем кэш.
// ══════════════════════════════════════════════════════════════════════════════

// BossStandingsQuery содержит параметры запроса.
type BossStandingsQuery struct {
	BossID string
	Limit  int
}

// BossStandingsDTO - таблица мест.
type BossStandingsDTO struct {
	BossID     string          `json:"boss_id"`
	Title      string          `json:"title"`
	SolveCount int             `json:"solve_count"`
	Standings  []boss.Standing `json:"standings"`

	// FromCache - ответ собран из кэша.
	FromCache bool `json:"from_cache"`
}

// standingsRebuilder - кэш, который умеет заполняться из хранилища целиком.
type standingsRebuilder interface {
	Rebuild(ctx context.Context, bossID string, solves []*boss.Solve) error
}

// BossStandingsHandler обрабатывает запрос.
type BossStandingsHandler struct {
	bosses boss.Repository
	cache  boss.StandingsCache
	log    *logger.Logger
}

// NewBossStandingsHandler создаёт обработчик. cache может быть nil.
func NewBossStandingsHandler(bosses boss.Repository, cache boss.StandingsCache, log *logger.Logger) *BossStandingsHandler {
	return &BossStandingsHandler{
		bosses: bosses,
		cache:  cache,
		log:    log.With(logger.Component("query"), logger.Operation("boss_standings")),
	}
}

// Handle выполняет запрос.
func (h *BossStandingsHandler) Handle(ctx context.Context, q BossStandingsQuery) (*BossStandingsDTO, error) {
	if q.BossID == "" {
		return nil, shared.ErrBossNotFound
	}
	limit := shared.ClampLimit(q.Limit)

	b, err := h.bosses.GetByID(ctx, q.BossID)
	if err != nil {
		return nil, err
	}
	dto := &BossStandingsDTO{BossID: b.ID, Title: b.Title, SolveCount: b.SolveCount}
	if b.SolveCount == 0 {
		dto.Standings = []boss.Standing{}
		return dto, nil
	}

	if h.cache != nil {
		top, err := h.cache.Top(ctx, b.ID, limit)
		switch {
		case err != nil:
			h.log.Warn("standings cache unavailable", logger.BossID(b.ID), logger.Err(err))
		case len(top) >= min(limit, b.SolveCount):
			dto.Standings = top
			dto.FromCache = true
			return dto, nil
		}
	}

	solves, err := h.bosses.ListSolves(ctx, b.ID, limit)
	if err != nil {
		return nil, err
	}
	dto.Standings = make([]boss.Standing, len(solves))
	for i, s := range solves {
		dto.Standings[i] = boss.Standing{UserID: s.UserID, Rank: s.Rank}
	}

	if rb, ok := h.cache.(standingsRebuilder); ok && len(solves) > 0 {
		// Полная таблица нужна, чтобы кэш не остался частичным.
		all, err := h.bosses.ListSolves(ctx, b.ID, b.SolveCount)
		if err == nil {
			err = rb.Rebuild(ctx, b.ID, all)
		}
		if err != nil {
			h.log.Warn("standings cache not rebuilt", logger.BossID(b.ID), logger.Err(err))
		}
	}
	return dto, nil
}
