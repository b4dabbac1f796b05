package query

import (
	"context"
	"time"

	"github.com/alem-hub/arena-engine/internal/domain/player"
	"github.com/alem-hub/arena-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LIST GRANTS QUERY
// История начислений XP, новые первыми.
// ══════════════════════════════════════════════════════════════════════════════

// ListGrantsQuery содержит параметры запроса.
type ListGrantsQuery struct {
	UserID string
	Limit  int
}

// GrantDTO - одна строка истории.
type GrantDTO struct {
	Amount    int64     `json:"amount"`
	Reason    string    `json:"reason"`
	DedupKey  string    `json:"dedup_key"`
	CreatedAt time.Time `json:"created_at"`
}

// ListGrantsHandler обрабатывает запрос.
type ListGrantsHandler struct {
	players player.Repository
	ledger  player.LedgerRepository
}

// NewListGrantsHandler создаёт обработчик.
func NewListGrantsHandler(players player.Repository, ledger player.LedgerRepository) *ListGrantsHandler {
	return &ListGrantsHandler{players: players, ledger: ledger}
}

// Handle выполняет запрос.
func (h *ListGrantsHandler) Handle(ctx context.Context, q ListGrantsQuery) ([]GrantDTO, error) {
	if _, err := shared.NewUserID(q.UserID); err != nil {
		return nil, err
	}

	ok, err := h.players.Exists(ctx, q.UserID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, shared.ErrUserNotFound
	}

	grants, err := h.ledger.ListByUser(ctx, q.UserID, shared.ClampLimit(q.Limit))
	if err != nil {
		return nil, err
	}

	out := make([]GrantDTO, len(grants))
	for i, g := range grants {
		out[i] = GrantDTO{
			Amount:    g.Amount.Int64(),
			Reason:    g.Reason,
			DedupKey:  g.DedupKey,
			CreatedAt: g.CreatedAt,
		}
	}
	return out, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// PLAYER PROGRESS QUERY
// XP, уровень и серия одним ответом.
// ══════════════════════════════════════════════════════════════════════════════

// PlayerProgressDTO - сводка прогресса игрока.
type PlayerProgressDTO struct {
	UserID string `json:"user_id"`

	// ─────────────────────────────────────────────────────────────────────────
	// XP и уровень
	// ─────────────────────────────────────────────────────────────────────────

	XP            int64 `json:"xp"`
	Level         int   `json:"level"`
	XPToNextLevel int64 `json:"xp_to_next_level"`
	IsMaxLevel    bool  `json:"is_max_level"`

	// ─────────────────────────────────────────────────────────────────────────
	// Серия
	// ─────────────────────────────────────────────────────────────────────────

	CurrentStreak int        `json:"current_streak"`
	LongestStreak int        `json:"longest_streak"`
	StreakShields int        `json:"streak_shields"`
	LastSolveDay  *time.Time `json:"last_solve_day,omitempty"`
}

// PlayerProgressHandler обрабатывает запрос.
type PlayerProgressHandler struct {
	players player.Repository
	levels  player.LevelTable
}

// NewPlayerProgressHandler создаёт обработчик.
func NewPlayerProgressHandler(players player.Repository, levels player.LevelTable) *PlayerProgressHandler {
	return &PlayerProgressHandler{players: players, levels: levels}
}

// Handle выполняет запрос.
func (h *PlayerProgressHandler) Handle(ctx context.Context, userID string) (*PlayerProgressDTO, error) {
	if _, err := shared.NewUserID(userID); err != nil {
		return nil, err
	}
	acc, err := h.players.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	// Уровень берём из XP, а не из кэша: таблица порогов могла смениться.
	level := h.levels.LevelFor(acc.XP)
	return &PlayerProgressDTO{
		UserID:        acc.ID,
		XP:            acc.XP.Int64(),
		Level:         level.Int(),
		XPToNextLevel: h.levels.ToNextLevel(acc.XP).Int64(),
		IsMaxLevel:    level >= h.levels.MaxLevel(),
		CurrentStreak: acc.CurrentStreak,
		LongestStreak: acc.LongestStreak,
		StreakShields: acc.StreakShields,
		LastSolveDay:  acc.LastSolveDay,
	}, nil
}
