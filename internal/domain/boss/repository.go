package boss

import "context"

// Repository - хранилище битв и решений.
type Repository interface {
	// GetByID возвращает битву. ErrBossNotFound, если её нет.
	GetByID(ctx context.Context, id string) (*Battle, error)

	// RecordSolve атомарно выдаёт следующее место и сохраняет решение с ним.
	// Заполняет solve.Rank. Повторное решение того же пользователя возвращает
	// ErrBossAlreadySolve и не расходует место.
	RecordSolve(ctx context.Context, solve *Solve) error

	// SetAwarded записывает начисленный XP для решения.
	SetAwarded(ctx context.Context, solveID string, xp int64) error

	// ListSolves возвращает решения по возрастанию места.
	ListSolves(ctx context.Context, bossID string, limit int) ([]*Solve, error)
}

// StandingsCache - быстрая таблица результатов (например, Redis sorted set).
// Источник истины - Repository; кэш можно потерять.
type StandingsCache interface {
	Put(ctx context.Context, bossID, userID string, rank int) error
	Top(ctx context.Context, bossID string, limit int) ([]Standing, error)
}
