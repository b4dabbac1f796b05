package player

import (
	"context"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Эти интерфейсы определяют контракт для работы с хранилищем данных.
// Реализации находятся в infrastructure/persistence.
// Все методы участвуют в транзакции, если ctx получен из Transactor.WithinTx.
// ══════════════════════════════════════════════════════════════════════════════

// Repository - хранилище аккаунтов.
type Repository interface {
	// Create создаёт аккаунт. Возвращает ErrConflict, если он уже существует.
	Create(ctx context.Context, account *Account) error

	// GetByID возвращает аккаунт.
	// Возвращает ErrUserNotFound, если пользователь не найден.
	GetByID(ctx context.Context, id string) (*Account, error)

	// Exists проверяет наличие аккаунта.
	Exists(ctx context.Context, id string) (bool, error)

	// IncrementXP атомарно добавляет amount к XP и возвращает новую сумму
	// вместе с уровнем, который был закэширован до записи.
	IncrementXP(ctx context.Context, id string, amount XP) (total XP, previous Level, err error)

	// SetLevel записывает пересчитанный уровень.
	SetLevel(ctx context.Context, id string, level Level) error

	// CompareAndSwapStreak записывает состояние серии, только если
	// last_solve_day всё ещё равен expectedLast (nil - отсутствует).
	// Возвращает false, если запись проиграла гонку.
	CompareAndSwapStreak(ctx context.Context, id string, expectedLast *time.Time, state StreakState) (bool, error)
}

// LedgerRepository - журнал начислений XP.
type LedgerRepository interface {
	// Insert добавляет начисление. Возвращает false без ошибки, если пара
	// (user_id, dedup_key) уже существует.
	Insert(ctx context.Context, grant *Grant) (bool, error)

	// GetByDedupKey возвращает начисление по ключу.
	// Возвращает ErrNotFound, если его нет.
	GetByDedupKey(ctx context.Context, userID, dedupKey string) (*Grant, error)

	// ListByUser возвращает последние начисления, новые первыми.
	ListByUser(ctx context.Context, userID string, limit int) ([]*Grant, error)

	// SumByUser возвращает сумму всех начислений пользователя.
	SumByUser(ctx context.Context, userID string) (XP, error)
}
