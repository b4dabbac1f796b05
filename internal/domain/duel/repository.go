package duel

import (
	"context"
	"time"
)

// Repository - хранилище дуэлей.
type Repository interface {
	// Create сохраняет новую дуэль в статусе pending.
	Create(ctx context.Context, d *Duel) error

	// GetByID возвращает дуэль. ErrDuelNotFound, если её нет.
	GetByID(ctx context.Context, id string) (*Duel, error)

	// HasOpenBetween проверяет наличие pending/active дуэли между
	// пользователями (в любом направлении).
	HasOpenBetween(ctx context.Context, userA, userB string) (bool, error)

	// Transition записывает новое состояние d, только если сохранённый
	// статус всё ещё равен from. Возвращает false, если гонка проиграна.
	Transition(ctx context.Context, d *Duel, from Status) (bool, error)

	// ListActiveDue возвращает активные дуэли с expires_at <= before,
	// самые старые первыми.
	ListActiveDue(ctx context.Context, before time.Time, limit int) ([]*Duel, error)
}
