package quest

import (
	"context"
	"time"
)

// Repository - хранилище заданий (только чтение).
type Repository interface {
	// GetByID возвращает задание. ErrQuestNotFound, если его нет.
	GetByID(ctx context.Context, id string) (*Quest, error)

	// ListByWeek возвращает задания недели, упорядоченные по ID.
	ListByWeek(ctx context.Context, weekStart time.Time) ([]*Quest, error)
}

// ProgressRepository - хранилище прогресса.
type ProgressRepository interface {
	// LockUser сериализует обновления прогресса одного пользователя до конца
	// транзакции. ErrUserNotFound, если пользователя нет.
	LockUser(ctx context.Context, userID string) error

	// Get возвращает прогресс. Если записи нет, возвращает пустой прогресс.
	Get(ctx context.Context, userID, questID string) (*Progress, error)

	// Save записывает прогресс, только если сохранённая запись ещё не
	// выполнена. Возвращает false, если условие не выполнилось.
	Save(ctx context.Context, p *Progress) (bool, error)

	// ListByUser возвращает прогресс пользователя по указанным заданиям,
	// ключ - ID задания.
	ListByUser(ctx context.Context, userID string, questIDs []string) (map[string]*Progress, error)
}
