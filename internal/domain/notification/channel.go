package notification

import (
	"context"
	"fmt"

	"github.com/alem-hub/arena-engine/internal/domain/shared"
)

// Notifier - односторонний канал доставки. Ошибки доставки никогда не
// влияют на результат операции движка.
type Notifier interface {
	Notify(ctx context.Context, n *Notification) error
}

// NotifierFunc позволяет использовать функцию как Notifier.
type NotifierFunc func(ctx context.Context, n *Notification) error

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, n *Notification) error {
	return f(ctx, n)
}

// ══════════════════════════════════════════════════════════════════════════════
// EVENT -> NOTIFICATION
// ══════════════════════════════════════════════════════════════════════════════

// FromEvent переводит доменное событие в уведомление. Второе значение false,
// если событие не адресовано пользователю (например, XPGranted).
// ID заполняет вызывающий.
func FromEvent(event shared.Event) (NewNotificationParams, bool) {
	p := NewNotificationParams{
		Payload: event.Payload(),
		Now:     event.OccurredAt(),
	}

	switch e := event.(type) {
	case shared.LevelUpEvent:
		p.UserID, p.Type = e.UserID, TypeLevelUp
		p.Title = "Уровень повышен!"
		p.Body = fmt.Sprintf("Теперь ты Level %d", e.NewLevel)

	case shared.StreakEvent:
		p.UserID = e.UserID
		if e.EventType() == shared.EventStreakBroken {
			p.Type = TypeStreakBroken
			p.Title = "Серия прервалась"
			p.Body = fmt.Sprintf("Пропущено дней: %d. Начни новую серию!", e.Missed)
		} else {
			p.Type = TypeStreakMilestone
			p.Title = fmt.Sprintf("%d дней подряд!", e.Current)
			p.Body = fmt.Sprintf("Получен щит серии, всего щитов: %d", e.Shields)
		}

	case shared.QuestCompletedEvent:
		p.UserID, p.Type = e.UserID, TypeQuestCompleted
		p.Title = e.Title
		p.Body = fmt.Sprintf("+%d XP", e.XPAwarded)

	case shared.DuelEvent:
		p.UserID = e.Recipient
		switch e.EventType() {
		case shared.EventDuelChallenged:
			p.Type = TypeDuelChallenge
			p.Title = "Вызов на дуэль"
			p.Body = fmt.Sprintf("%s вызывает тебя: задача %s", e.ChallengerID, e.ProblemRef)
		case shared.EventDuelCompleted:
			p.Type = TypeDuelResult
			p.Title = "Дуэль завершена"
			p.Body = fmt.Sprintf("Победитель: %s", e.WinnerID)
		default:
			p.Type = TypeDuelUpdate
			p.Title = "Дуэль обновлена"
			p.Body = string(e.EventType())
		}

	case shared.BossSolvedEvent:
		p.UserID, p.Type = e.UserID, TypeBossSolved
		p.Title = fmt.Sprintf("Место #%d", e.Rank)
		p.Body = fmt.Sprintf("+%d XP за битву с боссом", e.XPAwarded)

	default:
		return NewNotificationParams{}, false
	}

	return p, p.UserID != ""
}
