// Package notification содержит модель уведомлений движка.
// Доставка (push, email, чат) - внешняя система: движок только отдаёт
// уведомление в Notifier и не ждёт результата.
package notification

import (
	"errors"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// NOTIFICATION TYPE
// ══════════════════════════════════════════════════════════════════════════════

// Type определяет тип уведомления.
type Type string

const (
	// TypeLevelUp - повышение уровня.
	// "⬆️ Уровень повышен! Теперь ты Level 5"
	TypeLevelUp Type = "level_up"

	// TypeStreakMilestone - за серию выдан щит.
	// "🛡 7 дней подряд! Получен щит серии"
	TypeStreakMilestone Type = "streak_milestone"

	// TypeStreakBroken - серия прервана.
	TypeStreakBroken Type = "streak_broken"

	// TypeQuestCompleted - выполнено задание недели.
	TypeQuestCompleted Type = "quest_completed"

	// TypeDuelChallenge - пользователя вызвали на дуэль.
	// "⚔️ @alice вызывает тебя на дуэль!"
	TypeDuelChallenge Type = "duel_challenge"

	// TypeDuelUpdate - дуэль принята, отклонена, истекла.
	TypeDuelUpdate Type = "duel_update"

	// TypeDuelResult - итог дуэли.
	TypeDuelResult Type = "duel_result"

	// TypeBossSolved - место в битве с боссом.
	TypeBossSolved Type = "boss_solved"
)

// IsValid проверяет, что тип известен.
func (t Type) IsValid() bool {
	switch t {
	case TypeLevelUp, TypeStreakMilestone, TypeStreakBroken, TypeQuestCompleted,
		TypeDuelChallenge, TypeDuelUpdate, TypeDuelResult, TypeBossSolved:
		return true
	}
	return false
}

// Emoji возвращает эмодзи для типа.
func (t Type) Emoji() string {
	switch t {
	case TypeLevelUp:
		return "⬆️"
	case TypeStreakMilestone:
		return "🛡"
	case TypeStreakBroken:
		return "💔"
	case TypeQuestCompleted:
		return "✅"
	case TypeDuelChallenge, TypeDuelUpdate, TypeDuelResult:
		return "⚔️"
	case TypeBossSolved:
		return "🐉"
	}
	return "🔔"
}

// Priority - приоритет уведомления.
type Priority int

const (
	PriorityLow Priority = iota + 1
	PriorityNormal
	PriorityHigh
)

// DefaultPriority возвращает приоритет по умолчанию для типа.
func (t Type) DefaultPriority() Priority {
	switch t {
	case TypeDuelChallenge, TypeDuelResult:
		return PriorityHigh
	case TypeStreakBroken:
		return PriorityLow
	}
	return PriorityNormal
}

// ══════════════════════════════════════════════════════════════════════════════
// NOTIFICATION
// ══════════════════════════════════════════════════════════════════════════════

// Notification - одно уведомление для пользователя.
type Notification struct {
	ID        string                 `json:"id"`
	UserID    string                 `json:"user_id"`
	Type      Type                   `json:"type"`
	Priority  Priority               `json:"priority"`
	Title     string                 `json:"title"`
	Body      string                 `json:"body"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// NewNotificationParams - параметры создания уведомления.
type NewNotificationParams struct {
	ID      string
	UserID  string
	Type    Type
	Title   string
	Body    string
	Payload map[string]interface{}
	Now     time.Time
}

var (
	ErrEmptyRecipient = errors.New("notification: empty recipient")
	ErrUnknownType    = errors.New("notification: unknown type")
)

// NewNotification создаёт уведомление с проверкой.
func NewNotification(p NewNotificationParams) (*Notification, error) {
	if p.UserID == "" {
		return nil, ErrEmptyRecipient
	}
	if !p.Type.IsValid() {
		return nil, ErrUnknownType
	}
	return &Notification{
		ID:        p.ID,
		UserID:    p.UserID,
		Type:      p.Type,
		Priority:  p.Type.DefaultPriority(),
		Title:     p.Type.Emoji() + " " + p.Title,
		Body:      p.Body,
		Payload:   p.Payload,
		CreatedAt: p.Now,
	}, nil
}
