package shared

import "time"

// EventType represents the type of domain event.
type EventType string

// Domain event types. Engine commands publish them after their transaction
// commits; subscribers turn them into notifications.
const (
	// Progress events
	EventXPGranted     EventType = "progress.xp_granted"
	EventLevelUp       EventType = "progress.level_up"
	EventStreakShield  EventType = "progress.streak_shield_earned"
	EventStreakBroken  EventType = "progress.streak_broken"
	EventQuestComplete EventType = "quest.completed"
	EventWeeklyBonus   EventType = "quest.weekly_bonus"

	// Duel events
	EventDuelChallenged EventType = "duel.challenged"
	EventDuelAccepted   EventType = "duel.accepted"
	EventDuelDeclined   EventType = "duel.declined"
	EventDuelExpired    EventType = "duel.expired"
	EventDuelCompleted  EventType = "duel.completed"

	// Boss events
	EventBossSolved EventType = "boss.solved"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type        EventType `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
	AggregateId string    `json:"aggregate_id"`
	Version     int       `json:"version"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string, at time.Time) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   at,
		AggregateId: aggregateID,
		Version:     1,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Progress Events
// ═══════════════════════════════════════════════════════════════════════════

// XPGrantedEvent is emitted when a new grant is recorded (never for a replay).
type XPGrantedEvent struct {
	BaseEvent
	UserID   string `json:"user_id"`
	Amount   int64  `json:"amount"`
	Reason   string `json:"reason"`
	DedupKey string `json:"dedup_key"`
	TotalXP  int64  `json:"total_xp"`
}

// Payload implements Event.
func (e XPGrantedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":   e.UserID,
		"amount":    e.Amount,
		"reason":    e.Reason,
		"dedup_key": e.DedupKey,
		"total_xp":  e.TotalXP,
	}
}

// NewXPGrantedEvent creates an XPGrantedEvent.
func NewXPGrantedEvent(userID string, amount int64, reason, dedupKey string, total int64, at time.Time) XPGrantedEvent {
	return XPGrantedEvent{
		BaseEvent: NewBaseEvent(EventXPGranted, userID, at),
		UserID:    userID,
		Amount:    amount,
		Reason:    reason,
		DedupKey:  dedupKey,
		TotalXP:   total,
	}
}

// LevelUpEvent is emitted when a grant moves the user to a higher level.
type LevelUpEvent struct {
	BaseEvent
	UserID   string `json:"user_id"`
	OldLevel int    `json:"old_level"`
	NewLevel int    `json:"new_level"`
}

// Payload implements Event.
func (e LevelUpEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":   e.UserID,
		"old_level": e.OldLevel,
		"new_level": e.NewLevel,
	}
}

// NewLevelUpEvent creates a LevelUpEvent.
func NewLevelUpEvent(userID string, oldLevel, newLevel int, at time.Time) LevelUpEvent {
	return LevelUpEvent{
		BaseEvent: NewBaseEvent(EventLevelUp, userID, at),
		UserID:    userID,
		OldLevel:  oldLevel,
		NewLevel:  newLevel,
	}
}

// StreakEvent covers shield earning and streak resets.
type StreakEvent struct {
	BaseEvent
	UserID  string `json:"user_id"`
	Current int    `json:"current"`
	Shields int    `json:"shields"`
	Missed  int    `json:"missed,omitempty"`
}

// Payload implements Event.
func (e StreakEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id": e.UserID,
		"current": e.Current,
		"shields": e.Shields,
		"missed":  e.Missed,
	}
}

// NewStreakEvent creates a StreakEvent of the given type.
func NewStreakEvent(eventType EventType, userID string, current, shields, missed int, at time.Time) StreakEvent {
	return StreakEvent{
		BaseEvent: NewBaseEvent(eventType, userID, at),
		UserID:    userID,
		Current:   current,
		Shields:   shields,
		Missed:    missed,
	}
}

// QuestCompletedEvent is emitted for a single quest and for the weekly bonus.
type QuestCompletedEvent struct {
	BaseEvent
	UserID    string `json:"user_id"`
	QuestID   string `json:"quest_id,omitempty"`
	Title     string `json:"title"`
	XPAwarded int64  `json:"xp_awarded"`
}

// Payload implements Event.
func (e QuestCompletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":    e.UserID,
		"quest_id":   e.QuestID,
		"title":      e.Title,
		"xp_awarded": e.XPAwarded,
	}
}

// NewQuestCompletedEvent creates a QuestCompletedEvent.
func NewQuestCompletedEvent(eventType EventType, userID, questID, title string, xp int64, at time.Time) QuestCompletedEvent {
	return QuestCompletedEvent{
		BaseEvent: NewBaseEvent(eventType, userID, at),
		UserID:    userID,
		QuestID:   questID,
		Title:     title,
		XPAwarded: xp,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Competition Events
// ═══════════════════════════════════════════════════════════════════════════

// DuelEvent is emitted on every duel transition. Recipient is the user
// who should hear about it.
type DuelEvent struct {
	BaseEvent
	DuelID       string `json:"duel_id"`
	ChallengerID string `json:"challenger_id"`
	ChallengedID string `json:"challenged_id"`
	Recipient    string `json:"recipient"`
	ProblemRef   string `json:"problem_ref"`
	WinnerID     string `json:"winner_id,omitempty"`
}

// Payload implements Event.
func (e DuelEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"duel_id":       e.DuelID,
		"challenger_id": e.ChallengerID,
		"challenged_id": e.ChallengedID,
		"recipient":     e.Recipient,
		"problem_ref":   e.ProblemRef,
		"winner_id":     e.WinnerID,
	}
}

// NewDuelEvent creates a DuelEvent.
func NewDuelEvent(eventType EventType, duelID, challenger, challenged, recipient, problemRef, winner string, at time.Time) DuelEvent {
	return DuelEvent{
		BaseEvent:    NewBaseEvent(eventType, duelID, at),
		DuelID:       duelID,
		ChallengerID: challenger,
		ChallengedID: challenged,
		Recipient:    recipient,
		ProblemRef:   problemRef,
		WinnerID:     winner,
	}
}

// BossSolvedEvent is emitted after a boss solve is ranked.
type BossSolvedEvent struct {
	BaseEvent
	BossID    string `json:"boss_id"`
	UserID    string `json:"user_id"`
	Rank      int    `json:"rank"`
	XPAwarded int64  `json:"xp_awarded"`
}

// Payload implements Event.
func (e BossSolvedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"boss_id":    e.BossID,
		"user_id":    e.UserID,
		"rank":       e.Rank,
		"xp_awarded": e.XPAwarded,
	}
}

// NewBossSolvedEvent creates a BossSolvedEvent.
func NewBossSolvedEvent(bossID, userID string, rank int, xp int64, at time.Time) BossSolvedEvent {
	return BossSolvedEvent{
		BaseEvent: NewBaseEvent(EventBossSolved, bossID, at),
		BossID:    bossID,
		UserID:    userID,
		Rank:      rank,
		XPAwarded: xp,
	}
}

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}

// NopPublisher drops every event.
type NopPublisher struct{}

// Publish implements EventPublisher.
func (NopPublisher) Publish(Event) error { return nil }
