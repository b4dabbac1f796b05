package command

import (
	"context"
	"errors"

	"github.com/alem-hub/arena-engine/internal/domain/player"
	"github.com/alem-hub/arena-engine/internal/domain/quest"
	"github.com/alem-hub/arena-engine/internal/domain/shared"
	"github.com/alem-hub/arena-engine/pkg/logger"
	"github.com/alem-hub/arena-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// UPDATE QUEST PROGRESS COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// UpdateQuestProgressCommand sets or increments progress on one quest.
type UpdateQuestProgressCommand struct {
	UserID  string
	QuestID string

	// Progress is the new absolute value. Nil means "+1".
	Progress *int
}

// Validate validates the command.
func (c UpdateQuestProgressCommand) Validate() error {
	if _, err := shared.NewUserID(c.UserID); err != nil {
		return err
	}
	if c.QuestID == "" {
		return shared.NewDomainError("quest", "UpdateProgress", shared.ErrInvalidInput, "quest id is required")
	}
	if c.Progress != nil && *c.Progress < 0 {
		return shared.ErrNegativeProgress
	}
	return nil
}

// UpdateQuestProgressResult contains the saved progress.
type UpdateQuestProgressResult struct {
	Progress *quest.Progress
	Quest    *quest.Quest

	// Completed is true when this call completed the quest.
	Completed   bool
	QuestGrant  *GrantXPResult
	WeeklyBonus *GrantXPResult
}

// Events returns the events of the update.
func (r *UpdateQuestProgressResult) Events() []shared.Event {
	if r == nil || !r.Completed {
		return nil
	}
	at := *r.Progress.CompletedAt
	var events []shared.Event

	var xp int64
	if r.QuestGrant != nil {
		xp = r.QuestGrant.Grant.Amount.Int64()
		events = append(events, r.QuestGrant.Events()...)
	}
	events = append(events, shared.NewQuestCompletedEvent(shared.EventQuestComplete, r.Progress.UserID, r.Quest.ID, r.Quest.Title, xp, at))

	if r.WeeklyBonus != nil {
		events = append(events, r.WeeklyBonus.Events()...)
		events = append(events, shared.NewQuestCompletedEvent(shared.EventWeeklyBonus, r.Progress.UserID, "",
			"Все задания недели выполнены!", r.WeeklyBonus.Grant.Amount.Int64(), at))
	}
	return events
}

// QuestConfig holds quest tunables.
type QuestConfig struct {
	// WeeklyBonusXP is granted once all quests of a week are completed.
	WeeklyBonusXP int64
}

// DefaultQuestConfig returns default configuration.
func DefaultQuestConfig() QuestConfig {
	return QuestConfig{WeeklyBonusXP: 200}
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// UpdateQuestProgressHandler handles quest progress commands.
type UpdateQuestProgressHandler struct {
	tx        shared.Transactor
	quests    quest.Repository
	progress  quest.ProgressRepository
	granter   *Granter
	calendar  *timeutil.Calendar
	publisher shared.EventPublisher
	config    QuestConfig
	log       *logger.Logger
}

// NewUpdateQuestProgressHandler creates a new handler.
func NewUpdateQuestProgressHandler(
	tx shared.Transactor,
	quests quest.Repository,
	progress quest.ProgressRepository,
	granter *Granter,
	calendar *timeutil.Calendar,
	publisher shared.EventPublisher,
	config QuestConfig,
	log *logger.Logger,
) *UpdateQuestProgressHandler {
	return &UpdateQuestProgressHandler{
		tx:        tx,
		quests:    quests,
		progress:  progress,
		granter:   granter,
		calendar:  calendar,
		publisher: publisher,
		config:    config,
		log:       log.With(logger.Component("command"), logger.Operation("update_quest_progress")),
	}
}

// Handle executes the command.
func (h *UpdateQuestProgressHandler) Handle(ctx context.Context, cmd UpdateQuestProgressCommand) (*UpdateQuestProgressResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	q, err := h.quests.GetByID(ctx, cmd.QuestID)
	if err != nil {
		return nil, err
	}

	result, err := h.apply(ctx, cmd.UserID, q, cmd.Progress)
	if err != nil {
		logOutcome(h.log, "quest progress rejected", err, logger.UserID(cmd.UserID), logger.QuestID(cmd.QuestID))
		return nil, err
	}

	publish(h.publisher, h.log, result.Events()...)
	return result, nil
}

// apply runs one progress update and its grants in a transaction.
func (h *UpdateQuestProgressHandler) apply(ctx context.Context, userID string, q *quest.Quest, value *int) (*UpdateQuestProgressResult, error) {
	result := &UpdateQuestProgressResult{Quest: q}

	err := h.tx.WithinTx(ctx, func(ctx context.Context) error {
		// Held until commit: the weekly bonus check below reads the other
		// quests of the week, which a concurrent completion may be writing.
		if err := h.progress.LockUser(ctx, userID); err != nil {
			return err
		}
		p, err := h.progress.Get(ctx, userID, q.ID)
		if err != nil {
			return err
		}

		completed, err := p.Advance(value, q.TargetCount, h.calendar.Now())
		if err != nil {
			return err
		}

		saved, err := h.progress.Save(ctx, p)
		if err != nil {
			return err
		}
		if !saved {
			return shared.ErrQuestAlreadyCompleted
		}
		result.Progress = p
		result.Completed = completed

		if !completed {
			return nil
		}

		result.QuestGrant, err = grantIfPositive(ctx, h.granter, GrantXPCommand{
			UserID:   userID,
			Amount:   q.XPReward,
			Reason:   player.ReasonQuest,
			DedupKey: q.GrantKey(),
		})
		if err != nil {
			return err
		}

		result.WeeklyBonus, err = h.weeklyBonus(ctx, userID, q)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (h *UpdateQuestProgressHandler) weeklyBonus(ctx context.Context, userID string, q *quest.Quest) (*GrantXPResult, error) {
	week, err := h.quests.ListByWeek(ctx, q.WeekStart)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(week))
	for i, wq := range week {
		ids[i] = wq.ID
	}
	progress, err := h.progress.ListByUser(ctx, userID, ids)
	if err != nil {
		return nil, err
	}
	if !quest.AllCompleted(week, progress) {
		return nil, nil
	}

	return grantIfPositive(ctx, h.granter, GrantXPCommand{
		UserID:   userID,
		Amount:   h.config.WeeklyBonusXP,
		Reason:   player.ReasonWeeklyBonus,
		DedupKey: quest.WeeklyBonusKey(q.WeekStart),
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// ADVANCE QUESTS COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// AdvanceQuestsCommand increments every open quest of the current week
// that counts the given condition.
type AdvanceQuestsCommand struct {
	UserID    string
	Condition quest.ConditionType
}

// Validate validates the command.
func (c AdvanceQuestsCommand) Validate() error {
	if _, err := shared.NewUserID(c.UserID); err != nil {
		return err
	}
	if !c.Condition.IsValid() {
		return shared.ErrUnknownCondition
	}
	return nil
}

// AdvanceQuestsResult lists the quests that moved.
type AdvanceQuestsResult struct {
	Updated []*UpdateQuestProgressResult
}

// Completed returns the quests completed by this call.
func (r *AdvanceQuestsResult) Completed() []*quest.Quest {
	var out []*quest.Quest
	for _, u := range r.Updated {
		if u.Completed {
			out = append(out, u.Quest)
		}
	}
	return out
}

// Advance executes an AdvanceQuestsCommand. Already completed quests are
// skipped; each quest is updated in its own transaction.
func (h *UpdateQuestProgressHandler) Advance(ctx context.Context, cmd AdvanceQuestsCommand) (*AdvanceQuestsResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	week := h.calendar.WeekStart(h.calendar.Now())
	quests, err := h.quests.ListByWeek(ctx, week)
	if err != nil {
		return nil, err
	}

	result := &AdvanceQuestsResult{}
	for _, q := range quests {
		if q.Condition != cmd.Condition {
			continue
		}
		updated, err := h.apply(ctx, cmd.UserID, q, nil)
		if errors.Is(err, shared.ErrQuestAlreadyCompleted) {
			continue
		}
		if err != nil {
			return result, err
		}
		result.Updated = append(result.Updated, updated)
		publish(h.publisher, h.log, updated.Events()...)
	}

	if n := len(result.Completed()); n > 0 {
		h.log.Info("quests completed",
			logger.UserID(cmd.UserID),
			logger.String("condition", string(cmd.Condition)),
			logger.Int("count", n),
		)
	}
	return result, nil
}
