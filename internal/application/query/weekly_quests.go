package query

import (
	"context"
	"time"

	"github.com/alem-hub/arena-engine/internal/domain/quest"
	"github.com/alem-hub/arena-engine/internal/domain/shared"
	"github.com/alem-hub/arena-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// WEEKLY QUESTS QUERY
// Задания текущей недели вместе с прогрессом пользователя.
// ══════════════════════════════════════════════════════════════════════════════

// WeeklyQuestDTO - задание с прогрессом.
type WeeklyQuestDTO struct {
	QuestID     string              `json:"quest_id"`
	Title       string              `json:"title"`
	Condition   quest.ConditionType `json:"condition"`
	Target      int                 `json:"target"`
	Progress    int                 `json:"progress"`
	Remaining   int                 `json:"remaining"`
	XPReward    int64               `json:"xp_reward"`
	Completed   bool                `json:"completed"`
	CompletedAt *time.Time          `json:"completed_at,omitempty"`
}

// WeeklyQuestsDTO - неделя целиком.
type WeeklyQuestsDTO struct {
	WeekStart    string           `json:"week_start"`
	Quests       []WeeklyQuestDTO `json:"quests"`
	AllCompleted bool             `json:"all_completed"`
}

// WeeklyQuestsHandler обрабатывает запрос.
type WeeklyQuestsHandler struct {
	quests   quest.Repository
	progress quest.ProgressRepository
	calendar *timeutil.Calendar
}

// NewWeeklyQuestsHandler создаёт обработчик.
func NewWeeklyQuestsHandler(quests quest.Repository, progress quest.ProgressRepository, calendar *timeutil.Calendar) *WeeklyQuestsHandler {
	return &WeeklyQuestsHandler{quests: quests, progress: progress, calendar: calendar}
}

// Handle выполняет запрос.
func (h *WeeklyQuestsHandler) Handle(ctx context.Context, userID string) (*WeeklyQuestsDTO, error) {
	if _, err := shared.NewUserID(userID); err != nil {
		return nil, err
	}

	week := h.calendar.WeekStart(h.calendar.Now())
	quests, err := h.quests.ListByWeek(ctx, week)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(quests))
	for i, q := range quests {
		ids[i] = q.ID
	}
	progress, err := h.progress.ListByUser(ctx, userID, ids)
	if err != nil {
		return nil, err
	}

	dto := &WeeklyQuestsDTO{
		WeekStart:    timeutil.FormatCivil(week),
		Quests:       make([]WeeklyQuestDTO, 0, len(quests)),
		AllCompleted: quest.AllCompleted(quests, progress),
	}
	for _, q := range quests {
		p, ok := progress[q.ID]
		if !ok {
			p = quest.NewProgress(userID, q.ID)
		}
		dto.Quests = append(dto.Quests, WeeklyQuestDTO{
			QuestID:     q.ID,
			Title:       q.Title,
			Condition:   q.Condition,
			Target:      q.TargetCount,
			Progress:    p.Progress,
			Remaining:   p.Remaining(q.TargetCount),
			XPReward:    q.XPReward,
			Completed:   p.Completed,
			CompletedAt: p.CompletedAt,
		})
	}
	return dto, nil
}
