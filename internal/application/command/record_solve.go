package command

import (
	"context"

	"github.com/alem-hub/arena-engine/internal/domain/player"
	"github.com/alem-hub/arena-engine/internal/domain/quest"
	"github.com/alem-hub/arena-engine/internal/domain/shared"
	"github.com/alem-hub/arena-engine/pkg/logger"
	"github.com/alem-hub/arena-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECORD SOLVE COMMAND
// Applies "the user solved something today" to the streak. The write is a
// compare-and-swap on last_solve_day, so concurrent triggers on one day
// count once.
// ══════════════════════════════════════════════════════════════════════════════

// RecordSolveCommand contains the user whose streak advances.
type RecordSolveCommand struct {
	UserID string
}

// Validate validates the command.
func (c RecordSolveCommand) Validate() error {
	_, err := shared.NewUserID(c.UserID)
	return err
}

// RecordSolveResult contains the streak after the solve.
type RecordSolveResult struct {
	Streak player.StreakState

	// Changed is false when today was already counted.
	Changed      bool
	ShieldsUsed  int
	ShieldEarned bool
	Reset        bool
	Missed       int

	// Quests holds streak_day quest updates, nil when unchanged.
	Quests *AdvanceQuestsResult
}

// maxStreakAttempts bounds rereads after a lost compare-and-swap.
const maxStreakAttempts = 3

// RecordSolveHandler handles RecordSolveCommand.
type RecordSolveHandler struct {
	players   player.Repository
	policy    player.StreakPolicy
	quests    *UpdateQuestProgressHandler
	calendar  *timeutil.Calendar
	publisher shared.EventPublisher
	log       *logger.Logger
}

// NewRecordSolveHandler creates a new RecordSolveHandler. quests may be nil.
func NewRecordSolveHandler(
	players player.Repository,
	policy player.StreakPolicy,
	quests *UpdateQuestProgressHandler,
	calendar *timeutil.Calendar,
	publisher shared.EventPublisher,
	log *logger.Logger,
) *RecordSolveHandler {
	return &RecordSolveHandler{
		players:   players,
		policy:    policy,
		quests:    quests,
		calendar:  calendar,
		publisher: publisher,
		log:       log.With(logger.Component("command"), logger.Operation("record_solve")),
	}
}

// Handle executes the command.
func (h *RecordSolveHandler) Handle(ctx context.Context, cmd RecordSolveCommand) (*RecordSolveResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	now := h.calendar.Now()
	today := h.calendar.CivilDate(now)

	var out player.StreakOutcome
	for attempt := 1; ; attempt++ {
		acc, err := h.players.GetByID(ctx, cmd.UserID)
		if err != nil {
			return nil, err
		}

		out = h.policy.Advance(acc.Streak(), today)
		if !out.Changed {
			return &RecordSolveResult{Streak: out.State}, nil
		}

		swapped, err := h.players.CompareAndSwapStreak(ctx, cmd.UserID, acc.LastSolveDay, out.State)
		if err != nil {
			return nil, err
		}
		if swapped {
			break
		}
		// Someone else moved the streak; the reread usually sees today.
		if attempt == maxStreakAttempts {
			return nil, shared.ErrStreakRaceLost
		}
	}

	result := &RecordSolveResult{
		Streak:       out.State,
		Changed:      true,
		ShieldsUsed:  out.ShieldsUsed,
		ShieldEarned: out.ShieldEarned,
		Reset:        out.Reset,
		Missed:       out.Missed,
	}

	h.log.Info("streak advanced",
		logger.UserID(cmd.UserID),
		logger.Int("current", out.State.Current),
		logger.Int("shields", out.State.Shields),
		logger.Bool("reset", out.Reset),
	)

	var events []shared.Event
	if out.Reset {
		events = append(events, shared.NewStreakEvent(shared.EventStreakBroken, cmd.UserID, out.State.Current, out.State.Shields, out.Missed, now))
	}
	if out.ShieldEarned {
		events = append(events, shared.NewStreakEvent(shared.EventStreakShield, cmd.UserID, out.State.Current, out.State.Shields, 0, now))
	}
	publish(h.publisher, h.log, events...)

	if h.quests != nil {
		advanced, err := h.quests.Advance(ctx, AdvanceQuestsCommand{UserID: cmd.UserID, Condition: quest.ConditionStreakDay})
		if err != nil {
			// The streak is already committed.
			logOutcome(h.log, "streak quests not advanced", err, logger.UserID(cmd.UserID))
		}
		result.Quests = advanced
	}

	return result, nil
}
