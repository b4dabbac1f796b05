package command

import (
	"context"

	"github.com/alem-hub/arena-engine/internal/domain/duel"
	"github.com/alem-hub/arena-engine/internal/domain/player"
	"github.com/alem-hub/arena-engine/internal/domain/problem"
	"github.com/alem-hub/arena-engine/internal/domain/quest"
	"github.com/alem-hub/arena-engine/internal/domain/shared"
	"github.com/alem-hub/arena-engine/pkg/logger"
	"github.com/alem-hub/arena-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// COMPLETE DUEL COMMAND
// Asks the solve oracle about both participants and settles the duel for
// whoever solved first inside [started_at, expires_at]. The transition and
// the winner's grant commit together.
// ══════════════════════════════════════════════════════════════════════════════

// CompleteDuelCommand settles an active duel.
type CompleteDuelCommand struct {
	DuelID string
}

// CompleteDuelResult contains the settled duel.
type CompleteDuelResult struct {
	Duel  *duel.Duel
	Grant *GrantXPResult
}

// CompleteDuelHandler handles CompleteDuelCommand.
type CompleteDuelHandler struct {
	tx        shared.Transactor
	duels     duel.Repository
	oracle    problem.Oracle
	granter   *Granter
	quests    *UpdateQuestProgressHandler
	calendar  *timeutil.Calendar
	publisher shared.EventPublisher
	config    DuelConfig
	log       *logger.Logger
}

// NewCompleteDuelHandler creates a new CompleteDuelHandler. quests may be nil.
func NewCompleteDuelHandler(
	tx shared.Transactor,
	duels duel.Repository,
	oracle problem.Oracle,
	granter *Granter,
	quests *UpdateQuestProgressHandler,
	calendar *timeutil.Calendar,
	publisher shared.EventPublisher,
	config DuelConfig,
	log *logger.Logger,
) *CompleteDuelHandler {
	return &CompleteDuelHandler{
		tx:        tx,
		duels:     duels,
		oracle:    oracle,
		granter:   granter,
		quests:    quests,
		calendar:  calendar,
		publisher: publisher,
		config:    config,
		log:       log.With(logger.Component("command"), logger.Operation("complete_duel")),
	}
}

// Handle executes the command.
func (h *CompleteDuelHandler) Handle(ctx context.Context, cmd CompleteDuelCommand) (*CompleteDuelResult, error) {
	result, err := h.handle(ctx, cmd)
	if err != nil {
		logOutcome(h.log, "complete rejected", err, logger.DuelID(cmd.DuelID))
		return nil, err
	}

	d := result.Duel
	h.log.Info("duel completed", logger.DuelID(d.ID), logger.String("winner_id", d.WinnerID))

	events := result.Grant.Events()
	events = append(events,
		duelEvent(shared.EventDuelCompleted, d, d.ChallengerID, *d.FinishedAt),
		duelEvent(shared.EventDuelCompleted, d, d.ChallengedID, *d.FinishedAt),
	)
	publish(h.publisher, h.log, events...)

	if h.quests != nil {
		if _, err := h.quests.Advance(ctx, AdvanceQuestsCommand{UserID: d.WinnerID, Condition: quest.ConditionDuelWin}); err != nil {
			logOutcome(h.log, "duel quests not advanced", err, logger.UserID(d.WinnerID))
		}
	}
	return result, nil
}

func (h *CompleteDuelHandler) handle(ctx context.Context, cmd CompleteDuelCommand) (*CompleteDuelResult, error) {
	if cmd.DuelID == "" {
		return nil, shared.ErrDuelNotFound
	}
	d, err := h.duels.GetByID(ctx, cmd.DuelID)
	if err != nil {
		return nil, err
	}
	if d.Status != duel.StatusActive || d.StartedAt == nil {
		return nil, shared.ErrInvalidTransition
	}

	attempts := make([]duel.Attempt, 0, 2)
	for _, userID := range []string{d.ChallengerID, d.ChallengedID} {
		v, err := h.oracle.Accepted(ctx, userID, d.ProblemRef, *d.StartedAt)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, duel.Attempt{UserID: userID, Accepted: v.Accepted, AcceptedAt: v.AcceptedAt})
	}

	winner, ok := d.DecideWinner(attempts...)
	if !ok {
		return nil, shared.ErrNoDuelWinner
	}

	result := &CompleteDuelResult{}
	err = h.tx.WithinTx(ctx, func(ctx context.Context) error {
		settled, err := transitionDuel(ctx, h.duels, d.ID, func(d *duel.Duel) error {
			return d.Complete(winner, h.calendar.Now())
		})
		if err != nil {
			return err
		}
		result.Duel = settled

		result.Grant, err = grantIfPositive(ctx, h.granter, GrantXPCommand{
			UserID:   winner,
			Amount:   h.config.WinXP,
			Reason:   player.ReasonDuelWin,
			DedupKey: settled.GrantKey(),
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
