package command

import (
	"context"

	"github.com/alem-hub/arena-engine/internal/domain/duel"
	"github.com/alem-hub/arena-engine/internal/domain/shared"
	"github.com/alem-hub/arena-engine/pkg/logger"
	"github.com/alem-hub/arena-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// DECLINE DUEL COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// DeclineDuelCommand rejects a pending duel.
type DeclineDuelCommand struct {
	DuelID  string
	ActorID string
}

// DeclineDuelHandler handles DeclineDuelCommand.
type DeclineDuelHandler struct {
	duels     duel.Repository
	calendar  *timeutil.Calendar
	publisher shared.EventPublisher
	log       *logger.Logger
}

// NewDeclineDuelHandler creates a new DeclineDuelHandler.
func NewDeclineDuelHandler(duels duel.Repository, calendar *timeutil.Calendar, publisher shared.EventPublisher, log *logger.Logger) *DeclineDuelHandler {
	return &DeclineDuelHandler{
		duels:     duels,
		calendar:  calendar,
		publisher: publisher,
		log:       log.With(logger.Component("command"), logger.Operation("decline_duel")),
	}
}

// Handle executes the command.
func (h *DeclineDuelHandler) Handle(ctx context.Context, cmd DeclineDuelCommand) (*DuelTransitionResult, error) {
	now := h.calendar.Now()
	d, err := transitionDuel(ctx, h.duels, cmd.DuelID, func(d *duel.Duel) error {
		return d.Decline(cmd.ActorID, now)
	})
	if err != nil {
		logOutcome(h.log, "decline rejected", err, logger.DuelID(cmd.DuelID), logger.UserID(cmd.ActorID))
		return nil, err
	}

	h.log.Info("duel declined", logger.DuelID(d.ID))
	publish(h.publisher, h.log, duelEvent(shared.EventDuelDeclined, d, d.ChallengerID, now))
	return &DuelTransitionResult{Duel: d}, nil
}
