package command

import (
	"context"

	"github.com/alem-hub/arena-engine/internal/domain/duel"
	"github.com/alem-hub/arena-engine/internal/domain/shared"
	"github.com/alem-hub/arena-engine/pkg/logger"
	"github.com/alem-hub/arena-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// EXPIRE DUEL COMMAND
// Called by the worker sweep. Idempotent in effect: a second call on the
// same duel reports a conflict and changes nothing.
// ══════════════════════════════════════════════════════════════════════════════

// ExpireDuelCommand closes an active duel past its deadline.
type ExpireDuelCommand struct {
	DuelID string
}

// ExpireDuelHandler handles ExpireDuelCommand.
type ExpireDuelHandler struct {
	duels     duel.Repository
	calendar  *timeutil.Calendar
	publisher shared.EventPublisher
	log       *logger.Logger
}

// NewExpireDuelHandler creates a new ExpireDuelHandler.
func NewExpireDuelHandler(duels duel.Repository, calendar *timeutil.Calendar, publisher shared.EventPublisher, log *logger.Logger) *ExpireDuelHandler {
	return &ExpireDuelHandler{
		duels:     duels,
		calendar:  calendar,
		publisher: publisher,
		log:       log.With(logger.Component("command"), logger.Operation("expire_duel")),
	}
}

// Handle executes the command.
func (h *ExpireDuelHandler) Handle(ctx context.Context, cmd ExpireDuelCommand) (*DuelTransitionResult, error) {
	now := h.calendar.Now()
	d, err := transitionDuel(ctx, h.duels, cmd.DuelID, func(d *duel.Duel) error {
		return d.Expire(now)
	})
	if err != nil {
		logOutcome(h.log, "expire rejected", err, logger.DuelID(cmd.DuelID))
		return nil, err
	}

	h.log.Info("duel expired", logger.DuelID(d.ID))
	publish(h.publisher, h.log,
		duelEvent(shared.EventDuelExpired, d, d.ChallengerID, now),
		duelEvent(shared.EventDuelExpired, d, d.ChallengedID, now),
	)
	return &DuelTransitionResult{Duel: d}, nil
}
