package command

import (
	"context"

	"github.com/alem-hub/arena-engine/internal/domain/duel"
	"github.com/alem-hub/arena-engine/internal/domain/shared"
	"github.com/alem-hub/arena-engine/pkg/logger"
	"github.com/alem-hub/arena-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// DUEL TRANSITIONS
// Accept, decline and expire share one shape: load, apply the domain
// transition, then compare-and-swap on the prior status. A lost swap means
// another worker moved the duel first and is reported as a conflict.
// ══════════════════════════════════════════════════════════════════════════════

// DuelTransitionResult contains the duel after a transition.
type DuelTransitionResult struct {
	Duel *duel.Duel
}

// transitionDuel loads the duel, mutates it with apply and stores it only if
// its status is still from.
func transitionDuel(ctx context.Context, duels duel.Repository, id string, apply func(d *duel.Duel) error) (*duel.Duel, error) {
	if id == "" {
		return nil, shared.ErrDuelNotFound
	}
	d, err := duels.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	from := d.Status
	if err := apply(d); err != nil {
		return nil, err
	}

	swapped, err := duels.Transition(ctx, d, from)
	if err != nil {
		return nil, err
	}
	if !swapped {
		return nil, shared.ErrInvalidTransition
	}
	return d, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ACCEPT DUEL COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// AcceptDuelCommand starts a pending duel.
type AcceptDuelCommand struct {
	DuelID  string
	ActorID string
}

// AcceptDuelHandler handles AcceptDuelCommand.
type AcceptDuelHandler struct {
	duels     duel.Repository
	calendar  *timeutil.Calendar
	publisher shared.EventPublisher
	log       *logger.Logger
}

// NewAcceptDuelHandler creates a new AcceptDuelHandler.
func NewAcceptDuelHandler(duels duel.Repository, calendar *timeutil.Calendar, publisher shared.EventPublisher, log *logger.Logger) *AcceptDuelHandler {
	return &AcceptDuelHandler{
		duels:     duels,
		calendar:  calendar,
		publisher: publisher,
		log:       log.With(logger.Component("command"), logger.Operation("accept_duel")),
	}
}

// Handle executes the command.
func (h *AcceptDuelHandler) Handle(ctx context.Context, cmd AcceptDuelCommand) (*DuelTransitionResult, error) {
	now := h.calendar.Now()
	d, err := transitionDuel(ctx, h.duels, cmd.DuelID, func(d *duel.Duel) error {
		return d.Accept(cmd.ActorID, now)
	})
	if err != nil {
		logOutcome(h.log, "accept rejected", err, logger.DuelID(cmd.DuelID), logger.UserID(cmd.ActorID))
		return nil, err
	}

	h.log.Info("duel started", logger.DuelID(d.ID), logger.Time("expires_at", *d.ExpiresAt))
	publish(h.publisher, h.log, duelEvent(shared.EventDuelAccepted, d, d.ChallengerID, now))
	return &DuelTransitionResult{Duel: d}, nil
}
