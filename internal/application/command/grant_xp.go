// Package command contains write operations (CQRS - Commands).
//
// Every handler runs its store writes inside one shared.Transactor
// transaction and publishes domain events only after the commit. Event
// delivery never changes the outcome of a command.
package command

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/alem-hub/arena-engine/internal/domain/player"
	"github.com/alem-hub/arena-engine/internal/domain/shared"
	"github.com/alem-hub/arena-engine/pkg/logger"
	"github.com/alem-hub/arena-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GRANT XP COMMAND
// The single write path for XP. Quests, duels and bosses all grant through
// Granter inside their own transactions.
// ══════════════════════════════════════════════════════════════════════════════

// GrantXPCommand contains the data to grant XP.
type GrantXPCommand struct {
	UserID   string
	Amount   int64
	Reason   string
	DedupKey string
}

// Validate validates the command.
func (c GrantXPCommand) Validate() error {
	_, err := player.NewGrant(player.NewGrantParams{
		UserID:   c.UserID,
		Amount:   c.Amount,
		DedupKey: c.DedupKey,
	})
	return err
}

// GrantXPResult contains the result of a grant.
type GrantXPResult struct {
	Grant *player.Grant

	// AlreadyGranted is true when the dedup key was used before. Grant is
	// then the original record and nothing was written.
	AlreadyGranted bool

	TotalXP       player.XP
	PreviousLevel player.Level
	Level         player.Level
	LeveledUp     bool
}

// Events returns the domain events of a fresh grant.
func (r *GrantXPResult) Events() []shared.Event {
	if r == nil || r.AlreadyGranted {
		return nil
	}
	g := r.Grant
	events := []shared.Event{
		shared.NewXPGrantedEvent(g.UserID, g.Amount.Int64(), g.Reason, g.DedupKey, r.TotalXP.Int64(), g.CreatedAt),
	}
	if r.LeveledUp {
		events = append(events, shared.NewLevelUpEvent(g.UserID, r.PreviousLevel.Int(), r.Level.Int(), g.CreatedAt))
	}
	return events
}

// Granter writes grants. Grant must be called with a transactional ctx.
type Granter struct {
	players  player.Repository
	ledger   player.LedgerRepository
	levels   player.LevelTable
	calendar *timeutil.Calendar
	newID    func() string
}

// NewGranter creates a Granter.
func NewGranter(players player.Repository, ledger player.LedgerRepository, levels player.LevelTable, calendar *timeutil.Calendar) *Granter {
	return &Granter{
		players:  players,
		ledger:   ledger,
		levels:   levels,
		calendar: calendar,
		newID:    uuid.NewString,
	}
}

// Levels returns the level table in use.
func (g *Granter) Levels() player.LevelTable {
	return g.levels
}

// Grant inserts the grant, bumps the cached XP and recomputes the level.
func (g *Granter) Grant(ctx context.Context, cmd GrantXPCommand) (*GrantXPResult, error) {
	grant, err := player.NewGrant(player.NewGrantParams{
		ID:       g.newID(),
		UserID:   cmd.UserID,
		Amount:   cmd.Amount,
		Reason:   cmd.Reason,
		DedupKey: cmd.DedupKey,
		Now:      g.calendar.Now(),
	})
	if err != nil {
		return nil, err
	}

	inserted, err := g.ledger.Insert(ctx, grant)
	if err != nil {
		return nil, err
	}
	if !inserted {
		return g.replay(ctx, grant)
	}

	total, previous, err := g.players.IncrementXP(ctx, grant.UserID, grant.Amount)
	if err != nil {
		return nil, err
	}

	level := g.levels.LevelFor(total)
	if level != previous {
		if err := g.players.SetLevel(ctx, grant.UserID, level); err != nil {
			return nil, err
		}
	}

	return &GrantXPResult{
		Grant:         grant,
		TotalXP:       total,
		PreviousLevel: previous,
		Level:         level,
		LeveledUp:     level > previous,
	}, nil
}

func (g *Granter) replay(ctx context.Context, attempted *player.Grant) (*GrantXPResult, error) {
	existing, err := g.ledger.GetByDedupKey(ctx, attempted.UserID, attempted.DedupKey)
	if err != nil {
		return nil, err
	}
	acc, err := g.players.GetByID(ctx, attempted.UserID)
	if err != nil {
		return nil, err
	}
	return &GrantXPResult{
		Grant:          existing,
		AlreadyGranted: true,
		TotalXP:        acc.XP,
		PreviousLevel:  acc.Level,
		Level:          acc.Level,
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// GrantXPHandler handles the GrantXPCommand.
type GrantXPHandler struct {
	tx        shared.Transactor
	granter   *Granter
	publisher shared.EventPublisher
	log       *logger.Logger
}

// NewGrantXPHandler creates a new GrantXPHandler.
func NewGrantXPHandler(tx shared.Transactor, granter *Granter, publisher shared.EventPublisher, log *logger.Logger) *GrantXPHandler {
	return &GrantXPHandler{
		tx:        tx,
		granter:   granter,
		publisher: publisher,
		log:       log.With(logger.Component("command"), logger.Operation("grant_xp")),
	}
}

// Handle executes the grant.
func (h *GrantXPHandler) Handle(ctx context.Context, cmd GrantXPCommand) (*GrantXPResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	var result *GrantXPResult
	err := h.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		result, err = h.granter.Grant(ctx, cmd)
		return err
	})
	if err != nil {
		return nil, err
	}

	if result.AlreadyGranted {
		h.log.Debug("grant replayed", logger.UserID(cmd.UserID), logger.DedupKey(cmd.DedupKey))
	} else {
		h.log.Info("xp granted",
			logger.UserID(cmd.UserID),
			logger.XPAmount(cmd.Amount),
			logger.DedupKey(cmd.DedupKey),
			logger.Int("level", result.Level.Int()),
		)
	}

	publish(h.publisher, h.log, result.Events()...)
	return result, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// publish sends events after commit. Failures are logged and dropped.
func publish(p shared.EventPublisher, log *logger.Logger, events ...shared.Event) {
	if p == nil {
		return
	}
	for _, e := range events {
		if err := p.Publish(e); err != nil {
			log.Warn("publish failed",
				logger.String("event_type", string(e.EventType())),
				logger.Err(err),
			)
		}
	}
}

// grantIfPositive grants only when amount is positive. A zero reward is a
// configured "no XP" and not an error.
func grantIfPositive(ctx context.Context, g *Granter, cmd GrantXPCommand) (*GrantXPResult, error) {
	if cmd.Amount <= 0 {
		return nil, nil
	}
	return g.Grant(ctx, cmd)
}

// logOutcome logs a command failure at the level its kind deserves.
func logOutcome(log *logger.Logger, msg string, err error, fields ...logger.Field) {
	fields = append(fields, logger.Err(err))
	switch {
	case errors.Is(err, context.Canceled):
		return
	case shared.IsRetryable(err):
		log.Error(msg, fields...)
	case shared.KindOf(err) != nil:
		log.Debug(msg, fields...)
	default:
		log.Error(msg, fields...)
	}
}
