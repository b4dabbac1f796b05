package command

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/alem-hub/arena-engine/internal/domain/duel"
	"github.com/alem-hub/arena-engine/internal/domain/player"
	"github.com/alem-hub/arena-engine/internal/domain/problem"
	"github.com/alem-hub/arena-engine/internal/domain/ratelimit"
	"github.com/alem-hub/arena-engine/internal/domain/shared"
	"github.com/alem-hub/arena-engine/pkg/logger"
	"github.com/alem-hub/arena-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// DUEL CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// DuelConfig holds duel tunables shared by every duel command.
type DuelConfig struct {
	Limits duel.Limits

	// RatingWindow is the +/- range around the pair's average rating.
	RatingWindow int

	// DailyChallengeLimit caps challenges sent per civil day.
	DailyChallengeLimit int

	// WinXP is granted to the winner.
	WinXP int64
}

// DefaultDuelConfig returns default configuration.
func DefaultDuelConfig() DuelConfig {
	return DuelConfig{
		Limits:              duel.DefaultLimits(),
		RatingWindow:        200,
		DailyChallengeLimit: 5,
		WinXP:               50,
	}
}

// duelEvent builds a DuelEvent for one recipient.
func duelEvent(t shared.EventType, d *duel.Duel, recipient string, at time.Time) shared.Event {
	return shared.NewDuelEvent(t, d.ID, d.ChallengerID, d.ChallengedID, recipient, d.ProblemRef, d.WinnerID, at)
}

// ══════════════════════════════════════════════════════════════════════════════
// CHALLENGE DUEL COMMAND
// ══════════════════════════════════════════════════════════════════════════════

// ChallengeDuelCommand creates a pending duel.
type ChallengeDuelCommand struct {
	ChallengerID     string
	ChallengedID     string
	TimeLimitMinutes int
}

// Validate validates the command shape. Limits are checked by the handler.
func (c ChallengeDuelCommand) Validate() error {
	if _, err := shared.NewUserID(c.ChallengerID); err != nil {
		return err
	}
	if _, err := shared.NewUserID(c.ChallengedID); err != nil {
		return err
	}
	if c.ChallengerID == c.ChallengedID {
		return shared.ErrSelfDuel
	}
	return nil
}

// ChallengeDuelResult contains the created duel.
type ChallengeDuelResult struct {
	Duel         *duel.Duel
	TargetRating shared.Rating
	Quota        ratelimit.Decision
}

// ChallengeDuelHandler handles ChallengeDuelCommand.
type ChallengeDuelHandler struct {
	tx        shared.Transactor
	players   player.Repository
	duels     duel.Repository
	counter   ratelimit.Counter
	catalog   problem.Catalog
	calendar  *timeutil.Calendar
	publisher shared.EventPublisher
	config    DuelConfig
	log       *logger.Logger
	newID     func() string
}

// NewChallengeDuelHandler creates a new ChallengeDuelHandler.
func NewChallengeDuelHandler(
	tx shared.Transactor,
	players player.Repository,
	duels duel.Repository,
	counter ratelimit.Counter,
	catalog problem.Catalog,
	calendar *timeutil.Calendar,
	publisher shared.EventPublisher,
	config DuelConfig,
	log *logger.Logger,
) *ChallengeDuelHandler {
	return &ChallengeDuelHandler{
		tx:        tx,
		players:   players,
		duels:     duels,
		counter:   counter,
		catalog:   catalog,
		calendar:  calendar,
		publisher: publisher,
		config:    config,
		log:       log.With(logger.Component("command"), logger.Operation("challenge_duel")),
		newID:     uuid.NewString,
	}
}

// Handle executes the command.
func (h *ChallengeDuelHandler) Handle(ctx context.Context, cmd ChallengeDuelCommand) (*ChallengeDuelResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	result, err := h.handle(ctx, cmd)
	if err != nil {
		logOutcome(h.log, "challenge rejected", err,
			logger.UserID(cmd.ChallengerID),
			logger.String("challenged_id", cmd.ChallengedID),
		)
		return nil, err
	}

	d := result.Duel
	h.log.Info("duel created",
		logger.DuelID(d.ID),
		logger.UserID(d.ChallengerID),
		logger.String("problem_ref", d.ProblemRef),
	)
	publish(h.publisher, h.log, duelEvent(shared.EventDuelChallenged, d, d.ChallengedID, d.CreatedAt))
	return result, nil
}

func (h *ChallengeDuelHandler) handle(ctx context.Context, cmd ChallengeDuelCommand) (*ChallengeDuelResult, error) {
	for _, id := range []string{cmd.ChallengedID, cmd.ChallengerID} {
		ok, err := h.players.Exists(ctx, id)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, shared.ErrUserNotFound
		}
	}

	if err := h.config.Limits.Validate(cmd.TimeLimitMinutes); err != nil {
		return nil, err
	}

	now := h.calendar.Now()
	used, err := h.counter.CountSince(ctx, cmd.ChallengerID, ratelimit.ActionDuelChallenge, h.calendar.StartOfDay(now))
	if err != nil {
		return nil, err
	}
	quota := ratelimit.Decide(used, h.config.DailyChallengeLimit, h.calendar.NextDayBoundary(now))
	if err := quota.Err(); err != nil {
		return nil, err
	}

	open, err := h.duels.HasOpenBetween(ctx, cmd.ChallengerID, cmd.ChallengedID)
	if err != nil {
		return nil, err
	}
	if open {
		return nil, shared.ErrDuelAlreadyOpen
	}

	target, picked, err := h.selectProblem(ctx, cmd.ChallengerID, cmd.ChallengedID)
	if err != nil {
		return nil, err
	}

	d, err := duel.NewDuel(duel.NewDuelParams{
		ID:               h.newID(),
		ChallengerID:     cmd.ChallengerID,
		ChallengedID:     cmd.ChallengedID,
		ProblemRef:       picked.Ref,
		TimeLimitMinutes: cmd.TimeLimitMinutes,
		Now:              now,
	}, h.config.Limits)
	if err != nil {
		return nil, err
	}

	err = h.tx.WithinTx(ctx, func(ctx context.Context) error {
		// Recheck under the transaction. Two crossing challenges can both
		// pass it; the store's unique open-pair insert rejects the loser.
		open, err := h.duels.HasOpenBetween(ctx, cmd.ChallengerID, cmd.ChallengedID)
		if err != nil {
			return err
		}
		if open {
			return shared.ErrDuelAlreadyOpen
		}
		return h.duels.Create(ctx, d)
	})
	if err != nil {
		return nil, err
	}

	quota.Used++
	quota = ratelimit.Decide(quota.Used, quota.Limit, quota.ResetAt)
	return &ChallengeDuelResult{Duel: d, TargetRating: target, Quota: quota}, nil
}

// selectProblem picks the problem nearest the pair's average rating that
// neither user solved, falling back to any problem in the window.
func (h *ChallengeDuelHandler) selectProblem(ctx context.Context, a, b string) (shared.Rating, problem.Problem, error) {
	ra, err := h.catalog.RecentRating(ctx, a)
	if err != nil {
		return 0, problem.Problem{}, err
	}
	rb, err := h.catalog.RecentRating(ctx, b)
	if err != nil {
		return 0, problem.Problem{}, err
	}

	target, filter := problem.RatingWindow(ra, rb, h.config.RatingWindow)

	filter.ExcludeSolvedBy = []string{a, b}
	candidates, err := h.catalog.Candidates(ctx, filter)
	if err != nil {
		return 0, problem.Problem{}, err
	}
	if len(candidates) == 0 {
		filter.ExcludeSolvedBy = nil
		candidates, err = h.catalog.Candidates(ctx, filter)
		if err != nil {
			return 0, problem.Problem{}, err
		}
	}

	picked, ok := problem.Nearest(candidates, target)
	if !ok {
		return 0, problem.Problem{}, shared.ErrNoCandidateProblem
	}
	return target, picked, nil
}
