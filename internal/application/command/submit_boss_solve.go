package command

import (
	"context"

	"github.com/google/uuid"

	"github.com/alem-hub/arena-engine/internal/domain/boss"
	"github.com/alem-hub/arena-engine/internal/domain/player"
	"github.com/alem-hub/arena-engine/internal/domain/problem"
	"github.com/alem-hub/arena-engine/internal/domain/quest"
	"github.com/alem-hub/arena-engine/internal/domain/shared"
	"github.com/alem-hub/arena-engine/pkg/logger"
	"github.com/alem-hub/arena-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// SUBMIT BOSS SOLVE COMMAND
// Verifies the claim with the oracle, then takes the next rank and grants
// the tier reward in one transaction. The rank comes from the battle's
// solve counter, never from counting existing solves.
// ══════════════════════════════════════════════════════════════════════════════

// SubmitBossSolveCommand claims a solve of a boss problem.
type SubmitBossSolveCommand struct {
	BossID string
	UserID string
	Proof  boss.Proof
}

// Validate validates the command.
func (c SubmitBossSolveCommand) Validate() error {
	if _, err := shared.NewUserID(c.UserID); err != nil {
		return err
	}
	if c.BossID == "" {
		return shared.ErrBossNotFound
	}
	return nil
}

// SubmitBossSolveResult contains the ranked solve.
type SubmitBossSolveResult struct {
	Solve *boss.Solve
	Grant *GrantXPResult
}

// SubmitBossSolveHandler handles SubmitBossSolveCommand.
type SubmitBossSolveHandler struct {
	tx        shared.Transactor
	bosses    boss.Repository
	standings boss.StandingsCache
	oracle    problem.Oracle
	granter   *Granter
	quests    *UpdateQuestProgressHandler
	calendar  *timeutil.Calendar
	publisher shared.EventPublisher
	log       *logger.Logger
	newID     func() string
}

// NewSubmitBossSolveHandler creates a new handler. standings and quests may be nil.
func NewSubmitBossSolveHandler(
	tx shared.Transactor,
	bosses boss.Repository,
	standings boss.StandingsCache,
	oracle problem.Oracle,
	granter *Granter,
	quests *UpdateQuestProgressHandler,
	calendar *timeutil.Calendar,
	publisher shared.EventPublisher,
	log *logger.Logger,
) *SubmitBossSolveHandler {
	return &SubmitBossSolveHandler{
		tx:        tx,
		bosses:    bosses,
		standings: standings,
		oracle:    oracle,
		granter:   granter,
		quests:    quests,
		calendar:  calendar,
		publisher: publisher,
		log:       log.With(logger.Component("command"), logger.Operation("submit_boss_solve")),
		newID:     uuid.NewString,
	}
}

// Handle executes the command.
func (h *SubmitBossSolveHandler) Handle(ctx context.Context, cmd SubmitBossSolveCommand) (*SubmitBossSolveResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	result, err := h.handle(ctx, cmd)
	if err != nil {
		logOutcome(h.log, "boss solve rejected", err, logger.BossID(cmd.BossID), logger.UserID(cmd.UserID))
		return nil, err
	}

	s := result.Solve
	h.log.Info("boss solved",
		logger.BossID(s.BossID),
		logger.UserID(s.UserID),
		logger.Int("rank", s.Rank),
		logger.XPAmount(s.XPAwarded),
	)

	if h.standings != nil {
		if err := h.standings.Put(ctx, s.BossID, s.UserID, s.Rank); err != nil {
			h.log.Warn("standings cache not updated", logger.BossID(s.BossID), logger.Err(err))
		}
	}

	events := result.Grant.Events()
	events = append(events, shared.NewBossSolvedEvent(s.BossID, s.UserID, s.Rank, s.XPAwarded, s.SolvedAt))
	publish(h.publisher, h.log, events...)

	if h.quests != nil {
		if _, err := h.quests.Advance(ctx, AdvanceQuestsCommand{UserID: s.UserID, Condition: quest.ConditionBossSolve}); err != nil {
			logOutcome(h.log, "boss quests not advanced", err, logger.UserID(s.UserID))
		}
	}
	return result, nil
}

func (h *SubmitBossSolveHandler) handle(ctx context.Context, cmd SubmitBossSolveCommand) (*SubmitBossSolveResult, error) {
	b, err := h.bosses.GetByID(ctx, cmd.BossID)
	if err != nil {
		return nil, err
	}

	now := h.calendar.Now()
	if !b.IsOpen(now) {
		return nil, shared.ErrBossNotOpen
	}

	verdict, err := h.oracle.Accepted(ctx, cmd.UserID, b.ProblemRef, b.StartsAt)
	if err != nil {
		return nil, err
	}
	if err := verify(b, cmd.Proof, verdict); err != nil {
		return nil, err
	}

	solve := &boss.Solve{
		ID:           h.newID(),
		BossID:       b.ID,
		UserID:       cmd.UserID,
		SubmissionID: verdict.SubmissionID,
		SolvedAt:     now,
	}

	result := &SubmitBossSolveResult{Solve: solve}
	err = h.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := h.bosses.RecordSolve(ctx, solve); err != nil {
			return err
		}

		xp := b.RewardFor(shared.Rank(solve.Rank))
		grant, err := grantIfPositive(ctx, h.granter, GrantXPCommand{
			UserID:   cmd.UserID,
			Amount:   xp,
			Reason:   player.ReasonBossSolve,
			DedupKey: b.GrantKey(),
		})
		if err != nil {
			return err
		}
		result.Grant = grant

		if grant != nil && !grant.AlreadyGranted {
			solve.XPAwarded = xp
			return h.bosses.SetAwarded(ctx, solve.ID, xp)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// verify checks the oracle verdict against the battle window and the proof.
func verify(b *boss.Battle, proof boss.Proof, v problem.Verdict) error {
	if !v.Accepted || !b.Window().Contains(v.AcceptedAt) {
		return shared.ErrBossUnverified
	}
	if proof.SubmissionID != "" && proof.SubmissionID != v.SubmissionID {
		return shared.ErrBossUnverified
	}
	return nil
}
