// Package engine is the single entry point of the gamification and
// competition engine. An action handler (bot, HTTP, worker) authenticates
// the caller and then calls exactly one Engine method.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/alem-hub/arena-engine/internal/application/command"
	"github.com/alem-hub/arena-engine/internal/application/query"
	"github.com/alem-hub/arena-engine/internal/domain/attendance"
	"github.com/alem-hub/arena-engine/internal/domain/boss"
	"github.com/alem-hub/arena-engine/internal/domain/duel"
	"github.com/alem-hub/arena-engine/internal/domain/player"
	"github.com/alem-hub/arena-engine/internal/domain/problem"
	"github.com/alem-hub/arena-engine/internal/domain/quest"
	"github.com/alem-hub/arena-engine/internal/domain/ratelimit"
	"github.com/alem-hub/arena-engine/internal/domain/shared"
	"github.com/alem-hub/arena-engine/pkg/logger"
	"github.com/alem-hub/arena-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// RULES
// ══════════════════════════════════════════════════════════════════════════════

// Rules are the gamification tunables.
type Rules struct {
	Levels     player.LevelTable
	Streak     player.StreakPolicy
	Quest      command.QuestConfig
	Duel       command.DuelConfig
	Attendance command.AttendanceConfig
	Calculator attendance.Calculator

	// CourseCacheSize bounds the course config LRU used by attendance insights.
	CourseCacheSize int
}

// DefaultRules returns the built-in rules.
func DefaultRules() Rules {
	return Rules{
		Levels:          player.DefaultLevelTable(),
		Streak:          player.DefaultStreakPolicy(),
		Quest:           command.DefaultQuestConfig(),
		Duel:            command.DefaultDuelConfig(),
		Attendance:      command.DefaultAttendanceConfig(),
		Calculator:      attendance.DefaultCalculator(),
		CourseCacheSize: 256,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// Deps are the ports the engine needs. Standings and Publisher are optional.
type Deps struct {
	Tx         shared.Transactor
	Players    player.Repository
	Ledger     player.LedgerRepository
	Quests     quest.Repository
	Progress   quest.ProgressRepository
	Duels      duel.Repository
	Bosses     boss.Repository
	Standings  boss.StandingsCache
	Attendance attendance.Repository
	Courses    attendance.CourseRepository
	Counter    ratelimit.Counter
	Catalog    problem.Catalog
	Oracle     problem.Oracle
	Publisher  shared.EventPublisher
	Calendar   *timeutil.Calendar
	Logger     *logger.Logger
}

func (d Deps) validate() error {
	missing := func(name string) error { return fmt.Errorf("engine: missing dependency %s", name) }
	switch {
	case d.Tx == nil:
		return missing("Tx")
	case d.Players == nil:
		return missing("Players")
	case d.Ledger == nil:
		return missing("Ledger")
	case d.Quests == nil:
		return missing("Quests")
	case d.Progress == nil:
		return missing("Progress")
	case d.Duels == nil:
		return missing("Duels")
	case d.Bosses == nil:
		return missing("Bosses")
	case d.Attendance == nil:
		return missing("Attendance")
	case d.Courses == nil:
		return missing("Courses")
	case d.Counter == nil:
		return missing("Counter")
	case d.Catalog == nil:
		return missing("Catalog")
	case d.Oracle == nil:
		return missing("Oracle")
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ENGINE
// ══════════════════════════════════════════════════════════════════════════════

// Engine exposes every engine operation.
type Engine struct {
	players  player.Repository
	calendar *timeutil.Calendar
	log      *logger.Logger

	grantXP        *command.GrantXPHandler
	recordSolve    *command.RecordSolveHandler
	questProgress  *command.UpdateQuestProgressHandler
	challengeDuel  *command.ChallengeDuelHandler
	acceptDuel     *command.AcceptDuelHandler
	declineDuel    *command.DeclineDuelHandler
	expireDuel     *command.ExpireDuelHandler
	completeDuel   *command.CompleteDuelHandler
	submitBoss     *command.SubmitBossSolveHandler
	markAttendance *command.MarkAttendanceHandler

	rateLimit      *query.CheckRateLimitHandler
	insights       *query.AttendanceInsightsHandler
	bossStandings  *query.BossStandingsHandler
	listGrants     *query.ListGrantsHandler
	playerProgress *query.PlayerProgressHandler
	weeklyQuests   *query.WeeklyQuestsHandler

	duels duel.Repository
}

// New wires every handler.
func New(deps Deps, rules Rules) (*Engine, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if deps.Publisher == nil {
		deps.Publisher = shared.NopPublisher{}
	}
	if deps.Calendar == nil {
		deps.Calendar = timeutil.NewCalendar(timeutil.IndiaTZ)
	}
	if deps.Logger == nil {
		deps.Logger = logger.Default()
	}

	cal, pub, log := deps.Calendar, deps.Publisher, deps.Logger
	granter := command.NewGranter(deps.Players, deps.Ledger, rules.Levels, cal)
	quests := command.NewUpdateQuestProgressHandler(deps.Tx, deps.Quests, deps.Progress, granter, cal, pub, rules.Quest, log)

	insights, err := query.NewAttendanceInsightsHandler(deps.Attendance, deps.Courses, rules.Calculator, cal, rules.CourseCacheSize)
	if err != nil {
		return nil, err
	}

	return &Engine{
		players:  deps.Players,
		calendar: cal,
		log:      log.With(logger.Component("engine")),

		grantXP:        command.NewGrantXPHandler(deps.Tx, granter, pub, log),
		recordSolve:    command.NewRecordSolveHandler(deps.Players, rules.Streak, quests, cal, pub, log),
		questProgress:  quests,
		challengeDuel:  command.NewChallengeDuelHandler(deps.Tx, deps.Players, deps.Duels, deps.Counter, deps.Catalog, cal, pub, rules.Duel, log),
		acceptDuel:     command.NewAcceptDuelHandler(deps.Duels, cal, pub, log),
		declineDuel:    command.NewDeclineDuelHandler(deps.Duels, cal, pub, log),
		expireDuel:     command.NewExpireDuelHandler(deps.Duels, cal, pub, log),
		completeDuel:   command.NewCompleteDuelHandler(deps.Tx, deps.Duels, deps.Oracle, granter, quests, cal, pub, rules.Duel, log),
		submitBoss:     command.NewSubmitBossSolveHandler(deps.Tx, deps.Bosses, deps.Standings, deps.Oracle, granter, quests, cal, pub, log),
		markAttendance: command.NewMarkAttendanceHandler(deps.Attendance, deps.Courses, deps.Counter, cal, rules.Attendance, log),

		rateLimit:      query.NewCheckRateLimitHandler(deps.Counter, cal),
		insights:       insights,
		bossStandings:  query.NewBossStandingsHandler(deps.Bosses, deps.Standings, log),
		listGrants:     query.NewListGrantsHandler(deps.Players, deps.Ledger),
		playerProgress: query.NewPlayerProgressHandler(deps.Players, rules.Levels),
		weeklyQuests:   query.NewWeeklyQuestsHandler(deps.Quests, deps.Progress, cal),

		duels: deps.Duels,
	}, nil
}

// Calendar returns the product calendar.
func (e *Engine) Calendar() *timeutil.Calendar {
	return e.calendar
}

// ══════════════════════════════════════════════════════════════════════════════
// PLAYERS & XP
// ══════════════════════════════════════════════════════════════════════════════

// RegisterPlayer creates an account with zero progress. Registering an
// existing user is a no-op.
func (e *Engine) RegisterPlayer(ctx context.Context, userID string) error {
	acc, err := player.NewAccount(userID, e.calendar.Now())
	if err != nil {
		return err
	}
	err = e.players.Create(ctx, acc)
	if shared.IsConflict(err) {
		return nil
	}
	return err
}

// GrantXP records a deduplicated XP grant.
func (e *Engine) GrantXP(ctx context.Context, userID string, amount int64, reason, dedupKey string) (*command.GrantXPResult, error) {
	return e.grantXP.Handle(ctx, command.GrantXPCommand{
		UserID:   userID,
		Amount:   amount,
		Reason:   reason,
		DedupKey: dedupKey,
	})
}

// ListGrants returns the user's latest grants.
func (e *Engine) ListGrants(ctx context.Context, userID string, limit int) ([]query.GrantDTO, error) {
	return e.listGrants.Handle(ctx, query.ListGrantsQuery{UserID: userID, Limit: limit})
}

// PlayerProgress returns XP, level and streak.
func (e *Engine) PlayerProgress(ctx context.Context, userID string) (*query.PlayerProgressDTO, error) {
	return e.playerProgress.Handle(ctx, userID)
}

// RecordSolve applies today's qualifying solve to the streak.
func (e *Engine) RecordSolve(ctx context.Context, userID string) (*command.RecordSolveResult, error) {
	return e.recordSolve.Handle(ctx, command.RecordSolveCommand{UserID: userID})
}

// ══════════════════════════════════════════════════════════════════════════════
// QUESTS
// ══════════════════════════════════════════════════════════════════════════════

// UpdateQuestProgress sets progress to value, or increments it when value is nil.
func (e *Engine) UpdateQuestProgress(ctx context.Context, userID, questID string, value *int) (*command.UpdateQuestProgressResult, error) {
	return e.questProgress.Handle(ctx, command.UpdateQuestProgressCommand{
		UserID:   userID,
		QuestID:  questID,
		Progress: value,
	})
}

// AdvanceQuests increments every open quest of this week with the condition.
func (e *Engine) AdvanceQuests(ctx context.Context, userID string, condition quest.ConditionType) (*command.AdvanceQuestsResult, error) {
	return e.questProgress.Advance(ctx, command.AdvanceQuestsCommand{UserID: userID, Condition: condition})
}

// ListWeeklyQuests returns this week's quests with the user's progress.
func (e *Engine) ListWeeklyQuests(ctx context.Context, userID string) (*query.WeeklyQuestsDTO, error) {
	return e.weeklyQuests.Handle(ctx, userID)
}

// ══════════════════════════════════════════════════════════════════════════════
// DUELS
// ══════════════════════════════════════════════════════════════════════════════

// ChallengeDuel creates a pending duel on an auto-selected problem.
func (e *Engine) ChallengeDuel(ctx context.Context, challengerID, challengedID string, timeLimitMinutes int) (*command.ChallengeDuelResult, error) {
	return e.challengeDuel.Handle(ctx, command.ChallengeDuelCommand{
		ChallengerID:     challengerID,
		ChallengedID:     challengedID,
		TimeLimitMinutes: timeLimitMinutes,
	})
}

// AcceptDuel starts a pending duel.
func (e *Engine) AcceptDuel(ctx context.Context, duelID, actorID string) (*duel.Duel, error) {
	res, err := e.acceptDuel.Handle(ctx, command.AcceptDuelCommand{DuelID: duelID, ActorID: actorID})
	if err != nil {
		return nil, err
	}
	return res.Duel, nil
}

// DeclineDuel rejects a pending duel.
func (e *Engine) DeclineDuel(ctx context.Context, duelID, actorID string) (*duel.Duel, error) {
	res, err := e.declineDuel.Handle(ctx, command.DeclineDuelCommand{DuelID: duelID, ActorID: actorID})
	if err != nil {
		return nil, err
	}
	return res.Duel, nil
}

// ExpireDuel closes an active duel past its deadline.
func (e *Engine) ExpireDuel(ctx context.Context, duelID string) (*duel.Duel, error) {
	res, err := e.expireDuel.Handle(ctx, command.ExpireDuelCommand{DuelID: duelID})
	if err != nil {
		return nil, err
	}
	return res.Duel, nil
}

// CompleteDuel settles an active duel for the first in-window solver.
func (e *Engine) CompleteDuel(ctx context.Context, duelID string) (*command.CompleteDuelResult, error) {
	return e.completeDuel.Handle(ctx, command.CompleteDuelCommand{DuelID: duelID})
}

// DuelsDue lists active duels whose deadline is at or before before.
func (e *Engine) DuelsDue(ctx context.Context, before time.Time, limit int) ([]*duel.Duel, error) {
	return e.duels.ListActiveDue(ctx, before, limit)
}

// ══════════════════════════════════════════════════════════════════════════════
// BOSS BATTLES
// ══════════════════════════════════════════════════════════════════════════════

// SubmitBossSolve ranks a verified boss solve.
func (e *Engine) SubmitBossSolve(ctx context.Context, bossID, userID string, proof boss.Proof) (*command.SubmitBossSolveResult, error) {
	return e.submitBoss.Handle(ctx, command.SubmitBossSolveCommand{BossID: bossID, UserID: userID, Proof: proof})
}

// BossStandings returns the top of a boss battle.
func (e *Engine) BossStandings(ctx context.Context, bossID string, limit int) (*query.BossStandingsDTO, error) {
	return e.bossStandings.Handle(ctx, query.BossStandingsQuery{BossID: bossID, Limit: limit})
}

// ══════════════════════════════════════════════════════════════════════════════
// RATE LIMITS & ATTENDANCE
// ══════════════════════════════════════════════════════════════════════════════

// CheckRateLimit reports how much of a daily quota is used.
func (e *Engine) CheckRateLimit(ctx context.Context, userID string, action ratelimit.ActionKind, dailyLimit int) (ratelimit.Decision, error) {
	return e.rateLimit.Handle(ctx, query.CheckRateLimitQuery{UserID: userID, Action: action, DailyLimit: dailyLimit})
}

// MarkAttendance records presence for a class slot.
func (e *Engine) MarkAttendance(ctx context.Context, cmd command.MarkAttendanceCommand) (*command.MarkAttendanceResult, error) {
	return e.markAttendance.Handle(ctx, cmd)
}

// ComputeAttendanceInsights computes risk figures for one course.
func (e *Engine) ComputeAttendanceInsights(ctx context.Context, userID, courseID string) (*attendance.Insights, error) {
	return e.insights.Handle(ctx, query.AttendanceInsightsQuery{UserID: userID, CourseID: courseID})
}

// ComputeAllAttendanceInsights computes risk figures for every course the user attends.
func (e *Engine) ComputeAllAttendanceInsights(ctx context.Context, userID string) ([]*attendance.Insights, error) {
	return e.insights.HandleAll(ctx, query.AttendanceInsightsQuery{UserID: userID})
}
