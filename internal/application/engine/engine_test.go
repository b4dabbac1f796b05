package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/alem-hub/arena-engine/internal/application/command"
	"github.com/alem-hub/arena-engine/internal/domain/attendance"
	"github.com/alem-hub/arena-engine/internal/domain/boss"
	"github.com/alem-hub/arena-engine/internal/domain/duel"
	"github.com/alem-hub/arena-engine/internal/domain/notification"
	"github.com/alem-hub/arena-engine/internal/domain/problem"
	"github.com/alem-hub/arena-engine/internal/domain/quest"
	"github.com/alem-hub/arena-engine/internal/domain/ratelimit"
	"github.com/alem-hub/arena-engine/internal/domain/shared"
	"github.com/alem-hub/arena-engine/internal/infrastructure/messaging"
	"github.com/alem-hub/arena-engine/internal/infrastructure/persistence/memory"
	"github.com/alem-hub/arena-engine/pkg/logger"
	"github.com/alem-hub/arena-engine/pkg/timeutil"
)

// Monday 2026-10-12, 10:00 UTC.
var monday = time.Date(2026, 10, 12, 10, 0, 0, 0, time.UTC)

type fixture struct {
	store    *memory.Store
	engine   *Engine
	notifier *messaging.RecordingNotifier

	mu  sync.Mutex
	now time.Time
}

func newFixture(t *testing.T, mutate ...func(*Rules)) *fixture {
	t.Helper()

	f := &fixture{store: memory.NewStore(), now: monday, notifier: &messaging.RecordingNotifier{}}

	cal := timeutil.NewCalendar(time.UTC)
	cal.SetClock(func() time.Time {
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.now
	})

	bus := messaging.NewInMemoryEventBus(messaging.InMemoryEventBusConfig{Logger: logger.Nop()})
	cfg := messaging.DefaultDispatcherConfig(f.notifier)
	cfg.Logger = logger.Nop()
	require.NoError(t, messaging.NewDispatcher(cfg).Attach(bus))

	rules := DefaultRules()
	for _, m := range mutate {
		m(&rules)
	}

	s := f.store
	e, err := New(Deps{
		Tx:         s,
		Players:    s.Players(),
		Ledger:     s.Ledger(),
		Quests:     s.Quests(),
		Progress:   s.Quests(),
		Duels:      s.Duels(),
		Bosses:     s.Bosses(),
		Attendance: s.Attendance(),
		Courses:    s.Attendance(),
		Counter:    s.Counter(),
		Catalog:    s.Catalog(),
		Oracle:     s.Catalog(),
		Publisher:  bus,
		Calendar:   cal,
		Logger:     logger.Nop(),
	}, rules)
	require.NoError(t, err)
	f.engine = e
	return f
}

func (f *fixture) setNow(t time.Time) {
	f.mu.Lock()
	f.now = t
	f.mu.Unlock()
}

func (f *fixture) register(t *testing.T, ids ...string) {
	t.Helper()
	for _, id := range ids {
		require.NoError(t, f.engine.RegisterPlayer(context.Background(), id))
	}
}

func (f *fixture) sentTo(userID string, typ notification.Type) int {
	n := 0
	for _, s := range f.notifier.Sent() {
		if s.UserID == userID && s.Type == typ {
			n++
		}
	}
	return n
}

func TestNew_RequiresDependencies(t *testing.T) {
	_, err := New(Deps{}, DefaultRules())
	assert.EqualError(t, err, "engine: missing dependency Tx")
}

func TestRegisterPlayer_Idempotent(t *testing.T) {
	f := newFixture(t)
	f.register(t, "alice", "alice")

	p, err := f.engine.PlayerProgress(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(0), p.XP)
	assert.Equal(t, 1, p.Level)
}

// ══════════════════════════════════════════════════════════════════════════════
// XP
// ══════════════════════════════════════════════════════════════════════════════

func TestGrantXP_IdempotentWithLevelUp(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "alice")

	res, err := f.engine.GrantXP(ctx, "alice", 120, "problem_solved", "solve_cf:1800A")
	require.NoError(t, err)
	assert.False(t, res.AlreadyGranted)
	assert.True(t, res.LeveledUp)
	assert.Equal(t, 2, res.Level.Int())

	res, err = f.engine.GrantXP(ctx, "alice", 120, "problem_solved", "solve_cf:1800A")
	require.NoError(t, err)
	assert.True(t, res.AlreadyGranted)
	assert.False(t, res.LeveledUp)

	p, err := f.engine.PlayerProgress(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(120), p.XP)
	assert.Equal(t, 2, p.Level)
	assert.Equal(t, int64(130), p.XPToNextLevel)

	grants, err := f.engine.ListGrants(ctx, "alice", 10)
	require.NoError(t, err)
	require.Len(t, grants, 1)
	assert.Equal(t, "solve_cf:1800A", grants[0].DedupKey)

	assert.Equal(t, 1, f.sentTo("alice", notification.TypeLevelUp))
}

func TestGrantXP_ConcurrentSameKeyCountsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "alice")

	var g errgroup.Group
	for i := 0; i < 16; i++ {
		g.Go(func() error {
			_, err := f.engine.GrantXP(ctx, "alice", 25, "manual", "bonus_1")
			return err
		})
	}
	require.NoError(t, g.Wait())

	p, err := f.engine.PlayerProgress(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(25), p.XP)
}

func TestGrantXP_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "alice")

	_, err := f.engine.GrantXP(ctx, "alice", 0, "manual", "k")
	assert.True(t, shared.IsInvalidInput(err))

	_, err = f.engine.GrantXP(ctx, "alice", 10, "manual", "")
	assert.True(t, shared.IsInvalidInput(err))

	_, err = f.engine.GrantXP(ctx, "ghost", 10, "manual", "k")
	assert.True(t, shared.IsNotFound(err))
}

// ══════════════════════════════════════════════════════════════════════════════
// STREAKS & QUESTS
// ══════════════════════════════════════════════════════════════════════════════

func TestRecordSolve_StreakAdvancesAndResets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "alice")

	res, err := f.engine.RecordSolve(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, 1, res.Streak.Current)

	res, err = f.engine.RecordSolve(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, res.Changed)

	f.setNow(monday.AddDate(0, 0, 1))
	res, err = f.engine.RecordSolve(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Streak.Current)

	f.setNow(monday.AddDate(0, 0, 4))
	res, err = f.engine.RecordSolve(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, res.Reset)
	assert.Equal(t, 2, res.Missed)
	assert.Equal(t, 1, res.Streak.Current)
	assert.Equal(t, 2, res.Streak.Longest)

	assert.Equal(t, 1, f.sentTo("alice", notification.TypeStreakBroken))
}

func TestRecordSolve_AdvancesStreakQuests(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "alice")
	f.store.AddQuest(quest.Quest{
		ID: "q-streak", Title: "Два дня подряд", Condition: quest.ConditionStreakDay,
		TargetCount: 2, XPReward: 40, WeekStart: timeutil.Date(2026, 10, 12),
	})

	_, err := f.engine.RecordSolve(ctx, "alice")
	require.NoError(t, err)
	f.setNow(monday.AddDate(0, 0, 1))
	res, err := f.engine.RecordSolve(ctx, "alice")
	require.NoError(t, err)

	require.NotNil(t, res.Quests)
	require.Len(t, res.Quests.Completed(), 1)
	assert.Equal(t, "q-streak", res.Quests.Completed()[0].ID)

	p, err := f.engine.PlayerProgress(ctx, "alice")
	require.NoError(t, err)
	// Единственное задание недели: 40 за задание и 200 бонуса.
	assert.Equal(t, int64(240), p.XP)
}

func TestQuests_WeeklyBonusOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "alice")

	week := timeutil.Date(2026, 10, 12)
	f.store.AddQuest(quest.Quest{ID: "q1", Title: "Реши задачу", Condition: quest.ConditionSolve, TargetCount: 1, XPReward: 30, WeekStart: week})
	f.store.AddQuest(quest.Quest{ID: "q2", Title: "Реши две", Condition: quest.ConditionSolve, TargetCount: 2, XPReward: 50, WeekStart: week})
	f.store.AddQuest(quest.Quest{ID: "q-old", Title: "Прошлая неделя", Condition: quest.ConditionSolve, TargetCount: 1, XPReward: 999, WeekStart: week.AddDate(0, 0, -7)})

	res, err := f.engine.AdvanceQuests(ctx, "alice", quest.ConditionSolve)
	require.NoError(t, err)
	require.Len(t, res.Completed(), 1)
	assert.Equal(t, "q1", res.Completed()[0].ID)

	res, err = f.engine.AdvanceQuests(ctx, "alice", quest.ConditionSolve)
	require.NoError(t, err)
	require.Len(t, res.Updated, 1)
	assert.True(t, res.Updated[0].Completed)
	require.NotNil(t, res.Updated[0].WeeklyBonus)

	// Повторное продвижение ничего не меняет.
	res, err = f.engine.AdvanceQuests(ctx, "alice", quest.ConditionSolve)
	require.NoError(t, err)
	assert.Empty(t, res.Updated)

	weekly, err := f.engine.ListWeeklyQuests(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "2026-10-12", weekly.WeekStart)
	assert.True(t, weekly.AllCompleted)
	assert.Len(t, weekly.Quests, 2)

	p, err := f.engine.PlayerProgress(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(30+50+200), p.XP)
	assert.Equal(t, 3, f.sentTo("alice", notification.TypeQuestCompleted))
}

func TestQuests_ConcurrentLastCompletionsGrantBonusOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "alice")

	week := timeutil.Date(2026, 10, 12)
	f.store.AddQuest(quest.Quest{ID: "q1", Title: "Реши задачу", Condition: quest.ConditionSolve, TargetCount: 1, XPReward: 30, WeekStart: week})
	f.store.AddQuest(quest.Quest{ID: "q2", Title: "Выиграй дуэль", Condition: quest.ConditionDuelWin, TargetCount: 1, XPReward: 50, WeekStart: week})

	results := make([]*command.UpdateQuestProgressResult, 2)
	var g errgroup.Group
	for i, id := range []string{"q1", "q2"} {
		g.Go(func() error {
			res, err := f.engine.UpdateQuestProgress(ctx, "alice", id, nil)
			results[i] = res
			return err
		})
	}
	require.NoError(t, g.Wait())

	bonuses := 0
	for _, r := range results {
		assert.True(t, r.Completed)
		if r.WeeklyBonus != nil {
			bonuses++
		}
	}
	assert.Equal(t, 1, bonuses)

	p, err := f.engine.PlayerProgress(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(30+50+200), p.XP)

	_, err = f.engine.UpdateQuestProgress(ctx, "ghost", "q1", nil)
	assert.True(t, shared.IsNotFound(err))
}

func TestUpdateQuestProgress_SetAndComplete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "alice")
	f.store.AddQuest(quest.Quest{ID: "q1", Title: "Пять задач", Condition: quest.ConditionSolve, TargetCount: 5, XPReward: 30, WeekStart: timeutil.Date(2026, 10, 12)})
	f.store.AddQuest(quest.Quest{ID: "q2", Title: "Дуэль", Condition: quest.ConditionDuelWin, TargetCount: 1, XPReward: 30, WeekStart: timeutil.Date(2026, 10, 12)})

	three := 3
	res, err := f.engine.UpdateQuestProgress(ctx, "alice", "q1", &three)
	require.NoError(t, err)
	assert.False(t, res.Completed)
	assert.Equal(t, 3, res.Progress.Progress)

	seven := 7
	res, err = f.engine.UpdateQuestProgress(ctx, "alice", "q1", &seven)
	require.NoError(t, err)
	assert.True(t, res.Completed)
	assert.Equal(t, 7, res.Progress.Progress)
	assert.Nil(t, res.WeeklyBonus)

	_, err = f.engine.UpdateQuestProgress(ctx, "alice", "q1", nil)
	assert.ErrorIs(t, err, shared.ErrQuestAlreadyCompleted)

	negative := -1
	_, err = f.engine.UpdateQuestProgress(ctx, "alice", "q2", &negative)
	assert.True(t, shared.IsInvalidInput(err))

	_, err = f.engine.UpdateQuestProgress(ctx, "alice", "missing", nil)
	assert.True(t, shared.IsNotFound(err))
}

// ══════════════════════════════════════════════════════════════════════════════
// DUELS
// ══════════════════════════════════════════════════════════════════════════════

func seedProblems(s *memory.Store) {
	for i, r := range []shared.Rating{1000, 1200, 1300, 1600} {
		s.AddProblem(problem.Problem{Ref: fmt.Sprintf("cf:%dA", 1800+i), Name: "p", Rating: r})
	}
}

func TestDuel_ChallengeAcceptComplete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "alice", "bob")
	seedProblems(f.store)
	f.store.AddQuest(quest.Quest{ID: "q-duel", Title: "Победи в дуэли", Condition: quest.ConditionDuelWin, TargetCount: 1, XPReward: 20, WeekStart: timeutil.Date(2026, 10, 12)})

	ch, err := f.engine.ChallengeDuel(ctx, "alice", "bob", 30)
	require.NoError(t, err)
	d := ch.Duel
	assert.Equal(t, duel.StatusPending, d.Status)
	assert.Equal(t, "cf:1801A", d.ProblemRef)
	assert.Equal(t, shared.Rating(1200), ch.TargetRating)
	assert.Equal(t, 1, ch.Quota.Used)
	assert.Equal(t, 1, f.sentTo("bob", notification.TypeDuelChallenge))

	_, err = f.engine.ChallengeDuel(ctx, "bob", "alice", 30)
	assert.ErrorIs(t, err, shared.ErrDuelAlreadyOpen)

	_, err = f.engine.AcceptDuel(ctx, d.ID, "alice")
	assert.ErrorIs(t, err, shared.ErrNotChallenged)

	accepted, err := f.engine.AcceptDuel(ctx, d.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, duel.StatusActive, accepted.Status)

	started := *accepted.StartedAt
	f.store.AddUserSolve("alice", d.ProblemRef, "s-a", started.Add(10*time.Minute))
	f.store.AddUserSolve("bob", d.ProblemRef, "s-b", started.Add(5*time.Minute))
	f.setNow(started.Add(12 * time.Minute))

	done, err := f.engine.CompleteDuel(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, duel.StatusCompleted, done.Duel.Status)
	assert.Equal(t, "bob", done.Duel.WinnerID)
	require.NotNil(t, done.Grant)
	assert.Equal(t, int64(50), done.Grant.Grant.Amount.Int64())

	_, err = f.engine.CompleteDuel(ctx, d.ID)
	assert.ErrorIs(t, err, shared.ErrInvalidTransition)

	p, err := f.engine.PlayerProgress(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(50+20+200), p.XP)

	assert.Equal(t, 1, f.sentTo("alice", notification.TypeDuelResult))
	assert.Equal(t, 1, f.sentTo("bob", notification.TypeDuelResult))
}

func TestDuel_DeclineExpireAndQuota(t *testing.T) {
	f := newFixture(t, func(r *Rules) { r.Duel.DailyChallengeLimit = 2 })
	ctx := context.Background()
	f.register(t, "alice", "bob", "carol", "dave")
	seedProblems(f.store)

	first, err := f.engine.ChallengeDuel(ctx, "alice", "bob", 30)
	require.NoError(t, err)
	declined, err := f.engine.DeclineDuel(ctx, first.Duel.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, duel.StatusDeclined, declined.Status)

	second, err := f.engine.ChallengeDuel(ctx, "alice", "carol", 15)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Quota.Remaining)

	_, err = f.engine.ChallengeDuel(ctx, "alice", "dave", 15)
	assert.True(t, shared.IsQuotaExceeded(err))

	decision, err := f.engine.CheckRateLimit(ctx, "alice", ratelimit.ActionDuelChallenge, 2)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, 2, decision.Used)

	active, err := f.engine.AcceptDuel(ctx, second.Duel.ID, "carol")
	require.NoError(t, err)

	_, err = f.engine.ExpireDuel(ctx, active.ID)
	assert.ErrorIs(t, err, shared.ErrDuelNotExpired)

	f.setNow(active.ExpiresAt.Add(time.Second))
	due, err := f.engine.DuelsDue(ctx, f.engine.Calendar().Now(), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)

	_, err = f.engine.CompleteDuel(ctx, active.ID)
	assert.ErrorIs(t, err, shared.ErrNoDuelWinner)

	expired, err := f.engine.ExpireDuel(ctx, active.ID)
	require.NoError(t, err)
	assert.Equal(t, duel.StatusExpired, expired.Status)

	// На следующий день квота снова доступна.
	f.setNow(monday.AddDate(0, 0, 1))
	_, err = f.engine.ChallengeDuel(ctx, "alice", "dave", 15)
	require.NoError(t, err)
}

func TestDuel_InvalidChallenges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "alice", "bob")

	_, err := f.engine.ChallengeDuel(ctx, "alice", "alice", 30)
	assert.ErrorIs(t, err, shared.ErrSelfDuel)

	_, err = f.engine.ChallengeDuel(ctx, "alice", "ghost", 30)
	assert.True(t, shared.IsNotFound(err))

	_, err = f.engine.ChallengeDuel(ctx, "alice", "bob", 5)
	assert.ErrorIs(t, err, shared.ErrInvalidTimeLimit)

	_, err = f.engine.ChallengeDuel(ctx, "alice", "bob", 30)
	assert.ErrorIs(t, err, shared.ErrNoCandidateProblem)
}

// ══════════════════════════════════════════════════════════════════════════════
// BOSS BATTLES
// ══════════════════════════════════════════════════════════════════════════════

func TestBoss_ConcurrentSolvesGetUniqueRanks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.store.AddBoss(boss.Battle{
		ID: "boss-1", Title: "Дракон", ProblemRef: "cf:2000H",
		StartsAt: monday.Add(-time.Hour), EndsAt: monday.Add(time.Hour),
		Rewards: boss.Rewards{First: 500, Top5: 200, Others: 50},
	})

	const n = 50
	users := make([]string, n)
	for i := range users {
		users[i] = fmt.Sprintf("user-%d", i)
		f.register(t, users[i])
		f.store.AddUserSolve(users[i], "cf:2000H", fmt.Sprintf("sub-%d", i), monday.Add(-time.Duration(n-i)*time.Minute))
	}

	results := make([]*command.SubmitBossSolveResult, n)
	var g errgroup.Group
	for i, u := range users {
		g.Go(func() error {
			res, err := f.engine.SubmitBossSolve(ctx, "boss-1", u, boss.Proof{})
			results[i] = res
			return err
		})
	}
	require.NoError(t, g.Wait())

	ranks := make([]int, n)
	var total int64
	for i, r := range results {
		ranks[i] = r.Solve.Rank
		total += r.Solve.XPAwarded
	}
	sort.Ints(ranks)
	want := make([]int, n)
	for i := range want {
		want[i] = i + 1
	}
	assert.Equal(t, want, ranks)
	assert.Equal(t, int64(500+4*200+(n-5)*50), total)

	_, err := f.engine.SubmitBossSolve(ctx, "boss-1", users[0], boss.Proof{})
	assert.True(t, shared.IsConflict(err))

	standings, err := f.engine.BossStandings(ctx, "boss-1", 3)
	require.NoError(t, err)
	assert.Equal(t, n, standings.SolveCount)
	require.Len(t, standings.Standings, 3)
	assert.Equal(t, 1, standings.Standings[0].Rank)
	assert.False(t, standings.FromCache)
}

func TestBoss_RejectsUnverifiedAndClosed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "alice", "bob")

	f.store.AddBoss(boss.Battle{
		ID: "boss-1", Title: "Дракон", ProblemRef: "cf:2000H",
		StartsAt: monday.Add(-time.Hour), EndsAt: monday.Add(time.Hour),
		Rewards: boss.Rewards{First: 500},
	})
	f.store.AddBoss(boss.Battle{
		ID: "boss-old", Title: "Старый", ProblemRef: "cf:1000A",
		StartsAt: monday.AddDate(0, 0, -3), EndsAt: monday.AddDate(0, 0, -2),
	})

	// Решение до начала битвы не засчитывается.
	f.store.AddUserSolve("alice", "cf:2000H", "early", monday.Add(-2*time.Hour))
	_, err := f.engine.SubmitBossSolve(ctx, "boss-1", "alice", boss.Proof{})
	assert.True(t, shared.IsUnverified(err))

	f.store.AddUserSolve("bob", "cf:2000H", "sub-b", monday.Add(-time.Minute))
	_, err = f.engine.SubmitBossSolve(ctx, "boss-1", "bob", boss.Proof{SubmissionID: "other"})
	assert.True(t, shared.IsUnverified(err))

	res, err := f.engine.SubmitBossSolve(ctx, "boss-1", "bob", boss.Proof{SubmissionID: "sub-b"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Solve.Rank)

	_, err = f.engine.SubmitBossSolve(ctx, "boss-old", "bob", boss.Proof{})
	assert.ErrorIs(t, err, shared.ErrBossNotOpen)

	_, err = f.engine.SubmitBossSolve(ctx, "missing", "bob", boss.Proof{})
	assert.True(t, shared.IsNotFound(err))
}

// ══════════════════════════════════════════════════════════════════════════════
// ATTENDANCE
// ══════════════════════════════════════════════════════════════════════════════

func TestAttendance_MarkAndInsights(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "alice")
	f.store.AddCourse(attendance.Course{
		ID: "math", Name: "Математика",
		WeeklySchedule: [7]int{1, 1, 1, 1, 1, 0, 0},
		SemesterEnd:    timeutil.Date(2026, 12, 18),
	})

	f.setNow(monday.AddDate(0, 0, 4))
	for day, status := range []attendance.Status{
		attendance.StatusAttended, attendance.StatusAttended, attendance.StatusBunked, attendance.StatusAttended,
	} {
		_, err := f.engine.MarkAttendance(ctx, command.MarkAttendanceCommand{
			UserID: "alice", CourseID: "math", Date: timeutil.Date(2026, 10, 12+day), Slot: 1, Status: status,
		})
		require.NoError(t, err)
	}

	insights, err := f.engine.ComputeAttendanceInsights(ctx, "alice", "math")
	require.NoError(t, err)
	assert.Equal(t, 3, insights.Attended)
	assert.Equal(t, 4, insights.Total)
	assert.InDelta(t, 75.0, insights.Percentage, 0.01)
	assert.Equal(t, attendance.RiskDanger, insights.RiskLevel)
	assert.Equal(t, 0, insights.Skippable)
	assert.Positive(t, insights.ClassesNeededToRecover)

	all, err := f.engine.ComputeAllAttendanceInsights(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "math", all[0].CourseID)

	_, err = f.engine.MarkAttendance(ctx, command.MarkAttendanceCommand{
		UserID: "alice", CourseID: "math", Date: timeutil.Date(2026, 10, 20), Slot: 1, Status: attendance.StatusAttended,
	})
	assert.ErrorIs(t, err, shared.ErrMarkInFuture)

	_, err = f.engine.ComputeAttendanceInsights(ctx, "alice", "history")
	assert.True(t, shared.IsNotFound(err))
}

func TestAttendance_DailyMarkQuota(t *testing.T) {
	f := newFixture(t, func(r *Rules) { r.Attendance.DailyMarkLimit = 2 })
	ctx := context.Background()
	f.register(t, "alice")
	f.store.AddCourse(attendance.Course{ID: "math", WeeklySchedule: [7]int{3, 3, 3, 3, 3, 0, 0}})

	mark := func(slot int) error {
		_, err := f.engine.MarkAttendance(ctx, command.MarkAttendanceCommand{
			UserID: "alice", CourseID: "math", Date: timeutil.Date(2026, 10, 12), Slot: slot, Status: attendance.StatusAttended,
		})
		return err
	}
	require.NoError(t, mark(1))
	require.NoError(t, mark(2))
	assert.True(t, shared.IsQuotaExceeded(mark(3)))
}
