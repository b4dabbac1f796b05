package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/arena-engine/internal/application/command"
	"github.com/alem-hub/arena-engine/internal/application/engine"
	"github.com/alem-hub/arena-engine/internal/domain/duel"
	"github.com/alem-hub/arena-engine/internal/domain/problem"
	"github.com/alem-hub/arena-engine/internal/domain/shared"
	"github.com/alem-hub/arena-engine/internal/infrastructure/persistence/memory"
	"github.com/alem-hub/arena-engine/pkg/logger"
	"github.com/alem-hub/arena-engine/pkg/retry"
	"github.com/alem-hub/arena-engine/pkg/timeutil"
)

var start = time.Date(2026, 10, 12, 10, 0, 0, 0, time.UTC)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func newEngine(t *testing.T) (*engine.Engine, *memory.Store, *clock) {
	t.Helper()
	s := memory.NewStore()
	clk := &clock{now: start}
	cal := timeutil.NewCalendar(time.UTC)
	cal.SetClock(clk.Now)

	e, err := engine.New(engine.Deps{
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
		Calendar:   cal,
		Logger:     logger.Nop(),
	}, engine.DefaultRules())
	require.NoError(t, err)

	s.AddProblem(problem.Problem{Ref: "cf:1801A", Name: "p", Rating: 1200})
	return e, s, clk
}

func openDuel(t *testing.T, e *engine.Engine, a, b string, minutes int) *duel.Duel {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, e.RegisterPlayer(ctx, a))
	require.NoError(t, e.RegisterPlayer(ctx, b))
	ch, err := e.ChallengeDuel(ctx, a, b, minutes)
	require.NoError(t, err)
	d, err := e.AcceptDuel(ctx, ch.Duel.ID, b)
	require.NoError(t, err)
	return d
}

func TestSettleDuels_CompletesAndExpiresDueDuels(t *testing.T) {
	e, store, clk := newEngine(t)
	ctx := context.Background()

	won := openDuel(t, e, "alice", "bob", 15)
	openDuel(t, e, "carol", "dave", 15)
	running := openDuel(t, e, "erin", "frank", 60)
	store.AddUserSolve("bob", won.ProblemRef, "s-1", start.Add(5*time.Minute))

	clk.Set(start.Add(20 * time.Minute))

	job := NewSettleDuelsJob(e, logger.Nop(), DefaultSettleDuelsConfig())
	require.NoError(t, job.Run(ctx))

	stats := job.LastStats()
	require.NotNil(t, stats)
	assert.Equal(t, 2, stats.Scanned)
	assert.Equal(t, int64(1), stats.Completed)
	assert.Equal(t, int64(1), stats.Expired)
	assert.Zero(t, stats.Failed)

	due, err := e.DuelsDue(ctx, clk.Now().Add(time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, running.ID, due[0].ID)

	p, err := e.PlayerProgress(ctx, "bob")
	require.NoError(t, err)
	assert.Positive(t, p.XP)

	// Второй проход ничего не находит.
	require.NoError(t, job.Run(ctx))
	assert.Equal(t, 0, job.LastStats().Scanned)
}

func TestSettleDuels_LookaheadPaysEarlySolve(t *testing.T) {
	e, store, clk := newEngine(t)
	ctx := context.Background()

	early := openDuel(t, e, "alice", "bob", 30)
	idle := openDuel(t, e, "carol", "dave", 30)
	store.AddUserSolve("alice", early.ProblemRef, "s-1", start.Add(3*time.Minute))
	clk.Set(start.Add(10 * time.Minute))

	cfg := DefaultSettleDuelsConfig()
	cfg.Lookahead = time.Hour
	job := NewSettleDuelsJob(e, logger.Nop(), cfg)
	require.NoError(t, job.Run(ctx))

	stats := job.LastStats()
	assert.Equal(t, int64(1), stats.Completed)
	assert.Equal(t, int64(1), stats.Skipped)

	due, err := e.DuelsDue(ctx, clk.Now().Add(time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, idle.ID, due[0].ID)
}

// ──────────────────────────────────────────────────────────────────────────────

type fakeSettler struct {
	cal      *timeutil.Calendar
	due      []*duel.Duel
	complete func(id string) error
	calls    int32
}

func (f *fakeSettler) Calendar() *timeutil.Calendar { return f.cal }

func (f *fakeSettler) DuelsDue(context.Context, time.Time, int) ([]*duel.Duel, error) {
	return f.due, nil
}

func (f *fakeSettler) CompleteDuel(_ context.Context, id string) (*command.CompleteDuelResult, error) {
	atomic.AddInt32(&f.calls, 1)
	if err := f.complete(id); err != nil {
		return nil, err
	}
	return &command.CompleteDuelResult{}, nil
}

func (f *fakeSettler) ExpireDuel(context.Context, string) (*duel.Duel, error) {
	return nil, shared.ErrInvalidTransition
}

func TestSettleDuels_RetriesUnavailableAndSkipsRaces(t *testing.T) {
	var flaky int32
	f := &fakeSettler{
		cal: timeutil.NewCalendar(time.UTC),
		due: []*duel.Duel{{ID: "d-flaky"}, {ID: "d-raced"}, {ID: "d-broken"}},
		complete: func(id string) error {
			switch id {
			case "d-flaky":
				if atomic.AddInt32(&flaky, 1) < 3 {
					return shared.Unavailable("duel", "Complete", errors.New("conn reset"))
				}
				return nil
			case "d-raced":
				return fmt.Errorf("complete: %w", shared.ErrInvalidTransition)
			}
			return errors.New("corrupt row")
		},
	}

	cfg := DefaultSettleDuelsConfig()
	cfg.RetryOptions = []retry.Option{
		retry.WithMaxAttempts(3),
		retry.WithInitialDelay(time.Millisecond),
		retry.WithRetryIf(shared.IsRetryable),
	}
	job := NewSettleDuelsJob(f, logger.Nop(), cfg)
	require.NoError(t, job.Run(context.Background()))

	stats := job.LastStats()
	assert.Equal(t, int64(1), stats.Completed)
	assert.Equal(t, int64(1), stats.Skipped)
	assert.Equal(t, int64(1), stats.Failed)
	assert.Equal(t, int32(5), atomic.LoadInt32(&f.calls))
}

func TestSettleDuels_AllFailedIsAnError(t *testing.T) {
	f := &fakeSettler{
		cal:      timeutil.NewCalendar(time.UTC),
		due:      []*duel.Duel{{ID: "d1"}},
		complete: func(string) error { return errors.New("boom") },
	}
	job := NewSettleDuelsJob(f, logger.Nop(), DefaultSettleDuelsConfig())
	assert.ErrorContains(t, job.Run(context.Background()), "all 1 duels failed")
}
