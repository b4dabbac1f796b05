// Package jobs contains the engine's scheduled jobs.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alem-hub/arena-engine/internal/application/command"
	"github.com/alem-hub/arena-engine/internal/domain/duel"
	"github.com/alem-hub/arena-engine/internal/domain/shared"
	"github.com/alem-hub/arena-engine/pkg/logger"
	"github.com/alem-hub/arena-engine/pkg/retry"
	"github.com/alem-hub/arena-engine/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// SETTLE DUELS JOB
// ══════════════════════════════════════════════════════════════════════════════

// DuelSettler is the slice of the engine the job drives.
type DuelSettler interface {
	Calendar() *timeutil.Calendar
	DuelsDue(ctx context.Context, before time.Time, limit int) ([]*duel.Duel, error)
	CompleteDuel(ctx context.Context, duelID string) (*command.CompleteDuelResult, error)
	ExpireDuel(ctx context.Context, duelID string) (*duel.Duel, error)
}

// SettleDuelsJob closes active duels: the first in-window solver wins,
// a duel nobody solved expires once its deadline has passed.
type SettleDuelsJob struct {
	settler DuelSettler
	logger  *logger.Logger
	config  SettleDuelsConfig

	lastStats atomic.Value // *SettleStats
}

// SettleDuelsConfig contains configuration for the settle job.
type SettleDuelsConfig struct {
	// BatchSize caps how many duels one run looks at.
	BatchSize int

	// Concurrency is the number of duels settled in parallel.
	Concurrency int

	// Lookahead also picks up duels that end within this window, so an
	// early solve is paid out before the deadline.
	Lookahead time.Duration

	// Timeout is the maximum duration for one run.
	Timeout time.Duration

	// RetryOptions apply to each settle attempt.
	RetryOptions []retry.Option
}

// DefaultSettleDuelsConfig returns sensible defaults.
func DefaultSettleDuelsConfig() SettleDuelsConfig {
	return SettleDuelsConfig{
		BatchSize:    100,
		Concurrency:  4,
		Lookahead:    0,
		Timeout:      time.Minute,
		RetryOptions: retry.Store(shared.IsRetryable),
	}
}

// SettleStats contains statistics from a settle run.
type SettleStats struct {
	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration
	Scanned     int
	Completed   int64
	Expired     int64
	Skipped     int64
	Failed      int64
}

// NewSettleDuelsJob creates a new settle job.
func NewSettleDuelsJob(settler DuelSettler, log *logger.Logger, config SettleDuelsConfig) *SettleDuelsJob {
	if log == nil {
		log = logger.Default()
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	return &SettleDuelsJob{
		settler: settler,
		logger:  log.With(logger.Component("settle_duels")),
		config:  config,
	}
}

// Name returns the job name.
func (j *SettleDuelsJob) Name() string {
	return "settle_duels"
}

// Description returns a human-readable description.
func (j *SettleDuelsJob) Description() string {
	return "Completes or expires active duels whose deadline has been reached"
}

// Run executes one settle pass.
func (j *SettleDuelsJob) Run(ctx context.Context) error {
	if j.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.config.Timeout)
		defer cancel()
	}

	startedAt := time.Now()
	stats := &SettleStats{StartedAt: startedAt}
	defer func() {
		stats.CompletedAt = time.Now()
		stats.Duration = stats.CompletedAt.Sub(startedAt)
		j.lastStats.Store(stats)
	}()

	before := j.settler.Calendar().Now().Add(j.config.Lookahead)
	due, err := j.settler.DuelsDue(ctx, before, j.config.BatchSize)
	if err != nil {
		return fmt.Errorf("list due duels: %w", err)
	}
	stats.Scanned = len(due)
	if len(due) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.config.Concurrency)
	for _, d := range due {
		g.Go(func() error {
			res, err := j.settle(gctx, d.ID)
			switch {
			case err != nil:
				atomic.AddInt64(&stats.Failed, 1)
				j.logger.Warn("settle failed", logger.DuelID(d.ID), logger.Err(err))
			case res == outcomeCompleted:
				atomic.AddInt64(&stats.Completed, 1)
			case res == outcomeExpired:
				atomic.AddInt64(&stats.Expired, 1)
			default:
				atomic.AddInt64(&stats.Skipped, 1)
			}
			// One bad duel never stops the batch.
			return nil
		})
	}
	_ = g.Wait()

	j.logger.Info("settle_duels finished",
		logger.Int("scanned", stats.Scanned),
		logger.Int64("completed", stats.Completed),
		logger.Int64("expired", stats.Expired),
		logger.Int64("skipped", stats.Skipped),
		logger.Int64("failed", stats.Failed),
	)
	if stats.Failed > 0 && stats.Completed+stats.Expired+stats.Skipped == 0 {
		return fmt.Errorf("settle_duels: all %d duels failed", stats.Failed)
	}
	return ctx.Err()
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeCompleted
	outcomeExpired
)

// settle tries to complete the duel first, then to expire it.
func (j *SettleDuelsJob) settle(ctx context.Context, duelID string) (outcome, error) {
	return retry.DoWithData(ctx, func(ctx context.Context) (outcome, error) {
		_, err := j.settler.CompleteDuel(ctx, duelID)
		if err == nil {
			return outcomeCompleted, nil
		}
		if !errors.Is(err, shared.ErrNoDuelWinner) {
			return skipOrFail(err)
		}

		_, err = j.settler.ExpireDuel(ctx, duelID)
		switch {
		case err == nil:
			return outcomeExpired, nil
		case errors.Is(err, shared.ErrDuelNotExpired):
			// Picked up by the lookahead; nobody has solved yet.
			return outcomeSkipped, nil
		}
		return skipOrFail(err)
	}, j.config.RetryOptions...)
}

// skipOrFail treats a duel settled concurrently elsewhere as skipped.
func skipOrFail(err error) (outcome, error) {
	if errors.Is(err, shared.ErrInvalidTransition) || shared.IsNotFound(err) {
		return outcomeSkipped, nil
	}
	return outcomeSkipped, err
}

// LastStats returns statistics of the most recent run, or nil.
func (j *SettleDuelsJob) LastStats() *SettleStats {
	if s, ok := j.lastStats.Load().(*SettleStats); ok {
		return s
	}
	return nil
}
