package jobs

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/alem-hub/arena-engine/internal/infrastructure/health"
	"github.com/alem-hub/arena-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH CHECK JOB
// ══════════════════════════════════════════════════════════════════════════════

// HealthCheckJob probes the worker's dependencies and logs the outcome.
// An unhealthy run fails, so it shows up in scheduler metrics and history.
type HealthCheckJob struct {
	checker *health.Checker
	logger  *logger.Logger

	last atomic.Value // health.Status
}

// NewHealthCheckJob creates a new health check job.
func NewHealthCheckJob(checker *health.Checker, log *logger.Logger) *HealthCheckJob {
	if log == nil {
		log = logger.Default()
	}
	return &HealthCheckJob{checker: checker, logger: log.With(logger.Component("health"))}
}

// Name returns the job name.
func (j *HealthCheckJob) Name() string {
	return "health_check"
}

// Description returns a human-readable description.
func (j *HealthCheckJob) Description() string {
	return "Probes storage, cache and notification sink"
}

// Run executes the probes.
func (j *HealthCheckJob) Run(ctx context.Context) error {
	st := j.checker.Check(ctx)
	j.last.Store(st)

	if st.Healthy {
		j.logger.Debug("health ok", logger.Int("checks", len(st.Checks)), logger.Duration("uptime", st.Uptime))
		return nil
	}
	for _, name := range st.Failed() {
		j.logger.Warn("health check failed",
			logger.String("check", name),
			logger.String("reason", st.Checks[name].Message),
		)
	}
	return fmt.Errorf("unhealthy: %v", st.Failed())
}

// LastStatus returns the most recent status and whether one exists.
func (j *HealthCheckJob) LastStatus() (health.Status, bool) {
	st, ok := j.last.Load().(health.Status)
	return st, ok
}
