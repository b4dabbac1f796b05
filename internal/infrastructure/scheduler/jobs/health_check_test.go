package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/arena-engine/internal/infrastructure/health"
	"github.com/alem-hub/arena-engine/pkg/logger"
)

func TestHealthCheckJob_FailsWhenUnhealthy(t *testing.T) {
	checker := health.NewChecker("test", time.Second)
	checker.AddCheck("postgres", func(context.Context) error { return nil })
	job := NewHealthCheckJob(checker, logger.Nop())

	require.NoError(t, job.Run(context.Background()))
	st, ok := job.LastStatus()
	require.True(t, ok)
	assert.True(t, st.Healthy)

	checker.AddCheck("redis", func(context.Context) error { return errors.New("refused") })
	assert.ErrorContains(t, job.Run(context.Background()), "redis")
	st, _ = job.LastStatus()
	assert.False(t, st.Healthy)
}
