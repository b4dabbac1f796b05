package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func TestChecker_AggregatesResults(t *testing.T) {
	c := NewChecker("1.0.0", time.Second)
	c.AddCheck("postgres", PingCheck(pinger{}))
	c.AddCheck("redis", PingCheck(pinger{err: errors.New("connection refused")}))
	c.AddCheck("breaker", func(context.Context) error { panic("boom") })

	st := c.Check(context.Background())
	assert.False(t, st.Healthy)
	assert.Equal(t, []string{"breaker", "redis"}, st.Failed())
	assert.Equal(t, "failed: breaker, redis", st.Message)
	assert.Equal(t, "connection refused", st.Checks["redis"].Message)
	assert.True(t, st.Checks["postgres"].Healthy)
	assert.Equal(t, "1.0.0", st.Version)

	c.RemoveCheck("redis")
	c.RemoveCheck("breaker")
	assert.True(t, c.Check(context.Background()).Healthy)
}

func TestChecker_TimesOutSlowChecks(t *testing.T) {
	c := NewChecker("", 20*time.Millisecond)
	c.AddCheck("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	st := c.Check(context.Background())
	assert.False(t, st.Healthy)
	assert.Contains(t, st.Checks["slow"].Message, "deadline exceeded")
}

func TestChecker_EmptyIsHealthy(t *testing.T) {
	st := NewChecker("", 0).Check(context.Background())
	assert.True(t, st.Healthy)
	assert.Equal(t, "no checks registered", st.Message)
}
