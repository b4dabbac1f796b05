package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/alem-hub/arena-engine/internal/domain/shared"
)

func TestDecide(t *testing.T) {
	reset := time.Date(2026, 10, 15, 0, 0, 0, 0, time.UTC)

	d := Decide(4, 5, reset)
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.Remaining)
	assert.NoError(t, d.Err())

	d = Decide(5, 5, reset)
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
	assert.True(t, shared.IsQuotaExceeded(d.Err()))

	d = Decide(7, 5, reset)
	assert.Equal(t, 0, d.Remaining)
	assert.Equal(t, reset, d.ResetAt)
}

func TestActionKind(t *testing.T) {
	assert.True(t, ActionDuelChallenge.IsValid())
	assert.True(t, ActionAttendanceMark.IsValid())
	assert.False(t, ActionKind("spam").IsValid())
}
