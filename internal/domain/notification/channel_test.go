package notification

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/arena-engine/internal/domain/shared"
)

var at = time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

func TestFromEvent_DuelChallengeGoesToChallenged(t *testing.T) {
	ev := shared.NewDuelEvent(shared.EventDuelChallenged, "d1", "alice", "bob", "bob", "cf:1A", "", at)

	p, ok := FromEvent(ev)
	require.True(t, ok)
	assert.Equal(t, "bob", p.UserID)
	assert.Equal(t, TypeDuelChallenge, p.Type)
	assert.Contains(t, p.Body, "cf:1A")
	assert.Equal(t, at, p.Now)
}

func TestFromEvent_LevelUp(t *testing.T) {
	p, ok := FromEvent(shared.NewLevelUpEvent("u1", 2, 3, at))
	require.True(t, ok)
	assert.Equal(t, TypeLevelUp, p.Type)

	n, err := NewNotification(p)
	require.NoError(t, err)
	assert.Equal(t, PriorityNormal, n.Priority)
	assert.Contains(t, n.Title, "⬆️")
}

func TestFromEvent_IgnoresLedgerEvents(t *testing.T) {
	_, ok := FromEvent(shared.NewXPGrantedEvent("u1", 10, "manual", "k", 10, at))
	assert.False(t, ok)
}

func TestFromEvent_StreakBroken(t *testing.T) {
	p, ok := FromEvent(shared.NewStreakEvent(shared.EventStreakBroken, "u1", 1, 0, 3, at))
	require.True(t, ok)
	assert.Equal(t, TypeStreakBroken, p.Type)
}

func TestNewNotification_Validates(t *testing.T) {
	_, err := NewNotification(NewNotificationParams{Type: TypeLevelUp})
	assert.ErrorIs(t, err, ErrEmptyRecipient)

	_, err = NewNotification(NewNotificationParams{UserID: "u1", Type: "rank_up"})
	assert.ErrorIs(t, err, ErrUnknownType)
}
