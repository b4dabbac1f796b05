package messaging

import (
	"context"
	"sync"

	"github.com/alem-hub/arena-engine/internal/domain/notification"
	"github.com/alem-hub/arena-engine/internal/domain/shared"
	rediscache "github.com/alem-hub/arena-engine/internal/infrastructure/persistence/redis"
	"github.com/alem-hub/arena-engine/pkg/circuitbreaker"
	"github.com/alem-hub/arena-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// REDIS NOTIFIER
// Publishes each notification as JSON on the recipient's pub/sub channel.
// A delivery service outside the engine subscribes to NotificationPattern.
// ══════════════════════════════════════════════════════════════════════════════

// RedisNotifier implements notification.Notifier over Redis pub/sub.
type RedisNotifier struct {
	cache *rediscache.Cache
}

// NewRedisNotifier creates a notifier on top of the shared cache client.
func NewRedisNotifier(cache *rediscache.Cache) *RedisNotifier {
	return &RedisNotifier{cache: cache}
}

// Notify publishes n to notification:{user_id}.
func (r *RedisNotifier) Notify(ctx context.Context, n *notification.Notification) error {
	if err := r.cache.Publish(ctx, rediscache.NotificationChannel(n.UserID), n); err != nil {
		return shared.Unavailable("notification", "Notify", err)
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// BREAKER NOTIFIER
// ══════════════════════════════════════════════════════════════════════════════

// BreakerNotifier fails fast while the wrapped notifier keeps failing.
// A rejected call is reported as Unavailable, so the dispatcher treats it
// like any other outage and dead-letters the notification.
type BreakerNotifier struct {
	next    notification.Notifier
	breaker *circuitbreaker.CircuitBreaker
}

// NewBreakerNotifier wraps next with cb.
func NewBreakerNotifier(next notification.Notifier, cb *circuitbreaker.CircuitBreaker) *BreakerNotifier {
	return &BreakerNotifier{next: next, breaker: cb}
}

// Notify implements notification.Notifier.
func (b *BreakerNotifier) Notify(ctx context.Context, n *notification.Notification) error {
	err := b.breaker.Execute(ctx, func(ctx context.Context) error {
		return b.next.Notify(ctx, n)
	})
	if circuitbreaker.IsRejected(err) {
		return shared.Unavailable("notification", "Notify", err)
	}
	return err
}

// ══════════════════════════════════════════════════════════════════════════════
// LOG NOTIFIER
// ══════════════════════════════════════════════════════════════════════════════

// LogNotifier writes notifications to the log. Used when Redis is not configured.
type LogNotifier struct {
	log *logger.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(log *logger.Logger) *LogNotifier {
	return &LogNotifier{log: log.With(logger.Component("notifier"))}
}

// Notify implements notification.Notifier.
func (l *LogNotifier) Notify(_ context.Context, n *notification.Notification) error {
	l.log.Info("notification",
		logger.UserID(n.UserID),
		logger.String("type", string(n.Type)),
		logger.String("title", n.Title),
		logger.String("body", n.Body),
	)
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// RECORDING NOTIFIER
// ══════════════════════════════════════════════════════════════════════════════

// RecordingNotifier keeps every notification in memory. Tests and local
// runs use it to inspect what the engine would have sent.
type RecordingNotifier struct {
	mu   sync.Mutex
	sent []*notification.Notification
}

// Notify implements notification.Notifier.
func (r *RecordingNotifier) Notify(_ context.Context, n *notification.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return nil
}

// Sent returns a copy of the recorded notifications.
func (r *RecordingNotifier) Sent() []*notification.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*notification.Notification, len(r.sent))
	copy(out, r.sent)
	return out
}

var (
	_ notification.Notifier = (*RedisNotifier)(nil)
	_ notification.Notifier = (*BreakerNotifier)(nil)
	_ notification.Notifier = (*LogNotifier)(nil)
	_ notification.Notifier = (*RecordingNotifier)(nil)
)
