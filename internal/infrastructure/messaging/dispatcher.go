package messaging

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alem-hub/arena-engine/internal/domain/notification"
	"github.com/alem-hub/arena-engine/internal/domain/shared"
	"github.com/alem-hub/arena-engine/pkg/logger"
	"github.com/alem-hub/arena-engine/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// NOTIFICATION DISPATCHER
// Subscribes to every domain event, turns the user-facing ones into
// notifications and hands them to a Notifier. Delivery is best-effort:
// failures are retried briefly, logged and dropped.
// ══════════════════════════════════════════════════════════════════════════════

// Dispatcher routes domain events to a notification.Notifier.
type Dispatcher struct {
	notifier    notification.Notifier
	log         *logger.Logger
	retryOpts   []retry.Option
	timeout     time.Duration
	newID       func() string
	middlewares []Middleware
	dropped     *DeadLetterQueue
	filter      func(*notification.Notification) bool
}

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig struct {
	Notifier notification.Notifier
	Logger   *logger.Logger

	// Timeout bounds one delivery including retries.
	Timeout time.Duration

	// DeadLetterSize keeps the last N dropped notifications for inspection.
	// Zero disables it.
	DeadLetterSize int

	// RetryOptions override the default notifier retry policy.
	RetryOptions []retry.Option

	// Filter, when set, drops notifications it returns false for.
	Filter func(*notification.Notification) bool
}

// DefaultDispatcherConfig returns defaults around the given notifier.
func DefaultDispatcherConfig(n notification.Notifier) DispatcherConfig {
	return DispatcherConfig{
		Notifier:       n,
		Timeout:        2 * time.Second,
		DeadLetterSize: 100,
	}
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.Logger == nil {
		cfg.Logger = logger.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	if cfg.RetryOptions == nil {
		cfg.RetryOptions = retry.Notifier(shared.IsRetryable)
	}

	log := cfg.Logger.With(logger.Component("notification_dispatcher"))
	d := &Dispatcher{
		notifier:  cfg.Notifier,
		log:       log,
		retryOpts: cfg.RetryOptions,
		timeout:   cfg.Timeout,
		newID:     uuid.NewString,
		filter:    cfg.Filter,
	}
	if cfg.DeadLetterSize > 0 {
		d.dropped = NewDeadLetterQueue(cfg.DeadLetterSize)
	}
	d.Use(RecoveryMiddleware(log))
	return d
}

// Middleware wraps handler execution.
type Middleware func(shared.EventHandler) shared.EventHandler

// Use adds a middleware. The first one added is the outermost.
func (d *Dispatcher) Use(m Middleware) {
	d.middlewares = append(d.middlewares, m)
}

// Attach subscribes the dispatcher to every event on the bus.
func (d *Dispatcher) Attach(bus shared.EventSubscriber) error {
	return bus.SubscribeAll(d.Handler())
}

// Handler returns the event handler with all middlewares applied.
func (d *Dispatcher) Handler() shared.EventHandler {
	h := shared.EventHandler(d.handle)
	for i := len(d.middlewares) - 1; i >= 0; i-- {
		h = d.middlewares[i](h)
	}
	return h
}

func (d *Dispatcher) handle(event shared.Event) error {
	params, ok := notification.FromEvent(event)
	if !ok {
		return nil
	}
	params.ID = d.newID()

	n, err := notification.NewNotification(params)
	if err != nil {
		d.log.Warn("notification rejected",
			logger.String("event_type", string(event.EventType())),
			logger.Err(err),
		)
		return nil
	}
	if d.filter != nil && !d.filter(n) {
		d.log.Debug("notification filtered", logger.UserID(n.UserID), logger.String("type", string(n.Type)))
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	err = retry.Do(ctx, func(ctx context.Context) error {
		return d.notifier.Notify(ctx, n)
	}, d.retryOpts...)
	if err != nil {
		d.log.Warn("notification dropped",
			logger.UserID(n.UserID),
			logger.String("type", string(n.Type)),
			logger.Err(err),
		)
		if d.dropped != nil {
			d.dropped.Add(DeadLetterEntry{Notification: n, Err: err.Error(), FailedAt: time.Now()})
		}
	}
	// Delivery never fails the publisher.
	return nil
}

// DeadLetters returns the dropped notification buffer, or nil when disabled.
func (d *Dispatcher) DeadLetters() *DeadLetterQueue {
	return d.dropped
}

// RecoveryMiddleware recovers from panics in handlers.
func RecoveryMiddleware(log *logger.Logger) Middleware {
	return func(next shared.EventHandler) shared.EventHandler {
		return func(event shared.Event) (err error) {
			defer func() {
				if r := recover(); r != nil {
					log.Error("handler panic recovered",
						logger.String("event_type", string(event.EventType())),
						logger.Any("panic", r),
						logger.String("stack", string(debug.Stack())),
					)
					err = fmt.Errorf("handler panic: %v", r)
				}
			}()
			return next(event)
		}
	}
}

// LoggingMiddleware logs handler execution at debug level.
func LoggingMiddleware(log *logger.Logger) Middleware {
	return func(next shared.EventHandler) shared.EventHandler {
		return func(event shared.Event) error {
			start := time.Now()
			err := next(event)
			log.Debug("event handled",
				logger.String("event_type", string(event.EventType())),
				logger.String("aggregate_id", event.AggregateID()),
				logger.Latency(time.Since(start)),
				logger.Err(err),
			)
			return err
		}
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// DEAD LETTER QUEUE
// ══════════════════════════════════════════════════════════════════════════════

// DeadLetterEntry is a notification that could not be delivered.
type DeadLetterEntry struct {
	Notification *notification.Notification
	Err          string
	FailedAt     time.Time
}

// DeadLetterQueue is a bounded ring of dropped notifications.
type DeadLetterQueue struct {
	mu      sync.Mutex
	entries []DeadLetterEntry
	maxSize int
}

// NewDeadLetterQueue creates a new dead letter queue.
func NewDeadLetterQueue(maxSize int) *DeadLetterQueue {
	if maxSize <= 0 {
		maxSize = 100
	}
	return &DeadLetterQueue{
		entries: make([]DeadLetterEntry, 0, maxSize),
		maxSize: maxSize,
	}
}

// Add adds an entry, evicting the oldest when full.
func (q *DeadLetterQueue) Add(entry DeadLetterEntry) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) >= q.maxSize {
		q.entries = q.entries[1:]
	}
	q.entries = append(q.entries, entry)
}

// Entries returns a copy of all entries.
func (q *DeadLetterQueue) Entries() []DeadLetterEntry {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]DeadLetterEntry, len(q.entries))
	copy(out, q.entries)
	return out
}

// Size returns the current number of entries.
func (q *DeadLetterQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}
