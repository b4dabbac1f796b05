// Package shared contains common domain types, errors, events and value objects
// that are used across all domain packages. This package has zero external dependencies.
package shared

import (
	"context"
	"errors"
	"fmt"
)

// Base error kinds. Every error the engine returns matches exactly one of them
// through errors.Is().
var (
	// ErrNotFound: the user, duel, boss, quest or course does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrConflict: a state guard failed (wrong status, duplicate solve,
	// quest already completed, lost compare-and-swap race).
	ErrConflict = errors.New("conflict")

	// ErrQuotaExceeded: a daily limit was hit.
	ErrQuotaExceeded = errors.New("quota exceeded")

	// ErrUnverified: the solve oracle did not confirm the claim.
	ErrUnverified = errors.New("unverified")

	// ErrUnavailable: the store or the oracle could not be reached. Retryable.
	ErrUnavailable = errors.New("unavailable")

	// ErrInvalidInput: malformed arguments (non-positive XP, empty keys, bad limits).
	ErrInvalidInput = errors.New("invalid input")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "player", "duel", "boss"
	Op      string // Operation that failed, e.g., "GrantXP", "Accept"
	Kind    error  // Base error kind for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Unavailable wraps an infrastructure failure. Errors that already carry a
// kind (including context cancellation) pass through untouched.
func Unavailable(domain, op string, err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != nil || errors.Is(err, context.Canceled) {
		return err
	}
	return WrapError(domain, op, ErrUnavailable, "store unavailable", err)
}

// KindOf returns the base kind of err, or nil if it has none.
func KindOf(err error) error {
	for _, kind := range []error{ErrNotFound, ErrConflict, ErrQuotaExceeded, ErrUnverified, ErrUnavailable, ErrInvalidInput} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// Player domain errors
var (
	ErrUserNotFound     = NewDomainError("player", "Find", ErrNotFound, "user not found")
	ErrNonPositiveXP    = NewDomainError("player", "GrantXP", ErrInvalidInput, "xp amount must be positive")
	ErrEmptyDedupKey    = NewDomainError("player", "GrantXP", ErrInvalidInput, "dedup key cannot be empty")
	ErrEmptyUserID      = NewDomainError("player", "Validate", ErrInvalidInput, "user id cannot be empty")
	ErrStreakRaceLost   = NewDomainError("player", "RecordSolve", ErrConflict, "streak was updated concurrently")
	ErrInvalidLevelStep = NewDomainError("player", "LevelTable", ErrInvalidInput, "level thresholds must start at 0 and increase")
)

// Quest domain errors
var (
	ErrQuestNotFound         = NewDomainError("quest", "Find", ErrNotFound, "quest not found")
	ErrQuestAlreadyCompleted = NewDomainError("quest", "UpdateProgress", ErrConflict, "quest already completed")
	ErrNegativeProgress      = NewDomainError("quest", "UpdateProgress", ErrInvalidInput, "progress cannot be negative")
	ErrUnknownCondition      = NewDomainError("quest", "Validate", ErrInvalidInput, "unknown quest condition")
)

// Duel domain errors
var (
	ErrDuelNotFound       = NewDomainError("duel", "Find", ErrNotFound, "duel not found")
	ErrSelfDuel           = NewDomainError("duel", "Challenge", ErrConflict, "cannot challenge yourself")
	ErrDuelAlreadyOpen    = NewDomainError("duel", "Challenge", ErrConflict, "an open duel already exists between these users")
	ErrInvalidTimeLimit   = NewDomainError("duel", "Challenge", ErrInvalidInput, "time limit out of range")
	ErrNotChallenged      = NewDomainError("duel", "Respond", ErrConflict, "only the challenged user can respond")
	ErrInvalidTransition  = NewDomainError("duel", "Transition", ErrConflict, "invalid duel state transition")
	ErrDuelNotExpired     = NewDomainError("duel", "Expire", ErrConflict, "duel has not reached its deadline")
	ErrNoDuelWinner       = NewDomainError("duel", "Complete", ErrConflict, "neither participant solved the problem in time")
	ErrNoCandidateProblem = NewDomainError("duel", "SelectProblem", ErrNotFound, "no problem in the rating range")
)

// Boss domain errors
var (
	ErrBossNotFound     = NewDomainError("boss", "Find", ErrNotFound, "boss battle not found")
	ErrBossNotOpen      = NewDomainError("boss", "Submit", ErrConflict, "boss battle is not open")
	ErrBossAlreadySolve = NewDomainError("boss", "Submit", ErrConflict, "user already solved this boss")
	ErrBossUnverified   = NewDomainError("boss", "Submit", ErrUnverified, "solve could not be verified")
)

// Rate limit errors
var (
	ErrDailyLimitReached = NewDomainError("ratelimit", "Check", ErrQuotaExceeded, "daily limit reached")
	ErrUnknownAction     = NewDomainError("ratelimit", "Check", ErrInvalidInput, "unknown action kind")
	ErrInvalidLimit      = NewDomainError("ratelimit", "Check", ErrInvalidInput, "daily limit must be positive")
)

// Attendance errors
var (
	ErrCourseNotFound   = NewDomainError("attendance", "FindCourse", ErrNotFound, "course not found")
	ErrInvalidStatus    = NewDomainError("attendance", "Mark", ErrInvalidInput, "unknown attendance status")
	ErrInvalidSlot      = NewDomainError("attendance", "Mark", ErrInvalidInput, "slot must be positive")
	ErrMarkInFuture     = NewDomainError("attendance", "Mark", ErrInvalidInput, "cannot mark attendance for a future date")
	ErrInvalidThreshold = NewDomainError("attendance", "Compute", ErrInvalidInput, "threshold must be in (0,1)")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict checks if the error is a state conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsQuotaExceeded checks if a daily limit was hit.
func IsQuotaExceeded(err error) bool {
	return errors.Is(err, ErrQuotaExceeded)
}

// IsUnverified checks if the oracle rejected a claim.
func IsUnverified(err error) bool {
	return errors.Is(err, ErrUnverified)
}

// IsInvalidInput checks if the error is a validation error.
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsRetryable checks if the operation can be retried. Only infrastructure
// unavailability qualifies; every other kind is a final answer.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// Transactor runs fn inside one store transaction. Repositories called with
// the ctx passed to fn take part in that transaction.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}
