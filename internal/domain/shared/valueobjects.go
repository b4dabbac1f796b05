package shared

import (
	"strings"
	"time"
)

// ═══════════════════════════════════════════════════════════════════════════
// UserID Value Object
// ═══════════════════════════════════════════════════════════════════════════

// UserID is the opaque identifier resolved by the identity provider.
type UserID string

// String returns the string representation.
func (u UserID) String() string {
	return string(u)
}

// NewUserID creates a UserID with validation.
func NewUserID(id string) (UserID, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", ErrEmptyUserID
	}
	return UserID(id), nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Rank Value Object
// ═══════════════════════════════════════════════════════════════════════════

// Rank is a 1-based finishing position. Zero means unranked.
type Rank int

// IsValid checks if the rank is positive.
func (r Rank) IsValid() bool {
	return r > 0
}

// IsTop checks if the rank is within top N.
func (r Rank) IsTop(n int) bool {
	return r.IsValid() && int(r) <= n
}

// ═══════════════════════════════════════════════════════════════════════════
// Rating Value Object
// ═══════════════════════════════════════════════════════════════════════════

// Rating is a problem difficulty or a user's recent skill on the same scale.
type Rating int

// RoundToHundred rounds to the nearest multiple of 100 (half up).
func (r Rating) RoundToHundred() Rating {
	if r < 0 {
		return -(-r).RoundToHundred()
	}
	return Rating((int(r) + 50) / 100 * 100)
}

// Distance returns |r - other|.
func (r Rating) Distance(other Rating) int {
	d := int(r) - int(other)
	if d < 0 {
		return -d
	}
	return d
}

// AverageRating returns the integer mean of two ratings.
func AverageRating(a, b Rating) Rating {
	return Rating((int(a) + int(b)) / 2)
}

// ═══════════════════════════════════════════════════════════════════════════
// TimeRange Value Object
// ═══════════════════════════════════════════════════════════════════════════

// TimeRange represents a closed interval of time.
type TimeRange struct {
	From time.Time
	To   time.Time
}

// IsValid checks if the range is properly ordered.
func (t TimeRange) IsValid() bool {
	return !t.To.Before(t.From)
}

// Duration returns the length of the range.
func (t TimeRange) Duration() time.Duration {
	return t.To.Sub(t.From)
}

// Contains checks if tm lies in [From, To].
func (t TimeRange) Contains(tm time.Time) bool {
	return !tm.Before(t.From) && !tm.After(t.To)
}

// NewTimeRange creates a TimeRange with validation.
func NewTimeRange(from, to time.Time) (TimeRange, error) {
	if to.Before(from) {
		return TimeRange{}, NewDomainError("shared", "NewTimeRange", ErrInvalidInput, "end before start")
	}
	return TimeRange{From: from, To: to}, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Limit helper
// ═══════════════════════════════════════════════════════════════════════════

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// ClampLimit normalizes a caller-supplied page size.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultPageSize
	}
	if limit > MaxPageSize {
		return MaxPageSize
	}
	return limit
}
