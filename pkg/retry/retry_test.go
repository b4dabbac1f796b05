package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var errFlaky = errors.New("flaky")

func isFlaky(err error) bool { return errors.Is(err, errFlaky) }

func TestDo_RetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errFlaky
		}
		return nil
	}, WithMaxAttempts(5), WithInitialDelay(time.Millisecond), WithRetryIf(isFlaky))

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_StopsOnNonRetryable(t *testing.T) {
	other := errors.New("bad input")
	calls := 0
	err := Do(context.Background(), func(context.Context) error {
		calls++
		return other
	}, WithMaxAttempts(5), WithRetryIf(isFlaky))

	assert.ErrorIs(t, err, other)
	assert.Equal(t, 1, calls)
}

func TestDo_NoPredicateMeansNoRetry(t *testing.T) {
	calls := 0
	_ = Do(context.Background(), func(context.Context) error {
		calls++
		return errFlaky
	})
	assert.Equal(t, 1, calls)
}

func TestDo_PermanentUnwraps(t *testing.T) {
	err := Do(context.Background(), func(context.Context) error {
		return Permanent(errFlaky)
	}, WithRetryIf(isFlaky))

	assert.ErrorIs(t, err, errFlaky)
	assert.False(t, IsPermanent(err))
}

func TestDo_GivesUpAfterMaxAttempts(t *testing.T) {
	calls := 0
	var retries []int
	err := Do(context.Background(), func(context.Context) error {
		calls++
		return errFlaky
	}, WithMaxAttempts(3), WithInitialDelay(time.Millisecond), WithRetryIf(isFlaky),
		WithOnRetry(func(attempt int, _ error, _ time.Duration) { retries = append(retries, attempt) }))

	assert.ErrorIs(t, err, errFlaky)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retries)
}

func TestDoWithData(t *testing.T) {
	v, err := DoWithData(context.Background(), func(context.Context) (int, error) {
		return 42, nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 42, v)
}
