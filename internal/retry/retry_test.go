package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const unit = time.Millisecond

func TestDoSucceedsOnThirdAttemptAfterOneThenTwoUnits(t *testing.T) {
	var waits []time.Duration
	calls := 0
	p := Policy{Name: "plan", Attempts: 3, Unit: unit, OnRetry: func(_ int, _ error, wait time.Duration) {
		waits = append(waits, wait)
	}}

	got, err := Do(context.Background(), p, func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", fmt.Errorf("transient %d", calls)
		}
		return "plan-3", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "plan-3", got)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{unit, 2 * unit}, waits)
}

func TestDoPropagatesFinalErrorUnchanged(t *testing.T) {
	errs := []error{errors.New("first"), errors.New("second"), errors.New("third")}
	calls := 0
	_, err := Do(context.Background(), Policy{Attempts: 3, Unit: unit}, func(context.Context) (int, error) {
		e := errs[calls]
		calls++
		return 0, e
	})
	assert.Equal(t, 3, calls)
	assert.Same(t, errs[2], err)
}

func TestDoStopsAfterFirstSuccess(t *testing.T) {
	calls := 0
	retried := false
	got, err := Do(context.Background(), Policy{Attempts: 3, Unit: unit, OnRetry: func(int, error, time.Duration) { retried = true }},
		func(context.Context) (int, error) {
			calls++
			return 7, nil
		})
	require.NoError(t, err)
	assert.Equal(t, 7, got)
	assert.Equal(t, 1, calls)
	assert.False(t, retried)
}

type statusErr struct{ code int }

func (e *statusErr) Error() string   { return fmt.Sprintf("status %d", e.code) }
func (e *statusErr) Transient() bool { return e.code == 429 || e.code >= 500 }

func TestDoRunsPermanentErrorOnce(t *testing.T) {
	want := &statusErr{code: 401}
	calls := 0
	retried := false
	_, err := Do(context.Background(), Policy{Attempts: 3, Unit: unit, OnRetry: func(int, error, time.Duration) { retried = true }},
		func(context.Context) (int, error) {
			calls++
			return 0, fmt.Errorf("execute: %w", want)
		})
	assert.Equal(t, 1, calls)
	assert.False(t, retried)
	var got *statusErr
	require.ErrorAs(t, err, &got)
	assert.Same(t, want, got)
}

func TestDoUnwrapsPermanentErrorOnSingleAttempt(t *testing.T) {
	want := &statusErr{code: 400}
	_, err := Do(context.Background(), Policy{Attempts: 1, Unit: unit}, func(context.Context) (int, error) {
		return 0, want
	})
	assert.Same(t, want, err)
}

func TestDoRetriesTransientStatus(t *testing.T) {
	calls := 0
	got, err := Do(context.Background(), Policy{Attempts: 3, Unit: unit}, func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", &statusErr{code: 503}
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 2, calls)
}
