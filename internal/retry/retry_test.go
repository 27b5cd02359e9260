package retry

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBusy = errors.New("busy")

func isBusy(err error) bool { return errors.Is(err, errBusy) }

func testPolicy(attempts int, buf *bytes.Buffer) Policy {
	return Policy{
		Attempts:  attempts,
		Delay:     time.Millisecond,
		Retryable: isBusy,
		Logger:    slog.New(slog.NewTextHandler(buf, nil)),
	}
}

func TestPolicy_Do_SucceedsAfterBusy(t *testing.T) {
	var logs bytes.Buffer
	calls := 0
	err := testPolicy(5, &logs).Do(context.Background(), "insert", func(context.Context) error {
		calls++
		if calls <= 2 {
			return errBusy
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 2, strings.Count(logs.String(), "store busy, retrying"))
}

func TestPolicy_Do_ExhaustsAfterExactAttempts(t *testing.T) {
	var logs bytes.Buffer
	calls := 0
	err := testPolicy(7, &logs).Do(context.Background(), "claim", func(context.Context) error {
		calls++
		return errBusy
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrExhausted)
	assert.ErrorIs(t, err, errBusy)
	assert.Equal(t, 7, calls)
	assert.Contains(t, err.Error(), "claim")
}

func TestPolicy_Do_PermanentErrorNotRetried(t *testing.T) {
	var logs bytes.Buffer
	boom := errors.New("disk I/O error")
	calls := 0
	err := testPolicy(50, &logs).Do(context.Background(), "insert", func(context.Context) error {
		calls++
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrExhausted)
	assert.Equal(t, 1, calls)
	assert.Empty(t, logs.String())
}

func TestPolicy_Do_ZeroAttemptsStillCallsOnce(t *testing.T) {
	var logs bytes.Buffer
	calls := 0
	err := testPolicy(0, &logs).Do(context.Background(), "op", func(context.Context) error {
		calls++
		return errBusy
	})
	require.ErrorIs(t, err, ErrExhausted)
	assert.Equal(t, 1, calls)
}

func TestPolicy_Do_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{Attempts: 1000, Delay: 10 * time.Millisecond, Retryable: isBusy, Logger: slog.New(slog.DiscardHandler)}

	calls := 0
	err := p.Do(ctx, "op", func(context.Context) error {
		calls++
		if calls == 3 {
			cancel()
		}
		return errBusy
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Less(t, calls, 1000)
}
