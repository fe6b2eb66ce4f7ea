package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSleeper struct {
	waits []time.Duration
}

func (r *recordingSleeper) Sleep(_ context.Context, d time.Duration) error {
	r.waits = append(r.waits, d)
	return nil
}

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	sleeper := &recordingSleeper{}
	var observed []int
	p := Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    time.Minute,
		Sleep:       sleeper.Sleep,
		OnRetry:     func(attempt int, _ error) { observed = append(observed, attempt) },
	}

	calls := 0
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection reset")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	require.Len(t, sleeper.waits, 2)
	assert.Less(t, sleeper.waits[0], sleeper.waits[1], "delays must grow")
	assert.Equal(t, []int{1, 2}, observed)
}

func TestDoPropagatesFinalError(t *testing.T) {
	sleeper := &recordingSleeper{}
	boom := errors.New("boom")
	p := Policy{MaxAttempts: 2, BaseDelay: time.Second, Sleep: sleeper.Sleep}

	calls := 0
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return boom
	})

	assert.Equal(t, 2, calls)
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, err, ErrExhausted)
	assert.Len(t, sleeper.waits, 1)
}

func TestDoStopsOnNonRetryable(t *testing.T) {
	sleeper := &recordingSleeper{}
	fatal := errors.New("not found")
	p := Policy{
		MaxAttempts: 5,
		BaseDelay:   time.Second,
		Sleep:       sleeper.Sleep,
		Retryable:   func(err error) bool { return !errors.Is(err, fatal) },
	}

	calls := 0
	err := p.Do(context.Background(), func(context.Context) error {
		calls++
		return fatal
	})

	assert.Equal(t, 1, calls)
	assert.Equal(t, fatal, err)
	assert.Empty(t, sleeper.waits)
}

func TestDelay(t *testing.T) {
	tests := []struct {
		name    string
		policy  Policy
		attempt int
		want    time.Duration
	}{
		{"first", Policy{BaseDelay: time.Second, MaxDelay: 10 * time.Second}, 1, time.Second},
		{"doubles", Policy{BaseDelay: time.Second, MaxDelay: 10 * time.Second}, 3, 4 * time.Second},
		{"capped", Policy{BaseDelay: time.Second, MaxDelay: 10 * time.Second}, 6, 10 * time.Second},
		{"linear", Policy{BaseDelay: 2 * time.Second, Linear: true}, 4, 2 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.policy.Delay(tt.attempt))
		})
	}
}

func TestValueHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := Policy{MaxAttempts: 3, BaseDelay: time.Hour}
	_, err := Value(ctx, p, func(context.Context) (int, error) {
		return 0, errors.New("transient")
	})
	assert.ErrorIs(t, err, context.Canceled)
}
