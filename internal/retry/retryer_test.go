package retry

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/simplesurance/classportal/internal/portalerr"
)

func TestRetryerMaxRetryTimeout(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	r := New(
		WithMaxRetryTimeout(time.Second),
		WithMaxAttempts(0),
		WithBackoffInitialInterval(50*time.Millisecond),
	)
	t.Cleanup(r.Stop)

	start := time.Now()
	err := r.Run(context.Background(), func(context.Context) error {
		return portalerr.NewRetryableAnytimeError(errors.New("err"))
	}, nil)

	require.Error(t, err)
	assert.True(t, portalerr.IsRetryable(err), "err: %+v", err)
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestRetryAfterInThePast(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	r := New(WithBackoffInitialInterval(100*time.Millisecond), WithMaxAttempts(0))
	t.Cleanup(r.Stop)

	ctx, cancelFunc := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancelFunc()

	var retryTimes []time.Time

	err := r.Run(ctx, func(context.Context) error {
		retryTimes = append(retryTimes, time.Now())
		return portalerr.NewRetryableError(errors.New("err"), time.Now().Add(-time.Second))
	}, nil)

	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.GreaterOrEqual(t, len(retryTimes), 2)

	for i := 1; i < len(retryTimes); i++ {
		d := retryTimes[i].Sub(retryTimes[i-1])
		require.GreaterOrEqualf(t, int64(d), minInterval(r),
			"time between retry %d and %d is %s, expected >=%s",
			i-1, i, d, time.Duration(minInterval(r)),
		)
	}
}

func TestBackoffInterval(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	r := New(WithBackoffInitialInterval(300*time.Millisecond), WithMaxAttempts(0))
	t.Cleanup(r.Stop)

	ctx, cancelFunc := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancelFunc()

	var retryTimes []time.Time

	err := r.Run(ctx, func(context.Context) error {
		retryTimes = append(retryTimes, time.Now())
		return portalerr.NewRetryableAnytimeError(errors.New("err"))
	}, nil)

	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.GreaterOrEqual(t, len(retryTimes), 2)
	for i := 1; i < len(retryTimes); i++ {
		d := retryTimes[i].Sub(retryTimes[i-1])
		require.GreaterOrEqualf(t, int64(d), minInterval(r),
			"time between retry %d and %d is %s, expected >=%s",
			i-1, i, d, time.Duration(minInterval(r)),
		)
	}
}

func TestRetryAfterIsHonored(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	r := New(WithBackoffInitialInterval(10 * time.Millisecond))
	t.Cleanup(r.Stop)

	const suspendFor = 500 * time.Millisecond

	var retryTimes []time.Time
	err := r.Run(context.Background(), func(context.Context) error {
		retryTimes = append(retryTimes, time.Now())
		if len(retryTimes) == 1 {
			return portalerr.NewRetryableError(errors.New("rate limit exceeded"), time.Now().Add(suspendFor))
		}
		return nil
	}, nil)

	require.NoError(t, err)
	require.Len(t, retryTimes, 2)
	assert.GreaterOrEqual(t, retryTimes[1].Sub(retryTimes[0]), suspendFor-10*time.Millisecond)
}

func TestMaxAttempts(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	r := New(WithMaxAttempts(3), WithBackoffInitialInterval(time.Millisecond))
	t.Cleanup(r.Stop)

	var calls int
	err := r.Run(context.Background(), func(context.Context) error {
		calls++
		return portalerr.NewRetryableAnytimeError(errors.New("err"))
	}, nil)

	require.Error(t, err)
	assert.True(t, portalerr.IsRetryable(err))
	assert.Equal(t, 3, calls)
}

func TestPermanentErrorIsNotRetried(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	r := New(WithBackoffInitialInterval(time.Millisecond))
	t.Cleanup(r.Stop)

	var calls int
	err := r.Run(context.Background(), func(context.Context) error {
		calls++
		return portalerr.NewPermanentError(errors.New("bad credentials"))
	}, nil)

	require.Error(t, err)
	assert.True(t, portalerr.IsPermanent(err))
	assert.Equal(t, 1, calls)
}

func TestAttemptTimeoutIsRetryable(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	r := New(
		WithAttemptTimeout(50*time.Millisecond),
		WithBackoffInitialInterval(time.Millisecond),
		WithMaxAttempts(5),
	)
	t.Cleanup(r.Stop)

	var calls int
	err := r.Run(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			<-ctx.Done()
			return ctx.Err()
		}
		return nil
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestStopTerminatesRun(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	r := New(WithBackoffInitialInterval(time.Hour), WithMaxAttempts(0))

	errCh := make(chan error, 1)
	go func() {
		errCh <- r.Run(context.Background(), func(context.Context) error {
			return portalerr.NewRetryableAnytimeError(errors.New("err"))
		}, nil)
	}()

	time.Sleep(50 * time.Millisecond)
	r.Stop()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrShutdown)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
}

func minInterval(retryer *Retryer) int64 {
	return int64(math.Floor(float64(retryer.backoffInitialInterval) * (1 - retryer.backoffRandomizationFactor)))
}
