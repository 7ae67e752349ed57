// Package retry runs operations repeatedly until they succeed, fail with a
// non-retryable error or a retry limit is reached.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
	"go.uber.org/zap"

	"github.com/simplesurance/classportal/internal/logfields"
	"github.com/simplesurance/classportal/internal/portalerr"
)

const (
	DefMaxRetryTimeout        = 10 * time.Minute
	DefMaxAttempts            = 5
	DefAttemptTimeout         = time.Minute
	DefBackoffInitialInterval = time.Second
)

// ErrShutdown is returned by Run when the Retryer was stopped before the
// operation succeeded.
var ErrShutdown = errors.New("retryer terminated")

// Retryer executes a function repeatedly until it was successful or cancel
// condition happened.
type Retryer struct {
	logger *zap.Logger

	maxRetryTimeout time.Duration
	// maxAttempts is the maximum number of executions, 0 means unlimited
	maxAttempts uint
	// attemptTimeout bounds a single execution, exceeding it is a
	// retryable failure.
	attemptTimeout time.Duration

	backoffInitialInterval     time.Duration
	backoffRandomizationFactor float64

	shutdownChan chan struct{}
}

type Option func(*Retryer)

func WithMaxRetryTimeout(d time.Duration) Option {
	return func(r *Retryer) {
		r.maxRetryTimeout = d
	}
}

func WithMaxAttempts(n uint) Option {
	return func(r *Retryer) {
		r.maxAttempts = n
	}
}

func WithAttemptTimeout(d time.Duration) Option {
	return func(r *Retryer) {
		r.attemptTimeout = d
	}
}

func WithBackoffInitialInterval(d time.Duration) Option {
	return func(r *Retryer) {
		r.backoffInitialInterval = d
	}
}

func New(opts ...Option) *Retryer {
	r := Retryer{
		logger:                     zap.L().Named("retryer"),
		maxRetryTimeout:            DefMaxRetryTimeout,
		maxAttempts:                DefMaxAttempts,
		attemptTimeout:             DefAttemptTimeout,
		backoffInitialInterval:     DefBackoffInitialInterval,
		backoffRandomizationFactor: backoff.DefaultRandomizationFactor,
		shutdownChan:               make(chan struct{}),
	}

	for _, opt := range opts {
		opt(&r)
	}

	return &r
}

func (r *Retryer) newBackoff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = r.backoffInitialInterval
	bo.RandomizationFactor = r.backoffRandomizationFactor
	bo.MaxElapsedTime = 0
	bo.Reset()

	return bo
}

// runAttempt runs fn once with the attempt timeout applied.
// When the attempt timeout expires and the parent context is still valid the
// error is converted to a RetryableError.
func (r *Retryer) runAttempt(ctx context.Context, fn func(context.Context) error) error {
	if r.attemptTimeout <= 0 {
		return fn(ctx)
	}

	attemptCtx, cancelFn := context.WithTimeout(ctx, r.attemptTimeout)
	defer cancelFn()

	err := fn(attemptCtx)
	if err == nil {
		return nil
	}

	if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) && !portalerr.IsRetryable(err) {
		return portalerr.NewRetryableAnytimeError(
			fmt.Errorf("attempt timed out after %s: %w", r.attemptTimeout, err),
		)
	}

	return err
}

// Run executes fn until it was successful, it returned an error that
// does not wrap portalerr.RetryableError, the maximum number of attempts was
// reached or the execution was aborted via the context.
// When fn returns a RetryableError with a non-zero After field, the next
// execution happens not before that point in time.
func (r *Retryer) Run(ctx context.Context, fn func(context.Context) error, logF []zap.Field) error {
	var tryCnt uint
	var lastErr error

	startTime := time.Now()
	endTime := startTime.Add(r.maxRetryTimeout)

	retryTimeout := time.NewTimer(r.maxRetryTimeout)
	defer retryTimeout.Stop()

	retryTimer := time.NewTimer(0)
	defer retryTimer.Stop()

	bo := r.newBackoff()

	for {
		logger := r.logger.With(logF...).With(zap.Uint("try_count", tryCnt+1))

		select {
		case <-ctx.Done():
			logger.Debug(
				"operation execution cancelled",
				logfields.Event("operation_execution_cancelled"),
			)

			if lastErr != nil {
				return fmt.Errorf("%w, last error: %s", ctx.Err(), lastErr)
			}

			return ctx.Err()

		case <-retryTimer.C:
			tryCnt++

			err := r.runAttempt(ctx, fn)
			if err == nil {
				if tryCnt > 1 {
					logger.Debug(
						"operation succeeded after retries",
						logfields.Event("operation_retry_succeeded"),
					)
				}

				return nil
			}

			lastErr = err
			logger = logger.With(zap.Error(err))

			if errors.Is(err, context.Canceled) {
				logger.Debug(
					"operation cancelled",
					logfields.Event("operation_cancelled"),
				)

				return err
			}

			var retryError *portalerr.RetryableError
			if !errors.As(err, &retryError) {
				logger.Debug(
					"operation failed, not retryable",
					logfields.Event("operation_failed"),
				)

				return err
			}

			if r.maxAttempts > 0 && tryCnt >= r.maxAttempts {
				logger.Warn(
					"operation failed, giving up, max attempts reached",
					logfields.Event("operation_retry_attempts_exhausted"),
					zap.Uint("max_attempts", r.maxAttempts),
				)

				return err
			}

			if retryError.After.After(endTime) {
				logger.Warn(
					"operation failed, next possible retry time is after timeout expiration",
					logfields.Event("operation_failed"),
					zap.Time("earliest_allowed_retry", retryError.After),
				)

				return err
			}

			if deadline, ok := ctx.Deadline(); ok && retryError.After.After(deadline) {
				logger.Warn(
					"operation failed, next possible retry time is after context deadline",
					logfields.Event("operation_failed"),
					zap.Time("earliest_allowed_retry", retryError.After),
					zap.Time("deadline", deadline),
				)

				return err
			}

			retryIn := bo.NextBackOff()
			if !retryError.After.IsZero() {
				if untilAfter := time.Until(retryError.After); untilAfter > retryIn {
					retryIn = untilAfter
				}
			}

			retryTimer.Reset(retryIn)
			metrics.RetriesInc()

			logger.Info(
				"operation failed, retry scheduled",
				logfields.Event("operation_retry_scheduled"),
				zap.Duration("retry_in", retryIn),
				zap.Duration("age", time.Since(startTime)),
			)

		case <-retryTimeout.C:
			r.logger.With(logF...).Warn(
				"giving up retrying operation, retry timeout expired",
				logfields.Event("operation_retry_timeout"),
				zap.Duration("retry_timeout", r.maxRetryTimeout),
				zap.Uint("try_count", tryCnt),
			)

			if lastErr != nil {
				return fmt.Errorf("retry timeout expired: %w", lastErr)
			}

			return errors.New("retry timeout expired")

		case <-r.shutdownChan:
			logger.Info(
				"retryer terminating, operation not executed",
				logfields.Event("operation_execution_cancelled_retryer_terminated"),
			)

			return ErrShutdown
		}
	}
}

// Stop notifies all Run() methods to terminate.
// It does not wait for their termination.
func (r *Retryer) Stop() {
	r.logger.Debug("retryer terminating", logfields.Event("retryer_terminating"))

	select {
	case <-r.shutdownChan:
		return // already closed
	default:
		close(r.shutdownChan)
	}
}
