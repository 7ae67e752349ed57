package portalerr

import (
	"context"
	"errors"
)

// Kind is the classification of an error as it is reported to callers.
type Kind string

const (
	KindNone           Kind = ""
	KindValidation     Kind = "validation"
	KindTransient      Kind = "transient_remote"
	KindPermanent      Kind = "permanent_remote"
	KindLockContention Kind = "lock_contention"
	KindBlocked        Kind = "blocked"
	KindCancelled      Kind = "cancelled"
	KindInternal       Kind = "internal"
)

// KindOf classifies err.
// The order of the checks matters, a RetryableError that wraps a
// context error is still transient.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}

	switch {
	case IsValidation(err):
		return KindValidation
	case errors.Is(err, ErrLockContention):
		return KindLockContention
	case errors.Is(err, ErrBlocked):
		return KindBlocked
	case IsRetryable(err):
		return KindTransient
	case IsPermanent(err):
		return KindPermanent
	case errors.Is(err, context.DeadlineExceeded):
		return KindTransient
	case errors.Is(err, context.Canceled):
		return KindCancelled
	}

	return KindInternal
}
