package domain

import (
	"github.com/cockroachdb/errors"
)

// Error kinds. Concrete errors are marked with one of these so callers can
// classify with errors.Is without looking at messages.
var (
	ErrValidation            = errors.New("validation error")
	ErrNotFound              = errors.New("not found")
	ErrAlreadyProcessed      = errors.New("already processed")
	ErrMalformedCredential   = errors.New("malformed credential")
	ErrIssuanceFailed        = errors.New("issuance failed")
	ErrDependencyUnavailable = errors.New("dependency unavailable")
	ErrUnauthorized          = errors.New("unauthorized")

	ErrSerializationFailure = errors.New("serialization failure")
	ErrConflict             = errors.New("conflict")
)

type Kind string

const (
	KindValidation            Kind = "VALIDATION_ERROR"
	KindNotFound              Kind = "NOT_FOUND"
	KindAlreadyProcessed      Kind = "ALREADY_PROCESSED"
	KindMalformedCredential   Kind = "MALFORMED_CREDENTIAL"
	KindIssuanceFailed        Kind = "ISSUANCE_FAILED"
	KindDependencyUnavailable Kind = "DEPENDENCY_UNAVAILABLE"
	KindConflict              Kind = "CONFLICT"
	KindUnauthorized          Kind = "UNAUTHORIZED"
	KindInternal              Kind = "INTERNAL"
)

var kinds = []struct {
	sentinel error
	kind     Kind
}{
	{ErrValidation, KindValidation},
	{ErrNotFound, KindNotFound},
	{ErrAlreadyProcessed, KindAlreadyProcessed},
	{ErrMalformedCredential, KindMalformedCredential},
	{ErrIssuanceFailed, KindIssuanceFailed},
	{ErrDependencyUnavailable, KindDependencyUnavailable},
	{ErrConflict, KindConflict},
	{ErrUnauthorized, KindUnauthorized},
	{ErrSerializationFailure, KindConflict},
}

// KindOf reports the first kind err is marked with. The order above matters:
// an issuance failure caused by an unreachable database is IssuanceFailed.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.sentinel) {
			return k.kind
		}
	}
	return KindInternal
}

func Validationf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrValidation)
}

func NotFoundf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrNotFound)
}

func MalformedCredentialf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrMalformedCredential)
}

func Unauthorizedf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrUnauthorized)
}

// Unavailable marks err as a retryable infrastructure failure.
func Unavailable(err error, msg string) error {
	if err == nil {
		return nil
	}
	return errors.Mark(errors.Wrap(err, msg), ErrDependencyUnavailable)
}

func IssuanceFailed(err error) error {
	if err == nil {
		return nil
	}
	return errors.Mark(errors.Wrap(err, "issue ticket units"), ErrIssuanceFailed)
}
