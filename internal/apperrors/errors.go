package apperrors

import (
	"errors"
	"fmt"
)

// RetryableError marks a failure that may succeed on redelivery, such as a
// database timeout or a transient gateway fault.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("retryable: %v", e.Err)
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryable wraps err as retryable with a formatted message, preserving the
// error chain for errors.Is checks.
func NewRetryable(err error, message string, args ...interface{}) error {
	allArgs := append(args, err)
	return &RetryableError{Err: fmt.Errorf(message+": %w", allArgs...)}
}

// FatalError marks a failure that redelivery cannot fix: malformed payloads,
// validation failures, integrity violations.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal: %v", e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// NewFatal wraps err as fatal with a formatted message, preserving the error
// chain for errors.Is checks.
func NewFatal(err error, message string, args ...interface{}) error {
	allArgs := append(args, err)
	return &FatalError{Err: fmt.Errorf(message+": %w", allArgs...)}
}

// Sentinel errors for common failure conditions. Repositories and services
// wrap these; callers classify with the Is* helpers below.
var (
	// ErrNotFound indicates a requested resource does not exist.
	ErrNotFound = errors.New("resource not found")
	// ErrValidation indicates a payload failed struct validation.
	ErrValidation = errors.New("validation failed")
	// ErrDatabase indicates a database interaction failure.
	ErrDatabase = errors.New("database error")
	// ErrNATS indicates a NATS communication failure.
	ErrNATS = errors.New("nats communication error")
	// ErrUnauthorized indicates the caller lacks access to the resource.
	ErrUnauthorized = errors.New("unauthorized access")
	// ErrDuplicate indicates a unique constraint collision.
	ErrDuplicate = errors.New("duplicate resource")
	// ErrConflict indicates the operation lost to a concurrent competitor.
	ErrConflict = errors.New("resource conflict")
	// ErrBadRequest indicates a malformed or invalid request.
	ErrBadRequest = errors.New("bad request")
	// ErrTimeout indicates the operation exceeded its deadline.
	ErrTimeout = errors.New("operation timeout")
	// ErrRateLimited indicates the operation was throttled.
	ErrRateLimited = errors.New("rate limited")
	// ErrIntegrity indicates corrupted reference data (hierarchy cycle,
	// dual or absent assignment target). Fatal to the affected record,
	// never silently repaired.
	ErrIntegrity = errors.New("data integrity violation")
	// ErrGatewayTransient indicates a temporary failure talking to the
	// messaging gateway.
	ErrGatewayTransient = errors.New("transient gateway error")
)

// IsRetryable reports whether err is or wraps a RetryableError.
func IsRetryable(err error) bool {
	var target *RetryableError
	return errors.As(err, &target)
}

// IsFatal reports whether err is or wraps a FatalError.
func IsFatal(err error) bool {
	var target *FatalError
	return errors.As(err, &target)
}

// IsNotFoundError reports whether err is or wraps ErrNotFound.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidationError reports whether err is or wraps ErrValidation.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsDatabaseError reports whether err is or wraps ErrDatabase.
func IsDatabaseError(err error) bool {
	return errors.Is(err, ErrDatabase)
}

// IsNATSError reports whether err is or wraps ErrNATS.
func IsNATSError(err error) bool {
	return errors.Is(err, ErrNATS)
}

// IsUnauthorizedError reports whether err is or wraps ErrUnauthorized.
func IsUnauthorizedError(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// IsDuplicateError reports whether err is or wraps ErrDuplicate.
func IsDuplicateError(err error) bool {
	return errors.Is(err, ErrDuplicate)
}

// IsConflictError reports whether err is or wraps ErrConflict.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsBadRequestError reports whether err is or wraps ErrBadRequest.
func IsBadRequestError(err error) bool {
	return errors.Is(err, ErrBadRequest)
}

// IsTimeoutError reports whether err is or wraps ErrTimeout.
func IsTimeoutError(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsRateLimitedError reports whether err is or wraps ErrRateLimited.
func IsRateLimitedError(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

// IsIntegrityError reports whether err is or wraps ErrIntegrity.
func IsIntegrityError(err error) bool {
	return errors.Is(err, ErrIntegrity)
}

// IsGatewayTransientError reports whether err is or wraps ErrGatewayTransient.
func IsGatewayTransientError(err error) bool {
	return errors.Is(err, ErrGatewayTransient)
}
