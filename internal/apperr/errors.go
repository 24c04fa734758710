// Package apperr holds the error taxonomy shared by the embedding pipeline.
// Validation and not-found errors abort a single tenant/table iteration,
// provider errors mark a batch group as skipped; none of them fail a whole run.
package apperr

import (
	"errors"
	"fmt"
)

type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

func Validation(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ProviderError wraps a transient embedding-provider failure (network,
// rate limit, malformed response). The cause is kept for logging.
type ProviderError struct {
	Msg string
	Err error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

func Provider(msg string, err error) error {
	return &ProviderError{Msg: msg, Err: err}
}

func IsProvider(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}

type NotFoundError struct {
	Msg string
}

func (e *NotFoundError) Error() string {
	return e.Msg
}

func NotFound(format string, args ...any) error {
	return &NotFoundError{Msg: fmt.Sprintf(format, args...)}
}

func IsNotFound(err error) bool {
	var ne *NotFoundError
	return errors.As(err, &ne)
}
