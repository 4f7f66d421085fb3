package moderation

import (
	"errors"
	"fmt"
)

// Workflow errors. Callers classify with errors.Is; only
// ErrUpstreamUnavailable is worth retrying.
var (
	ErrNotFound            = errors.New("not found")
	ErrForbidden           = errors.New("forbidden")
	ErrInvalidTransition   = errors.New("invalid transition")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrDuplicateSubmission = errors.New("duplicate submission")
	ErrValidation          = errors.New("validation failed")
)

func upstream(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUpstreamUnavailable, err)
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidTransition, fmt.Sprintf(format, args...))
}

func validation(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}

func duplicate(msg string) error {
	return fmt.Errorf("%w: %s", ErrDuplicateSubmission, msg)
}
