package errors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalid      = errors.New("invalid")
	ErrConflict     = errors.New("conflict")
	ErrInternal     = errors.New("internal")
	// ErrDependency marks failures of the semantic index or the generator.
	ErrDependency = errors.New("dependency unavailable")
	// ErrConsistency marks an index entry whose message is gone from the log.
	ErrConsistency = errors.New("index inconsistent with log")
)

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsInvalid(err error) bool {
	return errors.Is(err, ErrInvalid)
}

func IsDependency(err error) bool {
	return errors.Is(err, ErrDependency)
}

func IsConsistency(err error) bool {
	return errors.Is(err, ErrConsistency)
}

func Invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// Dependency tags err as a dependency failure of op, keeping err in the chain.
func Dependency(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrDependency, err)
}

func Consistency(chatID, messageID string) error {
	return fmt.Errorf("%w: chat=%s message=%s", ErrConsistency, chatID, messageID)
}
