package leaderboard

import (
	"errors"
	"fmt"
)

// Base errors for errors.Is checks.
var (
	ErrValidation     = errors.New("leaderboard: validation failed")
	ErrDatabase       = errors.New("leaderboard: database error")
	ErrPlayerNotFound = errors.New("leaderboard: player not found")
)

// ValidationError reports a rejected filter or pagination value. It is
// returned to the caller as-is and never retried.
type ValidationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("leaderboard: invalid %s %v: %s", e.Field, e.Value, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// DatabaseError wraps a store or cache failure with the operation and entity
// that failed. The cause is always attached.
type DatabaseError struct {
	Op     string // e.g. "GetLeaderboard"
	Entity string // e.g. "player_snapshots"
	Err    error
}

func (e *DatabaseError) Error() string {
	return fmt.Sprintf("leaderboard.%s: %s: %v", e.Op, e.Entity, e.Err)
}

func (e *DatabaseError) Unwrap() error { return e.Err }

func (e *DatabaseError) Is(target error) bool {
	return target == ErrDatabase
}

func dbError(op, entity string, err error) error {
	return &DatabaseError{Op: op, Entity: entity, Err: err}
}

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }

// IsDatabase reports whether err is a wrapped store or cache failure.
func IsDatabase(err error) bool { return errors.Is(err, ErrDatabase) }
