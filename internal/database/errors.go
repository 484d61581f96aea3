package database

import (
	"errors"

	"github.com/lib/pq"
)

var (
	// ErrNotFound is returned when a row required by a write does not exist
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyRegistered is returned when a completed registration already exists
	ErrAlreadyRegistered = errors.New("already registered")
	// ErrEventFull is returned when an event has reached capacity
	ErrEventFull = errors.New("event is full")
	// ErrEventClosed is returned when an event no longer accepts registrations
	ErrEventClosed = errors.New("event is closed for registration")
	// ErrInvalidTeamSize is returned when team data violates the event's team bounds
	ErrInvalidTeamSize = errors.New("team size outside event bounds")
	// ErrNotPending is returned when approving a fest registration that is not pending
	ErrNotPending = errors.New("fest registration is not pending")
	// ErrCodeCollision is returned when a generated registration code is already taken
	ErrCodeCollision = errors.New("registration code already in use")
)

const uniqueViolation = "23505"

// IsUniqueViolation reports whether err is a PostgreSQL unique constraint violation
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
