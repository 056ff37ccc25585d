package requester

import (
	"errors"

	"github.com/hazyhaar/newsnexus/requester/internal/errs"
	"github.com/hazyhaar/newsnexus/requester/internal/lock"
	"github.com/hazyhaar/newsnexus/requester/internal/store"
)

// Error kinds of a run. Use errors.As / errors.Is.
type (
	InvalidDateError = errs.InvalidDateError
	TransportError   = errs.TransportError
	ParseError       = errs.ParseError
	RateLimitedError = errs.RateLimitedError
	PersistenceError = errs.PersistenceError
)

var (
	// ErrSourceNotFound is returned when OrgName has not been seeded.
	ErrSourceNotFound = errs.ErrSourceNotFound
	// ErrNoEntity is returned when the source has no attribution entity.
	ErrNoEntity = errs.ErrNoEntity
	// ErrLocked is returned when the same keyword triple is already running.
	ErrLocked = lock.ErrLocked
	// ErrDuplicateQuerySet is returned when a keyword set already exists.
	ErrDuplicateQuerySet = store.ErrDuplicateQuerySet
	// ErrInvalidInput is returned when API input fails validation.
	ErrInvalidInput = errors.New("requester: invalid input")
)
