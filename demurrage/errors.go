package demurrage

import (
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrCalendarInconsistent is returned when no working day can be found
	// within the lookahead window, e.g. every day is marked non-working.
	ErrCalendarInconsistent = errors.New("calendar inconsistent: no working day within lookahead window")

	// ErrConfigConflict is returned when saving a second active Config for
	// the same company and country.
	ErrConfigConflict = errors.New("an active demurrage config already exists for this company and country")

	// ErrNotFound is returned when a referenced record doesn't exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateNonWorkingDay is returned when an active non-working day
	// already exists for the same date and country.
	ErrDuplicateNonWorkingDay = errors.New("active non-working day already exists for date and country")

	// ErrInvalidInput is returned for malformed master data.
	ErrInvalidInput = errors.New("invalid input")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// CalendarInconsistentError carries the walk that ran out of lookahead.
type CalendarInconsistentError struct {
	CountryID string
	ETA       time.Time
	Window    int
}

func (e *CalendarInconsistentError) Error() string {
	return fmt.Sprintf("calendar inconsistent for %s: no working day within %d days of %s",
		e.CountryID, e.Window, e.ETA.Format("2006-01-02"))
}

func (e *CalendarInconsistentError) Unwrap() error {
	return ErrCalendarInconsistent
}

// ConfigConflictError names the config that already holds the slot.
type ConfigConflictError struct {
	CompanyID  string
	CountryID  string
	ExistingID string
}

func (e *ConfigConflictError) Error() string {
	return fmt.Sprintf("active demurrage config %s already exists for company %s in %s",
		e.ExistingID, e.CompanyID, e.CountryID)
}

func (e *ConfigConflictError) Unwrap() error {
	return ErrConfigConflict
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrCalendarInconsistent)
}

// IsConflict returns true if the error violates a uniqueness invariant.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConfigConflict) ||
		errors.Is(err, ErrDuplicateNonWorkingDay)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
