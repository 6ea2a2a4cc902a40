/*
Package calendar answers "is this a working day in this country".

PURPOSE:
  Countries publish their own non-working days (weekends, public holidays,
  port closures). The demurrage engine counts free days in WORKING days, so
  every step of its forward walk asks this package about one (date, country)
  pair.

DEFAULT-PERMISSIVE POLICY:
  A day is a working day unless an ACTIVE NonWorkingDay record exists for
  exactly that date and country. A country with no records at all has an
  uninitialized calendar and every day counts as working. That is not an
  error.

DATES:
  All dates are calendar days represented as time.Time at 00:00 UTC.
  Use Day() to normalize timestamps before comparing or storing them.

SEE ALSO:
  - weekends.go: Bulk weekend generation for a year
  - demurrage/calculator.go: The forward walk that consumes Calendar
  - store/sqlite/sqlite.go: SQL-backed Calendar
*/
package calendar

import (
	"context"
	"sync"
	"time"
)

// DateLayout is the wire and storage format of a calendar day.
const DateLayout = "2006-01-02"

// =============================================================================
// NON-WORKING DAY
// =============================================================================

// DayType classifies a non-working day.
type DayType string

const (
	DayTypeWeekend DayType = "weekend"
	DayTypeHoliday DayType = "holiday"
)

// Valid reports whether t is a known day type.
func (t DayType) Valid() bool {
	return t == DayTypeWeekend || t == DayTypeHoliday
}

// NonWorkingDay is one calendar exception for one country.
// Records are never deleted; they are deactivated instead.
type NonWorkingDay struct {
	ID          string
	Date        time.Time // calendar day, 00:00 UTC
	CountryID   string
	Type        DayType
	Active      bool
	Description string
	CreatedAt   time.Time
}

// =============================================================================
// CALENDAR
// =============================================================================

// Calendar answers working-day questions for a country.
type Calendar interface {
	// IsWorkingDay returns false iff an active non-working day exists
	// for exactly (date, countryID).
	IsWorkingDay(ctx context.Context, date time.Time, countryID string) (bool, error)
}

// Func adapts a function to the Calendar interface.
type Func func(ctx context.Context, date time.Time, countryID string) (bool, error)

func (f Func) IsWorkingDay(ctx context.Context, date time.Time, countryID string) (bool, error) {
	return f(ctx, date, countryID)
}

// AllWorkingDays treats every day of every country as a working day.
type AllWorkingDays struct{}

func (AllWorkingDays) IsWorkingDay(context.Context, time.Time, string) (bool, error) {
	return true, nil
}

// Day strips the time of day from t, keeping the calendar date as seen in
// t's own location. The result is midnight UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Date builds a calendar day.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD calendar day.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}

// FormatDate renders a calendar day as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return Day(t).Format(DateLayout)
}

// =============================================================================
// CACHED CALENDAR
// =============================================================================

type cacheKey struct {
	country string
	date    string
}

// Cached memoizes answers from an underlying Calendar. Errors are not cached.
// Meant to live for one batch run, where the same country days are walked
// once per shipment.
type Cached struct {
	next Calendar

	mu      sync.Mutex
	answers map[cacheKey]bool
	misses  int
}

// NewCached wraps next with a per-instance cache.
func NewCached(next Calendar) *Cached {
	return &Cached{next: next, answers: make(map[cacheKey]bool)}
}

func (c *Cached) IsWorkingDay(ctx context.Context, date time.Time, countryID string) (bool, error) {
	k := cacheKey{country: countryID, date: FormatDate(date)}

	c.mu.Lock()
	working, ok := c.answers[k]
	c.mu.Unlock()
	if ok {
		return working, nil
	}

	working, err := c.next.IsWorkingDay(ctx, Day(date), countryID)
	if err != nil {
		return false, err
	}

	c.mu.Lock()
	c.answers[k] = working
	c.misses++
	c.mu.Unlock()
	return working, nil
}

// Misses returns how many lookups reached the underlying calendar.
func (c *Cached) Misses() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.misses
}
