package demurrage

import (
	"context"
	"time"

	"github.com/warp/demurrage-engine/calendar"
)

// DefaultMaxLookahead bounds how many consecutive non-working days the walk
// tolerates before giving up.
const DefaultMaxLookahead = 3650

// Calculator turns an ETA into a demurrage start date.
type Calculator struct {
	Calendar calendar.Calendar

	// MaxLookahead is the longest run of consecutive non-working days the
	// walk accepts. Zero means DefaultMaxLookahead.
	MaxLookahead int
}

// NewCalculator creates a calculator over cal with the default lookahead.
func NewCalculator(cal calendar.Calendar) *Calculator {
	return &Calculator{Calendar: cal, MaxLookahead: DefaultMaxLookahead}
}

// StartDate returns the first day demurrage accrues for a shipment arriving
// at eta in countryID with freeDays of grace.
//
// Starting the day after the ETA date, each working day counts toward
// freeDays. The day after the last counted working day is the candidate;
// if that is a non-working day the walk continues to the next working day.
// With freeDays <= 0 the result is the first working day after the ETA date.
//
// The result is never a non-working day.
func (c *Calculator) StartDate(ctx context.Context, eta time.Time, countryID string, freeDays int) (time.Time, error) {
	w := walk{
		ctx:     ctx,
		cal:     c.Calendar,
		country: countryID,
		eta:     calendar.Day(eta),
		window:  c.window(),
	}

	day := w.eta
	for counted := 0; counted < freeDays; {
		day = day.AddDate(0, 0, 1)
		working, err := w.check(day)
		if err != nil {
			return time.Time{}, err
		}
		if working {
			counted++
		}
	}

	candidate := day.AddDate(0, 0, 1)
	for {
		working, err := w.check(candidate)
		if err != nil {
			return time.Time{}, err
		}
		if working {
			return candidate, nil
		}
		candidate = candidate.AddDate(0, 0, 1)
	}
}

func (c *Calculator) window() int {
	if c.MaxLookahead <= 0 {
		return DefaultMaxLookahead
	}
	return c.MaxLookahead
}

// walk tracks the current run of non-working days so a calendar that closes
// every day fails instead of looping forever.
type walk struct {
	ctx     context.Context
	cal     calendar.Calendar
	country string
	eta     time.Time
	window  int
	gap     int
}

func (w *walk) check(day time.Time) (bool, error) {
	if err := w.ctx.Err(); err != nil {
		return false, err
	}
	working, err := w.cal.IsWorkingDay(w.ctx, day, w.country)
	if err != nil {
		return false, err
	}
	if working {
		w.gap = 0
		return true, nil
	}
	w.gap++
	if w.gap >= w.window {
		return false, &CalendarInconsistentError{CountryID: w.country, ETA: w.eta, Window: w.window}
	}
	return false, nil
}
