package demurrage_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/demurrage-engine/calendar"
	"github.com/warp/demurrage-engine/demurrage"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func day(year int, month time.Month, d int) time.Time {
	return calendar.Date(year, month, d)
}

func weekendCalendar(t *testing.T, country string, year int) *calendar.Static {
	t.Helper()
	days, err := calendar.Weekends(year, country)
	require.NoError(t, err)
	return calendar.NewStatic(days...)
}

// =============================================================================
// START DATE
// =============================================================================

func TestStartDate_NoCalendar_CountsCalendarDays(t *testing.T) {
	// GIVEN: Country X has no non-working days
	// WHEN: ETA is Monday 2024-01-01 with 3 free days
	// THEN: Demurrage starts Friday 2024-01-05
	calc := demurrage.NewCalculator(calendar.NewStatic())

	start, err := calc.StartDate(context.Background(), day(2024, time.January, 1), "X", 3)
	require.NoError(t, err)
	assert.Equal(t, day(2024, time.January, 5), start)
}

func TestStartDate_NonWorkingDaysPauseTheCount(t *testing.T) {
	// GIVEN: Country Y closes Jan 2, Jan 3 and Sunday Jan 7
	// WHEN: ETA is 2024-01-01 with 3 free days
	// THEN: Free days are Jan 4, 5, 6; Jan 7 is closed so demurrage starts Jan 8
	cal := calendar.NewStatic()
	cal.Close("Y", day(2024, time.January, 2))
	cal.Close("Y", day(2024, time.January, 3))
	cal.Close("Y", day(2024, time.January, 7))
	calc := demurrage.NewCalculator(cal)

	start, err := calc.StartDate(context.Background(), day(2024, time.January, 1), "Y", 3)
	require.NoError(t, err)
	assert.Equal(t, day(2024, time.January, 8), start)
}

func TestStartDate_CandidateOnWorkingDay_NoExtraAdvance(t *testing.T) {
	cal := calendar.NewStatic()
	cal.Close("Y", day(2024, time.January, 2))
	cal.Close("Y", day(2024, time.January, 3))
	calc := demurrage.NewCalculator(cal)

	start, err := calc.StartDate(context.Background(), day(2024, time.January, 1), "Y", 3)
	require.NoError(t, err)
	assert.Equal(t, day(2024, time.January, 7), start)
}

func TestStartDate_StripsTimeOfDay(t *testing.T) {
	calc := demurrage.NewCalculator(calendar.NewStatic())
	eta := time.Date(2024, time.January, 1, 23, 59, 0, 0, time.UTC)

	start, err := calc.StartDate(context.Background(), eta, "X", 3)
	require.NoError(t, err)
	assert.Equal(t, day(2024, time.January, 5), start)
}

func TestStartDate_ZeroFreeDays_NextWorkingDayAfterETA(t *testing.T) {
	// ETA Friday; Saturday and Sunday are weekend.
	calc := demurrage.NewCalculator(weekendCalendar(t, "LK", 2024))

	start, err := calc.StartDate(context.Background(), day(2024, time.January, 5), "LK", 0)
	require.NoError(t, err)
	assert.Equal(t, day(2024, time.January, 8), start)

	// ETA Monday: still at least one day past ETA.
	start, err = calc.StartDate(context.Background(), day(2024, time.January, 1), "LK", 0)
	require.NoError(t, err)
	assert.Equal(t, day(2024, time.January, 2), start)
}

func TestStartDate_NegativeFreeDays_BehavesAsZero(t *testing.T) {
	calc := demurrage.NewCalculator(calendar.NewStatic())

	start, err := calc.StartDate(context.Background(), day(2024, time.January, 1), "X", -2)
	require.NoError(t, err)
	assert.Equal(t, day(2024, time.January, 2), start)
}

func TestStartDate_WeekendCalendar_CountsWorkingDaysOnly(t *testing.T) {
	// ETA Thursday 2024-01-04, 3 free days: Fri 5, Mon 8, Tue 9 -> starts Wed 10.
	calc := demurrage.NewCalculator(weekendCalendar(t, "LK", 2024))

	start, err := calc.StartDate(context.Background(), day(2024, time.January, 4), "LK", 3)
	require.NoError(t, err)
	assert.Equal(t, day(2024, time.January, 10), start)
}

func TestStartDate_NeverReturnsNonWorkingDay(t *testing.T) {
	cal := weekendCalendar(t, "LK", 2024)
	cal.Close("LK", day(2024, time.February, 4))
	cal.Close("LK", day(2024, time.April, 12))
	cal.Close("LK", day(2024, time.April, 13))
	cal.Close("LK", day(2024, time.April, 15))
	calc := demurrage.NewCalculator(cal)
	ctx := context.Background()

	for eta := day(2024, time.January, 1); eta.Before(day(2024, time.November, 1)); eta = eta.AddDate(0, 0, 1) {
		for free := 0; free <= 7; free++ {
			start, err := calc.StartDate(ctx, eta, "LK", free)
			require.NoError(t, err)

			working, err := cal.IsWorkingDay(ctx, start, "LK")
			require.NoError(t, err)
			require.True(t, working, "eta=%s free=%d start=%s", calendar.FormatDate(eta), free, calendar.FormatDate(start))
			require.True(t, start.After(eta))
		}
	}
}

func TestStartDate_AdvancesExactlyNWorkingDays(t *testing.T) {
	cal := weekendCalendar(t, "LK", 2024)
	calc := demurrage.NewCalculator(cal)
	ctx := context.Background()

	// ETA Monday 2024-03-04: working days after ETA are Tue 5 ... so N=4 ends Fri 8,
	// candidate Sat 9 is weekend -> Mon 11.
	start, err := calc.StartDate(ctx, day(2024, time.March, 4), "LK", 4)
	require.NoError(t, err)
	assert.Equal(t, day(2024, time.March, 11), start)

	// N=3 ends Thu 7, candidate Fri 8 is working.
	start, err = calc.StartDate(ctx, day(2024, time.March, 4), "LK", 3)
	require.NoError(t, err)
	assert.Equal(t, day(2024, time.March, 8), start)
}

func TestStartDate_EveryDayClosed_ReturnsCalendarInconsistent(t *testing.T) {
	closed := calendar.Func(func(context.Context, time.Time, string) (bool, error) {
		return false, nil
	})
	calc := &demurrage.Calculator{Calendar: closed, MaxLookahead: 30}

	_, err := calc.StartDate(context.Background(), day(2024, time.January, 1), "ZZ", 3)
	require.Error(t, err)
	assert.True(t, errors.Is(err, demurrage.ErrCalendarInconsistent))

	var incErr *demurrage.CalendarInconsistentError
	require.ErrorAs(t, err, &incErr)
	assert.Equal(t, "ZZ", incErr.CountryID)
	assert.Equal(t, 30, incErr.Window)
	assert.Equal(t, day(2024, time.January, 1), incErr.ETA)
}

func TestStartDate_LongClosureWithinWindow_Succeeds(t *testing.T) {
	// A 20-day closure is fine with a 30-day window.
	cal := calendar.NewStatic()
	for d := day(2024, time.January, 2); !d.After(day(2024, time.January, 21)); d = d.AddDate(0, 0, 1) {
		cal.Close("LK", d)
	}
	calc := &demurrage.Calculator{Calendar: cal, MaxLookahead: 30}

	start, err := calc.StartDate(context.Background(), day(2024, time.January, 1), "LK", 1)
	require.NoError(t, err)
	assert.Equal(t, day(2024, time.January, 23), start)
}

func TestStartDate_LargeFreeDays_NotMistakenForInconsistency(t *testing.T) {
	// The window bounds consecutive closed days, not the total walk.
	calc := &demurrage.Calculator{Calendar: calendar.NewStatic(), MaxLookahead: 10}

	start, err := calc.StartDate(context.Background(), day(2024, time.January, 1), "X", 40)
	require.NoError(t, err)
	assert.Equal(t, day(2024, time.February, 11), start)
}

func TestStartDate_CalendarError_Propagates(t *testing.T) {
	boom := errors.New("db down")
	failing := calendar.Func(func(context.Context, time.Time, string) (bool, error) {
		return false, boom
	})
	calc := demurrage.NewCalculator(failing)

	_, err := calc.StartDate(context.Background(), day(2024, time.January, 1), "LK", 3)
	assert.ErrorIs(t, err, boom)
	assert.False(t, errors.Is(err, demurrage.ErrCalendarInconsistent))
}

func TestStartDate_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calc := demurrage.NewCalculator(calendar.NewStatic())

	_, err := calc.StartDate(ctx, day(2024, time.January, 1), "LK", 3)
	assert.ErrorIs(t, err, context.Canceled)
}
