package calendar_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/demurrage-engine/calendar"
)

func TestStatic_UninitializedCountry_EveryDayWorks(t *testing.T) {
	cal := calendar.NewStatic()
	ctx := context.Background()

	for d := calendar.Date(2024, time.January, 1); d.Before(calendar.Date(2025, time.January, 1)); d = d.AddDate(0, 0, 1) {
		working, err := cal.IsWorkingDay(ctx, d, "XX")
		require.NoError(t, err)
		require.True(t, working, "day %s should be working", calendar.FormatDate(d))
	}
}

func TestStatic_ActiveRecord_OnlyAffectsItsCountry(t *testing.T) {
	// GIVEN: LK closes 2024-01-15
	// WHEN: asking about the same date for LK and IN
	// THEN: only LK is closed
	cal := calendar.NewStatic()
	cal.Close("LK", calendar.Date(2024, time.January, 15))
	ctx := context.Background()

	working, err := cal.IsWorkingDay(ctx, calendar.Date(2024, time.January, 15), "LK")
	require.NoError(t, err)
	assert.False(t, working)

	working, err = cal.IsWorkingDay(ctx, calendar.Date(2024, time.January, 15), "IN")
	require.NoError(t, err)
	assert.True(t, working)

	working, err = cal.IsWorkingDay(ctx, calendar.Date(2024, time.January, 16), "LK")
	require.NoError(t, err)
	assert.True(t, working)
}

func TestStatic_InactiveRecord_Ignored(t *testing.T) {
	cal := calendar.NewStatic(calendar.NonWorkingDay{
		Date:      calendar.Date(2024, time.May, 1),
		CountryID: "LK",
		Type:      calendar.DayTypeHoliday,
		Active:    false,
	})

	working, err := cal.IsWorkingDay(context.Background(), calendar.Date(2024, time.May, 1), "LK")
	require.NoError(t, err)
	assert.True(t, working)
}

func TestStatic_TimestampLookup_UsesCalendarDate(t *testing.T) {
	cal := calendar.NewStatic()
	cal.Close("LK", calendar.Date(2024, time.March, 8))

	afternoon := time.Date(2024, time.March, 8, 15, 45, 0, 0, time.UTC)
	working, err := cal.IsWorkingDay(context.Background(), afternoon, "LK")
	require.NoError(t, err)
	assert.False(t, working)
}

func TestDay_KeepsLocalDate(t *testing.T) {
	colombo := time.FixedZone("+0530", 5*3600+30*60)
	// 00:10 local on the 2nd is still the 1st in UTC.
	ts := time.Date(2024, time.January, 2, 0, 10, 0, 0, colombo)

	assert.Equal(t, calendar.Date(2024, time.January, 2), calendar.Day(ts))
	assert.Equal(t, calendar.Date(2024, time.January, 1), calendar.Day(ts.UTC()))
}

func TestWeekends_GeneratesSaturdaysAndSundays(t *testing.T) {
	days, err := calendar.Weekends(2024, "LK")
	require.NoError(t, err)

	// 2024 starts on a Monday and is a leap year: 52 Saturdays, 52 Sundays.
	assert.Len(t, days, 104)
	for _, d := range days {
		wd := d.Date.Weekday()
		assert.True(t, wd == time.Saturday || wd == time.Sunday)
		assert.Equal(t, "LK", d.CountryID)
		assert.Equal(t, calendar.DayTypeWeekend, d.Type)
		assert.True(t, d.Active)
		assert.Equal(t, 2024, d.Date.Year())
	}
	assert.Equal(t, calendar.Date(2024, time.January, 6), days[0].Date)
}

func TestWeekends_CustomWeekend(t *testing.T) {
	days, err := calendar.Weekends(2024, "AE", time.Friday)
	require.NoError(t, err)
	assert.Len(t, days, 52)
	assert.Equal(t, time.Friday, days[0].Date.Weekday())
}

func TestWeekends_Validation(t *testing.T) {
	_, err := calendar.Weekends(2024, "")
	assert.Error(t, err)

	_, err = calendar.Weekends(0, "LK")
	assert.Error(t, err)
}

func TestParseWeekday(t *testing.T) {
	wd, err := calendar.ParseWeekday("sat")
	require.NoError(t, err)
	assert.Equal(t, time.Saturday, wd)

	wd, err = calendar.ParseWeekday("Friday")
	require.NoError(t, err)
	assert.Equal(t, time.Friday, wd)

	_, err = calendar.ParseWeekday("someday")
	assert.Error(t, err)
}

func TestCached_QueriesUnderlyingOncePerDay(t *testing.T) {
	calls := 0
	next := calendar.Func(func(_ context.Context, date time.Time, _ string) (bool, error) {
		calls++
		return date.Weekday() != time.Sunday, nil
	})
	cached := calendar.NewCached(next)
	ctx := context.Background()

	sunday := calendar.Date(2024, time.January, 7)
	for i := 0; i < 3; i++ {
		working, err := cached.IsWorkingDay(ctx, sunday, "LK")
		require.NoError(t, err)
		assert.False(t, working)
	}
	_, err := cached.IsWorkingDay(ctx, sunday, "IN")
	require.NoError(t, err)

	assert.Equal(t, 2, calls)
	assert.Equal(t, 2, cached.Misses())
}

func TestCached_DoesNotCacheErrors(t *testing.T) {
	fail := true
	next := calendar.Func(func(context.Context, time.Time, string) (bool, error) {
		if fail {
			return false, errors.New("db down")
		}
		return true, nil
	})
	cached := calendar.NewCached(next)
	ctx := context.Background()
	day := calendar.Date(2024, time.January, 1)

	_, err := cached.IsWorkingDay(ctx, day, "LK")
	require.Error(t, err)

	fail = false
	working, err := cached.IsWorkingDay(ctx, day, "LK")
	require.NoError(t, err)
	assert.True(t, working)
}
