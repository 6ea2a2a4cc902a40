package calendar

import (
	"fmt"
	"strings"
	"time"
)

// DefaultWeekend is the weekend used when a caller does not name one.
var DefaultWeekend = []time.Weekday{time.Saturday, time.Sunday}

// Weekends generates one active weekend record per matching day of year for
// countryID. IDs are left empty; the caller assigns them on save.
func Weekends(year int, countryID string, weekend ...time.Weekday) ([]NonWorkingDay, error) {
	if countryID == "" {
		return nil, fmt.Errorf("weekends: country is required")
	}
	if year < 1 || year > 9999 {
		return nil, fmt.Errorf("weekends: invalid year %d", year)
	}
	if len(weekend) == 0 {
		weekend = DefaultWeekend
	}

	match := make(map[time.Weekday]bool, len(weekend))
	for _, wd := range weekend {
		match[wd] = true
	}

	var days []NonWorkingDay
	for d := Date(year, time.January, 1); d.Year() == year; d = d.AddDate(0, 0, 1) {
		if !match[d.Weekday()] {
			continue
		}
		days = append(days, NonWorkingDay{
			Date:        d,
			CountryID:   countryID,
			Type:        DayTypeWeekend,
			Active:      true,
			Description: d.Weekday().String(),
		})
	}
	return days, nil
}

// ParseWeekday accepts full or three-letter English weekday names.
func ParseWeekday(s string) (time.Weekday, error) {
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		name := wd.String()
		if strings.EqualFold(s, name) || strings.EqualFold(s, name[:3]) {
			return wd, nil
		}
	}
	return 0, fmt.Errorf("unknown weekday %q", s)
}
