package calendar

import (
	"context"
	"sync"
	"time"
)

// Static is an in-memory Calendar built from a fixed set of records.
// Inactive records are kept but ignored by lookups.
type Static struct {
	mu   sync.RWMutex
	days map[cacheKey][]NonWorkingDay
}

// NewStatic builds a Static calendar from days.
func NewStatic(days ...NonWorkingDay) *Static {
	s := &Static{days: make(map[cacheKey][]NonWorkingDay)}
	for _, d := range days {
		s.Add(d)
	}
	return s
}

// Add records d.
func (s *Static) Add(d NonWorkingDay) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := cacheKey{country: d.CountryID, date: FormatDate(d.Date)}
	s.days[k] = append(s.days[k], d)
}

// Close marks date as an active holiday for countryID.
func (s *Static) Close(countryID string, date time.Time) {
	s.Add(NonWorkingDay{Date: Day(date), CountryID: countryID, Type: DayTypeHoliday, Active: true})
}

func (s *Static) IsWorkingDay(_ context.Context, date time.Time, countryID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, d := range s.days[cacheKey{country: countryID, date: FormatDate(date)}] {
		if d.Active {
			return false, nil
		}
	}
	return true, nil
}
