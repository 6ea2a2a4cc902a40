package demurrage

import (
	"fmt"
	"time"
)

// DefaultTimezone is the civil timezone the daily check runs in.
const DefaultTimezone = "Asia/Colombo"

// Clock abstracts time.Now so the batch job can run against a frozen time.
type Clock interface {
	Now() time.Time
}

// SystemClock uses time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// ZoneClock reports the current time in a fixed location.
type ZoneClock struct {
	Location *time.Location
}

// NewZoneClock loads the named IANA zone.
func NewZoneClock(name string) (ZoneClock, error) {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return ZoneClock{}, fmt.Errorf("load timezone %q: %w", name, err)
	}
	return ZoneClock{Location: loc}, nil
}

func (c ZoneClock) Now() time.Time {
	if c.Location == nil {
		return time.Now()
	}
	return time.Now().In(c.Location)
}

// FixedClock always returns the same instant.
type FixedClock struct {
	At time.Time
}

func (c FixedClock) Now() time.Time { return c.At }
