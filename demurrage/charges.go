package demurrage

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/demurrage-engine/calendar"
)

// Charge is the demurrage accrued by one shipment up to a date.
type Charge struct {
	From      time.Time
	Through   time.Time
	Days      int
	DailyRate decimal.Decimal
	Amount    decimal.Decimal
	Currency  string
}

// Charges computes the demurrage accrued by s from its DemurrageFrom date
// through asOf, inclusive. When cfg excludes non-working days only working
// days of countryID are charged. A nil cfg charges calendar days at a zero
// rate. Unflagged shipments accrue nothing.
func Charges(ctx context.Context, cal calendar.Calendar, cfg *Config, s Shipment, countryID string, asOf time.Time) (Charge, error) {
	charge := Charge{DailyRate: decimal.Zero, Amount: decimal.Zero}
	if cfg != nil {
		charge.DailyRate = cfg.DailyRate
		charge.Currency = cfg.Currency
	}
	if !s.IsDemurrage || s.DemurrageFrom == nil {
		return charge, nil
	}

	from := calendar.Day(*s.DemurrageFrom)
	through := calendar.Day(asOf)
	charge.From = from
	charge.Through = through
	if through.Before(from) {
		return charge, nil
	}

	if cfg != nil && cfg.ExcludeNonWorkingDays {
		for d := from; !d.After(through); d = d.AddDate(0, 0, 1) {
			working, err := cal.IsWorkingDay(ctx, d, countryID)
			if err != nil {
				return Charge{}, err
			}
			if working {
				charge.Days++
			}
		}
	} else {
		charge.Days = calendarDays(from, through)
	}

	charge.Amount = charge.DailyRate.Mul(decimal.NewFromInt(int64(charge.Days)))
	return charge, nil
}

// calendarDays counts from through through inclusive. Both are UTC midnights.
func calendarDays(from, through time.Time) int {
	return int(through.Sub(from).Hours()/24) + 1
}
