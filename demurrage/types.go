/*
Package demurrage computes when demurrage starts for a shipment and flags the
shipments that have crossed that date.

PURPOSE:
  A shipment gets a grace period of "free days" after its ETA. Free days are
  counted in WORKING days of the destination country, so weekends and public
  holidays do not erode the grace period. Once the grace period is used up,
  demurrage accrues from the next working day.

COMPONENTS:
  Calculator: ETA + country + free days -> demurrage start date
  Checker:    Daily batch job over all unflagged shipments
  Charges:    Accrued demurrage amount for a flagged shipment

OWNERSHIP:
  The Checker is the only writer of Shipment.IsDemurrage and
  Shipment.DemurrageFrom. The flag is monotonic: false -> true, never back.

SEE ALSO:
  - calendar/calendar.go: Working-day lookups
  - scheduler/scheduler.go: Daily trigger
  - store/sqlite/sqlite.go: Persistence
*/
package demurrage

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultFreeDays applies when a country has no active Config.
const DefaultFreeDays = 3

// =============================================================================
// MASTER DATA
// =============================================================================

// Company owns shipments. Its country selects the calendar and the Config.
type Company struct {
	ID        string
	Name      string
	CountryID string
	CreatedAt time.Time
}

// Config is a country-specific demurrage policy.
// At most one active Config may exist per (CompanyID, CountryID).
type Config struct {
	ID        string
	CompanyID string
	CountryID string

	// FreeDays is the number of working days after ETA before demurrage accrues.
	FreeDays int

	// ExcludeNonWorkingDays skips weekends/holidays when counting chargeable days.
	ExcludeNonWorkingDays bool

	DailyRate decimal.Decimal
	Currency  string

	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Shipment is the subject of the calculation.
type Shipment struct {
	ID        string
	CompanyID string
	Reference string // bill of lading / container number

	ETA *time.Time

	IsDemurrage   bool
	DemurrageFrom *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// =============================================================================
// BATCH RESULTS
// =============================================================================

// Trigger identifies what started a batch run.
type Trigger string

const (
	TriggerScheduled Trigger = "scheduled"
	TriggerManual    Trigger = "manual"
)

// Result is the outcome of one batch run. Checker.Run always returns one,
// even when the run failed.
type Result struct {
	RunID   string
	Trigger Trigger
	Success bool
	Message string

	Checked int // shipments examined
	Updated int // shipments flagged by this run
	Skipped int // shipments skipped for missing data or calendar problems

	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration returns how long the run took.
func (r Result) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Run is a persisted Result.
type Run struct {
	Result
	CreatedAt time.Time
}
