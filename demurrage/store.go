/*
store.go - Persistence interfaces consumed by the demurrage engine

PURPOSE:
  Defines the boundary between the engine and the relational store. The
  batch job only needs a handful of reads plus one monotonic write, all
  inside a single transaction. The admin surface needs ordinary CRUD over
  the master data.

KEY INTERFACES:
  TxStore:       Runs the batch scan inside one transaction
  Tx:            What the batch scan may do inside that transaction
  RunStore:      Audit trail of batch runs
  CalendarStore: Non-working day administration
  CompanyStore, ConfigStore, ShipmentStore: Master data

NOT FOUND:
  Single-record lookups return (nil, nil) when the record doesn't exist.
  Mutations of a missing record return ErrNotFound.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite (default)
  - store/postgres/postgres.go: PostgreSQL via pgx
  - store/memory/memory.go: In-memory for tests
*/
package demurrage

import (
	"context"
	"time"

	"github.com/warp/demurrage-engine/calendar"
)

// =============================================================================
// BATCH JOB
// =============================================================================

// TxStore runs fn inside a transaction.
// If fn returns an error (or panics) every write made through Tx is rolled back.
type TxStore interface {
	WithTx(ctx context.Context, fn func(Tx) error) error
}

// Tx is the transactional view the batch scan works through.
type Tx interface {
	calendar.Calendar

	// PendingShipments returns shipments with IsDemurrage == false, unordered.
	PendingShipments(ctx context.Context) ([]Shipment, error)

	GetCompany(ctx context.Context, id string) (*Company, error)

	// ActiveConfigForCountry returns the first active config for the
	// country (oldest first), or nil.
	ActiveConfigForCountry(ctx context.Context, countryID string) (*Config, error)

	// MarkDemurrage flags a shipment. It only touches rows that are not yet
	// flagged and reports whether a row changed.
	MarkDemurrage(ctx context.Context, shipmentID string, from, updatedAt time.Time) (bool, error)
}

// RunStore persists batch run results.
type RunStore interface {
	SaveRun(ctx context.Context, run Run) error
	ListRuns(ctx context.Context, limit int) ([]Run, error)
}

// =============================================================================
// MASTER DATA
// =============================================================================

// CalendarStore administers non-working days.
type CalendarStore interface {
	calendar.Calendar

	// SaveNonWorkingDay inserts or updates d. Saving an active record when
	// another active record exists for the same date and country fails with
	// ErrDuplicateNonWorkingDay.
	SaveNonWorkingDay(ctx context.Context, d calendar.NonWorkingDay) error

	GetNonWorkingDay(ctx context.Context, id string) (*calendar.NonWorkingDay, error)

	// ListNonWorkingDays filters by country and year. Empty country or
	// zero year means no filter.
	ListNonWorkingDays(ctx context.Context, countryID string, year int) ([]calendar.NonWorkingDay, error)

	SetNonWorkingDayActive(ctx context.Context, id string, active bool) error
}

type CompanyStore interface {
	SaveCompany(ctx context.Context, c Company) error
	GetCompany(ctx context.Context, id string) (*Company, error)
	ListCompanies(ctx context.Context) ([]Company, error)
}

// ConfigStore administers demurrage configs.
type ConfigStore interface {
	// SaveConfig inserts or updates cfg. An active cfg that would be the
	// second active config for its company and country fails with a
	// *ConfigConflictError.
	SaveConfig(ctx context.Context, cfg Config) error

	GetConfig(ctx context.Context, id string) (*Config, error)
	ListConfigs(ctx context.Context, countryID string) ([]Config, error)
	ActiveConfigForCountry(ctx context.Context, countryID string) (*Config, error)
}

// ShipmentFilter narrows ListShipments. Zero values don't filter.
type ShipmentFilter struct {
	CompanyID string
	Demurrage *bool
}

// ShipmentStore administers shipments. SaveShipment never changes
// IsDemurrage or DemurrageFrom; those belong to the batch job.
type ShipmentStore interface {
	SaveShipment(ctx context.Context, s Shipment) error
	GetShipment(ctx context.Context, id string) (*Shipment, error)
	ListShipments(ctx context.Context, filter ShipmentFilter) ([]Shipment, error)
}
