/*
Package sqlite provides a SQLite-backed implementation of the demurrage stores.

PURPOSE:
  Implements every persistence interface the demurrage engine and the admin
  API consume (TxStore, RunStore, CalendarStore, CompanyStore, ConfigStore,
  ShipmentStore) using SQLite. The PostgreSQL store in store/postgres follows
  the same schema with dialect differences only.

KEY TABLES:
  companies:          Shipper/consignee companies and their country
  non_working_days:   Per-country weekends and holidays (soft-deactivated)
  demurrage_configs:  Per company+country free days and daily rate
  shipments:          Shipments with ETA and the demurrage flag
  demurrage_runs:     Audit trail of batch runs

INDEXES:
  - idx_non_working_days_active: One active record per country and date
  - idx_demurrage_configs_active: One active config per company and country
  - idx_shipments_pending: Batch scan (hot path)

DATES:
  Calendar dates are TEXT "2006-01-02". Timestamps are UTC TEXT in a fixed
  width layout so lexical order matches time order.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety and a single connection, which also
  keeps ":memory:" databases shared across calls. Inside WithTx every query
  runs on the *sql.Tx and never takes the mutex again.

USAGE:
  store, err := sqlite.New("./data/demurrage.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). The PostgreSQL store uses versioned
  migrations through golang-migrate.

SEE ALSO:
  - demurrage/store.go: Interface definitions
  - store/memory/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/demurrage-engine/calendar"
	"github.com/warp/demurrage-engine/demurrage"
)

const timestampLayout = "2006-01-02T15:04:05.000000Z07:00"

// Store implements all demurrage storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS companies (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		country_id TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	-- Non-working days (weekends and holidays), deactivated rather than deleted
	CREATE TABLE IF NOT EXISTS non_working_days (
		id TEXT PRIMARY KEY,
		date TEXT NOT NULL,
		country_id TEXT NOT NULL,
		day_type TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		description TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_non_working_days_country_date
		ON non_working_days(country_id, date);

	-- At most one active record per country and date
	CREATE UNIQUE INDEX IF NOT EXISTS idx_non_working_days_active
		ON non_working_days(country_id, date) WHERE active = 1;

	CREATE TABLE IF NOT EXISTS demurrage_configs (
		id TEXT PRIMARY KEY,
		company_id TEXT NOT NULL,
		country_id TEXT NOT NULL,
		free_days INTEGER NOT NULL DEFAULT 3,
		exclude_non_working_days BOOLEAN NOT NULL DEFAULT FALSE,
		daily_rate TEXT NOT NULL DEFAULT '0',
		currency TEXT NOT NULL DEFAULT '',
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_demurrage_configs_country
		ON demurrage_configs(country_id, active, created_at);

	-- At most one active config per company and country
	CREATE UNIQUE INDEX IF NOT EXISTS idx_demurrage_configs_active
		ON demurrage_configs(company_id, country_id) WHERE active = 1;

	CREATE TABLE IF NOT EXISTS shipments (
		id TEXT PRIMARY KEY,
		company_id TEXT NOT NULL,
		reference TEXT NOT NULL DEFAULT '',
		eta TEXT,
		is_demurrage BOOLEAN NOT NULL DEFAULT FALSE,
		demurrage_from TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_shipments_company
		ON shipments(company_id);
	CREATE INDEX IF NOT EXISTS idx_shipments_pending
		ON shipments(is_demurrage) WHERE is_demurrage = 0;

	CREATE TABLE IF NOT EXISTS demurrage_runs (
		id TEXT PRIMARY KEY,
		run_trigger TEXT NOT NULL,
		success BOOLEAN NOT NULL,
		message TEXT NOT NULL DEFAULT '',
		checked INTEGER NOT NULL DEFAULT 0,
		updated INTEGER NOT NULL DEFAULT 0,
		skipped INTEGER NOT NULL DEFAULT 0,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_demurrage_runs_started
		ON demurrage_runs(started_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Reset clears all data (for testing/demos).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"demurrage_runs", "shipments", "demurrage_configs", "non_working_days", "companies"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	return nil
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// BATCH JOB (demurrage.TxStore interface)
// =============================================================================

// WithTx runs fn inside one database transaction. The transaction commits
// only when fn returns nil.
func (s *Store) WithTx(ctx context.Context, fn func(demurrage.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txView{q: sqlTx}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// txView exposes the batch job's reads and writes on an open transaction.
type txView struct {
	q querier
}

func (t *txView) IsWorkingDay(ctx context.Context, date time.Time, countryID string) (bool, error) {
	return isWorkingDay(ctx, t.q, date, countryID)
}

func (t *txView) PendingShipments(ctx context.Context) ([]demurrage.Shipment, error) {
	return queryShipments(ctx, t.q, shipmentColumns+` FROM shipments WHERE is_demurrage = 0`)
}

func (t *txView) GetCompany(ctx context.Context, id string) (*demurrage.Company, error) {
	return getCompany(ctx, t.q, id)
}

func (t *txView) ActiveConfigForCountry(ctx context.Context, countryID string) (*demurrage.Config, error) {
	return activeConfigForCountry(ctx, t.q, countryID)
}

// MarkDemurrage only touches unflagged rows, so a flag is never overwritten.
func (t *txView) MarkDemurrage(ctx context.Context, shipmentID string, from, updatedAt time.Time) (bool, error) {
	res, err := t.q.ExecContext(ctx, `
		UPDATE shipments
		SET is_demurrage = 1, demurrage_from = ?, updated_at = ?
		WHERE id = ? AND is_demurrage = 0
	`, calendar.FormatDate(from), formatTimestamp(updatedAt), shipmentID)
	if err != nil {
		return false, fmt.Errorf("failed to flag shipment: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// =============================================================================
// RUNS (demurrage.RunStore interface)
// =============================================================================

// SaveRun inserts or replaces a run record.
func (s *Store) SaveRun(ctx context.Context, run demurrage.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	createdAt := run.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO demurrage_runs
		(id, run_trigger, success, message, checked, updated, skipped, started_at, finished_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.RunID,
		string(run.Trigger),
		run.Success,
		run.Message,
		run.Checked,
		run.Updated,
		run.Skipped,
		formatTimestamp(run.StartedAt),
		formatTimestamp(run.FinishedAt),
		formatTimestamp(createdAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// ListRuns returns the newest runs first. limit <= 0 means all.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]demurrage.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, run_trigger, success, message, checked, updated, skipped, started_at, finished_at, created_at
		FROM demurrage_runs
		ORDER BY started_at DESC
	`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []demurrage.Run
	for rows.Next() {
		var run demurrage.Run
		var trigger, startedAt, finishedAt, createdAt string
		if err := rows.Scan(&run.RunID, &trigger, &run.Success, &run.Message,
			&run.Checked, &run.Updated, &run.Skipped, &startedAt, &finishedAt, &createdAt); err != nil {
			return nil, err
		}
		run.Trigger = demurrage.Trigger(trigger)
		run.StartedAt = parseTimestamp(startedAt)
		run.FinishedAt = parseTimestamp(finishedAt)
		run.CreatedAt = parseTimestamp(createdAt)
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// =============================================================================
// CALENDAR (demurrage.CalendarStore interface)
// =============================================================================

// IsWorkingDay reports false when an active non-working day exists for the
// date and country. Countries without records have no closures.
func (s *Store) IsWorkingDay(ctx context.Context, date time.Time, countryID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return isWorkingDay(ctx, s.db, date, countryID)
}

func isWorkingDay(ctx context.Context, q querier, date time.Time, countryID string) (bool, error) {
	var count int
	err := q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM non_working_days
		WHERE country_id = ? AND date = ? AND active = 1
	`, countryID, calendar.FormatDate(date)).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to query calendar: %w", err)
	}
	return count == 0, nil
}

// SaveNonWorkingDay inserts or updates a non-working day.
func (s *Store) SaveNonWorkingDay(ctx context.Context, d calendar.NonWorkingDay) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	createdAt := d.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO non_working_days (id, date, country_id, day_type, active, description, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			date = excluded.date,
			country_id = excluded.country_id,
			day_type = excluded.day_type,
			active = excluded.active,
			description = excluded.description
	`,
		d.ID,
		calendar.FormatDate(d.Date),
		d.CountryID,
		string(d.Type),
		d.Active,
		nullString(d.Description),
		formatTimestamp(createdAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return demurrage.ErrDuplicateNonWorkingDay
		}
		return fmt.Errorf("failed to save non-working day: %w", err)
	}
	return nil
}

// GetNonWorkingDay retrieves a non-working day by ID.
func (s *Store) GetNonWorkingDay(ctx context.Context, id string) (*calendar.NonWorkingDay, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	days, err := queryNonWorkingDays(ctx, s.db, nonWorkingDayColumns+` FROM non_working_days WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(days) == 0 {
		return nil, nil
	}
	return &days[0], nil
}

// ListNonWorkingDays returns records ordered by date. Empty countryID or
// zero year means no filter.
func (s *Store) ListNonWorkingDays(ctx context.Context, countryID string, year int) ([]calendar.NonWorkingDay, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var where []string
	var args []any
	if countryID != "" {
		where = append(where, "country_id = ?")
		args = append(args, countryID)
	}
	if year != 0 {
		where = append(where, "date >= ? AND date < ?")
		args = append(args,
			calendar.FormatDate(calendar.Date(year, time.January, 1)),
			calendar.FormatDate(calendar.Date(year+1, time.January, 1)))
	}

	query := nonWorkingDayColumns + ` FROM non_working_days`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY date ASC, country_id ASC"

	return queryNonWorkingDays(ctx, s.db, query, args...)
}

// SetNonWorkingDayActive activates or deactivates a record.
func (s *Store) SetNonWorkingDayActive(ctx context.Context, id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `UPDATE non_working_days SET active = ? WHERE id = ?`, active, id)
	if err != nil {
		if isUniqueConstraintError(err) {
			return demurrage.ErrDuplicateNonWorkingDay
		}
		return fmt.Errorf("failed to update non-working day: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return demurrage.ErrNotFound
	}
	return nil
}

const nonWorkingDayColumns = `SELECT id, date, country_id, day_type, active, description, created_at`

func queryNonWorkingDays(ctx context.Context, q querier, query string, args ...any) ([]calendar.NonWorkingDay, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query non-working days: %w", err)
	}
	defer rows.Close()

	var days []calendar.NonWorkingDay
	for rows.Next() {
		var d calendar.NonWorkingDay
		var date, dayType, createdAt string
		var description sql.NullString
		if err := rows.Scan(&d.ID, &date, &d.CountryID, &dayType, &d.Active, &description, &createdAt); err != nil {
			return nil, err
		}
		d.Date, err = calendar.ParseDate(date)
		if err != nil {
			return nil, fmt.Errorf("non-working day %s: %w", d.ID, err)
		}
		d.Type = calendar.DayType(dayType)
		d.Description = description.String
		d.CreatedAt = parseTimestamp(createdAt)
		days = append(days, d)
	}
	return days, rows.Err()
}

// =============================================================================
// COMPANIES (demurrage.CompanyStore interface)
// =============================================================================

// SaveCompany inserts or updates a company.
func (s *Store) SaveCompany(ctx context.Context, c demurrage.Company) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	createdAt := c.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO companies (id, name, country_id, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			country_id = excluded.country_id
	`, c.ID, c.Name, c.CountryID, formatTimestamp(createdAt))
	if err != nil {
		return fmt.Errorf("failed to save company: %w", err)
	}
	return nil
}

// GetCompany retrieves a company by ID.
func (s *Store) GetCompany(ctx context.Context, id string) (*demurrage.Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getCompany(ctx, s.db, id)
}

func getCompany(ctx context.Context, q querier, id string) (*demurrage.Company, error) {
	var c demurrage.Company
	var createdAt string
	err := q.QueryRowContext(ctx,
		`SELECT id, name, country_id, created_at FROM companies WHERE id = ?`, id,
	).Scan(&c.ID, &c.Name, &c.CountryID, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get company: %w", err)
	}
	c.CreatedAt = parseTimestamp(createdAt)
	return &c, nil
}

// ListCompanies returns all companies ordered by name.
func (s *Store) ListCompanies(ctx context.Context) ([]demurrage.Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT id, name, country_id, created_at FROM companies ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list companies: %w", err)
	}
	defer rows.Close()

	var companies []demurrage.Company
	for rows.Next() {
		var c demurrage.Company
		var createdAt string
		if err := rows.Scan(&c.ID, &c.Name, &c.CountryID, &createdAt); err != nil {
			return nil, err
		}
		c.CreatedAt = parseTimestamp(createdAt)
		companies = append(companies, c)
	}
	return companies, rows.Err()
}

// =============================================================================
// CONFIGS (demurrage.ConfigStore interface)
// =============================================================================

// SaveConfig inserts or updates a config. A second active config for the
// same company and country fails with *demurrage.ConfigConflictError.
func (s *Store) SaveConfig(ctx context.Context, cfg demurrage.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if cfg.Active {
		var existingID string
		err := sqlTx.QueryRowContext(ctx, `
			SELECT id FROM demurrage_configs
			WHERE company_id = ? AND country_id = ? AND active = 1 AND id <> ?
			LIMIT 1
		`, cfg.CompanyID, cfg.CountryID, cfg.ID).Scan(&existingID)
		if err == nil {
			return &demurrage.ConfigConflictError{
				CompanyID:  cfg.CompanyID,
				CountryID:  cfg.CountryID,
				ExistingID: existingID,
			}
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to check config uniqueness: %w", err)
		}
	}

	now := time.Now()
	createdAt := cfg.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	_, err = sqlTx.ExecContext(ctx, `
		INSERT INTO demurrage_configs
		(id, company_id, country_id, free_days, exclude_non_working_days, daily_rate, currency, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			company_id = excluded.company_id,
			country_id = excluded.country_id,
			free_days = excluded.free_days,
			exclude_non_working_days = excluded.exclude_non_working_days,
			daily_rate = excluded.daily_rate,
			currency = excluded.currency,
			active = excluded.active,
			updated_at = excluded.updated_at
	`,
		cfg.ID,
		cfg.CompanyID,
		cfg.CountryID,
		cfg.FreeDays,
		cfg.ExcludeNonWorkingDays,
		cfg.DailyRate.String(),
		cfg.Currency,
		cfg.Active,
		formatTimestamp(createdAt),
		formatTimestamp(now),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return &demurrage.ConfigConflictError{CompanyID: cfg.CompanyID, CountryID: cfg.CountryID}
		}
		return fmt.Errorf("failed to save config: %w", err)
	}

	return sqlTx.Commit()
}

// GetConfig retrieves a config by ID.
func (s *Store) GetConfig(ctx context.Context, id string) (*demurrage.Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	configs, err := queryConfigs(ctx, s.db, configColumns+` FROM demurrage_configs WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(configs) == 0 {
		return nil, nil
	}
	return &configs[0], nil
}

// ListConfigs returns configs oldest first. Empty countryID lists all.
func (s *Store) ListConfigs(ctx context.Context, countryID string) ([]demurrage.Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if countryID == "" {
		return queryConfigs(ctx, s.db, configColumns+` FROM demurrage_configs ORDER BY created_at, id`)
	}
	return queryConfigs(ctx, s.db,
		configColumns+` FROM demurrage_configs WHERE country_id = ? ORDER BY created_at, id`, countryID)
}

// ActiveConfigForCountry returns the oldest active config for the country.
func (s *Store) ActiveConfigForCountry(ctx context.Context, countryID string) (*demurrage.Config, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return activeConfigForCountry(ctx, s.db, countryID)
}

func activeConfigForCountry(ctx context.Context, q querier, countryID string) (*demurrage.Config, error) {
	configs, err := queryConfigs(ctx, q, configColumns+`
		FROM demurrage_configs
		WHERE country_id = ? AND active = 1
		ORDER BY created_at, id
		LIMIT 1
	`, countryID)
	if err != nil {
		return nil, err
	}
	if len(configs) == 0 {
		return nil, nil
	}
	return &configs[0], nil
}

const configColumns = `SELECT id, company_id, country_id, free_days, exclude_non_working_days,
	daily_rate, currency, active, created_at, updated_at`

func queryConfigs(ctx context.Context, q querier, query string, args ...any) ([]demurrage.Config, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query configs: %w", err)
	}
	defer rows.Close()

	var configs []demurrage.Config
	for rows.Next() {
		var cfg demurrage.Config
		var rate, createdAt, updatedAt string
		if err := rows.Scan(&cfg.ID, &cfg.CompanyID, &cfg.CountryID, &cfg.FreeDays,
			&cfg.ExcludeNonWorkingDays, &rate, &cfg.Currency, &cfg.Active, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		cfg.DailyRate, err = decimal.NewFromString(rate)
		if err != nil {
			return nil, fmt.Errorf("config %s daily rate: %w", cfg.ID, err)
		}
		cfg.CreatedAt = parseTimestamp(createdAt)
		cfg.UpdatedAt = parseTimestamp(updatedAt)
		configs = append(configs, cfg)
	}
	return configs, rows.Err()
}

// =============================================================================
// SHIPMENTS (demurrage.ShipmentStore interface)
// =============================================================================

// SaveShipment inserts or updates a shipment. The demurrage flag and start
// date are left alone on update and start cleared on insert.
func (s *Store) SaveShipment(ctx context.Context, sh demurrage.Shipment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sh.ID == "" {
		sh.ID = uuid.NewString()
	}
	now := time.Now()
	createdAt := sh.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	var eta sql.NullString
	if sh.ETA != nil {
		eta = sql.NullString{String: calendar.FormatDate(*sh.ETA), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO shipments (id, company_id, reference, eta, is_demurrage, demurrage_from, created_at, updated_at)
		VALUES (?, ?, ?, ?, 0, NULL, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			company_id = excluded.company_id,
			reference = excluded.reference,
			eta = excluded.eta,
			updated_at = excluded.updated_at
	`, sh.ID, sh.CompanyID, sh.Reference, eta, formatTimestamp(createdAt), formatTimestamp(now))
	if err != nil {
		return fmt.Errorf("failed to save shipment: %w", err)
	}
	return nil
}

// GetShipment retrieves a shipment by ID.
func (s *Store) GetShipment(ctx context.Context, id string) (*demurrage.Shipment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	shipments, err := queryShipments(ctx, s.db, shipmentColumns+` FROM shipments WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(shipments) == 0 {
		return nil, nil
	}
	return &shipments[0], nil
}

// ListShipments returns shipments ordered by ID.
func (s *Store) ListShipments(ctx context.Context, filter demurrage.ShipmentFilter) ([]demurrage.Shipment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var where []string
	var args []any
	if filter.CompanyID != "" {
		where = append(where, "company_id = ?")
		args = append(args, filter.CompanyID)
	}
	if filter.Demurrage != nil {
		where = append(where, "is_demurrage = ?")
		args = append(args, *filter.Demurrage)
	}

	query := shipmentColumns + ` FROM shipments`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id"

	return queryShipments(ctx, s.db, query, args...)
}

const shipmentColumns = `SELECT id, company_id, reference, eta, is_demurrage, demurrage_from, created_at, updated_at`

func queryShipments(ctx context.Context, q querier, query string, args ...any) ([]demurrage.Shipment, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query shipments: %w", err)
	}
	defer rows.Close()

	var shipments []demurrage.Shipment
	for rows.Next() {
		var sh demurrage.Shipment
		var eta, from sql.NullString
		var createdAt, updatedAt string
		if err := rows.Scan(&sh.ID, &sh.CompanyID, &sh.Reference, &eta, &sh.IsDemurrage,
			&from, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		if sh.ETA, err = parseNullDate(eta); err != nil {
			return nil, fmt.Errorf("shipment %s eta: %w", sh.ID, err)
		}
		if sh.DemurrageFrom, err = parseNullDate(from); err != nil {
			return nil, fmt.Errorf("shipment %s demurrage_from: %w", sh.ID, err)
		}
		sh.CreatedAt = parseTimestamp(createdAt)
		sh.UpdatedAt = parseTimestamp(updatedAt)
		shipments = append(shipments, sh)
	}
	return shipments, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func parseTimestamp(s string) time.Time {
	t, err := time.Parse(timestampLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t
}

func parseNullDate(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	d, err := calendar.ParseDate(s.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

var (
	_ demurrage.TxStore       = (*Store)(nil)
	_ demurrage.RunStore      = (*Store)(nil)
	_ demurrage.CalendarStore = (*Store)(nil)
	_ demurrage.CompanyStore  = (*Store)(nil)
	_ demurrage.ConfigStore   = (*Store)(nil)
	_ demurrage.ShipmentStore = (*Store)(nil)
)
