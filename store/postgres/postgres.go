/*
Package postgres provides a PostgreSQL implementation of the demurrage stores.

PURPOSE:
  Same contracts as store/sqlite on a pgx connection pool. Row-level
  concurrency is left to PostgreSQL, so there is no process-level lock.

SCHEMA:
  Managed by golang-migrate from the embedded migrations/ directory
  (see Migrate). Dates are DATE columns, timestamps TIMESTAMPTZ and the
  daily rate is TEXT holding a decimal string.

SEE ALSO:
  - store/sqlite/sqlite.go: Default store with the same semantics
  - demurrage/store.go: Interface definitions
*/
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/warp/demurrage-engine/calendar"
	"github.com/warp/demurrage-engine/demurrage"
)

// Store implements all demurrage storage interfaces on PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to url and verifies the connection.
func New(ctx context.Context, url string) (*Store, error) {
	config, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database url: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &Store{pool: pool}, nil
}

// NewFromPool wraps an existing pool.
func NewFromPool(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close closes the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Reset deletes every row in every table.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		TRUNCATE demurrage_runs, shipments, demurrage_configs, non_working_days, companies
	`)
	if err != nil {
		return fmt.Errorf("failed to reset database: %w", err)
	}
	return nil
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// =============================================================================
// BATCH JOB
// =============================================================================

// WithTx runs fn inside one transaction, committing only when fn returns nil.
func (s *Store) WithTx(ctx context.Context, fn func(demurrage.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&txView{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type txView struct {
	q querier
}

func (t *txView) IsWorkingDay(ctx context.Context, date time.Time, countryID string) (bool, error) {
	return isWorkingDay(ctx, t.q, date, countryID)
}

func (t *txView) PendingShipments(ctx context.Context) ([]demurrage.Shipment, error) {
	return queryShipments(ctx, t.q, shipmentColumns+` FROM shipments WHERE NOT is_demurrage`)
}

func (t *txView) GetCompany(ctx context.Context, id string) (*demurrage.Company, error) {
	return getCompany(ctx, t.q, id)
}

func (t *txView) ActiveConfigForCountry(ctx context.Context, countryID string) (*demurrage.Config, error) {
	return activeConfigForCountry(ctx, t.q, countryID)
}

func (t *txView) MarkDemurrage(ctx context.Context, shipmentID string, from, updatedAt time.Time) (bool, error) {
	tag, err := t.q.Exec(ctx, `
		UPDATE shipments
		SET is_demurrage = TRUE, demurrage_from = $1, updated_at = $2
		WHERE id = $3 AND NOT is_demurrage
	`, calendar.Day(from), updatedAt, shipmentID)
	if err != nil {
		return false, fmt.Errorf("failed to flag shipment: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// =============================================================================
// RUNS
// =============================================================================

func (s *Store) SaveRun(ctx context.Context, run demurrage.Run) error {
	createdAt := run.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO demurrage_runs
		(id, run_trigger, success, message, checked, updated, skipped, started_at, finished_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			success = EXCLUDED.success,
			message = EXCLUDED.message,
			checked = EXCLUDED.checked,
			updated = EXCLUDED.updated,
			skipped = EXCLUDED.skipped,
			finished_at = EXCLUDED.finished_at
	`, run.RunID, string(run.Trigger), run.Success, run.Message, run.Checked, run.Updated, run.Skipped,
		run.StartedAt, run.FinishedAt, createdAt)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// ListRuns returns the newest runs first. limit <= 0 means all.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]demurrage.Run, error) {
	query := `
		SELECT id, run_trigger, success, message, checked, updated, skipped, started_at, finished_at, created_at
		FROM demurrage_runs
		ORDER BY started_at DESC
	`
	var args []any
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []demurrage.Run
	for rows.Next() {
		var run demurrage.Run
		var trigger string
		if err := rows.Scan(&run.RunID, &trigger, &run.Success, &run.Message, &run.Checked, &run.Updated,
			&run.Skipped, &run.StartedAt, &run.FinishedAt, &run.CreatedAt); err != nil {
			return nil, err
		}
		run.Trigger = demurrage.Trigger(trigger)
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// =============================================================================
// CALENDAR
// =============================================================================

func (s *Store) IsWorkingDay(ctx context.Context, date time.Time, countryID string) (bool, error) {
	return isWorkingDay(ctx, s.pool, date, countryID)
}

func isWorkingDay(ctx context.Context, q querier, date time.Time, countryID string) (bool, error) {
	var closed bool
	err := q.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM non_working_days
			WHERE country_id = $1 AND date = $2 AND active
		)
	`, countryID, calendar.Day(date)).Scan(&closed)
	if err != nil {
		return false, fmt.Errorf("failed to query calendar: %w", err)
	}
	return !closed, nil
}

func (s *Store) SaveNonWorkingDay(ctx context.Context, d calendar.NonWorkingDay) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	createdAt := d.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	var description *string
	if d.Description != "" {
		description = &d.Description
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO non_working_days (id, date, country_id, day_type, active, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			date = EXCLUDED.date,
			country_id = EXCLUDED.country_id,
			day_type = EXCLUDED.day_type,
			active = EXCLUDED.active,
			description = EXCLUDED.description
	`, d.ID, calendar.Day(d.Date), d.CountryID, string(d.Type), d.Active, description, createdAt)
	if err != nil {
		if isUniqueViolation(err, "idx_non_working_days_active") {
			return demurrage.ErrDuplicateNonWorkingDay
		}
		return fmt.Errorf("failed to save non-working day: %w", err)
	}
	return nil
}

func (s *Store) GetNonWorkingDay(ctx context.Context, id string) (*calendar.NonWorkingDay, error) {
	days, err := queryNonWorkingDays(ctx, s.pool, nonWorkingDayColumns+` FROM non_working_days WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	if len(days) == 0 {
		return nil, nil
	}
	return &days[0], nil
}

func (s *Store) ListNonWorkingDays(ctx context.Context, countryID string, year int) ([]calendar.NonWorkingDay, error) {
	var where []string
	var args []any
	if countryID != "" {
		args = append(args, countryID)
		where = append(where, fmt.Sprintf("country_id = $%d", len(args)))
	}
	if year != 0 {
		args = append(args, calendar.Date(year, time.January, 1), calendar.Date(year+1, time.January, 1))
		where = append(where, fmt.Sprintf("date >= $%d AND date < $%d", len(args)-1, len(args)))
	}

	query := nonWorkingDayColumns + ` FROM non_working_days`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY date, country_id"

	return queryNonWorkingDays(ctx, s.pool, query, args...)
}

func (s *Store) SetNonWorkingDayActive(ctx context.Context, id string, active bool) error {
	tag, err := s.pool.Exec(ctx, `UPDATE non_working_days SET active = $1 WHERE id = $2`, active, id)
	if err != nil {
		if isUniqueViolation(err, "idx_non_working_days_active") {
			return demurrage.ErrDuplicateNonWorkingDay
		}
		return fmt.Errorf("failed to update non-working day: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return demurrage.ErrNotFound
	}
	return nil
}

const nonWorkingDayColumns = `SELECT id, date, country_id, day_type, active, description, created_at`

func queryNonWorkingDays(ctx context.Context, q querier, query string, args ...any) ([]calendar.NonWorkingDay, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query non-working days: %w", err)
	}
	defer rows.Close()

	var days []calendar.NonWorkingDay
	for rows.Next() {
		var d calendar.NonWorkingDay
		var dayType string
		var description *string
		if err := rows.Scan(&d.ID, &d.Date, &d.CountryID, &dayType, &d.Active, &description, &d.CreatedAt); err != nil {
			return nil, err
		}
		d.Date = calendar.Day(d.Date)
		d.Type = calendar.DayType(dayType)
		if description != nil {
			d.Description = *description
		}
		days = append(days, d)
	}
	return days, rows.Err()
}

// =============================================================================
// COMPANIES
// =============================================================================

func (s *Store) SaveCompany(ctx context.Context, c demurrage.Company) error {
	createdAt := c.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO companies (id, name, country_id, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			country_id = EXCLUDED.country_id
	`, c.ID, c.Name, c.CountryID, createdAt)
	if err != nil {
		return fmt.Errorf("failed to save company: %w", err)
	}
	return nil
}

func (s *Store) GetCompany(ctx context.Context, id string) (*demurrage.Company, error) {
	return getCompany(ctx, s.pool, id)
}

func getCompany(ctx context.Context, q querier, id string) (*demurrage.Company, error) {
	var c demurrage.Company
	err := q.QueryRow(ctx,
		`SELECT id, name, country_id, created_at FROM companies WHERE id = $1`, id,
	).Scan(&c.ID, &c.Name, &c.CountryID, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get company: %w", err)
	}
	return &c, nil
}

func (s *Store) ListCompanies(ctx context.Context) ([]demurrage.Company, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, country_id, created_at FROM companies ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list companies: %w", err)
	}
	defer rows.Close()

	var companies []demurrage.Company
	for rows.Next() {
		var c demurrage.Company
		if err := rows.Scan(&c.ID, &c.Name, &c.CountryID, &c.CreatedAt); err != nil {
			return nil, err
		}
		companies = append(companies, c)
	}
	return companies, rows.Err()
}

// =============================================================================
// CONFIGS
// =============================================================================

// SaveConfig inserts or updates a config. The existence check and the write
// share one transaction; the partial unique index catches concurrent writers.
func (s *Store) SaveConfig(ctx context.Context, cfg demurrage.Config) error {
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if cfg.Active {
		var existingID string
		err := tx.QueryRow(ctx, `
			SELECT id FROM demurrage_configs
			WHERE company_id = $1 AND country_id = $2 AND active AND id <> $3
			LIMIT 1
		`, cfg.CompanyID, cfg.CountryID, cfg.ID).Scan(&existingID)
		if err == nil {
			return &demurrage.ConfigConflictError{
				CompanyID:  cfg.CompanyID,
				CountryID:  cfg.CountryID,
				ExistingID: existingID,
			}
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("failed to check config uniqueness: %w", err)
		}
	}

	now := time.Now()
	createdAt := cfg.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO demurrage_configs
		(id, company_id, country_id, free_days, exclude_non_working_days, daily_rate, currency, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			company_id = EXCLUDED.company_id,
			country_id = EXCLUDED.country_id,
			free_days = EXCLUDED.free_days,
			exclude_non_working_days = EXCLUDED.exclude_non_working_days,
			daily_rate = EXCLUDED.daily_rate,
			currency = EXCLUDED.currency,
			active = EXCLUDED.active,
			updated_at = EXCLUDED.updated_at
	`, cfg.ID, cfg.CompanyID, cfg.CountryID, cfg.FreeDays, cfg.ExcludeNonWorkingDays,
		cfg.DailyRate.String(), cfg.Currency, cfg.Active, createdAt, now)
	if err != nil {
		if isUniqueViolation(err, "idx_demurrage_configs_active") {
			return &demurrage.ConfigConflictError{CompanyID: cfg.CompanyID, CountryID: cfg.CountryID}
		}
		return fmt.Errorf("failed to save config: %w", err)
	}

	return tx.Commit(ctx)
}

func (s *Store) GetConfig(ctx context.Context, id string) (*demurrage.Config, error) {
	configs, err := queryConfigs(ctx, s.pool, configColumns+` FROM demurrage_configs WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	if len(configs) == 0 {
		return nil, nil
	}
	return &configs[0], nil
}

func (s *Store) ListConfigs(ctx context.Context, countryID string) ([]demurrage.Config, error) {
	if countryID == "" {
		return queryConfigs(ctx, s.pool, configColumns+` FROM demurrage_configs ORDER BY created_at, id`)
	}
	return queryConfigs(ctx, s.pool,
		configColumns+` FROM demurrage_configs WHERE country_id = $1 ORDER BY created_at, id`, countryID)
}

func (s *Store) ActiveConfigForCountry(ctx context.Context, countryID string) (*demurrage.Config, error) {
	return activeConfigForCountry(ctx, s.pool, countryID)
}

func activeConfigForCountry(ctx context.Context, q querier, countryID string) (*demurrage.Config, error) {
	configs, err := queryConfigs(ctx, q, configColumns+`
		FROM demurrage_configs
		WHERE country_id = $1 AND active
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
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query configs: %w", err)
	}
	defer rows.Close()

	var configs []demurrage.Config
	for rows.Next() {
		var cfg demurrage.Config
		var rate string
		if err := rows.Scan(&cfg.ID, &cfg.CompanyID, &cfg.CountryID, &cfg.FreeDays, &cfg.ExcludeNonWorkingDays,
			&rate, &cfg.Currency, &cfg.Active, &cfg.CreatedAt, &cfg.UpdatedAt); err != nil {
			return nil, err
		}
		cfg.DailyRate, err = decimal.NewFromString(rate)
		if err != nil {
			return nil, fmt.Errorf("config %s daily rate: %w", cfg.ID, err)
		}
		configs = append(configs, cfg)
	}
	return configs, rows.Err()
}

// =============================================================================
// SHIPMENTS
// =============================================================================

// SaveShipment inserts or updates a shipment without touching the
// demurrage flag or start date.
func (s *Store) SaveShipment(ctx context.Context, sh demurrage.Shipment) error {
	if sh.ID == "" {
		sh.ID = uuid.NewString()
	}
	now := time.Now()
	createdAt := sh.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	var eta *time.Time
	if sh.ETA != nil {
		d := calendar.Day(*sh.ETA)
		eta = &d
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO shipments (id, company_id, reference, eta, is_demurrage, demurrage_from, created_at, updated_at)
		VALUES ($1, $2, $3, $4, FALSE, NULL, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			company_id = EXCLUDED.company_id,
			reference = EXCLUDED.reference,
			eta = EXCLUDED.eta,
			updated_at = EXCLUDED.updated_at
	`, sh.ID, sh.CompanyID, sh.Reference, eta, createdAt, now)
	if err != nil {
		return fmt.Errorf("failed to save shipment: %w", err)
	}
	return nil
}

func (s *Store) GetShipment(ctx context.Context, id string) (*demurrage.Shipment, error) {
	shipments, err := queryShipments(ctx, s.pool, shipmentColumns+` FROM shipments WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	if len(shipments) == 0 {
		return nil, nil
	}
	return &shipments[0], nil
}

func (s *Store) ListShipments(ctx context.Context, filter demurrage.ShipmentFilter) ([]demurrage.Shipment, error) {
	var where []string
	var args []any
	if filter.CompanyID != "" {
		args = append(args, filter.CompanyID)
		where = append(where, fmt.Sprintf("company_id = $%d", len(args)))
	}
	if filter.Demurrage != nil {
		args = append(args, *filter.Demurrage)
		where = append(where, fmt.Sprintf("is_demurrage = $%d", len(args)))
	}

	query := shipmentColumns + ` FROM shipments`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id"

	return queryShipments(ctx, s.pool, query, args...)
}

const shipmentColumns = `SELECT id, company_id, reference, eta, is_demurrage, demurrage_from, created_at, updated_at`

func queryShipments(ctx context.Context, q querier, query string, args ...any) ([]demurrage.Shipment, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query shipments: %w", err)
	}
	defer rows.Close()

	var shipments []demurrage.Shipment
	for rows.Next() {
		var sh demurrage.Shipment
		if err := rows.Scan(&sh.ID, &sh.CompanyID, &sh.Reference, &sh.ETA, &sh.IsDemurrage,
			&sh.DemurrageFrom, &sh.CreatedAt, &sh.UpdatedAt); err != nil {
			return nil, err
		}
		sh.ETA = dayPtr(sh.ETA)
		sh.DemurrageFrom = dayPtr(sh.DemurrageFrom)
		shipments = append(shipments, sh)
	}
	return shipments, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func dayPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := calendar.Day(*t)
	return &d
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23505" && (constraint == "" || pgErr.ConstraintName == constraint)
}

var (
	_ demurrage.TxStore       = (*Store)(nil)
	_ demurrage.RunStore      = (*Store)(nil)
	_ demurrage.CalendarStore = (*Store)(nil)
	_ demurrage.CompanyStore  = (*Store)(nil)
	_ demurrage.ConfigStore   = (*Store)(nil)
	_ demurrage.ShipmentStore = (*Store)(nil)
)
