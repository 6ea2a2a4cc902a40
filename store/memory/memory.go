// Package memory provides an in-memory demurrage store (for testing/dev).
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/warp/demurrage-engine/calendar"
	"github.com/warp/demurrage-engine/demurrage"
)

// =============================================================================
// MEMORY STORE - In-memory implementation of every demurrage store interface
// =============================================================================

type Store struct {
	mu sync.RWMutex

	companies map[string]demurrage.Company
	configs   map[string]demurrage.Config
	shipments map[string]demurrage.Shipment
	days      map[string]calendar.NonWorkingDay
	runs      []demurrage.Run
}

func New() *Store {
	return &Store{
		companies: make(map[string]demurrage.Company),
		configs:   make(map[string]demurrage.Config),
		shipments: make(map[string]demurrage.Shipment),
		days:      make(map[string]calendar.NonWorkingDay),
	}
}

// Reset clears all data.
func (m *Store) Reset(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.companies = make(map[string]demurrage.Company)
	m.configs = make(map[string]demurrage.Config)
	m.shipments = make(map[string]demurrage.Shipment)
	m.days = make(map[string]calendar.NonWorkingDay)
	m.runs = nil
	return nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx runs fn against a staged view. Flags are applied only if fn
// returns nil; an error or panic discards them.
func (m *Store) WithTx(ctx context.Context, fn func(demurrage.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &tx{store: m, staged: make(map[string]demurrage.Shipment)}
	if err := fn(tx); err != nil {
		return err
	}
	for id, s := range tx.staged {
		m.shipments[id] = s
	}
	return nil
}

type tx struct {
	store  *Store
	staged map[string]demurrage.Shipment
}

func (t *tx) IsWorkingDay(_ context.Context, date time.Time, countryID string) (bool, error) {
	return t.store.isWorkingDayLocked(date, countryID), nil
}

func (t *tx) PendingShipments(context.Context) ([]demurrage.Shipment, error) {
	var result []demurrage.Shipment
	for id, s := range t.store.shipments {
		if staged, ok := t.staged[id]; ok {
			s = staged
		}
		if !s.IsDemurrage {
			result = append(result, s)
		}
	}
	return result, nil
}

func (t *tx) GetCompany(_ context.Context, id string) (*demurrage.Company, error) {
	return t.store.getCompanyLocked(id), nil
}

func (t *tx) ActiveConfigForCountry(_ context.Context, countryID string) (*demurrage.Config, error) {
	return t.store.activeConfigLocked(countryID), nil
}

func (t *tx) MarkDemurrage(_ context.Context, shipmentID string, from, updatedAt time.Time) (bool, error) {
	s, ok := t.staged[shipmentID]
	if !ok {
		s, ok = t.store.shipments[shipmentID]
	}
	if !ok {
		return false, fmt.Errorf("shipment %s: %w", shipmentID, demurrage.ErrNotFound)
	}
	if s.IsDemurrage {
		return false, nil
	}
	day := calendar.Day(from)
	s.IsDemurrage = true
	s.DemurrageFrom = &day
	s.UpdatedAt = updatedAt
	t.staged[shipmentID] = s
	return true, nil
}

// =============================================================================
// CALENDAR
// =============================================================================

func (m *Store) IsWorkingDay(_ context.Context, date time.Time, countryID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.isWorkingDayLocked(date, countryID), nil
}

func (m *Store) isWorkingDayLocked(date time.Time, countryID string) bool {
	return m.activeDayLocked(calendar.Day(date), countryID, "") == nil
}

func (m *Store) activeDayLocked(date time.Time, countryID, exceptID string) *calendar.NonWorkingDay {
	for _, d := range m.days {
		if d.ID != exceptID && d.Active && d.CountryID == countryID && d.Date.Equal(date) {
			d := d
			return &d
		}
	}
	return nil
}

func (m *Store) SaveNonWorkingDay(_ context.Context, d calendar.NonWorkingDay) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	d.Date = calendar.Day(d.Date)
	if d.Active && m.activeDayLocked(d.Date, d.CountryID, d.ID) != nil {
		return demurrage.ErrDuplicateNonWorkingDay
	}
	if existing, ok := m.days[d.ID]; ok {
		d.CreatedAt = existing.CreatedAt
	} else if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	m.days[d.ID] = d
	return nil
}

func (m *Store) GetNonWorkingDay(_ context.Context, id string) (*calendar.NonWorkingDay, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.days[id]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

func (m *Store) ListNonWorkingDays(_ context.Context, countryID string, year int) ([]calendar.NonWorkingDay, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []calendar.NonWorkingDay
	for _, d := range m.days {
		if countryID != "" && d.CountryID != countryID {
			continue
		}
		if year != 0 && d.Date.Year() != year {
			continue
		}
		result = append(result, d)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].Date.Equal(result[j].Date) {
			return result[i].Date.Before(result[j].Date)
		}
		return result[i].CountryID < result[j].CountryID
	})
	return result, nil
}

func (m *Store) SetNonWorkingDayActive(_ context.Context, id string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	d, ok := m.days[id]
	if !ok {
		return demurrage.ErrNotFound
	}
	if active && m.activeDayLocked(d.Date, d.CountryID, d.ID) != nil {
		return demurrage.ErrDuplicateNonWorkingDay
	}
	d.Active = active
	m.days[id] = d
	return nil
}

// =============================================================================
// COMPANIES
// =============================================================================

func (m *Store) SaveCompany(_ context.Context, c demurrage.Company) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.companies[c.ID]; ok {
		c.CreatedAt = existing.CreatedAt
	} else if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	m.companies[c.ID] = c
	return nil
}

func (m *Store) GetCompany(_ context.Context, id string) (*demurrage.Company, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getCompanyLocked(id), nil
}

func (m *Store) getCompanyLocked(id string) *demurrage.Company {
	c, ok := m.companies[id]
	if !ok {
		return nil
	}
	return &c
}

func (m *Store) ListCompanies(context.Context) ([]demurrage.Company, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]demurrage.Company, 0, len(m.companies))
	for _, c := range m.companies {
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// =============================================================================
// CONFIGS
// =============================================================================

func (m *Store) SaveConfig(_ context.Context, cfg demurrage.Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	if cfg.Active {
		for _, other := range m.configs {
			if other.ID != cfg.ID && other.Active &&
				other.CompanyID == cfg.CompanyID && other.CountryID == cfg.CountryID {
				return &demurrage.ConfigConflictError{
					CompanyID:  cfg.CompanyID,
					CountryID:  cfg.CountryID,
					ExistingID: other.ID,
				}
			}
		}
	}

	now := time.Now().UTC()
	if existing, ok := m.configs[cfg.ID]; ok {
		cfg.CreatedAt = existing.CreatedAt
	} else if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = now
	}
	cfg.UpdatedAt = now
	m.configs[cfg.ID] = cfg
	return nil
}

func (m *Store) GetConfig(_ context.Context, id string) (*demurrage.Config, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfg, ok := m.configs[id]
	if !ok {
		return nil, nil
	}
	return &cfg, nil
}

func (m *Store) ListConfigs(_ context.Context, countryID string) ([]demurrage.Config, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.configsLocked(countryID, false), nil
}

func (m *Store) ActiveConfigForCountry(_ context.Context, countryID string) (*demurrage.Config, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeConfigLocked(countryID), nil
}

func (m *Store) activeConfigLocked(countryID string) *demurrage.Config {
	active := m.configsLocked(countryID, true)
	if len(active) == 0 {
		return nil
	}
	return &active[0]
}

// configsLocked returns configs oldest first.
func (m *Store) configsLocked(countryID string, activeOnly bool) []demurrage.Config {
	var result []demurrage.Config
	for _, cfg := range m.configs {
		if countryID != "" && cfg.CountryID != countryID {
			continue
		}
		if activeOnly && !cfg.Active {
			continue
		}
		result = append(result, cfg)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result
}

// =============================================================================
// SHIPMENTS
// =============================================================================

func (m *Store) SaveShipment(_ context.Context, s demurrage.Shipment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	if existing, ok := m.shipments[s.ID]; ok {
		s.IsDemurrage = existing.IsDemurrage
		s.DemurrageFrom = existing.DemurrageFrom
		s.CreatedAt = existing.CreatedAt
	} else {
		s.IsDemurrage = false
		s.DemurrageFrom = nil
		if s.CreatedAt.IsZero() {
			s.CreatedAt = now
		}
	}
	s.UpdatedAt = now
	m.shipments[s.ID] = s
	return nil
}

func (m *Store) GetShipment(_ context.Context, id string) (*demurrage.Shipment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.shipments[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *Store) ListShipments(_ context.Context, filter demurrage.ShipmentFilter) ([]demurrage.Shipment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []demurrage.Shipment
	for _, s := range m.shipments {
		if filter.CompanyID != "" && s.CompanyID != filter.CompanyID {
			continue
		}
		if filter.Demurrage != nil && s.IsDemurrage != *filter.Demurrage {
			continue
		}
		result = append(result, s)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// =============================================================================
// RUNS
// =============================================================================

func (m *Store) SaveRun(_ context.Context, run demurrage.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.runs {
		if m.runs[i].RunID == run.RunID {
			m.runs[i] = run
			return nil
		}
	}
	m.runs = append(m.runs, run)
	return nil
}

// ListRuns returns the newest runs first. limit <= 0 means all.
func (m *Store) ListRuns(_ context.Context, limit int) ([]demurrage.Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]demurrage.Run, len(m.runs))
	copy(result, m.runs)
	sort.SliceStable(result, func(i, j int) bool { return result[i].StartedAt.After(result[j].StartedAt) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

var (
	_ demurrage.TxStore       = (*Store)(nil)
	_ demurrage.RunStore      = (*Store)(nil)
	_ demurrage.CalendarStore = (*Store)(nil)
	_ demurrage.CompanyStore  = (*Store)(nil)
	_ demurrage.ConfigStore   = (*Store)(nil)
	_ demurrage.ShipmentStore = (*Store)(nil)
)
