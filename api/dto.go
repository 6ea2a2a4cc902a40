/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the domain model in demurrage/ and calendar/ from the external contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

DATES:
  Calendar days travel as "YYYY-MM-DD". Timestamps travel as RFC 3339.

VALIDATION:
  Request types carry validator/v10 tags, checked by Handler.decode before
  any handler logic runs. Cross-field rules (date parsing, known day types)
  stay in the handlers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/demurrage-engine/calendar"
	"github.com/warp/demurrage-engine/demurrage"
)

// =============================================================================
// MASTER DATA
// =============================================================================

// CompanyDTO represents a company in API responses.
type CompanyDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CountryID string `json:"country_id"`
	CreatedAt string `json:"created_at,omitempty"`
}

// CreateCompanyRequest creates or updates a company.
type CreateCompanyRequest struct {
	ID        string `json:"id" validate:"omitempty,max=64"`
	Name      string `json:"name" validate:"required"`
	CountryID string `json:"country_id" validate:"required,max=8"`
}

// NonWorkingDayDTO represents a calendar exception.
type NonWorkingDayDTO struct {
	ID          string `json:"id"`
	Date        string `json:"date"`
	CountryID   string `json:"country_id"`
	Type        string `json:"day_type"`
	Active      bool   `json:"active"`
	Description string `json:"description,omitempty"`
}

// CreateNonWorkingDayRequest adds one holiday or weekend day.
type CreateNonWorkingDayRequest struct {
	Date        string `json:"date" validate:"required,datetime=2006-01-02"`
	CountryID   string `json:"country_id" validate:"required"`
	Type        string `json:"day_type" validate:"omitempty,oneof=weekend holiday"`
	Description string `json:"description"`
}

// GenerateWeekendsRequest bulk-creates weekend records for a year.
// Weekend defaults to Saturday and Sunday.
type GenerateWeekendsRequest struct {
	CountryID string   `json:"country_id" validate:"required"`
	Year      int      `json:"year" validate:"required,min=1,max=9999"`
	Weekend   []string `json:"weekend"`
}

// ConfigDTO represents a demurrage config.
type ConfigDTO struct {
	ID                    string `json:"id"`
	CompanyID             string `json:"company_id"`
	CountryID             string `json:"country_id"`
	FreeDays              int    `json:"free_days"`
	ExcludeNonWorkingDays bool   `json:"exclude_non_working_days"`
	DailyRate             string `json:"daily_rate"`
	Currency              string `json:"currency,omitempty"`
	Active                bool   `json:"active"`
	CreatedAt             string `json:"created_at,omitempty"`
	UpdatedAt             string `json:"updated_at,omitempty"`
}

// SaveConfigRequest creates or replaces a demurrage config. Active defaults
// to true.
type SaveConfigRequest struct {
	CompanyID             string          `json:"company_id" validate:"required"`
	CountryID             string          `json:"country_id" validate:"required"`
	FreeDays              int             `json:"free_days" validate:"min=0"`
	ExcludeNonWorkingDays bool            `json:"exclude_non_working_days"`
	DailyRate             decimal.Decimal `json:"daily_rate"`
	Currency              string          `json:"currency" validate:"omitempty,len=3"`
	Active                *bool           `json:"active"`
}

// ShipmentDTO represents a shipment. Charge is filled on single lookups.
type ShipmentDTO struct {
	ID            string     `json:"id"`
	CompanyID     string     `json:"company_id"`
	Reference     string     `json:"reference,omitempty"`
	ETA           *string    `json:"eta"`
	IsDemurrage   bool       `json:"is_demurrage"`
	DemurrageFrom *string    `json:"demurrage_from"`
	Charge        *ChargeDTO `json:"charge,omitempty"`
	CreatedAt     string     `json:"created_at,omitempty"`
	UpdatedAt     string     `json:"updated_at,omitempty"`
}

// CreateShipmentRequest creates or updates a shipment. The demurrage flag
// is owned by the daily check and can't be set here.
type CreateShipmentRequest struct {
	ID        string `json:"id" validate:"omitempty,max=64"`
	CompanyID string `json:"company_id" validate:"required"`
	Reference string `json:"reference"`
	ETA       string `json:"eta" validate:"omitempty,datetime=2006-01-02"`
}

// ChargeDTO is the accrued demurrage for a shipment.
type ChargeDTO struct {
	From      string `json:"from,omitempty"`
	Through   string `json:"through,omitempty"`
	Days      int    `json:"days"`
	DailyRate string `json:"daily_rate"`
	Amount    string `json:"amount"`
	Currency  string `json:"currency,omitempty"`
}

// =============================================================================
// CALCULATION AND RUNS
// =============================================================================

// CalculationDTO is the answer of the what-if endpoint.
type CalculationDTO struct {
	ETA           string `json:"eta"`
	CountryID     string `json:"country_id"`
	FreeDays      int    `json:"free_days"`
	DemurrageFrom string `json:"demurrage_from"`
}

// RunDTO is one batch run result.
type RunDTO struct {
	RunID      string `json:"run_id"`
	Trigger    string `json:"trigger"`
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	Checked    int    `json:"checked"`
	Updated    int    `json:"updated"`
	Skipped    int    `json:"skipped"`
	StartedAt  string `json:"started_at"`
	FinishedAt string `json:"finished_at"`
	DurationMS int64  `json:"duration_ms"`
}

// ScheduleDTO describes the daily trigger.
type ScheduleDTO struct {
	DailyAt string  `json:"daily_at"`
	NextRun string  `json:"next_run"`
	Running bool    `json:"running"`
	LastRun *RunDTO `json:"last_run"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest is the request to load a scenario.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toCompanyDTO(c demurrage.Company) CompanyDTO {
	return CompanyDTO{
		ID:        c.ID,
		Name:      c.Name,
		CountryID: c.CountryID,
		CreatedAt: formatTime(c.CreatedAt),
	}
}

func toNonWorkingDayDTO(d calendar.NonWorkingDay) NonWorkingDayDTO {
	return NonWorkingDayDTO{
		ID:          d.ID,
		Date:        calendar.FormatDate(d.Date),
		CountryID:   d.CountryID,
		Type:        string(d.Type),
		Active:      d.Active,
		Description: d.Description,
	}
}

func toConfigDTO(c demurrage.Config) ConfigDTO {
	return ConfigDTO{
		ID:                    c.ID,
		CompanyID:             c.CompanyID,
		CountryID:             c.CountryID,
		FreeDays:              c.FreeDays,
		ExcludeNonWorkingDays: c.ExcludeNonWorkingDays,
		DailyRate:             c.DailyRate.StringFixed(2),
		Currency:              c.Currency,
		Active:                c.Active,
		CreatedAt:             formatTime(c.CreatedAt),
		UpdatedAt:             formatTime(c.UpdatedAt),
	}
}

func toShipmentDTO(s demurrage.Shipment) ShipmentDTO {
	return ShipmentDTO{
		ID:            s.ID,
		CompanyID:     s.CompanyID,
		Reference:     s.Reference,
		ETA:           formatDatePtr(s.ETA),
		IsDemurrage:   s.IsDemurrage,
		DemurrageFrom: formatDatePtr(s.DemurrageFrom),
		CreatedAt:     formatTime(s.CreatedAt),
		UpdatedAt:     formatTime(s.UpdatedAt),
	}
}

func toChargeDTO(c demurrage.Charge) *ChargeDTO {
	dto := &ChargeDTO{
		Days:      c.Days,
		DailyRate: c.DailyRate.StringFixed(2),
		Amount:    c.Amount.StringFixed(2),
		Currency:  c.Currency,
	}
	if !c.From.IsZero() {
		dto.From = calendar.FormatDate(c.From)
		dto.Through = calendar.FormatDate(c.Through)
	}
	return dto
}

func toRunDTO(r demurrage.Result) RunDTO {
	return RunDTO{
		RunID:      r.RunID,
		Trigger:    string(r.Trigger),
		Success:    r.Success,
		Message:    r.Message,
		Checked:    r.Checked,
		Updated:    r.Updated,
		Skipped:    r.Skipped,
		StartedAt:  formatTime(r.StartedAt),
		FinishedAt: formatTime(r.FinishedAt),
		DurationMS: r.Duration().Milliseconds(),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

func formatDatePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := calendar.FormatDate(*t)
	return &s
}
