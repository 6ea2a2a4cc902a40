/*
handlers.go - HTTP API handlers for the demurrage engine

PURPOSE:
  Exposes the calendar, the demurrage configs and shipments, and the daily
  demurrage check via REST API. Handles HTTP request/response, JSON
  serialization, and delegates to the demurrage package.

ENDPOINTS:
  Companies:
    GET    /api/companies                        List companies
    POST   /api/companies                        Create or update company
    GET    /api/companies/{id}                   Get company

  Calendar:
    GET    /api/non-working-days                 List (?country=&year=)
    POST   /api/non-working-days                 Add holiday or weekend day
    POST   /api/non-working-days/weekends        Generate a year of weekends
    POST   /api/non-working-days/{id}/activate   Re-activate a record
    POST   /api/non-working-days/{id}/deactivate Deactivate a record

  Demurrage:
    GET    /api/demurrage/configs                List configs (?country=)
    POST   /api/demurrage/configs                Create config
    PUT    /api/demurrage/configs/{id}           Replace config
    GET    /api/demurrage/calculate              What-if start date
    GET    /api/demurrage/runs                   Batch run history
    GET    /api/demurrage/schedule               Next run and last result

  Shipments:
    GET    /api/shipments                        List (?company_id=&demurrage=)
    POST   /api/shipments                        Create or update shipment
    GET    /api/shipments/{id}                   Get shipment with accrued charge

  Admin:
    POST   /api/admin/demurrage/run              Run the daily check now

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: Conflict (duplicate active record, check already running)
  - 422: Calendar has no working day within the lookahead window
  - 500: Internal errors

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/warp/demurrage-engine/calendar"
	"github.com/warp/demurrage-engine/demurrage"
	"github.com/warp/demurrage-engine/scheduler"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Store is everything the HTTP layer reads and writes.
type Store interface {
	demurrage.CalendarStore
	demurrage.CompanyStore
	demurrage.ConfigStore
	demurrage.ShipmentStore
	demurrage.RunStore

	// Reset clears all data (demo scenarios only).
	Reset(ctx context.Context) error
}

// Runner is the daily trigger as seen by the API.
type Runner interface {
	TriggerNow(ctx context.Context) (demurrage.Result, error)
	NextRun(now time.Time) time.Time
	Running() bool
	At() string
	Last() (demurrage.Result, bool)
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store     Store
	Scheduler Runner
	Clock     demurrage.Clock

	// DefaultFreeDays and MaxLookahead mirror the checker so the what-if
	// endpoint gives the same answer the daily run would.
	DefaultFreeDays int
	MaxLookahead    int

	validate *validator.Validate

	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a new handler.
func NewHandler(store Store, runner Runner, clock demurrage.Clock) *Handler {
	if clock == nil {
		clock = demurrage.SystemClock{}
	}
	return &Handler{
		Store:           store,
		Scheduler:       runner,
		Clock:           clock,
		DefaultFreeDays: demurrage.DefaultFreeDays,
		MaxLookahead:    demurrage.DefaultMaxLookahead,
		validate:        validator.New(),
	}
}

// =============================================================================
// COMPANY HANDLERS
// =============================================================================

// ListCompanies returns all companies.
// GET /api/companies
func (h *Handler) ListCompanies(w http.ResponseWriter, r *http.Request) {
	companies, err := h.Store.ListCompanies(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list companies", err)
		return
	}

	dtos := make([]CompanyDTO, len(companies))
	for i, c := range companies {
		dtos[i] = toCompanyDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateCompany creates or updates a company.
// POST /api/companies
func (h *Handler) CreateCompany(w http.ResponseWriter, r *http.Request) {
	var req CreateCompanyRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	company := demurrage.Company{ID: req.ID, Name: req.Name, CountryID: req.CountryID}
	if err := h.Store.SaveCompany(r.Context(), company); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save company", err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"status": "created", "id": company.ID})
}

// GetCompany returns a single company.
// GET /api/companies/{id}
func (h *Handler) GetCompany(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	company, err := h.Store.GetCompany(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get company", err)
		return
	}
	if company == nil {
		writeError(w, http.StatusNotFound, "Company not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toCompanyDTO(*company))
}

// =============================================================================
// CALENDAR HANDLERS
// =============================================================================

// ListNonWorkingDays returns calendar exceptions, optionally filtered.
// GET /api/non-working-days?country=LK&year=2024
func (h *Handler) ListNonWorkingDays(w http.ResponseWriter, r *http.Request) {
	country := r.URL.Query().Get("country")
	year := 0
	if v := r.URL.Query().Get("year"); v != "" {
		var err error
		if year, err = strconv.Atoi(v); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid year", err)
			return
		}
	}

	days, err := h.Store.ListNonWorkingDays(r.Context(), country, year)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list non-working days", err)
		return
	}

	dtos := make([]NonWorkingDayDTO, len(days))
	for i, d := range days {
		dtos[i] = toNonWorkingDayDTO(d)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateNonWorkingDay adds one active non-working day.
// POST /api/non-working-days
func (h *Handler) CreateNonWorkingDay(w http.ResponseWriter, r *http.Request) {
	var req CreateNonWorkingDayRequest
	if !h.decode(w, r, &req) {
		return
	}

	date, err := calendar.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}
	dayType := calendar.DayType(req.Type)
	if dayType == "" {
		dayType = calendar.DayTypeHoliday
	}

	day := calendar.NonWorkingDay{
		ID:          uuid.NewString(),
		Date:        date,
		CountryID:   req.CountryID,
		Type:        dayType,
		Active:      true,
		Description: req.Description,
	}
	if err := h.Store.SaveNonWorkingDay(r.Context(), day); err != nil {
		writeDomainError(w, "Failed to save non-working day", err)
		return
	}

	writeJSON(w, http.StatusCreated, toNonWorkingDayDTO(day))
}

// GenerateWeekends creates weekend records for every matching day of a year.
// Days that already have an active record are left alone.
// POST /api/non-working-days/weekends
func (h *Handler) GenerateWeekends(w http.ResponseWriter, r *http.Request) {
	var req GenerateWeekendsRequest
	if !h.decode(w, r, &req) {
		return
	}

	var weekend []time.Weekday
	for _, name := range req.Weekend {
		wd, err := calendar.ParseWeekday(name)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid weekday", err)
			return
		}
		weekend = append(weekend, wd)
	}

	days, err := calendar.Weekends(req.Year, req.CountryID, weekend...)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid weekend request", err)
		return
	}

	ctx := r.Context()
	created, skipped := 0, 0
	for _, d := range days {
		d.ID = uuid.NewString()
		err := h.Store.SaveNonWorkingDay(ctx, d)
		if errors.Is(err, demurrage.ErrDuplicateNonWorkingDay) {
			skipped++
			continue
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to save weekend", err)
			return
		}
		created++
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"status":  "created",
		"created": created,
		"skipped": skipped,
	})
}

// ActivateNonWorkingDay re-activates a deactivated record.
// POST /api/non-working-days/{id}/activate
func (h *Handler) ActivateNonWorkingDay(w http.ResponseWriter, r *http.Request) {
	h.setNonWorkingDayActive(w, r, true)
}

// DeactivateNonWorkingDay turns a record off without deleting it.
// POST /api/non-working-days/{id}/deactivate
func (h *Handler) DeactivateNonWorkingDay(w http.ResponseWriter, r *http.Request) {
	h.setNonWorkingDayActive(w, r, false)
}

func (h *Handler) setNonWorkingDayActive(w http.ResponseWriter, r *http.Request, active bool) {
	id := chi.URLParam(r, "id")
	if err := h.Store.SetNonWorkingDayActive(r.Context(), id, active); err != nil {
		writeDomainError(w, "Failed to update non-working day", err)
		return
	}

	day, err := h.Store.GetNonWorkingDay(r.Context(), id)
	if err != nil || day == nil {
		writeError(w, http.StatusInternalServerError, "Failed to reload non-working day", err)
		return
	}
	writeJSON(w, http.StatusOK, toNonWorkingDayDTO(*day))
}

// =============================================================================
// CONFIG HANDLERS
// =============================================================================

// ListConfigs returns demurrage configs, optionally for one country.
// GET /api/demurrage/configs?country=LK
func (h *Handler) ListConfigs(w http.ResponseWriter, r *http.Request) {
	configs, err := h.Store.ListConfigs(r.Context(), r.URL.Query().Get("country"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list configs", err)
		return
	}

	dtos := make([]ConfigDTO, len(configs))
	for i, c := range configs {
		dtos[i] = toConfigDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateConfig adds a demurrage config.
// POST /api/demurrage/configs
func (h *Handler) CreateConfig(w http.ResponseWriter, r *http.Request) {
	var req SaveConfigRequest
	if !h.decode(w, r, &req) {
		return
	}
	cfg, err := req.toConfig(uuid.NewString())
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid config", err)
		return
	}

	if err := h.Store.SaveConfig(r.Context(), cfg); err != nil {
		writeDomainError(w, "Failed to save config", err)
		return
	}
	h.writeConfig(w, r, http.StatusCreated, cfg.ID)
}

// UpdateConfig replaces an existing demurrage config.
// PUT /api/demurrage/configs/{id}
func (h *Handler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	existing, err := h.Store.GetConfig(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get config", err)
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "Config not found", nil)
		return
	}

	var req SaveConfigRequest
	if !h.decode(w, r, &req) {
		return
	}
	cfg, err := req.toConfig(id)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid config", err)
		return
	}
	cfg.CreatedAt = existing.CreatedAt

	if err := h.Store.SaveConfig(r.Context(), cfg); err != nil {
		writeDomainError(w, "Failed to save config", err)
		return
	}
	h.writeConfig(w, r, http.StatusOK, id)
}

func (h *Handler) writeConfig(w http.ResponseWriter, r *http.Request, status int, id string) {
	cfg, err := h.Store.GetConfig(r.Context(), id)
	if err != nil || cfg == nil {
		writeError(w, http.StatusInternalServerError, "Failed to reload config", err)
		return
	}
	writeJSON(w, status, toConfigDTO(*cfg))
}

func (req SaveConfigRequest) toConfig(id string) (demurrage.Config, error) {
	if req.DailyRate.IsNegative() {
		return demurrage.Config{}, fmt.Errorf("%w: daily_rate must not be negative", demurrage.ErrInvalidInput)
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	return demurrage.Config{
		ID:                    id,
		CompanyID:             req.CompanyID,
		CountryID:             req.CountryID,
		FreeDays:              req.FreeDays,
		ExcludeNonWorkingDays: req.ExcludeNonWorkingDays,
		DailyRate:             req.DailyRate,
		Currency:              strings.ToUpper(req.Currency),
		Active:                active,
	}, nil
}

// =============================================================================
// SHIPMENT HANDLERS
// =============================================================================

// ListShipments returns shipments, optionally filtered by company and flag.
// GET /api/shipments?company_id=acme&demurrage=true
func (h *Handler) ListShipments(w http.ResponseWriter, r *http.Request) {
	filter := demurrage.ShipmentFilter{CompanyID: r.URL.Query().Get("company_id")}
	if v := r.URL.Query().Get("demurrage"); v != "" {
		flagged, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid demurrage filter", err)
			return
		}
		filter.Demurrage = &flagged
	}

	shipments, err := h.Store.ListShipments(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list shipments", err)
		return
	}

	dtos := make([]ShipmentDTO, len(shipments))
	for i, s := range shipments {
		dtos[i] = toShipmentDTO(s)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateShipment creates or updates a shipment. The company must exist.
// POST /api/shipments
func (h *Handler) CreateShipment(w http.ResponseWriter, r *http.Request) {
	var req CreateShipmentRequest
	if !h.decode(w, r, &req) {
		return
	}
	ctx := r.Context()

	company, err := h.Store.GetCompany(ctx, req.CompanyID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get company", err)
		return
	}
	if company == nil {
		writeError(w, http.StatusBadRequest, "Company not found", nil)
		return
	}

	shipment := demurrage.Shipment{ID: req.ID, CompanyID: req.CompanyID, Reference: req.Reference}
	if shipment.ID == "" {
		shipment.ID = uuid.NewString()
	}
	if req.ETA != "" {
		eta, err := calendar.ParseDate(req.ETA)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid eta format (use YYYY-MM-DD)", err)
			return
		}
		shipment.ETA = &eta
	}

	if err := h.Store.SaveShipment(ctx, shipment); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save shipment", err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"status": "created", "id": shipment.ID})
}

// GetShipment returns a shipment with its accrued demurrage.
// GET /api/shipments/{id}?as_of=2024-01-31
func (h *Handler) GetShipment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	shipment, err := h.Store.GetShipment(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get shipment", err)
		return
	}
	if shipment == nil {
		writeError(w, http.StatusNotFound, "Shipment not found", nil)
		return
	}

	asOf := h.Clock.Now()
	if v := r.URL.Query().Get("as_of"); v != "" {
		if asOf, err = calendar.ParseDate(v); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid as_of format (use YYYY-MM-DD)", err)
			return
		}
		if shipment.DemurrageFrom != nil {
			limit := calendar.Day(*shipment.DemurrageFrom).AddDate(0, 0, h.maxLookahead())
			if asOf.After(limit) {
				writeError(w, http.StatusBadRequest,
					fmt.Sprintf("as_of must be within %d days of demurrage_from", h.maxLookahead()), nil)
				return
			}
		}
	}

	dto := toShipmentDTO(*shipment)
	if shipment.IsDemurrage {
		charge, err := h.charge(ctx, *shipment, asOf)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to compute charges", err)
			return
		}
		dto.Charge = charge
	}
	writeJSON(w, http.StatusOK, dto)
}

func (h *Handler) charge(ctx context.Context, s demurrage.Shipment, asOf time.Time) (*ChargeDTO, error) {
	company, err := h.Store.GetCompany(ctx, s.CompanyID)
	if err != nil {
		return nil, err
	}
	if company == nil || company.CountryID == "" {
		return nil, nil
	}
	cfg, err := h.Store.ActiveConfigForCountry(ctx, company.CountryID)
	if err != nil {
		return nil, err
	}
	charge, err := demurrage.Charges(ctx, h.Store, cfg, s, company.CountryID, asOf)
	if err != nil {
		return nil, err
	}
	return toChargeDTO(charge), nil
}

// =============================================================================
// DEMURRAGE HANDLERS
// =============================================================================

// CalculateStartDate answers "when would demurrage start" without touching
// any shipment. free_days defaults to the country's active config.
// GET /api/demurrage/calculate?eta=2024-01-01&country=LK&free_days=3
func (h *Handler) CalculateStartDate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	country := q.Get("country")
	if country == "" {
		writeError(w, http.StatusBadRequest, "country is required", nil)
		return
	}
	eta, err := calendar.ParseDate(q.Get("eta"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid eta format (use YYYY-MM-DD)", err)
		return
	}

	freeDays := h.DefaultFreeDays
	if v := q.Get("free_days"); v != "" {
		if freeDays, err = strconv.Atoi(v); err != nil || freeDays < 0 {
			writeError(w, http.StatusBadRequest, "free_days must be a non-negative integer", err)
			return
		}
	} else {
		cfg, err := h.Store.ActiveConfigForCountry(ctx, country)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to get config", err)
			return
		}
		if cfg != nil {
			freeDays = cfg.FreeDays
		}
	}

	calc := &demurrage.Calculator{Calendar: h.Store, MaxLookahead: h.MaxLookahead}
	start, err := calc.StartDate(ctx, eta, country, freeDays)
	if err != nil {
		if errors.Is(err, demurrage.ErrCalendarInconsistent) {
			writeError(w, http.StatusUnprocessableEntity, "Calendar has no working day in range", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to calculate start date", err)
		return
	}

	writeJSON(w, http.StatusOK, CalculationDTO{
		ETA:           calendar.FormatDate(eta),
		CountryID:     country,
		FreeDays:      freeDays,
		DemurrageFrom: calendar.FormatDate(start),
	})
}

// TriggerCheck runs the daily demurrage check synchronously and returns its
// result. A failed run is still a 200; Success tells the caller.
// POST /api/admin/demurrage/run
func (h *Handler) TriggerCheck(w http.ResponseWriter, r *http.Request) {
	res, err := h.Scheduler.TriggerNow(r.Context())
	if errors.Is(err, scheduler.ErrAlreadyRunning) {
		writeError(w, http.StatusConflict, "Demurrage check already running", err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to run demurrage check", err)
		return
	}
	writeJSON(w, http.StatusOK, toRunDTO(res))
}

// ListRuns returns recent batch runs, newest first.
// GET /api/demurrage/runs?limit=20
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		limit = n
	}

	runs, err := h.Store.ListRuns(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list runs", err)
		return
	}

	dtos := make([]RunDTO, len(runs))
	for i, run := range runs {
		dtos[i] = toRunDTO(run.Result)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetSchedule reports when the daily check fires next.
// GET /api/demurrage/schedule
func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	dto := ScheduleDTO{
		DailyAt: h.Scheduler.At(),
		NextRun: h.Scheduler.NextRun(h.Clock.Now()).Format(time.RFC3339),
		Running: h.Scheduler.Running(),
	}
	if last, ok := h.Scheduler.Last(); ok {
		run := toRunDTO(last)
		dto.LastRun = &run
	}
	writeJSON(w, http.StatusOK, dto)
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) maxLookahead() int {
	if h.MaxLookahead <= 0 {
		return demurrage.DefaultMaxLookahead
	}
	return h.MaxLookahead
}

// decode reads a JSON body into dst and validates it. It writes a 400 and
// returns false on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			details := make(map[string]string, len(verrs))
			for _, fe := range verrs {
				details[fe.Field()] = fe.Tag()
			}
			writeJSON(w, http.StatusBadRequest, ErrorResponse{
				Error:   "Validation failed",
				Code:    "validation_failed",
				Details: details,
			})
			return false
		}
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps demurrage errors to a status code.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	var conflict *demurrage.ConfigConflictError
	switch {
	case errors.As(err, &conflict):
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error:   message,
			Code:    "config_conflict",
			Details: map[string]string{"existing_id": conflict.ExistingID, "message": err.Error()},
		})
	case demurrage.IsConflict(err):
		writeError(w, http.StatusConflict, message, err)
	case demurrage.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case demurrage.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}
