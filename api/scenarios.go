/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	data for demos. Each scenario creates companies, a calendar, demurrage
	configs and shipments that exercise one part of the daily check.

AVAILABLE SCENARIOS:

	colombo-port:    Weekend calendar, one config, shipments either side of the free period
	holiday-cluster: Holidays inside and right after the free period
	missing-data:    Shipments the daily check has to skip

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Create companies
 3. Create non-working days
 4. Create demurrage configs
 5. Create shipments (unflagged; the daily check flags them)

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "holiday-cluster"}

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: TriggerCheck runs the daily check on the loaded data
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/demurrage-engine/calendar"
	"github.com/warp/demurrage-engine/demurrage"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "colombo-port",
		Name:        "Colombo Port",
		Description: "Saturday/Sunday weekends, 3 free days, shipments before and after the grace period",
	},
	{
		ID:          "holiday-cluster",
		Name:        "Holiday Cluster",
		Description: "ETA 2024-01-01 with holidays on Jan 2, 3 and 7; demurrage starts 2024-01-08",
	},
	{
		ID:          "missing-data",
		Name:        "Missing Data",
		Description: "Shipments without an ETA or whose company has no country are skipped",
	},
}

type scenarioLoader func(ctx context.Context, h *Handler) error

var scenarioLoaders = map[string]scenarioLoader{
	"colombo-port":    loadColomboPortScenario,
	"holiday-cluster": loadHolidayClusterScenario,
	"missing-data":    loadMissingDataScenario,
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: current, Name: current})
}

// LoadScenario resets the database and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !h.decode(w, r, &req) {
		return
	}
	load, ok := scenarioLoaders[req.ScenarioID]
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", fmt.Errorf("scenario %q", req.ScenarioID))
		return
	}

	ctx := r.Context()
	if err := h.reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	if err := load(ctx, h); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load scenario", err)
		return
	}

	h.mu.Lock()
	h.currentScenario = req.ScenarioID
	h.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) reset(ctx context.Context) error {
	h.mu.Lock()
	h.currentScenario = ""
	h.mu.Unlock()
	return h.Store.Reset(ctx)
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

// loadColomboPortScenario builds a Sri Lanka calendar around today so that
// running the check right away flags exactly one shipment.
func loadColomboPortScenario(ctx context.Context, h *Handler) error {
	today := calendar.Day(h.Clock.Now())

	if err := h.Store.SaveCompany(ctx, demurrage.Company{ID: "ceylon-freight", Name: "Ceylon Freight", CountryID: "LK"}); err != nil {
		return err
	}

	for _, year := range []int{today.Year() - 1, today.Year(), today.Year() + 1} {
		if err := saveWeekends(ctx, h.Store, year, "LK"); err != nil {
			return err
		}
	}

	if err := h.Store.SaveConfig(ctx, demurrage.Config{
		ID:                    "cfg-lk",
		CompanyID:             "ceylon-freight",
		CountryID:             "LK",
		FreeDays:              3,
		ExcludeNonWorkingDays: true,
		DailyRate:             decimal.RequireFromString("125.50"),
		Currency:              "USD",
		Active:                true,
	}); err != nil {
		return err
	}

	shipments := []struct {
		id, ref string
		offset  int
	}{
		{"shp-overdue", "MSCU1234567", -14},
		{"shp-in-grace", "MAEU7654321", -1},
		{"shp-at-sea", "CMAU5550001", 7},
	}
	for _, s := range shipments {
		eta := today.AddDate(0, 0, s.offset)
		if err := h.Store.SaveShipment(ctx, demurrage.Shipment{
			ID: s.id, CompanyID: "ceylon-freight", Reference: s.ref, ETA: &eta,
		}); err != nil {
			return err
		}
	}
	return nil
}

// loadHolidayClusterScenario walks the holiday cluster: free days land on
// Jan 4, 5 and 6 and the candidate Jan 7 is a holiday, so demurrage starts
// on Jan 8.
func loadHolidayClusterScenario(ctx context.Context, h *Handler) error {
	if err := h.Store.SaveCompany(ctx, demurrage.Company{ID: "harbor-line", Name: "Harbor Line", CountryID: "Y"}); err != nil {
		return err
	}

	holidays := []struct {
		day  int
		name string
	}{
		{2, "Port closure"},
		{3, "Port closure"},
		{7, "Public holiday"},
	}
	for _, hd := range holidays {
		if err := h.Store.SaveNonWorkingDay(ctx, calendar.NonWorkingDay{
			ID:          fmt.Sprintf("y-2024-01-%02d", hd.day),
			Date:        calendar.Date(2024, time.January, hd.day),
			CountryID:   "Y",
			Type:        calendar.DayTypeHoliday,
			Active:      true,
			Description: hd.name,
		}); err != nil {
			return err
		}
	}

	if err := h.Store.SaveConfig(ctx, demurrage.Config{
		ID:        "cfg-y",
		CompanyID: "harbor-line",
		CountryID: "Y",
		FreeDays:  3,
		DailyRate: decimal.RequireFromString("80"),
		Currency:  "EUR",
		Active:    true,
	}); err != nil {
		return err
	}

	eta := calendar.Date(2024, time.January, 1)
	return h.Store.SaveShipment(ctx, demurrage.Shipment{
		ID: "shp-new-year", CompanyID: "harbor-line", Reference: "HLCU2024001", ETA: &eta,
	})
}

// loadMissingDataScenario creates one good shipment and three the check
// must skip.
func loadMissingDataScenario(ctx context.Context, h *Handler) error {
	companies := []demurrage.Company{
		{ID: "complete-co", Name: "Complete Co", CountryID: "LK"},
		{ID: "stateless-co", Name: "Stateless Co"},
	}
	for _, c := range companies {
		if err := h.Store.SaveCompany(ctx, c); err != nil {
			return err
		}
	}

	past := calendar.Day(h.Clock.Now()).AddDate(0, 0, -30)
	shipments := []demurrage.Shipment{
		{ID: "shp-ok", CompanyID: "complete-co", Reference: "OK-1", ETA: &past},
		{ID: "shp-no-eta", CompanyID: "complete-co", Reference: "NO-ETA"},
		{ID: "shp-no-country", CompanyID: "stateless-co", Reference: "NO-COUNTRY", ETA: &past},
		{ID: "shp-orphan", CompanyID: "dissolved-co", Reference: "ORPHAN", ETA: &past},
	}
	for _, s := range shipments {
		if err := h.Store.SaveShipment(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

func saveWeekends(ctx context.Context, store demurrage.CalendarStore, year int, countryID string) error {
	days, err := calendar.Weekends(year, countryID)
	if err != nil {
		return err
	}
	for _, d := range days {
		d.ID = fmt.Sprintf("%s-%s", countryID, calendar.FormatDate(d.Date))
		if err := store.SaveNonWorkingDay(ctx, d); err != nil {
			return err
		}
	}
	return nil
}
