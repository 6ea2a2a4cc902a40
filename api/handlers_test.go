/*
handlers_test.go - HTTP tests for the demurrage API

Tests run the full router over the in-memory store with a real checker
and scheduler, so each request goes through chi, validation and the
demurrage package.
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/demurrage-engine/calendar"
	"github.com/warp/demurrage-engine/demurrage"
	"github.com/warp/demurrage-engine/scheduler"
	"github.com/warp/demurrage-engine/store/memory"
)

type testServer struct {
	store   *memory.Store
	handler *Handler
	router  http.Handler
}

func newTestServer(t *testing.T, now time.Time) *testServer {
	t.Helper()
	store := memory.New()
	logger := log.New(io.Discard, "", 0)
	clock := demurrage.FixedClock{At: now}

	checker := demurrage.NewChecker(store, store, clock, logger)
	sched, err := scheduler.New(checker, "", time.UTC, logger)
	require.NoError(t, err)

	h := NewHandler(store, sched, clock)
	return &testServer{store: store, handler: h, router: NewRouter(h)}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

var jan10 = time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)

// =============================================================================
// COMPANIES
// =============================================================================

func TestCompanies_CreateAndGet(t *testing.T) {
	ts := newTestServer(t, jan10)

	rec := ts.do(t, http.MethodPost, "/api/companies", CreateCompanyRequest{ID: "acme", Name: "Acme", CountryID: "LK"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodGet, "/api/companies/acme", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	company := decodeBody[CompanyDTO](t, rec)
	assert.Equal(t, "LK", company.CountryID)

	rec = ts.do(t, http.MethodGet, "/api/companies/ghost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCompanies_ValidationFailed(t *testing.T) {
	ts := newTestServer(t, jan10)

	rec := ts.do(t, http.MethodPost, "/api/companies", CreateCompanyRequest{Name: "No Country"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	resp := decodeBody[ErrorResponse](t, rec)
	assert.Equal(t, "validation_failed", resp.Code)
	assert.Equal(t, map[string]any{"CountryID": "required"}, resp.Details)
}

// =============================================================================
// CALENDAR
// =============================================================================

func TestNonWorkingDays_DuplicateActiveIsConflict(t *testing.T) {
	ts := newTestServer(t, jan10)
	req := CreateNonWorkingDayRequest{Date: "2024-02-04", CountryID: "LK", Description: "Independence Day"}

	rec := ts.do(t, http.MethodPost, "/api/non-working-days", req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody[NonWorkingDayDTO](t, rec)
	assert.Equal(t, "holiday", created.Type)

	rec = ts.do(t, http.MethodPost, "/api/non-working-days", req)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Deactivating frees the slot; re-activating the first one then conflicts.
	rec = ts.do(t, http.MethodPost, "/api/non-working-days/"+created.ID+"/deactivate", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decodeBody[NonWorkingDayDTO](t, rec).Active)

	rec = ts.do(t, http.MethodPost, "/api/non-working-days", req)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/non-working-days/"+created.ID+"/activate", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/non-working-days/missing/activate", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNonWorkingDays_InvalidInput(t *testing.T) {
	ts := newTestServer(t, jan10)

	rec := ts.do(t, http.MethodPost, "/api/non-working-days", CreateNonWorkingDayRequest{Date: "04/02/2024", CountryID: "LK"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/non-working-days", CreateNonWorkingDayRequest{Date: "2024-02-04", CountryID: "LK", Type: "strike"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/non-working-days?year=next", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNonWorkingDays_GenerateWeekends(t *testing.T) {
	ts := newTestServer(t, jan10)

	rec := ts.do(t, http.MethodPost, "/api/non-working-days/weekends", GenerateWeekendsRequest{CountryID: "LK", Year: 2024})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	first := decodeBody[map[string]any](t, rec)
	assert.EqualValues(t, 104, first["created"])

	// Running again only skips.
	rec = ts.do(t, http.MethodPost, "/api/non-working-days/weekends", GenerateWeekendsRequest{CountryID: "LK", Year: 2024})
	require.Equal(t, http.StatusCreated, rec.Code)
	second := decodeBody[map[string]any](t, rec)
	assert.EqualValues(t, 0, second["created"])
	assert.EqualValues(t, 104, second["skipped"])

	// Friday-only weekend for another country.
	rec = ts.do(t, http.MethodPost, "/api/non-working-days/weekends",
		GenerateWeekendsRequest{CountryID: "AE", Year: 2024, Weekend: []string{"Fri"}})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.EqualValues(t, 52, decodeBody[map[string]any](t, rec)["created"])

	rec = ts.do(t, http.MethodGet, "/api/non-working-days?country=AE&year=2024", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]NonWorkingDayDTO](t, rec), 52)

	rec = ts.do(t, http.MethodPost, "/api/non-working-days/weekends",
		GenerateWeekendsRequest{CountryID: "AE", Year: 2024, Weekend: []string{"Funday"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// CONFIGS
// =============================================================================

func TestConfigs_SecondActiveConfigConflicts(t *testing.T) {
	ts := newTestServer(t, jan10)
	req := SaveConfigRequest{CompanyID: "acme", CountryID: "LK", FreeDays: 4, Currency: "usd"}

	rec := ts.do(t, http.MethodPost, "/api/demurrage/configs", req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	first := decodeBody[ConfigDTO](t, rec)
	assert.True(t, first.Active)
	assert.Equal(t, "USD", first.Currency)

	rec = ts.do(t, http.MethodPost, "/api/demurrage/configs", req)
	require.Equal(t, http.StatusConflict, rec.Code)
	resp := decodeBody[ErrorResponse](t, rec)
	assert.Equal(t, "config_conflict", resp.Code)
	assert.Equal(t, first.ID, resp.Details.(map[string]any)["existing_id"])

	// An inactive config for the same pair is fine.
	inactive := false
	req.Active = &inactive
	rec = ts.do(t, http.MethodPost, "/api/demurrage/configs", req)
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/demurrage/configs?country=LK", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]ConfigDTO](t, rec), 2)
}

func TestConfigs_Update(t *testing.T) {
	ts := newTestServer(t, jan10)

	rec := ts.do(t, http.MethodPost, "/api/demurrage/configs", SaveConfigRequest{CompanyID: "acme", CountryID: "LK", FreeDays: 4})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeBody[ConfigDTO](t, rec)

	rec = ts.do(t, http.MethodPut, "/api/demurrage/configs/"+created.ID, SaveConfigRequest{CompanyID: "acme", CountryID: "LK", FreeDays: 7})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decodeBody[ConfigDTO](t, rec)
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, 7, updated.FreeDays)

	rec = ts.do(t, http.MethodPut, "/api/demurrage/configs/missing", SaveConfigRequest{CompanyID: "acme", CountryID: "LK"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/demurrage/configs", SaveConfigRequest{CompanyID: "acme", CountryID: "LK", FreeDays: -1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// CALCULATION
// =============================================================================

func TestCalculate_HolidayCluster(t *testing.T) {
	// GIVEN: Country Y closed on Jan 2, 3 and 7
	// WHEN: Asking for ETA Jan 1 with 3 free days
	// THEN: Free days are Jan 4, 5, 6; Jan 7 is closed; demurrage starts Jan 8
	ts := newTestServer(t, jan10)
	for _, d := range []string{"2024-01-02", "2024-01-03", "2024-01-07"} {
		rec := ts.do(t, http.MethodPost, "/api/non-working-days", CreateNonWorkingDayRequest{Date: d, CountryID: "Y"})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := ts.do(t, http.MethodGet, "/api/demurrage/calculate?eta=2024-01-01&country=Y&free_days=3", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "2024-01-08", decodeBody[CalculationDTO](t, rec).DemurrageFrom)
}

func TestCalculate_UsesActiveConfigThenDefault(t *testing.T) {
	ts := newTestServer(t, jan10)

	rec := ts.do(t, http.MethodGet, "/api/demurrage/calculate?eta=2024-01-01&country=LK", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	calc := decodeBody[CalculationDTO](t, rec)
	assert.Equal(t, demurrage.DefaultFreeDays, calc.FreeDays)
	assert.Equal(t, "2024-01-05", calc.DemurrageFrom)

	rec = ts.do(t, http.MethodPost, "/api/demurrage/configs", SaveConfigRequest{CompanyID: "acme", CountryID: "LK", FreeDays: 5})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/demurrage/calculate?eta=2024-01-01&country=LK", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2024-01-07", decodeBody[CalculationDTO](t, rec).DemurrageFrom)
}

func TestCalculate_InconsistentCalendar(t *testing.T) {
	ts := newTestServer(t, jan10)
	ts.handler.MaxLookahead = 5
	for d := calendar.Date(2024, 1, 2); d.Before(calendar.Date(2024, 1, 12)); d = d.AddDate(0, 0, 1) {
		require.NoError(t, ts.store.SaveNonWorkingDay(context.Background(), calendar.NonWorkingDay{
			Date: d, CountryID: "Z", Type: calendar.DayTypeHoliday, Active: true,
		}))
	}

	rec := ts.do(t, http.MethodGet, "/api/demurrage/calculate?eta=2024-01-01&country=Z&free_days=0", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestCalculate_BadQuery(t *testing.T) {
	ts := newTestServer(t, jan10)

	for _, path := range []string{
		"/api/demurrage/calculate?eta=2024-01-01",
		"/api/demurrage/calculate?country=LK",
		"/api/demurrage/calculate?eta=2024-01-01&country=LK&free_days=-2",
	} {
		rec := ts.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
	}
}

// =============================================================================
// SHIPMENTS AND THE DAILY CHECK
// =============================================================================

func TestShipments_RequireKnownCompany(t *testing.T) {
	ts := newTestServer(t, jan10)

	rec := ts.do(t, http.MethodPost, "/api/shipments", CreateShipmentRequest{CompanyID: "ghost", ETA: "2024-01-01"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/companies", CreateCompanyRequest{ID: "acme", Name: "Acme", CountryID: "LK"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/shipments", CreateShipmentRequest{CompanyID: "acme", ETA: "01-01-2024"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/shipments", CreateShipmentRequest{CompanyID: "acme"})
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decodeBody[map[string]any](t, rec)["id"].(string)

	rec = ts.do(t, http.MethodGet, "/api/shipments/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	s := decodeBody[ShipmentDTO](t, rec)
	assert.Nil(t, s.ETA)
	assert.False(t, s.IsDemurrage)
	assert.Nil(t, s.Charge)

	rec = ts.do(t, http.MethodGet, "/api/shipments/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTriggerCheck_FlagsAndCharges(t *testing.T) {
	// GIVEN: The holiday-cluster scenario on Jan 10, 2024
	// WHEN: Running the check manually
	// THEN: The shipment is flagged from Jan 8 and has accrued 3 days at 80
	ts := newTestServer(t, jan10)

	rec := ts.do(t, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "holiday-cluster"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodPost, "/api/admin/demurrage/run", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	run := decodeBody[RunDTO](t, rec)
	assert.True(t, run.Success)
	assert.Equal(t, "manual", run.Trigger)
	assert.Equal(t, 1, run.Updated)
	assert.Equal(t, "Demurrage check completed. Updated 1 of 1 shipments.", run.Message)

	rec = ts.do(t, http.MethodGet, "/api/shipments/shp-new-year", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	s := decodeBody[ShipmentDTO](t, rec)
	assert.True(t, s.IsDemurrage)
	require.NotNil(t, s.DemurrageFrom)
	assert.Equal(t, "2024-01-08", *s.DemurrageFrom)
	require.NotNil(t, s.Charge)
	assert.Equal(t, 3, s.Charge.Days)
	assert.Equal(t, "240.00", s.Charge.Amount)
	assert.Equal(t, "EUR", s.Charge.Currency)

	rec = ts.do(t, http.MethodGet, "/api/shipments/shp-new-year?as_of=2024-01-20", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 13, decodeBody[ShipmentDTO](t, rec).Charge.Days)

	rec = ts.do(t, http.MethodGet, "/api/shipments?demurrage=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]ShipmentDTO](t, rec), 1)

	rec = ts.do(t, http.MethodGet, "/api/shipments?demurrage=maybe", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestShipments_AsOfBeyondLookaheadRejected(t *testing.T) {
	// GIVEN: shp-new-year flagged from Jan 8, 2024
	// WHEN: Asking for charges decades past that date
	// THEN: The request is rejected instead of walking every day in between
	ts := newTestServer(t, jan10)
	ts.handler.MaxLookahead = 30

	rec := ts.do(t, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "holiday-cluster"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = ts.do(t, http.MethodPost, "/api/admin/demurrage/run", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodGet, "/api/shipments/shp-new-year?as_of=2040-01-01", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeBody[ErrorResponse](t, rec).Error, "as_of must be within 30 days")

	// Jan 8 + 30 days is the last accepted date.
	rec = ts.do(t, http.MethodGet, "/api/shipments/shp-new-year?as_of=2024-02-07", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 31, decodeBody[ShipmentDTO](t, rec).Charge.Days)

	rec = ts.do(t, http.MethodGet, "/api/shipments/shp-new-year?as_of=2024-02-08", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTriggerCheck_MissingDataIsSkipped(t *testing.T) {
	ts := newTestServer(t, jan10)

	rec := ts.do(t, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "missing-data"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodPost, "/api/admin/demurrage/run", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	run := decodeBody[RunDTO](t, rec)
	assert.True(t, run.Success)
	assert.Equal(t, 4, run.Checked)
	assert.Equal(t, 1, run.Updated)
	assert.Equal(t, 3, run.Skipped)
}

// busyRunner behaves like a scheduler whose run never finishes.
type busyRunner struct{}

func (busyRunner) TriggerNow(context.Context) (demurrage.Result, error) {
	return demurrage.Result{}, scheduler.ErrAlreadyRunning
}
func (busyRunner) NextRun(now time.Time) time.Time { return now.Add(time.Hour) }
func (busyRunner) Running() bool { return true }
func (busyRunner) At() string { return scheduler.DefaultAt }
func (busyRunner) Last() (demurrage.Result, bool) { return demurrage.Result{}, false }

func TestTriggerCheck_AlreadyRunning(t *testing.T) {
	ts := newTestServer(t, jan10)
	ts.handler.Scheduler = busyRunner{}

	rec := ts.do(t, http.MethodPost, "/api/admin/demurrage/run", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/demurrage/schedule", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeBody[ScheduleDTO](t, rec).Running)
}

func TestRunsAndSchedule(t *testing.T) {
	ts := newTestServer(t, jan10)

	rec := ts.do(t, http.MethodGet, "/api/demurrage/schedule", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	sched := decodeBody[ScheduleDTO](t, rec)
	assert.Equal(t, scheduler.DefaultAt, sched.DailyAt)
	assert.Nil(t, sched.LastRun)
	assert.False(t, sched.Running)

	for i := 0; i < 3; i++ {
		rec = ts.do(t, http.MethodPost, "/api/admin/demurrage/run", nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec = ts.do(t, http.MethodGet, "/api/demurrage/runs?limit=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]RunDTO](t, rec), 2)

	rec = ts.do(t, http.MethodGet, "/api/demurrage/runs?limit=x", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/demurrage/schedule", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	sched = decodeBody[ScheduleDTO](t, rec)
	require.NotNil(t, sched.LastRun)
	assert.Equal(t, "manual", sched.LastRun.Trigger)
}

func TestSchedule_NextRunFollowsInjectedClock(t *testing.T) {
	// The handler clock says Jan 10, 2024 12:00 UTC, long before wall time.
	ts := newTestServer(t, jan10)

	rec := ts.do(t, http.MethodGet, "/api/demurrage/schedule", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2024-01-10T18:31:00Z", decodeBody[ScheduleDTO](t, rec).NextRun)

	ts.handler.Clock = demurrage.FixedClock{At: time.Date(2024, 1, 10, 19, 0, 0, 0, time.UTC)}
	rec = ts.do(t, http.MethodGet, "/api/demurrage/schedule", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2024-01-11T18:31:00Z", decodeBody[ScheduleDTO](t, rec).NextRun)
}

// =============================================================================
// SCENARIOS
// =============================================================================

func TestScenarios_LoadEach(t *testing.T) {
	for _, s := range scenarios {
		t.Run(s.ID, func(t *testing.T) {
			ts := newTestServer(t, jan10)

			rec := ts.do(t, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: s.ID})
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			rec = ts.do(t, http.MethodGet, "/api/scenarios/current", nil)
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, s.ID, decodeBody[ScenarioDTO](t, rec).ID)

			rec = ts.do(t, http.MethodGet, "/api/shipments", nil)
			require.Equal(t, http.StatusOK, rec.Code)
			assert.NotEmpty(t, decodeBody[[]ShipmentDTO](t, rec))
		})
	}
}

func TestScenarios_ColomboPortFlagsOnlyOverdue(t *testing.T) {
	ts := newTestServer(t, jan10)

	rec := ts.do(t, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "colombo-port"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodPost, "/api/admin/demurrage/run", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	run := decodeBody[RunDTO](t, rec)
	assert.Equal(t, 3, run.Checked)
	assert.Equal(t, 1, run.Updated)

	rec = ts.do(t, http.MethodGet, "/api/shipments?demurrage=true", nil)
	flagged := decodeBody[[]ShipmentDTO](t, rec)
	require.Len(t, flagged, 1)
	assert.Equal(t, "shp-overdue", flagged[0].ID)
}

func TestScenarios_UnknownAndReset(t *testing.T) {
	ts := newTestServer(t, jan10)

	rec := ts.do(t, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "atlantis"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "holiday-cluster"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/scenarios/reset", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/scenarios/current", nil)
	assert.Equal(t, "null\n", rec.Body.String())

	rec = ts.do(t, http.MethodGet, "/api/companies", nil)
	assert.Empty(t, decodeBody[[]CompanyDTO](t, rec))
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t, jan10)

	rec := ts.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
