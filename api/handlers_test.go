/*
handlers_test.go - End-to-end tests for the HTTP API

Tests for:
- Attendance marking and the charge/transaction lockstep
- Re-marking updating the single auto transaction in place
- Deleting a mark retracting its transaction
- Manual journal overrides surviving a payroll run
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lumen/tuition-engine/billing"
	memstore "github.com/lumen/tuition-engine/billing/store"
	"github.com/lumen/tuition-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestServer(t *testing.T) (*httptest.Server, billing.Store) {
	t.Helper()
	store, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	srv := httptest.NewServer(NewRouter(NewHandler(store)))
	t.Cleanup(srv.Close)
	return srv, store
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("Failed to encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("Failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	return resp
}

func decodeInto(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
}

func requireStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		var body map[string]any
		json.NewDecoder(resp.Body).Decode(&body)
		resp.Body.Close()
		t.Fatalf("Expected status %d, got %d (body: %v)", want, resp.StatusCode, body)
	}
}

// seedChess creates a teacher, a chess activity priced at 500 per visit,
// a student with a 10 percent discount, and returns the enrollment id.
func seedChess(t *testing.T, srv *httptest.Server) string {
	t.Helper()

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/staff", map[string]any{
		"id": "stf-anna", "name": "Anna",
	})
	requireStatus(t, resp, http.StatusCreated)
	resp.Body.Close()

	resp = doJSON(t, http.MethodPost, srv.URL+"/api/activities", map[string]any{
		"id":       "act-chess",
		"name":     "Chess Club",
		"category": "income",
		"rules": map[string]any{
			"billing_rules": map[string]any{
				"present": map[string]any{"type": "fixed", "rate": 500},
			},
		},
		"teacher_id":              "stf-anna",
		"teacher_payment_percent": 50,
	})
	requireStatus(t, resp, http.StatusCreated)
	resp.Body.Close()

	resp = doJSON(t, http.MethodPost, srv.URL+"/api/students", map[string]any{
		"id": "std-alice", "name": "Alice",
	})
	requireStatus(t, resp, http.StatusCreated)
	resp.Body.Close()

	resp = doJSON(t, http.MethodPost, srv.URL+"/api/enrollments", map[string]any{
		"id":               "enr-1",
		"student_id":       "std-alice",
		"activity_id":      "act-chess",
		"discount_percent": 10,
	})
	requireStatus(t, resp, http.StatusCreated)
	resp.Body.Close()

	return "enr-1"
}

func mustParseDate(t *testing.T, s string) billing.Date {
	t.Helper()
	d, err := billing.ParseDate(s)
	if err != nil {
		t.Fatalf("Failed to parse date %q: %v", s, err)
	}
	return d
}

func monthTransactions(t *testing.T, store billing.Store, studentID string, year, month int) []billing.Transaction {
	t.Helper()
	from := billing.StartOfMonth(year, time.Month(month))
	to := billing.EndOfMonth(year, time.Month(month))
	txs, err := store.Transactions(context.Background(), billing.StudentID(studentID), from, to)
	if err != nil {
		t.Fatalf("Failed to load transactions: %v", err)
	}
	return txs
}

// =============================================================================
// ATTENDANCE / CHARGE LOCKSTEP TESTS
// =============================================================================

func TestMarkAttendance_ChargesAndCreatesTransaction(t *testing.T) {
	// GIVEN: Chess at 500 per visit, Alice with a 10 percent discount
	srv, store := newTestServer(t)
	enrollmentID := seedChess(t, srv)

	// WHEN: Alice is marked present on 2026-02-02
	resp := doJSON(t, http.MethodPut, srv.URL+"/api/enrollments/"+enrollmentID+"/attendance/2026-02-02",
		map[string]any{"status": "present"})
	requireStatus(t, resp, http.StatusOK)

	var dto AttendanceDTO
	decodeInto(t, resp, &dto)

	// THEN: The charge is 500 minus 10 percent
	if dto.ChargedAmount == nil || *dto.ChargedAmount != "450.00" {
		t.Fatalf("Expected charge 450.00, got %v", dto.ChargedAmount)
	}

	// And exactly one auto income transaction mirrors it
	txs := monthTransactions(t, store, "std-alice", 2026, 2)
	if len(txs) != 1 {
		t.Fatalf("Expected 1 transaction, got %d", len(txs))
	}
	tx := txs[0]
	if !tx.Auto || tx.Type != billing.TxIncome {
		t.Errorf("Expected auto income transaction, got %+v", tx)
	}
	if !tx.Amount.Equal(billing.MustParseDecimal("450")) {
		t.Errorf("Expected amount 450, got %s", tx.Amount)
	}
	if tx.Description != "Chess Club" {
		t.Errorf("Expected activity name as description, got %q", tx.Description)
	}
}

func TestMarkAttendance_RemarkUpdatesSingleTransaction(t *testing.T) {
	// GIVEN: A present mark with its transaction
	srv, store := newTestServer(t)
	enrollmentID := seedChess(t, srv)

	resp := doJSON(t, http.MethodPut, srv.URL+"/api/enrollments/"+enrollmentID+"/attendance/2026-02-02",
		map[string]any{"status": "present"})
	requireStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	// WHEN: The same day is re-marked (pricing has no sick rule, so the
	// charge disappears)
	resp = doJSON(t, http.MethodPut, srv.URL+"/api/enrollments/"+enrollmentID+"/attendance/2026-02-02",
		map[string]any{"status": "sick"})
	requireStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	// THEN: The auto transaction is retracted, not duplicated
	if txs := monthTransactions(t, store, "std-alice", 2026, 2); len(txs) != 0 {
		t.Fatalf("Expected no transactions after re-mark, got %d", len(txs))
	}

	// WHEN: Marked present again
	resp = doJSON(t, http.MethodPut, srv.URL+"/api/enrollments/"+enrollmentID+"/attendance/2026-02-02",
		map[string]any{"status": "present"})
	requireStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	// THEN: Still exactly one transaction for the day
	if txs := monthTransactions(t, store, "std-alice", 2026, 2); len(txs) != 1 {
		t.Fatalf("Expected 1 transaction, got %d", len(txs))
	}
}

func TestClearAttendance_RetractsTransaction(t *testing.T) {
	// GIVEN: A charged mark
	srv, store := newTestServer(t)
	enrollmentID := seedChess(t, srv)

	resp := doJSON(t, http.MethodPut, srv.URL+"/api/enrollments/"+enrollmentID+"/attendance/2026-02-02",
		map[string]any{"status": "present"})
	requireStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	// WHEN: The mark is deleted
	resp = doJSON(t, http.MethodDelete, srv.URL+"/api/enrollments/"+enrollmentID+"/attendance/2026-02-02", nil)
	requireStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	// THEN: Its transaction is gone too
	if txs := monthTransactions(t, store, "std-alice", 2026, 2); len(txs) != 0 {
		t.Fatalf("Expected no transactions after delete, got %d", len(txs))
	}

	// Deleting again is a 404
	resp = doJSON(t, http.MethodDelete, srv.URL+"/api/enrollments/"+enrollmentID+"/attendance/2026-02-02", nil)
	requireStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()
}

func TestMarkAttendance_UnknownEnrollment(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doJSON(t, http.MethodPut, srv.URL+"/api/enrollments/enr-missing/attendance/2026-02-02",
		map[string]any{"status": "present"})
	requireStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()
}

// =============================================================================
// CONTROLLER CONFIG VALIDATION
// =============================================================================

func TestCreateActivity_SelfReferentialConfigRejected(t *testing.T) {
	// GIVEN: A controller whose config lists itself as a base tariff
	srv, _ := newTestServer(t)

	// WHEN / THEN: Creation is rejected as a client error
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/activities", map[string]any{
		"id":    "act-garden",
		"name":  "Garden",
		"rules": map[string]any{"billing_rules": map[string]any{}},
		"config": map[string]any{
			"base_tariff_ids": []string{"act-garden"},
		},
	})
	requireStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()
}

// =============================================================================
// GARDEN ACCRUAL PREVIEW
// =============================================================================

func TestGetGardenAccrual_Preview(t *testing.T) {
	// GIVEN: A garden controller over a 4000/month base tariff and a 50/day
	// food tariff, backed by the in-memory store
	mem := memstore.NewMemory()
	srv := httptest.NewServer(NewRouter(NewHandler(mem)))
	t.Cleanup(srv.Close)
	ctx := context.Background()

	activities := []billing.Activity{
		{
			ID: "act-base", Name: "Base Tariff",
			Rules: billing.RuleSet{
				"present": {Type: billing.RuleSubscription, Rate: billing.MustParseDecimal("4000")},
			},
		},
		{
			ID: "act-food", Name: "Food",
			Rules: billing.RuleSet{
				"present": {Type: billing.RuleFixed, Rate: billing.MustParseDecimal("50")},
			},
		},
		{
			ID: "act-garden", Name: "Garden",
			Config: &billing.ControllerConfig{
				BaseTariffIDs: []billing.ActivityID{"act-base"},
				FoodTariffIDs: []billing.ActivityID{"act-food"},
			},
		},
	}
	for _, a := range activities {
		if err := mem.SaveActivity(ctx, a); err != nil {
			t.Fatalf("Failed to save activity: %v", err)
		}
	}
	if err := mem.SaveStudent(ctx, billing.Student{ID: "std-bob", Name: "Bob"}); err != nil {
		t.Fatalf("Failed to save student: %v", err)
	}
	for i, aid := range []billing.ActivityID{"act-base", "act-food", "act-garden"} {
		e := billing.Enrollment{
			ID:         billing.EnrollmentID(fmt.Sprintf("enr-%d", i)),
			StudentID:  "std-bob",
			ActivityID: aid,
			IsActive:   true,
		}
		if err := mem.SaveEnrollment(ctx, e); err != nil {
			t.Fatalf("Failed to save enrollment: %v", err)
		}
	}

	// WHEN: Previewing a present day in February 2026 (20 working days)
	resp := doJSON(t, http.MethodGet,
		srv.URL+"/api/activities/act-garden/garden?student_id=std-bob&date=2026-02-10&status=present", nil)
	requireStatus(t, resp, http.StatusOK)

	var dto GardenAccrualDTO
	decodeInto(t, resp, &dto)

	// THEN: The day accrues the monthly tariff spread over the month
	if dto.Amount != "200.00" || dto.WorkingDays != 20 {
		t.Errorf("Expected 200.00 over 20 days, got %s over %d", dto.Amount, dto.WorkingDays)
	}

	// An absence day drops the food leg
	resp = doJSON(t, http.MethodGet,
		srv.URL+"/api/activities/act-garden/garden?student_id=std-bob&date=2026-02-10&status=sick", nil)
	requireStatus(t, resp, http.StatusOK)
	decodeInto(t, resp, &dto)
	if dto.Amount != "150.00" {
		t.Errorf("Expected 150.00 on absence, got %s", dto.Amount)
	}

	// A non-controller activity is a client error
	resp = doJSON(t, http.MethodGet,
		srv.URL+"/api/activities/act-base/garden?student_id=std-bob&date=2026-02-10", nil)
	requireStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()
}

// =============================================================================
// PAYROLL RUN TESTS
// =============================================================================

func TestRunPayroll_ActivityFallbackAndOverrideProtection(t *testing.T) {
	// GIVEN: Two charged chess days in February 2026 and no staff rule,
	// so the teacher is paid from the activity's 50 percent setting
	srv, store := newTestServer(t)
	enrollmentID := seedChess(t, srv)
	ctx := context.Background()

	for _, day := range []string{"2026-02-02", "2026-02-03"} {
		resp := doJSON(t, http.MethodPut, srv.URL+"/api/enrollments/"+enrollmentID+"/attendance/"+day,
			map[string]any{"status": "present"})
		requireStatus(t, resp, http.StatusOK)
		resp.Body.Close()
	}

	// WHEN: Payroll runs for the month
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/payroll/run", map[string]any{
		"year": 2026, "month": 2,
	})
	requireStatus(t, resp, http.StatusOK)

	var result PayrollRunResultDTO
	decodeInto(t, resp, &result)
	if result.EntriesWritten != 2 {
		t.Fatalf("Expected 2 entries written, got %d", result.EntriesWritten)
	}

	// THEN: Each day accrues 50 percent of the list price
	entries, err := store.JournalForMonth(ctx, "stf-anna", 2026, time.February)
	if err != nil {
		t.Fatalf("Failed to load journal: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Expected 2 journal entries, got %d", len(entries))
	}
	for _, e := range entries {
		if !e.Amount.Equal(billing.MustParseDecimal("250")) {
			t.Errorf("Expected 250 on %s, got %s", e.Date, e.Amount)
		}
	}

	// GIVEN: One day is manually overridden
	resp = doJSON(t, http.MethodPut, srv.URL+"/api/staff/stf-anna/journal", map[string]any{
		"activity_id": "act-chess",
		"date":        "2026-02-02",
		"amount":      300,
		"notes":       []string{"agreed extra"},
	})
	requireStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	// WHEN: Payroll runs again
	resp = doJSON(t, http.MethodPost, srv.URL+"/api/payroll/run", map[string]any{
		"year": 2026, "month": 2,
	})
	requireStatus(t, resp, http.StatusOK)
	decodeInto(t, resp, &result)

	// THEN: The override is kept, not recomputed
	if result.OverridesKept != 1 {
		t.Fatalf("Expected 1 override kept, got %d", result.OverridesKept)
	}
	entries, err = store.JournalForMonth(ctx, "stf-anna", 2026, time.February)
	if err != nil {
		t.Fatalf("Failed to load journal: %v", err)
	}
	for _, e := range entries {
		if e.Date.String() == "2026-02-02" {
			if !e.IsManualOverride || !e.Amount.Equal(billing.MustParseDecimal("300")) {
				t.Errorf("Override lost: %+v", e)
			}
		}
	}
}

func TestRunPayroll_GlobalFixedRuleChargesOncePerMonth(t *testing.T) {
	// GIVEN: A teacher of two activities on a global fixed rule at 30000,
	// with one present mark in each activity in February
	mem := memstore.NewMemory()
	h := NewHandler(mem)
	ctx := context.Background()

	if err := mem.SaveStaff(ctx, billing.Staff{ID: "stf-nora", Name: "Nora"}); err != nil {
		t.Fatalf("Failed to save staff: %v", err)
	}
	teacherID := billing.StaffID("stf-nora")
	if err := mem.AddStaffRule(ctx, billing.StaffRule{
		StaffID:       teacherID,
		RateType:      billing.StaffRateFixed,
		Rate:          billing.MustParseDecimal("30000"),
		EffectiveFrom: mustParseDate(t, "2026-01-01"),
	}); err != nil {
		t.Fatalf("Failed to add staff rule: %v", err)
	}
	if err := mem.SaveStudent(ctx, billing.Student{ID: "std-bob", Name: "Bob"}); err != nil {
		t.Fatalf("Failed to save student: %v", err)
	}

	present := billing.StatusPresent
	days := map[billing.ActivityID]string{"act-chess": "2026-02-02", "act-piano": "2026-02-03"}
	for _, aid := range []billing.ActivityID{"act-chess", "act-piano"} {
		if err := mem.SaveActivity(ctx, billing.Activity{ID: aid, Name: string(aid), TeacherID: &teacherID}); err != nil {
			t.Fatalf("Failed to save activity: %v", err)
		}
		eid := billing.EnrollmentID("enr-" + string(aid))
		if err := mem.SaveEnrollment(ctx, billing.Enrollment{
			ID: eid, StudentID: "std-bob", ActivityID: aid, IsActive: true,
		}); err != nil {
			t.Fatalf("Failed to save enrollment: %v", err)
		}
		if _, err := mem.UpsertAttendance(ctx, billing.Attendance{
			EnrollmentID: eid, Date: mustParseDate(t, days[aid]), Status: &present,
		}); err != nil {
			t.Fatalf("Failed to mark attendance: %v", err)
		}
	}

	// WHEN: Payroll runs for February
	result, err := h.runPayroll(ctx, 2026, time.February)
	if err != nil {
		t.Fatalf("Payroll run failed: %v", err)
	}

	// THEN: The flat rate charges once for the whole month
	if result.EntriesWritten != 1 {
		t.Errorf("Expected 1 entry written, got %d", result.EntriesWritten)
	}
	entries, err := mem.JournalForMonth(ctx, teacherID, 2026, time.February)
	if err != nil {
		t.Fatalf("Failed to load journal: %v", err)
	}
	total := decimal.Zero
	for _, e := range entries {
		total = total.Add(e.Amount)
	}
	if !total.Equal(billing.MustParseDecimal("30000")) {
		t.Fatalf("Expected a single 30000 monthly charge, got total %s across %d entries", total, len(entries))
	}
}

func TestRunPayroll_ManualPerWorkingDayRate(t *testing.T) {
	// GIVEN: A staff member with no activities, paid 500 per working day
	mem := memstore.NewMemory()
	h := NewHandler(mem)
	ctx := context.Background()

	if err := mem.SaveStaff(ctx, billing.Staff{ID: "stf-vera", Name: "Vera"}); err != nil {
		t.Fatalf("Failed to save staff: %v", err)
	}
	if err := mem.AddManualRate(ctx, billing.ManualRateRevision{
		StaffID:       "stf-vera",
		RateType:      billing.ManualPerWorkingDay,
		Value:         billing.MustParseDecimal("500"),
		EffectiveFrom: mustParseDate(t, "2026-01-01"),
	}); err != nil {
		t.Fatalf("Failed to add manual rate: %v", err)
	}

	// WHEN: Payroll runs for February 2026 (20 working days)
	result, err := h.runPayroll(ctx, 2026, time.February)
	if err != nil {
		t.Fatalf("Payroll run failed: %v", err)
	}

	// THEN: One month-end entry at 500 x 20
	if result.EntriesWritten != 1 {
		t.Errorf("Expected 1 entry written, got %d", result.EntriesWritten)
	}
	entries, err := mem.JournalForMonth(ctx, "stf-vera", 2026, time.February)
	if err != nil {
		t.Fatalf("Failed to load journal: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("Expected 1 journal entry, got %d", len(entries))
	}
	if !entries[0].Amount.Equal(billing.MustParseDecimal("10000")) {
		t.Errorf("Expected 10000, got %s", entries[0].Amount)
	}
	if entries[0].Date.String() != "2026-02-28" {
		t.Errorf("Expected month-end date, got %s", entries[0].Date)
	}
}

func TestRunPayroll_ManualHourlyRatePaysMarkedHours(t *testing.T) {
	// GIVEN: A teacher on an hourly manual rate of 300 whose activity has
	// value marks for 1.5 and 2 hours in February
	mem := memstore.NewMemory()
	h := NewHandler(mem)
	ctx := context.Background()

	if err := mem.SaveStaff(ctx, billing.Staff{ID: "stf-igor", Name: "Igor"}); err != nil {
		t.Fatalf("Failed to save staff: %v", err)
	}
	if err := mem.AddManualRate(ctx, billing.ManualRateRevision{
		StaffID:       "stf-igor",
		RateType:      billing.ManualHourly,
		Value:         billing.MustParseDecimal("300"),
		EffectiveFrom: mustParseDate(t, "2026-01-01"),
	}); err != nil {
		t.Fatalf("Failed to add manual rate: %v", err)
	}
	teacherID := billing.StaffID("stf-igor")
	if err := mem.SaveActivity(ctx, billing.Activity{ID: "act-vocal", Name: "Vocal", TeacherID: &teacherID}); err != nil {
		t.Fatalf("Failed to save activity: %v", err)
	}
	if err := mem.SaveStudent(ctx, billing.Student{ID: "std-eva", Name: "Eva"}); err != nil {
		t.Fatalf("Failed to save student: %v", err)
	}
	if err := mem.SaveEnrollment(ctx, billing.Enrollment{
		ID: "enr-vocal", StudentID: "std-eva", ActivityID: "act-vocal", IsActive: true,
	}); err != nil {
		t.Fatalf("Failed to save enrollment: %v", err)
	}
	for day, hours := range map[string]string{"2026-02-02": "1.5", "2026-02-03": "2"} {
		v := billing.MustParseDecimal(hours)
		if _, err := mem.UpsertAttendance(ctx, billing.Attendance{
			EnrollmentID: "enr-vocal", Date: mustParseDate(t, day), Value: &v,
		}); err != nil {
			t.Fatalf("Failed to mark attendance: %v", err)
		}
	}

	// WHEN: Payroll runs
	if _, err := h.runPayroll(ctx, 2026, time.February); err != nil {
		t.Fatalf("Payroll run failed: %v", err)
	}

	// THEN: 3.5 hours x 300 in one month-end entry
	entries, err := mem.JournalForMonth(ctx, "stf-igor", 2026, time.February)
	if err != nil {
		t.Fatalf("Failed to load journal: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("Expected 1 journal entry, got %d", len(entries))
	}
	if !entries[0].Amount.Equal(billing.MustParseDecimal("1050")) {
		t.Errorf("Expected 1050, got %s", entries[0].Amount)
	}
}

func TestRunPayroll_StaffRuleBeatsActivityFallback(t *testing.T) {
	// GIVEN: A per-session rule scoped to chess at 180 per attended day
	srv, store := newTestServer(t)
	enrollmentID := seedChess(t, srv)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/staff/stf-anna/rules", map[string]any{
		"staff_id":       "stf-anna",
		"activity_id":    "act-chess",
		"rate_type":      "per_session",
		"rate":           180,
		"effective_from": "2026-01-01",
	})
	requireStatus(t, resp, http.StatusCreated)
	resp.Body.Close()

	resp = doJSON(t, http.MethodPut, srv.URL+"/api/enrollments/"+enrollmentID+"/attendance/2026-02-02",
		map[string]any{"status": "present"})
	requireStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	// WHEN: Payroll runs
	resp = doJSON(t, http.MethodPost, srv.URL+"/api/payroll/run", map[string]any{
		"year": 2026, "month": 2,
	})
	requireStatus(t, resp, http.StatusOK)
	resp.Body.Close()

	// THEN: The day pays the rule's 180, not the activity's 50 percent
	entries, err := store.JournalForMonth(context.Background(), "stf-anna", 2026, time.February)
	if err != nil {
		t.Fatalf("Failed to load journal: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("Expected 1 journal entry, got %d", len(entries))
	}
	if !entries[0].Amount.Equal(billing.MustParseDecimal("180")) {
		t.Errorf("Expected 180, got %s", entries[0].Amount)
	}
}
