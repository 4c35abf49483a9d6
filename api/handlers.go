/*
handlers.go - HTTP API handlers for the tuition billing engine

PURPOSE:
  Exposes the billing and payroll engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Activities:
    GET    /api/activities                    List all activities
    POST   /api/activities                    Create activity from JSON rules
    GET    /api/activities/{id}               Get activity details
    POST   /api/activities/{id}/revisions     Append dated rule revision
    GET    /api/activities/{id}/attendance    Month attendance journal
    GET    /api/activities/{id}/garden        Controller accrual preview

  Students:
    GET    /api/students                      List all students
    POST   /api/students                      Create student
    GET    /api/students/{id}/transactions    Financial history

  Enrollments:
    POST   /api/enrollments                   Enroll a student
    PUT    /api/enrollments/{id}/attendance/{date}  Mark attendance
    DELETE /api/enrollments/{id}/attendance/{date}  Delete the mark

  Staff:
    GET    /api/staff                         List staff
    POST   /api/staff                         Create staff member
    POST   /api/staff/{id}/rules              Append compensation rule
    GET    /api/staff/{id}/rules              Rule history
    POST   /api/staff/{id}/manual-rates       Append manual pay rate
    GET    /api/staff/{id}/journal            Month salary journal
    PUT    /api/staff/{id}/journal            Manual journal override

  Payroll:
    POST   /api/payroll/run                   Recompute a month's journal

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input
  3. Call domain logic (calculators, aggregator, store)
  4. Serialize response
  5. Handle errors

CHARGE LOCKSTEP:
  Marking attendance writes the charge AND maintains the auto-generated
  income transaction in the same handler: non-nil non-zero charge means
  SetAutoIncome, anything else means ClearAutoIncome. A failure in the
  transaction step is logged and surfaced as 500; the attendance row
  itself has already been written and a retry converges.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: Conflict (manual override protection)
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - scheduler.go: Automated month-end payroll runs
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/lumen/tuition-engine/billing"
	"github.com/lumen/tuition-engine/factory"
	"github.com/lumen/tuition-engine/payroll"
	"github.com/lumen/tuition-engine/tuition"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store       billing.Store
	RuleFactory *factory.RuleFactory
}

// NewHandler creates a new handler with the given store.
func NewHandler(store billing.Store) *Handler {
	return &Handler{
		Store:       store,
		RuleFactory: factory.NewRuleFactory(),
	}
}

// =============================================================================
// ACTIVITY HANDLERS
// =============================================================================

// ListActivities returns all activities.
func (h *Handler) ListActivities(w http.ResponseWriter, r *http.Request) {
	activities, err := h.Store.Activities(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list activities", err)
		return
	}

	dtos := make([]ActivityDTO, len(activities))
	for i, a := range activities {
		dtos[i] = toActivityDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetActivity returns a single activity.
func (h *Handler) GetActivity(w http.ResponseWriter, r *http.Request) {
	id := billing.ActivityID(chi.URLParam(r, "id"))

	a, err := h.Store.Activity(r.Context(), id)
	if err != nil {
		writeStoreError(w, "Failed to get activity", err)
		return
	}
	writeJSON(w, http.StatusOK, toActivityDTO(*a))
}

// CreateActivity creates or updates an activity from its JSON rule config.
func (h *Handler) CreateActivity(w http.ResponseWriter, r *http.Request) {
	var req CreateActivityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "Activity id is required", nil)
		return
	}

	rulesJSON, err := json.Marshal(req.Rules)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid rules", err)
		return
	}
	rules, customStatuses, err := h.RuleFactory.ParseRuleSet(rulesJSON)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid rules", err)
		return
	}

	ctx := r.Context()
	if req.Config != nil {
		if err := h.validateControllerConfig(ctx, billing.ActivityID(req.ID), req.Config); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid controller config", err)
			return
		}
	}

	category := billing.CategoryIncome
	if req.Category == string(billing.CategoryExpense) {
		category = billing.CategoryExpense
	}

	a := billing.Activity{
		ID:                    billing.ActivityID(req.ID),
		Name:                  req.Name,
		Category:              category,
		Rules:                 rules,
		CustomStatuses:        customStatuses,
		DefaultPrice:          decimal.NewFromFloat(req.DefaultPrice),
		TeacherPaymentPercent: req.TeacherPaymentPercent,
		FixedTeacherRate:      decimal.NewFromFloat(req.FixedTeacherRate),
		Config:                req.Config,
	}
	if req.TeacherID != nil {
		tid := billing.StaffID(*req.TeacherID)
		a.TeacherID = &tid
	}

	if err := h.Store.SaveActivity(ctx, a); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save activity", err)
		return
	}
	writeJSON(w, http.StatusCreated, toActivityDTO(a))
}

// validateControllerConfig checks the full controller graph with the new
// config in place: no self-references, no cycles.
func (h *Handler) validateControllerConfig(ctx context.Context, id billing.ActivityID, cfg *billing.ControllerConfig) error {
	activities, err := h.Store.Activities(ctx)
	if err != nil {
		return err
	}
	configs := make(map[billing.ActivityID]*billing.ControllerConfig, len(activities)+1)
	for _, a := range activities {
		if a.Config != nil {
			configs[a.ID] = a.Config
		}
	}
	configs[id] = cfg
	return factory.ValidateControllerGraph(configs)
}

// AddPriceRevision appends a dated rule revision to an activity.
func (h *Handler) AddPriceRevision(w http.ResponseWriter, r *http.Request) {
	id := billing.ActivityID(chi.URLParam(r, "id"))

	var req PriceRevisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	from, err := billing.ParseDate(req.EffectiveFrom)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid effective_from (use YYYY-MM-DD)", err)
		return
	}

	rulesJSON, err := json.Marshal(req.Rules)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid rules", err)
		return
	}
	rules, _, err := h.RuleFactory.ParseRuleSet(rulesJSON)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid rules", err)
		return
	}

	rev := billing.PriceRevision{Rules: rules, EffectiveFrom: from}
	if err := h.Store.AddPriceRevision(r.Context(), id, rev); err != nil {
		writeStoreError(w, "Failed to add revision", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"activity_id":    string(id),
		"effective_from": from.String(),
	})
}

// GetMonthAttendance returns the attendance journal for an activity month.
func (h *Handler) GetMonthAttendance(w http.ResponseWriter, r *http.Request) {
	id := billing.ActivityID(chi.URLParam(r, "id"))
	year, month, err := parseMonth(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid year/month", err)
		return
	}

	marks, err := h.Store.AttendanceForMonth(r.Context(), id, year, month)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load attendance", err)
		return
	}

	dtos := make([]AttendanceDTO, len(marks))
	for i, m := range marks {
		dtos[i] = toAttendanceDTO(m)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// STUDENT HANDLERS
// =============================================================================

// ListStudents returns all students.
func (h *Handler) ListStudents(w http.ResponseWriter, r *http.Request) {
	students, err := h.Store.Students(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list students", err)
		return
	}

	dtos := make([]StudentDTO, len(students))
	for i, s := range students {
		dtos[i] = StudentDTO{ID: string(s.ID), Name: s.Name}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateStudent creates a new student.
func (h *Handler) CreateStudent(w http.ResponseWriter, r *http.Request) {
	var req StudentDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "Student id is required", nil)
		return
	}

	s := billing.Student{ID: billing.StudentID(req.ID), Name: req.Name}
	if err := h.Store.SaveStudent(r.Context(), s); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save student", err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

// GetStudentTransactions returns the financial history for a student.
// Optional from/to query params bound the range (defaults: current month).
func (h *Handler) GetStudentTransactions(w http.ResponseWriter, r *http.Request) {
	id := billing.StudentID(chi.URLParam(r, "id"))

	from, to := billing.MonthOf(billing.Today())
	if q := r.URL.Query().Get("from"); q != "" {
		d, err := billing.ParseDate(q)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid from date", err)
			return
		}
		from = d
	}
	if q := r.URL.Query().Get("to"); q != "" {
		d, err := billing.ParseDate(q)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid to date", err)
			return
		}
		to = d
	}

	txs, err := h.Store.Transactions(r.Context(), id, from, to)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get transactions", err)
		return
	}
	writeJSON(w, http.StatusOK, toTransactionDTOs(txs))
}

// =============================================================================
// ENROLLMENT HANDLERS
// =============================================================================

// CreateEnrollment enrolls a student into an activity.
func (h *Handler) CreateEnrollment(w http.ResponseWriter, r *http.Request) {
	var req CreateEnrollmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" || req.StudentID == "" || req.ActivityID == "" {
		writeError(w, http.StatusBadRequest, "id, student_id and activity_id are required", nil)
		return
	}

	ctx := r.Context()
	if _, err := h.Store.Student(ctx, billing.StudentID(req.StudentID)); err != nil {
		writeStoreError(w, "Unknown student", err)
		return
	}
	if _, err := h.Store.Activity(ctx, billing.ActivityID(req.ActivityID)); err != nil {
		writeStoreError(w, "Unknown activity", err)
		return
	}

	e := billing.Enrollment{
		ID:              billing.EnrollmentID(req.ID),
		StudentID:       billing.StudentID(req.StudentID),
		ActivityID:      billing.ActivityID(req.ActivityID),
		DiscountPercent: req.DiscountPercent,
		IsActive:        true,
	}
	if req.CustomPrice != nil {
		e.CustomPrice = decimalPtr(*req.CustomPrice)
	}
	if req.IsActive != nil {
		e.IsActive = *req.IsActive
	}

	if err := h.Store.SaveEnrollment(ctx, e); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save enrollment", err)
		return
	}
	writeJSON(w, http.StatusCreated, toEnrollmentDTO(e))
}

// =============================================================================
// ATTENDANCE HANDLERS
// =============================================================================

// MarkAttendance sets one attendance mark, computes its charge, and keeps
// the auto-generated income transaction in lockstep with it.
func (h *Handler) MarkAttendance(w http.ResponseWriter, r *http.Request) {
	enrollmentID := billing.EnrollmentID(chi.URLParam(r, "id"))
	date, err := billing.ParseDate(chi.URLParam(r, "date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date (use YYYY-MM-DD)", err)
		return
	}

	var req MarkAttendanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ctx := r.Context()
	enrollment, err := h.Store.Enrollment(ctx, enrollmentID)
	if err != nil {
		writeStoreError(w, "Unknown enrollment", err)
		return
	}
	activity, err := h.Store.Activity(ctx, enrollment.ActivityID)
	if err != nil {
		writeStoreError(w, "Unknown activity", err)
		return
	}

	mark := billing.Attendance{
		EnrollmentID:    enrollmentID,
		Date:            date,
		ManualValueEdit: req.ManualValueEdit,
	}
	if req.Status != nil {
		s := billing.Status(*req.Status)
		mark.Status = &s
	}
	if req.Value != nil {
		mark.Value = decimalPtr(*req.Value)
	}

	charge, err := h.computeCharge(ctx, *enrollment, *activity, mark)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to compute charge", err)
		return
	}
	mark.ChargedAmount = charge

	if _, err := h.Store.UpsertAttendance(ctx, mark); err != nil {
		writeStoreError(w, "Failed to save attendance", err)
		return
	}

	// Lockstep: the auto transaction mirrors the non-zero charge.
	if charge != nil && !charge.IsZero() {
		err = h.Store.SetAutoIncome(ctx, enrollment.StudentID, enrollment.ActivityID, date, *charge, activity.Name)
	} else {
		err = h.Store.ClearAutoIncome(ctx, enrollment.StudentID, enrollment.ActivityID, date)
	}
	if err != nil {
		log.Printf("[API] charge transaction sync failed for %s/%s: %v", enrollmentID, date, err)
		writeError(w, http.StatusInternalServerError, "Failed to sync transaction", err)
		return
	}

	writeJSON(w, http.StatusOK, toAttendanceDTO(mark))
}

// computeCharge picks the calculator for the activity type and returns
// the charge, nil meaning no charge.
func (h *Handler) computeCharge(ctx context.Context, e billing.Enrollment, a billing.Activity, mark billing.Attendance) (*decimal.Decimal, error) {
	if mark.Status == nil && mark.Value == nil {
		return nil, nil
	}

	if a.IsController() {
		if mark.Status == nil {
			return nil, nil
		}
		enrollments, err := h.Store.EnrollmentsByStudent(ctx, e.StudentID)
		if err != nil {
			return nil, err
		}
		activities, err := h.activityMap(ctx)
		if err != nil {
			return nil, err
		}
		acc := tuition.DailyAccrual(e.StudentID, mark.Date, a, enrollments, activities, *mark.Status)
		if acc == nil {
			return nil, nil
		}
		return &acc.Amount, nil
	}

	return tuition.ChargeForMark(tuition.ChargeInput{
		Date:            mark.Date,
		Status:          mark.Status,
		Value:           mark.Value,
		CustomPrice:     e.CustomPrice,
		DiscountPercent: e.DiscountPercent,
		Rules:           a.RulesOn(mark.Date),
	}), nil
}

func (h *Handler) activityMap(ctx context.Context) (map[billing.ActivityID]billing.Activity, error) {
	activities, err := h.Store.Activities(ctx)
	if err != nil {
		return nil, err
	}
	m := make(map[billing.ActivityID]billing.Activity, len(activities))
	for _, a := range activities {
		m[a.ID] = a
	}
	return m, nil
}

// ClearAttendance deletes a mark and retracts its linked transaction.
func (h *Handler) ClearAttendance(w http.ResponseWriter, r *http.Request) {
	enrollmentID := billing.EnrollmentID(chi.URLParam(r, "id"))
	date, err := billing.ParseDate(chi.URLParam(r, "date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date (use YYYY-MM-DD)", err)
		return
	}

	affected, err := h.Store.DeleteAttendance(r.Context(), enrollmentID, date)
	if err != nil {
		writeStoreError(w, "Failed to delete attendance", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"deleted":  true,
		"affected": len(affected),
	})
}

// GetGardenAccrual previews the controller accrual for one student-day.
// GET /api/activities/{id}/garden?student_id=S&date=YYYY-MM-DD&status=present
func (h *Handler) GetGardenAccrual(w http.ResponseWriter, r *http.Request) {
	id := billing.ActivityID(chi.URLParam(r, "id"))
	studentID := billing.StudentID(r.URL.Query().Get("student_id"))
	if studentID == "" {
		writeError(w, http.StatusBadRequest, "student_id is required", nil)
		return
	}
	date, err := billing.ParseDate(r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date (use YYYY-MM-DD)", err)
		return
	}
	status := billing.StatusPresent
	if q := r.URL.Query().Get("status"); q != "" {
		status = billing.Status(q)
	}

	ctx := r.Context()
	controller, err := h.Store.Activity(ctx, id)
	if err != nil {
		writeStoreError(w, "Unknown activity", err)
		return
	}
	if !controller.IsController() {
		writeError(w, http.StatusBadRequest, "Activity is not a controller", nil)
		return
	}

	enrollments, err := h.Store.EnrollmentsByStudent(ctx, studentID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load enrollments", err)
		return
	}
	activities, err := h.activityMap(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load activities", err)
		return
	}

	acc := tuition.DailyAccrual(studentID, date, *controller, enrollments, activities, status)
	if acc == nil {
		writeError(w, http.StatusNotFound, "No accrual for this student-day", nil)
		return
	}

	writeJSON(w, http.StatusOK, GardenAccrualDTO{
		StudentID:   string(studentID),
		Date:        date.String(),
		Amount:      acc.Amount.StringFixed(2),
		BaseTariff:  acc.BaseTariff.StringFixed(2),
		FoodTariff:  acc.FoodTariff.StringFixed(2),
		WorkingDays: acc.WorkingDays,
		Status:      string(acc.Status),
	})
}

// =============================================================================
// STAFF HANDLERS
// =============================================================================

// ListStaff returns all staff members.
func (h *Handler) ListStaff(w http.ResponseWriter, r *http.Request) {
	staff, err := h.Store.AllStaff(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list staff", err)
		return
	}

	dtos := make([]StaffDTO, len(staff))
	for i, s := range staff {
		dtos[i] = StaffDTO{ID: string(s.ID), Name: s.Name, Deductions: s.Deductions}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateStaff creates or updates a staff member.
func (h *Handler) CreateStaff(w http.ResponseWriter, r *http.Request) {
	var req CreateStaffRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "Staff id is required", nil)
		return
	}

	s := billing.Staff{ID: billing.StaffID(req.ID), Name: req.Name}
	for _, d := range req.Deductions {
		dt := billing.DeductionType(d.Type)
		if dt != billing.DeductionPercent && dt != billing.DeductionFixed {
			writeError(w, http.StatusBadRequest, "Invalid deduction type: "+d.Type, nil)
			return
		}
		s.Deductions = append(s.Deductions, billing.Deduction{
			Name:  d.Name,
			Type:  dt,
			Value: decimal.NewFromFloat(d.Value),
		})
	}

	if err := h.Store.SaveStaff(r.Context(), s); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save staff", err)
		return
	}
	writeJSON(w, http.StatusCreated, StaffDTO{ID: string(s.ID), Name: s.Name, Deductions: s.Deductions})
}

// AddStaffRule appends a compensation rule; the store closes the
// previously open rule with the same scope.
func (h *Handler) AddStaffRule(w http.ResponseWriter, r *http.Request) {
	id := billing.StaffID(chi.URLParam(r, "id"))

	body := json.RawMessage{}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	rule, err := h.RuleFactory.ParseStaffRule(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid staff rule", err)
		return
	}
	rule.StaffID = id

	if err := h.Store.AddStaffRule(r.Context(), rule); err != nil {
		writeStoreError(w, "Failed to add staff rule", err)
		return
	}
	writeJSON(w, http.StatusCreated, toStaffRuleDTO(rule))
}

// ListStaffRules returns a staff member's full rule history.
func (h *Handler) ListStaffRules(w http.ResponseWriter, r *http.Request) {
	id := billing.StaffID(chi.URLParam(r, "id"))

	rules, err := h.Store.StaffRules(r.Context(), id)
	if err != nil {
		writeStoreError(w, "Failed to list staff rules", err)
		return
	}

	dtos := make([]StaffRuleDTO, len(rules))
	for i, rule := range rules {
		dtos[i] = toStaffRuleDTO(rule)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// AddManualRate appends a manual pay rate revision.
func (h *Handler) AddManualRate(w http.ResponseWriter, r *http.Request) {
	id := billing.StaffID(chi.URLParam(r, "id"))

	var req ManualRateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	from, err := billing.ParseDate(req.EffectiveFrom)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid effective_from (use YYYY-MM-DD)", err)
		return
	}

	rt := billing.ManualRateType(req.RateType)
	switch rt {
	case billing.ManualHourly, billing.ManualPerSession, billing.ManualPerWorkingDay:
	default:
		writeError(w, http.StatusBadRequest, "Invalid rate_type", nil)
		return
	}

	rev := billing.ManualRateRevision{
		StaffID:       id,
		RateType:      rt,
		Value:         decimal.NewFromFloat(req.Value),
		EffectiveFrom: from,
	}
	if err := h.Store.AddManualRate(r.Context(), rev); err != nil {
		writeStoreError(w, "Failed to add manual rate", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"staff_id":       string(id),
		"rate_type":      string(rt),
		"effective_from": from.String(),
	})
}

// GetStaffJournal returns a month of salary accruals.
func (h *Handler) GetStaffJournal(w http.ResponseWriter, r *http.Request) {
	id := billing.StaffID(chi.URLParam(r, "id"))
	year, month, err := parseMonth(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid year/month", err)
		return
	}

	entries, err := h.Store.JournalForMonth(r.Context(), id, year, month)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load journal", err)
		return
	}

	dtos := make([]JournalEntryDTO, len(entries))
	total := decimal.Zero
	for i, e := range entries {
		dtos[i] = toJournalEntryDTO(e)
		total = total.Add(e.Amount)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": dtos,
		"total":   total.StringFixed(2),
	})
}

// OverrideJournal writes a manual amount for (staff, activity, date).
// Manual entries survive subsequent payroll recomputation.
func (h *Handler) OverrideJournal(w http.ResponseWriter, r *http.Request) {
	id := billing.StaffID(chi.URLParam(r, "id"))

	var req OverrideJournalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	date, err := billing.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date (use YYYY-MM-DD)", err)
		return
	}

	amount := billing.Round2(decimal.NewFromFloat(req.Amount))
	entry := billing.JournalEntry{
		StaffID:          id,
		Date:             date,
		Amount:           amount,
		BaseAmount:       amount,
		Notes:            req.Notes,
		IsManualOverride: true,
	}
	if req.ActivityID != nil {
		aid := billing.ActivityID(*req.ActivityID)
		entry.ActivityID = &aid
	}

	if err := h.Store.UpsertJournalEntry(r.Context(), entry); err != nil {
		writeStoreError(w, "Failed to save journal entry", err)
		return
	}
	writeJSON(w, http.StatusOK, toJournalEntryDTO(entry))
}

// =============================================================================
// PAYROLL RUN
// =============================================================================

// RunPayroll recomputes the salary journal for one month across all
// activities with an assigned teacher.
func (h *Handler) RunPayroll(w http.ResponseWriter, r *http.Request) {
	var req PayrollRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Month < 1 || req.Month > 12 || req.Year < 2000 {
		writeError(w, http.StatusBadRequest, "Invalid year/month", nil)
		return
	}

	result, err := h.runPayroll(r.Context(), req.Year, time.Month(req.Month))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Payroll run failed", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// manualTally collects the per-staff attendance volumes that back the
// session and hourly manual rate types.
type manualTally struct {
	sessions int
	hours    decimal.Decimal
}

// runPayroll is the shared implementation behind the endpoint and the
// scheduler. Month-scoped rules (subscription, per_student, fixed) run
// through one aggregator shared across activities, so a global rule
// charges once per month, not once per activity; days without a
// resolving staff rule fall back to the activity's teacher-payment
// settings. Staff on manual rates get a month-end entry derived from
// the rate type (working days, sessions taught, or hours).
func (h *Handler) runPayroll(ctx context.Context, year int, month time.Month) (PayrollRunResultDTO, error) {
	result := PayrollRunResultDTO{Year: year, Month: int(month)}

	activities, err := h.Store.Activities(ctx)
	if err != nil {
		return result, err
	}
	students, err := h.Store.Students(ctx)
	if err != nil {
		return result, err
	}
	studentNames := make(map[billing.StudentID]string, len(students))
	for _, s := range students {
		studentNames[s.ID] = s.Name
	}

	staffRules := make(map[billing.StaffID][]billing.StaffRule)
	staffMembers := make(map[billing.StaffID]billing.Staff)
	loadStaff := func(id billing.StaffID) error {
		if _, ok := staffMembers[id]; ok {
			return nil
		}
		s, err := h.Store.Staff(ctx, id)
		if err != nil {
			return err
		}
		rules, err := h.Store.StaffRules(ctx, id)
		if err != nil {
			return err
		}
		staffMembers[id] = *s
		staffRules[id] = rules
		return nil
	}

	agg := payroll.NewAggregator()
	tallies := make(map[billing.StaffID]*manualTally)

	for _, activity := range activities {
		if activity.TeacherID == nil || activity.IsController() {
			continue
		}
		teacherID := *activity.TeacherID
		if err := loadStaff(teacherID); err != nil {
			if billing.IsNotFound(err) {
				continue
			}
			return result, err
		}
		result.ActivitiesSeen++

		written, kept, err := h.runActivityPayroll(ctx, agg, tallies, activity, teacherID,
			staffMembers[teacherID], staffRules[teacherID], studentNames, year, month)
		if err != nil {
			return result, err
		}
		result.EntriesWritten += written
		result.OverridesKept += kept
	}

	written, kept, err := h.runManualRatePayroll(ctx, tallies, year, month)
	if err != nil {
		return result, err
	}
	result.EntriesWritten += written
	result.OverridesKept += kept

	return result, nil
}

// runManualRatePayroll writes one month-end journal entry per staff
// member on an active manual rate. per_working_day pays regardless of
// attendance; per_session and hourly pay from the attendance volumes
// tallied during the activity pass.
func (h *Handler) runManualRatePayroll(ctx context.Context, tallies map[billing.StaffID]*manualTally, year int, month time.Month) (written, kept int, err error) {
	staff, err := h.Store.AllStaff(ctx)
	if err != nil {
		return 0, 0, err
	}

	end := billing.EndOfMonth(year, month)
	workdays := billing.PayrollWorkingDays(end, billing.NoHolidays{})

	for _, member := range staff {
		rates, err := h.Store.ManualRates(ctx, member.ID)
		if err != nil {
			return written, kept, err
		}
		rate := billing.ResolveManualRate(rates, end)
		if rate == nil {
			continue
		}

		var base decimal.Decimal
		switch rate.RateType {
		case billing.ManualPerWorkingDay:
			base = rate.Value.Mul(decimal.NewFromInt(int64(workdays)))
		case billing.ManualPerSession:
			if t := tallies[member.ID]; t != nil {
				base = rate.Value.Mul(decimal.NewFromInt(int64(t.sessions)))
			}
		case billing.ManualHourly:
			if t := tallies[member.ID]; t != nil {
				base = rate.Value.Mul(t.hours)
			}
		}
		base = billing.Round2(base)
		if !base.IsPositive() {
			continue
		}

		applied, final := payroll.ApplyDeductions(base, member.Deductions)
		entry := billing.JournalEntry{
			StaffID:    member.ID,
			Date:       end,
			Amount:     final,
			BaseAmount: base,
			Deductions: applied,
			Notes:      []string{"manual rate: " + string(rate.RateType)},
		}
		err = h.Store.UpsertJournalEntry(ctx, entry)
		if errors.Is(err, billing.ErrManualOverride) {
			kept++
			continue
		}
		if err != nil {
			return written, kept, err
		}
		written++
	}
	return written, kept, nil
}

func (h *Handler) runActivityPayroll(
	ctx context.Context,
	agg *payroll.Aggregator,
	tallies map[billing.StaffID]*manualTally,
	activity billing.Activity,
	teacherID billing.StaffID,
	teacher billing.Staff,
	rules []billing.StaffRule,
	studentNames map[billing.StudentID]string,
	year int,
	month time.Month,
) (written, kept int, err error) {
	marks, err := h.Store.AttendanceForMonth(ctx, activity.ID, year, month)
	if err != nil {
		return 0, 0, err
	}
	if len(marks) == 0 {
		return 0, 0, nil
	}

	enrollments, err := h.Store.EnrollmentsByActivity(ctx, activity.ID)
	if err != nil {
		return 0, 0, err
	}
	enrollmentStudent := make(map[billing.EnrollmentID]billing.StudentID, len(enrollments))
	for _, e := range enrollments {
		enrollmentStudent[e.ID] = e.StudentID
	}

	activityID := activity.ID
	resolve := func(_ billing.StaffID, date billing.Date) *billing.StaffRule {
		return billing.ResolveStaffRule(rules, date, &activityID)
	}

	var records []payroll.AttendanceRecord
	type fallbackMark struct {
		date   billing.Date
		status *billing.Status
		value  *decimal.Decimal
	}
	var fallbacks []fallbackMark

	tally, ok := tallies[teacherID]
	if !ok {
		tally = &manualTally{hours: decimal.Zero}
		tallies[teacherID] = tally
	}
	sessionDates := make(map[billing.Date]bool)

	for _, m := range marks {
		studentID, ok := enrollmentStudent[m.EnrollmentID]
		if !ok {
			continue
		}
		status := billing.StatusPresent
		if m.Status != nil {
			status = *m.Status
		} else if m.Value == nil {
			continue
		}

		if status.IsPresent() {
			sessionDates[m.Date.Normalized()] = true
			if m.Value != nil {
				tally.hours = tally.hours.Add(*m.Value)
			}
		}

		if resolve(teacherID, m.Date) != nil {
			records = append(records, payroll.AttendanceRecord{
				StaffID:     teacherID,
				StudentID:   studentID,
				StudentName: studentNames[studentID],
				Date:        m.Date,
				Status:      status,
				Value:       m.Value,
			})
			continue
		}
		if status.IsPresent() {
			fallbacks = append(fallbacks, fallbackMark{date: m.Date, status: m.Status, value: m.Value})
		}
	}

	tally.sessions += len(sessionDates)

	accruals := agg.Aggregate(records, resolve)
	days := accruals[teacherID]
	if days == nil {
		days = make(map[billing.Date]*payroll.DayAccrual)
	}

	// Activity fallback for days no staff rule covers.
	for _, f := range fallbacks {
		res := payroll.Salary(payroll.SalaryInput{
			Staff:            teacher,
			Activity:         &activity,
			Date:             f.date,
			AttendanceValue:  f.value,
			AttendanceStatus: f.status,
			ActivityRules:    activity.RulesOn(f.date),
		})
		if res == nil {
			continue
		}
		acc, ok := days[f.date.Normalized()]
		if !ok {
			acc = &payroll.DayAccrual{Amount: decimal.Zero}
			days[f.date.Normalized()] = acc
		}
		acc.Amount = billing.Round2(acc.Amount.Add(res.BaseAmount))
		acc.Notes = append(acc.Notes, "activity rate")
	}

	// Deterministic write order.
	dates := make([]billing.Date, 0, len(days))
	for d := range days {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	for _, d := range dates {
		acc := days[d]
		if !acc.Amount.IsPositive() {
			continue
		}
		applied, final := payroll.ApplyDeductions(acc.Amount, teacher.Deductions)
		entry := billing.JournalEntry{
			StaffID:    teacherID,
			ActivityID: &activityID,
			Date:       d,
			Amount:     final,
			BaseAmount: acc.Amount,
			Deductions: applied,
			Notes:      acc.Notes,
		}
		err := h.Store.UpsertJournalEntry(ctx, entry)
		if errors.Is(err, billing.ErrManualOverride) {
			kept++
			continue
		}
		if err != nil {
			return written, kept, err
		}
		written++
	}
	return written, kept, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func parseMonth(r *http.Request) (int, time.Month, error) {
	year, err := strconv.Atoi(r.URL.Query().Get("year"))
	if err != nil {
		return 0, 0, err
	}
	m, err := strconv.Atoi(r.URL.Query().Get("month"))
	if err != nil {
		return 0, 0, err
	}
	if m < 1 || m > 12 {
		return 0, 0, errors.New("month out of range")
	}
	return year, time.Month(m), nil
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

// writeStoreError maps domain sentinel errors to HTTP statuses.
func writeStoreError(w http.ResponseWriter, message string, err error) {
	switch {
	case billing.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case errors.Is(err, billing.ErrManualOverride):
		writeError(w, http.StatusConflict, message, err)
	case billing.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}
