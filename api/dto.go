/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Activity:
    ActivityDTO, CreateActivityRequest, PriceRevisionRequest

  Student / Enrollment:
    StudentDTO, EnrollmentDTO, CreateEnrollmentRequest

  Attendance:
    MarkAttendanceRequest, AttendanceDTO, GardenAccrualDTO

  Staff / Payroll:
    StaffDTO, JournalEntryDTO, PayrollRunRequest, PayrollRunResultDTO

  Transactions:
    TransactionDTO

MONEY:
  Amounts cross the wire as JSON strings ("450.00") to avoid float
  round-trips. decimal.Decimal marshals that way natively.

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/rules.go: ActivityRulesJSON and StaffRuleJSON wire shapes
*/
package api

import (
	"github.com/shopspring/decimal"

	"github.com/lumen/tuition-engine/billing"
	"github.com/lumen/tuition-engine/factory"
)

// =============================================================================
// ACTIVITY TYPES
// =============================================================================

// ActivityDTO represents an activity in API responses.
type ActivityDTO struct {
	ID                    string                     `json:"id"`
	Name                  string                     `json:"name"`
	Category              string                     `json:"category"`
	DefaultPrice          string                     `json:"default_price"`
	TeacherPaymentPercent float64                    `json:"teacher_payment_percent,omitempty"`
	FixedTeacherRate      string                     `json:"fixed_teacher_rate,omitempty"`
	TeacherID             *string                    `json:"teacher_id,omitempty"`
	IsController          bool                       `json:"is_controller"`
	Config                *billing.ControllerConfig  `json:"config,omitempty"`
	CustomStatuses        []billing.CustomStatus     `json:"custom_statuses,omitempty"`
}

// CreateActivityRequest is the request to create or update an activity.
// Rules carries the same JSON shape the factory parses.
type CreateActivityRequest struct {
	ID                    string                    `json:"id"`
	Name                  string                    `json:"name"`
	Category              string                    `json:"category"`
	Rules                 factory.ActivityRulesJSON `json:"rules"`
	DefaultPrice          float64                   `json:"default_price,omitempty"`
	TeacherPaymentPercent float64                   `json:"teacher_payment_percent,omitempty"`
	FixedTeacherRate      float64                   `json:"fixed_teacher_rate,omitempty"`
	TeacherID             *string                   `json:"teacher_id,omitempty"`
	Config                *billing.ControllerConfig `json:"config,omitempty"`
}

// PriceRevisionRequest appends a dated revision to an activity's rules.
type PriceRevisionRequest struct {
	EffectiveFrom string                    `json:"effective_from"`
	Rules         factory.ActivityRulesJSON `json:"rules"`
}

// =============================================================================
// STUDENT / ENROLLMENT TYPES
// =============================================================================

// StudentDTO represents a student in API responses.
type StudentDTO struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// EnrollmentDTO represents a student-to-activity link.
type EnrollmentDTO struct {
	ID              string  `json:"id"`
	StudentID       string  `json:"student_id"`
	ActivityID      string  `json:"activity_id"`
	CustomPrice     *string `json:"custom_price,omitempty"`
	DiscountPercent float64 `json:"discount_percent,omitempty"`
	IsActive        bool    `json:"is_active"`
}

// CreateEnrollmentRequest is the request to enroll a student.
type CreateEnrollmentRequest struct {
	ID              string   `json:"id"`
	StudentID       string   `json:"student_id"`
	ActivityID      string   `json:"activity_id"`
	CustomPrice     *float64 `json:"custom_price,omitempty"`
	DiscountPercent float64  `json:"discount_percent,omitempty"`
	IsActive        *bool    `json:"is_active,omitempty"`
}

// =============================================================================
// ATTENDANCE TYPES
// =============================================================================

// MarkAttendanceRequest sets or updates one attendance mark.
// Status and Value are both optional; sending neither clears the mark.
type MarkAttendanceRequest struct {
	Status          *string  `json:"status,omitempty"`
	Value           *float64 `json:"value,omitempty"`
	ManualValueEdit bool     `json:"manual_value_edit,omitempty"`
}

// AttendanceDTO represents one attendance mark with its computed charge.
type AttendanceDTO struct {
	EnrollmentID    string  `json:"enrollment_id"`
	Date            string  `json:"date"`
	Status          *string `json:"status,omitempty"`
	Value           *string `json:"value,omitempty"`
	ChargedAmount   *string `json:"charged_amount,omitempty"`
	ManualValueEdit bool    `json:"manual_value_edit,omitempty"`
}

// GardenAccrualDTO is the controller accrual preview for one day.
type GardenAccrualDTO struct {
	StudentID   string `json:"student_id"`
	Date        string `json:"date"`
	Amount      string `json:"amount"`
	BaseTariff  string `json:"base_tariff"`
	FoodTariff  string `json:"food_tariff"`
	WorkingDays int    `json:"working_days"`
	Status      string `json:"status"`
}

// =============================================================================
// STAFF / PAYROLL TYPES
// =============================================================================

// StaffDTO represents a staff member.
type StaffDTO struct {
	ID         string              `json:"id"`
	Name       string              `json:"name"`
	Deductions []billing.Deduction `json:"deductions,omitempty"`
}

// CreateStaffRequest is the request to create or update a staff member.
type CreateStaffRequest struct {
	ID         string               `json:"id"`
	Name       string               `json:"name"`
	Deductions []DeductionJSON      `json:"deductions,omitempty"`
}

// DeductionJSON is one deduction entry on the wire.
type DeductionJSON struct {
	Name  string  `json:"name"`
	Type  string  `json:"type"`
	Value float64 `json:"value"`
}

// StaffRuleDTO represents one effective-dated compensation rule.
type StaffRuleDTO struct {
	ID                    string  `json:"id"`
	StaffID               string  `json:"staff_id"`
	ActivityID            *string `json:"activity_id,omitempty"`
	RateType              string  `json:"rate_type"`
	Rate                  string  `json:"rate"`
	LessonLimit           int     `json:"lesson_limit,omitempty"`
	PenaltyTriggerPercent float64 `json:"penalty_trigger_percent,omitempty"`
	PenaltyPercent        float64 `json:"penalty_percent,omitempty"`
	ExtraLessonRate       *string `json:"extra_lesson_rate,omitempty"`
	EffectiveFrom         string  `json:"effective_from"`
	EffectiveTo           *string `json:"effective_to,omitempty"`
}

// ManualRateRequest appends a manual-pay rate revision for a staff member.
type ManualRateRequest struct {
	RateType      string  `json:"rate_type"`
	Value         float64 `json:"value"`
	EffectiveFrom string  `json:"effective_from"`
}

// JournalEntryDTO represents one salary accrual.
type JournalEntryDTO struct {
	ID               string                     `json:"id"`
	StaffID          string                     `json:"staff_id"`
	ActivityID       *string                    `json:"activity_id,omitempty"`
	Date             string                     `json:"date"`
	Amount           string                     `json:"amount"`
	BaseAmount       string                     `json:"base_amount"`
	Deductions       []billing.DeductionApplied `json:"deductions,omitempty"`
	Notes            []string                   `json:"notes,omitempty"`
	IsManualOverride bool                       `json:"is_manual_override,omitempty"`
}

// OverrideJournalRequest writes a manual amount for (staff, activity, date).
type OverrideJournalRequest struct {
	ActivityID *string `json:"activity_id,omitempty"`
	Date       string  `json:"date"`
	Amount     float64 `json:"amount"`
	Notes      []string `json:"notes,omitempty"`
}

// PayrollRunRequest triggers a payroll computation for one month.
type PayrollRunRequest struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

// PayrollRunResultDTO summarizes one payroll run.
type PayrollRunResultDTO struct {
	Year            int `json:"year"`
	Month           int `json:"month"`
	EntriesWritten  int `json:"entries_written"`
	OverridesKept   int `json:"overrides_kept"`
	ActivitiesSeen  int `json:"activities_seen"`
}

// =============================================================================
// TRANSACTION TYPES
// =============================================================================

// TransactionDTO represents a financial transaction.
type TransactionDTO struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	StudentID   string `json:"student_id"`
	ActivityID  string `json:"activity_id"`
	Date        string `json:"date"`
	Amount      string `json:"amount"`
	Description string `json:"description,omitempty"`
	Auto        bool   `json:"auto"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toActivityDTO(a billing.Activity) ActivityDTO {
	dto := ActivityDTO{
		ID:                    string(a.ID),
		Name:                  a.Name,
		Category:              string(a.Category),
		DefaultPrice:          a.DefaultPrice.StringFixed(2),
		TeacherPaymentPercent: a.TeacherPaymentPercent,
		IsController:          a.IsController(),
		Config:                a.Config,
		CustomStatuses:        a.CustomStatuses,
	}
	if a.FixedTeacherRate.IsPositive() {
		dto.FixedTeacherRate = a.FixedTeacherRate.StringFixed(2)
	}
	if a.TeacherID != nil {
		s := string(*a.TeacherID)
		dto.TeacherID = &s
	}
	return dto
}

func toEnrollmentDTO(e billing.Enrollment) EnrollmentDTO {
	dto := EnrollmentDTO{
		ID:              string(e.ID),
		StudentID:       string(e.StudentID),
		ActivityID:      string(e.ActivityID),
		DiscountPercent: e.DiscountPercent,
		IsActive:        e.IsActive,
	}
	if e.CustomPrice != nil {
		s := e.CustomPrice.StringFixed(2)
		dto.CustomPrice = &s
	}
	return dto
}

func toAttendanceDTO(a billing.Attendance) AttendanceDTO {
	dto := AttendanceDTO{
		EnrollmentID:    string(a.EnrollmentID),
		Date:            a.Date.String(),
		ManualValueEdit: a.ManualValueEdit,
	}
	if a.Status != nil {
		s := string(*a.Status)
		dto.Status = &s
	}
	if a.Value != nil {
		s := a.Value.String()
		dto.Value = &s
	}
	if a.ChargedAmount != nil {
		s := a.ChargedAmount.StringFixed(2)
		dto.ChargedAmount = &s
	}
	return dto
}

func toStaffRuleDTO(r billing.StaffRule) StaffRuleDTO {
	dto := StaffRuleDTO{
		ID:                    r.ID,
		StaffID:               string(r.StaffID),
		RateType:              string(r.RateType),
		Rate:                  r.Rate.StringFixed(2),
		LessonLimit:           r.LessonLimit,
		PenaltyTriggerPercent: r.PenaltyTriggerPercent,
		PenaltyPercent:        r.PenaltyPercent,
		EffectiveFrom:         r.EffectiveFrom.String(),
	}
	if r.ActivityID != nil {
		s := string(*r.ActivityID)
		dto.ActivityID = &s
	}
	if r.ExtraLessonRate != nil {
		s := r.ExtraLessonRate.StringFixed(2)
		dto.ExtraLessonRate = &s
	}
	if r.EffectiveTo != nil {
		s := r.EffectiveTo.String()
		dto.EffectiveTo = &s
	}
	return dto
}

func toJournalEntryDTO(e billing.JournalEntry) JournalEntryDTO {
	dto := JournalEntryDTO{
		ID:               e.ID,
		StaffID:          string(e.StaffID),
		Date:             e.Date.String(),
		Amount:           e.Amount.StringFixed(2),
		BaseAmount:       e.BaseAmount.StringFixed(2),
		Deductions:       e.Deductions,
		Notes:            e.Notes,
		IsManualOverride: e.IsManualOverride,
	}
	if e.ActivityID != nil {
		s := string(*e.ActivityID)
		dto.ActivityID = &s
	}
	return dto
}

func toTransactionDTO(tx billing.Transaction) TransactionDTO {
	return TransactionDTO{
		ID:          tx.ID,
		Type:        string(tx.Type),
		StudentID:   string(tx.StudentID),
		ActivityID:  string(tx.ActivityID),
		Date:        tx.Date.String(),
		Amount:      tx.Amount.StringFixed(2),
		Description: tx.Description,
		Auto:        tx.Auto,
	}
}

func toTransactionDTOs(txs []billing.Transaction) []TransactionDTO {
	dtos := make([]TransactionDTO, len(txs))
	for i, tx := range txs {
		dtos[i] = toTransactionDTO(tx)
	}
	return dtos
}

func decimalPtr(f float64) *decimal.Decimal {
	d := decimal.NewFromFloat(f)
	return &d
}
