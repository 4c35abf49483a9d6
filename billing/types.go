/*
Package billing provides the core accrual calculation engine.

PURPOSE:
  This package contains the domain types and algorithms shared by both
  sides of the billing core: tuition charges for students and salary
  accruals for staff. An attendance mark plus a pricing configuration
  becomes a monetary charge; attendance plus a compensation rule becomes
  a salary accrual.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money helpers: decimal.Decimal with half-away-from-zero rounding
  - Status: the attendance mark vocabulary (present/sick/absent/vacation)
  - Activity/Enrollment/Attendance: the raw inputs the calculators consume
  - Staff/Deduction/JournalEntry: the payroll side of the data model
  - Transaction: the auto-generated financial record kept in lockstep
    with a charge

DESIGN PRINCIPLES:
  1. Purity: calculators are deterministic functions of their inputs
  2. Precision: decimal.Decimal everywhere money flows, never float math
  3. Degradation: malformed inputs produce "no charge" (nil), not panics
  4. Immutability: closed rule revisions are never modified

USAGE:
  amount := billing.Round2(rate.Mul(value))
  set := billing.RuleSet{"present": {Type: billing.RuleFixed, Rate: rate}}

SEE ALSO:
  - rules.go: Billing and staff compensation rule types
  - resolver.go: Effective-dated rule resolution
  - store.go: Persistence interfaces
*/
package billing

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - Decimal helpers with the billing rounding convention
// =============================================================================

// Round2 rounds a monetary value to 2 decimal places, half away from zero.
// Applied exactly once after each multiplicative step (rate x discount,
// subscription division) so rounding never compounds.
func Round2(d decimal.Decimal) decimal.Decimal { return d.Round(2) }

// ApplyDiscount multiplies an amount by (1 - percent/100) and rounds.
// A zero percent returns the amount unchanged (already rounded by caller).
func ApplyDiscount(amount decimal.Decimal, discountPercent float64) decimal.Decimal {
	if discountPercent == 0 {
		return Round2(amount)
	}
	factor := decimal.NewFromFloat(1).Sub(decimal.NewFromFloat(discountPercent).Div(decimal.NewFromInt(100)))
	return Round2(amount.Mul(factor))
}

// PercentOf returns value x percent/100, rounded.
func PercentOf(value decimal.Decimal, percent decimal.Decimal) decimal.Decimal {
	return Round2(value.Mul(percent).Div(decimal.NewFromInt(100)))
}

func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type StudentID string
type ActivityID string
type EnrollmentID string
type StaffID string

// =============================================================================
// STATUS - Attendance mark vocabulary
// =============================================================================

// Status is an attendance mark. Beyond the built-in values, an activity
// may define up to two custom statuses whose IDs are used as Status
// values directly (they key into the activity's RuleSet the same way).
type Status string

const (
	StatusPresent  Status = "present"
	StatusSick     Status = "sick"
	StatusAbsent   Status = "absent"
	StatusVacation Status = "vacation"
)

// ValueKey is the RuleSet key for hourly "value" line items: attendance
// rows that carry a free numeric input instead of (or alongside) a status.
const ValueKey = "value"

func (s Status) IsPresent() bool { return s == StatusPresent }

// IsBuiltin reports whether the status is one of the fixed marks (as
// opposed to an activity-defined custom status).
func (s Status) IsBuiltin() bool {
	switch s {
	case StatusPresent, StatusSick, StatusAbsent, StatusVacation:
		return true
	}
	return false
}

// =============================================================================
// ACTIVITY - Billing rule owner
// =============================================================================

type Category string

const (
	CategoryIncome  Category = "income"
	CategoryExpense Category = "expense"
)

// Activity owns a set of billing rules (optionally revised over time via
// PriceHistory) plus the teacher-compensation fallbacks used when no
// staff-specific rule applies.
type Activity struct {
	ID       ActivityID
	Name     string
	Category Category

	// Rules is the current rule set; History, when non-empty, supersedes
	// it for date-aware lookups (see RulesOn).
	Rules   RuleSet
	History PriceHistory

	CustomStatuses []CustomStatus

	// DefaultPrice is the legacy per-mark fallback when no rule matches.
	DefaultPrice decimal.Decimal

	// Teacher compensation fallbacks (used when no staff rule resolves).
	// FixedTeacherRate, when positive, takes priority over the percent.
	TeacherPaymentPercent float64
	FixedTeacherRate      decimal.Decimal

	// TeacherID links the activity to the staff member paid for it.
	TeacherID *StaffID

	// Config, when set, marks this activity as a controller deriving a
	// daily amount from referenced base and food tariff activities.
	Config *ControllerConfig
}

// ControllerConfig references other activities by id. A lightweight graph
// relation: the controller bills nothing itself, it derives from these.
type ControllerConfig struct {
	BaseTariffIDs []ActivityID `json:"base_tariff_ids"`
	FoodTariffIDs []ActivityID `json:"food_tariff_ids"`
}

func (a Activity) IsController() bool {
	return a.Config != nil && len(a.Config.BaseTariffIDs) > 0
}

// RulesOn returns the rule set effective on the given date: the price
// history revision active on that date, falling back to the current rules.
func (a Activity) RulesOn(date Date) RuleSet {
	if rules, ok := a.History.RulesOn(date); ok {
		return rules
	}
	return a.Rules
}

// =============================================================================
// STUDENT / ENROLLMENT - Student-to-activity link with price overrides
// =============================================================================

type Student struct {
	ID   StudentID
	Name string
}

type Enrollment struct {
	ID         EnrollmentID
	StudentID  StudentID
	ActivityID ActivityID

	// CustomPrice overrides all billing rules. Zero is a valid override
	// (free attendance), hence the pointer.
	CustomPrice *decimal.Decimal

	// DiscountPercent (0-100) applies after CustomPrice or the computed
	// rule amount.
	DiscountPercent float64

	IsActive bool
}

// =============================================================================
// ATTENDANCE - One row per (enrollment, date)
// =============================================================================

type Attendance struct {
	EnrollmentID EnrollmentID
	Date         Date

	// Status and Value are both optional: hourly-type rules use Value,
	// everything else uses Status. Both nil means the mark was cleared.
	Status *Status
	Value  *decimal.Decimal

	// ChargedAmount is the persisted calculation result. Nil = no charge.
	ChargedAmount *decimal.Decimal

	// ManualValueEdit distinguishes a user-typed override from a system
	// computation; recomputation must not clobber it.
	ManualValueEdit bool
}

// =============================================================================
// STAFF - Payroll side
// =============================================================================

type Staff struct {
	ID   StaffID
	Name string

	// Deductions are applied in order to every computed base salary.
	Deductions []Deduction
}

type DeductionType string

const (
	DeductionPercent DeductionType = "percent"
	DeductionFixed   DeductionType = "fixed"
)

// Deduction is one entry of the ordered list applied to a base salary:
// percent of the running total, or a fixed subtraction.
type Deduction struct {
	Name  string
	Type  DeductionType
	Value decimal.Decimal
}

// DeductionApplied is the audit-trail record of one deduction step.
type DeductionApplied struct {
	Name   string          `json:"name"`
	Type   DeductionType   `json:"type"`
	Value  decimal.Decimal `json:"value"`
	Amount decimal.Decimal `json:"amount"` // the monetary amount subtracted
}

// JournalEntry is the persisted result of a salary calculation per
// (staff, activity|nil, date).
type JournalEntry struct {
	ID         string
	StaffID    StaffID
	ActivityID *ActivityID
	Date       Date

	Amount     decimal.Decimal // net, after deductions
	BaseAmount decimal.Decimal
	Deductions []DeductionApplied
	Notes      []string

	// IsManualOverride marks an admin-entered amount; payroll runs must
	// leave it untouched.
	IsManualOverride bool
}

// =============================================================================
// TRANSACTION - Auto-generated financial record
// =============================================================================

type TransactionType string

const (
	TxIncome  TransactionType = "income"
	TxExpense TransactionType = "expense"
)

// Transaction is the financial record kept in 1:1 correspondence with a
// non-zero attendance charge. At most one auto-generated income
// transaction exists per (student, activity, date); it is created,
// updated, and deleted in lockstep with the charge.
type Transaction struct {
	ID          string
	Type        TransactionType
	StudentID   StudentID
	ActivityID  ActivityID
	Amount      decimal.Decimal
	Date        Date
	Description string

	// Auto marks system-generated rows (charge lockstep) as opposed to
	// manually recorded payments.
	Auto bool
}
