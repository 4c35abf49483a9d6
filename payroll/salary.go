/*
Package payroll implements the staff-side accrual calculators.

PURPOSE:
  Turns attendance into staff salary accruals. Two calculators live here:
  the single-date salary calculator (Salary), which resolves one day's
  base pay and runs the deduction chain, and the monthly subscription
  aggregator (aggregate.go), which applies subscription semantics across
  a whole month of attendance.

PRIORITY ORDER for one date:
  1. A resolved staff-specific rule (fixed / percent / per_session);
     subscription and per_student rules are month-scoped and handled by
     the aggregator, never here
  2. The activity fallback: a charge value derived from the activity's
     own billing rules, paid flat (fixed teacher rate, takes priority) or
     as a percentage (teacher payment percent)
  3. Nothing - no salary is recorded

  A base amount of zero or less records nothing. Deductions apply in list
  order, each leaving an audit entry; the final amount clamps at zero.

SEE ALSO:
  - aggregate.go: Month-scoped rule types
  - billing/resolver.go: Which staff rule applies on a date
*/
package payroll

import (
	"github.com/shopspring/decimal"

	"github.com/lumen/tuition-engine/billing"
)

// SalaryInput bundles everything one single-date salary computation
// needs. All data is materialized by the caller; nothing here touches a
// store or the clock.
type SalaryInput struct {
	Staff    billing.Staff
	Activity *billing.Activity
	Date     billing.Date

	AttendanceValue  *decimal.Decimal
	AttendanceStatus *billing.Status

	// StaffRule is the rule already resolved for (staff, activity, date),
	// or nil to fall back to the activity's teacher-payment settings.
	StaffRule *billing.StaffRule

	// ActivityRules backs both the percent-rule fallback and the
	// activity-level derivation.
	ActivityRules billing.RuleSet

	Deductions []billing.Deduction
}

// SalaryResult is the computed accrual: base pay, the deduction audit
// trail, and the net amount.
type SalaryResult struct {
	BaseAmount decimal.Decimal
	Deductions []billing.DeductionApplied
	FinalAmount decimal.Decimal
}

// Salary computes one day's salary accrual. Nil means nothing to record.
//
// Fixed-type staff rules are charged once per period; the CALLER ensures
// Salary is invoked for the first qualifying day only (the aggregator
// does this when running a whole month).
func Salary(in SalaryInput) *SalaryResult {
	base, ok := baseAmount(in)
	if !ok || !base.IsPositive() {
		return nil
	}

	applied, final := ApplyDeductions(base, in.Deductions)
	return &SalaryResult{
		BaseAmount:  billing.Round2(base),
		Deductions:  applied,
		FinalAmount: final,
	}
}

func baseAmount(in SalaryInput) (decimal.Decimal, bool) {
	if r := in.StaffRule; r != nil {
		switch r.RateType {
		case billing.StaffRateFixed:
			return r.Rate, true

		case billing.StaffRatePercent:
			// A directly supplied attendance value wins; deriving from
			// the activity's rules is only the fallback when no value
			// was recorded on the mark.
			if in.AttendanceValue != nil {
				return billing.PercentOf(*in.AttendanceValue, r.Rate), true
			}
			derived, ok := derivedValue(in)
			if !ok {
				return decimal.Zero, false
			}
			return billing.PercentOf(derived, r.Rate), true

		case billing.StaffRatePerSession:
			if in.AttendanceStatus != nil && in.AttendanceStatus.IsPresent() {
				return r.Rate, true
			}
			return decimal.Zero, false

		default:
			// subscription and per_student are month-scoped; the
			// aggregator owns them.
			return decimal.Zero, false
		}
	}

	// Activity fallback: pay is a function of what the session charged.
	if in.Activity == nil {
		return decimal.Zero, false
	}
	derived, ok := derivedValue(in)
	if !ok {
		return decimal.Zero, false
	}
	if in.Activity.FixedTeacherRate.IsPositive() {
		return in.Activity.FixedTeacherRate, true
	}
	if in.Activity.TeacherPaymentPercent > 0 {
		return billing.PercentOf(derived, decimal.NewFromFloat(in.Activity.TeacherPaymentPercent)), true
	}
	return decimal.Zero, false
}

// derivedValue computes the charge value the activity's own rules assign
// to the mark, ignoring enrollment overrides.
func derivedValue(in SalaryInput) (decimal.Decimal, bool) {
	rule, ok := in.ActivityRules.Lookup(in.AttendanceStatus, in.AttendanceValue)
	if !ok {
		return decimal.Zero, false
	}
	return billing.EvaluateRule(rule, in.Date, in.AttendanceValue)
}

// ApplyDeductions runs the ordered deduction list against a base amount.
// Percent deductions take their share of the RUNNING total, not the
// original base; fixed deductions subtract as-is. Each step is recorded
// with its monetary amount; the final total never goes below zero.
func ApplyDeductions(base decimal.Decimal, deductions []billing.Deduction) ([]billing.DeductionApplied, decimal.Decimal) {
	running := billing.Round2(base)
	applied := make([]billing.DeductionApplied, 0, len(deductions))

	for _, d := range deductions {
		var amount decimal.Decimal
		switch d.Type {
		case billing.DeductionPercent:
			amount = billing.PercentOf(running, d.Value)
		case billing.DeductionFixed:
			amount = billing.Round2(d.Value)
		default:
			continue
		}
		running = billing.Round2(running.Sub(amount))
		applied = append(applied, billing.DeductionApplied{
			Name:   d.Name,
			Type:   d.Type,
			Value:  d.Value,
			Amount: amount,
		})
	}

	if running.IsNegative() {
		running = decimal.Zero
	}
	return applied, running
}
