package payroll_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lumen/tuition-engine/billing"
	"github.com/lumen/tuition-engine/payroll"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func date(year int, month time.Month, day int) billing.Date {
	return billing.NewDate(year, month, day)
}

func dec(s string) decimal.Decimal {
	return billing.MustParseDecimal(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func statusPtr(s billing.Status) *billing.Status {
	return &s
}

func presentRules(rate string) billing.RuleSet {
	return billing.RuleSet{
		string(billing.StatusPresent): {Type: billing.RuleFixed, Rate: dec(rate)},
	}
}

// =============================================================================
// BASE AMOUNT TESTS
// =============================================================================

func TestSalary_PercentRuleOfAttendanceValue(t *testing.T) {
	// GIVEN: Percent rule at 50%, attendance value 300
	// WHEN: Salary is computed
	// THEN: Base is 150.00

	res := payroll.Salary(payroll.SalaryInput{
		Staff:           billing.Staff{ID: "staff-1"},
		Date:            date(2025, time.September, 1),
		AttendanceValue: decPtr("300"),
		StaffRule:       &billing.StaffRule{RateType: billing.StaffRatePercent, Rate: dec("50")},
	})

	if res == nil {
		t.Fatal("Expected a result, got nil")
	}
	if !res.BaseAmount.Equal(dec("150")) {
		t.Errorf("Expected base 150, got %s", res.BaseAmount)
	}
	if !res.FinalAmount.Equal(dec("150")) {
		t.Errorf("Expected final 150, got %s", res.FinalAmount)
	}
}

func TestSalary_PercentRuleDerivesFromActivityRules(t *testing.T) {
	// GIVEN: Percent rule at 40%, no attendance value, activity charges
	//        500 for a present mark
	// WHEN: Salary is computed
	// THEN: Base derives from the activity rule: 40% of 500 = 200

	res := payroll.Salary(payroll.SalaryInput{
		Staff:            billing.Staff{ID: "staff-1"},
		Date:             date(2025, time.September, 1),
		AttendanceStatus: statusPtr(billing.StatusPresent),
		StaffRule:        &billing.StaffRule{RateType: billing.StaffRatePercent, Rate: dec("40")},
		ActivityRules:    presentRules("500"),
	})

	if res == nil {
		t.Fatal("Expected a result, got nil")
	}
	if !res.BaseAmount.Equal(dec("200")) {
		t.Errorf("Expected 200, got %s", res.BaseAmount)
	}
}

func TestSalary_PerSessionRequiresPresence(t *testing.T) {
	// GIVEN: Per-session rule at 250
	// WHEN: Marked absent
	// THEN: Nothing accrues

	res := payroll.Salary(payroll.SalaryInput{
		Staff:            billing.Staff{ID: "staff-1"},
		Date:             date(2025, time.September, 1),
		AttendanceStatus: statusPtr(billing.StatusAbsent),
		StaffRule:        &billing.StaffRule{RateType: billing.StaffRatePerSession, Rate: dec("250")},
	})
	if res != nil {
		t.Errorf("Expected nil, got %v", res)
	}
}

func TestSalary_ActivityFallbackPercent(t *testing.T) {
	// GIVEN: No staff rule; activity pays the teacher 50% and charges 300
	// WHEN: Salary is computed
	// THEN: Base is 150

	activity := &billing.Activity{
		ID:                    "act-1",
		TeacherPaymentPercent: 50,
	}
	res := payroll.Salary(payroll.SalaryInput{
		Staff:            billing.Staff{ID: "staff-1"},
		Activity:         activity,
		Date:             date(2025, time.September, 1),
		AttendanceStatus: statusPtr(billing.StatusPresent),
		ActivityRules:    presentRules("300"),
	})

	if res == nil {
		t.Fatal("Expected a result, got nil")
	}
	if !res.BaseAmount.Equal(dec("150")) {
		t.Errorf("Expected 150, got %s", res.BaseAmount)
	}
}

func TestSalary_FixedTeacherRateBeatsPercent(t *testing.T) {
	// GIVEN: Activity with both a fixed teacher rate and a percent
	// WHEN: Salary falls back to the activity
	// THEN: The fixed rate wins

	activity := &billing.Activity{
		ID:                    "act-1",
		TeacherPaymentPercent: 50,
		FixedTeacherRate:      dec("220"),
	}
	res := payroll.Salary(payroll.SalaryInput{
		Staff:            billing.Staff{ID: "staff-1"},
		Activity:         activity,
		Date:             date(2025, time.September, 1),
		AttendanceStatus: statusPtr(billing.StatusPresent),
		ActivityRules:    presentRules("300"),
	})

	if res == nil {
		t.Fatal("Expected a result, got nil")
	}
	if !res.BaseAmount.Equal(dec("220")) {
		t.Errorf("Expected 220, got %s", res.BaseAmount)
	}
}

func TestSalary_NoRuleNoActivityIsNil(t *testing.T) {
	// GIVEN: Neither a staff rule nor an activity
	// WHEN: Salary is computed
	// THEN: nil, nothing to pay

	res := payroll.Salary(payroll.SalaryInput{
		Staff:            billing.Staff{ID: "staff-1"},
		Date:             date(2025, time.September, 1),
		AttendanceStatus: statusPtr(billing.StatusPresent),
	})
	if res != nil {
		t.Errorf("Expected nil, got %v", res)
	}
}

// =============================================================================
// DEDUCTION TESTS
// =============================================================================

func TestSalary_PercentDeduction(t *testing.T) {
	// GIVEN: Base 150 via percent rule, one 10% deduction
	// WHEN: Salary is computed
	// THEN: Final is 135.00 with an audit entry of 15.00

	res := payroll.Salary(payroll.SalaryInput{
		Staff:           billing.Staff{ID: "staff-1"},
		Date:            date(2025, time.September, 1),
		AttendanceValue: decPtr("300"),
		StaffRule:       &billing.StaffRule{RateType: billing.StaffRatePercent, Rate: dec("50")},
		Deductions: []billing.Deduction{
			{Name: "tax", Type: billing.DeductionPercent, Value: dec("10")},
		},
	})

	if res == nil {
		t.Fatal("Expected a result, got nil")
	}
	if !res.FinalAmount.Equal(dec("135")) {
		t.Errorf("Expected final 135, got %s", res.FinalAmount)
	}
	if len(res.Deductions) != 1 || !res.Deductions[0].Amount.Equal(dec("15")) {
		t.Errorf("Expected one 15.00 deduction, got %v", res.Deductions)
	}
}

func TestApplyDeductions_ChainUsesRunningTotal(t *testing.T) {
	// GIVEN: Base 1000, 10% then fixed 50 then 10% again
	// WHEN: Deductions are applied in order
	// THEN: 1000 -> 900 -> 850 -> 765 (second percent sees the running
	//       total, not the original base)

	deductions := []billing.Deduction{
		{Name: "pension", Type: billing.DeductionPercent, Value: dec("10")},
		{Name: "dues", Type: billing.DeductionFixed, Value: dec("50")},
		{Name: "tax", Type: billing.DeductionPercent, Value: dec("10")},
	}
	applied, final := payroll.ApplyDeductions(dec("1000"), deductions)

	if !final.Equal(dec("765")) {
		t.Errorf("Expected 765, got %s", final)
	}
	if len(applied) != 3 {
		t.Fatalf("Expected 3 audit entries, got %d", len(applied))
	}
	if !applied[2].Amount.Equal(dec("85")) {
		t.Errorf("Expected last deduction of 85, got %s", applied[2].Amount)
	}
}

func TestApplyDeductions_NeverGoesNegative(t *testing.T) {
	// GIVEN: Base 100, fixed deduction of 150
	// WHEN: Deductions are applied
	// THEN: Final clamps at 0

	deductions := []billing.Deduction{
		{Name: "advance", Type: billing.DeductionFixed, Value: dec("150")},
	}
	_, final := payroll.ApplyDeductions(dec("100"), deductions)
	if !final.IsZero() {
		t.Errorf("Expected 0, got %s", final)
	}
}
