package tuition_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/lumen/tuition-engine/billing"
	"github.com/lumen/tuition-engine/tuition"
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

func fixedRules(rate string) billing.RuleSet {
	return billing.RuleSet{
		string(billing.StatusPresent): {Type: billing.RuleFixed, Rate: dec(rate)},
	}
}

// =============================================================================
// CHARGE CALCULATION TESTS
// =============================================================================

func TestCharge_FixedRuleWithDiscount(t *testing.T) {
	// GIVEN: Fixed rule at 500, enrollment discount 10%
	// WHEN: Student marked present
	// THEN: Charge is 450.00

	charge := tuition.ChargeForMark(tuition.ChargeInput{
		Date:            date(2025, time.September, 1),
		Status:          statusPtr(billing.StatusPresent),
		DiscountPercent: 10,
		Rules:           fixedRules("500"),
	})

	if charge == nil {
		t.Fatal("Expected a charge, got nil")
	}
	if !charge.Equal(dec("450")) {
		t.Errorf("Expected 450, got %s", charge)
	}
}

func TestCharge_SubscriptionDividesByWorkingDays(t *testing.T) {
	// GIVEN: Subscription rule at 4400/month, September 2025 (22 working days)
	// WHEN: Student marked present on any day of that month
	// THEN: Charge is 4400/22 = 200.00

	rules := billing.RuleSet{
		string(billing.StatusPresent): {Type: billing.RuleSubscription, Rate: dec("4400")},
	}
	charge := tuition.ChargeForMark(tuition.ChargeInput{
		Date:   date(2025, time.September, 15),
		Status: statusPtr(billing.StatusPresent),
		Rules:  rules,
	})

	if charge == nil {
		t.Fatal("Expected a charge, got nil")
	}
	if !charge.Equal(dec("200")) {
		t.Errorf("Expected 200, got %s", charge)
	}
}

func TestCharge_HourlyMultipliesByValue(t *testing.T) {
	// GIVEN: Hourly rule at 300, a mark with value 1.5
	// WHEN: Charge is computed
	// THEN: 300 * 1.5 = 450.00

	rules := billing.RuleSet{
		billing.ValueKey: {Type: billing.RuleHourly, Rate: dec("300")},
	}
	charge := tuition.ChargeForMark(tuition.ChargeInput{
		Date:  date(2025, time.September, 3),
		Value: decPtr("1.5"),
		Rules: rules,
	})

	if charge == nil {
		t.Fatal("Expected a charge, got nil")
	}
	if !charge.Equal(dec("450")) {
		t.Errorf("Expected 450, got %s", charge)
	}
}

func TestCharge_CustomPriceOverridesRules(t *testing.T) {
	// GIVEN: Enrollment with custom price 350 and rules that would say 500
	// WHEN: Charge is computed
	// THEN: Custom price wins, before discount

	charge := tuition.ChargeForMark(tuition.ChargeInput{
		Date:        date(2025, time.September, 1),
		Status:      statusPtr(billing.StatusPresent),
		CustomPrice: decPtr("350"),
		Rules:       fixedRules("500"),
	})

	if charge == nil || !charge.Equal(dec("350")) {
		t.Fatalf("Expected 350, got %v", charge)
	}
}

func TestCharge_ZeroCustomPriceMeansFree(t *testing.T) {
	// GIVEN: Custom price explicitly zero
	// WHEN: Charge is computed
	// THEN: Charge is 0, not nil (a zero charge IS a result)

	charge := tuition.ChargeForMark(tuition.ChargeInput{
		Date:        date(2025, time.September, 1),
		Status:      statusPtr(billing.StatusPresent),
		CustomPrice: decPtr("0"),
		Rules:       fixedRules("500"),
	})

	if charge == nil {
		t.Fatal("Expected zero charge, got nil")
	}
	if !charge.IsZero() {
		t.Errorf("Expected 0, got %s", charge)
	}
}

func TestCharge_ClearedMarkIsNil(t *testing.T) {
	// GIVEN: Neither status nor value
	// WHEN: Charge is computed
	// THEN: nil (no charge recorded)

	charge := tuition.ChargeForMark(tuition.ChargeInput{
		Date:  date(2025, time.September, 1),
		Rules: fixedRules("500"),
	})
	if charge != nil {
		t.Errorf("Expected nil charge, got %s", charge)
	}
}

func TestCharge_ClearedMarkIgnoresCustomPrice(t *testing.T) {
	// GIVEN: A custom price on the enrollment, but the mark is cleared
	// WHEN: Charge is computed
	// THEN: nil, the custom price does not resurrect a cleared mark

	charge := tuition.ChargeForMark(tuition.ChargeInput{
		Date:        date(2025, time.September, 1),
		CustomPrice: decPtr("350"),
		Rules:       fixedRules("500"),
	})
	if charge != nil {
		t.Errorf("Expected nil charge, got %s", charge)
	}
}

func TestCharge_NoMatchingRuleIsNil(t *testing.T) {
	// GIVEN: Rules only cover "present"
	// WHEN: Student marked sick
	// THEN: nil (data shape issue, never an error)

	charge := tuition.ChargeForMark(tuition.ChargeInput{
		Date:   date(2025, time.September, 1),
		Status: statusPtr(billing.StatusSick),
		Rules:  fixedRules("500"),
	})
	if charge != nil {
		t.Errorf("Expected nil charge, got %s", charge)
	}
}

func TestCharge_ZeroRateDisablesRule(t *testing.T) {
	// GIVEN: A rule with rate 0
	// WHEN: Student marked present
	// THEN: nil, the rule is switched off

	charge := tuition.ChargeForMark(tuition.ChargeInput{
		Date:   date(2025, time.September, 1),
		Status: statusPtr(billing.StatusPresent),
		Rules:  fixedRules("0"),
	})
	if charge != nil {
		t.Errorf("Expected nil charge, got %s", charge)
	}
}

func TestCharge_Deterministic(t *testing.T) {
	// GIVEN: Identical inputs
	// WHEN: Computed twice
	// THEN: Identical amounts

	in := tuition.ChargeInput{
		Date:            date(2025, time.September, 10),
		Status:          statusPtr(billing.StatusPresent),
		DiscountPercent: 7.5,
		Rules:           fixedRules("333.33"),
	}
	a := tuition.ChargeForMark(in)
	b := tuition.ChargeForMark(in)
	if a == nil || b == nil || !a.Equal(*b) {
		t.Fatalf("Expected identical results, got %v and %v", a, b)
	}
}
