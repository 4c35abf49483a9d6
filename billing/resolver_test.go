package billing_test

import (
	"testing"
	"time"

	"github.com/lumen/tuition-engine/billing"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func date(year int, month time.Month, day int) billing.Date {
	return billing.NewDate(year, month, day)
}

func activityPtr(id billing.ActivityID) *billing.ActivityID {
	return &id
}

func rule(id string, scope *billing.ActivityID, from billing.Date, to *billing.Date) billing.StaffRule {
	return billing.StaffRule{
		ID:            id,
		StaffID:       "staff-1",
		ActivityID:    scope,
		RateType:      billing.StaffRatePerSession,
		Rate:          billing.MustParseDecimal("100"),
		EffectiveFrom: from,
		EffectiveTo:   to,
	}
}

// =============================================================================
// STAFF RULE RESOLUTION TESTS
// =============================================================================

func TestResolve_ExactScopeBeatsGlobal(t *testing.T) {
	// GIVEN: A global rule and an activity-scoped rule, both active
	// WHEN: Resolving for that activity
	// THEN: The scoped rule wins regardless of order

	history := []billing.StaffRule{
		rule("global", nil, date(2025, time.January, 1), nil),
		rule("scoped", activityPtr("piano"), date(2025, time.March, 1), nil),
	}

	got := billing.ResolveStaffRule(history, date(2025, time.June, 1), activityPtr("piano"))
	if got == nil || got.ID != "scoped" {
		t.Fatalf("Expected scoped rule, got %v", got)
	}

	// Another activity only matches the global rule.
	got = billing.ResolveStaffRule(history, date(2025, time.June, 1), activityPtr("chess"))
	if got == nil || got.ID != "global" {
		t.Fatalf("Expected global rule, got %v", got)
	}
}

func TestResolve_LatestEffectiveFromWins(t *testing.T) {
	// GIVEN: Two same-scope rules both covering the date
	// WHEN: Resolving
	// THEN: The later EffectiveFrom wins

	history := []billing.StaffRule{
		rule("old", nil, date(2025, time.January, 1), nil),
		rule("new", nil, date(2025, time.April, 1), nil),
	}
	got := billing.ResolveStaffRule(history, date(2025, time.June, 1), nil)
	if got == nil || got.ID != "new" {
		t.Fatalf("Expected newest rule, got %v", got)
	}
}

func TestResolve_IntervalIsInclusiveOnBothEnds(t *testing.T) {
	// GIVEN: A rule closed on March 31
	// WHEN: Resolving on the boundary dates
	// THEN: Start and end days are both covered; the day after is not

	to := date(2025, time.March, 31)
	history := []billing.StaffRule{
		rule("r", nil, date(2025, time.March, 1), &to),
	}

	if got := billing.ResolveStaffRule(history, date(2025, time.March, 1), nil); got == nil {
		t.Error("Expected rule to cover its start date")
	}
	if got := billing.ResolveStaffRule(history, date(2025, time.March, 31), nil); got == nil {
		t.Error("Expected rule to cover its end date")
	}
	if got := billing.ResolveStaffRule(history, date(2025, time.April, 1), nil); got != nil {
		t.Errorf("Expected no rule after the end date, got %v", got)
	}
}

func TestResolve_NothingActiveIsNil(t *testing.T) {
	// GIVEN: A rule starting in the future
	// WHEN: Resolving before it starts
	// THEN: nil

	history := []billing.StaffRule{
		rule("future", nil, date(2026, time.January, 1), nil),
	}
	if got := billing.ResolveStaffRule(history, date(2025, time.June, 1), nil); got != nil {
		t.Errorf("Expected nil, got %v", got)
	}
}

// =============================================================================
// RULE HISTORY TESTS
// =============================================================================

func TestStaffRuleHistory_AppendClosesPrevious(t *testing.T) {
	// GIVEN: An open rule from January
	// WHEN: A same-scope rule starting April 1 is appended
	// THEN: The previous rule closes on March 31; revisions tile the
	//       calendar with no gap and no overlap

	var history billing.StaffRuleHistory
	history = history.Append(rule("first", nil, date(2025, time.January, 1), nil))
	history = history.Append(rule("second", nil, date(2025, time.April, 1), nil))

	first := history[0]
	if first.EffectiveTo == nil || !first.EffectiveTo.Equal(date(2025, time.March, 31)) {
		t.Fatalf("Expected first rule closed at 2025-03-31, got %v", first.EffectiveTo)
	}

	// Every calendar day resolves to exactly one rule.
	if got := billing.ResolveStaffRule(history, date(2025, time.March, 31), nil); got == nil || got.ID != "first" {
		t.Errorf("Expected first rule on 03-31, got %v", got)
	}
	if got := billing.ResolveStaffRule(history, date(2025, time.April, 1), nil); got == nil || got.ID != "second" {
		t.Errorf("Expected second rule on 04-01, got %v", got)
	}
}

func TestStaffRuleHistory_DifferentScopeStaysOpen(t *testing.T) {
	// GIVEN: An open activity-scoped rule
	// WHEN: A global rule is appended
	// THEN: The scoped rule is untouched (different scope)

	var history billing.StaffRuleHistory
	history = history.Append(rule("scoped", activityPtr("piano"), date(2025, time.January, 1), nil))
	history = history.Append(rule("global", nil, date(2025, time.April, 1), nil))

	if history[0].EffectiveTo != nil {
		t.Errorf("Expected scoped rule to stay open, got closed at %v", history[0].EffectiveTo)
	}
}

// =============================================================================
// PRICE HISTORY TESTS
// =============================================================================

func TestPriceHistory_RulesOnPicksLatestRevision(t *testing.T) {
	// GIVEN: Revisions effective January and April
	// WHEN: Looking up rules across the year
	// THEN: Each date sees the revision active on it

	janRules := billing.RuleSet{"present": {Type: billing.RuleFixed, Rate: billing.MustParseDecimal("500")}}
	aprRules := billing.RuleSet{"present": {Type: billing.RuleFixed, Rate: billing.MustParseDecimal("550")}}

	var h billing.PriceHistory
	h = h.Append(billing.PriceRevision{Rules: janRules, EffectiveFrom: date(2025, time.January, 1)})
	h = h.Append(billing.PriceRevision{Rules: aprRules, EffectiveFrom: date(2025, time.April, 1)})

	got, ok := h.RulesOn(date(2025, time.February, 10))
	if !ok || !got["present"].Rate.Equal(billing.MustParseDecimal("500")) {
		t.Errorf("Expected January rules in February, got %v", got)
	}
	got, ok = h.RulesOn(date(2025, time.April, 1))
	if !ok || !got["present"].Rate.Equal(billing.MustParseDecimal("550")) {
		t.Errorf("Expected April rules on April 1, got %v", got)
	}

	if _, ok := h.RulesOn(date(2024, time.December, 31)); ok {
		t.Error("Expected no rules before the first revision")
	}
}
