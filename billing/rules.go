/*
rules.go - Billing and staff compensation rule types

PURPOSE:
  Defines the pricing vocabulary: how an attendance mark maps to money.
  An activity carries a RuleSet (one Rule per status key); a staff member
  carries effective-dated StaffRules; both are resolved per-date by the
  resolver and consumed by the tuition/payroll calculators.

RULE TYPES (activity side):
  fixed:        flat amount per mark
  subscription: monthly amount, divided by the month's working days
  hourly:       rate x the mark's numeric value

RATE TYPES (staff side):
  fixed:        flat monthly amount, charged once per period
  percent:      percentage of the day's attendance value
  per_session:  flat amount per day actually taught
  subscription: per-student minimum/top-up/overage scheme (see payroll)
  per_student:  rate x distinct present students that day

SEE ALSO:
  - resolver.go: Which rule applies on a given date
  - history.go: Insert-plus-close-previous revision semantics
*/
package billing

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// ACTIVITY BILLING RULES
// =============================================================================

type RuleType string

const (
	RuleFixed        RuleType = "fixed"
	RuleSubscription RuleType = "subscription"
	RuleHourly       RuleType = "hourly"
)

// Rule maps one attendance status key to a monetary rate.
// Rates are conceptually non-negative; only custom statuses may carry a
// negative rate, to model refunds and make-up credits.
type Rule struct {
	Type RuleType        `json:"type"`
	Rate decimal.Decimal `json:"rate"`
}

// RuleSet is keyed by attendance status key: the built-in statuses,
// the "value" key for hourly line items, and custom status ids.
type RuleSet map[string]Rule

// Lookup returns the rule for a status/value pair. A status wins over the
// value key; a mark with only a numeric value uses the "value" rule.
func (rs RuleSet) Lookup(status *Status, value *decimal.Decimal) (Rule, bool) {
	if rs == nil {
		return Rule{}, false
	}
	if status != nil {
		r, ok := rs[string(*status)]
		return r, ok
	}
	if value != nil {
		r, ok := rs[ValueKey]
		return r, ok
	}
	return Rule{}, false
}

// CustomStatus is an activity-defined attendance mark (at most two per
// activity). Its ID doubles as the RuleSet key.
type CustomStatus struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Rate     decimal.Decimal `json:"rate"`
	Type     RuleType        `json:"type"`
	Color    string          `json:"color"`
	IsActive bool            `json:"is_active"`
}

// =============================================================================
// STAFF COMPENSATION RULES
// =============================================================================

type StaffRateType string

const (
	StaffRateFixed        StaffRateType = "fixed"
	StaffRatePercent      StaffRateType = "percent"
	StaffRatePerSession   StaffRateType = "per_session"
	StaffRateSubscription StaffRateType = "subscription"
	StaffRatePerStudent   StaffRateType = "per_student"
)

// StaffRule is one effective-dated compensation rule for a staff member.
// ActivityID nil means the rule is global (applies to any activity the
// staff member teaches); an exact activity scope wins over a global one.
//
// Exactly one rule is open (EffectiveTo == nil) at a time per
// (staff, activity) pair; creating a new rule closes the previous one the
// day before the new one's start (see StaffRuleHistory.Append).
type StaffRule struct {
	ID         string
	StaffID    StaffID
	ActivityID *ActivityID // nil = global scope

	RateType StaffRateType
	Rate     decimal.Decimal

	// Subscription scheme parameters (RateType == subscription only).
	LessonLimit           int
	PenaltyTriggerPercent float64
	PenaltyPercent        float64
	ExtraLessonRate       *decimal.Decimal

	EffectiveFrom Date
	EffectiveTo   *Date // nil = open-ended
}

// ActiveOn reports whether the rule covers the given date. The interval
// is inclusive on both ends: closing a rule sets EffectiveTo to the day
// before its successor starts, so consecutive revisions tile the calendar
// with no gap.
func (r StaffRule) ActiveOn(date Date) bool {
	if date.Before(r.EffectiveFrom) {
		return false
	}
	if r.EffectiveTo != nil && date.After(*r.EffectiveTo) {
		return false
	}
	return true
}

// AppliesTo reports whether the rule's scope covers the activity.
// A nil rule scope matches everything; otherwise the ids must agree.
func (r StaffRule) AppliesTo(activityID *ActivityID) bool {
	if r.ActivityID == nil {
		return true
	}
	return activityID != nil && *r.ActivityID == *activityID
}

// =============================================================================
// MANUAL RATES - Staff paid on ad-hoc entry, not derived from attendance
// =============================================================================

type ManualRateType string

const (
	ManualHourly        ManualRateType = "hourly"
	ManualPerSession    ManualRateType = "per_session"
	ManualPerWorkingDay ManualRateType = "per_working_day"
)

// ManualRateRevision parallels StaffRule history for staff whose pay is
// entered manually (hours, sessions or worked days typed in by an admin).
type ManualRateRevision struct {
	ID      string
	StaffID StaffID

	RateType ManualRateType
	Value    decimal.Decimal

	EffectiveFrom Date
	EffectiveTo   *Date
}

func (r ManualRateRevision) ActiveOn(date Date) bool {
	if date.Before(r.EffectiveFrom) {
		return false
	}
	if r.EffectiveTo != nil && date.After(*r.EffectiveTo) {
		return false
	}
	return true
}

// =============================================================================
// RULE EVALUATION - Shared by the tuition and payroll calculators
// =============================================================================

// EvaluateRule turns a rule into a pre-discount amount for one mark.
// Returns false when the rule produces no amount: a zero rate (disabled),
// or an hourly rule without a usable positive value. A negative rate is
// passed through as a credit (custom statuses only; the factory rejects
// negative rates on built-in statuses).
func EvaluateRule(r Rule, date Date, value *decimal.Decimal) (decimal.Decimal, bool) {
	if r.Rate.IsZero() {
		return decimal.Zero, false
	}
	switch r.Type {
	case RuleFixed:
		return r.Rate, true
	case RuleSubscription:
		days := WorkingDaysInMonth(date)
		if days == 0 {
			return decimal.Zero, false
		}
		return Round2(r.Rate.Div(decimal.NewFromInt(int64(days)))), true
	case RuleHourly:
		if value == nil || !value.IsPositive() {
			return decimal.Zero, false
		}
		return Round2(r.Rate.Mul(*value)), true
	default:
		return decimal.Zero, false
	}
}
