/*
garden.go - Controller activity daily accrual

PURPOSE:
  A "controller" activity bills nothing by itself. Its configuration
  references a base (monthly) tariff activity and optionally a food
  (daily) tariff activity, and the controller derives a per-day amount
  from both:

    present:      amount = M / D
    any other:    amount = M / D - F   (food is not charged on absence)

  where M is the student's monthly base tariff, F the daily food cost and
  D the month's working-day count. The result is separate from, and in
  addition to, the ordinary per-activity charge calculator.

EDGE CASES:
  - No active base-tariff enrollment: nil (nothing to bill)
  - Referenced activity missing from the supplied map: that leg is
    treated as absent (zero food, or nil for a missing base)
  - Self-referencing or cyclic controller configs are rejected upstream
    by the factory; the calculator never follows controller references
    recursively
*/
package tuition

import (
	"github.com/shopspring/decimal"

	"github.com/lumen/tuition-engine/billing"
)

// GardenAccrual is the controller calculation result, carrying the
// intermediate tariffs for audit display.
type GardenAccrual struct {
	Amount      decimal.Decimal
	BaseTariff  decimal.Decimal // M: monthly base tariff
	FoodTariff  decimal.Decimal // F: daily food cost
	WorkingDays int             // D
	Status      billing.Status
}

// DailyAccrual computes one day's controller accrual for a student.
// Returns nil when the student has no active enrollment in any of the
// controller's base tariff activities.
func DailyAccrual(
	studentID billing.StudentID,
	date billing.Date,
	controller billing.Activity,
	enrollments []billing.Enrollment,
	activities map[billing.ActivityID]billing.Activity,
	status billing.Status,
) *GardenAccrual {
	if controller.Config == nil {
		return nil
	}

	days := billing.WorkingDaysInMonth(date)
	if days == 0 {
		return nil
	}

	base := findTariffEnrollment(studentID, controller.Config.BaseTariffIDs, enrollments, activities)
	if base == nil {
		return nil
	}
	monthly := monthlyTariff(*base, activities[base.ActivityID], date)

	food := decimal.Zero
	if fe := findTariffEnrollment(studentID, controller.Config.FoodTariffIDs, enrollments, activities); fe != nil {
		food = dailyFoodTariff(*fe, activities[fe.ActivityID], date, days)
	}

	daily := monthly.Div(decimal.NewFromInt(int64(days)))
	amount := daily
	if !status.IsPresent() {
		amount = daily.Sub(food)
	}

	return &GardenAccrual{
		Amount:      billing.Round2(amount),
		BaseTariff:  monthly,
		FoodTariff:  food,
		WorkingDays: days,
		Status:      status,
	}
}

// findTariffEnrollment returns the student's active enrollment in any of
// the referenced activities. A referenced id missing from the activity
// map is skipped: that leg is simply absent.
func findTariffEnrollment(
	studentID billing.StudentID,
	ids []billing.ActivityID,
	enrollments []billing.Enrollment,
	activities map[billing.ActivityID]billing.Activity,
) *billing.Enrollment {
	for i := range enrollments {
		e := &enrollments[i]
		if e.StudentID != studentID || !e.IsActive {
			continue
		}
		for _, id := range ids {
			if e.ActivityID != id {
				continue
			}
			if _, ok := activities[id]; !ok {
				continue
			}
			return e
		}
	}
	return nil
}

// monthlyTariff resolves the student's monthly base tariff M: custom
// price with discount, else the activity's present rule rate when it is
// subscription or fixed typed, else the legacy default price.
func monthlyTariff(e billing.Enrollment, a billing.Activity, date billing.Date) decimal.Decimal {
	if e.CustomPrice != nil {
		return billing.ApplyDiscount(*e.CustomPrice, e.DiscountPercent)
	}
	rules := a.RulesOn(date)
	if r, ok := rules[string(billing.StatusPresent)]; ok {
		if (r.Type == billing.RuleSubscription || r.Type == billing.RuleFixed) && !r.Rate.IsZero() {
			return r.Rate
		}
	}
	return a.DefaultPrice
}

// dailyFoodTariff resolves the daily food cost F: custom price with
// discount, else the present rule rate (divided by working days when the
// rule is subscription typed), else the default price.
func dailyFoodTariff(e billing.Enrollment, a billing.Activity, date billing.Date, days int) decimal.Decimal {
	if e.CustomPrice != nil {
		return billing.ApplyDiscount(*e.CustomPrice, e.DiscountPercent)
	}
	rules := a.RulesOn(date)
	if r, ok := rules[string(billing.StatusPresent)]; ok && !r.Rate.IsZero() {
		if r.Type == billing.RuleSubscription {
			return billing.Round2(r.Rate.Div(decimal.NewFromInt(int64(days))))
		}
		return r.Rate
	}
	return a.DefaultPrice
}
