/*
Package tuition implements the student-side charge calculators.

PURPOSE:
  Turns one attendance mark into a monetary charge. Two calculators live
  here: the per-mark charge calculator (ChargeForMark) and the garden
  controller accrual (garden.go), which derives a daily amount from a
  base tariff and a food tariff referenced by configuration.

PRIORITY ORDER (first applicable wins):
  1. Enrollment custom price (zero is a valid override), discounted
  2. The activity rule for the mark's status (or the "value" key for
     hourly line items), evaluated and discounted
  3. Nothing - a cleared mark means no charge, and the caller deletes
     any linked financial transaction

  The calculator never errors: unusable inputs degrade to nil and the UI
  shows "no charge".

SEE ALSO:
  - billing/rules.go: Rule evaluation primitives
  - garden.go: Controller accrual
*/
package tuition

import (
	"github.com/shopspring/decimal"

	"github.com/lumen/tuition-engine/billing"
)

// ChargeInput is everything one charge computation needs. All fields are
// data already materialized by the caller; the calculator touches no
// store and no clock.
type ChargeInput struct {
	Date   billing.Date
	Status *billing.Status
	Value  *decimal.Decimal

	// CustomPrice overrides all rules when non-nil (zero included).
	CustomPrice     *decimal.Decimal
	DiscountPercent float64

	Rules billing.RuleSet
}

// ChargeForMark computes the charge for one attendance mark. Nil means no
// charge is recorded (and any previously recorded charge is retracted).
// Calling it twice with identical inputs yields the identical amount.
func ChargeForMark(in ChargeInput) *decimal.Decimal {
	if in.Status == nil && in.Value == nil {
		// Mark cleared. Nothing to charge, custom price or not.
		return nil
	}

	if in.CustomPrice != nil {
		amount := billing.ApplyDiscount(*in.CustomPrice, in.DiscountPercent)
		return &amount
	}

	rule, ok := in.Rules.Lookup(in.Status, in.Value)
	if !ok {
		return nil
	}
	base, ok := billing.EvaluateRule(rule, in.Date, in.Value)
	if !ok {
		return nil
	}

	amount := billing.ApplyDiscount(base, in.DiscountPercent)
	return &amount
}
