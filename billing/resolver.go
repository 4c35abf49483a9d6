/*
resolver.go - Effective-dated rule resolution

PURPOSE:
  Given a full rule history and a target date, selects the single rule
  applicable on that date. Used for both activity price history (via
  PriceHistory.RulesOn) and staff compensation rules (here).

SELECTION:
  1. Scope filter: rules whose activity scope matches exactly, or global
     (nil scope) rules as fallback
  2. Date filter: EffectiveFrom <= date <= EffectiveTo (nil = open)
  3. Tie-break: exact activity scope beats global; among equals, the
     latest EffectiveFrom wins

  Returns nil when nothing qualifies - the caller falls back to a default
  rate or records no accrual. Resolution is read-only and deterministic:
  identical inputs always produce the identical rule, which is what makes
  recomputing a past month's payroll reproducible.
*/
package billing

// ResolveStaffRule selects the staff rule applicable on the date for the
// given activity scope (nil = no specific activity). An exact-scope match
// is preferred over a global one when both are active on the date.
func ResolveStaffRule(history []StaffRule, date Date, activityID *ActivityID) *StaffRule {
	date = date.Normalized()

	var exact, global *StaffRule
	for i := range history {
		r := &history[i]
		if !r.ActiveOn(date) || !r.AppliesTo(activityID) {
			continue
		}
		if r.ActivityID != nil {
			if exact == nil || r.EffectiveFrom.After(exact.EffectiveFrom) {
				exact = r
			}
		} else {
			if global == nil || r.EffectiveFrom.After(global.EffectiveFrom) {
				global = r
			}
		}
	}
	if exact != nil {
		return exact
	}
	return global
}

// ResolveManualRate selects the manual rate revision active on the date.
func ResolveManualRate(history []ManualRateRevision, date Date) *ManualRateRevision {
	date = date.Normalized()

	var best *ManualRateRevision
	for i := range history {
		r := &history[i]
		if !r.ActiveOn(date) {
			continue
		}
		if best == nil || r.EffectiveFrom.After(best.EffectiveFrom) {
			best = r
		}
	}
	return best
}
