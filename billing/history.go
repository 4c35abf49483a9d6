/*
history.go - Effective-dated rule revision lists

PURPOSE:
  Pricing and compensation rules are never edited in place once they have
  taken effect. "Updating the rule" appends a new revision and closes the
  previous open one the day before the new revision starts. History stays
  sorted, non-overlapping, and queryable by date.

INVARIANTS:
  1. Revisions are ordered by effective date
  2. At most one revision is open (no end date) per scope
  3. Closed revisions are immutable - corrections append, never edit

SEE ALSO:
  - resolver.go: Selecting the revision active on a date
*/
package billing

import "sort"

// =============================================================================
// PRICE HISTORY - Activity rule set revisions
// =============================================================================

// PriceRevision is one entry of an activity's price history: a complete
// rule set plus the date it takes effect. Revisions are closed implicitly
// by the next revision's start (latest EffectiveFrom <= date wins).
type PriceRevision struct {
	Rules         RuleSet
	EffectiveFrom Date
}

// PriceHistory is an activity's revision sequence, ordered by start date.
type PriceHistory []PriceRevision

// Append inserts a revision keeping the history sorted by EffectiveFrom.
// A revision on the same date as an existing one replaces it (the UI's
// "edit today's prices" flow).
func (h PriceHistory) Append(rev PriceRevision) PriceHistory {
	rev.EffectiveFrom = rev.EffectiveFrom.Normalized()
	for i := range h {
		if h[i].EffectiveFrom.Equal(rev.EffectiveFrom) {
			out := make(PriceHistory, len(h))
			copy(out, h)
			out[i] = rev
			return out
		}
	}
	out := append(PriceHistory{}, h...)
	out = append(out, rev)
	sort.Slice(out, func(i, j int) bool {
		return out[i].EffectiveFrom.Before(out[j].EffectiveFrom)
	})
	return out
}

// RulesOn returns the rule set active on the given date: the revision
// with the latest EffectiveFrom that is on or before the date. Returns
// false when the date precedes every revision.
func (h PriceHistory) RulesOn(date Date) (RuleSet, bool) {
	var best *PriceRevision
	for i := range h {
		if h[i].EffectiveFrom.AfterOrEqual(date) && !h[i].EffectiveFrom.Equal(date) {
			continue
		}
		if best == nil || h[i].EffectiveFrom.After(best.EffectiveFrom) {
			best = &h[i]
		}
	}
	if best == nil {
		return nil, false
	}
	return best.Rules, true
}

// =============================================================================
// STAFF RULE HISTORY - Close-previous-on-append semantics
// =============================================================================

// StaffRuleHistory is the full rule history for one staff member across
// all scopes.
type StaffRuleHistory []StaffRule

// Append adds a rule and closes the previously open rule with the same
// scope at the day before the new rule's start. The closed rule keeps its
// identity; only its EffectiveTo is set, and only if it was open.
func (h StaffRuleHistory) Append(rule StaffRule) StaffRuleHistory {
	rule.EffectiveFrom = rule.EffectiveFrom.Normalized()
	out := make(StaffRuleHistory, len(h))
	copy(out, h)
	for i := range out {
		if out[i].EffectiveTo != nil {
			continue
		}
		if !sameScope(out[i].ActivityID, rule.ActivityID) {
			continue
		}
		dayBefore := rule.EffectiveFrom.AddDays(-1)
		out[i].EffectiveTo = &dayBefore
	}
	out = append(out, rule)
	sort.Slice(out, func(i, j int) bool {
		return out[i].EffectiveFrom.Before(out[j].EffectiveFrom)
	})
	return out
}

func sameScope(a, b *ActivityID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// ManualRateHistory parallels StaffRuleHistory for manual rates.
type ManualRateHistory []ManualRateRevision

func (h ManualRateHistory) Append(rev ManualRateRevision) ManualRateHistory {
	rev.EffectiveFrom = rev.EffectiveFrom.Normalized()
	out := make(ManualRateHistory, len(h))
	copy(out, h)
	for i := range out {
		if out[i].EffectiveTo == nil {
			dayBefore := rev.EffectiveFrom.AddDays(-1)
			out[i].EffectiveTo = &dayBefore
		}
	}
	out = append(out, rev)
	sort.Slice(out, func(i, j int) bool {
		return out[i].EffectiveFrom.Before(out[j].EffectiveFrom)
	})
	return out
}
