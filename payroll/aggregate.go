/*
aggregate.go - Monthly subscription accrual aggregator

PURPOSE:
  Walks a month of attendance records for staff in date order and applies
  the month-scoped compensation semantics that a single-date calculator
  cannot express:

  fixed:        the flat monthly rate, charged exactly once, on the first
                date a fixed-type rule resolves
  per_session:  flat rate for every day with at least one present record
  per_student:  rate x distinct present students that day
  percent:      rate% of the sum of the day's record values
  subscription: tracked per (staff, rule, student) across the month:
                - first present day: minimum = rate x (1 - penalty%/100)
                - the day the student's cumulative present count reaches
                  ceil(lessonLimit x trigger%/100): top-up of
                  rate - minimum, exactly once (the make-whole charge)
                - every present day beyond lessonLimit: the extra-lesson
                  rate as an overage fee, uncapped

  Only present records participate. Charges for the same (staff, date)
  accumulate; every charge carries a human-readable note (student name
  and reason) for audit display.
*/
package payroll

import (
	"fmt"
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/lumen/tuition-engine/billing"
)

// AttendanceRecord is one day of one student's attendance as seen by the
// staff member who taught the session.
type AttendanceRecord struct {
	StaffID     billing.StaffID
	StudentID   billing.StudentID
	StudentName string
	Date        billing.Date
	Status      billing.Status
	Value       *decimal.Decimal
}

// DayAccrual is the aggregated charge for one (staff, date).
type DayAccrual struct {
	Amount decimal.Decimal
	Notes  []string
}

// RuleResolver returns the staff rule applicable on a date, or nil.
// Typically a closure over billing.ResolveStaffRule and a loaded history.
type RuleResolver func(staffID billing.StaffID, date billing.Date) *billing.StaffRule

type subKey struct {
	staffID   billing.StaffID
	ruleID    string
	studentID billing.StudentID
}

type subProgress struct {
	count     int
	topupDone bool
}

type fixedKey struct {
	staffID billing.StaffID
	ruleID  string
}

// Aggregator carries the month-scoped progress state: which fixed-type
// rules have already charged, and each student's subscription counters.
// Use one Aggregator per (month) and feed it every batch of that month's
// records; a rule that resolves for several activities still charges as
// one rule, not once per batch.
type Aggregator struct {
	fixedCharged  map[fixedKey]bool
	subscriptions map[subKey]*subProgress
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		fixedCharged:  make(map[fixedKey]bool),
		subscriptions: make(map[subKey]*subProgress),
	}
}

// Aggregate applies month-scoped compensation semantics to one batch of
// attendance records, a whole month at once. The result maps staff to
// per-date accruals. Deterministic: records are processed in
// (date, student) order regardless of input order.
func Aggregate(records []AttendanceRecord, resolve RuleResolver) map[billing.StaffID]map[billing.Date]*DayAccrual {
	return NewAggregator().Aggregate(records, resolve)
}

// Aggregate processes one batch against the accumulated month state and
// returns that batch's accruals.
func (ag *Aggregator) Aggregate(records []AttendanceRecord, resolve RuleResolver) map[billing.StaffID]map[billing.Date]*DayAccrual {
	present := make([]AttendanceRecord, 0, len(records))
	for _, r := range records {
		if r.Status.IsPresent() {
			r.Date = r.Date.Normalized()
			present = append(present, r)
		}
	}
	sort.SliceStable(present, func(i, j int) bool {
		if !present[i].Date.Equal(present[j].Date) {
			return present[i].Date.Before(present[j].Date)
		}
		return present[i].StudentID < present[j].StudentID
	})

	// Group by (date, staff) preserving date order.
	type dayGroup struct {
		date    billing.Date
		staffID billing.StaffID
		records []AttendanceRecord
	}
	var groups []*dayGroup
	index := make(map[string]*dayGroup)
	for _, r := range present {
		k := r.Date.String() + "/" + string(r.StaffID)
		g, ok := index[k]
		if !ok {
			g = &dayGroup{date: r.Date, staffID: r.StaffID}
			index[k] = g
			groups = append(groups, g)
		}
		g.records = append(g.records, r)
	}

	result := make(map[billing.StaffID]map[billing.Date]*DayAccrual)

	add := func(staffID billing.StaffID, date billing.Date, amount decimal.Decimal, note string) {
		days, ok := result[staffID]
		if !ok {
			days = make(map[billing.Date]*DayAccrual)
			result[staffID] = days
		}
		acc, ok := days[date]
		if !ok {
			acc = &DayAccrual{Amount: decimal.Zero}
			days[date] = acc
		}
		acc.Amount = billing.Round2(acc.Amount.Add(amount))
		acc.Notes = append(acc.Notes, note)
	}

	for _, g := range groups {
		rule := resolve(g.staffID, g.date)
		if rule == nil {
			continue
		}

		switch rule.RateType {
		case billing.StaffRateFixed:
			// Single flat monthly charge: first resolving date only,
			// across every batch this month.
			fk := fixedKey{staffID: g.staffID, ruleID: rule.ID}
			if ag.fixedCharged[fk] {
				continue
			}
			ag.fixedCharged[fk] = true
			add(g.staffID, g.date, billing.Round2(rule.Rate), "monthly rate")

		case billing.StaffRatePerSession:
			add(g.staffID, g.date, billing.Round2(rule.Rate), "session")

		case billing.StaffRatePerStudent:
			students := distinctStudents(g.records)
			amount := rule.Rate.Mul(decimal.NewFromInt(int64(len(students))))
			add(g.staffID, g.date, billing.Round2(amount),
				fmt.Sprintf("%d students x %s", len(students), rule.Rate.StringFixed(2)))

		case billing.StaffRatePercent:
			sum := decimal.Zero
			for _, r := range g.records {
				if r.Value != nil {
					sum = sum.Add(*r.Value)
				}
			}
			if !sum.IsPositive() {
				continue
			}
			add(g.staffID, g.date, billing.PercentOf(sum, rule.Rate),
				fmt.Sprintf("%s%% of %s", rule.Rate.StringFixed(0), sum.StringFixed(2)))

		case billing.StaffRateSubscription:
			aggregateSubscription(g.staffID, g.date, g.records, rule, ag.subscriptions, add)
		}
	}

	return result
}

// aggregateSubscription advances each student's subscription progress by
// one present day and emits the minimum, top-up and overage charges.
func aggregateSubscription(
	staffID billing.StaffID,
	date billing.Date,
	records []AttendanceRecord,
	rule *billing.StaffRule,
	subscriptions map[subKey]*subProgress,
	add func(billing.StaffID, billing.Date, decimal.Decimal, string),
) {
	minAmount := billing.Round2(rule.Rate.Mul(
		decimal.NewFromFloat(1).Sub(decimal.NewFromFloat(rule.PenaltyPercent).Div(decimal.NewFromInt(100)))))

	threshold := 0
	if rule.LessonLimit > 0 {
		threshold = int(math.Ceil(float64(rule.LessonLimit) * rule.PenaltyTriggerPercent / 100))
	}

	for _, r := range distinctStudents(records) {
		k := subKey{staffID: staffID, ruleID: rule.ID, studentID: r.StudentID}
		p, ok := subscriptions[k]
		if !ok {
			p = &subProgress{}
			subscriptions[k] = p
		}
		p.count++

		if p.count == 1 {
			// Guaranteed minimum, even if the student later falls short
			// of the session threshold.
			add(staffID, date, minAmount,
				fmt.Sprintf("subscription minimum: %s", r.StudentName))
		}

		if !p.topupDone && threshold > 0 && p.count >= threshold {
			p.topupDone = true
			topup := billing.Round2(rule.Rate.Sub(minAmount))
			if topup.IsPositive() {
				add(staffID, date, topup,
					fmt.Sprintf("subscription threshold reached: %s", r.StudentName))
			}
		}

		if rule.LessonLimit > 0 && p.count > rule.LessonLimit && rule.ExtraLessonRate != nil {
			add(staffID, date, billing.Round2(*rule.ExtraLessonRate),
				fmt.Sprintf("extra lesson: %s", r.StudentName))
		}
	}
}

// distinctStudents returns one record per student, first occurrence wins,
// ordered by student id.
func distinctStudents(records []AttendanceRecord) []AttendanceRecord {
	seen := make(map[billing.StudentID]bool)
	var out []AttendanceRecord
	for _, r := range records {
		if seen[r.StudentID] {
			continue
		}
		seen[r.StudentID] = true
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StudentID < out[j].StudentID })
	return out
}
