/*
Package factory provides JSON to Go rule conversion.

PURPOSE:
  Converts JSON rule definitions into billing.RuleSet, StaffRule and
  ControllerConfig values. This is how rule configuration travels: the
  admin UI edits JSON, the store persists JSON, and the factory turns it
  into validated engine types.

JSON SCHEMA (activity rules):
  {
    "billing_rules": {
      "present": {"type": "subscription", "rate": 4400},
      "sick":    {"type": "fixed", "rate": 0},
      "value":   {"type": "hourly", "rate": 300}
    },
    "custom_statuses": [
      {"id": "makeup", "name": "Make-up", "rate": -200,
       "type": "fixed", "color": "#8884d8", "is_active": true}
    ]
  }

JSON SCHEMA (staff rule):
  {
    "staff_id": "stf-1", "activity_id": "act-2",
    "rate_type": "subscription", "rate": 3000,
    "lesson_limit": 8, "penalty_trigger_percent": 75,
    "penalty_percent": 30, "extra_lesson_rate": 350,
    "effective_from": "2026-09-01"
  }

VALIDATION:
  - Rule and rate types must be known
  - Built-in status keys require a non-negative rate; only custom
    statuses may carry a negative rate (refund/make-up credit)
  - At most two custom statuses per activity
  - Percent fields must lie in 0..100
  - Controller configs must not reference themselves, directly or
    through a cycle of controllers

SEE ALSO:
  - billing/rules.go: The target types
  - store/sqlite: Persists the same JSON shapes
*/
package factory

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/lumen/tuition-engine/billing"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// RuleJSON is one status-key rule.
type RuleJSON struct {
	Type string  `json:"type"`
	Rate float64 `json:"rate"`
}

// CustomStatusJSON is an activity-defined status.
type CustomStatusJSON struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Rate     float64 `json:"rate"`
	Type     string  `json:"type"`
	Color    string  `json:"color"`
	IsActive bool    `json:"is_active"`
}

// ActivityRulesJSON is the persisted shape of an activity's pricing.
type ActivityRulesJSON struct {
	Rules          map[string]RuleJSON `json:"billing_rules"`
	CustomStatuses []CustomStatusJSON  `json:"custom_statuses,omitempty"`
}

// StaffRuleJSON is the wire shape of one staff compensation rule.
type StaffRuleJSON struct {
	ID                    string   `json:"id,omitempty"`
	StaffID               string   `json:"staff_id"`
	ActivityID            *string  `json:"activity_id,omitempty"` // null = global
	RateType              string   `json:"rate_type"`
	Rate                  float64  `json:"rate"`
	LessonLimit           int      `json:"lesson_limit,omitempty"`
	PenaltyTriggerPercent float64  `json:"penalty_trigger_percent,omitempty"`
	PenaltyPercent        float64  `json:"penalty_percent,omitempty"`
	ExtraLessonRate       *float64 `json:"extra_lesson_rate,omitempty"`
	EffectiveFrom         string   `json:"effective_from"`
	EffectiveTo           *string  `json:"effective_to,omitempty"`
}

// =============================================================================
// RULE FACTORY
// =============================================================================

type RuleFactory struct{}

func NewRuleFactory() *RuleFactory { return &RuleFactory{} }

var builtinKeys = map[string]bool{
	string(billing.StatusPresent):  true,
	string(billing.StatusSick):     true,
	string(billing.StatusAbsent):   true,
	string(billing.StatusVacation): true,
	billing.ValueKey:               true,
}

// ParseRuleSet converts activity pricing JSON into a RuleSet plus the
// custom statuses. Custom statuses are merged into the rule set under
// their ids, so calculators look everything up the same way.
func (f *RuleFactory) ParseRuleSet(data []byte) (billing.RuleSet, []billing.CustomStatus, error) {
	var raw ActivityRulesJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, nil, fmt.Errorf("parse activity rules: %w", err)
	}

	set := make(billing.RuleSet, len(raw.Rules)+len(raw.CustomStatuses))
	for key, rj := range raw.Rules {
		rt, err := parseRuleType(rj.Type)
		if err != nil {
			return nil, nil, &billing.RuleValidationError{Key: key, Reason: err.Error()}
		}
		if builtinKeys[key] && rj.Rate < 0 {
			return nil, nil, &billing.RuleValidationError{Key: key, Reason: "negative rate on built-in status"}
		}
		if !builtinKeys[key] {
			return nil, nil, &billing.RuleValidationError{Key: key, Reason: "unknown status key (custom statuses go in custom_statuses)"}
		}
		set[key] = billing.Rule{Type: rt, Rate: decimal.NewFromFloat(rj.Rate)}
	}

	if len(raw.CustomStatuses) > 2 {
		return nil, nil, &billing.RuleValidationError{Key: "custom_statuses", Reason: "at most 2 custom statuses per activity"}
	}

	statuses := make([]billing.CustomStatus, 0, len(raw.CustomStatuses))
	for _, cj := range raw.CustomStatuses {
		if cj.ID == "" {
			return nil, nil, &billing.RuleValidationError{Key: "custom_statuses", Reason: "custom status without id"}
		}
		rt, err := parseRuleType(cj.Type)
		if err != nil {
			return nil, nil, &billing.RuleValidationError{Key: cj.ID, Reason: err.Error()}
		}
		cs := billing.CustomStatus{
			ID:       cj.ID,
			Name:     cj.Name,
			Rate:     decimal.NewFromFloat(cj.Rate),
			Type:     rt,
			Color:    cj.Color,
			IsActive: cj.IsActive,
		}
		statuses = append(statuses, cs)
		if cs.IsActive {
			set[cs.ID] = billing.Rule{Type: cs.Type, Rate: cs.Rate}
		}
	}

	return set, statuses, nil
}

// ParseStaffRule converts staff rule JSON into a validated StaffRule.
func (f *RuleFactory) ParseStaffRule(data []byte) (billing.StaffRule, error) {
	var raw StaffRuleJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return billing.StaffRule{}, fmt.Errorf("parse staff rule: %w", err)
	}

	rt, err := parseStaffRateType(raw.RateType)
	if err != nil {
		return billing.StaffRule{}, &billing.RuleValidationError{Key: raw.RateType, Reason: err.Error()}
	}
	if raw.Rate < 0 {
		return billing.StaffRule{}, &billing.RuleValidationError{Key: raw.RateType, Reason: "negative rate"}
	}
	if raw.PenaltyTriggerPercent < 0 || raw.PenaltyTriggerPercent > 100 {
		return billing.StaffRule{}, &billing.RuleValidationError{Key: "penalty_trigger_percent", Reason: "must be in 0..100"}
	}
	if raw.PenaltyPercent < 0 || raw.PenaltyPercent > 100 {
		return billing.StaffRule{}, &billing.RuleValidationError{Key: "penalty_percent", Reason: "must be in 0..100"}
	}
	if raw.LessonLimit < 0 {
		return billing.StaffRule{}, &billing.RuleValidationError{Key: "lesson_limit", Reason: "negative lesson limit"}
	}

	from, err := billing.ParseDate(raw.EffectiveFrom)
	if err != nil {
		return billing.StaffRule{}, &billing.RuleValidationError{Key: "effective_from", Reason: err.Error()}
	}

	rule := billing.StaffRule{
		ID:                    raw.ID,
		StaffID:               billing.StaffID(raw.StaffID),
		RateType:              rt,
		Rate:                  decimal.NewFromFloat(raw.Rate),
		LessonLimit:           raw.LessonLimit,
		PenaltyTriggerPercent: raw.PenaltyTriggerPercent,
		PenaltyPercent:        raw.PenaltyPercent,
		EffectiveFrom:         from,
	}
	if raw.ActivityID != nil {
		id := billing.ActivityID(*raw.ActivityID)
		rule.ActivityID = &id
	}
	if raw.ExtraLessonRate != nil {
		extra := decimal.NewFromFloat(*raw.ExtraLessonRate)
		rule.ExtraLessonRate = &extra
	}
	if raw.EffectiveTo != nil {
		to, err := billing.ParseDate(*raw.EffectiveTo)
		if err != nil {
			return billing.StaffRule{}, &billing.RuleValidationError{Key: "effective_to", Reason: err.Error()}
		}
		rule.EffectiveTo = &to
	}

	return rule, nil
}

func parseRuleType(s string) (billing.RuleType, error) {
	switch billing.RuleType(s) {
	case billing.RuleFixed, billing.RuleSubscription, billing.RuleHourly:
		return billing.RuleType(s), nil
	}
	return "", fmt.Errorf("unknown rule type %q", s)
}

func parseStaffRateType(s string) (billing.StaffRateType, error) {
	switch billing.StaffRateType(s) {
	case billing.StaffRateFixed, billing.StaffRatePercent, billing.StaffRatePerSession,
		billing.StaffRateSubscription, billing.StaffRatePerStudent:
		return billing.StaffRateType(s), nil
	}
	return "", fmt.Errorf("unknown rate type %q", s)
}

// =============================================================================
// CONTROLLER GRAPH VALIDATION
// =============================================================================

// ValidateControllerGraph rejects controller configs that reference
// themselves, directly or through a chain of controllers. A cyclic
// config can never derive an amount, so it is an explicit client error.
func ValidateControllerGraph(configs map[billing.ActivityID]*billing.ControllerConfig) error {
	for id := range configs {
		if configs[id] == nil {
			continue
		}
		if err := walkController(id, id, configs, make(map[billing.ActivityID]bool)); err != nil {
			return err
		}
	}
	return nil
}

func walkController(root, current billing.ActivityID, configs map[billing.ActivityID]*billing.ControllerConfig, visited map[billing.ActivityID]bool) error {
	cfg := configs[current]
	if cfg == nil {
		return nil
	}
	if visited[current] {
		return nil
	}
	visited[current] = true

	refs := append(append([]billing.ActivityID{}, cfg.BaseTariffIDs...), cfg.FoodTariffIDs...)
	for _, ref := range refs {
		if ref == root {
			return fmt.Errorf("%w: %s", billing.ErrSelfReferentialConfig, root)
		}
		if err := walkController(root, ref, configs, visited); err != nil {
			return err
		}
	}
	return nil
}
