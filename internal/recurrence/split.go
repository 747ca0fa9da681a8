package recurrence

import (
	"fmt"
	"time"
)

// EditMode selects how an update applies to a recurring series.
type EditMode string

const (
	// EditAll updates the series record in place.
	EditAll EditMode = "all"
	// EditFuture splits the series at an occurrence: the original is
	// truncated before it and a new series starts there.
	EditFuture EditMode = "future"
	// EditThis detaches a single occurrence: the original series gains an
	// exception date and a non-recurring event is materialized.
	EditThis EditMode = "this"
)

// Valid reports whether m is a recognized edit mode. The empty mode is
// treated as EditAll.
func (m EditMode) Valid() bool {
	switch m {
	case "", EditAll, EditFuture, EditThis:
		return true
	}
	return false
}

// SplitPlan is the outcome of planning a future/this edit: the mutated rule
// for the original series record and the rule of the event to materialize.
type SplitPlan struct {
	// OriginalRule replaces the series record's stored rule.
	OriginalRule string
	// NewRule is the materialized event's rule; nil means non-recurring.
	NewRule *string
}

// PlanSplit computes the rule mutations for splitting a series whose stored
// rule is ruleText, anchored at anchor, at the given occurrence date.
//
// For EditFuture the original's UNTIL is set to one day before occurrence
// and the new series carries either the update-provided rule or the
// original rule unbounded of its UNTIL/COUNT and exceptions. For EditThis
// the occurrence is added to the original's exception dates and the new
// event is non-recurring.
func PlanSplit(ruleText string, anchor time.Time, mode EditMode, occurrence time.Time, override *string) (SplitPlan, error) {
	rule, err := Parse(ruleText)
	if err != nil {
		return SplitPlan{}, err
	}

	switch mode {
	case EditFuture:
		truncated, err := rule.Truncate(occurrence.AddDate(0, 0, -1))
		if err != nil {
			return SplitPlan{}, err
		}

		var newRule Rule
		if override != nil && *override != "" {
			if newRule, err = Parse(*override); err != nil {
				return SplitPlan{}, err
			}
		} else if newRule, err = rule.Unbounded(); err != nil {
			return SplitPlan{}, err
		}
		s := newRule.String()
		return SplitPlan{OriginalRule: truncated.String(), NewRule: &s}, nil

	case EditThis:
		return SplitPlan{OriginalRule: rule.WithExDate(occurrence).String()}, nil

	default:
		return SplitPlan{}, fmt.Errorf("edit mode %q does not split a series", mode)
	}
}
