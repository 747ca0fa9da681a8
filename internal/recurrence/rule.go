// Package recurrence manipulates the recurrence rules of event series:
// parsing, expansion, series truncation for "this and future" edits and
// exception-date injection for single-occurrence edits.
//
// Stored rule form. An event's recurring_rule column holds newline-separated
// iCalendar content lines without DTSTART: one RRULE line followed by zero
// or more EXDATE lines, e.g.
//
//	RRULE:FREQ=WEEKLY;BYDAY=MO
//	EXDATE:20240115T000000Z
//
// A bare rule value ("FREQ=WEEKLY;BYDAY=MO") is accepted on parse and
// normalized to the canonical form on the next write. This single
// round-trippable serialization replaces ad-hoc string appends, so multiple
// exception dates survive repeated edits.
package recurrence

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

const exDateLayout = "20060102T150405Z"

// Rule is the parsed form of a stored recurrence rule.
type Rule struct {
	// RRule is the RRULE property value, without the "RRULE:" prefix.
	RRule string
	// ExDates are occurrence starts excluded from the series, in UTC.
	ExDates []time.Time
}

// Parse reads the canonical stored form. A bare rule value without line
// prefixes is accepted for compatibility with rules written before
// exceptions existed.
func Parse(s string) (Rule, error) {
	var r Rule
	for _, line := range strings.Split(strings.TrimSpace(s), "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "":
		case strings.HasPrefix(line, "RRULE:"):
			r.RRule = strings.TrimPrefix(line, "RRULE:")
		case strings.HasPrefix(line, "EXDATE:"):
			for _, v := range strings.Split(strings.TrimPrefix(line, "EXDATE:"), ",") {
				d, err := time.Parse(exDateLayout, strings.TrimSpace(v))
				if err != nil {
					return Rule{}, fmt.Errorf("invalid EXDATE value %q: %w", v, err)
				}
				r.ExDates = append(r.ExDates, d)
			}
		case !strings.Contains(line, ":"):
			// Bare rule value form.
			r.RRule = line
		default:
			return Rule{}, fmt.Errorf("unsupported rule line %q", line)
		}
	}
	if r.RRule == "" {
		return Rule{}, fmt.Errorf("rule has no RRULE part: %q", s)
	}
	// Validate the rule text early so bad rules fail at write time, not
	// when the scheduler or CalDAV bridge expands them later.
	if _, err := rrule.StrToROption(r.RRule); err != nil {
		return Rule{}, fmt.Errorf("invalid RRULE %q: %w", r.RRule, err)
	}
	return r, nil
}

// String serializes the canonical stored form.
func (r Rule) String() string {
	lines := []string{"RRULE:" + r.RRule}
	dates := append([]time.Time(nil), r.ExDates...)
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	for _, d := range dates {
		lines = append(lines, "EXDATE:"+d.UTC().Format(exDateLayout))
	}
	return strings.Join(lines, "\n")
}

// Set builds an expandable rule set anchored at the series' first
// occurrence.
func (r Rule) Set(anchor time.Time) (*rrule.Set, error) {
	opt, err := rrule.StrToROption(r.RRule)
	if err != nil {
		return nil, fmt.Errorf("invalid RRULE %q: %w", r.RRule, err)
	}
	rr, err := rrule.NewRRule(*opt)
	if err != nil {
		return nil, fmt.Errorf("invalid RRULE %q: %w", r.RRule, err)
	}
	rr.DTStart(anchor)

	var set rrule.Set
	set.RRule(rr)
	for _, ex := range r.ExDates {
		set.ExDate(ex.In(anchor.Location()))
	}
	return &set, nil
}

// Truncate bounds the series so it produces no occurrence after until,
// replacing any existing UNTIL or COUNT.
func (r Rule) Truncate(until time.Time) (Rule, error) {
	opt, err := rrule.StrToROption(r.RRule)
	if err != nil {
		return Rule{}, fmt.Errorf("invalid RRULE %q: %w", r.RRule, err)
	}
	opt.Count = 0
	opt.Until = until.UTC()
	rr, err := rrule.NewRRule(*opt)
	if err != nil {
		return Rule{}, fmt.Errorf("failed to truncate rule %q: %w", r.RRule, err)
	}
	return Rule{RRule: rr.String(), ExDates: r.ExDates}, nil
}

// WithExDate returns a copy of the rule with d added to its exceptions.
// Adding an already-present date is a no-op.
func (r Rule) WithExDate(d time.Time) Rule {
	d = d.UTC()
	for _, ex := range r.ExDates {
		if ex.Equal(d) {
			return r
		}
	}
	out := Rule{RRule: r.RRule, ExDates: append(append([]time.Time(nil), r.ExDates...), d)}
	return out
}

// Unbounded strips UNTIL, COUNT and all exception dates, yielding the rule
// a freshly split series starts from.
func (r Rule) Unbounded() (Rule, error) {
	opt, err := rrule.StrToROption(r.RRule)
	if err != nil {
		return Rule{}, fmt.Errorf("invalid RRULE %q: %w", r.RRule, err)
	}
	opt.Count = 0
	opt.Until = time.Time{}
	rr, err := rrule.NewRRule(*opt)
	if err != nil {
		return Rule{}, fmt.Errorf("failed to unbound rule %q: %w", r.RRule, err)
	}
	return Rule{RRule: rr.String()}, nil
}

// Between expands the series anchored at anchor into concrete occurrence
// starts within [start, end], honoring exception dates. inc controls
// whether occurrences equal to the range bounds are included.
func (r Rule) Between(anchor, start, end time.Time, inc bool) ([]time.Time, error) {
	set, err := r.Set(anchor)
	if err != nil {
		return nil, err
	}
	return set.Between(start, end, inc), nil
}

// After returns the first occurrence at or after t, or a zero time when the
// series is exhausted.
func (r Rule) After(anchor, t time.Time) (time.Time, error) {
	set, err := r.Set(anchor)
	if err != nil {
		return time.Time{}, err
	}
	return set.After(t, true), nil
}
