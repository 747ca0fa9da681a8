package caldav

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-ical"

	"agenda/internal/model"
	"agenda/internal/recurrence"
)

const (
	prodID     = "-//Agenda//Calendar Server//EN"
	dateLayout = "20060102"
	utcLayout  = "20060102T150405Z"
)

// ETag derives the entity tag from the event's identity and start
// timestamp, so any start change invalidates client caches.
func ETag(ev *model.Event) string {
	return fmt.Sprintf("\"%d-%d\"", ev.ID, ev.Date.Unix())
}

// EventToICS serializes an event as an iCalendar document: VTODO for tasks
// (due mapped from the event date, always all-day), VEVENT otherwise.
func EventToICS(ev *model.Event) (string, error) {
	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, prodID)

	name := ical.CompEvent
	if ev.IsTask {
		name = ical.CompToDo
	}
	comp := ical.NewComponent(name)
	comp.Props.SetText(ical.PropUID, ev.UID)
	comp.Props.SetText(ical.PropSummary, ev.Title)
	comp.Props.SetDateTime(ical.PropDateTimeStamp, time.Now().UTC())
	if ev.Description != "" {
		comp.Props.SetText(ical.PropDescription, ev.Description)
	}
	if ev.Location != "" {
		comp.Props.SetText(ical.PropLocation, ev.Location)
	}
	if ev.Status != "" {
		comp.Props.SetText(ical.PropStatus, strings.ToUpper(ev.Status))
	}

	if ev.IsTask {
		setDateProp(comp, ical.PropDue, ev.Date, true)
	} else {
		setDateProp(comp, ical.PropDateTimeStart, ev.Date, ev.IsAllDay)
		if ev.EndDate != nil {
			setDateProp(comp, ical.PropDateTimeEnd, *ev.EndDate, ev.IsAllDay)
		}
	}

	if ev.RecurringRule != nil && *ev.RecurringRule != "" {
		rule, err := recurrence.Parse(*ev.RecurringRule)
		if err != nil {
			return "", fmt.Errorf("event %d has invalid rule: %w", ev.ID, err)
		}
		// RRULE carries a RECUR value, so it is set raw rather than through
		// the text helpers.
		rp := ical.NewProp(ical.PropRecurrenceRule)
		rp.Value = rule.RRule
		comp.Props.Set(rp)
		for _, ex := range rule.ExDates {
			p := ical.NewProp(ical.PropExceptionDates)
			p.Value = ex.UTC().Format(utcLayout)
			comp.Props.Add(p)
		}
	}

	cal.Children = append(cal.Children, comp)

	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		return "", fmt.Errorf("failed to encode event %d: %w", ev.ID, err)
	}
	return buf.String(), nil
}

func setDateProp(comp *ical.Component, name string, t time.Time, allDay bool) {
	if allDay {
		p := ical.NewProp(name)
		p.Params.Set(ical.ParamValue, "DATE")
		p.Value = t.Format(dateLayout)
		comp.Props.Set(p)
		return
	}
	comp.Props.SetDateTime(name, t)
}

// ObjectData is the payload extracted from an uploaded iCalendar document.
// IsTask tags whether it came from a VTODO or a VEVENT.
type ObjectData struct {
	UID         string
	IsTask      bool
	Title       string
	Description string
	Location    string
	Date        time.Time
	EndDate     *time.Time
	AllDay      bool
	Status      string
	Rule        *string
}

// ParseICS extracts the first VEVENT, or failing that the first VTODO,
// from an uploaded iCalendar payload.
func ParseICS(ics string) (*ObjectData, error) {
	cal, err := ical.NewDecoder(strings.NewReader(ics)).Decode()
	if err != nil {
		return nil, fmt.Errorf("failed to decode iCalendar data: %w", err)
	}

	comp := findComponent(cal, ical.CompEvent)
	isTask := false
	if comp == nil {
		comp = findComponent(cal, ical.CompToDo)
		isTask = true
	}
	if comp == nil {
		return nil, fmt.Errorf("iCalendar payload contains no VEVENT or VTODO")
	}

	data := &ObjectData{IsTask: isTask}
	data.UID, _ = comp.Props.Text(ical.PropUID)
	data.Title, _ = comp.Props.Text(ical.PropSummary)
	data.Description, _ = comp.Props.Text(ical.PropDescription)
	data.Location, _ = comp.Props.Text(ical.PropLocation)

	if isTask {
		// Tasks map their due date onto the event date and are treated
		// as all-day.
		due, dueErr := propTime(comp, ical.PropDue)
		if dueErr != nil {
			return nil, fmt.Errorf("VTODO has no usable DUE: %w", dueErr)
		}
		data.Date = due
		data.AllDay = true
		data.Status = model.StatusNeedsAction
		if s, err := comp.Props.Text(ical.PropStatus); err == nil && s != "" {
			data.Status = strings.ToLower(s)
		}
		return data, nil
	}

	start, err := propTime(comp, ical.PropDateTimeStart)
	if err != nil {
		return nil, fmt.Errorf("VEVENT has no usable DTSTART: %w", err)
	}
	data.Date = start
	data.AllDay = isDateProp(comp, ical.PropDateTimeStart)
	if end, err := propTime(comp, ical.PropDateTimeEnd); err == nil {
		data.EndDate = &end
	}
	data.Status = model.StatusConfirmed
	if s, err := comp.Props.Text(ical.PropStatus); err == nil && s != "" {
		data.Status = strings.ToLower(s)
	}

	if rp := comp.Props.Get(ical.PropRecurrenceRule); rp != nil && rp.Value != "" {
		lines := []string{"RRULE:" + rp.Value}
		for _, p := range comp.Props[ical.PropExceptionDates] {
			lines = append(lines, "EXDATE:"+p.Value)
		}
		rule, err := recurrence.Parse(strings.Join(lines, "\n"))
		if err != nil {
			return nil, fmt.Errorf("uploaded recurrence rule rejected: %w", err)
		}
		s := rule.String()
		data.Rule = &s
	}

	return data, nil
}

func findComponent(cal *ical.Calendar, name string) *ical.Component {
	for _, child := range cal.Children {
		if child.Name == name {
			return child
		}
	}
	return nil
}

// propTime reads a date or date-time property, accepting the all-day DATE
// form alongside full timestamps.
func propTime(comp *ical.Component, name string) (time.Time, error) {
	prop := comp.Props.Get(name)
	if prop == nil {
		return time.Time{}, fmt.Errorf("property %s not present", name)
	}
	if isDateProp(comp, name) {
		return time.Parse(dateLayout, prop.Value)
	}
	return comp.Props.DateTime(name, time.UTC)
}

func isDateProp(comp *ical.Component, name string) bool {
	prop := comp.Props.Get(name)
	if prop == nil {
		return false
	}
	return strings.EqualFold(prop.Params.Get(ical.ParamValue), "DATE") || len(prop.Value) == len(dateLayout)
}
