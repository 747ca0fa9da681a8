package caldav

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agenda/internal/model"
)

func strPtr(s string) *string { return &s }

func TestEventToICSRoundTrip(t *testing.T) {
	end := time.Date(2024, 6, 1, 11, 0, 0, 0, time.UTC)
	ev := &model.Event{
		ID:          7,
		UID:         "abc-123",
		Title:       "Design review",
		Description: "bring sketches",
		Location:    "room 2",
		Date:        time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC),
		EndDate:     &end,
		Status:      model.StatusConfirmed,
	}

	ics, err := EventToICS(ev)
	require.NoError(t, err)
	assert.Contains(t, ics, "BEGIN:VEVENT")
	assert.Contains(t, ics, "UID:abc-123")

	data, err := ParseICS(ics)
	require.NoError(t, err)
	assert.False(t, data.IsTask)
	assert.Equal(t, "abc-123", data.UID)
	assert.Equal(t, "Design review", data.Title)
	assert.Equal(t, "bring sketches", data.Description)
	assert.Equal(t, "room 2", data.Location)
	assert.True(t, data.Date.Equal(ev.Date))
	require.NotNil(t, data.EndDate)
	assert.True(t, data.EndDate.Equal(end))
	assert.False(t, data.AllDay)
	assert.Equal(t, model.StatusConfirmed, data.Status)
	assert.Nil(t, data.Rule)
}

func TestEventToICSAllDay(t *testing.T) {
	ev := &model.Event{
		ID:       1,
		UID:      "allday-1",
		Title:    "Holiday",
		Date:     time.Date(2024, 12, 25, 0, 0, 0, 0, time.UTC),
		IsAllDay: true,
	}

	ics, err := EventToICS(ev)
	require.NoError(t, err)
	assert.Contains(t, ics, "DTSTART;VALUE=DATE:20241225")

	data, err := ParseICS(ics)
	require.NoError(t, err)
	assert.True(t, data.AllDay)
	assert.Equal(t, 25, data.Date.Day())
}

func TestEventToICSTaskBecomesTodo(t *testing.T) {
	ev := &model.Event{
		ID:     2,
		UID:    "todo-1",
		Title:  "File taxes",
		Date:   time.Date(2024, 4, 30, 0, 0, 0, 0, time.UTC),
		IsTask: true,
		Status: model.StatusNeedsAction,
	}

	ics, err := EventToICS(ev)
	require.NoError(t, err)
	assert.Contains(t, ics, "BEGIN:VTODO")
	assert.Contains(t, ics, "DUE;VALUE=DATE:20240430")
	assert.NotContains(t, ics, "BEGIN:VEVENT")

	data, err := ParseICS(ics)
	require.NoError(t, err)
	assert.True(t, data.IsTask)
	assert.True(t, data.AllDay)
	assert.Equal(t, model.StatusNeedsAction, data.Status)
	assert.Equal(t, 30, data.Date.Day())
}

func TestEventToICSRecurrence(t *testing.T) {
	ev := &model.Event{
		ID:            3,
		UID:           "weekly-1",
		Title:         "Standup",
		Date:          time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
		RecurringRule: strPtr("RRULE:FREQ=WEEKLY;BYDAY=MO\nEXDATE:20240115T090000Z"),
	}

	ics, err := EventToICS(ev)
	require.NoError(t, err)
	assert.Contains(t, ics, "RRULE:FREQ=WEEKLY;BYDAY=MO")
	assert.Contains(t, ics, "EXDATE:20240115T090000Z")

	data, err := ParseICS(ics)
	require.NoError(t, err)
	require.NotNil(t, data.Rule)
	assert.Equal(t, "RRULE:FREQ=WEEKLY;BYDAY=MO\nEXDATE:20240115T090000Z", *data.Rule)
}

func TestParseICSRejectsEmptyCalendar(t *testing.T) {
	ics := strings.Join([]string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//x//x//EN",
		"END:VCALENDAR",
		"",
	}, "\r\n")
	_, err := ParseICS(ics)
	assert.Error(t, err)
}

func TestParseICSRejectsTodoWithoutDue(t *testing.T) {
	ics := strings.Join([]string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//x//x//EN",
		"BEGIN:VTODO",
		"UID:no-due",
		"SUMMARY:dateless",
		"DTSTAMP:20240101T000000Z",
		"END:VTODO",
		"END:VCALENDAR",
		"",
	}, "\r\n")
	_, err := ParseICS(ics)
	assert.Error(t, err)
}

func TestParseICSRejectsMissingDtstart(t *testing.T) {
	ics := strings.Join([]string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//x//x//EN",
		"BEGIN:VEVENT",
		"UID:no-start",
		"SUMMARY:broken",
		"DTSTAMP:20240101T000000Z",
		"END:VEVENT",
		"END:VCALENDAR",
		"",
	}, "\r\n")
	_, err := ParseICS(ics)
	assert.Error(t, err)
}

func TestETagChangesWithStart(t *testing.T) {
	ev := &model.Event{ID: 9, Date: time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)}
	first := ETag(ev)
	ev.Date = ev.Date.Add(time.Hour)
	assert.NotEqual(t, first, ETag(ev))
	assert.True(t, strings.HasPrefix(first, "\""))
	assert.True(t, strings.HasSuffix(first, "\""))
}
