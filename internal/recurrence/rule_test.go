package recurrence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBareRule(t *testing.T) {
	r, err := Parse("FREQ=WEEKLY;BYDAY=MO")
	require.NoError(t, err)
	assert.Equal(t, "FREQ=WEEKLY;BYDAY=MO", r.RRule)
	assert.Empty(t, r.ExDates)
	assert.Equal(t, "RRULE:FREQ=WEEKLY;BYDAY=MO", r.String())
}

func TestParseCanonicalRoundTrip(t *testing.T) {
	stored := "RRULE:FREQ=DAILY\nEXDATE:20240110T090000Z\nEXDATE:20240115T090000Z"
	r, err := Parse(stored)
	require.NoError(t, err)
	assert.Equal(t, "FREQ=DAILY", r.RRule)
	require.Len(t, r.ExDates, 2)
	assert.Equal(t, stored, r.String())
}

func TestParseRejectsGarbage(t *testing.T) {
	for _, s := range []string{
		"",
		"EXDATE:20240110T090000Z",
		"RRULE:FREQ=SOMETIMES",
		"RRULE:FREQ=DAILY\nEXDATE:not-a-date",
		"DTSTART:20240101T000000Z",
	} {
		_, err := Parse(s)
		assert.Error(t, err, "input %q", s)
	}
}

func TestStringSortsExceptionDates(t *testing.T) {
	r := Rule{RRule: "FREQ=DAILY", ExDates: []time.Time{
		time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
	}}
	assert.Equal(t,
		"RRULE:FREQ=DAILY\nEXDATE:20240101T090000Z\nEXDATE:20240301T090000Z",
		r.String())
}

func TestBetweenHonorsExceptionDates(t *testing.T) {
	anchor := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC) // a Monday
	r, err := Parse("FREQ=WEEKLY;BYDAY=MO")
	require.NoError(t, err)

	skipped := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)
	withEx := r.WithExDate(skipped)

	occurrences, err := withEx.Between(anchor,
		anchor, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), true)
	require.NoError(t, err)

	want := []time.Time{
		time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 8, 9, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 22, 9, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 29, 9, 0, 0, 0, time.UTC),
	}
	require.Len(t, occurrences, len(want))
	for i := range want {
		assert.True(t, want[i].Equal(occurrences[i]), "occurrence %d: got %s", i, occurrences[i])
	}
}

func TestWithExDateIsIdempotent(t *testing.T) {
	d := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)
	r := Rule{RRule: "FREQ=DAILY"}
	once := r.WithExDate(d)
	twice := once.WithExDate(d)
	assert.Len(t, twice.ExDates, 1)
}

func TestTruncateBoundsTheSeries(t *testing.T) {
	anchor := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	r, err := Parse("FREQ=WEEKLY;BYDAY=MO")
	require.NoError(t, err)

	cutoff := time.Date(2024, 1, 14, 9, 0, 0, 0, time.UTC)
	truncated, err := r.Truncate(cutoff)
	require.NoError(t, err)

	occurrences, err := truncated.Between(anchor,
		anchor, time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC), true)
	require.NoError(t, err)
	require.NotEmpty(t, occurrences)
	for _, occ := range occurrences {
		assert.False(t, occ.After(cutoff), "occurrence %s is past the cutoff", occ)
	}
}

func TestTruncateReplacesCount(t *testing.T) {
	r, err := Parse("FREQ=DAILY;COUNT=100")
	require.NoError(t, err)
	truncated, err := r.Truncate(time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.NotContains(t, truncated.RRule, "COUNT")
	assert.Contains(t, truncated.RRule, "UNTIL")
}

func TestUnboundedStripsLimitsAndExceptions(t *testing.T) {
	r, err := Parse("RRULE:FREQ=DAILY;UNTIL=20240301T000000Z\nEXDATE:20240110T090000Z")
	require.NoError(t, err)
	u, err := r.Unbounded()
	require.NoError(t, err)
	assert.NotContains(t, u.RRule, "UNTIL")
	assert.Empty(t, u.ExDates)
}

func TestAfter(t *testing.T) {
	anchor := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	r, err := Parse("FREQ=WEEKLY;BYDAY=MO")
	require.NoError(t, err)

	next, err := r.After(anchor, time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, next.Equal(time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)))
}
