package filter

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Kind is the semantic type of a filterable field, used to coerce the
// textual rule value before it reaches the store.
type Kind int

const (
	KindString Kind = iota
	KindInt
	KindFloat
	KindBool
	KindTime
)

// String provides a human-readable representation of the Kind.
func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindTime:
		return "time"
	default:
		return "string"
	}
}

// timeLayouts are tried in order when coercing date/time values. The grammar
// accepts full ISO-8601 timestamps, zone-less timestamps and bare dates.
var timeLayouts = []string{
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02T15:04:05-07:00",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// Coerce converts a raw filter value into the Go type matching kind.
// A trailing "Z" on timestamps is normalized to "+00:00" before parsing.
// Booleans never fail: anything outside {"true","1","yes"} is false.
func Coerce(kind Kind, raw string) (any, error) {
	switch kind {
	case KindInt:
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid value %q for int field: %w", raw, err)
		}
		return n, nil
	case KindFloat:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid value %q for float field: %w", raw, err)
		}
		return f, nil
	case KindBool:
		switch strings.ToLower(raw) {
		case "true", "1", "yes":
			return true, nil
		default:
			return false, nil
		}
	case KindTime:
		return coerceTime(raw)
	default:
		return raw, nil
	}
}

func coerceTime(raw string) (time.Time, error) {
	if strings.HasSuffix(raw, "Z") {
		raw = strings.TrimSuffix(raw, "Z") + "+00:00"
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid value %q for time field", raw)
}
