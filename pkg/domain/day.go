package domain

import (
	"time"

	dErrors "gatelog/pkg/domain-errors"
)

// dayLayout is the canonical YYYY-MM-DD form used to bucket events into a
// calendar day independent of exact timestamp.
const dayLayout = "2006-01-02"

// DayKey groups events into the calendar day they logically occurred in.
// It is derived from facility-local wall-clock time at ingestion, not from
// the absolute timestamp, so a midnight-crossing swipe stays on the day the
// ingesting context assigned it.
type DayKey string

// DayOf buckets a timestamp into a day key using the given location.
func DayOf(t time.Time, loc *time.Location) DayKey {
	if loc == nil {
		loc = time.Local
	}
	return DayKey(t.In(loc).Format(dayLayout))
}

// ParseDayKey validates external YYYY-MM-DD input.
func ParseDayKey(s string) (DayKey, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "day cannot be empty")
	}
	t, err := time.Parse(dayLayout, s)
	if err != nil {
		return "", dErrors.New(dErrors.CodeInvalidInput, "day must be in YYYY-MM-DD form")
	}
	// Round-trip guards against inputs like 2024-2-3 that time.Parse rejects
	// anyway, and normalizes nothing: the stored key is the input.
	if t.Format(dayLayout) != s {
		return "", dErrors.New(dErrors.CodeInvalidInput, "day must be in YYYY-MM-DD form")
	}
	return DayKey(s), nil
}

func (d DayKey) String() string { return string(d) }

// Time returns the midnight instant of the day in loc.
func (d DayKey) Time(loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	return time.ParseInLocation(dayLayout, string(d), loc)
}

// Weekday reports the day-of-week for weekend policy checks.
func (d DayKey) Weekday() (time.Weekday, error) {
	t, err := time.Parse(dayLayout, string(d))
	if err != nil {
		return time.Sunday, dErrors.New(dErrors.CodeInvalidInput, "malformed day key")
	}
	return t.Weekday(), nil
}

// DateRange is an inclusive [From, To] window of day keys.
type DateRange struct {
	From DayKey
	To   DayKey
}

// ParseDateRange validates both bounds and their ordering.
func ParseDateRange(from, to string) (DateRange, error) {
	f, err := ParseDayKey(from)
	if err != nil {
		return DateRange{}, err
	}
	t, err := ParseDayKey(to)
	if err != nil {
		return DateRange{}, err
	}
	if string(t) < string(f) {
		return DateRange{}, dErrors.New(dErrors.CodeInvalidInput, "date range end precedes start")
	}
	return DateRange{From: f, To: t}, nil
}

// Contains reports whether day falls inside the range. Day keys compare
// lexicographically because of the fixed-width layout.
func (r DateRange) Contains(day DayKey) bool {
	return string(day) >= string(r.From) && string(day) <= string(r.To)
}
