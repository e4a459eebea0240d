package classifier

import "time"

// Policy holds the facility-configurable thresholds the classifier applies.
// Facilities without an explicit policy fall back to DefaultPolicy().
type Policy struct {
	// ShortVisit flags an ENTRY→EXIT pair whose elapsed time is below this.
	ShortVisit time.Duration
	// MaxDailyEvents is the ceiling before EXCESSIVE_ENTRIES fires.
	MaxDailyEvents int
	// GateOpenHour/GateCloseHour bound normal gate hours (local, 24h).
	// Events outside [open, close) are UNUSUAL_TIME.
	GateOpenHour  int
	GateCloseHour int
	// FlagWeekends marks Saturday/Sunday gate activity as noteworthy.
	FlagWeekends bool
	// Timezone resolves local wall-clock hours for UNUSUAL_TIME checks.
	Timezone *time.Location
}

// DefaultPolicy mirrors the thresholds hostels run with in practice:
// a five-minute short-visit window and a 05:00–23:00 gate day.
func DefaultPolicy() Policy {
	return Policy{
		ShortVisit:     5 * time.Minute,
		MaxDailyEvents: 10,
		GateOpenHour:   5,
		GateCloseHour:  23,
		FlagWeekends:   false,
		Timezone:       time.UTC,
	}
}

func (p Policy) location() *time.Location {
	if p.Timezone == nil {
		return time.UTC
	}
	return p.Timezone
}

// withinGateHours reports whether the local hour falls inside normal hours.
func (p Policy) withinGateHours(t time.Time) bool {
	h := t.In(p.location()).Hour()
	return h >= p.GateOpenHour && h < p.GateCloseHour
}
