package models

import (
	"math"
	"time"

	id "gatelog/pkg/domain"
)

// DailySummary is one summarized record per resident per day. The last
// non-deleted event of the day (by OccurredAt) is authoritative: latest
// action wins. Only status-relevant fields are projected.
type DailySummary struct {
	ResidentID id.ResidentID `json:"resident_id"`
	Day        id.DayKey     `json:"day"`
	Status     Status        `json:"status"`
	Kind       EventKind     `json:"kind"`
	OccurredAt time.Time     `json:"occurred_at"`
	EventCount int           `json:"event_count"`
	HasIssues  bool          `json:"has_issues"`
}

// StatusRollup counts authoritative day statuses across a date range.
type StatusRollup struct {
	Present    int     `json:"present"`
	Absent     int     `json:"absent"`
	OnLeave    int     `json:"on_leave"`
	Late       int     `json:"late"`
	HalfDay    int     `json:"half_day"`
	Excused    int     `json:"excused"`
	LeftEarly  int     `json:"left_early"`
	Unknown    int     `json:"unknown"`
	TotalDays  int     `json:"total_days"`
	Percentage float64 `json:"percentage"`
}

// RollupFromSummaries folds daily summaries into a status-count rollup.
// Attendance percentage = (present + late + half_day) / totalDays * 100,
// rounded to two decimals; zero totalDays yields zero, never a division
// error.
func RollupFromSummaries(summaries []DailySummary) StatusRollup {
	var r StatusRollup
	for _, s := range summaries {
		r.TotalDays++
		switch s.Status {
		case StatusPresent:
			r.Present++
		case StatusAbsent:
			r.Absent++
		case StatusOnLeave:
			r.OnLeave++
		case StatusLate:
			r.Late++
		case StatusHalfDay:
			r.HalfDay++
		case StatusExcused:
			r.Excused++
		case StatusLeftEarly:
			r.LeftEarly++
		case StatusUnknown:
			r.Unknown++
		}
	}
	if r.TotalDays == 0 {
		return r
	}
	pct := float64(r.Present+r.Late+r.HalfDay) / float64(r.TotalDays) * 100
	r.Percentage = math.Round(pct*100) / 100
	return r
}

// FacilityDayReport aggregates authoritative statuses across all residents
// of a facility for a single day.
type FacilityDayReport struct {
	FacilityID id.FacilityID  `json:"facility_id"`
	Day        id.DayKey      `json:"day"`
	Residents  int            `json:"residents"`
	ByStatus   map[Status]int `json:"by_status"`
}
