// Package classifier is the broader validation pass over a day's event
// sequence. Unlike the write-time detector it sees the whole day, so it can
// find unmatched pairs, duplicates, and volume anomalies. It is pure:
// callers decide whether to attach the returned issues.
package classifier

import (
	"fmt"
	"sort"
	"time"

	"gatelog/internal/attendance/models"
	id "gatelog/pkg/domain"
)

// Result maps event IDs to the issues found for them.
type Result map[id.EventID][]models.ValidationIssue

// Issues flattens the result for a single event, preserving order.
func (r Result) Issues(eventID id.EventID) []models.ValidationIssue {
	return r[eventID]
}

// HasErrors reports whether any flagged issue carries error severity.
func (r Result) HasErrors() bool {
	for _, issues := range r {
		for _, issue := range issues {
			if issue.Severity == models.SeverityError {
				return true
			}
		}
	}
	return false
}

// ClassifyDay inspects the full sequence for one resident and day and
// returns the issues to attach per event. Deleted events must already be
// filtered out by the caller; the sequence is re-sorted by OccurredAt so
// results are deterministic regardless of insertion order.
func ClassifyDay(events []*models.EventRecord, policy Policy) Result {
	result := make(Result)
	if len(events) == 0 {
		return result
	}

	seq := make([]*models.EventRecord, len(events))
	copy(seq, events)
	sort.SliceStable(seq, func(i, j int) bool {
		return seq[i].OccurredAt.Before(seq[j].OccurredAt)
	})

	add := func(eventID id.EventID, issue models.ValidationIssue) {
		result[eventID] = append(result[eventID], issue)
	}

	checkDuplicatesAndPairs(seq, policy, add)
	checkVolume(seq, policy, add)
	checkTiming(seq, policy, add)

	return result
}

// ClassifyEvent returns the issues for a single event given its day
// sequence. The event itself must be part of the sequence.
func ClassifyEvent(event *models.EventRecord, daySequence []*models.EventRecord, policy Policy) []models.ValidationIssue {
	return ClassifyDay(daySequence, policy).Issues(event.ID)
}

// checkDuplicatesAndPairs walks the ordered sequence once, flagging
// consecutive same-kind runs (DUPLICATE_ENTRY), implausibly short
// ENTRY→EXIT pairs (SHORT_DURATION), a leading unmatched EXIT (MISSING_IN)
// and a trailing unmatched ENTRY (MISSING_OUT).
func checkDuplicatesAndPairs(seq []*models.EventRecord, policy Policy, add func(id.EventID, models.ValidationIssue)) {
	var prev *models.EventRecord
	for _, e := range seq {
		if prev != nil && prev.Kind == e.Kind {
			add(e.ID, models.NewIssue(
				models.IssueDuplicateEntry,
				fmt.Sprintf("repeated %s with no intervening %s", e.Kind, e.Kind.Opposite()),
				map[string]any{"kind": e.Kind.String(), "previous_at": prev.OccurredAt.Format(time.RFC3339)},
			))
		}
		if prev != nil && prev.Kind == models.KindEntry && e.Kind == models.KindExit {
			elapsed := e.OccurredAt.Sub(prev.OccurredAt)
			if elapsed >= 0 && elapsed < policy.ShortVisit {
				add(e.ID, models.NewIssue(
					models.IssueShortDuration,
					fmt.Sprintf("visit lasted %s, below the %s threshold", elapsed, policy.ShortVisit),
					map[string]any{"duration_seconds": int(elapsed.Seconds())},
				))
			}
		}
		prev = e
	}

	if first := seq[0]; first.Kind == models.KindExit {
		add(first.ID, models.NewIssue(
			models.IssueMissingIn,
			"EXIT recorded with no matching ENTRY earlier in the day",
			nil,
		))
	}
	if last := seq[len(seq)-1]; last.Kind == models.KindEntry {
		add(last.ID, models.NewIssue(
			models.IssueMissingOut,
			"day closed with an ENTRY and no matching EXIT",
			nil,
		))
	}
}

// checkVolume flags the day when the event count exceeds the ceiling. The
// issue is attached to the last event, the one that tipped it over.
func checkVolume(seq []*models.EventRecord, policy Policy, add func(id.EventID, models.ValidationIssue)) {
	if policy.MaxDailyEvents <= 0 || len(seq) <= policy.MaxDailyEvents {
		return
	}
	last := seq[len(seq)-1]
	add(last.ID, models.NewIssue(
		models.IssueExcessiveEntries,
		fmt.Sprintf("%d events recorded, above the daily ceiling of %d", len(seq), policy.MaxDailyEvents),
		map[string]any{"count": len(seq), "ceiling": policy.MaxDailyEvents},
	))
}

// checkTiming flags off-hours events and, when policy asks, weekend gate
// activity. Both are informational; they exist to make the record
// noteworthy, not suspicious.
func checkTiming(seq []*models.EventRecord, policy Policy, add func(id.EventID, models.ValidationIssue)) {
	weekend := false
	if policy.FlagWeekends {
		if wd, err := seq[0].Day.Weekday(); err == nil {
			weekend = wd == time.Saturday || wd == time.Sunday
		}
	}

	for _, e := range seq {
		if !policy.withinGateHours(e.OccurredAt) {
			add(e.ID, models.NewIssue(
				models.IssueUnusualTime,
				fmt.Sprintf("event at %s is outside gate hours %02d:00-%02d:00",
					e.OccurredAt.In(policy.location()).Format("15:04"), policy.GateOpenHour, policy.GateCloseHour),
				map[string]any{"hour": e.OccurredAt.In(policy.location()).Hour()},
			))
		}
		if weekend {
			add(e.ID, models.NewIssue(
				models.IssueWeekendEntry,
				"gate activity on a weekend",
				map[string]any{"day": e.Day.String()},
			))
		}
	}
}
