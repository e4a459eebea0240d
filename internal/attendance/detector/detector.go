// Package detector implements the write-time sequencing check. It inspects
// only the immediately preceding event for the same resident and day, which
// keeps it cheap enough to run synchronously on every ingestion.
//
// Contradictions never produce errors. The event is always persisted;
// a suspicious one is downgraded to status unknown with a human-readable
// note and left for the reconciliation queue. Turning these into rejections
// would drop physical gate activity on the floor, which is worse than
// recording it with low confidence.
package detector

import "gatelog/internal/attendance/models"

// Notes attached to downgraded events. Operators see these verbatim in the
// reconciliation queue.
const (
	NoteDuplicateExit  = "Multiple EXIT events detected"
	NoteDuplicateEntry = "Multiple ENTRY events detected"
	NoteExitBeforeIn   = "EXIT time before ENTRY time"
)

// Decision is the detector's verdict on an incoming event.
type Decision struct {
	// Status to persist. Equal to the supplied status unless the sequence
	// contradicts itself, in which case it is StatusUnknown.
	Status models.Status
	// Note is non-empty only when the status was downgraded.
	Note string
	// Contradiction reports whether a sequence anomaly was found.
	Contradiction bool
}

// Decide classifies an incoming event against the most recent non-deleted
// event of the same resident and day. prior is nil when the day has no
// earlier events; that case is always accepted here, since an unmatched EXIT
// is the classifier's MISSING_IN concern, not a write-time contradiction.
//
// The prior record is never modified.
func Decide(incoming *models.EventRecord, prior *models.EventRecord) Decision {
	accepted := Decision{Status: incoming.Status}
	if prior == nil {
		return accepted
	}

	switch {
	case incoming.Kind == models.KindExit && prior.Kind == models.KindExit:
		return Decision{Status: models.StatusUnknown, Note: NoteDuplicateExit, Contradiction: true}

	case incoming.Kind == models.KindExit && prior.Kind == models.KindEntry &&
		incoming.OccurredAt.Before(prior.OccurredAt):
		// Causally impossible ordering: the exit being recorded predates
		// the entry it should close.
		return Decision{Status: models.StatusUnknown, Note: NoteExitBeforeIn, Contradiction: true}

	case incoming.Kind == models.KindEntry && prior.Kind == models.KindEntry:
		// Symmetric duplicate-direction check. The upstream system only
		// guarded the EXIT side; re-entry without checkout is still a
		// contradiction of gate alternation, so it gets the same
		// treatment. See DESIGN.md for the product decision.
		return Decision{Status: models.StatusUnknown, Note: NoteDuplicateEntry, Contradiction: true}
	}

	return accepted
}
