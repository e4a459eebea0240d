package models

import dErrors "gatelog/pkg/domain-errors"

// IssueKind classifies a validation finding on an event. The set is closed;
// new kinds require a severity entry in defaultSeverities.
type IssueKind string

const (
	IssueDuplicateEntry   IssueKind = "DUPLICATE_ENTRY"
	IssueShortDuration    IssueKind = "SHORT_DURATION"
	IssueMissingOut       IssueKind = "MISSING_OUT"
	IssueMissingIn        IssueKind = "MISSING_IN"
	IssueExcessiveEntries IssueKind = "EXCESSIVE_ENTRIES"
	IssueUnusualTime      IssueKind = "UNUSUAL_TIME"
	IssueWeekendEntry     IssueKind = "WEEKEND_ENTRY"
)

// Severity ranks an issue for queue prioritization. Error severity drives
// HasValidationErrors and pushes the record up the reconciliation queue.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

var defaultSeverities = map[IssueKind]Severity{
	IssueDuplicateEntry:   SeverityWarning,
	IssueShortDuration:    SeverityWarning,
	IssueMissingOut:       SeverityWarning,
	IssueMissingIn:        SeverityWarning,
	IssueExcessiveEntries: SeverityError,
	IssueUnusualTime:      SeverityInfo,
	IssueWeekendEntry:     SeverityInfo,
}

// ParseIssueKind constructs an IssueKind from external input.
func ParseIssueKind(s string) (IssueKind, error) {
	k := IssueKind(s)
	if _, ok := defaultSeverities[k]; !ok {
		return "", dErrors.New(dErrors.CodeInvalidInput, "unsupported issue kind")
	}
	return k, nil
}

// DefaultSeverity returns the configured severity for the kind; unknown
// kinds default to warning so a taxonomy gap is visible, not silent.
func (k IssueKind) DefaultSeverity() Severity {
	if sev, ok := defaultSeverities[k]; ok {
		return sev
	}
	return SeverityWarning
}

func (k IssueKind) String() string { return string(k) }

// ValidationIssue is one typed finding attached to an event by the
// classifier. Data carries kind-specific detail (durations, counts) for
// operator display.
type ValidationIssue struct {
	Kind     IssueKind      `json:"kind"`
	Severity Severity       `json:"severity"`
	Message  string         `json:"message"`
	Data     map[string]any `json:"data,omitempty"`
}

// NewIssue builds an issue with the kind's default severity.
func NewIssue(kind IssueKind, message string, data map[string]any) ValidationIssue {
	return ValidationIssue{
		Kind:     kind,
		Severity: kind.DefaultSeverity(),
		Message:  message,
		Data:     data,
	}
}
