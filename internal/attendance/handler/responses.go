package handler

import (
	"gatelog/internal/attendance/classifier"
	"gatelog/internal/attendance/models"
)

// eventListResponse wraps a list of records with its count.
type eventListResponse struct {
	Events []*models.EventRecord `json:"events"`
	Count  int                   `json:"count"`
}

func newEventListResponse(events []*models.EventRecord) eventListResponse {
	if events == nil {
		events = []*models.EventRecord{}
	}
	return eventListResponse{Events: events, Count: len(events)}
}

// classifyResponse exposes the classifier result keyed by event ID.
type classifyResponse struct {
	Issues     map[string][]models.ValidationIssue `json:"issues"`
	IssueCount int                                 `json:"issue_count"`
	HasErrors  bool                                `json:"has_errors"`
}

func newClassifyResponse(result classifier.Result) classifyResponse {
	resp := classifyResponse{
		Issues:    make(map[string][]models.ValidationIssue, len(result)),
		HasErrors: result.HasErrors(),
	}
	for eventID, issues := range result {
		resp.Issues[eventID.String()] = issues
		resp.IssueCount += len(issues)
	}
	return resp
}

// sweepResponse reports how many issues a sweep attached.
type sweepResponse struct {
	IssuesAttached int `json:"issues_attached"`
}

// dailyStatusResponse wraps the per-day summaries.
type dailyStatusResponse struct {
	Summaries []models.DailySummary `json:"summaries"`
	Count     int                   `json:"count"`
}

func newDailyStatusResponse(summaries []models.DailySummary) dailyStatusResponse {
	if summaries == nil {
		summaries = []models.DailySummary{}
	}
	return dailyStatusResponse{Summaries: summaries, Count: len(summaries)}
}
