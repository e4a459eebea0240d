// Package handler exposes the attendance core over HTTP. Routes are
// mounted under /attendance and run the full middleware chain; facility
// scope always comes from the caller's token, never from the payload alone.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"gatelog/internal/attendance/classifier"
	"gatelog/internal/attendance/models"
	"gatelog/internal/attendance/service"
	"gatelog/internal/platform/middleware"
	"gatelog/internal/transport/http/shared"
	id "gatelog/pkg/domain"
	dErrors "gatelog/pkg/domain-errors"
	"gatelog/pkg/requestcontext"
)

// Service defines the attendance operations the handler depends on.
type Service interface {
	RecordEvent(ctx context.Context, in service.RecordEventInput) (*models.EventRecord, error)
	GetEvent(ctx context.Context, facilityID id.FacilityID, eventID id.EventID, includeDeleted bool) (*models.EventRecord, error)
	ListDayEvents(ctx context.Context, facilityID id.FacilityID, residentID id.ResidentID, day id.DayKey, includeDeleted bool) ([]*models.EventRecord, error)
	ListResidentEvents(ctx context.Context, facilityID id.FacilityID, residentID id.ResidentID, rng id.DateRange, includeDeleted bool) ([]*models.EventRecord, error)
	ClassifyDay(ctx context.Context, facilityID id.FacilityID, residentID id.ResidentID, day id.DayKey) (classifier.Result, error)
	SweepDay(ctx context.Context, facilityID id.FacilityID, residentID id.ResidentID, day id.DayKey) (int, error)
	SweepFacilityDay(ctx context.Context, facilityID id.FacilityID, day id.DayKey) (int, error)
	GetDailyStatus(ctx context.Context, facilityID id.FacilityID, residentID id.ResidentID, rng id.DateRange) ([]models.DailySummary, error)
	GetStatusCounts(ctx context.Context, facilityID id.FacilityID, residentID id.ResidentID, rng id.DateRange) (models.StatusRollup, error)
	GetFacilityDayReport(ctx context.Context, facilityID id.FacilityID, day id.DayKey) (models.FacilityDayReport, error)
	GetUnreconciled(ctx context.Context, facilityID id.FacilityID, rng id.DateRange) ([]*models.EventRecord, error)
	Reconcile(ctx context.Context, facilityID id.FacilityID, eventID id.EventID, notes string) (*models.EventRecord, error)
	SoftDelete(ctx context.Context, facilityID id.FacilityID, eventID id.EventID) (*models.EventRecord, error)
}

// Handler handles attendance endpoints.
type Handler struct {
	logger       *slog.Logger
	attendance   Service
	jwtValidator middleware.JWTValidator
}

// New creates an attendance Handler.
func New(attendance Service, logger *slog.Logger, jwtValidator middleware.JWTValidator) *Handler {
	return &Handler{
		logger:       logger,
		attendance:   attendance,
		jwtValidator: jwtValidator,
	}
}

// Register registers the attendance routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	router := chi.NewRouter()
	router.Use(middleware.Recovery(h.logger))
	router.Use(middleware.RequestID)
	router.Use(middleware.RequestClock)
	router.Use(middleware.Logger(h.logger))
	router.Use(middleware.Timeout(30 * time.Second))
	router.Use(middleware.ContentTypeJSON)
	router.Use(middleware.RequireAuth(h.jwtValidator, h.logger))

	router.Post("/events", h.handleRecordEvent)
	router.Get("/events/{eventID}", h.handleGetEvent)
	router.Post("/events/{eventID}/reconcile", h.handleReconcile)
	router.Delete("/events/{eventID}", h.handleSoftDelete)

	router.Get("/residents/{residentID}/events", h.handleListResidentEvents)
	router.Get("/residents/{residentID}/days/{day}/events", h.handleListDayEvents)
	router.Get("/residents/{residentID}/days/{day}/classify", h.handleClassifyDay)
	router.Post("/residents/{residentID}/days/{day}/sweep", h.handleSweepDay)
	router.Get("/residents/{residentID}/daily", h.handleDailyStatus)
	router.Get("/residents/{residentID}/counts", h.handleStatusCounts)

	router.Post("/facilities/{facilityID}/days/{day}/sweep", h.handleSweepFacility)
	router.Get("/facilities/{facilityID}/days/{day}/report", h.handleFacilityReport)
	router.Get("/facilities/{facilityID}/unreconciled", h.handleUnreconciled)

	r.Mount("/attendance", router)
}

func (h *Handler) handleRecordEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req RecordEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	req.Normalize()
	in, err := req.ToInput()
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	record, err := h.attendance.RecordEvent(ctx, in)
	if err != nil {
		h.logFailure(ctx, "failed to record event", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, record)
}

func (h *Handler) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	eventID, err := id.ParseEventID(chi.URLParam(r, "eventID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	includeDeleted := r.URL.Query().Get("include_deleted") == "true"

	record, err := h.attendance.GetEvent(ctx, requestcontext.FacilityID(ctx), eventID, includeDeleted)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, record)
}

func (h *Handler) handleReconcile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	eventID, err := id.ParseEventID(chi.URLParam(r, "eventID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	var req ReconcileRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
			return
		}
	}

	record, err := h.attendance.Reconcile(ctx, requestcontext.FacilityID(ctx), eventID, req.Notes)
	if err != nil {
		h.logFailure(ctx, "failed to reconcile event", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, record)
}

func (h *Handler) handleSoftDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	eventID, err := id.ParseEventID(chi.URLParam(r, "eventID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	record, err := h.attendance.SoftDelete(ctx, requestcontext.FacilityID(ctx), eventID)
	if err != nil {
		h.logFailure(ctx, "failed to delete event", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, record)
}

func (h *Handler) handleListResidentEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	residentID, err := id.ParseResidentID(chi.URLParam(r, "residentID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	rng, err := parseRange(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	includeDeleted := r.URL.Query().Get("include_deleted") == "true"

	events, err := h.attendance.ListResidentEvents(ctx, requestcontext.FacilityID(ctx), residentID, rng, includeDeleted)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, newEventListResponse(events))
}

func (h *Handler) handleListDayEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	residentID, day, err := residentDayParams(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	includeDeleted := r.URL.Query().Get("include_deleted") == "true"

	events, err := h.attendance.ListDayEvents(ctx, requestcontext.FacilityID(ctx), residentID, day, includeDeleted)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, newEventListResponse(events))
}

func (h *Handler) handleClassifyDay(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	residentID, day, err := residentDayParams(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	result, err := h.attendance.ClassifyDay(ctx, requestcontext.FacilityID(ctx), residentID, day)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, newClassifyResponse(result))
}

func (h *Handler) handleSweepDay(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	residentID, day, err := residentDayParams(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	attached, err := h.attendance.SweepDay(ctx, requestcontext.FacilityID(ctx), residentID, day)
	if err != nil {
		h.logFailure(ctx, "failed to sweep day", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, sweepResponse{IssuesAttached: attached})
}

func (h *Handler) handleDailyStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	residentID, err := id.ParseResidentID(chi.URLParam(r, "residentID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	rng, err := parseRange(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	summaries, err := h.attendance.GetDailyStatus(ctx, requestcontext.FacilityID(ctx), residentID, rng)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, newDailyStatusResponse(summaries))
}

func (h *Handler) handleStatusCounts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	residentID, err := id.ParseResidentID(chi.URLParam(r, "residentID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	rng, err := parseRange(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	rollup, err := h.attendance.GetStatusCounts(ctx, requestcontext.FacilityID(ctx), residentID, rng)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, rollup)
}

func (h *Handler) handleSweepFacility(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	facilityID, day, err := facilityDayParams(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	attached, err := h.attendance.SweepFacilityDay(ctx, facilityID, day)
	if err != nil {
		h.logFailure(ctx, "failed to sweep facility", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, sweepResponse{IssuesAttached: attached})
}

func (h *Handler) handleFacilityReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	facilityID, day, err := facilityDayParams(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	report, err := h.attendance.GetFacilityDayReport(ctx, facilityID, day)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, report)
}

func (h *Handler) handleUnreconciled(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	facilityID, err := id.ParseFacilityID(chi.URLParam(r, "facilityID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	rng, err := parseRange(r)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	events, err := h.attendance.GetUnreconciled(ctx, facilityID, rng)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, newEventListResponse(events))
}

func (h *Handler) logFailure(ctx context.Context, msg string, err error) {
	if h.logger == nil {
		return
	}
	h.logger.ErrorContext(ctx, msg,
		"error", err.Error(),
		"request_id", middleware.GetRequestID(ctx),
	)
}

func residentDayParams(r *http.Request) (id.ResidentID, id.DayKey, error) {
	residentID, err := id.ParseResidentID(chi.URLParam(r, "residentID"))
	if err != nil {
		return id.ResidentID{}, "", err
	}
	day, err := id.ParseDayKey(chi.URLParam(r, "day"))
	if err != nil {
		return id.ResidentID{}, "", err
	}
	return residentID, day, nil
}

func facilityDayParams(r *http.Request) (id.FacilityID, id.DayKey, error) {
	facilityID, err := id.ParseFacilityID(chi.URLParam(r, "facilityID"))
	if err != nil {
		return id.FacilityID{}, "", err
	}
	day, err := id.ParseDayKey(chi.URLParam(r, "day"))
	if err != nil {
		return id.FacilityID{}, "", err
	}
	return facilityID, day, nil
}

// parseRange reads the from/to query parameters as an inclusive day range.
func parseRange(r *http.Request) (id.DateRange, error) {
	return id.ParseDateRange(r.URL.Query().Get("from"), r.URL.Query().Get("to"))
}
