package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"gatelog/internal/attendance/service"
	"gatelog/internal/attendance/store/event"
	"gatelog/internal/token"
	id "gatelog/pkg/domain"
)

const signingKey = "test-signing-key"

type testEnv struct {
	router   http.Handler
	jwt      *token.JWTService
	facility id.FacilityID
	operator id.OperatorID
	resident id.ResidentID
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := event.NewInMemory()
	svc := service.New(store)
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	jwt := token.NewJWTService(signingKey, "gatelog-test", "gatelog")

	h := New(svc, logger, jwt)
	r := chi.NewRouter()
	h.Register(r)

	return &testEnv{
		router:   r,
		jwt:      jwt,
		facility: id.FacilityID(uuid.New()),
		operator: id.OperatorID(uuid.New()),
		resident: id.ResidentID(uuid.New()),
	}
}

func (e *testEnv) deviceToken(t *testing.T) string {
	t.Helper()
	tok, err := e.jwt.GenerateDeviceToken("gate-7", e.facility, time.Hour)
	if err != nil {
		t.Fatalf("failed to mint device token: %v", err)
	}
	return tok
}

func (e *testEnv) operatorToken(t *testing.T) string {
	t.Helper()
	tok, err := e.jwt.GenerateOperatorToken(e.operator, e.facility, time.Hour)
	if err != nil {
		t.Fatalf("failed to mint operator token: %v", err)
	}
	return tok
}

func (e *testEnv) do(t *testing.T, method, path, bearer string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("failed to marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) recordEvent(t *testing.T, kind string, occurredAt time.Time) map[string]any {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/attendance/events", e.deviceToken(t), map[string]any{
		"resident_id": e.resident.String(),
		"facility_id": e.facility.String(),
		"kind":        kind,
		"occurred_at": occurredAt.Format(time.RFC3339),
		"day":         "2025-06-02",
		"source":      "biometric",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 recording event, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode event response: %v", err)
	}
	return resp
}

func dayTime(hour int) time.Time {
	return time.Date(2025, 6, 2, hour, 0, 0, 0, time.UTC)
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodGet, "/attendance/facilities/"+env.facility.String()+"/unreconciled?from=2025-06-01&to=2025-06-30", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
}

func TestRecordEventViaHandler(t *testing.T) {
	env := newTestEnv(t)

	resp := env.recordEvent(t, "ENTRY", dayTime(9))
	if resp["status"] != "present" {
		t.Fatalf("expected status present, got %v", resp["status"])
	}
	if resp["id"] == "" {
		t.Fatalf("expected event id in response")
	}
}

func TestRecordEventContradictionStoredAsUnknown(t *testing.T) {
	env := newTestEnv(t)
	env.recordEvent(t, "EXIT", dayTime(9))
	resp := env.recordEvent(t, "EXIT", dayTime(10))
	if resp["status"] != "unknown" {
		t.Fatalf("expected duplicate exit stored as unknown, got %v", resp["status"])
	}
}

func TestRecordEventForeignFacilityForbidden(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/attendance/events", env.deviceToken(t), map[string]any{
		"resident_id": env.resident.String(),
		"facility_id": uuid.NewString(),
		"kind":        "ENTRY",
		"occurred_at": dayTime(9).Format(time.RFC3339),
		"source":      "biometric",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for foreign facility, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestRecordEventRejectsBadKind(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/attendance/events", env.deviceToken(t), map[string]any{
		"resident_id": env.resident.String(),
		"facility_id": env.facility.String(),
		"kind":        "SIDEWAYS",
		"occurred_at": dayTime(9).Format(time.RFC3339),
		"source":      "biometric",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad kind, got %d", rec.Code)
	}
}

func TestReconcileFlow(t *testing.T) {
	env := newTestEnv(t)
	env.recordEvent(t, "EXIT", dayTime(9))
	flagged := env.recordEvent(t, "EXIT", dayTime(10))
	eventID := flagged["id"].(string)

	t.Run("device token cannot reconcile", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/attendance/events/"+eventID+"/reconcile", env.deviceToken(t),
			map[string]string{"notes": "gate glitch"})
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401 for device token, got %d", rec.Code)
		}
	})

	t.Run("operator reconciles with notes", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/attendance/events/"+eventID+"/reconcile", env.operatorToken(t),
			map[string]string{"notes": "warden verified"})
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200 reconciling, got %d: %s", rec.Code, rec.Body.String())
		}
		var resp map[string]any
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("failed to decode reconcile response: %v", err)
		}
		if resp["reconciled"] != true {
			t.Fatalf("expected reconciled true")
		}
		if resp["reconciliation_notes"] != "warden verified" {
			t.Fatalf("expected notes preserved, got %v", resp["reconciliation_notes"])
		}
	})

	t.Run("queue is empty afterwards", func(t *testing.T) {
		rec := env.do(t, http.MethodGet,
			"/attendance/facilities/"+env.facility.String()+"/unreconciled?from=2025-06-01&to=2025-06-30",
			env.operatorToken(t), nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200 listing queue, got %d", rec.Code)
		}
		var resp struct {
			Count int `json:"count"`
		}
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("failed to decode queue response: %v", err)
		}
		if resp.Count != 0 {
			t.Fatalf("expected empty queue, got %d", resp.Count)
		}
	})
}

func TestSoftDeleteAndAuditView(t *testing.T) {
	env := newTestEnv(t)
	created := env.recordEvent(t, "ENTRY", dayTime(9))
	eventID := created["id"].(string)

	rec := env.do(t, http.MethodDelete, "/attendance/events/"+eventID, env.operatorToken(t), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 deleting, got %d: %s", rec.Code, rec.Body.String())
	}

	t.Run("active view hides the record", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/attendance/events/"+eventID, env.operatorToken(t), nil)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404 for deleted event, got %d", rec.Code)
		}
	})

	t.Run("audit view shows it", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/attendance/events/"+eventID+"?include_deleted=true", env.operatorToken(t), nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200 for audit view, got %d", rec.Code)
		}
		var resp map[string]any
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("failed to decode audit response: %v", err)
		}
		if resp["deleted"] != true {
			t.Fatalf("expected deleted true in audit view")
		}
	})

	t.Run("double delete is rejected", func(t *testing.T) {
		rec := env.do(t, http.MethodDelete, "/attendance/events/"+eventID, env.operatorToken(t), nil)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 deleting twice, got %d", rec.Code)
		}
	})
}

func TestStatusCountsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.recordEvent(t, "ENTRY", dayTime(9))
	env.recordEvent(t, "EXIT", dayTime(17))

	path := fmt.Sprintf("/attendance/residents/%s/counts?from=2025-06-01&to=2025-06-07", env.resident)
	rec := env.do(t, http.MethodGet, path, env.operatorToken(t), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for counts, got %d: %s", rec.Code, rec.Body.String())
	}
	var rollup struct {
		Present    int     `json:"present"`
		TotalDays  int     `json:"total_days"`
		Percentage float64 `json:"percentage"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&rollup); err != nil {
		t.Fatalf("failed to decode rollup: %v", err)
	}
	if rollup.Present != 1 || rollup.TotalDays != 1 || rollup.Percentage != 100.0 {
		t.Fatalf("unexpected rollup: %+v", rollup)
	}
}

func TestSweepDayEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.recordEvent(t, "ENTRY", dayTime(9))

	path := fmt.Sprintf("/attendance/residents/%s/days/2025-06-02/sweep", env.resident)
	rec := env.do(t, http.MethodPost, path, env.operatorToken(t), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 sweeping, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		IssuesAttached int `json:"issues_attached"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode sweep response: %v", err)
	}
	if resp.IssuesAttached != 1 {
		t.Fatalf("expected one MISSING_OUT issue attached, got %d", resp.IssuesAttached)
	}
}

func TestBadDayParam(t *testing.T) {
	env := newTestEnv(t)
	path := fmt.Sprintf("/attendance/residents/%s/days/02-06-2025/sweep", env.resident)
	rec := env.do(t, http.MethodPost, path, env.operatorToken(t), nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed day, got %d", rec.Code)
	}
}
