package scheduling

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/legalaid/legalaid/internal/platform/auth"
	"github.com/legalaid/legalaid/internal/platform/notification"
)

var handlerJWTCfg = auth.JWTConfig{SigningKey: []byte("test-signing-key"), Issuer: "legalaid"}

func newTestServer(t *testing.T) (*echo.Echo, *mockApptRepo) {
	t.Helper()
	repo := newMockApptRepo()
	svc := newTestService(repo, newMockDirectory(), &notification.MockEmailSender{})

	e := echo.New()
	api := e.Group("/api", auth.JWTMiddleware(handlerJWTCfg))
	NewHandler(svc).RegisterRoutes(api)
	return e, repo
}

func doJSON(t *testing.T, e *echo.Echo, method, path, body string, p auth.Principal) *httptest.ResponseRecorder {
	t.Helper()
	token, err := auth.IssueToken(p, handlerJWTCfg, time.Hour)
	if err != nil {
		t.Fatalf("issuing token: %v", err)
	}

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestBookEndpoint_ConflictAndSuccess(t *testing.T) {
	e, repo := newTestServer(t)
	client := auth.Principal{Role: auth.RoleClient, ID: 10}

	// Seed: the lawyer has a confirmed appointment at 14:00 UTC.
	seedAppointment(t, repo, StatusConfirmed,
		time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC), false)

	// 20 minutes later: inside the spacing window.
	rec := doJSON(t, e, http.MethodPost, "/api/appointments",
		`{"lawyer_id": 1, "scheduled_at": "2025-03-10T14:20:00Z", "purpose": "follow-up"}`, client)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for 20-minute gap, got %d: %s", rec.Code, rec.Body.String())
	}

	// 35 minutes later: clear of the window.
	rec = doJSON(t, e, http.MethodPost, "/api/appointments",
		`{"lawyer_id": 1, "scheduled_at": "2025-03-10T14:35:00Z", "purpose": "follow-up"}`, client)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 for 35-minute gap, got %d: %s", rec.Code, rec.Body.String())
	}

	var appt Appointment
	if err := json.Unmarshal(rec.Body.Bytes(), &appt); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if appt.Status != StatusPending {
		t.Errorf("expected pending, got %s", appt.Status)
	}
	if appt.ClientID != 10 {
		t.Errorf("expected client_id from token, got %d", appt.ClientID)
	}
}

func TestBookEndpoint_RejectsLawyerRole(t *testing.T) {
	e, _ := newTestServer(t)
	lawyer := auth.Principal{Role: auth.RoleLawyer, ID: 1}

	rec := doJSON(t, e, http.MethodPost, "/api/appointments",
		`{"lawyer_id": 1, "scheduled_at": "2025-03-10T14:00:00Z"}`, lawyer)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for lawyer booking, got %d", rec.Code)
	}
}

func TestBookEndpoint_BadTimestamp(t *testing.T) {
	e, _ := newTestServer(t)
	client := auth.Principal{Role: auth.RoleClient, ID: 10}

	rec := doJSON(t, e, http.MethodPost, "/api/appointments",
		`{"lawyer_id": 1, "scheduled_at": "tomorrow at noon"}`, client)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad timestamp, got %d", rec.Code)
	}
}

func TestBookEndpoint_UnknownLawyer(t *testing.T) {
	e, _ := newTestServer(t)
	client := auth.Principal{Role: auth.RoleClient, ID: 10}

	rec := doJSON(t, e, http.MethodPost, "/api/appointments",
		`{"lawyer_id": 99, "scheduled_at": "2025-03-10T14:00:00Z"}`, client)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown lawyer, got %d", rec.Code)
	}
}

func TestBookEndpoint_RequiresAuth(t *testing.T) {
	e, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/appointments",
		strings.NewReader(`{"lawyer_id": 1, "scheduled_at": "2025-03-10T14:00:00Z"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
}

func TestStatusEndpoint_LawyerConfirms(t *testing.T) {
	e, repo := newTestServer(t)
	lawyer := auth.Principal{Role: auth.RoleLawyer, ID: 1}

	seed := seedAppointment(t, repo, StatusPending,
		time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC), false)

	rec := doJSON(t, e, http.MethodPut, "/api/appointments/1/status",
		`{"status": "confirmed"}`, lawyer)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	if stored := repo.get(seed.ID); stored.Status != StatusConfirmed {
		t.Errorf("expected confirmed in store, got %s", stored.Status)
	}
}

func TestStatusEndpoint_InvalidTransition(t *testing.T) {
	e, repo := newTestServer(t)
	lawyer := auth.Principal{Role: auth.RoleLawyer, ID: 1}

	seedAppointment(t, repo, StatusCancelled,
		time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC), false)

	rec := doJSON(t, e, http.MethodPut, "/api/appointments/1/status",
		`{"status": "confirmed"}`, lawyer)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for cancelled->confirmed, got %d", rec.Code)
	}
}

func TestStatusEndpoint_OtherLawyersAppointment(t *testing.T) {
	e, repo := newTestServer(t)
	otherLawyer := auth.Principal{Role: auth.RoleLawyer, ID: 2}

	seedAppointment(t, repo, StatusPending,
		time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC), false)

	rec := doJSON(t, e, http.MethodPut, "/api/appointments/1/status",
		`{"status": "confirmed"}`, otherLawyer)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for another lawyer's appointment, got %d", rec.Code)
	}
}

func TestStatusEndpoint_UnknownStatusValue(t *testing.T) {
	e, repo := newTestServer(t)
	lawyer := auth.Principal{Role: auth.RoleLawyer, ID: 1}

	seedAppointment(t, repo, StatusPending,
		time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC), false)

	rec := doJSON(t, e, http.MethodPut, "/api/appointments/1/status",
		`{"status": "done"}`, lawyer)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status, got %d", rec.Code)
	}
}

func TestListEndpoint_ScopedByRole(t *testing.T) {
	e, repo := newTestServer(t)

	seedAppointment(t, repo, StatusPending,
		time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC), false)

	rec := doJSON(t, e, http.MethodGet, "/api/appointments", "",
		auth.Principal{Role: auth.RoleClient, ID: 10})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		Data  []*Appointment `json:"data"`
		Total int            `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Total != 1 {
		t.Fatalf("expected 1 appointment for client 10, got %d", resp.Total)
	}

	rec = doJSON(t, e, http.MethodGet, "/api/appointments", "",
		auth.Principal{Role: auth.RoleClient, ID: 55})
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Total != 0 {
		t.Fatalf("expected empty list for unrelated client, got %d", resp.Total)
	}
}
