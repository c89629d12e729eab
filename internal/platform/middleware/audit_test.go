package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/platform/auth"
)

func TestDescribe(t *testing.T) {
	id := "3f2b8f1e-6a4c-4f0e-9a55-5c7d1b2e9f00"
	tests := []struct {
		method, path                 string
		resource, resourceID, action string
	}{
		{http.MethodPost, "/api/patient/book", "appointments", "", "book"},
		{http.MethodPost, "/api/admin/appointments", "appointments", "", "create"},
		{http.MethodPatch, "/api/admin/appointments/" + id + "/checkin", "appointments", id, "checkin"},
		{http.MethodPatch, "/api/doctor/appointments/" + id + "/complete", "appointments", id, "complete"},
		{http.MethodPut, "/api/admin/appointments/" + id, "appointments", id, "update"},
		{http.MethodDelete, "/api/departments/" + id, "departments", id, "delete"},
		{http.MethodPost, "/api/bills/" + id + "/pay", "bills", id, "pay"},
	}
	for _, tt := range tests {
		resource, resourceID, action := describe(tt.method, tt.path)
		if resource != tt.resource || resourceID != tt.resourceID || action != tt.action {
			t.Errorf("%s %s: got (%s, %s, %s), want (%s, %s, %s)", tt.method, tt.path,
				resource, resourceID, action, tt.resource, tt.resourceID, tt.action)
		}
	}
}

func TestAudit_RecordsMutations(t *testing.T) {
	var got []AuditEntry
	rec := AuditRecorderFunc(func(e AuditEntry) { got = append(got, e) })
	e := echo.New()

	call := func(method, path string, h echo.HandlerFunc) {
		req := httptest.NewRequest(method, path, nil)
		req = req.WithContext(auth.WithPrincipal(req.Context(), auth.Principal{UserID: "r1", Role: auth.RoleReceptionist}))
		c := e.NewContext(req, httptest.NewRecorder())
		c.Set("request_id", "rid-1")
		_ = Audit(zerolog.Nop(), rec)(h)(c)
	}

	call(http.MethodGet, "/api/receptionist/appointments", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	if len(got) != 0 {
		t.Fatalf("expected reads to be skipped, got %d entries", len(got))
	}

	call(http.MethodPost, "/api/receptionist/appointments", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusBadRequest, "conflict")
	})
	if len(got) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(got))
	}
	entry := got[0]
	if entry.UserID != "r1" || entry.Role != "receptionist" {
		t.Errorf("unexpected caller: %+v", entry)
	}
	if entry.StatusCode != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", entry.StatusCode)
	}
	if entry.RequestID != "rid-1" || entry.Resource != "appointments" || entry.Action != "create" {
		t.Errorf("unexpected entry: %+v", entry)
	}
}
