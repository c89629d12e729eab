package audit

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/hms/hms/internal/platform/auth"
)

func TestHandler_List(t *testing.T) {
	repo := &mockRepo{entries: []*Entry{
		{Action: "book", Resource: "appointments", UserID: "u1"},
		{Action: "pay", Resource: "bills", UserID: "u1"},
		{Action: "cancel", Resource: "appointments", UserID: "u2"},
	}}
	h := NewHandler(NewService(repo))
	e := echo.New()

	req := httptest.NewRequest(http.MethodGet, "/api/admin/audit?resource=appointments&limit=1", nil)
	req = req.WithContext(auth.WithPrincipal(req.Context(), auth.Principal{UserID: "admin", Role: auth.RoleAdmin}))
	rec := httptest.NewRecorder()
	if err := h.List(e.NewContext(req, rec)); err != nil {
		t.Fatalf("list: %v", err)
	}

	var body struct {
		Data    []Entry `json:"data"`
		Total   int     `json:"total"`
		HasMore bool    `json:"has_more"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Total != 2 || len(body.Data) != 1 || !body.HasMore {
		t.Errorf("unexpected page: %+v", body)
	}
}

func TestHandler_List_BadDate(t *testing.T) {
	h := NewHandler(NewService(&mockRepo{}))
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/admin/audit?from=yesterday", nil)
	err := h.List(e.NewContext(req, httptest.NewRecorder()))
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestHandler_RouteRequiresAdmin(t *testing.T) {
	h := NewHandler(NewService(&mockRepo{}))
	e := echo.New()
	api := e.Group("/api", func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := auth.WithPrincipal(c.Request().Context(), auth.Principal{UserID: "r1", Role: auth.RoleReceptionist})
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	})
	h.RegisterRoutes(api)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/admin/audit", nil))
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rec.Code)
	}
}
