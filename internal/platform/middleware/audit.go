package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/platform/auth"
)

// AuditEntry describes one state-changing API call.
type AuditEntry struct {
	UserID     string
	Role       string
	Action     string
	Resource   string
	ResourceID string
	Method     string
	Path       string
	StatusCode int
	RequestID  string
	IP         string
	Timestamp  time.Time
}

// AuditRecorder persists audit entries. Implementations must not block.
type AuditRecorder interface {
	Record(entry AuditEntry)
}

// AuditRecorderFunc is a function adapter for AuditRecorder.
type AuditRecorderFunc func(entry AuditEntry)

func (f AuditRecorderFunc) Record(entry AuditEntry) { f(entry) }

// Audit records every mutating /api request after the handler ran.
// Reads are not audited.
func Audit(logger zerolog.Logger, recorder AuditRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !isMutating(req.Method) || !strings.HasPrefix(req.URL.Path, "/api/") {
				return next(c)
			}

			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok && !c.Response().Committed {
				status = he.Code
			} else if err != nil && !c.Response().Committed {
				status = http.StatusInternalServerError
			}

			p, _ := auth.PrincipalFromContext(req.Context())
			resource, resourceID, action := describe(req.Method, req.URL.Path)
			entry := AuditEntry{
				UserID:     p.UserID,
				Role:       string(p.Role),
				Action:     action,
				Resource:   resource,
				ResourceID: resourceID,
				Method:     req.Method,
				Path:       req.URL.Path,
				StatusCode: status,
				RequestID:  requestID(c),
				IP:         c.RealIP(),
				Timestamp:  time.Now().UTC(),
			}

			if recorder != nil {
				recorder.Record(entry)
			}
			logger.Info().
				Str("type", "audit").
				Str("request_id", entry.RequestID).
				Str("user_id", entry.UserID).
				Str("role", entry.Role).
				Str("action", entry.Action).
				Str("resource", entry.Resource).
				Str("resource_id", entry.ResourceID).
				Int("status", entry.StatusCode).
				Msg("api_mutation")

			return err
		}
	}
}

func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// describe derives the audited resource from the path:
//
//	POST   /api/patient/book                          -> appointments, "", book
//	PATCH  /api/admin/appointments/<id>/checkin       -> appointments, <id>, checkin
//	DELETE /api/departments/<id>                      -> departments, <id>, delete
func describe(method, path string) (resource, resourceID, action string) {
	segments := strings.Split(strings.Trim(strings.TrimPrefix(path, "/api/"), "/"), "/")
	if len(segments) > 0 {
		switch segments[0] {
		case "admin", "patient", "doctor", "receptionist":
			if len(segments) > 1 {
				segments = segments[1:]
			}
		}
	}
	if len(segments) == 1 && segments[0] == "book" {
		return "appointments", "", "book"
	}

	resource = segments[0]
	action = methodAction(method)
	for i, s := range segments[1:] {
		if _, err := uuid.Parse(s); err == nil {
			resourceID = s
			if rest := segments[i+2:]; len(rest) > 0 {
				action = rest[len(rest)-1]
			}
			break
		}
	}
	return resource, resourceID, action
}

func methodAction(method string) string {
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	}
	return "read"
}
