package audit

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/admin/audit", h.List, auth.RequireRole(auth.RoleAdmin))
}

func parseDay(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "dates must be YYYY-MM-DD")
	}
	return &t, nil
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := Filter{
		UserID:     c.QueryParam("userId"),
		Resource:   c.QueryParam("resource"),
		ResourceID: c.QueryParam("resourceId"),
	}
	var err error
	if f.From, err = parseDay(c.QueryParam("from")); err != nil {
		return err
	}
	if f.To, err = parseDay(c.QueryParam("to")); err != nil {
		return err
	}
	if f.To != nil {
		end := f.To.AddDate(0, 0, 1)
		f.To = &end
	}

	entries, total, err := h.svc.List(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		if errors.Is(err, ErrValidation) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError).SetInternal(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(entries, total, pg))
}
