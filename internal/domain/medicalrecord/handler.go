package medicalrecord

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/internal/platform/validation"
	"github.com/hms/hms/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Receptionists have no access to clinical records.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/medical-records", auth.RequireRole(auth.RoleDoctor, auth.RolePatient))
	g.GET("", h.ListRecords)
	g.GET("/:id", h.GetRecord)
	g.PUT("/:id", h.UpdateRecord, auth.RequireRole(auth.RoleDoctor))
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrValidation):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError).SetInternal(err)
}

func principal(c echo.Context) auth.Principal {
	p, _ := auth.PrincipalFromContext(c.Request().Context())
	return p
}

func (h *Handler) ListRecords(c echo.Context) error {
	pg := pagination.FromContext(c)
	var f Filter
	if v := c.QueryParam("patientId"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid patientId")
		}
		f.PatientID = &id
	}
	if p := principal(c); p.Role == auth.RolePatient {
		id, err := p.ProfileID()
		if err != nil {
			return toHTTPError(ErrForbidden)
		}
		f.PatientID = &id
	}
	items, total, err := h.svc.ListRecords(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return toHTTPError(err)
	}
	if items == nil {
		items = []*MedicalRecord{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) GetRecord(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	m, err := h.svc.GetRecord(c.Request().Context(), id)
	if err != nil {
		return toHTTPError(err)
	}
	if p := principal(c); p.Role == auth.RolePatient && !p.Owns(m.PatientID) {
		return echo.NewHTTPError(http.StatusForbidden, "you can only view your own records")
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) UpdateRecord(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req Update
	if err := validation.BindAndValidate(c, &req); err != nil {
		return err
	}

	var doctorID *uuid.UUID
	if p := principal(c); p.Role == auth.RoleDoctor {
		did, err := p.ProfileID()
		if err != nil {
			return toHTTPError(ErrForbidden)
		}
		doctorID = &did
	}
	m, err := h.svc.UpdateRecord(c.Request().Context(), id, doctorID, req)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"message": "Medical record updated", "record": m})
}
