package prescription

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

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/prescriptions", auth.RequireRole(auth.RoleDoctor, auth.RolePatient))
	g.POST("", h.CreatePrescription, auth.RequireRole(auth.RoleDoctor))
	g.GET("", h.ListPrescriptions)
	g.GET("/:id", h.GetPrescription)
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrAppointmentNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrValidation), errors.Is(err, ErrNotAttended):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError).SetInternal(err)
}

func principal(c echo.Context) auth.Principal {
	p, _ := auth.PrincipalFromContext(c.Request().Context())
	return p
}

func queryUUID(c echo.Context, name string) (*uuid.UUID, error) {
	v := c.QueryParam(name)
	if v == "" {
		return nil, nil
	}
	id, err := uuid.Parse(v)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return &id, nil
}

func (h *Handler) CreatePrescription(c echo.Context) error {
	var req CreateRequest
	if err := validation.BindAndValidate(c, &req); err != nil {
		return err
	}
	var doctorID *uuid.UUID
	if p := principal(c); p.Role == auth.RoleDoctor {
		id, err := p.ProfileID()
		if err != nil {
			return toHTTPError(ErrForbidden)
		}
		doctorID = &id
	}
	rx, err := h.svc.Create(c.Request().Context(), doctorID, req)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{"message": "Prescription created", "prescription": rx})
}

func (h *Handler) ListPrescriptions(c echo.Context) error {
	pg := pagination.FromContext(c)
	var f Filter
	var err error
	if f.PatientID, err = queryUUID(c, "patientId"); err != nil {
		return err
	}
	if f.AppointmentID, err = queryUUID(c, "appointmentId"); err != nil {
		return err
	}
	if p := principal(c); p.Role == auth.RolePatient {
		id, err := p.ProfileID()
		if err != nil {
			return toHTTPError(ErrForbidden)
		}
		f.PatientID = &id
	}
	items, total, err := h.svc.ListPrescriptions(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return toHTTPError(err)
	}
	if items == nil {
		items = []*Prescription{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) GetPrescription(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	rx, err := h.svc.GetPrescription(c.Request().Context(), id)
	if err != nil {
		return toHTTPError(err)
	}
	if p := principal(c); p.Role == auth.RolePatient && !p.Owns(rx.PatientID) {
		return echo.NewHTTPError(http.StatusForbidden, "you can only view your own prescriptions")
	}
	return c.JSON(http.StatusOK, rx)
}
