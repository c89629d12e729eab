package billing

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
	api.GET("/bills", h.ListBills)
	api.GET("/bills/:id", h.GetBill)
	api.GET("/bills/appointment/:appointmentId", h.GetByAppointment)
	api.POST("/bills/:id/pay", h.Pay, auth.RequireRole(auth.RoleReceptionist, auth.RolePatient))
	api.POST("/bills/:id/refund", h.Refund, auth.RequireRole(auth.RoleAdmin))
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrValidation), errors.Is(err, ErrInvalidState):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError).SetInternal(err)
}

// scope limits patients and doctors to their own bills.
func scope(p auth.Principal, f *Filter) error {
	switch p.Role {
	case auth.RolePatient, auth.RoleDoctor:
		id, err := p.ProfileID()
		if err != nil {
			return ErrForbidden
		}
		if p.Role == auth.RolePatient {
			f.PatientID = &id
		} else {
			f.DoctorID = &id
		}
	}
	return nil
}

func checkOwner(p auth.Principal, b *Bill) error {
	switch p.Role {
	case auth.RolePatient:
		if !p.Owns(b.PatientID) {
			return ErrForbidden
		}
	case auth.RoleDoctor:
		if !p.Owns(b.DoctorID) {
			return ErrForbidden
		}
	}
	return nil
}

func principal(c echo.Context) auth.Principal {
	p, _ := auth.PrincipalFromContext(c.Request().Context())
	return p
}

func (h *Handler) ListBills(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := Filter{Status: PaymentStatus(c.QueryParam("status"))}
	for param, dst := range map[string]**uuid.UUID{"patientId": &f.PatientID, "doctorId": &f.DoctorID} {
		if v := c.QueryParam(param); v != "" {
			id, err := uuid.Parse(v)
			if err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, "invalid "+param)
			}
			*dst = &id
		}
	}
	if err := scope(principal(c), &f); err != nil {
		return toHTTPError(err)
	}
	bills, total, err := h.svc.ListBills(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return toHTTPError(err)
	}
	if bills == nil {
		bills = []*Bill{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(bills, total, pg))
}

func (h *Handler) GetBill(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	b, err := h.svc.GetBill(c.Request().Context(), id)
	if err != nil {
		return toHTTPError(err)
	}
	if err := checkOwner(principal(c), b); err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) GetByAppointment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("appointmentId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid appointmentId")
	}
	b, err := h.svc.GetByAppointment(c.Request().Context(), id)
	if err != nil {
		return toHTTPError(err)
	}
	if err := checkOwner(principal(c), b); err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, b)
}

func (h *Handler) Pay(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req Payment
	if err := validation.BindAndValidate(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()
	b, err := h.svc.GetBill(ctx, id)
	if err != nil {
		return toHTTPError(err)
	}
	if err := checkOwner(principal(c), b); err != nil {
		return toHTTPError(err)
	}
	b, err = h.svc.Pay(ctx, id, req)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"message": "Payment recorded", "bill": b})
}

func (h *Handler) Refund(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req Refund
	if err := validation.BindAndValidate(c, &req); err != nil {
		return err
	}
	b, err := h.svc.Refund(c.Request().Context(), id, req)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"message": "Refund recorded", "bill": b})
}
