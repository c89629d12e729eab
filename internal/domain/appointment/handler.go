package appointment

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

// RegisterRoutes mounts one surface per role. All of them go through the
// same service, which applies the lifecycle policy.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	admin := api.Group("/admin/appointments", auth.RequireRole(auth.RoleAdmin))
	admin.POST("", h.Book)
	admin.GET("", h.List)
	admin.GET("/:id", h.Get)
	admin.PUT("/:id", h.Update)
	admin.DELETE("/:id", h.Delete)
	admin.PATCH("/:id/checkin", h.CheckIn)
	admin.PATCH("/:id/complete", h.Complete)
	admin.PATCH("/:id/reschedule", h.Reschedule)
	admin.PATCH("/:id/cancel", h.Cancel)

	patient := api.Group("/patient", auth.RequireRole(auth.RolePatient))
	patient.POST("/book", h.Book)
	patient.GET("/appointments", h.List)
	patient.GET("/appointments/:id", h.Get)
	patient.PATCH("/appointments/:id/reschedule", h.Reschedule)
	patient.PATCH("/appointments/:id/cancel", h.Cancel)

	// Front desk and doctors look up free slots too.
	api.GET("/patient/check-availability", h.CheckAvailability)

	desk := api.Group("/receptionist/appointments", auth.RequireRole(auth.RoleReceptionist))
	desk.POST("", h.Book)
	desk.GET("", h.List)
	desk.GET("/:id", h.Get)
	desk.PATCH("/:id/status", h.ChangeStatus)
	desk.PATCH("/:id/reschedule", h.Reschedule)

	doctor := api.Group("/doctor/appointments", auth.RequireRole(auth.RoleDoctor))
	doctor.GET("", h.List)
	doctor.GET("/:id", h.Get)
	doctor.PATCH("/:id/checkin", h.CheckIn)
	doctor.PATCH("/:id/complete", h.Complete)
	doctor.PATCH("/:id/reschedule", h.Reschedule)
	doctor.PATCH("/:id/cancel", h.Cancel)
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrPatientNotFound), errors.Is(err, ErrDoctorNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrSlotConflict), errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrValidation),
		errors.Is(err, ErrDoctorUnavailable), errors.Is(err, ErrPastSlot), errors.Is(err, ErrHasRecords):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError).SetInternal(err)
}

func principal(c echo.Context) auth.Principal {
	p, _ := auth.PrincipalFromContext(c.Request().Context())
	return p
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid appointment id")
	}
	return id, nil
}

func respond(c echo.Context, code int, message string, v *View, err error) error {
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(code, map[string]interface{}{"message": message, "appointment": v})
}

func (h *Handler) Book(c echo.Context) error {
	var req BookRequest
	if err := validation.BindAndValidate(c, &req); err != nil {
		return err
	}
	v, err := h.svc.Book(c.Request().Context(), principal(c), req)
	return respond(c, http.StatusCreated, "Appointment booked successfully", v, err)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	v, err := h.svc.Get(c.Request().Context(), principal(c), id)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := Filter{Date: c.QueryParam("date"), From: c.QueryParam("from"), To: c.QueryParam("to")}
	if s := c.QueryParam("status"); s != "" {
		st, err := ParseStatus(s)
		if err != nil {
			return toHTTPError(err)
		}
		f.Status = st
	}
	for name, dst := range map[string]**uuid.UUID{"doctorId": &f.DoctorID, "patientId": &f.PatientID} {
		v := c.QueryParam(name)
		if v == "" {
			continue
		}
		id, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
		}
		*dst = &id
	}

	views, total, err := h.svc.List(c.Request().Context(), principal(c), f, pg.Limit, pg.Offset)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(views, total, pg))
}

func (h *Handler) Update(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req UpdateRequest
	if err := validation.BindAndValidate(c, &req); err != nil {
		return err
	}
	v, err := h.svc.Update(c.Request().Context(), principal(c), id, req)
	return respond(c, http.StatusOK, "Appointment updated successfully", v, err)
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.Delete(c.Request().Context(), id); err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Appointment deleted successfully"})
}

func (h *Handler) CheckIn(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	v, err := h.svc.CheckIn(c.Request().Context(), principal(c), id)
	return respond(c, http.StatusOK, "Patient checked in successfully", v, err)
}

func (h *Handler) Complete(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	v, err := h.svc.Complete(c.Request().Context(), principal(c), id)
	return respond(c, http.StatusOK, "Appointment completed successfully", v, err)
}

func (h *Handler) Cancel(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req CancelRequest
	if c.Request().ContentLength != 0 {
		if err := validation.BindAndValidate(c, &req); err != nil {
			return err
		}
	}
	v, err := h.svc.Cancel(c.Request().Context(), principal(c), id, req.Reason)
	return respond(c, http.StatusOK, "Appointment cancelled successfully", v, err)
}

func (h *Handler) Reschedule(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req RescheduleRequest
	if err := validation.BindAndValidate(c, &req); err != nil {
		return err
	}
	v, err := h.svc.Reschedule(c.Request().Context(), principal(c), id, req)
	return respond(c, http.StatusOK, "Appointment rescheduled successfully", v, err)
}

func (h *Handler) ChangeStatus(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req StatusRequest
	if err := validation.BindAndValidate(c, &req); err != nil {
		return err
	}
	v, err := h.svc.ChangeStatus(c.Request().Context(), principal(c), id, req)
	return respond(c, http.StatusOK, "Appointment status updated successfully", v, err)
}

func (h *Handler) CheckAvailability(c echo.Context) error {
	doctorID, err := uuid.Parse(c.QueryParam("doctorId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "doctorId is required and must be a UUID")
	}
	date := c.QueryParam("date")
	if date == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "date is required")
	}
	av, err := h.svc.Availability(c.Request().Context(), doctorID, date)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, av)
}
