package identity

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
	staff := api.Group("", auth.RequireRole(auth.RoleDoctor, auth.RoleReceptionist))
	staff.GET("/patients", h.ListPatients)
	staff.GET("/receptionists", h.ListReceptionists)
	staff.GET("/receptionists/:id", h.GetReceptionist)

	// Patients may read their own record.
	api.GET("/patients/:id", h.GetPatient)

	// Doctors are visible to everyone so patients can pick one to book.
	api.GET("/doctors", h.ListDoctors)
	api.GET("/doctors/:id", h.GetDoctor)

	frontDesk := api.Group("", auth.RequireRole(auth.RoleReceptionist))
	frontDesk.POST("/patients", h.CreatePatient)
	frontDesk.PUT("/patients/:id", h.UpdatePatient)

	admin := api.Group("", auth.RequireRole(auth.RoleAdmin))
	admin.DELETE("/patients/:id", h.DeletePatient)
	admin.POST("/doctors", h.CreateDoctor)
	admin.PUT("/doctors/:id", h.UpdateDoctor)
	admin.DELETE("/doctors/:id", h.DeleteDoctor)
	admin.POST("/receptionists", h.CreateReceptionist)
	admin.PUT("/receptionists/:id", h.UpdateReceptionist)
	admin.DELETE("/receptionists/:id", h.DeleteReceptionist)
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrValidation), errors.Is(err, ErrDuplicateEmail),
		errors.Is(err, ErrInUse), errors.Is(err, ErrUnknownDepartment):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError).SetInternal(err)
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func listFilter(c echo.Context) (ListFilter, error) {
	f := ListFilter{Search: c.QueryParam("search"), Specialization: c.QueryParam("specialization")}
	if dep := c.QueryParam("department_id"); dep != "" {
		id, err := uuid.Parse(dep)
		if err != nil {
			return f, echo.NewHTTPError(http.StatusBadRequest, "invalid department_id")
		}
		f.DepartmentID = &id
	}
	return f, nil
}

// -- Patient Handlers --

func (h *Handler) CreatePatient(c echo.Context) error {
	var p Patient
	if err := validation.BindAndValidate(c, &p); err != nil {
		return err
	}
	if err := h.svc.CreatePatient(c.Request().Context(), &p); err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetPatient(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	p, _ := auth.PrincipalFromContext(c.Request().Context())
	if p.Role == auth.RolePatient && !p.Owns(id) {
		return echo.NewHTTPError(http.StatusForbidden, "you can only view your own record")
	}
	patient, err := h.svc.GetPatient(c.Request().Context(), id)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, patient)
}

func (h *Handler) ListPatients(c echo.Context) error {
	pg := pagination.FromContext(c)
	f, err := listFilter(c)
	if err != nil {
		return err
	}
	items, total, err := h.svc.ListPatients(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return toHTTPError(err)
	}
	if items == nil {
		items = []*Patient{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) UpdatePatient(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var p Patient
	if err := validation.BindAndValidate(c, &p); err != nil {
		return err
	}
	p.ID = id
	if err := h.svc.UpdatePatient(c.Request().Context(), &p); err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) DeletePatient(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeletePatient(c.Request().Context(), id); err != nil {
		return toHTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Doctor Handlers --

func (h *Handler) CreateDoctor(c echo.Context) error {
	var d Doctor
	if err := validation.BindAndValidate(c, &d); err != nil {
		return err
	}
	if err := h.svc.CreateDoctor(c.Request().Context(), &d); err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusCreated, d)
}

func (h *Handler) GetDoctor(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	d, err := h.svc.GetDoctor(c.Request().Context(), id)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) ListDoctors(c echo.Context) error {
	pg := pagination.FromContext(c)
	f, err := listFilter(c)
	if err != nil {
		return err
	}
	items, total, err := h.svc.ListDoctors(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return toHTTPError(err)
	}
	if items == nil {
		items = []*Doctor{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) UpdateDoctor(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var d Doctor
	if err := validation.BindAndValidate(c, &d); err != nil {
		return err
	}
	d.ID = id
	if err := h.svc.UpdateDoctor(c.Request().Context(), &d); err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) DeleteDoctor(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteDoctor(c.Request().Context(), id); err != nil {
		return toHTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Receptionist Handlers --

func (h *Handler) CreateReceptionist(c echo.Context) error {
	var r Receptionist
	if err := validation.BindAndValidate(c, &r); err != nil {
		return err
	}
	if err := h.svc.CreateReceptionist(c.Request().Context(), &r); err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusCreated, r)
}

func (h *Handler) GetReceptionist(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	r, err := h.svc.GetReceptionist(c.Request().Context(), id)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) ListReceptionists(c echo.Context) error {
	pg := pagination.FromContext(c)
	f, err := listFilter(c)
	if err != nil {
		return err
	}
	items, total, err := h.svc.ListReceptionists(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return toHTTPError(err)
	}
	if items == nil {
		items = []*Receptionist{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) UpdateReceptionist(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var r Receptionist
	if err := validation.BindAndValidate(c, &r); err != nil {
		return err
	}
	r.ID = id
	if err := h.svc.UpdateReceptionist(c.Request().Context(), &r); err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) DeleteReceptionist(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteReceptionist(c.Request().Context(), id); err != nil {
		return toHTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
