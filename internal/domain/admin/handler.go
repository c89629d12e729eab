package admin

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
	api.GET("/departments", h.ListDepartments)
	api.GET("/departments/:id", h.GetDepartment)

	writeGroup := api.Group("", auth.RequireRole(auth.RoleAdmin))
	writeGroup.POST("/departments", h.CreateDepartment)
	writeGroup.PUT("/departments/:id", h.UpdateDepartment)
	writeGroup.DELETE("/departments/:id", h.DeleteDepartment)
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrValidation), errors.Is(err, ErrDuplicateName):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError).SetInternal(err)
}

func (h *Handler) CreateDepartment(c echo.Context) error {
	var dept Department
	if err := validation.BindAndValidate(c, &dept); err != nil {
		return err
	}
	if err := h.svc.CreateDepartment(c.Request().Context(), &dept); err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusCreated, dept)
}

func (h *Handler) GetDepartment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	dept, err := h.svc.GetDepartment(c.Request().Context(), id)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, dept)
}

func (h *Handler) ListDepartments(c echo.Context) error {
	p := pagination.FromContext(c)
	activeOnly := c.QueryParam("active") == "true"
	depts, total, err := h.svc.ListDepartments(c.Request().Context(), activeOnly, p.Limit, p.Offset)
	if err != nil {
		return toHTTPError(err)
	}
	if depts == nil {
		depts = []*Department{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(depts, total, p))
}

func (h *Handler) UpdateDepartment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var dept Department
	if err := validation.BindAndValidate(c, &dept); err != nil {
		return err
	}
	dept.ID = id
	if err := h.svc.UpdateDepartment(c.Request().Context(), &dept); err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, dept)
}

func (h *Handler) DeleteDepartment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.DeleteDepartment(c.Request().Context(), id); err != nil {
		return toHTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
