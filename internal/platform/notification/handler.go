package notification

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/pkg/pagination"
)

type Handler struct {
	store Store
	inApp InAppStore
	now   func() time.Time
}

func NewHandler(store Store, inApp InAppStore) *Handler {
	return &Handler{store: store, inApp: inApp, now: time.Now}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/notifications", h.ListMine)
	api.PATCH("/notifications/:id/read", h.MarkRead)

	admin := api.Group("/admin", auth.RequireRole(auth.RoleAdmin))
	admin.GET("/outbox", h.ListOutbox)
	admin.GET("/outbox/:id", h.GetOutboxMessage)
	admin.POST("/outbox/:id/retry", h.Retry)
}

func (h *Handler) recipient(c echo.Context) (uuid.UUID, error) {
	p, ok := auth.PrincipalFromContext(c.Request().Context())
	if !ok {
		return uuid.Nil, echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	id, err := p.ProfileID()
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusForbidden, "caller has no notification inbox")
	}
	return id, nil
}

func (h *Handler) ListMine(c echo.Context) error {
	rid, err := h.recipient(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	unread := c.QueryParam("unread") == "true"
	items, total, err := h.inApp.ListForRecipient(c.Request().Context(), rid, unread, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError).SetInternal(err)
	}
	if items == nil {
		items = []*InApp{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) MarkRead(c echo.Context) error {
	rid, err := h.recipient(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.inApp.MarkRead(c.Request().Context(), id, rid, h.now().UTC()); err != nil {
		if errors.Is(err, ErrNotificationNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "notification not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError).SetInternal(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Notification marked as read"})
}

func (h *Handler) ListOutbox(c echo.Context) error {
	f := MessageFilter{
		Status:  Status(c.QueryParam("status")),
		Channel: Channel(c.QueryParam("channel")),
	}
	switch f.Status {
	case "", StatusPending, StatusSent, StatusDead:
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "invalid status")
	}
	if f.Channel != "" && !f.Channel.Valid() {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid channel")
	}

	pg := pagination.FromContext(c)
	items, total, err := h.store.List(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError).SetInternal(err)
	}
	if items == nil {
		items = []*Message{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) GetOutboxMessage(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	m, err := h.store.GetByID(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, ErrMessageNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "outbox message not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError).SetInternal(err)
	}
	return c.JSON(http.StatusOK, m)
}

// Retry puts a dead or pending message back at the front of the queue with a
// fresh attempt budget.
func (h *Handler) Retry(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()
	if err := h.store.Requeue(ctx, id, h.now().UTC()); err != nil {
		if errors.Is(err, ErrMessageNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "outbox message not found or already sent")
		}
		return echo.NewHTTPError(http.StatusInternalServerError).SetInternal(err)
	}
	m, err := h.store.GetByID(ctx, id)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError).SetInternal(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"message": "Message requeued", "outbox": m})
}
