package scheduling

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/legalaid/legalaid/internal/platform/auth"
	"github.com/legalaid/legalaid/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/appointments", h.Book, auth.RequireRole(auth.RoleClient))
	api.PUT("/appointments/:id/status", h.UpdateStatus, auth.RequireRole(auth.RoleLawyer))
	api.GET("/appointments", h.List, auth.RequireRole(auth.RoleClient, auth.RoleLawyer))
}

type bookRequest struct {
	LawyerID    int64  `json:"lawyer_id"`
	ScheduledAt string `json:"scheduled_at"`
	Purpose     string `json:"purpose"`
}

func (h *Handler) Book(c echo.Context) error {
	p, _ := auth.PrincipalFromContext(c.Request().Context())

	var req bookRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.LawyerID <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "lawyer_id is required")
	}

	at, err := h.svc.zone.ParseRFC3339(req.ScheduledAt)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "scheduled_at must be an RFC 3339 timestamp")
	}

	appt, err := h.svc.Book(c.Request().Context(), p.ID, req.LawyerID, at, req.Purpose)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusCreated, appt)
}

type statusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) UpdateStatus(c echo.Context) error {
	p, _ := auth.PrincipalFromContext(c.Request().Context())

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid appointment id")
	}

	var req statusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	to, err := ParseStatus(req.Status)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "status must be pending, confirmed or cancelled")
	}

	appt, err := h.svc.UpdateStatus(c.Request().Context(), p.ID, id, to)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, appt)
}

func (h *Handler) List(c echo.Context) error {
	p, _ := auth.PrincipalFromContext(c.Request().Context())
	pg := pagination.FromContext(c)

	var (
		items []*Appointment
		total int
		err   error
	)
	if p.IsLawyer() {
		items, total, err = h.svc.ListForLawyer(c.Request().Context(), p.ID, pg.Limit, pg.Offset)
	} else {
		items, total, err = h.svc.ListForClient(c.Request().Context(), p.ID, pg.Limit, pg.Offset)
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list appointments")
	}
	if items == nil {
		items = []*Appointment{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ErrSlotConflict):
		return echo.NewHTTPError(http.StatusConflict, "the requested time conflicts with an existing appointment")
	case errors.Is(err, ErrInvalidTransition):
		return echo.NewHTTPError(http.StatusBadRequest, "the appointment cannot change to that status")
	case errors.Is(err, ErrNotFoundOrUnauthorized):
		return echo.NewHTTPError(http.StatusForbidden, "appointment not found")
	case errors.Is(err, ErrLawyerNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "lawyer not found")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}
}
