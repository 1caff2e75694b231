package cases

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
	g := api.Group("", auth.RequireRole(auth.RoleLawyer, auth.RoleClient))
	g.GET("/cases", h.ListCases)
	g.GET("/cases/:id/messages", h.History)
	g.POST("/cases/:id/messages", h.Send)
}

func (h *Handler) ListCases(c echo.Context) error {
	p, _ := auth.PrincipalFromContext(c.Request().Context())
	pg := pagination.FromContext(c)

	items, total, err := h.svc.ListCases(c.Request().Context(), p, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list cases")
	}
	if items == nil {
		items = []*Case{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) History(c echo.Context) error {
	p, _ := auth.PrincipalFromContext(c.Request().Context())

	caseID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid case id")
	}
	pg := pagination.FromContext(c)

	items, total, err := h.svc.History(c.Request().Context(), p, caseID, pg.Limit, pg.Offset)
	if err != nil {
		return mapError(err)
	}
	if items == nil {
		items = []*Message{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

type sendRequest struct {
	Body string `json:"body"`
}

func (h *Handler) Send(c echo.Context) error {
	p, _ := auth.PrincipalFromContext(c.Request().Context())

	caseID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid case id")
	}

	var req sendRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	msg, err := h.svc.Send(c.Request().Context(), p, caseID, req.Body)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusCreated, msg)
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, "not a participant of this case")
	case errors.Is(err, ErrEmptyMessage):
		return echo.NewHTTPError(http.StatusBadRequest, "message body is empty")
	case errors.Is(err, ErrMessageTooLong):
		return echo.NewHTTPError(http.StatusBadRequest, "message body too long")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}
}
