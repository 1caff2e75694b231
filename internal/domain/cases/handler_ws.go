package cases

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/legalaid/legalaid/internal/platform/auth"
	"github.com/legalaid/legalaid/internal/platform/websocket"
)

var upgrader = gorillawebsocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins; tighten in production.
	},
}

// wsFrame is an inbound client frame. Join and leave carry case_id; send
// carries case_id and body.
type wsFrame struct {
	Action string `json:"action"`
	CaseID int64  `json:"case_id"`
	Body   string `json:"body"`
}

// WSHandler serves the real-time messaging endpoint. Room membership goes
// through the same participant check as the REST surface.
type WSHandler struct {
	svc *Service
	hub *websocket.Hub
}

func NewWSHandler(svc *Service, hub *websocket.Hub) *WSHandler {
	return &WSHandler{svc: svc, hub: hub}
}

func (h *WSHandler) RegisterRoutes(api *echo.Group) {
	api.GET("/ws", h.HandleConnect, auth.RequireRole(auth.RoleLawyer, auth.RoleClient))
}

// HandleConnect upgrades the connection, registers the client with the hub,
// and starts the pumps. The principal was attached by the JWT middleware
// before the upgrade.
func (h *WSHandler) HandleConnect(c echo.Context) error {
	p, _ := auth.PrincipalFromContext(c.Request().Context())

	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	client := websocket.NewClient(&websocket.GorillaConn{Conn: ws})
	h.hub.Register(client)

	// The request context dies when this handler returns; frames arriving
	// later need their own lifetime.
	ctx := context.Background()

	go client.WritePump()
	go client.ReadPump(h.hub, func(data []byte) {
		h.handleFrame(ctx, p, client, data)
	})

	return nil
}

func (h *WSHandler) handleFrame(ctx context.Context, p auth.Principal, client *websocket.Client, data []byte) {
	var frame wsFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		h.sendError(client, "", "malformed frame")
		return
	}

	switch frame.Action {
	case "join":
		h.handleJoin(ctx, p, client, frame.CaseID)
	case "leave":
		h.hub.Leave(client, RoomName(frame.CaseID))
		h.sendStatus(client, RoomName(frame.CaseID), "left")
	case "send":
		h.handleSend(ctx, p, client, frame)
	default:
		h.sendError(client, "", "unknown action")
	}
}

func (h *WSHandler) handleJoin(ctx context.Context, p auth.Principal, client *websocket.Client, caseID int64) {
	room := RoomName(caseID)
	if _, err := h.svc.Authorize(ctx, p, caseID); err != nil {
		h.sendError(client, room, errorText(err))
		return
	}
	h.hub.Join(client, room)
	h.sendStatus(client, room, "joined")
}

func (h *WSHandler) handleSend(ctx context.Context, p auth.Principal, client *websocket.Client, frame wsFrame) {
	room := RoomName(frame.CaseID)

	// Sends require an explicit join; the REST endpoint is the path for
	// fire-and-forget messages.
	if !h.hub.InRoom(client, room) {
		h.sendError(client, room, "join the case before sending")
		return
	}

	if _, err := h.svc.Send(ctx, p, frame.CaseID, frame.Body); err != nil {
		h.sendError(client, room, errorText(err))
	}
	// Success needs no ack: the sender receives the new_message broadcast
	// like every other room member.
}

func (h *WSHandler) sendStatus(client *websocket.Client, room, status string) {
	data, _ := json.Marshal(map[string]string{"status": status})
	h.hub.Send(client, websocket.Event{
		Type:      "status",
		Room:      room,
		Timestamp: time.Now().UTC(),
		Data:      data,
	})
}

func (h *WSHandler) sendError(client *websocket.Client, room, msg string) {
	data, _ := json.Marshal(map[string]string{"error": msg})
	h.hub.Send(client, websocket.Event{
		Type:      "error",
		Room:      room,
		Timestamp: time.Now().UTC(),
		Data:      data,
	})
}

func errorText(err error) string {
	switch {
	case errors.Is(err, ErrForbidden):
		return "not a participant of this case"
	case errors.Is(err, ErrEmptyMessage):
		return "message body is empty"
	case errors.Is(err, ErrMessageTooLong):
		return "message body too long"
	default:
		return "internal error"
	}
}
