package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"campusride/internal/events"
	"campusride/internal/service"
)

// Inbound actions clients may send.
const (
	actionJoinChat  = "join_trip_chat"
	actionSendChat  = "send_chat_message"
	actionLeaveChat = "leave_trip_chat"
)

// Outbound events specific to the websocket session itself.
const (
	eventConnected   = "connected"
	eventChatHistory = "chat.history"
	eventChatSent    = "chat.sent"
	eventError       = "error"
)

// handleTimeout bounds the service call behind one inbound frame.
const handleTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Token auth guards the socket; the app is not cookie-based, so
		// cross-origin upgrades carry no ambient credentials.
		return true
	},
}

// AuthFunc validates a bearer token and returns the user id it carries.
type AuthFunc func(token string) (string, error)

// inboundFrame is the wire shape clients send.
type inboundFrame struct {
	Action  string `json:"action"`
	TripID  string `json:"trip_id"`
	Message string `json:"message,omitempty"`
}

// Gateway handles websocket upgrades and routes inbound frames to the chat
// service.
type Gateway struct {
	hub    *Hub
	chats  *service.ChatService
	auth   AuthFunc
	logger *slog.Logger
}

// NewGateway creates a new Gateway.
func NewGateway(hub *Hub, chats *service.ChatService, auth AuthFunc, logger *slog.Logger) *Gateway {
	return &Gateway{hub: hub, chats: chats, auth: auth, logger: logger}
}

// Handle upgrades the request to a websocket session. The token comes from
// the "token" query parameter or a bearer Authorization header; without a
// valid one the upgrade is refused.
func (g *Gateway) Handle(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		token = strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	}

	userID, err := g.auth(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"code": string(service.KindUnauthorized), "message": "Token inválido o ausente"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		g.logger.Warn("websocket upgrade failed", "user_id", userID, "error", err)
		return
	}

	cl := &client{userID: userID, conn: conn, send: make(chan []byte, sendBuffer)}
	g.hub.add(cl)
	g.logger.Info("websocket session opened", "user_id", userID)

	go cl.writePump()
	g.sendFrame(cl, eventConnected, map[string]any{"user_id": userID})
	g.readLoop(cl)
}

// readLoop consumes inbound frames until the connection dies, then removes
// the session from the hub. Room membership goes with it; chat participation
// does not.
func (g *Gateway) readLoop(cl *client) {
	defer func() {
		g.hub.remove(cl)
		_ = cl.conn.Close()
		g.logger.Info("websocket session closed", "user_id", cl.userID)
	}()

	cl.conn.SetReadLimit(maxMessageSize)
	_ = cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	cl.conn.SetPongHandler(func(string) error {
		return cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := cl.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				g.logger.Warn("websocket read error", "user_id", cl.userID, "error", err)
			}
			return
		}

		var in inboundFrame
		if err := json.Unmarshal(raw, &in); err != nil {
			g.sendError(cl, "", service.KindValidation, "Mensaje malformado")
			continue
		}
		g.handleFrame(cl, in)
	}
}

func (g *Gateway) handleFrame(cl *client, in inboundFrame) {
	ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
	defer cancel()

	if in.TripID == "" {
		g.sendError(cl, in.Action, service.KindValidation, "trip_id requerido")
		return
	}

	switch in.Action {
	case actionJoinChat:
		history, err := g.chats.JoinChat(ctx, in.TripID, cl.userID)
		if err != nil {
			kind, reason := service.Describe(err)
			g.sendError(cl, in.Action, kind, reason)
			return
		}
		g.hub.joinRoom(in.TripID, cl)
		g.sendFrame(cl, eventChatHistory, map[string]any{"trip_id": in.TripID, "messages": history})

	case actionSendChat:
		msg, err := g.chats.PostMessage(ctx, in.TripID, cl.userID, in.Message)
		if err != nil {
			kind, reason := service.Describe(err)
			g.sendError(cl, in.Action, kind, reason)
			return
		}
		g.hub.toRoomExcept(in.TripID, cl, events.ChatMessage, msg)
		g.sendFrame(cl, eventChatSent, msg)

	case actionLeaveChat:
		g.hub.leaveRoom(in.TripID, cl)

	default:
		g.sendError(cl, in.Action, service.KindValidation, "Acción no soportada")
	}
}

func (g *Gateway) sendFrame(cl *client, event string, payload any) {
	g.hub.sendTo(cl, event, payload)
}

func (g *Gateway) sendError(cl *client, action string, kind service.ErrorKind, reason string) {
	g.sendFrame(cl, eventError, map[string]any{
		"action":  action,
		"code":    string(kind),
		"message": reason,
	})
}
