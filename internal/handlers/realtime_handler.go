package handlers

import (
	"errors"
	"net/http"

	"coreops/internal/config"
	"coreops/internal/middleware"
	"coreops/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// RealtimeHandler upgrades team chat connections and relays typing events.
type RealtimeHandler struct {
	hub      *services.ConnectionHub
	cfg      *config.Config
	upgrader websocket.Upgrader
	logger   *logrus.Logger
}

func NewRealtimeHandler(hub *services.ConnectionHub, cfg *config.Config, logger *logrus.Logger) *RealtimeHandler {
	if logger == nil {
		logger = logrus.New()
	}
	return &RealtimeHandler{
		hub:    hub,
		cfg:    cfg,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (h *RealtimeHandler) wsOptions() services.WSOptions {
	rt := h.cfg.Realtime
	return services.WSOptions{WriteWait: rt.WriteWait, PongWait: rt.PongWait, ReadLimit: rt.ReadLimit}
}

// typingPayload is what peers receive for typing_start / typing_stop.
type typingPayload struct {
	UserID   uint   `json:"user_id"`
	UserName string `json:"user_name"`
}

// HandleWebSocket authenticates from the session cookie or the token query
// parameter. The upgrade always happens first so failures can be reported
// with a close code.
func (h *RealtimeHandler) HandleWebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warnf("websocket upgrade failed: %v", err)
		return
	}
	socket := services.NewWSSocket(conn, h.wsOptions(), h.logger)

	token := middleware.TokenFromRequest(c, h.cfg.JWT.CookieName)
	if token == "" {
		token = c.Query("token")
	}
	claims, err := middleware.ParseToken(token, h.cfg.JWT.Secret)
	if err != nil {
		_ = socket.Send(services.Event{Type: services.EventError, Payload: gin.H{"message": "Unauthorized"}})
		_ = socket.Close(services.CloseUnauthorized, "Unauthorized")
		return
	}

	ws, uid := claims.WorkspaceID, claims.UserID
	err = h.hub.Join(ws, uid, claims.Name, socket, func(online []services.OnlineUser) error {
		return socket.Send(services.Event{Type: services.EventConnected, Payload: gin.H{
			"user_id":      uid,
			"workspace_id": ws,
			"online_users": online,
		}})
	})
	if errors.Is(err, services.ErrWorkspaceFull) {
		_ = socket.Send(services.Event{Type: services.EventError, Payload: gin.H{"message": "Connection limit reached"}})
		_ = socket.Close(services.CloseConnectionLimit, "Connection limit")
		return
	}
	if err != nil {
		h.logger.WithFields(logrus.Fields{"workspace_id": ws, "user_id": uid}).Warnf("send connected frame: %v", err)
		_ = socket.Close(websocket.CloseInternalServerErr, "")
		return
	}
	defer func() {
		h.hub.Disconnect(ws, uid, socket)
		_ = socket.Close(websocket.CloseNormalClosure, "")
	}()

	log := h.logger.WithFields(logrus.Fields{"workspace_id": ws, "user_id": uid})
	_ = socket.ReadLoop(func(frame services.ClientFrame) {
		switch frame.Type {
		case services.EventTypingStart, services.EventTypingStop:
			h.hub.Broadcast(ws, frame.Type, typingPayload{UserID: uid, UserName: claims.Name}, uid)
		default:
			log.WithField("type", frame.Type).Debug("ignoring client frame")
		}
	})
}

// Stats reports connection counts per workspace.
func (h *RealtimeHandler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.hub.Stats())
}

// Presence lists the users online in the caller's workspace.
func (h *RealtimeHandler) Presence(c *gin.Context) {
	ws := middleware.WorkspaceID(c)
	c.JSON(http.StatusOK, gin.H{"workspace_id": ws, "online_users": h.hub.OnlineUsers(ws)})
}

// RegisterRealtimeRoutes mounts the socket endpoint on r (it authenticates
// itself) and the read endpoints on authed.
func RegisterRealtimeRoutes(r, authed *gin.RouterGroup, handler *RealtimeHandler) {
	r.GET("/ws/internal-messages", handler.HandleWebSocket)
	authed.GET("/ws/stats", handler.Stats)
	authed.GET("/ws/presence", handler.Presence)
}
