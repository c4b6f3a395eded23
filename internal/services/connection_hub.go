package services

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"coreops/internal/metrics"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// ErrWorkspaceFull is returned by Join when the workspace pool is at capacity.
var ErrWorkspaceFull = errors.New("workspace connection limit reached")

// Realtime event types.
const (
	EventConnected   = "connected"
	EventNewMessage  = "new_message"
	EventTypingStart = "typing_start"
	EventTypingStop  = "typing_stop"
	EventError       = "error"
)

// Event is one server -> client frame.
type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Socket is the transport behind a hub connection. Implementations must be
// comparable (pointer types) because the socket is part of the connection
// identity.
type Socket interface {
	Send(evt Event) error
	Close(code int, reason string) error
}

// Connection is one live socket of one user.
type Connection struct {
	ID          string
	WorkspaceID uint
	UserID      uint
	UserName    string
	ConnectedAt time.Time
	socket      Socket
	// ready is closed once the welcome frame has been written; no other
	// event reaches the socket before that.
	ready chan struct{}
}

type OnlineUser struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
}

type HubStats struct {
	TotalConnections int          `json:"total_connections"`
	Workspaces       map[uint]int `json:"workspaces"`
}

type connKey struct {
	userID uint
	socket Socket
}

// ConnectionHub tracks live connections per workspace. Sends always go to a
// snapshot taken under the lock, never to the live pool.
type ConnectionHub struct {
	mu              sync.RWMutex
	pools           map[uint]map[connKey]*Connection
	maxPerWorkspace int
	limiter         *RateLimiter
	logger          *logrus.Logger
}

func NewConnectionHub(maxPerWorkspace int, limiter *RateLimiter, logger *logrus.Logger) *ConnectionHub {
	if logger == nil {
		logger = logrus.New()
	}
	if maxPerWorkspace <= 0 {
		maxPerWorkspace = 50
	}
	if limiter == nil {
		limiter = NewRateLimiter(5, time.Second)
	}
	return &ConnectionHub{
		pools:           make(map[uint]map[connKey]*Connection),
		maxPerWorkspace: maxPerWorkspace,
		limiter:         limiter,
		logger:          logger,
	}
}

// Connect registers socket for the user. It returns false, registering
// nothing, when the workspace is at capacity. The caller closes the socket.
func (h *ConnectionHub) Connect(workspaceID, userID uint, userName string, socket Socket) bool {
	return h.Join(workspaceID, userID, userName, socket, nil) == nil
}

// Join registers socket and, when welcome is set, hands it the online users
// (including the joining user) before any broadcast can reach the socket.
// A failed welcome unregisters the connection and is returned as is.
func (h *ConnectionHub) Join(workspaceID, userID uint, userName string, socket Socket, welcome func(online []OnlineUser) error) error {
	h.mu.Lock()
	pool := h.pools[workspaceID]
	k := connKey{userID, socket}
	if _, exists := pool[k]; exists {
		h.mu.Unlock()
		return nil
	}
	if len(pool) >= h.maxPerWorkspace {
		h.mu.Unlock()
		metrics.IncHubRejection("capacity")
		h.logger.WithFields(logrus.Fields{"workspace_id": workspaceID, "user_id": userID}).
			Warn("realtime connection rejected: workspace at capacity")
		return ErrWorkspaceFull
	}
	if pool == nil {
		pool = make(map[connKey]*Connection)
		h.pools[workspaceID] = pool
	}
	conn := &Connection{
		ID:          uuid.NewString(),
		WorkspaceID: workspaceID,
		UserID:      userID,
		UserName:    userName,
		ConnectedAt: time.Now(),
		socket:      socket,
		ready:       make(chan struct{}),
	}
	pool[k] = conn
	count := len(pool)
	var online []OnlineUser
	if welcome != nil {
		online = onlineUsers(pool)
	}
	h.mu.Unlock()

	if welcome != nil {
		if err := welcome(online); err != nil {
			h.remove(workspaceID, k)
			close(conn.ready)
			return err
		}
	}
	close(conn.ready)

	h.updateGauge()
	h.logger.WithFields(logrus.Fields{"workspace_id": workspaceID, "user_id": userID, "connections": count}).
		Info("realtime connection opened")
	return nil
}

// Disconnect removes one connection. Removing an absent connection is a no-op.
func (h *ConnectionHub) Disconnect(workspaceID, userID uint, socket Socket) {
	if h.remove(workspaceID, connKey{userID, socket}) {
		h.logger.WithFields(logrus.Fields{"workspace_id": workspaceID, "user_id": userID}).
			Info("realtime connection closed")
	}
}

func (h *ConnectionHub) remove(workspaceID uint, k connKey) bool {
	h.mu.Lock()
	pool, ok := h.pools[workspaceID]
	if !ok {
		h.mu.Unlock()
		return false
	}
	if _, ok := pool[k]; !ok {
		h.mu.Unlock()
		return false
	}
	delete(pool, k)

	userLeft := true
	for other := range pool {
		if other.userID == k.userID {
			userLeft = false
			break
		}
	}
	if len(pool) == 0 {
		delete(h.pools, workspaceID)
	}
	h.mu.Unlock()

	if userLeft {
		h.limiter.Cleanup(actorKey(workspaceID, k.userID))
	}
	h.updateGauge()
	return true
}

// Broadcast sends to every connection in the workspace except those of
// excludeUserID (0 excludes nobody). Failed connections are dropped and the
// rest still receive the event. It returns the number of deliveries.
func (h *ConnectionHub) Broadcast(workspaceID uint, eventType string, payload interface{}, excludeUserID uint) int {
	targets := h.snapshot(workspaceID, func(c *Connection) bool {
		return excludeUserID == 0 || c.UserID != excludeUserID
	})
	return h.deliver(workspaceID, targets, Event{Type: eventType, Payload: payload})
}

// SendToUser sends to all of one user's connections in the workspace.
func (h *ConnectionHub) SendToUser(workspaceID, userID uint, eventType string, payload interface{}) int {
	targets := h.snapshot(workspaceID, func(c *Connection) bool { return c.UserID == userID })
	return h.deliver(workspaceID, targets, Event{Type: eventType, Payload: payload})
}

func (h *ConnectionHub) snapshot(workspaceID uint, keep func(*Connection) bool) []*Connection {
	h.mu.RLock()
	defer h.mu.RUnlock()
	pool := h.pools[workspaceID]
	out := make([]*Connection, 0, len(pool))
	for _, c := range pool {
		if keep(c) {
			out = append(out, c)
		}
	}
	return out
}

func (h *ConnectionHub) deliver(workspaceID uint, targets []*Connection, evt Event) int {
	delivered := 0
	for _, c := range targets {
		<-c.ready
		if err := c.socket.Send(evt); err != nil {
			h.logger.WithFields(logrus.Fields{"workspace_id": workspaceID, "user_id": c.UserID, "connection": c.ID}).
				Warnf("dropping dead connection: %v", err)
			if h.remove(workspaceID, connKey{c.UserID, c.socket}) {
				metrics.IncHubDeadConnection()
				_ = c.socket.Close(websocket.CloseInternalServerErr, "send failed")
			}
			continue
		}
		delivered++
	}
	return delivered
}

// OnlineUsers lists each connected user once, ordered by id.
func (h *ConnectionHub) OnlineUsers(workspaceID uint) []OnlineUser {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return onlineUsers(h.pools[workspaceID])
}

// onlineUsers expects the hub lock to be held.
func onlineUsers(pool map[connKey]*Connection) []OnlineUser {
	seen := make(map[uint]string)
	for _, c := range pool {
		if _, ok := seen[c.UserID]; !ok {
			seen[c.UserID] = c.UserName
		}
	}

	out := make([]OnlineUser, 0, len(seen))
	for id, name := range seen {
		out = append(out, OnlineUser{ID: id, Name: name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// CheckRateLimit applies the per-user send limit within a workspace.
func (h *ConnectionHub) CheckRateLimit(workspaceID, userID uint) bool {
	if h.limiter.Allow(actorKey(workspaceID, userID)) {
		return true
	}
	metrics.IncRateLimitDrop("realtime")
	return false
}

func (h *ConnectionHub) ConnectionCount(workspaceID uint) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.pools[workspaceID])
}

func (h *ConnectionHub) Stats() HubStats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	st := HubStats{Workspaces: make(map[uint]int, len(h.pools))}
	for ws, pool := range h.pools {
		st.Workspaces[ws] = len(pool)
		st.TotalConnections += len(pool)
	}
	return st
}

// Shutdown closes every socket and empties the hub.
func (h *ConnectionHub) Shutdown(code int, reason string) {
	h.mu.Lock()
	var all []*Connection
	for _, pool := range h.pools {
		for _, c := range pool {
			all = append(all, c)
		}
	}
	h.pools = make(map[uint]map[connKey]*Connection)
	h.mu.Unlock()

	for _, c := range all {
		_ = c.socket.Close(code, reason)
	}
	h.updateGauge()
}

func (h *ConnectionHub) updateGauge() {
	metrics.SetHubConnections(h.Stats().TotalConnections)
}

func actorKey(workspaceID, userID uint) string {
	return fmt.Sprintf("%d:%d", workspaceID, userID)
}
