package services

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Close codes used by the realtime endpoint.
const (
	CloseUnauthorized    = 4001
	CloseConnectionLimit = 4002
)

// ClientFrame is one client -> server frame.
type ClientFrame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type WSOptions struct {
	WriteWait time.Duration
	PongWait  time.Duration
	ReadLimit int64
}

func (o WSOptions) withDefaults() WSOptions {
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.ReadLimit <= 0 {
		o.ReadLimit = 4096
	}
	return o
}

// WSSocket adapts a gorilla connection to Socket. gorilla allows one
// concurrent writer, so every write holds mu.
type WSSocket struct {
	conn      *websocket.Conn
	opts      WSOptions
	mu        sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
	logger    *logrus.Logger
}

func NewWSSocket(conn *websocket.Conn, opts WSOptions, logger *logrus.Logger) *WSSocket {
	if logger == nil {
		logger = logrus.New()
	}
	return &WSSocket{conn: conn, opts: opts.withDefaults(), done: make(chan struct{}), logger: logger}
}

func (s *WSSocket) Send(evt Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.done:
		return errors.New("socket closed")
	default:
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteWait))
	return s.conn.WriteJSON(evt)
}

// Close sends a close frame with code and reason, then drops the transport.
// Safe to call more than once.
func (s *WSSocket) Close(code int, reason string) error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		msg := websocket.FormatCloseMessage(code, reason)
		_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(s.opts.WriteWait))
		close(s.done)
		s.mu.Unlock()
		err = s.conn.Close()
	})
	return err
}

// ReadLoop reads client frames until the transport fails or is closed,
// keeping the connection alive with pings. Frames that are not valid JSON
// are ignored.
func (s *WSSocket) ReadLoop(handle func(ClientFrame)) error {
	s.conn.SetReadLimit(s.opts.ReadLimit)
	_ = s.conn.SetReadDeadline(time.Now().Add(s.opts.PongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(s.opts.PongWait))
	})

	go s.pingLoop()

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.logger.Warnf("websocket read error: %v", err)
			}
			return err
		}
		var frame ClientFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			s.logger.Debugf("ignoring invalid frame: %v", err)
			continue
		}
		handle(frame)
	}
}

func (s *WSSocket) pingLoop() {
	ticker := time.NewTicker(s.opts.PongWait * 9 / 10)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.mu.Lock()
			err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.opts.WriteWait))
			s.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
