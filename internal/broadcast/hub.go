// Package broadcast fans captured webhooks out to dashboard clients over
// websocket connections. The hub is publish-only: clients subscribe by
// connecting and receive every capture as one JSON message.
package broadcast

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const (
	writeTimeout      = 10 * time.Second
	heartbeatInterval = 30 * time.Second
	sendBuffer        = 16
)

// Hub tracks connected websocket sessions and broadcasts published values
// to all of them. Slow clients are dropped rather than allowed to stall the
// capture path.
type Hub struct {
	upgrader websocket.Upgrader

	mu       sync.Mutex
	sessions map[*session]struct{}
	stopped  bool
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(*http.Request) bool {
				// Local development tool; the dashboard runs on another port.
				return true
			},
		},
		sessions: make(map[*session]struct{}),
	}
}

// Handler upgrades connections and registers them for broadcasts.
func (h *Hub) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warnf("broadcast: upgrade failed: %v", err)
			return
		}
		s := newSession(conn, h)

		h.mu.Lock()
		if h.stopped {
			h.mu.Unlock()
			s.close()
			return
		}
		h.sessions[s] = struct{}{}
		count := len(h.sessions)
		h.mu.Unlock()

		log.Debugf("broadcast: client connected (%d active)", count)
		go s.writePump()
		go s.readPump()
	})
}

// Publish encodes v as JSON and queues it to every connected session.
func (h *Hub) Publish(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Warnf("broadcast: encode message: %v", err)
		return
	}
	h.mu.Lock()
	sessions := make([]*session, 0, len(h.sessions))
	for s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.Unlock()

	for _, s := range sessions {
		if !s.enqueue(data) {
			log.Debugf("broadcast: dropping slow client")
			h.drop(s)
		}
	}
}

// ClientCount reports the number of connected sessions.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Stop closes every session and rejects future connections.
func (h *Hub) Stop(_ context.Context) error {
	h.mu.Lock()
	h.stopped = true
	sessions := make([]*session, 0, len(h.sessions))
	for s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.sessions = make(map[*session]struct{})
	h.mu.Unlock()

	for _, s := range sessions {
		s.close()
	}
	return nil
}

// drop unregisters and closes one session.
func (h *Hub) drop(s *session) {
	h.mu.Lock()
	delete(h.sessions, s)
	h.mu.Unlock()
	s.close()
}

// session is one connected dashboard client.
type session struct {
	conn      *websocket.Conn
	hub       *Hub
	send      chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newSession(conn *websocket.Conn, hub *Hub) *session {
	return &session{
		conn:   conn,
		hub:    hub,
		send:   make(chan []byte, sendBuffer),
		closed: make(chan struct{}),
	}
}

// enqueue offers a message without blocking; false means the buffer is full.
func (s *session) enqueue(data []byte) bool {
	select {
	case <-s.closed:
		return true
	default:
	}
	select {
	case s.send <- data:
		return true
	default:
		return false
	}
}

// writePump serializes writes and keeps the connection alive with pings.
func (s *session) writePump() {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.closed:
			return
		case data := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				s.hub.drop(s)
				return
			}
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(writeTimeout)); err != nil {
				s.hub.drop(s)
				return
			}
		}
	}
}

// readPump discards inbound frames; its job is detecting the close.
func (s *session) readPump() {
	s.conn.SetReadLimit(1 << 20)
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			s.hub.drop(s)
			return
		}
	}
}

func (s *session) close() {
	s.closeOnce.Do(func() {
		close(s.closed)
		_ = s.conn.Close()
	})
}
