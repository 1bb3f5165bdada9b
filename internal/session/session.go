// Package session implements one connected client: the transport
// wrapper, identity, current-room bookkeeping and outbound queue.
// Session is a leaf with respect to room/router — it depends on
// nothing from either package, so the router can hold references to
// both without a cycle.
package session

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"whiteboard-server/internal/metrics"
	"whiteboard-server/internal/ratelimit"
	"whiteboard-server/internal/wire"
)

const (
	// writeTimeout bounds a single outbound frame write.
	writeTimeout = 10 * time.Second
	// pongWait bounds how long a connection can stay silent before it's
	// considered dead, refreshed on every received pong.
	pongWait = 60 * time.Second
	// pingInterval must be less than pongWait.
	pingInterval = 54 * time.Second
	// maxMessageBytes bounds an inbound frame.
	maxMessageBytes = 1 << 16
)

// Dispatcher receives decoded inbound envelopes from a Session's read
// pump. The router implements this.
type Dispatcher interface {
	Dispatch(s *Session, env wire.Envelope)
}

// Identity is the opaque, possibly-anonymous user handle carried on a
// session. There's no authentication here — a display name is all a
// client provides.
type Identity struct {
	DisplayName string
	Anonymous   bool
}

// Session is one connected client.
type Session struct {
	id       string
	identity Identity
	conn     *websocket.Conn
	send     chan []byte

	dispatcher Dispatcher
	limiter    *ratelimit.Limiter
	logger     *zap.Logger
	metrics    *metrics.Recorder

	mu          sync.Mutex
	currentRoom string

	closeOnce sync.Once
	onClose   func(sessionID, roomID string)
}

// New constructs a Session around an already-upgraded websocket
// connection. outboundQueueSize is the bounded outbound queue depth;
// onClose is invoked exactly once, when both pumps have exited, so the
// caller can release room membership.
func New(id string, identity Identity, conn *websocket.Conn, dispatcher Dispatcher, limiter *ratelimit.Limiter, logger *zap.Logger, rec *metrics.Recorder, outboundQueueSize int, onClose func(sessionID, roomID string)) *Session {
	return &Session{
		id:         id,
		identity:   identity,
		conn:       conn,
		send:       make(chan []byte, outboundQueueSize),
		dispatcher: dispatcher,
		limiter:    limiter,
		logger:     logger,
		metrics:    rec,
		onClose:    onClose,
	}
}

// SessionID implements room.Member.
func (s *Session) SessionID() string { return s.id }

// DisplayName implements room.Member.
func (s *Session) DisplayName() string { return s.identity.DisplayName }

// Enqueue implements room.Member: a non-blocking send. Returns false if
// the outbound queue is full — the caller is expected to Disconnect.
func (s *Session) Enqueue(message []byte) bool {
	select {
	case s.send <- message:
		return true
	default:
		return false
	}
}

// Disconnect implements room.Member: force-closes the transport. Safe
// to call more than once and from any goroutine.
func (s *Session) Disconnect() {
	_ = s.conn.Close()
}

// CurrentRoom returns the room id the session currently believes it has
// joined, or "" if none.
func (s *Session) CurrentRoom() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentRoom
}

// SetCurrentRoom records the room id the session has joined. Called by
// the router after a successful join-room/leave-room dispatch.
func (s *Session) SetCurrentRoom(roomID string) {
	s.mu.Lock()
	s.currentRoom = roomID
	s.mu.Unlock()
}

// Run starts the read and write pumps and blocks until both exit.
func (s *Session) Run() {
	done := make(chan struct{})
	quit := make(chan struct{})
	go func() {
		s.writePump(quit)
		close(done)
	}()
	s.readPump()
	close(quit)
	<-done
	s.finish()
}

func (s *Session) finish() {
	s.closeOnce.Do(func() {
		if s.onClose != nil {
			s.onClose(s.id, s.CurrentRoom())
		}
	})
}

// readPump reads inbound frames and forwards well-formed envelopes to
// the dispatcher. A single malformed message is logged and dropped,
// never closes the connection; sustained excess traffic is dropped by
// the rate limiter, also without closing the connection.
func (s *Session) readPump() {
	defer s.Disconnect()

	s.conn.SetReadLimit(maxMessageBytes)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			return
		}

		if !s.limiter.Allow() {
			s.metrics.RateLimited()
			continue
		}

		var env wire.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			s.metrics.Malformed()
			s.logger.Warn("malformed message dropped", zap.String("session_id", s.id), zap.Error(err))
			continue
		}

		s.dispatcher.Dispatch(s, env)
	}
}

// writePump drains the outbound queue to the transport and keeps the
// connection alive with periodic pings. It returns once quit is closed
// (the read pump has exited) or a write fails.
func (s *Session) writePump(quit <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer s.Disconnect()

	for {
		select {
		case <-quit:
			return
		case message, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
