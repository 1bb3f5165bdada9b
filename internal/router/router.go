// Package router implements the event router: it maps each inbound
// client message kind onto a Room operation, validates payload shape
// before invoking the Room, and never closes a connection over a
// single bad message.
package router

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"whiteboard-server/internal/document"
	"whiteboard-server/internal/metrics"
	"whiteboard-server/internal/room"
	"whiteboard-server/internal/session"
	"whiteboard-server/internal/wire"
)

// Router dispatches decoded envelopes from Sessions onto Room
// operations. One Router instance is shared by every Session.
type Router struct {
	registry *room.Registry
	logger   *zap.Logger
	metrics  *metrics.Recorder
}

// New constructs a Router bound to registry.
func New(registry *room.Registry, logger *zap.Logger, rec *metrics.Recorder) *Router {
	return &Router{registry: registry, logger: logger, metrics: rec}
}

// Dispatch implements session.Dispatcher. Ordering guarantee: the
// Session's read pump calls Dispatch serially, so messages from one
// session are processed in arrival order; Dispatch itself may be
// called concurrently for different sessions, with cross-session
// interleaving resolved by each Room's own lock.
func (r *Router) Dispatch(s *session.Session, env wire.Envelope) {
	switch env.Kind {
	case wire.KindJoinRoom:
		r.handleJoinRoom(s, env.Data)
	case wire.KindLeaveRoom:
		r.handleLeaveRoom(s)
	case wire.KindCreateElement:
		r.handleCreateElement(s, env.Data)
	case wire.KindDeleteElement:
		r.handleDeleteElement(s, env.Data)
	case wire.KindUndo:
		r.handleUndo(s, env.Data)
	case wire.KindRedo:
		r.handleRedo(s, env.Data)
	case wire.KindCursorMove:
		r.handleCursorMove(s, env.Data)
	case wire.KindCursorLeave:
		r.handleCursorLeave(s, env.Data)
	default:
		r.dropMalformed(s, "unknown message kind: "+env.Kind)
	}
}

func (r *Router) dropMalformed(s *session.Session, reason string) {
	r.metrics.Malformed()
	r.logger.Warn("malformed message dropped", zap.String("session_id", s.SessionID()), zap.String("reason", reason))
}

func (r *Router) handleJoinRoom(s *session.Session, data json.RawMessage) {
	var roomID string
	if err := json.Unmarshal(data, &roomID); err != nil || roomID == "" {
		r.dropMalformed(s, "join-room: missing room_id")
		return
	}

	rm := r.registry.GetOrCreate(context.Background(), roomID)
	// Room.Join delivers the joiner's initial state-update itself, while
	// still holding the room lock, so the seed snapshot can never be
	// overtaken by a concurrent mutation's broadcast.
	rm.Join(s)
	s.SetCurrentRoom(roomID)
}

func (r *Router) handleLeaveRoom(s *session.Session) {
	roomID := s.CurrentRoom()
	if roomID == "" {
		return
	}
	r.registry.Release(roomID, s.SessionID())
	s.SetCurrentRoom("")
}

func (r *Router) requireRoom(s *session.Session, claimedRoomID string) (*room.Room, bool) {
	if claimedRoomID == "" || claimedRoomID != s.CurrentRoom() {
		// Dropped silently, no log noise — this is routine for messages
		// racing a leave, not malformed traffic.
		return nil, false
	}
	rm, ok := r.registry.Lookup(claimedRoomID)
	return rm, ok
}

func (r *Router) handleCreateElement(s *session.Session, data json.RawMessage) {
	var payload wire.CreateElementData
	if err := json.Unmarshal(data, &payload); err != nil {
		r.dropMalformed(s, "create-element: invalid envelope")
		return
	}
	rm, ok := r.requireRoom(s, payload.RoomID)
	if !ok {
		return
	}

	var err error
	switch payload.Type {
	case wire.ElementLine:
		var sp wire.StrokePayload
		if jerr := json.Unmarshal(payload.Payload, &sp); jerr != nil {
			r.dropMalformed(s, "create-element: invalid stroke payload")
			return
		}
		err = rm.CreateStroke(s.SessionID(), sp.Points, sp.Color, sp.StrokeWidth, sp.Mode)
	case wire.ElementShape:
		var sp wire.ShapePayload
		if jerr := json.Unmarshal(payload.Payload, &sp); jerr != nil {
			r.dropMalformed(s, "create-element: invalid shape payload")
			return
		}
		err = rm.CreateShape(s.SessionID(), sp.Kind, sp.From, sp.To, sp.Color, sp.StrokeWidth, sp.Fill)
	case wire.ElementText:
		var tp wire.TextPayload
		if jerr := json.Unmarshal(payload.Payload, &tp); jerr != nil {
			r.dropMalformed(s, "create-element: invalid text payload")
			return
		}
		err = rm.CreateText(s.SessionID(), tp.At, tp.Body, tp.FontSize, tp.FontFamily, tp.Color)
	default:
		r.dropMalformed(s, "create-element: unknown type")
		return
	}

	if err != nil && err != document.ErrDuplicateID {
		r.logger.Warn("create-element rejected", zap.String("room_id", payload.RoomID), zap.Error(err))
	}
}

func (r *Router) handleDeleteElement(s *session.Session, data json.RawMessage) {
	var payload wire.DeleteElementData
	if err := json.Unmarshal(data, &payload); err != nil || payload.ElementID == "" {
		r.dropMalformed(s, "delete-element: missing element_id")
		return
	}
	rm, ok := r.requireRoom(s, payload.RoomID)
	if !ok {
		return
	}
	_ = rm.DeleteElement(s.SessionID(), payload.ElementID)
}

func (r *Router) handleUndo(s *session.Session, data json.RawMessage) {
	var roomID string
	if err := json.Unmarshal(data, &roomID); err != nil {
		r.dropMalformed(s, "undo: invalid envelope")
		return
	}
	rm, ok := r.requireRoom(s, roomID)
	if !ok {
		return
	}
	_ = rm.Undo(s.SessionID())
}

func (r *Router) handleRedo(s *session.Session, data json.RawMessage) {
	var roomID string
	if err := json.Unmarshal(data, &roomID); err != nil {
		r.dropMalformed(s, "redo: invalid envelope")
		return
	}
	rm, ok := r.requireRoom(s, roomID)
	if !ok {
		return
	}
	_ = rm.Redo(s.SessionID())
}

func (r *Router) handleCursorMove(s *session.Session, data json.RawMessage) {
	var payload wire.CursorMoveData
	if err := json.Unmarshal(data, &payload); err != nil {
		r.dropMalformed(s, "cursor-move: invalid envelope")
		return
	}
	rm, ok := r.requireRoom(s, payload.RoomID)
	if !ok {
		return
	}
	rm.CursorMove(s.SessionID(), payload.X, payload.Y, payload.Label)
}

func (r *Router) handleCursorLeave(s *session.Session, data json.RawMessage) {
	var roomID string
	if err := json.Unmarshal(data, &roomID); err != nil {
		r.dropMalformed(s, "cursor-leave: invalid envelope")
		return
	}
	rm, ok := r.requireRoom(s, roomID)
	if !ok {
		return
	}
	rm.CursorLeave(s.SessionID())
}

// OnSessionClosed is the Session onClose callback: it releases the
// session's current room membership, the same auto-leave-on-disconnect
// behavior as an explicit leave-room message.
func (r *Router) OnSessionClosed(sessionID, roomID string) {
	if roomID == "" {
		return
	}
	r.registry.Release(roomID, sessionID)
}
