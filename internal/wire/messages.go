// Package wire defines the JSON envelope and payload shapes exchanged
// over the client<->server transport. It is a leaf package: everything
// else (room, router, session) depends on it, it depends on nothing
// but document.
package wire

import (
	"encoding/json"

	"whiteboard-server/internal/document"
)

// Envelope is the outer shape of every message in both directions:
// { "kind": "...", "data": ... }.
type Envelope struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Client -> server message kinds.
const (
	KindJoinRoom      = "join-room"
	KindLeaveRoom     = "leave-room"
	KindCreateElement = "create-element"
	KindDeleteElement = "delete-element"
	KindUndo          = "undo"
	KindRedo          = "redo"
	KindCursorMove    = "cursor-move"
	KindCursorLeave   = "cursor-leave"
)

// Server -> client message kinds.
const (
	KindStateUpdate       = "state-update"
	KindMembers           = "members"
	KindRemoteCursor      = "remote-cursor"
	KindRemoteCursorLeave = "remote-cursor-leave"
	KindRoomDeleted       = "room-deleted"
)

// ElementType is the wire-level type tag on create-element payloads. It
// maps 1:1 onto the document package's tagged variants (line -> Stroke).
type ElementType string

const (
	ElementLine  ElementType = "line"
	ElementShape ElementType = "shape"
	ElementText  ElementType = "text"
)

// CreateElementData is the payload of a create-element message. Payload
// is re-decoded against the concrete shape selected by Type.
type CreateElementData struct {
	RoomID  string          `json:"room_id"`
	Type    ElementType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// StrokePayload is the client-submitted shape of a line/stroke element,
// missing only the server-assigned id, author and created_at.
type StrokePayload struct {
	Points      []document.Point    `json:"points"`
	Color       string              `json:"color"`
	StrokeWidth float64             `json:"stroke_width"`
	Mode        document.StrokeMode `json:"mode"`
}

// ShapePayload is the client-submitted shape of a shape element.
type ShapePayload struct {
	Kind        document.ShapeKind `json:"kind"`
	From        document.Point     `json:"from"`
	To          document.Point     `json:"to"`
	Color       string             `json:"color"`
	StrokeWidth float64            `json:"stroke_width"`
	Fill        *string            `json:"fill,omitempty"`
}

// TextPayload is the client-submitted shape of a text element.
type TextPayload struct {
	At         document.Point `json:"at"`
	Body       string         `json:"body"`
	FontSize   float64        `json:"font_size"`
	FontFamily string         `json:"font_family"`
	Color      string         `json:"color"`
}

// DeleteElementData is the payload of a delete-element message.
type DeleteElementData struct {
	RoomID    string `json:"room_id"`
	ElementID string `json:"element_id"`
}

// CursorMoveData is the payload of a cursor-move message.
type CursorMoveData struct {
	RoomID string  `json:"room_id"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Label  string  `json:"label"`
}

// StateUpdateData is the payload of a state-update broadcast.
type StateUpdateData struct {
	Document document.Document `json:"document"`
	CanUndo  bool              `json:"can_undo"`
	CanRedo  bool              `json:"can_redo"`
}

// MembersData is the payload of a members broadcast: the roster is a
// flat list of session ids, not member objects.
type MembersData struct {
	Members []string `json:"members"`
}

// RemoteCursorData is the payload of a remote-cursor broadcast.
type RemoteCursorData struct {
	SessionID string  `json:"session_id"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Label     string  `json:"label"`
}

// RemoteCursorLeaveData is the payload of a remote-cursor-leave broadcast.
type RemoteCursorLeaveData struct {
	SessionID string `json:"session_id"`
}

// Encode wraps a payload value into an Envelope with the given kind.
func Encode(kind string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Kind: kind, Data: data})
}
