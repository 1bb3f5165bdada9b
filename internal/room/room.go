// Package room implements the authoritative per-room state container:
// the current document, its bounded history stack, the member set and
// the lock that serializes every operation on them.
package room

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"whiteboard-server/internal/document"
	"whiteboard-server/internal/metrics"
	"whiteboard-server/internal/wire"
)

// ErrNotMember is returned by every mutating/presence op when the
// caller is not currently a member of the room.
var ErrNotMember = errors.New("room: session is not a member")

// Saver is the fire-and-forget, coalescing persistence sink a Room
// hands finished snapshots to. persistence.Coalescer satisfies this.
type Saver interface {
	Enqueue(roomID string, doc document.Document)
}

// Room is the authoritative state container for one whiteboard. Every
// exported method that reads or changes room state does so under the
// room's lock; no Room state is ever exposed by reference to callers.
type Room struct {
	id      string
	logger  *zap.Logger
	metrics *metrics.Recorder
	saver   Saver

	historyMax int

	mu          sync.Mutex
	history     []document.Document
	cursor      int
	counter     int64
	members     map[string]Member
	dirtySince  *time.Time
	neverLoaded bool
}

// New constructs a Room seeded from doc (the result of a cold-load, or
// an empty document if cold-load failed — see neverLoaded). The Room is
// immediately ready to accept joins.
func New(id string, doc document.Document, historyMax int, saver Saver, logger *zap.Logger, rec *metrics.Recorder, neverLoaded bool) *Room {
	return &Room{
		id:          id,
		logger:      logger,
		metrics:     rec,
		saver:       saver,
		historyMax:  historyMax,
		history:     []document.Document{doc},
		cursor:      0,
		counter:     maxCreatedAt(doc),
		members:     make(map[string]Member),
		neverLoaded: neverLoaded,
	}
}

// ID returns the room's id.
func (r *Room) ID() string { return r.id }

func maxCreatedAt(doc document.Document) int64 {
	var max int64
	for _, e := range doc.RenderOrder() {
		if c := e.ElementCreatedAt(); c > max {
			max = c
		}
	}
	return max
}

// Join adds member to the room and delivers its initial state-update
// snapshot while still holding the room lock, so a concurrent mutation's
// broadcast can never overtake the joiner's seed state. It also
// broadcasts the updated member roster to everyone, including the
// joiner, and returns the delivered document plus undo/redo
// availability for callers that want it.
func (r *Room) Join(member Member) (doc document.Document, canUndo, canRedo bool) {
	r.mu.Lock()
	r.members[member.SessionID()] = member
	doc, canUndo, canRedo = r.currentLocked()
	r.publish([]Member{member}, wire.KindStateUpdate, wire.StateUpdateData{
		Document: doc, CanUndo: canUndo, CanRedo: canRedo,
	})
	r.mu.Unlock()

	r.metrics.RoomOp()
	r.broadcastMembers()
	return doc, canUndo, canRedo
}

// Leave removes a session from the room's member set and broadcasts
// the updated roster to whoever remains. It reports whether the room
// is now empty, which the registry uses to decide whether to schedule
// a final save and tear the room down.
func (r *Room) Leave(sessionID string) (empty bool) {
	r.mu.Lock()
	delete(r.members, sessionID)
	empty = len(r.members) == 0
	r.mu.Unlock()

	r.metrics.RoomOp()
	if !empty {
		r.broadcastMembers()
	}
	return empty
}

// CreateStroke assigns an id and created_at to a new stroke, submitted
// by authorID, appends it to the document, and broadcasts the result.
func (r *Room) CreateStroke(authorID string, points []document.Point, color string, width float64, mode document.StrokeMode) error {
	return r.mutate(authorID, func(doc document.Document, id string, createdAt int64) (document.Document, error) {
		return doc.AddStroke(document.Stroke{
			ID:          id,
			Author:      authorID,
			CreatedAt:   createdAt,
			Points:      points,
			Color:       color,
			StrokeWidth: width,
			Mode:        mode,
		})
	})
}

// CreateShape assigns an id and created_at to a new shape and appends it.
func (r *Room) CreateShape(authorID string, kind document.ShapeKind, from, to document.Point, color string, width float64, fill *string) error {
	return r.mutate(authorID, func(doc document.Document, id string, createdAt int64) (document.Document, error) {
		return doc.AddShape(document.Shape{
			ID:          id,
			Author:      authorID,
			CreatedAt:   createdAt,
			Kind:        kind,
			From:        from,
			To:          to,
			Color:       color,
			StrokeWidth: width,
			Fill:        fill,
		})
	})
}

// CreateText assigns an id and created_at to a new text element and appends it.
func (r *Room) CreateText(authorID string, at document.Point, body string, fontSize float64, fontFamily, color string) error {
	return r.mutate(authorID, func(doc document.Document, id string, createdAt int64) (document.Document, error) {
		return doc.AddText(document.Text{
			ID:         id,
			Author:     authorID,
			CreatedAt:  createdAt,
			At:         at,
			Body:       body,
			FontSize:   fontSize,
			FontFamily: fontFamily,
			Color:      color,
		})
	})
}

// DeleteElement removes the element carrying id, if any. Deleting an
// unknown id is a no-op: no history frame is appended, nothing is
// broadcast.
func (r *Room) DeleteElement(senderID, elementID string) error {
	r.mu.Lock()
	if _, ok := r.members[senderID]; !ok {
		r.mu.Unlock()
		return ErrNotMember
	}
	current := r.history[r.cursor]
	next, changed := current.RemoveElement(elementID)
	if !changed {
		r.mu.Unlock()
		return nil
	}
	canUndo, canRedo := r.commitLocked(next)
	targets := r.allMembersLocked()
	r.publish(targets, wire.KindStateUpdate, wire.StateUpdateData{
		Document: next, CanUndo: canUndo, CanRedo: canRedo,
	})
	r.mu.Unlock()

	r.metrics.RoomOp()
	r.scheduleSave()
	return nil
}

// mutate is the shared body of the three create ops: validate
// membership, assign id/created_at, apply the pure document edit,
// commit the new frame and broadcast it — all under the same lock
// acquisition, so every member observes state-update broadcasts in
// exactly the order the room committed them. Persistence is handed off
// after the lock is released.
func (r *Room) mutate(authorID string, apply func(doc document.Document, id string, createdAt int64) (document.Document, error)) error {
	r.mu.Lock()
	if _, ok := r.members[authorID]; !ok {
		r.mu.Unlock()
		return ErrNotMember
	}
	id := uuid.New().String()
	r.counter++
	createdAt := r.counter

	current := r.history[r.cursor]
	next, err := apply(current, id, createdAt)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	canUndo, canRedo := r.commitLocked(next)
	targets := r.allMembersLocked()
	r.publish(targets, wire.KindStateUpdate, wire.StateUpdateData{
		Document: next, CanUndo: canUndo, CanRedo: canRedo,
	})
	r.mu.Unlock()

	r.metrics.RoomOp()
	r.scheduleSave()
	return nil
}

// Undo moves the cursor back one frame, if possible. It never
// truncates history. A no-op at the boundary broadcasts nothing.
func (r *Room) Undo(senderID string) error {
	return r.moveCursor(senderID, -1)
}

// Redo moves the cursor forward one frame, if possible.
func (r *Room) Redo(senderID string) error {
	return r.moveCursor(senderID, 1)
}

func (r *Room) moveCursor(senderID string, delta int) error {
	r.mu.Lock()
	if _, ok := r.members[senderID]; !ok {
		r.mu.Unlock()
		return ErrNotMember
	}
	next := r.cursor + delta
	if next < 0 || next >= len(r.history) {
		r.mu.Unlock()
		return nil
	}
	r.cursor = next
	now := time.Now()
	r.dirtySince = &now
	doc, canUndo, canRedo := r.currentLocked()
	targets := r.allMembersLocked()
	r.publish(targets, wire.KindStateUpdate, wire.StateUpdateData{
		Document: doc, CanUndo: canUndo, CanRedo: canRedo,
	})
	r.mu.Unlock()

	r.metrics.RoomOp()
	r.scheduleSave()
	return nil
}

// CursorMove relays an ephemeral cursor position to every other member.
// It never touches history or persistence and is silently dropped if
// the sender is not a member.
func (r *Room) CursorMove(senderID string, x, y float64, label string) {
	r.mu.Lock()
	if _, ok := r.members[senderID]; !ok {
		r.mu.Unlock()
		return
	}
	targets := r.otherMembersLocked(senderID)
	r.mu.Unlock()

	r.publish(targets, wire.KindRemoteCursor, wire.RemoteCursorData{
		SessionID: senderID, X: x, Y: y, Label: label,
	})
}

// CursorLeave relays that a cursor is no longer present to every other member.
func (r *Room) CursorLeave(senderID string) {
	r.mu.Lock()
	if _, ok := r.members[senderID]; !ok {
		r.mu.Unlock()
		return
	}
	targets := r.otherMembersLocked(senderID)
	r.mu.Unlock()

	r.publish(targets, wire.KindRemoteCursorLeave, wire.RemoteCursorLeaveData{SessionID: senderID})
}

// NotifyDeleted broadcasts that the room's persisted document was
// deleted out-of-band and marks the room to refuse further saves.
func (r *Room) NotifyDeleted() {
	r.mu.Lock()
	r.neverLoaded = true
	targets := r.allMembersLocked()
	r.publish(targets, wire.KindRoomDeleted, r.id)
	r.mu.Unlock()
}

// ResetLoadFailure clears the cold-load-failure latch, allowing saves
// to resume. Refusing saves after a failed cold-load is a deliberate,
// operator-resolved state, not something the Room clears on its own.
func (r *Room) ResetLoadFailure() {
	r.mu.Lock()
	r.neverLoaded = false
	r.mu.Unlock()
}

// commitLocked applies the history-discipline invariant: truncate the
// redo tail, append the new frame, move the cursor to it, and drop the
// oldest frame if the cap is exceeded. Must be called with r.mu held.
func (r *Room) commitLocked(next document.Document) (canUndo, canRedo bool) {
	r.history = r.history[:r.cursor+1]
	r.history = append(r.history, next)
	r.cursor = len(r.history) - 1

	if len(r.history) > r.historyMax {
		r.history = r.history[1:]
		r.cursor--
	}

	now := time.Now()
	r.dirtySince = &now

	return r.cursor > 0, r.cursor < len(r.history)-1
}

// currentLocked returns the visible frame and undo/redo flags. Must be
// called with r.mu held.
func (r *Room) currentLocked() (document.Document, bool, bool) {
	return r.history[r.cursor], r.cursor > 0, r.cursor < len(r.history)-1
}

func (r *Room) otherMembersLocked(exclude string) []Member {
	out := make([]Member, 0, len(r.members))
	for id, m := range r.members {
		if id != exclude {
			out = append(out, m)
		}
	}
	return out
}

func (r *Room) allMembersLocked() []Member {
	out := make([]Member, 0, len(r.members))
	for _, m := range r.members {
		out = append(out, m)
	}
	return out
}

// broadcastMembers publishes the current roster to every member.
func (r *Room) broadcastMembers() {
	r.mu.Lock()
	targets := r.allMembersLocked()
	ids := make([]string, 0, len(targets))
	for _, m := range targets {
		ids = append(ids, m.SessionID())
	}
	r.publish(targets, wire.KindMembers, wire.MembersData{Members: ids})
	r.mu.Unlock()
}

// publish encodes kind/payload once and enqueues it to every target.
// A target whose outbound queue has overflowed is disconnected; a
// single member's send failure never fails the operation.
func (r *Room) publish(targets []Member, kind string, payload any) {
	data, err := wire.Encode(kind, payload)
	if err != nil {
		r.logger.Error("failed to encode broadcast", zap.String("room_id", r.id), zap.String("kind", kind), zap.Error(err))
		return
	}
	for _, m := range targets {
		if !m.Enqueue(data) {
			r.metrics.OverflowDrop()
			r.logger.Warn("member outbound queue overflowed, disconnecting",
				zap.String("room_id", r.id), zap.String("session_id", m.SessionID()))
			m.Disconnect()
		}
	}
}

// scheduleSave hands the current frame to the Saver if the room is
// dirty and not latched by a prior cold-load failure. The dirty flag is
// cleared optimistically; any mutation that lands after the snapshot is
// taken will set it again, and the Saver's own coalescing guarantees
// that mutation's document eventually gets persisted too.
func (r *Room) scheduleSave() {
	r.mu.Lock()
	if r.dirtySince == nil {
		r.mu.Unlock()
		return
	}
	if r.neverLoaded {
		r.logger.Warn("refusing save: room never completed cold-load", zap.String("room_id", r.id))
		r.mu.Unlock()
		return
	}
	doc := r.history[r.cursor]
	r.dirtySince = nil
	r.mu.Unlock()

	r.saver.Enqueue(r.id, doc)
}

// Tick is called periodically by whatever drives the registry's save
// loop. It is equivalent to scheduleSave but named for the
// periodic-tick call site.
func (r *Room) Tick() {
	r.scheduleSave()
}

// IsDirty reports whether the room has unpersisted mutations.
func (r *Room) IsDirty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dirtySince != nil
}

// Snapshot returns the currently visible document, for a final save on
// room teardown.
func (r *Room) Snapshot() document.Document {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, _, _ := r.currentLocked()
	return doc
}

// MemberCount returns the number of currently joined members.
func (r *Room) MemberCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

// HistoryLen returns the current length of the history stack, for
// tests asserting the history is kept bounded.
func (r *Room) HistoryLen() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.history)
}
