package room

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"whiteboard-server/internal/document"
	"whiteboard-server/internal/metrics"
)

// fakeMember is an in-memory room.Member used by the room tests below: it
// records every message enqueued to it instead of touching a transport.
type fakeMember struct {
	mu           sync.Mutex
	id           string
	name         string
	queue        [][]byte
	queueCap     int
	disconnected bool
}

func newFakeMember(id string) *fakeMember {
	return &fakeMember{id: id, name: id, queueCap: 256}
}

func (f *fakeMember) SessionID() string   { return f.id }
func (f *fakeMember) DisplayName() string { return f.name }

func (f *fakeMember) Enqueue(message []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queue) >= f.queueCap {
		return false
	}
	f.queue = append(f.queue, message)
	return true
}

func (f *fakeMember) Disconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnected = true
}

func (f *fakeMember) messageCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queue)
}

// fakeSaver records every snapshot it was asked to persist, standing in
// for persistence.Coalescer.
type fakeSaver struct {
	mu    sync.Mutex
	saves []document.Document
}

func (f *fakeSaver) Enqueue(roomID string, doc document.Document) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves = append(f.saves, doc)
}

func (f *fakeSaver) saveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saves)
}

func newTestRoom(t *testing.T, historyMax int) (*Room, *fakeSaver) {
	t.Helper()
	saver := &fakeSaver{}
	r := New("room-1", document.Empty(), historyMax, saver, zap.NewNop(), metrics.New(), false)
	return r, saver
}

func TestRoom_JoinReturnsCurrentDocument(t *testing.T) {
	r, _ := newTestRoom(t, 100)
	member := newFakeMember("s1")

	doc, canUndo, canRedo := r.Join(member)

	assert.Equal(t, document.Empty(), doc)
	assert.False(t, canUndo)
	assert.False(t, canRedo)
	assert.Equal(t, 1, r.MemberCount())
}

func TestRoom_CreateStroke_RejectsNonMember(t *testing.T) {
	r, _ := newTestRoom(t, 100)
	err := r.CreateStroke("stranger", nil, "#000", 1, document.ModeInk)
	assert.ErrorIs(t, err, ErrNotMember)
}

func TestRoom_CreateStroke_BroadcastsToEveryMember(t *testing.T) {
	r, _ := newTestRoom(t, 100)
	author := newFakeMember("author")
	other := newFakeMember("other")
	r.Join(author)
	r.Join(other)

	err := r.CreateStroke("author", []document.Point{{X: 1, Y: 2}}, "#f00", 2, document.ModeInk)
	require.NoError(t, err)

	// both members already received a members-roster broadcast from the
	// two joins; the state-update from CreateStroke adds one more each.
	assert.GreaterOrEqual(t, author.messageCount(), 1)
	assert.GreaterOrEqual(t, other.messageCount(), 1)
}

func TestRoom_UndoRedo_AreInverse(t *testing.T) {
	r, _ := newTestRoom(t, 100)
	m := newFakeMember("m1")
	r.Join(m)

	require.NoError(t, r.CreateStroke("m1", nil, "#000", 1, document.ModeInk))
	before := r.Snapshot()

	require.NoError(t, r.Undo("m1"))
	require.NoError(t, r.Redo("m1"))

	after := r.Snapshot()
	assert.Equal(t, before, after)
}

func TestRoom_Undo_NoOpAtOldestFrame(t *testing.T) {
	r, _ := newTestRoom(t, 100)
	m := newFakeMember("m1")
	r.Join(m)

	// no mutations yet: cursor is already at frame 0.
	require.NoError(t, r.Undo("m1"))
	assert.Equal(t, document.Empty(), r.Snapshot())
}

func TestRoom_RedoTail_DiscardedAfterNewMutation(t *testing.T) {
	r, _ := newTestRoom(t, 100)
	m := newFakeMember("m1")
	r.Join(m)

	require.NoError(t, r.CreateStroke("m1", nil, "#000", 1, document.ModeInk))
	firstStroke := r.Snapshot()
	require.NoError(t, r.Undo("m1"))
	// cursor is back at the empty frame; redo is available.
	require.NoError(t, r.CreateShape("m1", document.ShapeRectangle, document.Point{}, document.Point{}, "#fff", 1, nil))

	// the stroke frame that used to be "ahead" of the cursor is gone:
	// redoing now should be a no-op, not bring firstStroke back.
	current := r.Snapshot()
	require.NoError(t, r.Redo("m1"))
	assert.Equal(t, current, r.Snapshot())
	assert.NotEqual(t, firstStroke, r.Snapshot())
}

func TestRoom_History_BoundedAtHistoryMax(t *testing.T) {
	const historyMax = 5
	r, _ := newTestRoom(t, historyMax)
	m := newFakeMember("m1")
	r.Join(m)

	for i := 0; i < 10; i++ {
		require.NoError(t, r.CreateStroke("m1", nil, "#000", 1, document.ModeInk))
	}

	assert.LessOrEqual(t, r.HistoryLen(), historyMax)

	// undoing historyMax-1 times should land on the oldest retained
	// frame, not the very first (now-evicted) empty document.
	for i := 0; i < historyMax-1; i++ {
		require.NoError(t, r.Undo("m1"))
	}
	assert.NotEqual(t, document.Empty(), r.Snapshot())
	// one further undo is a no-op: already at the oldest retained frame.
	oldest := r.Snapshot()
	require.NoError(t, r.Undo("m1"))
	assert.Equal(t, oldest, r.Snapshot())
}

func TestRoom_DeleteElement_IdempotentOnRepeat(t *testing.T) {
	r, _ := newTestRoom(t, 100)
	m := newFakeMember("m1")
	r.Join(m)
	require.NoError(t, r.CreateStroke("m1", nil, "#000", 1, document.ModeInk))

	doc := r.Snapshot()
	require.Len(t, doc.Strokes, 1)
	id := doc.Strokes[0].ID

	require.NoError(t, r.DeleteElement("m1", id))
	afterFirst := r.Snapshot()
	assert.Empty(t, afterFirst.Strokes)

	require.NoError(t, r.DeleteElement("m1", id))
	assert.Equal(t, afterFirst, r.Snapshot())
}

func TestRoom_SlowMember_OverflowDisconnectsWithoutFailingOp(t *testing.T) {
	r, _ := newTestRoom(t, 100)
	slow := newFakeMember("slow")
	slow.queueCap = 0 // every Enqueue fails immediately
	fast := newFakeMember("fast")
	r.Join(slow)
	r.Join(fast)

	err := r.CreateStroke("fast", nil, "#000", 1, document.ModeInk)
	require.NoError(t, err, "a slow member's overflow must not fail the mutating op")
	assert.True(t, slow.disconnected)
}

func TestRoom_CursorMove_NeverTouchesHistoryOrSaver(t *testing.T) {
	r, saver := newTestRoom(t, 100)
	m1 := newFakeMember("m1")
	m2 := newFakeMember("m2")
	r.Join(m1)
	r.Join(m2)

	historyBefore := r.HistoryLen()
	r.CursorMove("m1", 10, 20, "m1")

	assert.Equal(t, historyBefore, r.HistoryLen())
	assert.Equal(t, 0, saver.saveCount())
	assert.GreaterOrEqual(t, m2.messageCount(), 1)
}

func TestRoom_ScheduleSave_RefusedAfterLoadFailure(t *testing.T) {
	saver := &fakeSaver{}
	r := New("room-1", document.Empty(), 100, saver, zap.NewNop(), metrics.New(), true)
	m := newFakeMember("m1")
	r.Join(m)

	require.NoError(t, r.CreateStroke("m1", nil, "#000", 1, document.ModeInk))
	assert.Equal(t, 0, saver.saveCount(), "a room that never cold-loaded must refuse saves")

	r.ResetLoadFailure()
	require.NoError(t, r.CreateStroke("m1", nil, "#000", 1, document.ModeInk))
	assert.Equal(t, 1, saver.saveCount())
}

func TestRoom_Leave_ReportsEmptiness(t *testing.T) {
	r, _ := newTestRoom(t, 100)
	m1 := newFakeMember("m1")
	m2 := newFakeMember("m2")
	r.Join(m1)
	r.Join(m2)

	assert.False(t, r.Leave("m1"))
	assert.True(t, r.Leave("m2"))
}
