package room

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"whiteboard-server/internal/document"
	"whiteboard-server/internal/metrics"
	"whiteboard-server/internal/persistence"
)

type fakeLoader struct {
	mu        sync.Mutex
	calls     int32
	doc       document.Document
	err       error
	loadDelay time.Duration
}

func (f *fakeLoader) Load(ctx context.Context, roomID string) (document.Document, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.loadDelay > 0 {
		select {
		case <-time.After(f.loadDelay):
		case <-ctx.Done():
			return document.Document{}, ctx.Err()
		}
	}
	return f.doc, f.err
}

func newTestRegistry(loader Loader, saver Saver) *Registry {
	return NewRegistry(loader, saver, zap.NewNop(), metrics.New(), 100, time.Second, time.Second)
}

func TestRegistry_ColdLoad_NotFoundStartsEmpty(t *testing.T) {
	loader := &fakeLoader{err: persistence.ErrNotFound}
	saver := &fakeSaver{}
	reg := newTestRegistry(loader, saver)

	r := reg.GetOrCreate(context.Background(), "room-a")
	assert.Equal(t, document.Empty(), r.Snapshot())

	m := newFakeMember("m1")
	r.Join(m)
	require.NoError(t, r.CreateStroke("m1", nil, "#000", 1, document.ModeInk))
	assert.Equal(t, 1, saver.saveCount(), "a not-found cold-load must still allow saves")
}

func TestRegistry_ColdLoad_FailureLatchesRoomAgainstSaves(t *testing.T) {
	loader := &fakeLoader{err: errors.New("connection refused")}
	saver := &fakeSaver{}
	reg := newTestRegistry(loader, saver)

	r := reg.GetOrCreate(context.Background(), "room-a")
	m := newFakeMember("m1")
	r.Join(m)
	require.NoError(t, r.CreateStroke("m1", nil, "#000", 1, document.ModeInk))

	assert.Equal(t, 0, saver.saveCount(), "a failed cold-load must refuse saves until reset")
}

func TestRegistry_GetOrCreate_ConcurrentCallersShareOneColdLoad(t *testing.T) {
	loader := &fakeLoader{err: persistence.ErrNotFound, loadDelay: 20 * time.Millisecond}
	saver := &fakeSaver{}
	reg := newTestRegistry(loader, saver)

	const callers = 10
	results := make([]*Room, callers)
	var wg sync.WaitGroup
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func(i int) {
			defer wg.Done()
			results[i] = reg.GetOrCreate(context.Background(), "room-shared")
		}(i)
	}
	wg.Wait()

	for i := 1; i < callers; i++ {
		assert.Same(t, results[0], results[i])
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&loader.calls), "only one cold-load should run for a brand new room")
}

func TestRegistry_Release_FinalSavesDirtyRoomThenDrops(t *testing.T) {
	loader := &fakeLoader{err: persistence.ErrNotFound}
	saver := &fakeSaver{}
	reg := newTestRegistry(loader, saver)

	r := reg.GetOrCreate(context.Background(), "room-a")
	m := newFakeMember("m1")
	r.Join(m)
	require.NoError(t, r.CreateStroke("m1", nil, "#000", 1, document.ModeInk))

	savesBeforeRelease := saver.saveCount()
	reg.Release("room-a", "m1")

	_, stillLive := reg.Lookup("room-a")
	assert.False(t, stillLive)
	assert.Equal(t, 0, reg.RoomCount())
	assert.GreaterOrEqual(t, saver.saveCount(), savesBeforeRelease)
}

func TestRegistry_Release_NonEmptyRoomStaysLive(t *testing.T) {
	loader := &fakeLoader{err: persistence.ErrNotFound}
	saver := &fakeSaver{}
	reg := newTestRegistry(loader, saver)

	r := reg.GetOrCreate(context.Background(), "room-a")
	m1 := newFakeMember("m1")
	m2 := newFakeMember("m2")
	r.Join(m1)
	r.Join(m2)

	reg.Release("room-a", "m1")

	_, stillLive := reg.Lookup("room-a")
	assert.True(t, stillLive)
	assert.Equal(t, 1, r.MemberCount())
}

func TestRegistry_DeletionForwarder_NotifiesLiveRoom(t *testing.T) {
	loader := &fakeLoader{err: persistence.ErrNotFound}
	saver := &fakeSaver{}
	reg := newTestRegistry(loader, saver)

	r := reg.GetOrCreate(context.Background(), "room-a")
	m := newFakeMember("m1")
	r.Join(m)

	deletions := make(chan string, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go reg.RunDeletionForwarder(ctx, fakeDeletionSource{ch: deletions})

	before := m.messageCount()
	deletions <- "room-a"

	assert.Eventually(t, func() bool {
		return m.messageCount() > before
	}, time.Second, 5*time.Millisecond)
}

type fakeDeletionSource struct {
	ch chan string
}

func (f fakeDeletionSource) Deletions() <-chan string { return f.ch }
