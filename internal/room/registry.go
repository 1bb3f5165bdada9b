package room

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"whiteboard-server/internal/document"
	"whiteboard-server/internal/metrics"
	"whiteboard-server/internal/persistence"
)

// Loader is the cold-load half of the persistence contract a Registry
// needs; any persistence.Store satisfies it.
type Loader interface {
	Load(ctx context.Context, roomID string) (document.Document, error)
}

// Registry owns the set of live Rooms, keyed by room id. It is the
// only thing allowed to create or destroy a Room.
type Registry struct {
	loader      Loader
	saver       Saver
	logger      *zap.Logger
	metrics     *metrics.Recorder
	historyMax  int
	loadTimeout time.Duration
	saveTimeout time.Duration

	mu       sync.Mutex
	rooms    map[string]*Room
	creating map[string]*sync.WaitGroup
}

// NewRegistry constructs an empty Registry.
func NewRegistry(loader Loader, saver Saver, logger *zap.Logger, rec *metrics.Recorder, historyMax int, loadTimeout, saveTimeout time.Duration) *Registry {
	return &Registry{
		loader:      loader,
		saver:       saver,
		logger:      logger,
		metrics:     rec,
		historyMax:  historyMax,
		loadTimeout: loadTimeout,
		saveTimeout: saveTimeout,
		rooms:       make(map[string]*Room),
		creating:    make(map[string]*sync.WaitGroup),
	}
}

// GetOrCreate returns the live Room for roomID, creating and
// cold-loading it if this is the first join. Concurrent callers for the
// same brand-new id block on a single cold-load and then all observe
// the same *Room instance.
func (reg *Registry) GetOrCreate(ctx context.Context, roomID string) *Room {
	for {
		reg.mu.Lock()
		if r, ok := reg.rooms[roomID]; ok {
			reg.mu.Unlock()
			return r
		}
		if wg, inProgress := reg.creating[roomID]; inProgress {
			reg.mu.Unlock()
			wg.Wait()
			continue
		}

		wg := &sync.WaitGroup{}
		wg.Add(1)
		reg.creating[roomID] = wg
		reg.mu.Unlock()

		r := reg.coldLoad(ctx, roomID)

		reg.mu.Lock()
		reg.rooms[roomID] = r
		delete(reg.creating, roomID)
		reg.mu.Unlock()
		wg.Done()

		reg.metrics.RoomCreated()
		return r
	}
}

func (reg *Registry) coldLoad(ctx context.Context, roomID string) *Room {
	loadCtx, cancel := context.WithTimeout(ctx, reg.loadTimeout)
	defer cancel()

	doc, err := reg.loader.Load(loadCtx, roomID)
	neverLoaded := false
	switch {
	case err == nil:
		// loaded fine
	case err == persistence.ErrNotFound:
		doc = document.Empty()
	default:
		reg.logger.Warn("cold-load failed, starting from an empty document and refusing saves until cleared",
			zap.String("room_id", roomID), zap.Error(err))
		reg.metrics.LoadFailure()
		doc = document.Empty()
		neverLoaded = true
	}

	return New(roomID, doc, reg.historyMax, reg.saver, reg.logger, reg.metrics, neverLoaded)
}

// Release removes sessionID from roomID's member set. If the room
// becomes empty, its final state is handed to the saver (when dirty and
// not latched by a cold-load failure) and the room is dropped from the
// registry.
func (reg *Registry) Release(roomID, sessionID string) {
	reg.mu.Lock()
	r, ok := reg.rooms[roomID]
	reg.mu.Unlock()
	if !ok {
		return
	}

	empty := r.Leave(sessionID)
	if !empty {
		return
	}

	r.scheduleSave()

	reg.mu.Lock()
	delete(reg.rooms, roomID)
	reg.mu.Unlock()
	reg.metrics.RoomDestroyed()
}

// Lookup returns the live room for roomID, if any, without creating one.
func (reg *Registry) Lookup(roomID string) (*Room, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	r, ok := reg.rooms[roomID]
	return r, ok
}

// RunSaveTicker drives the periodic persistence tick: every interval,
// every dirty live room's current frame is handed to the saver. It
// runs until ctx is canceled.
func (reg *Registry) RunSaveTicker(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reg.mu.Lock()
			rooms := make([]*Room, 0, len(reg.rooms))
			for _, r := range reg.rooms {
				rooms = append(rooms, r)
			}
			reg.mu.Unlock()

			for _, r := range rooms {
				r.Tick()
			}
		}
	}
}

// RunDeletionForwarder consumes roomIDs from src and forwards a
// room-deleted notification to whichever matching room is currently
// live. It runs until ctx is canceled or src closes.
func (reg *Registry) RunDeletionForwarder(ctx context.Context, src persistence.DeletionSource) {
	ch := src.Deletions()
	for {
		select {
		case <-ctx.Done():
			return
		case roomID, ok := <-ch:
			if !ok {
				return
			}
			if r, found := reg.Lookup(roomID); found {
				r.NotifyDeleted()
			}
		}
	}
}

// RoomCount returns the number of currently live rooms, for the health
// endpoint.
func (reg *Registry) RoomCount() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	return len(reg.rooms)
}
