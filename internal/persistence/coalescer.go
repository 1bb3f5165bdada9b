package persistence

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"whiteboard-server/internal/document"
)

// backoffSchedule is the retry schedule on a failed save: 1s, 2s, 4s,
// 8s, capped at 4 retries (5 attempts total).
var backoffSchedule = []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second}

// Coalescer wraps a Store with write-coalescing and retry behavior: at
// most one save in flight per room; if the document changes again
// while a save is outstanding, the next save is deferred until the
// current one resolves and then carries the most recent snapshot, not
// the superseded one.
type Coalescer struct {
	store   Store
	logger  *zap.Logger
	timeout time.Duration
	onFail  func(roomID string)

	mu       sync.Mutex
	inFlight map[string]bool
	pending  map[string]document.Document
}

// NewCoalescer wraps store. timeout bounds each individual save
// attempt. onFail, if non-nil, is invoked once per permanently-failed
// save (retries exhausted) so callers can track a save-failure metric
// without the store itself knowing about metrics.
func NewCoalescer(store Store, logger *zap.Logger, timeout time.Duration, onFail func(roomID string)) *Coalescer {
	return &Coalescer{
		store:    store,
		logger:   logger,
		timeout:  timeout,
		onFail:   onFail,
		inFlight: make(map[string]bool),
		pending:  make(map[string]document.Document),
	}
}

// Enqueue schedules doc to be saved for roomID. It never blocks: if a
// save for this room is already outstanding, doc replaces whatever was
// pending and is picked up once the current attempt settles.
func (c *Coalescer) Enqueue(roomID string, doc document.Document) {
	c.mu.Lock()
	if c.inFlight[roomID] {
		c.pending[roomID] = doc
		c.mu.Unlock()
		return
	}
	c.inFlight[roomID] = true
	c.mu.Unlock()

	go c.saveLoop(roomID, doc)
}

func (c *Coalescer) saveLoop(roomID string, doc document.Document) {
	for {
		c.saveWithRetry(roomID, doc)

		c.mu.Lock()
		next, ok := c.pending[roomID]
		if ok {
			delete(c.pending, roomID)
			c.mu.Unlock()
			doc = next
			continue
		}
		c.inFlight[roomID] = false
		c.mu.Unlock()
		return
	}
}

// saveWithRetry attempts the save, retrying transient failures on the
// exponential backoff schedule. A permanent failure (retries exhausted)
// is logged; the room's in-memory state is never rolled back.
func (c *Coalescer) saveWithRetry(roomID string, doc document.Document) {
	var lastErr error
	attempts := len(backoffSchedule) + 1
	for attempt := 0; attempt < attempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		err := c.store.Save(ctx, roomID, doc)
		cancel()
		if err == nil {
			return
		}
		lastErr = err
		if attempt < len(backoffSchedule) {
			c.logger.Warn("persistence save failed, retrying",
				zap.String("room_id", roomID),
				zap.Int("attempt", attempt+1),
				zap.Duration("backoff", backoffSchedule[attempt]),
				zap.Error(err),
			)
			time.Sleep(backoffSchedule[attempt])
		}
	}
	c.logger.Error("persistence save permanently failed",
		zap.String("room_id", roomID),
		zap.Error(lastErr),
	)
	if c.onFail != nil {
		c.onFail(roomID)
	}
}
