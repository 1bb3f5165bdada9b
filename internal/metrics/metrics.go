// Package metrics holds the process-wide counters surfaced by the
// health endpoint and consulted by tests. Counters are plain atomics
// rather than a Prometheus registry: nothing in this service exposes a
// scrape endpoint (see DESIGN.md for why prometheus/client_golang was
// left on the shelf), only the /health JSON snapshot.
package metrics

import "sync/atomic"

// Recorder is the single set of counters shared by the registry, every
// Room, the router, the sessions and the HTTP layer; save failures
// reach it through the persistence coalescer's onFail hook.
type Recorder struct {
	connections   atomic.Int64
	rooms         atomic.Int64
	roomOps       atomic.Int64
	malformed     atomic.Int64
	overflowDrops atomic.Int64
	rateLimited   atomic.Int64
	saveFailures  atomic.Int64
	loadFailures  atomic.Int64
}

// New returns a zeroed Recorder.
func New() *Recorder {
	return &Recorder{}
}

func (r *Recorder) ConnectionOpened() { r.connections.Add(1) }
func (r *Recorder) ConnectionClosed() { r.connections.Add(-1) }
func (r *Recorder) RoomCreated()      { r.rooms.Add(1) }
func (r *Recorder) RoomDestroyed()    { r.rooms.Add(-1) }
func (r *Recorder) RoomOp()           { r.roomOps.Add(1) }
func (r *Recorder) Malformed()        { r.malformed.Add(1) }
func (r *Recorder) OverflowDrop()     { r.overflowDrops.Add(1) }
func (r *Recorder) RateLimited()      { r.rateLimited.Add(1) }
func (r *Recorder) SaveFailure()      { r.saveFailures.Add(1) }
func (r *Recorder) LoadFailure()      { r.loadFailures.Add(1) }

// Snapshot is a point-in-time read of every counter, used by the health
// endpoint and by tests asserting on observable side effects.
type Snapshot struct {
	Connections   int64 `json:"connections"`
	Rooms         int64 `json:"rooms"`
	RoomOps       int64 `json:"room_ops"`
	Malformed     int64 `json:"malformed_messages"`
	OverflowDrops int64 `json:"overflow_disconnects"`
	RateLimited   int64 `json:"rate_limited_messages"`
	SaveFailures  int64 `json:"save_failures"`
	LoadFailures  int64 `json:"load_failures"`
}

func (r *Recorder) Snapshot() Snapshot {
	return Snapshot{
		Connections:   r.connections.Load(),
		Rooms:         r.rooms.Load(),
		RoomOps:       r.roomOps.Load(),
		Malformed:     r.malformed.Load(),
		OverflowDrops: r.overflowDrops.Load(),
		RateLimited:   r.rateLimited.Load(),
		SaveFailures:  r.saveFailures.Load(),
		LoadFailures:  r.loadFailures.Load(),
	}
}
