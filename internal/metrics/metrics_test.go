package metrics

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecorder_SnapshotReflectsCounters(t *testing.T) {
	r := New()
	r.ConnectionOpened()
	r.ConnectionOpened()
	r.ConnectionClosed()
	r.RoomCreated()
	r.RoomOp()
	r.Malformed()
	r.OverflowDrop()
	r.RateLimited()
	r.SaveFailure()
	r.LoadFailure()

	snap := r.Snapshot()
	assert.Equal(t, int64(1), snap.Connections)
	assert.Equal(t, int64(1), snap.Rooms)
	assert.Equal(t, int64(1), snap.RoomOps)
	assert.Equal(t, int64(1), snap.Malformed)
	assert.Equal(t, int64(1), snap.OverflowDrops)
	assert.Equal(t, int64(1), snap.RateLimited)
	assert.Equal(t, int64(1), snap.SaveFailures)
	assert.Equal(t, int64(1), snap.LoadFailures)
}

func TestRecorder_ConcurrentIncrementsAreConsistent(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	const n = 100
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			r.RoomOp()
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(n), r.Snapshot().RoomOps)
}
