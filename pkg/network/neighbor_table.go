package network

import (
	"sort"
	"sync"
	"time"

	"github.com/heitortanoue/warehouse-swarm/pkg/aggregate"
)

// NeighborTable keeps the latest message received from every neighbor.
// Older messages are replaced, never queued; a neighbor not heard from within
// the retain window is dropped.
type NeighborTable struct {
	self      aggregate.DeviceID
	neighbors map[aggregate.DeviceID]aggregate.Message
	retain    time.Duration
	mutex     sync.RWMutex
}

// NewNeighborTable creates an empty table for a device
func NewNeighborTable(self aggregate.DeviceID, retain time.Duration) *NeighborTable {
	return &NeighborTable{
		self:      self,
		neighbors: make(map[aggregate.DeviceID]aggregate.Message),
		retain:    retain,
	}
}

// Update records a message unless it comes from the device itself or is older
// than the one already held.
func (nt *NeighborTable) Update(msg aggregate.Message) {
	if msg.From == nt.self {
		return
	}
	nt.mutex.Lock()
	defer nt.mutex.Unlock()

	if cur, ok := nt.neighbors[msg.From]; ok && msg.Received.Before(cur.Received) {
		return
	}
	nt.neighbors[msg.From] = msg
}

// Remove forgets a neighbor
func (nt *NeighborTable) Remove(id aggregate.DeviceID) {
	nt.mutex.Lock()
	defer nt.mutex.Unlock()
	delete(nt.neighbors, id)
}

// Snapshot drops expired neighbors and returns the others sorted by id
func (nt *NeighborTable) Snapshot(now time.Time) []aggregate.Message {
	nt.mutex.Lock()
	defer nt.mutex.Unlock()

	msgs := make([]aggregate.Message, 0, len(nt.neighbors))
	for id, m := range nt.neighbors {
		if nt.retain > 0 && now.Sub(m.Received) >= nt.retain {
			delete(nt.neighbors, id)
			continue
		}
		msgs = append(msgs, m)
	}
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].From < msgs[j].From })
	return msgs
}

// Count returns the number of neighbors currently held
func (nt *NeighborTable) Count() int {
	nt.mutex.RLock()
	defer nt.mutex.RUnlock()
	return len(nt.neighbors)
}

// GetStats returns statistics of the table
func (nt *NeighborTable) GetStats() map[string]interface{} {
	nt.mutex.RLock()
	defer nt.mutex.RUnlock()

	ids := make([]aggregate.DeviceID, 0, len(nt.neighbors))
	for id := range nt.neighbors {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	return map[string]interface{}{
		"neighbors_active": len(nt.neighbors),
		"neighbors":        ids,
		"retain_seconds":   nt.retain.Seconds(),
	}
}
