package network

import (
	"container/list"
	"sync"

	"github.com/google/uuid"

	"github.com/heitortanoue/warehouse-swarm/pkg/aggregate"
)

// FrameWindow admits a frame only if it is newer than the last frame admitted
// from the same sender incarnation. Repeated and reordered frames are refused;
// a new incarnation (the sender restarted) starts over from any round.
// At most capacity senders are tracked, the least recently heard is forgotten.
type FrameWindow struct {
	capacity int
	senders  map[aggregate.DeviceID]*list.Element
	order    *list.List // most recently heard first

	restarts uint64
	mutex    sync.Mutex
}

type senderMark struct {
	id          aggregate.DeviceID
	incarnation uuid.UUID
	round       uint64
}

// NewFrameWindow creates a window tracking up to capacity senders
func NewFrameWindow(capacity int) *FrameWindow {
	if capacity <= 0 {
		capacity = 1000
	}
	return &FrameWindow{
		capacity: capacity,
		senders:  make(map[aggregate.DeviceID]*list.Element),
		order:    list.New(),
	}
}

// Admit reports whether the frame is fresh and records it if so
func (w *FrameWindow) Admit(sender aggregate.DeviceID, incarnation uuid.UUID, round uint64) bool {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if el, ok := w.senders[sender]; ok {
		m := el.Value.(*senderMark)
		w.order.MoveToFront(el)
		if m.incarnation == incarnation {
			if round <= m.round {
				return false
			}
			m.round = round
			return true
		}
		w.restarts++
		m.incarnation, m.round = incarnation, round
		return true
	}

	w.senders[sender] = w.order.PushFront(&senderMark{id: sender, incarnation: incarnation, round: round})
	if w.order.Len() > w.capacity {
		oldest := w.order.Back()
		w.order.Remove(oldest)
		delete(w.senders, oldest.Value.(*senderMark).id)
	}
	return true
}

// Forget drops what is known of a sender
func (w *FrameWindow) Forget(sender aggregate.DeviceID) {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	if el, ok := w.senders[sender]; ok {
		w.order.Remove(el)
		delete(w.senders, sender)
	}
}

// GetStats returns statistics of the window
func (w *FrameWindow) GetStats() map[string]interface{} {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return map[string]interface{}{
		"senders":  len(w.senders),
		"capacity": w.capacity,
		"restarts": w.restarts,
	}
}
