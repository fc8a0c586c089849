package network

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/heitortanoue/warehouse-swarm/pkg/aggregate"
	"github.com/heitortanoue/warehouse-swarm/pkg/protocol"
)

// ErrOversized is returned when an encoded export exceeds the size ceiling
var ErrOversized = errors.New("export exceeds message size limit")

// SizeObserver is told the encoded size of every export sent
type SizeObserver interface {
	ObserveExport(size int, oversized bool)
}

// receiver turns incoming frames into neighbor table updates. It is shared by
// the transports that carry protocol frames.
type receiver struct {
	self        aggregate.DeviceID
	incarnation uuid.UUID
	table       *NeighborTable
	window      *FrameWindow
	maxSize     int
	observer    SizeObserver

	round        uint64
	sent         uint64
	received     uint64
	duplicates   uint64
	decodeErrors uint64
	oversized    uint64
	mutex        sync.Mutex
}

func newReceiver(self aggregate.DeviceID, table *NeighborTable, senders, maxSize int) *receiver {
	return &receiver{
		self:        self,
		incarnation: uuid.New(),
		table:       table,
		window:      NewFrameWindow(senders),
		maxSize:     maxSize,
	}
}

// frame encodes msg, enforcing the size ceiling on its export payload
func (r *receiver) frame(msg aggregate.Message) ([]byte, error) {
	r.mutex.Lock()
	r.round++
	round := r.round
	r.mutex.Unlock()

	f, err := protocol.NewFrame(r.self, r.incarnation, round, msg.Position, msg.Export)
	if err != nil {
		return nil, err
	}
	over := r.maxSize > 0 && len(f.Payload) > r.maxSize
	if r.observer != nil {
		r.observer.ObserveExport(len(f.Payload), over)
	}
	if over {
		r.mutex.Lock()
		r.oversized++
		r.mutex.Unlock()
		return nil, fmt.Errorf("%w: %d > %d bytes", ErrOversized, len(f.Payload), r.maxSize)
	}

	data, err := protocol.EncodeFrame(f)
	if err != nil {
		return nil, err
	}
	r.mutex.Lock()
	r.sent++
	r.mutex.Unlock()
	return data, nil
}

// accept decodes a frame and stores it as the latest message of its sender.
// The device's own frames and frames not newer than the last one admitted from
// the same sender incarnation are ignored.
func (r *receiver) accept(data []byte, now time.Time) error {
	f, err := protocol.DecodeFrame(data)
	if err != nil {
		r.mutex.Lock()
		r.decodeErrors++
		r.mutex.Unlock()
		return err
	}
	if f.Sender == r.self {
		return nil
	}
	if !r.window.Admit(f.Sender, f.Incarnation, f.Round) {
		r.mutex.Lock()
		r.duplicates++
		r.mutex.Unlock()
		return nil
	}

	msg, err := f.Message(now)
	if err != nil {
		r.mutex.Lock()
		r.decodeErrors++
		r.mutex.Unlock()
		return err
	}
	r.table.Update(msg)

	r.mutex.Lock()
	r.received++
	r.mutex.Unlock()
	return nil
}

func (r *receiver) stats() map[string]interface{} {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return map[string]interface{}{
		"device_id":      r.self,
		"incarnation":    r.incarnation.String(),
		"frames_sent":    r.sent,
		"frames_recv":    r.received,
		"duplicates":     r.duplicates,
		"decode_errors":  r.decodeErrors,
		"oversized":      r.oversized,
		"max_message_sz": r.maxSize,
		"window":         r.window.GetStats(),
	}
}
