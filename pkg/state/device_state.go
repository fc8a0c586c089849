package state

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/heitortanoue/warehouse-swarm/pkg/aggregate"
	"github.com/heitortanoue/warehouse-swarm/pkg/logset"
)

// DeviceType distinguishes pallets from the wearables carried by operators
type DeviceType uint8

const (
	Pallet DeviceType = iota
	Wearable
)

func (t DeviceType) String() string {
	if t == Wearable {
		return "wearable"
	}
	return "pallet"
}

// Goods is a goods type code (0..99) or one of the sentinels below
type Goods uint8

const (
	// NoGoods marks an empty pallet or a wearable with nothing to do
	NoGoods Goods = 255
	// UnloadGoods is the intent of emptying a pallet
	UnloadGoods Goods = 254
	// Undefined is the payload of searches that are not about a goods type
	Undefined Goods = 253
	// MaxGoods bounds the goods type codes
	MaxGoods Goods = 100
)

func (g Goods) String() string {
	switch g {
	case NoGoods:
		return "none"
	case UnloadGoods:
		return "unload"
	case Undefined:
		return "undefined"
	}
	return fmt.Sprintf("goods-%d", uint8(g))
}

// Snapshot is a copy of the domain state of a device
type Snapshot struct {
	ID   aggregate.DeviceID
	Type DeviceType

	// Loaded is the content of a pallet
	Loaded Goods
	// Handled is set while a wearable is moving the pallet
	Handled bool
	// Follow is the wearable a pallet is attached to, zero when none
	Follow aggregate.DeviceID

	// Loading is the hand-off intent of a wearable: goods to put on the nearest
	// pallet, UnloadGoods to empty it, NoGoods for none
	Loading Goods
	// LoadingSeq identifies the current intent
	LoadingSeq uint16
	// Query is the goods type a wearable is looking for
	Query Goods
	// Placing is set while a wearable looks for a place to put a pallet
	Placing bool

	LED       bool
	Collected []logset.Entry
}

// DeviceState holds the domain state of a device.
// The coordination program updates it once per round; simulation and status
// endpoints read it concurrently.
type DeviceState struct {
	s Snapshot

	maxCollected int

	mutex sync.RWMutex
}

// NewDeviceState creates the state of a device with no goods and no intent.
// maxCollected bounds the retained collected logs; zero means unbounded.
func NewDeviceState(id aggregate.DeviceID, typ DeviceType, maxCollected int) *DeviceState {
	return &DeviceState{
		s: Snapshot{
			ID:      id,
			Type:    typ,
			Loaded:  NoGoods,
			Loading: NoGoods,
			Query:   NoGoods,
		},
		maxCollected: maxCollected,
	}
}

// ID returns the device id
func (ds *DeviceState) ID() aggregate.DeviceID {
	return ds.s.ID
}

// Snapshot returns a copy of the state
func (ds *DeviceState) Snapshot() Snapshot {
	ds.mutex.RLock()
	defer ds.mutex.RUnlock()

	s := ds.s
	s.Collected = append([]logset.Entry(nil), ds.s.Collected...)
	return s
}

// Update runs fn with exclusive access to the state.
// It is also the critical section used when a simulated device changes the
// state of another one.
func (ds *DeviceState) Update(fn func(s *Snapshot)) {
	ds.mutex.Lock()
	defer ds.mutex.Unlock()

	id, typ := ds.s.ID, ds.s.Type
	fn(&ds.s)
	ds.s.ID, ds.s.Type = id, typ
}

// SetIntent records a new hand-off intent and returns its sequence number
func (ds *DeviceState) SetIntent(g Goods) uint16 {
	ds.mutex.Lock()
	defer ds.mutex.Unlock()

	ds.s.Loading = g
	ds.s.LoadingSeq++
	log.Debug().
		Str("component", "state").
		Uint32("device", uint32(ds.s.ID)).
		Stringer("intent", g).
		Uint16("seq", ds.s.LoadingSeq).
		Msg("intent set")
	return ds.s.LoadingSeq
}

// AddCollected appends logs delivered to this device
func (ds *DeviceState) AddCollected(logs ...logset.Entry) {
	if len(logs) == 0 {
		return
	}
	ds.mutex.Lock()
	defer ds.mutex.Unlock()

	ds.s.Collected = append(ds.s.Collected, logs...)
	if ds.maxCollected > 0 && len(ds.s.Collected) > ds.maxCollected {
		drop := len(ds.s.Collected) - ds.maxCollected
		ds.s.Collected = append(ds.s.Collected[:0], ds.s.Collected[drop:]...)
	}
}

// GetStats returns statistics about the state
func (ds *DeviceState) GetStats() map[string]interface{} {
	ds.mutex.RLock()
	defer ds.mutex.RUnlock()

	return map[string]interface{}{
		"device_id":   ds.s.ID,
		"type":        ds.s.Type.String(),
		"loaded":      ds.s.Loaded.String(),
		"handled":     ds.s.Handled,
		"loading":     ds.s.Loading.String(),
		"loading_seq": ds.s.LoadingSeq,
		"query":       ds.s.Query.String(),
		"placing":     ds.s.Placing,
		"collected":   len(ds.s.Collected),
	}
}
