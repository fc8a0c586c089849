package network

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"

	"github.com/heitortanoue/warehouse-swarm/pkg/aggregate"
	"github.com/heitortanoue/warehouse-swarm/pkg/wire"
)

// Connector gives the probability that a message crosses a distance
type Connector interface {
	Probability(dist float64) float64
}

// Fixed connects every pair closer than Range
type Fixed struct {
	Range float64
}

func (c Fixed) Probability(dist float64) float64 {
	if dist < c.Range {
		return 1
	}
	return 0
}

// Radial loses messages increasingly towards the edge of Range: delivery is
// certain up to the inner radius, drops linearly and is 50% at Half*Range.
type Radial struct {
	Range float64
	Half  float64 // fraction of Range, in (0.5, 1)
}

func (c Radial) Probability(dist float64) float64 {
	if dist >= c.Range {
		return 0
	}
	inner := c.Range * (2*c.Half - 1)
	if dist <= inner {
		return 1
	}
	return (c.Range - dist) / (c.Range - inner)
}

// MediumConfig configures a simulated broadcast medium
type MediumConfig struct {
	Connector Connector
	MaxSize   int // 0 disables the ceiling
	Seed      int64
}

type station struct {
	position func() aggregate.Vec3
	table    *NeighborTable
}

// Medium is an in-process radio shared by simulated devices. A broadcast is
// encoded once, checked against the size ceiling and decoded again for every
// receiver the connector lets it reach.
type Medium struct {
	config   MediumConfig
	rng      *rand.Rand
	stations map[aggregate.DeviceID]*station
	observer SizeObserver

	sent      uint64
	delivered uint64
	lost      uint64
	oversized uint64
	bytes     uint64
	mutex     sync.Mutex
}

// NewMedium creates an empty medium
func NewMedium(config MediumConfig) *Medium {
	if config.Connector == nil {
		config.Connector = Fixed{Range: 1}
	}
	return &Medium{
		config:   config,
		rng:      rand.New(rand.NewSource(config.Seed)),
		stations: make(map[aggregate.DeviceID]*station),
	}
}

// SetObserver registers the observer of export sizes
func (m *Medium) SetObserver(o SizeObserver) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.observer = o
}

// Attach adds a device that receives into table
func (m *Medium) Attach(id aggregate.DeviceID, position func() aggregate.Vec3, table *NeighborTable) *Endpoint {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.stations[id] = &station{position: position, table: table}
	return &Endpoint{medium: m, id: id}
}

// Detach removes a device; messages already delivered to others stay there
// until they expire.
func (m *Medium) Detach(id aggregate.DeviceID) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.stations, id)
}

func (m *Medium) broadcast(from aggregate.DeviceID, msg aggregate.Message) error {
	data, err := wire.EncodeExport(msg.Export)
	if err != nil {
		return err
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	over := m.config.MaxSize > 0 && len(data) > m.config.MaxSize
	if m.observer != nil {
		m.observer.ObserveExport(len(data), over)
	}
	if over {
		m.oversized++
		return fmt.Errorf("%w: %d > %d bytes", ErrOversized, len(data), m.config.MaxSize)
	}
	m.sent++
	m.bytes += uint64(len(data))

	// receivers share the decoded export, it is never mutated
	exp, _, err := wire.DecodeExport(data)
	if err != nil {
		return fmt.Errorf("decode own export: %w", err)
	}

	ids := make([]aggregate.DeviceID, 0, len(m.stations))
	for id := range m.stations {
		if id != from {
			ids = append(ids, id)
		}
	}
	// fixed order keeps runs reproducible for a given seed
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		st := m.stations[id]
		p := m.config.Connector.Probability(msg.Position.Dist(st.position()))
		if p <= 0 {
			continue
		}
		if p < 1 && m.rng.Float64() >= p {
			m.lost++
			continue
		}
		st.table.Update(aggregate.Message{
			From:     from,
			Position: msg.Position,
			Export:   exp,
			Received: msg.Received,
		})
		m.delivered++
	}
	return nil
}

// GetStats returns statistics of the medium
func (m *Medium) GetStats() map[string]interface{} {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return map[string]interface{}{
		"stations":   len(m.stations),
		"sent":       m.sent,
		"delivered":  m.delivered,
		"lost":       m.lost,
		"oversized":  m.oversized,
		"bytes_sent": m.bytes,
		"max_size":   m.config.MaxSize,
	}
}

// Endpoint is the radio of one device attached to a medium
type Endpoint struct {
	medium *Medium
	id     aggregate.DeviceID
}

// Broadcast sends msg to every attached device in reach
func (e *Endpoint) Broadcast(msg aggregate.Message) error {
	return e.medium.broadcast(e.id, msg)
}
