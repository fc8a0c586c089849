package network

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heitortanoue/warehouse-swarm/pkg/aggregate"
)

type sizeRecorder struct {
	sizes     []int
	oversized int
}

func (r *sizeRecorder) ObserveExport(size int, oversized bool) {
	r.sizes = append(r.sizes, size)
	if oversized {
		r.oversized++
	}
}

func fixedAt(v aggregate.Vec3) func() aggregate.Vec3 {
	return func() aggregate.Vec3 { return v }
}

func TestConnectors(t *testing.T) {
	f := Fixed{Range: 100}
	assert.Equal(t, 1.0, f.Probability(99))
	assert.Equal(t, 0.0, f.Probability(100))

	r := Radial{Range: 100, Half: 0.8}
	assert.Equal(t, 1.0, r.Probability(60))
	assert.InDelta(t, 0.5, r.Probability(80), 1e-9)
	assert.Equal(t, 0.0, r.Probability(100))
	assert.Greater(t, r.Probability(70), r.Probability(90))
}

func TestMediumDeliversInRange(t *testing.T) {
	m := NewMedium(MediumConfig{Connector: Fixed{Range: 10}})
	tables := map[aggregate.DeviceID]*NeighborTable{}
	positions := map[aggregate.DeviceID]aggregate.Vec3{1: {0, 0, 0}, 2: {5, 0, 0}, 3: {20, 0, 0}}
	endpoints := map[aggregate.DeviceID]*Endpoint{}
	for id, pos := range positions {
		tables[id] = NewNeighborTable(id, time.Minute)
		endpoints[id] = m.Attach(id, fixedAt(pos), tables[id])
	}

	now := time.Unix(10, 0)
	exp := aggregate.Export{aggregate.Root().At(1).Trace(): 4.5}
	err := endpoints[1].Broadcast(aggregate.Message{From: 1, Position: positions[1], Export: exp, Received: now})
	require.NoError(t, err)

	got := tables[2].Snapshot(now)
	require.Len(t, got, 1)
	assert.Equal(t, aggregate.DeviceID(1), got[0].From)
	assert.Equal(t, exp, got[0].Export)
	assert.Empty(t, tables[3].Snapshot(now))
	assert.Empty(t, tables[1].Snapshot(now))

	m.Detach(2)
	require.NoError(t, endpoints[1].Broadcast(aggregate.Message{From: 1, Position: positions[1], Export: exp, Received: now.Add(time.Second)}))
	assert.Equal(t, now, tables[2].Snapshot(now)[0].Received)
	assert.Equal(t, uint64(1), m.GetStats()["delivered"])
}

func TestMediumSizeCeiling(t *testing.T) {
	rec := &sizeRecorder{}
	m := NewMedium(MediumConfig{Connector: Fixed{Range: 10}, MaxSize: 8})
	m.SetObserver(rec)
	table := NewNeighborTable(2, time.Minute)
	e := m.Attach(1, fixedAt(aggregate.Vec3{}), NewNeighborTable(1, time.Minute))
	m.Attach(2, fixedAt(aggregate.Vec3{}), table)

	big := aggregate.Export{}
	for i := 0; i < 4; i++ {
		big[aggregate.Root().At(aggregate.Site(i)).Trace()] = float64(i)
	}
	err := e.Broadcast(aggregate.Message{From: 1, Export: big, Received: time.Unix(1, 0)})
	assert.True(t, errors.Is(err, ErrOversized))
	assert.Empty(t, table.Snapshot(time.Unix(1, 0)))
	assert.Equal(t, 1, rec.oversized)
	require.Len(t, rec.sizes, 1)
	assert.Greater(t, rec.sizes[0], 8)
}

func TestMediumRadialLossIsSeeded(t *testing.T) {
	run := func() uint64 {
		m := NewMedium(MediumConfig{Connector: Radial{Range: 100, Half: 0.8}, Seed: 7})
		e := m.Attach(1, fixedAt(aggregate.Vec3{}), NewNeighborTable(1, time.Minute))
		m.Attach(2, fixedAt(aggregate.Vec3{85, 0, 0}), NewNeighborTable(2, time.Minute))
		for i := 0; i < 200; i++ {
			_ = e.Broadcast(aggregate.Message{From: 1, Export: aggregate.Export{}, Received: time.Unix(int64(i), 0)})
		}
		return m.GetStats()["lost"].(uint64)
	}
	lost := run()
	assert.Equal(t, lost, run())
	assert.Greater(t, lost, uint64(50))
	assert.Less(t, lost, uint64(200))
}

func TestMediumSharesDecodedExport(t *testing.T) {
	m := NewMedium(MediumConfig{Connector: Fixed{Range: 10}})
	tables := map[aggregate.DeviceID]*NeighborTable{}
	var sender *Endpoint
	for _, id := range []aggregate.DeviceID{1, 2, 3} {
		tables[id] = NewNeighborTable(id, time.Minute)
		e := m.Attach(id, fixedAt(aggregate.Vec3{float64(id), 0, 0}), tables[id])
		if id == 1 {
			sender = e
		}
	}

	now := time.Unix(10, 0)
	exp := aggregate.Export{aggregate.Root().At(1).Trace(): "x"}
	require.NoError(t, sender.Broadcast(aggregate.Message{From: 1, Export: exp, Received: now}))

	a, b := tables[2].Snapshot(now), tables[3].Snapshot(now)
	require.Len(t, a, 1)
	require.Len(t, b, 1)
	assert.Equal(t, exp, a[0].Export)
	assert.Equal(t, reflect.ValueOf(a[0].Export).Pointer(), reflect.ValueOf(b[0].Export).Pointer(), "one decode per broadcast")
	assert.Equal(t, uint64(2), m.GetStats()["delivered"])
}
