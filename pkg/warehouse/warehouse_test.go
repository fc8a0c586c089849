package warehouse_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heitortanoue/warehouse-swarm/pkg/aggregate"
	"github.com/heitortanoue/warehouse-swarm/pkg/aggregate/aggtest"
	"github.com/heitortanoue/warehouse-swarm/pkg/logset"
	"github.com/heitortanoue/warehouse-swarm/pkg/state"
	"github.com/heitortanoue/warehouse-swarm/pkg/warehouse"
	"github.com/heitortanoue/warehouse-swarm/pkg/wire"
)

type world struct {
	net    *aggtest.Net
	states map[aggregate.DeviceID]*state.DeviceState
	logs   map[aggregate.DeviceID][]logset.Entry
	params warehouse.Params
}

func newWorld() *world {
	net := aggtest.New()
	net.Codec = func(exp aggregate.Export) (aggregate.Export, bool) {
		out, err := wire.Roundtrip(exp)
		return out, err == nil
	}
	return &world{
		net:    net,
		states: map[aggregate.DeviceID]*state.DeviceState{},
		logs:   map[aggregate.DeviceID][]logset.Entry{},
		params: warehouse.DefaultParams(),
	}
}

func (w *world) add(id aggregate.DeviceID, typ state.DeviceType, pos aggregate.Vec3) *state.DeviceState {
	w.net.Add(id, pos)
	for other := range w.states {
		w.net.Link(id, other)
	}
	w.states[id] = state.NewDeviceState(id, typ, 0)
	return w.states[id]
}

func (w *world) countLogs(id aggregate.DeviceID, typ uint8) int {
	n := 0
	for _, e := range w.logs[id] {
		if e.Type == typ {
			n++
		}
	}
	return n
}

func (w *world) handoff(ctx *aggregate.Context) {
	logs := warehouse.LoadGoodsOnPallet(ctx, aggregate.Root(), w.states[ctx.Self()], w.params, 0)
	w.logs[ctx.Self()] = append(w.logs[ctx.Self()], logs...)
}

func (w *world) collision(ctx *aggregate.Context) {
	_, logs := warehouse.CollisionDetection(ctx, aggregate.Root(), w.states[ctx.Self()].Snapshot(), w.params, 0)
	w.logs[ctx.Self()] = append(w.logs[ctx.Self()], logs...)
}

func TestHandoffExactlyOnce(t *testing.T) {
	w := newWorld()
	pallet := w.add(1, state.Pallet, aggregate.Vec3{0, 0, 0})
	wearable := w.add(2, state.Wearable, aggregate.Vec3{50, 0, 0})

	w.net.Run(3, w.handoff)
	wearable.SetIntent(7)

	changes := 0
	last := pallet.Snapshot().Loaded
	for i := 0; i < 30; i++ {
		w.net.Step(w.handoff)
		if cur := pallet.Snapshot().Loaded; cur != last {
			changes++
			last = cur
		}
	}

	assert.Equal(t, 1, changes)
	assert.Equal(t, state.Goods(7), pallet.Snapshot().Loaded)
	assert.Equal(t, state.NoGoods, wearable.Snapshot().Loading)
	assert.Equal(t, 1, w.countLogs(1, warehouse.PalletLoaded))
	assert.Equal(t, 1, w.countLogs(2, warehouse.HandoffDone))

	wearable.SetIntent(state.UnloadGoods)
	w.net.Run(30, w.handoff)
	assert.Equal(t, state.NoGoods, pallet.Snapshot().Loaded)
	assert.Equal(t, 1, w.countLogs(1, warehouse.PalletUnloaded))
	assert.Equal(t, 2, w.countLogs(2, warehouse.HandoffDone))
}

func TestHandoffRepeatedGoodsIsNewIntent(t *testing.T) {
	w := newWorld()
	pallet := w.add(1, state.Pallet, aggregate.Vec3{0, 0, 0})
	wearable := w.add(2, state.Wearable, aggregate.Vec3{50, 0, 0})
	w.net.Run(3, w.handoff)

	wearable.SetIntent(4)
	w.net.Run(10, w.handoff)
	wearable.SetIntent(4)
	w.net.Run(10, w.handoff)

	assert.Equal(t, state.Goods(4), pallet.Snapshot().Loaded)
	assert.Equal(t, 2, w.countLogs(1, warehouse.PalletLoaded))
	assert.Equal(t, 2, w.countLogs(2, warehouse.HandoffDone))
}

func TestHandoffTwoWearablesSamePallet(t *testing.T) {
	w := newWorld()
	pallet := w.add(1, state.Pallet, aggregate.Vec3{0, 0, 0})
	first := w.add(2, state.Wearable, aggregate.Vec3{50, 0, 0})
	second := w.add(3, state.Wearable, aggregate.Vec3{-50, 0, 0})
	w.net.Run(3, w.handoff)

	first.SetIntent(7)
	second.SetIntent(9)
	w.net.Run(30, w.handoff)

	assert.Equal(t, state.Goods(9), pallet.Snapshot().Loaded, "the smaller id is served first")
	assert.Equal(t, 2, w.countLogs(1, warehouse.PalletLoaded))
	assert.Equal(t, 1, w.countLogs(2, warehouse.HandoffDone))
	assert.Equal(t, 1, w.countLogs(3, warehouse.HandoffDone))
}

func TestHandoffNeedsProximity(t *testing.T) {
	w := newWorld()
	pallet := w.add(1, state.Pallet, aggregate.Vec3{0, 0, 0})
	wearable := w.add(2, state.Wearable, aggregate.Vec3{500, 0, 0})
	w.net.Run(3, w.handoff)

	wearable.SetIntent(7)
	w.net.Run(10, w.handoff)
	assert.Equal(t, state.NoGoods, pallet.Snapshot().Loaded)
	assert.Equal(t, state.Goods(7), wearable.Snapshot().Loading)

	w.net.Move(2, aggregate.Vec3{60, 0, 0})
	w.net.Run(10, w.handoff)
	assert.Equal(t, state.Goods(7), pallet.Snapshot().Loaded)
}

func TestNearestPallet(t *testing.T) {
	w := newWorld()
	w.add(1, state.Pallet, aggregate.Vec3{0, 0, 0})
	w.add(2, state.Pallet, aggregate.Vec3{100, 0, 0})
	w.add(3, state.Wearable, aggregate.Vec3{70, 0, 0})

	got := map[aggregate.DeviceID]aggregate.DeviceID{}
	w.net.Run(4, func(ctx *aggregate.Context) {
		id, _, ok := warehouse.NearestPallet(ctx, aggregate.Root(), w.states[ctx.Self()].Snapshot().Type == state.Pallet)
		require.True(t, ok || ctx.Round() == 0)
		got[ctx.Self()] = id
	})
	assert.Equal(t, aggregate.DeviceID(1), got[1])
	assert.Equal(t, aggregate.DeviceID(2), got[2])
	assert.Equal(t, aggregate.DeviceID(2), got[3])
}

func TestCollisionRiskEdges(t *testing.T) {
	w := newWorld()
	w.add(1, state.Wearable, aggregate.Vec3{0, 0, 0})
	w.add(2, state.Wearable, aggregate.Vec3{1500, 0, 0})

	w.net.Run(5, w.collision)
	assert.Zero(t, w.countLogs(1, warehouse.RiskStart))

	// approach at 500 units per second for three rounds
	for _, x := range []float64{1000, 500, 200} {
		w.net.Move(2, aggregate.Vec3{x, 0, 0})
		w.net.Step(w.collision)
	}
	// stand still, then move away
	w.net.Run(5, w.collision)
	for _, x := range []float64{600, 1000, 1400} {
		w.net.Move(2, aggregate.Vec3{x, 0, 0})
		w.net.Step(w.collision)
	}
	w.net.Run(5, w.collision)

	for _, id := range []aggregate.DeviceID{1, 2} {
		assert.Equal(t, 1, w.countLogs(id, warehouse.RiskStart), "device %d", id)
		assert.Equal(t, 1, w.countLogs(id, warehouse.RiskEnd), "device %d", id)
	}
	for _, e := range w.logs[1] {
		assert.Equal(t, uint32(2), e.Content)
	}
}

func TestCollisionSlowApproachIsSafe(t *testing.T) {
	w := newWorld()
	w.add(1, state.Wearable, aggregate.Vec3{0, 0, 0})
	w.add(2, state.Wearable, aggregate.Vec3{1500, 0, 0})
	w.net.Run(5, w.collision)

	for x := 1400.0; x > 300; x -= 100 {
		w.net.Move(2, aggregate.Vec3{x, 0, 0})
		w.net.Step(w.collision)
	}
	assert.Empty(t, w.logs[1])
	assert.Empty(t, w.logs[2])
}

func TestCollisionIgnoresPallets(t *testing.T) {
	w := newWorld()
	w.add(1, state.Wearable, aggregate.Vec3{0, 0, 0})
	w.add(2, state.Pallet, aggregate.Vec3{1500, 0, 0})
	w.net.Run(3, w.collision)
	for _, x := range []float64{1000, 500} {
		w.net.Move(2, aggregate.Vec3{x, 0, 0})
		w.net.Step(w.collision)
	}
	assert.Empty(t, w.logs[1])
}

func TestHandoffLoggedOnBothSides(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	defer func() { log.Logger = prev }()

	w := newWorld()
	w.add(1, state.Pallet, aggregate.Vec3{0, 0, 0})
	wearable := w.add(2, state.Wearable, aggregate.Vec3{50, 0, 0})
	w.net.Run(3, w.handoff)
	wearable.SetIntent(7)
	w.net.Run(10, w.handoff)

	var stages []string
	dec := json.NewDecoder(&buf)
	for dec.More() {
		var m map[string]interface{}
		require.NoError(t, dec.Decode(&m))
		if m["event"] != "HANDOFF" {
			continue
		}
		stages = append(stages, fmt.Sprintf("%v:%v:%v", m["device"], m["stage"], m["peer"]))
	}
	assert.Equal(t, []string{"1:applied:2", "2:acknowledged:1"}, stages)
}
