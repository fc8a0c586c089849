// Package sim runs a warehouse swarm in simulated time: devices execute
// rounds on their own jittered schedules, exchange exports through a shared
// radio medium and move around the aisles following a random workload of
// insertions and retrievals.
package sim

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/heitortanoue/warehouse-swarm/pkg/aggregate"
	"github.com/heitortanoue/warehouse-swarm/pkg/network"
	"github.com/heitortanoue/warehouse-swarm/pkg/protocol"
	"github.com/heitortanoue/warehouse-swarm/pkg/state"
	"github.com/heitortanoue/warehouse-swarm/pkg/telemetry"
	"github.com/heitortanoue/warehouse-swarm/pkg/warehouse"
)

// Config describes a simulated warehouse
type Config struct {
	Seed int64

	Pallets      int // stored in the aisles, loaded with random goods
	EmptyPallets int // waiting in the loading zone
	Wearables    int

	Schedule Schedule
	Retain   time.Duration

	CommRange  float64
	Radial     bool    // lossy links toward the edge of the range
	RadialHalf float64 // fraction of the range with 50% loss
	MaxSize    int     // export size ceiling in bytes, 0 for none

	// Workload drives wearables through random insertions and retrievals
	Workload     bool
	ActionChance float64 // per round, for an idle wearable

	MaxCollected int
	Params       warehouse.Params
}

// DefaultConfig returns the configuration of the reference scenario
func DefaultConfig() Config {
	return Config{
		Seed:         1,
		Pallets:      100,
		EmptyPallets: 10,
		Wearables:    10,
		Schedule:     Schedule{Period: time.Second, Shape: 100},
		Retain:       3 * time.Second,
		CommRange:    3000,
		RadialHalf:   0.8,
		Workload:     true,
		ActionChance: 0.05,
		MaxCollected: 1000,
		Params:       warehouse.DefaultParams(),
	}
}

type device struct {
	id    aggregate.DeviceID
	st    *state.DeviceState
	body  *Body
	table *network.NeighborTable
	loop  *protocol.RoundLoop
	last  warehouse.Result

	// workload
	op        Op
	good      state.Goods
	target    aggregate.DeviceID
	targetPos *aggregate.Vec3
	followPos *aggregate.Vec3 // where a released pallet settles
}

// Network is a simulated warehouse swarm
type Network struct {
	config Config
	runID  uuid.UUID
	rng    *rand.Rand

	start time.Time
	now   time.Time
	queue eventQueue
	seq   uint64

	medium  *network.Medium
	metrics *telemetry.Metrics
	tracker *telemetry.DeliveryTracker

	devices map[aggregate.DeviceID]*device
	nextID  aggregate.DeviceID

	goods [state.MaxGoods]int // pallets stored per goods type
	slots map[slot]bool

	// OnResult, when set, observes the result of every round
	OnResult func(id aggregate.DeviceID, res warehouse.Result)

	mutex sync.RWMutex
}

// New creates a simulated warehouse populated as described by config.
// Metrics are registered on reg when not nil.
func New(config Config, reg prometheus.Registerer) *Network {
	if config.Schedule.Period <= 0 {
		config.Schedule.Period = time.Second
	}
	var conn network.Connector = network.Fixed{Range: config.CommRange}
	if config.Radial {
		conn = network.Radial{Range: config.CommRange, Half: config.RadialHalf}
	}

	metrics := telemetry.NewMetrics(reg)
	n := &Network{
		config:  config,
		runID:   uuid.New(),
		rng:     rand.New(rand.NewSource(config.Seed)),
		start:   time.Unix(0, 0),
		medium:  network.NewMedium(network.MediumConfig{Connector: conn, MaxSize: config.MaxSize, Seed: config.Seed}),
		metrics: metrics,
		tracker: telemetry.NewDeliveryTracker(metrics, 0, config.Params.Quantum, warehouse.LogTypeName),
		devices: make(map[aggregate.DeviceID]*device),
		nextID:  1,
		slots:   make(map[slot]bool),
	}
	n.now = n.start
	n.medium.SetObserver(metrics)

	for i := 0; i < config.Pallets; i++ {
		n.addStoredPallet()
	}
	for i := 0; i < config.EmptyPallets; i++ {
		n.AddDevice(state.Pallet, loadingZoneSpot(n.rng))
	}
	for i := 0; i < config.Wearables; i++ {
		n.AddDevice(state.Wearable, loadingZonePoint(n.rng))
	}

	log.Info().
		Str("component", "sim").
		Str("run", n.runID.String()).
		Int("devices", len(n.devices)).
		Msg("warehouse ready")
	return n
}

func (n *Network) addStoredPallet() {
	if len(n.slots) >= aisleRows*aisleColumns*slotLevels {
		return
	}
	s := randomSlot(n.rng)
	for n.slots[s] {
		s = randomSlot(n.rng)
	}
	n.slots[s] = true

	g := randomGood(n.rng)
	n.goods[g]++
	st := n.AddDevice(state.Pallet, SlotPosition(s.row, s.col, s.level))
	st.Update(func(cur *state.Snapshot) { cur.Loaded = g })
}

// AddDevice creates a device at pos and schedules its first round
func (n *Network) AddDevice(typ state.DeviceType, pos aggregate.Vec3) *state.DeviceState {
	n.mutex.Lock()
	defer n.mutex.Unlock()

	id := n.nextID
	n.nextID++

	d := &device{
		id:    id,
		st:    state.NewDeviceState(id, typ, n.config.MaxCollected),
		body:  NewBody(pos, n.now),
		table: network.NewNeighborTable(id, n.config.Retain),
	}
	position := func() aggregate.Vec3 { return d.body.Position(n.now) }
	radio := n.medium.Attach(id, position, d.table)
	program := warehouse.Program(d.st, n.config.Params, func(_ aggregate.DeviceID, res warehouse.Result) {
		d.last = res
	})
	d.loop = protocol.NewRoundLoop(aggregate.NewDevice(id), program, radio, d.table, position,
		protocol.LoopConfig{Period: n.config.Schedule.Period})

	n.devices[id] = d
	n.schedule(id, n.now.Add(n.config.Schedule.Start(n.rng)))
	return d.st
}

// Remove takes a device out of the warehouse
func (n *Network) Remove(id aggregate.DeviceID) {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	delete(n.devices, id)
	n.medium.Detach(id)
}

func (n *Network) schedule(id aggregate.DeviceID, at time.Time) {
	n.seq++
	n.queue.schedule(event{at: at, id: id, seq: n.seq})
}

// Step runs the next round of the simulation and reports whether one was run
func (n *Network) Step() bool {
	n.mutex.Lock()
	defer n.mutex.Unlock()

	for {
		if n.queue.Len() == 0 {
			return false
		}
		ev := n.queue.next()
		d, ok := n.devices[ev.id]
		if !ok {
			continue
		}
		n.now = ev.at
		n.round(d)
		n.schedule(d.id, n.now.Add(n.config.Schedule.Next(n.rng)))
		return true
	}
}

// Run executes every round scheduled up to the given simulated time
func (n *Network) Run(until time.Duration) int {
	end := n.start.Add(until)
	rounds := 0
	for {
		n.mutex.RLock()
		ev, ok := n.queue.peek()
		n.mutex.RUnlock()
		if !ok || ev.at.After(end) {
			break
		}
		if n.Step() {
			rounds++
		}
	}
	return rounds
}

func (n *Network) round(d *device) {
	s := d.st.Snapshot()
	if n.config.Workload && s.Type == state.Wearable {
		n.beforeRound(d)
	}

	d.loop.RunOnce(n.now)
	res := d.last

	n.metrics.ObserveRound()
	n.tracker.Created(res.NewLogs)
	if s.Type == state.Wearable {
		n.tracker.Delivered(res.Collected, res.Clock)
	}
	if n.config.Workload {
		n.afterRound(d, res)
	}
	if n.OnResult != nil {
		n.OnResult(d.id, res)
	}
	for _, e := range res.NewLogs {
		log.Debug().
			Str("component", "sim").
			Uint32("device", uint32(d.id)).
			Str("type", warehouse.LogTypeName(e.Type)).
			Stringer("entry", e).
			Msg("log created")
	}
}

// Now returns the simulated time elapsed since the start
func (n *Network) Now() time.Duration {
	n.mutex.RLock()
	defer n.mutex.RUnlock()
	return n.now.Sub(n.start)
}

// RunID identifies this simulation run
func (n *Network) RunID() uuid.UUID {
	return n.runID
}

// IDs returns the ids of the devices, sorted
func (n *Network) IDs() []aggregate.DeviceID {
	n.mutex.RLock()
	defer n.mutex.RUnlock()
	ids := make([]aggregate.DeviceID, 0, len(n.devices))
	for id := range n.devices {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// State returns the domain state of a device
func (n *Network) State(id aggregate.DeviceID) (*state.DeviceState, bool) {
	n.mutex.RLock()
	defer n.mutex.RUnlock()
	d, ok := n.devices[id]
	if !ok {
		return nil, false
	}
	return d.st, true
}

// Position returns where a device currently is
func (n *Network) Position(id aggregate.DeviceID) (aggregate.Vec3, bool) {
	n.mutex.RLock()
	defer n.mutex.RUnlock()
	d, ok := n.devices[id]
	if !ok {
		return aggregate.Vec3{}, false
	}
	return d.body.Position(n.now), true
}

// Move places a device at pos and stops it
func (n *Network) Move(id aggregate.DeviceID, pos aggregate.Vec3) error {
	n.mutex.Lock()
	defer n.mutex.Unlock()
	d, ok := n.devices[id]
	if !ok {
		return fmt.Errorf("move device %d: not in the network", id)
	}
	d.body.Place(pos, n.now)
	return nil
}

// Result returns the outcome of the latest round of a device
func (n *Network) Result(id aggregate.DeviceID) (warehouse.Result, bool) {
	n.mutex.RLock()
	defer n.mutex.RUnlock()
	d, ok := n.devices[id]
	if !ok {
		return warehouse.Result{}, false
	}
	return d.last, true
}

// Metrics returns the collectors fed by the simulation
func (n *Network) Metrics() *telemetry.Metrics {
	return n.metrics
}

// Tracker returns the log delivery tracker
func (n *Network) Tracker() *telemetry.DeliveryTracker {
	return n.tracker
}

// GetStats returns statistics of the simulation
func (n *Network) GetStats() map[string]interface{} {
	n.mutex.RLock()
	wearables, pallets, busy := 0, 0, 0
	for _, d := range n.devices {
		if d.st.Snapshot().Type == state.Wearable {
			wearables++
			if d.op != Idle {
				busy++
			}
		} else {
			pallets++
		}
	}
	now := n.now.Sub(n.start)
	n.mutex.RUnlock()

	return map[string]interface{}{
		"run_id":         n.runID.String(),
		"sim_seconds":    now.Seconds(),
		"pallets":        pallets,
		"wearables":      wearables,
		"wearables_busy": busy,
		"medium":         n.medium.GetStats(),
		"delivery":       n.tracker.GetStats(),
	}
}
