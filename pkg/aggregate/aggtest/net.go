// Package aggtest runs coordination programs on small hand-built topologies.
// Rounds are synchronous: in every step each device sees the exports its linked
// neighbors produced in the previous step.
package aggtest

import (
	"sort"
	"time"

	"github.com/heitortanoue/warehouse-swarm/pkg/aggregate"
)

// Codec optionally transforms exports before delivery (e.g. a wire roundtrip).
// Returning ok=false drops the export as if the neighbor were unreachable.
type Codec func(aggregate.Export) (aggregate.Export, bool)

type node struct {
	device   *aggregate.Device
	position aggregate.Vec3
	export   aggregate.Export
}

type link struct{ a, b aggregate.DeviceID }

func key(a, b aggregate.DeviceID) link {
	if a > b {
		a, b = b, a
	}
	return link{a, b}
}

// Net is a synchronous test network
type Net struct {
	Now    time.Time
	Period time.Duration
	Codec  Codec

	nodes map[aggregate.DeviceID]*node
	links map[link]bool
}

// New creates an empty network with a one second round period
func New() *Net {
	return &Net{
		Now:    time.Unix(0, 0),
		Period: time.Second,
		nodes:  make(map[aggregate.DeviceID]*node),
		links:  make(map[link]bool),
	}
}

// Add creates a device at the given position
func (n *Net) Add(id aggregate.DeviceID, pos aggregate.Vec3) {
	n.nodes[id] = &node{device: aggregate.NewDevice(id), position: pos}
}

// Remove deletes a device and its links
func (n *Net) Remove(id aggregate.DeviceID) {
	delete(n.nodes, id)
	for l := range n.links {
		if l.a == id || l.b == id {
			delete(n.links, l)
		}
	}
}

// Move changes a device position
func (n *Net) Move(id aggregate.DeviceID, pos aggregate.Vec3) {
	if nd, ok := n.nodes[id]; ok {
		nd.position = pos
	}
}

// Position returns a device position
func (n *Net) Position(id aggregate.DeviceID) aggregate.Vec3 {
	return n.nodes[id].position
}

// Link connects two devices in both directions
func (n *Net) Link(a, b aggregate.DeviceID) {
	n.links[key(a, b)] = true
}

// Unlink disconnects two devices
func (n *Net) Unlink(a, b aggregate.DeviceID) {
	delete(n.links, key(a, b))
}

// Line adds devices spaced by step along the x axis and links consecutive ones
func (n *Net) Line(step float64, ids ...aggregate.DeviceID) {
	for i, id := range ids {
		n.Add(id, aggregate.Vec3{float64(i) * step, 0, 0})
		if i > 0 {
			n.Link(ids[i-1], id)
		}
	}
}

// IDs returns the device ids in increasing order
func (n *Net) IDs() []aggregate.DeviceID {
	ids := make([]aggregate.DeviceID, 0, len(n.nodes))
	for id := range n.nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Export returns the latest export of a device
func (n *Net) Export(id aggregate.DeviceID) aggregate.Export {
	return n.nodes[id].export
}

// Step runs one synchronous round on every device
func (n *Net) Step(program aggregate.Program) {
	n.StepOnly(program, n.IDs()...)
}

// StepOnly runs one round on the listed devices only; the others keep their
// previous export, modelling devices on slower schedules.
func (n *Net) StepOnly(program aggregate.Program, ids ...aggregate.DeviceID) {
	inbox := make(map[aggregate.DeviceID][]aggregate.Message, len(ids))
	for _, id := range ids {
		inbox[id] = n.messagesFor(id)
	}
	for _, id := range ids {
		nd := n.nodes[id]
		nd.export = nd.device.Round(n.Now, nd.position, inbox[id], program)
	}
	n.Now = n.Now.Add(n.Period)
}

// Run executes count synchronous rounds
func (n *Net) Run(count int, program aggregate.Program) {
	for i := 0; i < count; i++ {
		n.Step(program)
	}
}

func (n *Net) messagesFor(id aggregate.DeviceID) []aggregate.Message {
	var msgs []aggregate.Message
	for _, other := range n.IDs() {
		if other == id || !n.links[key(id, other)] {
			continue
		}
		src := n.nodes[other]
		if src.export == nil {
			continue
		}
		exp := src.export
		if n.Codec != nil {
			var ok bool
			if exp, ok = n.Codec(exp); !ok {
				continue
			}
		}
		msgs = append(msgs, aggregate.Message{
			From:     other,
			Position: src.position,
			Export:   exp,
			Received: n.Now.Add(-n.Period),
		})
	}
	return msgs
}
