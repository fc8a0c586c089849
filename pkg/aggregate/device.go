package aggregate

import (
	"sort"
	"sync"
	"time"
)

// Program is a coordination program executed once per round
type Program func(ctx *Context)

// Device runs rounds of a program and owns the per-call-site state that
// survives between them.
type Device struct {
	id DeviceID

	state map[Trace]any
	round uint64
	last  time.Time

	lastExport Export

	mutex sync.Mutex
}

// NewDevice creates a device with empty state
func NewDevice(id DeviceID) *Device {
	return &Device{
		id:    id,
		state: make(map[Trace]any),
	}
}

// ID returns the device identity
func (d *Device) ID() DeviceID {
	return d.id
}

// Rounds returns the number of completed rounds
func (d *Device) Rounds() uint64 {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.round
}

// LastExport returns the export produced by the latest round
func (d *Device) LastExport() Export {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.lastExport
}

// Round executes the program once.
// neighbors holds the most recent message of every reachable neighbor; messages
// from the device itself and repeated senders are ignored. The state of call
// sites not executed in this round is discarded on commit.
func (d *Device) Round(now time.Time, position Vec3, neighbors []Message, program Program) Export {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	ctx := &Context{
		self:     d.id,
		round:    d.round,
		now:      now,
		position: position,
		nbrs:     normalize(d.id, neighbors),
		prev:     d.state,
		next:     make(map[Trace]any, len(d.state)),
		visited:  make(map[Trace]struct{}, len(d.state)),
		export:   make(Export),
	}
	if d.round > 0 && now.After(d.last) {
		ctx.elapsed = now.Sub(d.last)
	}

	program(ctx)

	d.state = ctx.next
	d.round++
	d.last = now
	d.lastExport = ctx.export
	return ctx.export
}

func normalize(self DeviceID, in []Message) []Message {
	out := make([]Message, 0, len(in))
	seen := make(map[DeviceID]struct{}, len(in))
	for _, m := range in {
		if m.From == self || m.Export == nil {
			continue
		}
		if _, dup := seen[m.From]; dup {
			continue
		}
		seen[m.From] = struct{}{}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].From < out[j].From })
	return out
}
