// Package spawn runs dynamic, keyed sub-computations ("processes") that
// propagate from their sources to the devices around them and disappear once
// no device keeps them alive.
//
// A process is identified by a Key: the device that started it and an
// application payload. Every round a device runs the processes it is a source
// of, the processes its neighbors advertised in their latest export, and the
// processes it marked External. The keys of processes still running are
// advertised in turn. There is no teardown message: a process record that
// was not marked in the current round is swept, so a process stops
// propagating when every device returns Terminated for it or when its source
// stops asking for it and the neighbors holding it go out of reach.
package spawn

import (
	"sort"

	"github.com/heitortanoue/warehouse-swarm/pkg/aggregate"
)

// Status tells the spawner what to do with a process after running it
type Status uint8

const (
	// Internal keeps the process running and propagating, with no output here
	Internal Status = iota
	// InternalOutput keeps propagating and reports the value on this device
	InternalOutput
	// Terminated stops the process on this device and drops its record
	Terminated
	// External reports the value and keeps the record until the process
	// stops returning External, whether or not the key is still visible
	External
)

func (s Status) String() string {
	switch s {
	case Internal:
		return "internal"
	case InternalOutput:
		return "internal_output"
	case Terminated:
		return "terminated"
	case External:
		return "external"
	}
	return "unknown"
}

// Payload is the application part of a process key
type Payload interface {
	~uint8 | ~uint16 | ~uint32 | ~uint64
}

// Key identifies a process
type Key[K Payload] struct {
	Source  aggregate.DeviceID
	Payload K
}

func (k Key[K]) less(o Key[K]) bool {
	if k.Source != o.Source {
		return k.Source < o.Source
	}
	return k.Payload < o.Payload
}

// Process is the body of a process. It runs under its own path so that its
// call sites align only with neighbors running the same key. source is true
// while this device lists the key among its local sources; a device that
// started a process stops being its source as soon as it drops the key.
type Process[K Payload, V any] func(ctx *aggregate.Context, p aggregate.Path, key Key[K], source bool) (V, Status)

type record struct {
	seen     uint64
	external bool
}

type arena[K Payload] map[Key[K]]record

// Spawn runs every live process and returns the values of those reporting
// output on this device.
func Spawn[K Payload, V any](ctx *aggregate.Context, p aggregate.Path, process Process[K, V], local []Key[K]) map[Key[K]]V {
	out := make(map[Key[K]]V)

	aggregate.Nbr(ctx, p.At(0), keyList(nil), func(advertised aggregate.Field[keyList]) keyList {
		var running keyList

		aggregate.Rep(ctx, p.At(1), arena[K](nil), func(prev arena[K]) arena[K] {
			round := ctx.Round()
			next := make(arena[K], len(prev)+len(local))
			for k, r := range prev {
				if r.external {
					r.seen = round
				}
				next[k] = r
			}
			mark := func(k Key[K]) {
				r := next[k]
				r.seen = round
				next[k] = r
			}
			sources := make(map[Key[K]]bool, len(local))
			for _, k := range local {
				sources[k] = true
				mark(k)
			}
			advertised.Each(func(_ aggregate.DeviceID, keys keyList) {
				for _, wk := range keys {
					mark(Key[K]{Source: wk.Source, Payload: K(wk.Payload)})
				}
			})

			// sweep
			for k, r := range next {
				if r.seen != round {
					delete(next, k)
				}
			}

			for _, k := range sortedKeys(next) {
				pp := p.At(2).Key(uint64(k.Source)).Key(uint64(k.Payload))
				v, status := process(ctx, pp, k, sources[k])
				switch status {
				case Internal:
					next[k] = record{seen: round}
					running = append(running, wireKey{Source: k.Source, Payload: uint64(k.Payload)})
				case InternalOutput:
					next[k] = record{seen: round}
					running = append(running, wireKey{Source: k.Source, Payload: uint64(k.Payload)})
					out[k] = v
				case External:
					next[k] = record{seen: round, external: true}
					out[k] = v
				default:
					delete(next, k)
				}
			}
			return next
		})
		return running
	})
	return out
}

func sortedKeys[K Payload](a arena[K]) []Key[K] {
	keys := make([]Key[K], 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].less(keys[j]) })
	return keys
}
