package warehouse

import (
	"time"

	"github.com/heitortanoue/warehouse-swarm/logging"
	"github.com/heitortanoue/warehouse-swarm/pkg/aggregate"
	"github.com/heitortanoue/warehouse-swarm/pkg/logset"
	"github.com/heitortanoue/warehouse-swarm/pkg/routing"
	"github.com/heitortanoue/warehouse-swarm/pkg/state"
)

// offer is what a wearable asks of a pallet; Content is NoGoods when there is
// no pending intent.
type offer struct {
	Target  aggregate.DeviceID
	Content state.Goods
	Seq     uint16
}

// ack is what a pallet confirms having applied
type ack struct {
	Wearable aggregate.DeviceID
	Content  state.Goods
	Seq      uint16
}

// NearestPallet returns the closest pallet and how far it is.
// A pallet is its own nearest pallet.
func NearestPallet(ctx *aggregate.Context, p aggregate.Path, isPallet bool) (aggregate.DeviceID, float64, bool) {
	r := routing.DistanceWaypoint(ctx, p, isPallet, 0)
	return r.Root, r.Distance, r.Reachable()
}

func content(g state.Goods, other aggregate.DeviceID) uint32 {
	return uint32(g) | uint32(other)<<8
}

// LoadGoodsOnPallet moves goods between wearables and pallets.
//
// A wearable with a pending intent offers it to its nearest pallet once close
// enough. The pallet applies an offer the first time it sees its sequence
// number and acknowledges it for as long as the wearable keeps offering; the
// wearable drops the intent when it reads the acknowledgement. Each side logs
// its change once.
func LoadGoodsOnPallet(ctx *aggregate.Context, p aggregate.Path, st *state.DeviceState, params Params, clock time.Duration) []logset.Entry {
	s := st.Snapshot()
	self := ctx.Self()
	var logs []logset.Entry

	pallet, dist, ok := NearestPallet(ctx, p.At(1), s.Type == state.Pallet)
	mine := offer{Content: state.NoGoods}
	if s.Type == state.Wearable && s.Loading != state.NoGoods && ok && dist <= params.HandoffRange {
		mine = offer{Target: pallet, Content: s.Loading, Seq: s.LoadingSeq}
	}
	offers := aggregate.Share(ctx, p.At(2), mine)

	reply := ack{Content: state.NoGoods}
	aggregate.Rep(ctx, p.At(3), map[aggregate.DeviceID]uint16(nil), func(applied map[aggregate.DeviceID]uint16) map[aggregate.DeviceID]uint16 {
		if s.Type != state.Pallet {
			return nil
		}
		next := make(map[aggregate.DeviceID]uint16, len(applied)+1)
		for k, v := range applied {
			next[k] = v
		}
		// one offer per round, the smallest wearable id first
		offers.Each(func(id aggregate.DeviceID, o offer) {
			if reply.Content != state.NoGoods || o.Content == state.NoGoods || o.Target != self {
				return
			}
			if seq, done := next[id]; !done || seq != o.Seq {
				logs = append(logs, applyOffer(ctx, st, id, o, params, clock))
				next[id] = o.Seq
			}
			reply = ack{Wearable: id, Content: o.Content, Seq: o.Seq}
		})
		return next
	})
	acks := aggregate.Share(ctx, p.At(4), reply)

	if s.Type == state.Wearable && s.Loading != state.NoGoods {
		acks.Each(func(id aggregate.DeviceID, a ack) {
			if a.Wearable != self || a.Seq != s.LoadingSeq || a.Content != s.Loading {
				return
			}
			cleared := false
			st.Update(func(cur *state.Snapshot) {
				if cur.LoadingSeq == a.Seq && cur.Loading == a.Content {
					cur.Loading = state.NoGoods
					cleared = true
				}
			})
			if cleared {
				logging.NewDeviceLogger(self).LogHandoff("acknowledged", id, a.Content.String())
				logs = append(logs, newEntry(ctx, HandoffDone, clock, params.Quantum, content(a.Content, id)))
			}
		})
	}
	return logs
}

func applyOffer(ctx *aggregate.Context, st *state.DeviceState, wearable aggregate.DeviceID, o offer, params Params, clock time.Duration) logset.Entry {
	var before state.Goods
	st.Update(func(cur *state.Snapshot) {
		before = cur.Loaded
		if o.Content == state.UnloadGoods {
			cur.Loaded = state.NoGoods
		} else {
			cur.Loaded = o.Content
		}
	})
	logging.NewDeviceLogger(ctx.Self()).LogHandoff("applied", wearable, o.Content.String())
	if o.Content == state.UnloadGoods {
		return newEntry(ctx, PalletUnloaded, clock, params.Quantum, content(before, wearable))
	}
	return newEntry(ctx, PalletLoaded, clock, params.Quantum, content(o.Content, wearable))
}
