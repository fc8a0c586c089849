package warehouse

import (
	"time"

	"github.com/heitortanoue/warehouse-swarm/pkg/aggregate"
	"github.com/heitortanoue/warehouse-swarm/pkg/collection"
	"github.com/heitortanoue/warehouse-swarm/pkg/logset"
	"github.com/heitortanoue/warehouse-swarm/pkg/routing"
	"github.com/heitortanoue/warehouse-swarm/pkg/state"
)

// Result is what one round of the warehouse program produced on a device
type Result struct {
	Clock     time.Duration
	NewLogs   logset.Set
	Collected logset.Set
	AtRisk    bool
	Goods     routing.Route
	Space     routing.Route
}

// App runs one round of the warehouse program. Wearables are the log sinks.
func App(ctx *aggregate.Context, p aggregate.Path, st *state.DeviceState, params Params) Result {
	var res Result
	res.Clock = aggregate.SharedClock(ctx, p.At(1))

	logs := LoadGoodsOnPallet(ctx, p.At(2), st, params, res.Clock)
	s := st.Snapshot()

	risk, riskLogs := CollisionDetection(ctx, p.At(3), s, params, res.Clock)
	logs = append(logs, riskLogs...)
	res.AtRisk = risk

	res.Goods = FindGoods(ctx, p.At(4), s, params)
	res.Space = FindSpace(ctx, p.At(5), s, params)

	found := s.Type == state.Wearable && s.Query != state.NoGoods && res.Goods.Reachable()
	if was := aggregate.Old(ctx, p.At(6), false, found); found && !was {
		logs = append(logs, newEntry(ctx, GoodsFound, res.Clock, params.Quantum, content(s.Query, res.Goods.Root)))
	}

	res.NewLogs = logset.FromEntries(logs...)
	res.Collected = collection.Collect(ctx, p.At(7), s.Type == state.Wearable, res.NewLogs)

	st.AddCollected(res.Collected...)
	st.Update(func(cur *state.Snapshot) { cur.LED = risk })
	return res
}

// Program wraps App into a program for a device, reporting every result
func Program(st *state.DeviceState, params Params, report func(aggregate.DeviceID, Result)) aggregate.Program {
	return func(ctx *aggregate.Context) {
		res := App(ctx, aggregate.Root(), st, params)
		if report != nil {
			report(ctx.Self(), res)
		}
	}
}
