package sim

import (
	"time"

	"github.com/heitortanoue/warehouse-swarm/pkg/aggregate"
	"github.com/heitortanoue/warehouse-swarm/pkg/state"
	"github.com/heitortanoue/warehouse-swarm/pkg/warehouse"
)

// Op is the task a simulated operator is carrying out
type Op uint8

const (
	Idle Op = iota
	Insert
	Retrieve
	Inserting
	Retrieving
	Inserted
)

func (o Op) String() string {
	switch o {
	case Insert:
		return "insert"
	case Retrieve:
		return "retrieve"
	case Inserting:
		return "inserting"
	case Retrieving:
		return "retrieving"
	case Inserted:
		return "inserted"
	}
	return "idle"
}

const followHorizon = time.Second

func (n *Network) position(id aggregate.DeviceID) (aggregate.Vec3, *device, bool) {
	d, ok := n.devices[id]
	if !ok {
		return aggregate.Vec3{}, nil, false
	}
	return d.body.Position(n.now), d, true
}

// neighborPallets returns the pallets d currently hears, by id
func (n *Network) neighborPallets(d *device) []*device {
	var out []*device
	for _, m := range d.table.Snapshot(n.now) {
		if o, ok := n.devices[m.From]; ok && o.st.Snapshot().Type == state.Pallet {
			out = append(out, o)
		}
	}
	return out
}

func (n *Network) nearestPallet(d *device) aggregate.DeviceID {
	pos := d.body.Position(n.now)
	best, bestDist := aggregate.DeviceID(0), 0.0
	for _, o := range n.neighborPallets(d) {
		if dist := pos.Dist(o.body.Position(n.now)); best == 0 || dist < bestDist {
			best, bestDist = o.id, dist
		}
	}
	return best
}

func (n *Network) setIntent(d *device, g state.Goods) {
	if d.st.Snapshot().Loading != g {
		d.st.SetIntent(g)
	}
}

// beforeRound advances the task of a wearable. Changes to a pallet go through
// its Update, the one place where a device touches the state of another.
func (n *Network) beforeRound(d *device) {
	pos := d.body.Position(n.now)
	nearest := n.nearestPallet(d)

	switch d.op {
	case Idle:
		if n.rng.Float64() >= n.config.ActionChance {
			return
		}
		if n.rng.Intn(2) == 0 {
			d.op, d.good, d.target = Insert, state.Goods(n.rng.Intn(int(state.MaxGoods))), 0
			return
		}
		var stored []state.Goods
		for g, count := range n.goods {
			if count > 0 {
				stored = append(stored, state.Goods(g))
			}
		}
		if len(stored) > 0 {
			d.op, d.good, d.target = Retrieve, stored[n.rng.Intn(len(stored))], 0
		}

	case Insert:
		if d.target == 0 {
			for _, o := range n.neighborPallets(d) {
				s := o.st.Snapshot()
				if s.Loaded == state.NoGoods && !s.Handled {
					d.target = o.id
					o.st.Update(func(cur *state.Snapshot) { cur.Handled = true })
					break
				}
			}
			return
		}
		tpos, t, ok := n.position(d.target)
		if !ok || horizontalDist(pos, tpos) >= SameSpace || nearest != d.target {
			return
		}
		if t.st.Snapshot().Loaded == d.good {
			t.st.Update(func(cur *state.Snapshot) { cur.Follow = d.id })
			d.op = Inserting
			n.setIntent(d, state.NoGoods)
			d.st.Update(func(cur *state.Snapshot) { cur.Placing = true })
		} else {
			n.setIntent(d, d.good)
		}

	case Retrieve:
		if d.st.Snapshot().Query != d.good {
			d.st.Update(func(cur *state.Snapshot) { cur.Query = d.good })
		}

	case Retrieving:
		tpos, t, ok := n.position(d.target)
		if !ok {
			return
		}
		if d.targetPos == nil {
			t.st.Update(func(cur *state.Snapshot) { cur.Follow = d.id })
			d.st.Update(func(cur *state.Snapshot) { cur.Query = state.NoGoods })
			spot := loadingZoneSpot(n.rng)
			d.targetPos = &spot
			return
		}
		if horizontalDist(pos, *d.targetPos) < SameSpace && horizontalDist(pos, tpos) < SameSpace && nearest == d.target {
			t.st.Update(func(cur *state.Snapshot) {
				cur.Follow = 0
				cur.Handled = false
			})
			n.goods[d.good]--
			d.op, d.good, d.target, d.targetPos = Idle, state.NoGoods, 0, nil
			n.setIntent(d, state.UnloadGoods)
		}

	case Inserted:
		if d.targetPos == nil {
			p := loadingZonePoint(n.rng)
			d.targetPos = &p
			return
		}
		if horizontalDist(pos, *d.targetPos) < SameSpace {
			n.goods[d.good]++
			d.op, d.good, d.target, d.targetPos = Idle, state.NoGoods, 0, nil
		}
	}
}

// afterRound moves devices according to their task and the routes found in
// the round.
func (n *Network) afterRound(d *device, res warehouse.Result) {
	s := d.st.Snapshot()
	pos := d.body.Position(n.now)

	if s.Type == state.Pallet {
		if fpos, _, ok := n.position(s.Follow); s.Follow != 0 && ok {
			d.body.FollowTarget(fpos, MaxSpeed*2, followHorizon, n.now)
		} else if d.followPos != nil {
			d.body.FollowTarget(*d.followPos, MaxSpeed, followHorizon, n.now)
		} else {
			d.body.Stop(n.now)
		}
		return
	}

	switch d.op {
	case Idle:
		d.body.Stop(n.now)

	case Insert:
		if tpos, _, ok := n.position(d.target); d.target != 0 && ok {
			d.body.FollowTarget(tpos, MaxSpeed, followHorizon, n.now)
		}

	case Inserting:
		spos, _, ok := n.position(res.Space.Root)
		if !res.Space.Reachable() || !ok {
			return
		}
		target := WaypointTarget(pos, spos)
		_, carried, ok := n.position(d.target)
		if horizontalDist(pos, target) >= SameSpace*2.5 || !ok {
			d.body.FollowTarget(target, MaxSpeed, followHorizon, n.now)
			return
		}
		d.body.Stop(n.now)
		if carried.followPos != nil && carried.body.Position(n.now).Dist(*carried.followPos) < SameSpace {
			d.op = Inserted
			carried.st.Update(func(cur *state.Snapshot) {
				cur.Follow = 0
				cur.Handled = false
			})
			carried.followPos = nil
			d.st.Update(func(cur *state.Snapshot) { cur.Placing = false })
		} else {
			carried.st.Update(func(cur *state.Snapshot) { cur.Follow = 0 })
			space := n.findActualSpace(d, spos)
			carried.followPos = &space
		}

	case Retrieve:
		if !res.Goods.Reachable() {
			return
		}
		rpos, root, ok := n.position(res.Goods.Root)
		if !ok {
			return
		}
		rs := root.st.Snapshot()
		if rs.Loaded == d.good && !rs.Handled && horizontalDist(pos, rpos) < SameSpace {
			d.body.Stop(n.now)
			root.st.Update(func(cur *state.Snapshot) { cur.Handled = true })
			d.op, d.target = Retrieving, root.id
			return
		}
		next := rpos
		if wpos, _, ok := n.position(res.Goods.Waypoint); ok && res.Goods.Waypoint != d.id {
			next = wpos
		}
		d.body.FollowTarget(WaypointTarget(pos, next), MaxSpeed, followHorizon, n.now)

	case Retrieving, Inserted:
		if d.targetPos != nil {
			d.body.FollowTarget(WaypointTarget(pos, *d.targetPos), MaxSpeed, followHorizon, n.now)
		}
	}
}

// palletNear reports whether a pallet heard by d sits close to loc
func (n *Network) palletNear(d *device, loc aggregate.Vec3) bool {
	for _, o := range n.neighborPallets(d) {
		if o.body.Position(n.now).Dist(loc) < SameSpace {
			return true
		}
	}
	return false
}

// findActualSpace picks a free slot next to the pallet at near: along the
// aisle unless at its end, then above or below. Failing that, the pallet is
// parked high above near.
func (n *Network) findActualSpace(d *device, near aggregate.Vec3) aggregate.Vec3 {
	atRow := func(rows func(i int) float64) bool {
		for i := 0; i < 3; i++ {
			limit := near
			limit[1] = rows(i)*GridCell + GridCell/2
			if near.Dist(limit) < SameSpace {
				return true
			}
		}
		return false
	}

	lastOfBlock := func(i int) float64 { return float64(i*4 + 14*(i+1) + 9) }
	if !atRow(lastOfBlock) {
		p := near
		p[1] += GridCell
		if !n.palletNear(d, p) {
			return p
		}
	}
	firstOfBlock := func(i int) float64 { return float64(i*18 + 9) }
	if !atRow(firstOfBlock) {
		p := near
		p[1] -= GridCell
		if !n.palletNear(d, p) {
			return p
		}
	}
	if near[2]/GridCell < 2 {
		p := near
		p[2] += GridCell
		if !n.palletNear(d, p) {
			return p
		}
	}
	if near[2]/GridCell > 0 {
		p := near
		p[2] -= GridCell
		if !n.palletNear(d, p) {
			return p
		}
	}
	return aggregate.Vec3{near[0], near[1], GridCell * 10}
}
