package routing_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heitortanoue/warehouse-swarm/pkg/aggregate"
	"github.com/heitortanoue/warehouse-swarm/pkg/aggregate/aggtest"
	"github.com/heitortanoue/warehouse-swarm/pkg/routing"
	"github.com/heitortanoue/warehouse-swarm/pkg/wire"
)

func wireCodec(exp aggregate.Export) (aggregate.Export, bool) {
	out, err := wire.Roundtrip(exp)
	return out, err == nil
}

func gradient(sources map[aggregate.DeviceID]bool, distortion float64, out map[aggregate.DeviceID]routing.Route) aggregate.Program {
	return func(ctx *aggregate.Context) {
		out[ctx.Self()] = routing.DistanceWaypoint(ctx, aggregate.Root().At(1), sources[ctx.Self()], distortion)
	}
}

func TestDistanceWaypointConvergesOnLine(t *testing.T) {
	net := aggtest.New()
	net.Codec = wireCodec
	net.Line(10, 1, 2, 3, 4)

	routes := map[aggregate.DeviceID]routing.Route{}
	prog := gradient(map[aggregate.DeviceID]bool{1: true}, 0, routes)

	// diameter 3, plus the first round in which nothing has been exported yet
	net.Run(4, prog)
	for i := 0; i < 10; i++ {
		assert.Equal(t, routing.Route{Distance: 0, Waypoint: 1, Root: 1}, routes[1])
		assert.Equal(t, routing.Route{Distance: 10, Waypoint: 1, Root: 1}, routes[2])
		assert.Equal(t, routing.Route{Distance: 20, Waypoint: 2, Root: 1}, routes[3])
		assert.Equal(t, routing.Route{Distance: 30, Waypoint: 3, Root: 1}, routes[4])
		net.Step(prog)
	}
}

func TestDistortionAddsPerHop(t *testing.T) {
	net := aggtest.New()
	net.Line(10, 1, 2, 3)

	routes := map[aggregate.DeviceID]routing.Route{}
	net.Run(5, gradient(map[aggregate.DeviceID]bool{1: true}, 1, routes))

	assert.Equal(t, 0.0, routes[1].Distance)
	assert.Equal(t, 11.0, routes[2].Distance)
	assert.Equal(t, 22.0, routes[3].Distance)
}

func TestTiesGoToSmallestNeighbor(t *testing.T) {
	net := aggtest.New()
	net.Add(1, aggregate.Vec3{0, 0, 0})
	net.Add(3, aggregate.Vec3{10, 10, 0})
	net.Add(2, aggregate.Vec3{10, -10, 0})
	net.Add(4, aggregate.Vec3{20, 0, 0})
	net.Link(1, 2)
	net.Link(1, 3)
	net.Link(2, 4)
	net.Link(3, 4)

	routes := map[aggregate.DeviceID]routing.Route{}
	net.Run(5, gradient(map[aggregate.DeviceID]bool{1: true}, 0, routes))

	assert.Equal(t, aggregate.DeviceID(2), routes[4].Waypoint)
	assert.InDelta(t, 2*math.Sqrt(200), routes[4].Distance, 1e-9)
}

func TestNearestOfTwoSources(t *testing.T) {
	net := aggtest.New()
	net.Line(10, 1, 2, 3, 4, 5)

	routes := map[aggregate.DeviceID]routing.Route{}
	net.Run(6, gradient(map[aggregate.DeviceID]bool{1: true, 5: true}, 0, routes))

	assert.Equal(t, aggregate.DeviceID(1), routes[2].Root)
	assert.Equal(t, aggregate.DeviceID(5), routes[4].Root)
	assert.Equal(t, aggregate.DeviceID(1), routes[3].Root, "equal distance resolves to the smaller neighbor")
	assert.Equal(t, 20.0, routes[3].Distance)
}

func TestUnreachableWithoutSource(t *testing.T) {
	net := aggtest.New()
	net.Line(10, 1, 2)

	routes := map[aggregate.DeviceID]routing.Route{}
	net.Run(3, gradient(nil, 0.5, routes))

	for _, id := range net.IDs() {
		assert.False(t, routes[id].Reachable())
		assert.Equal(t, id, routes[id].Waypoint)
		assert.Equal(t, id, routes[id].Root)
	}
}

func TestGradientTracksNewSource(t *testing.T) {
	net := aggtest.New()
	net.Line(10, 1, 2, 3, 4)

	sources := map[aggregate.DeviceID]bool{1: true}
	routes := map[aggregate.DeviceID]routing.Route{}
	prog := gradient(sources, 1, routes)
	net.Run(5, prog)
	require.Equal(t, aggregate.DeviceID(1), routes[4].Root)

	sources[4] = true
	net.Run(5, prog)
	assert.Equal(t, 0.0, routes[4].Distance)
	assert.Equal(t, aggregate.DeviceID(4), routes[3].Root)
	assert.Equal(t, aggregate.DeviceID(4), routes[3].Waypoint)
	assert.Equal(t, aggregate.DeviceID(1), routes[2].Root)
}

func TestHopDistance(t *testing.T) {
	net := aggtest.New()
	net.Codec = wireCodec
	net.Line(10, 1, 2, 3, 4)
	net.Add(9, aggregate.Vec3{100, 100, 0})

	hops := map[aggregate.DeviceID]uint16{}
	prog := func(ctx *aggregate.Context) {
		hops[ctx.Self()] = routing.HopDistance(ctx, aggregate.Root().At(2), ctx.Self() == 4)
	}
	net.Run(5, prog)

	assert.Equal(t, map[aggregate.DeviceID]uint16{4: 0, 3: 1, 2: 2, 1: 3, 9: routing.Unreachable}, hops)
}
