package sim

import (
	"container/heap"
	"math"
	"math/rand"
	"time"

	"github.com/heitortanoue/warehouse-swarm/pkg/aggregate"
)

// Schedule draws the time between two rounds of a device from a Weibull
// distribution with the given mean. A large shape gives nearly periodic
// rounds; shape 1 gives exponential ones.
type Schedule struct {
	Period time.Duration
	Shape  float64
}

// Next samples one interval
func (s Schedule) Next(rng *rand.Rand) time.Duration {
	if s.Shape <= 0 {
		return s.Period
	}
	scale := float64(s.Period) / math.Gamma(1+1/s.Shape)
	u := 1 - rng.Float64() // (0, 1]
	return time.Duration(scale * math.Pow(-math.Log(u), 1/s.Shape))
}

// Start samples the first round of a device, uniformly within one period
func (s Schedule) Start(rng *rand.Rand) time.Duration {
	return time.Duration(rng.Int63n(int64(s.Period) + 1))
}

type event struct {
	at  time.Time
	id  aggregate.DeviceID
	seq uint64
}

// eventQueue orders events by time, then by insertion
type eventQueue []event

func (q eventQueue) Len() int { return len(q) }
func (q eventQueue) Less(i, j int) bool {
	if !q[i].at.Equal(q[j].at) {
		return q[i].at.Before(q[j].at)
	}
	return q[i].seq < q[j].seq
}
func (q eventQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *eventQueue) Push(x any)   { *q = append(*q, x.(event)) }
func (q *eventQueue) Pop() any {
	old := *q
	e := old[len(old)-1]
	*q = old[:len(old)-1]
	return e
}

func (q *eventQueue) schedule(e event) { heap.Push(q, e) }
func (q *eventQueue) next() event      { return heap.Pop(q).(event) }
func (q eventQueue) peek() (event, bool) {
	if len(q) == 0 {
		return event{}, false
	}
	return q[0], true
}
