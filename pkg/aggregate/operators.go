package aggregate

import "time"

// Old returns the value recorded at p in the previous round (init on the first
// visit) and records value for the next one.
func Old[T any](ctx *Context, p Path, init T, value T) T {
	t := ctx.visit(p)
	prev := previous(ctx, t, init)
	ctx.next[t] = value
	return prev
}

// Rep evolves a local value across rounds: it returns f(previous) and records it
func Rep[T any](ctx *Context, p Path, init T, f func(prev T) T) T {
	t := ctx.visit(p)
	v := f(previous(ctx, t, init))
	ctx.next[t] = v
	return v
}

// Nbr runs f on the field of the values that neighbors exported at p in their
// latest round, with the device's own previous value (init on the first visit)
// as the self entry. The result is recorded and exported, so neighbors observe
// it in their next round at the earliest.
func Nbr[T any](ctx *Context, p Path, init T, f func(Field[T]) T) T {
	t := ctx.visit(p)
	v := f(fieldAt(ctx, t, previous(ctx, t, init)))
	ctx.next[t] = v
	ctx.export[t] = v
	return v
}

// Share exports value at p and returns the field of the values neighbors
// exported there in their latest round; the self entry is value itself.
func Share[T any](ctx *Context, p Path, value T) Field[T] {
	t := ctx.visit(p)
	ctx.export[t] = value
	return fieldAt(ctx, t, value)
}

// Counter returns how many consecutive rounds the call site has been executed,
// starting from 1.
func Counter(ctx *Context, p Path) uint64 {
	return Rep(ctx, p, uint64(0), func(c uint64) uint64 { return c + 1 })
}

// NbrDist returns the link distance to every neighbor heard this round
func NbrDist(ctx *Context) Field[float64] {
	f := Field[float64]{selfID: ctx.self}
	for _, m := range ctx.nbrs {
		f.ids = append(f.ids, m.From)
		f.vals = append(f.vals, ctx.position.Dist(m.Position))
	}
	return f
}

// NbrLag returns how long ago every neighbor message was received
func NbrLag(ctx *Context) Field[time.Duration] {
	f := Field[time.Duration]{selfID: ctx.self}
	for _, m := range ctx.nbrs {
		lag := ctx.now.Sub(m.Received)
		if lag < 0 {
			lag = 0
		}
		f.ids = append(f.ids, m.From)
		f.vals = append(f.vals, lag)
	}
	return f
}

// NbrUID returns the field of neighbor identities
func NbrUID(ctx *Context) Field[DeviceID] {
	f := Field[DeviceID]{selfID: ctx.self, self: ctx.self}
	for _, m := range ctx.nbrs {
		f.ids = append(f.ids, m.From)
		f.vals = append(f.vals, m.From)
	}
	return f
}

// SharedClock returns a clock agreed upon by neighboring devices: every device
// advances its own clock by the local elapsed time and jumps forward to any
// neighbor clock (corrected by the message lag) that is ahead.
func SharedClock(ctx *Context, p Path) time.Duration {
	lags := NbrLag(ctx)
	return Nbr(ctx, p, time.Duration(0), func(f Field[time.Duration]) time.Duration {
		clock := f.Self() + ctx.Elapsed()
		f.Each(func(id DeviceID, c time.Duration) {
			lag, _ := lags.Get(id)
			if c+lag > clock {
				clock = c + lag
			}
		})
		return clock
	})
}
