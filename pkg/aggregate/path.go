package aggregate

// Trace is the opaque key of a call site inside a coordination program
type Trace uint32

// Site is a caller-chosen identifier of a call site, unique among the sites
// invoked by the same function.
type Site uint32

const (
	fnvOffset32 = 2166136261
	fnvPrime32  = 16777619

	tagSite = 0x5a
	tagKey  = 0xa5
)

// Path addresses persistent state and exported values.
// Paths are built by threading them through coordination functions: every
// function receives the path of its call and derives the paths of its own call
// sites with At. Two devices executing the same sequence of calls derive the same
// trace, which is what aligns their fields.
type Path struct {
	trace Trace
}

// Root returns the path of the program entry point
func Root() Path {
	return Path{trace: fnvOffset32}
}

// At derives the path of a call site
func (p Path) At(site Site) Path {
	return Path{trace: mix(p.trace, tagSite, uint64(site))}
}

// Key derives the path of a keyed sub-computation (e.g. a spawned process)
func (p Path) Key(k uint64) Path {
	return Path{trace: mix(p.trace, tagKey, k)}
}

// Trace returns the trace identifying this path
func (p Path) Trace() Trace {
	return p.trace
}

func mix(t Trace, tag byte, v uint64) Trace {
	h := uint32(t)
	h ^= uint32(tag)
	h *= fnvPrime32
	for i := 0; i < 8; i++ {
		h ^= uint32(byte(v >> (8 * i)))
		h *= fnvPrime32
	}
	return Trace(h)
}
