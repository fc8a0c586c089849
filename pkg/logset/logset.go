// Package logset implements the event log entries produced by devices and the
// sorted, duplicate-free sets they travel in.
package logset

import (
	"fmt"
	"sort"

	"github.com/heitortanoue/warehouse-swarm/pkg/aggregate"
)

// Entry is a single event log. Two entries are the same event iff all fields
// are equal.
type Entry struct {
	Type    uint8
	Logger  aggregate.DeviceID
	Time    uint8
	Content uint32
}

// Less orders entries lexicographically by (Type, Logger, Time, Content)
func (e Entry) Less(o Entry) bool {
	if e.Type != o.Type {
		return e.Type < o.Type
	}
	if e.Logger != o.Logger {
		return e.Logger < o.Logger
	}
	if e.Time != o.Time {
		return e.Time < o.Time
	}
	return e.Content < o.Content
}

func (e Entry) String() string {
	return fmt.Sprintf("log(type=%d logger=%d t=%d content=%d)", e.Type, e.Logger, e.Time, e.Content)
}

// Set is a sorted sequence of distinct entries. The zero value is the empty set.
// Sets are values: operations never modify their operands.
type Set []Entry

// InvariantError reports a set that is not sorted or contains duplicates.
// It is raised through panic: a broken set is a programming error.
type InvariantError struct {
	Op    string
	Index int
	Prev  Entry
	Next  Entry
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("logset: %s: entries %d and %d out of order: %v, %v", e.Op, e.Index-1, e.Index, e.Prev, e.Next)
}

// Check panics with an *InvariantError if s is not strictly increasing
func Check(op string, s Set) {
	for i := 1; i < len(s); i++ {
		if !s[i-1].Less(s[i]) {
			panic(&InvariantError{Op: op, Index: i, Prev: s[i-1], Next: s[i]})
		}
	}
}

// FromEntries builds a set from entries in any order, dropping duplicates
func FromEntries(entries ...Entry) Set {
	if len(entries) == 0 {
		return nil
	}
	s := make(Set, len(entries))
	copy(s, entries)
	sort.Slice(s, func(i, j int) bool { return s[i].Less(s[j]) })
	out := s[:1]
	for _, e := range s[1:] {
		if out[len(out)-1] != e {
			out = append(out, e)
		}
	}
	return out
}

// Merge returns the union of a and b
func Merge(a, b Set) Set {
	Check("merge", a)
	Check("merge", b)
	if len(a) == 0 {
		return b
	}
	if len(b) == 0 {
		return a
	}
	out := make(Set, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i].Less(b[j]):
			out = append(out, a[i])
			i++
		case b[j].Less(a[i]):
			out = append(out, b[j])
			j++
		default:
			out = append(out, a[i])
			i++
			j++
		}
	}
	out = append(out, a[i:]...)
	out = append(out, b[j:]...)
	Check("merge result", out)
	return out
}

// Subtract returns the entries of a that are not in b
func Subtract(a, b Set) Set {
	Check("subtract", a)
	Check("subtract", b)
	if len(a) == 0 || len(b) == 0 {
		return a
	}
	out := make(Set, 0, len(a))
	i, j := 0, 0
	for i < len(a) {
		switch {
		case j == len(b) || a[i].Less(b[j]):
			out = append(out, a[i])
			i++
		case b[j].Less(a[i]):
			j++
		default:
			i++
			j++
		}
	}
	Check("subtract result", out)
	if len(out) == 0 {
		return nil
	}
	return out
}

// MergeAll returns the union of all the given sets
func MergeAll(sets ...Set) Set {
	var out Set
	for _, s := range sets {
		out = Merge(out, s)
	}
	return out
}

// Contains reports whether e is in s
func (s Set) Contains(e Entry) bool {
	i := sort.Search(len(s), func(i int) bool { return !s[i].Less(e) })
	return i < len(s) && s[i] == e
}
