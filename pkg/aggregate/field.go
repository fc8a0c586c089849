package aggregate

// Field holds the values that the current device and its aligned neighbors
// associate with one call site. Neighbors are kept sorted by id so that every
// fold over a field is deterministic.
type Field[T any] struct {
	selfID DeviceID
	self   T
	ids    []DeviceID
	vals   []T
}

// NewField builds a field from a self value and neighbor values.
// ids must be sorted and unique; it is intended for tests and adapters.
func NewField[T any](selfID DeviceID, self T, ids []DeviceID, vals []T) Field[T] {
	return Field[T]{selfID: selfID, self: self, ids: ids, vals: vals}
}

// Self returns the value associated with the current device
func (f Field[T]) Self() T {
	return f.self
}

// Len returns the number of aligned neighbors (self excluded)
func (f Field[T]) Len() int {
	return len(f.ids)
}

// IDs returns the aligned neighbors in increasing id order
func (f Field[T]) IDs() []DeviceID {
	return f.ids
}

// Get returns the value of a device, which may be the current device itself
func (f Field[T]) Get(id DeviceID) (T, bool) {
	if id == f.selfID {
		return f.self, true
	}
	lo, hi := 0, len(f.ids)
	for lo < hi {
		mid := (lo + hi) / 2
		if f.ids[mid] < id {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < len(f.ids) && f.ids[lo] == id {
		return f.vals[lo], true
	}
	var zero T
	return zero, false
}

// Each visits the neighbor values in increasing id order
func (f Field[T]) Each(fn func(id DeviceID, v T)) {
	for i, id := range f.ids {
		fn(id, f.vals[i])
	}
}

// FoldHood folds the neighbor values (self excluded) starting from init
func FoldHood[T, A any](f Field[T], init A, fn func(acc A, id DeviceID, v T) A) A {
	acc := init
	for i, id := range f.ids {
		acc = fn(acc, id, f.vals[i])
	}
	return acc
}

// MinHood returns the neighbor with the smallest value according to less.
// Ties are broken by the smallest id. ok is false when the field has no neighbors.
func MinHood[T any](f Field[T], less func(a, b T) bool) (id DeviceID, v T, ok bool) {
	for i, nid := range f.ids {
		if !ok || less(f.vals[i], v) {
			id, v, ok = nid, f.vals[i], true
		}
	}
	return id, v, ok
}
