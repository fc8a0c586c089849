// Package wire serializes round exports for transmission.
//
// An export is encoded as a msgpack map from trace (uint32) to a two element
// array [kind, value], where kind identifies the registered codec of the value.
// Traces are written in increasing order so equal exports encode to equal bytes.
package wire

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/tinylib/msgp/msgp"

	"github.com/heitortanoue/warehouse-swarm/pkg/aggregate"
)

// Kind tags the type of an exported value on the wire
type Kind uint8

var (
	// ErrUnknownKind is returned when decoding a value whose kind is not registered
	ErrUnknownKind = errors.New("wire: unknown kind")
	// ErrUnregistered is returned when encoding a value whose type is not registered
	ErrUnregistered = errors.New("wire: unregistered type")
)

type codec struct {
	kind Kind
	typ  reflect.Type
	enc  func([]byte, any) []byte
	dec  func([]byte) (any, []byte, error)
}

var registry = struct {
	sync.RWMutex
	byType map[reflect.Type]*codec
	byKind map[Kind]*codec
}{
	byType: make(map[reflect.Type]*codec),
	byKind: make(map[Kind]*codec),
}

// Register associates a kind with the codec of T.
// Registering a kind twice with different types panics; registering the same
// pair again is a no-op.
func Register[T any](kind Kind, enc func([]byte, T) []byte, dec func([]byte) (T, []byte, error)) {
	typ := reflect.TypeOf((*T)(nil)).Elem()

	registry.Lock()
	defer registry.Unlock()

	if c, ok := registry.byKind[kind]; ok {
		if c.typ != typ {
			panic(fmt.Sprintf("wire: kind %d already registered for %v", kind, c.typ))
		}
		return
	}
	if c, ok := registry.byType[typ]; ok {
		panic(fmt.Sprintf("wire: type %v already registered as kind %d", typ, c.kind))
	}

	c := &codec{
		kind: kind,
		typ:  typ,
		enc:  func(b []byte, v any) []byte { return enc(b, v.(T)) },
		dec: func(b []byte) (any, []byte, error) {
			v, rest, err := dec(b)
			return v, rest, err
		},
	}
	registry.byKind[kind] = c
	registry.byType[typ] = c
}

func lookupType(t reflect.Type) (*codec, bool) {
	registry.RLock()
	defer registry.RUnlock()
	c, ok := registry.byType[t]
	return c, ok
}

func lookupKind(k Kind) (*codec, bool) {
	registry.RLock()
	defer registry.RUnlock()
	c, ok := registry.byKind[k]
	return c, ok
}

// AppendExport appends the encoding of exp to b
func AppendExport(b []byte, exp aggregate.Export) ([]byte, error) {
	traces := make([]aggregate.Trace, 0, len(exp))
	for t := range exp {
		traces = append(traces, t)
	}
	sort.Slice(traces, func(i, j int) bool { return traces[i] < traces[j] })

	b = msgp.AppendMapHeader(b, uint32(len(traces)))
	for _, t := range traces {
		v := exp[t]
		c, ok := lookupType(reflect.TypeOf(v))
		if !ok {
			return nil, fmt.Errorf("%w: %T at trace %08x", ErrUnregistered, v, uint32(t))
		}
		b = msgp.AppendUint32(b, uint32(t))
		b = msgp.AppendArrayHeader(b, 2)
		b = msgp.AppendUint8(b, uint8(c.kind))
		b = c.enc(b, v)
	}
	return b, nil
}

// EncodeExport returns the encoding of exp
func EncodeExport(exp aggregate.Export) ([]byte, error) {
	return AppendExport(make([]byte, 0, 64), exp)
}

// DecodeExport parses an export produced by EncodeExport and returns the
// remaining bytes.
func DecodeExport(b []byte) (aggregate.Export, []byte, error) {
	n, b, err := msgp.ReadMapHeaderBytes(b)
	if err != nil {
		return nil, nil, fmt.Errorf("wire: export header: %w", err)
	}
	exp := make(aggregate.Export, n)
	for i := uint32(0); i < n; i++ {
		var trace uint32
		if trace, b, err = msgp.ReadUint32Bytes(b); err != nil {
			return nil, nil, fmt.Errorf("wire: trace: %w", err)
		}
		var sz uint32
		if sz, b, err = msgp.ReadArrayHeaderBytes(b); err != nil {
			return nil, nil, fmt.Errorf("wire: entry %08x: %w", trace, err)
		}
		if sz != 2 {
			return nil, nil, fmt.Errorf("wire: entry %08x: array of %d elements", trace, sz)
		}
		var kind uint8
		if kind, b, err = msgp.ReadUint8Bytes(b); err != nil {
			return nil, nil, fmt.Errorf("wire: kind at %08x: %w", trace, err)
		}
		c, ok := lookupKind(Kind(kind))
		if !ok {
			return nil, nil, fmt.Errorf("%w: %d at trace %08x", ErrUnknownKind, kind, trace)
		}
		var v any
		if v, b, err = c.dec(b); err != nil {
			return nil, nil, fmt.Errorf("wire: value at %08x: %w", trace, err)
		}
		exp[aggregate.Trace(trace)] = v
	}
	return exp, b, nil
}

// Size returns the number of bytes exp takes on the wire
func Size(exp aggregate.Export) (int, error) {
	b, err := EncodeExport(exp)
	if err != nil {
		return 0, err
	}
	return len(b), nil
}

// Roundtrip encodes and decodes exp, as a receiver would observe it
func Roundtrip(exp aggregate.Export) (aggregate.Export, error) {
	b, err := EncodeExport(exp)
	if err != nil {
		return nil, err
	}
	out, _, err := DecodeExport(b)
	return out, err
}
