package logset

import (
	"github.com/tinylib/msgp/msgp"

	"github.com/heitortanoue/warehouse-swarm/pkg/aggregate"
	"github.com/heitortanoue/warehouse-swarm/pkg/wire"
)

// KindSet tags log sets in exports
const KindSet wire.Kind = 0x40

func init() {
	wire.Register(KindSet, AppendSet, ReadSetBytes)
}

// AppendSet encodes a set as an array of [type, logger, time, content] arrays
func AppendSet(b []byte, s Set) []byte {
	b = msgp.AppendArrayHeader(b, uint32(len(s)))
	for _, e := range s {
		b = msgp.AppendArrayHeader(b, 4)
		b = msgp.AppendUint8(b, e.Type)
		b = msgp.AppendUint32(b, uint32(e.Logger))
		b = msgp.AppendUint8(b, e.Time)
		b = msgp.AppendUint32(b, e.Content)
	}
	return b
}

// ReadSetBytes decodes a set and checks that it is well formed
func ReadSetBytes(b []byte) (Set, []byte, error) {
	n, b, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil {
		return nil, nil, err
	}
	if n == 0 {
		return nil, b, nil
	}
	s := make(Set, n)
	for i := range s {
		var sz uint32
		if sz, b, err = msgp.ReadArrayHeaderBytes(b); err != nil {
			return nil, nil, err
		}
		if sz != 4 {
			return nil, nil, msgp.ArrayError{Wanted: 4, Got: sz}
		}
		var logger uint32
		if s[i].Type, b, err = msgp.ReadUint8Bytes(b); err != nil {
			return nil, nil, err
		}
		if logger, b, err = msgp.ReadUint32Bytes(b); err != nil {
			return nil, nil, err
		}
		s[i].Logger = aggregate.DeviceID(logger)
		if s[i].Time, b, err = msgp.ReadUint8Bytes(b); err != nil {
			return nil, nil, err
		}
		if s[i].Content, b, err = msgp.ReadUint32Bytes(b); err != nil {
			return nil, nil, err
		}
	}
	for i := 1; i < len(s); i++ {
		if !s[i-1].Less(s[i]) {
			return nil, nil, &InvariantError{Op: "decode", Index: i, Prev: s[i-1], Next: s[i]}
		}
	}
	return s, b, nil
}
