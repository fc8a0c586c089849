package routing

import (
	"github.com/tinylib/msgp/msgp"

	"github.com/heitortanoue/warehouse-swarm/pkg/aggregate"
	"github.com/heitortanoue/warehouse-swarm/pkg/wire"
)

// KindHop tags gradient values in exports
const KindHop wire.Kind = 0x20

func init() {
	wire.Register(KindHop, appendHop, readHop)
}

func appendHop(b []byte, h hop) []byte {
	b = msgp.AppendArrayHeader(b, 2)
	b = msgp.AppendFloat64(b, h.Dist)
	return msgp.AppendUint32(b, uint32(h.Root))
}

func readHop(b []byte) (hop, []byte, error) {
	var h hop
	sz, b, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil {
		return h, nil, err
	}
	if sz != 2 {
		return h, nil, msgp.ArrayError{Wanted: 2, Got: sz}
	}
	if h.Dist, b, err = msgp.ReadFloat64Bytes(b); err != nil {
		return h, nil, err
	}
	var root uint32
	if root, b, err = msgp.ReadUint32Bytes(b); err != nil {
		return h, nil, err
	}
	h.Root = aggregate.DeviceID(root)
	return h, b, nil
}
