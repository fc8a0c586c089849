package spawn

import (
	"github.com/tinylib/msgp/msgp"

	"github.com/heitortanoue/warehouse-swarm/pkg/aggregate"
	"github.com/heitortanoue/warehouse-swarm/pkg/wire"
)

// KindKeys tags advertised process keys in exports
const KindKeys wire.Kind = 0x30

type wireKey struct {
	Source  aggregate.DeviceID
	Payload uint64
}

type keyList []wireKey

func init() {
	wire.Register(KindKeys, appendKeys, readKeys)
}

func appendKeys(b []byte, keys keyList) []byte {
	b = msgp.AppendArrayHeader(b, uint32(len(keys)))
	for _, k := range keys {
		b = msgp.AppendUint32(b, uint32(k.Source))
		b = msgp.AppendUint64(b, k.Payload)
	}
	return b
}

func readKeys(b []byte) (keyList, []byte, error) {
	n, b, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil || n == 0 {
		return nil, b, err
	}
	keys := make(keyList, n)
	for i := range keys {
		var src uint32
		if src, b, err = msgp.ReadUint32Bytes(b); err != nil {
			return nil, nil, err
		}
		keys[i].Source = aggregate.DeviceID(src)
		if keys[i].Payload, b, err = msgp.ReadUint64Bytes(b); err != nil {
			return nil, nil, err
		}
	}
	return keys, b, nil
}
