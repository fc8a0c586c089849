package warehouse

import (
	"github.com/tinylib/msgp/msgp"

	"github.com/heitortanoue/warehouse-swarm/pkg/aggregate"
	"github.com/heitortanoue/warehouse-swarm/pkg/state"
	"github.com/heitortanoue/warehouse-swarm/pkg/wire"
)

const (
	KindOffer wire.Kind = 0x50
	KindAck   wire.Kind = 0x51
	KindType  wire.Kind = 0x52
)

func init() {
	wire.Register(KindOffer, appendOffer, readOffer)
	wire.Register(KindAck, appendAck, readAck)
	wire.Register(KindType, func(b []byte, t state.DeviceType) []byte {
		return msgp.AppendUint8(b, uint8(t))
	}, func(b []byte) (state.DeviceType, []byte, error) {
		v, b, err := msgp.ReadUint8Bytes(b)
		return state.DeviceType(v), b, err
	})
}

func appendTriple(b []byte, id aggregate.DeviceID, g state.Goods, seq uint16) []byte {
	b = msgp.AppendArrayHeader(b, 3)
	b = msgp.AppendUint32(b, uint32(id))
	b = msgp.AppendUint8(b, uint8(g))
	return msgp.AppendUint16(b, seq)
}

func readTriple(b []byte) (aggregate.DeviceID, state.Goods, uint16, []byte, error) {
	sz, b, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil {
		return 0, 0, 0, nil, err
	}
	if sz != 3 {
		return 0, 0, 0, nil, msgp.ArrayError{Wanted: 3, Got: sz}
	}
	id, b, err := msgp.ReadUint32Bytes(b)
	if err != nil {
		return 0, 0, 0, nil, err
	}
	g, b, err := msgp.ReadUint8Bytes(b)
	if err != nil {
		return 0, 0, 0, nil, err
	}
	seq, b, err := msgp.ReadUint16Bytes(b)
	if err != nil {
		return 0, 0, 0, nil, err
	}
	return aggregate.DeviceID(id), state.Goods(g), seq, b, nil
}

func appendOffer(b []byte, o offer) []byte {
	return appendTriple(b, o.Target, o.Content, o.Seq)
}

func readOffer(b []byte) (offer, []byte, error) {
	id, g, seq, b, err := readTriple(b)
	return offer{Target: id, Content: g, Seq: seq}, b, err
}

func appendAck(b []byte, a ack) []byte {
	return appendTriple(b, a.Wearable, a.Content, a.Seq)
}

func readAck(b []byte) (ack, []byte, error) {
	id, g, seq, b, err := readTriple(b)
	return ack{Wearable: id, Content: g, Seq: seq}, b, err
}
