package wire

import (
	"github.com/tinylib/msgp/msgp"

	"github.com/heitortanoue/warehouse-swarm/pkg/aggregate"
)

// Kinds of the builtin value types. Packages defining their own exported types
// register them from 0x20 upward.
const (
	KindBool Kind = iota + 1
	KindUint8
	KindUint16
	KindUint32
	KindUint64
	KindInt
	KindInt64
	KindFloat64
	KindString
	KindDeviceID
	KindVec3
	KindDuration
)

func init() {
	Register(KindBool, msgp.AppendBool, msgp.ReadBoolBytes)
	Register(KindUint8, msgp.AppendUint8, msgp.ReadUint8Bytes)
	Register(KindUint16, msgp.AppendUint16, msgp.ReadUint16Bytes)
	Register(KindUint32, msgp.AppendUint32, msgp.ReadUint32Bytes)
	Register(KindUint64, msgp.AppendUint64, msgp.ReadUint64Bytes)
	Register(KindInt, msgp.AppendInt, msgp.ReadIntBytes)
	Register(KindInt64, msgp.AppendInt64, msgp.ReadInt64Bytes)
	Register(KindFloat64, msgp.AppendFloat64, msgp.ReadFloat64Bytes)
	Register(KindString, msgp.AppendString, msgp.ReadStringBytes)
	Register(KindDeviceID, AppendDeviceID, ReadDeviceIDBytes)
	Register(KindVec3, AppendVec3, ReadVec3Bytes)
	Register(KindDuration, msgp.AppendDuration, msgp.ReadDurationBytes)
}

// AppendDeviceID appends a device id
func AppendDeviceID(b []byte, id aggregate.DeviceID) []byte {
	return msgp.AppendUint32(b, uint32(id))
}

// ReadDeviceIDBytes reads a device id
func ReadDeviceIDBytes(b []byte) (aggregate.DeviceID, []byte, error) {
	v, b, err := msgp.ReadUint32Bytes(b)
	return aggregate.DeviceID(v), b, err
}

// AppendVec3 appends a position as an array of three floats
func AppendVec3(b []byte, v aggregate.Vec3) []byte {
	b = msgp.AppendArrayHeader(b, 3)
	for _, c := range v {
		b = msgp.AppendFloat64(b, c)
	}
	return b
}

// ReadVec3Bytes reads a position
func ReadVec3Bytes(b []byte) (aggregate.Vec3, []byte, error) {
	var v aggregate.Vec3
	sz, b, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil {
		return v, nil, err
	}
	if sz != 3 {
		return v, nil, msgp.ArrayError{Wanted: 3, Got: sz}
	}
	for i := range v {
		if v[i], b, err = msgp.ReadFloat64Bytes(b); err != nil {
			return v, nil, err
		}
	}
	return v, b, nil
}
