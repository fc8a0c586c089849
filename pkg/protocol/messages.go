package protocol

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tinylib/msgp/msgp"

	"github.com/heitortanoue/warehouse-swarm/pkg/aggregate"
	"github.com/heitortanoue/warehouse-swarm/pkg/wire"
)

// Frame carries one round export over a real transport
type Frame struct {
	ID          uuid.UUID
	Sender      aggregate.DeviceID
	Incarnation uuid.UUID // changes on every device restart
	Round       uint64
	Position    aggregate.Vec3
	Payload     []byte // encoded export
}

const frameFields = 6

// NewFrame builds the frame of a round export
func NewFrame(sender aggregate.DeviceID, incarnation uuid.UUID, round uint64, position aggregate.Vec3, exp aggregate.Export) (*Frame, error) {
	payload, err := wire.EncodeExport(exp)
	if err != nil {
		return nil, fmt.Errorf("encode export of round %d: %w", round, err)
	}
	return &Frame{
		ID:          uuid.New(),
		Sender:      sender,
		Incarnation: incarnation,
		Round:       round,
		Position:    position,
		Payload:     payload,
	}, nil
}

// MarshalMsg appends the msgpack encoding of the frame to b
func (f *Frame) MarshalMsg(b []byte) ([]byte, error) {
	b = msgp.AppendArrayHeader(b, frameFields)
	b = msgp.AppendBytes(b, f.ID[:])
	b = msgp.AppendUint32(b, uint32(f.Sender))
	b = msgp.AppendBytes(b, f.Incarnation[:])
	b = msgp.AppendUint64(b, f.Round)
	b = wire.AppendVec3(b, f.Position)
	b = msgp.AppendBytes(b, f.Payload)
	return b, nil
}

// UnmarshalMsg decodes a frame and returns the remaining bytes
func (f *Frame) UnmarshalMsg(b []byte) ([]byte, error) {
	sz, b, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil {
		return nil, fmt.Errorf("frame header: %w", err)
	}
	if sz != frameFields {
		return nil, fmt.Errorf("frame header: %w", msgp.ArrayError{Wanted: frameFields, Got: sz})
	}
	if b, err = readUUID(b, &f.ID); err != nil {
		return nil, fmt.Errorf("frame id: %w", err)
	}
	var sender uint32
	if sender, b, err = msgp.ReadUint32Bytes(b); err != nil {
		return nil, fmt.Errorf("frame sender: %w", err)
	}
	f.Sender = aggregate.DeviceID(sender)
	if b, err = readUUID(b, &f.Incarnation); err != nil {
		return nil, fmt.Errorf("frame incarnation: %w", err)
	}
	if f.Round, b, err = msgp.ReadUint64Bytes(b); err != nil {
		return nil, fmt.Errorf("frame round: %w", err)
	}
	if f.Position, b, err = wire.ReadVec3Bytes(b); err != nil {
		return nil, fmt.Errorf("frame position: %w", err)
	}
	if f.Payload, b, err = msgp.ReadBytesBytes(b, nil); err != nil {
		return nil, fmt.Errorf("frame payload: %w", err)
	}
	return b, nil
}

// Msgsize returns an upper bound of the encoded size
func (f *Frame) Msgsize() int {
	return 1 + 2*(msgp.BytesPrefixSize+16) + msgp.Uint32Size + msgp.Uint64Size +
		msgp.ArrayHeaderSize + 3*msgp.Float64Size + msgp.BytesPrefixSize + len(f.Payload)
}

// Message decodes the export carried by the frame
func (f *Frame) Message(received time.Time) (aggregate.Message, error) {
	exp, _, err := wire.DecodeExport(f.Payload)
	if err != nil {
		return aggregate.Message{}, fmt.Errorf("frame %s from %d: %w", f.ID, f.Sender, err)
	}
	return aggregate.Message{
		From:     f.Sender,
		Position: f.Position,
		Export:   exp,
		Received: received,
	}, nil
}

func readUUID(b []byte, id *uuid.UUID) ([]byte, error) {
	raw, b, err := msgp.ReadBytesZC(b)
	if err != nil {
		return nil, err
	}
	if len(raw) != len(id) {
		return nil, fmt.Errorf("uuid of %d bytes", len(raw))
	}
	copy(id[:], raw)
	return b, nil
}

// EncodeFrame returns the encoding of a frame
func EncodeFrame(f *Frame) ([]byte, error) {
	return f.MarshalMsg(make([]byte, 0, f.Msgsize()))
}

// DecodeFrame parses a frame received from the transport
func DecodeFrame(data []byte) (*Frame, error) {
	f := &Frame{}
	if _, err := f.UnmarshalMsg(data); err != nil {
		return nil, err
	}
	return f, nil
}
