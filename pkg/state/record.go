package state

import (
	"fmt"

	"github.com/tinylib/msgp/msgp"
)

const recordFields = 4

// MarshalRecord encodes the part of the state that survives a restart: the
// pallet content and the pending intent and query of a wearable.
func (ds *DeviceState) MarshalRecord() []byte {
	ds.mutex.RLock()
	defer ds.mutex.RUnlock()

	b := msgp.AppendArrayHeader(nil, recordFields)
	b = msgp.AppendUint8(b, uint8(ds.s.Loaded))
	b = msgp.AppendUint8(b, uint8(ds.s.Loading))
	b = msgp.AppendUint16(b, ds.s.LoadingSeq)
	b = msgp.AppendUint8(b, uint8(ds.s.Query))
	return b
}

// RestoreRecord applies a record written by MarshalRecord
func (ds *DeviceState) RestoreRecord(b []byte) error {
	sz, b, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil {
		return fmt.Errorf("record header: %w", err)
	}
	if sz != recordFields {
		return fmt.Errorf("record has %d fields, want %d", sz, recordFields)
	}
	loaded, b, err := msgp.ReadUint8Bytes(b)
	if err != nil {
		return fmt.Errorf("record loaded: %w", err)
	}
	loading, b, err := msgp.ReadUint8Bytes(b)
	if err != nil {
		return fmt.Errorf("record loading: %w", err)
	}
	seq, b, err := msgp.ReadUint16Bytes(b)
	if err != nil {
		return fmt.Errorf("record loading seq: %w", err)
	}
	query, _, err := msgp.ReadUint8Bytes(b)
	if err != nil {
		return fmt.Errorf("record query: %w", err)
	}

	ds.Update(func(s *Snapshot) {
		s.Loaded = Goods(loaded)
		s.Loading = Goods(loading)
		s.LoadingSeq = seq
		s.Query = Goods(query)
	})
	return nil
}
