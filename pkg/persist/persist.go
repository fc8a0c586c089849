// Package persist stores a small named record that survives device restarts.
// Records are framed with a CRC16-CCITT trailer, big-endian, as written to the
// flash of the wearable hardware.
package persist

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// MaxRecord is the largest framed record, trailer included
const MaxRecord = 256

var (
	ErrNotFound = errors.New("persisted record not found")
	ErrCorrupt  = errors.New("persisted record failed CRC check")
	ErrTooLarge = errors.New("record exceeds flash round size")
)

// CRC16 computes the CRC-16/CCITT-FALSE checksum (poly 0x1021, init 0xffff)
func CRC16(data []byte) uint16 {
	crc := uint16(0xffff)
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

// Frame appends the CRC trailer to data
func Frame(data []byte) ([]byte, error) {
	if len(data)+2 > MaxRecord {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, len(data))
	}
	crc := CRC16(data)
	out := make([]byte, 0, len(data)+2)
	out = append(out, data...)
	return append(out, byte(crc>>8), byte(crc)), nil
}

// Unframe checks and strips the CRC trailer
func Unframe(b []byte) ([]byte, error) {
	if len(b) < 2 {
		return nil, ErrCorrupt
	}
	data := b[:len(b)-2]
	want := uint16(b[len(b)-2])<<8 | uint16(b[len(b)-1])
	if CRC16(data) != want {
		return nil, ErrCorrupt
	}
	return data, nil
}

// Store keeps records as files of a directory
type Store struct {
	dir string
}

// NewStore opens (creating it if needed) the directory of a store
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name+".rec")
}

// Save replaces the record called name
func (s *Store) Save(name string, data []byte) error {
	framed, err := Frame(data)
	if err != nil {
		return err
	}
	tmp := s.path(name) + ".tmp"
	if err := os.WriteFile(tmp, framed, 0o644); err != nil {
		return fmt.Errorf("write record %s: %w", name, err)
	}
	if err := os.Rename(tmp, s.path(name)); err != nil {
		return fmt.Errorf("commit record %s: %w", name, err)
	}
	return nil
}

// Load returns the record called name. A record failing its CRC check reads
// as empty together with ErrCorrupt.
func (s *Store) Load(name string) ([]byte, error) {
	b, err := os.ReadFile(s.path(name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read record %s: %w", name, err)
	}
	return Unframe(b)
}
