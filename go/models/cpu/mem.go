package cpu

import (
	"encoding/binary"
	"fmt"

	"github.com/pkg/errors"
)

type MemError struct {
	Addr uint64
	Size int
	Enum int
}

func (m *MemError) Error() string {
	reason := "memory error"
	switch m.Enum {
	case MEM_WRITE_UNMAPPED:
		reason = "write outside address space"
	case MEM_READ_UNMAPPED:
		reason = "read outside address space"
	}
	return fmt.Sprintf("%s at %#x(%d)", reason, m.Addr, m.Size)
}

// Mem is a flat real-mode address space conforming to the memory half of Cpu.
// There is no paging or protection in real mode, so MemMapProt only checks bounds.
// Accesses running past the top of memory wrap to address 0.
type Mem struct {
	data []byte
}

func NewMem() *Mem {
	return &Mem{data: make([]byte, RealModeSize)}
}

func (m *Mem) MemMapProt(addr, size uint64, prot int) error {
	if addr+size > RealModeSize {
		return errors.New("region outside memory range")
	}
	return nil
}

func (m *Mem) MemReadInto(p []byte, addr uint64) error {
	if addr >= RealModeSize || len(p) > RealModeSize {
		return &MemError{Addr: addr, Size: len(p), Enum: MEM_READ_UNMAPPED}
	}
	n := copy(p, m.data[addr:])
	copy(p[n:], m.data)
	return nil
}

func (m *Mem) MemRead(addr, size uint64) ([]byte, error) {
	p := make([]byte, size)
	if err := m.MemReadInto(p, addr); err != nil {
		return nil, err
	}
	return p, nil
}

func (m *Mem) MemWrite(addr uint64, p []byte) error {
	if addr >= RealModeSize || len(p) > RealModeSize {
		return &MemError{Addr: addr, Size: len(p), Enum: MEM_WRITE_UNMAPPED}
	}
	n := copy(m.data[addr:], p)
	copy(m.data, p[n:])
	return nil
}

// ReadWord reads a little-endian word at a. The high byte wraps inside the segment.
func (m *Mem) ReadWord(a SegOfs) (uint16, error) {
	lo, err := m.MemRead(a.Linear(), 1)
	if err != nil {
		return 0, err
	}
	hi, err := m.MemRead(a.Add(1).Linear(), 1)
	if err != nil {
		return 0, err
	}
	return uint16(lo[0]) | uint16(hi[0])<<8, nil
}

func (m *Mem) WriteWord(a SegOfs, val uint16) error {
	if err := m.MemWrite(a.Linear(), []byte{byte(val)}); err != nil {
		return err
	}
	return m.MemWrite(a.Add(1).Linear(), []byte{byte(val >> 8)})
}

func (m *Mem) ReadUint(addr uint64, size int) (uint64, error) {
	if size > 8 {
		return 0, errors.Errorf("ReadUint size too large: %d > 8", size)
	}
	p, err := m.MemRead(addr, uint64(size))
	if err != nil {
		return 0, err
	}
	var buf [8]byte
	copy(buf[:], p)
	return binary.LittleEndian.Uint64(buf[:]), nil
}

func (m *Mem) WriteUint(addr uint64, size int, val uint64) error {
	if size > 8 {
		return errors.Errorf("WriteUint size too large: %d > 8", size)
	}
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], val)
	return m.MemWrite(addr, buf[:size])
}
