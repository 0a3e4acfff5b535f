package fpu

import (
	"github.com/pkg/errors"

	"github.com/xtcorn/xtcorn/go/models/cpu"
)

// Machine is the guest CPU as seen from a trap handler.
type Machine interface {
	Memory
	RegRead(reg int) (uint64, error)
	RegWrite(reg int, val uint64) error
}

// SegmentOverrider is implemented by machines that track an active segment
// prefix for the trapped instruction. The returned register is a segment
// register enum from the same RegMap.
type SegmentOverrider interface {
	SegmentOverride() (reg int, ok bool)
}

// RegMap names the register enums of the backing CPU, so this package never
// depends on a particular emulator's constants.
type RegMap struct {
	AX, BX, SI, DI, BP, SP int
	CS, DS, SS, ES         int
}

func readReg(m Machine, reg int) (uint16, error) {
	v, err := m.RegRead(reg)
	if err != nil {
		return 0, errors.Wrapf(err, "reading register %d", reg)
	}
	return uint16(v), nil
}

// ReadWord reads a little-endian word at a, wrapping inside the segment.
func ReadWord(m Memory, a cpu.SegOfs) (uint16, error) {
	p, err := read(m, a, 2)
	if err != nil {
		return 0, err
	}
	return le.Uint16(p), nil
}

func WriteWord(m Memory, a cpu.SegOfs, v uint16) error {
	var p [2]byte
	le.PutUint16(p[:], v)
	return write(m, a, p[:])
}

// stackTop is SS:SP, where the trap's IRET frame starts.
func stackTop(m Machine, regs RegMap) (cpu.SegOfs, error) {
	ss, err := readReg(m, regs.SS)
	if err != nil {
		return cpu.SegOfs{}, err
	}
	sp, err := readReg(m, regs.SP)
	if err != nil {
		return cpu.SegOfs{}, err
	}
	return cpu.SegOfs{Seg: ss, Off: sp}, nil
}

// ReturnAddress reads the CS:IP the trap will return to.
func ReturnAddress(m Machine, regs RegMap) (cpu.SegOfs, error) {
	top, err := stackTop(m, regs)
	if err != nil {
		return cpu.SegOfs{}, err
	}
	ip, err := ReadWord(m, top)
	if err != nil {
		return cpu.SegOfs{}, err
	}
	cs, err := ReadWord(m, top.Add(2))
	if err != nil {
		return cpu.SegOfs{}, err
	}
	return cpu.SegOfs{Seg: cs, Off: ip}, nil
}

// SkipReturn advances the saved return IP by n bytes, so the guest resumes
// after operand bytes that were never fetched as instructions.
func SkipReturn(m Machine, regs RegMap, n int) error {
	top, err := stackTop(m, regs)
	if err != nil {
		return err
	}
	ip, err := ReadWord(m, top)
	if err != nil {
		return err
	}
	return WriteWord(m, top, ip+uint16(n))
}
