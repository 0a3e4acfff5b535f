package x86_16

import (
	"github.com/pkg/errors"
	uc "github.com/unicorn-engine/unicorn/bindings/go/unicorn"

	"github.com/xtcorn/xtcorn/go/fpu"
	"github.com/xtcorn/xtcorn/go/models/cpu"
)

const (
	flagCarry = 1 << 0
	flagZero  = 1 << 6
	flagIntr  = 1 << 9
)

func readRegs(m fpu.Machine, enums ...int) ([]uint16, error) {
	vals := make([]uint16, len(enums))
	for i, e := range enums {
		v, err := m.RegRead(e)
		if err != nil {
			return nil, errors.Wrapf(err, "reading register %d", e)
		}
		vals[i] = uint16(v)
	}
	return vals, nil
}

func stackTop(m fpu.Machine) (cpu.SegOfs, error) {
	v, err := readRegs(m, uc.X86_REG_SS, uc.X86_REG_SP)
	if err != nil {
		return cpu.SegOfs{}, err
	}
	return cpu.SegOfs{Seg: v[0], Off: v[1]}, nil
}

// PushFrame does the stack half of a real-mode INT: FLAGS, CS and IP are
// pushed, IP already pointing past the INT instruction. The interrupt hook
// fires without doing this, and handlers expect the frame at SS:SP.
func PushFrame(m fpu.Machine) error {
	v, err := readRegs(m, uc.X86_REG_SS, uc.X86_REG_SP, uc.X86_REG_IP, uc.X86_REG_CS, uc.X86_REG_EFLAGS)
	if err != nil {
		return err
	}
	top := cpu.SegOfs{Seg: v[0], Off: v[1] - 6}
	for i, w := range []uint16{v[2], v[3], v[4]} {
		if err := fpu.WriteWord(m, top.Add(i*2), w); err != nil {
			return errors.Wrap(err, "pushing interrupt frame")
		}
	}
	return m.RegWrite(uc.X86_REG_SP, uint64(top.Off))
}

// PopFrame is IRET.
func PopFrame(m fpu.Machine) error {
	top, err := stackTop(m)
	if err != nil {
		return err
	}
	var frame [3]uint16
	for i := range frame {
		if frame[i], err = fpu.ReadWord(m, top.Add(i*2)); err != nil {
			return errors.Wrap(err, "popping interrupt frame")
		}
	}
	writes := []struct {
		reg int
		val uint16
	}{
		{uc.X86_REG_IP, frame[0]},
		{uc.X86_REG_CS, frame[1]},
		{uc.X86_REG_EFLAGS, frame[2]},
		{uc.X86_REG_SP, top.Off + 6},
	}
	for _, w := range writes {
		if err := m.RegWrite(w.reg, uint64(w.val)); err != nil {
			return err
		}
	}
	return nil
}

// setFlag edits FLAGS in the interrupt frame, so the change survives IRET.
func setFlag(m fpu.Machine, mask uint16, on bool) error {
	top, err := stackTop(m)
	if err != nil {
		return err
	}
	a := top.Add(4)
	flags, err := fpu.ReadWord(m, a)
	if err != nil {
		return err
	}
	if on {
		flags |= mask
	} else {
		flags &^= mask
	}
	return fpu.WriteWord(m, a, flags)
}

func setCarry(m fpu.Machine, on bool) error {
	return setFlag(m, flagCarry, on)
}
