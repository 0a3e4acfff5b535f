// Package fpu emulates the x87 co-processor for programs linked against the
// Microsoft floating-point emulator library. The linker replaces each
// "FWAIT; ESC" pair with an INT 34h..3Bh instruction, so every FP instruction
// arrives here as a software interrupt whose ModRM and displacement bytes sit
// at the interrupt's return address.
package fpu

import (
	"github.com/pkg/errors"

	"github.com/xtcorn/xtcorn/go/models/cpu"
)

// Trap vectors. INT 34h..3Bh stand for ESC D8..DF in order.
const (
	VectorD8       = 0x34
	VectorDF       = 0x3b
	VectorOverride = 0x3c
	VectorWait     = 0x3d
)

// Emulator is the FPU of one emulated process.
type Emulator struct {
	Regs  RegMap
	Trace *Tracer

	st *Stack
}

func NewEmulator(regs RegMap) *Emulator {
	return &Emulator{Regs: regs, st: NewStack()}
}

func (e *Emulator) Stack() *Stack {
	return e.st
}

type handler func(e *Emulator, m Machine) error

var vectors = map[int]handler{
	VectorOverride: (*Emulator).segmentOverride,
	VectorWait:     (*Emulator).wait,
}

func init() {
	for i := 0; i < 8; i++ {
		esc := i
		vectors[VectorD8+i] = func(e *Emulator, m Machine) error {
			return e.primary(m, esc)
		}
	}
}

// Handles reports whether intno is one of the FP trap vectors.
func Handles(intno int) bool {
	_, ok := vectors[intno]
	return ok
}

// Interrupt services FP trap intno. The guest's IRET frame (IP, CS, FLAGS)
// must already be on the stack at SS:SP.
func (e *Emulator) Interrupt(m Machine, intno int) error {
	h, ok := vectors[intno]
	if !ok {
		return errors.Errorf("interrupt %#02x is not an FP trap", intno)
	}
	return h(e, m)
}

func (e *Emulator) primary(m Machine, esc int) error {
	ret, err := ReturnAddress(m, e.Regs)
	if err != nil {
		return err
	}
	return e.execute(m, esc, ret, 0)
}

// segmentOverride is INT 3Ch: the ESC opcode byte itself follows the trap,
// then the descriptor. Only the low three bits of that byte select the table.
func (e *Emulator) segmentOverride(m Machine) error {
	ret, err := ReturnAddress(m, e.Regs)
	if err != nil {
		return err
	}
	p, err := read(m, ret, 1)
	if err != nil {
		return err
	}
	return e.execute(m, int(p[0]&7), ret.Add(1), 1)
}

// wait is FWAIT, which has no operand bytes.
func (e *Emulator) wait(m Machine) error {
	if e.Trace != nil {
		e.Trace.Wait(e.st)
	}
	return nil
}

func (e *Emulator) execute(m Machine, esc int, at cpu.SegOfs, extra int) error {
	operand, err := Decode(m, e.Regs, at)
	if err != nil {
		return errors.Wrapf(err, "decoding ESC %02X operand at %s", 0xd8+esc, at)
	}
	o := escapes[esc].lookup(operand)
	if o.fn != nil {
		t := &trap{m: m, regs: e.Regs, st: e.st, op: operand}
		if err := o.fn(t); err != nil {
			return errors.Wrapf(err, "%s", o.name)
		}
	}
	if e.Trace != nil {
		e.Trace.Op(m, esc, at, operand, o.name, e.st)
	}
	return SkipReturn(m, e.Regs, extra+operand.Skip)
}
