package fpu

import (
	"fmt"
	"io"
	"strings"

	"github.com/mgutz/ansi"

	"github.com/xtcorn/xtcorn/go/models/cpu"
)

var (
	chOp   = ansi.ColorCode("cyan+b")
	chAddr = ansi.ColorCode("yellow")
	chDim  = ansi.ColorCode("default+h")
)

// Tracer prints one line per trapped FP instruction.
type Tracer struct {
	W     io.Writer
	Color bool
	// Dis optionally renders the reconstructed ESC instruction bytes.
	Dis func(code []byte, addr uint64) (string, error)
}

func (t *Tracer) color(s, code string) string {
	if !t.Color {
		return s
	}
	return code + s + ansi.Reset
}

func (t *Tracer) state(st *Stack) string {
	return t.color(fmt.Sprintf("ST0=%.6g ST1=%.6g TOP=%d SW=%04X",
		st.ST(0), st.ST(1), st.Top(), st.StatusWord()), chDim)
}

func (t *Tracer) Op(m Memory, esc int, at cpu.SegOfs, o Operand, name string, st *Stack) {
	if name == "" {
		name = fmt.Sprintf("reg=%d rm=%d", o.Op, o.RM)
	}
	var operand string
	if o.IsMemory() {
		operand = t.color(o.String(), chAddr)
	}
	line := []string{
		fmt.Sprintf("[FP] %s", at),
		fmt.Sprintf("%02X", 0xd8+esc),
		t.color(name, chOp),
	}
	if operand != "" {
		line = append(line, operand)
	}
	if t.Dis != nil {
		if code, err := read(m, at, o.Skip); err == nil {
			code = append([]byte{byte(0xd8 + esc)}, code...)
			if dis, err := t.Dis(code, at.Linear()); err == nil {
				line = append(line, "("+dis+")")
			}
		}
	}
	line = append(line, t.state(st))
	fmt.Fprintln(t.W, strings.Join(line, " "))
}

func (t *Tracer) Wait(st *Stack) {
	fmt.Fprintf(t.W, "[FP] %s %s\n", t.color("FWAIT", chOp), t.state(st))
}
