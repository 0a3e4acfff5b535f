package fpu

import (
	"fmt"

	"github.com/xtcorn/xtcorn/go/models/cpu"
)

// Operand is a decoded ModRM descriptor.
type Operand struct {
	Mod, Op, RM uint8
	// Addr is the effective address, only meaningful when IsMemory.
	Addr cpu.SegOfs
	// Skip is the descriptor byte plus any displacement bytes.
	Skip int
}

func (o Operand) IsMemory() bool {
	return o.Mod != 3
}

func (o Operand) String() string {
	if !o.IsMemory() {
		return fmt.Sprintf("ST(%d)", o.RM)
	}
	return "[" + o.Addr.String() + "]"
}

// base returns the base and index registers for a memory rm field.
func (r RegMap) base(rm uint8) []int {
	switch rm {
	case 0:
		return []int{r.BX, r.SI}
	case 1:
		return []int{r.BX, r.DI}
	case 2:
		return []int{r.BP, r.SI}
	case 3:
		return []int{r.BP, r.DI}
	case 4:
		return []int{r.SI}
	case 5:
		return []int{r.DI}
	case 6:
		return []int{r.BP}
	default:
		return []int{r.BX}
	}
}

// Decode reads the ModRM descriptor at at, following 16-bit addressing rules.
// BP based forms default to SS, everything else (including the mod=0 rm=6
// direct address) to DS, and an active segment override always wins.
func Decode(m Machine, regs RegMap, at cpu.SegOfs) (Operand, error) {
	p, err := read(m, at, 1)
	if err != nil {
		return Operand{}, err
	}
	modrm := p[0]
	o := Operand{
		Mod:  modrm >> 6,
		Op:   (modrm >> 3) & 7,
		RM:   modrm & 7,
		Skip: 1,
	}
	if !o.IsMemory() {
		return o, nil
	}

	var off uint16
	seg := regs.DS
	direct := o.Mod == 0 && o.RM == 6
	switch {
	case direct:
		d, err := ReadWord(m, at.Add(1))
		if err != nil {
			return Operand{}, err
		}
		off = d
		o.Skip += 2
	case o.Mod == 1:
		d, err := read(m, at.Add(1), 1)
		if err != nil {
			return Operand{}, err
		}
		off = uint16(int8(d[0]))
		o.Skip++
	case o.Mod == 2:
		d, err := ReadWord(m, at.Add(1))
		if err != nil {
			return Operand{}, err
		}
		off = d
		o.Skip += 2
	}
	if !direct {
		for _, reg := range regs.base(o.RM) {
			v, err := readReg(m, reg)
			if err != nil {
				return Operand{}, err
			}
			off += v
		}
		if o.RM == 2 || o.RM == 3 || o.RM == 6 {
			seg = regs.SS
		}
	}
	if so, ok := m.(SegmentOverrider); ok {
		if reg, active := so.SegmentOverride(); active {
			seg = reg
		}
	}
	segVal, err := readReg(m, seg)
	if err != nil {
		return Operand{}, err
	}
	o.Addr = cpu.SegOfs{Seg: segVal, Off: off}
	return o, nil
}
