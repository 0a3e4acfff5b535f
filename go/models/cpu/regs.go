package cpu

import (
	"github.com/pkg/errors"
)

// Alias describes a register that is a bit field of another, like AL and AH inside AX.
type Alias struct {
	Parent int
	Shift  uint
	Bits   uint
}

func (a Alias) mask() uint64 {
	return ^uint64(0) >> (64 - a.Bits)
}

// implements register and context methods conforming to cpu.Cpu
type Regs struct {
	mask    uint64
	vals    map[int]uint64
	aliases map[int]Alias
}

func NewRegs(bits uint, enums []int) *Regs {
	r := &Regs{
		mask:    ^uint64(0) >> (64 - bits),
		vals:    make(map[int]uint64),
		aliases: make(map[int]Alias),
	}
	for _, e := range enums {
		r.vals[e] = 0
	}
	return r
}

// Alias registers enum as a view onto part of another register.
func (r *Regs) Alias(enum int, a Alias) error {
	if _, ok := r.vals[a.Parent]; !ok {
		return errors.Errorf("alias parent %d is not a register", a.Parent)
	}
	if a.Bits == 0 || a.Shift+a.Bits > 64 {
		return errors.Errorf("bad alias field %d:%d", a.Shift, a.Bits)
	}
	r.aliases[enum] = a
	return nil
}

func (r *Regs) RegRead(enum int) (uint64, error) {
	if a, ok := r.aliases[enum]; ok {
		return (r.vals[a.Parent] >> a.Shift) & a.mask(), nil
	}
	if val, ok := r.vals[enum]; !ok {
		return 0, errors.Errorf("invalid register %d", enum)
	} else {
		return val, nil
	}
}

func (r *Regs) RegWrite(enum int, val uint64) error {
	if a, ok := r.aliases[enum]; ok {
		m := a.mask()
		parent := r.vals[a.Parent]&^(m<<a.Shift) | (val&m)<<a.Shift
		r.vals[a.Parent] = parent & r.mask
		return nil
	}
	if _, ok := r.vals[enum]; !ok {
		return errors.Errorf("invalid register %d", enum)
	}
	r.vals[enum] = val & r.mask
	return nil
}

func (r *Regs) ContextSave(reuse interface{}) (interface{}, error) {
	var m map[int]uint64
	if reuse != nil {
		var ok bool
		if m, ok = reuse.(map[int]uint64); !ok {
			return nil, errors.New("incorrect context type")
		}
	} else {
		m = make(map[int]uint64)
	}
	for k, v := range r.vals {
		m[k] = v
	}
	return m, nil
}

func (r *Regs) ContextRestore(ctx interface{}) error {
	if m, ok := ctx.(map[int]uint64); !ok {
		return errors.New("incorrect context type")
	} else {
		for k, v := range m {
			r.vals[k] = v
		}
		return nil
	}
}
