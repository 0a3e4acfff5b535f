package models

import (
	"fmt"
	"strings"

	"github.com/mgutz/ansi"
)

var chSame = ansi.ColorCode("default:default")
var chNew = ansi.ColorCode("default+bu:default")

// StatusDiff tracks register values between dumps.
type StatusDiff struct {
	Arch    *Arch
	oldRegs map[int]uint64
}

type Change struct {
	Old, New uint64
	Name     string
}

func (c *Change) Changed() bool {
	return c.Old != c.New
}

func (c *Change) String(color bool) string {
	val := fmt.Sprintf("%04x", c.New)
	if !c.Changed() {
		return fmt.Sprintf(" %5s 0x%s", c.Name, val)
	}
	if color {
		return fmt.Sprintf(" %5s 0x%s", c.Name, chNew+val+ansi.Reset)
	}
	return fmt.Sprintf("+%5s 0x%s", c.Name, val)
}

// Changes dumps r. With onlyChanged set, default registers that kept their
// value are left out.
func (s *StatusDiff) Changes(r RegReader, onlyChanged bool) ([]*Change, error) {
	regs, err := s.Arch.RegDump(r)
	if err != nil {
		return nil, err
	}
	cs := make([]*Change, 0, len(regs))
	for _, reg := range regs {
		var old uint64
		if s.oldRegs != nil {
			old = s.oldRegs[reg.Enum]
		}
		c := &Change{Old: old, New: reg.Val, Name: reg.Name}
		if !onlyChanged || c.Changed() {
			cs = append(cs, c)
		}
	}
	s.oldRegs = make(map[int]uint64, len(regs))
	for _, reg := range regs {
		s.oldRegs[reg.Enum] = reg.Val
	}
	return cs, nil
}

// FormatChanges lays changes out four to a row.
func FormatChanges(cs []*Change, color bool) string {
	var out []string
	for i := 0; i < len(cs); i += 4 {
		end := i + 4
		if end > len(cs) {
			end = len(cs)
		}
		row := make([]string, 0, 4)
		for _, c := range cs[i:end] {
			row = append(row, c.String(color))
		}
		out = append(out, strings.Join(row, " "))
	}
	return strings.Join(out, "\n")
}
