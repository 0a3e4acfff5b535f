package models

import (
	"sort"

	"github.com/lunixbochs/fvbommel-util/sortorder"

	"github.com/xtcorn/xtcorn/go/models/cpu"
)

type Reg struct {
	Enum    int
	Name    string
	Default bool
}

type RegVal struct {
	Reg
	Val uint64
}

type regList []Reg

func (r regList) Len() int           { return len(r) }
func (r regList) Swap(i, j int)      { r[i], r[j] = r[j], r[i] }
func (r regList) Less(i, j int) bool { return sortorder.NaturalLess(r[i].Name, r[j].Name) }

type Disassembler interface {
	Dis(mem []byte, addr uint64) ([]Ins, error)
}

type RegReader interface {
	RegRead(reg int) (uint64, error)
}

type Arch struct {
	Name string
	Bits int

	Cpu cpu.Builder
	Dis Disassembler

	PC, SP      int
	Regs        map[string]int
	DefaultRegs []string

	// sorted for RegDump
	regList regList
}

func (a *Arch) sortedRegs() regList {
	if a.regList == nil {
		defaults := make(map[string]bool, len(a.DefaultRegs))
		for _, name := range a.DefaultRegs {
			defaults[name] = true
		}
		rl := make(regList, 0, len(a.Regs))
		for name, enum := range a.Regs {
			rl = append(rl, Reg{Enum: enum, Name: name, Default: defaults[name]})
		}
		sort.Sort(rl)
		a.regList = rl
	}
	return a.regList
}

// RegDump reads every named register, in natural name order.
func (a *Arch) RegDump(r RegReader) ([]RegVal, error) {
	regs := a.sortedRegs()
	ret := make([]RegVal, len(regs))
	for i, reg := range regs {
		val, err := r.RegRead(reg.Enum)
		if err != nil {
			return nil, err
		}
		ret[i] = RegVal{reg, val}
	}
	return ret, nil
}
