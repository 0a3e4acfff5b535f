package x86_16

import (
	cs "github.com/lunixbochs/capstr"
	uc "github.com/unicorn-engine/unicorn/bindings/go/unicorn"

	"github.com/xtcorn/xtcorn/go/cpu"
	"github.com/xtcorn/xtcorn/go/cpu/unicorn"
	"github.com/xtcorn/xtcorn/go/fpu"
	"github.com/xtcorn/xtcorn/go/models"
	mcpu "github.com/xtcorn/xtcorn/go/models/cpu"
)

var Dis = &cpu.Capstr{Arch: cs.ARCH_X86, Mode: cs.MODE_16}

var Arch = &models.Arch{
	Name: "x86_16",
	Bits: 16,

	Cpu: &unicorn.Builder{Arch: uc.ARCH_X86, Mode: uc.MODE_16},
	Dis: Dis,

	PC: uc.X86_REG_IP,
	SP: uc.X86_REG_SP,
	Regs: map[string]int{
		"ip": uc.X86_REG_IP,
		"sp": uc.X86_REG_SP,
		"bp": uc.X86_REG_BP,
		"ax": uc.X86_REG_AX,
		"bx": uc.X86_REG_BX,
		"cx": uc.X86_REG_CX,
		"dx": uc.X86_REG_DX,
		"si": uc.X86_REG_SI,
		"di": uc.X86_REG_DI,

		"flags": uc.X86_REG_EFLAGS,

		"cs": uc.X86_REG_CS,
		"ds": uc.X86_REG_DS,
		"es": uc.X86_REG_ES,
		"ss": uc.X86_REG_SS,
	},
	DefaultRegs: []string{
		"ax", "bx", "cx", "dx", "si", "di", "bp",
	},
}

// FPURegs hands the FP trap handlers this CPU's register enums.
var FPURegs = fpu.RegMap{
	AX: uc.X86_REG_AX,
	BX: uc.X86_REG_BX,
	SI: uc.X86_REG_SI,
	DI: uc.X86_REG_DI,
	BP: uc.X86_REG_BP,
	SP: uc.X86_REG_SP,
	CS: uc.X86_REG_CS,
	DS: uc.X86_REG_DS,
	SS: uc.X86_REG_SS,
	ES: uc.X86_REG_ES,
}

var halves = map[int]mcpu.Alias{
	uc.X86_REG_AL: {Parent: uc.X86_REG_AX, Bits: 8},
	uc.X86_REG_AH: {Parent: uc.X86_REG_AX, Shift: 8, Bits: 8},
	uc.X86_REG_BL: {Parent: uc.X86_REG_BX, Bits: 8},
	uc.X86_REG_BH: {Parent: uc.X86_REG_BX, Shift: 8, Bits: 8},
	uc.X86_REG_CL: {Parent: uc.X86_REG_CX, Bits: 8},
	uc.X86_REG_CH: {Parent: uc.X86_REG_CX, Shift: 8, Bits: 8},
	uc.X86_REG_DL: {Parent: uc.X86_REG_DX, Bits: 8},
	uc.X86_REG_DH: {Parent: uc.X86_REG_DX, Shift: 8, Bits: 8},
}

// NewMachine returns a CPU-less machine with this architecture's register
// file, including the 8-bit halves unicorn exposes natively.
func NewMachine() (*mcpu.Machine, error) {
	enums := make([]int, 0, len(Arch.Regs))
	for _, enum := range Arch.Regs {
		enums = append(enums, enum)
	}
	m := mcpu.NewMachine(enums)
	for enum, alias := range halves {
		if err := m.Alias(enum, alias); err != nil {
			return nil, err
		}
	}
	return m, nil
}
