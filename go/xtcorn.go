package xtcorn

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	uc "github.com/unicorn-engine/unicorn/bindings/go/unicorn"

	"github.com/xtcorn/xtcorn/go/arch/x86_16"
	"github.com/xtcorn/xtcorn/go/fpu"
	"github.com/xtcorn/xtcorn/go/loader"
	"github.com/xtcorn/xtcorn/go/models"
	"github.com/xtcorn/xtcorn/go/models/cpu"
)

const (
	// initial SP inside the PSP segment, with a zero word pushed so a near
	// RET lands on the INT 20h at PSP:0000
	stackTop   = 0xfffe
	initFlags  = 0x0202
	runForever = 0xffffffffffffffff
)

// Xtcorn runs one .COM program on a unicorn CPU.
type Xtcorn struct {
	cpu.Cpu

	arch   *models.Arch
	config *models.Config
	loader *loader.ComLoader
	kernel *x86_16.DosKernel
	status models.StatusDiff

	// set by an interrupt that ended emulation
	exitErr error
}

func NewXtcorn(l *loader.ComLoader, config *models.Config) (*Xtcorn, error) {
	config = config.Init()
	c, err := x86_16.Arch.Cpu.New()
	if err != nil {
		return nil, err
	}
	u := &Xtcorn{
		Cpu:    c,
		arch:   x86_16.Arch,
		config: config,
		loader: l,
		status: models.StatusDiff{Arch: x86_16.Arch},
	}
	if err := u.MemMapProt(0, cpu.RealModeSize, cpu.PROT_ALL); err != nil {
		return nil, errors.Wrap(err, "failed to map address space")
	}
	if err := u.mapBinary(); err != nil {
		return nil, err
	}

	k := x86_16.NewKernel(x86_16.NewConsole(config.Stdin, config.Stdout), l.PSPSegment)
	if config.TraceSys {
		k.Trace, k.Color = config.Output, config.Color
	}
	if config.TraceFP {
		k.FPU.Trace = &fpu.Tracer{W: config.Output, Color: config.Color}
		if config.TraceDis {
			k.FPU.Trace.Dis = x86_16.Dis.Render
		}
	}
	u.kernel = k
	return u, nil
}

func (u *Xtcorn) Kernel() *x86_16.DosKernel {
	return u.kernel
}

func (u *Xtcorn) mapBinary() error {
	segments, err := u.loader.Segments()
	if err != nil {
		return errors.Wrap(err, "failed to get segments from loader")
	}
	for _, seg := range segments {
		data, err := seg.Data()
		if err != nil {
			return errors.Wrap(err, "failed to read segment data")
		}
		if err := u.MemWrite(seg.Addr, data); err != nil {
			return errors.Wrapf(err, "failed to write segment data at %#x", seg.Addr)
		}
	}
	return nil
}

func (u *Xtcorn) setupRegs() error {
	seg := uint64(u.loader.PSPSegment)
	regs := []struct {
		enum int
		val  uint64
	}{
		{uc.X86_REG_CS, seg},
		{uc.X86_REG_DS, seg},
		{uc.X86_REG_ES, seg},
		{uc.X86_REG_SS, seg},
		{uc.X86_REG_SP, stackTop},
		{uc.X86_REG_EFLAGS, initFlags},
		{uc.X86_REG_IP, loader.ComEntry},
	}
	for _, r := range regs {
		if err := u.RegWrite(r.enum, r.val); err != nil {
			return errors.Wrapf(err, "failed to set register %d", r.enum)
		}
	}
	ret := cpu.SegOfs{Seg: u.loader.PSPSegment, Off: stackTop}
	return u.MemWrite(ret.Linear(), []byte{0, 0})
}

// Run starts the program and returns when it exits. A DOS exit comes back as
// a models.ExitStatus.
func (u *Xtcorn) Run() error {
	if err := u.setupRegs(); err != nil {
		return err
	}
	if _, err := u.HookAdd(cpu.HOOK_INTR, func(_ cpu.Cpu, intno uint32) {
		u.interrupt(int(intno))
	}, 1, 0); err != nil {
		return errors.Wrap(err, "failed to hook interrupts")
	}
	if u.config.Verbose {
		if err := u.printEntry(); err != nil {
			return err
		}
	}
	// unicorn takes a linear begin address in 16-bit mode
	err := u.Start(u.loader.Entry(), runForever)
	if u.exitErr != nil {
		return u.exitErr
	}
	return errors.Wrap(err, "emulation failed")
}

func (u *Xtcorn) interrupt(intno int) {
	if err := u.service(intno); err != nil {
		u.exitErr = err
		u.Stop()
	}
}

func (u *Xtcorn) service(intno int) error {
	if !u.kernel.Handles(intno) {
		ip, _ := u.RegRead(uc.X86_REG_IP)
		cs, _ := u.RegRead(uc.X86_REG_CS)
		return errors.Errorf("unhandled interrupt %#02x at %04X:%04X", intno, cs, ip-2)
	}
	if err := x86_16.PushFrame(u); err != nil {
		return err
	}
	if err := u.kernel.Interrupt(u, intno); err != nil {
		return err
	}
	if err := x86_16.PopFrame(u); err != nil {
		return err
	}
	if u.config.Verbose {
		changes, err := u.status.Changes(u, true)
		if err != nil {
			return err
		}
		if len(changes) > 0 {
			fmt.Fprintf(u.config.Output, "INT %02Xh\n%s\n", intno, models.FormatChanges(changes, u.config.Color))
		}
	}
	return nil
}

func (u *Xtcorn) printEntry() error {
	out := u.config.Output
	entry := u.loader.Entry()
	fmt.Fprintf(out, "[entry point @ %04X:%04X]\n", u.loader.PSPSegment, loader.ComEntry)
	mem, err := u.MemRead(entry, 32)
	if err != nil {
		return err
	}
	dis, err := u.arch.Dis.Dis(mem, loader.ComEntry)
	if err != nil {
		fmt.Fprintln(out, err)
	}
	for _, ins := range dis {
		fmt.Fprintf(out, "  %04x: %s\n", ins.Addr(), strings.TrimSpace(ins.Mnemonic()+" "+ins.OpStr()))
	}
	changes, err := u.status.Changes(u, false)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, models.FormatChanges(changes, u.config.Color))
	fmt.Fprintln(out, "=====================================")
	fmt.Fprintln(out, "==== Program output begins here. ====")
	fmt.Fprintln(out, "=====================================")
	return nil
}
