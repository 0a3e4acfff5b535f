package x86_16

import (
	"fmt"
	"io"

	"github.com/mgutz/ansi"
	"github.com/pkg/errors"
	uc "github.com/unicorn-engine/unicorn/bindings/go/unicorn"

	"github.com/xtcorn/xtcorn/go/fpu"
	"github.com/xtcorn/xtcorn/go/models"
	"github.com/xtcorn/xtcorn/go/models/cpu"
)

const (
	// ArenaStart is the first segment handed out by AH=48h.
	ArenaStart = 0x3000
	arenaEnd   = 0xa000

	// one floppy, 80x25 colour, one serial port
	equipmentList = 0x0221
)

// DOS error codes returned in AX with carry set.
const (
	errInsufficientMemory = 0x08
)

var chSys = ansi.ColorCode("magenta")

type dosCall struct {
	name string
	fn   func(k *DosKernel, m fpu.Machine) error
}

var dosCalls = map[int]dosCall{
	0x00: {"terminate", (*DosKernel).terminate},
	0x01: {"char_in_echo", (*DosKernel).charInEcho},
	0x02: {"char_out", (*DosKernel).charOut},
	0x06: {"direct_console_io", (*DosKernel).directConsoleIO},
	0x07: {"char_in_raw", (*DosKernel).charIn},
	0x08: {"char_in", (*DosKernel).charIn},
	0x09: {"display", (*DosKernel).display},
	0x0B: {"input_status", (*DosKernel).inputStatus},
	0x0E: {"select_disk", (*DosKernel).selectDisk},
	0x19: {"current_drive", (*DosKernel).currentDrive},
	0x30: {"dos_version", (*DosKernel).dosVersion},
	0x33: {"break_check", (*DosKernel).nop},
	0x37: {"switch_char", (*DosKernel).switchChar},
	0x48: {"alloc", (*DosKernel).alloc},
	0x49: {"free", (*DosKernel).free},
	0x4A: {"resize", (*DosKernel).resize},
	0x4C: {"terminate_with_code", (*DosKernel).terminateWithCode},
	0x62: {"get_psp", (*DosKernel).getPSP},
}

type interrupt struct {
	name string
	fn   func(k *DosKernel, m fpu.Machine) error
}

var interrupts = map[int]interrupt{
	0x11: {"equipment", (*DosKernel).equipment},
	0x20: {"terminate", (*DosKernel).terminate},
	0x21: {"dos", (*DosKernel).int21},
}

// overrideSegments maps the top two bits of the ESC byte after INT 3Ch to the
// segment prefix the linker folded into it. An unmodified D8..DF byte
// therefore selects ES, not the instruction's default DS or SS. A prefix the
// CPU is already tracking wins over these bits.
var overrideSegments = [4]int{uc.X86_REG_DS, uc.X86_REG_SS, uc.X86_REG_CS, uc.X86_REG_ES}

// DosKernel is the state of one emulated DOS process. Handlers run with the
// INT frame (IP, CS, FLAGS) on the guest stack.
type DosKernel struct {
	FPU     *fpu.Emulator
	Console *Console
	PSP     uint16

	// Trace gets one line per DOS service call when set
	Trace io.Writer
	Color bool

	nextFree uint16
}

func NewKernel(console *Console, psp uint16) *DosKernel {
	return &DosKernel{
		FPU:      fpu.NewEmulator(FPURegs),
		Console:  console,
		PSP:      psp,
		nextFree: ArenaStart,
	}
}

// Handles reports whether the kernel services intno.
func (k *DosKernel) Handles(intno int) bool {
	_, ok := interrupts[intno]
	return ok || fpu.Handles(intno)
}

// Interrupt services intno. Process exit comes back as a models.ExitStatus.
func (k *DosKernel) Interrupt(m fpu.Machine, intno int) error {
	if fpu.Handles(intno) {
		if intno == fpu.VectorOverride {
			var err error
			if m, err = withOverride(m); err != nil {
				return err
			}
		}
		return k.FPU.Interrupt(m, intno)
	}
	h, ok := interrupts[intno]
	if !ok {
		return errors.Errorf("unhandled interrupt %#02x", intno)
	}
	if intno != 0x21 {
		k.trace("INT %02Xh %s", intno, h.name)
	}
	return h.fn(k, m)
}

func (k *DosKernel) trace(format string, a ...interface{}) {
	if k.Trace == nil {
		return
	}
	s := fmt.Sprintf(format, a...)
	if k.Color {
		s = chSys + s + ansi.Reset
	}
	fmt.Fprintln(k.Trace, "[DOS] "+s)
}

type overridden struct {
	fpu.Machine
	seg int
}

func (o overridden) SegmentOverride() (int, bool) {
	return o.seg, true
}

func withOverride(m fpu.Machine) (fpu.Machine, error) {
	if so, ok := m.(fpu.SegmentOverrider); ok {
		if _, active := so.SegmentOverride(); active {
			return m, nil
		}
	}
	ret, err := fpu.ReturnAddress(m, FPURegs)
	if err != nil {
		return nil, err
	}
	esc, err := m.MemRead(ret.Linear(), 1)
	if err != nil {
		return nil, errors.Wrap(err, "reading overridden ESC byte")
	}
	return overridden{m, overrideSegments[esc[0]>>6]}, nil
}

func regWrite(m fpu.Machine, reg int, val uint64) error {
	return errors.Wrapf(m.RegWrite(reg, val), "writing register %d", reg)
}

func (k *DosKernel) int21(m fpu.Machine) error {
	ah, err := m.RegRead(uc.X86_REG_AH)
	if err != nil {
		return err
	}
	call, ok := dosCalls[int(ah)]
	if !ok {
		return errors.Errorf("unhandled DOS function %#02x", ah)
	}
	k.trace("INT 21h AH=%02X %s", ah, call.name)
	return call.fn(k, m)
}

func (k *DosKernel) equipment(m fpu.Machine) error {
	return regWrite(m, uc.X86_REG_AX, equipmentList)
}

func (k *DosKernel) nop(m fpu.Machine) error {
	return nil
}

func (k *DosKernel) terminate(m fpu.Machine) error {
	return models.ExitStatus(0)
}

func (k *DosKernel) terminateWithCode(m fpu.Machine) error {
	code, err := m.RegRead(uc.X86_REG_AL)
	if err != nil {
		return err
	}
	return models.ExitStatus(code)
}

func (k *DosKernel) charIn(m fpu.Machine) error {
	key, err := k.Console.ReadKey()
	if err != nil {
		return err
	}
	return regWrite(m, uc.X86_REG_AL, uint64(key))
}

func (k *DosKernel) charInEcho(m fpu.Machine) error {
	key, err := k.Console.ReadKey()
	if err != nil {
		return err
	}
	if _, err := k.Console.Write([]byte{key}); err != nil {
		return err
	}
	return regWrite(m, uc.X86_REG_AL, uint64(key))
}

func (k *DosKernel) charOut(m fpu.Machine) error {
	dl, err := m.RegRead(uc.X86_REG_DL)
	if err != nil {
		return err
	}
	if _, err := k.Console.Write([]byte{byte(dl)}); err != nil {
		return err
	}
	return regWrite(m, uc.X86_REG_AL, dl)
}

// directConsoleIO writes DL, or with DL=FFh polls for input, which is never
// available.
func (k *DosKernel) directConsoleIO(m fpu.Machine) error {
	dl, err := m.RegRead(uc.X86_REG_DL)
	if err != nil {
		return err
	}
	if dl != 0xff {
		return k.charOut(m)
	}
	if err := setFlag(m, flagZero, true); err != nil {
		return err
	}
	return regWrite(m, uc.X86_REG_AL, 0)
}

// display writes the '$' terminated string at DS:DX.
func (k *DosKernel) display(m fpu.Machine) error {
	v, err := readRegs(m, uc.X86_REG_DS, uc.X86_REG_DX)
	if err != nil {
		return err
	}
	a := cpu.SegOfs{Seg: v[0], Off: v[1]}
	var out []byte
	for i := 0; ; i++ {
		if i > 0xffff {
			return errors.Errorf("unterminated string at %s", a)
		}
		c, err := m.MemRead(a.Add(i).Linear(), 1)
		if err != nil {
			return err
		}
		if c[0] == '$' {
			break
		}
		out = append(out, c[0])
	}
	if _, err := k.Console.Write(out); err != nil {
		return err
	}
	return regWrite(m, uc.X86_REG_AL, '$')
}

func (k *DosKernel) inputStatus(m fpu.Machine) error {
	return regWrite(m, uc.X86_REG_AL, 0)
}

// selectDisk ignores DL and reports drives A: to C:.
func (k *DosKernel) selectDisk(m fpu.Machine) error {
	return regWrite(m, uc.X86_REG_AL, 3)
}

func (k *DosKernel) currentDrive(m fpu.Machine) error {
	return regWrite(m, uc.X86_REG_AL, 2)
}

func (k *DosKernel) dosVersion(m fpu.Machine) error {
	for _, w := range []struct {
		reg int
		val uint64
	}{
		// 6.22, major in AL
		{uc.X86_REG_AX, 0x1606},
		{uc.X86_REG_BX, 0},
		{uc.X86_REG_CX, 0},
	} {
		if err := regWrite(m, w.reg, w.val); err != nil {
			return err
		}
	}
	return nil
}

func (k *DosKernel) switchChar(m fpu.Machine) error {
	if err := regWrite(m, uc.X86_REG_AL, 0); err != nil {
		return err
	}
	return regWrite(m, uc.X86_REG_DL, '/')
}

// alloc hands out BX paragraphs from a bump arena. Blocks are never reused.
func (k *DosKernel) alloc(m fpu.Machine) error {
	bx, err := m.RegRead(uc.X86_REG_BX)
	if err != nil {
		return err
	}
	paras := uint32(bx)
	if uint32(k.nextFree)+paras > arenaEnd {
		k.trace("alloc %#x paragraphs: only %#x free", paras, arenaEnd-uint32(k.nextFree))
		if err := regWrite(m, uc.X86_REG_AX, errInsufficientMemory); err != nil {
			return err
		}
		if err := regWrite(m, uc.X86_REG_BX, uint64(arenaEnd-uint32(k.nextFree))); err != nil {
			return err
		}
		return setCarry(m, true)
	}
	k.trace("alloc %#x paragraphs at %04X", paras, k.nextFree)
	if err := regWrite(m, uc.X86_REG_AX, uint64(k.nextFree)); err != nil {
		return err
	}
	k.nextFree += uint16(paras)
	return setCarry(m, false)
}

// free and resize always succeed, the program already owns all memory.
func (k *DosKernel) free(m fpu.Machine) error {
	return setCarry(m, false)
}

func (k *DosKernel) resize(m fpu.Machine) error {
	return setCarry(m, false)
}

func (k *DosKernel) getPSP(m fpu.Machine) error {
	return regWrite(m, uc.X86_REG_BX, uint64(k.PSP))
}
