package x86_16

import (
	"bytes"
	"strings"
	"testing"

	"github.com/pkg/errors"
	uc "github.com/unicorn-engine/unicorn/bindings/go/unicorn"

	"github.com/xtcorn/xtcorn/go/fpu"
	"github.com/xtcorn/xtcorn/go/models"
	"github.com/xtcorn/xtcorn/go/models/cpu"
)

const (
	testCS = 0x1000
	testIP = 0x0102
	testSS = 0x2000
	testSP = 0x0100
	testDS = 0x3000
)

type dosTest struct {
	t   *testing.T
	k   *DosKernel
	m   *cpu.Machine
	out bytes.Buffer
}

// newDosTest returns a machine that has just executed an INT at CS:0100,
// with code placed at the return address.
func newDosTest(t *testing.T, input string, code ...byte) *dosTest {
	m, err := NewMachine()
	if err != nil {
		t.Fatal(err)
	}
	d := &dosTest{t: t, m: m}
	d.k = NewKernel(&Console{In: strings.NewReader(input), Out: &d.out}, 0x0090)
	d.set(map[int]uint64{
		uc.X86_REG_CS: testCS, uc.X86_REG_IP: testIP,
		uc.X86_REG_SS: testSS, uc.X86_REG_SP: testSP,
		uc.X86_REG_DS: testDS, uc.X86_REG_EFLAGS: 0x0202,
	})
	if err := m.MemWrite(cpu.SegOfs{Seg: testCS, Off: testIP}.Linear(), code); err != nil {
		t.Fatal(err)
	}
	if err := PushFrame(m); err != nil {
		t.Fatal(err)
	}
	return d
}

func (d *dosTest) set(regs map[int]uint64) {
	for reg, val := range regs {
		if err := d.m.RegWrite(reg, val); err != nil {
			d.t.Fatal(err)
		}
	}
}

func (d *dosTest) reg(enum int) uint64 {
	v, err := d.m.RegRead(enum)
	if err != nil {
		d.t.Fatal(err)
	}
	return v
}

func (d *dosTest) int(intno int) error {
	return d.k.Interrupt(d.m, intno)
}

func (d *dosTest) call(ah uint64) {
	d.set(map[int]uint64{uc.X86_REG_AH: ah})
	if err := d.int(0x21); err != nil {
		d.t.Fatalf("AH=%02X: %v", ah, err)
	}
}

// iret pops the frame and returns the resulting flags.
func (d *dosTest) iret() uint64 {
	if err := PopFrame(d.m); err != nil {
		d.t.Fatal(err)
	}
	return d.reg(uc.X86_REG_EFLAGS)
}

func TestFrame(t *testing.T) {
	d := newDosTest(t, "")
	if sp := d.reg(uc.X86_REG_SP); sp != testSP-6 {
		t.Fatalf("SP after push = %#x", sp)
	}
	ret, err := fpu.ReturnAddress(d.m, FPURegs)
	if err != nil {
		t.Fatal(err)
	}
	if ret != (cpu.SegOfs{Seg: testCS, Off: testIP}) {
		t.Fatalf("return address %s", ret)
	}
	d.set(map[int]uint64{uc.X86_REG_IP: 0x5555, uc.X86_REG_EFLAGS: 0})
	if err := setCarry(d.m, true); err != nil {
		t.Fatal(err)
	}
	if flags := d.iret(); flags != 0x0203 {
		t.Fatalf("FLAGS after IRET = %#x", flags)
	}
	if ip := d.reg(uc.X86_REG_IP); ip != testIP {
		t.Fatalf("IP after IRET = %#x", ip)
	}
	if sp := d.reg(uc.X86_REG_SP); sp != testSP {
		t.Fatalf("SP after IRET = %#x", sp)
	}
}

func TestFrameWrapsSegment(t *testing.T) {
	m, err := NewMachine()
	if err != nil {
		t.Fatal(err)
	}
	for reg, val := range map[int]uint64{
		uc.X86_REG_CS: testCS, uc.X86_REG_IP: testIP,
		uc.X86_REG_SS: testSS, uc.X86_REG_SP: 2,
		uc.X86_REG_EFLAGS: 0x0246,
	} {
		m.RegWrite(reg, val)
	}
	if err := PushFrame(m); err != nil {
		t.Fatal(err)
	}
	if sp, _ := m.RegRead(uc.X86_REG_SP); sp != 0xfffc {
		t.Fatalf("SP after push = %#x", sp)
	}
	// FLAGS lands at SS:0000
	if w, err := fpu.ReadWord(m, cpu.SegOfs{Seg: testSS}); err != nil || w != 0x0246 {
		t.Fatalf("FLAGS at SS:0000 = %#x, %v", w, err)
	}
	if err := PopFrame(m); err != nil {
		t.Fatal(err)
	}
	if sp, _ := m.RegRead(uc.X86_REG_SP); sp != 2 {
		t.Fatalf("SP after pop = %#x", sp)
	}
	if ip, _ := m.RegRead(uc.X86_REG_IP); ip != testIP {
		t.Fatalf("IP after pop = %#x", ip)
	}
}

func TestDisplay(t *testing.T) {
	d := newDosTest(t, "")
	d.m.MemWrite(cpu.SegOfs{Seg: testDS, Off: 0x200}.Linear(), []byte("Hello, world\r\n$junk"))
	d.set(map[int]uint64{uc.X86_REG_DX: 0x200})
	d.call(0x09)
	if d.out.String() != "Hello, world\r\n" {
		t.Fatalf("printed %q", d.out.String())
	}
	if al := d.reg(uc.X86_REG_AL); al != '$' {
		t.Fatalf("AL = %#x", al)
	}
}

func TestCharIO(t *testing.T) {
	d := newDosTest(t, "xy")
	d.set(map[int]uint64{uc.X86_REG_DL: 'A'})
	d.call(0x02)
	d.call(0x01)
	if al := d.reg(uc.X86_REG_AL); al != 'x' {
		t.Fatalf("AH=01 read %q", al)
	}
	d.call(0x08)
	if al := d.reg(uc.X86_REG_AL); al != 'y' {
		t.Fatalf("AH=08 read %q", al)
	}
	// end of input reads as CR
	d.call(0x07)
	if al := d.reg(uc.X86_REG_AL); al != '\r' {
		t.Fatalf("AH=07 at EOF read %#x", al)
	}
	if d.out.String() != "Ax" {
		t.Fatalf("console output %q", d.out.String())
	}
}

func TestDirectConsoleIO(t *testing.T) {
	d := newDosTest(t, "")
	d.set(map[int]uint64{uc.X86_REG_DL: 'z'})
	d.call(0x06)
	if d.out.String() != "z" {
		t.Fatalf("printed %q", d.out.String())
	}
	d.set(map[int]uint64{uc.X86_REG_DL: 0xff})
	d.call(0x06)
	if al := d.reg(uc.X86_REG_AL); al != 0 {
		t.Fatalf("AL = %#x", al)
	}
	if flags := d.iret(); flags&flagZero == 0 {
		t.Fatal("ZF not set for empty input")
	}
}

func TestTerminate(t *testing.T) {
	d := newDosTest(t, "")
	d.set(map[int]uint64{uc.X86_REG_AX: 0x4c03})
	err := d.int(0x21)
	if e, ok := errors.Cause(err).(models.ExitStatus); !ok || e != 3 {
		t.Fatalf("AH=4C returned %v", err)
	}
	if err := d.int(0x20); err != models.ExitStatus(0) {
		t.Fatalf("INT 20h returned %v", err)
	}
	d.set(map[int]uint64{uc.X86_REG_AH: 0})
	if err := d.int(0x21); err != models.ExitStatus(0) {
		t.Fatalf("AH=00 returned %v", err)
	}
}

func TestInfoCalls(t *testing.T) {
	d := newDosTest(t, "")
	d.call(0x30)
	if ax := d.reg(uc.X86_REG_AX); ax != 0x1606 {
		t.Errorf("version AX = %#x", ax)
	}
	d.call(0x62)
	if bx := d.reg(uc.X86_REG_BX); bx != 0x0090 {
		t.Errorf("PSP = %#x", bx)
	}
	d.call(0x19)
	if al := d.reg(uc.X86_REG_AL); al != 2 {
		t.Errorf("drive = %d", al)
	}
	d.call(0x37)
	if dl := d.reg(uc.X86_REG_DL); dl != '/' {
		t.Errorf("switch char = %q", dl)
	}
	if err := d.int(0x11); err != nil {
		t.Fatal(err)
	}
	if ax := d.reg(uc.X86_REG_AX); ax != 0x0221 {
		t.Errorf("equipment = %#x", ax)
	}
}

func TestAlloc(t *testing.T) {
	d := newDosTest(t, "")
	d.set(map[int]uint64{uc.X86_REG_BX: 0x10})
	d.call(0x48)
	if ax := d.reg(uc.X86_REG_AX); ax != ArenaStart {
		t.Fatalf("first block at %#x", ax)
	}
	d.set(map[int]uint64{uc.X86_REG_BX: 0x20})
	d.call(0x48)
	if ax := d.reg(uc.X86_REG_AX); ax != ArenaStart+0x10 {
		t.Fatalf("second block at %#x", ax)
	}
	if flags := d.iret(); flags&flagCarry != 0 {
		t.Fatal("carry set on success")
	}

	if err := PushFrame(d.m); err != nil {
		t.Fatal(err)
	}
	d.set(map[int]uint64{uc.X86_REG_BX: 0xffff})
	d.call(0x48)
	if ax := d.reg(uc.X86_REG_AX); ax != errInsufficientMemory {
		t.Fatalf("AX = %#x on failure", ax)
	}
	if bx := d.reg(uc.X86_REG_BX); bx != arenaEnd-ArenaStart-0x30 {
		t.Fatalf("largest block %#x", bx)
	}
	if flags := d.iret(); flags&flagCarry == 0 {
		t.Fatal("carry clear on failure")
	}
}

func TestUnhandled(t *testing.T) {
	d := newDosTest(t, "")
	d.set(map[int]uint64{uc.X86_REG_AH: 0x99})
	if err := d.int(0x21); err == nil || !strings.Contains(err.Error(), "0x99") {
		t.Fatalf("unknown function gave %v", err)
	}
	if err := d.int(0x10); err == nil {
		t.Fatal("INT 10h was handled")
	}
	if d.k.Handles(0x10) || !d.k.Handles(0x3d) || !d.k.Handles(0x21) {
		t.Fatal("Handles disagrees with the interrupt table")
	}
}

func TestSysTrace(t *testing.T) {
	d := newDosTest(t, "")
	var trace bytes.Buffer
	d.k.Trace = &trace
	d.call(0x30)
	if !strings.Contains(trace.String(), "AH=30 dos_version") {
		t.Fatalf("trace %q", trace.String())
	}
}

func TestFPUTrap(t *testing.T) {
	// FLD1
	d := newDosTest(t, "", 0xe8)
	if err := d.int(0x35); err != nil {
		t.Fatal(err)
	}
	if v := d.k.FPU.Stack().ST(0); v != 1 {
		t.Fatalf("ST0 = %g", v)
	}
	d.iret()
	if ip := d.reg(uc.X86_REG_IP); ip != testIP+1 {
		t.Fatalf("resumed at %#x", ip)
	}
}

func TestFPUSegmentOverride(t *testing.T) {
	tests := []struct {
		esc byte
		seg uint16
	}{
		{0x19, testDS},
		{0x59, testSS},
		{0x99, testCS},
		{0xd9, 0x4000},
	}
	for _, test := range tests {
		// FLD m32real [0010]
		d := newDosTest(t, "", test.esc, 0x06, 0x10, 0x00)
		d.set(map[int]uint64{uc.X86_REG_ES: 0x4000})
		if err := fpu.WriteFloat32(d.m, cpu.SegOfs{Seg: test.seg, Off: 0x10}, 42); err != nil {
			t.Fatal(err)
		}
		if err := d.int(0x3c); err != nil {
			t.Fatal(err)
		}
		if v := d.k.FPU.Stack().ST(0); v != 42 {
			t.Errorf("ESC byte %#02x: loaded %g", test.esc, v)
		}
		d.iret()
		if ip := d.reg(uc.X86_REG_IP); ip != testIP+4 {
			t.Errorf("ESC byte %#02x: resumed at %#x", test.esc, ip)
		}
	}
}

func TestFPUActiveOverrideWins(t *testing.T) {
	// SS in the ESC byte, DS prefix on the machine
	d := newDosTest(t, "", 0x59, 0x06, 0x10, 0x00)
	d.m.SetSegmentOverride(uc.X86_REG_DS)
	if err := fpu.WriteFloat32(d.m, cpu.SegOfs{Seg: testDS, Off: 0x10}, 7); err != nil {
		t.Fatal(err)
	}
	if err := fpu.WriteFloat32(d.m, cpu.SegOfs{Seg: testSS, Off: 0x10}, -7); err != nil {
		t.Fatal(err)
	}
	if err := d.int(0x3c); err != nil {
		t.Fatal(err)
	}
	if v := d.k.FPU.Stack().ST(0); v != 7 {
		t.Fatalf("loaded %g through the ESC byte segment", v)
	}
}
