package fpu

import (
	"github.com/pkg/errors"

	"github.com/xtcorn/xtcorn/go/models/cpu"
)

const (
	regAX = iota + 1
	regBX
	regCX
	regDX
	regSI
	regDI
	regBP
	regSP
	regCS
	regDS
	regSS
	regES
	regIP
	regFLAGS
)

var testRegs = RegMap{
	AX: regAX, BX: regBX, SI: regSI, DI: regDI, BP: regBP, SP: regSP,
	CS: regCS, DS: regDS, SS: regSS, ES: regES,
}

const (
	guestCS   = 0x1000
	guestDS   = 0x3000
	guestSS   = 0x2000
	guestES   = 0x4000
	guestSP   = 0x0100
	guestRet  = 0x0102
	guestFlag = 0x0202
)

// guest is a machine stopped inside an FP trap: the IRET frame is at SS:SP
// and the bytes following the INT instruction are at the return address.
type guest struct {
	*cpu.Machine
}

func newGuest(code ...byte) (*guest, error) {
	m := cpu.NewMachine([]int{
		regAX, regBX, regCX, regDX, regSI, regDI, regBP, regSP,
		regCS, regDS, regSS, regES, regIP, regFLAGS,
	})
	g := &guest{m}
	init := map[int]uint64{
		regCS: guestCS, regDS: guestDS, regSS: guestSS, regES: guestES,
		regSP: guestSP, regIP: 0x0500,
	}
	for reg, val := range init {
		if err := m.RegWrite(reg, val); err != nil {
			return nil, err
		}
	}
	frame := cpu.SegOfs{Seg: guestSS, Off: guestSP}
	for i, w := range []uint16{guestRet, guestCS, guestFlag} {
		if err := m.WriteWord(frame.Add(i*2), w); err != nil {
			return nil, err
		}
	}
	// INT xx sits just before the return address
	ret := cpu.SegOfs{Seg: guestCS, Off: guestRet}
	if err := m.MemWrite(ret.Add(-2).Linear(), []byte{0xcd, 0x00}); err != nil {
		return nil, err
	}
	if err := m.MemWrite(ret.Linear(), code); err != nil {
		return nil, errors.Wrap(err, "writing code")
	}
	return g, nil
}

func (g *guest) returnIP() uint16 {
	ip, _ := g.ReadWord(cpu.SegOfs{Seg: guestSS, Off: guestSP})
	return ip
}

func (g *guest) data(off uint16) cpu.SegOfs {
	return cpu.SegOfs{Seg: guestDS, Off: off}
}
