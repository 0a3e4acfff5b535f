package fpu

import "math"

// Tag word states, two bits per physical register.
const (
	TagValid   = 0
	TagZero    = 1
	TagSpecial = 2
	TagEmpty   = 3
)

// Status word bits.
const (
	SW_C0       = uint16(1 << 8)
	SW_C1       = uint16(1 << 9)
	SW_C2       = uint16(1 << 10)
	SW_TOPMask  = uint16(7 << 11)
	SW_TOPShift = 11
	SW_C3       = uint16(1 << 14)
)

// DefaultControlWord masks every exception, rounds to nearest, 64-bit precision.
const DefaultControlWord = 0x037f

// Stack is the x87 register file. Values are held as float64, so extended
// precision is approximated to double precision throughout.
//
// Overflow (pushing onto a valid slot) and underflow (popping an empty one)
// are not detected.
type Stack struct {
	regs [8]float64
	top  int

	// sw holds everything but TOP, which lives in top
	sw uint16
	cw uint16
	tw uint16
}

func NewStack() *Stack {
	s := &Stack{}
	s.Init()
	return s
}

// Init is FINIT.
func (s *Stack) Init() {
	s.regs = [8]float64{}
	s.top = 0
	s.sw = 0
	s.cw = DefaultControlWord
	s.tw = 0xffff
}

func (s *Stack) Top() int {
	return s.top
}

// Phys maps ST(i) to its physical register.
func (s *Stack) Phys(i int) int {
	return (s.top + i) & 7
}

func (s *Stack) Push(v float64) {
	s.top = (s.top - 1) & 7
	s.regs[s.top] = v
	s.setTag(s.top, classify(v))
}

func (s *Stack) Pop() float64 {
	v := s.regs[s.top]
	s.regs[s.top] = 0
	s.setTag(s.top, TagEmpty)
	s.top = (s.top + 1) & 7
	return v
}

func (s *Stack) ST(i int) float64 {
	return s.regs[s.Phys(i)]
}

func (s *Stack) SetST(i int, v float64) {
	p := s.Phys(i)
	s.regs[p] = v
	s.setTag(p, classify(v))
}

// Free is FFREE: ST(i) is tagged empty and TOP does not move.
func (s *Stack) Free(i int) {
	p := s.Phys(i)
	s.regs[p] = 0
	s.setTag(p, TagEmpty)
}

// IncSTP and DecSTP rotate TOP without touching contents or tags.
func (s *Stack) IncSTP() { s.top = (s.top + 1) & 7 }
func (s *Stack) DecSTP() { s.top = (s.top - 1) & 7 }

func (s *Stack) StatusWord() uint16 {
	return s.sw&^SW_TOPMask | uint16(s.top)<<SW_TOPShift
}

func (s *Stack) SetStatusWord(sw uint16) {
	s.sw = sw &^ SW_TOPMask
	s.top = int(sw&SW_TOPMask) >> SW_TOPShift
}

func (s *Stack) ControlWord() uint16     { return s.cw }
func (s *Stack) SetControlWord(v uint16) { s.cw = v }
func (s *Stack) TagWord() uint16         { return s.tw }
func (s *Stack) SetTagWord(v uint16)     { s.tw = v }

// Tag returns the tag of physical register phys.
func (s *Stack) Tag(phys int) int {
	return int(s.tw>>(uint(phys&7)*2)) & 3
}

func (s *Stack) setTag(phys, tag int) {
	shift := uint(phys&7) * 2
	s.tw = s.tw&^(3<<shift) | uint16(tag&3)<<shift
}

func classify(v float64) int {
	switch {
	case v == 0:
		return TagZero
	case math.IsNaN(v), math.IsInf(v, 0):
		return TagSpecial
	}
	return TagValid
}

// SetCC writes C3, C2 and C0, leaving C1 alone.
func (s *Stack) SetCC(c3, c2, c0 bool) {
	s.sw &^= SW_C3 | SW_C2 | SW_C0
	if c3 {
		s.sw |= SW_C3
	}
	if c2 {
		s.sw |= SW_C2
	}
	if c0 {
		s.sw |= SW_C0
	}
}

// Compare sets the condition codes for a against b.
//
//	a > b      C3=0 C2=0 C0=0
//	a < b      C3=0 C2=0 C0=1
//	a == b     C3=1 C2=0 C0=0
//	unordered  C3=1 C2=1 C0=1
func (s *Stack) Compare(a, b float64) {
	switch {
	case math.IsNaN(a) || math.IsNaN(b):
		s.SetCC(true, true, true)
	case a > b:
		s.SetCC(false, false, false)
	case a < b:
		s.SetCC(false, false, true)
	default:
		s.SetCC(true, false, false)
	}
}

func (s *Stack) SetC1()   { s.sw |= SW_C1 }
func (s *Stack) ClearC1() { s.sw &^= SW_C1 }

// ClearExceptions is FCLEX: the exception flags, ES and B are cleared.
func (s *Stack) ClearExceptions() {
	s.sw &= 0x7f00
}

// CC reports the four condition code bits.
func (s *Stack) CC() (c3, c2, c1, c0 bool) {
	return s.sw&SW_C3 != 0, s.sw&SW_C2 != 0, s.sw&SW_C1 != 0, s.sw&SW_C0 != 0
}
