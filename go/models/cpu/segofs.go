package cpu

import "fmt"

// RealModeSize is the size of the 8086 address space. Linear addresses wrap at
// this boundary, as on a machine with the A20 line disabled.
const RealModeSize = 0x100000

const realModeMask = RealModeSize - 1

// SegOfs is a real-mode segment:offset pair.
type SegOfs struct {
	Seg, Off uint16
}

func (s SegOfs) Linear() uint64 {
	return (uint64(s.Seg)<<4 + uint64(s.Off)) & realModeMask
}

// Add returns a new address n bytes further on. The offset wraps inside the segment.
func (s SegOfs) Add(n int) SegOfs {
	return SegOfs{Seg: s.Seg, Off: s.Off + uint16(n)}
}

func (s SegOfs) String() string {
	return fmt.Sprintf("%04X:%04X", s.Seg, s.Off)
}
