package fpu

import (
	"encoding/binary"
	"math"
	"math/bits"

	"github.com/pkg/errors"

	"github.com/xtcorn/xtcorn/go/models/cpu"
)

// Memory is the part of the guest machine the codec reads and writes.
type Memory interface {
	MemRead(addr, size uint64) ([]byte, error)
	MemWrite(addr uint64, p []byte) error
}

const (
	ext80Bias = 16383
	f64Bias   = 1023
)

var le = binary.LittleEndian

// read fetches n bytes starting at a. Like the 8086, multi-byte operands wrap
// at the end of the segment rather than spilling into the next one.
func read(m Memory, a cpu.SegOfs, n int) ([]byte, error) {
	first := n
	if room := 0x10000 - int(a.Off); room < n {
		first = room
	}
	p, err := m.MemRead(a.Linear(), uint64(first))
	if err != nil {
		return nil, errors.Wrapf(err, "read %d bytes at %s", n, a)
	}
	if first < n {
		rest, err := m.MemRead(a.Add(first).Linear(), uint64(n-first))
		if err != nil {
			return nil, errors.Wrapf(err, "read %d bytes at %s", n, a)
		}
		p = append(p, rest...)
	}
	return p, nil
}

func write(m Memory, a cpu.SegOfs, p []byte) error {
	first := len(p)
	if room := 0x10000 - int(a.Off); room < first {
		first = room
	}
	if err := m.MemWrite(a.Linear(), p[:first]); err != nil {
		return errors.Wrapf(err, "write %d bytes at %s", len(p), a)
	}
	if first < len(p) {
		if err := m.MemWrite(a.Add(first).Linear(), p[first:]); err != nil {
			return errors.Wrapf(err, "write %d bytes at %s", len(p), a)
		}
	}
	return nil
}

// Format is one of the x87 memory operand encodings.
type Format struct {
	Name string
	Size int
	Get  func(b []byte) float64
	Put  func(b []byte, v float64)
}

var (
	Real32 = Format{"m32real", 4, Float32, PutFloat32}
	Real64 = Format{"m64real", 8, Float64, PutFloat64}
	Real80 = Format{"m80real", 10, Float80, PutFloat80}
	Int16  = Format{"m16int", 2, Int16Value, PutInt16}
	Int32  = Format{"m32int", 4, Int32Value, PutInt32}
	Int64  = Format{"m64int", 8, Int64Value, PutInt64}
)

func (f Format) Read(m Memory, a cpu.SegOfs) (float64, error) {
	p, err := read(m, a, f.Size)
	if err != nil {
		return 0, err
	}
	return f.Get(p), nil
}

func (f Format) Write(m Memory, a cpu.SegOfs, v float64) error {
	p := make([]byte, f.Size)
	f.Put(p, v)
	return write(m, a, p)
}

func ReadFloat32(m Memory, a cpu.SegOfs) (float64, error) { return Real32.Read(m, a) }
func ReadFloat64(m Memory, a cpu.SegOfs) (float64, error) { return Real64.Read(m, a) }
func ReadFloat80(m Memory, a cpu.SegOfs) (float64, error) { return Real80.Read(m, a) }
func ReadInt16(m Memory, a cpu.SegOfs) (float64, error)   { return Int16.Read(m, a) }
func ReadInt32(m Memory, a cpu.SegOfs) (float64, error)   { return Int32.Read(m, a) }
func ReadInt64(m Memory, a cpu.SegOfs) (float64, error)   { return Int64.Read(m, a) }

func WriteFloat32(m Memory, a cpu.SegOfs, v float64) error { return Real32.Write(m, a, v) }
func WriteFloat64(m Memory, a cpu.SegOfs, v float64) error { return Real64.Write(m, a, v) }
func WriteFloat80(m Memory, a cpu.SegOfs, v float64) error { return Real80.Write(m, a, v) }
func WriteInt16(m Memory, a cpu.SegOfs, v float64) error   { return Int16.Write(m, a, v) }
func WriteInt32(m Memory, a cpu.SegOfs, v float64) error   { return Int32.Write(m, a, v) }
func WriteInt64(m Memory, a cpu.SegOfs, v float64) error   { return Int64.Write(m, a, v) }

func Float32(b []byte) float64 {
	return float64(math.Float32frombits(le.Uint32(b)))
}

func PutFloat32(b []byte, v float64) {
	le.PutUint32(b, math.Float32bits(float32(v)))
}

func Float64(b []byte) float64 {
	return math.Float64frombits(le.Uint64(b))
}

func PutFloat64(b []byte, v float64) {
	le.PutUint64(b, math.Float64bits(v))
}

func Int16Value(b []byte) float64 { return float64(int16(le.Uint16(b))) }
func Int32Value(b []byte) float64 { return float64(int32(le.Uint32(b))) }
func Int64Value(b []byte) float64 { return float64(int64(le.Uint64(b))) }

func PutInt16(b []byte, v float64) { le.PutUint16(b, uint16(RoundInt(v))) }
func PutInt32(b []byte, v float64) { le.PutUint32(b, uint32(RoundInt(v))) }
func PutInt64(b []byte, v float64) { le.PutUint64(b, uint64(RoundInt(v))) }

// RoundInt rounds to the nearest integer, halfway cases away from zero.
// NaN becomes 0 and out of range values saturate to the int64 limits; the
// narrower stores then keep the low bits.
func RoundInt(v float64) int64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v >= 0x1p63:
		return math.MaxInt64
	case v < -0x1p63:
		return math.MinInt64
	}
	return int64(math.Round(v))
}

// Float80 decodes an extended precision value: a 64-bit significand with an
// explicit integer bit, then a 15-bit biased exponent and the sign in bit 15.
func Float80(b []byte) float64 {
	sig := le.Uint64(b[0:8])
	se := le.Uint16(b[8:10])
	neg := se&0x8000 != 0
	exp := int(se & 0x7fff)

	var v float64
	switch {
	case exp == 0 && sig == 0:
		v = 0
	case exp == 0x7fff && sig&^(1<<63) == 0:
		v = math.Inf(1)
	case exp == 0x7fff:
		return math.NaN()
	default:
		v = math.Ldexp(float64(sig), exp-ext80Bias-63)
	}
	if neg {
		v = -v
	}
	return v
}

func PutFloat80(b []byte, v float64) {
	var sig uint64
	var se uint16
	if math.Signbit(v) && !math.IsNaN(v) {
		se = 0x8000
	}
	switch {
	case v == 0:
	case math.IsInf(v, 0):
		sig = 1 << 63
		se |= 0x7fff
	case math.IsNaN(v):
		sig = 0xc000000000000000
		se = 0x7fff
	default:
		raw := math.Float64bits(v)
		exp := int(raw>>52) & 0x7ff
		mant := raw & (1<<52 - 1)
		if exp != 0 {
			mant |= 1 << 52
		} else {
			// subnormal double: renormalise into the explicit integer bit
			exp = 1
		}
		sig = mant << 11
		e := exp - f64Bias + ext80Bias
		shift := bits.LeadingZeros64(sig)
		sig <<= uint(shift)
		e -= shift
		se |= uint16(e) & 0x7fff
	}
	le.PutUint64(b[0:8], sig)
	le.PutUint16(b[8:10], se)
}
