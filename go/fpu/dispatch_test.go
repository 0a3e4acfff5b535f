package fpu

import (
	"bytes"
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/xtcorn/xtcorn/go/models/cpu"
)

var _ = Describe("Trap dispatch", func() {
	var (
		emu *Emulator
		st  *Stack
		g   *guest
	)

	BeforeEach(func() {
		emu = NewEmulator(testRegs)
		st = emu.Stack()
	})

	// raise places code at the return address and raises vector
	raise := func(vector int, code ...byte) {
		var err error
		g, err = newGuest(code...)
		Expect(err).NotTo(HaveOccurred())
		Expect(emu.Interrupt(g, vector)).To(Succeed())
	}

	// trapWith is raise for guests that need memory or registers set first
	trapWith := func(setup func(g *guest), vector int, code ...byte) {
		var err error
		g, err = newGuest(code...)
		Expect(err).NotTo(HaveOccurred())
		setup(g)
		Expect(emu.Interrupt(g, vector)).To(Succeed())
	}

	skipped := func() int {
		return int(g.returnIP()) - guestRet
	}

	Describe("vector table", func() {
		It("claims INT 34h through 3Dh only", func() {
			for v := 0; v < 0x100; v++ {
				Expect(Handles(v)).To(Equal(v >= 0x34 && v <= 0x3d), "vector %#x", v)
			}
		})

		It("rejects other vectors", func() {
			g, err := newGuest()
			Expect(err).NotTo(HaveOccurred())
			Expect(emu.Interrupt(g, 0x21)).To(HaveOccurred())
		})
	})

	Describe("D9 constants and register ops", func() {
		It("pushes 1.0 for FLD1 on an empty stack", func() {
			raise(0x35, 0xe8)
			Expect(st.ST(0)).To(Equal(1.0))
			Expect(st.Top()).To(Equal(7))
			Expect(st.Tag(7)).To(Equal(TagValid))
			Expect(skipped()).To(Equal(1))
		})

		It("loads pi and zero", func() {
			raise(0x35, 0xeb)
			Expect(st.ST(0)).To(Equal(math.Pi))
			raise(0x35, 0xee)
			Expect(st.ST(0)).To(Equal(0.0))
			Expect(st.Tag(st.Top())).To(Equal(TagZero))
		})

		It("takes the square root of ST(0)", func() {
			st.Push(4)
			raise(0x35, 0xfa)
			Expect(st.ST(0)).To(Equal(2.0))
			Expect(skipped()).To(Equal(1))
		})

		It("exchanges ST(0) and ST(1)", func() {
			st.Push(1)
			st.Push(2)
			raise(0x35, 0xc9)
			Expect(st.ST(0)).To(Equal(1.0))
			Expect(st.ST(1)).To(Equal(2.0))
		})

		It("duplicates ST(i) with FLD ST(i)", func() {
			st.Push(5)
			st.Push(6)
			raise(0x35, 0xc1)
			Expect(st.ST(0)).To(Equal(5.0))
			Expect(st.ST(1)).To(Equal(6.0))
			Expect(st.ST(2)).To(Equal(5.0))
		})

		It("changes sign and takes absolute values", func() {
			st.Push(-3)
			raise(0x35, 0xe1)
			Expect(st.ST(0)).To(Equal(3.0))
			raise(0x35, 0xe0)
			Expect(st.ST(0)).To(Equal(-3.0))
		})

		It("classifies negative finite values with FXAM", func() {
			st.Push(-2)
			raise(0x35, 0xe5)
			c3, c2, c1, c0 := st.CC()
			Expect([]bool{c3, c2, c1, c0}).To(Equal([]bool{false, true, true, false}))
		})

		It("tests against zero with FTST", func() {
			st.Push(-1)
			raise(0x35, 0xe4)
			_, _, _, c0 := st.CC()
			Expect(c0).To(BeTrue())
		})

		DescribeTable("ignores rm for FCOMPP",
			func(modrm byte) {
				raise(0x3a, modrm)
				Expect(skipped()).To(Equal(1))
				Expect(st.Top()).To(Equal(0))
				Expect(st.Tag(6)).To(Equal(TagEmpty))
				Expect(st.Tag(7)).To(Equal(TagEmpty))
				c3, c2, _, c0 := st.CC()
				Expect(c0).To(BeTrue())
				Expect(c2).To(BeFalse())
				Expect(c3).To(BeFalse())
			},
			Entry("rm 0", byte(0xd8)),
			Entry("rm 5", byte(0xdd)),
			Entry("rm 7", byte(0xdf)),
		)

		It("pushes 1.0 after the tangent with FPTAN", func() {
			st.Push(math.Pi / 4)
			raise(0x35, 0xf2)
			Expect(st.ST(0)).To(Equal(1.0))
			Expect(st.ST(1)).To(BeNumerically("~", 1, 1e-12))
		})

		It("computes atan2(ST1, ST0) and pops with FPATAN", func() {
			st.Push(1)
			st.Push(1)
			raise(0x35, 0xf3)
			Expect(st.Top()).To(Equal(7))
			Expect(st.ST(0)).To(BeNumerically("~", math.Pi/4, 1e-12))
		})

		It("splits exponent and significand with FXTRACT", func() {
			st.Push(8)
			raise(0x35, 0xf4)
			Expect(st.ST(0)).To(Equal(1.0))
			Expect(st.ST(1)).To(Equal(3.0))
		})

		It("scales by the truncated ST(1) with FSCALE", func() {
			st.Push(2.7)
			st.Push(3)
			raise(0x35, 0xfd)
			Expect(st.ST(0)).To(Equal(12.0))
			Expect(st.ST(1)).To(Equal(2.7))
		})

		It("computes ST1*log2(ST0) and pops with FYL2X", func() {
			st.Push(3)
			st.Push(8)
			raise(0x35, 0xf1)
			Expect(st.Top()).To(Equal(7))
			Expect(st.ST(0)).To(BeNumerically("~", 9, 1e-12))
		})

		It("takes the partial remainder with FPREM", func() {
			st.Push(3)
			st.Push(7)
			raise(0x35, 0xf8)
			Expect(st.ST(0)).To(Equal(1.0))
			_, c2, _, _ := st.CC()
			Expect(c2).To(BeFalse())
		})

		It("rounds to even with FRNDINT", func() {
			st.Push(2.5)
			raise(0x35, 0xfc)
			Expect(st.ST(0)).To(Equal(2.0))
		})

		It("rotates TOP with FDECSTP and FINCSTP", func() {
			raise(0x35, 0xf6)
			Expect(st.Top()).To(Equal(7))
			raise(0x35, 0xf7)
			Expect(st.Top()).To(Equal(0))
		})

		It("treats undefined encodings as no-ops that still skip", func() {
			st.Push(1)
			before := *st
			raise(0x35, 0xd8)
			Expect(*st).To(Equal(before))
			Expect(skipped()).To(Equal(1))
		})
	})

	Describe("memory operands", func() {
		It("adds an m32real at a direct address and skips three bytes", func() {
			st.Push(1.5)
			trapWith(func(g *guest) {
				Expect(WriteFloat32(g, g.data(0x1234), 2.25)).To(Succeed())
			}, 0x34, 0x06, 0x34, 0x12)
			Expect(st.ST(0)).To(Equal(3.75))
			Expect(st.Top()).To(Equal(7))
			Expect(skipped()).To(Equal(3))
		})

		It("pops after FCOMP m32real", func() {
			st.Push(1)
			st.Push(2)
			trapWith(func(g *guest) {
				Expect(WriteFloat32(g, g.data(0x10), 5)).To(Succeed())
			}, 0x34, 0x1e, 0x10, 0x00)
			Expect(st.Top()).To(Equal(7))
			_, _, _, c0 := st.CC()
			Expect(c0).To(BeTrue())
		})

		It("loads an m64real from [BP-2] in the stack segment", func() {
			trapWith(func(g *guest) {
				Expect(g.RegWrite(regBP, 0x0010)).To(Succeed())
				Expect(WriteFloat64(g, cpu.SegOfs{Seg: guestSS, Off: 0x000e}, -6.5)).To(Succeed())
			}, 0x39, 0x46, 0xfe)
			Expect(st.ST(0)).To(Equal(-6.5))
			Expect(skipped()).To(Equal(2))
		})

		It("stores m16int with rounding through [BX+SI]", func() {
			st.Push(-2.5)
			trapWith(func(g *guest) {
				Expect(g.RegWrite(regBX, 0x0100)).To(Succeed())
				Expect(g.RegWrite(regSI, 0x0002)).To(Succeed())
			}, 0x3b, 0x18)
			v, err := ReadInt16(g, g.data(0x0102))
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(Equal(-3.0))
			Expect(st.Top()).To(Equal(0))
			Expect(skipped()).To(Equal(1))
		})

		It("round trips an m80real through FSTP and FLD", func() {
			st.Push(math.Pi)
			raise(0x37, 0x3e, 0x00, 0x02)
			Expect(st.Top()).To(Equal(0))
			raw, err := g.MemRead(g.data(0x0200).Linear(), 10)
			Expect(err).NotTo(HaveOccurred())

			trapWith(func(g *guest) {
				Expect(g.MemWrite(g.data(0x0200).Linear(), raw)).To(Succeed())
			}, 0x37, 0x2e, 0x00, 0x02)
			Expect(st.ST(0)).To(Equal(math.Pi))
		})

		It("round trips an m64int through FISTP and FILD", func() {
			st.Push(-1234567890123)
			raise(0x3b, 0x3e, 0x40, 0x00)
			v, err := ReadInt64(g, g.data(0x0040))
			Expect(err).NotTo(HaveOccurred())
			Expect(v).To(Equal(-1234567890123.0))
		})

		It("applies the integer memory forms of DA", func() {
			st.Push(10)
			trapWith(func(g *guest) {
				Expect(WriteInt32(g, g.data(0x0020), 4)).To(Succeed())
			}, 0x36, 0x3e, 0x20, 0x00)
			Expect(st.ST(0)).To(Equal(0.4))
		})

		It("saves and restores the control word", func() {
			trapWith(func(g *guest) {
				Expect(g.WriteWord(g.data(0x0030), 0x0c7f)).To(Succeed())
			}, 0x35, 0x2e, 0x30, 0x00)
			Expect(st.ControlWord()).To(Equal(uint16(0x0c7f)))

			raise(0x35, 0x3e, 0x32, 0x00)
			cw, err := g.ReadWord(g.data(0x0032))
			Expect(err).NotTo(HaveOccurred())
			Expect(cw).To(Equal(uint16(0x0c7f)))
		})

		It("stores and reloads the environment", func() {
			st.Push(1)
			raise(0x35, 0x36, 0x00, 0x01)
			raw, err := g.MemRead(g.data(0x0100).Linear(), EnvSize)
			Expect(err).NotTo(HaveOccurred())
			saved := st.Env()

			st.Init()
			trapWith(func(g *guest) {
				Expect(g.MemWrite(g.data(0x0100).Linear(), raw)).To(Succeed())
			}, 0x35, 0x26, 0x00, 0x01)
			Expect(st.Env()).To(Equal(saved))
		})

		It("writes the status word with FSTSW m16", func() {
			st.Push(1)
			raise(0x39, 0x3e, 0x50, 0x00)
			sw, err := g.ReadWord(g.data(0x0050))
			Expect(err).NotTo(HaveOccurred())
			Expect(sw).To(Equal(uint16(7 << 11)))
		})
	})

	Describe("register-to-register forms", func() {
		BeforeEach(func() {
			st.Push(12)
			st.Push(4)
		})

		It("adds ST(i) into ST(0) for D8", func() {
			raise(0x34, 0xc1)
			Expect(st.ST(0)).To(Equal(16.0))
		})

		It("computes ST(i) - ST(0) for DC FSUB", func() {
			raise(0x38, 0xe9)
			Expect(st.ST(1)).To(Equal(8.0))
			Expect(st.ST(0)).To(Equal(4.0))
		})

		It("computes ST(0) - ST(i) for DC FSUBR", func() {
			raise(0x38, 0xe1)
			Expect(st.ST(1)).To(Equal(-8.0))
		})

		It("divides and pops for DE FDIVP", func() {
			raise(0x3a, 0xf9)
			Expect(st.Top()).To(Equal(7))
			Expect(st.ST(0)).To(Equal(3.0))
		})

		It("compares and pops twice for FCOMPP", func() {
			raise(0x3a, 0xd9)
			Expect(st.Top()).To(Equal(0))
			Expect(st.Tag(6)).To(Equal(TagEmpty))
			Expect(st.Tag(7)).To(Equal(TagEmpty))
			_, _, _, c0 := st.CC()
			Expect(c0).To(BeTrue())
		})

		It("stores the status word into AX with FNSTSW AX", func() {
			raise(0x3b, 0xe0)
			ax, err := g.RegRead(regAX)
			Expect(err).NotTo(HaveOccurred())
			Expect(ax).To(Equal(uint64(st.StatusWord())))
		})

		It("copies and pops with FSTP ST(1)", func() {
			raise(0x39, 0xd9)
			Expect(st.Top()).To(Equal(7))
			Expect(st.ST(0)).To(Equal(4.0))
		})

		It("frees a register with FFREE", func() {
			raise(0x39, 0xc1)
			Expect(st.Tag(st.Phys(1))).To(Equal(TagEmpty))
			Expect(st.Top()).To(Equal(6))
		})

		It("resets everything with FINIT", func() {
			raise(0x37, 0xe3)
			Expect(st.Top()).To(Equal(0))
			Expect(st.TagWord()).To(Equal(uint16(0xffff)))
			Expect(st.ControlWord()).To(Equal(uint16(DefaultControlWord)))
		})
	})

	Describe("segment override vector", func() {
		It("reads the ESC byte, then decodes the operand after it", func() {
			trapWith(func(g *guest) {
				g.SetSegmentOverride(regES)
				Expect(WriteFloat32(g, cpu.SegOfs{Seg: guestES, Off: 0x0100}, 7)).To(Succeed())
			}, 0x3c, 0xd9, 0x06, 0x00, 0x01)
			Expect(st.ST(0)).To(Equal(7.0))
			Expect(skipped()).To(Equal(4))
		})

		It("dispatches register forms from the same tables", func() {
			raise(0x3c, 0xd9, 0xe8)
			Expect(st.ST(0)).To(Equal(1.0))
			Expect(skipped()).To(Equal(2))
		})
	})

	Describe("FWAIT", func() {
		It("does nothing and leaves the return address alone", func() {
			st.Push(1)
			before := *st
			raise(0x3d, 0xd9, 0xe8)
			Expect(*st).To(Equal(before))
			Expect(skipped()).To(Equal(0))
		})
	})

	Describe("tracing", func() {
		It("prints one line per instruction", func() {
			var buf bytes.Buffer
			emu.Trace = &Tracer{W: &buf}
			raise(0x35, 0xe8)
			raise(0x3d)
			Expect(buf.String()).To(ContainSubstring("FLD1"))
			Expect(buf.String()).To(ContainSubstring("FWAIT"))
		})
	})
})
