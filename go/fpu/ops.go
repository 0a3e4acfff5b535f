package fpu

import (
	"math"
)

// trap is the state one handler runs against.
type trap struct {
	m    Machine
	regs RegMap
	st   *Stack
	op   Operand
}

type op struct {
	name string
	fn   func(t *trap) error
}

// escape is the op table for one ESC opcode (D8..DF). Memory forms are keyed
// by the ModRM reg field. Register forms are keyed by reg, or by reg and rm
// when regRM has a group for that reg value. Missing entries are no-ops.
type escape struct {
	mem   [8]op
	reg   [8]op
	regRM [8]*[8]op
}

func (e *escape) lookup(o Operand) op {
	if o.IsMemory() {
		return e.mem[o.Op]
	}
	if g := e.regRM[o.Op]; g != nil {
		return g[o.RM]
	}
	return e.reg[o.Op]
}

// arith is the ST(0) <- ST(0) op src group shared by D8, DA, DC and DE memory forms
// and by the D8 register forms.
var arith = [8]struct {
	name  string
	apply func(st *Stack, src float64)
}{
	{"FADD", func(st *Stack, v float64) { st.SetST(0, st.ST(0)+v) }},
	{"FMUL", func(st *Stack, v float64) { st.SetST(0, st.ST(0)*v) }},
	{"FCOM", func(st *Stack, v float64) { st.Compare(st.ST(0), v) }},
	{"FCOMP", func(st *Stack, v float64) { st.Compare(st.ST(0), v); st.Pop() }},
	{"FSUB", func(st *Stack, v float64) { st.SetST(0, st.ST(0)-v) }},
	{"FSUBR", func(st *Stack, v float64) { st.SetST(0, v-st.ST(0)) }},
	{"FDIV", func(st *Stack, v float64) { st.SetST(0, st.ST(0)/v) }},
	{"FDIVR", func(st *Stack, v float64) { st.SetST(0, v/st.ST(0)) }},
}

func arithMem(prefix string, f Format) (ops [8]op) {
	for i, a := range arith {
		a := a
		ops[i] = op{prefix + a.name[1:] + " " + f.Name, func(t *trap) error {
			v, err := f.Read(t.m, t.op.Addr)
			if err != nil {
				return err
			}
			a.apply(t.st, v)
			return nil
		}}
	}
	return ops
}

func arithReg() (ops [8]op) {
	for i, a := range arith {
		a := a
		ops[i] = op{a.name + " ST,ST(i)", func(t *trap) error {
			a.apply(t.st, t.st.ST(int(t.op.RM)))
			return nil
		}}
	}
	return ops
}

// toST is the ST(i) <- ST(i) op ST(0) group of DC and DE. The subtract and
// divide encodings are swapped relative to the memory forms.
var toST = [8]struct {
	name string
	f    func(sti, st0 float64) float64
}{
	0: {"FADD", func(sti, st0 float64) float64 { return sti + st0 }},
	1: {"FMUL", func(sti, st0 float64) float64 { return sti * st0 }},
	4: {"FSUBR", func(sti, st0 float64) float64 { return st0 - sti }},
	5: {"FSUB", func(sti, st0 float64) float64 { return sti - st0 }},
	6: {"FDIVR", func(sti, st0 float64) float64 { return st0 / sti }},
	7: {"FDIV", func(sti, st0 float64) float64 { return sti / st0 }},
}

func arithToST(pop bool) (ops [8]op) {
	for i, a := range toST {
		if a.f == nil {
			continue
		}
		a := a
		name := a.name + " ST(i),ST"
		if pop {
			name = a.name + "P ST(i),ST"
		}
		ops[i] = op{name, func(t *trap) error {
			rm := int(t.op.RM)
			t.st.SetST(rm, a.f(t.st.ST(rm), t.st.ST(0)))
			if pop {
				t.st.Pop()
			}
			return nil
		}}
	}
	return ops
}

// loadStore fills the FLD/FST/FSTP slots (reg 0, 2, 3) for format f.
func loadStore(ops *[8]op, ld, st, stp string, f Format) {
	ops[0] = op{ld + " " + f.Name, loadPush(f)}
	ops[2] = op{st + " " + f.Name, func(t *trap) error {
		return f.Write(t.m, t.op.Addr, t.st.ST(0))
	}}
	ops[3] = op{stp + " " + f.Name, storePop(f)}
}

func storePop(f Format) func(t *trap) error {
	return func(t *trap) error {
		return f.Write(t.m, t.op.Addr, t.st.Pop())
	}
}

func loadPush(f Format) func(t *trap) error {
	return func(t *trap) error {
		v, err := f.Read(t.m, t.op.Addr)
		if err != nil {
			return err
		}
		t.st.Push(v)
		return nil
	}
}

// stack only register ops
func stOp(name string, fn func(st *Stack)) op {
	return op{name, func(t *trap) error {
		fn(t.st)
		return nil
	}}
}

var log2e = 1 / math.Ln2

var d9Group4 = [8]op{
	0: stOp("FCHS", func(st *Stack) { st.SetST(0, -st.ST(0)) }),
	1: stOp("FABS", func(st *Stack) { st.SetST(0, math.Abs(st.ST(0))) }),
	4: stOp("FTST", func(st *Stack) { st.Compare(st.ST(0), 0) }),
	5: stOp("FXAM", fxam),
}

var d9Constants = [8]op{
	0: stOp("FLD1", func(st *Stack) { st.Push(1) }),
	1: stOp("FLDL2T", func(st *Stack) { st.Push(math.Log2(10)) }),
	2: stOp("FLDL2E", func(st *Stack) { st.Push(log2e) }),
	3: stOp("FLDPI", func(st *Stack) { st.Push(math.Pi) }),
	4: stOp("FLDLG2", func(st *Stack) { st.Push(math.Log10(2)) }),
	5: stOp("FLDLN2", func(st *Stack) { st.Push(math.Ln2) }),
	6: stOp("FLDZ", func(st *Stack) { st.Push(0) }),
}

var d9Group6 = [8]op{
	0: stOp("F2XM1", func(st *Stack) { st.SetST(0, math.Exp2(st.ST(0))-1) }),
	1: stOp("FYL2X", func(st *Stack) {
		x := st.Pop()
		st.SetST(0, st.ST(0)*math.Log2(x))
	}),
	2: stOp("FPTAN", func(st *Stack) {
		st.SetST(0, math.Tan(st.ST(0)))
		st.Push(1)
	}),
	3: stOp("FPATAN", func(st *Stack) {
		x := st.Pop()
		st.SetST(0, math.Atan2(st.ST(0), x))
	}),
	4: stOp("FXTRACT", fxtract),
	6: stOp("FDECSTP", (*Stack).DecSTP),
	7: stOp("FINCSTP", (*Stack).IncSTP),
}

var d9Group7 = [8]op{
	0: stOp("FPREM", func(st *Stack) {
		st.SetST(0, math.Remainder(st.ST(0), st.ST(1)))
		// C2 clear: reduction complete
		st.SetCC(false, false, false)
	}),
	1: stOp("FYL2XP1", func(st *Stack) {
		x := st.Pop()
		st.SetST(0, st.ST(0)*math.Log1p(x)*log2e)
	}),
	2: stOp("FSQRT", func(st *Stack) { st.SetST(0, math.Sqrt(st.ST(0))) }),
	4: stOp("FRNDINT", func(st *Stack) { st.SetST(0, math.RoundToEven(st.ST(0))) }),
	5: stOp("FSCALE", func(st *Stack) {
		st.SetST(0, math.Ldexp(st.ST(0), scaleExp(st.ST(1))))
	}),
}

// scaleExp truncates an FSCALE exponent and clamps it to a range Ldexp
// already saturates at, so huge or NaN scales don't overflow int.
func scaleExp(v float64) int {
	switch {
	case math.IsNaN(v):
		return 0
	case v > 1<<16:
		return 1 << 16
	case v < -(1 << 16):
		return -(1 << 16)
	}
	return int(v)
}

func fxam(st *Stack) {
	v := st.ST(0)
	st.ClearC1()
	if math.Signbit(v) {
		st.SetC1()
	}
	switch {
	case math.IsNaN(v):
		st.SetCC(false, false, true)
	case math.IsInf(v, 0):
		st.SetCC(false, true, true)
	case v == 0:
		st.SetCC(true, false, false)
	default:
		st.SetCC(false, true, false)
	}
}

func fxtract(st *Stack) {
	v := st.ST(0)
	if v == 0 {
		st.SetST(0, math.Inf(-1))
		st.Push(0)
		return
	}
	exp := math.Logb(v)
	st.SetST(0, exp)
	st.Push(v / math.Exp2(exp))
}

var escapes [8]escape

func init() {
	// D8: m32real arithmetic, ST(0) op ST(i)
	d8 := &escapes[0]
	d8.mem = arithMem("F", Real32)
	d8.reg = arithReg()

	// D9: m32real load/store, environment, control word, constants, transcendentals
	d9 := &escapes[1]
	loadStore(&d9.mem, "FLD", "FST", "FSTP", Real32)
	d9.mem[4] = op{"FLDENV", func(t *trap) error { return LoadEnv(t.m, t.op.Addr, t.st) }}
	d9.mem[5] = op{"FLDCW", func(t *trap) error {
		cw, err := ReadWord(t.m, t.op.Addr)
		if err == nil {
			t.st.SetControlWord(cw)
		}
		return err
	}}
	d9.mem[6] = op{"FSTENV", func(t *trap) error { return StoreEnv(t.m, t.op.Addr, t.st) }}
	d9.mem[7] = op{"FSTCW", func(t *trap) error { return WriteWord(t.m, t.op.Addr, t.st.ControlWord()) }}
	d9.reg[0] = op{"FLD ST(i)", func(t *trap) error {
		t.st.Push(t.st.ST(int(t.op.RM)))
		return nil
	}}
	d9.reg[1] = op{"FXCH ST(i)", func(t *trap) error {
		rm := int(t.op.RM)
		a, b := t.st.ST(0), t.st.ST(rm)
		t.st.SetST(0, b)
		t.st.SetST(rm, a)
		return nil
	}}
	d9.regRM[2] = &[8]op{0: stOp("FNOP", func(*Stack) {})}
	d9.regRM[4] = &d9Group4
	d9.regRM[5] = &d9Constants
	d9.regRM[6] = &d9Group6
	d9.regRM[7] = &d9Group7

	// DA: m32int arithmetic
	escapes[2].mem = arithMem("FI", Int32)

	// DB: m32int load/store, m80real load/store, FINIT/FCLEX
	db := &escapes[3]
	loadStore(&db.mem, "FILD", "FIST", "FISTP", Int32)
	db.mem[5] = op{"FLD " + Real80.Name, loadPush(Real80)}
	db.mem[7] = op{"FSTP " + Real80.Name, storePop(Real80)}
	db.regRM[4] = &[8]op{
		2: stOp("FCLEX", (*Stack).ClearExceptions),
		3: stOp("FINIT", (*Stack).Init),
	}

	// DC: m64real arithmetic, ST(i) op= ST(0)
	dc := &escapes[4]
	dc.mem = arithMem("F", Real64)
	dc.reg = arithToST(false)

	// DD: m64real load/store, FSTSW, FFREE, FST/FSTP ST(i)
	dd := &escapes[5]
	loadStore(&dd.mem, "FLD", "FST", "FSTP", Real64)
	dd.mem[7] = op{"FSTSW m16", func(t *trap) error {
		return WriteWord(t.m, t.op.Addr, t.st.StatusWord())
	}}
	dd.reg[0] = op{"FFREE ST(i)", func(t *trap) error {
		t.st.Free(int(t.op.RM))
		return nil
	}}
	dd.reg[2] = op{"FST ST(i)", func(t *trap) error {
		t.st.SetST(int(t.op.RM), t.st.ST(0))
		return nil
	}}
	dd.reg[3] = op{"FSTP ST(i)", func(t *trap) error {
		// store before the pop moves TOP
		t.st.SetST(int(t.op.RM), t.st.ST(0))
		t.st.Pop()
		return nil
	}}

	// DE: m16int arithmetic, pop forms, FCOMPP
	de := &escapes[6]
	de.mem = arithMem("FI", Int16)
	de.reg = arithToST(true)
	de.reg[3] = stOp("FCOMPP", func(st *Stack) {
		st.Compare(st.ST(0), st.ST(1))
		st.Pop()
		st.Pop()
	})

	// DF: m16int load/store, m64int load/store, FNSTSW AX
	df := &escapes[7]
	loadStore(&df.mem, "FILD", "FIST", "FISTP", Int16)
	df.mem[5] = op{"FILD " + Int64.Name, loadPush(Int64)}
	df.mem[7] = op{"FISTP " + Int64.Name, storePop(Int64)}
	df.regRM[4] = &[8]op{0: {"FNSTSW AX", func(t *trap) error {
		return t.m.RegWrite(t.regs.AX, uint64(t.st.StatusWord()))
	}}}
}
