package cpu

// Machine is a register file and real-mode memory with no instruction decoder.
// Trap handlers are driven against it directly, which is how the kernel and
// FPU packages are tested without a CPU backend.
type Machine struct {
	*Mem
	*Regs

	override    int
	hasOverride bool
}

func NewMachine(enums []int) *Machine {
	return &Machine{Mem: NewMem(), Regs: NewRegs(16, enums)}
}

func (m *Machine) SetSegmentOverride(reg int) {
	m.override, m.hasOverride = reg, true
}

func (m *Machine) ClearSegmentOverride() {
	m.hasOverride = false
}

func (m *Machine) SegmentOverride() (int, bool) {
	return m.override, m.hasOverride
}
