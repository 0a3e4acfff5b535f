package cpu

type Hook interface{}

// This interface abstracts the minimum functionality the DOS runner requires in a CPU emulator.
type Cpu interface {
	// memory mapping
	MemMapProt(addr, size uint64, prot int) error

	// memory IO
	MemRead(addr, size uint64) ([]byte, error)
	MemWrite(addr uint64, p []byte) error

	// register IO
	RegRead(reg int) (uint64, error)
	RegWrite(reg int, val uint64) error

	// execution
	Start(begin, until uint64) error
	Stop() error

	// hooks
	HookAdd(htype int, cb interface{}, begin, end uint64, extra ...int) (Hook, error)
	HookDel(hook Hook) error

	// cleanup
	Close() error
}

type Builder interface {
	New() (Cpu, error)
}
