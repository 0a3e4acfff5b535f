package unicorn

import (
	"github.com/pkg/errors"
	uc "github.com/unicorn-engine/unicorn/bindings/go/unicorn"

	"github.com/xtcorn/xtcorn/go/models/cpu"
)

type Builder struct {
	Arch, Mode int
}

func (b *Builder) New() (cpu.Cpu, error) {
	u, err := uc.NewUnicorn(b.Arch, b.Mode)
	if err != nil {
		return nil, errors.Wrap(err, "NewUnicorn() failed")
	}
	return &UnicornCpu{u}, nil
}

type UnicornCpu struct {
	uc.Unicorn
}

func (u *UnicornCpu) Backend() interface{} {
	return u.Unicorn
}

func (u *UnicornCpu) HookAdd(htype int, cb interface{}, start uint64, end uint64, extra ...int) (cpu.Hook, error) {
	// callbacks take a cpu.Cpu rather than the unicorn handle
	var wrap interface{}
	switch htype {
	case cpu.HOOK_CODE:
		cbc, ok := cb.(func(cpu.Cpu, uint64, uint32))
		if !ok {
			return nil, errors.Errorf("bad HOOK_CODE callback type %T", cb)
		}
		wrap = func(_ uc.Unicorn, addr uint64, size uint32) { cbc(u, addr, size) }

	case cpu.HOOK_INTR:
		cbc, ok := cb.(func(cpu.Cpu, uint32))
		if !ok {
			return nil, errors.Errorf("bad HOOK_INTR callback type %T", cb)
		}
		wrap = func(_ uc.Unicorn, intno uint32) { cbc(u, intno) }

	default:
		return nil, errors.Errorf("unsupported hook type %d", htype)
	}
	return u.Unicorn.HookAdd(htype, wrap, start, end, extra...)
}

func (u *UnicornCpu) HookDel(hh cpu.Hook) error {
	h, ok := hh.(uc.Hook)
	if !ok {
		return errors.Errorf("not a unicorn hook: %T", hh)
	}
	return u.Unicorn.HookDel(h)
}
