package fpu

import (
	"bytes"
	"encoding/binary"

	"github.com/lunixbochs/struc"
	"github.com/pkg/errors"

	"github.com/xtcorn/xtcorn/go/models/cpu"
)

// EnvSize is the size of the 16-bit FSTENV/FLDENV image.
const EnvSize = 14

// Env is the real-mode environment image. Instruction and operand pointers are
// not tracked; they are stored as zero and ignored on load.
type Env struct {
	Control         uint16
	Status          uint16
	Tag             uint16
	IPOffset        uint16
	IPSelector      uint16
	OperandOffset   uint16
	OperandSelector uint16
}

func (s *Stack) Env() Env {
	return Env{
		Control: s.ControlWord(),
		Status:  s.StatusWord(),
		Tag:     s.TagWord(),
	}
}

func (s *Stack) LoadEnv(e Env) {
	s.SetControlWord(e.Control)
	s.SetStatusWord(e.Status)
	s.SetTagWord(e.Tag)
}

// StoreEnv is FSTENV.
func StoreEnv(m Memory, a cpu.SegOfs, s *Stack) error {
	var buf bytes.Buffer
	env := s.Env()
	if err := struc.PackWithOrder(&buf, &env, binary.LittleEndian); err != nil {
		return errors.Wrap(err, "packing environment")
	}
	return write(m, a, buf.Bytes())
}

// LoadEnv is FLDENV.
func LoadEnv(m Memory, a cpu.SegOfs, s *Stack) error {
	p, err := read(m, a, EnvSize)
	if err != nil {
		return err
	}
	var env Env
	if err := struc.UnpackWithOrder(bytes.NewReader(p), &env, binary.LittleEndian); err != nil {
		return errors.Wrap(err, "unpacking environment")
	}
	s.LoadEnv(env)
	return nil
}
