package cpu

import (
	"bytes"
	"strings"

	cs "github.com/lunixbochs/capstr"
	"github.com/pkg/errors"

	"github.com/xtcorn/xtcorn/go/models"
)

type disEntry struct {
	mem []byte
	dis []models.Ins
}

type Capstr struct {
	Arch, Mode int

	cs *cs.Engine
	// keyed by address, hit only when the bytes match
	cache map[uint64]disEntry
}

func (c *Capstr) Open() (err error) {
	engine, err := cs.New(c.Arch, c.Mode)
	if err == nil {
		c.cs = engine
		c.cache = make(map[uint64]disEntry)
	}
	return errors.Wrap(err, "cs.New() failed")
}

func (c *Capstr) Dis(mem []byte, addr uint64) ([]models.Ins, error) {
	if c.cs == nil {
		if err := c.Open(); err != nil {
			return nil, err
		}
	}
	if ent, ok := c.cache[addr]; ok && bytes.Equal(ent.mem, mem) {
		return ent.dis, nil
	}
	dis, err := c.cs.Dis(mem, addr, 0)
	if err != nil {
		return nil, errors.Wrap(err, "capstone disassembly failed")
	}
	ret := make([]models.Ins, len(dis))
	for i, v := range dis {
		ret[i] = v
	}
	c.cache[addr] = disEntry{mem: append([]byte(nil), mem...), dis: ret}
	return ret, nil
}

// Render disassembles mem into a single "mnemonic operands" string.
func (c *Capstr) Render(mem []byte, addr uint64) (string, error) {
	dis, err := c.Dis(mem, addr)
	if err != nil {
		return "", err
	}
	if len(dis) == 0 {
		return "", errors.Errorf("no instruction decoded from % x", mem)
	}
	var out []string
	for _, ins := range dis {
		out = append(out, strings.TrimSpace(ins.Mnemonic()+" "+ins.OpStr()))
	}
	return strings.Join(out, "; "), nil
}
