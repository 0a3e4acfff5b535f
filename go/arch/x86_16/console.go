package x86_16

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"golang.org/x/term"
)

// Console is the DOS standard input and output.
type Console struct {
	In  io.Reader
	Out io.Writer

	// set when In is the terminal fd
	raw bool
	fd  int
}

// NewConsole uses in directly, switching it to raw mode for each key read
// when it is a terminal, so single-key reads don't wait for Enter.
func NewConsole(in *os.File, out io.Writer) *Console {
	c := &Console{Out: out}
	if in == nil {
		return c
	}
	c.In = in
	if term.IsTerminal(int(in.Fd())) {
		c.raw, c.fd = true, int(in.Fd())
	}
	return c
}

// ReadKey blocks for one byte of input. End of input reads as CR.
func (c *Console) ReadKey() (byte, error) {
	if c.In == nil {
		return '\r', nil
	}
	if c.raw {
		state, err := term.MakeRaw(c.fd)
		if err != nil {
			return 0, errors.Wrap(err, "switching console to raw mode")
		}
		defer term.Restore(c.fd, state)
	}
	var b [1]byte
	n, err := c.In.Read(b[:])
	if n == 1 {
		return b[0], nil
	}
	if err == io.EOF || err == nil {
		return '\r', nil
	}
	return 0, errors.Wrap(err, "reading console")
}

func (c *Console) Write(p []byte) (int, error) {
	return c.Out.Write(p)
}
