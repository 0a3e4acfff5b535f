package models

import (
	"io"
	"os"
)

type Config struct {
	Color   bool
	TraceFP bool
	// TraceDis renders trapped FP instructions with the disassembler
	TraceDis bool
	TraceSys bool
	Verbose  bool

	Output io.Writer
	Stdin  *os.File
	Stdout io.Writer

	// PSP segment the .COM image is loaded behind
	PSPSegment uint16
}

func (c *Config) Init() *Config {
	if c == nil {
		c = &Config{}
	}
	if c.Output == nil {
		c.Output = os.Stderr
	}
	if c.Stdout == nil {
		c.Stdout = os.Stdout
	}
	if c.PSPSegment == 0 {
		c.PSPSegment = 0x0090
	}
	return c
}
