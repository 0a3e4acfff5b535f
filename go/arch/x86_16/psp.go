package x86_16

import (
	"bytes"
	"encoding/binary"
	"strings"

	"github.com/lunixbochs/struc"
	"github.com/pkg/errors"
)

// PSPSize is the size of the Program Segment Prefix a .COM image follows.
const PSPSize = 0x100

// PSP is the Program Segment Prefix.
type PSP struct {
	CPMExit                     [2]uint8
	FirstFreeSegment            uint16
	Reserved1                   uint8
	CPMCall5Compat              [5]uint8
	OldTSRAddress               uint32
	OldBreakAddress             uint32
	CriticalErrorHandlerAddress uint32
	CallerPSPSegment            uint16
	JobFileTable                [20]uint8
	EnvironmentSegment          uint16
	INT21SSSP                   uint32
	JobFileTableSize            uint16
	JobFileTablePointer         uint32
	PreviousPSP                 uint32
	Reserved2                   uint32
	DOSVersion                  uint16
	Reserved3                   [14]uint8
	DOSFarCall                  [3]uint8
	Reserved4                   uint16
	ExtendedFCB1                [7]uint8
	FCB1                        [16]uint8
	FCB2                        [20]uint8
	CommandLineLength           uint8
	CommandLine                 [127]byte
}

// NewPSP builds the prefix for a program loaded at segment seg, with args
// joined into the command tail.
func NewPSP(seg uint16, args []string) (*PSP, error) {
	tail := ""
	if len(args) > 0 {
		tail = " " + strings.Join(args, " ")
	}
	// the tail is terminated by CR, which the length byte doesn't count
	if len(tail) > 126 {
		return nil, errors.Errorf("command tail too long (%d > 126 bytes)", len(tail))
	}
	psp := &PSP{
		// INT 20h
		CPMExit:          [2]uint8{0xcd, 0x20},
		FirstFreeSegment: 0xa000,
		CallerPSPSegment: seg,
		// major in the low byte
		DOSVersion: 0x1606,
		// INT 21h; RETF
		DOSFarCall:        [3]uint8{0xcd, 0x21, 0xcb},
		JobFileTableSize:  20,
		CommandLineLength: uint8(len(tail)),
	}
	for i := range psp.JobFileTable {
		psp.JobFileTable[i] = 0xff
	}
	// stdin, stdout, stderr, aux, prn
	copy(psp.JobFileTable[:], []uint8{1, 1, 1, 0, 2})
	copy(psp.CommandLine[:], tail+"\r")
	return psp, nil
}

func (p *PSP) Pack() ([]byte, error) {
	var buf bytes.Buffer
	if err := struc.PackWithOrder(&buf, p, binary.LittleEndian); err != nil {
		return nil, errors.Wrap(err, "packing PSP")
	}
	if buf.Len() != PSPSize {
		return nil, errors.Errorf("PSP packed to %d bytes", buf.Len())
	}
	return buf.Bytes(), nil
}
