package loader

import (
	"io"
	"io/ioutil"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/xtcorn/xtcorn/go/arch/x86_16"
	"github.com/xtcorn/xtcorn/go/models"
	"github.com/xtcorn/xtcorn/go/models/cpu"
)

const (
	// ComEntry is the offset of the first instruction inside the PSP segment.
	ComEntry = 0x100
	// MaxComSize leaves room below 64K for the initial stack word.
	MaxComSize = 0x10000 - ComEntry - 2
	// MaxPSPSegment keeps the largest environment block below the DOS
	// memory arena.
	MaxPSPSegment = x86_16.ArenaStart - envOffset - maxEnvBlock>>4

	// paragraphs from the PSP to the environment block
	envOffset = 0x1000
)

var _ models.Loader = (*ComLoader)(nil)

// ComLoader lays out a .COM program: environment block, PSP, then the image
// at PSP:0100.
type ComLoader struct {
	LoaderBase

	PSPSegment uint16
	Name       string
	Args       []string
	Env        []string

	image []byte
}

func NewComLoader(r io.Reader, name string, pspSeg uint16) (*ComLoader, error) {
	if pspSeg == 0 || pspSeg > MaxPSPSegment {
		return nil, errors.Errorf("PSP segment %#x outside 0001..%04X", pspSeg, MaxPSPSegment)
	}
	image, err := ioutil.ReadAll(io.LimitReader(r, MaxComSize+1))
	if err != nil {
		return nil, errors.Wrap(err, "reading COM image")
	}
	if len(image) == 0 {
		return nil, errors.New("empty COM image")
	}
	if len(image) > MaxComSize {
		return nil, errors.Errorf("COM image larger than %#x bytes", MaxComSize)
	}
	return &ComLoader{
		LoaderBase: LoaderBase{
			arch:  "x86_16",
			os:    "DOS",
			entry: cpu.SegOfs{Seg: pspSeg, Off: ComEntry}.Linear(),
		},
		PSPSegment: pspSeg,
		Name:       name,
		image:      image,
	}, nil
}

// dosPath gives a host path the drive C: form the program expects in its
// environment block.
func dosPath(path string) string {
	return `C:\` + strings.ToUpper(filepath.Base(path))
}

// EnvSegment is where the environment block goes, just past the program's 64K.
func (c *ComLoader) EnvSegment() uint16 {
	return c.PSPSegment + envOffset
}

func (c *ComLoader) Segments() ([]models.SegmentData, error) {
	env, err := EnvBlock(c.Env, c.Name)
	if err != nil {
		return nil, err
	}
	psp, err := x86_16.NewPSP(c.PSPSegment, c.Args)
	if err != nil {
		return nil, err
	}
	psp.EnvironmentSegment = c.EnvSegment()
	pspData, err := psp.Pack()
	if err != nil {
		return nil, err
	}
	fixed := func(p []byte) func() ([]byte, error) {
		return func() ([]byte, error) { return p, nil }
	}
	return []models.SegmentData{
		{
			Addr:     cpu.SegOfs{Seg: c.EnvSegment()}.Linear(),
			Size:     uint64(len(env)),
			DataFunc: fixed(env),
		},
		{
			Addr:     cpu.SegOfs{Seg: c.PSPSegment}.Linear(),
			Size:     x86_16.PSPSize,
			DataFunc: fixed(pspData),
		},
		{
			Addr:     c.entry,
			Size:     uint64(len(c.image)),
			DataFunc: fixed(c.image),
		},
	}, nil
}
