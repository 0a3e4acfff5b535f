package loader

import (
	"bytes"
	"io/ioutil"

	"github.com/pkg/errors"
)

var ErrMZ = errors.New("MZ executables are not supported, only .COM images")

// MatchMZ reports an EXE header. DOS accepts either byte order.
func MatchMZ(p []byte) bool {
	magic := getMagic(bytes.NewReader(p))
	return string(magic[:2]) == "MZ" || string(magic[:2]) == "ZM"
}

// LoadFile loads path as a .COM program whose PSP sits at pspSeg.
func LoadFile(path string, pspSeg uint16) (*ComLoader, error) {
	p, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading program")
	}
	if MatchMZ(p) {
		return nil, errors.WithStack(ErrMZ)
	}
	return NewComLoader(bytes.NewReader(p), dosPath(path), pspSeg)
}
