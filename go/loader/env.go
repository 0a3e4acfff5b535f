package loader

import (
	"bytes"
	"strings"

	"github.com/pkg/errors"
)

// maxEnvBlock is the most a DOS environment can hold.
const maxEnvBlock = 0x8000

// EnvBlock packs a DOS environment: NUL terminated NAME=value strings, an
// empty string, then a word count of 1 and the program's path.
func EnvBlock(env []string, prog string) ([]byte, error) {
	var buf bytes.Buffer
	for _, v := range env {
		if !strings.Contains(v, "=") {
			return nil, errors.Errorf("bad environment entry %q", v)
		}
		name := strings.SplitN(v, "=", 2)
		buf.WriteString(strings.ToUpper(name[0]) + "=" + name[1])
		buf.WriteByte(0)
	}
	buf.WriteByte(0)
	buf.Write([]byte{1, 0})
	buf.WriteString(prog)
	buf.WriteByte(0)
	if buf.Len() > maxEnvBlock {
		return nil, errors.Errorf("environment too large (%d > %d bytes)", buf.Len(), maxEnvBlock)
	}
	return buf.Bytes(), nil
}
