package main

import (
	"os"

	"github.com/xtcorn/xtcorn/go/cmd"
)

func main() {
	os.Exit(cmd.Main(os.Args))
}
