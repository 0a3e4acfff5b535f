package cmd

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"

	xtcorn "github.com/xtcorn/xtcorn/go"
	"github.com/xtcorn/xtcorn/go/loader"
	"github.com/xtcorn/xtcorn/go/models"
)

type strslice []string

func (s *strslice) String() string {
	return fmt.Sprintf("%v", *s)
}

func (s *strslice) Set(value string) error {
	*s = append(*s, value)
	return nil
}

// ComCmd is the command line front end for running a .COM program.
type ComCmd struct {
	Config *models.Config
	Flags  *flag.FlagSet
	Stderr io.Writer

	// set by Parse
	exe  string
	args []string
	env  []string

	// -o file, closed by Run
	traceFile *os.File
}

func NewComCmd() *ComCmd {
	return newComCmd(flag.ExitOnError)
}

func newComCmd(handling flag.ErrorHandling) *ComCmd {
	return &ComCmd{
		Flags:  flag.NewFlagSet("com", handling),
		Stderr: os.Stderr,
	}
}

type stackTracer interface {
	StackTrace() errors.StackTrace
}

func (c *ComCmd) PrintError(err error) {
	// print an error, and a stacktrace if available
	w := c.Stderr
	fmt.Fprintf(w, "%s\n", strings.Repeat("-", 40))
	fmt.Fprintf(w, "Error: %s\n", err)
	st, ok := errors.Cause(err).(stackTracer)
	if !ok {
		st, ok = err.(stackTracer)
	}
	if !ok {
		return
	}
	var frames [][2]string
	width := 0
	for _, f := range st.StackTrace() {
		fileline := fmt.Sprintf("%s:%d", f, f)
		method := fmt.Sprintf("%n", f)
		frames = append(frames, [2]string{fileline, method})
		if len(fileline) > width {
			width = len(fileline)
		}
		if method == "main" {
			break
		}
	}
	for _, f := range frames {
		fmt.Fprintf(w, "%s%s | %s()\n", f[0], strings.Repeat(" ", width-len(f[0])), f[1])
	}
}

// Parse fills in Config from argv, which includes the program name.
func (c *ComCmd) Parse(argv []string) error {
	fs := c.Flags
	verbose := fs.Bool("v", false, "verbose output: entry disassembly and register changes after each interrupt")
	fptrace := fs.Bool("fptrace", false, "trace emulated FP instructions")
	fpdis := fs.Bool("fpdis", false, "disassemble the reconstructed FP instruction in -fptrace output")
	strace := fs.Bool("strace", false, "trace DOS service calls")
	trace := fs.Bool("trace", false, "shorthand for -fptrace -fpdis -strace")
	color := fs.Bool("color", isatty.IsTerminal(os.Stderr.Fd()), "colour trace output")
	outfile := fs.String("o", "", "redirect trace output to file (default stderr)")
	psp := fs.Uint("psp", 0x0090, "segment to load the PSP at")
	var envSet strslice
	fs.Var(&envSet, "set", "set DOS environment var in the form name=value")

	fs.Usage = func() {
		fmt.Fprintf(c.Stderr, "Usage: %s [options] <file.com> [args...]\n\nOptions:\n", argv[0])
		var flags []*flag.Flag
		fs.VisitAll(func(f *flag.Flag) { flags = append(flags, f) })
		models.PrintFlags(c.Stderr, flags)
		fmt.Fprintf(c.Stderr, "\nExample:\n  %s -fptrace -set PATH=C:\\ bins/mandel.com\n", argv[0])
	}
	if err := fs.Parse(argv[1:]); err != nil {
		return err
	}
	args := fs.Args()
	if len(args) < 1 {
		fs.Usage()
		return errors.New("no .COM file given")
	}
	if *psp == 0 || *psp > loader.MaxPSPSegment {
		return errors.Errorf("PSP segment %#x out of range (max %#x)", *psp, loader.MaxPSPSegment)
	}
	for _, v := range envSet {
		if !strings.Contains(v, "=") {
			return errors.Errorf("invalid env set %q", v)
		}
	}

	config := &models.Config{
		Color:      *color,
		TraceFP:    *fptrace || *trace,
		TraceDis:   *fpdis || *trace,
		TraceSys:   *strace || *trace,
		Verbose:    *verbose,
		Stdin:      os.Stdin,
		PSPSegment: uint16(*psp),
	}
	if *outfile != "" {
		out, err := os.OpenFile(*outfile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return errors.Wrap(err, "opening trace output")
		}
		config.Output = out
		c.traceFile = out
	}
	c.Config = config.Init()
	c.exe, c.args, c.env = args[0], args[1:], envSet
	return nil
}

// Run executes the parsed program and returns the process exit code.
func (c *ComCmd) Run() int {
	if c.traceFile != nil {
		defer c.traceFile.Close()
	}
	l, err := loader.LoadFile(c.exe, c.Config.PSPSegment)
	if err != nil {
		c.PrintError(errors.Wrap(err, "failed to load COM file"))
		return 1
	}
	l.Args, l.Env = c.args, c.env
	u, err := xtcorn.NewXtcorn(l, c.Config)
	if err != nil {
		c.PrintError(err)
		return 1
	}
	defer u.Close()
	err = u.Run()
	if e, ok := errors.Cause(err).(models.ExitStatus); ok {
		return int(e)
	} else if err != nil {
		c.PrintError(err)
		return 1
	}
	return 0
}

func Main(argv []string) int {
	c := NewComCmd()
	if err := c.Parse(argv); err != nil {
		fmt.Fprintln(c.Stderr, err)
		return 1
	}
	return c.Run()
}
