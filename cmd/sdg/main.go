// Sodigy CLI - compiles MIR programs to bytecode and runs them
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/baehyunsol/Sodigy-sub004/manifest"
)

var log = commonlog.GetLogger("sodigy.cli")

// verbosity counts repeated -v flags.
type verbosity int

func (v *verbosity) String() string { return strconv.Itoa(int(*v)) }

func (v *verbosity) Set(s string) error {
	on, err := strconv.ParseBool(s)
	if err != nil {
		return err
	}
	if on {
		*v++
	}
	return nil
}

func (v *verbosity) IsBoolFlag() bool { return true }

// cli carries global state shared by subcommands.
type cli struct {
	stdout   io.Writer
	stderr   io.Writer
	manifest *manifest.Manifest
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run parses args and dispatches to a subcommand. It returns the process
// exit code.
func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("sdg", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var verbose verbosity
	fs.Var(&verbose, "v", "Verbose output (repeat for more)")
	projectDir := fs.String("C", ".", "Directory to search for "+manifest.FileName)

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: sdg [options] <command> [arguments]\n\n")
		fmt.Fprintf(stderr, "Compiles Sodigy MIR programs to bytecode and runs them.\n\n")
		fmt.Fprintf(stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nCommands:\n")
		fmt.Fprintf(stderr, "  init [-name n]                          Write a default %s\n", manifest.FileName)
		fmt.Fprintf(stderr, "  build [-o out] [-backend b] prog.mir.cbor  Compile to an executable\n")
		fmt.Fprintf(stderr, "  run [-entry main] prog.sdgx             Run a function and print its value\n")
		fmt.Fprintf(stderr, "  test prog.sdgx                          Run every assertion\n")
		fmt.Fprintf(stderr, "  disasm [-format text|yaml] prog.sdgx    Print a listing\n")
		fmt.Fprintf(stderr, "\nExamples:\n")
		fmt.Fprintf(stderr, "  sdg build -o fib.sdgx fib.mir.cbor\n")
		fmt.Fprintf(stderr, "  sdg -v run -entry main fib.sdgx\n")
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	m, err := manifest.FindAndLoad(*projectDir)
	if err != nil {
		fmt.Fprintf(stderr, "Error loading manifest: %v\n", err)
		return 1
	}
	if m == nil {
		m = manifest.Default()
	}

	level := m.Log.Verbosity + int(verbose)
	if path := m.LogFilePath(); path != "" {
		commonlog.Configure(level, &path)
	} else {
		commonlog.Configure(level, nil)
	}

	c := &cli{stdout: stdout, stderr: stderr, manifest: m}
	cmd, rest := fs.Arg(0), fs.Args()[1:]
	log.Debugf("command %s %v", cmd, rest)

	switch cmd {
	case "init":
		return c.initCommand(rest, *projectDir)
	case "build":
		return c.buildCommand(rest)
	case "run":
		return c.runCommand(rest)
	case "test":
		return c.testCommand(rest)
	case "disasm":
		return c.disasmCommand(rest)
	}
	fmt.Fprintf(stderr, "Error: unknown command %q\n", cmd)
	fs.Usage()
	return 2
}

func (c *cli) flagSet(name, usage string) *flag.FlagSet {
	fs := flag.NewFlagSet("sdg "+name, flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	fs.Usage = func() {
		fmt.Fprintf(c.stderr, "Usage: sdg %s %s\n\n", name, usage)
		fs.PrintDefaults()
	}
	return fs
}

func (c *cli) fail(format string, args ...any) int {
	fmt.Fprintf(c.stderr, "Error: "+format+"\n", args...)
	return 1
}
