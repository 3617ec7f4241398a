package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/baehyunsol/Sodigy-sub004/compiler"
	"github.com/baehyunsol/Sodigy-sub004/manifest"
	"github.com/baehyunsol/Sodigy-sub004/mir"
	bc "github.com/baehyunsol/Sodigy-sub004/pkg/bytecode"
	"github.com/baehyunsol/Sodigy-sub004/vm"
)

// initCommand writes a default manifest into dir.
func (c *cli) initCommand(args []string, dir string) int {
	fs := c.flagSet("init", "[-name n]")
	name := fs.String("name", "", "Project name (default: directory name)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if _, err := os.Stat(filepath.Join(dir, manifest.FileName)); err == nil {
		return c.fail("%s already exists in %s", manifest.FileName, dir)
	}
	if *name == "" {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return c.fail("%v", err)
		}
		*name = filepath.Base(abs)
	}

	m := manifest.Default()
	m.Project = manifest.Project{Name: *name, Version: "0.1.0"}
	m.Build.Output = *name + ".sdgx"
	if err := m.Write(dir); err != nil {
		return c.fail("write manifest: %v", err)
	}
	fmt.Fprintf(c.stdout, "Wrote %s\n", filepath.Join(dir, manifest.FileName))
	return 0
}

// buildCommand compiles a MIR program file.
// Usage:
//
//	sdg build prog.mir.cbor             # prog.sdgx, or [build] output
//	sdg build -o out.sdgx prog.mir.cbor # custom output
func (c *cli) buildCommand(args []string) int {
	m := c.manifest
	fs := c.flagSet("build", "[-o out] [-backend b] [-workers n] prog.mir.cbor")
	output := fs.String("o", "", "Output path")
	backendName := fs.String("backend", m.Build.Backend, "Backend: bytecode, c, rust, python")
	workers := fs.Int("workers", m.Build.Workers, "Lower units on n goroutines")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return 2
	}
	input := fs.Arg(0)

	backend, err := compiler.ParseBackend(*backendName)
	if err != nil {
		return c.fail("%v", err)
	}

	prog, err := mir.ReadProgramFile(input)
	if err != nil {
		return c.fail("%v", err)
	}

	art, err := compiler.Compile(prog, compiler.WithBackend(backend), compiler.WithWorkers(*workers))
	if err != nil {
		var ie *compiler.InternalError
		if errors.As(err, &ie) {
			log.Errorf("%s", ie)
		}
		return c.fail("%v", err)
	}

	out := *output
	if out == "" {
		out = c.defaultOutput(input)
	}
	if err := os.WriteFile(out, art.Bytes, 0o644); err != nil {
		return c.fail("%v", err)
	}
	log.Infof("wrote %s (%d bytes)", out, len(art.Bytes))
	fmt.Fprintf(c.stdout, "Built %s (%d instructions)\n", out, len(art.Executable.Bytecodes))
	return 0
}

// defaultOutput is the manifest's output when one was found, otherwise
// the input path with its extension replaced.
func (c *cli) defaultOutput(input string) string {
	if c.manifest.Dir != "" {
		return c.manifest.OutputPath()
	}
	base := strings.TrimSuffix(input, ".cbor")
	base = strings.TrimSuffix(base, ".mir")
	return base + ".sdgx"
}

// vmFlags registers the runtime flags on fs, defaulting to the manifest's
// [runtime] table. The returned func builds the options after parsing and
// rejects limits that are not positive.
func (c *cli) vmFlags(fs *flag.FlagSet) func() ([]vm.Option, error) {
	rt := c.manifest.Runtime
	stack := fs.Int("stack-capacity", rt.StackCapacity, "Register stack capacity in words")
	depth := fs.Int("max-call-depth", rt.MaxCallDepth, "Call stack depth limit")
	check := fs.Bool("check-heap", rt.CheckHeap, "Check heap integrity after each run")
	return func() ([]vm.Option, error) {
		if *stack <= 0 {
			return nil, fmt.Errorf("-stack-capacity must be positive, got %d", *stack)
		}
		if *depth <= 0 {
			return nil, fmt.Errorf("-max-call-depth must be positive, got %d", *depth)
		}
		return []vm.Option{
			vm.WithStdout(c.stdout),
			vm.WithStderr(c.stderr),
			vm.WithStackCapacity(*stack),
			vm.WithMaxCallDepth(*depth),
			vm.WithHeapCheck(*check),
		}, nil
	}
}

func (c *cli) load(path string, opts []vm.Option) (*bc.Executable, *vm.VM, error) {
	x, err := bc.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	v, err := vm.New(x, opts...)
	if err != nil {
		return nil, nil, err
	}
	return x, v, nil
}

// runCommand runs one function. Trailing arguments are passed to it as
// integers.
func (c *cli) runCommand(args []string) int {
	fs := c.flagSet("run", "[-entry main] prog.sdgx [int args...]")
	entry := fs.String("entry", "main", "Function to run")
	opts := c.vmFlags(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		fs.Usage()
		return 2
	}

	vmOpts, err := opts()
	if err != nil {
		fmt.Fprintf(c.stderr, "Error: %v\n", err)
		return 2
	}

	var callArgs []bc.Value
	for _, a := range fs.Args()[1:] {
		n, err := strconv.ParseInt(a, 10, 32)
		if err != nil {
			return c.fail("argument %q: %v", a, err)
		}
		callArgs = append(callArgs, bc.Int(int32(n)))
	}

	_, v, err := c.load(fs.Arg(0), vmOpts)
	if err != nil {
		return c.fail("%v", err)
	}
	res, err := v.RunFunc(*entry, callArgs...)
	if err != nil {
		return c.fail("%v", err)
	}
	st := v.Stats()
	log.Infof("%d steps, max call depth %d", st.Steps, st.MaxCallDepth)
	if !res.Exited {
		fmt.Fprintln(c.stdout, res.Value)
	}
	return 0
}

// testCommand runs every assertion and reports PASS/FAIL per name.
func (c *cli) testCommand(args []string) int {
	fs := c.flagSet("test", "prog.sdgx")
	opts := c.vmFlags(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return 2
	}

	vmOpts, err := opts()
	if err != nil {
		fmt.Fprintf(c.stderr, "Error: %v\n", err)
		return 2
	}
	_, v, err := c.load(fs.Arg(0), vmOpts)
	if err != nil {
		return c.fail("%v", err)
	}

	passed, failed := 0, 0
	for _, r := range v.RunAsserts() {
		switch {
		case r.Err != nil:
			failed++
			fmt.Fprintf(c.stdout, "FAIL %s: %v\n", r.Name, r.Err)
		case !r.Passed:
			failed++
			fmt.Fprintf(c.stdout, "FAIL %s\n", r.Name)
		default:
			passed++
			fmt.Fprintf(c.stdout, "PASS %s\n", r.Name)
		}
	}
	fmt.Fprintf(c.stdout, "%d passed, %d failed\n", passed, failed)
	if failed > 0 {
		return 1
	}
	return 0
}

func (c *cli) disasmCommand(args []string) int {
	fs := c.flagSet("disasm", "[-format text|yaml] prog.sdgx")
	format := fs.String("format", "text", "Listing format: text or yaml")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return 2
	}

	x, err := bc.ReadFile(fs.Arg(0))
	if err != nil {
		return c.fail("%v", err)
	}
	switch *format {
	case "text":
		fmt.Fprint(c.stdout, x.DisassembleWithName(filepath.Base(fs.Arg(0))))
	case "yaml":
		data, err := x.ListingYAML()
		if err != nil {
			return c.fail("%v", err)
		}
		c.stdout.Write(data)
	default:
		return c.fail("unknown format %q", *format)
	}
	return 0
}
