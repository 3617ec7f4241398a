package compiler

import (
	"fmt"
	"strings"

	"github.com/baehyunsol/Sodigy-sub004/mir"
	"github.com/baehyunsol/Sodigy-sub004/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// Backends
// ---------------------------------------------------------------------------

// Backend selects the code generator.
type Backend uint8

const (
	BackendBytecode Backend = iota
	BackendC
	BackendRust
	BackendPython
)

var backendNames = [...]string{
	BackendBytecode: "bytecode",
	BackendC:        "c",
	BackendRust:     "rust",
	BackendPython:   "python",
}

func (b Backend) String() string {
	if int(b) < len(backendNames) {
		return backendNames[b]
	}
	return fmt.Sprintf("Backend(%d)", uint8(b))
}

// ParseBackend maps a backend name (case-insensitive) to a Backend.
func ParseBackend(name string) (Backend, error) {
	for i, n := range backendNames {
		if strings.EqualFold(name, n) {
			return Backend(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedBackend, name)
}

// ---------------------------------------------------------------------------
// Compile
// ---------------------------------------------------------------------------

// Artifact is the output of a successful compile.
type Artifact struct {
	Backend    Backend
	Executable *bytecode.Executable
	Bytes      []byte // encoded Executable
}

type config struct {
	backend Backend
	workers int
}

// Option configures Compile.
type Option func(*config)

// WithBackend selects the code generator. The default is BackendBytecode.
func WithBackend(b Backend) Option { return func(c *config) { c.backend = b } }

// WithWorkers lowers units on n goroutines. n <= 1 lowers sequentially.
func WithWorkers(n int) Option { return func(c *config) { c.workers = n } }

// Compile lowers, links and encodes prog. Backends other than bytecode are
// rejected with ErrUnsupportedBackend before any work is done.
func Compile(prog *mir.Program, opts ...Option) (*Artifact, error) {
	cfg := config{backend: BackendBytecode, workers: 1}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.backend != BackendBytecode {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedBackend, cfg.backend)
	}

	var units []*Unit
	var err error
	if cfg.workers > 1 {
		units, err = LowerParallel(prog, cfg.workers)
	} else {
		units, err = Lower(prog)
	}
	if err != nil {
		return nil, err
	}

	x, err := Link(units)
	if err != nil {
		return nil, err
	}
	data, err := x.Encode()
	if err != nil {
		return nil, fmt.Errorf("encode executable: %w", err)
	}
	return &Artifact{Backend: cfg.backend, Executable: x, Bytes: data}, nil
}
