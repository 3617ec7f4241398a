// Package manifest handles sodigy.toml project configuration.
package manifest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// FileName is the manifest file looked up in a project directory.
const FileName = "sodigy.toml"

// Default runtime limits, matching the VM's own defaults.
const (
	DefaultStackCapacity = 65536
	DefaultMaxCallDepth  = 65536
)

var ErrInvalid = errors.New("invalid manifest")

// Manifest represents a sodigy.toml project configuration.
type Manifest struct {
	Project Project `toml:"project"`
	Build   Build   `toml:"build"`
	Runtime Runtime `toml:"runtime"`
	Log     Log     `toml:"log"`

	// Dir is the directory containing the sodigy.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// Build configures compilation.
type Build struct {
	Backend string `toml:"backend"`
	Output  string `toml:"output"`
	Workers int    `toml:"workers"`
}

// Runtime configures the VM.
type Runtime struct {
	StackCapacity int  `toml:"stack-capacity"`
	MaxCallDepth  int  `toml:"max-call-depth"`
	CheckHeap     bool `toml:"check-heap"`
}

// Log configures logging. Verbosity follows commonlog: 0 is errors only,
// each step adds a level.
type Log struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// Default returns the manifest used when no sodigy.toml exists.
func Default() *Manifest {
	m := &Manifest{}
	m.applyDefaults()
	return m
}

// Load parses a sodigy.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	return m, nil
}

// Parse decodes manifest text and fills in defaults. Unknown keys are
// rejected.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	md, err := toml.Decode(string(data), &m)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("%w: unknown keys %s", ErrInvalid, strings.Join(keys, ", "))
	}
	m.applyDefaults()
	if err := m.validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *Manifest) applyDefaults() {
	if m.Project.Name == "" {
		m.Project.Name = "main"
	}
	if m.Build.Backend == "" {
		m.Build.Backend = "bytecode"
	}
	if m.Build.Output == "" {
		m.Build.Output = m.Project.Name + ".sdgx"
	}
	if m.Build.Workers == 0 {
		m.Build.Workers = 1
	}
	if m.Runtime.StackCapacity == 0 {
		m.Runtime.StackCapacity = DefaultStackCapacity
	}
	if m.Runtime.MaxCallDepth == 0 {
		m.Runtime.MaxCallDepth = DefaultMaxCallDepth
	}
}

func (m *Manifest) validate() error {
	switch {
	case m.Build.Workers < 0:
		return fmt.Errorf("%w: build.workers is %d", ErrInvalid, m.Build.Workers)
	case m.Runtime.StackCapacity < 0:
		return fmt.Errorf("%w: runtime.stack-capacity is %d", ErrInvalid, m.Runtime.StackCapacity)
	case m.Runtime.MaxCallDepth < 0:
		return fmt.Errorf("%w: runtime.max-call-depth is %d", ErrInvalid, m.Runtime.MaxCallDepth)
	case m.Log.Verbosity < 0:
		return fmt.Errorf("%w: log.verbosity is %d", ErrInvalid, m.Log.Verbosity)
	}
	return nil
}

// FindAndLoad walks up from startDir to find a sodigy.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// OutputPath returns the build output path, relative to the manifest
// directory unless it is absolute.
func (m *Manifest) OutputPath() string {
	if filepath.IsAbs(m.Build.Output) || m.Dir == "" {
		return m.Build.Output
	}
	return filepath.Join(m.Dir, m.Build.Output)
}

// LogFilePath returns the log file path, or "" for stderr.
func (m *Manifest) LogFilePath() string {
	if m.Log.File == "" || filepath.IsAbs(m.Log.File) || m.Dir == "" {
		return m.Log.File
	}
	return filepath.Join(m.Dir, m.Log.File)
}

// Write encodes m into dir/sodigy.toml.
func (m *Manifest) Write(dir string) (err error) {
	f, err := os.Create(filepath.Join(dir, FileName))
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return toml.NewEncoder(f).Encode(m)
}
