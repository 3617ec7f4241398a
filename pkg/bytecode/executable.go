package bytecode

import (
	"fmt"
	"os"
)

// Entry names an offset into Executable.Bytecodes.
type Entry struct {
	Name   string
	Offset uint32
}

// Executable is a linked program: a flat instruction stream plus named
// entry points. Every label in Bytecodes is Static.
type Executable struct {
	Asserts   []Entry
	Bytecodes []Bytecode
	Funcs     []Entry
}

// Func returns the entry offset of the named function.
func (x *Executable) Func(name string) (uint32, bool) {
	for _, f := range x.Funcs {
		if f.Name == name {
			return f.Offset, true
		}
	}
	return 0, false
}

// Assert returns the entry offset of the named assertion.
func (x *Executable) Assert(name string) (uint32, bool) {
	for _, a := range x.Asserts {
		if a.Name == name {
			return a.Offset, true
		}
	}
	return 0, false
}

// Equal reports whether two executables have the same tables and code.
func (x *Executable) Equal(o *Executable) bool {
	if len(x.Asserts) != len(o.Asserts) || len(x.Funcs) != len(o.Funcs) ||
		len(x.Bytecodes) != len(o.Bytecodes) {
		return false
	}
	for i := range x.Asserts {
		if x.Asserts[i] != o.Asserts[i] {
			return false
		}
	}
	for i := range x.Funcs {
		if x.Funcs[i] != o.Funcs[i] {
			return false
		}
	}
	for i := range x.Bytecodes {
		if !x.Bytecodes[i].Equal(o.Bytecodes[i]) {
			return false
		}
	}
	return true
}

// WriteFile encodes x and writes it to path.
func (x *Executable) WriteFile(path string) error {
	data, err := x.Encode()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write executable: %w", err)
	}
	return nil
}

// ReadFile loads and decodes an executable written by WriteFile.
func ReadFile(path string) (*Executable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read executable: %w", err)
	}
	return DecodeExecutable(data)
}
