package bytecode

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Disassemble returns a human-readable listing of the executable.
func (x *Executable) Disassemble() string {
	return x.DisassembleWithName("")
}

// DisassembleWithName returns a listing with a name header.
func (x *Executable) DisassembleWithName(name string) string {
	var sb strings.Builder

	if name != "" {
		sb.WriteString(fmt.Sprintf("; === %s ===\n", name))
	}
	sb.WriteString(fmt.Sprintf("; Instructions: %d\n", len(x.Bytecodes)))

	entries := make(map[uint32][]string)
	if len(x.Funcs) > 0 {
		sb.WriteString("; Funcs:\n")
		for _, f := range x.Funcs {
			sb.WriteString(fmt.Sprintf(";   %04d %s\n", f.Offset, f.Name))
			entries[f.Offset] = append(entries[f.Offset], "fn "+f.Name)
		}
	}
	if len(x.Asserts) > 0 {
		sb.WriteString("; Asserts:\n")
		for _, a := range x.Asserts {
			sb.WriteString(fmt.Sprintf(";   %04d %q\n", a.Offset, a.Name))
			entries[a.Offset] = append(entries[a.Offset], "assert "+a.Name)
		}
	}
	sb.WriteString("\n; Code:\n")

	for pc, b := range x.Bytecodes {
		for _, e := range entries[uint32(pc)] {
			sb.WriteString(fmt.Sprintf("\n; %s\n", e))
		}
		if b.IsLabel() {
			sb.WriteString(fmt.Sprintf("%04d  %s\n", pc, b))
		} else {
			sb.WriteString(fmt.Sprintf("%04d      %s\n", pc, b))
		}
	}

	return sb.String()
}

// ---------------------------------------------------------------------------
// YAML listing
// ---------------------------------------------------------------------------

type listingEntry struct {
	Name   string `yaml:"name"`
	Offset uint32 `yaml:"offset"`
}

type listingInstr struct {
	PC   int    `yaml:"pc"`
	Op   string `yaml:"op"`
	Text string `yaml:"text"`
}

type listing struct {
	Asserts []listingEntry `yaml:"asserts,omitempty"`
	Funcs   []listingEntry `yaml:"funcs,omitempty"`
	Code    []listingInstr `yaml:"code"`
}

// ListingYAML renders the executable as a YAML document with its entry
// tables and one record per instruction. It is for reading, not reloading.
func (x *Executable) ListingYAML() ([]byte, error) {
	l := listing{Code: make([]listingInstr, 0, len(x.Bytecodes))}
	for _, a := range x.Asserts {
		l.Asserts = append(l.Asserts, listingEntry(a))
	}
	for _, f := range x.Funcs {
		l.Funcs = append(l.Funcs, listingEntry(f))
	}
	for pc, b := range x.Bytecodes {
		l.Code = append(l.Code, listingInstr{PC: pc, Op: b.Op.String(), Text: b.String()})
	}
	out, err := yaml.Marshal(&l)
	if err != nil {
		return nil, fmt.Errorf("yaml listing: %w", err)
	}
	return out, nil
}
