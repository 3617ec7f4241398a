package compiler

import (
	"fmt"

	"fortio.org/safecast"
	"github.com/google/uuid"

	"github.com/baehyunsol/Sodigy-sub004/mir"
	"github.com/baehyunsol/Sodigy-sub004/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// Symbols: program-wide tables, built once and shared read-only
// ---------------------------------------------------------------------------

// Symbols resolves definition ids to the program's functions and top-level
// lets. It is never written after NewSymbols returns, so concurrent sessions
// may share one.
type Symbols struct {
	funcs map[mir.DefID]*mir.Func
	lets  map[mir.DefID]uint32 // def -> Global register index
}

// NewSymbols indexes prog.
func NewSymbols(prog *mir.Program) *Symbols {
	s := &Symbols{
		funcs: make(map[mir.DefID]*mir.Func, len(prog.Funcs)),
		lets:  make(map[mir.DefID]uint32, len(prog.Lets)),
	}
	for i := range prog.Funcs {
		s.funcs[prog.Funcs[i].Def] = &prog.Funcs[i]
	}
	for i := range prog.Lets {
		s.lets[prog.Lets[i].Def] = uint32(i)
	}
	return s
}

// ---------------------------------------------------------------------------
// Session: per-compilation lowering state
// ---------------------------------------------------------------------------

// Session carries the mutable state of lowering. One session lowers one
// unit at a time; beginUnit resets everything unit-scoped.
type Session struct {
	ID      uuid.UUID
	symbols *Symbols

	// unit-scoped
	unit       string
	code       []bytecode.Bytecode
	nextLabel  uint32
	locals     map[mir.DefID]bytecode.Register
	scopes     [][]bytecode.Register // live locals, innermost last
	localCount uint32                // high-water mark of Local indices
}

// NewSession creates a session over the given symbol tables.
func NewSession(symbols *Symbols) *Session {
	return &Session{ID: uuid.New(), symbols: symbols}
}

func (s *Session) beginUnit(name string) {
	s.unit = name
	s.code = nil
	s.nextLabel = 0
	s.locals = make(map[mir.DefID]bytecode.Register)
	s.scopes = s.scopes[:0]
	s.localCount = 0
}

// endUnit packages the unit's stream.
func (s *Session) endUnit(kind UnitKind, def mir.DefID, span mir.Span) *Unit {
	u := &Unit{
		Kind:      kind,
		Def:       def,
		Name:      s.unit,
		Span:      span,
		Bytecodes: s.code,
		Locals:    s.localCount,
		Labels:    s.nextLabel,
	}
	s.code = nil
	log.Debugf("[%s] lowered %s %q: %d instructions, %d locals, %d labels",
		s.ID, kind, u.Name, len(u.Bytecodes), u.Locals, u.Labels)
	return u
}

func (s *Session) emit(b ...bytecode.Bytecode) {
	s.code = append(s.code, b...)
}

func (s *Session) newLabel() bytecode.Label {
	l := bytecode.LocalLabel(s.nextLabel)
	s.nextLabel++
	return l
}

// fatalf aborts lowering of the current unit.
func (s *Session) fatalf(span mir.Span, format string, args ...any) {
	panic(&InternalError{Unit: s.unit, Span: span, Msg: fmt.Sprintf(format, args...)})
}

// ---------------------------------------------------------------------------
// Local registers and scopes
// ---------------------------------------------------------------------------

func (s *Session) pushScope() {
	s.scopes = append(s.scopes, nil)
}

// popScope forgets the innermost scope's bindings and returns their
// registers, innermost first.
func (s *Session) popScope() []bytecode.Register {
	top := s.scopes[len(s.scopes)-1]
	s.scopes = s.scopes[:len(s.scopes)-1]
	for def, r := range s.locals {
		for _, x := range top {
			if r == x {
				delete(s.locals, def)
			}
		}
	}
	out := make([]bytecode.Register, len(top))
	for i, r := range top {
		out[len(top)-1-i] = r
	}
	return out
}

// bindLocal assigns def the next Local register in the innermost scope.
// Indices are never reused within a unit.
func (s *Session) bindLocal(def mir.DefID, span mir.Span) bytecode.Register {
	if _, dup := s.locals[def]; dup {
		s.fatalf(span, "def %d bound twice", def)
	}
	r := bytecode.Local(s.localCount)
	s.localCount++
	s.locals[def] = r
	s.scopes[len(s.scopes)-1] = append(s.scopes[len(s.scopes)-1], r)
	return r
}

// liveLocals returns every live local register, innermost first.
func (s *Session) liveLocals() []bytecode.Register {
	var out []bytecode.Register
	for i := len(s.scopes) - 1; i >= 0; i-- {
		scope := s.scopes[i]
		for j := len(scope) - 1; j >= 0; j-- {
			out = append(out, scope[j])
		}
	}
	return out
}

func (s *Session) lookupLocal(id *mir.Ident, span mir.Span) bytecode.Register {
	r, ok := s.locals[id.Def]
	if !ok {
		s.fatalf(span, "unknown local %q (def %d)", id.Name, id.Def)
	}
	return r
}

// argIndex narrows an argument position to a register index.
func (s *Session) argIndex(i int, span mir.Span) uint32 {
	n, err := safecast.Convert[uint32](i)
	if err != nil {
		s.fatalf(span, "argument index %d: %v", i, err)
	}
	return n
}
