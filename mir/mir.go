// Package mir defines the typed mid-level program handed to the bytecode
// backend. Every name is already resolved to a DefID and every expression is
// type-checked; the backend never re-validates types.
package mir

import "fmt"

// DefID identifies a definition (function, parameter, local or top-level
// let) across the whole program.
type DefID uint32

// Span is a source range. It is carried for diagnostics only.
type Span struct {
	File  uint32 `cbor:"f"`
	Start uint32 `cbor:"s"`
	End   uint32 `cbor:"e"`
}

// String renders the span as file:start-end.
func (s Span) String() string {
	return fmt.Sprintf("%d:%d-%d", s.File, s.Start, s.End)
}

// ---------------------------------------------------------------------------
// Program
// ---------------------------------------------------------------------------

// Program is a complete type-checked MIR program.
type Program struct {
	Funcs   []Func   `cbor:"funcs"`
	Lets    []Let    `cbor:"lets"`
	Asserts []Assert `cbor:"asserts"`
}

// Func is a function definition.
type Func struct {
	Def    DefID   `cbor:"def"`
	Name   string  `cbor:"name"`
	Span   Span    `cbor:"span"`
	Params []Param `cbor:"params"`
	Body   *Expr   `cbor:"body"`

	// BuiltIn functions are provided by the runtime and have no body.
	BuiltIn bool `cbor:"builtin,omitempty"`
}

// Param is a function parameter.
type Param struct {
	Def  DefID  `cbor:"def"`
	Name string `cbor:"name"`
	Span Span   `cbor:"span"`
}

// Let is a top-level binding. Top-level lets are lazy: evaluated at most
// once per run, on first reference.
type Let struct {
	Def   DefID  `cbor:"def"`
	Name  string `cbor:"name"`
	Span  Span   `cbor:"span"`
	Value *Expr  `cbor:"value"`
}

// Assert is a named assertion, top-level or inside a block. A failing
// assertion prints Message to stderr and panics.
type Assert struct {
	Name    string `cbor:"name"`
	Span    Span   `cbor:"span"`
	Value   *Expr  `cbor:"value"`
	Message string `cbor:"msg,omitempty"`
}

// FailureMessage is the text printed when the assertion fails.
func (a *Assert) FailureMessage() string {
	switch {
	case a.Message != "":
		return a.Message
	case a.Name != "":
		return "assertion failed: " + a.Name
	}
	return "assertion failed"
}

// FuncByName returns the function with the given name, or nil.
func (p *Program) FuncByName(name string) *Func {
	for i := range p.Funcs {
		if p.Funcs[i].Name == name {
			return &p.Funcs[i]
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

// ExprKind discriminates Expr.
type ExprKind uint8

const (
	ExprNumber ExprKind = iota
	ExprChar
	ExprByte
	ExprBool
	ExprString
	ExprIdent
	ExprIf
	ExprBlock
	ExprCall
	ExprField
)

var exprKindNames = [...]string{
	ExprNumber: "number",
	ExprChar:   "char",
	ExprByte:   "byte",
	ExprBool:   "bool",
	ExprString: "string",
	ExprIdent:  "ident",
	ExprIf:     "if",
	ExprBlock:  "block",
	ExprCall:   "call",
	ExprField:  "field",
}

func (k ExprKind) String() string {
	if int(k) < len(exprKindNames) {
		return exprKindNames[k]
	}
	return fmt.Sprintf("ExprKind(%d)", k)
}

// Expr is one MIR expression node. Only the fields relevant to Kind are set.
type Expr struct {
	Kind ExprKind `cbor:"k"`
	Span Span     `cbor:"span"`

	// ExprNumber
	Number int64 `cbor:"n,omitempty"`

	// ExprChar, ExprByte
	Scalar uint32 `cbor:"c,omitempty"`

	// ExprBool
	Bool bool `cbor:"b,omitempty"`

	// ExprString; Binary marks a byte string.
	Str    string `cbor:"str,omitempty"`
	Binary bool   `cbor:"bin,omitempty"`

	// ExprIdent
	Ident *Ident `cbor:"id,omitempty"`

	// ExprIf
	Cond *Expr `cbor:"cond,omitempty"`
	Then *Expr `cbor:"then,omitempty"`
	Else *Expr `cbor:"else,omitempty"`

	// ExprBlock; Value is the block's result. Asserts run after the lets.
	Lets    []LocalLet `cbor:"lets,omitempty"`
	Asserts []Assert   `cbor:"asserts,omitempty"`
	Value   *Expr      `cbor:"value,omitempty"`

	// ExprField reads element Field of the tuple Value.
	Field uint32 `cbor:"field,omitempty"`

	// ExprCall
	Callee *Callable `cbor:"callee,omitempty"`
	Args   []*Expr   `cbor:"args,omitempty"`
}

// NameKind says what an identifier resolved to.
type NameKind uint8

const (
	NameParam NameKind = iota
	NameLocal
	NameFunc
	NameTopLet
)

// Ident is a resolved name reference.
type Ident struct {
	Def  DefID    `cbor:"def"`
	Name string   `cbor:"name"`
	Kind NameKind `cbor:"kind"`
}

// LocalLet is a `let` inside a block.
type LocalLet struct {
	Def   DefID  `cbor:"def"`
	Name  string `cbor:"name"`
	Span  Span   `cbor:"span"`
	Value *Expr  `cbor:"value"`
}

// CallKind discriminates Callable.
type CallKind uint8

const (
	CallStatic CallKind = iota
	CallIntrinsic
	CallDynamic
	// CallTuple builds a tuple from the arguments.
	CallTuple
	// CallList builds a list from the arguments.
	CallList
	// CallIndex reads element Args[1] of the list Args[0].
	CallIndex
)

// Callable is the target of a call expression.
type Callable struct {
	Kind      CallKind  `cbor:"kind"`
	Def       DefID     `cbor:"def,omitempty"`
	Intrinsic Intrinsic `cbor:"intrinsic,omitempty"`

	// CallDynamic: an expression evaluating to a function pointer.
	Func *Expr `cbor:"func,omitempty"`
}
