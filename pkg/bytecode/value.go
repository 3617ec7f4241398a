package bytecode

import (
	"fmt"
	"strings"

	"github.com/baehyunsol/Sodigy-sub004/mir"
)

// ValueKind discriminates Value. The numeric values are the wire tags.
type ValueKind uint8

const (
	ValueScalar ValueKind = iota
	ValueCompound
	ValueFuncPointer
	ValueSpan
)

func (k ValueKind) String() string {
	switch k {
	case ValueScalar:
		return "scalar"
	case ValueCompound:
		return "compound"
	case ValueFuncPointer:
		return "func_pointer"
	case ValueSpan:
		return "span"
	}
	return fmt.Sprintf("ValueKind(%d)", uint8(k))
}

// Value is a compile-time constant carried by PushConst.
//
// A Scalar is a 32-bit word. Compound is an ordered sequence of values and is
// heap-allocated when materialized. FuncPointer names a function by
// definition and, once linked, its program counter. Span values are source
// spans, materialized as [file, start, end].
type Value struct {
	Kind   ValueKind
	Scalar uint32
	Elems  []Value

	Def      mir.DefID
	PC       uint32
	Resolved bool // PC is meaningful

	Span mir.Span
}

func Scalar(w uint32) Value { return Value{Kind: ValueScalar, Scalar: w} }

// Int encodes a signed 32-bit integer as its two's-complement scalar.
func Int(n int32) Value { return Scalar(uint32(n)) }

func Compound(elems ...Value) Value {
	if elems == nil {
		elems = []Value{}
	}
	return Value{Kind: ValueCompound, Elems: elems}
}

// FuncPointer is an unresolved pointer to the function def.
func FuncPointer(def mir.DefID) Value { return Value{Kind: ValueFuncPointer, Def: def} }

// ResolvedFuncPointer carries a linked program counter.
func ResolvedFuncPointer(def mir.DefID, pc uint32) Value {
	return Value{Kind: ValueFuncPointer, Def: def, PC: pc, Resolved: true}
}

func SpanValue(s mir.Span) Value { return Value{Kind: ValueSpan, Span: s} }

// String builds the runtime list form of a string: [len, c0, c1, ...].
func String(s string) Value {
	elems := []Value{Scalar(0)}
	n := uint32(0)
	for _, r := range s {
		elems = append(elems, Scalar(uint32(r)))
		n++
	}
	elems[0] = Scalar(n)
	return Compound(elems...)
}

// ByteString is String for byte strings: one element per byte.
func ByteString(b []byte) Value {
	elems := make([]Value, 0, len(b)+1)
	elems = append(elems, Scalar(uint32(len(b))))
	for _, c := range b {
		elems = append(elems, Scalar(uint32(c)))
	}
	return Compound(elems...)
}

// Equal reports structural equality.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case ValueScalar:
		return v.Scalar == o.Scalar
	case ValueCompound:
		if len(v.Elems) != len(o.Elems) {
			return false
		}
		for i := range v.Elems {
			if !v.Elems[i].Equal(o.Elems[i]) {
				return false
			}
		}
		return true
	case ValueFuncPointer:
		return v.Def == o.Def && v.Resolved == o.Resolved && (!v.Resolved || v.PC == o.PC)
	case ValueSpan:
		return v.Span == o.Span
	}
	return false
}

func (v Value) String() string {
	switch v.Kind {
	case ValueScalar:
		return fmt.Sprintf("%d", int32(v.Scalar))
	case ValueCompound:
		var sb strings.Builder
		sb.WriteByte('[')
		for i, e := range v.Elems {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(e.String())
		}
		sb.WriteByte(']')
		return sb.String()
	case ValueFuncPointer:
		if v.Resolved {
			return fmt.Sprintf("fn#%d@%d", v.Def, v.PC)
		}
		return fmt.Sprintf("fn#%d", v.Def)
	case ValueSpan:
		return "span(" + v.Span.String() + ")"
	}
	return v.Kind.String()
}
