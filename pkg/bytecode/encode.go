package bytecode

import (
	"encoding/binary"
	"errors"
	"fmt"

	"fortio.org/safecast"
)

// ---------------------------------------------------------------------------
// Encoder: appends the binary form of values to a buffer
// ---------------------------------------------------------------------------

// ErrLengthOverflow is returned when a length does not fit the uint32 prefix.
var ErrLengthOverflow = errors.New("length does not fit in u32")

// Encoder accumulates encoded bytes. The first error sticks; later writes
// are ignored.
type Encoder struct {
	buf []byte
	err error
}

// NewEncoder returns an encoder with the given initial capacity.
func NewEncoder(capacity int) *Encoder {
	return &Encoder{buf: make([]byte, 0, capacity)}
}

// Bytes returns the encoded bytes, or the first error encountered.
func (e *Encoder) Bytes() ([]byte, error) {
	if e.err != nil {
		return nil, e.err
	}
	return e.buf, nil
}

func (e *Encoder) u8(v uint8) { e.buf = append(e.buf, v) }

func (e *Encoder) u32(v uint32) { e.buf = binary.LittleEndian.AppendUint32(e.buf, v) }

func (e *Encoder) boolean(v bool) {
	if v {
		e.u8(1)
	} else {
		e.u8(0)
	}
}

func (e *Encoder) length(n int) {
	v, err := safecast.Convert[uint32](n)
	if err != nil {
		if e.err == nil {
			e.err = fmt.Errorf("%w: %d", ErrLengthOverflow, n)
		}
		return
	}
	e.u32(v)
}

func (e *Encoder) str(s string) {
	e.length(len(s))
	e.buf = append(e.buf, s...)
}

// Value encodes v: a tag byte then the variant payload.
func (e *Encoder) Value(v Value) {
	e.u8(uint8(v.Kind))
	switch v.Kind {
	case ValueScalar:
		e.u32(v.Scalar)
	case ValueCompound:
		e.length(len(v.Elems))
		for _, el := range v.Elems {
			e.Value(el)
		}
	case ValueFuncPointer:
		e.u32(uint32(v.Def))
		e.boolean(v.Resolved)
		if v.Resolved {
			e.u32(v.PC)
		}
	case ValueSpan:
		e.u32(v.Span.File)
		e.u32(v.Span.Start)
		e.u32(v.Span.End)
	}
}

// Register encodes r: a tag byte, then the index for stack and global kinds.
func (e *Encoder) Register(r Register) {
	e.u8(uint8(r.Kind))
	if r.Kind != RegReturn {
		e.u32(r.Index)
	}
}

// Label encodes l: a tag byte then the id.
func (e *Encoder) Label(l Label) {
	e.u8(uint8(l.Kind))
	e.u32(l.ID)
}

// Bytecode encodes one instruction: the op tag then its operands.
func (e *Encoder) Bytecode(b Bytecode) {
	e.u8(uint8(b.Op))
	switch b.Op {
	case OpPush:
		e.Register(b.Src)
		e.Register(b.Dst)
	case OpPushConst:
		e.Value(b.Value)
		e.Register(b.Dst)
	case OpPop:
		e.Register(b.Src)
	case OpPushCallStack, OpGoto, OpLabel:
		e.Label(b.Label)
	case OpIntrinsic:
		e.u8(uint8(b.Intrinsic))
	case OpJumpIf, OpJumpIfInit:
		e.Register(b.Src)
		e.Label(b.Label)
	case OpUpdateCompound, OpReadCompound:
		e.Register(b.Src)
		e.Register(b.Dst)
		e.ElementOffset(b.Offset)
	case OpPopCallStack, OpReturn:
	}
}

// ElementOffset encodes o: the static part, then an optional register.
func (e *Encoder) ElementOffset(o Offset) {
	e.u32(o.Static)
	e.boolean(o.Dynamic)
	if o.Dynamic {
		e.Register(o.Reg)
	}
}

func (e *Encoder) entries(list []Entry) {
	e.length(len(list))
	for _, en := range list {
		e.str(en.Name)
		e.u32(en.Offset)
	}
}

// Executable encodes x in the order asserts, bytecodes, funcs.
func (e *Encoder) Executable(x *Executable) {
	e.entries(x.Asserts)
	e.length(len(x.Bytecodes))
	for _, b := range x.Bytecodes {
		e.Bytecode(b)
	}
	e.entries(x.Funcs)
}

// ---------------------------------------------------------------------------
// Convenience wrappers
// ---------------------------------------------------------------------------

// Encode returns the binary form of the executable.
func (x *Executable) Encode() ([]byte, error) {
	e := NewEncoder(16 + 8*len(x.Bytecodes))
	e.Executable(x)
	return e.Bytes()
}

// EncodeValue returns the binary form of v.
func EncodeValue(v Value) ([]byte, error) {
	e := NewEncoder(8)
	e.Value(v)
	return e.Bytes()
}

// EncodeBytecode returns the binary form of b.
func EncodeBytecode(b Bytecode) ([]byte, error) {
	e := NewEncoder(12)
	e.Bytecode(b)
	return e.Bytes()
}
