package bytecode

import (
	"encoding/binary"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/baehyunsol/Sodigy-sub004/mir"
)

// ---------------------------------------------------------------------------
// Decode Error Types
// ---------------------------------------------------------------------------

var (
	ErrUnexpectedEOF      = errors.New("unexpected end of data")
	ErrInvalidEnumVariant = errors.New("invalid enum variant")
	ErrRemainingBytes     = errors.New("remaining bytes after decode")
	ErrInvalidUTF8        = errors.New("invalid utf-8 string")
	ErrTooDeep            = errors.New("value nested too deeply")
)

// MaxValueDepth bounds compound nesting in decoded values.
const MaxValueDepth = 256

// DecodeError records where decoding failed. It unwraps to one of the
// sentinel errors above.
type DecodeError struct {
	Offset int
	What   string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s at offset %d: %v", e.What, e.Offset, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ---------------------------------------------------------------------------
// Decoder: reads values back from their binary form
// ---------------------------------------------------------------------------

// Decoder reads from a byte slice. It never panics on malformed input.
type Decoder struct {
	data   []byte
	offset int
	depth  int // compounds currently open in Value
}

func NewDecoder(data []byte) *Decoder {
	return &Decoder{data: data}
}

// Offset is the current read position.
func (d *Decoder) Offset() int { return d.offset }

// Finish fails with ErrRemainingBytes unless every byte was consumed.
func (d *Decoder) Finish() error {
	if d.offset != len(d.data) {
		return d.fail("input", ErrRemainingBytes)
	}
	return nil
}

func (d *Decoder) fail(what string, err error) error {
	return &DecodeError{Offset: d.offset, What: what, Err: err}
}

func (d *Decoder) u8(what string) (uint8, error) {
	if d.offset+1 > len(d.data) {
		return 0, d.fail(what, ErrUnexpectedEOF)
	}
	v := d.data[d.offset]
	d.offset++
	return v, nil
}

func (d *Decoder) u32(what string) (uint32, error) {
	if d.offset+4 > len(d.data) {
		return 0, d.fail(what, ErrUnexpectedEOF)
	}
	v := binary.LittleEndian.Uint32(d.data[d.offset:])
	d.offset += 4
	return v, nil
}

func (d *Decoder) boolean(what string) (bool, error) {
	v, err := d.u8(what)
	if err != nil {
		return false, err
	}
	switch v {
	case 0:
		return false, nil
	case 1:
		return true, nil
	}
	d.offset--
	return false, d.fail(what, ErrInvalidEnumVariant)
}

// length reads a sequence length prefix. Each element takes at least
// minElem bytes, so a count that cannot fit in the rest of the input is
// rejected before anything is allocated.
func (d *Decoder) length(what string, minElem int) (int, error) {
	n, err := d.u32(what)
	if err != nil {
		return 0, err
	}
	if uint64(n)*uint64(minElem) > uint64(len(d.data)-d.offset) {
		return 0, d.fail(what, ErrUnexpectedEOF)
	}
	return int(n), nil
}

func (d *Decoder) str(what string) (string, error) {
	n, err := d.length(what, 1)
	if err != nil {
		return "", err
	}
	raw := d.data[d.offset : d.offset+n]
	if !utf8.Valid(raw) {
		return "", d.fail(what, ErrInvalidUTF8)
	}
	d.offset += n
	return string(raw), nil
}

// tag reads a variant tag and rejects values >= count.
func (d *Decoder) tag(what string, count uint8) (uint8, error) {
	t, err := d.u8(what)
	if err != nil {
		return 0, err
	}
	if t >= count {
		d.offset--
		return 0, d.fail(what, fmt.Errorf("%w: tag %d", ErrInvalidEnumVariant, t))
	}
	return t, nil
}

// Value decodes one Value.
func (d *Decoder) Value() (Value, error) {
	t, err := d.tag("value", uint8(ValueSpan)+1)
	if err != nil {
		return Value{}, err
	}
	switch ValueKind(t) {
	case ValueScalar:
		w, err := d.u32("scalar")
		if err != nil {
			return Value{}, err
		}
		return Scalar(w), nil

	case ValueCompound:
		if d.depth >= MaxValueDepth {
			d.offset--
			return Value{}, d.fail("compound", fmt.Errorf("%w: more than %d levels", ErrTooDeep, MaxValueDepth))
		}
		d.depth++
		defer func() { d.depth-- }()

		n, err := d.length("compound", 1)
		if err != nil {
			return Value{}, err
		}
		elems := make([]Value, n)
		for i := range elems {
			if elems[i], err = d.Value(); err != nil {
				return Value{}, err
			}
		}
		return Compound(elems...), nil

	case ValueFuncPointer:
		def, err := d.u32("func pointer")
		if err != nil {
			return Value{}, err
		}
		some, err := d.boolean("func pointer pc")
		if err != nil {
			return Value{}, err
		}
		if !some {
			return FuncPointer(mir.DefID(def)), nil
		}
		pc, err := d.u32("func pointer pc")
		if err != nil {
			return Value{}, err
		}
		return ResolvedFuncPointer(mir.DefID(def), pc), nil

	default:
		var s mir.Span
		if s.File, err = d.u32("span"); err != nil {
			return Value{}, err
		}
		if s.Start, err = d.u32("span"); err != nil {
			return Value{}, err
		}
		if s.End, err = d.u32("span"); err != nil {
			return Value{}, err
		}
		return SpanValue(s), nil
	}
}

// Register decodes one Register.
func (d *Decoder) Register() (Register, error) {
	t, err := d.tag("register", uint8(RegGlobal)+1)
	if err != nil {
		return Register{}, err
	}
	r := Register{Kind: RegisterKind(t)}
	if r.Kind != RegReturn {
		if r.Index, err = d.u32("register"); err != nil {
			return Register{}, err
		}
	}
	return r, nil
}

// Label decodes one Label.
func (d *Decoder) Label() (Label, error) {
	t, err := d.tag("label", uint8(LabelFunc)+1)
	if err != nil {
		return Label{}, err
	}
	id, err := d.u32("label")
	if err != nil {
		return Label{}, err
	}
	return Label{Kind: LabelKind(t), ID: id}, nil
}

// Bytecode decodes one instruction.
func (d *Decoder) Bytecode() (Bytecode, error) {
	t, err := d.tag("bytecode", uint8(opCount))
	if err != nil {
		return Bytecode{}, err
	}
	b := Bytecode{Op: Op(t)}
	switch b.Op {
	case OpPush:
		if b.Src, err = d.Register(); err != nil {
			return Bytecode{}, err
		}
		if b.Dst, err = d.Register(); err != nil {
			return Bytecode{}, err
		}
	case OpPushConst:
		if b.Value, err = d.Value(); err != nil {
			return Bytecode{}, err
		}
		if b.Dst, err = d.Register(); err != nil {
			return Bytecode{}, err
		}
	case OpPop:
		if b.Src, err = d.Register(); err != nil {
			return Bytecode{}, err
		}
	case OpPushCallStack, OpGoto, OpLabel:
		if b.Label, err = d.Label(); err != nil {
			return Bytecode{}, err
		}
	case OpIntrinsic:
		i, err := d.u8("intrinsic")
		if err != nil {
			return Bytecode{}, err
		}
		if !mir.Intrinsic(i).Valid() {
			d.offset--
			return Bytecode{}, d.fail("intrinsic", fmt.Errorf("%w: tag %d", ErrInvalidEnumVariant, i))
		}
		b.Intrinsic = mir.Intrinsic(i)
	case OpJumpIf, OpJumpIfInit:
		if b.Src, err = d.Register(); err != nil {
			return Bytecode{}, err
		}
		if b.Label, err = d.Label(); err != nil {
			return Bytecode{}, err
		}
	case OpUpdateCompound, OpReadCompound:
		if b.Src, err = d.Register(); err != nil {
			return Bytecode{}, err
		}
		if b.Dst, err = d.Register(); err != nil {
			return Bytecode{}, err
		}
		if b.Offset, err = d.ElementOffset(); err != nil {
			return Bytecode{}, err
		}
	}
	return b, nil
}

// ElementOffset decodes a compound element Offset.
func (d *Decoder) ElementOffset() (Offset, error) {
	var o Offset
	var err error
	if o.Static, err = d.u32("offset"); err != nil {
		return Offset{}, err
	}
	if o.Dynamic, err = d.boolean("offset register"); err != nil {
		return Offset{}, err
	}
	if o.Dynamic {
		if o.Reg, err = d.Register(); err != nil {
			return Offset{}, err
		}
	}
	return o, nil
}

func (d *Decoder) entries(what string) ([]Entry, error) {
	// name length prefix + offset
	n, err := d.length(what, 8)
	if err != nil {
		return nil, err
	}
	list := make([]Entry, n)
	for i := range list {
		if list[i].Name, err = d.str(what + " name"); err != nil {
			return nil, err
		}
		if list[i].Offset, err = d.u32(what + " offset"); err != nil {
			return nil, err
		}
	}
	return list, nil
}

// Executable decodes an executable in the order asserts, bytecodes, funcs.
func (d *Decoder) Executable() (*Executable, error) {
	asserts, err := d.entries("asserts")
	if err != nil {
		return nil, err
	}
	n, err := d.length("bytecodes", 1)
	if err != nil {
		return nil, err
	}
	code := make([]Bytecode, n)
	for i := range code {
		if code[i], err = d.Bytecode(); err != nil {
			return nil, err
		}
	}
	funcs, err := d.entries("funcs")
	if err != nil {
		return nil, err
	}
	return &Executable{Asserts: asserts, Bytecodes: code, Funcs: funcs}, nil
}

// ---------------------------------------------------------------------------
// Convenience wrappers
// ---------------------------------------------------------------------------

// DecodeExecutable decodes a complete executable; trailing bytes are an error.
func DecodeExecutable(data []byte) (*Executable, error) {
	d := NewDecoder(data)
	x, err := d.Executable()
	if err != nil {
		return nil, err
	}
	if err := d.Finish(); err != nil {
		return nil, err
	}
	return x, nil
}

// DecodeValue decodes exactly one value from data.
func DecodeValue(data []byte) (Value, error) {
	d := NewDecoder(data)
	v, err := d.Value()
	if err != nil {
		return Value{}, err
	}
	if err := d.Finish(); err != nil {
		return Value{}, err
	}
	return v, nil
}

// DecodeBytecode decodes exactly one instruction from data.
func DecodeBytecode(data []byte) (Bytecode, error) {
	d := NewDecoder(data)
	b, err := d.Bytecode()
	if err != nil {
		return Bytecode{}, err
	}
	if err := d.Finish(); err != nil {
		return Bytecode{}, err
	}
	return b, nil
}
