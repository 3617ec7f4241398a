package vm

import (
	"io"
	"strings"
	"unicode/utf8"

	"github.com/baehyunsol/Sodigy-sub004/mir"
	bc "github.com/baehyunsol/Sodigy-sub004/pkg/bytecode"
)

// intrinsic runs op on the tops of Call(0), Call(1), ... and leaves the
// result in Return. The arguments stay on their stacks; the caller pops
// them.
func (v *VM) intrinsic(op mir.Intrinsic) error {
	switch op {
	case mir.IntegerAdd, mir.IntegerSub, mir.IntegerMul, mir.IntegerDiv, mir.IntegerRem,
		mir.IntegerEq, mir.IntegerLt, mir.IntegerGt:
		a, b, err := v.intArgs()
		if err != nil {
			return err
		}
		r, err := integerOp(op, a, b)
		if err != nil {
			return err
		}
		return v.stack.place(bc.Return, cell{word: uint32(r)})

	case mir.Print, mir.EPrint:
		s, err := v.stringArg(0)
		if err != nil {
			return err
		}
		w := v.opts.stdout
		if op == mir.EPrint {
			w = v.opts.stderr
		}
		if _, err := io.WriteString(w, s); err != nil {
			log.Warningf("%s: %s", op, err)
		}
		return v.stack.place(bc.Return, cell{})

	case mir.Panic:
		return newFault(FaultPanic, "panic")

	case mir.Exit:
		v.exited = true
		return v.stack.place(bc.Return, cell{})
	}
	return newFault(FaultInvalidProgram, "unknown intrinsic %s", op)
}

func integerOp(op mir.Intrinsic, a, b int32) (int32, error) {
	switch op {
	case mir.IntegerAdd:
		return a + b, nil
	case mir.IntegerSub:
		return a - b, nil
	case mir.IntegerMul:
		return a * b, nil
	case mir.IntegerDiv, mir.IntegerRem:
		if b == 0 {
			return 0, newFault(FaultDivisionByZero, "%d %s 0", a, op)
		}
		if op == mir.IntegerDiv {
			return a / b, nil
		}
		return a % b, nil
	case mir.IntegerEq:
		return boolWord(a == b), nil
	case mir.IntegerLt:
		return boolWord(a < b), nil
	default:
		return boolWord(a > b), nil
	}
}

func boolWord(b bool) int32 {
	if b {
		return 1
	}
	return 0
}

func (v *VM) scalarArg(i uint32) (uint32, error) {
	c, err := v.stack.read(bc.Call(i))
	if err != nil {
		return 0, err
	}
	if c.ptr {
		return 0, newFault(FaultInvalidProgram, "argument %d is a pointer, want a scalar", i)
	}
	return c.word, nil
}

func (v *VM) intArgs() (int32, int32, error) {
	a, err := v.scalarArg(0)
	if err != nil {
		return 0, 0, err
	}
	b, err := v.scalarArg(1)
	if err != nil {
		return 0, 0, err
	}
	return int32(a), int32(b), nil
}

// stringArg decodes the list [len, c0, c1, ...] held by Call(i). Every
// element is a code point, byte strings included: the heap does not tell
// the two apart, so byte 0xe9 prints as U+00E9 in UTF-8.
func (v *VM) stringArg(i uint32) (string, error) {
	c, err := v.stack.read(bc.Call(i))
	if err != nil {
		return "", err
	}
	if !c.ptr {
		return "", newFault(FaultInvalidProgram, "argument %d is a scalar, want a string", i)
	}
	size := v.heap.Len(c.word)
	if size == 0 {
		return "", newFault(FaultInvalidProgram, "string without length word")
	}
	n, _ := v.heap.Load(c.word, 0)
	if n > size-1 {
		return "", newFault(FaultInvalidProgram, "string length %d exceeds block size %d", n, size-1)
	}
	var sb strings.Builder
	for k := uint32(1); k <= n; k++ {
		ch, _ := v.heap.Load(c.word, k)
		if !utf8.ValidRune(rune(ch)) {
			return "", newFault(FaultInvalidProgram, "invalid code point %#x", ch)
		}
		sb.WriteRune(rune(ch))
	}
	return sb.String(), nil
}
