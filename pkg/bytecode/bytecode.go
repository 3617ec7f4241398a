package bytecode

import (
	"fmt"

	"github.com/baehyunsol/Sodigy-sub004/mir"
)

// Op is the instruction discriminant. The numeric values are the wire tags.
type Op uint8

const (
	OpPush Op = iota
	OpPushConst
	OpPop
	OpPushCallStack
	OpPopCallStack
	OpGoto
	OpIntrinsic
	OpLabel
	OpReturn
	OpJumpIf
	OpJumpIfInit
	OpUpdateCompound
	OpReadCompound

	opCount
)

var opNames = [opCount]string{
	OpPush:           "push",
	OpPushConst:      "push_const",
	OpPop:            "pop",
	OpPushCallStack:  "push_call_stack",
	OpPopCallStack:   "pop_call_stack",
	OpGoto:           "goto",
	OpIntrinsic:      "intrinsic",
	OpLabel:          "label",
	OpReturn:         "return",
	OpJumpIf:         "jump_if",
	OpJumpIfInit:     "jump_if_init",
	OpUpdateCompound: "update_compound",
	OpReadCompound:   "read_compound",
}

func (op Op) String() string {
	if op < opCount {
		return opNames[op]
	}
	return fmt.Sprintf("Op(%d)", uint8(op))
}

// Bytecode is one instruction. Which operands are meaningful depends on Op:
//
//	Push          Src, Dst
//	PushConst     Value, Dst
//	Pop           Src
//	PushCallStack Label
//	PopCallStack  -
//	Goto          Label
//	Intrinsic     Intrinsic
//	Label         Label (a jump-target marker, no-op at run time)
//	Return        -
//	JumpIf        Src, Label (branch when Src is nonzero)
//	JumpIfInit    Src, Label (branch when the Global slot Src is written)
//	UpdateCompound Src, Dst, Offset (Dst[Offset] = Src, Dst updated in place)
//	ReadCompound  Src, Dst, Offset (Dst = Src[Offset])
type Bytecode struct {
	Op        Op
	Src       Register
	Dst       Register
	Value     Value
	Label     Label
	Intrinsic mir.Intrinsic
	Offset    Offset
}

// Offset selects an element of a compound: Static, plus the signed value
// of Reg when Dynamic is set.
type Offset struct {
	Static  uint32
	Dynamic bool
	Reg     Register
}

func StaticOffset(n uint32) Offset { return Offset{Static: n} }

// DynamicOffset is the element at r + bias.
func DynamicOffset(r Register, bias uint32) Offset {
	return Offset{Static: bias, Dynamic: true, Reg: r}
}

func (o Offset) String() string {
	if !o.Dynamic {
		return fmt.Sprintf("%d", o.Static)
	}
	if o.Static == 0 {
		return o.Reg.String()
	}
	return fmt.Sprintf("%s+%d", o.Reg, o.Static)
}

func Push(src, dst Register) Bytecode { return Bytecode{Op: OpPush, Src: src, Dst: dst} }

func PushConst(v Value, dst Register) Bytecode {
	return Bytecode{Op: OpPushConst, Value: v, Dst: dst}
}

func Pop(r Register) Bytecode { return Bytecode{Op: OpPop, Src: r} }

func PushCallStack(l Label) Bytecode { return Bytecode{Op: OpPushCallStack, Label: l} }

func PopCallStack() Bytecode { return Bytecode{Op: OpPopCallStack} }

func Goto(l Label) Bytecode { return Bytecode{Op: OpGoto, Label: l} }

func CallIntrinsic(i mir.Intrinsic) Bytecode { return Bytecode{Op: OpIntrinsic, Intrinsic: i} }

// Mark is the Label instruction: it marks the position of l.
func Mark(l Label) Bytecode { return Bytecode{Op: OpLabel, Label: l} }

func Ret() Bytecode { return Bytecode{Op: OpReturn} }

func JumpIf(r Register, l Label) Bytecode { return Bytecode{Op: OpJumpIf, Src: r, Label: l} }

func JumpIfInit(r Register, l Label) Bytecode {
	return Bytecode{Op: OpJumpIfInit, Src: r, Label: l}
}

// UpdateCompound stores src into element off of the compound held by dst.
func UpdateCompound(dst Register, off Offset, src Register) Bytecode {
	return Bytecode{Op: OpUpdateCompound, Src: src, Dst: dst, Offset: off}
}

// ReadCompound pushes element off of the compound held by src onto dst.
func ReadCompound(src Register, off Offset, dst Register) Bytecode {
	return Bytecode{Op: OpReadCompound, Src: src, Dst: dst, Offset: off}
}

// IsUnconditionalJump reports whether control never falls through to the
// next instruction.
func (b Bytecode) IsUnconditionalJump() bool {
	switch b.Op {
	case OpGoto, OpReturn:
		return true
	case OpIntrinsic:
		return b.Intrinsic == mir.Panic || b.Intrinsic == mir.Exit
	}
	return false
}

// IsLabel reports whether b is a jump-target marker.
func (b Bytecode) IsLabel() bool { return b.Op == OpLabel }

// HasLabel reports whether the instruction carries a label operand.
func (b Bytecode) HasLabel() bool {
	switch b.Op {
	case OpPushCallStack, OpGoto, OpLabel, OpJumpIf, OpJumpIfInit:
		return true
	}
	return false
}

// Equal compares the operands relevant to the instruction's Op.
func (b Bytecode) Equal(o Bytecode) bool {
	if b.Op != o.Op {
		return false
	}
	switch b.Op {
	case OpPush:
		return b.Src == o.Src && b.Dst == o.Dst
	case OpPushConst:
		return b.Dst == o.Dst && b.Value.Equal(o.Value)
	case OpPop:
		return b.Src == o.Src
	case OpPushCallStack, OpGoto, OpLabel:
		return b.Label == o.Label
	case OpIntrinsic:
		return b.Intrinsic == o.Intrinsic
	case OpJumpIf, OpJumpIfInit:
		return b.Src == o.Src && b.Label == o.Label
	case OpUpdateCompound, OpReadCompound:
		return b.Src == o.Src && b.Dst == o.Dst && b.Offset == o.Offset
	}
	return true
}

func (b Bytecode) String() string {
	switch b.Op {
	case OpPush:
		return fmt.Sprintf("push %s -> %s", b.Src, b.Dst)
	case OpPushConst:
		return fmt.Sprintf("push_const %s -> %s", b.Value, b.Dst)
	case OpPop:
		return fmt.Sprintf("pop %s", b.Src)
	case OpPushCallStack:
		return fmt.Sprintf("push_call_stack %s", b.Label)
	case OpGoto:
		return fmt.Sprintf("goto %s", b.Label)
	case OpIntrinsic:
		return fmt.Sprintf("intrinsic %s", b.Intrinsic)
	case OpLabel:
		return b.Label.String() + ":"
	case OpJumpIf:
		return fmt.Sprintf("jump_if %s, %s", b.Src, b.Label)
	case OpJumpIfInit:
		return fmt.Sprintf("jump_if_init %s, %s", b.Src, b.Label)
	case OpUpdateCompound:
		return fmt.Sprintf("update_compound %s[%s] <- %s", b.Dst, b.Offset, b.Src)
	case OpReadCompound:
		return fmt.Sprintf("read_compound %s[%s] -> %s", b.Src, b.Offset, b.Dst)
	}
	return b.Op.String()
}
