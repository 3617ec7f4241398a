package mir

import "fmt"

// Intrinsic is a compiler-known operation implemented directly by the VM.
type Intrinsic uint8

const (
	IntegerAdd Intrinsic = iota
	IntegerSub
	IntegerMul
	IntegerDiv
	IntegerRem
	IntegerEq
	IntegerLt
	IntegerGt
	Print
	EPrint
	Panic
	Exit

	intrinsicCount
)

var intrinsicInfo = [intrinsicCount]struct {
	name  string
	arity int
}{
	IntegerAdd: {"integer_add", 2},
	IntegerSub: {"integer_sub", 2},
	IntegerMul: {"integer_mul", 2},
	IntegerDiv: {"integer_div", 2},
	IntegerRem: {"integer_rem", 2},
	IntegerEq:  {"integer_eq", 2},
	IntegerLt:  {"integer_lt", 2},
	IntegerGt:  {"integer_gt", 2},
	Print:      {"print", 1},
	EPrint:     {"eprint", 1},
	Panic:      {"panic", 0},
	Exit:       {"exit", 0},
}

// Valid reports whether i names a known intrinsic.
func (i Intrinsic) Valid() bool { return i < intrinsicCount }

// Arity is the number of arguments the intrinsic takes.
func (i Intrinsic) Arity() int {
	if !i.Valid() {
		return -1
	}
	return intrinsicInfo[i].arity
}

func (i Intrinsic) String() string {
	if !i.Valid() {
		return fmt.Sprintf("Intrinsic(%d)", uint8(i))
	}
	return intrinsicInfo[i].name
}

// IntrinsicByName looks up an intrinsic by its lowercase name.
func IntrinsicByName(name string) (Intrinsic, bool) {
	for i := Intrinsic(0); i < intrinsicCount; i++ {
		if intrinsicInfo[i].name == name {
			return i, true
		}
	}
	return 0, false
}
