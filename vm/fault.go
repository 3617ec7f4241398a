package vm

import (
	"errors"
	"fmt"
)

// ErrFault matches every *Fault under errors.Is.
var ErrFault = errors.New("runtime fault")

// FaultKind classifies runtime faults.
type FaultKind uint8

const (
	FaultStackOverflow FaultKind = iota
	FaultCallStackUnderflow
	FaultDivisionByZero
	FaultRegister
	FaultHeap
	FaultPanic
	FaultInvalidProgram
	FaultInvalidJump
	FaultIndex
	FaultTooDeep
)

var faultNames = [...]string{
	FaultStackOverflow:      "stack overflow",
	FaultCallStackUnderflow: "call stack underflow",
	FaultDivisionByZero:     "division by zero",
	FaultRegister:           "register fault",
	FaultHeap:               "heap fault",
	FaultPanic:              "panic",
	FaultInvalidProgram:     "invalid program",
	FaultInvalidJump:        "invalid jump",
	FaultIndex:              "index out of range",
	FaultTooDeep:            "value nested too deeply",
}

func (k FaultKind) String() string {
	if int(k) < len(faultNames) {
		return faultNames[k]
	}
	return fmt.Sprintf("FaultKind(%d)", uint8(k))
}

// Fault stops the machine. PC is the offset of the faulting instruction,
// or -1 when the fault happened outside the dispatch loop.
type Fault struct {
	Kind FaultKind
	PC   int
	Msg  string
}

func (f *Fault) Error() string {
	if f.Msg == "" {
		return fmt.Sprintf("%s at pc %d", f.Kind, f.PC)
	}
	return fmt.Sprintf("%s at pc %d: %s", f.Kind, f.PC, f.Msg)
}

func (f *Fault) Is(target error) bool { return target == ErrFault }

func newFault(kind FaultKind, format string, args ...any) *Fault {
	return &Fault{Kind: kind, PC: -1, Msg: fmt.Sprintf(format, args...)}
}

// IsFault reports whether err is a Fault of the given kind.
func IsFault(err error, kind FaultKind) bool {
	var f *Fault
	return errors.As(err, &f) && f.Kind == kind
}
