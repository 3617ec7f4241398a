package compiler

import (
	"errors"
	"fmt"

	"github.com/baehyunsol/Sodigy-sub004/mir"
)

// ---------------------------------------------------------------------------
// Compile Error Types
// ---------------------------------------------------------------------------

var (
	// ErrInternal wraps every lowering failure. Lowering only fails on input
	// the front-end should never produce, so it is a compiler bug.
	ErrInternal = errors.New("internal compiler error")

	ErrUnsupportedBackend = errors.New("unsupported backend")

	ErrDanglingLabel  = errors.New("dangling label")
	ErrDuplicateLabel = errors.New("duplicate label")
	ErrUnknownFunc    = errors.New("unknown function")
	ErrLinkedLabel    = errors.New("static label before link")
)

// InternalError is raised (as a panic) by lowering code when it meets a MIR
// shape it cannot lower. Lower recovers it and returns it as an error.
type InternalError struct {
	Unit string
	Span mir.Span
	Msg  string
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("%v: %s at %s: %s", ErrInternal, e.Unit, e.Span, e.Msg)
}

func (e *InternalError) Unwrap() error { return ErrInternal }

// recoverInternal converts an *InternalError panic into *errp. Any other
// panic is re-raised.
func recoverInternal(errp *error) {
	r := recover()
	if r == nil {
		return
	}
	if ie, ok := r.(*InternalError); ok {
		log.Errorf("%s", ie.Error())
		*errp = ie
		return
	}
	panic(r)
}
