package vm

import (
	bc "github.com/baehyunsol/Sodigy-sub004/pkg/bytecode"
)

// AssertResult is the outcome of one assertion. A failed assertion prints
// its message to stderr and panics; that panic is reported as Passed false
// with no Err. Err is set for every other fault.
type AssertResult struct {
	Name   string
	Passed bool
	Err    error
}

// RunAssert runs the named assertion. An assertion passes when it leaves a
// nonzero scalar in Return.
func (v *VM) RunAssert(name string) AssertResult {
	off, ok := v.exe.Assert(name)
	if !ok {
		return AssertResult{Name: name, Err: newFault(FaultInvalidJump, "no assertion named %q", name)}
	}
	return v.runAssertAt(name, off)
}

// RunAsserts runs every assertion in table order, each from a fresh state.
func (v *VM) RunAsserts() []AssertResult {
	out := make([]AssertResult, 0, len(v.exe.Asserts))
	for _, a := range v.exe.Asserts {
		out = append(out, v.runAssertAt(a.Name, a.Offset))
	}
	return out
}

func (v *VM) runAssertAt(name string, off uint32) AssertResult {
	res, err := v.Execute(off)
	if IsFault(err, FaultPanic) {
		log.Infof("assertion %q failed", name)
		return AssertResult{Name: name}
	}
	if err != nil {
		return AssertResult{Name: name, Err: err}
	}
	passed := res.Value.Kind == bc.ValueScalar && res.Value.Scalar != 0
	if !passed {
		log.Infof("assertion %q failed: %s", name, res.Value)
	}
	return AssertResult{Name: name, Passed: passed}
}
