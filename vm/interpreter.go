package vm

import (
	"errors"

	bc "github.com/baehyunsol/Sodigy-sub004/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// Dispatch loop
// ---------------------------------------------------------------------------

// run executes from entry until the end-of-program sentinel is reached.
// The sentinel is the return address len(code), pushed before the first
// instruction, so the outermost Return lands on it.
func (v *VM) run(entry int) (*Result, error) {
	end := len(v.code)
	if entry < 0 || entry >= end {
		return nil, newFault(FaultInvalidJump, "entry %d is outside the code", entry)
	}
	if err := v.stack.pushCall(end); err != nil {
		return nil, err
	}

	v.pc = entry
	for v.pc != end && !v.exited {
		if v.pc < 0 || v.pc > end {
			return nil, v.fail(newFault(FaultInvalidJump, "pc %d is outside the code", v.pc))
		}
		v.steps++
		if err := v.step(v.code[v.pc]); err != nil {
			return nil, v.fail(err)
		}
	}

	res := &Result{Exited: v.exited, Steps: v.steps}
	var err error
	if v.stack.retSet {
		res.Value, err = v.value(v.stack.ret, 0)
	}
	v.stack.releaseAll()
	if v.opts.checkHeap {
		v.heap.MustCheckIntegrity()
	}
	if err != nil {
		return nil, v.fail(err)
	}
	return res, nil
}

// fail stamps the current pc on a fault and logs it.
func (v *VM) fail(err error) error {
	var f *Fault
	if errors.As(err, &f) && f.PC < 0 {
		f.PC = v.pc
	}
	log.Errorf("%s", err)
	return err
}

func (v *VM) target(l bc.Label) int { return v.jump[l.ID] }

// step executes one instruction and advances the pc.
func (v *VM) step(b bc.Bytecode) error {
	s := v.stack

	switch b.Op {
	case bc.OpPush:
		c, err := s.read(b.Src)
		if err != nil {
			return err
		}
		if err := s.store(b.Dst, c); err != nil {
			return err
		}

	case bc.OpPushConst:
		c := v.materialize(b.Value)
		if err := s.place(b.Dst, c); err != nil {
			s.release(c)
			return err
		}

	case bc.OpPop:
		if err := s.pop(b.Src); err != nil {
			return err
		}

	case bc.OpPushCallStack:
		if err := s.pushCall(v.target(b.Label)); err != nil {
			return err
		}

	case bc.OpPopCallStack:
		if err := s.popCall(); err != nil {
			return err
		}

	case bc.OpGoto:
		v.pc = v.target(b.Label)
		return nil

	case bc.OpIntrinsic:
		if err := v.intrinsic(b.Intrinsic); err != nil {
			return err
		}

	case bc.OpUpdateCompound:
		if err := v.updateCompound(b); err != nil {
			return err
		}

	case bc.OpReadCompound:
		if err := v.readCompound(b); err != nil {
			return err
		}

	case bc.OpLabel:

	case bc.OpReturn:
		pc, err := s.topCall()
		if err != nil {
			return err
		}
		v.pc = pc
		return nil

	case bc.OpJumpIf:
		c, err := s.read(b.Src)
		if err != nil {
			return err
		}
		if c.word != 0 {
			v.pc = v.target(b.Label)
			return nil
		}

	case bc.OpJumpIfInit:
		if int(b.Src.Index) < len(s.globalSet) && s.globalSet[b.Src.Index] {
			v.pc = v.target(b.Label)
			return nil
		}

	default:
		return newFault(FaultInvalidProgram, "unknown op %s", b.Op)
	}

	v.pc++
	return nil
}
