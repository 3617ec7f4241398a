package vm

import (
	bc "github.com/baehyunsol/Sodigy-sub004/pkg/bytecode"
)

// element resolves off against the compound on top of r and returns the
// block and the payload index. Dynamic offsets add the signed scalar in
// off.Reg to off.Static; a negative or out-of-range index is FaultIndex.
func (v *VM) element(r bc.Register, off bc.Offset) (uint32, uint32, error) {
	c, err := v.stack.read(r)
	if err != nil {
		return 0, 0, err
	}
	if !c.ptr {
		return 0, 0, newFault(FaultInvalidProgram, "%s holds a scalar, want a compound", r)
	}
	n := int64(v.heap.Len(c.word))

	idx := int64(off.Static)
	if off.Dynamic {
		d, err := v.stack.read(off.Reg)
		if err != nil {
			return 0, 0, err
		}
		if d.ptr {
			return 0, 0, newFault(FaultInvalidProgram, "offset register %s holds a pointer", off.Reg)
		}
		i := int64(int32(d.word))
		if i < 0 || idx+i >= n {
			return 0, 0, newFault(FaultIndex, "index %d, length %d", i, n-idx)
		}
		idx += i
	}
	if idx >= n {
		return 0, 0, newFault(FaultIndex, "offset %d, block of %d words", idx, n)
	}
	return c.word, uint32(idx), nil
}

// updateCompound writes Src into element Offset of the compound in Dst. A
// shared compound is copied first so other holders never see the write.
func (v *VM) updateCompound(b bc.Bytecode) error {
	s := v.stack
	src, err := s.read(b.Src)
	if err != nil {
		return err
	}
	ptr, i, err := v.element(b.Dst, b.Offset)
	if err != nil {
		return err
	}

	if v.heap.RefCount(ptr) > 1 {
		cp := v.heap.Clone(ptr)
		if _, err := s.replace(b.Dst, cell{word: cp, ptr: true}); err != nil {
			v.heap.DecRC(cp)
			return err
		}
		v.heap.DecRC(ptr)
		ptr = cp
	}

	old, oldPtr := v.heap.Load(ptr, i)
	s.retain(src)
	v.heap.Store(ptr, i, src.word, src.ptr)
	if oldPtr {
		v.heap.DecRC(old)
	}
	return nil
}

// readCompound copies element Offset of the compound in Src into Dst.
func (v *VM) readCompound(b bc.Bytecode) error {
	ptr, i, err := v.element(b.Src, b.Offset)
	if err != nil {
		return err
	}
	w, isPtr := v.heap.Load(ptr, i)
	return v.stack.store(b.Dst, cell{word: w, ptr: isPtr})
}
