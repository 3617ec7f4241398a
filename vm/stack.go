package vm

import (
	bc "github.com/baehyunsol/Sodigy-sub004/pkg/bytecode"
)

// cell is one register word plus its pointer bit.
type cell struct {
	word uint32
	ptr  bool
}

// ---------------------------------------------------------------------------
// Stack: registers and the call stack
// ---------------------------------------------------------------------------

// Stack holds the machine's registers. Local(n) and Call(n) are stacks,
// Return and Global(n) single slots. The total number of live cells in the
// Local and Call stacks is bounded by capacity.
type Stack struct {
	heap *Heap

	ret    cell
	retSet bool

	locals [][]cell
	calls  [][]cell

	globals   []cell
	globalSet []bool

	callStack    []int
	maxCallDepth int
	peakDepth    int

	words    int
	capacity int
}

func newStack(heap *Heap, shape registerShape, capacity, maxCallDepth int) *Stack {
	return &Stack{
		heap:         heap,
		locals:       make([][]cell, shape.locals),
		calls:        make([][]cell, shape.calls),
		globals:      make([]cell, shape.globals),
		globalSet:    make([]bool, shape.globals),
		capacity:     capacity,
		maxCallDepth: maxCallDepth,
	}
}

func (s *Stack) retain(c cell) {
	if c.ptr {
		s.heap.IncRC(c.word)
	}
}

func (s *Stack) release(c cell) {
	if c.ptr {
		s.heap.DecRC(c.word)
	}
}

// slot returns the stack behind a Local or Call register.
func (s *Stack) slot(r bc.Register) (*[]cell, error) {
	if !r.IsStack() {
		return nil, newFault(FaultRegister, "%s is not a stack register", r)
	}
	regs := s.calls
	if r.Kind == bc.RegLocal {
		regs = s.locals
	}
	if int(r.Index) >= len(regs) {
		return nil, newFault(FaultRegister, "%s out of bounds", r)
	}
	return &regs[r.Index], nil
}

// read returns the top of r without changing reference counts.
func (s *Stack) read(r bc.Register) (cell, error) {
	switch r.Kind {
	case bc.RegReturn:
		if !s.retSet {
			return cell{}, newFault(FaultRegister, "return register is empty")
		}
		return s.ret, nil
	case bc.RegGlobal:
		if int(r.Index) >= len(s.globals) || !s.globalSet[r.Index] {
			return cell{}, newFault(FaultRegister, "%s is not initialized", r)
		}
		return s.globals[r.Index], nil
	}
	st, err := s.slot(r)
	if err != nil {
		return cell{}, err
	}
	if len(*st) == 0 {
		return cell{}, newFault(FaultRegister, "%s is empty", r)
	}
	return (*st)[len(*st)-1], nil
}

// store copies c into r, taking a new reference.
func (s *Stack) store(r bc.Register, c cell) error {
	s.retain(c)
	if err := s.place(r, c); err != nil {
		s.release(c)
		return err
	}
	return nil
}

// place moves c into r; the reference c carries now belongs to r.
func (s *Stack) place(r bc.Register, c cell) error {
	switch r.Kind {
	case bc.RegReturn:
		old, had := s.ret, s.retSet
		s.ret, s.retSet = c, true
		if had {
			s.release(old)
		}
		return nil
	case bc.RegGlobal:
		if int(r.Index) >= len(s.globals) {
			return newFault(FaultRegister, "%s out of bounds", r)
		}
		old, had := s.globals[r.Index], s.globalSet[r.Index]
		s.globals[r.Index], s.globalSet[r.Index] = c, true
		if had {
			s.release(old)
		}
		return nil
	}
	st, err := s.slot(r)
	if err != nil {
		return err
	}
	if s.words >= s.capacity {
		return newFault(FaultStackOverflow, "register stacks exceed %d words", s.capacity)
	}
	*st = append(*st, c)
	s.words++
	return nil
}

// replace swaps the top of r for c and returns the displaced cell. No
// reference count changes.
func (s *Stack) replace(r bc.Register, c cell) (cell, error) {
	switch r.Kind {
	case bc.RegReturn:
		if !s.retSet {
			return cell{}, newFault(FaultRegister, "return register is empty")
		}
		old := s.ret
		s.ret = c
		return old, nil
	case bc.RegGlobal:
		if int(r.Index) >= len(s.globals) || !s.globalSet[r.Index] {
			return cell{}, newFault(FaultRegister, "%s is not initialized", r)
		}
		old := s.globals[r.Index]
		s.globals[r.Index] = c
		return old, nil
	}
	st, err := s.slot(r)
	if err != nil {
		return cell{}, err
	}
	if len(*st) == 0 {
		return cell{}, newFault(FaultRegister, "%s is empty", r)
	}
	old := (*st)[len(*st)-1]
	(*st)[len(*st)-1] = c
	return old, nil
}

// pop discards the top of r. Popping Return clears it.
func (s *Stack) pop(r bc.Register) error {
	switch r.Kind {
	case bc.RegReturn:
		if s.retSet {
			s.retSet = false
			s.release(s.ret)
		}
		return nil
	case bc.RegGlobal:
		return newFault(FaultRegister, "cannot pop %s", r)
	}
	st, err := s.slot(r)
	if err != nil {
		return err
	}
	if len(*st) == 0 {
		return newFault(FaultRegister, "pop of empty %s", r)
	}
	c := (*st)[len(*st)-1]
	*st = (*st)[:len(*st)-1]
	s.words--
	s.release(c)
	return nil
}

func (s *Stack) pushCall(pc int) error {
	if len(s.callStack) >= s.maxCallDepth {
		return newFault(FaultStackOverflow, "call stack exceeds %d frames", s.maxCallDepth)
	}
	s.callStack = append(s.callStack, pc)
	s.peakDepth = max(s.peakDepth, len(s.callStack))
	return nil
}

func (s *Stack) popCall() error {
	if len(s.callStack) == 0 {
		return newFault(FaultCallStackUnderflow, "pop of empty call stack")
	}
	s.callStack = s.callStack[:len(s.callStack)-1]
	return nil
}

func (s *Stack) topCall() (int, error) {
	if len(s.callStack) == 0 {
		return 0, newFault(FaultCallStackUnderflow, "return with empty call stack")
	}
	return s.callStack[len(s.callStack)-1], nil
}

// releaseAll drops every reference the registers hold.
func (s *Stack) releaseAll() {
	if s.retSet {
		s.retSet = false
		s.release(s.ret)
	}
	for i, set := range s.globalSet {
		if set {
			s.globalSet[i] = false
			s.release(s.globals[i])
		}
	}
	for _, regs := range [][][]cell{s.locals, s.calls} {
		for i := range regs {
			for _, c := range regs[i] {
				s.release(c)
			}
			regs[i] = regs[i][:0]
		}
	}
	s.words = 0
	s.callStack = s.callStack[:0]
}

// registerShape is how many registers of each kind an executable uses.
type registerShape struct {
	locals, calls, globals int
}

func (rs *registerShape) see(r bc.Register) {
	n := int(r.Index) + 1
	switch r.Kind {
	case bc.RegLocal:
		rs.locals = max(rs.locals, n)
	case bc.RegCall:
		rs.calls = max(rs.calls, n)
	case bc.RegGlobal:
		rs.globals = max(rs.globals, n)
	}
}
