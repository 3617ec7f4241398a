package vm

import (
	"io"
	"os"

	bc "github.com/baehyunsol/Sodigy-sub004/pkg/bytecode"
)

const (
	DefaultStackCapacity = 65536
	DefaultMaxCallDepth  = 65536
)

type options struct {
	stdout        io.Writer
	stderr        io.Writer
	stackCapacity int
	maxCallDepth  int
	checkHeap     bool
}

// Option configures a VM.
type Option func(*options)

// WithStdout sets the writer for the Print intrinsic.
func WithStdout(w io.Writer) Option { return func(o *options) { o.stdout = w } }

// WithStderr sets the writer for the EPrint intrinsic.
func WithStderr(w io.Writer) Option { return func(o *options) { o.stderr = w } }

// WithStackCapacity bounds the live cells across all Local and Call stacks.
func WithStackCapacity(words int) Option { return func(o *options) { o.stackCapacity = words } }

// WithMaxCallDepth bounds the call stack, the end-of-program sentinel
// included.
func WithMaxCallDepth(n int) Option { return func(o *options) { o.maxCallDepth = n } }

// WithHeapCheck runs Heap.CheckIntegrity after every run.
func WithHeapCheck(on bool) Option { return func(o *options) { o.checkHeap = on } }

// ---------------------------------------------------------------------------
// VM
// ---------------------------------------------------------------------------

// VM executes one Executable. A VM is not safe for concurrent use; run
// separate VMs for parallel work.
type VM struct {
	exe   *bc.Executable
	code  []bc.Bytecode
	jump  []int // static label id -> pc of its marker, -1 if unused
	shape registerShape

	opts  options
	heap  *Heap
	stack *Stack

	pc     int
	steps  uint64
	exited bool
}

// Result is the outcome of a completed run.
type Result struct {
	// Value is the final contents of the Return register, with heap
	// compounds copied out.
	Value bc.Value
	// Exited is set when the run ended through the Exit intrinsic.
	Exited bool
	Steps  uint64
}

// Stats reports counters from the most recent run.
type Stats struct {
	Steps        uint64
	CallDepth    int
	MaxCallDepth int
	Heap         HeapStats
}

// New validates exe and prepares a VM for it. Validation rejects pre-link
// labels, duplicate markers, jumps to labels that are never marked,
// unresolved function pointers and entry offsets outside the code.
func New(exe *bc.Executable, opts ...Option) (*VM, error) {
	v := &VM{
		exe:  exe,
		code: exe.Bytecodes,
		opts: options{
			stdout:        os.Stdout,
			stderr:        os.Stderr,
			stackCapacity: DefaultStackCapacity,
			maxCallDepth:  DefaultMaxCallDepth,
		},
		heap: NewHeap(),
	}
	for _, o := range opts {
		o(&v.opts)
	}
	if err := v.load(); err != nil {
		return nil, err
	}
	v.stack = newStack(v.heap, v.shape, v.opts.stackCapacity, v.opts.maxCallDepth)
	return v, nil
}

func (v *VM) load() error {
	invalid := func(pc int, format string, args ...any) error {
		f := newFault(FaultInvalidProgram, format, args...)
		f.PC = pc
		return f
	}

	for pc, b := range v.code {
		if !b.IsLabel() {
			continue
		}
		if b.Label.Kind != bc.LabelStatic {
			return invalid(pc, "unlinked label %s", b.Label)
		}
		id := int(b.Label.ID)
		if id >= len(v.code) {
			return invalid(pc, "label %s out of range for %d instructions", b.Label, len(v.code))
		}
		for len(v.jump) <= id {
			v.jump = append(v.jump, -1)
		}
		if v.jump[id] >= 0 {
			return invalid(pc, "label %s marked twice", b.Label)
		}
		v.jump[id] = pc
	}

	for pc, b := range v.code {
		switch b.Op {
		case bc.OpPush:
			v.shape.see(b.Src)
			v.shape.see(b.Dst)
		case bc.OpPushConst:
			v.shape.see(b.Dst)
			if err := checkConst(b.Value, 0); err != nil {
				return invalid(pc, "%s", err.Msg)
			}
		case bc.OpUpdateCompound, bc.OpReadCompound:
			v.shape.see(b.Src)
			v.shape.see(b.Dst)
			if b.Offset.Dynamic {
				v.shape.see(b.Offset.Reg)
			}
		case bc.OpPop, bc.OpJumpIf:
			v.shape.see(b.Src)
		case bc.OpJumpIfInit:
			if b.Src.Kind != bc.RegGlobal {
				return invalid(pc, "jump_if_init on %s", b.Src)
			}
			v.shape.see(b.Src)
		case bc.OpIntrinsic:
			if !b.Intrinsic.Valid() {
				return invalid(pc, "unknown intrinsic %d", b.Intrinsic)
			}
			for i := 0; i < b.Intrinsic.Arity(); i++ {
				v.shape.see(bc.Call(uint32(i)))
			}
		}
		if b.HasLabel() && !b.IsLabel() {
			if b.Label.Kind != bc.LabelStatic {
				return invalid(pc, "unlinked label %s", b.Label)
			}
			if int(b.Label.ID) >= len(v.jump) || v.jump[b.Label.ID] < 0 {
				return invalid(pc, "jump to unmarked label %s", b.Label)
			}
		}
	}

	for _, list := range [][]bc.Entry{v.exe.Asserts, v.exe.Funcs} {
		for _, e := range list {
			if int(e.Offset) >= len(v.code) {
				return invalid(-1, "entry %q at %d is outside the code", e.Name, e.Offset)
			}
		}
	}
	return nil
}

// checkConst rejects unresolved function pointers and compounds nested
// deeper than bc.MaxValueDepth.
func checkConst(val bc.Value, depth int) *Fault {
	switch val.Kind {
	case bc.ValueFuncPointer:
		if !val.Resolved {
			return newFault(FaultInvalidProgram, "unresolved function pointer to def %d", val.Def)
		}
	case bc.ValueCompound:
		if depth >= bc.MaxValueDepth {
			return newFault(FaultInvalidProgram, "constant nested more than %d levels", bc.MaxValueDepth)
		}
		for _, e := range val.Elems {
			if f := checkConst(e, depth+1); f != nil {
				return f
			}
		}
	}
	return nil
}

// Heap exposes the VM's heap for inspection.
func (v *VM) Heap() *Heap { return v.heap }

// Stats returns counters from the most recent run.
func (v *VM) Stats() Stats {
	return Stats{
		Steps:        v.steps,
		CallDepth:    len(v.stack.callStack),
		MaxCallDepth: v.stack.peakDepth,
		Heap:         v.heap.Stats(),
	}
}

// Execute runs from entry with empty registers.
func (v *VM) Execute(entry uint32) (*Result, error) {
	return v.Call(entry)
}

// Call runs from entry with args seeded into Call(0), Call(1), ... as a
// caller would before jumping to a function.
func (v *VM) Call(entry uint32, args ...bc.Value) (res *Result, err error) {
	v.reset(len(args))
	defer v.recoverHeap(&res, &err)

	for i, a := range args {
		if f := checkConst(a, 0); f != nil {
			return nil, f
		}
		c := v.materialize(a)
		if err := v.stack.place(bc.Call(uint32(i)), c); err != nil {
			v.stack.release(c)
			return nil, err
		}
	}
	return v.run(int(entry))
}

// RunFunc calls the named function.
func (v *VM) RunFunc(name string, args ...bc.Value) (*Result, error) {
	off, ok := v.exe.Func(name)
	if !ok {
		return nil, newFault(FaultInvalidJump, "no function named %q", name)
	}
	return v.Call(off, args...)
}

func (v *VM) reset(args int) {
	v.heap.Reset()
	shape := v.shape
	shape.calls = max(shape.calls, args)
	v.stack = newStack(v.heap, shape, v.opts.stackCapacity, v.opts.maxCallDepth)
	v.pc = -1
	v.steps = 0
	v.exited = false
}

func (v *VM) recoverHeap(res **Result, err *error) {
	r := recover()
	if r == nil {
		return
	}
	hc, ok := r.(*HeapCorruption)
	if !ok {
		panic(r)
	}
	log.Errorf("pc %d: %s", v.pc, hc)
	*res = nil
	*err = &Fault{Kind: FaultHeap, PC: v.pc, Msg: hc.Error()}
}

// ---------------------------------------------------------------------------
// Values
// ---------------------------------------------------------------------------

// materialize turns a constant into a register cell. Compounds are copied
// to the heap; the returned pointer carries the block's only reference.
func (v *VM) materialize(val bc.Value) cell {
	switch val.Kind {
	case bc.ValueCompound:
		ptr := v.heap.Alloc(uint32(len(val.Elems)))
		for i, e := range val.Elems {
			c := v.materialize(e)
			v.heap.Store(ptr, uint32(i), c.word, c.ptr)
		}
		return cell{word: ptr, ptr: true}
	case bc.ValueFuncPointer:
		return cell{word: val.PC}
	case bc.ValueSpan:
		ptr := v.heap.Alloc(3)
		v.heap.Store(ptr, 0, val.Span.File, false)
		v.heap.Store(ptr, 1, val.Span.Start, false)
		v.heap.Store(ptr, 2, val.Span.End, false)
		return cell{word: ptr, ptr: true}
	}
	return cell{word: val.Scalar}
}

// value copies a cell out of the machine. Results nested deeper than
// bc.MaxValueDepth fault, so a cyclic block cannot recurse forever.
func (v *VM) value(c cell, depth int) (bc.Value, error) {
	if !c.ptr {
		return bc.Scalar(c.word), nil
	}
	if depth >= bc.MaxValueDepth {
		return bc.Value{}, newFault(FaultTooDeep, "result nested more than %d levels", bc.MaxValueDepth)
	}
	n := v.heap.Len(c.word)
	elems := make([]bc.Value, n)
	for i := range elems {
		w, isPtr := v.heap.Load(c.word, uint32(i))
		e, err := v.value(cell{word: w, ptr: isPtr}, depth+1)
		if err != nil {
			return bc.Value{}, err
		}
		elems[i] = e
	}
	return bc.Compound(elems...), nil
}
