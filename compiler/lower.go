package compiler

import (
	"fmt"
	"math"

	"github.com/baehyunsol/Sodigy-sub004/mir"
	"github.com/baehyunsol/Sodigy-sub004/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// Units
// ---------------------------------------------------------------------------

// UnitKind says which top-level item a Unit was lowered from.
type UnitKind uint8

const (
	UnitFunc UnitKind = iota
	UnitLet
	UnitAssert
)

func (k UnitKind) String() string {
	switch k {
	case UnitFunc:
		return "func"
	case UnitLet:
		return "let"
	case UnitAssert:
		return "assert"
	}
	return fmt.Sprintf("UnitKind(%d)", uint8(k))
}

// Unit is the pre-link instruction stream of one function, top-level let,
// or assertion. Labels are Local (own targets) or Func (other units).
type Unit struct {
	Kind      UnitKind
	Def       mir.DefID // zero for asserts
	Name      string
	Span      mir.Span
	Bytecodes []bytecode.Bytecode

	Locals uint32 // Local registers used
	Labels uint32 // Local labels allocated
}

// unitJob is one item waiting to be lowered.
type unitJob struct {
	kind   UnitKind
	fn     *mir.Func
	let    *mir.Let
	index  uint32
	assert *mir.Assert
}

// unitJobs lists the program's units in link order: funcs, lets, asserts.
// Built-in functions have no body and are skipped.
func unitJobs(prog *mir.Program) []unitJob {
	jobs := make([]unitJob, 0, len(prog.Funcs)+len(prog.Lets)+len(prog.Asserts))
	for i := range prog.Funcs {
		if prog.Funcs[i].BuiltIn {
			continue
		}
		jobs = append(jobs, unitJob{kind: UnitFunc, fn: &prog.Funcs[i]})
	}
	for i := range prog.Lets {
		jobs = append(jobs, unitJob{kind: UnitLet, let: &prog.Lets[i], index: uint32(i)})
	}
	for i := range prog.Asserts {
		jobs = append(jobs, unitJob{kind: UnitAssert, assert: &prog.Asserts[i]})
	}
	return jobs
}

// ---------------------------------------------------------------------------
// Entry points
// ---------------------------------------------------------------------------

// Lower lowers every unit of prog sequentially with a single session.
func Lower(prog *mir.Program) ([]*Unit, error) {
	s := NewSession(NewSymbols(prog))
	jobs := unitJobs(prog)
	units := make([]*Unit, len(jobs))
	for i, j := range jobs {
		u, err := s.lowerJob(j)
		if err != nil {
			return nil, err
		}
		units[i] = u
	}
	return units, nil
}

func (s *Session) lowerJob(j unitJob) (u *Unit, err error) {
	defer recoverInternal(&err)
	switch j.kind {
	case UnitFunc:
		return s.LowerFunc(j.fn), nil
	case UnitLet:
		return s.LowerLet(j.let, j.index), nil
	default:
		return s.LowerAssert(j.assert), nil
	}
}

// LowerFunc lowers a function. The prologue moves each argument from
// Call(i) into Local(i); the body is in tail position.
func (s *Session) LowerFunc(f *mir.Func) *Unit {
	s.beginUnit(f.Name)
	if f.Body == nil {
		s.fatalf(f.Span, "function has no body")
	}
	s.pushScope()
	for i, p := range f.Params {
		r := s.bindLocal(p.Def, p.Span)
		arg := bytecode.Call(s.argIndex(i, p.Span))
		s.emit(bytecode.Push(arg, r), bytecode.Pop(arg))
	}
	s.lowerExpr(f.Body, bytecode.Return, true)
	return s.endUnit(UnitFunc, f.Def, f.Span)
}

// LowerLet lowers top-level let number index. The unit computes the value,
// stores it in Global(index) and returns.
func (s *Session) LowerLet(l *mir.Let, index uint32) *Unit {
	s.beginUnit(l.Name)
	if l.Value == nil {
		s.fatalf(l.Span, "let has no value")
	}
	s.pushScope()
	s.lowerExpr(l.Value, bytecode.Return, false)
	s.emit(bytecode.Push(bytecode.Return, bytecode.Global(index)), bytecode.Ret())
	return s.endUnit(UnitLet, l.Def, l.Span)
}

// LowerAssert lowers a top-level assertion. A false value prints the
// failure message and panics; a true one is left in Return.
func (s *Session) LowerAssert(a *mir.Assert) *Unit {
	s.beginUnit(a.Name)
	s.pushScope()
	s.lowerAssert(a)
	s.emit(bytecode.Ret())
	return s.endUnit(UnitAssert, 0, a.Span)
}

func (s *Session) lowerAssert(a *mir.Assert) {
	if a.Value == nil {
		s.fatalf(a.Span, "assert has no value")
	}
	s.lowerExpr(a.Value, bytecode.Return, false)

	ok := s.newLabel()
	msg := bytecode.Call(0)
	s.emit(
		bytecode.JumpIf(bytecode.Return, ok),
		bytecode.PushConst(bytecode.String(a.FailureMessage()), msg),
		bytecode.CallIntrinsic(mir.EPrint),
		bytecode.Pop(msg),
		bytecode.CallIntrinsic(mir.Panic),
		bytecode.Mark(ok),
	)
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

// lowerExpr emits code that leaves e's value in dst: one push for Local
// and Call registers, an overwrite for Return. In tail position dst is
// Return and the emitted code leaves the unit (Return or a tail Goto).
func (s *Session) lowerExpr(e *mir.Expr, dst bytecode.Register, tail bool) {
	if e == nil {
		s.fatalf(mir.Span{}, "missing expression")
	}
	if tail && dst != bytecode.Return {
		s.fatalf(e.Span, "tail expression must target the return register")
	}

	switch e.Kind {
	case mir.ExprNumber:
		if e.Number < math.MinInt32 || e.Number > math.MaxInt32 {
			s.fatalf(e.Span, "integer literal %d does not fit in 32 bits", e.Number)
		}
		s.emit(bytecode.PushConst(bytecode.Int(int32(e.Number)), dst))
		s.finish(tail)

	case mir.ExprChar, mir.ExprByte:
		s.emit(bytecode.PushConst(bytecode.Scalar(e.Scalar), dst))
		s.finish(tail)

	case mir.ExprBool:
		w := uint32(0)
		if e.Bool {
			w = 1
		}
		s.emit(bytecode.PushConst(bytecode.Scalar(w), dst))
		s.finish(tail)

	case mir.ExprString:
		v := bytecode.String(e.Str)
		if e.Binary {
			v = bytecode.ByteString([]byte(e.Str))
		}
		s.emit(bytecode.PushConst(v, dst))
		s.finish(tail)

	case mir.ExprIdent:
		s.lowerIdent(e, dst, tail)

	case mir.ExprIf:
		s.lowerIf(e, dst, tail)

	case mir.ExprBlock:
		s.lowerBlock(e, dst, tail)

	case mir.ExprCall:
		s.lowerCall(e, dst, tail)

	case mir.ExprField:
		if e.Value == nil {
			s.fatalf(e.Span, "field access without a tuple")
		}
		s.lowerExpr(e.Value, bytecode.Return, false)
		s.emit(bytecode.ReadCompound(bytecode.Return, bytecode.StaticOffset(e.Field), dst))
		s.finish(tail)

	default:
		s.fatalf(e.Span, "cannot lower %s expression", e.Kind)
	}
}

// finish ends a tail position: release every live local and return.
func (s *Session) finish(tail bool) {
	if !tail {
		return
	}
	s.popLiveLocals()
	s.emit(bytecode.Ret())
}

func (s *Session) popLiveLocals() {
	for _, r := range s.liveLocals() {
		s.emit(bytecode.Pop(r))
	}
}

func (s *Session) lowerIdent(e *mir.Expr, dst bytecode.Register, tail bool) {
	id := e.Ident
	if id == nil {
		s.fatalf(e.Span, "identifier without name")
	}

	switch id.Kind {
	case mir.NameParam, mir.NameLocal:
		s.emit(bytecode.Push(s.lookupLocal(id, e.Span), dst))

	case mir.NameFunc:
		if _, ok := s.symbols.funcs[id.Def]; !ok {
			s.fatalf(e.Span, "unknown function %q (def %d)", id.Name, id.Def)
		}
		s.emit(bytecode.PushConst(bytecode.FuncPointer(id.Def), dst))

	case mir.NameTopLet:
		index, ok := s.symbols.lets[id.Def]
		if !ok {
			s.fatalf(e.Span, "unknown top-level let %q (def %d)", id.Name, id.Def)
		}
		g := bytecode.Global(index)
		ready := s.newLabel()
		back := s.newLabel()
		s.emit(
			bytecode.JumpIfInit(g, ready),
			bytecode.PushCallStack(back),
			bytecode.Goto(bytecode.FuncLabel(id.Def)),
			bytecode.Mark(back),
			bytecode.PopCallStack(),
			bytecode.Mark(ready),
			bytecode.Push(g, dst),
		)

	default:
		s.fatalf(e.Span, "identifier %q has unknown kind %d", id.Name, id.Kind)
	}
	s.finish(tail)
}

// lowerIf branches to the then-arm when the condition is nonzero; the
// else-arm is the fall-through.
func (s *Session) lowerIf(e *mir.Expr, dst bytecode.Register, tail bool) {
	if e.Cond == nil || e.Then == nil || e.Else == nil {
		s.fatalf(e.Span, "if expression is missing an arm")
	}
	then := s.newLabel()
	s.lowerExpr(e.Cond, bytecode.Return, false)
	s.emit(bytecode.JumpIf(bytecode.Return, then))

	if tail {
		s.lowerExpr(e.Else, dst, true)
		s.emit(bytecode.Mark(then))
		s.lowerExpr(e.Then, dst, true)
		return
	}

	end := s.newLabel()
	s.lowerExpr(e.Else, dst, false)
	s.emit(bytecode.Goto(end), bytecode.Mark(then))
	s.lowerExpr(e.Then, dst, false)
	s.emit(bytecode.Mark(end))
}

func (s *Session) lowerBlock(e *mir.Expr, dst bytecode.Register, tail bool) {
	s.pushScope()
	for i := range e.Lets {
		l := &e.Lets[i]
		s.lowerExpr(l.Value, bytecode.Return, false)
		r := s.bindLocal(l.Def, l.Span)
		s.emit(bytecode.Push(bytecode.Return, r))
	}
	for i := range e.Asserts {
		s.lowerAssert(&e.Asserts[i])
	}
	s.lowerExpr(e.Value, dst, tail)

	regs := s.popScope()
	if !tail {
		for _, r := range regs {
			s.emit(bytecode.Pop(r))
		}
	}
}

func (s *Session) lowerCall(e *mir.Expr, dst bytecode.Register, tail bool) {
	c := e.Callee
	if c == nil {
		s.fatalf(e.Span, "call without callee")
	}

	switch c.Kind {
	case mir.CallIntrinsic:
		if !c.Intrinsic.Valid() {
			s.fatalf(e.Span, "unknown intrinsic %d", c.Intrinsic)
		}
		if len(e.Args) != c.Intrinsic.Arity() {
			s.fatalf(e.Span, "%s takes %d arguments, got %d", c.Intrinsic, c.Intrinsic.Arity(), len(e.Args))
		}
		s.lowerArgs(e)
		s.emit(bytecode.CallIntrinsic(c.Intrinsic))
		s.popArgs(e)
		if dst != bytecode.Return {
			s.emit(bytecode.Push(bytecode.Return, dst))
		}
		s.finish(tail)

	case mir.CallStatic:
		f, ok := s.symbols.funcs[c.Def]
		if !ok {
			s.fatalf(e.Span, "call to unknown function (def %d)", c.Def)
		}
		if f.BuiltIn {
			s.fatalf(e.Span, "built-in function %q has no bytecode body", f.Name)
		}
		if len(e.Args) != len(f.Params) {
			s.fatalf(e.Span, "%s takes %d arguments, got %d", f.Name, len(f.Params), len(e.Args))
		}
		s.lowerArgs(e)
		entry := bytecode.FuncLabel(c.Def)

		if tail {
			// The callee's Return goes straight to our caller.
			s.popLiveLocals()
			s.emit(bytecode.Goto(entry))
			return
		}
		ret := s.newLabel()
		s.emit(
			bytecode.PushCallStack(ret),
			bytecode.Goto(entry),
			bytecode.Mark(ret),
			bytecode.PopCallStack(),
		)
		if dst != bytecode.Return {
			s.emit(bytecode.Push(bytecode.Return, dst))
		}

	case mir.CallTuple, mir.CallList:
		s.lowerArgs(e)
		n := s.argIndex(len(e.Args), e.Span)
		first := uint32(0)
		elems := make([]bytecode.Value, 0, n+1)
		if c.Kind == mir.CallList {
			// lists carry their length in element 0
			elems = append(elems, bytecode.Scalar(n))
			first = 1
		}
		for range e.Args {
			elems = append(elems, bytecode.Scalar(0))
		}
		s.emit(bytecode.PushConst(bytecode.Compound(elems...), bytecode.Return))
		for i := range e.Args {
			arg := bytecode.Call(s.argIndex(i, e.Span))
			s.emit(bytecode.UpdateCompound(bytecode.Return, bytecode.StaticOffset(first+uint32(i)), arg))
		}
		s.popArgs(e)
		if dst != bytecode.Return {
			s.emit(bytecode.Push(bytecode.Return, dst))
		}
		s.finish(tail)

	case mir.CallIndex:
		if len(e.Args) != 2 {
			s.fatalf(e.Span, "index takes a list and an index, got %d arguments", len(e.Args))
		}
		s.lowerArgs(e)
		s.emit(bytecode.ReadCompound(bytecode.Call(0), bytecode.DynamicOffset(bytecode.Call(1), 1), bytecode.Return))
		s.popArgs(e)
		if dst != bytecode.Return {
			s.emit(bytecode.Push(bytecode.Return, dst))
		}
		s.finish(tail)

	case mir.CallDynamic:
		s.fatalf(e.Span, "dynamic calls are not supported by the bytecode backend")

	default:
		s.fatalf(e.Span, "unknown callable kind %d", c.Kind)
	}
}

// popArgs pops the Call registers filled by lowerArgs, last first.
func (s *Session) popArgs(e *mir.Expr) {
	for i := len(e.Args) - 1; i >= 0; i-- {
		s.emit(bytecode.Pop(bytecode.Call(s.argIndex(i, e.Span))))
	}
}

func (s *Session) lowerArgs(e *mir.Expr) {
	for i, a := range e.Args {
		s.lowerExpr(a, bytecode.Call(s.argIndex(i, e.Span)), false)
	}
}
