package vm

import (
	"bytes"
	"errors"
	"testing"

	"github.com/baehyunsol/Sodigy-sub004/compiler"
	"github.com/baehyunsol/Sodigy-sub004/mir"
	bc "github.com/baehyunsol/Sodigy-sub004/pkg/bytecode"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func compile(t *testing.T, prog *mir.Program) *bc.Executable {
	t.Helper()
	art, err := compiler.Compile(prog)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	// Run what a reader of the file would see.
	x, err := bc.DecodeExecutable(art.Bytes)
	if err != nil {
		t.Fatalf("DecodeExecutable: %v", err)
	}
	return x
}

func newVM(t *testing.T, x *bc.Executable, opts ...Option) *VM {
	t.Helper()
	v, err := New(x, append([]Option{WithHeapCheck(true)}, opts...)...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return v
}

func runMain(t *testing.T, prog *mir.Program, opts ...Option) (*VM, *Result) {
	t.Helper()
	v := newVM(t, compile(t, prog), opts...)
	res, err := v.RunFunc("main")
	if err != nil {
		t.Fatalf("RunFunc(main): %v", err)
	}
	return v, res
}

func expectFault(t *testing.T, err error, kind FaultKind) {
	t.Helper()
	if !errors.Is(err, ErrFault) || !IsFault(err, kind) {
		t.Fatalf("got %v, want %s fault", err, kind)
	}
}

func wantInt(t *testing.T, res *Result, n int32) {
	t.Helper()
	if !res.Value.Equal(bc.Int(n)) {
		t.Errorf("result: got %s, want %d", res.Value, n)
	}
}

// nested wraps a scalar in depth single-element compounds.
func nested(depth int) bc.Value {
	v := bc.Scalar(0)
	for range depth {
		v = bc.Compound(v)
	}
	return v
}

func intrinsic(op mir.Intrinsic, args ...*mir.Expr) *mir.Expr {
	return mir.CallIntrinsicExpr(op, args...)
}

// ---------------------------------------------------------------------------
// Hand-built bytecode
// ---------------------------------------------------------------------------

func TestReturnWithEmptyCallStack(t *testing.T) {
	v := newVM(t, &bc.Executable{Bytecodes: []bc.Bytecode{
		bc.PopCallStack(),
		bc.Ret(),
	}})
	_, err := v.Execute(0)
	expectFault(t, err, FaultCallStackUnderflow)

	var f *Fault
	errors.As(err, &f)
	if f.PC != 1 {
		t.Errorf("pc: got %d, want 1", f.PC)
	}
}

func TestDivisionByZero(t *testing.T) {
	for _, op := range []mir.Intrinsic{mir.IntegerDiv, mir.IntegerRem} {
		v := newVM(t, &bc.Executable{Bytecodes: []bc.Bytecode{
			bc.PushConst(bc.Int(7), bc.Call(0)),
			bc.PushConst(bc.Int(0), bc.Call(1)),
			bc.CallIntrinsic(op),
			bc.Ret(),
		}})
		_, err := v.Execute(0)
		expectFault(t, err, FaultDivisionByZero)
	}
}

func TestPanicFault(t *testing.T) {
	v := newVM(t, &bc.Executable{Bytecodes: []bc.Bytecode{bc.CallIntrinsic(mir.Panic)}})
	_, err := v.Execute(0)
	expectFault(t, err, FaultPanic)
}

func TestEmptyRegisterFault(t *testing.T) {
	v := newVM(t, &bc.Executable{Bytecodes: []bc.Bytecode{
		bc.Push(bc.Local(0), bc.Return),
		bc.Ret(),
	}})
	_, err := v.Execute(0)
	expectFault(t, err, FaultRegister)
}

func TestUnknownRegisterKindFaults(t *testing.T) {
	bogus := bc.Register{Kind: 9}
	v := newVM(t, &bc.Executable{Bytecodes: []bc.Bytecode{
		bc.PushConst(bc.Scalar(1), bogus),
		bc.Ret(),
	}})
	_, err := v.Execute(0)
	expectFault(t, err, FaultRegister)
}

func TestExitEndsRunNormally(t *testing.T) {
	v := newVM(t, &bc.Executable{Bytecodes: []bc.Bytecode{
		bc.PushConst(bc.Int(5), bc.Return),
		bc.CallIntrinsic(mir.Exit),
		bc.PushConst(bc.Int(9), bc.Return),
		bc.Ret(),
	}})
	res, err := v.Execute(0)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.Exited {
		t.Error("Exited not set")
	}
	wantInt(t, res, 0)
}

func TestJumpIfBranchesOnNonzero(t *testing.T) {
	code := func(cond uint32) *bc.Executable {
		return &bc.Executable{Bytecodes: []bc.Bytecode{
			bc.PushConst(bc.Scalar(cond), bc.Return),
			bc.JumpIf(bc.Return, bc.StaticLabel(0)),
			bc.PushConst(bc.Int(20), bc.Return),
			bc.Ret(),
			bc.Mark(bc.StaticLabel(0)),
			bc.PushConst(bc.Int(10), bc.Return),
			bc.Ret(),
		}}
	}
	for cond, want := range map[uint32]int32{0: 20, 1: 10, 7: 10} {
		res, err := newVM(t, code(cond)).Execute(0)
		if err != nil {
			t.Fatalf("Execute: %v", err)
		}
		wantInt(t, res, want)
	}
}

func TestNewRejectsInvalidPrograms(t *testing.T) {
	tests := []struct {
		name string
		exe  *bc.Executable
	}{
		{"unlinked marker", &bc.Executable{Bytecodes: []bc.Bytecode{bc.Mark(bc.LocalLabel(0))}}},
		{"unlinked jump", &bc.Executable{Bytecodes: []bc.Bytecode{bc.Goto(bc.FuncLabel(1))}}},
		{"unmarked target", &bc.Executable{Bytecodes: []bc.Bytecode{bc.Goto(bc.StaticLabel(3))}}},
		{"marked twice", &bc.Executable{Bytecodes: []bc.Bytecode{
			bc.Mark(bc.StaticLabel(0)), bc.Mark(bc.StaticLabel(0)),
		}}},
		{"unresolved pointer", &bc.Executable{Bytecodes: []bc.Bytecode{
			bc.PushConst(bc.FuncPointer(1), bc.Return),
		}}},
		{"jump_if_init on local", &bc.Executable{Bytecodes: []bc.Bytecode{
			bc.Mark(bc.StaticLabel(0)), bc.JumpIfInit(bc.Local(0), bc.StaticLabel(0)),
		}}},
		{"label id out of range", &bc.Executable{Bytecodes: []bc.Bytecode{
			bc.Mark(bc.StaticLabel(1 << 26)), bc.Ret(),
		}}},
		{"constant too deep", &bc.Executable{Bytecodes: []bc.Bytecode{
			bc.PushConst(nested(bc.MaxValueDepth+1), bc.Return), bc.Ret(),
		}}},
		{"entry outside code", &bc.Executable{
			Asserts:   []bc.Entry{{Name: "a", Offset: 5}},
			Bytecodes: []bc.Bytecode{bc.Ret()},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.exe)
			expectFault(t, err, FaultInvalidProgram)
		})
	}
}

// ---------------------------------------------------------------------------
// Compiled programs
// ---------------------------------------------------------------------------

// deepProgram: fn deep(n) = if n == 0 { 0 } else { 1 + deep(n - 1) };
// The recursive call is not in tail position.
func deepProgram(n int64) *mir.Program {
	return &mir.Program{Funcs: []mir.Func{
		{
			Def:    1,
			Name:   "deep",
			Params: []mir.Param{{Def: 2, Name: "n"}},
			Body: mir.If(
				intrinsic(mir.IntegerEq, mir.ParamRef(2, "n"), mir.Num(0)),
				mir.Num(0),
				intrinsic(mir.IntegerAdd, mir.Num(1),
					mir.Call(1, intrinsic(mir.IntegerSub, mir.ParamRef(2, "n"), mir.Num(1)))),
			),
		},
		{Def: 3, Name: "main", Body: mir.Call(1, mir.Num(n))},
	}}
}

func TestNonTailRecursion(t *testing.T) {
	v, res := runMain(t, deepProgram(500))
	wantInt(t, res, 500)
	if d := v.Stats().MaxCallDepth; d < 500 {
		t.Errorf("max call depth %d, want at least 500", d)
	}
}

func TestNonTailRecursionOverflows(t *testing.T) {
	v := newVM(t, compile(t, deepProgram(1000)), WithMaxCallDepth(100))
	_, err := v.RunFunc("main")
	expectFault(t, err, FaultStackOverflow)
}

func TestStackCapacityOverflows(t *testing.T) {
	v := newVM(t, compile(t, deepProgram(1000)), WithStackCapacity(64))
	_, err := v.RunFunc("main")
	expectFault(t, err, FaultStackOverflow)
}

func TestStringResultAndNoLeaks(t *testing.T) {
	prog := &mir.Program{Funcs: []mir.Func{{Def: 1, Name: "main", Body: mir.Block(
		[]mir.LocalLet{{Def: 2, Name: "s", Value: mir.Str("hi")}},
		mir.LocalRef(2, "s"),
	)}}}
	v, res := runMain(t, prog)
	if !res.Value.Equal(bc.String("hi")) {
		t.Errorf("result: got %s", res.Value)
	}
	if s := v.Stats().Heap; s.UsedBlocks != 0 {
		t.Errorf("heap not empty after run: %+v", s)
	}
}

func TestPrintAndEPrint(t *testing.T) {
	prog := &mir.Program{Funcs: []mir.Func{{Def: 1, Name: "main", Body: mir.Block(
		[]mir.LocalLet{
			{Def: 2, Name: "a", Value: intrinsic(mir.Print, mir.Str("hello, "))},
			{Def: 3, Name: "b", Value: intrinsic(mir.Print, mir.Str("세계"))},
			{Def: 4, Name: "c", Value: intrinsic(mir.EPrint, mir.Str("oops"))},
		},
		mir.Num(1),
	)}}}
	var out, errOut bytes.Buffer
	v, res := runMain(t, prog, WithStdout(&out), WithStderr(&errOut))
	wantInt(t, res, 1)
	if out.String() != "hello, 세계" {
		t.Errorf("stdout: got %q", out.String())
	}
	if errOut.String() != "oops" {
		t.Errorf("stderr: got %q", errOut.String())
	}
	if s := v.Stats().Heap; s.UsedBlocks != 0 {
		t.Errorf("strings leaked: %+v", s)
	}
}

func TestPrintByteStringAsCodePoints(t *testing.T) {
	prog := &mir.Program{Funcs: []mir.Func{{Def: 1, Name: "main",
		Body: intrinsic(mir.Print, mir.Bytes("caf\xe9"))}}}
	var out bytes.Buffer
	runMain(t, prog, WithStdout(&out))
	if out.String() != "café" {
		t.Errorf("stdout: got %q", out.String())
	}
}

func TestLazyLetEvaluatedOnce(t *testing.T) {
	// let g = { let _ = print("init"); 7 };
	// fn main() = g + g;
	prog := &mir.Program{
		Funcs: []mir.Func{{Def: 1, Name: "main",
			Body: intrinsic(mir.IntegerAdd, mir.LetRef(10, "g"), mir.LetRef(10, "g"))}},
		Lets: []mir.Let{{Def: 10, Name: "g", Value: mir.Block(
			[]mir.LocalLet{{Def: 11, Name: "_", Value: intrinsic(mir.Print, mir.Str("init"))}},
			mir.Num(7),
		)}},
	}
	var out bytes.Buffer
	v := newVM(t, compile(t, prog), WithStdout(&out))
	for run := 0; run < 2; run++ {
		res, err := v.RunFunc("main")
		if err != nil {
			t.Fatalf("run %d: %v", run, err)
		}
		wantInt(t, res, 14)
	}
	// once per run
	if out.String() != "initinit" {
		t.Errorf("stdout: got %q, want %q", out.String(), "initinit")
	}
}

func TestFuncPointerIsEntryOffset(t *testing.T) {
	prog := &mir.Program{Funcs: []mir.Func{
		{Def: 1, Name: "target", Body: mir.Num(0)},
		{Def: 2, Name: "main", Body: mir.FuncRef(1, "target")},
	}}
	x := compile(t, prog)
	off, _ := x.Func("target")
	res, err := newVM(t, x).RunFunc("main")
	if err != nil {
		t.Fatalf("RunFunc: %v", err)
	}
	if !res.Value.Equal(bc.Scalar(off)) {
		t.Errorf("pointer: got %s, want %d", res.Value, off)
	}
}

func TestIntegerIntrinsics(t *testing.T) {
	tests := []struct {
		op   mir.Intrinsic
		a, b int64
		want int32
	}{
		{mir.IntegerAdd, 2, 3, 5},
		{mir.IntegerAdd, 2147483647, 1, -2147483648},
		{mir.IntegerSub, 2, 3, -1},
		{mir.IntegerMul, -4, 5, -20},
		{mir.IntegerDiv, -7, 2, -3},
		{mir.IntegerRem, -7, 2, -1},
		{mir.IntegerEq, 4, 4, 1},
		{mir.IntegerLt, -1, 0, 1},
		{mir.IntegerGt, -1, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.op.String(), func(t *testing.T) {
			prog := &mir.Program{Funcs: []mir.Func{{Def: 1, Name: "main",
				Body: intrinsic(tt.op, mir.Num(tt.a), mir.Num(tt.b))}}}
			_, res := runMain(t, prog)
			wantInt(t, res, tt.want)
		})
	}
}

func TestCallSeedsArguments(t *testing.T) {
	prog := &mir.Program{Funcs: []mir.Func{{
		Def:    1,
		Name:   "sub",
		Params: []mir.Param{{Def: 2, Name: "a"}, {Def: 3, Name: "b"}},
		Body:   intrinsic(mir.IntegerSub, mir.ParamRef(2, "a"), mir.ParamRef(3, "b")),
	}}}
	res, err := newVM(t, compile(t, prog)).RunFunc("sub", bc.Int(10), bc.Int(4))
	if err != nil {
		t.Fatalf("RunFunc: %v", err)
	}
	wantInt(t, res, 6)
}
