package vm

import (
	"testing"

	"github.com/baehyunsol/Sodigy-sub004/mir"
	bc "github.com/baehyunsol/Sodigy-sub004/pkg/bytecode"
)

func TestTupleField(t *testing.T) {
	// fn main() = (1, "ab").1;
	prog := &mir.Program{Funcs: []mir.Func{{Def: 1, Name: "main",
		Body: mir.Field(mir.Tuple(mir.Num(1), mir.Str("ab")), 1)}}}
	v, res := runMain(t, prog)
	if !res.Value.Equal(bc.String("ab")) {
		t.Errorf("result: got %s", res.Value)
	}
	if s := v.Stats().Heap; s.UsedBlocks != 0 {
		t.Errorf("heap not empty: %+v", s)
	}
}

func TestTupleResult(t *testing.T) {
	// fn main() = (7, [1, 2]);
	prog := &mir.Program{Funcs: []mir.Func{{Def: 1, Name: "main",
		Body: mir.Tuple(mir.Num(7), mir.List(mir.Num(1), mir.Num(2)))}}}
	v, res := runMain(t, prog)
	want := bc.Compound(bc.Scalar(7), bc.Compound(bc.Scalar(2), bc.Scalar(1), bc.Scalar(2)))
	if !res.Value.Equal(want) {
		t.Errorf("result: got %s, want %s", res.Value, want)
	}
	if s := v.Stats().Heap; s.UsedBlocks != 0 {
		t.Errorf("heap not empty: %+v", s)
	}
}

func TestListIndex(t *testing.T) {
	// fn at(i) = [10, 20, 30][i];
	prog := &mir.Program{Funcs: []mir.Func{{
		Def:    1,
		Name:   "at",
		Params: []mir.Param{{Def: 2, Name: "i"}},
		Body:   mir.Index(mir.List(mir.Num(10), mir.Num(20), mir.Num(30)), mir.ParamRef(2, "i")),
	}}}
	v := newVM(t, compile(t, prog))

	for i, want := range []int32{10, 20, 30} {
		res, err := v.RunFunc("at", bc.Int(int32(i)))
		if err != nil {
			t.Fatalf("at(%d): %v", i, err)
		}
		wantInt(t, res, want)
	}
	for _, i := range []int32{3, -1, 1 << 30} {
		_, err := v.RunFunc("at", bc.Int(i))
		expectFault(t, err, FaultIndex)
	}
}

func TestStringIndex(t *testing.T) {
	prog := &mir.Program{Funcs: []mir.Func{{Def: 1, Name: "main",
		Body: mir.Index(mir.Str("hé"), mir.Num(1))}}}
	_, res := runMain(t, prog)
	if !res.Value.Equal(bc.Scalar('é')) {
		t.Errorf("result: got %s", res.Value)
	}
}

func TestUpdateSharedCompoundCopies(t *testing.T) {
	exe := &bc.Executable{Bytecodes: []bc.Bytecode{
		bc.PushConst(bc.Compound(bc.Scalar(1), bc.Scalar(2)), bc.Local(0)),
		bc.Push(bc.Local(0), bc.Return),
		bc.PushConst(bc.Scalar(9), bc.Call(0)),
		bc.UpdateCompound(bc.Return, bc.StaticOffset(0), bc.Call(0)),
		bc.Push(bc.Return, bc.Call(1)),
		bc.PushConst(bc.Compound(bc.Scalar(0), bc.Scalar(0)), bc.Return),
		bc.UpdateCompound(bc.Return, bc.StaticOffset(0), bc.Local(0)),
		bc.UpdateCompound(bc.Return, bc.StaticOffset(1), bc.Call(1)),
		bc.Pop(bc.Call(1)),
		bc.Pop(bc.Call(0)),
		bc.Pop(bc.Local(0)),
		bc.Ret(),
	}}
	v := newVM(t, exe)
	res, err := v.Execute(0)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	want := bc.Compound(
		bc.Compound(bc.Scalar(1), bc.Scalar(2)),
		bc.Compound(bc.Scalar(9), bc.Scalar(2)),
	)
	if !res.Value.Equal(want) {
		t.Errorf("result: got %s, want %s", res.Value, want)
	}
	if s := v.Stats().Heap; s.UsedBlocks != 0 {
		t.Errorf("heap not empty: %+v", s)
	}
}

func TestUpdateReleasesReplacedElement(t *testing.T) {
	exe := &bc.Executable{Bytecodes: []bc.Bytecode{
		bc.PushConst(bc.Compound(bc.String("gone")), bc.Return),
		bc.PushConst(bc.Scalar(4), bc.Call(0)),
		bc.UpdateCompound(bc.Return, bc.StaticOffset(0), bc.Call(0)),
		bc.Pop(bc.Call(0)),
		bc.Ret(),
	}}
	v := newVM(t, exe)
	res, err := v.Execute(0)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.Value.Equal(bc.Compound(bc.Scalar(4))) {
		t.Errorf("result: got %s", res.Value)
	}
	if s := v.Stats().Heap; s.UsedBlocks != 0 {
		t.Errorf("replaced string leaked: %+v", s)
	}
}

func TestCompoundFaults(t *testing.T) {
	pair := bc.Compound(bc.Scalar(1), bc.Scalar(2))
	tests := []struct {
		name string
		code []bc.Bytecode
		want FaultKind
	}{
		{"read past end", []bc.Bytecode{
			bc.PushConst(pair, bc.Return),
			bc.ReadCompound(bc.Return, bc.StaticOffset(2), bc.Return),
		}, FaultIndex},
		{"update past end", []bc.Bytecode{
			bc.PushConst(pair, bc.Return),
			bc.PushConst(bc.Scalar(0), bc.Call(0)),
			bc.UpdateCompound(bc.Return, bc.StaticOffset(5), bc.Call(0)),
		}, FaultIndex},
		{"negative dynamic offset", []bc.Bytecode{
			bc.PushConst(pair, bc.Call(0)),
			bc.PushConst(bc.Int(-1), bc.Call(1)),
			bc.ReadCompound(bc.Call(0), bc.DynamicOffset(bc.Call(1), 1), bc.Return),
		}, FaultIndex},
		{"scalar compound", []bc.Bytecode{
			bc.PushConst(bc.Scalar(3), bc.Return),
			bc.ReadCompound(bc.Return, bc.StaticOffset(0), bc.Return),
		}, FaultInvalidProgram},
		{"pointer offset", []bc.Bytecode{
			bc.PushConst(pair, bc.Call(0)),
			bc.PushConst(pair, bc.Call(1)),
			bc.ReadCompound(bc.Call(0), bc.DynamicOffset(bc.Call(1), 0), bc.Return),
		}, FaultInvalidProgram},
		{"empty source", []bc.Bytecode{
			bc.PushConst(pair, bc.Return),
			bc.UpdateCompound(bc.Return, bc.StaticOffset(0), bc.Call(0)),
		}, FaultRegister},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newVM(t, &bc.Executable{Bytecodes: append(tt.code, bc.Ret())})
			_, err := v.Execute(0)
			expectFault(t, err, tt.want)
		})
	}
}

func TestResultNestingLimit(t *testing.T) {
	// fn nest(n) = if n == 0 { 0 } else { (nest(n - 1),) };
	prog := &mir.Program{Funcs: []mir.Func{{
		Def:    1,
		Name:   "nest",
		Params: []mir.Param{{Def: 2, Name: "n"}},
		Body: mir.If(
			intrinsic(mir.IntegerEq, mir.ParamRef(2, "n"), mir.Num(0)),
			mir.Num(0),
			mir.Tuple(mir.Call(1, intrinsic(mir.IntegerSub, mir.ParamRef(2, "n"), mir.Num(1)))),
		),
	}}}
	v := newVM(t, compile(t, prog))

	res, err := v.RunFunc("nest", bc.Int(bc.MaxValueDepth))
	if err != nil {
		t.Fatalf("nest(%d): %v", bc.MaxValueDepth, err)
	}
	if !res.Value.Equal(nested(bc.MaxValueDepth)) {
		t.Errorf("result: got %s", res.Value)
	}

	_, err = v.RunFunc("nest", bc.Int(bc.MaxValueDepth+1))
	expectFault(t, err, FaultTooDeep)
	if s := v.Stats().Heap; s.UsedBlocks != 0 {
		t.Errorf("heap not empty after fault: %+v", s)
	}
}

func TestCallRejectsDeepArgument(t *testing.T) {
	v := newVM(t, &bc.Executable{Bytecodes: []bc.Bytecode{bc.Ret()}})
	_, err := v.Call(0, nested(bc.MaxValueDepth+1))
	expectFault(t, err, FaultInvalidProgram)
}
