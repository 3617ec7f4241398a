package compiler

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/baehyunsol/Sodigy-sub004/mir"
)

func TestCompileBytecode(t *testing.T) {
	art, err := Compile(sampleProgram())
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if art.Backend != BackendBytecode {
		t.Errorf("backend: got %s", art.Backend)
	}
	if len(art.Bytes) == 0 || len(art.Executable.Bytecodes) == 0 {
		t.Error("empty artifact")
	}
}

func TestCompileUnsupportedBackends(t *testing.T) {
	for _, b := range []Backend{BackendC, BackendRust, BackendPython} {
		t.Run(b.String(), func(t *testing.T) {
			_, err := Compile(sampleProgram(), WithBackend(b))
			if !errors.Is(err, ErrUnsupportedBackend) {
				t.Errorf("got %v, want ErrUnsupportedBackend", err)
			}
		})
	}
}

func TestParseBackend(t *testing.T) {
	for _, name := range []string{"bytecode", "C", "Rust", "python"} {
		if _, err := ParseBackend(name); err != nil {
			t.Errorf("ParseBackend(%q): %v", name, err)
		}
	}
	if _, err := ParseBackend("java"); !errors.Is(err, ErrUnsupportedBackend) {
		t.Errorf("ParseBackend(java): got %v", err)
	}
}

func TestCompileLoweringError(t *testing.T) {
	prog := &mir.Program{Funcs: []mir.Func{{Def: 1, Name: "bad", Body: mir.Num(1 << 33)}}}
	if _, err := Compile(prog); !errors.Is(err, ErrInternal) {
		t.Errorf("got %v, want ErrInternal", err)
	}
}

func wideProgram(n int) *mir.Program {
	prog := sampleProgram()
	for i := 0; i < n; i++ {
		def := mir.DefID(100 + 2*i)
		prog.Funcs = append(prog.Funcs, mir.Func{
			Def:    def,
			Name:   fmt.Sprintf("f%d", i),
			Params: []mir.Param{{Def: def + 1, Name: "x"}},
			Body: mir.If(
				mir.CallIntrinsicExpr(mir.IntegerLt, mir.ParamRef(def+1, "x"), mir.Num(int64(i))),
				mir.Call(1, mir.ParamRef(def+1, "x")),
				mir.CallIntrinsicExpr(mir.IntegerMul, mir.ParamRef(def+1, "x"), mir.Num(2)),
			),
		})
	}
	return prog
}

func TestLowerParallelMatchesSequential(t *testing.T) {
	prog := wideProgram(40)

	seq, err := Compile(prog)
	if err != nil {
		t.Fatalf("sequential: %v", err)
	}
	par, err := Compile(prog, WithWorkers(8))
	if err != nil {
		t.Fatalf("parallel: %v", err)
	}
	if !bytes.Equal(seq.Bytes, par.Bytes) {
		t.Error("parallel lowering produced a different executable")
	}
}

func TestLowerParallelError(t *testing.T) {
	prog := wideProgram(10)
	prog.Asserts = append(prog.Asserts, mir.Assert{Name: "dyn", Value: mir.CallDynamicExpr(mir.FuncRef(1, "loop"))})
	if _, err := LowerParallel(prog, 4); !errors.Is(err, ErrInternal) {
		t.Errorf("got %v, want ErrInternal", err)
	}
}
