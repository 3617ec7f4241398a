package mir

// Constructors for hand-built programs. Spans are left zero.

func Num(n int64) *Expr { return &Expr{Kind: ExprNumber, Number: n} }

func Char(c rune) *Expr { return &Expr{Kind: ExprChar, Scalar: uint32(c)} }

func Byte(b byte) *Expr { return &Expr{Kind: ExprByte, Scalar: uint32(b)} }

func Bool(b bool) *Expr { return &Expr{Kind: ExprBool, Bool: b} }

func Str(s string) *Expr { return &Expr{Kind: ExprString, Str: s} }

func Bytes(s string) *Expr { return &Expr{Kind: ExprString, Str: s, Binary: true} }

func ParamRef(def DefID, name string) *Expr {
	return &Expr{Kind: ExprIdent, Ident: &Ident{Def: def, Name: name, Kind: NameParam}}
}

func LocalRef(def DefID, name string) *Expr {
	return &Expr{Kind: ExprIdent, Ident: &Ident{Def: def, Name: name, Kind: NameLocal}}
}

func LetRef(def DefID, name string) *Expr {
	return &Expr{Kind: ExprIdent, Ident: &Ident{Def: def, Name: name, Kind: NameTopLet}}
}

func FuncRef(def DefID, name string) *Expr {
	return &Expr{Kind: ExprIdent, Ident: &Ident{Def: def, Name: name, Kind: NameFunc}}
}

func If(cond, then, els *Expr) *Expr {
	return &Expr{Kind: ExprIf, Cond: cond, Then: then, Else: els}
}

func Block(lets []LocalLet, value *Expr) *Expr {
	return &Expr{Kind: ExprBlock, Lets: lets, Value: value}
}

// BlockWithAsserts is Block with assertions checked after the lets.
func BlockWithAsserts(lets []LocalLet, asserts []Assert, value *Expr) *Expr {
	return &Expr{Kind: ExprBlock, Lets: lets, Asserts: asserts, Value: value}
}

func Tuple(elems ...*Expr) *Expr {
	return &Expr{Kind: ExprCall, Callee: &Callable{Kind: CallTuple}, Args: elems}
}

func List(elems ...*Expr) *Expr {
	return &Expr{Kind: ExprCall, Callee: &Callable{Kind: CallList}, Args: elems}
}

// Index builds list[index].
func Index(list, index *Expr) *Expr {
	return &Expr{Kind: ExprCall, Callee: &Callable{Kind: CallIndex}, Args: []*Expr{list, index}}
}

// Field builds tuple.n.
func Field(tuple *Expr, n uint32) *Expr {
	return &Expr{Kind: ExprField, Value: tuple, Field: n}
}

// Call builds a static call to the function def.
func Call(def DefID, args ...*Expr) *Expr {
	return &Expr{Kind: ExprCall, Callee: &Callable{Kind: CallStatic, Def: def}, Args: args}
}

// CallIntrinsicExpr builds a call to a compiler intrinsic.
func CallIntrinsicExpr(op Intrinsic, args ...*Expr) *Expr {
	return &Expr{Kind: ExprCall, Callee: &Callable{Kind: CallIntrinsic, Intrinsic: op}, Args: args}
}

// CallDynamicExpr builds a call through a function-pointer expression.
func CallDynamicExpr(fn *Expr, args ...*Expr) *Expr {
	return &Expr{Kind: ExprCall, Callee: &Callable{Kind: CallDynamic, Func: fn}, Args: args}
}
