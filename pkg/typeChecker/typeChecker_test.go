package typeChecker

import (
	"testing"

	"github.com/Zeeeepa/lynlang-sub004/pkg/ast"
	"github.com/Zeeeepa/lynlang-sub004/pkg/config"
	"github.com/Zeeeepa/lynlang-sub004/pkg/lexer"
	"github.com/Zeeeepa/lynlang-sub004/pkg/parser"
	"github.com/Zeeeepa/lynlang-sub004/pkg/util"
	"github.com/google/go-cmp/cmp"
	"github.com/nalgeon/be"
)

func check(t *testing.T, src string) (*ast.Node, *TypeChecker, error) {
	t.Helper()
	cfg := config.NewConfig()
	toks, err := lexer.Tokenize([]rune(src), 0, cfg)
	be.Err(t, err, nil)
	root, err := parser.Parse(toks)
	be.Err(t, err, nil)
	tc := NewTypeChecker(cfg)
	return root, tc, tc.Check(root)
}

func mustCheck(t *testing.T, src string) (*ast.Node, *TypeChecker) {
	t.Helper()
	root, tc, err := check(t, src)
	be.Err(t, err, nil)
	return root, tc
}

func errKind(t *testing.T, src string) util.ErrorKind {
	t.Helper()
	_, _, err := check(t, src)
	be.True(t, err != nil)
	kind, ok := util.KindOf(err)
	be.True(t, ok)
	return kind
}

func body(t *testing.T, root *ast.Node, fn string) []*ast.Node {
	t.Helper()
	for _, s := range root.Data.(ast.BlockNode).Stmts {
		if d, ok := s.Data.(ast.FuncDeclNode); ok && d.Name == fn {
			return d.Body.Data.(ast.BlockNode).Stmts
		}
	}
	t.Fatalf("no function %s", fn)
	return nil
}

func TestLiteralTakesExpectedType(t *testing.T) {
	root, _ := mustCheck(t, `fn f() {
		let a: u8 = 7
		let b = 7
		let c = 5000000000
		let d: f32 = 2
	}`)
	stmts := body(t, root, "f")
	got := []string{}
	for _, s := range stmts {
		got = append(got, s.Typ.String())
	}
	if diff := cmp.Diff([]string{"u8", "i32", "i64", "f32"}, got); diff != "" {
		t.Errorf("declared types (-want +got):\n%s", diff)
	}
	be.Equal(t, stmts[0].Data.(ast.VarDeclNode).Init.Typ.String(), "u8")
}

func TestVariantInference(t *testing.T) {
	root, _ := mustCheck(t, `fn f() Result<i64, String> {
		let o: Option<u8> = Some(1)
		let n = None
		let e = Err("bad")
		return Ok(3)
	}`)
	stmts := body(t, root, "f")
	be.Equal(t, stmts[0].Typ.String(), "Option<u8>")
	be.Equal(t, stmts[1].Typ.String(), "Option<T>")
	be.Equal(t, stmts[2].Typ.String(), "Result<T, String>")
	ret := stmts[3].Data.(ast.ReturnNode).Expr
	be.Equal(t, ret.Typ.String(), "Result<i64, String>")
	be.Equal(t, ret.Data.(ast.VariantNode).Value.Typ.String(), "i64")
}

func TestUnknownNamesBecomeParams(t *testing.T) {
	_, tc := mustCheck(t, `fn f(x: Option<T>) Option<T> { return x }`)
	sig := tc.Signatures()["f"]
	be.Equal(t, sig.Params[0].Args[0].Kind, ast.TYPE_PARAM)
	be.True(t, sig.Return.HasParams())
}

func TestRaiseTypes(t *testing.T) {
	root, _ := mustCheck(t, `
	fn g() Result<Option<i32>, String> { return Ok(Some(1)) }
	fn f() Result<i32, String> {
		let v = g().raise().raise()
		return Ok(v)
	}`)
	decl := body(t, root, "f")[0]
	be.Equal(t, decl.Typ.String(), "i32")
	inner := decl.Data.(ast.VarDeclNode).Init.Data.(ast.MethodCallNode).Recv
	be.Equal(t, inner.Typ.String(), "Option<i32>")
}

func TestRaiseErrors(t *testing.T) {
	cases := map[string]util.ErrorKind{
		`fn f() i32 { let x = 1; return x.raise() }`: util.ErrUnsupportedRaiseTarget,
		`fn g() Result<i32, String> { return Ok(1) }
		 fn f() Result<i32, bool> { return Ok(g().raise()) }`: util.ErrTypeMismatch,
	}
	for src, want := range cases {
		be.Equal(t, errKind(t, src), want)
	}
}

func TestRaiseNumericErrorsConvert(t *testing.T) {
	mustCheck(t, `
	fn g() Result<i32, i64> { return Err(2) }
	fn f() Result<i32, i32> { return Ok(g().raise()) }`)
}

func TestMatchAnnotations(t *testing.T) {
	root, _ := mustCheck(t, `
	struct P { x: i32, y: i64 }
	fn f(r: Result<P, String>) i64 {
		match r { Ok(_) => {}, Err(_) => {} }
		return match r {
			Ok(P { x, y }) if x > 0 => y,
			Ok(other) => other.y,
			Err(_) => 0,
		}
	}`)
	stmts := body(t, root, "f")
	be.True(t, stmts[0].Typ.IsVoid())

	m := stmts[1].Data.(ast.ReturnNode).Expr
	be.Equal(t, m.Typ.String(), "i64")
	arms := m.Data.(ast.MatchNode).Arms
	sp := arms[0].Data.(ast.MatchArmNode).Pattern.Data.(ast.VariantPatternNode).Sub.Data.(ast.StructPatternNode)
	be.Equal(t, sp.Subs[0].Typ.String(), "i32")
	be.Equal(t, sp.Subs[1].Typ.String(), "i64")
	other := arms[1].Data.(ast.MatchArmNode).Pattern.Data.(ast.VariantPatternNode).Sub
	be.Equal(t, other.Typ.String(), "P")
}

func TestBindingOfUnresolvedPayloadDefaultsToI32(t *testing.T) {
	root, _ := mustCheck(t, `fn f() i32 {
		let n = None
		return match n { Some(v) => v, None => 0 }
	}`)
	m := body(t, root, "f")[1].Data.(ast.ReturnNode).Expr
	sub := m.Data.(ast.MatchNode).Arms[0].Data.(ast.MatchArmNode).Pattern.Data.(ast.VariantPatternNode).Sub
	be.Equal(t, sub.Typ, ast.TypeI32)
}

func TestLiteralPatternTakesScrutineeType(t *testing.T) {
	root, _ := mustCheck(t, `fn f(x: u16) { match x { 3 => {}, _ => {} } }`)
	m := body(t, root, "f")[0].Data.(ast.MatchNode)
	lit := m.Arms[0].Data.(ast.MatchArmNode).Pattern.Data.(ast.LiteralPatternNode).Value
	be.Equal(t, lit.Typ.String(), "u16")
}

func TestArrayMethods(t *testing.T) {
	root, _ := mustCheck(t, `fn f() {
		var a: Array<u8> = []
		a.push(1)
		let g = a.get(0)
		let p = a.pop()
		let n = a.len()
	}`)
	stmts := body(t, root, "f")
	be.Equal(t, stmts[2].Typ.String(), "Option<u8>")
	be.Equal(t, stmts[3].Typ.String(), "Option<u8>")
	be.Equal(t, stmts[4].Typ, ast.TypeI64)
}

func TestEnumsAndStructs(t *testing.T) {
	_, tc := mustCheck(t, `
	enum Color { Red, Green }
	struct Box { c: Color, next: Ptr<Box> }
	fn f(b: Box) bool { return b.c == Color.Green }`)
	v, ok := tc.Registry().EnumValue("Color", "Green")
	be.True(t, ok)
	be.Equal(t, v, int64(1))
	ft, _ := tc.Registry().StructField("Box", "c")
	be.Equal(t, ft.Kind, ast.TYPE_NAMED)
}

func TestTypeOfUnchecked(t *testing.T) {
	tc := NewTypeChecker(config.NewConfig())
	_, err := tc.TypeOf(&ast.Node{})
	kind, _ := util.KindOf(err)
	be.Equal(t, kind, util.ErrInternal)
}

func TestRejections(t *testing.T) {
	cases := map[string]util.ErrorKind{
		`fn f() { let x = 1; x = 2 }`:                                  util.ErrType,
		`fn f() { break }`:                                             util.ErrType,
		`fn f() { let x: f64 = 1.5 % 2.0 }`:                            util.ErrType,
		`fn f() { let x: i32 = "s" }`:                                  util.ErrTypeMismatch,
		`fn f() { let x = 1 + true }`:                                  util.ErrTypeMismatch,
		`fn f() { undefined() }`:                                       util.ErrType,
		`fn f() { } fn f() { }`:                                        util.ErrType,
		`struct S { a: i32 } extern fn g(s: S)`:                        util.ErrType,
		`struct S { s: S }`:                                            util.ErrType,
		`struct S { a: i32 } fn f() { let s = S { } }`:                 util.ErrType,
		`fn f(x: i32) { match x { Some(v) => {}, _ => {} } }`:          util.ErrTypeMismatch,
		`fn f(r: Option<i32>) { match r { Ok(v) => {}, _ => {} } }`:    util.ErrTypeMismatch,
		`fn f(x: i32) { match x { v => { v = 2 } } }`:                  util.ErrType,
		`fn f() i32 { return "s" }`:                                    util.ErrTypeMismatch,
		`fn f() { let a = [] }`:                                        util.ErrType,
		`fn f() { let x = 1; x.frob() }`:                               util.ErrType,
		`fn f() { let x = 1; let y = x.get(0) }`:                       util.ErrTypeMismatch,
		`fn f() { let b = true as f64; let s = "x" as i32 }`:           util.ErrTypeMismatch,
		`fn f() { let x = match 1 { _ => return } }`:                   util.ErrType,
		`fn f() { if 1 { } }`:                                          util.ErrTypeMismatch,
	}
	for src, want := range cases {
		t.Run(src, func(t *testing.T) {
			be.Equal(t, errKind(t, src), want)
		})
	}
}
