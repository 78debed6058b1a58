package parser

import (
	"testing"

	"github.com/Zeeeepa/lynlang-sub004/pkg/ast"
	"github.com/Zeeeepa/lynlang-sub004/pkg/config"
	"github.com/Zeeeepa/lynlang-sub004/pkg/lexer"
	"github.com/Zeeeepa/lynlang-sub004/pkg/util"
	"github.com/nalgeon/be"
)

func parse(t *testing.T, src string) *ast.Node {
	t.Helper()
	toks, err := lexer.Tokenize([]rune(src), 0, config.NewConfig())
	be.Err(t, err, nil)
	root, err := Parse(toks)
	be.Err(t, err, nil)
	return root
}

func parseErr(t *testing.T, src string) error {
	t.Helper()
	toks, err := lexer.Tokenize([]rune(src), 0, config.NewConfig())
	be.Err(t, err, nil)
	_, err = Parse(toks)
	return err
}

func firstFunc(t *testing.T, root *ast.Node) ast.FuncDeclNode {
	t.Helper()
	for _, s := range root.Data.(ast.BlockNode).Stmts {
		if s.Type == ast.FuncDecl {
			return s.Data.(ast.FuncDeclNode)
		}
	}
	t.Fatal("no function")
	return ast.FuncDeclNode{}
}

func TestFuncSignature(t *testing.T) {
	fn := firstFunc(t, parse(t, "fn parse(s: String, n: Ptr<i32>) -> Result<Option<u8>, String> { return Ok(None) }"))
	be.Equal(t, fn.Name, "parse")
	be.Equal(t, len(fn.Params), 2)
	be.Equal(t, fn.Params[1].Data.(ast.VarDeclNode).Type.String(), "Ptr<i32>")
	be.Equal(t, fn.ReturnType.String(), "Result<Option<u8>, String>")
}

func TestVoidReturnType(t *testing.T) {
	fn := firstFunc(t, parse(t, "fn main() { }"))
	be.True(t, fn.ReturnType.IsVoid())
}

func TestPrecedenceAndFolding(t *testing.T) {
	fn := firstFunc(t, parse(t, "fn f() i32 { return 1 + 2 * 3 }"))
	ret := fn.Body.Data.(ast.BlockNode).Stmts[0].Data.(ast.ReturnNode)
	be.Equal(t, ret.Expr.Type, ast.Number)
	be.Equal(t, ret.Expr.Data.(ast.NumberNode).Value, int64(7))
}

func TestRaiseChain(t *testing.T) {
	fn := firstFunc(t, parse(t, "fn f() Result<i32, String> { let v = g().raise().raise(); return Ok(v) }"))
	decl := fn.Body.Data.(ast.BlockNode).Stmts[0].Data.(ast.VarDeclNode)
	outer := decl.Init.Data.(ast.MethodCallNode)
	be.Equal(t, outer.Method, "raise")
	inner := outer.Recv.Data.(ast.MethodCallNode)
	be.Equal(t, inner.Method, "raise")
	be.Equal(t, inner.Recv.Type, ast.FuncCall)
}

func TestMatchArms(t *testing.T) {
	src := `fn f(r: Result<Option<i32>, String>) i32 {
		return match r {
			Ok(Some(v)) if v > 0 => v,
			Ok(None) => 0,
			Err(_) => -1,
		}
	}`
	fn := firstFunc(t, parse(t, src))
	m := fn.Body.Data.(ast.BlockNode).Stmts[0].Data.(ast.ReturnNode).Expr.Data.(ast.MatchNode)
	be.Equal(t, len(m.Arms), 3)

	first := m.Arms[0].Data.(ast.MatchArmNode)
	be.True(t, first.Guard != nil)
	vp := first.Pattern.Data.(ast.VariantPatternNode)
	be.Equal(t, vp.Kind, ast.VariantOk)
	be.Equal(t, vp.Sub.Data.(ast.VariantPatternNode).Kind, ast.VariantSome)

	second := m.Arms[1].Data.(ast.MatchArmNode).Pattern.Data.(ast.VariantPatternNode)
	be.True(t, second.Sub.Data.(ast.VariantPatternNode).Sub == nil)

	third := m.Arms[2].Data.(ast.MatchArmNode)
	be.Equal(t, third.Body.Data.(ast.NumberNode).Value, int64(-1))
}

func TestPatternsKinds(t *testing.T) {
	src := `enum Color { Red, Green }
	struct P { x: i32, y: i32 }
	fn f(c: Color, p: P) {
		match c { Color.Red => {}, _ => {} }
		match p { P { x, y: 0 } => {}, q => {} }
		match 3 { -2 => {}, "s" => {}, true => {}, _ => {} }
	}`
	fn := firstFunc(t, parse(t, src))
	stmts := fn.Body.Data.(ast.BlockNode).Stmts
	be.Equal(t, stmts[0].Data.(ast.MatchNode).Arms[0].Data.(ast.MatchArmNode).Pattern.Type, ast.EnumPattern)

	sp := stmts[1].Data.(ast.MatchNode).Arms[0].Data.(ast.MatchArmNode).Pattern.Data.(ast.StructPatternNode)
	be.Equal(t, sp.Fields, []string{"x", "y"})
	be.Equal(t, sp.Subs[0].Type, ast.BindingPattern)
	be.Equal(t, sp.Subs[1].Type, ast.LiteralPattern)

	neg := stmts[2].Data.(ast.MatchNode).Arms[0].Data.(ast.MatchArmNode).Pattern.Data.(ast.LiteralPatternNode)
	be.Equal(t, neg.Value.Data.(ast.NumberNode).Value, int64(-2))
}

func TestStructLiteralNotInCondition(t *testing.T) {
	src := `struct P { x: i32 }
	fn f(P: i32) { if P { } let p = P { x: 1 } }`
	fn := firstFunc(t, parse(t, src))
	stmts := fn.Body.Data.(ast.BlockNode).Stmts
	be.Equal(t, stmts[0].Data.(ast.IfNode).Cond.Type, ast.Ident)
	be.Equal(t, stmts[1].Data.(ast.VarDeclNode).Init.Type, ast.StructLiteral)
}

func TestDeclarations(t *testing.T) {
	root := parse(t, `extern fn puts(s: String) i32
	struct Pair { a: i64; b: fn(i32) bool }
	enum E { A, B, C }`)
	stmts := root.Data.(ast.BlockNode).Stmts
	be.Equal(t, stmts[0].Type, ast.ExternDecl)
	pair := stmts[1].Data.(ast.StructDeclNode)
	be.Equal(t, pair.Fields[1].Data.(ast.VarDeclNode).Type.String(), "fn(i32) bool")
	be.Equal(t, stmts[2].Data.(ast.EnumDeclNode).Members, []string{"A", "B", "C"})
}

func TestParseErrors(t *testing.T) {
	cases := []string{
		"fn f() { let x }",
		"fn f() { 1 = 2 }",
		"fn f() { match x { } }",
		"enum E { }",
		"let x = 1",
		"fn f(a i32) { }",
		"fn f() { let p: Ptr<i32, i32> = 0 }",
	}
	for _, src := range cases {
		err := parseErr(t, src)
		kind, ok := util.KindOf(err)
		be.True(t, ok)
		be.Equal(t, kind, util.ErrSyntax)
	}
}
