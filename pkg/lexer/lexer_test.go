package lexer

import (
	"testing"

	"github.com/Zeeeepa/lynlang-sub004/pkg/config"
	"github.com/Zeeeepa/lynlang-sub004/pkg/token"
	"github.com/Zeeeepa/lynlang-sub004/pkg/util"
	"github.com/google/go-cmp/cmp"
	"github.com/nalgeon/be"
)

func lex(t *testing.T, src string) []token.Token {
	t.Helper()
	toks, err := Tokenize([]rune(src), 0, config.NewConfig())
	be.Err(t, err, nil)
	return toks
}

func types(toks []token.Token) []token.Type {
	out := make([]token.Type, len(toks))
	for i, tok := range toks {
		out[i] = tok.Type
	}
	return out
}

func TestOperatorsAndKeywords(t *testing.T) {
	toks := lex(t, "fn f() -> match x { Ok(v) => v >= 1 && !b, _ => a != b || c <= d }")
	want := []token.Type{
		token.Fn, token.Ident, token.LParen, token.RParen, token.Arrow, token.Match, token.Ident, token.LBrace,
		token.Ident, token.LParen, token.Ident, token.RParen, token.FatArrow, token.Ident, token.Gte, token.Number,
		token.AndAnd, token.Not, token.Ident, token.Comma, token.Underscore, token.FatArrow, token.Ident, token.Neq,
		token.Ident, token.OrOr, token.Ident, token.Lte, token.Ident, token.RBrace, token.EOF,
	}
	if diff := cmp.Diff(want, types(toks)); diff != "" {
		t.Fatalf("token types mismatch (-want +got):\n%s", diff)
	}
}

func TestNumberLiterals(t *testing.T) {
	toks := lex(t, "42 0xff 1_000 2.5 1e3 7.len")
	be.Equal(t, toks[0].Value, "42")
	be.Equal(t, toks[1].Value, "255")
	be.Equal(t, toks[2].Value, "1000")
	be.Equal(t, toks[3].Type, token.FloatNumber)
	be.Equal(t, toks[3].Value, "2.5")
	be.Equal(t, toks[4].Type, token.FloatNumber)
	be.Equal(t, toks[5].Type, token.Number)
	be.Equal(t, toks[6].Type, token.Dot)
}

func TestStringEscapes(t *testing.T) {
	toks := lex(t, `"a\tb\n\x41\""`)
	be.Equal(t, toks[0].Value, "a\tb\nA\"")
}

func TestCommentsAndPositions(t *testing.T) {
	toks := lex(t, "// line\n/* block\n */ let x")
	be.Equal(t, toks[0].Type, token.Let)
	be.Equal(t, toks[0].Line, 3)
	be.Equal(t, toks[0].Column, 5)
	be.Equal(t, toks[1].Value, "x")
	be.Equal(t, toks[1].Len, 1)
}

func TestLexErrors(t *testing.T) {
	for _, src := range []string{`"open`, "a & b", "/* never closed", `"\q"`, "1e"} {
		_, err := Tokenize([]rune(src), 0, config.NewConfig())
		kind, ok := util.KindOf(err)
		be.True(t, ok)
		be.Equal(t, kind, util.ErrSyntax)
	}
}
