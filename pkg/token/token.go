package token

type Type int

const (
	EOF Type = iota
	Comment
	Ident
	Number
	FloatNumber
	String
	Fn
	Extern
	Let
	Var
	If
	Else
	While
	Return
	Break
	Continue
	Match
	Struct
	Enum
	As
	True
	False
	LParen
	RParen
	LBrace
	RBrace
	LBracket
	RBracket
	Semi
	Comma
	Colon
	Dot
	Arrow
	FatArrow
	Eq
	Plus
	Minus
	Star
	Slash
	Rem
	EqEq
	Neq
	Lt
	Gt
	Gte
	Lte
	AndAnd
	OrOr
	Not
	Underscore
)

var KeywordMap = map[string]Type{
	"fn":       Fn,
	"extern":   Extern,
	"let":      Let,
	"var":      Var,
	"if":       If,
	"else":     Else,
	"while":    While,
	"return":   Return,
	"break":    Break,
	"continue": Continue,
	"match":    Match,
	"struct":   Struct,
	"enum":     Enum,
	"as":       As,
	"true":     True,
	"false":    False,
	"_":        Underscore,
}

// Reverse mapping from Type to the keyword string
var TypeStrings = make(map[Type]string)

var punctStrings = map[Type]string{
	EOF: "end of file", Ident: "identifier", Number: "number", FloatNumber: "float", String: "string",
	LParen: "(", RParen: ")", LBrace: "{", RBrace: "}", LBracket: "[", RBracket: "]",
	Semi: ";", Comma: ",", Colon: ":", Dot: ".", Arrow: "->", FatArrow: "=>", Eq: "=",
	Plus: "+", Minus: "-", Star: "*", Slash: "/", Rem: "%", EqEq: "==", Neq: "!=",
	Lt: "<", Gt: ">", Gte: ">=", Lte: "<=", AndAnd: "&&", OrOr: "||", Not: "!",
}

func init() {
	for str, typ := range KeywordMap {
		TypeStrings[typ] = str
	}
	for typ, str := range punctStrings {
		TypeStrings[typ] = str
	}
}

func (t Type) String() string {
	if s, ok := TypeStrings[t]; ok {
		return s
	}
	return "token"
}

type Token struct {
	Type      Type
	Value     string
	FileIndex int
	Line      int
	Column    int
	Len       int
}
