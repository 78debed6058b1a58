package lexer

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/Zeeeepa/lynlang-sub004/pkg/config"
	"github.com/Zeeeepa/lynlang-sub004/pkg/token"
	"github.com/Zeeeepa/lynlang-sub004/pkg/util"
)

type Lexer struct {
	source    []rune
	fileIndex int
	pos       int
	line      int
	column    int
	cfg       *config.Config
}

func NewLexer(source []rune, fileIndex int, cfg *config.Config) *Lexer {
	return &Lexer{
		source: source, fileIndex: fileIndex, line: 1, column: 1, cfg: cfg,
	}
}

// Tokenize lexes the whole input. Lexical errors are returned, not printed.
func Tokenize(source []rune, fileIndex int, cfg *config.Config) (tokens []token.Token, err error) {
	defer util.Recover(&err)
	l := NewLexer(source, fileIndex, cfg)
	for {
		tok := l.Next()
		tokens = append(tokens, tok)
		if tok.Type == token.EOF {
			return tokens, nil
		}
	}
}

func (l *Lexer) Next() token.Token {
	l.skipWhitespaceAndComments()
	startPos, startCol, startLine := l.pos, l.column, l.line

	if l.isAtEnd() {
		return l.makeToken(token.EOF, "", startPos, startCol, startLine)
	}

	ch := l.peek()
	if unicode.IsLetter(ch) || ch == '_' {
		l.advance()
		return l.identifierOrKeyword(startPos, startCol, startLine)
	}
	if unicode.IsDigit(ch) {
		return l.numberLiteral(startPos, startCol, startLine)
	}

	l.advance()
	switch ch {
	case '(': return l.makeToken(token.LParen, "", startPos, startCol, startLine)
	case ')': return l.makeToken(token.RParen, "", startPos, startCol, startLine)
	case '{': return l.makeToken(token.LBrace, "", startPos, startCol, startLine)
	case '}': return l.makeToken(token.RBrace, "", startPos, startCol, startLine)
	case '[': return l.makeToken(token.LBracket, "", startPos, startCol, startLine)
	case ']': return l.makeToken(token.RBracket, "", startPos, startCol, startLine)
	case ';': return l.makeToken(token.Semi, "", startPos, startCol, startLine)
	case ',': return l.makeToken(token.Comma, "", startPos, startCol, startLine)
	case ':': return l.makeToken(token.Colon, "", startPos, startCol, startLine)
	case '.': return l.makeToken(token.Dot, "", startPos, startCol, startLine)
	case '+': return l.makeToken(token.Plus, "", startPos, startCol, startLine)
	case '*': return l.makeToken(token.Star, "", startPos, startCol, startLine)
	case '/': return l.makeToken(token.Slash, "", startPos, startCol, startLine)
	case '%': return l.makeToken(token.Rem, "", startPos, startCol, startLine)
	case '-': return l.matchThen('>', token.Arrow, token.Minus, startPos, startCol, startLine)
	case '!': return l.matchThen('=', token.Neq, token.Not, startPos, startCol, startLine)
	case '<': return l.matchThen('=', token.Lte, token.Lt, startPos, startCol, startLine)
	case '>': return l.matchThen('=', token.Gte, token.Gt, startPos, startCol, startLine)
	case '=':
		if l.match('>') {
			return l.makeToken(token.FatArrow, "", startPos, startCol, startLine)
		}
		return l.matchThen('=', token.EqEq, token.Eq, startPos, startCol, startLine)
	case '&':
		if l.match('&') {
			return l.makeToken(token.AndAnd, "", startPos, startCol, startLine)
		}
	case '|':
		if l.match('|') {
			return l.makeToken(token.OrOr, "", startPos, startCol, startLine)
		}
	case '"':
		return l.stringLiteral(startPos, startCol, startLine)
	}

	tok := l.makeToken(token.EOF, "", startPos, startCol, startLine)
	util.Error(tok, "Unexpected character: '%c'", ch)
	return tok
}

func (l *Lexer) peek() rune {
	if l.isAtEnd() {
		return 0
	}
	return l.source[l.pos]
}

func (l *Lexer) peekNext() rune {
	if l.pos+1 >= len(l.source) {
		return 0
	}
	return l.source[l.pos+1]
}

func (l *Lexer) advance() rune {
	if l.isAtEnd() {
		return 0
	}
	ch := l.source[l.pos]
	if ch == '\n' {
		l.line++
		l.column = 1
	} else {
		l.column++
	}
	l.pos++
	return ch
}

func (l *Lexer) match(expected rune) bool {
	if l.isAtEnd() || l.source[l.pos] != expected {
		return false
	}
	l.advance()
	return true
}

func (l *Lexer) isAtEnd() bool { return l.pos >= len(l.source) }

func (l *Lexer) makeToken(tokType token.Type, value string, startPos, startCol, startLine int) token.Token {
	return token.Token{
		Type: tokType, Value: value, FileIndex: l.fileIndex,
		Line: startLine, Column: startCol, Len: l.pos - startPos,
	}
}

func (l *Lexer) skipWhitespaceAndComments() {
	for {
		switch l.peek() {
		case ' ', '\t', '\n', '\r':
			l.advance()
		case '/':
			switch l.peekNext() {
			case '*':
				l.blockComment()
			case '/':
				l.lineComment()
			default:
				return
			}
		default:
			return
		}
	}
}

func (l *Lexer) blockComment() {
	startTok := l.makeToken(token.Comment, "", l.pos, l.column, l.line)
	l.advance()
	l.advance()
	for !l.isAtEnd() {
		if l.peek() == '*' && l.peekNext() == '/' {
			l.advance()
			l.advance()
			return
		}
		l.advance()
	}
	util.Error(startTok, "Unterminated block comment")
}

func (l *Lexer) lineComment() {
	for !l.isAtEnd() && l.peek() != '\n' {
		l.advance()
	}
}

func (l *Lexer) identifierOrKeyword(startPos, startCol, startLine int) token.Token {
	for unicode.IsLetter(l.peek()) || unicode.IsDigit(l.peek()) || l.peek() == '_' {
		l.advance()
	}
	value := string(l.source[startPos:l.pos])
	tok := l.makeToken(token.Ident, value, startPos, startCol, startLine)

	if tokType, isKeyword := token.KeywordMap[value]; isKeyword {
		tok.Type = tokType
		tok.Value = ""
	}
	return tok
}

func isHexDigit(c rune) bool {
	return unicode.IsDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func (l *Lexer) numberLiteral(startPos, startCol, startLine int) token.Token {
	isFloat, isHex := false, false

	if l.peek() == '0' && (l.peekNext() == 'x' || l.peekNext() == 'X') {
		isHex = true
		l.advance()
		l.advance()
		for isHexDigit(l.peek()) || l.peek() == '_' {
			l.advance()
		}
	} else {
		for unicode.IsDigit(l.peek()) || l.peek() == '_' {
			l.advance()
		}
	}

	// "1.foo" is a method call on an integer, "1.5" is a float.
	if !isHex && l.peek() == '.' && unicode.IsDigit(l.peekNext()) {
		isFloat = true
		l.advance()
		for unicode.IsDigit(l.peek()) || l.peek() == '_' {
			l.advance()
		}
	}

	if !isHex && (l.peek() == 'e' || l.peek() == 'E') {
		isFloat = true
		l.advance()
		if l.peek() == '+' || l.peek() == '-' {
			l.advance()
		}
		if !unicode.IsDigit(l.peek()) {
			util.Error(l.makeToken(token.FloatNumber, "", startPos, startCol, startLine), "Malformed floating-point literal: exponent has no digits")
		}
		for unicode.IsDigit(l.peek()) {
			l.advance()
		}
	}

	valueStr := strings.ReplaceAll(string(l.source[startPos:l.pos]), "_", "")

	if isFloat {
		if _, err := strconv.ParseFloat(valueStr, 64); err != nil {
			util.Error(l.makeToken(token.FloatNumber, valueStr, startPos, startCol, startLine), "Invalid float literal: %s", valueStr)
		}
		return l.makeToken(token.FloatNumber, valueStr, startPos, startCol, startLine)
	}

	tok := l.makeToken(token.Number, "", startPos, startCol, startLine)
	val, err := strconv.ParseUint(valueStr, 0, 64)
	if err != nil {
		if e, ok := err.(*strconv.NumError); ok && e.Err == strconv.ErrRange {
			util.Warn(l.cfg, config.WarnOverflow, tok, "Integer constant overflow: %s", valueStr)
			tok.Value = strconv.FormatUint(^uint64(0), 10)
			return tok
		}
		util.Error(tok, "Invalid number literal: %s", valueStr)
	}
	tok.Value = strconv.FormatUint(val, 10)
	return tok
}

func (l *Lexer) stringLiteral(startPos, startCol, startLine int) token.Token {
	var buf []byte
	for !l.isAtEnd() {
		c := l.peek()
		if c == '"' {
			l.advance()
			return l.makeToken(token.String, string(buf), startPos, startCol, startLine)
		}
		if c == '\n' {
			break
		}
		l.advance()
		if c == '\\' {
			buf = append(buf, l.decodeEscape(startPos, startCol, startLine))
			continue
		}
		buf = append(buf, string(c)...)
	}
	util.Error(l.makeToken(token.String, "", startPos, startCol, startLine), "Unterminated string literal")
	return l.makeToken(token.EOF, "", l.pos, l.column, l.line)
}

func (l *Lexer) decodeEscape(startPos, startCol, startLine int) byte {
	if l.isAtEnd() {
		util.Error(l.makeToken(token.EOF, "", l.pos, l.column, l.line), "Unterminated escape sequence")
	}
	c := l.advance()

	if c == 'x' {
		var val byte
		for i := 0; i < 2; i++ {
			d := l.peek()
			if !isHexDigit(d) {
				util.Error(l.makeToken(token.String, "", startPos, startCol, startLine), "Invalid hex digit '%c' in escape sequence", d)
			}
			n, _ := strconv.ParseUint(string(d), 16, 8)
			val = val*16 + byte(n)
			l.advance()
		}
		return val
	}

	escapes := map[rune]byte{
		'n': '\n', 't': '\t', 'r': '\r', '0': 0, '\\': '\\', '\'': '\'', '"': '"',
		'a': '\a', 'b': '\b', 'f': '\f', 'v': '\v',
	}
	if val, ok := escapes[c]; ok {
		return val
	}
	util.Error(l.makeToken(token.String, "", startPos, startCol, startLine), "Unrecognized escape sequence '\\%c'", c)
	return 0
}

func (l *Lexer) matchThen(expected rune, thenType, elseType token.Type, sPos, sCol, sLine int) token.Token {
	if l.match(expected) {
		return l.makeToken(thenType, "", sPos, sCol, sLine)
	}
	return l.makeToken(elseType, "", sPos, sCol, sLine)
}
