package parser

import (
	"strconv"
	"unicode"

	"github.com/Zeeeepa/lynlang-sub004/pkg/ast"
	"github.com/Zeeeepa/lynlang-sub004/pkg/token"
	"github.com/Zeeeepa/lynlang-sub004/pkg/util"
)

// Parser holds the state for the parsing process
type Parser struct {
	tokens   []token.Token
	pos      int
	current  token.Token
	previous token.Token
	// Set while parsing an if/while condition or a match scrutinee, where
	// `Name {` opens the body rather than a struct literal.
	noStructLit bool
}

// NewParser creates and initializes a new Parser from a token stream
func NewParser(tokens []token.Token) *Parser {
	p := &Parser{tokens: tokens, pos: 0}
	if len(tokens) > 0 {
		p.current = p.tokens[0]
	}
	return p
}

// Parse parses a whole compilation unit and returns its root block.
func Parse(tokens []token.Token) (root *ast.Node, err error) {
	defer util.Recover(&err)
	return NewParser(tokens).Parse(), nil
}

// Parser helpers
func (p *Parser) advance() {
	if p.pos < len(p.tokens) {
		p.previous = p.current
		p.pos++
		if p.pos < len(p.tokens) {
			p.current = p.tokens[p.pos]
		}
	}
}

func (p *Parser) peek() token.Token {
	if p.pos+1 < len(p.tokens) {
		return p.tokens[p.pos+1]
	}
	return p.tokens[len(p.tokens)-1]
}

func (p *Parser) check(tokType token.Type) bool {
	return p.current.Type == tokType
}

func (p *Parser) match(tokType token.Type) bool {
	if !p.check(tokType) {
		return false
	}
	p.advance()
	return true
}

func (p *Parser) expect(tokType token.Type, message string) {
	if p.check(tokType) {
		p.advance()
		return
	}
	util.Error(p.current, "%s Got '%s'.", message, describe(p.current))
}

func (p *Parser) expectIdent(message string) string {
	p.expect(token.Ident, message)
	return p.previous.Value
}

func describe(tok token.Token) string {
	if tok.Value != "" && tok.Type != token.String {
		return tok.Value
	}
	return tok.Type.String()
}

func isLValue(node *ast.Node) bool {
	if node == nil {
		return false
	}
	switch node.Type {
	case ast.Ident:
		return true
	case ast.MemberAccess:
		return isLValue(node.Data.(ast.MemberAccessNode).Expr)
	default:
		return false
	}
}

func isTypeName(name string) bool {
	r := []rune(name)
	return len(r) > 0 && unicode.IsUpper(r[0])
}

// Type Parsing
func (p *Parser) parseType() *ast.Type {
	if p.match(token.Fn) {
		p.expect(token.LParen, "Expected '(' in function type.")
		var params []*ast.Type
		for !p.check(token.RParen) && !p.check(token.EOF) {
			params = append(params, p.parseType())
			if !p.match(token.Comma) {
				break
			}
		}
		p.expect(token.RParen, "Expected ')' in function type.")
		ret := ast.TypeVoid
		if p.match(token.Arrow) || p.check(token.Ident) || p.check(token.Fn) {
			ret = p.parseType()
		}
		return ast.NewFunc(params, ret)
	}

	name := p.expectIdent("Expected a type name.")
	if bt, ok := ast.BuiltinType(name); ok {
		return bt
	}
	if !p.match(token.Lt) {
		return ast.NewNamed(name)
	}
	var args []*ast.Type
	for {
		args = append(args, p.parseType())
		if !p.match(token.Comma) {
			break
		}
	}
	p.expect(token.Gt, "Expected '>' to close type arguments.")

	if own, ok := ast.PointerWrapper(name); ok {
		if len(args) != 1 {
			util.Error(p.previous, "%s takes exactly one type argument.", name)
		}
		return ast.NewPointer(args[0], own)
	}
	return ast.NewGeneric(name, args...)
}

// Expression Parsing
func getBinaryOpPrecedence(op token.Type) int {
	switch op {
	case token.Star, token.Slash, token.Rem:
		return 6
	case token.Plus, token.Minus:
		return 5
	case token.Lt, token.Gt, token.Lte, token.Gte:
		return 4
	case token.EqEq, token.Neq:
		return 3
	case token.AndAnd:
		return 2
	case token.OrOr:
		return 1
	default:
		return -1
	}
}

func (p *Parser) parseArgs() []*ast.Node {
	var args []*ast.Node
	if !p.check(token.RParen) {
		for {
			args = append(args, p.parseExpr())
			if !p.match(token.Comma) || p.check(token.RParen) {
				break
			}
		}
	}
	p.expect(token.RParen, "Expected ')' after arguments.")
	return args
}

func (p *Parser) parsePrimaryExpr() *ast.Node {
	tok := p.current
	switch {
	case p.match(token.Number):
		val, err := strconv.ParseUint(p.previous.Value, 10, 64)
		if err != nil {
			util.Error(tok, "Invalid number literal: %s", p.previous.Value)
		}
		return ast.NewNumber(tok, int64(val))
	case p.match(token.FloatNumber):
		val, _ := strconv.ParseFloat(p.previous.Value, 64)
		return ast.NewFloatNumber(tok, val)
	case p.match(token.String):
		return ast.NewString(tok, p.previous.Value)
	case p.match(token.True):
		return ast.NewBool(tok, true)
	case p.match(token.False):
		return ast.NewBool(tok, false)
	case p.match(token.LParen):
		saved := p.noStructLit
		p.noStructLit = false
		expr := p.parseExpr()
		p.noStructLit = saved
		p.expect(token.RParen, "Expected ')' after expression.")
		return expr
	case p.match(token.LBracket):
		var elems []*ast.Node
		for !p.check(token.RBracket) && !p.check(token.EOF) {
			elems = append(elems, p.parseExpr())
			if !p.match(token.Comma) {
				break
			}
		}
		p.expect(token.RBracket, "Expected ']' after array elements.")
		return ast.NewArrayLiteral(tok, elems)
	case p.match(token.Match):
		return p.parseMatch(tok)
	case p.match(token.Ident):
		return p.parseIdentExpr(tok)
	}
	util.Error(tok, "Expected an expression, got '%s'.", describe(tok))
	return nil
}

func (p *Parser) parseIdentExpr(tok token.Token) *ast.Node {
	name := tok.Value
	if kind, ok := ast.VariantByName(name); ok {
		if kind == ast.VariantNone {
			return ast.NewVariant(tok, kind, nil)
		}
		p.expect(token.LParen, "Expected '(' after variant constructor.")
		value := p.parseExpr()
		p.expect(token.RParen, "Expected ')' after variant payload.")
		return ast.NewVariant(tok, kind, value)
	}
	if p.check(token.LParen) {
		p.advance()
		return ast.NewFuncCall(tok, name, p.parseArgs())
	}
	if isTypeName(name) && p.check(token.LBrace) && !p.noStructLit {
		return p.parseStructLiteral(tok)
	}
	return ast.NewIdent(tok, name)
}

func (p *Parser) parseStructLiteral(tok token.Token) *ast.Node {
	p.expect(token.LBrace, "Expected '{' to start struct literal.")
	var fields []string
	var values []*ast.Node
	for !p.check(token.RBrace) && !p.check(token.EOF) {
		fieldTok := p.current
		field := p.expectIdent("Expected field name in struct literal.")
		if p.match(token.Colon) {
			values = append(values, p.parseExpr())
		} else {
			values = append(values, ast.NewIdent(fieldTok, field))
		}
		fields = append(fields, field)
		if !p.match(token.Comma) {
			break
		}
	}
	p.expect(token.RBrace, "Expected '}' after struct literal.")
	return ast.NewStructLiteral(tok, tok.Value, fields, values)
}

func (p *Parser) parsePostfixExpr() *ast.Node {
	expr := p.parsePrimaryExpr()
	for {
		tok := p.current
		if !p.match(token.Dot) {
			break
		}
		member := p.expectIdent("Expected member name after '.'.")
		if p.match(token.LParen) {
			expr = ast.NewMethodCall(tok, expr, member, p.parseArgs())
		} else {
			expr = ast.NewMemberAccess(tok, expr, member)
		}
	}
	return expr
}

func (p *Parser) parseCastExpr() *ast.Node {
	expr := p.parsePostfixExpr()
	for p.check(token.As) {
		tok := p.current
		p.advance()
		expr = ast.NewTypeCast(tok, expr, p.parseType())
	}
	return expr
}

func (p *Parser) parseUnaryExpr() *ast.Node {
	tok := p.current
	if p.match(token.Minus) || p.match(token.Not) {
		op := p.previous.Type
		operand := p.parseUnaryExpr()
		return ast.FoldConstants(ast.NewUnaryOp(tok, op, operand))
	}
	return p.parseCastExpr()
}

func (p *Parser) parseBinaryExpr(minPrec int) *ast.Node {
	left := p.parseUnaryExpr()
	for {
		op := p.current.Type
		prec := getBinaryOpPrecedence(op)
		if prec < minPrec || prec < 0 {
			break
		}
		opTok := p.current
		p.advance()
		right := p.parseBinaryExpr(prec + 1)
		left = ast.FoldConstants(ast.NewBinaryOp(opTok, op, left, right))
	}
	return left
}

func (p *Parser) parseExpr() *ast.Node {
	return p.parseBinaryExpr(0)
}

func (p *Parser) parseCondition() *ast.Node {
	saved := p.noStructLit
	p.noStructLit = true
	cond := p.parseExpr()
	p.noStructLit = saved
	return cond
}

// Match Parsing
func (p *Parser) parseMatch(tok token.Token) *ast.Node {
	scrutinee := p.parseCondition()
	p.expect(token.LBrace, "Expected '{' after match scrutinee.")
	var arms []*ast.Node
	for !p.check(token.RBrace) && !p.check(token.EOF) {
		armTok := p.current
		pattern := p.parsePattern()
		var guard *ast.Node
		if p.match(token.If) {
			guard = p.parseCondition()
		}
		p.expect(token.FatArrow, "Expected '=>' after match pattern.")
		var body *ast.Node
		if p.check(token.LBrace) {
			body = p.parseBlockStmt()
		} else {
			body = p.parseSimpleStmt()
		}
		arms = append(arms, ast.NewMatchArm(armTok, pattern, guard, body))
		p.match(token.Comma)
		p.match(token.Semi)
	}
	p.expect(token.RBrace, "Expected '}' after match arms.")
	if len(arms) == 0 {
		util.Error(tok, "A match needs at least one arm.")
	}
	return ast.NewMatch(tok, scrutinee, arms)
}

func (p *Parser) parsePattern() *ast.Node {
	tok := p.current
	switch {
	case p.match(token.Underscore):
		return ast.NewWildcardPattern(tok)
	case p.check(token.Minus), p.check(token.Number), p.check(token.FloatNumber),
		p.check(token.String), p.check(token.True), p.check(token.False):
		lit := p.parseUnaryExpr()
		switch lit.Type {
		case ast.Number, ast.FloatNumber, ast.String, ast.Bool:
		default:
			util.Error(tok, "Expected a literal pattern.")
		}
		return ast.NewLiteralPattern(tok, lit)
	case p.match(token.Ident):
		name := tok.Value
		if kind, ok := ast.VariantByName(name); ok {
			if kind == ast.VariantNone {
				return ast.NewVariantPattern(tok, kind, nil)
			}
			p.expect(token.LParen, "Expected '(' after variant pattern.")
			sub := p.parsePattern()
			p.expect(token.RParen, "Expected ')' after variant sub-pattern.")
			return ast.NewVariantPattern(tok, kind, sub)
		}
		if p.match(token.Dot) {
			member := p.expectIdent("Expected enum variant name.")
			return ast.NewEnumPattern(tok, name, member)
		}
		if isTypeName(name) && p.check(token.LBrace) {
			return p.parseStructPattern(tok)
		}
		return ast.NewBindingPattern(tok, name)
	}
	util.Error(tok, "Expected a pattern, got '%s'.", describe(tok))
	return nil
}

func (p *Parser) parseStructPattern(tok token.Token) *ast.Node {
	p.expect(token.LBrace, "Expected '{' to start struct pattern.")
	var fields []string
	var subs []*ast.Node
	for !p.check(token.RBrace) && !p.check(token.EOF) {
		fieldTok := p.current
		field := p.expectIdent("Expected field name in struct pattern.")
		if p.match(token.Colon) {
			subs = append(subs, p.parsePattern())
		} else {
			subs = append(subs, ast.NewBindingPattern(fieldTok, field))
		}
		fields = append(fields, field)
		if !p.match(token.Comma) {
			break
		}
	}
	p.expect(token.RBrace, "Expected '}' after struct pattern.")
	return ast.NewStructPattern(tok, tok.Value, fields, subs)
}

// Statement Parsing
func (p *Parser) parseBlockStmt() *ast.Node {
	tok := p.current
	p.expect(token.LBrace, "Expected '{' to start a block.")
	var stmts []*ast.Node
	for !p.check(token.RBrace) && !p.check(token.EOF) {
		if p.match(token.Semi) {
			continue
		}
		stmts = append(stmts, p.parseStmt())
	}
	p.expect(token.RBrace, "Expected '}' after block.")
	return ast.NewBlock(tok, stmts)
}

func (p *Parser) parseVarDecl(tok token.Token, mutable bool) *ast.Node {
	name := p.expectIdent("Expected variable name.")
	var typ *ast.Type
	if p.match(token.Colon) {
		typ = p.parseType()
	}
	var init *ast.Node
	if p.match(token.Eq) {
		init = p.parseExpr()
	} else if !mutable {
		util.Error(p.current, "'let %s' needs an initializer.", name)
	} else if typ == nil {
		util.Error(p.current, "'var %s' needs a type or an initializer.", name)
	}
	return ast.NewVarDecl(tok, name, typ, init, mutable)
}

func (p *Parser) parseIf(tok token.Token) *ast.Node {
	cond := p.parseCondition()
	thenBody := p.parseBlockStmt()
	var elseBody *ast.Node
	if p.match(token.Else) {
		if p.check(token.If) {
			elseTok := p.current
			p.advance()
			elseBody = p.parseIf(elseTok)
		} else {
			elseBody = p.parseBlockStmt()
		}
	}
	return ast.NewIf(tok, cond, thenBody, elseBody)
}

// parseSimpleStmt parses the statements allowed as a match arm body.
func (p *Parser) parseSimpleStmt() *ast.Node {
	tok := p.current
	switch {
	case p.match(token.Return):
		var expr *ast.Node
		if !p.check(token.Semi) && !p.check(token.RBrace) && !p.check(token.Comma) {
			expr = p.parseExpr()
		}
		return ast.NewReturn(tok, expr)
	case p.match(token.Break):
		return ast.NewBreak(tok)
	case p.match(token.Continue):
		return ast.NewContinue(tok)
	}
	expr := p.parseExpr()
	if p.check(token.Eq) {
		eqTok := p.current
		if !isLValue(expr) {
			util.Error(eqTok, "Invalid target for assignment.")
		}
		p.advance()
		return ast.NewAssign(eqTok, expr, p.parseExpr())
	}
	return expr
}

func (p *Parser) parseStmt() *ast.Node {
	tok := p.current
	var stmt *ast.Node
	switch {
	case p.match(token.Let):
		stmt = p.parseVarDecl(tok, false)
	case p.match(token.Var):
		stmt = p.parseVarDecl(tok, true)
	case p.match(token.If):
		return p.parseIf(tok)
	case p.match(token.While):
		cond := p.parseCondition()
		return ast.NewWhile(tok, cond, p.parseBlockStmt())
	case p.check(token.LBrace):
		return p.parseBlockStmt()
	default:
		stmt = p.parseSimpleStmt()
	}
	p.match(token.Semi)
	return stmt
}

// Top-Level Parsing
func (p *Parser) parseParams() []*ast.Node {
	p.expect(token.LParen, "Expected '(' after function name.")
	var params []*ast.Node
	for !p.check(token.RParen) && !p.check(token.EOF) {
		tok := p.current
		name := p.expectIdent("Expected parameter name.")
		p.expect(token.Colon, "Expected ':' after parameter name.")
		params = append(params, ast.NewVarDecl(tok, name, p.parseType(), nil, false))
		if !p.match(token.Comma) {
			break
		}
	}
	p.expect(token.RParen, "Expected ')' after parameters.")
	return params
}

func (p *Parser) parseReturnType() *ast.Type {
	if p.match(token.Arrow) || p.check(token.Ident) || p.check(token.Fn) {
		return p.parseType()
	}
	return ast.TypeVoid
}

func (p *Parser) parseFuncDecl(tok token.Token) *ast.Node {
	name := p.expectIdent("Expected function name.")
	params := p.parseParams()
	ret := p.parseReturnType()
	body := p.parseBlockStmt()
	return ast.NewFuncDecl(tok, name, params, body, ret)
}

func (p *Parser) parseExternDecl(tok token.Token) *ast.Node {
	p.expect(token.Fn, "Expected 'fn' after 'extern'.")
	name := p.expectIdent("Expected function name.")
	params := p.parseParams()
	ret := p.parseReturnType()
	p.match(token.Semi)
	return ast.NewExternDecl(tok, name, params, ret)
}

func (p *Parser) parseStructDecl(tok token.Token) *ast.Node {
	name := p.expectIdent("Expected struct name.")
	p.expect(token.LBrace, "Expected '{' after struct name.")
	var fields []*ast.Node
	for !p.check(token.RBrace) && !p.check(token.EOF) {
		fieldTok := p.current
		field := p.expectIdent("Expected field name.")
		p.expect(token.Colon, "Expected ':' after field name.")
		fields = append(fields, ast.NewVarDecl(fieldTok, field, p.parseType(), nil, true))
		if !p.match(token.Comma) && !p.match(token.Semi) {
			break
		}
	}
	p.expect(token.RBrace, "Expected '}' after struct fields.")
	return ast.NewStructDecl(tok, name, fields)
}

func (p *Parser) parseEnumDecl(tok token.Token) *ast.Node {
	name := p.expectIdent("Expected enum name.")
	p.expect(token.LBrace, "Expected '{' after enum name.")
	var members []string
	for !p.check(token.RBrace) && !p.check(token.EOF) {
		members = append(members, p.expectIdent("Expected enum variant name."))
		if !p.match(token.Comma) {
			break
		}
	}
	p.expect(token.RBrace, "Expected '}' after enum variants.")
	if len(members) == 0 {
		util.Error(tok, "Enum '%s' has no variants.", name)
	}
	return ast.NewEnumDecl(tok, name, members)
}

func (p *Parser) Parse() *ast.Node {
	var stmts []*ast.Node
	tok := p.current
	for !p.check(token.EOF) {
		if p.match(token.Semi) {
			continue
		}
		declTok := p.current
		switch {
		case p.match(token.Fn):
			stmts = append(stmts, p.parseFuncDecl(declTok))
		case p.match(token.Extern):
			stmts = append(stmts, p.parseExternDecl(declTok))
		case p.match(token.Struct):
			stmts = append(stmts, p.parseStructDecl(declTok))
		case p.match(token.Enum):
			stmts = append(stmts, p.parseEnumDecl(declTok))
		default:
			util.Error(p.current, "Expected a top-level declaration (fn, extern, struct or enum).")
		}
	}
	return ast.NewBlock(tok, stmts)
}
