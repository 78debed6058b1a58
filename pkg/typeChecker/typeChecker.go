package typeChecker

import (
	"errors"

	"fortio.org/safecast"
	"github.com/Zeeeepa/lynlang-sub004/pkg/ast"
	"github.com/Zeeeepa/lynlang-sub004/pkg/codegen"
	"github.com/Zeeeepa/lynlang-sub004/pkg/config"
	"github.com/Zeeeepa/lynlang-sub004/pkg/layout"
	"github.com/Zeeeepa/lynlang-sub004/pkg/token"
	"github.com/Zeeeepa/lynlang-sub004/pkg/util"
)

type Symbol struct {
	Name    string
	Type    *ast.Type
	Mutable bool
	IsFunc  bool
	Node    *ast.Node
	Next    *Symbol
}

type Scope struct { Symbols *Symbol; Parent *Scope }

// TypeChecker resolves declared types, annotates every expression with its
// source type and rejects ill-typed programs. It is also the TypeOracle the
// code generator consults.
type TypeChecker struct {
	currentScope *Scope
	globalScope  *Scope
	currentFunc  *codegen.Signature
	cfg          *config.Config
	reg          *layout.Registry
	lower        *layout.Lowerer
	sigs         map[string]*codegen.Signature
	typeNames    map[string]bool
	loopDepth    int
}

func NewTypeChecker(cfg *config.Config) *TypeChecker {
	globalScope := newScope(nil)
	reg := layout.NewRegistry()
	return &TypeChecker{
		currentScope: globalScope,
		globalScope:  globalScope,
		cfg:          cfg,
		reg:          reg,
		lower:        layout.NewLowerer(reg, cfg.WordSize),
		sigs:         codegen.RuntimeSignatures(),
		typeNames:    make(map[string]bool),
	}
}

func newScope(parent *Scope) *Scope { return &Scope{Parent: parent} }
func (tc *TypeChecker) enterScope() { tc.currentScope = newScope(tc.currentScope) }
func (tc *TypeChecker) exitScope() {
	if tc.currentScope.Parent != nil {
		tc.currentScope = tc.currentScope.Parent
	}
}

// Signatures are the resolved signatures of every callable function,
// runtime primitives included.
func (tc *TypeChecker) Signatures() map[string]*codegen.Signature { return tc.sigs }

func (tc *TypeChecker) Registry() *layout.Registry { return tc.reg }

// TypeOf returns the annotation left on node by Check.
func (tc *TypeChecker) TypeOf(node *ast.Node) (*ast.Type, error) {
	if node == nil || node.Typ == nil {
		var tok token.Token
		if node != nil {
			tok = node.Tok
		}
		return nil, util.Errorf(util.ErrInternal, tok, "expression was not type checked")
	}
	return node.Typ, nil
}

func (tc *TypeChecker) fail(kind util.ErrorKind, tok token.Token, format string, args ...any) {
	panic(util.Errorf(kind, tok, format, args...))
}

func (tc *TypeChecker) mismatch(tok token.Token, want, got *ast.Type) {
	tc.fail(util.ErrTypeMismatch, tok, "expected '%s', found '%s'", want, got)
}

func (tc *TypeChecker) addSymbol(name string, typ *ast.Type, mutable bool, node *ast.Node) *Symbol {
	if existing := tc.findSymbol(name); existing != nil && !existing.IsFunc {
		util.Warn(tc.cfg, config.WarnShadow, node.Tok, "Declaration of '%s' shadows a previous declaration", name)
	}
	sym := &Symbol{Name: name, Type: typ, Mutable: mutable, Node: node, Next: tc.currentScope.Symbols}
	tc.currentScope.Symbols = sym
	return sym
}

func (tc *TypeChecker) findSymbol(name string) *Symbol {
	for s := tc.currentScope; s != nil; s = s.Parent {
		for sym := s.Symbols; sym != nil; sym = sym.Next {
			if sym.Name == name {
				return sym
			}
		}
	}
	return nil
}

// Check type checks a whole compilation unit.
func (tc *TypeChecker) Check(root *ast.Node) (err error) {
	defer util.Recover(&err)
	if root == nil || root.Type != ast.Block {
		return nil
	}
	stmts := root.Data.(ast.BlockNode).Stmts
	tc.collectTypes(stmts)
	tc.collectSignatures(stmts)
	for _, stmt := range stmts {
		if stmt.Type == ast.FuncDecl {
			tc.checkFuncDecl(stmt)
		}
	}
	return nil
}

// collectTypes registers every struct and enum. Names are gathered first so
// that declarations may refer to types declared later in the file.
func (tc *TypeChecker) collectTypes(stmts []*ast.Node) {
	for _, stmt := range stmts {
		switch d := stmt.Data.(type) {
		case ast.StructDeclNode:
			tc.typeNames[d.Name] = true
		case ast.EnumDeclNode:
			tc.typeNames[d.Name] = true
		}
	}
	for _, stmt := range stmts {
		switch d := stmt.Data.(type) {
		case ast.StructDeclNode:
			fields := make([]layout.FieldDecl, len(d.Fields))
			for i, f := range d.Fields {
				fd := f.Data.(ast.VarDeclNode)
				fields[i] = layout.FieldDecl{Name: fd.Name, Type: tc.resolveType(fd.Type, f.Tok)}
			}
			if err := tc.reg.AddStruct(d.Name, fields); err != nil {
				tc.fail(util.ErrType, stmt.Tok, "%v", err)
			}
		case ast.EnumDeclNode:
			if err := tc.reg.AddEnum(d.Name, d.Members); err != nil {
				tc.fail(util.ErrType, stmt.Tok, "%v", err)
			}
		}
	}
	for _, stmt := range stmts {
		if d, ok := stmt.Data.(ast.StructDeclNode); ok {
			if _, err := tc.lower.Struct(d.Name); err != nil {
				tc.fail(lowerErrorKind(err), stmt.Tok, "%v", err)
			}
		}
	}
}

func lowerErrorKind(err error) util.ErrorKind {
	var ue *layout.UnresolvedGenericError
	if errors.As(err, &ue) {
		return util.ErrUnresolvedGenericType
	}
	return util.ErrType
}

// resolveType turns names that are not declared types into generic
// parameters. Such parameters survive to lowering only through the
// fallback paths.
func (tc *TypeChecker) resolveType(t *ast.Type, tok token.Token) *ast.Type {
	if t == nil {
		return ast.TypeVoid
	}
	switch t.Kind {
	case ast.TYPE_NAMED:
		if tc.typeNames[t.Name] {
			return t
		}
		return ast.NewParam(t.Name)
	case ast.TYPE_POINTER:
		return ast.NewPointer(tc.resolveType(t.Base, tok), t.Ownership)
	case ast.TYPE_GENERIC:
		args := make([]*ast.Type, len(t.Args))
		for i, a := range t.Args {
			args[i] = tc.resolveType(a, tok)
		}
		switch t.Name {
		case ast.ResultName:
			if len(args) != 2 {
				tc.fail(util.ErrType, tok, "Result takes two type arguments, found %d", len(args))
			}
		case ast.OptionName, ast.ArrayName:
			if len(args) != 1 {
				tc.fail(util.ErrType, tok, "%s takes one type argument, found %d", t.Name, len(args))
			}
		}
		return ast.NewGeneric(t.Name, args...)
	case ast.TYPE_FUNC:
		params := make([]*ast.Type, len(t.Params))
		for i, p := range t.Params {
			params[i] = tc.resolveType(p, tok)
		}
		return ast.NewFunc(params, tc.resolveType(t.Return, tok))
	}
	return t
}

func (tc *TypeChecker) collectSignatures(stmts []*ast.Node) {
	for _, stmt := range stmts {
		var name string
		var params []*ast.Node
		var ret *ast.Type
		extern := false
		switch d := stmt.Data.(type) {
		case ast.FuncDeclNode:
			name, params, ret = d.Name, d.Params, d.ReturnType
		case ast.ExternDeclNode:
			name, params, ret, extern = d.Name, d.Params, d.ReturnType, true
		default:
			continue
		}

		sig := &codegen.Signature{Name: name, Return: tc.resolveType(ret, stmt.Tok), Extern: extern, Node: stmt}
		for _, p := range params {
			sig.Params = append(sig.Params, tc.resolveType(p.Data.(ast.VarDeclNode).Type, p.Tok))
		}

		if existing, ok := tc.sigs[name]; ok {
			// Redeclaring a runtime primitive with its own signature is harmless.
			if !(extern && existing.Node == nil && tc.sameSignature(existing, sig)) {
				tc.fail(util.ErrType, stmt.Tok, "Redefinition of '%s'", name)
			}
			continue
		}
		if extern {
			tc.checkExternSignature(sig, stmt.Tok)
		}
		tc.sigs[name] = sig
	}
}

func (tc *TypeChecker) sameSignature(a, b *codegen.Signature) bool {
	if len(a.Params) != len(b.Params) || !ast.Equal(a.Return, b.Return) {
		return false
	}
	for i := range a.Params {
		if !ast.Equal(a.Params[i], b.Params[i]) {
			return false
		}
	}
	return true
}

// checkExternSignature keeps aggregates out of foreign calls: they have no
// C calling convention in this compiler.
func (tc *TypeChecker) checkExternSignature(sig *codegen.Signature, tok token.Token) {
	for _, t := range append([]*ast.Type{sig.Return}, sig.Params...) {
		if t.IsVoid() {
			continue
		}
		lt, err := tc.lower.Lower(t)
		if err != nil {
			tc.fail(lowerErrorKind(err), tok, "extern '%s': %v", sig.Name, err)
		}
		if layout.IsAggregate(lt) {
			tc.fail(util.ErrType, tok, "extern '%s' cannot pass or return '%s' by value", sig.Name, t)
		}
	}
}

func (tc *TypeChecker) checkFuncDecl(node *ast.Node) {
	d := node.Data.(ast.FuncDeclNode)
	sig := tc.sigs[d.Name]
	tc.currentFunc = sig
	tc.enterScope()
	defer func() {
		tc.exitScope()
		tc.currentFunc = nil
	}()

	for i, p := range d.Params {
		pd := p.Data.(ast.VarDeclNode)
		p.Typ = sig.Params[i]
		tc.addSymbol(pd.Name, sig.Params[i], false, p)
	}
	tc.checkStmt(d.Body)
}

// Statements

func (tc *TypeChecker) checkStmt(node *ast.Node) {
	if node == nil {
		return
	}
	switch node.Type {
	case ast.Block:
		tc.enterScope()
		for _, s := range node.Data.(ast.BlockNode).Stmts {
			tc.checkStmt(s)
		}
		tc.exitScope()
	case ast.VarDecl:
		tc.checkVarDecl(node)
	case ast.If:
		d := node.Data.(ast.IfNode)
		tc.checkCondition(d.Cond)
		tc.checkStmt(d.ThenBody)
		tc.checkStmt(d.ElseBody)
	case ast.While:
		d := node.Data.(ast.WhileNode)
		tc.checkCondition(d.Cond)
		tc.loopDepth++
		tc.checkStmt(d.Body)
		tc.loopDepth--
	case ast.Return:
		tc.checkReturn(node)
	case ast.Break, ast.Continue:
		if tc.loopDepth == 0 {
			tc.fail(util.ErrType, node.Tok, "'%s' outside of a loop", node.Tok.Value)
		}
	case ast.Match:
		tc.checkMatch(node, nil, false)
	case ast.FuncDecl, ast.ExternDecl, ast.StructDecl, ast.EnumDecl:
		tc.fail(util.ErrType, node.Tok, "declarations are only allowed at the top level")
	default:
		tc.checkExpr(node, nil)
	}
}

func (tc *TypeChecker) checkCondition(cond *ast.Node) {
	if t := tc.checkExpr(cond, ast.TypeBool); t.Kind != ast.TYPE_BOOL {
		tc.mismatch(cond.Tok, ast.TypeBool, t)
	}
}

func (tc *TypeChecker) checkVarDecl(node *ast.Node) {
	d := node.Data.(ast.VarDeclNode)
	var typ *ast.Type
	if d.Type != nil {
		typ = tc.resolveType(d.Type, node.Tok)
	}
	switch {
	case d.Init != nil:
		initType := tc.checkExpr(d.Init, typ)
		if initType.IsVoid() {
			tc.fail(util.ErrType, d.Init.Tok, "'%s' is initialized with a value of type void", d.Name)
		}
		if typ == nil {
			typ = initType
		} else {
			tc.requireAssignable(d.Init.Tok, typ, initType)
		}
	case typ == nil:
		tc.fail(util.ErrType, node.Tok, "'%s' needs a type or an initializer", d.Name)
	}
	node.Typ = typ
	tc.addSymbol(d.Name, typ, d.Mutable, node)
}

func (tc *TypeChecker) checkReturn(node *ast.Node) {
	d := node.Data.(ast.ReturnNode)
	ret := tc.currentFunc.Return
	if d.Expr == nil {
		if !ret.IsVoid() {
			tc.fail(util.ErrTypeMismatch, node.Tok, "missing return value in function returning '%s'", ret)
		}
		return
	}
	t := tc.checkExpr(d.Expr, ret)
	tc.requireAssignable(d.Expr.Tok, ret, t)
}

// Expressions

// checkExpr annotates node with its type. expected, when known, steers
// untyped literals and variant constructors.
func (tc *TypeChecker) checkExpr(node *ast.Node, expected *ast.Type) *ast.Type {
	t := tc.exprType(node, expected)
	node.Typ = t
	return t
}

func (tc *TypeChecker) exprType(node *ast.Node, expected *ast.Type) *ast.Type {
	switch node.Type {
	case ast.Number:
		return tc.checkNumber(node, expected)
	case ast.FloatNumber:
		if expected.IsFloat() {
			return expected
		}
		return ast.TypeF64
	case ast.String:
		return ast.TypeString
	case ast.Bool:
		return ast.TypeBool
	case ast.Ident:
		return tc.checkIdent(node)
	case ast.Assign:
		return tc.checkAssign(node)
	case ast.BinaryOp:
		return tc.checkBinaryOp(node, expected)
	case ast.UnaryOp:
		return tc.checkUnaryOp(node, expected)
	case ast.FuncCall:
		return tc.checkFuncCall(node)
	case ast.MethodCall:
		return tc.checkMethodCall(node)
	case ast.MemberAccess:
		return tc.checkMemberAccess(node)
	case ast.StructLiteral:
		return tc.checkStructLiteral(node)
	case ast.ArrayLiteral:
		return tc.checkArrayLiteral(node, expected)
	case ast.Variant:
		return tc.checkVariant(node, expected)
	case ast.Match:
		return tc.checkMatch(node, expected, true)
	case ast.TypeCast:
		return tc.checkTypeCast(node)
	}
	tc.fail(util.ErrType, node.Tok, "expected an expression")
	return nil
}

func (tc *TypeChecker) checkNumber(node *ast.Node, expected *ast.Type) *ast.Type {
	v := node.Data.(ast.NumberNode).Value
	switch {
	case expected.IsFloat():
		return expected
	case expected.IsInteger():
		if !fitsInteger(v, expected) {
			util.Warn(tc.cfg, config.WarnOverflow, node.Tok, "Constant %d overflows '%s'", v, expected)
		}
		return expected
	}
	if fitsInteger(v, ast.TypeI32) {
		return ast.TypeI32
	}
	return ast.TypeI64
}

func fitsInteger(v int64, t *ast.Type) bool {
	var err error
	switch {
	case t.Signed && t.Bits == 8:
		_, err = safecast.Conv[int8](v)
	case t.Signed && t.Bits == 16:
		_, err = safecast.Conv[int16](v)
	case t.Signed && t.Bits == 32:
		_, err = safecast.Conv[int32](v)
	case t.Signed:
		return true
	case t.Bits == 8:
		_, err = safecast.Conv[uint8](v)
	case t.Bits == 16:
		_, err = safecast.Conv[uint16](v)
	case t.Bits == 32:
		_, err = safecast.Conv[uint32](v)
	default:
		_, err = safecast.Conv[uint64](v)
	}
	return err == nil
}

func (tc *TypeChecker) checkIdent(node *ast.Node) *ast.Type {
	name := node.Data.(ast.IdentNode).Name
	if sym := tc.findSymbol(name); sym != nil {
		return sym.Type
	}
	if sig, ok := tc.sigs[name]; ok {
		return ast.NewFunc(sig.Params, sig.Return)
	}
	tc.fail(util.ErrType, node.Tok, "Undefined name '%s'", name)
	return nil
}

func (tc *TypeChecker) checkAssign(node *ast.Node) *ast.Type {
	d := node.Data.(ast.AssignNode)
	root := d.Lhs
	for root.Type == ast.MemberAccess {
		root = root.Data.(ast.MemberAccessNode).Expr
	}
	if root.Type != ast.Ident {
		tc.fail(util.ErrType, d.Lhs.Tok, "cannot assign to this expression")
	}
	name := root.Data.(ast.IdentNode).Name
	sym := tc.findSymbol(name)
	if sym == nil {
		tc.fail(util.ErrType, root.Tok, "Undefined name '%s'", name)
	}
	if !sym.Mutable {
		tc.fail(util.ErrType, d.Lhs.Tok, "cannot assign to immutable '%s'", name)
	}
	lt := tc.checkExpr(d.Lhs, nil)
	rt := tc.checkExpr(d.Rhs, lt)
	tc.requireAssignable(d.Rhs.Tok, lt, rt)
	return lt
}

func isUntypedLiteral(n *ast.Node) bool {
	return n.Type == ast.Number || n.Type == ast.FloatNumber
}

// checkOperands types a pair of operands that must agree. A literal on the
// left takes the type of the right operand.
func (tc *TypeChecker) checkOperands(left, right *ast.Node, expected *ast.Type) (*ast.Type, *ast.Type) {
	if isUntypedLiteral(left) && !isUntypedLiteral(right) {
		rt := tc.checkExpr(right, expected)
		return tc.checkExpr(left, rt), rt
	}
	lt := tc.checkExpr(left, expected)
	return lt, tc.checkExpr(right, lt)
}

func (tc *TypeChecker) checkBinaryOp(node *ast.Node, expected *ast.Type) *ast.Type {
	d := node.Data.(ast.BinaryOpNode)
	switch d.Op {
	case token.AndAnd, token.OrOr:
		tc.checkCondition(d.Left)
		tc.checkCondition(d.Right)
		return ast.TypeBool

	case token.EqEq, token.Neq:
		lt, rt := tc.checkOperands(d.Left, d.Right, nil)
		if !ast.Equal(lt, rt) {
			tc.mismatch(d.Right.Tok, lt, rt)
		}
		if !tc.isScalar(lt) {
			tc.fail(util.ErrType, node.Tok, "cannot compare values of type '%s'", lt)
		}
		return ast.TypeBool

	case token.Lt, token.Gt, token.Lte, token.Gte:
		lt, rt := tc.checkOperands(d.Left, d.Right, nil)
		if !ast.Equal(lt, rt) {
			tc.mismatch(d.Right.Tok, lt, rt)
		}
		if !lt.IsNumeric() {
			tc.fail(util.ErrType, node.Tok, "cannot order values of type '%s'", lt)
		}
		return ast.TypeBool
	}

	if !expected.IsNumeric() {
		expected = nil
	}
	lt, rt := tc.checkOperands(d.Left, d.Right, expected)
	if !ast.Equal(lt, rt) {
		tc.mismatch(d.Right.Tok, lt, rt)
	}
	if !lt.IsNumeric() {
		tc.fail(util.ErrType, node.Tok, "operator '%s' needs numeric operands, found '%s'", node.Tok.Value, lt)
	}
	if d.Op == token.Rem && lt.IsFloat() {
		tc.fail(util.ErrType, node.Tok, "operator '%%' is not defined on '%s'", lt)
	}
	return lt
}

// isScalar reports whether values of t fit in a register and compare by value.
func (tc *TypeChecker) isScalar(t *ast.Type) bool {
	switch t.Kind {
	case ast.TYPE_INT, ast.TYPE_FLOAT, ast.TYPE_BOOL, ast.TYPE_STRING, ast.TYPE_POINTER, ast.TYPE_FUNC:
		return true
	case ast.TYPE_NAMED:
		return tc.isEnum(t)
	}
	return false
}

func (tc *TypeChecker) checkUnaryOp(node *ast.Node, expected *ast.Type) *ast.Type {
	d := node.Data.(ast.UnaryOpNode)
	switch d.Op {
	case token.Not:
		tc.checkCondition(d.Expr)
		return ast.TypeBool
	case token.Minus:
		if !expected.IsNumeric() {
			expected = nil
		}
		t := tc.checkExpr(d.Expr, expected)
		if !t.IsNumeric() {
			tc.fail(util.ErrType, node.Tok, "cannot negate a value of type '%s'", t)
		}
		return t
	}
	tc.fail(util.ErrInternal, node.Tok, "unknown unary operator '%s'", node.Tok.Value)
	return nil
}

func (tc *TypeChecker) checkTypeCast(node *ast.Node) *ast.Type {
	d := node.Data.(ast.TypeCastNode)
	d.TargetType = tc.resolveType(d.TargetType, node.Tok)
	node.Data = d
	from := tc.checkExpr(d.Expr, nil)
	to := d.TargetType
	castable := from.IsNumeric() || from.Kind == ast.TYPE_BOOL || tc.isEnum(from)
	if !castable || !to.IsNumeric() {
		tc.fail(util.ErrTypeMismatch, node.Tok, "cannot cast '%s' to '%s'", from, to)
	}
	return to
}

func (tc *TypeChecker) isEnum(t *ast.Type) bool {
	if t.Kind != ast.TYPE_NAMED {
		return false
	}
	_, ok := tc.reg.Enum(t.Name)
	return ok
}

func (tc *TypeChecker) checkFuncCall(node *ast.Node) *ast.Type {
	d := node.Data.(ast.FuncCallNode)
	var params []*ast.Type
	var ret *ast.Type
	if sym := tc.findSymbol(d.Name); sym != nil {
		if sym.Type.Kind != ast.TYPE_FUNC {
			tc.fail(util.ErrType, node.Tok, "'%s' of type '%s' is not callable", d.Name, sym.Type)
		}
		params, ret = sym.Type.Params, sym.Type.Return
	} else if sig, ok := tc.sigs[d.Name]; ok {
		params, ret = sig.Params, sig.Return
	} else {
		tc.fail(util.ErrType, node.Tok, "Call to undefined function '%s'", d.Name)
	}

	if len(d.Args) != len(params) {
		tc.fail(util.ErrType, node.Tok, "'%s' takes %d arguments, found %d", d.Name, len(params), len(d.Args))
	}
	for i, a := range d.Args {
		t := tc.checkExpr(a, params[i])
		tc.requireAssignable(a.Tok, params[i], t)
	}
	return ret
}

func (tc *TypeChecker) expectArgs(node *ast.Node, n int) {
	d := node.Data.(ast.MethodCallNode)
	if len(d.Args) != n {
		tc.fail(util.ErrType, node.Tok, "'%s' takes %d arguments, found %d", d.Method, n, len(d.Args))
	}
}

// concrete maps an unresolved parameter to the default payload type used
// by the code generator's fallback.
func concrete(t *ast.Type) *ast.Type {
	if t != nil && t.Kind == ast.TYPE_PARAM {
		return ast.TypeI32
	}
	return t
}

func (tc *TypeChecker) checkMethodCall(node *ast.Node) *ast.Type {
	d := node.Data.(ast.MethodCallNode)
	recv := tc.checkExpr(d.Recv, nil)

	switch d.Method {
	case "raise":
		tc.expectArgs(node, 0)
		return tc.checkRaise(node, recv)
	case "is_ok", "is_err", "is_some", "is_none":
		tc.expectArgs(node, 0)
		if !recv.IsSum() {
			tc.fail(util.ErrType, node.Tok, "'%s' needs a Result or Option, found '%s'", d.Method, recv)
		}
		return ast.TypeBool
	case "get", "pop", "push", "len":
		if !recv.IsArray() {
			tc.fail(util.ErrTypeMismatch, d.Recv.Tok, "expected an Array, found '%s'", recv)
		}
	default:
		tc.fail(util.ErrType, node.Tok, "unknown method '%s'", d.Method)
	}

	elem := recv.Elem()
	switch d.Method {
	case "get":
		tc.expectArgs(node, 1)
		if t := tc.checkExpr(d.Args[0], ast.TypeI64); !t.IsInteger() {
			tc.fail(util.ErrTypeMismatch, d.Args[0].Tok, "index must be an integer, found '%s'", t)
		}
		return ast.NewOption(elem)
	case "pop":
		tc.expectArgs(node, 0)
		return ast.NewOption(elem)
	case "push":
		tc.expectArgs(node, 1)
		t := tc.checkExpr(d.Args[0], elem)
		tc.requireAssignable(d.Args[0].Tok, elem, t)
		return ast.TypeVoid
	}
	tc.expectArgs(node, 0)
	return ast.TypeI64
}

// checkRaise types x.raise(). The early return must be expressible in the
// enclosing function's return type.
func (tc *TypeChecker) checkRaise(node *ast.Node, recv *ast.Type) *ast.Type {
	if !recv.IsSum() {
		tc.fail(util.ErrUnsupportedRaiseTarget, node.Tok, "'.raise()' needs a Result or Option, found '%s'", recv)
	}
	ret := tc.currentFunc.Return
	if recv.IsResult() && ret.IsResult() {
		from, to := recv.ErrType(), ret.ErrType()
		if !tc.assignable(to, from) && !(from.IsNumeric() && to.IsNumeric()) {
			tc.fail(util.ErrTypeMismatch, node.Tok, "cannot raise error of type '%s' from a function returning '%s'", from, ret)
		}
	}
	return concrete(recv.OkType())
}

func (tc *TypeChecker) checkMemberAccess(node *ast.Node) *ast.Type {
	d := node.Data.(ast.MemberAccessNode)
	if d.Expr.Type == ast.Ident {
		name := d.Expr.Data.(ast.IdentNode).Name
		if tc.findSymbol(name) == nil {
			if _, isEnum := tc.reg.Enum(name); isEnum {
				if _, ok := tc.reg.EnumValue(name, d.Member); !ok {
					tc.fail(util.ErrType, node.Tok, "enum '%s' has no variant '%s'", name, d.Member)
				}
				enumType := ast.NewNamed(name)
				d.Expr.Typ = enumType
				return enumType
			}
		}
	}

	t := tc.checkExpr(d.Expr, nil)
	if t.Kind != ast.TYPE_NAMED {
		tc.fail(util.ErrType, node.Tok, "member access on non-struct type '%s'", t)
	}
	ft, ok := tc.reg.StructField(t.Name, d.Member)
	if !ok {
		tc.fail(util.ErrType, node.Tok, "'%s' has no field '%s'", t, d.Member)
	}
	return ft
}

func (tc *TypeChecker) checkStructLiteral(node *ast.Node) *ast.Type {
	d := node.Data.(ast.StructLiteralNode)
	fields, ok := tc.reg.StructFields(d.Name)
	if !ok {
		tc.fail(util.ErrType, node.Tok, "Undefined struct '%s'", d.Name)
	}
	seen := make(map[string]bool, len(d.Fields))
	for i, name := range d.Fields {
		ft, ok := tc.reg.StructField(d.Name, name)
		if !ok {
			tc.fail(util.ErrType, d.Values[i].Tok, "struct '%s' has no field '%s'", d.Name, name)
		}
		if seen[name] {
			tc.fail(util.ErrType, d.Values[i].Tok, "field '%s' is given twice", name)
		}
		seen[name] = true
		t := tc.checkExpr(d.Values[i], ft)
		tc.requireAssignable(d.Values[i].Tok, ft, t)
	}
	for _, f := range fields {
		if !seen[f.Name] {
			tc.fail(util.ErrType, node.Tok, "missing field '%s' in '%s' literal", f.Name, d.Name)
		}
	}
	return ast.NewNamed(d.Name)
}

func (tc *TypeChecker) checkArrayLiteral(node *ast.Node, expected *ast.Type) *ast.Type {
	elems := node.Data.(ast.ArrayLiteralNode).Elems
	var elem *ast.Type
	if expected.IsArray() {
		elem = expected.Elem()
	}
	if elem == nil && len(elems) == 0 {
		tc.fail(util.ErrType, node.Tok, "cannot infer the element type of an empty array")
	}
	for _, e := range elems {
		t := tc.checkExpr(e, elem)
		if elem == nil {
			elem = t
			continue
		}
		tc.requireAssignable(e.Tok, elem, t)
	}
	return ast.NewArray(elem)
}

// checkVariant fills the sides a constructor does not determine from the
// expected type, or with parameters when nothing is expected.
func (tc *TypeChecker) checkVariant(node *ast.Node, expected *ast.Type) *ast.Type {
	d := node.Data.(ast.VariantNode)
	payload := func(want *ast.Type) *ast.Type {
		if want != nil && want.Kind == ast.TYPE_PARAM {
			want = nil
		}
		t := tc.checkExpr(d.Value, want)
		if want != nil {
			tc.requireAssignable(d.Value.Tok, want, t)
			return want
		}
		return t
	}

	switch d.Kind {
	case ast.VariantOk:
		if expected.IsResult() {
			return ast.NewResult(payload(expected.OkType()), expected.ErrType())
		}
		return ast.NewResult(payload(nil), ast.NewParam("E"))
	case ast.VariantErr:
		if expected.IsResult() {
			return ast.NewResult(expected.OkType(), payload(expected.ErrType()))
		}
		return ast.NewResult(ast.NewParam("T"), payload(nil))
	case ast.VariantSome:
		if expected.IsOption() {
			return ast.NewOption(payload(expected.OkType()))
		}
		return ast.NewOption(payload(nil))
	}
	if expected.IsOption() {
		return expected
	}
	return ast.NewOption(ast.NewParam("T"))
}

// Match

// checkMatch types a match. In value mode every arm that completes must
// produce a value of the match type; arms that return or break produce none.
func (tc *TypeChecker) checkMatch(node *ast.Node, expected *ast.Type, valueMode bool) *ast.Type {
	d := node.Data.(ast.MatchNode)
	scrut := tc.checkExpr(d.Expr, nil)
	if expected.IsVoid() {
		expected = nil
	}
	result := expected

	for _, arm := range d.Arms {
		a := arm.Data.(ast.MatchArmNode)
		tc.enterScope()
		tc.checkPattern(a.Pattern, scrut)
		if a.Guard != nil {
			tc.checkCondition(a.Guard)
		}
		if t := tc.checkArmBody(a.Body, result, valueMode); t != nil {
			if result == nil {
				result = t
			} else {
				tc.requireAssignable(a.Body.Tok, result, t)
			}
		}
		tc.exitScope()
	}

	if !valueMode {
		node.Typ = ast.TypeVoid
		return ast.TypeVoid
	}
	if result == nil {
		tc.fail(util.ErrType, node.Tok, "match used as a value has no arm producing a value")
	}
	return result
}

func diverges(n *ast.Node) bool {
	return n.Type == ast.Return || n.Type == ast.Break || n.Type == ast.Continue
}

func isExpression(n *ast.Node) bool { return n.Type <= ast.TypeCast }

// checkArmBody returns the arm's value type, or nil when it has none.
func (tc *TypeChecker) checkArmBody(body *ast.Node, expected *ast.Type, valueMode bool) *ast.Type {
	if body.Type != ast.Block {
		if valueMode && isExpression(body) {
			return tc.checkExpr(body, expected)
		}
		tc.checkStmt(body)
		return nil
	}

	tc.enterScope()
	defer tc.exitScope()
	stmts := body.Data.(ast.BlockNode).Stmts
	for i, s := range stmts {
		if valueMode && i == len(stmts)-1 && isExpression(s) {
			return tc.checkExpr(s, expected)
		}
		tc.checkStmt(s)
		if diverges(s) {
			return nil
		}
	}
	return nil
}

// checkPattern validates pat against a scrutinee of type t and declares its
// bindings in the current scope.
func (tc *TypeChecker) checkPattern(pat *ast.Node, t *ast.Type) {
	switch pat.Type {
	case ast.WildcardPattern:

	case ast.BindingPattern:
		name := pat.Data.(ast.BindingPatternNode).Name
		bt := concrete(t)
		pat.Typ = bt
		tc.addSymbol(name, bt, false, pat)

	case ast.LiteralPattern:
		lit := pat.Data.(ast.LiteralPatternNode).Value
		want := t
		if want.Kind == ast.TYPE_PARAM {
			want = nil
		}
		lt := tc.checkExpr(lit, want)
		if want != nil && !ast.Equal(lt, want) {
			tc.fail(util.ErrTypeMismatch, pat.Tok, "literal of type '%s' cannot match a value of type '%s'", lt, t)
		}
		pat.Typ = lt

	case ast.EnumPattern:
		d := pat.Data.(ast.EnumPatternNode)
		if t.Kind != ast.TYPE_NAMED || t.Name != d.Enum {
			tc.fail(util.ErrTypeMismatch, pat.Tok, "enum pattern '%s.%s' cannot match a value of type '%s'", d.Enum, d.Member, t)
		}
		if _, ok := tc.reg.EnumValue(d.Enum, d.Member); !ok {
			tc.fail(util.ErrType, pat.Tok, "enum '%s' has no variant '%s'", d.Enum, d.Member)
		}
		pat.Typ = t

	case ast.VariantPattern:
		d := pat.Data.(ast.VariantPatternNode)
		var payload *ast.Type
		switch {
		case t.Kind == ast.TYPE_PARAM:
			payload = t
		case (d.Kind == ast.VariantOk || d.Kind == ast.VariantErr) && t.IsResult():
			payload = pick(d.Kind == ast.VariantOk, t.OkType(), t.ErrType())
		case (d.Kind == ast.VariantSome || d.Kind == ast.VariantNone) && t.IsOption():
			payload = t.OkType()
		default:
			tc.fail(util.ErrTypeMismatch, pat.Tok, "pattern '%s' cannot match a value of type '%s'", d.Kind, t)
		}
		if payload == nil {
			payload = ast.NewParam("T")
		}
		pat.Typ = t
		if d.Sub != nil {
			tc.checkPattern(d.Sub, payload)
		}

	case ast.StructPattern:
		d := pat.Data.(ast.StructPatternNode)
		if t.Kind == ast.TYPE_PARAM {
			t = ast.NewNamed(d.Name)
		}
		if t.Kind != ast.TYPE_NAMED || t.Name != d.Name {
			tc.fail(util.ErrTypeMismatch, pat.Tok, "struct pattern '%s' cannot match a value of type '%s'", d.Name, t)
		}
		for i, name := range d.Fields {
			ft, ok := tc.reg.StructField(d.Name, name)
			if !ok {
				tc.fail(util.ErrType, d.Subs[i].Tok, "struct '%s' has no field '%s'", d.Name, name)
			}
			tc.checkPattern(d.Subs[i], ft)
		}
		pat.Typ = t

	default:
		tc.fail(util.ErrInternal, pat.Tok, "unhandled pattern %v", pat.Type)
	}
}

func pick[T any](cond bool, a, b T) T {
	if cond {
		return a
	}
	return b
}

// Assignability

func (tc *TypeChecker) requireAssignable(tok token.Token, dst, src *ast.Type) {
	if !tc.assignable(dst, src) {
		tc.mismatch(tok, dst, src)
	}
}

// assignable is structural equality where an unresolved parameter on
// either side matches anything. Pointers convert freely between each other.
func (tc *TypeChecker) assignable(dst, src *ast.Type) bool {
	if ast.Equal(dst, src) {
		return true
	}
	if dst == nil || src == nil {
		return false
	}
	if dst.Kind == ast.TYPE_PARAM || src.Kind == ast.TYPE_PARAM {
		return true
	}
	if dst.Kind != src.Kind {
		return false
	}
	switch dst.Kind {
	case ast.TYPE_POINTER:
		return true
	case ast.TYPE_GENERIC:
		if dst.Name != src.Name || len(dst.Args) != len(src.Args) {
			return false
		}
		for i := range dst.Args {
			if !tc.assignable(dst.Args[i], src.Args[i]) {
				return false
			}
		}
		return true
	case ast.TYPE_FUNC:
		if len(dst.Params) != len(src.Params) || !tc.assignable(dst.Return, src.Return) {
			return false
		}
		for i := range dst.Params {
			if !tc.assignable(dst.Params[i], src.Params[i]) {
				return false
			}
		}
		return true
	}
	return false
}
