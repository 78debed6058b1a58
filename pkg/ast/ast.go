// Package ast defines the types used to represent the Abstract Syntax Tree (AST)
package ast

import (
	"github.com/Zeeeepa/lynlang-sub004/pkg/token"
)

// NodeType defines the kind of a node in the AST
type NodeType int

// Node types enum
const (
	// Expressions
	Number NodeType = iota
	FloatNumber
	String
	Bool
	Ident
	Assign
	BinaryOp
	UnaryOp
	FuncCall
	MethodCall
	MemberAccess
	StructLiteral
	ArrayLiteral
	Variant
	Match
	TypeCast

	// Statements
	FuncDecl
	ExternDecl
	StructDecl
	EnumDecl
	VarDecl
	If
	While
	Return
	Block
	Break
	Continue

	// Patterns
	WildcardPattern
	BindingPattern
	LiteralPattern
	VariantPattern
	EnumPattern
	StructPattern
	MatchArm
)

// Node represents a node in the Abstract Syntax Tree
type Node struct {
	Type   NodeType
	Tok    token.Token
	Parent *Node
	Data   interface{}
	Typ    *Type // Set by the type checker
}

// VariantKind names the four constructors shared by Result and Option.
type VariantKind int

const (
	VariantOk VariantKind = iota
	VariantErr
	VariantSome
	VariantNone
)

var variantNames = [...]string{"Ok", "Err", "Some", "None"}

func (v VariantKind) String() string { return variantNames[v] }

// VariantByName maps a constructor identifier to its kind.
func VariantByName(name string) (VariantKind, bool) {
	for i, n := range variantNames {
		if n == name {
			return VariantKind(i), true
		}
	}
	return 0, false
}

// Tag is the discriminant value the variant is encoded with.
func (v VariantKind) Tag() int64 {
	if v == VariantErr || v == VariantNone {
		return 1
	}
	return 0
}

// --- Node Data Structs ---
type NumberNode struct{ Value int64 }
type FloatNumberNode struct{ Value float64 }
type StringNode struct{ Value string }
type BoolNode struct{ Value bool }
type IdentNode struct{ Name string }
type AssignNode struct{ Lhs, Rhs *Node }
type BinaryOpNode struct{ Op token.Type; Left, Right *Node }
type UnaryOpNode struct{ Op token.Type; Expr *Node }
type FuncCallNode struct{ Name string; Args []*Node }
type MethodCallNode struct{ Recv *Node; Method string; Args []*Node }
type MemberAccessNode struct{ Expr *Node; Member string }
type StructLiteralNode struct{ Name string; Fields []string; Values []*Node }
type ArrayLiteralNode struct{ Elems []*Node }
type VariantNode struct{ Kind VariantKind; Value *Node }
type MatchNode struct{ Expr *Node; Arms []*Node }
type MatchArmNode struct{ Pattern, Guard, Body *Node }
type TypeCastNode struct{ Expr *Node; TargetType *Type }
type FuncDeclNode struct {
	Name       string
	Params     []*Node
	Body       *Node
	ReturnType *Type
}
type ExternDeclNode struct {
	Name       string
	Params     []*Node
	ReturnType *Type
}
type StructDeclNode struct{ Name string; Fields []*Node }
type EnumDeclNode struct{ Name string; Members []string }
type VarDeclNode struct {
	Name    string
	Type    *Type
	Init    *Node
	Mutable bool
}
type IfNode struct{ Cond, ThenBody, ElseBody *Node }
type WhileNode struct{ Cond, Body *Node }
type ReturnNode struct{ Expr *Node }
type BlockNode struct{ Stmts []*Node }
type BreakNode struct{}
type ContinueNode struct{}

type WildcardPatternNode struct{}
type BindingPatternNode struct{ Name string }
type LiteralPatternNode struct{ Value *Node }
type VariantPatternNode struct{ Kind VariantKind; Sub *Node }
type EnumPatternNode struct{ Enum, Member string }
type StructPatternNode struct{ Name string; Fields []string; Subs []*Node }

// --- Node Constructors ---

func newNode(tok token.Token, nodeType NodeType, data interface{}, children ...*Node) *Node {
	node := &Node{Type: nodeType, Tok: tok, Data: data}
	for _, child := range children {
		if child != nil {
			child.Parent = node
		}
	}
	return node
}

func adopt(parent *Node, children []*Node) *Node {
	for _, c := range children {
		if c != nil {
			c.Parent = parent
		}
	}
	return parent
}

func NewNumber(tok token.Token, value int64) *Node {
	return newNode(tok, Number, NumberNode{Value: value})
}
func NewFloatNumber(tok token.Token, value float64) *Node {
	return newNode(tok, FloatNumber, FloatNumberNode{Value: value})
}
func NewString(tok token.Token, value string) *Node {
	return newNode(tok, String, StringNode{Value: value})
}
func NewBool(tok token.Token, value bool) *Node {
	return newNode(tok, Bool, BoolNode{Value: value})
}
func NewIdent(tok token.Token, name string) *Node {
	return newNode(tok, Ident, IdentNode{Name: name})
}
func NewAssign(tok token.Token, lhs, rhs *Node) *Node {
	return newNode(tok, Assign, AssignNode{Lhs: lhs, Rhs: rhs}, lhs, rhs)
}
func NewBinaryOp(tok token.Token, op token.Type, left, right *Node) *Node {
	return newNode(tok, BinaryOp, BinaryOpNode{Op: op, Left: left, Right: right}, left, right)
}
func NewUnaryOp(tok token.Token, op token.Type, expr *Node) *Node {
	return newNode(tok, UnaryOp, UnaryOpNode{Op: op, Expr: expr}, expr)
}
func NewFuncCall(tok token.Token, name string, args []*Node) *Node {
	return adopt(newNode(tok, FuncCall, FuncCallNode{Name: name, Args: args}), args)
}
func NewMethodCall(tok token.Token, recv *Node, method string, args []*Node) *Node {
	return adopt(newNode(tok, MethodCall, MethodCallNode{Recv: recv, Method: method, Args: args}, recv), args)
}
func NewMemberAccess(tok token.Token, expr *Node, member string) *Node {
	return newNode(tok, MemberAccess, MemberAccessNode{Expr: expr, Member: member}, expr)
}
func NewStructLiteral(tok token.Token, name string, fields []string, values []*Node) *Node {
	return adopt(newNode(tok, StructLiteral, StructLiteralNode{Name: name, Fields: fields, Values: values}), values)
}
func NewArrayLiteral(tok token.Token, elems []*Node) *Node {
	return adopt(newNode(tok, ArrayLiteral, ArrayLiteralNode{Elems: elems}), elems)
}
func NewVariant(tok token.Token, kind VariantKind, value *Node) *Node {
	return newNode(tok, Variant, VariantNode{Kind: kind, Value: value}, value)
}
func NewMatch(tok token.Token, expr *Node, arms []*Node) *Node {
	return adopt(newNode(tok, Match, MatchNode{Expr: expr, Arms: arms}, expr), arms)
}
func NewMatchArm(tok token.Token, pattern, guard, body *Node) *Node {
	return newNode(tok, MatchArm, MatchArmNode{Pattern: pattern, Guard: guard, Body: body}, pattern, guard, body)
}
func NewTypeCast(tok token.Token, expr *Node, targetType *Type) *Node {
	return newNode(tok, TypeCast, TypeCastNode{Expr: expr, TargetType: targetType}, expr)
}
func NewFuncDecl(tok token.Token, name string, params []*Node, body *Node, returnType *Type) *Node {
	node := newNode(tok, FuncDecl, FuncDeclNode{Name: name, Params: params, Body: body, ReturnType: returnType}, body)
	return adopt(node, params)
}
func NewExternDecl(tok token.Token, name string, params []*Node, returnType *Type) *Node {
	return adopt(newNode(tok, ExternDecl, ExternDeclNode{Name: name, Params: params, ReturnType: returnType}), params)
}
func NewStructDecl(tok token.Token, name string, fields []*Node) *Node {
	return adopt(newNode(tok, StructDecl, StructDeclNode{Name: name, Fields: fields}), fields)
}
func NewEnumDecl(tok token.Token, name string, members []string) *Node {
	return newNode(tok, EnumDecl, EnumDeclNode{Name: name, Members: members})
}
func NewVarDecl(tok token.Token, name string, varType *Type, init *Node, mutable bool) *Node {
	return newNode(tok, VarDecl, VarDeclNode{Name: name, Type: varType, Init: init, Mutable: mutable}, init)
}
func NewIf(tok token.Token, cond, thenBody, elseBody *Node) *Node {
	return newNode(tok, If, IfNode{Cond: cond, ThenBody: thenBody, ElseBody: elseBody}, cond, thenBody, elseBody)
}
func NewWhile(tok token.Token, cond, body *Node) *Node {
	return newNode(tok, While, WhileNode{Cond: cond, Body: body}, cond, body)
}
func NewReturn(tok token.Token, expr *Node) *Node {
	return newNode(tok, Return, ReturnNode{Expr: expr}, expr)
}
func NewBlock(tok token.Token, stmts []*Node) *Node {
	return adopt(newNode(tok, Block, BlockNode{Stmts: stmts}), stmts)
}
func NewBreak(tok token.Token) *Node {
	return newNode(tok, Break, BreakNode{})
}
func NewContinue(tok token.Token) *Node {
	return newNode(tok, Continue, ContinueNode{})
}

func NewWildcardPattern(tok token.Token) *Node {
	return newNode(tok, WildcardPattern, WildcardPatternNode{})
}
func NewBindingPattern(tok token.Token, name string) *Node {
	return newNode(tok, BindingPattern, BindingPatternNode{Name: name})
}
func NewLiteralPattern(tok token.Token, value *Node) *Node {
	return newNode(tok, LiteralPattern, LiteralPatternNode{Value: value}, value)
}
func NewVariantPattern(tok token.Token, kind VariantKind, sub *Node) *Node {
	return newNode(tok, VariantPattern, VariantPatternNode{Kind: kind, Sub: sub}, sub)
}
func NewEnumPattern(tok token.Token, enum, member string) *Node {
	return newNode(tok, EnumPattern, EnumPatternNode{Enum: enum, Member: member})
}
func NewStructPattern(tok token.Token, name string, fields []string, subs []*Node) *Node {
	return adopt(newNode(tok, StructPattern, StructPatternNode{Name: name, Fields: fields, Subs: subs}), subs)
}

// FoldConstants folds integer and float arithmetic between literals.
func FoldConstants(node *Node) *Node {
	if node == nil {
		return nil
	}

	switch node.Type {
	case BinaryOp:
		d := node.Data.(BinaryOpNode)
		if d.Left.Type == Number && d.Right.Type == Number {
			l, r := d.Left.Data.(NumberNode).Value, d.Right.Data.(NumberNode).Value
			var res int64
			folded := true
			switch d.Op {
			case token.Plus: res = l + r
			case token.Minus: res = l - r
			case token.Star: res = l * r
			case token.Slash:
				if r == 0 { return node }
				res = l / r
			case token.Rem:
				if r == 0 { return node }
				res = l % r
			default:
				folded = false
			}
			if folded {
				return NewNumber(node.Tok, res)
			}
		}
	case UnaryOp:
		d := node.Data.(UnaryOpNode)
		if d.Op != token.Minus {
			return node
		}
		switch d.Expr.Type {
		case Number:
			return NewNumber(node.Tok, -d.Expr.Data.(NumberNode).Value)
		case FloatNumber:
			return NewFloatNumber(node.Tok, -d.Expr.Data.(FloatNumberNode).Value)
		}
	}

	return node
}
