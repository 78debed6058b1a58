package codegen

import (
	"errors"
	"fmt"

	"github.com/Zeeeepa/lynlang-sub004/pkg/ast"
	"github.com/Zeeeepa/lynlang-sub004/pkg/config"
	"github.com/Zeeeepa/lynlang-sub004/pkg/ir"
	"github.com/Zeeeepa/lynlang-sub004/pkg/layout"
	"github.com/Zeeeepa/lynlang-sub004/pkg/token"
	"github.com/Zeeeepa/lynlang-sub004/pkg/util"
)

// Signature is what a call site needs to know about a function.
type Signature struct {
	Name   string
	Params []*ast.Type
	Return *ast.Type
	Extern bool
	Node   *ast.Node
}

// TypeOracle answers the source type of an already checked expression.
type TypeOracle interface {
	TypeOf(node *ast.Node) (*ast.Type, error)
}

type symbol struct {
	Name    string
	Addr    ir.Value
	Src     *ast.Type
	Layout  layout.Type
	Mutable bool
	Next    *symbol
}

type scope struct {
	Symbols *symbol
	Parent  *scope
}

type Context struct {
	prog          *ir.Program
	cfg           *config.Config
	oracle        TypeOracle
	sigs          map[string]*Signature
	lower         *layout.Lowerer
	generics      *GenericContext
	tempCount     int
	labelCount    int
	siteCount     int
	currentScope  *scope
	currentFunc   *ir.Func
	currentSig    *Signature
	currentBlock  *ir.BasicBlock
	entryBlock    *ir.BasicBlock
	retPtr        ir.Value
	breakLabel    *ir.Label
	continueLabel *ir.Label
	wordSize      int
	strings       map[string]string
}

func NewContext(cfg *config.Config, oracle TypeOracle, sigs map[string]*Signature, reg *layout.Registry) *Context {
	lower := layout.NewLowerer(reg, cfg.WordSize)
	return &Context{
		prog:         &ir.Program{WordSize: cfg.WordSize},
		cfg:          cfg,
		oracle:       oracle,
		sigs:         sigs,
		lower:        lower,
		generics:     NewGenericContext(lower),
		currentScope: newScope(nil),
		wordSize:     cfg.WordSize,
		strings:      make(map[string]string),
	}
}

func newScope(parent *scope) *scope { return &scope{Parent: parent} }

func (ctx *Context) enterScope() { ctx.currentScope = newScope(ctx.currentScope) }
func (ctx *Context) exitScope() {
	if ctx.currentScope.Parent != nil {
		ctx.currentScope = ctx.currentScope.Parent
	}
}

func (ctx *Context) findSymbol(name string) *symbol {
	for s := ctx.currentScope; s != nil; s = s.Parent {
		for sym := s.Symbols; sym != nil; sym = sym.Next {
			if sym.Name == name {
				return sym
			}
		}
	}
	return nil
}

func (ctx *Context) addSymbol(name string, addr ir.Value, src *ast.Type, lt layout.Type, mutable bool) *symbol {
	sym := &symbol{Name: name, Addr: addr, Src: src, Layout: lt, Mutable: mutable, Next: ctx.currentScope.Symbols}
	ctx.currentScope.Symbols = sym
	return sym
}

func (ctx *Context) newTemp() *ir.Temporary {
	t := &ir.Temporary{ID: ctx.tempCount}
	ctx.tempCount++
	return t
}

func (ctx *Context) newLabel() *ir.Label {
	l := &ir.Label{Name: fmt.Sprintf("L%d", ctx.labelCount)}
	ctx.labelCount++
	return l
}

// nextSite numbers one raise, match or accessor expansion.
func (ctx *Context) nextSite() int {
	n := ctx.siteCount
	ctx.siteCount++
	return n
}

func siteLabel(kind, part string, n int) *ir.Label {
	return &ir.Label{Name: fmt.Sprintf("%s.%s.%d", kind, part, n)}
}

// startBlock opens a new block. An open predecessor falls through to it.
func (ctx *Context) startBlock(label *ir.Label) {
	if ctx.currentBlock != nil && !ctx.currentBlock.Terminated() {
		ctx.currentBlock.Instructions = append(ctx.currentBlock.Instructions, &ir.Instruction{Op: ir.OpJmp, Args: []ir.Value{label}})
	}
	block := &ir.BasicBlock{Label: label}
	ctx.currentFunc.Blocks = append(ctx.currentFunc.Blocks, block)
	ctx.currentBlock = block
}

func (ctx *Context) addInstr(instr *ir.Instruction) {
	if ctx.currentBlock == nil {
		ctx.startBlock(ctx.newLabel())
	}
	ctx.currentBlock.Instructions = append(ctx.currentBlock.Instructions, instr)
	if instr.Op.Terminates() {
		ctx.currentBlock = nil
	}
}

func (ctx *Context) jmp(label *ir.Label) {
	ctx.addInstr(&ir.Instruction{Op: ir.OpJmp, Args: []ir.Value{label}})
}

func (ctx *Context) jnz(cond ir.Value, t, f *ir.Label) {
	ctx.addInstr(&ir.Instruction{Op: ir.OpJnz, Args: []ir.Value{cond, t, f}})
}

// blockLabel is the label of the open block, used for phi operands.
func (ctx *Context) blockLabel() *ir.Label {
	if ctx.currentBlock == nil {
		ctx.startBlock(ctx.newLabel())
	}
	return ctx.currentBlock.Label
}

func (ctx *Context) terminated() bool { return ctx.currentBlock == nil }

// alloca reserves a stack slot in the entry block so loops reuse it.
func (ctx *Context) alloca(size, align int64) *ir.Temporary {
	res := ctx.newTemp()
	instr := &ir.Instruction{Op: ir.OpAlloc, Typ: ir.TypePtr, Result: res, Args: []ir.Value{&ir.Const{Value: max(size, 1)}}, Align: int(max(align, 8))}
	entry := ctx.entryBlock
	n := len(entry.Instructions)
	if entry.Terminated() {
		entry.Instructions = append(entry.Instructions[:n-1], instr, entry.Instructions[n-1])
	} else {
		entry.Instructions = append(entry.Instructions, instr)
	}
	return res
}

func (ctx *Context) addString(value string) ir.Value {
	if label, ok := ctx.strings[value]; ok {
		return &ir.Global{Name: label}
	}
	label := fmt.Sprintf("str%d", len(ctx.strings))
	ctx.strings[value] = label
	ctx.prog.Strings = append(ctx.prog.Strings, &ir.StringData{Label: label, Value: value})
	return &ir.Global{Name: label}
}

func (ctx *Context) typeOf(node *ast.Node) (*ast.Type, error) {
	if node.Typ != nil {
		return node.Typ, nil
	}
	t, err := ctx.oracle.TypeOf(node)
	if err != nil {
		return nil, util.Wrap(util.ErrType, node.Tok, err)
	}
	return t, nil
}

// lowerType lowers t and attaches the source location to a failure.
func (ctx *Context) lowerType(t *ast.Type, tok token.Token) (layout.Type, error) {
	lt, err := ctx.lower.Lower(t)
	if err != nil {
		var ue *layout.UnresolvedGenericError
		if errors.As(err, &ue) {
			return nil, util.Wrap(util.ErrUnresolvedGenericType, tok, err)
		}
		return nil, util.Wrap(util.ErrType, tok, err)
	}
	return lt, nil
}

func (ctx *Context) sret(sig *Signature) bool {
	lt, err := ctx.lower.Lower(sig.Return)
	return err == nil && layout.IsAggregate(lt)
}

// GenerateIR compiles every function of a checked compilation unit.
func (ctx *Context) GenerateIR(root *ast.Node) (*ir.Program, error) {
	for _, stmt := range root.Data.(ast.BlockNode).Stmts {
		if stmt.Type != ast.FuncDecl {
			continue
		}
		if err := ctx.codegenFuncDecl(stmt); err != nil {
			return nil, err
		}
	}
	return ctx.prog, nil
}

func (ctx *Context) codegenFuncDecl(node *ast.Node) error {
	d := node.Data.(ast.FuncDeclNode)
	sig := ctx.sigs[d.Name]
	if sig == nil {
		return util.Errorf(util.ErrInternal, node.Tok, "no signature for function '%s'", d.Name)
	}

	fn := &ir.Func{Name: d.Name, SRet: ctx.sret(sig)}
	if !fn.SRet && !sig.Return.IsVoid() {
		rt, err := ctx.regType(sig.Return, node.Tok)
		if err != nil {
			return err
		}
		fn.ReturnType = rt
	}
	ctx.prog.Funcs = append(ctx.prog.Funcs, fn)

	ctx.currentFunc, ctx.currentSig = fn, sig
	ctx.tempCount = 0
	ctx.currentBlock = nil
	ctx.retPtr = nil
	ctx.enterScope()
	ctx.generics.Push()
	defer func() {
		ctx.generics.Pop()
		ctx.exitScope()
		ctx.currentFunc, ctx.currentSig, ctx.currentBlock = nil, nil, nil
	}()

	ctx.startBlock(&ir.Label{Name: "start"})
	ctx.entryBlock = ctx.currentBlock

	if fn.SRet {
		ret := &ir.Temporary{Name: "ret", ID: -1}
		fn.Params = append(fn.Params, &ir.Param{Name: "ret", Typ: ir.TypePtr, Val: ret})
		ctx.retPtr = ret
	}

	for i, p := range d.Params {
		pd := p.Data.(ast.VarDeclNode)
		src := sig.Params[i]
		lt, err := ctx.lowerType(src, p.Tok)
		if err != nil {
			return err
		}
		rt := regTypeOf(lt)
		val := &ir.Temporary{Name: "arg." + pd.Name, ID: -1}
		fn.Params = append(fn.Params, &ir.Param{Name: pd.Name, Typ: rt, Val: val})
		slot := ctx.alloca(ctx.lower.SizeOf(lt), ctx.lower.AlignOf(lt))
		ctx.storeValue(slot, val, lt)
		ctx.addSymbol(pd.Name, slot, src, lt, false)
	}

	ctx.startBlock(&ir.Label{Name: "body"})
	terminates, err := ctx.codegenStmt(d.Body)
	if err != nil {
		return err
	}
	if !terminates && !ctx.terminated() {
		return ctx.emitFallOffReturn(node.Tok)
	}
	return nil
}

// emitFallOffReturn ends a function whose body does not return on every path.
func (ctx *Context) emitFallOffReturn(tok token.Token) error {
	ret := ctx.currentSig.Return
	switch {
	case ctx.currentFunc.SRet:
		lt, err := ctx.lowerType(ret, tok)
		if err != nil {
			return err
		}
		ctx.memset(ctx.retPtr, ctx.lower.SizeOf(lt))
		ctx.addInstr(&ir.Instruction{Op: ir.OpRet})
	case ret.IsVoid():
		ctx.addInstr(&ir.Instruction{Op: ir.OpRet})
	default:
		zero, err := ctx.zeroValue(ret, tok)
		if err != nil {
			return err
		}
		ctx.addInstr(&ir.Instruction{Op: ir.OpRet, Args: []ir.Value{zero}})
	}
	return nil
}

func (ctx *Context) codegenStmt(node *ast.Node) (terminates bool, err error) {
	if node == nil {
		return false, nil
	}
	switch node.Type {
	case ast.Block:
		ctx.enterScope()
		defer ctx.exitScope()
		for _, stmt := range node.Data.(ast.BlockNode).Stmts {
			if terminates {
				util.Warn(ctx.cfg, config.WarnUnreachableCode, stmt.Tok, "Unreachable code")
				break
			}
			if terminates, err = ctx.codegenStmt(stmt); err != nil {
				return false, err
			}
		}
		return terminates, nil

	case ast.VarDecl:
		return false, ctx.codegenVarDecl(node)
	case ast.Return:
		return true, ctx.codegenReturn(node)
	case ast.If:
		return ctx.codegenIf(node)
	case ast.While:
		return false, ctx.codegenWhile(node)

	case ast.Break:
		if ctx.breakLabel == nil {
			return false, util.Errorf(util.ErrType, node.Tok, "'break' outside of a loop")
		}
		ctx.jmp(ctx.breakLabel)
		return true, nil

	case ast.Continue:
		if ctx.continueLabel == nil {
			return false, util.Errorf(util.ErrType, node.Tok, "'continue' outside of a loop")
		}
		ctx.jmp(ctx.continueLabel)
		return true, nil

	case ast.Match:
		if _, err := ctx.codegenMatch(node); err != nil {
			return false, err
		}
		return ctx.terminated(), nil

	default:
		if _, err := ctx.codegenExpr(node); err != nil {
			return false, err
		}
		return ctx.terminated(), nil
	}
}

func (ctx *Context) codegenVarDecl(node *ast.Node) error {
	d := node.Data.(ast.VarDeclNode)
	src, err := ctx.typeOf(node)
	if err != nil {
		return err
	}
	lt, err := ctx.lowerType(src, node.Tok)
	if err != nil {
		return err
	}
	slot := ctx.alloca(ctx.lower.SizeOf(lt), ctx.lower.AlignOf(lt))

	if d.Init == nil {
		if layout.IsAggregate(lt) {
			ctx.memset(slot, ctx.lower.SizeOf(lt))
		} else {
			zero, err := ctx.zeroValue(src, node.Tok)
			if err != nil {
				return err
			}
			ctx.storeValue(slot, zero, lt)
		}
	} else {
		val, err := ctx.codegenExpr(d.Init)
		if err != nil {
			return err
		}
		ctx.storeValue(slot, val, lt)
		if src.IsSum() {
			ctx.generics.TrackSum(src)
		}
	}
	ctx.addSymbol(d.Name, slot, src, lt, d.Mutable)
	return nil
}

func (ctx *Context) codegenReturn(node *ast.Node) error {
	d := node.Data.(ast.ReturnNode)
	if d.Expr == nil {
		return ctx.emitFallOffReturn(node.Tok)
	}
	val, err := ctx.codegenExpr(d.Expr)
	if err != nil {
		return err
	}
	if ctx.terminated() {
		return nil
	}
	ctx.emitReturn(val, ctx.currentSig.Return, node.Tok)
	return nil
}

// emitReturn returns val from the current function. Aggregates are copied
// into the caller's result slot.
func (ctx *Context) emitReturn(val ir.Value, src *ast.Type, tok token.Token) {
	if ctx.currentFunc.SRet {
		lt, _ := ctx.lower.Lower(src)
		ctx.blit(val, ctx.retPtr, ctx.lower.SizeOf(lt))
		ctx.addInstr(&ir.Instruction{Op: ir.OpRet})
		return
	}
	if src.IsVoid() {
		ctx.addInstr(&ir.Instruction{Op: ir.OpRet})
		return
	}
	ctx.addInstr(&ir.Instruction{Op: ir.OpRet, Args: []ir.Value{val}})
}

func (ctx *Context) codegenIf(node *ast.Node) (bool, error) {
	d := node.Data.(ast.IfNode)
	thenL, endL := ctx.newLabel(), ctx.newLabel()
	elseL := endL
	if d.ElseBody != nil {
		elseL = ctx.newLabel()
	}

	if err := ctx.codegenLogicalCond(d.Cond, thenL, elseL); err != nil {
		return false, err
	}

	ctx.startBlock(thenL)
	thenTerm, err := ctx.codegenStmt(d.ThenBody)
	if err != nil {
		return false, err
	}
	if !ctx.terminated() {
		ctx.jmp(endL)
	}

	elseTerm := false
	if d.ElseBody != nil {
		ctx.startBlock(elseL)
		if elseTerm, err = ctx.codegenStmt(d.ElseBody); err != nil {
			return false, err
		}
		if !ctx.terminated() {
			ctx.jmp(endL)
		}
	}

	if thenTerm && elseTerm {
		return true, nil
	}
	ctx.startBlock(endL)
	return false, nil
}

func (ctx *Context) codegenWhile(node *ast.Node) error {
	d := node.Data.(ast.WhileNode)
	startL, bodyL, endL := ctx.newLabel(), ctx.newLabel(), ctx.newLabel()

	oldBreak, oldContinue := ctx.breakLabel, ctx.continueLabel
	ctx.breakLabel, ctx.continueLabel = endL, startL
	defer func() { ctx.breakLabel, ctx.continueLabel = oldBreak, oldContinue }()

	ctx.startBlock(startL)
	if err := ctx.codegenLogicalCond(d.Cond, bodyL, endL); err != nil {
		return err
	}

	ctx.startBlock(bodyL)
	if _, err := ctx.codegenStmt(d.Body); err != nil {
		return err
	}
	if !ctx.terminated() {
		ctx.jmp(startL)
	}

	ctx.startBlock(endL)
	return nil
}

func (ctx *Context) codegenLogicalCond(node *ast.Node, trueL, falseL *ir.Label) error {
	if node.Type == ast.BinaryOp {
		d := node.Data.(ast.BinaryOpNode)
		if d.Op == token.OrOr {
			newFalseL := ctx.newLabel()
			if err := ctx.codegenLogicalCond(d.Left, trueL, newFalseL); err != nil {
				return err
			}
			ctx.startBlock(newFalseL)
			return ctx.codegenLogicalCond(d.Right, trueL, falseL)
		}
		if d.Op == token.AndAnd {
			newTrueL := ctx.newLabel()
			if err := ctx.codegenLogicalCond(d.Left, newTrueL, falseL); err != nil {
				return err
			}
			ctx.startBlock(newTrueL)
			return ctx.codegenLogicalCond(d.Right, trueL, falseL)
		}
	}
	if node.Type == ast.UnaryOp && node.Data.(ast.UnaryOpNode).Op == token.Not {
		return ctx.codegenLogicalCond(node.Data.(ast.UnaryOpNode).Expr, falseL, trueL)
	}

	condVal, err := ctx.codegenExpr(node)
	if err != nil {
		return err
	}
	ctx.jnz(condVal, trueL, falseL)
	return nil
}
