package codegen

import (
	"github.com/Zeeeepa/lynlang-sub004/pkg/ast"
	"github.com/Zeeeepa/lynlang-sub004/pkg/ir"
	"github.com/Zeeeepa/lynlang-sub004/pkg/layout"
	"github.com/Zeeeepa/lynlang-sub004/pkg/token"
	"github.com/Zeeeepa/lynlang-sub004/pkg/util"
)

// regTypeOf is the register class a value of lt is held in. Aggregates are
// held as the address of their storage.
func regTypeOf(lt layout.Type) ir.Type {
	switch t := lt.(type) {
	case *layout.Int:
		if t.Bits == 64 {
			return ir.TypeL
		}
		return ir.TypeW
	case *layout.Bool:
		return ir.TypeW
	case *layout.Float:
		if t.Bits == 32 {
			return ir.TypeS
		}
		return ir.TypeD
	case *layout.Pointer, *layout.Function, *layout.Struct, *layout.TaggedUnion:
		return ir.TypePtr
	case *layout.Void:
		return ir.TypeNone
	}
	panic("codegen: unknown layout type")
}

// memTypeOf is the load type of a scalar in memory.
func memTypeOf(lt layout.Type) ir.Type {
	switch t := lt.(type) {
	case *layout.Int:
		switch t.Bits {
		case 8:
			return pick(t.Signed, ir.TypeSB, ir.TypeUB)
		case 16:
			return pick(t.Signed, ir.TypeSH, ir.TypeUH)
		}
	case *layout.Bool:
		return ir.TypeUB
	}
	return regTypeOf(lt)
}

// storeTypeOf drops the signedness a store does not need.
func storeTypeOf(mem ir.Type) ir.Type {
	switch mem {
	case ir.TypeSB, ir.TypeUB:
		return ir.TypeB
	case ir.TypeSH, ir.TypeUH:
		return ir.TypeH
	}
	return mem
}

func pick[T any](cond bool, a, b T) T {
	if cond {
		return a
	}
	return b
}

func (ctx *Context) regType(src *ast.Type, tok token.Token) (ir.Type, error) {
	lt, err := ctx.lowerType(src, tok)
	if err != nil {
		return ir.TypeNone, err
	}
	return regTypeOf(lt), nil
}

func (ctx *Context) binop(op ir.Op, typ ir.Type, a, b ir.Value) *ir.Temporary {
	res := ctx.newTemp()
	ctx.addInstr(&ir.Instruction{Op: op, Typ: typ, Result: res, Args: []ir.Value{a, b}})
	return res
}

func (ctx *Context) compare(op ir.Op, operand ir.Type, a, b ir.Value) *ir.Temporary {
	res := ctx.newTemp()
	ctx.addInstr(&ir.Instruction{Op: op, Typ: ir.TypeW, OperandType: operand, Result: res, Args: []ir.Value{a, b}})
	return res
}

func (ctx *Context) convert(op ir.Op, to, from ir.Type, v ir.Value) *ir.Temporary {
	res := ctx.newTemp()
	ctx.addInstr(&ir.Instruction{Op: op, Typ: to, OperandType: from, Result: res, Args: []ir.Value{v}})
	return res
}

// offset returns base+off as an address.
func (ctx *Context) offset(base ir.Value, off int64) ir.Value {
	if off == 0 {
		return base
	}
	return ctx.binop(ir.OpAdd, ir.TypePtr, base, &ir.Const{Value: off})
}

func (ctx *Context) load(addr ir.Value, mem ir.Type) *ir.Temporary {
	res := ctx.newTemp()
	ctx.addInstr(&ir.Instruction{Op: ir.OpLoad, Typ: mem, Result: res, Args: []ir.Value{addr}})
	return res
}

func (ctx *Context) store(addr, val ir.Value, mem ir.Type) {
	ctx.addInstr(&ir.Instruction{Op: ir.OpStore, Typ: storeTypeOf(mem), Args: []ir.Value{val, addr}})
}

func (ctx *Context) blit(src, dst ir.Value, size int64) {
	if size == 0 {
		return
	}
	ctx.addInstr(&ir.Instruction{Op: ir.OpBlit, Args: []ir.Value{src, dst, &ir.Const{Value: size}}})
}

// loadValue reads a value of lt stored at addr. Aggregates are returned as
// the address itself.
func (ctx *Context) loadValue(addr ir.Value, lt layout.Type) ir.Value {
	switch lt.(type) {
	case *layout.Struct, *layout.TaggedUnion:
		return addr
	case *layout.Void:
		return &ir.Const{Value: 0}
	}
	return ctx.load(addr, memTypeOf(lt))
}

// storeValue writes val into addr. Aggregates are copied.
func (ctx *Context) storeValue(addr, val ir.Value, lt layout.Type) {
	switch lt.(type) {
	case *layout.Struct, *layout.TaggedUnion:
		ctx.blit(val, addr, ctx.lower.SizeOf(lt))
		return
	case *layout.Void:
		return
	}
	ctx.store(addr, val, memTypeOf(lt))
}

// normalize re-extends a sub-word integer held in a w register so that
// comparisons see its true value.
func (ctx *Context) normalize(v ir.Value, lt layout.Type) ir.Value {
	t, ok := lt.(*layout.Int)
	if !ok || t.Bits >= 32 {
		return v
	}
	if c, isConst := v.(*ir.Const); isConst {
		return &ir.Const{Value: truncConst(c.Value, t.Bits, t.Signed)}
	}
	var op ir.Op
	switch {
	case t.Bits == 8 && t.Signed:
		op = ir.OpExtSB
	case t.Bits == 8:
		op = ir.OpExtUB
	case t.Signed:
		op = ir.OpExtSH
	default:
		op = ir.OpExtUH
	}
	return ctx.convert(op, ir.TypeW, ir.TypeW, v)
}

func truncConst(v int64, bits int, signed bool) int64 {
	shift := 64 - bits
	if signed {
		return v << shift >> shift
	}
	return int64(uint64(v) << shift >> shift)
}

func (ctx *Context) callExtern(name string, ret ir.Type, args []ir.Value, argTypes []ir.Type) *ir.Temporary {
	ctx.useExtern(name)
	var res *ir.Temporary
	if ret != ir.TypeNone {
		res = ctx.newTemp()
	}
	ctx.addInstr(&ir.Instruction{Op: ir.OpCall, Typ: ret, Result: res, Args: append([]ir.Value{&ir.Global{Name: name}}, args...), ArgTypes: argTypes})
	return res
}

func (ctx *Context) malloc(size ir.Value) *ir.Temporary {
	return ctx.callExtern("malloc", ir.TypePtr, []ir.Value{size}, []ir.Type{ir.TypeL})
}

func (ctx *Context) memset(dst ir.Value, size int64) {
	ctx.callExtern("memset", ir.TypePtr, []ir.Value{dst, &ir.Const{Value: 0}, &ir.Const{Value: size}}, []ir.Type{ir.TypePtr, ir.TypeW, ir.TypeL})
}

func (ctx *Context) memcpy(dst, src, size ir.Value) {
	ctx.callExtern("memcpy", ir.TypePtr, []ir.Value{dst, src, size}, []ir.Type{ir.TypePtr, ir.TypePtr, ir.TypeL})
}

var runtimeExterns = map[string]*ir.Extern{
	"malloc":    {Name: "malloc", Params: []ir.Type{ir.TypeL}, Ret: ir.TypePtr},
	"memset":    {Name: "memset", Params: []ir.Type{ir.TypePtr, ir.TypeW, ir.TypeL}, Ret: ir.TypePtr},
	"memcpy":    {Name: "memcpy", Params: []ir.Type{ir.TypePtr, ir.TypePtr, ir.TypeL}, Ret: ir.TypePtr},
	"print_i64": {Name: "print_i64", Params: []ir.Type{ir.TypeL}},
	"print_f64": {Name: "print_f64", Params: []ir.Type{ir.TypeD}},
	"print_str": {Name: "print_str", Params: []ir.Type{ir.TypePtr}},
}

// RuntimeSignatures lists the C primitives every lyn program may call.
func RuntimeSignatures() map[string]*Signature {
	ptr := ast.NewPointer(ast.TypeU8, ast.OwnNone)
	return map[string]*Signature{
		"malloc":    {Name: "malloc", Params: []*ast.Type{ast.TypeI64}, Return: ptr, Extern: true},
		"memset":    {Name: "memset", Params: []*ast.Type{ptr, ast.TypeI32, ast.TypeI64}, Return: ptr, Extern: true},
		"memcpy":    {Name: "memcpy", Params: []*ast.Type{ptr, ptr, ast.TypeI64}, Return: ptr, Extern: true},
		"print_i64": {Name: "print_i64", Params: []*ast.Type{ast.TypeI64}, Return: ast.TypeVoid, Extern: true},
		"print_f64": {Name: "print_f64", Params: []*ast.Type{ast.TypeF64}, Return: ast.TypeVoid, Extern: true},
		"print_str": {Name: "print_str", Params: []*ast.Type{ast.TypeString}, Return: ast.TypeVoid, Extern: true},
	}
}

// useExtern records that the program references an external function.
func (ctx *Context) useExtern(name string) {
	if ctx.prog.FindExtern(name) != nil {
		return
	}
	if e, ok := runtimeExterns[name]; ok {
		ctx.prog.Externs = append(ctx.prog.Externs, e)
		return
	}
	sig := ctx.sigs[name]
	e := &ir.Extern{Name: name}
	for _, p := range sig.Params {
		lt, _ := ctx.lower.Lower(p)
		e.Params = append(e.Params, regTypeOf(lt))
	}
	if !sig.Return.IsVoid() {
		lt, _ := ctx.lower.Lower(sig.Return)
		e.Ret = regTypeOf(lt)
	}
	ctx.prog.Externs = append(ctx.prog.Externs, e)
}

// zeroValue is the zero of a scalar type, or a zeroed slot for aggregates.
func (ctx *Context) zeroValue(src *ast.Type, tok token.Token) (ir.Value, error) {
	lt, err := ctx.lowerType(src, tok)
	if err != nil {
		return nil, err
	}
	switch lt := lt.(type) {
	case *layout.Float:
		return &ir.FloatConst{Value: 0, Typ: regTypeOf(lt)}, nil
	case *layout.Struct, *layout.TaggedUnion:
		slot := ctx.alloca(ctx.lower.SizeOf(lt), ctx.lower.AlignOf(lt))
		ctx.memset(slot, ctx.lower.SizeOf(lt))
		return slot, nil
	}
	return &ir.Const{Value: 0}, nil
}

func (ctx *Context) codegenExpr(node *ast.Node) (ir.Value, error) {
	if node == nil {
		return &ir.Const{Value: 0}, nil
	}

	switch node.Type {
	case ast.Number:
		v := node.Data.(ast.NumberNode).Value
		if node.Typ.IsFloat() {
			return &ir.FloatConst{Value: float64(v), Typ: pick(node.Typ.Bits == 32, ir.TypeS, ir.TypeD)}, nil
		}
		return &ir.Const{Value: v}, nil
	case ast.FloatNumber:
		typ := pick(node.Typ != nil && node.Typ.Bits == 32, ir.TypeS, ir.TypeD)
		return &ir.FloatConst{Value: node.Data.(ast.FloatNumberNode).Value, Typ: typ}, nil
	case ast.String:
		return ctx.addString(node.Data.(ast.StringNode).Value), nil
	case ast.Bool:
		return &ir.Const{Value: int64(pick(node.Data.(ast.BoolNode).Value, 1, 0))}, nil
	case ast.Ident:
		return ctx.codegenIdent(node)
	case ast.Assign:
		return ctx.codegenAssign(node)
	case ast.BinaryOp:
		return ctx.codegenBinaryOp(node)
	case ast.UnaryOp:
		return ctx.codegenUnaryOp(node)
	case ast.TypeCast:
		return ctx.codegenTypeCast(node)
	case ast.FuncCall:
		return ctx.codegenFuncCall(node)
	case ast.MethodCall:
		return ctx.codegenMethodCall(node)
	case ast.MemberAccess:
		return ctx.codegenMemberAccess(node)
	case ast.StructLiteral:
		return ctx.codegenStructLiteral(node)
	case ast.ArrayLiteral:
		return ctx.codegenArrayLiteral(node)
	case ast.Variant:
		return ctx.codegenVariant(node)
	case ast.Match:
		return ctx.codegenMatch(node)
	case ast.Block, ast.Return, ast.Break, ast.Continue:
		_, err := ctx.codegenStmt(node)
		return &ir.Const{Value: 0}, err
	}
	return nil, util.Errorf(util.ErrInternal, node.Tok, "unhandled expression in codegen: %v", node.Type)
}

func (ctx *Context) codegenIdent(node *ast.Node) (ir.Value, error) {
	name := node.Data.(ast.IdentNode).Name
	if sym := ctx.findSymbol(name); sym != nil {
		return ctx.loadValue(sym.Addr, sym.Layout), nil
	}
	if sig, ok := ctx.sigs[name]; ok {
		if sig.Extern {
			ctx.useExtern(name)
		}
		return &ir.Global{Name: name}, nil
	}
	return nil, util.Errorf(util.ErrInternal, node.Tok, "undefined name '%s' in codegen", name)
}

// codegenLvalue returns the address an assignment writes to and its layout.
func (ctx *Context) codegenLvalue(node *ast.Node) (ir.Value, layout.Type, error) {
	switch node.Type {
	case ast.Ident:
		name := node.Data.(ast.IdentNode).Name
		sym := ctx.findSymbol(name)
		if sym == nil {
			return nil, nil, util.Errorf(util.ErrInternal, node.Tok, "undefined name '%s' in codegen", name)
		}
		return sym.Addr, sym.Layout, nil
	case ast.MemberAccess:
		d := node.Data.(ast.MemberAccessNode)
		base, blt, err := ctx.codegenLvalue(d.Expr)
		if err != nil {
			return nil, nil, err
		}
		st, ok := blt.(*layout.Struct)
		if !ok {
			return nil, nil, util.Errorf(util.ErrType, node.Tok, "member access on non-struct value")
		}
		f, ok := st.Field(d.Member)
		if !ok {
			return nil, nil, util.Errorf(util.ErrType, node.Tok, "struct '%s' has no field '%s'", st.Name, d.Member)
		}
		return ctx.offset(base, f.Offset), f.Type, nil
	}
	return nil, nil, util.Errorf(util.ErrType, node.Tok, "expression is not assignable")
}

func (ctx *Context) codegenAssign(node *ast.Node) (ir.Value, error) {
	d := node.Data.(ast.AssignNode)
	rval, err := ctx.codegenExpr(d.Rhs)
	if err != nil {
		return nil, err
	}
	addr, lt, err := ctx.codegenLvalue(d.Lhs)
	if err != nil {
		return nil, err
	}
	ctx.storeValue(addr, rval, lt)
	return rval, nil
}

func binaryOp(op token.Type, t *ast.Type) ir.Op {
	unsigned := t.IsInteger() && !t.Signed
	if t.IsFloat() {
		switch op {
		case token.Plus:
			return ir.OpAddF
		case token.Minus:
			return ir.OpSubF
		case token.Star:
			return ir.OpMulF
		case token.Slash:
			return ir.OpDivF
		}
	}
	switch op {
	case token.Plus:
		return ir.OpAdd
	case token.Minus:
		return ir.OpSub
	case token.Star:
		return ir.OpMul
	case token.Slash:
		return pick(unsigned, ir.OpUDiv, ir.OpDiv)
	case token.Rem:
		return pick(unsigned, ir.OpURem, ir.OpRem)
	case token.EqEq:
		return ir.OpCEq
	case token.Neq:
		return ir.OpCNeq
	case token.Lt:
		return pick(unsigned, ir.OpCULt, ir.OpCLt)
	case token.Gt:
		return pick(unsigned, ir.OpCUGt, ir.OpCGt)
	case token.Lte:
		return pick(unsigned, ir.OpCULe, ir.OpCLe)
	case token.Gte:
		return pick(unsigned, ir.OpCUGe, ir.OpCGe)
	}
	return -1
}

func isComparison(op ir.Op) bool { return op >= ir.OpCEq && op <= ir.OpCUGe }

func (ctx *Context) codegenBinaryOp(node *ast.Node) (ir.Value, error) {
	d := node.Data.(ast.BinaryOpNode)
	if d.Op == token.OrOr || d.Op == token.AndAnd {
		trueL, falseL, endL := ctx.newLabel(), ctx.newLabel(), ctx.newLabel()
		if err := ctx.codegenLogicalCond(node, trueL, falseL); err != nil {
			return nil, err
		}
		ctx.startBlock(trueL)
		ctx.jmp(endL)
		ctx.startBlock(falseL)
		ctx.jmp(endL)
		ctx.startBlock(endL)
		res := ctx.newTemp()
		ctx.addInstr(&ir.Instruction{
			Op: ir.OpPhi, Typ: ir.TypeW, Result: res,
			Args: []ir.Value{trueL, &ir.Const{Value: 1}, falseL, &ir.Const{Value: 0}},
		})
		return res, nil
	}

	operand, err := ctx.typeOf(d.Left)
	if err != nil {
		return nil, err
	}
	l, err := ctx.codegenExpr(d.Left)
	if err != nil {
		return nil, err
	}
	r, err := ctx.codegenExpr(d.Right)
	if err != nil {
		return nil, err
	}
	lt, err := ctx.lowerType(operand, node.Tok)
	if err != nil {
		return nil, err
	}
	rt := regTypeOf(lt)
	op := binaryOp(d.Op, operand)
	if op < 0 {
		return nil, util.Errorf(util.ErrInternal, node.Tok, "unsupported binary operator '%s'", d.Op)
	}
	if isComparison(op) {
		return ctx.compare(op, rt, l, r), nil
	}
	return ctx.normalize(ctx.binop(op, rt, l, r), lt), nil
}

func (ctx *Context) codegenUnaryOp(node *ast.Node) (ir.Value, error) {
	d := node.Data.(ast.UnaryOpNode)
	val, err := ctx.codegenExpr(d.Expr)
	if err != nil {
		return nil, err
	}
	src, err := ctx.typeOf(d.Expr)
	if err != nil {
		return nil, err
	}
	lt, err := ctx.lowerType(src, node.Tok)
	if err != nil {
		return nil, err
	}
	rt := regTypeOf(lt)

	switch d.Op {
	case token.Minus:
		if src.IsFloat() {
			res := ctx.newTemp()
			ctx.addInstr(&ir.Instruction{Op: ir.OpNegF, Typ: rt, Result: res, Args: []ir.Value{val}})
			return res, nil
		}
		return ctx.normalize(ctx.binop(ir.OpSub, rt, &ir.Const{Value: 0}, val), lt), nil
	case token.Not:
		return ctx.compare(ir.OpCEq, rt, val, &ir.Const{Value: 0}), nil
	}
	return nil, util.Errorf(util.ErrInternal, node.Tok, "unsupported unary operator '%s'", d.Op)
}

func (ctx *Context) codegenTypeCast(node *ast.Node) (ir.Value, error) {
	d := node.Data.(ast.TypeCastNode)
	val, err := ctx.codegenExpr(d.Expr)
	if err != nil {
		return nil, err
	}
	from, err := ctx.typeOf(d.Expr)
	if err != nil {
		return nil, err
	}
	return ctx.castValue(val, from, d.TargetType, node.Tok)
}

// castValue converts a scalar between source types. The checker has already
// rejected every combination not handled here.
func (ctx *Context) castValue(val ir.Value, from, to *ast.Type, tok token.Token) (ir.Value, error) {
	flt, err := ctx.lowerType(from, tok)
	if err != nil {
		return nil, err
	}
	tlt, err := ctx.lowerType(to, tok)
	if err != nil {
		return nil, err
	}
	fr, tr := regTypeOf(flt), regTypeOf(tlt)
	fromSigned := from.IsInteger() && from.Signed

	switch {
	case ir.IsFloat(fr) && ir.IsFloat(tr):
		if fr == tr {
			return val, nil
		}
		return ctx.convert(ir.OpFToF, tr, fr, val), nil
	case ir.IsFloat(fr):
		op := pick(to.IsInteger() && !to.Signed, ir.OpFToUI, ir.OpFToSI)
		return ctx.normalize(ctx.convert(op, tr, fr, val), tlt), nil
	case ir.IsFloat(tr):
		var op ir.Op
		if fr == ir.TypeL {
			op = pick(fromSigned, ir.OpSLToF, ir.OpULToF)
		} else {
			op = pick(fromSigned, ir.OpSWToF, ir.OpUWToF)
		}
		return ctx.convert(op, tr, fr, val), nil
	}

	if c, ok := val.(*ir.Const); ok {
		if it, isInt := tlt.(*layout.Int); isInt {
			return &ir.Const{Value: truncConst(c.Value, it.Bits, it.Signed)}, nil
		}
		return c, nil
	}

	wide := func(t ir.Type) bool { return t == ir.TypeL || t == ir.TypePtr }
	switch {
	case !wide(fr) && wide(tr):
		val = ctx.convert(pick(fromSigned, ir.OpExtSW, ir.OpExtUW), tr, fr, val)
	case wide(fr) && !wide(tr):
		val = ctx.convert(ir.OpTrunc, tr, fr, val)
	case fr != tr:
		val = ctx.convert(ir.OpCopy, tr, fr, val)
	}
	return ctx.normalize(val, tlt), nil
}

func (ctx *Context) codegenFuncCall(node *ast.Node) (ir.Value, error) {
	d := node.Data.(ast.FuncCallNode)

	var callee ir.Value
	var params []*ast.Type
	var ret *ast.Type
	if sym := ctx.findSymbol(d.Name); sym != nil {
		callee = ctx.loadValue(sym.Addr, sym.Layout)
		params, ret = sym.Src.Params, sym.Src.Return
	} else if sig, ok := ctx.sigs[d.Name]; ok {
		if sig.Extern {
			ctx.useExtern(d.Name)
		}
		callee = &ir.Global{Name: d.Name}
		params, ret = sig.Params, sig.Return
	} else {
		return nil, util.Errorf(util.ErrInternal, node.Tok, "call to undefined function '%s'", d.Name)
	}

	var args []ir.Value
	var argTypes []ir.Type
	var result ir.Value

	retLt, err := ctx.lowerType(ret, node.Tok)
	if err != nil {
		return nil, err
	}
	sret := layout.IsAggregate(retLt)
	if sret {
		slot := ctx.alloca(ctx.lower.SizeOf(retLt), ctx.lower.AlignOf(retLt))
		args, argTypes, result = append(args, slot), append(argTypes, ir.TypePtr), slot
	}

	for i, a := range d.Args {
		v, err := ctx.codegenExpr(a)
		if err != nil {
			return nil, err
		}
		plt, err := ctx.lowerType(params[i], a.Tok)
		if err != nil {
			return nil, err
		}
		args, argTypes = append(args, v), append(argTypes, regTypeOf(plt))
	}

	instr := &ir.Instruction{Op: ir.OpCall, Args: append([]ir.Value{callee}, args...), ArgTypes: argTypes}
	if !sret && !ret.IsVoid() {
		res := ctx.newTemp()
		instr.Typ, instr.Result, result = regTypeOf(retLt), res, res
	}
	ctx.addInstr(instr)
	if result == nil {
		result = &ir.Const{Value: 0}
	}
	return result, nil
}

func (ctx *Context) codegenMemberAccess(node *ast.Node) (ir.Value, error) {
	d := node.Data.(ast.MemberAccessNode)
	if d.Expr.Type == ast.Ident && ctx.findSymbol(d.Expr.Data.(ast.IdentNode).Name) == nil {
		enum := d.Expr.Data.(ast.IdentNode).Name
		if v, ok := ctx.lower.Registry().EnumValue(enum, d.Member); ok {
			return &ir.Const{Value: v}, nil
		}
	}

	base, err := ctx.codegenExpr(d.Expr)
	if err != nil {
		return nil, err
	}
	src, err := ctx.typeOf(d.Expr)
	if err != nil {
		return nil, err
	}
	lt, err := ctx.lowerType(src, node.Tok)
	if err != nil {
		return nil, err
	}
	st, ok := lt.(*layout.Struct)
	if !ok {
		return nil, util.Errorf(util.ErrType, node.Tok, "member access on non-struct type '%s'", src)
	}
	f, ok := st.Field(d.Member)
	if !ok {
		return nil, util.Errorf(util.ErrType, node.Tok, "struct '%s' has no field '%s'", st.Name, d.Member)
	}
	return ctx.loadValue(ctx.offset(base, f.Offset), f.Type), nil
}

func (ctx *Context) codegenStructLiteral(node *ast.Node) (ir.Value, error) {
	d := node.Data.(ast.StructLiteralNode)
	st, err := ctx.lower.Struct(d.Name)
	if err != nil {
		return nil, util.Wrap(util.ErrType, node.Tok, err)
	}
	slot := ctx.alloca(st.Size, st.Align)
	for i, name := range d.Fields {
		f, _ := st.Field(name)
		v, err := ctx.codegenExpr(d.Values[i])
		if err != nil {
			return nil, err
		}
		ctx.storeValue(ctx.offset(slot, f.Offset), v, f.Type)
	}
	return slot, nil
}
