package codegen

import (
	"github.com/Zeeeepa/lynlang-sub004/pkg/ast"
	"github.com/Zeeeepa/lynlang-sub004/pkg/ir"
	"github.com/Zeeeepa/lynlang-sub004/pkg/layout"
	"github.com/Zeeeepa/lynlang-sub004/pkg/util"
)

func (ctx *Context) codegenMethodCall(node *ast.Node) (ir.Value, error) {
	d := node.Data.(ast.MethodCallNode)
	switch d.Method {
	case "raise":
		return ctx.codegenRaise(node)
	case "get":
		return ctx.codegenGet(node)
	case "pop":
		return ctx.codegenPop(node)
	case "push":
		return ctx.codegenPush(node)
	case "len":
		c, err := ctx.container(d.Recv)
		if err != nil {
			return nil, err
		}
		return ctx.load(c.lenAddr, ir.TypeL), nil
	case "is_ok", "is_some", "is_err", "is_none":
		h, err := ctx.codegenExpr(d.Recv)
		if err != nil {
			return nil, err
		}
		op := pick(d.Method == "is_ok" || d.Method == "is_some", ir.OpCEq, ir.OpCNeq)
		return ctx.compare(op, ir.TypeL, ctx.getDiscriminant(h), &ir.Const{Value: layout.OkTag}), nil
	}
	return nil, util.Errorf(util.ErrType, node.Tok, "unknown method '%s'", d.Method)
}

// containerRef addresses the fields of one Array record.
type containerRef struct {
	base     ir.Value
	dataAddr ir.Value
	lenAddr  ir.Value
	capAddr  ir.Value
	elem     layout.Type
	elemSize int64
}

func (ctx *Context) container(recv *ast.Node) (*containerRef, error) {
	src, err := ctx.typeOf(recv)
	if err != nil {
		return nil, err
	}
	if !src.IsArray() {
		return nil, util.Errorf(util.ErrTypeMismatch, recv.Tok, "expected an Array, found '%s'", src)
	}
	elt, err := ctx.lowerType(src.Elem(), recv.Tok)
	if err != nil {
		return nil, err
	}
	base, err := ctx.codegenExpr(recv)
	if err != nil {
		return nil, err
	}
	return ctx.containerAt(base, elt), nil
}

func (ctx *Context) containerAt(base ir.Value, elt layout.Type) *containerRef {
	st := ctx.lower.Container(ast.ArrayName)
	field := func(name string) ir.Value {
		f, _ := st.Field(name)
		return ctx.offset(base, f.Offset)
	}
	return &containerRef{
		base:     base,
		dataAddr: field("data"),
		lenAddr:  field("len"),
		capAddr:  field("cap"),
		elem:     elt,
		elemSize: ctx.lower.SizeOf(elt),
	}
}

// elemAddr is data + i*elemSize, with i an l value.
func (ctx *Context) elemAddr(data, i ir.Value, size int64) ir.Value {
	off := ir.Value(ctx.binop(ir.OpMul, ir.TypeL, i, &ir.Const{Value: size}))
	if ctx.wordSize == 4 {
		off = ctx.convert(ir.OpTrunc, ir.TypeW, ir.TypeL, off)
	}
	return ctx.binop(ir.OpAdd, ir.TypePtr, data, off)
}

// codegenGet builds Some(elem) for 0 <= i < len and None otherwise. Both
// paths produce a union handle and meet in a phi.
func (ctx *Context) codegenGet(node *ast.Node) (ir.Value, error) {
	d := node.Data.(ast.MethodCallNode)
	c, err := ctx.container(d.Recv)
	if err != nil {
		return nil, err
	}
	idx, err := ctx.codegenExpr(d.Args[0])
	if err != nil {
		return nil, err
	}
	idxSrc, err := ctx.typeOf(d.Args[0])
	if err != nil {
		return nil, err
	}
	if idxSrc.Bits < 64 {
		if _, isConst := idx.(*ir.Const); !isConst {
			idx = ctx.convert(pick(idxSrc.Signed, ir.OpExtSW, ir.OpExtUW), ir.TypeL, ir.TypeW, idx)
		}
	}

	n := ctx.nextSite()
	someL, noneL, endL := siteLabel("get", "some", n), siteLabel("get", "none", n), siteLabel("get", "end", n)
	shape := ctx.shapeOf(c.elem)

	length := ctx.load(c.lenAddr, ir.TypeL)
	// A negative index compares above any length when read unsigned.
	inBounds := ctx.compare(ir.OpCULt, ir.TypeL, idx, length)
	ctx.jnz(inBounds, someL, noneL)

	ctx.startBlock(someL)
	data := ctx.load(c.dataAddr, ir.TypePtr)
	v := ctx.loadValue(ctx.elemAddr(data, idx, c.elemSize), c.elem)
	some := ctx.makeSome(v, shape)
	someEnd := ctx.blockLabel()
	ctx.jmp(endL)

	ctx.startBlock(noneL)
	none := ctx.makeNone(shape)
	noneEnd := ctx.blockLabel()
	ctx.jmp(endL)

	ctx.startBlock(endL)
	res := ctx.newTemp()
	ctx.addInstr(&ir.Instruction{Op: ir.OpPhi, Typ: ir.TypePtr, Result: res, Args: []ir.Value{someEnd, some, noneEnd, none}})
	return res, nil
}

// codegenPop removes the last element. The length is decremented once,
// after the element address is computed and before the element is read.
func (ctx *Context) codegenPop(node *ast.Node) (ir.Value, error) {
	c, err := ctx.container(node.Data.(ast.MethodCallNode).Recv)
	if err != nil {
		return nil, err
	}

	n := ctx.nextSite()
	someL, noneL, endL := siteLabel("pop", "some", n), siteLabel("pop", "none", n), siteLabel("pop", "end", n)
	shape := ctx.shapeOf(c.elem)

	length := ctx.load(c.lenAddr, ir.TypeL)
	empty := ctx.compare(ir.OpCEq, ir.TypeL, length, &ir.Const{Value: 0})
	ctx.jnz(empty, noneL, someL)

	ctx.startBlock(someL)
	newLen := ctx.binop(ir.OpSub, ir.TypeL, length, &ir.Const{Value: 1})
	data := ctx.load(c.dataAddr, ir.TypePtr)
	addr := ctx.elemAddr(data, newLen, c.elemSize)
	ctx.store(c.lenAddr, newLen, ir.TypeL)
	v := ctx.loadValue(addr, c.elem)
	some := ctx.makeSome(v, shape)
	someEnd := ctx.blockLabel()
	ctx.jmp(endL)

	ctx.startBlock(noneL)
	none := ctx.makeNone(shape)
	noneEnd := ctx.blockLabel()
	ctx.jmp(endL)

	ctx.startBlock(endL)
	res := ctx.newTemp()
	ctx.addInstr(&ir.Instruction{Op: ir.OpPhi, Typ: ir.TypePtr, Result: res, Args: []ir.Value{someEnd, some, noneEnd, none}})
	return res, nil
}

// codegenPush appends one element, doubling the buffer when it is full.
func (ctx *Context) codegenPush(node *ast.Node) (ir.Value, error) {
	d := node.Data.(ast.MethodCallNode)
	c, err := ctx.container(d.Recv)
	if err != nil {
		return nil, err
	}
	v, err := ctx.codegenExpr(d.Args[0])
	if err != nil {
		return nil, err
	}

	growL, storeL := ctx.newLabel(), ctx.newLabel()
	length := ctx.load(c.lenAddr, ir.TypeL)
	capacity := ctx.load(c.capAddr, ir.TypeL)
	ctx.jnz(ctx.compare(ir.OpCEq, ir.TypeL, length, capacity), growL, storeL)

	ctx.startBlock(growL)
	wasEmpty := ctx.convert(ir.OpExtUW, ir.TypeL, ir.TypeW, ctx.compare(ir.OpCEq, ir.TypeL, capacity, &ir.Const{Value: 0}))
	newCap := ctx.binop(ir.OpAdd, ir.TypeL,
		ctx.binop(ir.OpMul, ir.TypeL, capacity, &ir.Const{Value: 2}),
		ctx.binop(ir.OpMul, ir.TypeL, wasEmpty, &ir.Const{Value: 4}))
	buf := ctx.malloc(ctx.binop(ir.OpMul, ir.TypeL, newCap, &ir.Const{Value: c.elemSize}))
	old := ctx.load(c.dataAddr, ir.TypePtr)
	ctx.memcpy(buf, old, ctx.binop(ir.OpMul, ir.TypeL, length, &ir.Const{Value: c.elemSize}))
	ctx.store(c.dataAddr, buf, ir.TypePtr)
	ctx.store(c.capAddr, newCap, ir.TypeL)
	ctx.jmp(storeL)

	ctx.startBlock(storeL)
	data := ctx.load(c.dataAddr, ir.TypePtr)
	ctx.storeValue(ctx.elemAddr(data, length, c.elemSize), v, c.elem)
	ctx.store(c.lenAddr, ctx.binop(ir.OpAdd, ir.TypeL, length, &ir.Const{Value: 1}), ir.TypeL)
	return &ir.Const{Value: 0}, nil
}

func (ctx *Context) codegenArrayLiteral(node *ast.Node) (ir.Value, error) {
	elems := node.Data.(ast.ArrayLiteralNode).Elems
	src, err := ctx.typeOf(node)
	if err != nil {
		return nil, err
	}
	elt, err := ctx.lowerType(src.Elem(), node.Tok)
	if err != nil {
		return nil, err
	}
	st := ctx.lower.Container(ast.ArrayName)
	slot := ctx.alloca(st.Size, st.Align)
	c := ctx.containerAt(slot, elt)

	count := int64(len(elems))
	var data ir.Value = &ir.Const{Value: 0}
	if count > 0 {
		data = ctx.malloc(&ir.Const{Value: count * c.elemSize})
		for i, e := range elems {
			v, err := ctx.codegenExpr(e)
			if err != nil {
				return nil, err
			}
			ctx.storeValue(ctx.offset(data, int64(i)*c.elemSize), v, elt)
		}
	}
	ctx.store(c.dataAddr, data, ir.TypePtr)
	ctx.store(c.lenAddr, &ir.Const{Value: count}, ir.TypeL)
	ctx.store(c.capAddr, &ir.Const{Value: count}, ir.TypeL)
	return slot, nil
}
