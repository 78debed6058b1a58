package codegen

import (
	"github.com/Zeeeepa/lynlang-sub004/pkg/ast"
	"github.com/Zeeeepa/lynlang-sub004/pkg/config"
	"github.com/Zeeeepa/lynlang-sub004/pkg/ir"
	"github.com/Zeeeepa/lynlang-sub004/pkg/layout"
	"github.com/Zeeeepa/lynlang-sub004/pkg/token"
	"github.com/Zeeeepa/lynlang-sub004/pkg/util"
)

// codegenRaise expands recv.raise() into
//
//	raise.check.N: jnz disc == 0, raise.ok.N, raise.err.N
//	raise.ok.N:    load payload, jmp raise.cont.N
//	raise.err.N:   early return
//	raise.cont.N:  the unwrapped value
func (ctx *Context) codegenRaise(node *ast.Node) (ir.Value, error) {
	recv := node.Data.(ast.MethodCallNode).Recv
	h, err := ctx.codegenExpr(recv)
	if err != nil {
		return nil, err
	}
	if ctx.terminated() {
		return &ir.Const{Value: 0}, nil
	}

	src := ctx.inferSumType(recv)
	if !src.IsSum() {
		return nil, util.Errorf(util.ErrUnsupportedRaiseTarget, node.Tok,
			"cannot raise a value of type '%s', expected Result or Option", src)
	}

	ctx.generics.Push()
	ctx.generics.TrackSum(src)

	n := ctx.nextSite()
	checkL := siteLabel("raise", "check", n)
	okL := siteLabel("raise", "ok", n)
	errL := siteLabel("raise", "err", n)
	contL := siteLabel("raise", "cont", n)

	ctx.startBlock(checkL)
	disc := ctx.getDiscriminant(h)
	ctx.jnz(ctx.compare(ir.OpCEq, ir.TypeL, disc, &ir.Const{Value: layout.OkTag}), okL, errL)

	ctx.startBlock(okL)
	slot := pick(src.IsResult(), SlotResultOk, SlotOptionSome)
	b, err := ctx.payloadBinding(slot, node.Tok)
	if err != nil {
		ctx.generics.Pop()
		return nil, err
	}
	val := ctx.getPayload(h, ctx.shapeOf(b.Concrete))
	ctx.jmp(contL)

	ctx.startBlock(errL)
	if err := ctx.raiseErrorPath(h, src, node.Tok); err != nil {
		ctx.generics.Pop()
		return nil, err
	}

	ctx.startBlock(contL)
	ctx.generics.Pop()

	// The next consumer in the chain reads the extracted payload's own
	// Ok/Err types from the enclosing frame.
	ctx.generics.Track(SlotLastExtracted, b)
	if b.Source.IsSum() {
		ctx.generics.TrackSum(b.Source)
	}
	return val, nil
}

// inferSumType finds the sum type of a raise operand from the shape of the
// expression, before falling back to the checker's answer.
func (ctx *Context) inferSumType(node *ast.Node) *ast.Type {
	switch node.Type {
	case ast.FuncCall:
		name := node.Data.(ast.FuncCallNode).Name
		if sym := ctx.findSymbol(name); sym != nil && sym.Src != nil && sym.Src.Kind == ast.TYPE_FUNC {
			if sym.Src.Return.IsSum() {
				return sym.Src.Return
			}
		} else if sig, ok := ctx.sigs[name]; ok && sig.Return.IsSum() {
			return sig.Return
		}
	case ast.Ident:
		if sym := ctx.findSymbol(node.Data.(ast.IdentNode).Name); sym != nil && sym.Src.IsSum() {
			return sym.Src
		}
	case ast.MethodCall:
		d := node.Data.(ast.MethodCallNode)
		switch d.Method {
		case "raise":
			if inner := ctx.inferSumType(d.Recv).OkType(); inner.IsSum() {
				return inner
			}
			if b, ok := ctx.generics.Lookup(SlotLastExtracted); ok && b.Source.IsSum() {
				return b.Source
			}
		case "get", "pop":
			if t, err := ctx.typeOf(d.Recv); err == nil && t.IsArray() {
				return ast.NewOption(t.Elem())
			}
		}
	case ast.Variant:
		if node.Typ.IsSum() {
			return node.Typ
		}
	}
	t, err := ctx.typeOf(node)
	if err != nil {
		return nil
	}
	return t
}

// raiseErrorPath returns early from the enclosing function. What is returned
// depends on the function's declared return type.
func (ctx *Context) raiseErrorPath(h ir.Value, src *ast.Type, tok token.Token) error {
	ret := ctx.currentSig.Return
	switch {
	case ret.IsResult():
		errSrc := ret.ErrType()
		elt, err := ctx.lowerType(errSrc, tok)
		if err != nil {
			return err
		}
		var out ir.Value
		if src.IsOption() {
			out = ctx.makeErrZero(ctx.shapeOf(elt))
		} else {
			b, err := ctx.payloadBinding(SlotResultErr, tok)
			if err != nil {
				return err
			}
			payload := ctx.getPayload(h, ctx.shapeOf(b.Concrete))
			if b.Source != nil && (b.Source.IsNumeric() && errSrc.IsNumeric()) && !ast.Equal(b.Source, errSrc) {
				if payload, err = ctx.castValue(payload, b.Source, errSrc, tok); err != nil {
					return err
				}
			}
			out = ctx.makeErr(payload, ctx.shapeOf(elt))
		}
		ctx.emitReturn(out, ret, tok)

	case ret.IsOption():
		slt, err := ctx.lowerType(ret.OkType(), tok)
		if err != nil {
			return err
		}
		ctx.emitReturn(ctx.makeNone(ctx.shapeOf(slt)), ret, tok)

	case ret.IsVoid():
		ctx.addInstr(&ir.Instruction{Op: ir.OpRet})

	default:
		lt, err := ctx.lowerType(ret, tok)
		if err != nil {
			return err
		}
		if layout.IsAggregate(lt) {
			ctx.memset(ctx.retPtr, ctx.lower.SizeOf(lt))
			ctx.addInstr(&ir.Instruction{Op: ir.OpRet})
			return nil
		}
		if ctx.cfg.IsFeatureEnabled(config.FeatStrictRaise) {
			return util.Errorf(util.ErrUnsupportedRaiseTarget, tok,
				"raise inside function '%s' returning '%s' has no error value to return", ctx.currentSig.Name, ret)
		}
		util.Warn(ctx.cfg, config.WarnRaiseSentinel, tok,
			"Function '%s' returns '%s', the error path returns 1", ctx.currentSig.Name, ret)
		var sentinel ir.Value = &ir.Const{Value: 1}
		if f, ok := lt.(*layout.Float); ok {
			sentinel = &ir.FloatConst{Value: 1, Typ: regTypeOf(f)}
		}
		ctx.addInstr(&ir.Instruction{Op: ir.OpRet, Args: []ir.Value{sentinel}})
	}
	return nil
}
