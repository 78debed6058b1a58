package codegen

import (
	"fmt"

	"github.com/Zeeeepa/lynlang-sub004/pkg/ast"
	"github.com/Zeeeepa/lynlang-sub004/pkg/config"
	"github.com/Zeeeepa/lynlang-sub004/pkg/ir"
	"github.com/Zeeeepa/lynlang-sub004/pkg/layout"
	"github.com/Zeeeepa/lynlang-sub004/pkg/util"
)

func armLabel(part string, n, i int) *ir.Label {
	return &ir.Label{Name: fmt.Sprintf("match.%s.%d.%d", part, n, i)}
}

// codegenMatch tests the arms in order against a scrutinee evaluated once.
// A match with a non-void type yields its value through a phi at
// match.end.N; if no arm matches it yields the zero value.
func (ctx *Context) codegenMatch(node *ast.Node) (ir.Value, error) {
	d := node.Data.(ast.MatchNode)
	scrutSrc, err := ctx.typeOf(d.Expr)
	if err != nil {
		return nil, err
	}
	slt, err := ctx.lowerType(scrutSrc, d.Expr.Tok)
	if err != nil {
		return nil, err
	}
	scrut, err := ctx.codegenExpr(d.Expr)
	if err != nil {
		return nil, err
	}

	valueMode := !node.Typ.IsVoid()
	var resType ir.Type
	if valueMode {
		if resType, err = ctx.regType(node.Typ, node.Tok); err != nil {
			return nil, err
		}
	}

	n := ctx.nextSite()
	endL := siteLabel("match", "end", n)
	var incoming []ir.Value

	for i, arm := range d.Arms {
		a := arm.Data.(ast.MatchArmNode)
		bodyL, nextL := armLabel("arm", n, i), armLabel("next", n, i)

		ctx.generics.Push()
		ctx.enterScope()
		if scrutSrc.IsSum() {
			ctx.generics.TrackSum(scrutSrc)
		}

		err := ctx.compilePattern(a.Pattern, scrut, scrutSrc, slt, nextL)
		if err == nil {
			if a.Guard != nil {
				err = ctx.codegenLogicalCond(a.Guard, bodyL, nextL)
			} else {
				ctx.jmp(bodyL)
			}
		}
		var v ir.Value
		if err == nil {
			ctx.startBlock(bodyL)
			v, err = ctx.codegenArmBody(a.Body, valueMode)
		}
		if err == nil && !ctx.terminated() {
			if valueMode {
				if v == nil {
					v, err = ctx.zeroValue(node.Typ, a.Body.Tok)
				}
				incoming = append(incoming, ctx.blockLabel(), v)
			}
			ctx.jmp(endL)
		}

		ctx.exitScope()
		ctx.generics.Pop()
		if err != nil {
			return nil, err
		}
		ctx.startBlock(nextL)
	}

	if valueMode {
		zero, err := ctx.zeroValue(node.Typ, node.Tok)
		if err != nil {
			return nil, err
		}
		incoming = append(incoming, ctx.blockLabel(), zero)
	}
	ctx.jmp(endL)
	ctx.startBlock(endL)

	if !valueMode {
		return &ir.Const{Value: 0}, nil
	}
	res := ctx.newTemp()
	ctx.addInstr(&ir.Instruction{Op: ir.OpPhi, Typ: resType, Result: res, Args: incoming})
	return res, nil
}

func isExpression(node *ast.Node) bool { return node.Type <= ast.TypeCast }

// codegenArmBody compiles an arm body. In value mode the value of a block
// is its trailing expression.
func (ctx *Context) codegenArmBody(body *ast.Node, valueMode bool) (ir.Value, error) {
	if body.Type != ast.Block {
		if !valueMode || !isExpression(body) {
			_, err := ctx.codegenStmt(body)
			return nil, err
		}
		return ctx.codegenExpr(body)
	}

	ctx.enterScope()
	defer ctx.exitScope()
	stmts := body.Data.(ast.BlockNode).Stmts
	for i, stmt := range stmts {
		if ctx.terminated() {
			util.Warn(ctx.cfg, config.WarnUnreachableCode, stmt.Tok, "Unreachable code")
			break
		}
		if valueMode && i == len(stmts)-1 && isExpression(stmt) {
			return ctx.codegenExpr(stmt)
		}
		if _, err := ctx.codegenStmt(stmt); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

// compilePattern tests val against pat, jumping to failL when it does not
// match. On success control continues in the open block with the pattern's
// bindings installed in the current scope.
func (ctx *Context) compilePattern(pat *ast.Node, val ir.Value, src *ast.Type, lt layout.Type, failL *ir.Label) error {
	switch pat.Type {
	case ast.WildcardPattern:
		return nil

	case ast.BindingPattern:
		if src == nil {
			src = pat.Typ
		}
		slot := ctx.alloca(ctx.lower.SizeOf(lt), ctx.lower.AlignOf(lt))
		ctx.storeValue(slot, val, lt)
		ctx.addSymbol(pat.Data.(ast.BindingPatternNode).Name, slot, src, lt, false)
		return nil

	case ast.LiteralPattern:
		return ctx.compileLiteralPattern(pat, val, src, lt, failL)

	case ast.EnumPattern:
		d := pat.Data.(ast.EnumPatternNode)
		v, ok := ctx.lower.Registry().EnumValue(d.Enum, d.Member)
		if !ok {
			return util.Errorf(util.ErrType, pat.Tok, "enum '%s' has no variant '%s'", d.Enum, d.Member)
		}
		if _, isInt := lt.(*layout.Int); !isInt {
			return util.Errorf(util.ErrTypeMismatch, pat.Tok, "enum pattern '%s.%s' cannot match a value of type '%s'", d.Enum, d.Member, src)
		}
		ctx.branchOn(ctx.compare(ir.OpCEq, ir.TypeW, val, &ir.Const{Value: v}), failL)
		return nil

	case ast.VariantPattern:
		return ctx.compileVariantPattern(pat, val, src, lt, failL)

	case ast.StructPattern:
		d := pat.Data.(ast.StructPatternNode)
		st, ok := lt.(*layout.Struct)
		if !ok || st.Name != d.Name {
			return util.Errorf(util.ErrTypeMismatch, pat.Tok, "struct pattern '%s' cannot match a value of type '%s'", d.Name, lt)
		}
		for i, name := range d.Fields {
			f, ok := st.Field(name)
			if !ok {
				return util.Errorf(util.ErrType, d.Subs[i].Tok, "struct '%s' has no field '%s'", st.Name, name)
			}
			fv := ctx.loadValue(ctx.offset(val, f.Offset), f.Type)
			if err := ctx.compilePattern(d.Subs[i], fv, f.Source, f.Type, failL); err != nil {
				return err
			}
		}
		return nil
	}
	return util.Errorf(util.ErrInternal, pat.Tok, "unhandled pattern in codegen: %v", pat.Type)
}

// branchOn continues in a fresh block when cond holds and jumps to failL otherwise.
func (ctx *Context) branchOn(cond ir.Value, failL *ir.Label) {
	okL := ctx.newLabel()
	ctx.jnz(cond, okL, failL)
	ctx.startBlock(okL)
}

// compileLiteralPattern compares at the wider of the two widths. Narrow
// integers are sign or zero extended, f32 is widened to f64.
func (ctx *Context) compileLiteralPattern(pat *ast.Node, val ir.Value, src *ast.Type, lt layout.Type, failL *ir.Label) error {
	lit := pat.Data.(ast.LiteralPatternNode).Value
	litSrc, err := ctx.typeOf(lit)
	if err != nil {
		return err
	}
	llt, err := ctx.lowerType(litSrc, lit.Tok)
	if err != nil {
		return err
	}
	litV, err := ctx.codegenExpr(lit)
	if err != nil {
		return err
	}
	if layout.IsAggregate(lt) {
		return util.Errorf(util.ErrTypeMismatch, pat.Tok, "literal pattern cannot match a value of type '%s'", lt)
	}

	vr, lr := regTypeOf(lt), regTypeOf(llt)
	if ir.IsFloat(vr) != ir.IsFloat(lr) {
		return util.Errorf(util.ErrTypeMismatch, pat.Tok, "literal of type '%s' cannot match a value of type '%s'", litSrc, lt)
	}

	var typ ir.Type
	switch {
	case ir.IsFloat(vr):
		typ = ir.TypeD
		if vr == ir.TypeS {
			val = ctx.convert(ir.OpFToF, ir.TypeD, ir.TypeS, val)
		}
		if c, ok := litV.(*ir.FloatConst); ok {
			litV = &ir.FloatConst{Value: c.Value, Typ: ir.TypeD}
		} else if lr == ir.TypeS {
			litV = ctx.convert(ir.OpFToF, ir.TypeD, ir.TypeS, litV)
		}
	case vr == ir.TypePtr || lr == ir.TypePtr:
		typ = ir.TypePtr
	case vr == ir.TypeL || lr == ir.TypeL:
		typ = ir.TypeL
		if vr == ir.TypeW {
			signed := src != nil && src.IsInteger() && src.Signed
			val = ctx.convert(pick(signed, ir.OpExtSW, ir.OpExtUW), ir.TypeL, ir.TypeW, val)
		}
		if _, isConst := litV.(*ir.Const); !isConst && lr == ir.TypeW {
			litV = ctx.convert(pick(litSrc.Signed, ir.OpExtSW, ir.OpExtUW), ir.TypeL, ir.TypeW, litV)
		}
	default:
		typ = ir.TypeW
	}
	ctx.branchOn(ctx.compare(ir.OpCEq, typ, val, litV), failL)
	return nil
}

// compileVariantPattern checks the discriminant, then extracts and matches
// the payload. The payload type comes from src tracked in a fresh frame,
// else from the shape of the sub-pattern, else the i32 default.
func (ctx *Context) compileVariantPattern(pat *ast.Node, h ir.Value, src *ast.Type, lt layout.Type, failL *ir.Label) error {
	d := pat.Data.(ast.VariantPatternNode)
	if _, ok := lt.(*layout.TaggedUnion); !ok {
		return util.Errorf(util.ErrTypeMismatch, pat.Tok, "pattern '%s' cannot match a value of type '%s'", d.Kind, lt)
	}

	disc := ctx.getDiscriminant(h)
	ctx.branchOn(ctx.compare(ir.OpCEq, ir.TypeL, disc, &ir.Const{Value: d.Kind.Tag()}), failL)

	if d.Sub == nil || d.Sub.Type == ast.WildcardPattern {
		return nil
	}

	var slot Slot
	static := src.OkType()
	switch d.Kind {
	case ast.VariantOk:
		slot = SlotResultOk
	case ast.VariantErr:
		slot, static = SlotResultErr, src.ErrType()
	default:
		slot = SlotOptionSome
	}

	// Outer frames may describe an unrelated sum, so only src is consulted.
	ctx.generics.Push()
	if src.IsSum() {
		ctx.generics.TrackSum(src)
	} else {
		ctx.generics.Forget()
	}
	b, found := ctx.generics.Lookup(slot)
	ctx.generics.Pop()
	if !found {
		b = ctx.inspectBinding(d.Sub, static)
	}
	if b == nil {
		var err error
		if b, err = ctx.defaultBinding(slot, d.Sub.Tok); err != nil {
			return err
		}
	}

	payload := ctx.getPayload(h, ctx.shapeOf(b.Concrete))
	ctx.generics.Track(SlotLastExtracted, b)
	return ctx.compilePattern(d.Sub, payload, b.Source, b.Concrete, failL)
}

// inspectBinding derives a payload shape from the sub-pattern that will
// destructure it. static is the payload's declared type when known.
func (ctx *Context) inspectBinding(sub *ast.Node, static *ast.Type) *Binding {
	switch sub.Type {
	case ast.VariantPattern:
		kind := sub.Data.(ast.VariantPatternNode).Kind
		name := pick(kind == ast.VariantSome || kind == ast.VariantNone, ast.OptionName, ast.ResultName)
		b := &Binding{Concrete: &layout.TaggedUnion{Name: name}}
		if static.IsSum() && static.Name == name {
			b.Source = static
		}
		return b
	case ast.StructPattern:
		name := sub.Data.(ast.StructPatternNode).Name
		if st, err := ctx.lower.Struct(name); err == nil {
			return &Binding{Concrete: st, Source: ast.NewNamed(name)}
		}
	}
	return nil
}
