package codegen

import (
	"fmt"

	"github.com/Zeeeepa/lynlang-sub004/pkg/ast"
	"github.com/Zeeeepa/lynlang-sub004/pkg/config"
	"github.com/Zeeeepa/lynlang-sub004/pkg/ir"
	"github.com/Zeeeepa/lynlang-sub004/pkg/layout"
	"github.com/Zeeeepa/lynlang-sub004/pkg/token"
	"github.com/Zeeeepa/lynlang-sub004/pkg/util"
)

// Tagged unions are always handled through the address of their 16-byte
// record: {i64 discriminant, word payload}.
//
// Ownership of boxed payloads: a payload that does not fit the word slot is
// copied into a malloc'd box and the slot holds the box pointer. The box is
// owned by the union record that holds it. Copying a union copies the
// pointer, not the box. Generated code never frees a box; releasing it is
// the caller's responsibility.

type shapeKind int

const (
	shapeInt shapeKind = iota
	shapeFloat
	shapePointer
	shapeNestedUnion
	shapeStruct
	shapeVoid
)

type payloadShape struct {
	Kind   shapeKind
	Bits   int
	Signed bool
	Size   int64
	Align  int64
	lt     layout.Type
}

func (ctx *Context) shapeOf(lt layout.Type) payloadShape {
	switch t := lt.(type) {
	case *layout.Int:
		return payloadShape{Kind: shapeInt, Bits: t.Bits, Signed: t.Signed, Size: int64(t.Bits / 8), lt: lt}
	case *layout.Bool:
		return payloadShape{Kind: shapeInt, Bits: 8, Size: 1, lt: lt}
	case *layout.Float:
		return payloadShape{Kind: shapeFloat, Bits: t.Bits, Size: int64(t.Bits / 8), lt: lt}
	case *layout.Pointer, *layout.Function:
		return payloadShape{Kind: shapePointer, Bits: ctx.wordSize * 8, Size: int64(ctx.wordSize), lt: lt}
	case *layout.TaggedUnion:
		return payloadShape{Kind: shapeNestedUnion, Size: ctx.lower.UnionSize(), Align: 8, lt: lt}
	case *layout.Struct:
		return payloadShape{Kind: shapeStruct, Size: t.Size, Align: t.Align, lt: lt}
	case *layout.Void:
		return payloadShape{Kind: shapeVoid, lt: lt}
	}
	panic(fmt.Sprintf("codegen: no payload shape for %T", lt))
}

// boxed reports whether the payload lives behind a pointer in the slot.
func (s payloadShape) boxed(wordSize int) bool {
	switch s.Kind {
	case shapeNestedUnion, shapeStruct:
		return true
	case shapeInt, shapeFloat:
		return s.Bits > wordSize*8
	case shapePointer, shapeVoid:
		return false
	}
	panic("codegen: unknown payload shape")
}

func (s payloadShape) aggregate() bool { return s.Kind == shapeNestedUnion || s.Kind == shapeStruct }

// wordMem is the memory type of a whole payload slot.
func (ctx *Context) wordMem() ir.Type { return pick(ctx.wordSize == 8, ir.TypeL, ir.TypeW) }

func (ctx *Context) payloadAddr(h ir.Value) ir.Value { return ctx.offset(h, layout.PayloadOffset) }

func (ctx *Context) getDiscriminant(h ir.Value) *ir.Temporary { return ctx.load(h, ir.TypeL) }

func (ctx *Context) setDiscriminant(h ir.Value, tag int64) {
	ctx.store(h, &ir.Const{Value: tag}, ir.TypeL)
}

// setPayload stores v into the payload slot of h.
func (ctx *Context) setPayload(h, v ir.Value, s payloadShape) {
	slot := ctx.payloadAddr(h)
	switch {
	case s.Kind == shapeVoid:
		ctx.store(slot, &ir.Const{Value: 0}, ctx.wordMem())
	case s.aggregate():
		box := ctx.malloc(&ir.Const{Value: s.Size})
		ctx.blit(v, box, s.Size)
		ctx.store(slot, box, ir.TypePtr)
	case s.boxed(ctx.wordSize):
		box := ctx.malloc(&ir.Const{Value: s.Size})
		ctx.store(box, v, memTypeOf(s.lt))
		ctx.store(slot, box, ir.TypePtr)
	default:
		if s.Size < int64(ctx.wordSize) {
			ctx.store(slot, &ir.Const{Value: 0}, ctx.wordMem())
		}
		ctx.store(slot, v, memTypeOf(s.lt))
	}
}

// setZeroPayload stores the zero value of shape s without building it first.
func (ctx *Context) setZeroPayload(h ir.Value, s payloadShape) {
	slot := ctx.payloadAddr(h)
	if s.boxed(ctx.wordSize) {
		box := ctx.malloc(&ir.Const{Value: s.Size})
		ctx.memset(box, s.Size)
		ctx.store(slot, box, ir.TypePtr)
		return
	}
	ctx.store(slot, &ir.Const{Value: 0}, ctx.wordMem())
}

// getPayload reads the payload of h. Aggregate payloads are returned as the
// address of their box.
func (ctx *Context) getPayload(h ir.Value, s payloadShape) ir.Value {
	slot := ctx.payloadAddr(h)
	switch {
	case s.Kind == shapeVoid:
		return &ir.Const{Value: 0}
	case s.aggregate():
		return ctx.load(slot, ir.TypePtr)
	case s.boxed(ctx.wordSize):
		return ctx.load(ctx.load(slot, ir.TypePtr), memTypeOf(s.lt))
	}
	return ctx.load(slot, memTypeOf(s.lt))
}

func (ctx *Context) newUnion() *ir.Temporary {
	return ctx.alloca(ctx.lower.UnionSize(), 8)
}

func (ctx *Context) makeTagged(tag int64, v ir.Value, s payloadShape) ir.Value {
	h := ctx.newUnion()
	ctx.setDiscriminant(h, tag)
	ctx.setPayload(h, v, s)
	return h
}

func (ctx *Context) makeOk(v ir.Value, s payloadShape) ir.Value  { return ctx.makeTagged(layout.OkTag, v, s) }
func (ctx *Context) makeErr(v ir.Value, s payloadShape) ir.Value { return ctx.makeTagged(layout.ErrTag, v, s) }
func (ctx *Context) makeSome(v ir.Value, s payloadShape) ir.Value {
	return ctx.makeTagged(layout.OkTag, v, s)
}

func (ctx *Context) makeOkVoid() ir.Value {
	return ctx.makeTagged(layout.OkTag, nil, payloadShape{Kind: shapeVoid})
}

// makeNone builds an absent value whose payload is the zero of shape s.
func (ctx *Context) makeNone(s payloadShape) ir.Value {
	h := ctx.newUnion()
	ctx.setDiscriminant(h, layout.ErrTag)
	ctx.setZeroPayload(h, s)
	return h
}

// makeErrZero builds an Err whose payload is the zero of shape s.
func (ctx *Context) makeErrZero(s payloadShape) ir.Value { return ctx.makeNone(s) }

func (ctx *Context) codegenVariant(node *ast.Node) (ir.Value, error) {
	d := node.Data.(ast.VariantNode)
	if d.Kind == ast.VariantNone {
		return ctx.makeNone(payloadShape{Kind: shapeVoid}), nil
	}

	payloadSrc, err := ctx.typeOf(d.Value)
	if err != nil {
		return nil, err
	}
	if payloadSrc.IsVoid() && d.Kind == ast.VariantOk {
		if _, err := ctx.codegenExpr(d.Value); err != nil {
			return nil, err
		}
		return ctx.makeOkVoid(), nil
	}
	lt, err := ctx.lowerType(payloadSrc, d.Value.Tok)
	if err != nil {
		return nil, err
	}
	v, err := ctx.codegenExpr(d.Value)
	if err != nil {
		return nil, err
	}
	s := ctx.shapeOf(lt)
	switch d.Kind {
	case ast.VariantOk:
		return ctx.makeOk(v, s), nil
	case ast.VariantErr:
		return ctx.makeErr(v, s), nil
	}
	return ctx.makeSome(v, s), nil
}

// payloadBinding resolves the concrete payload type recorded for slot.
// Unknown payloads are read as i32 unless strict generics are requested.
func (ctx *Context) payloadBinding(slot Slot, tok token.Token) (*Binding, error) {
	if b, ok := ctx.generics.Lookup(slot); ok {
		return b, nil
	}
	return ctx.defaultBinding(slot, tok)
}

func (ctx *Context) defaultBinding(slot Slot, tok token.Token) (*Binding, error) {
	if ctx.cfg.IsFeatureEnabled(config.FeatStrictGenerics) {
		return nil, util.Errorf(util.ErrUnresolvedGenericType, tok, "payload type for %s is unknown", slot)
	}
	util.Warn(ctx.cfg, config.WarnGenericFallback, tok, "Payload type for %s is unknown, reading it as i32", slot)
	return &Binding{Concrete: layout.DefaultPayload(), Source: ast.TypeI32}, nil
}
