package codegen

import (
	"testing"

	"github.com/Zeeeepa/lynlang-sub004/pkg/ast"
	"github.com/Zeeeepa/lynlang-sub004/pkg/config"
	"github.com/Zeeeepa/lynlang-sub004/pkg/layout"
	"github.com/google/go-cmp/cmp"
	"github.com/nalgeon/be"
)

func newGenerics() *GenericContext {
	return NewGenericContext(layout.NewLowerer(layout.NewRegistry(), 8))
}

func TestFramesShadowAndRestore(t *testing.T) {
	g := newGenerics()
	g.Push()
	g.TrackSum(ast.NewResult(ast.TypeI64, ast.TypeString))

	b, ok := g.Lookup(SlotResultOk)
	be.True(t, ok)
	be.Equal(t, b.Concrete.String(), "i64")
	b, ok = g.Lookup(SlotResultErr)
	be.True(t, ok)
	be.Equal(t, b.Concrete.String(), "ptr")

	g.Push()
	g.Forget()
	_, ok = g.Lookup(SlotResultOk)
	be.Equal(t, ok, false)
	be.Equal(t, g.Depth(), 2)

	g.Pop()
	b, ok = g.Lookup(SlotResultOk)
	be.True(t, ok)
	be.Equal(t, b.Source.String(), "i64")
}

func TestInnerFrameReadsThrough(t *testing.T) {
	g := newGenerics()
	g.Push()
	g.TrackSum(ast.NewOption(ast.TypeU8))
	g.Push()
	g.Track(SlotLastExtracted, &Binding{Concrete: &layout.Int{Bits: 16}})

	b, ok := g.Lookup(SlotOptionSome)
	be.True(t, ok)
	be.Equal(t, b.Concrete.String(), "u8")

	g.Pop()
	_, ok = g.Lookup(SlotLastExtracted)
	be.Equal(t, ok, false)
}

func TestUnresolvedPayloadIsUnknown(t *testing.T) {
	g := newGenerics()
	g.Push()
	g.TrackSum(ast.NewOption(ast.NewParam("T")))
	_, ok := g.Lookup(SlotOptionSome)
	be.Equal(t, ok, false)

	ok1, _, found := g.Instance(ast.NewOption(ast.NewParam("T")))
	be.True(t, found)
	be.True(t, ok1 == nil)
}

func TestTrackSumReusesInstances(t *testing.T) {
	g := newGenerics()
	src := ast.NewResult(ast.TypeI32, ast.TypeI64)
	g.TrackSum(src)
	first, _ := g.Lookup(SlotResultOk)
	g.Push()
	g.TrackSum(ast.NewResult(ast.TypeI32, ast.TypeI64))
	second, _ := g.Lookup(SlotResultOk)
	be.True(t, first == second)

	_, errB, found := g.Instance(src)
	be.True(t, found)
	be.Equal(t, errB.Concrete.String(), "i64")
}

func TestPayloadShapes(t *testing.T) {
	ctx := &Context{wordSize: 8, lower: layout.NewLowerer(layout.NewRegistry(), 8)}
	type row struct {
		Kind   shapeKind
		Boxed8 bool
		Boxed4 bool
	}
	shapes := []layout.Type{
		&layout.Int{Bits: 32, Signed: true},
		&layout.Int{Bits: 64},
		&layout.Float{Bits: 64},
		&layout.Pointer{},
		&layout.TaggedUnion{Name: ast.OptionName},
		&layout.Struct{Name: "P", Size: 16, Align: 8},
		&layout.Void{},
	}
	var got []row
	for _, lt := range shapes {
		s := ctx.shapeOf(lt)
		got = append(got, row{s.Kind, s.boxed(8), s.boxed(4)})
	}
	want := []row{
		{shapeInt, false, false},
		{shapeInt, false, true},
		{shapeFloat, false, true},
		{shapePointer, false, false},
		{shapeNestedUnion, true, true},
		{shapeStruct, true, true},
		{shapeVoid, false, false},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("shapes (-want +got):\n%s", diff)
	}
}

func TestNestedPatternKeepsDeclaredSource(t *testing.T) {
	ctx := NewContext(config.NewConfig(), nil, nil, layout.NewRegistry())
	some := &ast.Node{Type: ast.VariantPattern, Data: ast.VariantPatternNode{Kind: ast.VariantSome}}

	inner := ast.NewOption(ast.NewParam("T"))
	b := ctx.inspectBinding(some, inner)
	be.Equal(t, b.Concrete.String(), "union.Option")
	be.Equal(t, b.Source, inner)

	// A declared type of the other sum kind is not carried over.
	b = ctx.inspectBinding(some, ast.NewResult(ast.TypeI64, ast.TypeString))
	be.Equal(t, b.Source, (*ast.Type)(nil))
	b = ctx.inspectBinding(some, nil)
	be.Equal(t, b.Source, (*ast.Type)(nil))
}
