package layout

import (
	"errors"
	"testing"

	"github.com/Zeeeepa/lynlang-sub004/pkg/ast"
	"github.com/google/go-cmp/cmp"
	"github.com/nalgeon/be"
)

func newLowerer(t *testing.T, wordSize int) *Lowerer {
	t.Helper()
	reg := NewRegistry()
	be.Err(t, reg.AddEnum("Color", []string{"Red", "Green", "Blue"}), nil)
	be.Err(t, reg.AddStruct("Point", []FieldDecl{
		{Name: "x", Type: ast.TypeI8},
		{Name: "y", Type: ast.TypeI64},
		{Name: "c", Type: ast.NewNamed("Color")},
	}), nil)
	be.Err(t, reg.AddStruct("Node", []FieldDecl{
		{Name: "next", Type: ast.NewPointer(ast.NewNamed("Node"), ast.OwnOwned)},
		{Name: "val", Type: ast.NewResult(ast.TypeI32, ast.TypeString)},
	}), nil)
	return NewLowerer(reg, wordSize)
}

func TestLowerPrimitives(t *testing.T) {
	l := newLowerer(t, 8)
	cases := map[*ast.Type]Type{
		ast.TypeU16:    &Int{Bits: 16},
		ast.TypeI64:    &Int{Bits: 64, Signed: true},
		ast.TypeF32:    &Float{Bits: 32},
		ast.TypeBool:   &Bool{},
		ast.TypeString: &Pointer{Ownership: ast.OwnBorrowed},
		ast.TypeVoid:   &Void{},
	}
	for in, want := range cases {
		got, err := l.Lower(in)
		be.Err(t, err, nil)
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("Lower(%s) mismatch (-want +got):\n%s", in, diff)
		}
	}
}

func TestPointerWrappersErase(t *testing.T) {
	l := newLowerer(t, 8)
	for _, own := range []ast.Ownership{ast.OwnNone, ast.OwnOwned, ast.OwnBorrowed} {
		got, err := l.Lower(ast.NewPointer(ast.NewParam("T"), own))
		be.Err(t, err, nil)
		be.Equal(t, got.String(), "ptr")
		be.Equal(t, l.SizeOf(got), int64(8))
	}
}

func TestSumTypesIgnoreArguments(t *testing.T) {
	l := newLowerer(t, 8)
	res, err := l.Lower(ast.NewResult(ast.NewParam("T"), ast.NewParam("E")))
	be.Err(t, err, nil)
	be.Equal(t, res.(*TaggedUnion).Name, ast.ResultName)
	be.Equal(t, l.SizeOf(res), int64(16))

	opt, err := l.Lower(ast.NewOption(ast.NewOption(ast.NewParam("T"))))
	be.Err(t, err, nil)
	be.True(t, IsAggregate(opt))

	arr, err := l.Lower(ast.NewArray(ast.NewParam("T")))
	be.Err(t, err, nil)
	s := arr.(*Struct)
	be.Equal(t, s.Size, int64(24))
	lenField, ok := s.Field("len")
	be.True(t, ok)
	be.Equal(t, lenField.Offset, int64(8))
}

func TestUnionSizeFollowsWord(t *testing.T) {
	be.Equal(t, newLowerer(t, 8).UnionSize(), int64(16))
	be.Equal(t, newLowerer(t, 4).UnionSize(), int64(16))
}

func TestStructLayout(t *testing.T) {
	l := newLowerer(t, 8)
	got, err := l.Lower(ast.NewNamed("Point"))
	be.Err(t, err, nil)
	s := got.(*Struct)
	offsets := []int64{}
	for _, f := range s.Fields {
		offsets = append(offsets, f.Offset)
	}
	be.Equal(t, offsets, []int64{0, 8, 16})
	be.Equal(t, s.Size, int64(24))
	be.Equal(t, s.Align, int64(8))

	node, err := l.Struct("Node")
	be.Err(t, err, nil)
	be.Equal(t, node.Size, int64(24))
	val, _ := node.Field("val")
	be.Equal(t, val.Offset, int64(8))
}

func TestEnumLowersToU32(t *testing.T) {
	l := newLowerer(t, 8)
	got, err := l.Lower(ast.NewNamed("Color"))
	be.Err(t, err, nil)
	be.Equal(t, got.String(), "u32")
	v, ok := l.Registry().EnumValue("Color", "Blue")
	be.True(t, ok)
	be.Equal(t, v, int64(2))
}

func TestUnresolvedGeneric(t *testing.T) {
	l := newLowerer(t, 8)
	for _, in := range []*ast.Type{
		ast.NewParam("T"),
		ast.NewNamed("Unknown"),
		ast.NewGeneric("Box", ast.TypeI32),
		ast.NewFunc([]*ast.Type{ast.NewParam("U")}, ast.TypeVoid),
	} {
		_, err := l.Lower(in)
		var ue *UnresolvedGenericError
		be.True(t, errors.As(err, &ue))
	}
}

func TestRecursiveStructRejected(t *testing.T) {
	reg := NewRegistry()
	be.Err(t, reg.AddStruct("A", []FieldDecl{{Name: "b", Type: ast.NewNamed("B")}}), nil)
	be.Err(t, reg.AddStruct("B", []FieldDecl{{Name: "a", Type: ast.NewNamed("A")}}), nil)
	_, err := NewLowerer(reg, 8).Lower(ast.NewNamed("A"))
	be.Err(t, err, "contains itself")
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	reg := NewRegistry()
	be.Err(t, reg.AddEnum("E", []string{"A"}), nil)
	be.Err(t, reg.AddStruct("E", nil), "already declared")
	be.Err(t, reg.AddStruct("Option", nil), "built-in")
	be.Err(t, reg.AddEnum("F", []string{"A", "A"}), "duplicate variant")
	be.Err(t, reg.AddStruct("S", []FieldDecl{{Name: "x", Type: ast.TypeI32}, {Name: "x", Type: ast.TypeI32}}), "duplicate field")
}

func TestFitsInline(t *testing.T) {
	be.True(t, FitsInline(&Int{Bits: 64, Signed: true}, 8))
	be.True(t, !FitsInline(&Int{Bits: 64, Signed: true}, 4))
	be.True(t, !FitsInline(&Float{Bits: 64}, 4))
	be.True(t, FitsInline(&Bool{}, 4))
	be.True(t, !FitsInline(&TaggedUnion{Name: "Option"}, 8))
	be.True(t, !FitsInline(&Struct{Name: "P"}, 8))
}
