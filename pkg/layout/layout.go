// Package layout lowers source types to the fixed machine shapes the code
// generator works with.
package layout

import (
	"fmt"
	"strings"

	"fortio.org/safecast"
	"github.com/Zeeeepa/lynlang-sub004/pkg/ast"
	"github.com/Zeeeepa/lynlang-sub004/pkg/util"
)

// Type is a lowered, machine-representable type. The set of implementations
// is closed: Int, Float, Bool, Pointer, Struct, TaggedUnion, Function, Void.
type Type interface {
	String() string
	sealed()
}

type Int struct {
	Bits   int
	Signed bool
}

type Float struct{ Bits int }

type Bool struct{}

// Pointer keeps the ownership flavour for diagnostics only. All pointers
// share one machine representation.
type Pointer struct{ Ownership ast.Ownership }

type Field struct {
	Name   string
	Type   Type
	Source *ast.Type
	Offset int64
}

type Struct struct {
	Name   string
	Fields []Field
	Size   int64
	Align  int64
}

// TaggedUnion is the single layout shared by Result and Option:
// a 64-bit discriminant at offset 0 and a word-sized payload slot after it.
type TaggedUnion struct{ Name string }

const (
	DiscriminantBits = 64
	OkTag            = 0
	ErrTag           = 1
	PayloadOffset    = DiscriminantBits / 8
)

type Function struct {
	Params []Type
	Ret    Type
}

type Void struct{}

func (*Int) sealed()         {}
func (*Float) sealed()       {}
func (*Bool) sealed()        {}
func (*Pointer) sealed()     {}
func (*Struct) sealed()      {}
func (*TaggedUnion) sealed() {}
func (*Function) sealed()    {}
func (*Void) sealed()        {}

func (t *Int) String() string {
	if t.Signed {
		return fmt.Sprintf("i%d", t.Bits)
	}
	return fmt.Sprintf("u%d", t.Bits)
}
func (t *Float) String() string       { return fmt.Sprintf("f%d", t.Bits) }
func (*Bool) String() string          { return "bool" }
func (*Pointer) String() string       { return "ptr" }
func (t *Struct) String() string      { return "%" + t.Name }
func (t *TaggedUnion) String() string { return "union." + t.Name }
func (*Void) String() string          { return "void" }
func (t *Function) String() string {
	params := make([]string, len(t.Params))
	for i, p := range t.Params {
		params[i] = p.String()
	}
	return "fn(" + strings.Join(params, ", ") + ") " + t.Ret.String()
}

// Field looks up a field by name.
func (t *Struct) Field(name string) (Field, bool) {
	for _, f := range t.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// DefaultPayload is the shape assumed for a payload whose type is unknown.
func DefaultPayload() Type { return &Int{Bits: 32, Signed: true} }

// IsAggregate reports whether values of t live in memory and are handled by address.
func IsAggregate(t Type) bool {
	switch t.(type) {
	case *Struct, *TaggedUnion:
		return true
	}
	return false
}

// UnresolvedGenericError reports a generic parameter that reached lowering.
type UnresolvedGenericError struct{ Name string }

func (e *UnresolvedGenericError) Error() string {
	return fmt.Sprintf("generic type '%s' was not resolved before lowering", e.Name)
}

// Lowerer turns source types into layouts for one target word size.
type Lowerer struct {
	reg      *Registry
	wordSize int64
	structs  map[string]*Struct
	active   map[string]bool
}

func NewLowerer(reg *Registry, wordSize int) *Lowerer {
	return &Lowerer{
		reg:      reg,
		wordSize: int64(wordSize),
		structs:  make(map[string]*Struct),
		active:   make(map[string]bool),
	}
}

func (l *Lowerer) WordSize() int64     { return l.wordSize }
func (l *Lowerer) Registry() *Registry { return l.reg }

// Lower maps a source type to its layout. Sum types and containers get their
// fixed shapes without looking at their arguments.
func (l *Lowerer) Lower(t *ast.Type) (Type, error) {
	if t == nil {
		return &Void{}, nil
	}
	switch t.Kind {
	case ast.TYPE_INT:
		return &Int{Bits: t.Bits, Signed: t.Signed}, nil
	case ast.TYPE_FLOAT:
		return &Float{Bits: t.Bits}, nil
	case ast.TYPE_BOOL:
		return &Bool{}, nil
	case ast.TYPE_STRING:
		return &Pointer{Ownership: ast.OwnBorrowed}, nil
	case ast.TYPE_VOID:
		return &Void{}, nil
	case ast.TYPE_POINTER:
		return &Pointer{Ownership: t.Ownership}, nil
	case ast.TYPE_PARAM:
		return nil, &UnresolvedGenericError{Name: t.Name}
	case ast.TYPE_FUNC:
		fn := &Function{Params: make([]Type, len(t.Params))}
		for i, p := range t.Params {
			lp, err := l.Lower(p)
			if err != nil {
				return nil, err
			}
			fn.Params[i] = lp
		}
		ret, err := l.Lower(t.Return)
		if err != nil {
			return nil, err
		}
		fn.Ret = ret
		return fn, nil
	case ast.TYPE_GENERIC:
		switch t.Name {
		case ast.ResultName, ast.OptionName:
			return &TaggedUnion{Name: t.Name}, nil
		case ast.ArrayName, ast.HashMapName, ast.HashSetName:
			return l.Container(t.Name), nil
		}
		return nil, &UnresolvedGenericError{Name: t.String()}
	case ast.TYPE_NAMED:
		if _, ok := l.reg.Enum(t.Name); ok {
			return &Int{Bits: 32}, nil
		}
		if _, ok := l.reg.StructFields(t.Name); ok {
			return l.Struct(t.Name)
		}
		return nil, &UnresolvedGenericError{Name: t.Name}
	}
	return nil, fmt.Errorf("unknown type kind %d", t.Kind)
}

// Container is the record shared by Array, HashMap and HashSet:
// {data ptr, len i64, cap i64}.
func (l *Lowerer) Container(name string) *Struct {
	if s, ok := l.structs["$"+name]; ok {
		return s
	}
	s := &Struct{Name: name, Fields: []Field{
		{Name: "data", Type: &Pointer{Ownership: ast.OwnOwned}},
		{Name: "len", Type: &Int{Bits: 64, Signed: true}, Source: ast.TypeI64},
		{Name: "cap", Type: &Int{Bits: 64, Signed: true}, Source: ast.TypeI64},
	}}
	l.finish(s)
	l.structs["$"+name] = s
	return s
}

// Struct lowers a declared struct. The result is cached per name.
func (l *Lowerer) Struct(name string) (*Struct, error) {
	if s, ok := l.structs[name]; ok {
		return s, nil
	}
	decls, ok := l.reg.StructFields(name)
	if !ok {
		return nil, fmt.Errorf("unknown struct '%s'", name)
	}
	if l.active[name] {
		return nil, fmt.Errorf("struct '%s' contains itself by value", name)
	}
	l.active[name] = true
	defer delete(l.active, name)

	s := &Struct{Name: name, Fields: make([]Field, len(decls))}
	for i, d := range decls {
		ft, err := l.Lower(d.Type)
		if err != nil {
			return nil, err
		}
		if _, isVoid := ft.(*Void); isVoid {
			return nil, fmt.Errorf("field '%s.%s' has type void", name, d.Name)
		}
		s.Fields[i] = Field{Name: d.Name, Type: ft, Source: d.Type}
	}
	if err := l.finish(s); err != nil {
		return nil, err
	}
	l.structs[name] = s
	return s, nil
}

func (l *Lowerer) finish(s *Struct) error {
	var off, align int64 = 0, 1
	for i := range s.Fields {
		fa := l.AlignOf(s.Fields[i].Type)
		off = util.AlignUp(off, fa)
		s.Fields[i].Offset = off
		off += l.SizeOf(s.Fields[i].Type)
		align = max(align, fa)
	}
	s.Size, s.Align = util.AlignUp(off, align), align
	if _, err := safecast.Conv[int32](s.Size); err != nil {
		return fmt.Errorf("struct '%s' is too large: %w", s.Name, err)
	}
	return nil
}

// UnionSize is the byte size of every tagged union on this target.
func (l *Lowerer) UnionSize() int64 {
	return util.AlignUp(PayloadOffset+l.wordSize, 8)
}

func (l *Lowerer) SizeOf(t Type) int64 {
	switch t := t.(type) {
	case *Int:
		return int64(t.Bits / 8)
	case *Float:
		return int64(t.Bits / 8)
	case *Bool:
		return 1
	case *Pointer, *Function:
		return l.wordSize
	case *Struct:
		return t.Size
	case *TaggedUnion:
		return l.UnionSize()
	case *Void:
		return 0
	}
	panic(fmt.Sprintf("layout: unknown type %T", t))
}

func (l *Lowerer) AlignOf(t Type) int64 {
	switch t := t.(type) {
	case *Struct:
		return t.Align
	case *TaggedUnion:
		return 8
	case *Void:
		return 1
	}
	return l.SizeOf(t)
}

// FitsInline reports whether a value of t can occupy a word-sized payload
// slot directly instead of through a heap box.
func FitsInline(t Type, wordSize int64) bool {
	switch t := t.(type) {
	case *Int:
		return int64(t.Bits) <= wordSize*8
	case *Float:
		return int64(t.Bits) <= wordSize*8
	case *Bool, *Pointer, *Function, *Void:
		return true
	case *Struct, *TaggedUnion:
		return false
	}
	panic(fmt.Sprintf("layout: unknown type %T", t))
}
