package ast

import "strings"

// TypeKind defines the kind of a source-level Type
type TypeKind int

const (
	TYPE_INT TypeKind = iota
	TYPE_FLOAT
	TYPE_BOOL
	TYPE_STRING
	TYPE_VOID
	TYPE_POINTER
	TYPE_NAMED   // a declared struct or enum
	TYPE_GENERIC // a generic application such as Result<T, E>
	TYPE_PARAM   // a generic parameter that was never resolved
	TYPE_FUNC
)

// Ownership is the front-end flavour of a pointer. It is erased by lowering.
type Ownership int

const (
	OwnNone Ownership = iota
	OwnOwned
	OwnBorrowed
)

// Type is a source-level type descriptor as written or inferred.
type Type struct {
	Kind      TypeKind
	Name      string
	Bits      int
	Signed    bool
	Base      *Type
	Ownership Ownership
	Args      []*Type
	Params    []*Type
	Return    *Type
}

// Pre-defined types
var (
	TypeI8     = &Type{Kind: TYPE_INT, Name: "i8", Bits: 8, Signed: true}
	TypeI16    = &Type{Kind: TYPE_INT, Name: "i16", Bits: 16, Signed: true}
	TypeI32    = &Type{Kind: TYPE_INT, Name: "i32", Bits: 32, Signed: true}
	TypeI64    = &Type{Kind: TYPE_INT, Name: "i64", Bits: 64, Signed: true}
	TypeU8     = &Type{Kind: TYPE_INT, Name: "u8", Bits: 8}
	TypeU16    = &Type{Kind: TYPE_INT, Name: "u16", Bits: 16}
	TypeU32    = &Type{Kind: TYPE_INT, Name: "u32", Bits: 32}
	TypeU64    = &Type{Kind: TYPE_INT, Name: "u64", Bits: 64}
	TypeF32    = &Type{Kind: TYPE_FLOAT, Name: "f32", Bits: 32}
	TypeF64    = &Type{Kind: TYPE_FLOAT, Name: "f64", Bits: 64}
	TypeBool   = &Type{Kind: TYPE_BOOL, Name: "bool"}
	TypeString = &Type{Kind: TYPE_STRING, Name: "String"}
	TypeVoid   = &Type{Kind: TYPE_VOID, Name: "void"}
)

var builtinTypes = map[string]*Type{
	"i8": TypeI8, "i16": TypeI16, "i32": TypeI32, "i64": TypeI64,
	"u8": TypeU8, "u16": TypeU16, "u32": TypeU32, "u64": TypeU64,
	"usize": TypeU64, "isize": TypeI64,
	"f32": TypeF32, "f64": TypeF64,
	"bool": TypeBool, "String": TypeString, "void": TypeVoid,
}

// BuiltinType returns the predefined type with the given name.
func BuiltinType(name string) (*Type, bool) {
	t, ok := builtinTypes[name]
	return t, ok
}

// Names of the generic applications the back end special-cases.
const (
	ResultName  = "Result"
	OptionName  = "Option"
	ArrayName   = "Array"
	HashMapName = "HashMap"
	HashSetName = "HashSet"
)

var pointerWrappers = map[string]Ownership{
	"Ptr":    OwnBorrowed,
	"MutPtr": OwnOwned,
	"RawPtr": OwnNone,
}

// PointerWrapper reports whether name is one of the pointer wrapper types.
func PointerWrapper(name string) (Ownership, bool) {
	o, ok := pointerWrappers[name]
	return o, ok
}

func NewGeneric(name string, args ...*Type) *Type {
	return &Type{Kind: TYPE_GENERIC, Name: name, Args: args}
}
func NewResult(ok, err *Type) *Type { return NewGeneric(ResultName, ok, err) }
func NewOption(some *Type) *Type    { return NewGeneric(OptionName, some) }
func NewArray(elem *Type) *Type     { return NewGeneric(ArrayName, elem) }
func NewNamed(name string) *Type    { return &Type{Kind: TYPE_NAMED, Name: name} }
func NewParam(name string) *Type    { return &Type{Kind: TYPE_PARAM, Name: name} }
func NewPointer(base *Type, own Ownership) *Type {
	return &Type{Kind: TYPE_POINTER, Base: base, Ownership: own}
}
func NewFunc(params []*Type, ret *Type) *Type {
	return &Type{Kind: TYPE_FUNC, Params: params, Return: ret}
}

func (t *Type) isGeneric(name string) bool {
	return t != nil && t.Kind == TYPE_GENERIC && t.Name == name
}

func (t *Type) IsResult() bool { return t.isGeneric(ResultName) }
func (t *Type) IsOption() bool { return t.isGeneric(OptionName) }
func (t *Type) IsArray() bool  { return t.isGeneric(ArrayName) }

// IsSum reports whether t is represented as a tagged union.
func (t *Type) IsSum() bool { return t.IsResult() || t.IsOption() }

func (t *Type) arg(i int) *Type {
	if t == nil || i >= len(t.Args) {
		return nil
	}
	return t.Args[i]
}

// OkType is the payload of Ok/Some, ErrType the payload of Err. Nil if absent.
func (t *Type) OkType() *Type { return t.arg(0) }
func (t *Type) ErrType() *Type {
	if !t.IsResult() {
		return nil
	}
	return t.arg(1)
}

// Elem is the element type of an Array or HashSet.
func (t *Type) Elem() *Type { return t.arg(0) }

func (t *Type) IsVoid() bool    { return t == nil || t.Kind == TYPE_VOID }
func (t *Type) IsInteger() bool { return t != nil && t.Kind == TYPE_INT }
func (t *Type) IsFloat() bool   { return t != nil && t.Kind == TYPE_FLOAT }
func (t *Type) IsNumeric() bool { return t.IsInteger() || t.IsFloat() }

// HasParams reports whether an unresolved parameter occurs anywhere in t.
func (t *Type) HasParams() bool {
	if t == nil {
		return false
	}
	if t.Kind == TYPE_PARAM {
		return true
	}
	if t.Base.HasParams() || t.Return.HasParams() {
		return true
	}
	for _, a := range t.Args {
		if a.HasParams() {
			return true
		}
	}
	for _, p := range t.Params {
		if p.HasParams() {
			return true
		}
	}
	return false
}

// String renders the canonical spelling. Structurally equal types render equally.
func (t *Type) String() string {
	if t == nil {
		return "void"
	}
	switch t.Kind {
	case TYPE_POINTER:
		name := "RawPtr"
		for n, o := range pointerWrappers {
			if o == t.Ownership {
				name = n
			}
		}
		return name + "<" + t.Base.String() + ">"
	case TYPE_GENERIC:
		args := make([]string, len(t.Args))
		for i, a := range t.Args {
			args[i] = a.String()
		}
		return t.Name + "<" + strings.Join(args, ", ") + ">"
	case TYPE_FUNC:
		params := make([]string, len(t.Params))
		for i, p := range t.Params {
			params[i] = p.String()
		}
		return "fn(" + strings.Join(params, ", ") + ") " + t.Return.String()
	}
	return t.Name
}

// Equal compares two types structurally.
func Equal(a, b *Type) bool {
	if a == nil || b == nil {
		return a.IsVoid() && b.IsVoid()
	}
	return a.String() == b.String()
}
