package layout

import (
	"fmt"

	"github.com/Zeeeepa/lynlang-sub004/pkg/ast"
)

type FieldDecl struct {
	Name string
	Type *ast.Type
}

// Registry records declared structs and enums by name.
type Registry struct {
	structs map[string][]FieldDecl
	enums   map[string][]string
	order   []string
}

func NewRegistry() *Registry {
	return &Registry{
		structs: make(map[string][]FieldDecl),
		enums:   make(map[string][]string),
	}
}

func (r *Registry) declare(name string) error {
	if r.IsType(name) {
		return fmt.Errorf("type '%s' is already declared", name)
	}
	if _, ok := ast.BuiltinType(name); ok {
		return fmt.Errorf("'%s' is a built-in type", name)
	}
	switch name {
	case ast.ResultName, ast.OptionName, ast.ArrayName, ast.HashMapName, ast.HashSetName:
		return fmt.Errorf("'%s' is a built-in type", name)
	}
	if _, ok := ast.PointerWrapper(name); ok {
		return fmt.Errorf("'%s' is a built-in type", name)
	}
	r.order = append(r.order, name)
	return nil
}

func (r *Registry) AddStruct(name string, fields []FieldDecl) error {
	if err := r.declare(name); err != nil {
		return err
	}
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		if seen[f.Name] {
			return fmt.Errorf("duplicate field '%s' in struct '%s'", f.Name, name)
		}
		seen[f.Name] = true
	}
	r.structs[name] = fields
	return nil
}

func (r *Registry) AddEnum(name string, members []string) error {
	if err := r.declare(name); err != nil {
		return err
	}
	seen := make(map[string]bool, len(members))
	for _, m := range members {
		if seen[m] {
			return fmt.Errorf("duplicate variant '%s' in enum '%s'", m, name)
		}
		seen[m] = true
	}
	r.enums[name] = members
	return nil
}

func (r *Registry) StructFields(name string) ([]FieldDecl, bool) {
	f, ok := r.structs[name]
	return f, ok
}

// StructField returns the declared source type of a field.
func (r *Registry) StructField(name, field string) (*ast.Type, bool) {
	for _, f := range r.structs[name] {
		if f.Name == field {
			return f.Type, true
		}
	}
	return nil, false
}

func (r *Registry) Enum(name string) ([]string, bool) {
	m, ok := r.enums[name]
	return m, ok
}

// EnumValue is the discriminant of an enum member: its declaration index.
func (r *Registry) EnumValue(enum, member string) (int64, bool) {
	for i, m := range r.enums[enum] {
		if m == member {
			return int64(i), true
		}
	}
	return 0, false
}

func (r *Registry) IsType(name string) bool {
	_, s := r.structs[name]
	_, e := r.enums[name]
	return s || e
}

// Names lists declared types in declaration order.
func (r *Registry) Names() []string { return r.order }
