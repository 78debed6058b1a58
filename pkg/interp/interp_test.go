package interp

import (
	"errors"
	"strings"
	"testing"

	"github.com/Zeeeepa/lynlang-sub004/pkg/ir"
	"github.com/nalgeon/be"
)

func tmp(id int) *ir.Temporary { return &ir.Temporary{ID: id} }
func lbl(name string) *ir.Label { return &ir.Label{Name: name} }
func c(v int64) *ir.Const { return &ir.Const{Value: v} }

func block(name string, instrs ...*ir.Instruction) *ir.BasicBlock {
	return &ir.BasicBlock{Label: lbl(name), Instructions: instrs}
}

func ret(v ir.Value) *ir.Instruction {
	if v == nil {
		return &ir.Instruction{Op: ir.OpRet}
	}
	return &ir.Instruction{Op: ir.OpRet, Args: []ir.Value{v}}
}

func call(result *ir.Temporary, typ ir.Type, name string, args ...ir.Value) *ir.Instruction {
	types := make([]ir.Type, len(args))
	for i := range types {
		types[i] = ir.TypeL
	}
	return &ir.Instruction{Op: ir.OpCall, Typ: typ, Result: result, Args: append([]ir.Value{&ir.Global{Name: name}}, args...), ArgTypes: types}
}

// maxFunc returns the signed maximum of two words through a phi.
func maxFunc() *ir.Func {
	a, b := &ir.Temporary{Name: "a", ID: -1}, &ir.Temporary{Name: "b", ID: -1}
	return &ir.Func{
		Name:       "max",
		ReturnType: ir.TypeW,
		Params:     []*ir.Param{{Name: "a", Typ: ir.TypeW, Val: a}, {Name: "b", Typ: ir.TypeW, Val: b}},
		Blocks: []*ir.BasicBlock{
			block("start",
				&ir.Instruction{Op: ir.OpCGt, Typ: ir.TypeW, OperandType: ir.TypeW, Result: tmp(0), Args: []ir.Value{a, b}},
				&ir.Instruction{Op: ir.OpJnz, Args: []ir.Value{tmp(0), lbl("left"), lbl("right")}}),
			block("left", &ir.Instruction{Op: ir.OpJmp, Args: []ir.Value{lbl("end")}}),
			block("right"),
			block("end",
				&ir.Instruction{Op: ir.OpPhi, Typ: ir.TypeW, Result: tmp(1), Args: []ir.Value{lbl("left"), a, lbl("right"), b}},
				ret(tmp(1))),
		},
	}
}

func TestPhiAndSignedCompare(t *testing.T) {
	m := New(&ir.Program{Funcs: []*ir.Func{maxFunc()}})
	v, err := m.Call("max", 3, 9)
	be.Err(t, err, nil)
	be.Equal(t, v, uint64(9))

	minus5 := int64(-5)
	v, err = m.Call("max", uint64(minus5), 2)
	be.Err(t, err, nil)
	be.Equal(t, v, uint64(2))
}

func TestMainExitStatus(t *testing.T) {
	main := &ir.Func{Name: "main", ReturnType: ir.TypeW, Blocks: []*ir.BasicBlock{block("start", ret(c(-1)))}}
	code, err := New(&ir.Program{Funcs: []*ir.Func{main}}).Run()
	be.Err(t, err, nil)
	be.Equal(t, code, -1)

	_, err = New(&ir.Program{}).Run()
	be.Err(t, err, "no main")
}

func TestHeapAndBuiltins(t *testing.T) {
	main := &ir.Func{Name: "main", ReturnType: ir.TypeW, Blocks: []*ir.BasicBlock{block("start",
		call(tmp(0), ir.TypePtr, "malloc", c(16)),
		call(nil, ir.TypeNone, "memset", tmp(0), c(0xff), c(16)),
		&ir.Instruction{Op: ir.OpStore, Typ: ir.TypeL, Args: []ir.Value{c(42), tmp(0)}},
		&ir.Instruction{Op: ir.OpLoad, Typ: ir.TypeL, Result: tmp(1), Args: []ir.Value{tmp(0)}},
		&ir.Instruction{Op: ir.OpAdd, Typ: ir.TypePtr, Result: tmp(2), Args: []ir.Value{tmp(0), c(8)}},
		&ir.Instruction{Op: ir.OpLoad, Typ: ir.TypeSB, Result: tmp(3), Args: []ir.Value{tmp(2)}},
		call(nil, ir.TypeNone, "print_i64", tmp(1)),
		&ir.Instruction{Op: ir.OpExtSW, Typ: ir.TypeL, Result: tmp(4), Args: []ir.Value{tmp(3)}},
		call(nil, ir.TypeNone, "print_i64", tmp(4)),
		call(nil, ir.TypeNone, "print_str", &ir.Global{Name: "str0"}),
		ret(c(0)),
	)}}
	prog := &ir.Program{Funcs: []*ir.Func{main}, Strings: []*ir.StringData{{Label: "str0", Value: "done"}}}

	var out strings.Builder
	m := New(prog)
	m.Stdout = &out
	code, err := m.Run()
	be.Err(t, err, nil)
	be.Equal(t, code, 0)
	be.Equal(t, out.String(), "42\n-1\ndone\n")
	be.Equal(t, m.Mallocs, 1)
}

func TestTraps(t *testing.T) {
	cases := map[string][]*ir.Instruction{
		"integer division by zero": {
			&ir.Instruction{Op: ir.OpDiv, Typ: ir.TypeL, Result: tmp(0), Args: []ir.Value{c(1), c(0)}},
			ret(c(0)),
		},
		"invalid access": {
			&ir.Instruction{Op: ir.OpLoad, Typ: ir.TypeL, Result: tmp(0), Args: []ir.Value{c(8)}},
			ret(c(0)),
		},
		"undefined temporary": {ret(tmp(7))},
		"not available in the interpreter": {
			call(nil, ir.TypeNone, "abort"),
			ret(c(0)),
		},
		"fell off the end": {},
	}
	for want, instrs := range cases {
		t.Run(want, func(t *testing.T) {
			main := &ir.Func{Name: "main", ReturnType: ir.TypeW, Blocks: []*ir.BasicBlock{block("start", instrs...)}}
			_, err := New(&ir.Program{Funcs: []*ir.Func{main}}).Run()
			var rt *RuntimeError
			be.True(t, errors.As(err, &rt))
			be.Equal(t, rt.Func, "main")
			be.Err(t, err, want)
		})
	}
}

func TestStepLimit(t *testing.T) {
	loop := &ir.Func{Name: "main", Blocks: []*ir.BasicBlock{
		block("spin", &ir.Instruction{Op: ir.OpJmp, Args: []ir.Value{lbl("spin")}}),
	}}
	m := New(&ir.Program{Funcs: []*ir.Func{loop}})
	m.MaxSteps = 100
	_, err := m.Run()
	be.Err(t, err, "step limit of 100")
}

func TestNarrowWordMasksPointers(t *testing.T) {
	main := &ir.Func{Name: "main", ReturnType: ir.TypeW, Blocks: []*ir.BasicBlock{block("start",
		call(tmp(0), ir.TypePtr, "malloc", c(4)),
		&ir.Instruction{Op: ir.OpStore, Typ: ir.TypeW, Args: []ir.Value{c(7), tmp(0)}},
		&ir.Instruction{Op: ir.OpLoad, Typ: ir.TypeW, Result: tmp(1), Args: []ir.Value{tmp(0)}},
		ret(tmp(1)),
	)}}
	code, err := New(&ir.Program{Funcs: []*ir.Func{main}, WordSize: 4}).Run()
	be.Err(t, err, nil)
	be.Equal(t, code, 7)
}

func TestFloats(t *testing.T) {
	main := &ir.Func{Name: "main", Blocks: []*ir.BasicBlock{block("start",
		&ir.Instruction{Op: ir.OpMulF, Typ: ir.TypeD, Result: tmp(0), Args: []ir.Value{
			&ir.FloatConst{Value: 1.5, Typ: ir.TypeD}, &ir.FloatConst{Value: 3, Typ: ir.TypeD}}},
		call(nil, ir.TypeNone, "print_f64", tmp(0)),
		&ir.Instruction{Op: ir.OpFToSI, Typ: ir.TypeW, OperandType: ir.TypeD, Result: tmp(1), Args: []ir.Value{tmp(0)}},
		call(nil, ir.TypeNone, "print_i64", tmp(1)),
		ret(nil),
	)}}
	var out strings.Builder
	m := New(&ir.Program{Funcs: []*ir.Func{main}})
	m.Stdout = &out
	code, err := m.Run()
	be.Err(t, err, nil)
	be.Equal(t, code, 0)
	be.Equal(t, out.String(), "4.5\n4\n")
}

func TestBuiltinsNeedNoDeclaration(t *testing.T) {
	main := &ir.Func{Name: "main", ReturnType: ir.TypeW, Blocks: []*ir.BasicBlock{block("start",
		call(tmp(0), ir.TypePtr, "malloc", c(8)),
		call(nil, ir.TypeNone, "print_i64", c(12)),
		ret(c(0)),
	)}}
	var out strings.Builder
	m := New(&ir.Program{Funcs: []*ir.Func{main}})
	m.Stdout = &out
	code, err := m.Run()
	be.Err(t, err, nil)
	be.Equal(t, code, 0)
	be.Equal(t, out.String(), "12\n")
	be.Equal(t, m.Mallocs, 1)
}

func TestCallThroughExternPointer(t *testing.T) {
	main := &ir.Func{Name: "main", ReturnType: ir.TypeW, Blocks: []*ir.BasicBlock{block("start",
		&ir.Instruction{Op: ir.OpCopy, Typ: ir.TypePtr, Result: tmp(0), Args: []ir.Value{&ir.Global{Name: "print_i64"}}},
		&ir.Instruction{Op: ir.OpCall, Typ: ir.TypeNone, Args: []ir.Value{tmp(0), c(5)}, ArgTypes: []ir.Type{ir.TypeL}},
		&ir.Instruction{Op: ir.OpCall, Typ: ir.TypeNone, Args: []ir.Value{c(3), c(5)}, ArgTypes: []ir.Type{ir.TypeL}},
		ret(c(0)),
	)}}
	prog := &ir.Program{
		Funcs:   []*ir.Func{main},
		Externs: []*ir.Extern{{Name: "print_i64", Params: []ir.Type{ir.TypeL}}},
	}
	var out strings.Builder
	m := New(prog)
	m.Stdout = &out
	_, err := m.Run()
	be.Err(t, err, "invalid function pointer 0x3")
	be.Equal(t, out.String(), "5\n")
}
