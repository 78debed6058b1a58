package ir

import "strconv"

type Op int

const (
	OpAlloc Op = iota
	OpLoad
	OpStore
	OpBlit
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpUDiv
	OpRem
	OpURem
	OpAnd
	OpOr
	OpXor
	OpShl
	OpShr
	OpAddF
	OpSubF
	OpMulF
	OpDivF
	OpNegF
	OpCEq
	OpCNeq
	OpCLt
	OpCGt
	OpCLe
	OpCGe
	OpCULt
	OpCUGt
	OpCULe
	OpCUGe
	OpExtSB
	OpExtUB
	OpExtSH
	OpExtUH
	OpExtSW
	OpExtUW
	OpTrunc
	OpCast
	OpFToSI
	OpFToUI
	OpSWToF
	OpUWToF
	OpSLToF
	OpULToF
	OpFToF
	OpCopy
	OpJmp
	OpJnz
	OpRet
	OpCall
	OpPhi
)

type Type int

const (
	TypeNone Type = iota
	TypeB         // byte (8-bit, ambiguous signedness)
	TypeH         // half-word (16-bit, ambiguous signedness)
	TypeW         // word (32-bit)
	TypeL         // long (64-bit)
	TypeS         // single float (32-bit)
	TypeD         // double float (64-bit)
	TypePtr
	TypeSB // signed byte (8-bit)
	TypeUB // unsigned byte (8-bit)
	TypeSH // signed half-word (16-bit)
	TypeUH // unsigned half-word (16-bit)
)

type Value interface {
	isValue()
	String() string
}

type Const struct{ Value int64 }
type FloatConst struct {
	Value float64
	Typ   Type
}
type Global struct{ Name string }
type Temporary struct {
	Name string
	ID   int
}
type Label struct{ Name string }

func (c *Const) isValue()      {}
func (f *FloatConst) isValue() {}
func (g *Global) isValue()     {}
func (t *Temporary) isValue()  {}
func (l *Label) isValue()      {}

func (c *Const) String() string      { return strconv.FormatInt(c.Value, 10) }
func (f *FloatConst) String() string { return strconv.FormatFloat(f.Value, 'g', -1, 64) }
func (g *Global) String() string     { return "$" + g.Name }
func (l *Label) String() string      { return "@" + l.Name }

// Key identifies a temporary uniquely within its function.
func (t *Temporary) Key() string {
	if t.ID < 0 {
		return t.Name
	}
	if t.Name != "" {
		return t.Name + "." + strconv.Itoa(t.ID)
	}
	return "t" + strconv.Itoa(t.ID)
}
func (t *Temporary) String() string { return "%" + t.Key() }

type Func struct {
	Name       string
	Params     []*Param
	ReturnType Type
	// SRet functions receive the address of their aggregate result as the
	// first parameter and return nothing.
	SRet   bool
	Blocks []*BasicBlock
}

type Param struct {
	Name string
	Typ  Type
	Val  *Temporary
}

type BasicBlock struct {
	Label        *Label
	Instructions []*Instruction
}

// Instruction is a single SSA operation. Typ is the result type (or the
// memory type for loads and stores), OperandType the type of the operands
// for comparisons and conversions.
type Instruction struct {
	Op          Op
	Typ         Type
	OperandType Type
	Result      *Temporary
	Args        []Value
	ArgTypes    []Type
	Align       int
}

// Extern is a function provided by the runtime or declared with `extern fn`.
type Extern struct {
	Name   string
	Params []Type
	Ret    Type
}

type StringData struct {
	Label string
	Value string
}

type Program struct {
	Strings  []*StringData
	Funcs    []*Func
	Externs  []*Extern
	WordSize int
}

func (p *Program) FindFunc(name string) *Func {
	for _, f := range p.Funcs {
		if f.Name == name {
			return f
		}
	}
	return nil
}

func (p *Program) FindExtern(name string) *Extern {
	for _, e := range p.Externs {
		if e.Name == name {
			return e
		}
	}
	return nil
}

// IsStringLabel returns the contents of the string stored under name.
func (p *Program) IsStringLabel(name string) (string, bool) {
	for _, s := range p.Strings {
		if s.Label == name {
			return s.Value, true
		}
	}
	return "", false
}

// RegClass is the register class a value of memory type t is held in.
func RegClass(t Type) Type {
	switch t {
	case TypeB, TypeH, TypeSB, TypeUB, TypeSH, TypeUH:
		return TypeW
	}
	return t
}

func IsFloat(t Type) bool { return t == TypeS || t == TypeD }

func SizeOfType(t Type, wordSize int) int64 {
	switch t {
	case TypeB, TypeSB, TypeUB:
		return 1
	case TypeH, TypeSH, TypeUH:
		return 2
	case TypeW, TypeS:
		return 4
	case TypeL, TypeD:
		return 8
	case TypePtr:
		return int64(wordSize)
	}
	return 0
}

// Terminates reports whether op ends a basic block.
func (op Op) Terminates() bool { return op == OpJmp || op == OpJnz || op == OpRet }

// Terminated reports whether the block already ends in a jump or return.
func (b *BasicBlock) Terminated() bool {
	n := len(b.Instructions)
	return n > 0 && b.Instructions[n-1].Op.Terminates()
}
