package ir

import (
	"fmt"
	"io"
	"strings"
)

var opNames = map[Op]string{
	OpAlloc: "alloc", OpLoad: "load", OpStore: "store", OpBlit: "blit",
	OpAdd: "add", OpSub: "sub", OpMul: "mul", OpDiv: "div", OpUDiv: "udiv", OpRem: "rem", OpURem: "urem",
	OpAnd: "and", OpOr: "or", OpXor: "xor", OpShl: "shl", OpShr: "shr",
	OpAddF: "addf", OpSubF: "subf", OpMulF: "mulf", OpDivF: "divf", OpNegF: "negf",
	OpCEq: "ceq", OpCNeq: "cne", OpCLt: "cslt", OpCGt: "csgt", OpCLe: "csle", OpCGe: "csge",
	OpCULt: "cult", OpCUGt: "cugt", OpCULe: "cule", OpCUGe: "cuge",
	OpExtSB: "extsb", OpExtUB: "extub", OpExtSH: "extsh", OpExtUH: "extuh", OpExtSW: "extsw", OpExtUW: "extuw",
	OpTrunc: "trunc", OpCast: "cast", OpFToSI: "ftosi", OpFToUI: "ftoui",
	OpSWToF: "swtof", OpUWToF: "uwtof", OpSLToF: "sltof", OpULToF: "ultof", OpFToF: "ftof", OpCopy: "copy",
	OpJmp: "jmp", OpJnz: "jnz", OpRet: "ret", OpCall: "call", OpPhi: "phi",
}

func (op Op) String() string {
	if s, ok := opNames[op]; ok {
		return s
	}
	return fmt.Sprintf("op%d", int(op))
}

var typeNames = map[Type]string{
	TypeNone: "", TypeB: "b", TypeH: "h", TypeW: "w", TypeL: "l", TypeS: "s", TypeD: "d",
	TypePtr: "p", TypeSB: "sb", TypeUB: "ub", TypeSH: "sh", TypeUH: "uh",
}

func (t Type) String() string { return typeNames[t] }

// Print writes a readable listing of the program. It is not a backend
// format; it exists for --emit ir and for tests.
func Print(w io.Writer, p *Program) {
	for _, s := range p.Strings {
		fmt.Fprintf(w, "data $%s = %q\n", s.Label, s.Value)
	}
	for _, e := range p.Externs {
		params := make([]string, len(e.Params))
		for i, t := range e.Params {
			params[i] = t.String()
		}
		fmt.Fprintf(w, "extern %s $%s(%s)\n", e.Ret, e.Name, strings.Join(params, ", "))
	}
	for _, fn := range p.Funcs {
		PrintFunc(w, fn)
	}
}

func PrintFunc(w io.Writer, fn *Func) {
	params := make([]string, len(fn.Params))
	for i, prm := range fn.Params {
		params[i] = prm.Typ.String() + " " + prm.Val.String()
	}
	ret := fn.ReturnType.String()
	if fn.SRet {
		ret = "sret"
	}
	fmt.Fprintf(w, "\nfunction %s $%s(%s) {\n", ret, fn.Name, strings.Join(params, ", "))
	for _, b := range fn.Blocks {
		fmt.Fprintf(w, "%s\n", b.Label)
		for _, instr := range b.Instructions {
			fmt.Fprintf(w, "\t%s\n", instr)
		}
	}
	fmt.Fprintln(w, "}")
}

func (instr *Instruction) String() string {
	var sb strings.Builder
	if instr.Result != nil {
		fmt.Fprintf(&sb, "%s =%s ", instr.Result, RegClass(instr.Typ))
	}
	switch instr.Op {
	case OpAlloc:
		fmt.Fprintf(&sb, "alloc%d %s", instr.Align, instr.Args[0])
	case OpLoad:
		fmt.Fprintf(&sb, "load.%s %s", instr.Typ, instr.Args[0])
	case OpStore:
		fmt.Fprintf(&sb, "store.%s %s, %s", instr.Typ, instr.Args[0], instr.Args[1])
	case OpCall:
		args := make([]string, len(instr.Args)-1)
		for i, a := range instr.Args[1:] {
			args[i] = instr.ArgTypes[i].String() + " " + a.String()
		}
		fmt.Fprintf(&sb, "call %s(%s)", instr.Args[0], strings.Join(args, ", "))
	case OpPhi:
		sb.WriteString("phi")
		for i := 0; i+1 < len(instr.Args); i += 2 {
			if i > 0 {
				sb.WriteString(",")
			}
			fmt.Fprintf(&sb, " %s %s", instr.Args[i], instr.Args[i+1])
		}
	default:
		sb.WriteString(instr.Op.String())
		if instr.OperandType != TypeNone {
			sb.WriteString("." + instr.OperandType.String())
		}
		for i, a := range instr.Args {
			if i == 0 {
				sb.WriteString(" ")
			} else {
				sb.WriteString(", ")
			}
			sb.WriteString(a.String())
		}
	}
	return sb.String()
}
