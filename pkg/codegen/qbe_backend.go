package codegen

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Zeeeepa/lynlang-sub004/pkg/config"
	"github.com/Zeeeepa/lynlang-sub004/pkg/ir"
)

type qbeBackend struct {
	out       *strings.Builder
	prog      *ir.Program
	currentFn *ir.Func
}

func NewQBEBackend() Backend { return &qbeBackend{} }

// GenerateIR renders the program as QBE SSA text.
func (b *qbeBackend) GenerateIR(prog *ir.Program, cfg *config.Config) (string, error) {
	var qbeIRBuilder strings.Builder
	b.out = &qbeIRBuilder
	b.prog = prog
	if err := b.gen(); err != nil {
		return "", err
	}
	return qbeIRBuilder.String(), nil
}

func (b *qbeBackend) gen() error {
	for _, s := range b.prog.Strings {
		b.genString(s)
	}
	for _, fn := range b.prog.Funcs {
		if err := b.genFunc(fn); err != nil {
			return err
		}
	}
	return nil
}

// genString writes a NUL-terminated byte array. Bytes are written one by
// one so that no escaping rules are involved.
func (b *qbeBackend) genString(s *ir.StringData) {
	fmt.Fprintf(b.out, "data $%s = { ", s.Label)
	for _, c := range []byte(s.Value) {
		fmt.Fprintf(b.out, "b %d, ", c)
	}
	b.out.WriteString("b 0 }\n")
}

func (b *qbeBackend) genFunc(fn *ir.Func) error {
	b.currentFn = fn
	retTypeStr := b.formatType(fn.ReturnType)
	if retTypeStr != "" {
		retTypeStr = " " + retTypeStr
	}

	fmt.Fprintf(b.out, "\nexport function%s $%s(", retTypeStr, fn.Name)
	for i, p := range fn.Params {
		fmt.Fprintf(b.out, "%s %s", b.formatType(p.Typ), b.formatValue(p.Val))
		if i < len(fn.Params)-1 {
			b.out.WriteString(", ")
		}
	}
	b.out.WriteString(") {\n")

	for _, block := range fn.Blocks {
		if err := b.genBlock(block); err != nil {
			return err
		}
	}
	b.out.WriteString("}\n")
	return nil
}

func (b *qbeBackend) genBlock(block *ir.BasicBlock) error {
	fmt.Fprintf(b.out, "@%s\n", block.Label.Name)
	for _, instr := range block.Instructions {
		if err := b.genInstr(instr); err != nil {
			return err
		}
	}
	return nil
}

func (b *qbeBackend) genInstr(instr *ir.Instruction) error {
	b.out.WriteString("\t")
	if instr.Op == ir.OpCall {
		b.genCall(instr)
		return nil
	}

	if instr.Result != nil {
		fmt.Fprintf(b.out, "%s =%s ", b.formatValue(instr.Result), b.formatType(ir.RegClass(instr.Typ)))
	}

	opStr, err := b.formatOp(instr)
	if err != nil {
		return err
	}
	b.out.WriteString(opStr)

	if instr.Op == ir.OpPhi {
		for i := 0; i < len(instr.Args); i += 2 {
			fmt.Fprintf(b.out, " %s %s", b.formatValue(instr.Args[i]), b.formatValue(instr.Args[i+1]))
			if i+2 < len(instr.Args) {
				b.out.WriteString(",")
			}
		}
	} else {
		for i, arg := range instr.Args {
			b.out.WriteString(" ")
			b.out.WriteString(b.formatValue(arg))
			if i < len(instr.Args)-1 {
				b.out.WriteString(",")
			}
		}
	}
	b.out.WriteString("\n")
	return nil
}

func (b *qbeBackend) genCall(instr *ir.Instruction) {
	if instr.Result != nil {
		fmt.Fprintf(b.out, "%s =%s ", b.formatValue(instr.Result), b.formatType(instr.Typ))
	}
	fmt.Fprintf(b.out, "call %s(", b.formatValue(instr.Args[0]))
	for i, arg := range instr.Args[1:] {
		fmt.Fprintf(b.out, "%s %s", b.formatType(instr.ArgTypes[i]), b.formatValue(arg))
		if i < len(instr.Args)-2 {
			b.out.WriteString(", ")
		}
	}
	b.out.WriteString(")\n")
}

func (b *qbeBackend) formatValue(v ir.Value) string {
	switch val := v.(type) {
	case *ir.Const:
		return strconv.FormatInt(val.Value, 10)
	case *ir.FloatConst:
		return b.formatType(val.Typ) + "_" + strconv.FormatFloat(val.Value, 'g', -1, 64)
	case *ir.Global, *ir.Label, *ir.Temporary:
		return v.String()
	}
	return ""
}

func (b *qbeBackend) wordType() ir.Type {
	if b.prog.WordSize == 4 {
		return ir.TypeW
	}
	return ir.TypeL
}

func (b *qbeBackend) formatType(t ir.Type) string {
	switch t {
	case ir.TypeB:
		return "b"
	case ir.TypeH:
		return "h"
	case ir.TypeW:
		return "w"
	case ir.TypeL:
		return "l"
	case ir.TypeS:
		return "s"
	case ir.TypeD:
		return "d"
	case ir.TypePtr:
		return b.formatType(b.wordType())
	}
	return ""
}

// memSuffix spells a memory type as a load or store suffix.
func (b *qbeBackend) memSuffix(t ir.Type) string {
	switch t {
	case ir.TypeSB:
		return "sb"
	case ir.TypeUB:
		return "ub"
	case ir.TypeSH:
		return "sh"
	case ir.TypeUH:
		return "uh"
	}
	return b.formatType(t)
}

func (b *qbeBackend) formatOp(instr *ir.Instruction) (string, error) {
	typ := instr.Typ
	argType := instr.OperandType
	if argType == ir.TypeNone {
		argType = typ
	}
	argTypeStr := b.formatType(argType)
	isFloat := ir.IsFloat(argType)

	switch instr.Op {
	case ir.OpAlloc:
		if instr.Align <= 4 {
			return "alloc4", nil
		}
		if instr.Align <= 8 {
			return "alloc8", nil
		}
		return "alloc16", nil
	case ir.OpLoad:
		return "load" + b.memSuffix(typ), nil
	case ir.OpStore:
		return "store" + b.memSuffix(typ), nil
	case ir.OpBlit:
		return "blit", nil
	case ir.OpAdd, ir.OpAddF:
		return "add", nil
	case ir.OpSub, ir.OpSubF:
		return "sub", nil
	case ir.OpMul, ir.OpMulF:
		return "mul", nil
	case ir.OpDiv, ir.OpDivF:
		return "div", nil
	case ir.OpUDiv:
		return "udiv", nil
	case ir.OpRem:
		return "rem", nil
	case ir.OpURem:
		return "urem", nil
	case ir.OpAnd:
		return "and", nil
	case ir.OpOr:
		return "or", nil
	case ir.OpXor:
		return "xor", nil
	case ir.OpShl:
		return "shl", nil
	case ir.OpShr:
		return "sar", nil
	case ir.OpNegF:
		return "neg", nil
	case ir.OpCEq:
		return "ceq" + argTypeStr, nil
	case ir.OpCNeq:
		return "cne" + argTypeStr, nil
	case ir.OpCLt:
		return pick(isFloat, "clt", "cslt") + argTypeStr, nil
	case ir.OpCGt:
		return pick(isFloat, "cgt", "csgt") + argTypeStr, nil
	case ir.OpCLe:
		return pick(isFloat, "cle", "csle") + argTypeStr, nil
	case ir.OpCGe:
		return pick(isFloat, "cge", "csge") + argTypeStr, nil
	case ir.OpCULt:
		return "cult" + argTypeStr, nil
	case ir.OpCUGt:
		return "cugt" + argTypeStr, nil
	case ir.OpCULe:
		return "cule" + argTypeStr, nil
	case ir.OpCUGe:
		return "cuge" + argTypeStr, nil
	case ir.OpExtSB:
		return "extsb", nil
	case ir.OpExtUB:
		return "extub", nil
	case ir.OpExtSH:
		return "extsh", nil
	case ir.OpExtUH:
		return "extuh", nil
	case ir.OpExtSW:
		return "extsw", nil
	case ir.OpExtUW:
		return "extuw", nil
	case ir.OpTrunc, ir.OpCopy:
		return "copy", nil
	case ir.OpCast:
		return "cast", nil
	case ir.OpFToSI:
		return pick(argType == ir.TypeS, "stosi", "dtosi"), nil
	case ir.OpFToUI:
		return pick(argType == ir.TypeS, "stoui", "dtoui"), nil
	case ir.OpSWToF:
		return "swtof", nil
	case ir.OpUWToF:
		return "uwtof", nil
	case ir.OpSLToF:
		return "sltof", nil
	case ir.OpULToF:
		return "ultof", nil
	case ir.OpFToF:
		return pick(typ == ir.TypeD, "exts", "truncd"), nil
	case ir.OpJmp:
		return "jmp", nil
	case ir.OpJnz:
		return "jnz", nil
	case ir.OpRet:
		return "ret", nil
	case ir.OpPhi:
		return "phi", nil
	}
	return "", fmt.Errorf("qbe: no encoding for op %s", instr.Op)
}
