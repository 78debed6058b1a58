package codegen

import (
	"bytes"
	"fmt"

	"github.com/Zeeeepa/lynlang-sub004/pkg/config"
	"github.com/Zeeeepa/lynlang-sub004/pkg/ir"
	llir "github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"
)

// llvmBackend renders the program as LLVM IR. Addresses are carried as
// word-sized integers and converted with inttoptr at each memory access, so
// the IR maps one to one onto the untyped pointers of the generic program.
type llvmBackend struct {
	prog    *ir.Program
	module  *llir.Module
	word    *types.IntType
	funcs   map[string]*llir.Func
	strings map[string]constant.Constant

	fn      *llir.Func
	entry   *llir.Block
	blocks  map[string]*llir.Block
	temps   map[string]value.Value
	pending []pendingPhi
}

type pendingPhi struct {
	phi   *llir.InstPhi
	instr *ir.Instruction
}

func NewLLVMBackend() Backend { return &llvmBackend{} }

func (b *llvmBackend) Generate(prog *ir.Program, cfg *config.Config) (*bytes.Buffer, error) {
	text, err := b.GenerateIR(prog, cfg)
	if err != nil {
		return nil, err
	}
	return bytes.NewBufferString(text), nil
}

func (b *llvmBackend) GenerateIR(prog *ir.Program, cfg *config.Config) (string, error) {
	b.prog = prog
	b.module = llir.NewModule()
	b.word = types.I64
	if prog.WordSize == 4 {
		b.word = types.I32
	}
	b.funcs = make(map[string]*llir.Func)
	b.strings = make(map[string]constant.Constant)

	for _, s := range prog.Strings {
		b.genString(s)
	}
	for _, e := range prog.Externs {
		params := make([]*llir.Param, len(e.Params))
		for i, t := range e.Params {
			params[i] = llir.NewParam("", b.typeOf(t))
		}
		b.funcs[e.Name] = b.module.NewFunc(e.Name, b.retType(e.Ret), params...)
	}
	for _, fn := range prog.Funcs {
		params := make([]*llir.Param, len(fn.Params))
		for i, p := range fn.Params {
			params[i] = llir.NewParam(p.Val.Key(), b.typeOf(p.Typ))
		}
		b.funcs[fn.Name] = b.module.NewFunc(fn.Name, b.retType(fn.ReturnType), params...)
	}
	for _, fn := range prog.Funcs {
		if err := b.genFunc(fn); err != nil {
			return "", err
		}
	}
	return b.module.String(), nil
}

func (b *llvmBackend) genString(s *ir.StringData) {
	init := constant.NewCharArrayFromString(s.Value + "\x00")
	def := b.module.NewGlobalDef(s.Label, init)
	def.Linkage = enum.LinkagePrivate
	zero := constant.NewInt(types.I32, 0)
	gep := constant.NewGetElementPtr(init.Typ, def, zero, zero)
	b.strings[s.Label] = constant.NewPtrToInt(gep, b.word)
}

func (b *llvmBackend) typeOf(t ir.Type) types.Type {
	switch t {
	case ir.TypeB, ir.TypeSB, ir.TypeUB:
		return types.I8
	case ir.TypeH, ir.TypeSH, ir.TypeUH:
		return types.I16
	case ir.TypeW:
		return types.I32
	case ir.TypeL:
		return types.I64
	case ir.TypeS:
		return types.Float
	case ir.TypeD:
		return types.Double
	case ir.TypePtr:
		return b.word
	}
	return types.Void
}

func (b *llvmBackend) retType(t ir.Type) types.Type {
	if t == ir.TypeNone {
		return types.Void
	}
	return b.typeOf(t)
}

// regType is the LLVM type of a result register of ir type t.
func (b *llvmBackend) regType(t ir.Type) types.Type { return b.typeOf(ir.RegClass(t)) }

func (b *llvmBackend) genFunc(fn *ir.Func) error {
	b.fn = b.funcs[fn.Name]
	b.blocks = make(map[string]*llir.Block)
	b.temps = make(map[string]value.Value)
	b.pending = nil

	for i, p := range fn.Params {
		b.temps[p.Val.Key()] = b.fn.Params[i]
	}
	lblocks := make([]*llir.Block, len(fn.Blocks))
	for i, block := range fn.Blocks {
		lblocks[i] = b.fn.NewBlock(block.Label.Name)
		b.blocks[block.Label.Name] = lblocks[i]
	}
	b.entry = lblocks[0]

	for i, block := range fn.Blocks {
		blk := lblocks[i]
		for _, instr := range block.Instructions {
			if err := b.genInstr(blk, instr); err != nil {
				return fmt.Errorf("llvm: %s: %w", fn.Name, err)
			}
		}
		if blk.Term == nil {
			if i+1 < len(lblocks) {
				blk.NewBr(lblocks[i+1])
			} else {
				blk.NewUnreachable()
			}
		}
	}

	for _, p := range b.pending {
		p.phi.Incs = nil
		for j := 0; j+1 < len(p.instr.Args); j += 2 {
			pred := b.blocks[p.instr.Args[j].(*ir.Label).Name]
			p.phi.Incs = append(p.phi.Incs, llir.NewIncoming(b.value(pred, p.instr.Args[j+1], p.phi.Typ), pred))
		}
	}
	return nil
}

// value materializes v as an LLVM value of type want, converting in blk
// when the register class differs.
func (b *llvmBackend) value(blk *llir.Block, v ir.Value, want types.Type) value.Value {
	switch v := v.(type) {
	case *ir.Const:
		switch t := want.(type) {
		case *types.IntType:
			return constant.NewInt(t, v.Value)
		case *types.FloatType:
			return constant.NewFloat(t, float64(v.Value))
		}
	case *ir.FloatConst:
		if t, ok := want.(*types.FloatType); ok {
			return constant.NewFloat(t, v.Value)
		}
	case *ir.Global:
		if s, ok := b.strings[v.Name]; ok {
			return s
		}
		return b.coerce(blk, constant.NewPtrToInt(b.function(v.Name), b.word), want)
	case *ir.Temporary:
		return b.coerce(blk, b.temps[v.Key()], want)
	}
	panic(fmt.Sprintf("llvm: cannot materialize %v as %s", v, want))
}

// natural returns v in its own register type.
func (b *llvmBackend) natural(v ir.Value) value.Value {
	if t, ok := v.(*ir.Temporary); ok {
		return b.temps[t.Key()]
	}
	return b.value(nil, v, types.I32)
}

func (b *llvmBackend) coerce(blk *llir.Block, v value.Value, want types.Type) value.Value {
	have := v.Type()
	if have.Equal(want) {
		return v
	}
	hi, hInt := have.(*types.IntType)
	wi, wInt := want.(*types.IntType)
	switch {
	case hInt && wInt && hi.BitSize > wi.BitSize:
		return blk.NewTrunc(v, want)
	case hInt && wInt:
		return blk.NewZExt(v, want)
	case !hInt && !wInt:
		if have.Equal(types.Float) {
			return blk.NewFPExt(v, want)
		}
		return blk.NewFPTrunc(v, want)
	}
	return blk.NewBitCast(v, want)
}

// function returns a defined or declared function, declaring the runtime
// primitives on first use.
func (b *llvmBackend) function(name string) *llir.Func {
	if f, ok := b.funcs[name]; ok {
		return f
	}
	e, ok := runtimeExterns[name]
	if !ok {
		panic("llvm: reference to unknown function " + name)
	}
	params := make([]*llir.Param, len(e.Params))
	for i, t := range e.Params {
		params[i] = llir.NewParam("", b.typeOf(t))
	}
	f := b.module.NewFunc(name, b.retType(e.Ret), params...)
	b.funcs[name] = f
	return f
}

func (b *llvmBackend) ptr(blk *llir.Block, addr ir.Value, elem types.Type) value.Value {
	return blk.NewIntToPtr(b.value(blk, addr, b.word), types.NewPointer(elem))
}

var intPreds = map[ir.Op]enum.IPred{
	ir.OpCEq: enum.IPredEQ, ir.OpCNeq: enum.IPredNE,
	ir.OpCLt: enum.IPredSLT, ir.OpCGt: enum.IPredSGT, ir.OpCLe: enum.IPredSLE, ir.OpCGe: enum.IPredSGE,
	ir.OpCULt: enum.IPredULT, ir.OpCUGt: enum.IPredUGT, ir.OpCULe: enum.IPredULE, ir.OpCUGe: enum.IPredUGE,
}

var floatPreds = map[ir.Op]enum.FPred{
	ir.OpCEq: enum.FPredOEQ, ir.OpCNeq: enum.FPredUNE,
	ir.OpCLt: enum.FPredOLT, ir.OpCGt: enum.FPredOGT, ir.OpCLe: enum.FPredOLE, ir.OpCGe: enum.FPredOGE,
}

func (b *llvmBackend) genInstr(blk *llir.Block, instr *ir.Instruction) error {
	var res value.Value
	rt := b.regType(instr.Typ)
	arg := func(i int, t types.Type) value.Value { return b.value(blk, instr.Args[i], t) }

	switch op := instr.Op; op {
	case ir.OpAlloc:
		size := instr.Args[0].(*ir.Const).Value
		a := b.entry.NewAlloca(types.NewArray(uint64(size), types.I8))
		a.Align = llir.Align(instr.Align)
		res = blk.NewPtrToInt(a, b.word)

	case ir.OpLoad:
		mem := b.typeOf(instr.Typ)
		ld := blk.NewLoad(mem, b.ptr(blk, instr.Args[0], mem))
		switch instr.Typ {
		case ir.TypeSB, ir.TypeSH:
			res = blk.NewSExt(ld, types.I32)
		case ir.TypeUB, ir.TypeUH:
			res = blk.NewZExt(ld, types.I32)
		default:
			res = ld
		}

	case ir.OpStore:
		mem := b.typeOf(instr.Typ)
		blk.NewStore(arg(0, mem), b.ptr(blk, instr.Args[1], mem))

	case ir.OpBlit:
		blk.NewCall(b.function("memcpy"), arg(1, b.word), arg(0, b.word), arg(2, types.I64))

	case ir.OpAdd:
		res = blk.NewAdd(arg(0, rt), arg(1, rt))
	case ir.OpSub:
		res = blk.NewSub(arg(0, rt), arg(1, rt))
	case ir.OpMul:
		res = blk.NewMul(arg(0, rt), arg(1, rt))
	case ir.OpDiv:
		res = blk.NewSDiv(arg(0, rt), arg(1, rt))
	case ir.OpUDiv:
		res = blk.NewUDiv(arg(0, rt), arg(1, rt))
	case ir.OpRem:
		res = blk.NewSRem(arg(0, rt), arg(1, rt))
	case ir.OpURem:
		res = blk.NewURem(arg(0, rt), arg(1, rt))
	case ir.OpAnd:
		res = blk.NewAnd(arg(0, rt), arg(1, rt))
	case ir.OpOr:
		res = blk.NewOr(arg(0, rt), arg(1, rt))
	case ir.OpXor:
		res = blk.NewXor(arg(0, rt), arg(1, rt))
	case ir.OpShl:
		res = blk.NewShl(arg(0, rt), arg(1, rt))
	case ir.OpShr:
		res = blk.NewAShr(arg(0, rt), arg(1, rt))
	case ir.OpAddF:
		res = blk.NewFAdd(arg(0, rt), arg(1, rt))
	case ir.OpSubF:
		res = blk.NewFSub(arg(0, rt), arg(1, rt))
	case ir.OpMulF:
		res = blk.NewFMul(arg(0, rt), arg(1, rt))
	case ir.OpDivF:
		res = blk.NewFDiv(arg(0, rt), arg(1, rt))
	case ir.OpNegF:
		res = blk.NewFNeg(arg(0, rt))

	case ir.OpCEq, ir.OpCNeq, ir.OpCLt, ir.OpCGt, ir.OpCLe, ir.OpCGe, ir.OpCULt, ir.OpCUGt, ir.OpCULe, ir.OpCUGe:
		ot := b.typeOf(instr.OperandType)
		var c value.Value
		if ir.IsFloat(instr.OperandType) {
			c = blk.NewFCmp(floatPreds[op], arg(0, ot), arg(1, ot))
		} else {
			c = blk.NewICmp(intPreds[op], arg(0, ot), arg(1, ot))
		}
		res = blk.NewZExt(c, types.I32)

	case ir.OpExtSB, ir.OpExtUB, ir.OpExtSH, ir.OpExtUH:
		narrow := pick(op == ir.OpExtSB || op == ir.OpExtUB, types.I8, types.I16)
		t := blk.NewTrunc(arg(0, types.I32), narrow)
		if op == ir.OpExtSB || op == ir.OpExtSH {
			res = blk.NewSExt(t, rt)
		} else {
			res = blk.NewZExt(t, rt)
		}
	case ir.OpExtSW:
		res = b.coerceSigned(blk, arg(0, types.I32), rt)
	case ir.OpExtUW:
		res = b.coerce(blk, arg(0, types.I32), rt)
	case ir.OpTrunc:
		res = blk.NewTrunc(arg(0, types.I64), rt)
	case ir.OpCopy:
		res = arg(0, rt)
	case ir.OpCast:
		res = blk.NewBitCast(arg(0, b.typeOf(instr.OperandType)), rt)
	case ir.OpFToSI:
		res = blk.NewFPToSI(arg(0, b.typeOf(instr.OperandType)), rt)
	case ir.OpFToUI:
		res = blk.NewFPToUI(arg(0, b.typeOf(instr.OperandType)), rt)
	case ir.OpSWToF:
		res = blk.NewSIToFP(arg(0, types.I32), rt)
	case ir.OpUWToF:
		res = blk.NewUIToFP(arg(0, types.I32), rt)
	case ir.OpSLToF:
		res = blk.NewSIToFP(arg(0, types.I64), rt)
	case ir.OpULToF:
		res = blk.NewUIToFP(arg(0, types.I64), rt)
	case ir.OpFToF:
		from := b.typeOf(instr.OperandType)
		if instr.Typ == ir.TypeD {
			res = blk.NewFPExt(arg(0, from), rt)
		} else {
			res = blk.NewFPTrunc(arg(0, from), rt)
		}

	case ir.OpJmp:
		blk.NewBr(b.blocks[instr.Args[0].(*ir.Label).Name])
	case ir.OpJnz:
		c := b.natural(instr.Args[0])
		cond := blk.NewICmp(enum.IPredNE, c, constant.NewInt(c.Type().(*types.IntType), 0))
		blk.NewCondBr(cond, b.blocks[instr.Args[1].(*ir.Label).Name], b.blocks[instr.Args[2].(*ir.Label).Name])
	case ir.OpRet:
		ret := b.fn.Sig.RetType
		if len(instr.Args) == 0 || ret.Equal(types.Void) {
			blk.NewRet(nil)
		} else {
			blk.NewRet(arg(0, ret))
		}

	case ir.OpCall:
		res = b.genCall(blk, instr)

	case ir.OpPhi:
		phi := llir.NewPhi(llir.NewIncoming(constant.NewUndef(rt), b.entry))
		blk.Insts = append(blk.Insts, phi)
		b.pending = append(b.pending, pendingPhi{phi: phi, instr: instr})
		res = phi

	default:
		return fmt.Errorf("no encoding for op %s", instr.Op)
	}

	if instr.Result != nil {
		b.temps[instr.Result.Key()] = res
	}
	return nil
}

func (b *llvmBackend) coerceSigned(blk *llir.Block, v value.Value, want types.Type) value.Value {
	if v.Type().Equal(want) {
		return v
	}
	return blk.NewSExt(v, want)
}

func (b *llvmBackend) genCall(blk *llir.Block, instr *ir.Instruction) value.Value {
	args := make([]value.Value, len(instr.Args)-1)
	if g, ok := instr.Args[0].(*ir.Global); ok {
		f := b.function(g.Name)
		for i, a := range instr.Args[1:] {
			args[i] = b.value(blk, a, f.Params[i].Typ)
		}
		return blk.NewCall(f, args...)
	}

	paramTypes := make([]types.Type, len(args))
	for i, a := range instr.Args[1:] {
		paramTypes[i] = b.typeOf(instr.ArgTypes[i])
		args[i] = b.value(blk, a, paramTypes[i])
	}
	sig := types.NewFunc(b.retType(pick(instr.Result != nil, instr.Typ, ir.TypeNone)), paramTypes...)
	callee := blk.NewIntToPtr(b.value(blk, instr.Args[0], b.word), types.NewPointer(sig))
	return blk.NewCall(callee, args...)
}
