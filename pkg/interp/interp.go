// Package interp executes an ir.Program directly. It backs `lync --run` and
// serves as the runtime oracle for code generator tests, so that programs
// can be checked without an assembler or a C toolchain.
package interp

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"

	"fortio.org/safecast"
	"github.com/Zeeeepa/lynlang-sub004/pkg/ir"
)

const (
	heapBase        = 0x1000
	defaultMaxSteps = 10_000_000
	defaultMemLimit = 64 << 20
	maxCallDepth    = 4096
)

// RuntimeError is a trap raised while executing a program.
type RuntimeError struct {
	Func string
	Msg  string
}

func (e *RuntimeError) Error() string { return fmt.Sprintf("runtime error in %s: %s", e.Func, e.Msg) }

// Machine holds the memory and state of one program run. Memory is a flat
// byte array addressed from heapBase; allocations are never reclaimed.
type Machine struct {
	Stdout   io.Writer
	MaxSteps int
	MemLimit int
	// Mallocs counts calls to malloc.
	Mallocs int

	prog      *ir.Program
	funcs     map[string]*ir.Func
	funcAddrs map[string]uint64
	addrFuncs map[uint64]string
	strings   map[string]uint64
	mem       []byte
	steps     int
	depth     int
	wordSize  int
}

func New(prog *ir.Program) *Machine {
	m := &Machine{
		Stdout:    os.Stdout,
		MaxSteps:  defaultMaxSteps,
		MemLimit:  defaultMemLimit,
		prog:      prog,
		funcs:     make(map[string]*ir.Func),
		funcAddrs: make(map[string]uint64),
		addrFuncs: make(map[uint64]string),
		strings:   make(map[string]uint64),
		mem:       make([]byte, heapBase),
		wordSize:  prog.WordSize,
	}
	if m.wordSize == 0 {
		m.wordSize = 8
	}
	// Function addresses live below heapBase so they never alias data.
	for i, fn := range prog.Funcs {
		m.funcs[fn.Name] = fn
		addr := uint64(16 * (i + 1))
		m.funcAddrs[fn.Name], m.addrFuncs[addr] = addr, fn.Name
	}
	for i, e := range prog.Externs {
		if _, defined := m.funcs[e.Name]; defined {
			continue
		}
		addr := uint64(16 * (len(prog.Funcs) + i + 1))
		m.funcAddrs[e.Name], m.addrFuncs[addr] = addr, e.Name
	}
	for _, s := range prog.Strings {
		addr, _ := m.alloc(int64(len(s.Value)+1), 1)
		copy(m.mem[addr:], s.Value)
		m.strings[s.Label] = addr
	}
	return m
}

// Run executes main and returns its result as a process exit status.
func (m *Machine) Run() (int, error) {
	fn, ok := m.funcs["main"]
	if !ok {
		return 0, fmt.Errorf("program has no main function")
	}
	v, err := m.call(fn, nil)
	if err != nil {
		return 0, err
	}
	if fn.ReturnType == ir.TypeNone {
		return 0, nil
	}
	return int(int32(v)), nil
}

// Call invokes a function by name with raw register values.
func (m *Machine) Call(name string, args ...uint64) (uint64, error) {
	fn, ok := m.funcs[name]
	if !ok {
		return 0, fmt.Errorf("no function '%s'", name)
	}
	return m.call(fn, args)
}

// Alloc reserves zeroed memory, for callers that need an sret slot.
func (m *Machine) Alloc(size int64) (uint64, error) { return m.alloc(size, 8) }

// Read loads a value of memory type t, extended to its register class.
func (m *Machine) Read(addr uint64, t ir.Type) (uint64, error) { return m.load(addr, t) }

func (m *Machine) alloc(size, align int64) (uint64, error) {
	if size < 0 {
		return 0, fmt.Errorf("negative allocation size %d", size)
	}
	if align < 1 {
		align = 1
	}
	base := (int64(len(m.mem)) + align - 1) / align * align
	end := base + max(size, 1)
	if end > int64(m.MemLimit) {
		return 0, fmt.Errorf("out of memory allocating %d bytes", size)
	}
	m.mem = append(m.mem, make([]byte, end-int64(len(m.mem)))...)
	return uint64(base), nil
}

func (m *Machine) span(addr uint64, n int64) ([]byte, error) {
	lo, err := safecast.Conv[int](addr)
	if err != nil || addr < heapBase || n < 0 || int64(lo)+n > int64(len(m.mem)) {
		return nil, fmt.Errorf("invalid access of %d bytes at 0x%x", n, addr)
	}
	return m.mem[lo : lo+int(n)], nil
}

func (m *Machine) load(addr uint64, t ir.Type) (uint64, error) {
	size := ir.SizeOfType(t, m.wordSize)
	b, err := m.span(addr, size)
	if err != nil {
		return 0, err
	}
	var raw uint64
	switch size {
	case 1:
		raw = uint64(b[0])
	case 2:
		raw = uint64(binary.LittleEndian.Uint16(b))
	case 4:
		raw = uint64(binary.LittleEndian.Uint32(b))
	default:
		raw = binary.LittleEndian.Uint64(b)
	}
	switch t {
	case ir.TypeSB:
		return mask(uint64(int64(int8(raw))), ir.TypeW, m.wordSize), nil
	case ir.TypeSH:
		return mask(uint64(int64(int16(raw))), ir.TypeW, m.wordSize), nil
	}
	return raw, nil
}

func (m *Machine) store(addr, v uint64, t ir.Type) error {
	size := ir.SizeOfType(t, m.wordSize)
	b, err := m.span(addr, size)
	if err != nil {
		return err
	}
	switch size {
	case 1:
		b[0] = byte(v)
	case 2:
		binary.LittleEndian.PutUint16(b, uint16(v))
	case 4:
		binary.LittleEndian.PutUint32(b, uint32(v))
	default:
		binary.LittleEndian.PutUint64(b, v)
	}
	return nil
}

// mask keeps the bits a register of type t holds.
func mask(v uint64, t ir.Type, wordSize int) uint64 {
	switch ir.RegClass(t) {
	case ir.TypeW, ir.TypeS:
		return v & 0xffffffff
	case ir.TypePtr:
		if wordSize == 4 {
			return v & 0xffffffff
		}
	}
	return v
}

// signed reads v as a two's complement number of the width of t.
func signed(v uint64, t ir.Type, wordSize int) int64 {
	if ir.SizeOfType(ir.RegClass(t), wordSize) == 4 {
		return int64(int32(v))
	}
	return int64(v)
}

func toFloat(v uint64, t ir.Type) float64 {
	if t == ir.TypeS {
		return float64(math.Float32frombits(uint32(v)))
	}
	return math.Float64frombits(v)
}

func fromFloat(f float64, t ir.Type) uint64 {
	if t == ir.TypeS {
		return uint64(math.Float32bits(float32(f)))
	}
	return math.Float64bits(f)
}

type frame struct {
	fn    *ir.Func
	temps map[string]uint64
}

func (m *Machine) trap(fr *frame, format string, args ...any) error {
	return &RuntimeError{Func: fr.fn.Name, Msg: fmt.Sprintf(format, args...)}
}

func (m *Machine) value(fr *frame, v ir.Value) (uint64, error) {
	switch v := v.(type) {
	case *ir.Const:
		return uint64(v.Value), nil
	case *ir.FloatConst:
		return fromFloat(v.Value, v.Typ), nil
	case *ir.Global:
		if addr, ok := m.strings[v.Name]; ok {
			return addr, nil
		}
		if addr, ok := m.funcAddrs[v.Name]; ok {
			return addr, nil
		}
		return 0, m.trap(fr, "unknown global $%s", v.Name)
	case *ir.Temporary:
		if val, ok := fr.temps[v.Key()]; ok {
			return val, nil
		}
		return 0, m.trap(fr, "use of undefined temporary %s", v)
	}
	return 0, m.trap(fr, "unexpected operand %v", v)
}

func (m *Machine) call(fn *ir.Func, args []uint64) (uint64, error) {
	if len(args) != len(fn.Params) {
		return 0, fmt.Errorf("%s takes %d arguments, got %d", fn.Name, len(fn.Params), len(args))
	}
	if m.depth >= maxCallDepth {
		return 0, &RuntimeError{Func: fn.Name, Msg: "call stack exhausted"}
	}
	m.depth++
	defer func() { m.depth-- }()

	fr := &frame{fn: fn, temps: make(map[string]uint64)}
	for i, p := range fn.Params {
		fr.temps[p.Val.Key()] = mask(args[i], p.Typ, m.wordSize)
	}

	index := make(map[string]int, len(fn.Blocks))
	for i, b := range fn.Blocks {
		index[b.Label.Name] = i
	}

	var prev string
	for bi := 0; bi < len(fn.Blocks); {
		block := fn.Blocks[bi]
		next := ""
		for _, instr := range block.Instructions {
			m.steps++
			if m.steps > m.MaxSteps {
				return 0, m.trap(fr, "step limit of %d exceeded", m.MaxSteps)
			}
			switch instr.Op {
			case ir.OpJmp:
				next = instr.Args[0].(*ir.Label).Name
			case ir.OpJnz:
				c, err := m.value(fr, instr.Args[0])
				if err != nil {
					return 0, err
				}
				next = instr.Args[pickArg(c&0xffffffff != 0)].(*ir.Label).Name
			case ir.OpRet:
				if len(instr.Args) == 0 {
					return 0, nil
				}
				v, err := m.value(fr, instr.Args[0])
				if err != nil {
					return 0, err
				}
				return mask(v, fn.ReturnType, m.wordSize), nil
			case ir.OpPhi:
				if err := m.phi(fr, instr, prev); err != nil {
					return 0, err
				}
			default:
				if err := m.exec(fr, instr); err != nil {
					return 0, err
				}
			}
			if next != "" {
				break
			}
		}

		if next == "" {
			// Falling off the end of a block continues with the next one.
			if bi+1 >= len(fn.Blocks) {
				return 0, m.trap(fr, "fell off the end of block @%s", block.Label.Name)
			}
			next = fn.Blocks[bi+1].Label.Name
		}
		target, ok := index[next]
		if !ok {
			return 0, m.trap(fr, "jump to unknown block @%s", next)
		}
		prev = block.Label.Name
		bi = target
	}
	return 0, nil
}

func pickArg(taken bool) int {
	if taken {
		return 1
	}
	return 2
}

func (m *Machine) phi(fr *frame, instr *ir.Instruction, prev string) error {
	for i := 0; i+1 < len(instr.Args); i += 2 {
		if instr.Args[i].(*ir.Label).Name != prev {
			continue
		}
		v, err := m.value(fr, instr.Args[i+1])
		if err != nil {
			return err
		}
		fr.temps[instr.Result.Key()] = mask(v, instr.Typ, m.wordSize)
		return nil
	}
	return m.trap(fr, "phi %s has no value for predecessor @%s", instr.Result, prev)
}

func (m *Machine) operands(fr *frame, instr *ir.Instruction) ([]uint64, error) {
	vals := make([]uint64, len(instr.Args))
	for i, a := range instr.Args {
		v, err := m.value(fr, a)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	return vals, nil
}

func (m *Machine) exec(fr *frame, instr *ir.Instruction) error {
	if instr.Op == ir.OpCall {
		return m.execCall(fr, instr)
	}
	args, err := m.operands(fr, instr)
	if err != nil {
		return err
	}
	ws := m.wordSize
	typ := instr.Typ
	operand := instr.OperandType
	if operand == ir.TypeNone {
		operand = typ
	}

	var res uint64
	switch instr.Op {
	case ir.OpAlloc:
		res, err = m.alloc(int64(args[0]), int64(instr.Align))
	case ir.OpLoad:
		res, err = m.load(args[0], typ)
	case ir.OpStore:
		return m.store(args[1], args[0], typ)
	case ir.OpBlit:
		return m.copyMem(args[1], args[0], int64(args[2]))

	case ir.OpAdd:
		res = args[0] + args[1]
	case ir.OpSub:
		res = args[0] - args[1]
	case ir.OpMul:
		res = args[0] * args[1]
	case ir.OpDiv, ir.OpRem:
		a, b := signed(args[0], typ, ws), signed(args[1], typ, ws)
		if b == 0 {
			return m.trap(fr, "integer division by zero")
		}
		res = uint64(pick(instr.Op == ir.OpDiv, a/b, a%b))
	case ir.OpUDiv, ir.OpURem:
		a, b := mask(args[0], typ, ws), mask(args[1], typ, ws)
		if b == 0 {
			return m.trap(fr, "integer division by zero")
		}
		res = pick(instr.Op == ir.OpUDiv, a/b, a%b)
	case ir.OpAnd:
		res = args[0] & args[1]
	case ir.OpOr:
		res = args[0] | args[1]
	case ir.OpXor:
		res = args[0] ^ args[1]
	case ir.OpShl:
		res = args[0] << (args[1] & 63)
	case ir.OpShr:
		res = uint64(signed(args[0], typ, ws) >> (args[1] & 63))

	case ir.OpAddF:
		res = fromFloat(toFloat(args[0], typ)+toFloat(args[1], typ), typ)
	case ir.OpSubF:
		res = fromFloat(toFloat(args[0], typ)-toFloat(args[1], typ), typ)
	case ir.OpMulF:
		res = fromFloat(toFloat(args[0], typ)*toFloat(args[1], typ), typ)
	case ir.OpDivF:
		res = fromFloat(toFloat(args[0], typ)/toFloat(args[1], typ), typ)
	case ir.OpNegF:
		res = fromFloat(-toFloat(args[0], typ), typ)

	case ir.OpCEq, ir.OpCNeq, ir.OpCLt, ir.OpCGt, ir.OpCLe, ir.OpCGe, ir.OpCULt, ir.OpCUGt, ir.OpCULe, ir.OpCUGe:
		res = boolBits(compare(instr.Op, operand, args[0], args[1], ws))

	case ir.OpExtSB:
		res = uint64(int64(int8(args[0])))
	case ir.OpExtUB:
		res = uint64(uint8(args[0]))
	case ir.OpExtSH:
		res = uint64(int64(int16(args[0])))
	case ir.OpExtUH:
		res = uint64(uint16(args[0]))
	case ir.OpExtSW:
		res = uint64(int64(int32(args[0])))
	case ir.OpExtUW:
		res = uint64(uint32(args[0]))
	case ir.OpTrunc, ir.OpCopy, ir.OpCast:
		res = args[0]

	case ir.OpFToSI:
		res = uint64(int64(toFloat(args[0], operand)))
	case ir.OpFToUI:
		res = uint64(toFloat(args[0], operand))
	case ir.OpSWToF:
		res = fromFloat(float64(int32(args[0])), typ)
	case ir.OpUWToF:
		res = fromFloat(float64(uint32(args[0])), typ)
	case ir.OpSLToF:
		res = fromFloat(float64(int64(args[0])), typ)
	case ir.OpULToF:
		res = fromFloat(float64(args[0]), typ)
	case ir.OpFToF:
		res = fromFloat(toFloat(args[0], operand), typ)

	default:
		return m.trap(fr, "cannot execute %s", instr.Op)
	}
	if err != nil {
		return m.trap(fr, "%v", err)
	}
	if instr.Result != nil {
		fr.temps[instr.Result.Key()] = mask(res, typ, ws)
	}
	return nil
}

func pick[T any](cond bool, a, b T) T {
	if cond {
		return a
	}
	return b
}

func boolBits(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

func compare(op ir.Op, t ir.Type, a, b uint64, ws int) bool {
	if ir.IsFloat(t) {
		x, y := toFloat(a, t), toFloat(b, t)
		switch op {
		case ir.OpCEq:
			return x == y
		case ir.OpCNeq:
			return x != y
		case ir.OpCLt:
			return x < y
		case ir.OpCGt:
			return x > y
		case ir.OpCLe:
			return x <= y
		case ir.OpCGe:
			return x >= y
		}
		return false
	}
	sa, sb := signed(a, t, ws), signed(b, t, ws)
	ua, ub := mask(a, t, ws), mask(b, t, ws)
	switch op {
	case ir.OpCEq:
		return ua == ub
	case ir.OpCNeq:
		return ua != ub
	case ir.OpCLt:
		return sa < sb
	case ir.OpCGt:
		return sa > sb
	case ir.OpCLe:
		return sa <= sb
	case ir.OpCGe:
		return sa >= sb
	case ir.OpCULt:
		return ua < ub
	case ir.OpCUGt:
		return ua > ub
	case ir.OpCULe:
		return ua <= ub
	case ir.OpCUGe:
		return ua >= ub
	}
	return false
}

func (m *Machine) copyMem(dst, src uint64, n int64) error {
	if n == 0 {
		return nil
	}
	d, err := m.span(dst, n)
	if err != nil {
		return err
	}
	s, err := m.span(src, n)
	if err != nil {
		return err
	}
	copy(d, s)
	return nil
}

func (m *Machine) execCall(fr *frame, instr *ir.Instruction) error {
	// A named callee may be a builtin, which has no address to evaluate.
	name := ""
	if g, ok := instr.Args[0].(*ir.Global); ok {
		name = g.Name
	} else {
		fp, err := m.value(fr, instr.Args[0])
		if err != nil {
			return err
		}
		n, known := m.addrFuncs[fp]
		if !known {
			return m.trap(fr, "call through invalid function pointer 0x%x", fp)
		}
		name = n
	}
	vals := make([]uint64, len(instr.Args))
	for i, a := range instr.Args[1:] {
		v, err := m.value(fr, a)
		if err != nil {
			return err
		}
		vals[i+1] = v
	}

	var res uint64
	var err error
	if fn, ok := m.funcs[name]; ok {
		res, err = m.call(fn, vals[1:])
	} else {
		res, err = m.builtin(name, vals[1:])
	}
	if err != nil {
		if _, isTrap := err.(*RuntimeError); isTrap {
			return err
		}
		return m.trap(fr, "%v", err)
	}
	if instr.Result != nil {
		fr.temps[instr.Result.Key()] = mask(res, instr.Typ, m.wordSize)
	}
	return nil
}

// builtin implements the runtime primitives. Each print_* writes one line.
func (m *Machine) builtin(name string, args []uint64) (uint64, error) {
	switch name {
	case "malloc":
		m.Mallocs++
		return m.alloc(int64(args[0]), 16)
	case "memset":
		b, err := m.span(args[0], int64(args[2]))
		if err != nil {
			return 0, err
		}
		for i := range b {
			b[i] = byte(args[1])
		}
		return args[0], nil
	case "memcpy":
		return args[0], m.copyMem(args[0], args[1], int64(args[2]))
	case "print_i64":
		_, err := fmt.Fprintln(m.Stdout, int64(args[0]))
		return 0, err
	case "print_f64":
		_, err := fmt.Fprintln(m.Stdout, strconv.FormatFloat(math.Float64frombits(args[0]), 'g', -1, 64))
		return 0, err
	case "print_str":
		s, err := m.cString(args[0])
		if err != nil {
			return 0, err
		}
		_, err = fmt.Fprintln(m.Stdout, s)
		return 0, err
	}
	return 0, fmt.Errorf("extern function '%s' is not available in the interpreter", name)
}

func (m *Machine) cString(addr uint64) (string, error) {
	if _, err := m.span(addr, 1); err != nil {
		return "", err
	}
	lo := int(addr)
	for i := lo; i < len(m.mem); i++ {
		if m.mem[i] == 0 {
			return string(m.mem[lo:i]), nil
		}
	}
	return "", fmt.Errorf("unterminated string at 0x%x", addr)
}
