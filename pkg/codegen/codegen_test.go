package codegen_test

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/Zeeeepa/lynlang-sub004/pkg/codegen"
	"github.com/Zeeeepa/lynlang-sub004/pkg/config"
	"github.com/Zeeeepa/lynlang-sub004/pkg/interp"
	"github.com/Zeeeepa/lynlang-sub004/pkg/ir"
	"github.com/Zeeeepa/lynlang-sub004/pkg/pipeline"
	"github.com/Zeeeepa/lynlang-sub004/pkg/util"
	"github.com/google/go-cmp/cmp"
	"github.com/nalgeon/be"
)

func newConfig(target string) *config.Config {
	cfg := config.NewConfig()
	cfg.Stderr = io.Discard
	cfg.SetTarget("linux", "amd64", target)
	return cfg
}

// captureStderr redirects diagnostics for the duration of the test.
func captureStderr(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	old := util.Stderr
	util.Stderr = &buf
	t.Cleanup(func() { util.Stderr = old })
	return &buf
}

func compile(t *testing.T, cfg *config.Config, src string) (*ir.Program, error) {
	t.Helper()
	return pipeline.New(cfg).Compile([]pipeline.Source{{Name: "test.lyn", Text: src}})
}

func mustCompile(t *testing.T, cfg *config.Config, src string) *ir.Program {
	t.Helper()
	prog, err := compile(t, cfg, src)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	return prog
}

func run(t *testing.T, prog *ir.Program) (*interp.Machine, string, int) {
	t.Helper()
	var out strings.Builder
	m := interp.New(prog)
	m.Stdout = &out
	code, err := m.Run()
	be.Err(t, err, nil)
	return m, out.String(), code
}

func labels(fn *ir.Func) []string {
	var out []string
	for _, b := range fn.Blocks {
		out = append(out, b.Label.Name)
	}
	return out
}

func count(fn *ir.Func, match func(*ir.Instruction) bool) int {
	n := 0
	for _, b := range fn.Blocks {
		for _, instr := range b.Instructions {
			if match(instr) {
				n++
			}
		}
	}
	return n
}

func callsTo(name string) func(*ir.Instruction) bool {
	return func(instr *ir.Instruction) bool {
		if instr.Op != ir.OpCall {
			return false
		}
		g, ok := instr.Args[0].(*ir.Global)
		return ok && g.Name == name
	}
}

func TestInlinePayloadsDoNotAllocate(t *testing.T) {
	captureStderr(t)
	prog := mustCompile(t, newConfig("amd64_sysv"), `
fn main() i32 {
    let a: Option<i64> = Some(5)
    let b: Result<f64, u8> = Err(3)
    let c: Option<String> = Some("s")
    return 0
}`)
	m, _, _ := run(t, prog)
	be.Equal(t, m.Mallocs, 0)
	be.Equal(t, count(prog.FindFunc("main"), callsTo("malloc")), 0)
}

func TestStructPayloadIsBoxedOnce(t *testing.T) {
	captureStderr(t)
	prog := mustCompile(t, newConfig("amd64_sysv"), `
struct Pair { a: i64, b: i64 }
fn main() i32 {
    let r: Result<Pair, i32> = Ok(Pair { a: 1, b: 2 })
    match r { Ok(p) => { return (p.a + p.b) as i32 }, Err(_) => {} }
    return 0
}`)
	m, _, code := run(t, prog)
	be.Equal(t, code, 3)
	be.Equal(t, m.Mallocs, 1)

	main := prog.FindFunc("main")
	be.Equal(t, count(main, callsTo("malloc")), 1)
	be.Equal(t, count(main, callsTo("free")), 0)
}

func TestWideScalarIsBoxedOnNarrowWords(t *testing.T) {
	captureStderr(t)
	src := `
fn main() i32 {
    let a: Option<i64> = Some(40000000000)
    match a { Some(v) => { return (v / 10000000000) as i32 }, None => {} }
    return 0
}`
	m, _, code := run(t, mustCompile(t, newConfig("rv32"), src))
	be.Equal(t, code, 4)
	be.Equal(t, m.Mallocs, 1)

	m, _, code = run(t, mustCompile(t, newConfig("amd64_sysv"), src))
	be.Equal(t, code, 4)
	be.Equal(t, m.Mallocs, 0)
}

func TestRaiseBlocks(t *testing.T) {
	captureStderr(t)
	prog := mustCompile(t, newConfig("amd64_sysv"), `
fn half(n: i32) Result<i32, String> {
    if n % 2 == 1 { return Err("odd") }
    return Ok(n / 2)
}
fn quarter(n: i32) Result<i32, String> {
    let h = half(n).raise()
    return Ok(half(h).raise())
}
fn main() i32 {
    return match quarter(12) { Ok(v) => v, Err(_) => 99 }
}`)
	got := labels(prog.FindFunc("quarter"))
	for _, want := range []string{"raise.check.0", "raise.ok.0", "raise.err.0", "raise.cont.0", "raise.cont.1"} {
		be.True(t, contains(got, want))
	}
	_, _, code := run(t, prog)
	be.Equal(t, code, 3)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func TestRaiseConvertsNumericErrors(t *testing.T) {
	captureStderr(t)
	prog := mustCompile(t, newConfig("amd64_sysv"), `
fn inner() Result<i32, u8> { return Err(200) }
fn outer() Result<i32, i64> {
    let v = inner().raise()
    return Ok(v)
}
fn main() i32 {
    return match outer() { Ok(_) => 0, Err(e) => (e - 150) as i32 }
}`)
	_, _, code := run(t, prog)
	be.Equal(t, code, 50)
}

func TestRaiseOptionIntoResultYieldsZeroErr(t *testing.T) {
	captureStderr(t)
	prog := mustCompile(t, newConfig("amd64_sysv"), `
fn none() Option<i32> { return None }
fn wrap() Result<i32, i64> {
    let v = none().raise()
    return Ok(v)
}
fn main() i32 {
    return match wrap() { Ok(_) => 1, Err(e) => (e + 7) as i32 }
}`)
	_, _, code := run(t, prog)
	be.Equal(t, code, 7)
}

const sentinelSrc = `
fn unwrap(o: Option<i32>) i32 {
    let v = o.raise()
    return v
}
fn main() i32 { return unwrap(None) }`

func TestRaiseSentinel(t *testing.T) {
	stderr := captureStderr(t)
	cfg := newConfig("amd64_sysv")
	cfg.SetWarning(config.WarnRaiseSentinel, true)

	_, _, code := run(t, mustCompile(t, cfg, sentinelSrc))
	be.Equal(t, code, 1)
	be.True(t, strings.Contains(stderr.String(), "-Wraise-sentinel"))
}

func TestStrictRaise(t *testing.T) {
	captureStderr(t)
	cfg := newConfig("amd64_sysv")
	cfg.SetFeature(config.FeatStrictRaise, true)

	_, err := compile(t, cfg, sentinelSrc)
	kind, _ := util.KindOf(err)
	be.Equal(t, kind, util.ErrUnsupportedRaiseTarget)
	be.Err(t, err, "function 'unwrap'")
}

const unknownPayloadSrc = `
fn main() i32 {
    let o = None
    match o { Some(v) => { return v }, None => {} }
    return 5
}`

func TestUnknownPayloadDefaultsToI32(t *testing.T) {
	stderr := captureStderr(t)
	cfg := newConfig("amd64_sysv")
	cfg.SetWarning(config.WarnGenericFallback, true)

	_, _, code := run(t, mustCompile(t, cfg, unknownPayloadSrc))
	be.Equal(t, code, 5)
	be.True(t, strings.Contains(stderr.String(), "OptionSome"))
}

func TestStrictGenerics(t *testing.T) {
	captureStderr(t)
	cfg := newConfig("amd64_sysv")
	cfg.SetFeature(config.FeatStrictGenerics, true)

	_, err := compile(t, cfg, unknownPayloadSrc)
	kind, _ := util.KindOf(err)
	be.Equal(t, kind, util.ErrUnresolvedGenericType)
}

func TestGuardFailureFallsToNextArm(t *testing.T) {
	captureStderr(t)
	prog := mustCompile(t, newConfig("amd64_sysv"), `
fn main() i32 {
    let o: Option<i32> = Some(4)
    return match o {
        Some(v) if v > 10 => 1,
        Some(v) if v > 3 => 2,
        _ => 3,
    }
}`)
	main := prog.FindFunc("main")
	be.Equal(t, count(main, func(i *ir.Instruction) bool { return i.Op == ir.OpPhi }), 1)
	_, _, code := run(t, prog)
	be.Equal(t, code, 2)
}

func TestMatchWithoutMatchingArmYieldsZero(t *testing.T) {
	captureStderr(t)
	prog := mustCompile(t, newConfig("amd64_sysv"), `
fn pick(n: i32) i64 { return match n { 1 => 10, 2 => 20 } }
fn main() i32 { return (pick(1) + pick(2) + pick(3)) as i32 }`)
	_, _, code := run(t, prog)
	be.Equal(t, code, 30)
}

func TestShadowWarning(t *testing.T) {
	stderr := captureStderr(t)
	cfg := newConfig("amd64_sysv")
	cfg.SetWarning(config.WarnShadow, true)

	_, out, _ := run(t, mustCompile(t, cfg, `
fn main() i32 {
    let v: i64 = 9
    let o: Option<i64> = Some(1)
    match o { Some(v) => print_i64(v), None => {} }
    print_i64(v)
    return 0
}`))
	be.Equal(t, out, "1\n9\n")
	be.True(t, strings.Contains(stderr.String(), "-Wshadow"))
}

func TestAccessorBounds(t *testing.T) {
	captureStderr(t)
	prog := mustCompile(t, newConfig("amd64_sysv"), `
fn at(xs: Array<i32>, i: i32) i32 {
    return match xs.get(i) { Some(v) => v, None => -1 }
}
fn main() i32 {
    let xs: Array<i32> = [7, 8, 9]
    print_i64(at(xs, 0) as i64)
    print_i64(at(xs, 2) as i64)
    print_i64(at(xs, 3) as i64)
    print_i64(at(xs, -1) as i64)
    return 0
}`)
	got := labels(prog.FindFunc("at"))
	for _, want := range []string{"get.some.0", "get.none.0", "get.end.0"} {
		be.True(t, contains(got, want))
	}
	_, out, _ := run(t, prog)
	if diff := cmp.Diff([]string{"7", "9", "-1", "-1"}, strings.Fields(out)); diff != "" {
		t.Errorf("output (-want +got):\n%s", diff)
	}
}

func TestPopDecrementsOnce(t *testing.T) {
	captureStderr(t)
	prog := mustCompile(t, newConfig("amd64_sysv"), `
fn main() i32 {
    var xs: Array<i64> = [1, 2, 3]
    var total: i64 = 0
    var pops = 0
    while true {
        match xs.pop() {
            Some(v) => { total = total * 10 + v; pops = pops + 1 },
            None => { break },
        }
    }
    print_i64(total)
    print_i64(xs.len())
    return pops
}`)
	_, out, code := run(t, prog)
	be.Equal(t, out, "321\n0\n")
	be.Equal(t, code, 3)
}

func TestBackendsRenderUnions(t *testing.T) {
	captureStderr(t)
	cfg := newConfig("amd64_sysv")
	prog := mustCompile(t, cfg, `
struct P { x: i64, y: i64 }
fn mk(ok: bool) Result<P, String> {
    if ok { return Ok(P { x: 1, y: 2 }) }
    return Err("no")
}
fn main() i32 {
    let r = mk(true)
    return match r { Ok(p) => p.x as i32, Err(_) => 0 }
}`)

	ssa, err := codegen.NewQBEBackend().GenerateIR(prog, cfg)
	be.Err(t, err, nil)
	be.True(t, strings.Contains(ssa, "function w $main("))
	be.True(t, strings.Contains(ssa, "call $malloc"))

	ll, err := codegen.NewLLVMBackend().GenerateIR(prog, cfg)
	be.Err(t, err, nil)
	be.True(t, strings.Contains(ll, "define i32 @main()"))
	be.True(t, strings.Contains(ll, "@malloc"))
}

func TestUnknownBackend(t *testing.T) {
	_, err := codegen.NewBackend("gcc")
	be.Err(t, err, "gcc")
}

func TestRaiseRoundTripsEveryPrimitive(t *testing.T) {
	captureStderr(t)
	rows := []struct {
		typ, lit, print, want string
	}{
		{"i8", "-5", "print_i64(x as i64)", "-5"},
		{"u8", "200", "print_i64(x as i64)", "200"},
		{"i16", "-300", "print_i64(x as i64)", "-300"},
		{"u16", "65535", "print_i64(x as i64)", "65535"},
		{"i32", "-70000", "print_i64(x as i64)", "-70000"},
		{"u32", "4000000000", "print_i64(x as i64)", "4000000000"},
		{"i64", "-5000000000", "print_i64(x)", "-5000000000"},
		{"u64", "9000000000000000000", "print_i64(x as i64)", "9000000000000000000"},
		{"f32", "1.5", "print_f64(x as f64)", "1.5"},
		{"f64", "-2.25", "print_f64(x)", "-2.25"},
		{"bool", "true", "print_i64(x as i64)", "1"},
	}
	for _, target := range []string{"amd64_sysv", "rv32"} {
		for _, row := range rows {
			t.Run(target+"/"+row.typ, func(t *testing.T) {
				src := fmt.Sprintf(`
fn pass(v: %[1]s) Result<%[1]s, String> { return Ok(v) }
fn relay(v: %[1]s) Result<%[1]s, String> {
    let x = pass(v).raise()
    %[3]s
    return Ok(x)
}
fn main() i32 {
    match relay(%[2]s) { Ok(_) => {}, Err(m) => print_str(m) }
    return 0
}`, row.typ, row.lit, row.print)
				_, out, code := run(t, mustCompile(t, newConfig(target), src))
				be.Equal(t, code, 0)
				be.Equal(t, out, row.want+"\n")
			})
		}
	}
}

type loadShape struct {
	Op  ir.Op
	Typ ir.Type
}

// payloadLoads lists the loads of the last raise.ok block in fn.
func payloadLoads(t *testing.T, fn *ir.Func) []loadShape {
	t.Helper()
	var last *ir.BasicBlock
	for _, b := range fn.Blocks {
		if strings.HasPrefix(b.Label.Name, "raise.ok.") {
			last = b
		}
	}
	if last == nil {
		t.Fatalf("%s has no raise.ok block", fn.Name)
	}
	var out []loadShape
	for _, instr := range last.Instructions {
		if instr.Op == ir.OpLoad {
			out = append(out, loadShape{instr.Op, instr.Typ})
		}
	}
	return out
}

func TestChainedRaiseLoadsLikeDirectRaise(t *testing.T) {
	captureStderr(t)
	for _, target := range []string{"amd64_sysv", "rv32"} {
		for _, typ := range []string{"i8", "u16", "i64", "f32", "f64"} {
			t.Run(target+"/"+typ, func(t *testing.T) {
				prog := mustCompile(t, newConfig(target), fmt.Sprintf(`
fn chained(r: Result<Option<%[1]s>, String>) Result<%[1]s, String> {
    let v = r.raise().raise()
    return Ok(v)
}
fn direct(o: Option<%[1]s>) Result<%[1]s, String> {
    let v = o.raise()
    return Ok(v)
}
fn main() i32 { return 0 }`, typ))
				want := payloadLoads(t, prog.FindFunc("direct"))
				got := payloadLoads(t, prog.FindFunc("chained"))
				be.True(t, len(want) > 0)
				if diff := cmp.Diff(want, got); diff != "" {
					t.Errorf("final payload loads (-direct +chained):\n%s", diff)
				}
			})
		}
	}
}
