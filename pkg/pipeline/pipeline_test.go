package pipeline

import (
	"io"
	"strings"
	"testing"

	"github.com/Zeeeepa/lynlang-sub004/pkg/cache"
	"github.com/Zeeeepa/lynlang-sub004/pkg/config"
	"github.com/Zeeeepa/lynlang-sub004/pkg/corpus"
	"github.com/Zeeeepa/lynlang-sub004/pkg/util"
	"github.com/nalgeon/be"
)

func newConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.NewConfig()
	cfg.Stderr = io.Discard
	cfg.SetTarget("linux", "amd64", "amd64_sysv")
	return cfg
}

func quiet(t *testing.T) {
	t.Helper()
	old := util.Stderr
	util.Stderr = io.Discard
	t.Cleanup(func() { util.Stderr = old })
}

func TestCorpus(t *testing.T) {
	quiet(t)
	cases, err := corpus.Load("testdata/*.md")
	be.Err(t, err, nil)
	be.True(t, len(cases) > 0)

	for _, tc := range cases {
		t.Run(tc.Name, func(t *testing.T) {
			src := []Source{{Name: tc.File, Text: tc.Input}}

			if want, ok := tc.Expect(corpus.AssertCompileError); ok {
				_, err := New(newConfig(t)).Compile(src)
				if err == nil {
					t.Fatalf("%s:%d: expected a compile error", tc.File, tc.Line)
				}
				kind, msg := want.CompileError()
				got, ok := util.KindOf(err)
				be.True(t, ok)
				be.Equal(t, got.String(), kind)
				if !strings.Contains(err.Error(), msg) {
					t.Errorf("%s:%d: error %q does not contain %q", tc.File, want.Line, err, msg)
				}
				return
			}

			var out strings.Builder
			code, err := New(newConfig(t)).Run(src, &out)
			if err != nil {
				t.Fatalf("%s:%d: %v", tc.File, tc.Line, err)
			}
			if want, ok := tc.Expect(corpus.AssertExecute); ok {
				be.Equal(t, strings.TrimRight(out.String(), "\n"), want.Content)
			}
			wantCode, err := tc.ExitCode()
			be.Err(t, err, nil)
			be.Equal(t, code, wantCode)
		})
	}
}

// Every program that runs must also render through both text backends.
func TestCorpusRendersOnBothBackends(t *testing.T) {
	quiet(t)
	cases, err := corpus.Load("testdata/*.md")
	be.Err(t, err, nil)

	for _, tc := range cases {
		if _, ok := tc.Expect(corpus.AssertCompileError); ok {
			continue
		}
		t.Run(tc.Name, func(t *testing.T) {
			c := New(newConfig(t))
			prog, err := c.Compile([]Source{{Name: tc.File, Text: tc.Input}})
			be.Err(t, err, nil)
			for _, kind := range []EmitKind{EmitIR, EmitSSA, EmitLLVM} {
				text, err := c.Render(prog, kind)
				be.Err(t, err, nil)
				be.True(t, strings.Contains(string(text), "main"))
			}
		})
	}
}

func TestParseEmitKind(t *testing.T) {
	k, err := ParseEmitKind("llvm")
	be.Err(t, err, nil)
	be.Equal(t, k, EmitLLVM)
	_, err = ParseEmitKind("wasm")
	be.Err(t, err, "unknown output kind")
}

const cached = "fn main() i32 { print_i64(3); return 0 }"

func TestEmitUsesCache(t *testing.T) {
	quiet(t)
	cfg := newConfig(t)
	cfg.SetFeature(config.FeatIRCache, true)
	c := New(cfg)
	c.Cache = cache.New("")

	src := []Source{{Name: "a.lyn", Text: cached}}
	first, err := c.Emit(src, EmitSSA)
	be.Err(t, err, nil)
	second, err := c.Emit(src, EmitSSA)
	be.Err(t, err, nil)
	be.Equal(t, string(second), string(first))
	be.Equal(t, c.Cache.Stats(), cache.Stats{Hits: 1, Misses: 1, Writes: 1})

	// A different output kind or feature set is a different entry.
	_, err = c.Emit(src, EmitIR)
	be.Err(t, err, nil)
	cfg.SetFeature(config.FeatStrictRaise, true)
	_, err = c.Emit(src, EmitSSA)
	be.Err(t, err, nil)
	be.Equal(t, c.Cache.Stats().Misses, 3)
}

func TestEmitWithoutCacheFeature(t *testing.T) {
	quiet(t)
	cfg := newConfig(t)
	cfg.SetFeature(config.FeatIRCache, false)
	c := New(cfg)
	c.Cache = cache.New("")

	src := []Source{{Name: "a.lyn", Text: cached}}
	for range 2 {
		_, err := c.Emit(src, EmitIR)
		be.Err(t, err, nil)
	}
	be.Equal(t, c.Cache.Stats(), cache.Stats{})
}

func TestMultipleSources(t *testing.T) {
	quiet(t)
	srcs := []Source{
		{Name: "lib.lyn", Text: "fn double(x: i64) i64 { return x * 2 }"},
		{Name: "main.lyn", Text: "fn main() i32 { print_i64(double(21)); return 0 }"},
	}
	var out strings.Builder
	code, err := New(newConfig(t)).Run(srcs, &out)
	be.Err(t, err, nil)
	be.Equal(t, code, 0)
	be.Equal(t, out.String(), "42\n")
}

func TestErrorsNameTheirFile(t *testing.T) {
	quiet(t)
	srcs := []Source{
		{Name: "ok.lyn", Text: "fn main() i32 { return 0 }"},
		{Name: "bad.lyn", Text: "fn f() i32 { return true }"},
	}
	_, err := New(newConfig(t)).Compile(srcs)
	be.Err(t, err, "bad.lyn:1:")
	kind, _ := util.KindOf(err)
	be.Equal(t, kind, util.ErrTypeMismatch)
}

func TestRunString(t *testing.T) {
	quiet(t)
	out, code, err := RunString(newConfig(t), "s.lyn", `fn main() i32 { print_str("hi"); return 4 }`)
	be.Err(t, err, nil)
	be.Equal(t, out, "hi\n")
	be.Equal(t, code, 4)
}
