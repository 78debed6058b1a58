// Package pipeline drives a compilation from source text to IR, backend
// text or an interpreted run.
package pipeline

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/Zeeeepa/lynlang-sub004/pkg/cache"
	"github.com/Zeeeepa/lynlang-sub004/pkg/codegen"
	"github.com/Zeeeepa/lynlang-sub004/pkg/config"
	"github.com/Zeeeepa/lynlang-sub004/pkg/interp"
	"github.com/Zeeeepa/lynlang-sub004/pkg/ir"
	"github.com/Zeeeepa/lynlang-sub004/pkg/lexer"
	"github.com/Zeeeepa/lynlang-sub004/pkg/parser"
	"github.com/Zeeeepa/lynlang-sub004/pkg/token"
	"github.com/Zeeeepa/lynlang-sub004/pkg/typeChecker"
	"github.com/Zeeeepa/lynlang-sub004/pkg/util"
)

type Source struct {
	Name string
	Text string
}

type EmitKind string

const (
	EmitIR   EmitKind = "ir"
	EmitSSA  EmitKind = "ssa"
	EmitLLVM EmitKind = "llvm"
	EmitAsm  EmitKind = "asm"
)

func ParseEmitKind(s string) (EmitKind, error) {
	switch k := EmitKind(s); k {
	case EmitIR, EmitSSA, EmitLLVM, EmitAsm:
		return k, nil
	}
	return "", fmt.Errorf("unknown output kind '%s' (want ir, ssa, llvm or asm)", s)
}

// Compiler runs the stages in order. Cache is consulted by Emit when the
// ir-cache feature is enabled.
type Compiler struct {
	Cfg     *config.Config
	Cache   *cache.Cache
	Verbose bool
}

func New(cfg *config.Config) *Compiler { return &Compiler{Cfg: cfg} }

func (c *Compiler) info(format string, args ...any) {
	if c.Verbose {
		util.Info(format, args...)
	}
}

func (c *Compiler) tokenize(srcs []Source) ([]token.Token, error) {
	records := make([]util.SourceFileRecord, len(srcs))
	var all []token.Token
	for i, s := range srcs {
		content := []rune(s.Text)
		records[i] = util.SourceFileRecord{Name: s.Name, Content: content}
		util.SetSourceFiles(records[:i+1])
		toks, err := lexer.Tokenize(content, i, c.Cfg)
		if err != nil {
			return nil, err
		}
		all = append(all, toks[:len(toks)-1]...)
	}
	last := max(len(srcs)-1, 0)
	return append(all, token.Token{Type: token.EOF, FileIndex: last}), nil
}

// Compile lexes, parses, checks and lowers the sources to IR.
func (c *Compiler) Compile(srcs []Source) (*ir.Program, error) {
	c.info("Tokenizing %d source file(s)...", len(srcs))
	toks, err := c.tokenize(srcs)
	if err != nil {
		return nil, err
	}

	c.info("Parsing tokens into AST...")
	root, err := parser.Parse(toks)
	if err != nil {
		return nil, err
	}

	c.info("Type checking...")
	tc := typeChecker.NewTypeChecker(c.Cfg)
	if err := tc.Check(root); err != nil {
		return nil, err
	}

	c.info("Creating intermediate representation...")
	ctx := codegen.NewContext(c.Cfg, tc, tc.Signatures(), tc.Registry())
	return ctx.GenerateIR(root)
}

func (c *Compiler) cacheKey(srcs []Source, kind EmitKind) cache.Key {
	parts := []string{c.Cfg.Fingerprint(), string(kind)}
	for _, s := range srcs {
		parts = append(parts, s.Name, s.Text)
	}
	return cache.KeyOf(parts...)
}

// Emit compiles the sources and renders them as kind.
func (c *Compiler) Emit(srcs []Source, kind EmitKind) ([]byte, error) {
	useCache := c.Cache != nil && c.Cfg.IsFeatureEnabled(config.FeatIRCache)
	var key cache.Key
	if useCache {
		key = c.cacheKey(srcs, kind)
		if data, ok := c.Cache.Get(key); ok {
			c.info("Using cached output %s", key)
			return data, nil
		}
	}

	prog, err := c.Compile(srcs)
	if err != nil {
		return nil, err
	}
	data, err := c.Render(prog, kind)
	if err != nil {
		return nil, err
	}
	if useCache {
		if err := c.Cache.Put(key, data); err != nil {
			return nil, err
		}
	}
	return data, nil
}

// Render turns a compiled program into the requested output.
func (c *Compiler) Render(prog *ir.Program, kind EmitKind) ([]byte, error) {
	switch kind {
	case EmitIR:
		var buf bytes.Buffer
		ir.Print(&buf, prog)
		return buf.Bytes(), nil
	case EmitSSA:
		text, err := codegen.NewQBEBackend().GenerateIR(prog, c.Cfg)
		return []byte(text), err
	case EmitLLVM:
		text, err := codegen.NewLLVMBackend().GenerateIR(prog, c.Cfg)
		return []byte(text), err
	}

	c.info("Generating code with '%s' backend...", c.Cfg.BackendName)
	backend, err := codegen.NewBackend(c.Cfg.BackendName)
	if err != nil {
		return nil, err
	}
	out, err := backend.Generate(prog, c.Cfg)
	if err != nil {
		return nil, fmt.Errorf("backend code generation failed: %w", err)
	}
	return out.Bytes(), nil
}

// Run interprets main and returns its exit status.
func (c *Compiler) Run(srcs []Source, stdout io.Writer) (int, error) {
	prog, err := c.Compile(srcs)
	if err != nil {
		return 0, err
	}
	c.info("Running main...")
	m := interp.New(prog)
	m.Stdout = stdout
	return m.Run()
}

// RunString compiles and runs a single source, returning its output.
func RunString(cfg *config.Config, name, src string) (string, int, error) {
	var out strings.Builder
	code, err := New(cfg).Run([]Source{{Name: name, Text: src}}, &out)
	return out.String(), code, err
}
