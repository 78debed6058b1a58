// Package corpus reads markdown test files. Each `## Test: name` heading
// starts a case made of one `lyn` program fence followed by assertion
// fences:
//
//	execute        expected standard output of main
//	exit           expected exit status of main
//	compile-error  expected error kind, optionally ": message substring"
package corpus

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

const InputFence = "lyn"

type AssertionType string

const (
	AssertExecute      AssertionType = "execute"
	AssertExit         AssertionType = "exit"
	AssertCompileError AssertionType = "compile-error"
)

type Assertion struct {
	Type    AssertionType
	Content string
	Line    int
}

type TestCase struct {
	Name       string
	File       string
	Line       int
	Input      string
	Assertions []Assertion
}

// Expect returns the first assertion of the given type.
func (tc *TestCase) Expect(t AssertionType) (Assertion, bool) {
	for _, a := range tc.Assertions {
		if a.Type == t {
			return a, true
		}
	}
	return Assertion{}, false
}

// ExitCode is the expected exit status, 0 when the case does not say.
func (tc *TestCase) ExitCode() (int, error) {
	a, ok := tc.Expect(AssertExit)
	if !ok {
		return 0, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(a.Content))
	if err != nil {
		return 0, fmt.Errorf("%s:%d: bad exit fence: %w", tc.File, a.Line, err)
	}
	return n, nil
}

// CompileError splits a compile-error fence into kind and message substring.
func (a Assertion) CompileError() (kind, msg string) {
	kind, msg, _ = strings.Cut(a.Content, ":")
	return strings.TrimSpace(kind), strings.TrimSpace(msg)
}

func isAssertionFence(lang string) bool {
	switch AssertionType(lang) {
	case AssertExecute, AssertExit, AssertCompileError:
		return true
	}
	return false
}

// Load reads every *.md file matching pattern.
func Load(pattern string) ([]TestCase, error) {
	files, err := filepath.Glob(pattern)
	if err != nil {
		return nil, err
	}
	var all []TestCase
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, err
		}
		cases, err := Extract(f, data)
		if err != nil {
			return nil, err
		}
		all = append(all, cases...)
	}
	return all, nil
}

// Extract parses one markdown document into test cases.
func Extract(file string, source []byte) ([]TestCase, error) {
	doc := goldmark.New().Parser().Parse(text.NewReader(source))

	var cases []TestCase
	var current *TestCase
	flush := func() error {
		if current == nil {
			return nil
		}
		if current.Input == "" {
			return fmt.Errorf("%s:%d: test '%s' has no %s fence", file, current.Line, current.Name, InputFence)
		}
		if len(current.Assertions) == 0 {
			return fmt.Errorf("%s:%d: test '%s' has no assertion fences", file, current.Line, current.Name)
		}
		cases = append(cases, *current)
		return nil
	}

	err := ast.Walk(doc, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n := node.(type) {
		case *ast.Heading:
			heading := nodeText(n, source)
			name, ok := strings.CutPrefix(heading, "Test: ")
			if !ok {
				return ast.WalkContinue, nil
			}
			if err := flush(); err != nil {
				return ast.WalkStop, err
			}
			current = &TestCase{Name: name, File: file, Line: lineOf(n, source)}

		case *ast.FencedCodeBlock:
			lang := string(n.Language(source))
			line := lineOf(n, source)
			content := strings.TrimRight(fenceContent(n, source), "\n")
			if lang == "" {
				return ast.WalkContinue, nil
			}
			if current == nil {
				return ast.WalkStop, fmt.Errorf("%s:%d: %s fence outside of a test case", file, line, lang)
			}
			switch {
			case lang == InputFence:
				if current.Input != "" {
					return ast.WalkStop, fmt.Errorf("%s:%d: multiple %s fences in test '%s'", file, line, InputFence, current.Name)
				}
				current.Input = content
			case isAssertionFence(lang):
				current.Assertions = append(current.Assertions, Assertion{Type: AssertionType(lang), Content: content, Line: line})
			default:
				return ast.WalkStop, fmt.Errorf("%s:%d: unknown fence language '%s' in test '%s'", file, line, lang, current.Name)
			}
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, err
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return cases, nil
}

func nodeText(node ast.Node, source []byte) string {
	var buf bytes.Buffer
	ast.Walk(node, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if t, ok := n.(*ast.Text); ok && entering {
			buf.Write(t.Segment.Value(source))
		}
		return ast.WalkContinue, nil
	})
	return buf.String()
}

func fenceContent(block *ast.FencedCodeBlock, source []byte) string {
	var buf bytes.Buffer
	for i := 0; i < block.Lines().Len(); i++ {
		line := block.Lines().At(i)
		buf.Write(line.Value(source))
	}
	return buf.String()
}

func lineOf(node ast.Node, source []byte) int {
	var start int
	switch {
	case node.Lines().Len() > 0:
		start = node.Lines().At(0).Start
	case node.FirstChild() != nil && node.FirstChild().Kind() == ast.KindText:
		start = node.FirstChild().(*ast.Text).Segment.Start
	default:
		return 1
	}
	return bytes.Count(source[:min(start, len(source))], []byte("\n")) + 1
}
