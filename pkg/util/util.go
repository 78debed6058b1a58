package util

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Zeeeepa/lynlang-sub004/pkg/config"
	"github.com/Zeeeepa/lynlang-sub004/pkg/token"
	"github.com/mattn/go-isatty"
)

// Stderr receives every diagnostic.
var Stderr io.Writer = os.Stderr

// SourceFileRecord tracks the name and content of a single source file.
type SourceFileRecord struct {
	Name    string
	Content []rune
}

var sourceFiles []SourceFileRecord

// SetSourceFiles stores the source code for all input files for rich error messages
func SetSourceFiles(files []SourceFileRecord) {
	sourceFiles = files
}

// findFileAndLine converts a global token to a file-specific location
func findFileAndLine(tok token.Token) (filename string, line, col int) {
	if tok.FileIndex < 0 || tok.FileIndex >= len(sourceFiles) {
		return "<input>", tok.Line, tok.Column
	}
	return sourceFiles[tok.FileIndex].Name, tok.Line, tok.Column
}

func colorEnabled(w io.Writer) bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	if !isatty.IsTerminal(f.Fd()) && !isatty.IsCygwinTerminal(f.Fd()) {
		return false
	}
	return os.Getenv("TERM") != "dumb"
}

func paint(w io.Writer, code, s string) string {
	if !colorEnabled(w) {
		return s
	}
	return "\033[" + code + "m" + s + "\033[0m"
}

// printErrorLine prints the source line and a caret indicating the error position
func printErrorLine(w io.Writer, tok token.Token) {
	if tok.FileIndex < 0 || tok.FileIndex >= len(sourceFiles) || tok.Line == 0 {
		return
	}

	content := sourceFiles[tok.FileIndex].Content
	lineNum := tok.Line
	lineStart := 0
	for i, r := range content {
		if lineNum <= 1 {
			break
		}
		if r == '\n' {
			lineNum--
			lineStart = i + 1
		}
	}

	lineEnd := len(content)
	for i := lineStart; i < len(content); i++ {
		if content[i] == '\n' {
			lineEnd = i
			break
		}
	}

	fmt.Fprintf(w, "  %s\n", string(content[lineStart:lineEnd]))

	caret := "^"
	if tok.Len > 1 {
		caret += strings.Repeat("~", tok.Len-1)
	}
	col := tok.Column - 1
	if col < 0 {
		col = 0
	}
	fmt.Fprintf(w, "  %s%s\n", strings.Repeat(" ", col), paint(w, "32", caret))
}

// Error aborts lexing or parsing. The panic is recovered by Recover.
func Error(tok token.Token, format string, args ...any) {
	panic(Errorf(ErrSyntax, tok, format, args...))
}

// Recover turns a bail-out raised by Error into an error return.
func Recover(errp *error) {
	r := recover()
	if r == nil {
		return
	}
	if ce, ok := r.(*CompileError); ok {
		*errp = ce
		return
	}
	panic(r)
}

// Report prints err as a diagnostic. Compile errors get a source excerpt.
func Report(err error) {
	var ce *CompileError
	if !errors.As(err, &ce) {
		fmt.Fprintf(Stderr, "lync: %s %v\n", paint(Stderr, "31", "error:"), err)
		return
	}
	filename, line, col := findFileAndLine(ce.Tok)
	fmt.Fprintf(Stderr, "%s:%d:%d: %s %s\n", filename, line, col, paint(Stderr, "31", "error:"), ce.Message())
	printErrorLine(Stderr, ce.Tok)
}

// Warn prints a formatted warning message if the corresponding warning is enabled
func Warn(cfg *config.Config, wt config.Warning, tok token.Token, format string, args ...any) {
	if !cfg.IsWarningEnabled(wt) {
		return
	}
	filename, line, col := findFileAndLine(tok)
	warningName := cfg.Warnings[wt].Name
	fmt.Fprintf(Stderr, "%s:%d:%d: %s ", filename, line, col, paint(Stderr, "33", "warning:"))
	fmt.Fprintf(Stderr, format, args...)
	fmt.Fprintf(Stderr, " [-W%s]\n", warningName)
	printErrorLine(Stderr, tok)
}

func Info(format string, args ...any) {
	fmt.Fprintf(Stderr, "lync: info: "+format+"\n", args...)
}

func AlignUp(n, align int64) int64 {
	if align <= 0 {
		return n
	}
	return (n + align - 1) &^ (align - 1)
}
